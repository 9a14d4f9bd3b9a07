package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"roomchat/internal/apperr"
	"roomchat/internal/auth"
	"roomchat/internal/models"
)

const (
	// Subprotocol is negotiated when the client offers it alongside a
	// "token.<jwt>" entry.
	Subprotocol         = "roomchat"
	tokenProtocolPrefix = "token."

	defaultOpTimeout = 10 * time.Second
	syncConcurrency  = 8
)

var errInvalidPayload = errors.New("invalid payload")

type Authenticator interface {
	Authenticate(token string) (int64, error)
}

type Profiles interface {
	PublicProfile(ctx context.Context, userID int64) (models.PublicUser, error)
}

type Rooms interface {
	ListRoomsForUser(ctx context.Context, userID int64) ([]models.RoomView, error)
	ResolveEffectiveHistory(ctx context.Context, roomID, userID int64) (models.Membership, error)
	CreateMessage(ctx context.Context, roomID, senderID int64, content string) (models.MessageView, error)
	AddReaction(ctx context.Context, messageID, userID int64, emoji string) (models.MessageView, error)
	RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (models.MessageView, error)
}

type Typing interface {
	StartTyping(ctx context.Context, roomID, userID int64)
	StopTyping(ctx context.Context, roomID, userID int64)
	ClearUser(ctx context.Context, userID int64)
}

// Session is the server-side record of one authenticated connection.
type Session struct {
	ConnID      string
	UserID      int64
	ConnectedAt time.Time
}

// Manager owns the websocket endpoint: handshake authentication, the
// session table and inbound event dispatch.
type Manager struct {
	router   *Router
	auth     Authenticator
	profiles Profiles
	rooms    Rooms
	typing   Typing
	log      logrus.FieldLogger

	upgrader  websocket.Upgrader
	opTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]Session
	conns    map[string]*Conn
}

func NewManager(router *Router, authn Authenticator, profiles Profiles, rooms Rooms, typing Typing, log logrus.FieldLogger) *Manager {
	return &Manager{
		router:   router,
		auth:     authn,
		profiles: profiles,
		rooms:    rooms,
		typing:   typing,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{Subprotocol},
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		opTimeout: defaultOpTimeout,
		sessions:  make(map[string]Session),
		conns:     make(map[string]*Conn),
	}
}

// ExtractToken returns the bearer token offered by a handshake. A
// "token.<jwt>" subprotocol entry wins over the Authorization header,
// which wins over the token query parameter.
func ExtractToken(r *http.Request) string {
	for _, p := range websocket.Subprotocols(r) {
		if t := strings.TrimPrefix(p, tokenProtocolPrefix); t != p && t != "" {
			return auth.StripBearer(t)
		}
	}
	if h := r.Header.Get("Authorization"); h != "" {
		return auth.StripBearer(h)
	}
	return auth.StripBearer(r.URL.Query().Get("token"))
}

func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		m.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	user, rooms, err := m.handshake(ctx, ExtractToken(r))
	if err != nil {
		m.log.WithError(err).Info("websocket handshake rejected")
		reject(wsConn)
		return
	}

	c := newConn(uuid.NewString(), user.ID, wsConn)
	go c.writePump()
	m.connect(c, user, rooms)
	m.readLoop(ctx, c)
	m.disconnect(ctx, c)
}

func (m *Manager) handshake(ctx context.Context, token string) (models.PublicUser, []models.RoomView, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	userID, err := m.auth.Authenticate(token)
	if err != nil {
		return models.PublicUser{}, nil, err
	}
	user, err := m.profiles.PublicProfile(ctx, userID)
	if err != nil {
		return models.PublicUser{}, nil, err
	}
	rooms, err := m.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return models.PublicUser{}, nil, err
	}
	return user, rooms, nil
}

func reject(wsConn *websocket.Conn) {
	defer wsConn.Close()
	deadline := time.Now().Add(writeWait)
	if b, err := encode(EventError, ErrorPayload{Message: "Authentication error"}); err == nil {
		wsConn.SetWriteDeadline(deadline)
		_ = wsConn.WriteMessage(websocket.TextMessage, b)
	}
	_ = wsConn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"), deadline)
}

func (m *Manager) connect(c *Conn, user models.PublicUser, rooms []models.RoomView) {
	m.mu.Lock()
	m.sessions[c.ID] = Session{ConnID: c.ID, UserID: c.UserID, ConnectedAt: time.Now().UTC()}
	m.conns[c.ID] = c
	m.mu.Unlock()

	m.router.Subscribe(c, UserChannel(c.UserID))
	for _, room := range rooms {
		m.router.Subscribe(c, RoomChannel(room.ID))
	}
	if err := m.router.Send(c, EventConnectionInit, InitPayload{User: user, Rooms: rooms}); err != nil {
		m.log.WithError(err).Error("send connection:init")
	}
	m.log.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID, "rooms": len(rooms)}).Info("websocket connected")
}

func (m *Manager) readLoop(ctx context.Context, c *Conn) {
	c.prepareRead()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.log.WithError(err).WithField("conn_id", c.ID).Debug("websocket read")
			}
			return
		}
		m.handle(ctx, c.ID, data)
	}
}

func (m *Manager) disconnect(ctx context.Context, c *Conn) {
	// closed first so an in-flight SyncUsers cannot subscribe c again
	c.Close(websocket.CloseNormalClosure, "")
	m.router.UnsubscribeAll(c)

	m.mu.Lock()
	delete(m.sessions, c.ID)
	delete(m.conns, c.ID)
	m.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	m.typing.ClearUser(tctx, c.UserID)
	cancel()

	m.log.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID}).Info("websocket disconnected")
}

// Session looks up the session of a live connection.
func (m *Manager) Session(connID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[connID]
	return s, ok
}

// SessionCount reports the number of live connections.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) handle(ctx context.Context, connID string, data []byte) {
	m.mu.RLock()
	sess, ok := m.sessions[connID]
	c := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		m.sendError(c, "invalid message format")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.opTimeout)
	defer cancel()

	var err error
	switch env.Type {
	case EventRoomsSync:
		err = m.syncConn(ctx, c)
	case EventMessageSend:
		err = m.sendMessage(ctx, sess, env.Data)
	case EventTypingStart, EventTypingStop:
		err = m.setTyping(ctx, sess, env.Type == EventTypingStart, env.Data)
	case EventReactionAdd, EventReactionRemove:
		err = m.react(ctx, sess, env.Type == EventReactionAdd, env.Data)
	default:
		m.sendError(c, "unknown message type")
		return
	}
	if err != nil {
		fields := logrus.Fields{"conn_id": connID, "user_id": sess.UserID, "event": env.Type}
		if apperr.Status(err) >= http.StatusInternalServerError {
			m.log.WithError(err).WithFields(fields).Error("websocket event failed")
		} else {
			m.log.WithError(err).WithFields(fields).Debug("websocket event rejected")
		}
		m.sendError(c, eventErrorMessage(err))
	}
}

func eventErrorMessage(err error) string {
	if errors.Is(err, errInvalidPayload) {
		return errInvalidPayload.Error()
	}
	return apperr.Public(err)
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

func (m *Manager) sendMessage(ctx context.Context, sess Session, data json.RawMessage) error {
	var p SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	msg, err := m.rooms.CreateMessage(ctx, p.RoomID, sess.UserID, p.Content)
	if err != nil {
		return err
	}
	m.router.PublishToRoom(msg.RoomID, EventMessageNew, msg)
	return nil
}

func (m *Manager) setTyping(ctx context.Context, sess Session, start bool, data json.RawMessage) error {
	var p RoomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	if _, err := m.rooms.ResolveEffectiveHistory(ctx, p.RoomID, sess.UserID); err != nil {
		return err
	}
	if start {
		m.typing.StartTyping(ctx, p.RoomID, sess.UserID)
	} else {
		m.typing.StopTyping(ctx, p.RoomID, sess.UserID)
	}
	return nil
}

func (m *Manager) react(ctx context.Context, sess Session, add bool, data json.RawMessage) error {
	var p ReactionPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	var (
		msg models.MessageView
		err error
	)
	if add {
		msg, err = m.rooms.AddReaction(ctx, p.MessageID, sess.UserID, p.Emoji)
	} else {
		msg, err = m.rooms.RemoveReaction(ctx, p.MessageID, sess.UserID, p.Emoji)
	}
	if err != nil {
		return err
	}
	m.router.PublishToRoom(msg.RoomID, EventMessageUpdated, msg)
	return nil
}

// syncConn subscribes c to every room its user belongs to and pushes the
// room list.
func (m *Manager) syncConn(ctx context.Context, c *Conn) error {
	rooms, err := m.rooms.ListRoomsForUser(ctx, c.UserID)
	if err != nil {
		return err
	}
	m.subscribeRooms(c, rooms)
	return m.router.Send(c, EventRoomsUpdate, rooms)
}

func (m *Manager) subscribeRooms(c *Conn, rooms []models.RoomView) {
	for _, room := range rooms {
		m.router.Subscribe(c, RoomChannel(room.ID))
	}
}

// SyncUsers refreshes the subscriptions and room lists of every live
// connection of userIDs after an out-of-band membership change.
func (m *Manager) SyncUsers(ctx context.Context, userIDs []int64) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		conns := m.router.Subscribers(UserChannel(id))
		if len(conns) == 0 {
			continue
		}
		userID := id
		g.Go(func() error {
			rooms, err := m.rooms.ListRoomsForUser(ctx, userID)
			if err != nil {
				return err
			}
			for _, c := range conns {
				m.subscribeRooms(c, rooms)
				if err := m.router.Send(c, EventRoomsUpdate, rooms); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Close sends a going-away close frame to every live connection.
func (m *Manager) Close() {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()
	for _, c := range conns {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}
}

func (m *Manager) sendError(c *Conn, msg string) {
	if c == nil {
		return
	}
	if err := m.router.Send(c, EventError, ErrorPayload{Message: msg}); err != nil {
		m.log.WithError(err).Error("send error event")
	}
}
