package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/auth"
	"roomchat/internal/models"
	"roomchat/internal/presence"
	"roomchat/internal/rooms"
	"roomchat/internal/store"
	"roomchat/internal/users"
)

type harness struct {
	t      *testing.T
	srv    *httptest.Server
	tokens *auth.Manager
	users  *users.Service
	rooms  *rooms.Service
	mgr    *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := quietLogger()
	st := store.NewMemory()
	roomSvc := rooms.NewService(st, log)
	tokens := auth.NewManager("test-secret", 1)
	userSvc := users.NewService(st, roomSvc, tokens, log)
	router := NewRouter(log)
	tracker := presence.NewTracker(userSvc, router, log, time.Second)
	mgr := NewManager(router, tokens, userSvc, roomSvc, tracker, log)

	srv := httptest.NewServer(mgr)
	t.Cleanup(func() {
		mgr.Close()
		srv.Close()
		tracker.Close()
	})
	return &harness{t: t, srv: srv, tokens: tokens, users: userSvc, rooms: roomSvc, mgr: mgr}
}

func (h *harness) register(name string) users.AuthResult {
	h.t.Helper()
	res, err := h.users.Register(context.Background(), users.RegisterInput{
		Email:    name + "@example.com",
		Password: "secret123",
		Username: name,
	})
	require.NoError(h.t, err)
	return res
}

func (h *harness) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http")
}

// dial connects with the token in the subprotocol list and consumes
// connection:init.
func (h *harness) dial(token string) (*websocket.Conn, InitPayload) {
	h.t.Helper()
	d := websocket.Dialer{Subprotocols: []string{Subprotocol, tokenProtocolPrefix + token}}
	c, resp, err := d.Dial(h.url(), nil)
	require.NoError(h.t, err)
	assert.Equal(h.t, Subprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))
	h.t.Cleanup(func() { c.Close() })

	env := readEvent(h.t, c)
	require.Equal(h.t, EventConnectionInit, env.Type)
	var init InitPayload
	require.NoError(h.t, json.Unmarshal(env.Data, &init))
	return c, init
}

func readEvent(t *testing.T, c *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var env Envelope
	require.NoError(t, c.ReadJSON(&env))
	return env
}

// readUntil skips events of other types, such as typing rosters.
func readUntil(t *testing.T, c *websocket.Conn, eventType string) Envelope {
	t.Helper()
	for {
		env := readEvent(t, c)
		if env.Type == eventType {
			return env
		}
	}
}

func send(t *testing.T, c *websocket.Conn, eventType string, data any) {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, c.WriteJSON(Envelope{Type: eventType, Data: b}))
}

func TestExtractTokenPriority(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
	r.Header.Set("Authorization", "Bearer header")
	r.Header.Set("Sec-WebSocket-Protocol", "roomchat, token.proto")
	assert.Equal(t, "proto", ExtractToken(r))

	r.Header.Del("Sec-WebSocket-Protocol")
	assert.Equal(t, "header", ExtractToken(r))

	r.Header.Del("Authorization")
	assert.Equal(t, "query", ExtractToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=Bearer%20abc", nil)
	assert.Equal(t, "abc", ExtractToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.Empty(t, ExtractToken(r))
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	h := newHarness(t)
	c, _, err := websocket.DefaultDialer.Dial(h.url()+"?token=garbage", nil)
	require.NoError(t, err)
	defer c.Close()

	env := readEvent(t, c)
	assert.Equal(t, EventError, env.Type)
	assert.JSONEq(t, `{"message":"Authentication error"}`, string(env.Data))

	_, _, err = c.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Zero(t, h.mgr.SessionCount())
}

func TestConnectionInit(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")

	_, init := h.dial(alice.Token)
	assert.Equal(t, alice.User.ID, init.User.ID)
	require.Len(t, init.Rooms, 1)
	assert.True(t, init.Rooms[0].IsGeneral)
	assert.Equal(t, 1, h.mgr.SessionCount())
}

func TestHeaderAndQueryTokens(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+alice.Token)
	c, _, err := websocket.DefaultDialer.Dial(h.url(), hdr)
	require.NoError(t, err)
	assert.Equal(t, EventConnectionInit, readEvent(t, c).Type)
	c.Close()

	c, _, err = websocket.DefaultDialer.Dial(h.url()+"?token="+alice.Token, nil)
	require.NoError(t, err)
	assert.Equal(t, EventConnectionInit, readEvent(t, c).Type)
	c.Close()
}

func TestMessageFanOut(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	bob := h.register("bob")

	ac, init := h.dial(alice.Token)
	bc, _ := h.dial(bob.Token)
	general := init.Rooms[0].ID

	send(t, ac, EventMessageSend, SendMessagePayload{RoomID: general, Content: "  hello  "})

	for _, c := range []*websocket.Conn{ac, bc} {
		env := readUntil(t, c, EventMessageNew)
		var msg models.MessageView
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, alice.User.ID, msg.Sender.ID)
		assert.Equal(t, general, msg.RoomID)
	}
}

func TestEventErrorsKeepConnectionOpen(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	ac, init := h.dial(alice.Token)

	require.NoError(t, ac.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env := readEvent(t, ac)
	assert.Equal(t, EventError, env.Type)

	send(t, ac, "bogus", struct{}{})
	env = readEvent(t, ac)
	assert.JSONEq(t, `{"message":"unknown message type"}`, string(env.Data))

	send(t, ac, EventMessageSend, SendMessagePayload{RoomID: init.Rooms[0].ID, Content: "   "})
	env = readEvent(t, ac)
	assert.Equal(t, EventError, env.Type)
	assert.Contains(t, string(env.Data), "message cannot be empty")

	send(t, ac, EventMessageSend, SendMessagePayload{RoomID: 9999, Content: "hi"})
	env = readEvent(t, ac)
	assert.Equal(t, EventError, env.Type)
	assert.Contains(t, string(env.Data), "not a member")

	send(t, ac, EventRoomsSync, struct{}{})
	assert.Equal(t, EventRoomsUpdate, readEvent(t, ac).Type)
}

func TestSyncUsersSubscribesNewRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	bob := h.register("bob")
	ac, _ := h.dial(alice.Token)
	bc, _ := h.dial(bob.Token)

	ctx := context.Background()
	room, err := h.rooms.CreateRoom(ctx, alice.User.ID, rooms.CreateRoomInput{Name: "backend", MemberIDs: []int64{bob.User.ID}})
	require.NoError(t, err)
	require.NoError(t, h.mgr.SyncUsers(ctx, []int64{alice.User.ID, bob.User.ID}))

	env := readUntil(t, bc, EventRoomsUpdate)
	var list []models.RoomView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)
	readUntil(t, ac, EventRoomsUpdate)

	send(t, bc, EventMessageSend, SendMessagePayload{RoomID: room.ID, Content: "hi"})
	env = readUntil(t, ac, EventMessageNew)
	assert.Contains(t, string(env.Data), `"content":"hi"`)
}

func TestReactionsBroadcastToMessageRoom(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	bob := h.register("bob")
	ac, init := h.dial(alice.Token)
	bc, _ := h.dial(bob.Token)
	general := init.Rooms[0].ID

	send(t, ac, EventMessageSend, SendMessagePayload{RoomID: general, Content: "ship it"})
	var msg models.MessageView
	require.NoError(t, json.Unmarshal(readUntil(t, bc, EventMessageNew).Data, &msg))

	// A wrong roomId in the payload does not redirect the fan-out.
	send(t, bc, EventReactionAdd, ReactionPayload{MessageID: msg.ID, RoomID: 4242, Emoji: "🚀"})
	var updated models.MessageView
	require.NoError(t, json.Unmarshal(readUntil(t, ac, EventMessageUpdated).Data, &updated))
	require.Len(t, updated.Reactions, 1)
	assert.Equal(t, "🚀", updated.Reactions[0].Emoji)
	assert.Equal(t, bob.User.ID, updated.Reactions[0].User.ID)

	send(t, bc, EventReactionRemove, ReactionPayload{MessageID: msg.ID, Emoji: "🚀"})
	require.NoError(t, json.Unmarshal(readUntil(t, ac, EventMessageUpdated).Data, &updated))
	assert.Empty(t, updated.Reactions)
}

func TestTypingAndDisconnectCleanup(t *testing.T) {
	h := newHarness(t)
	alice := h.register("alice")
	bob := h.register("bob")
	ac, init := h.dial(alice.Token)
	bc, _ := h.dial(bob.Token)
	general := init.Rooms[0].ID

	send(t, bc, EventTypingStart, RoomPayload{RoomID: general})
	var upd presence.TypingUpdate
	require.NoError(t, json.Unmarshal(readUntil(t, ac, presence.EventTypingUpdate).Data, &upd))
	require.Len(t, upd.Users, 1)
	assert.Equal(t, bob.User.ID, upd.Users[0].ID)

	require.NoError(t, bc.Close())
	require.NoError(t, json.Unmarshal(readUntil(t, ac, presence.EventTypingUpdate).Data, &upd))
	assert.Empty(t, upd.Users)
	assert.Eventually(t, func() bool { return h.mgr.SessionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}
