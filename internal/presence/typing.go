// Package presence tracks who is typing in which room. Entries expire on
// their own unless refreshed, and every change broadcasts the room's roster.
package presence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"roomchat/internal/models"
)

const (
	DefaultTTL        = 5 * time.Second
	EventTypingUpdate = "typing:update"
)

type Publisher interface {
	PublishToRoom(roomID int64, eventType string, payload any)
}

type ProfileSource interface {
	Summaries(ctx context.Context, ids []int64) ([]models.UserSummary, error)
}

// TypingUpdate is the payload of EventTypingUpdate.
type TypingUpdate struct {
	RoomID int64                `json:"roomId"`
	Users  []models.UserSummary `json:"users"`
}

type entry struct {
	timer *time.Timer
	order uint64
}

type Tracker struct {
	profiles ProfileSource
	publish  Publisher
	log      logrus.FieldLogger
	ttl      time.Duration

	mu     sync.Mutex
	rooms  map[int64]map[int64]*entry
	seq    uint64
	closed bool
	// versions holds each room's generation, bumped on every roster change.
	// Only a broadcast carrying the current generation is published.
	versions map[int64]uint64
	gen      uint64

	// pubMu orders the generation check with the publish
	pubMu sync.Mutex
}

func NewTracker(profiles ProfileSource, publish Publisher, log logrus.FieldLogger, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		profiles: profiles,
		publish:  publish,
		log:      log,
		ttl:      ttl,
		rooms:    make(map[int64]map[int64]*entry),
		versions: make(map[int64]uint64),
	}
}

// StartTyping marks userID as typing in roomID and (re)arms its expiry.
func (t *Tracker) StartTyping(ctx context.Context, roomID, userID int64) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	users := t.rooms[roomID]
	if users == nil {
		users = make(map[int64]*entry)
		t.rooms[roomID] = users
	}
	e := &entry{}
	if prev, ok := users[userID]; ok {
		prev.timer.Stop()
		e.order = prev.order
	} else {
		t.seq++
		e.order = t.seq
	}
	// the callback takes t.mu, so it cannot observe e before it is stored
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(roomID, userID, e) })
	users[userID] = e
	t.bumpLocked(roomID)
	t.mu.Unlock()

	t.broadcast(ctx, roomID)
}

// StopTyping clears userID's entry in roomID and broadcasts the roster.
func (t *Tracker) StopTyping(ctx context.Context, roomID, userID int64) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.removeLocked(roomID, userID)
	t.bumpLocked(roomID)
	t.mu.Unlock()

	t.broadcast(ctx, roomID)
}

// ClearUser drops userID from every roster it appears in; used when a
// connection goes away.
func (t *Tracker) ClearUser(ctx context.Context, userID int64) {
	t.mu.Lock()
	var affected []int64
	for roomID, users := range t.rooms {
		if _, ok := users[userID]; ok {
			affected = append(affected, roomID)
		}
	}
	for _, roomID := range affected {
		t.removeLocked(roomID, userID)
		t.bumpLocked(roomID)
	}
	t.mu.Unlock()

	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })
	for _, roomID := range affected {
		t.broadcast(ctx, roomID)
	}
}

// Typing returns the ids currently typing in roomID in the order they
// started.
func (t *Tracker) Typing(roomID int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked(roomID)
}

// Close cancels every pending expiry. Later calls are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, users := range t.rooms {
		for _, e := range users {
			e.timer.Stop()
		}
	}
	t.rooms = make(map[int64]map[int64]*entry)
	t.closed = true
}

func (t *Tracker) expire(roomID, userID int64, e *entry) {
	t.mu.Lock()
	if cur, ok := t.rooms[roomID][userID]; !ok || cur != e {
		// refreshed or stopped after the timer fired
		t.mu.Unlock()
		return
	}
	t.removeLocked(roomID, userID)
	t.bumpLocked(roomID)
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Debug("typing expired")
	t.broadcast(context.Background(), roomID)
}

func (t *Tracker) removeLocked(roomID, userID int64) {
	users := t.rooms[roomID]
	e, ok := users[userID]
	if !ok {
		return
	}
	e.timer.Stop()
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
}

func (t *Tracker) bumpLocked(roomID int64) {
	t.gen++
	t.versions[roomID] = t.gen
}

func (t *Tracker) snapshotLocked(roomID int64) []int64 {
	users := t.rooms[roomID]
	ids := make([]int64, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return users[ids[i]].order < users[ids[j]].order })
	return ids
}

// broadcast resolves profiles outside the lock, then publishes unless the
// roster changed meanwhile. The change that superseded it broadcasts the
// newer roster itself.
func (t *Tracker) broadcast(ctx context.Context, roomID int64) {
	t.mu.Lock()
	ids := t.snapshotLocked(roomID)
	version := t.versions[roomID]
	t.mu.Unlock()
	update := TypingUpdate{RoomID: roomID, Users: []models.UserSummary{}}
	if len(ids) > 0 {
		users, err := t.profiles.Summaries(ctx, ids)
		if err != nil {
			t.log.WithError(err).WithField("room_id", roomID).Warn("typing roster profiles unavailable")
			users = make([]models.UserSummary, 0, len(ids))
			for _, id := range ids {
				users = append(users, models.UserSummary{ID: id})
			}
		}
		update.Users = users
	}

	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	t.mu.Lock()
	stale := t.versions[roomID] != version
	t.mu.Unlock()
	if stale {
		t.log.WithField("room_id", roomID).Debug("dropping superseded typing roster")
		return
	}
	t.publish.PublishToRoom(roomID, EventTypingUpdate, update)
}
