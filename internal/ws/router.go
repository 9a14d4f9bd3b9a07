package ws

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func RoomChannel(roomID int64) string { return fmt.Sprintf("room:%d", roomID) }
func UserChannel(userID int64) string { return fmt.Sprintf("user:%d", userID) }

// Router fans events out to the connections subscribed to a channel.
// Delivery is best effort: frames for closed connections are dropped and a
// connection that cannot keep up is closed.
type Router struct {
	log logrus.FieldLogger

	mu       sync.RWMutex
	channels map[string]map[*Conn]struct{}
	subs     map[*Conn]map[string]struct{}
}

func NewRouter(log logrus.FieldLogger) *Router {
	return &Router{
		log:      log,
		channels: make(map[string]map[*Conn]struct{}),
		subs:     make(map[*Conn]map[string]struct{}),
	}
}

// Subscribe adds c to channel and reports whether it was newly added. A
// closed connection is never added.
func (r *Router) Subscribe(c *Conn, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// checked under r.mu so a concurrent UnsubscribeAll cannot be undone
	if c.isClosed() {
		return false
	}

	conns := r.channels[channel]
	if conns == nil {
		conns = make(map[*Conn]struct{})
		r.channels[channel] = conns
	}
	if _, ok := conns[c]; ok {
		return false
	}
	conns[c] = struct{}{}

	chans := r.subs[c]
	if chans == nil {
		chans = make(map[string]struct{})
		r.subs[c] = chans
	}
	chans[channel] = struct{}{}
	return true
}

// UnsubscribeAll removes c from every channel.
func (r *Router) UnsubscribeAll(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for channel := range r.subs[c] {
		conns := r.channels[channel]
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.channels, channel)
		}
	}
	delete(r.subs, c)
}

// Subscribers returns a snapshot of channel's connections.
func (r *Router) Subscribers(channel string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Conn, 0, len(r.channels[channel]))
	for c := range r.channels[channel] {
		out = append(out, c)
	}
	return out
}

// Channels returns the channels c is subscribed to.
func (r *Router) Channels(c *Conn) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subs[c]))
	for ch := range r.subs[c] {
		out = append(out, ch)
	}
	return out
}

// Publish encodes the event once and queues it on every subscriber. It
// returns how many connections accepted the frame.
func (r *Router) Publish(channel, eventType string, payload any) int {
	b, err := encode(eventType, payload)
	if err != nil {
		r.log.WithError(err).WithField("channel", channel).Error("publish")
		return 0
	}
	delivered := 0
	for _, c := range r.Subscribers(channel) {
		if r.deliver(c, b) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) PublishToRoom(roomID int64, eventType string, payload any) {
	r.Publish(RoomChannel(roomID), eventType, payload)
}

func (r *Router) PublishToUser(userID int64, eventType string, payload any) {
	r.Publish(UserChannel(userID), eventType, payload)
}

// Send queues one event for a single connection.
func (r *Router) Send(c *Conn, eventType string, payload any) error {
	b, err := encode(eventType, payload)
	if err != nil {
		return err
	}
	r.deliver(c, b)
	return nil
}

func (r *Router) deliver(c *Conn, b []byte) bool {
	switch err := c.enqueue(b); err {
	case nil:
		return true
	case errBufferFull:
		r.log.WithFields(logrus.Fields{"conn_id": c.ID, "user_id": c.UserID}).Warn("send buffer full, dropping connection")
		c.Close(websocket.CloseTryAgainLater, "slow consumer")
	}
	return false
}
