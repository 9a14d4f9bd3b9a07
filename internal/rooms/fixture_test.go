package rooms

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
	"roomchat/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store *store.Memory
	clock *fakeClock
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		store: store.NewMemory(),
		clock: &fakeClock{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(f.store, log, WithClock(f.clock.Now))
	return f
}

func (f *fixture) user(t *testing.T, name string) models.User {
	t.Helper()
	u := models.User{
		Email:        name + "@example.com",
		Username:     name,
		DisplayColor: models.DefaultDisplayColor,
		PasswordHash: "x",
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	require.NoError(t, f.store.CreateUser(context.Background(), &u))
	return u
}

func (f *fixture) send(t *testing.T, roomID, senderID int64, content string) models.MessageView {
	t.Helper()
	m, err := f.svc.CreateMessage(context.Background(), roomID, senderID, content)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	return m
}

func messageIDs(views []models.MessageView) []int64 {
	ids := make([]int64, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids
}
