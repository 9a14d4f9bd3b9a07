package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func mustUser(t *testing.T, s Store, name string) models.User {
	t.Helper()
	u := models.User{
		Email:        name + "@example.com",
		Username:     name,
		DisplayColor: models.DefaultDisplayColor,
		PasswordHash: "x",
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	require.NoError(t, s.CreateUser(context.Background(), &u))
	require.NotZero(t, u.ID)
	return u
}

func mustRoom(t *testing.T, s Store, name string, general bool, creator models.User, others ...models.User) models.Room {
	t.Helper()
	r := models.Room{Name: name, IsGeneral: general, CreatedBy: creator.ID, CreatedAt: base}
	members := []models.Membership{{UserID: creator.ID, CanAccessHistory: true, JoinedAt: base}}
	for i, o := range others {
		members = append(members, models.Membership{UserID: o.ID, JoinedAt: base.Add(time.Duration(i+1) * time.Second)})
	}
	require.NoError(t, s.CreateRoom(context.Background(), &r, members))
	return r
}

// runStoreSuite checks the behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("users unique case-insensitively", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")

		dup := models.User{Email: "ALICE@example.com", Username: "other", PasswordHash: "x", CreatedAt: base, UpdatedAt: base}
		assert.ErrorIs(t, s.CreateUser(ctx, &dup), apperr.ErrConflict)

		got, err := s.GetUserByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, got.ID)

		_, err = s.GetUser(ctx, alice.ID+100)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("list users excludes caller and sorts", func(t *testing.T) {
		s := newStore(t)
		carol := mustUser(t, s, "carol")
		mustUser(t, s, "bob")
		mustUser(t, s, "dave")

		users, err := s.ListUsers(ctx, carol.ID)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "bob", users[0].Username)
		assert.Equal(t, "dave", users[1].Username)
	})

	t.Run("update user rejects taken username", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		mustUser(t, s, "bob")

		taken := "Bob"
		_, err := s.UpdateUser(ctx, alice.ID, UserUpdate{Username: &taken})
		assert.ErrorIs(t, err, apperr.ErrConflict)

		color := "#ff0000"
		got, err := s.UpdateUser(ctx, alice.ID, UserUpdate{DisplayColor: &color, UpdatedAt: base.Add(time.Hour)})
		require.NoError(t, err)
		assert.Equal(t, "#ff0000", got.DisplayColor)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("single general room", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		_, err := s.GetGeneralRoom(ctx)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r := models.Room{Name: models.GeneralRoomName, IsGeneral: true, CreatedBy: alice.ID, CreatedAt: base}
				err := s.CreateRoom(ctx, &r, nil)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					created++
				} else if assert.ErrorIs(t, err, apperr.ErrConflict) {
					conflicts++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)
		assert.Equal(t, 7, conflicts)

		general, err := s.GetGeneralRoom(ctx)
		require.NoError(t, err)
		assert.True(t, general.IsGeneral)
	})

	t.Run("add memberships skips existing", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		bob := mustUser(t, s, "bob")
		carol := mustUser(t, s, "carol")
		room := mustRoom(t, s, "team", false, alice, bob)

		inserted, err := s.AddMemberships(ctx, room.ID, []models.Membership{
			{UserID: bob.ID, CanAccessHistory: true, JoinedAt: base.Add(time.Hour)},
			{UserID: carol.ID, CanAccessHistory: true, JoinedAt: base.Add(time.Hour)},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{carol.ID}, inserted)

		m, err := s.GetMembership(ctx, room.ID, bob.ID)
		require.NoError(t, err)
		assert.False(t, m.CanAccessHistory, "existing membership untouched")
		assert.True(t, m.JoinedAt.Equal(base.Add(time.Second)))

		_, err = s.AddMemberships(ctx, room.ID+100, []models.Membership{{UserID: bob.ID, JoinedAt: base}})
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("memberships and members ordering", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		bob := mustUser(t, s, "bob")
		first := mustRoom(t, s, "first", false, bob, alice)
		second := mustRoom(t, s, "second", false, alice)

		ms, err := s.ListMembershipsByUser(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, ms, 2)
		// alice joined "second" at base and "first" a second later
		assert.Equal(t, second.ID, ms[0].RoomID)
		assert.Equal(t, first.ID, ms[1].RoomID)

		members, err := s.ListMembers(ctx, []int64{first.ID})
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, bob.ID, members[0].ID)
		assert.Equal(t, alice.ID, members[1].ID)
		assert.Equal(t, first.ID, members[1].RoomID)
	})

	t.Run("message pages newest first", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		room := mustRoom(t, s, "log", false, alice)

		var msgs []models.Message
		for i := 0; i < 5; i++ {
			m := models.Message{RoomID: room.ID, SenderID: alice.ID, Content: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
			require.NoError(t, s.CreateMessage(ctx, &m))
			msgs = append(msgs, m)
		}

		page, err := s.ListMessages(ctx, MessageQuery{RoomID: room.ID, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, msgs[4].ID, page[0].ID)
		assert.Equal(t, msgs[3].ID, page[1].ID)

		page, err = s.ListMessages(ctx, MessageQuery{RoomID: room.ID, Before: &page[1], Limit: 10})
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, msgs[2].ID, page[0].ID)

		page, err = s.ListMessages(ctx, MessageQuery{RoomID: room.ID, Since: msgs[3].CreatedAt})
		require.NoError(t, err)
		assert.Len(t, page, 2)
	})

	t.Run("reactions are idempotent", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		room := mustRoom(t, s, "r", false, alice)
		m := models.Message{RoomID: room.ID, SenderID: alice.ID, Content: "hi", CreatedAt: base}
		require.NoError(t, s.CreateMessage(ctx, &m))

		r1 := models.Reaction{MessageID: m.ID, UserID: alice.ID, Emoji: "👍", CreatedAt: base}
		require.NoError(t, s.AddReaction(ctx, &r1))
		r2 := models.Reaction{MessageID: m.ID, UserID: alice.ID, Emoji: "👍", CreatedAt: base.Add(time.Second)}
		require.NoError(t, s.AddReaction(ctx, &r2))
		assert.Equal(t, r1.ID, r2.ID)

		other := models.Reaction{MessageID: m.ID, UserID: alice.ID, Emoji: "🎉", CreatedAt: base.Add(time.Second)}
		require.NoError(t, s.AddReaction(ctx, &other))

		rs, err := s.ListReactions(ctx, []int64{m.ID})
		require.NoError(t, err)
		assert.Len(t, rs, 2)

		require.NoError(t, s.RemoveReaction(ctx, m.ID, alice.ID, "👍"))
		require.NoError(t, s.RemoveReaction(ctx, m.ID, alice.ID, "👍"))
		rs, err = s.ListReactions(ctx, []int64{m.ID})
		require.NoError(t, err)
		require.Len(t, rs, 1)
		assert.Equal(t, "🎉", rs[0].Emoji)
	})
	t.Run("get rooms batches and skips unknown ids", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		a := mustRoom(t, s, "a", false, alice)
		b := mustRoom(t, s, "b", false, alice)

		got, err := s.GetRooms(ctx, []int64{b.ID, a.ID, b.ID, 9999})
		require.NoError(t, err)
		ids := make([]int64, 0, len(got))
		for _, r := range got {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []int64{a.ID, b.ID}, ids)

		got, err = s.GetRooms(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete user drops memberships", func(t *testing.T) {
		s := newStore(t)
		alice := mustUser(t, s, "alice")
		bob := mustUser(t, s, "bob")
		room := mustRoom(t, s, "r", false, alice, bob)

		require.NoError(t, s.DeleteUser(ctx, bob.ID))
		_, err := s.GetUser(ctx, bob.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = s.GetMembership(ctx, room.ID, bob.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		require.NoError(t, s.DeleteUser(ctx, bob.ID))

		// the email is free again
		mustUser(t, s, "bob")
	})
}
