// Package rooms implements the room registry: room creation, membership,
// the per-member history window, messages and reactions.
//
// ResolveEffectiveHistory is the single authorization gate; every
// room-scoped operation in this package passes through it.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
	"roomchat/internal/store"
)

// Store is the subset of store.Store the registry needs.
type Store interface {
	store.RoomStore
	store.MembershipStore
	store.MessageStore
	store.ReactionStore
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
}

type Service struct {
	store   Store
	log     logrus.FieldLogger
	now     func() time.Time
	general singleflight.Group
}

type Option func(*Service)

// WithClock replaces time.Now as the source of createdAt and joinedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st Store, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{store: st, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp matches the microsecond precision of DATETIME(6).
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// ResolveEffectiveHistory returns the caller's membership in roomID, which
// carries the history window. It fails with apperr.ErrNotAMember when there
// is none.
func (s *Service) ResolveEffectiveHistory(ctx context.Context, roomID, userID int64) (models.Membership, error) {
	m, err := s.store.GetMembership(ctx, roomID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return models.Membership{}, fmt.Errorf("user %d in room %d: %w", userID, roomID, apperr.ErrNotAMember)
	}
	if err != nil {
		return models.Membership{}, err
	}
	return m, nil
}

// summaries loads user summaries keyed by id. Unknown ids get a bare summary
// so a deleted account never breaks hydration.
func (s *Service) summaries(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.UserSummary, len(ids))
	for _, u := range users {
		out[u.ID] = u.Summary()
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = models.UserSummary{ID: id}
		}
	}
	return out, nil
}

// requireUsers fails with apperr.ErrNotFound naming the first unknown id.
func (s *Service) requireUsers(ctx context.Context, ids []int64) error {
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return err
	}
	known := make(map[int64]bool, len(users))
	for _, u := range users {
		known[u.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
		}
	}
	return nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
