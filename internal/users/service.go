// Package users manages accounts: registration, login and public profiles.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"roomchat/internal/apperr"
	"roomchat/internal/models"
	"roomchat/internal/store"
	"roomchat/internal/utils"
)

const MinPasswordLen = 6

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]{3,20}$`)
	colorPattern    = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
)

// GeneralRoomJoiner puts a fresh account into the general room.
type GeneralRoomJoiner interface {
	JoinGeneralRoom(ctx context.Context, userID int64) (models.Room, error)
}

type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

type Service struct {
	store  store.UserStore
	rooms  GeneralRoomJoiner
	tokens TokenIssuer
	log    logrus.FieldLogger
	now    func() time.Time
}

func NewService(st store.UserStore, rooms GeneralRoomJoiner, tokens TokenIssuer, log logrus.FieldLogger) *Service {
	return &Service{store: st, rooms: rooms, tokens: tokens, log: log, now: time.Now}
}

type RegisterInput struct {
	Email        string
	Password     string
	Username     string
	DisplayColor string
}

type ProfileUpdate struct {
	Username     *string
	DisplayColor *string
}

type AuthResult struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 3-20 letters, digits, '_' or '-': %w", apperr.ErrValidation)
	}
	return nil
}

func ValidateColor(color string) error {
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("displayColor must be a hex color: %w", apperr.ErrValidation)
	}
	return nil
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Register creates an account, joins it to the general room and returns a
// token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	username := strings.TrimSpace(in.Username)
	if email == "" || !strings.Contains(email, "@") {
		return AuthResult{}, fmt.Errorf("email is invalid: %w", apperr.ErrValidation)
	}
	if len(in.Password) < MinPasswordLen {
		return AuthResult{}, fmt.Errorf("password must be at least %d characters: %w", MinPasswordLen, apperr.ErrValidation)
	}
	if err := ValidateUsername(username); err != nil {
		return AuthResult{}, err
	}
	color := in.DisplayColor
	if color == "" {
		color = models.DefaultDisplayColor
	}
	if err := ValidateColor(color); err != nil {
		return AuthResult{}, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return AuthResult{}, fmt.Errorf("email already registered: %w", apperr.ErrConflict)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return AuthResult{}, err
	}
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return AuthResult{}, fmt.Errorf("username already in use: %w", apperr.ErrConflict)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return AuthResult{}, err
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}
	now := s.timestamp()
	u := models.User{
		Email:        email,
		Username:     username,
		DisplayColor: color,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return AuthResult{}, err
	}
	if _, err := s.rooms.JoinGeneralRoom(ctx, u.ID); err != nil {
		s.discard(ctx, u.ID)
		return AuthResult{}, fmt.Errorf("join general room: %w", err)
	}
	res, err := s.authResult(u)
	if err != nil {
		s.discard(ctx, u.ID)
		return AuthResult{}, err
	}
	s.log.WithField("user_id", u.ID).Info("user registered")
	return res, nil
}

// discard removes a half-registered account so the same email and username
// can register again.
func (s *Service) discard(ctx context.Context, userID int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("discard partial registration")
	}
}

// Login checks credentials. Unknown emails and wrong passwords fail the same
// way.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthenticated)
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !utils.CheckPassword(password, u.PasswordHash) {
		return AuthResult{}, fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthenticated)
	}
	return s.authResult(u)
}

func (s *Service) authResult(u models.User) (AuthResult, error) {
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Token: token, User: u.Public()}, nil
}

func (s *Service) PublicProfile(ctx context.Context, userID int64) (models.PublicUser, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}

// Summaries returns summaries in the order of ids, skipping unknown users.
func (s *Service) Summaries(ctx context.Context, ids []int64) ([]models.UserSummary, error) {
	users, err := s.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]models.UserSummary, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u.Summary())
		}
	}
	return out, nil
}

// ListUsers returns every account except excludeID, ordered by username.
func (s *Service) ListUsers(ctx context.Context, excludeID int64) ([]models.PublicUser, error) {
	users, err := s.store.ListUsers(ctx, excludeID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) (models.PublicUser, error) {
	var su store.UserUpdate
	if upd.Username != nil && *upd.Username != "" {
		username := strings.TrimSpace(*upd.Username)
		if err := ValidateUsername(username); err != nil {
			return models.PublicUser{}, err
		}
		existing, err := s.store.GetUserByUsername(ctx, username)
		switch {
		case err == nil && existing.ID != userID:
			return models.PublicUser{}, fmt.Errorf("username already in use: %w", apperr.ErrConflict)
		case err != nil && !errors.Is(err, apperr.ErrNotFound):
			return models.PublicUser{}, err
		}
		su.Username = &username
	}
	if upd.DisplayColor != nil && *upd.DisplayColor != "" {
		if err := ValidateColor(*upd.DisplayColor); err != nil {
			return models.PublicUser{}, err
		}
		su.DisplayColor = upd.DisplayColor
	}
	if su.Username != nil || su.DisplayColor != nil {
		su.UpdatedAt = s.timestamp()
	}
	u, err := s.store.UpdateUser(ctx, userID, su)
	if err != nil {
		return models.PublicUser{}, err
	}
	return u.Public(), nil
}
