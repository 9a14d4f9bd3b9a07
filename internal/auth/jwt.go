// Package auth issues and validates the bearer tokens used by both the HTTP
// API and the websocket handshake.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomchat/internal/apperr"
	"roomchat/internal/utils"
)

type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttlHours int) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    time.Duration(ttlHours) * time.Hour,
		now:    time.Now,
	}
}

// Issue signs an HS256 token for userID.
func (m *Manager) Issue(userID int64) (string, error) {
	jti, err := utils.RandomTokenHex(16)
	if err != nil {
		return "", fmt.Errorf("token id: %w", err)
	}
	now := m.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     now.Add(m.ttl).Unix(),
		"iat":     now.Unix(),
		"jti":     jti,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Authenticate returns the user id carried by tokenStr. Every failure is
// reported as apperr.ErrUnauthenticated.
func (m *Manager) Authenticate(tokenStr string) (int64, error) {
	tokenStr = StripBearer(strings.TrimSpace(tokenStr))
	if tokenStr == "" {
		return 0, fmt.Errorf("missing token: %w", apperr.ErrUnauthenticated)
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("token invalid")
		}
		return 0, fmt.Errorf("%v: %w", err, apperr.ErrUnauthenticated)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("%v: %w", jwt.ErrTokenMalformed, apperr.ErrUnauthenticated)
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat <= 0 {
		return 0, fmt.Errorf("%v: %w", jwt.ErrTokenMalformed, apperr.ErrUnauthenticated)
	}
	return int64(userIDFloat), nil
}

// StripBearer drops a leading "Bearer " scheme.
func StripBearer(v string) string {
	return strings.TrimPrefix(v, "Bearer ")
}
