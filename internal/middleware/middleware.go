package middleware

import (
	"context"
	"net/http"
	"strings"

	logger "github.com/chi-middleware/logrus-logger"
	"github.com/sirupsen/logrus"

	"roomchat/internal/apperr"
	"roomchat/internal/auth"
	"roomchat/internal/utils"
)

type contextKey string

// UserIDKey holds the authenticated user's id (int64) on the request
// context.
const UserIDKey contextKey = "user_id"

const SessionTokenHeader = "X-Session-Token"

type Authenticator interface {
	Authenticate(token string) (int64, error)
}

// Logger logs one line per request.
func Logger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return logger.Logger("router", log)
}

// AuthJWT rejects requests without a valid bearer token. The token is read
// from Authorization, falling back to X-Session-Token.
func AuthJWT(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.StripBearer(r.Header.Get("Authorization"))
			if token == "" {
				token = strings.TrimSpace(r.Header.Get(SessionTokenHeader))
			}
			if token == "" {
				utils.Error(w, apperr.ErrUnauthenticated)
				return
			}
			userID, err := authn.Authenticate(token)
			if err != nil {
				utils.Error(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID returns the id stored by AuthJWT.
func UserID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(UserIDKey).(int64)
	return id, ok
}
