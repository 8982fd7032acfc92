package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/zhouzirui/convosense/backend/internal/auth"
	"github.com/zhouzirui/convosense/backend/pkg/utils"
)

// TokenParser validates a session token.
type TokenParser interface {
	Parse(token string) (auth.Session, error)
}

// Auth requires a valid session token from the Authorization header or,
// for websocket and SSE clients, the token query parameter.
func Auth(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				utils.RespondError(w, http.StatusUnauthorized, "missing session token")
				return
			}

			session, err := parser.Parse(token)
			if err != nil {
				msg := "invalid session token"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "session expired"
				}
				utils.RespondError(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), session)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
