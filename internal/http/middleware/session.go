package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"trackrank/internal/logging"
)

// Session ensures every request carries an anonymous session id. The id is read
// from the named cookie or minted and set when absent, then stored on the request
// context for logging.SessionID.
func Session(cookieName string, ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sessionID string
			if c, err := r.Cookie(cookieName); err == nil {
				if _, perr := uuid.Parse(c.Value); perr == nil {
					sessionID = c.Value
				}
			}

			if sessionID == "" {
				sessionID = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			next.ServeHTTP(w, r.WithContext(logging.WithSessionID(r.Context(), sessionID)))
		})
	}
}
