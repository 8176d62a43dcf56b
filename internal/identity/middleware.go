package identity

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nyumbani/nyumbani-access/internal/shared"
)

// PrincipalMiddleware builds the normalised Principal from the loaded
// session, once per request. Downstream code reads only the Principal and
// never inspects session internals.
func PrincipalMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.User() == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := uuid.Parse(sess.User())
			if err != nil {
				if logger != nil {
					logger.Error("parse session user id", slog.String("value", sess.User()))
				}
				next.ServeHTTP(w, r)
				return
			}
			p := Principal{UserID: userID, CoarseRole: ParseCoarseRole(sess.Role())}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}
