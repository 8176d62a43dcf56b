package access

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nyumbani/nyumbani-access/internal/catalog"
	"github.com/nyumbani/nyumbani-access/internal/identity"
)

// DecisionSink receives the outcome of every authorization check, for
// metrics. Optional.
type DecisionSink interface {
	ObserveDecision(permission string, allowed bool)
}

// Guard is the single enforcement seam for permission-gated operations.
// Every protected route and handler asks it, and it fails closed.
type Guard struct {
	Service *Service
	Logger  *slog.Logger
	Sink    DecisionSink
}

// Authorize resolves one permission for the principal. Any resolution
// failure is reported as deny alongside the error so callers cannot
// accidentally proceed.
func (g Guard) Authorize(ctx context.Context, p identity.Principal, perm catalog.Permission) (bool, error) {
	allowed, err := g.Service.Decide(ctx, p, perm)
	if err != nil {
		g.observe(perm, false)
		return false, err
	}
	g.observe(perm, allowed)
	return allowed, nil
}

// Require gates a route on one permission. The 403 body is identical for
// every denial cause; which role or override produced the deny is never
// surfaced.
func (g Guard) Require(perm catalog.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := identity.PrincipalFromContext(r.Context())
			if !ok {
				writeForbidden(w)
				return
			}
			allowed, err := g.Authorize(r.Context(), p, perm)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("authorize", slog.String("permission", string(perm)), slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !allowed {
				writeForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g Guard) observe(perm catalog.Permission, allowed bool) {
	if g.Sink != nil {
		g.Sink.ObserveDecision(string(perm), allowed)
	}
}

// forbiddenBody is the uniform denial payload. Uniformity is deliberate: a
// missing principal, an empty role set and an explicit deny all read the
// same from outside.
var forbiddenBody = struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Code   string `json:"code"`
}{
	Title:  "Forbidden",
	Status: http.StatusForbidden,
	Code:   "access_denied",
}

func writeForbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(forbiddenBody)
}
