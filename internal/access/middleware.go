package access

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-dms/odyssey-dms/internal/shared"
)

// Middleware wires access checks into HTTP handlers.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(func(r *http.Request, userID int64) bool {
		return len(normalized) == 0 || m.Gate.HasAny(r.Context(), userID, normalized...)
	})
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(func(r *http.Request, userID int64) bool {
		return m.Gate.HasAll(r.Context(), userID, normalized...)
	})
}

// RequireDocument ensures the current user may see the document named by the route
// parameter.
func (m Middleware) RequireDocument(param string) func(http.Handler) http.Handler {
	return m.require(func(r *http.Request, userID int64) bool {
		id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
		if err != nil {
			return false
		}
		return m.Gate.CanAccessDocument(r.Context(), userID, id)
	})
}

func (m Middleware) require(allowed func(*http.Request, int64) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := m.currentUserID(r)
			if !ok || !allowed(r, userID) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	id, ok := sess.UserID()
	if !ok && sess.User() != "" && m.Logger != nil {
		m.Logger.Error("access parse user id", slog.String("value", sess.User()))
	}
	return id, ok
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = normalizeKey(p)
		if p == "" {
			continue
		}
		if _, seen := unique[p]; seen {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
