package api

import (
	"context"
	"net/http"
)

type contextKey struct{}

var userKey contextKey

// Identity resolves the current user once per request and enforces the
// allow-list. Handlers downstream read the identity from the context;
// an unauthorized user never reaches them.
func (h *Handler) Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := h.resolver.FromRequest(r)
		if !h.resolver.Authorized(user) {
			h.respondJSON(w, http.StatusForbidden,
				ActionResult{Success: false, Error: "forbidden"},
				r.Method, "/forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}
