package api

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/evaluation"
)

// UserHeader carries the opaque user id issued by the external auth layer
const UserHeader = "X-User-ID"

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@:-]{1,128}$`)

// IdentityMiddleware attaches the requesting user to the request context.
// Authentication happens upstream; the header is trusted as is.
type IdentityMiddleware struct {
	defaultUserID string
}

// NewIdentityMiddleware creates identity middleware falling back to defaultUserID
func NewIdentityMiddleware(defaultUserID string) *IdentityMiddleware {
	if defaultUserID == "" {
		defaultUserID = evaluation.DefaultUserID
	}
	return &IdentityMiddleware{defaultUserID: defaultUserID}
}

// Identify resolves the user id from the X-User-ID header
func (m *IdentityMiddleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			userID = m.defaultUserID
		} else if !userIDPattern.MatchString(userID) {
			slog.Warn("rejected malformed user id", "remote_addr", r.RemoteAddr)
			respondError(w, http.StatusBadRequest, "invalid_user", "malformed "+UserHeader+" header")
			return
		}

		ctx := evaluation.ContextWithUser(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
