package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/reelroom/reelroom/internal/model"
)

// Rejections surfaced by the transactional handlers, mapped to HTTP statuses
// at the edge.
var (
	errItemNotFound      = errors.New("item not found")
	errUserNotFound      = errors.New("user not found")
	errInsufficientFunds = errors.New("insufficient balance")
)

type contextKey string

const (
	ctxUserID contextKey = "userID"
	ctxRole   contextKey = "role"
)

func sessionUserID(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxUserID).(int64)
	return id
}

func sessionRole(ctx context.Context) model.Role {
	role, _ := ctx.Value(ctxRole).(model.Role)
	return role
}

// requireAuth reads the Bearer token and stashes the caller's identity in
// the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.respondError(w, http.StatusUnauthorized, "missing token")
			return
		}

		userID, role, err := s.tokens.Verify(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, userID)
		ctx = context.WithValue(ctx, ctxRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionRole(r.Context()) != model.RoleAdmin {
			s.respondError(w, http.StatusForbidden, "admin only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
