package handlers

import (
	"context"
	"net/http"

	"github.com/santaihub/santai-server/libs/auth"
	"github.com/santaihub/santai-server/libs/httpx"
	"github.com/santaihub/santai-server/services/workflow-service/internal/identity"
	"github.com/santaihub/santai-server/services/workflow-service/internal/model"
)

type ctxKey int

const actorKey ctxKey = iota

// WithAuth verifies the bearer token, checks the account is still active, and
// stashes the caller's identity in the request context. Requests without a
// valid operator/therapist/driver token never reach a handler.
func WithAuth(secret string, ident identity.Provider) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			actor := model.Actor{ID: claims.Sub, Role: model.Role(claims.Role)}
			if actor.ID == "" || !actor.Role.Valid() {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if ident != nil {
				u, err := ident.GetProfile(r.Context(), actor.ID)
				if err != nil {
					http.Error(w, "unknown user", http.StatusUnauthorized)
					return
				}
				if !u.IsActive {
					http.Error(w, "account deactivated", http.StatusForbidden)
					return
				}
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func actorFrom(r *http.Request) (model.Actor, bool) {
	actor, ok := r.Context().Value(actorKey).(model.Actor)
	return actor, ok
}
