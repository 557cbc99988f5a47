package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

type userCtxKey struct{}

// withUser stores the authenticated user on the context.
func withUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, user)
}

// UserFromContext returns the authenticated user attached by Authenticator.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userCtxKey{}).(models.User)
	return user, ok
}

// Authenticator resolves the access token of a request to a user.
type Authenticator struct {
	Sessions  SessionManager
	Users     UserStore
	Responder Responder
}

// Require rejects requests without a valid access token and attaches the
// sanitized user to the request context.
func (a Authenticator) Require(next http.Handler) http.Handler {
	return a.Responder.Handle(func(w http.ResponseWriter, r *http.Request) error {
		token := accessToken(r)
		if token == "" {
			return Unauthorized("Unauthorized request")
		}

		userID, err := a.Sessions.ParseAccess(token)
		if err != nil {
			return Unauthorized("Invalid access token").Wrap(err)
		}

		user, err := a.Users.FindByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return Unauthorized("Invalid access token").Wrap(err)
			}
			return ServerError("Failed to verify access token", err)
		}

		ctx := withUser(r.Context(), user.Sanitized())
		ctx = logging.With(ctx, "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
		return nil
	})
}

func accessToken(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// currentUser returns the authenticated user or a 401 when the route is unguarded.
func currentUser(r *http.Request) (models.User, error) {
	user, ok := UserFromContext(r.Context())
	if !ok || user.ID == "" {
		return models.User{}, Unauthorized("Unauthorized request")
	}
	return user, nil
}
