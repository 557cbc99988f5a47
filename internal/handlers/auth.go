package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

// AuthHandler implements credential and session endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         models.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword     string `json:"oldPassword"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Login handles POST /api/v1/users/login.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return BadRequest("Email and password are required")
	}

	user, err := h.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("User not found")
		}
		return ServerError("Failed to look up user", err)
	}

	if !auth.CheckPassword(user.Password, req.Password) {
		return Unauthorized("Password is incorrect")
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return NotFound("User not found").Wrap(err)
		}
		return ServerError("Failed to generate access and refresh token", err)
	}

	logging.FromContext(ctx).Info("user logged in", "userId", user.ID)
	setSessionCookies(w, tokens, time.Now())
	return respond(ctx, w, http.StatusOK, loginResponse{
		User:         user.Sanitized(),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "User logged in successfully")
}

// Refresh handles POST /api/v1/users/refresh-token. The token is read from the
// refreshToken cookie, falling back to the JSON body.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	incoming := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		incoming = strings.TrimSpace(cookie.Value)
	}
	if incoming == "" {
		var req refreshRequest
		if err := decodeJSON(w, r, &req); err != nil {
			return err
		}
		incoming = strings.TrimSpace(req.RefreshToken)
	}
	if incoming == "" {
		return Unauthorized("Refresh token is missing")
	}

	tokens, err := h.Sessions.Refresh(ctx, incoming)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, auth.ErrTokenMismatch):
			return Unauthorized("Invalid refresh token").Wrap(err)
		default:
			return ServerError("Something went wrong while refreshing access token", err)
		}
	}

	setSessionCookies(w, tokens, time.Now())
	return respond(ctx, w, http.StatusOK, tokens, "Access token refreshed successfully")
}

// Logout handles POST /api/v1/users/logout.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	user, err := currentUser(r)
	if err != nil {
		return err
	}

	if err := h.Sessions.Revoke(ctx, user.ID); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		return ServerError("Failed to log out", err)
	}

	clearSessionCookies(w)
	return respond(ctx, w, http.StatusOK, nil, "User logged out successfully")
}

// ChangePassword handles POST /api/v1/users/change-password.
func (h AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	current, err := currentUser(r)
	if err != nil {
		return err
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	oldPassword := req.OldPassword
	if oldPassword == "" {
		oldPassword = req.CurrentPassword
	}
	if oldPassword == "" || req.NewPassword == "" {
		return BadRequest("Old and new password are required")
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		return BadRequest("Password must be at most 72 bytes").Wrap(err)
	}

	user, err := h.Users.FindByID(ctx, current.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("User not found")
		}
		return ServerError("Failed to look up user", err)
	}

	if !auth.CheckPassword(user.Password, oldPassword) {
		return Unauthorized("Old password is incorrect")
	}

	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return ServerError("Failed to secure password", err)
	}
	if err := h.Users.UpdatePassword(ctx, user.ID, hashed); err != nil {
		return ServerError("Failed to change password", err)
	}

	return respond(ctx, w, http.StatusOK, nil, "Password changed successfully")
}
