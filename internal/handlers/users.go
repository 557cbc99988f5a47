package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

const (
	avatarField     = "avatar"
	coverImageField = "coverImage"
)

// UserHandler implements account and channel endpoints.
type UserHandler struct {
	Users   UserStore
	Media   MediaStore
	Cleaner MediaCleaner
	Uploads Uploads
	NowFunc func() time.Time
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Register handles POST /api/v1/users/register (multipart).
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	form, err := h.Uploads.parse(w, r, avatarField, coverImageField)
	if err != nil {
		return err
	}
	defer form.Cleanup(ctx)

	fullName := form.Value("fullName")
	email := strings.ToLower(form.Value("email"))
	username := strings.ToLower(form.Value("username"))
	password := form.Value("password")
	if blank(fullName, email, username, password) {
		return BadRequest("All fields are required")
	}
	if err := validateEmail(email); err != nil {
		return BadRequest("Invalid email address").Wrap(err)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return BadRequest("Password must be at most 72 bytes").Wrap(err)
	}

	exists, err := h.Users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return ServerError("Failed to check existing users", err)
	}
	if exists {
		return Conflict("User with given email or username already exists")
	}

	avatarFile := form.File(avatarField)
	if avatarFile == nil {
		return BadRequest("Avatar file is missing")
	}

	avatar, err := uploadToMedia(ctx, h.Media, "avatars", avatarFile)
	if err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, avatar.Key)
		return ServerError("Failed to upload avatar", err)
	}
	uploaded := []string{avatar.Key}

	coverURL := ""
	if coverFile := form.File(coverImageField); coverFile != nil {
		cover, err := uploadToMedia(ctx, h.Media, "covers", coverFile)
		if err != nil {
			discardMedia(ctx, h.Media, h.Cleaner, append(uploaded, cover.Key)...)
			return ServerError("Failed to upload cover image", err)
		}
		uploaded = append(uploaded, cover.Key)
		coverURL = cover.URL
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, uploaded...)
		return ServerError("Failed to secure password", err)
	}

	now := h.now()
	user := models.User{
		ID:         uuid.NewString(),
		Username:   username,
		Email:      email,
		FullName:   fullName,
		Avatar:     avatar.URL,
		CoverImage: coverURL,
		Password:   hashed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, uploaded...)
		if errors.Is(err, repositories.ErrConflict) {
			return Conflict("User with given email or username already exists").Wrap(err)
		}
		return ServerError("Registration failed and images were deleted", err)
	}

	created, err := h.Users.FindByID(ctx, user.ID)
	if err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, uploaded...)
		return ServerError("Something went wrong while registering the user", err)
	}

	logger.Info("user registered", "userId", created.ID)
	return respond(ctx, w, http.StatusCreated, created.Sanitized(), "User registered successfully")
}

// CurrentUser handles GET /api/v1/users/current-user.
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) error {
	user, err := currentUser(r)
	if err != nil {
		return err
	}
	return respond(r.Context(), w, http.StatusOK, user, "User details fetched successfully")
}

// UpdateAccount handles PATCH /api/v1/users/update-account.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	current, err := currentUser(r)
	if err != nil {
		return err
	}

	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	fullName := strings.TrimSpace(req.FullName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.ToLower(strings.TrimSpace(req.Username))
	switch {
	case fullName == "":
		return BadRequest("Full name is required")
	case email == "":
		return BadRequest("Email is required")
	case username == "":
		return BadRequest("Username is required")
	}
	if err := validateEmail(email); err != nil {
		return BadRequest("Invalid email address").Wrap(err)
	}

	user, err := h.Users.UpdateAccount(ctx, current.ID, fullName, email, username)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return Conflict("User with given email or username already exists").Wrap(err)
		case errors.Is(err, repositories.ErrNotFound):
			return NotFound("User not found").Wrap(err)
		default:
			return ServerError("Failed to update account details", err)
		}
	}

	return respond(ctx, w, http.StatusOK, user.Sanitized(), "Account details updated successfully")
}

// UpdateAvatar handles PATCH /api/v1/users/avatar (multipart).
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) error {
	return h.replaceImage(w, r, avatarField, "avatars", "Avatar", h.Users.UpdateAvatar)
}

// UpdateCoverImage handles PATCH /api/v1/users/cover-image (multipart).
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) error {
	return h.replaceImage(w, r, coverImageField, "covers", "Cover image", h.Users.UpdateCoverImage)
}

func (h UserHandler) replaceImage(
	w http.ResponseWriter,
	r *http.Request,
	field, prefix, label string,
	update func(ctx context.Context, id, url string) (models.User, error),
) error {
	ctx := r.Context()
	current, err := currentUser(r)
	if err != nil {
		return err
	}

	form, err := h.Uploads.parse(w, r, field)
	if err != nil {
		return err
	}
	defer form.Cleanup(ctx)

	file := form.File(field)
	if file == nil {
		return BadRequest(label + " file is missing")
	}

	asset, err := uploadToMedia(ctx, h.Media, prefix, file)
	if err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, asset.Key)
		return ServerError("Failed to upload "+strings.ToLower(label), err)
	}

	user, err := update(ctx, current.ID, asset.URL)
	if err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, asset.Key)
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("User not found").Wrap(err)
		}
		return ServerError("Failed to update "+strings.ToLower(label), err)
	}

	return respond(ctx, w, http.StatusOK, user.Sanitized(), label+" updated successfully")
}

// ChannelProfile handles GET /api/v1/users/c/{username}.
func (h UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		return BadRequest("Username is required")
	}

	viewerID := ""
	if viewer, ok := UserFromContext(ctx); ok {
		viewerID = viewer.ID
	}

	profile, err := h.Users.ChannelProfile(ctx, username, viewerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("Channel not found")
		}
		return ServerError("Failed to fetch channel profile", err)
	}

	return respond(ctx, w, http.StatusOK, profile, "Channel profile fetched successfully")
}

// WatchHistory handles GET /api/v1/users/history.
func (h UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	user, err := currentUser(r)
	if err != nil {
		return err
	}

	history, err := h.Users.WatchHistory(ctx, user.ID)
	if err != nil {
		return ServerError("Failed to fetch watch history", err)
	}
	if history == nil {
		history = []models.WatchHistoryEntry{}
	}

	return respond(ctx, w, http.StatusOK, history, "Watch history fetched successfully")
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
