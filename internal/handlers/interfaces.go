package handlers

import (
	"context"
	"io"

	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/storage"
)

// UserStore captures the user persistence operations required by the handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	UpdateAccount(ctx context.Context, id, fullName, email, username string) (models.User, error)
	UpdateAvatar(ctx context.Context, id, avatarURL string) (models.User, error)
	UpdateCoverImage(ctx context.Context, id, coverURL string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchHistoryEntry, error)
}

// VideoStore captures video persistence.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	Search(ctx context.Context, query models.VideoQuery) ([]models.Video, int, error)
	UpdateDetails(ctx context.Context, id, title, description string) (models.Video, error)
	Publish(ctx context.Context, id, title, description string) (models.Video, error)
	TogglePublished(ctx context.Context, id string) (models.Video, error)
	Delete(ctx context.Context, id string) (models.Video, error)
	RecordView(ctx context.Context, videoID, viewerID string) (models.Video, error)
}

// SubscriptionStore captures channel subscription persistence.
type SubscriptionStore interface {
	Toggle(ctx context.Context, subscriberID, channelID string) (bool, error)
}

// SessionManager issues, verifies and revokes authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, userID string) error
	ParseAccess(token string) (string, error)
}

// MediaStore is the media host holding avatars, covers, videos and thumbnails.
type MediaStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (storage.Asset, error)
	Delete(ctx context.Context, key string) error
}

// MediaCleaner schedules best-effort removal of orphaned media.
type MediaCleaner interface {
	Discard(ctx context.Context, keys ...string) error
}

// DurationProber measures the playback length of a local video file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}
