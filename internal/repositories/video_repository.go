package repositories

import (
	"context"

	"github.com/vidtube/backend/internal/models"
)

// VideoRepository exposes data access for uploaded videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	Search(ctx context.Context, query models.VideoQuery) ([]models.Video, int, error)
	UpdateDetails(ctx context.Context, id, title, description string) (models.Video, error)
	Publish(ctx context.Context, id, title, description string) (models.Video, error)
	TogglePublished(ctx context.Context, id string) (models.Video, error)
	Delete(ctx context.Context, id string) (models.Video, error)
	RecordView(ctx context.Context, videoID, viewerID string) (models.Video, error)
}

// SubscriptionRepository exposes data access for channel subscriptions.
type SubscriptionRepository interface {
	Toggle(ctx context.Context, subscriberID, channelID string) (bool, error)
}
