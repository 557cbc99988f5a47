package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/handlers"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/repositories"
	"github.com/vidtube/backend/internal/storage"
	"github.com/vidtube/backend/internal/videos"
)

const (
	janitorWorkers   = 2
	janitorQueueSize = 128
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup drains background media deletions.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	media, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("configure media storage: %w", err)
	}

	janitor := videos.NewJanitor(media, videos.JanitorConfig{
		QueueSize: janitorQueueSize,
		Workers:   janitorWorkers,
	}, logger)

	users := repositories.NewPostgresUserRepository(pool)
	sessions := auth.NewManager(cfg.Tokens, repositories.NewPostgresSessionStore(pool))
	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, 0)

	deps := handlers.Dependencies{
		Users:         users,
		Videos:        repositories.NewPostgresVideoRepository(pool),
		Subscriptions: repositories.NewPostgresSubscriptionRepository(pool),
		Sessions:      sessions,
		Media:         media,
		Cleaner:       janitor,
		Prober:        videos.NewFFProbe(cfg.FFProbePath, cfg.FFProbeTimeout),
		RateLimiter:   limiter,
		Uploads:       handlers.Uploads{Dir: cfg.UploadDir, MaxBytes: cfg.MaxUploadBytes},
		ExposeStack:   !cfg.IsProduction(),
		CORSOrigins:   cfg.CORSOrigins,
		Logger:        logger,
	}

	return deps, janitor.Shutdown, nil
}
