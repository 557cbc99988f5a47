package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/models"
)

const userColumns = `id, username, email, full_name, avatar, cover_image, password_hash, created_at, updated_at`

const videoColumns = `id, video_file, video_file_key, thumbnail, thumbnail_key, title, description, views, duration, is_published, owner_id, created_at, updated_at`

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.Avatar, &user.CoverImage, &user.Password, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var video models.Video
	err := row.Scan(&video.ID, &video.VideoFile, &video.VideoFileKey, &video.Thumbnail, &video.ThumbnailKey, &video.Title, &video.Description, &video.Views, &video.Duration, &video.IsPublished, &video.OwnerID, &video.CreatedAt, &video.UpdatedAt)
	return video, err
}

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record. Username and email must already be normalised.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, email, full_name, avatar, cover_image, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.ID, user.Username, user.Email, user.FullName, user.Avatar, user.CoverImage, user.Password, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if mapped := translateWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}

	return user, nil
}

// ExistsByUsernameOrEmail reports whether either identifier is already taken.
func (r *PostgresUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)
    `, username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user existence: %w", err)
	}

	return exists, nil
}

// UpdateAccount replaces the editable profile fields and returns the stored user.
func (r *PostgresUserRepository) UpdateAccount(ctx context.Context, id, fullName, email, username string) (models.User, error) {
	return r.updateReturning(ctx, `
        UPDATE users
        SET full_name = $2, email = $3, username = $4, updated_at = NOW()
        WHERE id = $1
        RETURNING `+userColumns, id, fullName, email, username)
}

// UpdateAvatar points the user's avatar at a newly uploaded asset.
func (r *PostgresUserRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) (models.User, error) {
	return r.updateReturning(ctx, `
        UPDATE users
        SET avatar = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING `+userColumns, id, avatarURL)
}

// UpdateCoverImage points the user's cover image at a newly uploaded asset.
func (r *PostgresUserRepository) UpdateCoverImage(ctx context.Context, id, coverURL string) (models.User, error) {
	return r.updateReturning(ctx, `
        UPDATE users
        SET cover_image = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING `+userColumns, id, coverURL)
}

func (r *PostgresUserRepository) updateReturning(ctx context.Context, query string, args ...any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		if mapped := translateWriteError(err); mapped != nil {
			return models.User{}, mapped
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// UpdatePassword stores a new password hash without touching any other column.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET password_hash = $2
        WHERE id = $1
    `, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ChannelProfile aggregates a user's public channel view. viewerID may be empty,
// in which case IsSubscribed is always false.
func (r *PostgresUserRepository) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ChannelProfile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var viewer any
	if viewerID != "" {
		viewer = viewerID
	}

	var profile models.ChannelProfile
	err = conn.QueryRow(ctx, `
        SELECT u.id, u.full_name, u.username, u.email, u.avatar, u.cover_image,
            (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id),
            (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id),
            EXISTS (
                SELECT 1 FROM subscriptions s
                WHERE s.channel_id = u.id AND s.subscriber_id = $2
            )
        FROM users u
        WHERE u.username = $1
    `, strings.ToLower(username), viewer).Scan(
		&profile.ID, &profile.FullName, &profile.Username, &profile.Email, &profile.Avatar, &profile.CoverImage,
		&profile.SubscribersCount, &profile.ChannelSubscribedTo, &profile.IsSubscribed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, ErrNotFound
		}
		return models.ChannelProfile{}, fmt.Errorf("select channel profile: %w", err)
	}

	return profile, nil
}

// WatchHistory returns the user's watched videos with their owners, oldest first.
func (r *PostgresUserRepository) WatchHistory(ctx context.Context, userID string) ([]models.WatchHistoryEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT v.id, v.video_file, v.thumbnail, v.title, v.description, v.views, v.duration,
            v.is_published, v.created_at, v.updated_at,
            o.id, o.full_name, o.username, o.avatar
        FROM watch_history h
        JOIN videos v ON v.id = h.video_id
        JOIN users o ON o.id = v.owner_id
        WHERE h.user_id = $1
        ORDER BY h.watched_at ASC, v.id ASC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.WatchHistoryEntry, 0)
	for rows.Next() {
		var entry models.WatchHistoryEntry
		if err := rows.Scan(
			&entry.ID, &entry.VideoFile, &entry.Thumbnail, &entry.Title, &entry.Description, &entry.Views, &entry.Duration,
			&entry.IsPublished, &entry.CreatedAt, &entry.UpdatedAt,
			&entry.Owner.ID, &entry.Owner.FullName, &entry.Owner.Username, &entry.Owner.Avatar,
		); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}

	return entries, nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record. An unknown owner yields ErrNotFound.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (`+videoColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, video.ID, video.VideoFile, video.VideoFileKey, video.Thumbnail, video.ThumbnailKey, video.Title, video.Description,
		video.Views, video.Duration, video.IsPublished, video.OwnerID, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		if mapped := translateWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches a video by primary key.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	return r.queryOne(ctx, "select video", `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
}

var videoSortColumns = map[string]string{
	models.SortByTitle:       "title",
	models.SortByDescription: "description",
	models.SortByCreatedAt:   "created_at",
}

// Search returns one page of published videos whose title or description contains
// the search text, along with the total number of matches.
func (r *PostgresVideoRepository) Search(ctx context.Context, query models.VideoQuery) ([]models.Video, int, error) {
	column, ok := videoSortColumns[query.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported sort field %q", query.SortBy)
	}
	direction := "ASC"
	if query.Descending {
		direction = "DESC"
	}
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit < 1 {
		query.Limit = 10
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	pattern := "%" + escapeLike(query.Search) + "%"
	const filter = `WHERE is_published AND (title ILIKE $1 OR description ILIKE $1)`

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM videos `+filter, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	rows, err := conn.Query(ctx, fmt.Sprintf(`
        SELECT %s FROM videos
        %s
        ORDER BY %s %s, id %s
        LIMIT $2 OFFSET $3
    `, videoColumns, filter, column, direction, direction), pattern, query.Limit, (query.Page-1)*query.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos := make([]models.Video, 0, query.Limit)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate videos: %w", err)
	}

	return videos, total, nil
}

// UpdateDetails replaces a video's title and description.
func (r *PostgresVideoRepository) UpdateDetails(ctx context.Context, id, title, description string) (models.Video, error) {
	return r.queryOne(ctx, "update video", `
        UPDATE videos
        SET title = $2, description = $3, updated_at = NOW()
        WHERE id = $1
        RETURNING `+videoColumns, id, title, description)
}

// Publish sets the final title and description and marks the video published.
func (r *PostgresVideoRepository) Publish(ctx context.Context, id, title, description string) (models.Video, error) {
	return r.queryOne(ctx, "publish video", `
        UPDATE videos
        SET title = $2, description = $3, is_published = TRUE, updated_at = NOW()
        WHERE id = $1
        RETURNING `+videoColumns, id, title, description)
}

// TogglePublished flips the publish flag in a single statement.
func (r *PostgresVideoRepository) TogglePublished(ctx context.Context, id string) (models.Video, error) {
	return r.queryOne(ctx, "toggle video", `
        UPDATE videos
        SET is_published = NOT is_published, updated_at = NOW()
        WHERE id = $1
        RETURNING `+videoColumns, id)
}

// Delete removes a video and returns the row as it was before deletion.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) (models.Video, error) {
	return r.queryOne(ctx, "delete video", `DELETE FROM videos WHERE id = $1 RETURNING `+videoColumns, id)
}

// RecordView increments the view counter and moves the video to the end of the
// viewer's watch history. An empty viewerID only counts the view.
func (r *PostgresVideoRepository) RecordView(ctx context.Context, videoID, viewerID string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	video, err := scanVideo(tx.QueryRow(ctx, `
        UPDATE videos
        SET views = views + 1
        WHERE id = $1
        RETURNING `+videoColumns, videoID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("increment views: %w", err)
	}

	if viewerID != "" {
		_, err = tx.Exec(ctx, `
            INSERT INTO watch_history (user_id, video_id, watched_at)
            VALUES ($1, $2, NOW())
            ON CONFLICT (user_id, video_id)
            DO UPDATE SET watched_at = EXCLUDED.watched_at
        `, viewerID, videoID)
		if err != nil {
			if mapped := translateWriteError(err); mapped != nil {
				return models.Video{}, mapped
			}
			return models.Video{}, fmt.Errorf("append watch history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Video{}, fmt.Errorf("commit view: %w", err)
	}

	return video, nil
}

func (r *PostgresVideoRepository) queryOne(ctx context.Context, op, query string, args ...any) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	return video, nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// PostgresSubscriptionRepository provides PostgreSQL-backed persistence for subscriptions.
type PostgresSubscriptionRepository struct {
	pool db.Pool
}

// NewPostgresSubscriptionRepository constructs a subscription repository backed by PostgreSQL.
func NewPostgresSubscriptionRepository(pool db.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Toggle removes the subscription when present and creates it otherwise. It
// reports whether the subscriber is subscribed afterwards.
func (r *PostgresSubscriptionRepository) Toggle(ctx context.Context, subscriberID, channelID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
        DELETE FROM subscriptions
        WHERE subscriber_id = $1 AND channel_id = $2
    `, subscriberID, channelID)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}

	subscribed := tag.RowsAffected() == 0
	if subscribed {
		_, err = tx.Exec(ctx, `
            INSERT INTO subscriptions (id, subscriber_id, channel_id, created_at)
            VALUES ($1, $2, $3, NOW())
        `, uuid.NewString(), subscriberID, channelID)
		if err != nil {
			if mapped := translateWriteError(err); mapped != nil {
				return false, mapped
			}
			return false, fmt.Errorf("insert subscription: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit subscription: %w", err)
	}

	return subscribed, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
var _ SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
