package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
	maxPage      = 1_000_000

	videoFileField = "videoFile"
	thumbnailField = "thumbnail"

	invalidVideoID = "Invalid video id"
)

var sortFields = map[string]bool{
	models.SortByTitle:       true,
	models.SortByDescription: true,
	models.SortByCreatedAt:   true,
}

// VideoHandler implements the /api/v1/videos endpoints.
type VideoHandler struct {
	Videos  VideoStore
	Media   MediaStore
	Cleaner MediaCleaner
	Prober  DurationProber
	Uploads Uploads
	NowFunc func() time.Time
}

type videoDetailsRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (req videoDetailsRequest) validate() (string, string, error) {
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" || description == "" {
		return "", "", BadRequest("Title and description are required")
	}
	return title, description, nil
}

// List handles GET /api/v1/videos.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	query, err := parseVideoQuery(r)
	if err != nil {
		return err
	}

	videos, total, err := h.Videos.Search(ctx, query)
	if err != nil {
		return ServerError("Failed to fetch videos", err)
	}
	if videos == nil {
		videos = []models.Video{}
	}

	page := models.VideoPage{
		Videos:      videos,
		TotalPages:  int(math.Ceil(float64(total) / float64(query.Limit))),
		CurrentPage: query.Page,
	}
	return respond(ctx, w, http.StatusOK, page, "Videos fetched successfully")
}

func parseVideoQuery(r *http.Request) (models.VideoQuery, error) {
	values := r.URL.Query()

	page, err := positiveInt(values.Get("page"), defaultPage)
	if err != nil {
		return models.VideoQuery{}, BadRequest("Page must be a positive integer")
	}
	if page > maxPage {
		return models.VideoQuery{}, BadRequest(fmt.Sprintf("Page must be at most %d", maxPage))
	}
	limit, err := positiveInt(values.Get("limit"), defaultLimit)
	if err != nil {
		return models.VideoQuery{}, BadRequest("Limit must be a positive integer")
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	search := strings.TrimSpace(values.Get("query"))
	if search == "" {
		return models.VideoQuery{}, BadRequest("Query is required")
	}

	sortBy := strings.TrimSpace(values.Get("sortBy"))
	if sortBy == "" {
		return models.VideoQuery{}, BadRequest("sortBy is required")
	}
	if !sortFields[sortBy] {
		return models.VideoQuery{}, BadRequest("sortBy must be one of title, description, createdAt")
	}

	var descending bool
	switch strings.ToLower(strings.TrimSpace(values.Get("sortType"))) {
	case "asc":
	case "desc":
		descending = true
	case "":
		return models.VideoQuery{}, BadRequest("sortType is required")
	default:
		return models.VideoQuery{}, BadRequest("sortType must be asc or desc")
	}

	return models.VideoQuery{
		Page:       page,
		Limit:      limit,
		Search:     search,
		SortBy:     sortBy,
		Descending: descending,
	}, nil
}

func positiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be at least 1")
	}
	return n, nil
}

// Upload handles POST /api/v1/videos (multipart). The video is stored as a draft.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	owner, err := currentUser(r)
	if err != nil {
		return err
	}

	form, err := h.Uploads.parse(w, r, videoFileField, thumbnailField)
	if err != nil {
		return err
	}
	defer form.Cleanup(ctx)

	title, description, err := videoDetailsRequest{
		Title:       form.Value("title"),
		Description: form.Value("description"),
	}.validate()
	if err != nil {
		return err
	}

	videoFile := form.File(videoFileField)
	if videoFile == nil {
		return BadRequest("Video file is missing")
	}
	thumbnailFile := form.File(thumbnailField)
	if thumbnailFile == nil {
		return BadRequest("Thumbnail file is missing")
	}

	var duration float64
	if h.Prober != nil {
		duration, err = h.Prober.Duration(ctx, videoFile.Path)
		if err != nil {
			return BadRequest("Could not read video duration").Wrap(err)
		}
	}

	video, err := uploadToMedia(ctx, h.Media, "videos", videoFile)
	if err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, video.Key)
		return ServerError("Failed to upload video file", err)
	}
	thumbnail, err := uploadToMedia(ctx, h.Media, "thumbnails", thumbnailFile)
	if err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, video.Key, thumbnail.Key)
		return ServerError("Failed to upload thumbnail", err)
	}

	now := h.now()
	record := models.Video{
		ID:           uuid.NewString(),
		VideoFile:    video.URL,
		VideoFileKey: video.Key,
		Thumbnail:    thumbnail.URL,
		ThumbnailKey: thumbnail.Key,
		Title:        title,
		Description:  description,
		Duration:     duration,
		OwnerID:      owner.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Videos.Create(ctx, record); err != nil {
		discardMedia(ctx, h.Media, h.Cleaner, video.Key, thumbnail.Key)
		return ServerError("Failed to save video", err)
	}

	logging.FromContext(ctx).Info("video uploaded", "videoId", record.ID, "duration", duration)
	return respond(ctx, w, http.StatusCreated, record, "Video uploaded successfully")
}

// Publish handles POST /api/v1/videos/{videoId}/publish.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id, err := pathID(chi.URLParam(r, "videoId"), invalidVideoID)
	if err != nil {
		return err
	}

	var req videoDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	title, description, err := req.validate()
	if err != nil {
		return err
	}

	existing, err := h.Videos.FindByID(ctx, id)
	if err != nil {
		return videoLookupError(err)
	}
	if existing.IsPublished {
		return BadRequest("Video already published")
	}

	video, err := h.Videos.Publish(ctx, id, title, description)
	if err != nil {
		return videoLookupError(err)
	}
	return respond(ctx, w, http.StatusOK, video, "Video published successfully")
}

// GetByID handles GET /api/v1/videos/{videoId} and records the view.
func (h VideoHandler) GetByID(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id, err := pathID(chi.URLParam(r, "videoId"), invalidVideoID)
	if err != nil {
		return err
	}

	viewerID := ""
	if viewer, ok := UserFromContext(ctx); ok {
		viewerID = viewer.ID
	}

	video, err := h.Videos.RecordView(ctx, id, viewerID)
	if err != nil {
		return videoLookupError(err)
	}
	return respond(ctx, w, http.StatusOK, video, "Video fetched successfully")
}

// Update handles PATCH /api/v1/videos/{videoId}.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id, err := pathID(chi.URLParam(r, "videoId"), invalidVideoID)
	if err != nil {
		return err
	}

	var req videoDetailsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	title, description, err := req.validate()
	if err != nil {
		return err
	}

	video, err := h.Videos.UpdateDetails(ctx, id, title, description)
	if err != nil {
		return videoLookupError(err)
	}
	return respond(ctx, w, http.StatusOK, video, "Video updated successfully")
}

// Delete handles DELETE /api/v1/videos/{videoId}.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id, err := pathID(chi.URLParam(r, "videoId"), invalidVideoID)
	if err != nil {
		return err
	}

	video, err := h.Videos.Delete(ctx, id)
	if err != nil {
		return videoLookupError(err)
	}

	discardMedia(ctx, h.Media, h.Cleaner, video.VideoFileKey, video.ThumbnailKey)
	return respond(ctx, w, http.StatusOK, video, "Video deleted successfully")
}

// TogglePublish handles PATCH /api/v1/videos/toggle/publish/{videoId}.
func (h VideoHandler) TogglePublish(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id, err := pathID(chi.URLParam(r, "videoId"), invalidVideoID)
	if err != nil {
		return err
	}

	video, err := h.Videos.TogglePublished(ctx, id)
	if err != nil {
		return videoLookupError(err)
	}
	return respond(ctx, w, http.StatusOK, video, "Video publish status toggled successfully")
}

func videoLookupError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return NotFound("Video not found").Wrap(err)
	}
	return ServerError("Failed to process video", err)
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
