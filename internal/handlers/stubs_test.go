package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/repositories"
	"github.com/vidtube/backend/internal/storage"
)

type inMemoryUserStore struct {
	mu         sync.Mutex
	users      map[string]models.User
	profiles   map[string]models.ChannelProfile
	history    map[string][]models.WatchHistoryEntry
	lastViewer string
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{
		users:    make(map[string]models.User),
		profiles: make(map[string]models.ChannelProfile),
		history:  make(map[string][]models.WatchHistoryEntry),
	}
}

func (s *inMemoryUserStore) put(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) ExistsByUsernameOrEmail(_ context.Context, username, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username == username || user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *inMemoryUserStore) update(id string, fn func(*models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	fn(&user)
	s.users[id] = user
	return user, nil
}

func (s *inMemoryUserStore) UpdateAccount(_ context.Context, id, fullName, email, username string) (models.User, error) {
	return s.update(id, func(u *models.User) {
		u.FullName, u.Email, u.Username = fullName, email, username
	})
}

func (s *inMemoryUserStore) UpdateAvatar(_ context.Context, id, avatarURL string) (models.User, error) {
	return s.update(id, func(u *models.User) { u.Avatar = avatarURL })
}

func (s *inMemoryUserStore) UpdateCoverImage(_ context.Context, id, coverURL string) (models.User, error) {
	return s.update(id, func(u *models.User) { u.CoverImage = coverURL })
}

func (s *inMemoryUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	_, err := s.update(id, func(u *models.User) { u.Password = passwordHash })
	return err
}

func (s *inMemoryUserStore) ChannelProfile(_ context.Context, username, viewerID string) (models.ChannelProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastViewer = viewerID
	profile, ok := s.profiles[strings.ToLower(username)]
	if !ok {
		return models.ChannelProfile{}, repositories.ErrNotFound
	}
	return profile, nil
}

func (s *inMemoryUserStore) WatchHistory(_ context.Context, userID string) ([]models.WatchHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history[userID], nil
}

type inMemoryVideoStore struct {
	mu        sync.Mutex
	videos    map[string]models.Video
	lastQuery models.VideoQuery
	views     []string
	createErr error
}

func newInMemoryVideoStore() *inMemoryVideoStore {
	return &inMemoryVideoStore{videos: make(map[string]models.Video)}
}

func (s *inMemoryVideoStore) put(video models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = video
}

func (s *inMemoryVideoStore) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.videos[video.ID] = video
	return nil
}

func (s *inMemoryVideoStore) FindByID(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return video, nil
}

func (s *inMemoryVideoStore) Search(_ context.Context, query models.VideoQuery) ([]models.Video, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery = query

	needle := strings.ToLower(query.Search)
	var matched []models.Video
	for _, video := range s.videos {
		if !video.IsPublished {
			continue
		}
		if strings.Contains(strings.ToLower(video.Title), needle) || strings.Contains(strings.ToLower(video.Description), needle) {
			matched = append(matched, video)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if query.Descending {
			return matched[i].Title > matched[j].Title
		}
		return matched[i].Title < matched[j].Title
	})

	total := len(matched)
	start := (query.Page - 1) * query.Limit
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *inMemoryVideoStore) update(id string, fn func(*models.Video)) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	fn(&video)
	s.videos[id] = video
	return video, nil
}

func (s *inMemoryVideoStore) UpdateDetails(_ context.Context, id, title, description string) (models.Video, error) {
	return s.update(id, func(v *models.Video) { v.Title, v.Description = title, description })
}

func (s *inMemoryVideoStore) Publish(_ context.Context, id, title, description string) (models.Video, error) {
	return s.update(id, func(v *models.Video) {
		v.Title, v.Description, v.IsPublished = title, description, true
	})
}

func (s *inMemoryVideoStore) TogglePublished(_ context.Context, id string) (models.Video, error) {
	return s.update(id, func(v *models.Video) { v.IsPublished = !v.IsPublished })
}

func (s *inMemoryVideoStore) Delete(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	video, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	delete(s.videos, id)
	return video, nil
}

func (s *inMemoryVideoStore) RecordView(_ context.Context, videoID, viewerID string) (models.Video, error) {
	video, err := s.update(videoID, func(v *models.Video) { v.Views++ })
	if err != nil {
		return models.Video{}, err
	}
	s.mu.Lock()
	s.views = append(s.views, viewerID)
	s.mu.Unlock()
	return video, nil
}

type stubSubscriptions struct {
	mu       sync.Mutex
	channels map[string]bool
	active   map[string]bool
}

func newStubSubscriptions(channels ...string) *stubSubscriptions {
	s := &stubSubscriptions{channels: make(map[string]bool), active: make(map[string]bool)}
	for _, id := range channels {
		s.channels[id] = true
	}
	return s
}

func (s *stubSubscriptions) Toggle(_ context.Context, subscriberID, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.channels[channelID] {
		return false, repositories.ErrNotFound
	}
	key := subscriberID + "->" + channelID
	s.active[key] = !s.active[key]
	return s.active[key], nil
}

type stubMedia struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
	failOn   map[string]error
}

func newStubMedia() *stubMedia {
	return &stubMedia{failOn: make(map[string]error)}
}

func (m *stubMedia) Upload(_ context.Context, key string, r io.Reader, _ string) (storage.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix, _, _ := strings.Cut(key, "/")
	if err := m.failOn[prefix]; err != nil {
		return storage.Asset{}, err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return storage.Asset{}, err
	}
	m.uploaded = append(m.uploaded, key)
	return storage.Asset{Key: key, URL: "https://media.test/" + key}, nil
}

func (m *stubMedia) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *stubMedia) snapshot() (uploaded, deleted []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uploaded...), append([]string(nil), m.deleted...)
}

type stubProber struct {
	duration float64
	err      error
}

func (p stubProber) Duration(context.Context, string) (float64, error) {
	return p.duration, p.err
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

// testEnv wires the router against in-memory collaborators.
type testEnv struct {
	users         *inMemoryUserStore
	videos        *inMemoryVideoStore
	subscriptions *stubSubscriptions
	sessions      *auth.InMemorySessionStore
	manager       *auth.Manager
	media         *stubMedia
	router        http.Handler
}

func newTestEnv(t *testing.T, configure ...func(*Dependencies)) *testEnv {
	t.Helper()
	env := &testEnv{
		users:         newInMemoryUserStore(),
		videos:        newInMemoryVideoStore(),
		subscriptions: newStubSubscriptions(),
		sessions:      auth.NewInMemorySessionStore(),
		media:         newStubMedia(),
	}
	env.manager = auth.NewManager(config.TokenConfig{
		AccessSecret:  "test-access-secret",
		AccessTTL:     time.Minute,
		RefreshSecret: "test-refresh-secret",
		RefreshTTL:    time.Hour,
	}, env.sessions)

	deps := Dependencies{
		Users:         env.users,
		Videos:        env.videos,
		Subscriptions: env.subscriptions,
		Sessions:      env.manager,
		Media:         env.media,
		Prober:        stubProber{duration: 42.5},
		Uploads:       Uploads{Dir: t.TempDir(), MaxBytes: 1 << 20},
		ExposeStack:   true,
	}
	for _, fn := range configure {
		fn(&deps)
	}
	env.router = NewRouter(deps)
	return env
}

// addUser stores a user with the given password and registers it with the session store.
func (e *testEnv) addUser(t *testing.T, username, password string) models.User {
	t.Helper()
	hashed, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	user := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     username + "@example.com",
		FullName:  strings.ToUpper(username[:1]) + username[1:],
		Avatar:    "https://media.test/avatars/" + username + ".png",
		Password:  hashed,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e.users.put(user)
	e.sessions.Register(user.ID)
	return user
}

func (e *testEnv) accessToken(t *testing.T, userID string) string {
	t.Helper()
	tokens, err := e.manager.Issue(context.Background(), userID)
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	return tokens.AccessToken
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func authorized(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds a multipart request; files maps field name to filename.
func multipartRequest(t *testing.T, method, target string, fields, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for field, filename := range files {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("binary-content-of-" + filename)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
	Errors     []string        `json:"errors"`
	Stack      []string        `json:"stack"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) envelope {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("expected status %d got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.StatusCode != wantStatus {
		t.Fatalf("expected envelope status %d got %d", wantStatus, env.StatusCode)
	}
	if env.Success != (wantStatus < http.StatusBadRequest) {
		t.Fatalf("unexpected success flag %v for status %d", env.Success, wantStatus)
	}
	return env
}

func decodeData(t *testing.T, env envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

var errMediaDown = errors.New("media host unavailable")
