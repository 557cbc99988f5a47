package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/models"
)

// SessionStore persists the single active refresh token of each user.
type SessionStore interface {
	SaveRefreshToken(ctx context.Context, userID, refreshToken string) error
	FindRefreshToken(ctx context.Context, userID string) (string, error)
	DeleteRefreshToken(ctx context.Context, userID string) error
}

// Claims is the JWT payload shared by access and refresh tokens.
type Claims struct {
	UserID string `json:"_id"`
	jwt.RegisteredClaims
}

// Manager signs, verifies and rotates access/refresh token pairs.
type Manager struct {
	accessSecret  []byte
	accessTTL     time.Duration
	refreshSecret []byte
	refreshTTL    time.Duration

	store SessionStore
	now   func() time.Time
}

// NewManager constructs a Manager using distinct secrets and lifetimes for each token kind.
func NewManager(cfg config.TokenConfig, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Manager{
		accessSecret:  []byte(cfg.AccessSecret),
		accessTTL:     cfg.AccessTTL,
		refreshSecret: []byte(cfg.RefreshSecret),
		refreshTTL:    cfg.RefreshTTL,
		store:         store,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithNowFunc overrides the clock used for signing and verification.
func (m *Manager) WithNowFunc(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Issue signs a new token pair for the user and records the refresh token as the
// user's only active one. It fails with ErrUserNotFound for unknown users.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := m.now()
	accessToken, accessExp, err := m.sign(userID, m.accessSecret, now, m.accessTTL)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refreshToken, refreshExp, err := m.sign(userID, m.refreshSecret, now, m.refreshTTL)
	if err != nil {
		return models.SessionTokens{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := m.store.SaveRefreshToken(ctx, userID, refreshToken); err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Refresh exchanges the user's active refresh token for a new pair. A token that
// verifies but differs from the stored one yields ErrTokenMismatch.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	userID, err := m.parse(refreshToken, m.refreshSecret)
	if err != nil {
		return models.SessionTokens{}, err
	}

	stored, err := m.store.FindRefreshToken(ctx, userID)
	if err != nil {
		return models.SessionTokens{}, err
	}
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(refreshToken)) != 1 {
		return models.SessionTokens{}, ErrTokenMismatch
	}

	return m.Issue(ctx, userID)
}

// Revoke clears the user's active refresh token.
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return m.store.DeleteRefreshToken(ctx, userID)
}

// ParseAccess verifies an access token and returns the user id it was issued for.
func (m *Manager) ParseAccess(token string) (string, error) {
	return m.parse(token, m.accessSecret)
}

func (m *Manager) sign(userID string, secret []byte, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *Manager) parse(token string, secret []byte) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: missing user id claim", ErrInvalidToken)
	}
	return claims.UserID, nil
}
