package models

import "time"

// User represents an account within the VidTube platform. Password and
// RefreshToken never leave the process: they are excluded from JSON encoding.
type User struct {
	ID           string    `json:"_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage"`
	Password     string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Sanitized returns a copy of the user without credential material.
func (u User) Sanitized() User {
	u.Password = ""
	u.RefreshToken = ""
	return u
}

// Video is an uploaded video owned by a user.
type Video struct {
	ID           string    `json:"_id"`
	VideoFile    string    `json:"videoFile"`
	Thumbnail    string    `json:"thumbnail"`
	VideoFileKey string    `json:"-"`
	ThumbnailKey string    `json:"-"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Views        int64     `json:"views"`
	Duration     float64   `json:"duration"`
	IsPublished  bool      `json:"isPublished"`
	OwnerID      string    `json:"owner"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VideoOwner is the public projection of a video's owner.
type VideoOwner struct {
	ID       string `json:"_id"`
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// WatchHistoryEntry is a watched video enriched with its owner.
type WatchHistoryEntry struct {
	ID          string     `json:"_id"`
	VideoFile   string     `json:"videoFile"`
	Thumbnail   string     `json:"thumbnail"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Views       int64      `json:"views"`
	Duration    float64    `json:"duration"`
	IsPublished bool       `json:"isPublished"`
	Owner       VideoOwner `json:"owner"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ChannelProfile is the aggregated public view of a user's channel.
type ChannelProfile struct {
	ID                  string `json:"_id"`
	FullName            string `json:"fullName"`
	Username            string `json:"username"`
	Email               string `json:"email"`
	Avatar              string `json:"avatar"`
	CoverImage          string `json:"coverImage"`
	SubscribersCount    int64  `json:"subscribersCount"`
	ChannelSubscribedTo int64  `json:"channelSubscribedTo"`
	IsSubscribed        bool   `json:"isSubscribed"`
}

// Sort fields accepted by video search.
const (
	SortByTitle       = "title"
	SortByDescription = "description"
	SortByCreatedAt   = "createdAt"
)

// VideoQuery describes a paginated, filtered video listing.
type VideoQuery struct {
	Page       int
	Limit      int
	Search     string
	SortBy     string
	Descending bool
}

// VideoPage is one page of a video listing.
type VideoPage struct {
	Videos      []Video `json:"videos"`
	TotalPages  int     `json:"totalPages"`
	CurrentPage int     `json:"currentPage"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"-"`
}
