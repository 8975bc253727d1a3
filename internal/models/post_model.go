package models

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type Post struct {
	ID              int64          `db:"id" json:"id"`
	UserID          int64          `db:"user_id" json:"user_id"`
	Caption         string         `db:"caption" json:"caption"`
	Hashtags        pq.StringArray `db:"hashtags" json:"hashtags"`
	Target          string         `db:"target" json:"target"` // facebook, instagram, both
	PageID          string         `db:"page_id" json:"page_id"`
	ScheduledTime   sql.NullTime   `db:"scheduled_time" json:"scheduled_time"`
	Status          string         `db:"status" json:"status"` // draft, scheduled, posted, failed
	FacebookPostID  string         `db:"facebook_post_id" json:"facebook_post_id"`
	InstagramPostID string         `db:"instagram_post_id" json:"instagram_post_id"`
	FacebookError   string         `db:"facebook_error" json:"facebook_error"`
	InstagramError  string         `db:"instagram_error" json:"instagram_error"`
	LastError       string         `db:"last_error" json:"last_error"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

func (p *Post) WantsFacebook() bool {
	return p.Target == TargetFacebook || p.Target == TargetBoth
}

func (p *Post) WantsInstagram() bool {
	return p.Target == TargetInstagram || p.Target == TargetBoth
}

type MediaAsset struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	FileType    string    `db:"file_type" json:"file_type"`
	FileSize    int64     `db:"file_size" json:"file_size"`
	FileURL     string    `db:"file_url" json:"file_url"`
	Width       int       `db:"width" json:"width"`
	Height      int       `db:"height" json:"height"`
	AudioStatus string    `db:"audio_status" json:"audio_status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type PostMedia struct {
	PostID       int64     `db:"post_id" json:"post_id"`
	AssetID      int64     `db:"asset_id" json:"asset_id"`
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPosted    = "posted"
	PostStatusFailed    = "failed"
)

const (
	TargetFacebook  = "facebook"
	TargetInstagram = "instagram"
	TargetBoth      = "both"
)

// Audio presence for video assets is never guessed. It stays "unchecked"
// until something actually probes the file.
const (
	AudioStatusYes       = "yes"
	AudioStatusNo        = "no"
	AudioStatusUnchecked = "unchecked"
)

const MaxCarouselItems = 10
