package models

import (
	"time"
)

type SocialAccount struct {
	ID                int64     `db:"id" json:"id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	Platform          string    `db:"platform" json:"platform"`
	AccountID         string    `db:"account_id" json:"account_id"`
	AccountName       string    `db:"account_name" json:"account_name"`
	AccountUsername   string    `db:"account_username" json:"account_username"`
	ProfilePicture    string    `db:"profile_picture_url" json:"profile_picture"`
	AccessToken       string    `db:"access_token" json:"-"`
	LinkedIGAccountID string    `db:"linked_ig_account_id" json:"linked_ig_account_id"`
	TokenExpiresAt    time.Time `db:"token_expires_at" json:"token_expires_at"`
	AccountStatus     string    `db:"account_status" json:"account_status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
)

// FeedCredential is the resolved, decrypted credential for publishing to a
// page feed. Built once at the adapter boundary instead of re-reading the
// raw account row in every call.
type FeedCredential struct {
	PageID      string
	PageName    string
	AccessToken string
}

// BusinessMediaCredential is the resolved credential for the asynchronous
// container protocol on a business media account.
type BusinessMediaCredential struct {
	AccountID   string
	AccessToken string
}
