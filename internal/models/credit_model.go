package models

import "time"

type CreditLedger struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Balance   int       `db:"balance" json:"balance"`
	Tier      string    `db:"tier" json:"tier"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const (
	TierFree = "free"
	TierPro  = "pro"
)

// Balance a user starts with when their ledger row is first provisioned.
const DefaultCredits = 5
