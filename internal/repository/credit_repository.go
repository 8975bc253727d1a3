package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilotapp/postpilot/internal/models"
)

type CreditRepository interface {
	Provision(ctx context.Context, userID int64, balance int) error
	Deduct(ctx context.Context, userID int64, amount int) (int, bool, error)
	GetBalance(ctx context.Context, userID int64) (int, bool, error)
}

type creditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) CreditRepository {
	return &creditRepository{db: db}
}

// Provision creates the ledger row on first reference. A no-op when the row
// already exists.
func (r *creditRepository) Provision(ctx context.Context, userID int64, balance int) error {
	query := `
		INSERT INTO credit_ledgers (user_id, balance, tier)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, userID, balance, models.TierFree)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Deduct is a single atomic read-modify-write. Two concurrent calls can never
// both pass a stale balance check: the WHERE clause and the decrement happen
// in one statement.
func (r *creditRepository) Deduct(ctx context.Context, userID int64, amount int) (int, bool, error) {
	query := `
		UPDATE credit_ledgers
		SET balance = balance - $2,
			updated_at = $3
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`

	var remaining int
	err := r.db.QueryRowContext(ctx, query, userID, amount, time.Now()).Scan(&remaining)
	if err == sql.ErrNoRows {
		balance, _, err := r.GetBalance(ctx, userID)
		if err != nil {
			return 0, false, err
		}
		return balance, false, nil
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, false, err
	}

	return remaining, true, nil
}

func (r *creditRepository) GetBalance(ctx context.Context, userID int64) (int, bool, error) {
	query := "SELECT balance FROM credit_ledgers WHERE user_id = $1"

	var balance int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		slog.Info(err.Error())
		return 0, false, err
	}
	return balance, true, nil
}
