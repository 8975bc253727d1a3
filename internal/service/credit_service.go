package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/postpilotapp/postpilot/internal/models"
	"github.com/postpilotapp/postpilot/internal/repository"
	"github.com/postpilotapp/postpilot/internal/transfer"
)

// PrivilegeChecker reports whether a user bypasses credit admission. Injected
// as a capability so the bypass policy lives in one place instead of being
// re-checked at every call site.
type PrivilegeChecker func(userID int64) bool

// CreditService is the admission gate in front of every publish attempt. The
// deduction is a single atomic read-modify-write in the ledger; callers must
// consult it before touching the media pipeline or any platform adapter.
type CreditService interface {
	TryDeduct(ctx context.Context, userID int64, amount int) (*transfer.Admission, error)
	Balance(ctx context.Context, userID int64) (*transfer.Admission, error)
}

type creditService struct {
	cr           repository.CreditRepository
	isPrivileged PrivilegeChecker
}

func NewCreditService(cr repository.CreditRepository, isPrivileged PrivilegeChecker) CreditService {
	if isPrivileged == nil {
		isPrivileged = func(int64) bool { return false }
	}
	return &creditService{
		cr:           cr,
		isPrivileged: isPrivileged,
	}
}

func (s *creditService) TryDeduct(ctx context.Context, userID int64, amount int) (*transfer.Admission, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("invalid deduction amount: %d", amount)
	}

	// First-ever reference provisions the ledger row before evaluation.
	if err := s.cr.Provision(ctx, userID, models.DefaultCredits); err != nil {
		return nil, fmt.Errorf("error provisioning credit ledger: %w", err)
	}

	if s.isPrivileged(userID) {
		balance, _, err := s.cr.GetBalance(ctx, userID)
		if err != nil {
			return nil, err
		}
		return &transfer.Admission{Allowed: true, Remaining: balance, Unlimited: true}, nil
	}

	remaining, allowed, err := s.cr.Deduct(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("error deducting credits: %w", err)
	}

	if !allowed {
		slog.Info("credit admission denied", "user_id", userID, "remaining", remaining)
	}

	return &transfer.Admission{Allowed: allowed, Remaining: remaining}, nil
}

func (s *creditService) Balance(ctx context.Context, userID int64) (*transfer.Admission, error) {
	if err := s.cr.Provision(ctx, userID, models.DefaultCredits); err != nil {
		return nil, fmt.Errorf("error provisioning credit ledger: %w", err)
	}

	balance, _, err := s.cr.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &transfer.Admission{
		Allowed:   true,
		Remaining: balance,
		Unlimited: s.isPrivileged(userID),
	}, nil
}
