package repository

import (
	"context"
	"time"

	"github.com/capitalcayman/netbank/internal/models"
)

type PendingTransactionRepository interface {
	GetByID(ctx context.Context, id string) (*models.PendingTransaction, error)

	// ListActionable returns pending and requires_otp rows system-wide,
	// newest first, for the admin review queue.
	ListActionable(ctx context.Context) ([]models.PendingTransaction, error)

	ListByUser(ctx context.Context, userID string) ([]models.PendingTransaction, error)

	// MarkRejected flips the status and persists the reason. It never
	// touches balances.
	MarkRejected(ctx context.Context, id, reason string) error

	// ExpireStaleOTP rejects requires_otp rows whose code expired more than
	// grace ago, returning how many were swept.
	ExpireStaleOTP(ctx context.Context, grace time.Duration) (int64, error)
}
