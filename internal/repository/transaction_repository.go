package repository

import (
	"context"
	"time"

	"github.com/capitalcayman/netbank/internal/models"
)

// StatementFilter narrows a statement listing. Zero values mean "no filter".
type StatementFilter struct {
	From  *time.Time
	To    *time.Time
	Type  models.TransactionType
	Limit int
}

type TransactionRepository interface {
	ListByAccount(ctx context.Context, accountID string, filter StatementFilter) ([]models.Transaction, error)
	ListRecentByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error)
}
