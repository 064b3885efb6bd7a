package repository

import (
	"context"

	"github.com/capitalcayman/netbank/internal/models"
)

type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	ListByUser(ctx context.Context, userID string) ([]models.Account, error)
	SetStatus(ctx context.Context, id string, status models.AccountStatus) error
}
