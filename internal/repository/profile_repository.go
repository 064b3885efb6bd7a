package repository

import (
	"context"

	"github.com/capitalcayman/netbank/internal/models"
)

type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Update(ctx context.Context, profile *models.Profile) error
	List(ctx context.Context) ([]models.Profile, error)
}
