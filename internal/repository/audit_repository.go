package repository

import (
	"context"

	"github.com/capitalcayman/netbank/internal/models"
)

type AuditRepository interface {
	Insert(ctx context.Context, event *models.AuditEvent) error
}
