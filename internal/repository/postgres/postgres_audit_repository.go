package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/capitalcayman/netbank/internal/models"
)

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	if event == nil {
		return fmt.Errorf("audit event is nil")
	}
	query := `INSERT INTO audit_log (event_type, actor_id, subject_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		event.EventType, event.ActorID, event.SubjectID, []byte(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
