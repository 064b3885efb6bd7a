package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/capitalcayman/netbank/internal/infrastructure/observability"
	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type PostgresPendingTransactionRepository struct {
	db *sql.DB
}

func NewPostgresPendingTransactionRepository(db *sql.DB) *PostgresPendingTransactionRepository {
	return &PostgresPendingTransactionRepository{db: db}
}

const pendingColumns = `id, account_id, amount, transaction_type, description, status, otp_code, otp_expires_at, rejection_reason, created_at`

func (r *PostgresPendingTransactionRepository) GetByID(ctx context.Context, id string) (*models.PendingTransaction, error) {
	var err error
	tracer := otel.Tracer("pending-transaction-repository")
	ctx, span := tracer.Start(ctx, "GetPendingByID")
	span.SetAttributes(attribute.String("pending_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("GetPendingByID", status).Inc()
		observability.RepositoryDuration.WithLabelValues("GetPendingByID").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT ` + pendingColumns + ` FROM pending_transactions WHERE id = $1`
	tx, err := scanPending(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrPendingNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get pending transaction", "pending_id", id, "error", err)
		return nil, fmt.Errorf("failed to get pending transaction: %w", err)
	}
	return tx, nil
}

func (r *PostgresPendingTransactionRepository) ListActionable(ctx context.Context) ([]models.PendingTransaction, error) {
	var err error
	tracer := otel.Tracer("pending-transaction-repository")
	ctx, span := tracer.Start(ctx, "ListActionable")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ListActionable", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ListActionable").Observe(time.Since(start).Seconds())
	}()

	query := `SELECT ` + pendingColumns + ` FROM pending_transactions WHERE status IN ($1, $2) ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, models.PendingStatusPending, models.PendingStatusRequiresOTP)
	if err != nil {
		slog.Error("failed to list actionable pending transactions", "error", err)
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer rows.Close()

	list, err := collectPending(rows)
	if err != nil {
		return nil, err
	}
	slog.Info("actionable pending transactions listed", "count", len(list))
	return list, nil
}

func (r *PostgresPendingTransactionRepository) ListByUser(ctx context.Context, userID string) ([]models.PendingTransaction, error) {
	query := `
		SELECT p.id, p.account_id, p.amount, p.transaction_type, p.description, p.status, p.otp_code, p.otp_expires_at, p.rejection_reason, p.created_at
		FROM pending_transactions p
		JOIN accounts a ON a.id = p.account_id
		WHERE a.user_id = $1
		ORDER BY p.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions by user: %w", err)
	}
	defer rows.Close()
	return collectPending(rows)
}

func (r *PostgresPendingTransactionRepository) MarkRejected(ctx context.Context, id, reason string) error {
	var err error
	tracer := otel.Tracer("pending-transaction-repository")
	ctx, span := tracer.Start(ctx, "MarkRejected")
	span.SetAttributes(attribute.String("pending_id", id))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("MarkRejected", status).Inc()
		observability.RepositoryDuration.WithLabelValues("MarkRejected").Observe(time.Since(start).Seconds())
	}()

	query := `UPDATE pending_transactions SET status = $1, rejection_reason = $2 WHERE id = $3 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query,
		models.PendingStatusRejected, reason, id,
		models.PendingStatusPending, models.PendingStatusRequiresOTP)
	if err != nil {
		slog.Error("failed to reject pending transaction", "pending_id", id, "error", err)
		return fmt.Errorf("failed to reject pending transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reject pending transaction: %w", err)
	}
	if affected == 0 {
		err = pkgerrors.ErrNotActionable
		return err
	}

	slog.Info("pending transaction rejected", "pending_id", id, "reason", reason)
	return nil
}

// ExpireStaleOTP is the janitor behind the explicit dangling-OTP policy:
// requires_otp rows whose code expired more than grace ago are rejected
// instead of lingering forever.
func (r *PostgresPendingTransactionRepository) ExpireStaleOTP(ctx context.Context, grace time.Duration) (int64, error) {
	var err error
	tracer := otel.Tracer("pending-transaction-repository")
	ctx, span := tracer.Start(ctx, "ExpireStaleOTP")
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues("ExpireStaleOTP", status).Inc()
		observability.RepositoryDuration.WithLabelValues("ExpireStaleOTP").Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-grace)
	query := `UPDATE pending_transactions SET status = $1, rejection_reason = $2 WHERE status = $3 AND otp_expires_at < $4`
	res, err := r.db.ExecContext(ctx, query,
		models.PendingStatusRejected, "otp expired", models.PendingStatusRequiresOTP, cutoff)
	if err != nil {
		slog.Error("failed to expire stale OTP transactions", "error", err)
		return 0, fmt.Errorf("failed to expire stale OTP transactions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale OTP transactions: %w", err)
	}
	if affected > 0 {
		slog.Info("stale OTP pending transactions swept", "count", affected)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPending(row rowScanner) (*models.PendingTransaction, error) {
	var (
		tx        models.PendingTransaction
		otpCode   sql.NullString
		expiresAt sql.NullTime
		reason    sql.NullString
	)
	err := row.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &tx.Type, &tx.Description,
		&tx.Status, &otpCode, &expiresAt, &reason, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	tx.OTPCode = otpCode.String
	if expiresAt.Valid {
		t := expiresAt.Time
		tx.OTPExpiresAt = &t
	}
	tx.RejectionReason = reason.String
	return &tx, nil
}

func collectPending(rows *sql.Rows) ([]models.PendingTransaction, error) {
	var list []models.PendingTransaction
	for rows.Next() {
		tx, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending transaction: %w", err)
		}
		list = append(list, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending transactions: %w", err)
	}
	return list, nil
}
