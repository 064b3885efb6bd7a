package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

func (r *PostgresAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT id, user_id, account_number, account_type, balance, status, created_at FROM accounts WHERE id = $1`
	var account models.Account
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.UserID,
		&account.AccountNumber,
		&account.AccountType,
		&account.Balance,
		&account.Status,
		&account.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, pkgerrors.ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *PostgresAccountRepository) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	query := `SELECT id, user_id, account_number, account_type, balance, status, created_at FROM accounts WHERE user_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.AccountNumber,
			&account.AccountType,
			&account.Balance,
			&account.Status,
			&account.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

func (r *PostgresAccountRepository) SetStatus(ctx context.Context, id string, status models.AccountStatus) error {
	query := `UPDATE accounts SET status = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", err)
	}
	if affected == 0 {
		return pkgerrors.ErrAccountNotFound
	}
	return nil
}
