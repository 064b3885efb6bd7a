package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/capitalcayman/netbank/internal/models"
	repo "github.com/capitalcayman/netbank/internal/repository"
)

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

// ListByAccount renders the statement view: a filtered, time-descending read
// of the append-only ledger.
func (r *PostgresTransactionRepository) ListByAccount(ctx context.Context, accountID string, filter repo.StatementFilter) ([]models.Transaction, error) {
	query := `SELECT id, account_id, amount, transaction_type, description, created_at FROM transactions WHERE account_id = $1`
	args := []interface{}{accountID}

	if filter.From != nil {
		args = append(args, *filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND transaction_type = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *PostgresTransactionRepository) ListRecentByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	query := `
		SELECT t.id, t.account_id, t.amount, t.transaction_type, t.description, t.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.user_id = $1
		ORDER BY t.created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var list []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &tx.Type, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		list = append(list, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return list, nil
}
