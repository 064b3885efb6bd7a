package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/capitalcayman/netbank/internal/infrastructure/observability"
	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

// PostgresClient invokes the ledger procedures, which live in the database
// as SQL functions returning JSON payloads. All money-movement logic is on
// that side; this client only transports arguments and parses results.
type PostgresClient struct {
	db *sql.DB
}

func NewPostgresClient(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

type balancePayload struct {
	Success       bool            `json:"success"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	TransactionID string          `json:"transaction_id"`
	Error         string          `json:"error"`
}

type verifyPayload struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

func (c *PostgresClient) UpdateAccountBalance(ctx context.Context, accountID string, change decimal.Decimal, description, adminUserID string) (decimal.Decimal, error) {
	var err error
	tracer := otel.Tracer("ledger-client")
	ctx, span := tracer.Start(ctx, "UpdateAccountBalance")
	span.SetAttributes(
		attribute.String("account_id", accountID),
		attribute.String("amount_change", change.String()),
		attribute.Bool("admin", adminUserID != ""),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = callStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.LedgerCalls.WithLabelValues("update_account_balance", status).Inc()
		observability.LedgerDuration.WithLabelValues("update_account_balance").Observe(time.Since(start).Seconds())
	}()

	var admin sql.NullString
	if adminUserID != "" {
		admin = sql.NullString{String: adminUserID, Valid: true}
	}

	var raw []byte
	query := `SELECT update_account_balance($1, $2, $3, $4)`
	if err = c.db.QueryRowContext(ctx, query, accountID, change, description, admin).Scan(&raw); err != nil {
		slog.Error("update_account_balance call failed", "account_id", accountID, "error", err)
		err = fmt.Errorf("%w: update_account_balance: %v", pkgerrors.ErrLedgerUnavailable, err)
		return decimal.Zero, err
	}

	payload, perr := parseBalancePayload(raw)
	if perr != nil {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, perr)
		return decimal.Zero, err
	}
	if !payload.Success {
		err = balanceError(payload.Error)
		slog.Warn("balance mutation declined", "account_id", accountID, "reason", payload.Error)
		return decimal.Zero, err
	}

	slog.Info("balance updated", "account_id", accountID, "change", change.String(), "new_balance", payload.NewBalance.String())
	return payload.NewBalance, nil
}

func (c *PostgresClient) Evaluate(ctx context.Context, accountID string, amount decimal.Decimal, txType models.TransactionType, description string) (Decision, error) {
	var err error
	tracer := otel.Tracer("ledger-client")
	ctx, span := tracer.Start(ctx, "Evaluate")
	span.SetAttributes(
		attribute.String("account_id", accountID),
		attribute.String("amount", amount.String()),
		attribute.String("type", string(txType)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.LedgerCalls.WithLabelValues("create_pending_transaction", status).Inc()
		observability.LedgerDuration.WithLabelValues("create_pending_transaction").Observe(time.Since(start).Seconds())
	}()

	var raw []byte
	query := `SELECT create_pending_transaction($1, $2, $3, $4)`
	if err = c.db.QueryRowContext(ctx, query, accountID, amount, txType, description).Scan(&raw); err != nil {
		slog.Error("create_pending_transaction call failed", "account_id", accountID, "error", err)
		err = fmt.Errorf("%w: create_pending_transaction: %v", pkgerrors.ErrLedgerUnavailable, err)
		return nil, err
	}

	decision, perr := ParseDecision(raw)
	if perr != nil {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, perr)
		return nil, err
	}

	slog.Info("risk decision received", "account_id", accountID, "decision", fmt.Sprintf("%T", decision))
	return decision, nil
}

func (c *PostgresClient) VerifyOTPAndComplete(ctx context.Context, pendingID, code string) (string, error) {
	var err error
	tracer := otel.Tracer("ledger-client")
	ctx, span := tracer.Start(ctx, "VerifyOTPAndComplete")
	span.SetAttributes(attribute.String("pending_id", pendingID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = callStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.LedgerCalls.WithLabelValues("verify_otp_and_complete", status).Inc()
		observability.LedgerDuration.WithLabelValues("verify_otp_and_complete").Observe(time.Since(start).Seconds())
	}()

	var raw []byte
	query := `SELECT verify_otp_and_complete($1, $2)`
	if err = c.db.QueryRowContext(ctx, query, pendingID, code).Scan(&raw); err != nil {
		slog.Error("verify_otp_and_complete call failed", "pending_id", pendingID, "error", err)
		err = fmt.Errorf("%w: verify_otp_and_complete: %v", pkgerrors.ErrLedgerUnavailable, err)
		return "", err
	}

	var payload verifyPayload
	if perr := parseJSON(raw, &payload); perr != nil {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, perr)
		return "", err
	}

	if payload.Status != "completed" {
		err = verifyError(payload.Message)
		slog.Warn("OTP verification declined", "pending_id", pendingID, "reason", payload.Message)
		return "", err
	}

	slog.Info("OTP verified, pending transaction completed", "pending_id", pendingID, "transaction_id", payload.TransactionID)
	return payload.TransactionID, nil
}

// ApprovePending locks the pending row, applies the admin-tagged balance
// mutation and flips the status, all inside one database transaction. A
// failure at any step rolls the whole approval back.
func (c *PostgresClient) ApprovePending(ctx context.Context, pendingID, adminUserID string) (string, error) {
	var err error
	tracer := otel.Tracer("ledger-client")
	ctx, span := tracer.Start(ctx, "ApprovePending")
	span.SetAttributes(attribute.String("pending_id", pendingID))
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = callStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.LedgerCalls.WithLabelValues("approve_pending", status).Inc()
		observability.LedgerDuration.WithLabelValues("approve_pending").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("%w: begin: %v", pkgerrors.ErrLedgerUnavailable, err)
		return "", err
	}
	defer dbTx.Rollback()

	var (
		accountID   string
		amount      decimal.Decimal
		status      models.PendingStatus
		description string
	)
	lockQuery := `SELECT account_id, amount, status, description FROM pending_transactions WHERE id = $1 FOR UPDATE`
	err = dbTx.QueryRowContext(ctx, lockQuery, pendingID).Scan(&accountID, &amount, &status, &description)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrPendingNotFound
		return "", err
	}
	if err != nil {
		err = fmt.Errorf("%w: lock pending: %v", pkgerrors.ErrLedgerUnavailable, err)
		return "", err
	}
	if status != models.PendingStatusPending && status != models.PendingStatusRequiresOTP {
		err = pkgerrors.ErrNotActionable
		return "", err
	}

	var raw []byte
	callQuery := `SELECT update_account_balance($1, $2, $3, $4)`
	adminDescription := description + " (Admin Approved)"
	if err = dbTx.QueryRowContext(ctx, callQuery, accountID, amount, adminDescription, adminUserID).Scan(&raw); err != nil {
		err = fmt.Errorf("%w: update_account_balance: %v", pkgerrors.ErrLedgerUnavailable, err)
		return "", err
	}
	payload, perr := parseBalancePayload(raw)
	if perr != nil {
		err = fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, perr)
		return "", err
	}
	if !payload.Success {
		err = balanceError(payload.Error)
		return "", err
	}

	updateQuery := `UPDATE pending_transactions SET status = $1 WHERE id = $2`
	if _, err = dbTx.ExecContext(ctx, updateQuery, models.PendingStatusApproved, pendingID); err != nil {
		err = fmt.Errorf("%w: mark approved: %v", pkgerrors.ErrLedgerUnavailable, err)
		return "", err
	}

	if err = dbTx.Commit(); err != nil {
		err = fmt.Errorf("%w: commit: %v", pkgerrors.ErrLedgerUnavailable, err)
		return "", err
	}

	slog.Info("pending transaction approved", "pending_id", pendingID, "admin_user_id", adminUserID, "transaction_id", payload.TransactionID)
	return payload.TransactionID, nil
}

func (c *PostgresClient) TransferBetween(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal, description string) error {
	var err error
	tracer := otel.Tracer("ledger-client")
	ctx, span := tracer.Start(ctx, "TransferBetween")
	span.SetAttributes(
		attribute.String("from_account_id", fromAccountID),
		attribute.String("to_account_id", toAccountID),
		attribute.String("amount", amount.String()),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = callStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.LedgerCalls.WithLabelValues("transfer_between", status).Inc()
		observability.LedgerDuration.WithLabelValues("transfer_between").Observe(time.Since(start).Seconds())
	}()

	dbTx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("%w: begin: %v", pkgerrors.ErrLedgerUnavailable, err)
		return err
	}
	defer dbTx.Rollback()

	query := `SELECT update_account_balance($1, $2, $3, $4)`
	for _, leg := range []struct {
		accountID string
		change    decimal.Decimal
	}{
		{fromAccountID, amount.Neg()},
		{toAccountID, amount},
	} {
		var raw []byte
		if err = dbTx.QueryRowContext(ctx, query, leg.accountID, leg.change, description, sql.NullString{}).Scan(&raw); err != nil {
			err = fmt.Errorf("%w: update_account_balance: %v", pkgerrors.ErrLedgerUnavailable, err)
			return err
		}
		payload, perr := parseBalancePayload(raw)
		if perr != nil {
			err = fmt.Errorf("%w: %v", pkgerrors.ErrLedgerUnavailable, perr)
			return err
		}
		if !payload.Success {
			err = balanceError(payload.Error)
			return err
		}
	}

	if err = dbTx.Commit(); err != nil {
		err = fmt.Errorf("%w: commit: %v", pkgerrors.ErrLedgerUnavailable, err)
		return err
	}

	slog.Info("transfer completed", "from_account_id", fromAccountID, "to_account_id", toAccountID, "amount", amount.String())
	return nil
}

func parseJSON(raw []byte, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse ledger payload: %w", err)
	}
	return nil
}

func parseBalancePayload(raw []byte) (balancePayload, error) {
	var p balancePayload
	if err := parseJSON(raw, &p); err != nil {
		return balancePayload{}, err
	}
	return p, nil
}

func balanceError(message string) error {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "insufficient"):
		return pkgerrors.ErrInsufficientFunds
	case strings.Contains(lower, "frozen"):
		return pkgerrors.ErrAccountFrozen
	case message == "":
		return fmt.Errorf("balance update failed")
	default:
		return fmt.Errorf("balance update failed: %s", message)
	}
}

func verifyError(message string) error {
	if strings.Contains(strings.ToLower(message), "expired") {
		return pkgerrors.ErrOTPExpired
	}
	return pkgerrors.ErrInvalidOTP
}

// callStatus distinguishes infra errors from business declines in metrics.
func callStatus(err error) string {
	if stderrors.Is(err, pkgerrors.ErrLedgerUnavailable) {
		return "error"
	}
	return "rejected"
}
