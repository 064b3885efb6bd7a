package ledger_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/capitalcayman/netbank/internal/ledger"
	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

func TestPostgresClient_UpdateAccountBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	client := ledger.NewPostgresClient(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT update_account_balance($1, $2, $3, $4)`)

	t.Run("Success", func(t *testing.T) {
		change := decimal.NewFromInt(100)
		mock.ExpectQuery(query).
			WithArgs("acc-1", change, "Deposit", sql.NullString{}).
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": true, "new_balance": "1100.00", "transaction_id": "tx-1"}`))

		balance, err := client.UpdateAccountBalance(ctx, "acc-1", change, "Deposit", "")
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("1100.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		change := decimal.NewFromInt(-5000)
		mock.ExpectQuery(query).
			WithArgs("acc-1", change, "Withdrawal", sql.NullString{}).
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": false, "error": "Insufficient funds"}`))

		_, err := client.UpdateAccountBalance(ctx, "acc-1", change, "Withdrawal", "")
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FrozenAccount", func(t *testing.T) {
		change := decimal.NewFromInt(10)
		mock.ExpectQuery(query).
			WithArgs("acc-2", change, "Deposit", sql.NullString{}).
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": false, "error": "Account is frozen"}`))

		_, err := client.UpdateAccountBalance(ctx, "acc-2", change, "Deposit", "")
		assert.ErrorIs(t, err, pkgerrors.ErrAccountFrozen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseDown", func(t *testing.T) {
		change := decimal.NewFromInt(10)
		mock.ExpectQuery(query).
			WithArgs("acc-1", change, "Deposit", sql.NullString{}).
			WillReturnError(fmt.Errorf("connection refused"))

		_, err := client.UpdateAccountBalance(ctx, "acc-1", change, "Deposit", "")
		assert.ErrorIs(t, err, pkgerrors.ErrLedgerUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AdminTagged", func(t *testing.T) {
		change := decimal.NewFromInt(-50)
		mock.ExpectQuery(query).
			WithArgs("acc-1", change, "Adjustment", sql.NullString{String: "admin-1", Valid: true}).
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": true, "new_balance": "950.00", "transaction_id": "tx-2"}`))

		balance, err := client.UpdateAccountBalance(ctx, "acc-1", change, "Adjustment", "admin-1")
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.RequireFromString("950.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresClient_Evaluate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	client := ledger.NewPostgresClient(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT create_pending_transaction($1, $2, $3, $4)`)

	t.Run("Completed", func(t *testing.T) {
		amount := decimal.NewFromInt(-500)
		mock.ExpectQuery(query).
			WithArgs("acc-1", amount, models.TypeWithdrawal, "Withdrawal to external bank").
			WillReturnRows(sqlmock.NewRows([]string{"create_pending_transaction"}).
				AddRow(`{"status": "completed", "transaction_id": "tx-1"}`))

		decision, err := client.Evaluate(ctx, "acc-1", amount, models.TypeWithdrawal, "Withdrawal to external bank")
		assert.NoError(t, err)
		assert.Equal(t, ledger.Completed{TransactionID: "tx-1"}, decision)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseDownIsInfraError", func(t *testing.T) {
		amount := decimal.NewFromInt(-500)
		mock.ExpectQuery(query).
			WithArgs("acc-1", amount, models.TypeWithdrawal, "d").
			WillReturnError(fmt.Errorf("connection reset"))

		decision, err := client.Evaluate(ctx, "acc-1", amount, models.TypeWithdrawal, "d")
		assert.Nil(t, decision)
		assert.ErrorIs(t, err, pkgerrors.ErrLedgerUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresClient_VerifyOTPAndComplete(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	client := ledger.NewPostgresClient(db)
	ctx := context.Background()

	query := regexp.QuoteMeta(`SELECT verify_otp_and_complete($1, $2)`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("p-1", "123456").
			WillReturnRows(sqlmock.NewRows([]string{"verify_otp_and_complete"}).
				AddRow(`{"status": "completed", "transaction_id": "tx-9"}`))

		txID, err := client.VerifyOTPAndComplete(ctx, "p-1", "123456")
		assert.NoError(t, err)
		assert.Equal(t, "tx-9", txID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WrongCode", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("p-1", "000000").
			WillReturnRows(sqlmock.NewRows([]string{"verify_otp_and_complete"}).
				AddRow(`{"status": "failed", "message": "Invalid OTP code"}`))

		_, err := client.VerifyOTPAndComplete(ctx, "p-1", "000000")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidOTP)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExpiredCode", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("p-1", "123456").
			WillReturnRows(sqlmock.NewRows([]string{"verify_otp_and_complete"}).
				AddRow(`{"status": "failed", "message": "OTP code expired"}`))

		_, err := client.VerifyOTPAndComplete(ctx, "p-1", "123456")
		assert.ErrorIs(t, err, pkgerrors.ErrOTPExpired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresClient_ApprovePending(t *testing.T) {
	lockQuery := regexp.QuoteMeta(`SELECT account_id, amount, status, description FROM pending_transactions WHERE id = $1 FOR UPDATE`)
	callQuery := regexp.QuoteMeta(`SELECT update_account_balance($1, $2, $3, $4)`)
	updateQuery := regexp.QuoteMeta(`UPDATE pending_transactions SET status = $1 WHERE id = $2`)

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		client := ledger.NewPostgresClient(db)

		amount := decimal.RequireFromString("-5000")
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "status", "description"}).
				AddRow("acc-1", amount, "pending", "Withdrawal to external bank"))
		mock.ExpectQuery(callQuery).
			WithArgs("acc-1", amount, "Withdrawal to external bank (Admin Approved)", "admin-1").
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": true, "new_balance": "5000.00", "transaction_id": "tx-7"}`))
		mock.ExpectExec(updateQuery).
			WithArgs(models.PendingStatusApproved, "p-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		txID, err := client.ApprovePending(context.Background(), "p-1", "admin-1")
		assert.NoError(t, err)
		assert.Equal(t, "tx-7", txID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		client := ledger.NewPostgresClient(db)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err = client.ApprovePending(context.Background(), "missing", "admin-1")
		assert.ErrorIs(t, err, pkgerrors.ErrPendingNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyResolved", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		client := ledger.NewPostgresClient(db)

		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("p-2").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "status", "description"}).
				AddRow("acc-1", decimal.NewFromInt(-100), "approved", "d"))
		mock.ExpectRollback()

		_, err = client.ApprovePending(context.Background(), "p-2", "admin-1")
		assert.ErrorIs(t, err, pkgerrors.ErrNotActionable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("BalanceDeclineRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		client := ledger.NewPostgresClient(db)

		amount := decimal.NewFromInt(-9000)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs("p-3").
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "amount", "status", "description"}).
				AddRow("acc-1", amount, "pending", "d"))
		mock.ExpectQuery(callQuery).
			WithArgs("acc-1", amount, "d (Admin Approved)", "admin-1").
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": false, "error": "Insufficient funds"}`))
		mock.ExpectRollback()

		_, err = client.ApprovePending(context.Background(), "p-3", "admin-1")
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresClient_TransferBetween(t *testing.T) {
	query := regexp.QuoteMeta(`SELECT update_account_balance($1, $2, $3, $4)`)

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		client := ledger.NewPostgresClient(db)

		amount := decimal.NewFromInt(250)
		mock.ExpectBegin()
		mock.ExpectQuery(query).
			WithArgs("acc-1", amount.Neg(), "Transfer", sql.NullString{}).
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": true, "new_balance": "750.00", "transaction_id": "tx-1"}`))
		mock.ExpectQuery(query).
			WithArgs("acc-2", amount, "Transfer", sql.NullString{}).
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": true, "new_balance": "1250.00", "transaction_id": "tx-2"}`))
		mock.ExpectCommit()

		err = client.TransferBetween(context.Background(), "acc-1", "acc-2", amount, "Transfer")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DebitDeclineRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()
		client := ledger.NewPostgresClient(db)

		amount := decimal.NewFromInt(250)
		mock.ExpectBegin()
		mock.ExpectQuery(query).
			WithArgs("acc-1", amount.Neg(), "Transfer", sql.NullString{}).
			WillReturnRows(sqlmock.NewRows([]string{"update_account_balance"}).
				AddRow(`{"success": false, "error": "Insufficient funds"}`))
		mock.ExpectRollback()

		err = client.TransferBetween(context.Background(), "acc-1", "acc-2", amount, "Transfer")
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
