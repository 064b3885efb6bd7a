package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/capitalcayman/netbank/internal/models"
)

// Client is the contract with the remote ledger procedures. They are the
// sole writer of account balances and the sole creator of ledger
// transactions; nothing on this side mutates either directly.
//
// Infrastructure failures are wrapped in pkgerrors.ErrLedgerUnavailable and
// are retriable; business outcomes travel as Decision values or dedicated
// sentinels (ErrInvalidOTP, ErrOTPExpired, ErrInsufficientFunds).
type Client interface {
	// UpdateAccountBalance applies an atomic balance change and appends the
	// matching ledger transaction. A non-empty adminUserID tags the entry as
	// an administrative adjustment and bypasses normal limit checks.
	UpdateAccountBalance(ctx context.Context, accountID string, change decimal.Decimal, description, adminUserID string) (decimal.Decimal, error)

	// Evaluate runs the risk decision for a proposed withdrawal. On
	// RequiresOTP and PendingApproval a pending transaction row is created
	// as a side effect of the call.
	Evaluate(ctx context.Context, accountID string, amount decimal.Decimal, txType models.TransactionType, description string) (Decision, error)

	// VerifyOTPAndComplete resolves a requires_otp pending transaction,
	// returning the id of the ledger transaction created on success.
	VerifyOTPAndComplete(ctx context.Context, pendingID, code string) (string, error)

	// ApprovePending performs the admin approval as one unit: the
	// admin-tagged balance mutation and the status flip to approved either
	// both happen or neither does.
	ApprovePending(ctx context.Context, pendingID, adminUserID string) (string, error)

	// TransferBetween debits one owned account and credits another within a
	// single database transaction.
	TransferBetween(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal, description string) error
}
