package errors

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")

	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountFrozen     = errors.New("account is frozen")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrPendingNotFound = errors.New("pending transaction not found")
	ErrNotActionable   = errors.New("pending transaction is not actionable")

	ErrInvalidGateCode = errors.New("invalid verification code")
	ErrGateRateLimited = errors.New("too many verification attempts")

	ErrInvalidOTP = errors.New("invalid otp code")
	ErrOTPExpired = errors.New("otp code expired")

	ErrSessionNotFound   = errors.New("withdrawal session not found")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrOperationInFlight = errors.New("operation already in progress")

	// ErrLedgerUnavailable marks infrastructure failures of the ledger
	// procedures, as opposed to a business rejection carried in a Decision.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
