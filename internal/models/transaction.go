package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit         TransactionType = "deposit"
	TypeWithdrawal      TransactionType = "withdrawal"
	TypeTransfer        TransactionType = "transfer"
	TypeAdminAdjustment TransactionType = "admin_adjustment"
)

// Transaction is a completed ledger entry. Positive amounts are credits,
// negative amounts are debits. Rows are append-only and created solely by
// the ledger procedures.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"transaction_type"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

type PendingStatus string

const (
	PendingStatusPending     PendingStatus = "pending"
	PendingStatusRequiresOTP PendingStatus = "requires_otp"
	PendingStatusApproved    PendingStatus = "approved"
	PendingStatusRejected    PendingStatus = "rejected"
)

// PendingTransaction is a proposed balance change awaiting OTP verification
// or admin review. The amount carries the same sign convention as Transaction,
// so withdrawals are negative.
type PendingTransaction struct {
	ID              string          `json:"id"`
	AccountID       string          `json:"account_id"`
	Amount          decimal.Decimal `json:"amount"`
	Type            TransactionType `json:"transaction_type"`
	Description     string          `json:"description"`
	Status          PendingStatus   `json:"status"`
	OTPCode         string          `json:"-"`
	OTPExpiresAt    *time.Time      `json:"otp_expires_at,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
