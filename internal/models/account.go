package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountFrozen AccountStatus = "frozen"
)

// Account balances are mutated exclusively through the ledger procedure
// update_account_balance; nothing in this codebase writes Balance directly.
type Account struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	AccountType   string          `json:"account_type"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}
