package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

// WithdrawalRequest holds one withdrawal form submission. It lives only for
// the duration of a single orchestration and is never persisted as-is; the
// bank details are folded into the resulting transaction description.
type WithdrawalRequest struct {
	AccountID                string          `json:"account_id"`
	Amount                   decimal.Decimal `json:"amount"`
	Description              string          `json:"description,omitempty"`
	BankName                 string          `json:"bank_name"`
	BankAddress              string          `json:"bank_address"`
	RoutingNumber            string          `json:"routing_number"`
	DestinationAccountNumber string          `json:"destination_account_number"`
}

// Validate applies the form-level checks. Available balance is deliberately
// not checked here: the ledger procedure is authoritative and risk rules may
// allow overdraft-adjacent flows.
func (r WithdrawalRequest) Validate() error {
	if r.AccountID == "" {
		return fmt.Errorf("%w: account is required", pkgerrors.ErrInvalidInput)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	for field, v := range map[string]string{
		"bank name":      r.BankName,
		"bank address":   r.BankAddress,
		"routing number": r.RoutingNumber,
		"account number": r.DestinationAccountNumber,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", pkgerrors.ErrInvalidInput, field)
		}
	}
	return nil
}

// ComposeDescription embeds the destination bank details into the free-text
// description that travels with the ledger entry.
func (r WithdrawalRequest) ComposeDescription() string {
	details := fmt.Sprintf("Bank: %s; Address: %s; Routing: %s; Account: %s",
		r.BankName, r.BankAddress, r.RoutingNumber, r.DestinationAccountNumber)
	desc := strings.TrimSpace(r.Description)
	if desc == "" {
		desc = "Withdrawal to external bank"
	}
	return desc + " | " + details
}
