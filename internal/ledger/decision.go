package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decision is the ledger's categorization of a withdrawal request. It is a
// closed set: exactly the four variants below, parsed once at the procedure
// call boundary so callers branch on concrete types instead of raw payloads.
type Decision interface {
	decision()
}

// Completed means funds moved immediately; no further action is needed.
type Completed struct {
	TransactionID string
}

// RequiresOTP means a pending transaction was recorded and a one-time code
// must be supplied back before it expires.
type RequiresOTP struct {
	PendingID string
	Code      string
	ExpiresIn time.Duration
}

// PendingApproval means the transaction is held for manual admin review; no
// balance change has happened.
type PendingApproval struct {
	PendingID string
}

// Rejected is a terminal business denial, distinct from an infrastructure
// failure of the call itself.
type Rejected struct {
	Reason string
}

func (Completed) decision()       {}
func (RequiresOTP) decision()     {}
func (PendingApproval) decision() {}
func (Rejected) decision()        {}

type decisionPayload struct {
	Status           string `json:"status"`
	TransactionID    string `json:"transaction_id"`
	PendingID        string `json:"pending_id"`
	OTPCode          string `json:"otp_code"`
	ExpiresInSeconds int    `json:"expires_in_seconds"`
	Message          string `json:"message"`
}

// ParseDecision decodes the JSON payload returned by
// create_pending_transaction. Unknown statuses are treated as rejections,
// carrying whatever message the procedure produced.
func ParseDecision(raw []byte) (Decision, error) {
	var p decisionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to parse decision payload: %w", err)
	}

	switch p.Status {
	case "completed":
		return Completed{TransactionID: p.TransactionID}, nil
	case "requires_otp":
		return RequiresOTP{
			PendingID: p.PendingID,
			Code:      p.OTPCode,
			ExpiresIn: time.Duration(p.ExpiresInSeconds) * time.Second,
		}, nil
	case "pending_approval":
		return PendingApproval{PendingID: p.PendingID}, nil
	default:
		reason := p.Message
		if reason == "" {
			reason = "transaction failed"
		}
		return Rejected{Reason: reason}, nil
	}
}
