package models

import (
	"encoding/json"
	"time"
)

type AuditEventType string

const (
	AuditWithdrawalSubmitted AuditEventType = "withdrawal_submitted"
	AuditGateAttempt         AuditEventType = "gate_attempt"
	AuditOTPVerified         AuditEventType = "otp_verified"
	AuditAdminApproved       AuditEventType = "admin_approved"
	AuditAdminRejected       AuditEventType = "admin_rejected"
	AuditBalanceAdjusted     AuditEventType = "balance_adjusted"
)

// AuditEvent is published to Kafka at every risk-relevant step and persisted
// into audit_log by the consumer.
type AuditEvent struct {
	EventType AuditEventType  `json:"event_type"`
	ActorID   string          `json:"actor_id"`
	SubjectID string          `json:"subject_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
