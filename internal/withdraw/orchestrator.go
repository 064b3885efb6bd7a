package withdraw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/capitalcayman/netbank/internal/gates"
	"github.com/capitalcayman/netbank/internal/infrastructure/kafka"
	"github.com/capitalcayman/netbank/internal/infrastructure/observability"
	"github.com/capitalcayman/netbank/internal/ledger"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/otp"
	"github.com/capitalcayman/netbank/internal/repository"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type State string

const (
	StateForm             State = "form"
	StateVatGate          State = "vat_gate"
	StateCotGate          State = "cot_gate"
	StateSubmitting       State = "submitting"
	StateOtpPending       State = "otp_pending"
	StateCompleted        State = "completed"
	StateAwaitingApproval State = "awaiting_approval"
)

// Result is what the success view renders.
type Result struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	AccountNumber string          `json:"account_number"`
}

// ChallengeInfo is the OTP countdown surfaced to the client while a
// challenge is open.
type ChallengeInfo struct {
	PendingID string        `json:"pending_id"`
	Remaining time.Duration `json:"remaining"`
}

// Snapshot is a read-only view of one orchestration.
type Snapshot struct {
	ID      string                    `json:"id"`
	State   State                     `json:"state"`
	Message string                    `json:"message,omitempty"`
	Request *models.WithdrawalRequest `json:"request,omitempty"`
	Result  *Result                   `json:"result,omitempty"`
	OTP     *ChallengeInfo            `json:"otp,omitempty"`
}

// Orchestrator drives withdrawal sessions through the gate sequence, the
// risk decision and the optional OTP challenge. Each session is an explicit
// state machine; the gates are traversed strictly in order and a failed gate
// never advances the state.
type Orchestrator struct {
	verifier *gates.Verifier
	client   ledger.Client
	accounts repository.AccountRepository
	audit    kafka.AuditPublisher
	sessions *SessionStore
}

func NewOrchestrator(verifier *gates.Verifier, client ledger.Client, accounts repository.AccountRepository, audit kafka.AuditPublisher, sessions *SessionStore) *Orchestrator {
	return &Orchestrator{
		verifier: verifier,
		client:   client,
		accounts: accounts,
		audit:    audit,
		sessions: sessions,
	}
}

// Begin validates the form and opens a session sitting at the VAT gate.
// Available balance is deliberately not checked here; the ledger procedure
// is authoritative for withdrawals.
func (o *Orchestrator) Begin(ctx context.Context, userID string, req models.WithdrawalRequest) (Snapshot, error) {
	tracer := otel.Tracer("withdraw-orchestrator")
	ctx, span := tracer.Start(ctx, "Begin")
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Snapshot{}, err
	}

	account, err := o.accounts.GetByID(ctx, req.AccountID)
	if err != nil {
		span.RecordError(err)
		return Snapshot{}, err
	}
	if account.UserID != userID {
		span.SetStatus(codes.Error, "account ownership mismatch")
		return Snapshot{}, pkgerrors.ErrAccountNotFound
	}

	sess := o.sessions.New(userID, req, account.AccountNumber)
	slog.Info("withdrawal session opened", "session_id", sess.id, "user_id", userID, "amount", req.Amount.String())
	return sess.snapshot(), nil
}

// SubmitVAT checks the first gate. Pass moves the session to the COT gate;
// fail leaves it where it is.
func (o *Orchestrator) SubmitVAT(ctx context.Context, sessionID, userID, code string) (Snapshot, error) {
	sess, err := o.sessions.get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != StateVatGate {
		return sess.snapshotLocked(), pkgerrors.ErrInvalidState
	}
	if err := o.verifier.Verify(ctx, gates.GateVAT, userID, code); err != nil {
		return sess.snapshotLocked(), err
	}
	sess.state = StateCotGate
	sess.message = ""
	return sess.snapshotLocked(), nil
}

// SubmitCOT checks the second gate and, on pass, runs the risk decision.
func (o *Orchestrator) SubmitCOT(ctx context.Context, sessionID, userID, code string) (Snapshot, error) {
	tracer := otel.Tracer("withdraw-orchestrator")
	ctx, span := tracer.Start(ctx, "SubmitCOT")
	defer span.End()

	sess, err := o.sessions.get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	if sess.state != StateCotGate {
		defer sess.mu.Unlock()
		return sess.snapshotLocked(), pkgerrors.ErrInvalidState
	}
	if err := o.verifier.Verify(ctx, gates.GateCOT, userID, code); err != nil {
		defer sess.mu.Unlock()
		return sess.snapshotLocked(), err
	}
	if sess.busy {
		defer sess.mu.Unlock()
		return sess.snapshotLocked(), pkgerrors.ErrOperationInFlight
	}
	sess.busy = true
	sess.state = StateSubmitting
	req := sess.req
	accountNumber := sess.accountNumber
	sess.mu.Unlock()

	span.SetAttributes(
		attribute.String("account_id", req.AccountID),
		attribute.String("amount", req.Amount.String()),
	)

	// Withdrawals travel as debits.
	decision, evalErr := o.client.Evaluate(ctx, req.AccountID, req.Amount.Neg(), models.TypeWithdrawal, req.ComposeDescription())

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.busy = false

	if evalErr != nil {
		// Infra failure: back to the form with input preserved. The retry
		// path is the same as for a business rejection; only the message
		// differs.
		span.RecordError(evalErr)
		sess.state = StateForm
		sess.message = "Withdrawal service is temporarily unavailable, please try again"
		observability.WithdrawalOutcomes.WithLabelValues("error").Inc()
		slog.Error("risk decision call failed", "session_id", sess.id, "error", evalErr)
		return sess.snapshotLocked(), nil
	}

	o.publishAudit(ctx, userID, req)

	switch d := decision.(type) {
	case ledger.Completed:
		sess.state = StateCompleted
		sess.result = &Result{
			TransactionID: d.TransactionID,
			Amount:        req.Amount,
			AccountNumber: accountNumber,
		}
		sess.message = ""
		observability.WithdrawalOutcomes.WithLabelValues("completed").Inc()
		slog.Info("withdrawal completed", "session_id", sess.id, "transaction_id", d.TransactionID)

	case ledger.RequiresOTP:
		sess.state = StateOtpPending
		sess.challenge = otp.NewChallenge(o.client, d.PendingID, d.ExpiresIn)
		sess.message = fmt.Sprintf("OTP verification required, code expires in %s", d.ExpiresIn)
		observability.WithdrawalOutcomes.WithLabelValues("requires_otp").Inc()
		slog.Info("withdrawal requires OTP", "session_id", sess.id, "pending_id", d.PendingID)

	case ledger.PendingApproval:
		// Terminal for the session; the form is cleared and the pending
		// row waits for the admin review queue.
		sess.state = StateAwaitingApproval
		sess.req = models.WithdrawalRequest{}
		sess.message = "Transaction submitted for admin approval due to amount or daily limits"
		observability.WithdrawalOutcomes.WithLabelValues("pending_approval").Inc()
		slog.Info("withdrawal held for approval", "session_id", sess.id, "pending_id", d.PendingID)

	case ledger.Rejected:
		sess.state = StateForm
		sess.message = d.Reason
		observability.WithdrawalOutcomes.WithLabelValues("rejected").Inc()
		slog.Warn("withdrawal rejected", "session_id", sess.id, "reason", d.Reason)
	}

	return sess.snapshotLocked(), nil
}

// SubmitOTP forwards the user's code to the verification procedure. A wrong
// or expired code is recoverable: the session stays in OtpPending and the
// challenge accepts another attempt.
func (o *Orchestrator) SubmitOTP(ctx context.Context, sessionID, userID, code string) (Snapshot, error) {
	sess, err := o.sessions.get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	if sess.state != StateOtpPending || sess.challenge == nil {
		defer sess.mu.Unlock()
		return sess.snapshotLocked(), pkgerrors.ErrInvalidState
	}
	challenge := sess.challenge
	accountNumber := sess.accountNumber
	amount := sess.req.Amount
	sess.mu.Unlock()

	txID, err := challenge.Submit(ctx, code)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err != nil {
		return sess.snapshotLocked(), err
	}

	sess.state = StateCompleted
	sess.challenge = nil
	sess.result = &Result{
		TransactionID: txID,
		Amount:        amount,
		AccountNumber: accountNumber,
	}
	sess.message = ""
	observability.WithdrawalOutcomes.WithLabelValues("completed").Inc()
	o.publishOTPVerified(ctx, userID, txID)
	slog.Info("withdrawal completed via OTP", "session_id", sess.id, "transaction_id", txID)
	return sess.snapshotLocked(), nil
}

// Resubmit re-enters the gate sequence after a rejection or infra failure.
// With a nil request the preserved form data is reused.
func (o *Orchestrator) Resubmit(ctx context.Context, sessionID, userID string, req *models.WithdrawalRequest) (Snapshot, error) {
	sess, err := o.sessions.get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != StateForm {
		return sess.snapshotLocked(), pkgerrors.ErrInvalidState
	}

	if req != nil {
		if err := req.Validate(); err != nil {
			return sess.snapshotLocked(), err
		}
		account, err := o.accounts.GetByID(ctx, req.AccountID)
		if err != nil {
			return sess.snapshotLocked(), err
		}
		if account.UserID != userID {
			return sess.snapshotLocked(), pkgerrors.ErrAccountNotFound
		}
		sess.req = *req
		sess.accountNumber = account.AccountNumber
	} else if err := sess.req.Validate(); err != nil {
		return sess.snapshotLocked(), err
	}

	sess.state = StateVatGate
	sess.message = ""
	return sess.snapshotLocked(), nil
}

// Cancel drops the client-side session. Any pending transaction already
// created server-side survives and is resolved by an admin or swept by the
// stale-OTP janitor.
func (o *Orchestrator) Cancel(_ context.Context, sessionID, userID string) error {
	if _, err := o.sessions.get(sessionID, userID); err != nil {
		return err
	}
	o.sessions.Delete(sessionID)
	slog.Info("withdrawal session cancelled", "session_id", sessionID, "user_id", userID)
	return nil
}

func (o *Orchestrator) Get(sessionID, userID string) (Snapshot, error) {
	sess, err := o.sessions.get(sessionID, userID)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.snapshot(), nil
}

func (o *Orchestrator) publishAudit(ctx context.Context, userID string, req models.WithdrawalRequest) {
	payload, err := json.Marshal(map[string]string{
		"account_id": req.AccountID,
		"amount":     req.Amount.String(),
		"bank_name":  req.BankName,
	})
	if err != nil {
		return
	}
	if err := o.audit.Publish(ctx, models.AuditEvent{
		EventType: models.AuditWithdrawalSubmitted,
		ActorID:   userID,
		SubjectID: req.AccountID,
		Payload:   payload,
	}); err != nil {
		slog.Error("failed to publish withdrawal audit event", "user_id", userID, "error", err)
	}
}

func (o *Orchestrator) publishOTPVerified(ctx context.Context, userID, txID string) {
	if err := o.audit.Publish(ctx, models.AuditEvent{
		EventType: models.AuditOTPVerified,
		ActorID:   userID,
		SubjectID: txID,
	}); err != nil {
		slog.Error("failed to publish OTP audit event", "user_id", userID, "error", err)
	}
}
