package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/capitalcayman/netbank/internal/infrastructure/kafka"
	"github.com/capitalcayman/netbank/internal/ledger"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/repository"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type BalanceOperation string

const (
	OperationAdd      BalanceOperation = "add"
	OperationSubtract BalanceOperation = "subtract"
	OperationSet      BalanceOperation = "set"
)

// UserDetail is the admin's per-user view: profile, accounts, recent ledger
// entries and anything still pending.
type UserDetail struct {
	Profile  models.Profile              `json:"profile"`
	Accounts []models.Account            `json:"accounts"`
	Recent   []models.Transaction        `json:"recent_transactions"`
	Pending  []models.PendingTransaction `json:"pending_transactions"`
}

// AdminService is the review queue plus the adjacent admin tooling.
type AdminService interface {
	ListPending(ctx context.Context) ([]models.PendingTransaction, error)
	Approve(ctx context.Context, adminID, pendingID string) (string, error)
	Reject(ctx context.Context, adminID, pendingID, reason string) error
	AdjustBalance(ctx context.Context, adminID, accountID string, op BalanceOperation, amount decimal.Decimal, description string) (decimal.Decimal, error)
	SetAccountStatus(ctx context.Context, adminID, accountID string, status models.AccountStatus) error
	ListUsers(ctx context.Context) ([]models.Profile, error)
	GetUserDetail(ctx context.Context, userID string) (*UserDetail, error)
}

type adminService struct {
	pending      repository.PendingTransactionRepository
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	profiles     repository.ProfileRepository
	ledgerClient ledger.Client
	audit        kafka.AuditPublisher
}

func NewAdminService(
	pending repository.PendingTransactionRepository,
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	profiles repository.ProfileRepository,
	ledgerClient ledger.Client,
	audit kafka.AuditPublisher,
) *adminService {
	return &adminService{
		pending:      pending,
		accounts:     accounts,
		transactions: transactions,
		profiles:     profiles,
		ledgerClient: ledgerClient,
		audit:        audit,
	}
}

func (s *adminService) ListPending(ctx context.Context) ([]models.PendingTransaction, error) {
	return s.pending.ListActionable(ctx)
}

// Approve re-invokes the balance mutation with the stored amount and
// description, tagged with the admin's id so the procedure bypasses normal
// limit checks. The mutation and the status flip are one transactional unit
// inside the ledger client.
func (s *adminService) Approve(ctx context.Context, adminID, pendingID string) (string, error) {
	tracer := otel.Tracer("admin-service")
	ctx, span := tracer.Start(ctx, "ApprovePending")
	span.SetAttributes(attribute.String("pending_id", pendingID))
	defer span.End()

	txID, err := s.ledgerClient.ApprovePending(ctx, pendingID, adminID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "approval failed")
		slog.Error("failed to approve pending transaction", "pending_id", pendingID, "admin_id", adminID, "error", err)
		return "", err
	}

	s.publish(ctx, models.AuditAdminApproved, adminID, pendingID, map[string]string{"transaction_id": txID})
	slog.Info("pending transaction approved", "pending_id", pendingID, "admin_id", adminID, "transaction_id", txID)
	return txID, nil
}

// Reject never touches a balance.
func (s *adminService) Reject(ctx context.Context, adminID, pendingID, reason string) error {
	tracer := otel.Tracer("admin-service")
	ctx, span := tracer.Start(ctx, "RejectPending")
	span.SetAttributes(attribute.String("pending_id", pendingID))
	defer span.End()

	if reason == "" {
		reason = "Rejected by admin"
	}
	if err := s.pending.MarkRejected(ctx, pendingID, reason); err != nil {
		span.RecordError(err)
		slog.Error("failed to reject pending transaction", "pending_id", pendingID, "admin_id", adminID, "error", err)
		return err
	}

	s.publish(ctx, models.AuditAdminRejected, adminID, pendingID, map[string]string{"reason": reason})
	slog.Info("pending transaction rejected", "pending_id", pendingID, "admin_id", adminID, "reason", reason)
	return nil
}

func (s *adminService) AdjustBalance(ctx context.Context, adminID, accountID string, op BalanceOperation, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	tracer := otel.Tracer("admin-service")
	ctx, span := tracer.Start(ctx, "AdjustBalance")
	span.SetAttributes(
		attribute.String("account_id", accountID),
		attribute.String("operation", string(op)),
	)
	defer span.End()

	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount must not be negative", pkgerrors.ErrInvalidInput)
	}

	var change decimal.Decimal
	switch op {
	case OperationAdd:
		change = amount
	case OperationSubtract:
		change = amount.Neg()
	case OperationSet:
		account, err := s.accounts.GetByID(ctx, accountID)
		if err != nil {
			span.RecordError(err)
			return decimal.Zero, err
		}
		change = amount.Sub(account.Balance)
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown operation %q", pkgerrors.ErrInvalidInput, op)
	}

	if description == "" {
		description = fmt.Sprintf("Balance adjustment %s", change.StringFixed(2))
	}

	newBalance, err := s.ledgerClient.UpdateAccountBalance(ctx, accountID, change, description, adminID)
	if err != nil {
		span.RecordError(err)
		slog.Error("balance adjustment failed", "account_id", accountID, "admin_id", adminID, "error", err)
		return decimal.Zero, err
	}

	s.publish(ctx, models.AuditBalanceAdjusted, adminID, accountID, map[string]string{
		"change":      change.String(),
		"new_balance": newBalance.String(),
	})
	slog.Info("balance adjusted", "account_id", accountID, "admin_id", adminID, "change", change.String())
	return newBalance, nil
}

func (s *adminService) SetAccountStatus(ctx context.Context, adminID, accountID string, status models.AccountStatus) error {
	if status != models.AccountActive && status != models.AccountFrozen {
		return fmt.Errorf("%w: unknown account status %q", pkgerrors.ErrInvalidInput, status)
	}
	if err := s.accounts.SetStatus(ctx, accountID, status); err != nil {
		slog.Error("failed to set account status", "account_id", accountID, "status", status, "error", err)
		return err
	}
	slog.Info("account status changed", "account_id", accountID, "status", status, "admin_id", adminID)
	return nil
}

func (s *adminService) ListUsers(ctx context.Context) ([]models.Profile, error) {
	return s.profiles.List(ctx)
}

func (s *adminService) GetUserDetail(ctx context.Context, userID string) (*UserDetail, error) {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	recent, err := s.transactions.ListRecentByUser(ctx, userID, 20)
	if err != nil {
		return nil, err
	}
	pending, err := s.pending.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserDetail{
		Profile:  *profile,
		Accounts: accounts,
		Recent:   recent,
		Pending:  pending,
	}, nil
}

func (s *adminService) publish(ctx context.Context, eventType models.AuditEventType, actorID, subjectID string, detail map[string]string) {
	payload, err := json.Marshal(detail)
	if err != nil {
		return
	}
	if err := s.audit.Publish(ctx, models.AuditEvent{
		EventType: eventType,
		ActorID:   actorID,
		SubjectID: subjectID,
		Payload:   payload,
	}); err != nil {
		slog.Error("failed to publish audit event", "event_type", eventType, "error", err)
	}
}
