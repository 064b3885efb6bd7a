package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/capitalcayman/netbank/internal/infrastructure/redis"
	"github.com/capitalcayman/netbank/internal/ledger"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/repository"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

// BankingService covers the customer-facing money pages outside the
// withdrawal flow: accounts, deposit, transfer, statements and profile.
type BankingService interface {
	ListAccounts(ctx context.Context, userID string) ([]models.Account, error)
	Deposit(ctx context.Context, userID, accountID string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	Transfer(ctx context.Context, userID, fromAccountID, toAccountID string, amount decimal.Decimal, description string) error
	GetStatements(ctx context.Context, userID, accountID string, filter repository.StatementFilter) ([]models.Transaction, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID, fullName, phone string) error
}

type bankingService struct {
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	profiles     repository.ProfileRepository
	ledgerClient ledger.Client
	redisClient  redis.RedisClient
}

func NewBankingService(
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	profiles repository.ProfileRepository,
	ledgerClient ledger.Client,
	redisClient redis.RedisClient,
) *bankingService {
	return &bankingService{
		accounts:     accounts,
		transactions: transactions,
		profiles:     profiles,
		ledgerClient: ledgerClient,
		redisClient:  redisClient,
	}
}

func (s *bankingService) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	cacheKey := fmt.Sprintf("user:%s:accounts", userID)
	if cached, err := s.redisClient.Get(ctx, cacheKey); err == nil {
		var accounts []models.Account
		if err := json.Unmarshal([]byte(cached), &accounts); err == nil {
			return accounts, nil
		}
		slog.Error("failed to unmarshal cached accounts", "user_id", userID, "error", err)
	}

	accounts, err := s.accounts.ListByUser(ctx, userID)
	if err != nil {
		slog.Error("failed to list accounts", "user_id", userID, "error", err)
		return nil, err
	}

	if raw, err := json.Marshal(accounts); err == nil {
		if err := s.redisClient.Set(ctx, cacheKey, string(raw), time.Minute); err != nil {
			slog.Error("failed to cache accounts", "user_id", userID, "error", err)
		}
	}
	return accounts, nil
}

func (s *bankingService) Deposit(ctx context.Context, userID, accountID string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	tracer := otel.Tracer("banking-service")
	ctx, span := tracer.Start(ctx, "Deposit")
	defer span.End()

	if !amount.IsPositive() {
		span.SetStatus(codes.Error, "non-positive amount")
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	if _, err := s.ownedAccount(ctx, userID, accountID); err != nil {
		span.RecordError(err)
		return decimal.Zero, err
	}

	if description == "" {
		description = "Deposit"
	}
	newBalance, err := s.ledgerClient.UpdateAccountBalance(ctx, accountID, amount, description, "")
	if err != nil {
		span.RecordError(err)
		slog.Error("deposit failed", "user_id", userID, "account_id", accountID, "error", err)
		return decimal.Zero, err
	}

	s.invalidateAccounts(ctx, userID)
	slog.Info("deposit completed", "user_id", userID, "account_id", accountID, "amount", amount.String())
	return newBalance, nil
}

func (s *bankingService) Transfer(ctx context.Context, userID, fromAccountID, toAccountID string, amount decimal.Decimal, description string) error {
	tracer := otel.Tracer("banking-service")
	ctx, span := tracer.Start(ctx, "Transfer")
	defer span.End()

	if !amount.IsPositive() {
		span.SetStatus(codes.Error, "non-positive amount")
		return fmt.Errorf("%w: amount must be positive", pkgerrors.ErrInvalidInput)
	}
	if fromAccountID == toAccountID {
		span.SetStatus(codes.Error, "same account")
		return fmt.Errorf("%w: cannot transfer to the same account", pkgerrors.ErrInvalidInput)
	}

	from, err := s.ownedAccount(ctx, userID, fromAccountID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	to, err := s.ownedAccount(ctx, userID, toAccountID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	// Transfers between own accounts are balance-checked up front, unlike
	// withdrawals where the risk procedure is authoritative.
	if from.Balance.LessThan(amount) {
		span.SetStatus(codes.Error, "insufficient funds")
		return pkgerrors.ErrInsufficientFunds
	}

	if description == "" {
		description = fmt.Sprintf("Transfer to %s", to.AccountNumber)
	}
	if err := s.ledgerClient.TransferBetween(ctx, fromAccountID, toAccountID, amount, description); err != nil {
		span.RecordError(err)
		slog.Error("transfer failed", "user_id", userID, "from", fromAccountID, "to", toAccountID, "error", err)
		return err
	}

	s.invalidateAccounts(ctx, userID)
	slog.Info("transfer completed", "user_id", userID, "from", fromAccountID, "to", toAccountID, "amount", amount.String())
	return nil
}

func (s *bankingService) GetStatements(ctx context.Context, userID, accountID string, filter repository.StatementFilter) ([]models.Transaction, error) {
	if _, err := s.ownedAccount(ctx, userID, accountID); err != nil {
		return nil, err
	}
	transactions, err := s.transactions.ListByAccount(ctx, accountID, filter)
	if err != nil {
		slog.Error("failed to load statements", "user_id", userID, "account_id", accountID, "error", err)
		return nil, err
	}
	return transactions, nil
}

func (s *bankingService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.profiles.GetByID(ctx, userID)
}

func (s *bankingService) UpdateProfile(ctx context.Context, userID, fullName, phone string) error {
	profile, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	profile.FullName = fullName
	profile.Phone = phone
	if err := s.profiles.Update(ctx, profile); err != nil {
		slog.Error("failed to update profile", "user_id", userID, "error", err)
		return err
	}
	slog.Info("profile updated", "user_id", userID)
	return nil
}

func (s *bankingService) ownedAccount(ctx context.Context, userID, accountID string) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.UserID != userID {
		return nil, pkgerrors.ErrAccountNotFound
	}
	return account, nil
}

func (s *bankingService) invalidateAccounts(ctx context.Context, userID string) {
	if err := s.redisClient.Del(ctx, fmt.Sprintf("user:%s:accounts", userID)); err != nil && !stderrors.Is(err, redis.ErrKeyNotFound) {
		slog.Error("failed to invalidate accounts cache", "user_id", userID, "error", err)
	}
}
