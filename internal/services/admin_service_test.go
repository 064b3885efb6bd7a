package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalcayman/netbank/internal/ledger"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/repository"
	service "github.com/capitalcayman/netbank/internal/services"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type fakePendingRepo struct {
	pending  map[string]*models.PendingTransaction
	rejected map[string]string
}

func newFakePendingRepo() *fakePendingRepo {
	return &fakePendingRepo{
		pending:  make(map[string]*models.PendingTransaction),
		rejected: make(map[string]string),
	}
}

func (f *fakePendingRepo) GetByID(ctx context.Context, id string) (*models.PendingTransaction, error) {
	tx, ok := f.pending[id]
	if !ok {
		return nil, pkgerrors.ErrPendingNotFound
	}
	return tx, nil
}

func (f *fakePendingRepo) ListActionable(ctx context.Context) ([]models.PendingTransaction, error) {
	var list []models.PendingTransaction
	for _, tx := range f.pending {
		if tx.Status == models.PendingStatusPending || tx.Status == models.PendingStatusRequiresOTP {
			list = append(list, *tx)
		}
	}
	return list, nil
}

func (f *fakePendingRepo) ListByUser(ctx context.Context, userID string) ([]models.PendingTransaction, error) {
	return nil, nil
}

func (f *fakePendingRepo) MarkRejected(ctx context.Context, id, reason string) error {
	tx, ok := f.pending[id]
	if !ok {
		return pkgerrors.ErrPendingNotFound
	}
	if tx.Status != models.PendingStatusPending && tx.Status != models.PendingStatusRequiresOTP {
		return pkgerrors.ErrNotActionable
	}
	tx.Status = models.PendingStatusRejected
	tx.RejectionReason = reason
	f.rejected[id] = reason
	return nil
}

func (f *fakePendingRepo) ExpireStaleOTP(ctx context.Context, grace time.Duration) (int64, error) {
	return 0, nil
}

type fakeAccountRepo struct {
	accounts map[string]*models.Account
	statuses map[string]models.AccountStatus
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return nil, pkgerrors.ErrAccountNotFound
	}
	return account, nil
}

func (f *fakeAccountRepo) ListByUser(ctx context.Context, userID string) ([]models.Account, error) {
	var list []models.Account
	for _, a := range f.accounts {
		if a.UserID == userID {
			list = append(list, *a)
		}
	}
	return list, nil
}

func (f *fakeAccountRepo) SetStatus(ctx context.Context, id string, status models.AccountStatus) error {
	if _, ok := f.accounts[id]; !ok {
		return pkgerrors.ErrAccountNotFound
	}
	if f.statuses == nil {
		f.statuses = make(map[string]models.AccountStatus)
	}
	f.statuses[id] = status
	return nil
}

type fakeLedgerClient struct {
	approveTx     string
	approveErr    error
	approvedIDs   []string
	balanceResult decimal.Decimal
	balanceErr    error
	lastChange    decimal.Decimal
	lastAdmin     string
}

func (f *fakeLedgerClient) UpdateAccountBalance(ctx context.Context, accountID string, change decimal.Decimal, description, adminUserID string) (decimal.Decimal, error) {
	f.lastChange = change
	f.lastAdmin = adminUserID
	if f.balanceErr != nil {
		return decimal.Zero, f.balanceErr
	}
	return f.balanceResult, nil
}

func (f *fakeLedgerClient) Evaluate(ctx context.Context, accountID string, amount decimal.Decimal, txType models.TransactionType, description string) (ledger.Decision, error) {
	return nil, nil
}

func (f *fakeLedgerClient) VerifyOTPAndComplete(ctx context.Context, pendingID, code string) (string, error) {
	return "", nil
}

func (f *fakeLedgerClient) ApprovePending(ctx context.Context, pendingID, adminUserID string) (string, error) {
	if f.approveErr != nil {
		return "", f.approveErr
	}
	f.approvedIDs = append(f.approvedIDs, pendingID)
	return f.approveTx, nil
}

func (f *fakeLedgerClient) TransferBetween(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal, description string) error {
	return nil
}

type fakeAuditPublisher struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (f *fakeAuditPublisher) Publish(ctx context.Context, event models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditPublisher) Close() error { return nil }

func (f *fakeAuditPublisher) last() *models.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return &f.events[len(f.events)-1]
}

type adminFixture struct {
	svc     service.AdminService
	pending *fakePendingRepo
	ledger  *fakeLedgerClient
	audit   *fakeAuditPublisher
	repo    *fakeAccountRepo
}

func newAdminFixture() *adminFixture {
	pending := newFakePendingRepo()
	pending.pending["p-1"] = &models.PendingTransaction{
		ID:        "p-1",
		AccountID: "acc-1",
		Amount:    decimal.NewFromInt(-5000),
		Type:      models.TypeWithdrawal,
		Status:    models.PendingStatusPending,
	}
	accounts := &fakeAccountRepo{accounts: map[string]*models.Account{
		"acc-1": {
			ID:      "acc-1",
			UserID:  "user-1",
			Balance: decimal.NewFromInt(1000),
			Status:  models.AccountActive,
		},
	}}
	fl := &fakeLedgerClient{}
	audit := &fakeAuditPublisher{}
	svc := service.NewAdminService(pending, accounts, fakeTxRepo{}, fakeProfileRepo{}, fl, audit)
	return &adminFixture{svc: svc, pending: pending, ledger: fl, audit: audit, repo: accounts}
}

type fakeTxRepo struct{}

func (fakeTxRepo) ListByAccount(ctx context.Context, accountID string, filter repository.StatementFilter) ([]models.Transaction, error) {
	return nil, nil
}

func (fakeTxRepo) ListRecentByUser(ctx context.Context, userID string, limit int) ([]models.Transaction, error) {
	return nil, nil
}

type fakeProfileRepo struct{}

func (fakeProfileRepo) Create(ctx context.Context, profile *models.Profile) error { return nil }
func (fakeProfileRepo) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	return &models.Profile{ID: id}, nil
}
func (fakeProfileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return nil, pkgerrors.ErrUserNotFound
}
func (fakeProfileRepo) Update(ctx context.Context, profile *models.Profile) error { return nil }
func (fakeProfileRepo) List(ctx context.Context) ([]models.Profile, error)        { return nil, nil }

func TestAdminService_Approve(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAdminFixture()
		f.ledger.approveTx = "tx-1"

		txID, err := f.svc.Approve(ctx, "admin-1", "p-1")
		require.NoError(t, err)
		assert.Equal(t, "tx-1", txID)
		assert.Equal(t, []string{"p-1"}, f.ledger.approvedIDs)

		event := f.audit.last()
		require.NotNil(t, event)
		assert.Equal(t, models.AuditAdminApproved, event.EventType)
		assert.Equal(t, "admin-1", event.ActorID)
	})

	t.Run("LedgerDecline", func(t *testing.T) {
		f := newAdminFixture()
		f.ledger.approveErr = pkgerrors.ErrInsufficientFunds

		_, err := f.svc.Approve(ctx, "admin-1", "p-1")
		assert.ErrorIs(t, err, pkgerrors.ErrInsufficientFunds)
		assert.Nil(t, f.audit.last())
	})
}

func TestAdminService_Reject(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAdminFixture()
		require.NoError(t, f.svc.Reject(ctx, "admin-1", "p-1", "Suspicious destination"))
		assert.Equal(t, "Suspicious destination", f.pending.rejected["p-1"])

		event := f.audit.last()
		require.NotNil(t, event)
		assert.Equal(t, models.AuditAdminRejected, event.EventType)
	})

	t.Run("DefaultReason", func(t *testing.T) {
		f := newAdminFixture()
		require.NoError(t, f.svc.Reject(ctx, "admin-1", "p-1", ""))
		assert.Equal(t, "Rejected by admin", f.pending.rejected["p-1"])
	})

	t.Run("AlreadyResolved", func(t *testing.T) {
		f := newAdminFixture()
		f.pending.pending["p-1"].Status = models.PendingStatusApproved
		err := f.svc.Reject(ctx, "admin-1", "p-1", "r")
		assert.ErrorIs(t, err, pkgerrors.ErrNotActionable)
	})
}

func TestAdminService_AdjustBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("Add", func(t *testing.T) {
		f := newAdminFixture()
		f.ledger.balanceResult = decimal.NewFromInt(1100)

		balance, err := f.svc.AdjustBalance(ctx, "admin-1", "acc-1", service.OperationAdd, decimal.NewFromInt(100), "")
		require.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(1100)))
		assert.True(t, f.ledger.lastChange.Equal(decimal.NewFromInt(100)))
		assert.Equal(t, "admin-1", f.ledger.lastAdmin)
	})

	t.Run("Subtract", func(t *testing.T) {
		f := newAdminFixture()
		f.ledger.balanceResult = decimal.NewFromInt(900)

		_, err := f.svc.AdjustBalance(ctx, "admin-1", "acc-1", service.OperationSubtract, decimal.NewFromInt(100), "")
		require.NoError(t, err)
		assert.True(t, f.ledger.lastChange.Equal(decimal.NewFromInt(-100)))
	})

	t.Run("SetComputesDelta", func(t *testing.T) {
		f := newAdminFixture()
		f.ledger.balanceResult = decimal.NewFromInt(2500)

		// Current balance is 1000, so setting to 2500 sends +1500.
		_, err := f.svc.AdjustBalance(ctx, "admin-1", "acc-1", service.OperationSet, decimal.NewFromInt(2500), "")
		require.NoError(t, err)
		assert.True(t, f.ledger.lastChange.Equal(decimal.NewFromInt(1500)))
	})

	t.Run("NegativeAmountRefused", func(t *testing.T) {
		f := newAdminFixture()
		_, err := f.svc.AdjustBalance(ctx, "admin-1", "acc-1", service.OperationAdd, decimal.NewFromInt(-5), "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("UnknownOperation", func(t *testing.T) {
		f := newAdminFixture()
		_, err := f.svc.AdjustBalance(ctx, "admin-1", "acc-1", service.BalanceOperation("multiply"), decimal.NewFromInt(2), "")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("PublishesAudit", func(t *testing.T) {
		f := newAdminFixture()
		f.ledger.balanceResult = decimal.NewFromInt(1100)

		_, err := f.svc.AdjustBalance(ctx, "admin-1", "acc-1", service.OperationAdd, decimal.NewFromInt(100), "")
		require.NoError(t, err)
		event := f.audit.last()
		require.NotNil(t, event)
		assert.Equal(t, models.AuditBalanceAdjusted, event.EventType)
	})
}

func TestAdminService_SetAccountStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Freeze", func(t *testing.T) {
		f := newAdminFixture()
		require.NoError(t, f.svc.SetAccountStatus(ctx, "admin-1", "acc-1", models.AccountFrozen))
		assert.Equal(t, models.AccountFrozen, f.repo.statuses["acc-1"])
	})

	t.Run("UnknownStatusRefused", func(t *testing.T) {
		f := newAdminFixture()
		err := f.svc.SetAccountStatus(ctx, "admin-1", "acc-1", models.AccountStatus("closed"))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})
}
