package otp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/capitalcayman/netbank/internal/ledger"
	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/otp"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type fakeLedger struct {
	mu        sync.Mutex
	verifyErr error
	verifyTx  string
	calls     int
	block     chan struct{}
}

func (f *fakeLedger) UpdateAccountBalance(ctx context.Context, accountID string, change decimal.Decimal, description, adminUserID string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (f *fakeLedger) Evaluate(ctx context.Context, accountID string, amount decimal.Decimal, txType models.TransactionType, description string) (ledger.Decision, error) {
	return nil, nil
}

func (f *fakeLedger) VerifyOTPAndComplete(ctx context.Context, pendingID, code string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.verifyTx, f.verifyErr
}

func (f *fakeLedger) ApprovePending(ctx context.Context, pendingID, adminUserID string) (string, error) {
	return "", nil
}

func (f *fakeLedger) TransferBetween(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal, description string) error {
	return nil
}

func TestChallenge_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		client := &fakeLedger{verifyTx: "tx-1"}
		c := otp.NewChallenge(client, "p-1", 5*time.Minute)
		assert.Equal(t, otp.StateIssued, c.State())

		txID, err := c.Submit(ctx, "123456")
		assert.NoError(t, err)
		assert.Equal(t, "tx-1", txID)
		assert.Equal(t, otp.StateVerified, c.State())
	})

	t.Run("WrongCodeAllowsRetry", func(t *testing.T) {
		client := &fakeLedger{verifyErr: pkgerrors.ErrInvalidOTP}
		c := otp.NewChallenge(client, "p-1", 5*time.Minute)

		_, err := c.Submit(ctx, "000000")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidOTP)
		assert.Equal(t, otp.StateIssued, c.State())

		client.verifyErr = nil
		client.verifyTx = "tx-2"
		txID, err := c.Submit(ctx, "123456")
		assert.NoError(t, err)
		assert.Equal(t, "tx-2", txID)
	})

	t.Run("ExpiredCodeAllowsRetry", func(t *testing.T) {
		client := &fakeLedger{verifyErr: pkgerrors.ErrOTPExpired}
		c := otp.NewChallenge(client, "p-1", 5*time.Minute)

		_, err := c.Submit(ctx, "123456")
		assert.ErrorIs(t, err, pkgerrors.ErrOTPExpired)
		assert.Equal(t, otp.StateIssued, c.State())
	})

	t.Run("SecondSubmitWhileInFlightRefused", func(t *testing.T) {
		client := &fakeLedger{verifyTx: "tx-1", block: make(chan struct{})}
		c := otp.NewChallenge(client, "p-1", 5*time.Minute)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err := c.Submit(ctx, "123456")
			assert.NoError(t, err)
		}()

		// Wait for the first submit to enter the verifying state.
		assert.Eventually(t, func() bool {
			return c.State() == otp.StateVerifying
		}, time.Second, time.Millisecond)

		_, err := c.Submit(ctx, "123456")
		assert.ErrorIs(t, err, pkgerrors.ErrOperationInFlight)

		close(client.block)
		<-done
		assert.Equal(t, 1, client.calls)
	})

	t.Run("SubmitAfterVerifiedRefused", func(t *testing.T) {
		client := &fakeLedger{verifyTx: "tx-1"}
		c := otp.NewChallenge(client, "p-1", 5*time.Minute)

		_, err := c.Submit(ctx, "123456")
		assert.NoError(t, err)

		_, err = c.Submit(ctx, "123456")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidState)
		assert.Equal(t, 1, client.calls)
	})
}

func TestChallenge_Remaining(t *testing.T) {
	client := &fakeLedger{}

	t.Run("CountsDown", func(t *testing.T) {
		c := otp.NewChallenge(client, "p-1", 5*time.Minute)
		remaining := c.Remaining()
		assert.True(t, remaining > 4*time.Minute)
		assert.True(t, remaining <= 5*time.Minute)
	})

	t.Run("NeverNegative", func(t *testing.T) {
		c := otp.NewChallenge(client, "p-1", -time.Second)
		assert.Equal(t, time.Duration(0), c.Remaining())
	})
}
