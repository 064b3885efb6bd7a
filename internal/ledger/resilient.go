package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

// ResilientClient wraps a Client with a circuit breaker and per-call
// timeout. Only infrastructure failures trip the breaker; business declines
// (rejections, bad OTP codes) pass through untouched.
type ResilientClient struct {
	inner   Client
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewResilientClient(inner Client, timeout time.Duration) *ResilientClient {
	settings := gobreaker.Settings{
		Name: "ledger",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("ledger circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &ResilientClient{
		inner:   inner,
		cb:      gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
	}
}

// execute runs fn through the breaker. Business errors are smuggled past the
// breaker so rejections do not open the circuit.
func (c *ResilientClient) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var businessErr error
	_, err := c.cb.Execute(func() (interface{}, error) {
		err := fn(ctx)
		if err != nil && !stderrors.Is(err, pkgerrors.ErrLedgerUnavailable) {
			businessErr = err
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open", pkgerrors.ErrLedgerUnavailable)
		}
		return err
	}
	return businessErr
}

func (c *ResilientClient) UpdateAccountBalance(ctx context.Context, accountID string, change decimal.Decimal, description, adminUserID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := c.execute(ctx, func(ctx context.Context) error {
		var err error
		balance, err = c.inner.UpdateAccountBalance(ctx, accountID, change, description, adminUserID)
		return err
	})
	return balance, err
}

func (c *ResilientClient) Evaluate(ctx context.Context, accountID string, amount decimal.Decimal, txType models.TransactionType, description string) (Decision, error) {
	var decision Decision
	err := c.execute(ctx, func(ctx context.Context) error {
		var err error
		decision, err = c.inner.Evaluate(ctx, accountID, amount, txType, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

func (c *ResilientClient) VerifyOTPAndComplete(ctx context.Context, pendingID, code string) (string, error) {
	var txID string
	err := c.execute(ctx, func(ctx context.Context) error {
		var err error
		txID, err = c.inner.VerifyOTPAndComplete(ctx, pendingID, code)
		return err
	})
	return txID, err
}

func (c *ResilientClient) ApprovePending(ctx context.Context, pendingID, adminUserID string) (string, error) {
	var txID string
	err := c.execute(ctx, func(ctx context.Context) error {
		var err error
		txID, err = c.inner.ApprovePending(ctx, pendingID, adminUserID)
		return err
	})
	return txID, err
}

func (c *ResilientClient) TransferBetween(ctx context.Context, fromAccountID, toAccountID string, amount decimal.Decimal, description string) error {
	return c.execute(ctx, func(ctx context.Context) error {
		return c.inner.TransferBetween(ctx, fromAccountID, toAccountID, amount, description)
	})
}
