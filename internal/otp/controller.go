package otp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/capitalcayman/netbank/internal/ledger"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type State string

const (
	StateIdle      State = "idle"
	StateIssued    State = "issued"
	StateVerifying State = "verifying"
	StateVerified  State = "verified"
)

// Challenge tracks one OTP round-trip for a requires_otp pending
// transaction. The code itself is issued server-side inside the RequiresOTP
// decision; the challenge only tracks expiry for display and shuttles the
// user's input to the verification procedure.
//
// A wrong or expired code returns the challenge to Issued so the user can
// retry; the authoritative expiry check is the server's, not the local
// countdown.
type Challenge struct {
	mu        sync.Mutex
	state     State
	pendingID string
	expiresAt time.Time
	client    ledger.Client
	now       func() time.Time
}

func NewChallenge(client ledger.Client, pendingID string, expiresIn time.Duration) *Challenge {
	c := &Challenge{
		state:     StateIssued,
		pendingID: pendingID,
		client:    client,
		now:       time.Now,
	}
	c.expiresAt = c.now().Add(expiresIn)
	return c
}

func (c *Challenge) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Challenge) PendingID() string {
	return c.pendingID
}

// Remaining is the display countdown; it never goes below zero.
func (c *Challenge) Remaining() time.Duration {
	d := time.Until(c.expiresAt)
	if c.now != nil {
		d = c.expiresAt.Sub(c.now())
	}
	if d < 0 {
		return 0
	}
	return d
}

// Submit delegates the code to verify_otp_and_complete. At most one
// verification is in flight at a time; concurrent submits are refused.
func (c *Challenge) Submit(ctx context.Context, code string) (string, error) {
	c.mu.Lock()
	switch c.state {
	case StateVerifying:
		c.mu.Unlock()
		return "", pkgerrors.ErrOperationInFlight
	case StateVerified:
		c.mu.Unlock()
		return "", pkgerrors.ErrInvalidState
	}
	c.state = StateVerifying
	c.mu.Unlock()

	txID, err := c.client.VerifyOTPAndComplete(ctx, c.pendingID, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		// Wrong code, expired code or an infra failure all leave the
		// challenge open for another attempt.
		c.state = StateIssued
		slog.Warn("OTP submission failed", "pending_id", c.pendingID, "error", err)
		return "", err
	}

	c.state = StateVerified
	slog.Info("OTP challenge verified", "pending_id", c.pendingID, "transaction_id", txID)
	return txID, nil
}
