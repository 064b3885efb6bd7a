package gates_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capitalcayman/netbank/internal/gates"
	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type fakeRedis struct {
	mu       sync.Mutex
	counters map[string]int64
	incrErr  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counters: make(map[string]int64)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrErr != nil {
		return 0, f.incrErr
	}
	f.counters[key]++
	return f.counters[key], nil
}
func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (f *fakeRedis) Del(ctx context.Context, key string) error { return nil }
func (f *fakeRedis) Close() error                              { return nil }

type fakeAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (f *fakeAudit) Publish(ctx context.Context, event models.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) Close() error { return nil }

func (f *fakeAudit) count(eventType models.AuditEventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

func TestVerifier_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("CorrectCodePasses", func(t *testing.T) {
		audit := &fakeAudit{}
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), audit, 5, time.Minute)

		assert.NoError(t, v.Verify(ctx, gates.GateVAT, "user-1", "VAT123"))
		assert.NoError(t, v.Verify(ctx, gates.GateCOT, "user-1", "COT456"))
		assert.Equal(t, 2, audit.count(models.AuditGateAttempt))
	})

	t.Run("InputIsTrimmed", func(t *testing.T) {
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), &fakeAudit{}, 5, time.Minute)
		assert.NoError(t, v.Verify(ctx, gates.GateVAT, "user-1", "  VAT123  "))
	})

	t.Run("WrongCodeFails", func(t *testing.T) {
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), &fakeAudit{}, 5, time.Minute)
		err := v.Verify(ctx, gates.GateVAT, "user-1", "WRONG")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidGateCode)
	})

	t.Run("CaseSensitive", func(t *testing.T) {
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), &fakeAudit{}, 5, time.Minute)
		err := v.Verify(ctx, gates.GateVAT, "user-1", "vat123")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidGateCode)
	})

	t.Run("CodesAreNotInterchangeable", func(t *testing.T) {
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), &fakeAudit{}, 5, time.Minute)
		err := v.Verify(ctx, gates.GateCOT, "user-1", "VAT123")
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidGateCode)
	})

	t.Run("RateLimitAfterMaxAttempts", func(t *testing.T) {
		audit := &fakeAudit{}
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), audit, 3, time.Minute)

		for i := 0; i < 3; i++ {
			err := v.Verify(ctx, gates.GateVAT, "user-1", "WRONG")
			assert.ErrorIs(t, err, pkgerrors.ErrInvalidGateCode)
		}
		// Correct code no longer helps once the budget is spent.
		err := v.Verify(ctx, gates.GateVAT, "user-1", "VAT123")
		assert.ErrorIs(t, err, pkgerrors.ErrGateRateLimited)
	})

	t.Run("RateLimitIsPerUser", func(t *testing.T) {
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), &fakeAudit{}, 1, time.Minute)

		assert.ErrorIs(t, v.Verify(ctx, gates.GateVAT, "user-1", "WRONG"), pkgerrors.ErrInvalidGateCode)
		assert.ErrorIs(t, v.Verify(ctx, gates.GateVAT, "user-1", "VAT123"), pkgerrors.ErrGateRateLimited)
		assert.NoError(t, v.Verify(ctx, gates.GateVAT, "user-2", "VAT123"))
	})

	t.Run("RedisOutageDoesNotBlock", func(t *testing.T) {
		r := newFakeRedis()
		r.incrErr = fmt.Errorf("connection refused")
		v := gates.NewVerifier("VAT123", "COT456", r, &fakeAudit{}, 5, time.Minute)

		assert.NoError(t, v.Verify(ctx, gates.GateVAT, "user-1", "VAT123"))
	})

	t.Run("UnknownGate", func(t *testing.T) {
		v := gates.NewVerifier("VAT123", "COT456", newFakeRedis(), &fakeAudit{}, 5, time.Minute)
		assert.Error(t, v.Verify(ctx, gates.Gate("imt"), "user-1", "x"))
	})
}
