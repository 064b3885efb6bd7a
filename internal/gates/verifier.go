package gates

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/capitalcayman/netbank/internal/infrastructure/kafka"
	"github.com/capitalcayman/netbank/internal/infrastructure/observability"
	"github.com/capitalcayman/netbank/internal/infrastructure/redis"
	"github.com/capitalcayman/netbank/internal/models"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

type Gate string

const (
	GateVAT Gate = "vat"
	GateCOT Gate = "cot"
)

// Verifier checks the shared-secret step gates (VAT, COT) that stand between
// the withdrawal form and the risk decision call. The expected values are
// configuration-supplied, so this is a checkpoint, not a cryptographic
// control; verification happens server-side, is rate-limited per user and
// every attempt lands on the audit trail.
type Verifier struct {
	expected    map[Gate]string
	redisClient redis.RedisClient
	audit       kafka.AuditPublisher
	maxAttempts int
	window      time.Duration
}

func NewVerifier(vatCode, cotCode string, redisClient redis.RedisClient, audit kafka.AuditPublisher, maxAttempts int, window time.Duration) *Verifier {
	return &Verifier{
		expected: map[Gate]string{
			GateVAT: vatCode,
			GateCOT: cotCode,
		},
		redisClient: redisClient,
		audit:       audit,
		maxAttempts: maxAttempts,
		window:      window,
	}
}

// Verify compares the trimmed input against the configured value for the
// gate. A mismatch never advances the caller; it returns ErrInvalidGateCode
// and the attempt counts against the user's rate budget.
func (v *Verifier) Verify(ctx context.Context, gate Gate, userID, input string) error {
	tracer := otel.Tracer("step-gates")
	ctx, span := tracer.Start(ctx, "VerifyGate")
	span.SetAttributes(attribute.String("gate", string(gate)))
	defer span.End()

	expected, ok := v.expected[gate]
	if !ok {
		return fmt.Errorf("unknown gate %q", gate)
	}

	if err := v.consumeAttempt(ctx, gate, userID); err != nil {
		observability.GateAttempts.WithLabelValues(string(gate), "rate_limited").Inc()
		v.publishAttempt(ctx, gate, userID, "rate_limited")
		return err
	}

	trimmed := strings.TrimSpace(input)
	if subtle.ConstantTimeCompare([]byte(trimmed), []byte(expected)) != 1 {
		observability.GateAttempts.WithLabelValues(string(gate), "failed").Inc()
		v.publishAttempt(ctx, gate, userID, "failed")
		slog.Warn("gate verification failed", "gate", gate, "user_id", userID)
		return pkgerrors.ErrInvalidGateCode
	}

	observability.GateAttempts.WithLabelValues(string(gate), "passed").Inc()
	v.publishAttempt(ctx, gate, userID, "passed")
	slog.Info("gate verification passed", "gate", gate, "user_id", userID)
	return nil
}

func (v *Verifier) consumeAttempt(ctx context.Context, gate Gate, userID string) error {
	key := fmt.Sprintf("gate:%s:%s:attempts", gate, userID)
	count, err := v.redisClient.Incr(ctx, key)
	if err != nil {
		// Rate limiting is best-effort: a Redis outage must not block
		// withdrawals outright.
		slog.Error("failed to track gate attempts", "gate", gate, "user_id", userID, "error", err)
		return nil
	}
	if count == 1 {
		if err := v.redisClient.Expire(ctx, key, v.window); err != nil {
			slog.Error("failed to set gate attempt window", "gate", gate, "error", err)
		}
	}
	if count > int64(v.maxAttempts) {
		slog.Warn("gate rate limit exceeded", "gate", gate, "user_id", userID, "attempts", count)
		return pkgerrors.ErrGateRateLimited
	}
	return nil
}

func (v *Verifier) publishAttempt(ctx context.Context, gate Gate, userID, result string) {
	payload, err := json.Marshal(map[string]string{"gate": string(gate), "result": result})
	if err != nil {
		return
	}
	if err := v.audit.Publish(ctx, models.AuditEvent{
		EventType: models.AuditGateAttempt,
		ActorID:   userID,
		Payload:   payload,
	}); err != nil {
		slog.Error("failed to publish gate audit event", "gate", gate, "error", err)
	}
}
