package withdraw

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capitalcayman/netbank/internal/models"
	"github.com/capitalcayman/netbank/internal/otp"
	pkgerrors "github.com/capitalcayman/netbank/pkg/errors"
)

// session is one in-flight withdrawal orchestration. It is held server-side
// and driven by the HTTP handlers; all mutation happens under mu.
type session struct {
	mu            sync.Mutex
	id            string
	userID        string
	state         State
	req           models.WithdrawalRequest
	accountNumber string
	challenge     *otp.Challenge
	result        *Result
	message       string
	busy          bool
	touchedAt     time.Time
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *session) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:      s.id,
		State:   s.state,
		Message: s.message,
		Result:  s.result,
	}
	if s.state == StateForm || s.state == StateVatGate || s.state == StateCotGate {
		req := s.req
		snap.Request = &req
	}
	if s.challenge != nil {
		snap.OTP = &ChallengeInfo{
			PendingID: s.challenge.PendingID(),
			Remaining: s.challenge.Remaining(),
		}
	}
	return snap
}

// SessionStore keeps live orchestrations in memory, keyed by uuid, and
// evicts sessions idle past the TTL.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session
	ttl      time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
	}
}

func (st *SessionStore) New(userID string, req models.WithdrawalRequest, accountNumber string) *session {
	sess := &session{
		id:            uuid.NewString(),
		userID:        userID,
		state:         StateVatGate,
		req:           req,
		accountNumber: accountNumber,
		touchedAt:     time.Now(),
	}
	st.mu.Lock()
	st.sessions[sess.id] = sess
	st.mu.Unlock()
	return sess
}

func (st *SessionStore) get(id, userID string) (*session, error) {
	st.mu.RLock()
	sess, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok || sess.userID != userID {
		return nil, pkgerrors.ErrSessionNotFound
	}
	sess.mu.Lock()
	sess.touchedAt = time.Now()
	sess.mu.Unlock()
	return sess, nil
}

func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// RunEviction sweeps idle sessions until ctx is cancelled.
func (st *SessionStore) RunEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.evictStale()
		}
	}
}

func (st *SessionStore) evictStale() {
	cutoff := time.Now().Add(-st.ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, sess := range st.sessions {
		sess.mu.Lock()
		stale := sess.touchedAt.Before(cutoff) && !sess.busy
		sess.mu.Unlock()
		if stale {
			delete(st.sessions, id)
			slog.Info("evicted stale withdrawal session", "session_id", id)
		}
	}
}
