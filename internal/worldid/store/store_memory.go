package store

import (
	"context"
	"sync"
	"time"

	"personhood/internal/worldid/models"
	"personhood/internal/worldid/service"
	dErrors "personhood/pkg/domain-errors"
	"personhood/pkg/platform/sentinel"
)

const defaultTxTimeout = 5 * time.Second

// InMemoryStore keeps accounts, sessions and the nullifier ledger in maps.
// Transactions hold the write lock for their whole duration and undo their
// writes on failure.
type InMemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]models.Account
	sessions   map[string]models.Session
	nullifiers map[string]models.NullifierRecord
	timeout    time.Duration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		accounts:   make(map[string]models.Account),
		sessions:   make(map[string]models.Session),
		nullifiers: make(map[string]models.NullifierRecord),
	}
}

func (s *InMemoryStore) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAccount(account), nil
}

func (s *InMemoryStore) EnsureAccount(ctx context.Context, accountID string, now time.Time) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{s: s}).EnsureAccount(ctx, accountID, now)
}

func (s *InMemoryStore) SaveSession(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{s: s}).SaveSession(ctx, session)
}

func (s *InMemoryStore) GetSession(_ context.Context, accountID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &session, nil
}

func (s *InMemoryStore) FindNullifier(_ context.Context, nullifierHash string) (*models.NullifierRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.nullifiers[nullifierHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

func (s *InMemoryStore) MarkAccountVerified(ctx context.Context, v models.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{s: s}).MarkAccountVerified(ctx, v)
}

func (s *InMemoryStore) InsertNullifier(ctx context.Context, record models.NullifierRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{s: s}).InsertNullifier(ctx, record)
}

func (s *InMemoryStore) MarkSessionVerified(ctx context.Context, accountID, signal string, verifiedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memoryTx{s: s}).MarkSessionVerified(ctx, accountID, signal, verifiedAt)
}

// RunInTx runs fn under the store's write lock. If fn fails every write it
// made is reverted before the lock is released.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &memoryTx{s: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return nil
}

// memoryTx operates on the maps of a store whose lock the caller already
// holds, recording an undo step for each write.
type memoryTx struct {
	s    *InMemoryStore
	undo []func()
}

func (t *memoryTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	account, ok := t.s.accounts[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneAccount(account), nil
}

func (t *memoryTx) EnsureAccount(_ context.Context, accountID string, now time.Time) (*models.Account, error) {
	if account, ok := t.s.accounts[accountID]; ok {
		return cloneAccount(account), nil
	}
	account := models.Account{
		ID:                 accountID,
		VerificationBadges: []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	t.s.accounts[accountID] = account
	t.undo = append(t.undo, func() { delete(t.s.accounts, accountID) })
	return cloneAccount(account), nil
}

func (t *memoryTx) SaveSession(_ context.Context, session models.Session) error {
	prev, existed := t.s.sessions[session.AccountID]
	t.s.sessions[session.AccountID] = session
	t.undo = append(t.undo, func() {
		if existed {
			t.s.sessions[session.AccountID] = prev
		} else {
			delete(t.s.sessions, session.AccountID)
		}
	})
	return nil
}

func (t *memoryTx) GetSession(_ context.Context, accountID string) (*models.Session, error) {
	session, ok := t.s.sessions[accountID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &session, nil
}

func (t *memoryTx) FindNullifier(_ context.Context, nullifierHash string) (*models.NullifierRecord, error) {
	record, ok := t.s.nullifiers[nullifierHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &record, nil
}

func (t *memoryTx) MarkAccountVerified(_ context.Context, v models.Verification) error {
	prev, ok := t.s.accounts[v.AccountID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if prev.IsVerified {
		return sentinel.ErrInvalidState
	}
	next := *cloneAccount(prev)
	next.IsVerified = true
	next.TrustScore += v.TrustScoreBoost
	next.VerificationBadges = append(next.VerificationBadges, v.BadgeName)
	next.WorldIDVerification = &models.WorldIDVerification{
		VerifiedAt:        v.VerifiedAt,
		NullifierHash:     v.NullifierHash,
		VerificationLevel: v.VerificationLevel,
		TrustScoreBoost:   v.TrustScoreBoost,
	}
	next.UpdatedAt = v.VerifiedAt
	t.s.accounts[v.AccountID] = next
	t.undo = append(t.undo, func() { t.s.accounts[v.AccountID] = prev })
	return nil
}

func (t *memoryTx) InsertNullifier(_ context.Context, record models.NullifierRecord) error {
	if _, exists := t.s.nullifiers[record.NullifierHash]; exists {
		return sentinel.ErrAlreadyUsed
	}
	t.s.nullifiers[record.NullifierHash] = record
	t.undo = append(t.undo, func() { delete(t.s.nullifiers, record.NullifierHash) })
	return nil
}

func (t *memoryTx) MarkSessionVerified(_ context.Context, accountID, signal string, verifiedAt time.Time) error {
	prev, ok := t.s.sessions[accountID]
	if !ok || prev.Signal != signal {
		return sentinel.ErrNotFound
	}
	if prev.Verified {
		return sentinel.ErrInvalidState
	}
	next := prev
	next.Verified = true
	next.VerifiedAt = &verifiedAt
	t.s.sessions[accountID] = next
	t.undo = append(t.undo, func() { t.s.sessions[accountID] = prev })
	return nil
}

func cloneAccount(a models.Account) *models.Account {
	out := a
	out.VerificationBadges = append([]string{}, a.VerificationBadges...)
	if a.WorldIDVerification != nil {
		v := *a.WorldIDVerification
		out.WorldIDVerification = &v
	}
	return &out
}
