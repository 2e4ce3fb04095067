package watch

import (
	"context"
	"fmt"
	"testing"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/earnings"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
)

// stubStore is an in-memory Store with injectable failures. Transactions are
// not rolled back; tests that exercise partial failures only assert on the
// returned error.
type stubStore struct {
	sessions map[string]*WatchSession
	accounts map[string]*ledger.Account
	entries  []ledger.Entry
	usedKeys map[string]bool

	createSessionError    error
	getSessionError       error
	findActiveError       error
	applyProgressError    error
	updateStatusError     error
	listStaleError        error
	getOrCreateError      error
	getForUpdateError     error
	addWatchError         error
	setLevelError         error
	insertEntryError      error
	addToBalanceError     error
	nextAccountSequence   int
	failExpireSessionID   string
	failExpireStatusError error
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		sessions: map[string]*WatchSession{},
		accounts: map[string]*ledger.Account{},
		usedKeys: map[string]bool{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) CreateSession(_ context.Context, session WatchSession) error {
	if store.createSessionError != nil {
		return store.createSessionError
	}
	store.sessions[session.ID.String()] = &session
	return nil
}

func (store *stubStore) GetSessionForUpdate(_ context.Context, sessionID SessionID) (WatchSession, error) {
	if store.getSessionError != nil {
		return WatchSession{}, store.getSessionError
	}
	session, ok := store.sessions[sessionID.String()]
	if !ok {
		return WatchSession{}, ErrSessionNotFound
	}
	return *session, nil
}

func (store *stubStore) FindActiveSession(_ context.Context, userID ledger.UserID, contentID ContentID, scope Scope) (WatchSession, error) {
	if store.findActiveError != nil {
		return WatchSession{}, store.findActiveError
	}
	for _, session := range store.sessions {
		if session.Status != StatusActive || session.UserID != userID {
			continue
		}
		if scope == ScopePerContent && session.ContentID != contentID {
			continue
		}
		return *session, nil
	}
	return WatchSession{}, ErrSessionNotFound
}

func (store *stubStore) ApplySessionProgress(_ context.Context, sessionID SessionID, progress SessionProgress) error {
	if store.applyProgressError != nil {
		return store.applyProgressError
	}
	session, ok := store.sessions[sessionID.String()]
	if !ok {
		return ErrSessionNotFound
	}
	session.WatchedSeconds = progress.WatchedSeconds
	session.EarnedCoins = progress.EarnedCoins
	session.OwnerRevenueMillicents = progress.OwnerRevenueMillicents
	session.LastHeartbeatUnixUTC = progress.LastHeartbeatUnixUTC
	session.LastAppliedTick = progress.LastAppliedTick
	return nil
}

func (store *stubStore) UpdateSessionStatus(_ context.Context, sessionID SessionID, from SessionStatus, to SessionStatus) error {
	if store.updateStatusError != nil {
		return store.updateStatusError
	}
	if store.failExpireStatusError != nil && sessionID.String() == store.failExpireSessionID {
		return store.failExpireStatusError
	}
	session, ok := store.sessions[sessionID.String()]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status != from {
		return ErrSessionFinalized
	}
	session.Status = to
	return nil
}

func (store *stubStore) ListStaleSessions(_ context.Context, heartbeatBeforeUnixUTC int64, limit int) ([]WatchSession, error) {
	if store.listStaleError != nil {
		return nil, store.listStaleError
	}
	var stale []WatchSession
	for _, session := range store.sessions {
		if session.Status != StatusActive || session.LastHeartbeatUnixUTC >= heartbeatBeforeUnixUTC {
			continue
		}
		stale = append(stale, *session)
		if len(stale) == limit {
			break
		}
	}
	return stale, nil
}

func (store *stubStore) GetOrCreateAccount(_ context.Context, userID ledger.UserID) (ledger.Account, error) {
	if store.getOrCreateError != nil {
		return ledger.Account{}, store.getOrCreateError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		store.nextAccountSequence++
		account = &ledger.Account{
			AccountID: fmt.Sprintf("acct-%03d", store.nextAccountSequence),
			UserID:    userID,
			Level:     1,
		}
		store.accounts[userID.String()] = account
	}
	return *account, nil
}

func (store *stubStore) GetAccountForUpdate(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	if store.getForUpdateError != nil {
		return ledger.Account{}, store.getForUpdateError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return *account, nil
}

func (store *stubStore) AddWatchProgress(_ context.Context, userID ledger.UserID, deltaSeconds int64, nowUnixUTC int64) error {
	if store.addWatchError != nil {
		return store.addWatchError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	account.TotalWatchSeconds += deltaSeconds
	account.LastActiveUnixUTC = nowUnixUTC
	return nil
}

func (store *stubStore) SetAccountLevel(_ context.Context, userID ledger.UserID, level int) error {
	if store.setLevelError != nil {
		return store.setLevelError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		return ledger.ErrAccountNotFound
	}
	account.Level = level
	return nil
}

func (store *stubStore) InsertLedgerEntry(_ context.Context, entry ledger.Entry) error {
	if store.insertEntryError != nil {
		return store.insertEntryError
	}
	if store.usedKeys[entry.IdempotencyKey.String()] {
		return ledger.ErrDuplicateEntry
	}
	store.usedKeys[entry.IdempotencyKey.String()] = true
	entry.EntryID = fmt.Sprintf("entry-%03d", len(store.entries)+1)
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) AddToBalance(_ context.Context, userID ledger.UserID, delta ledger.Coins) (ledger.Coins, error) {
	if store.addToBalanceError != nil {
		return 0, store.addToBalanceError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	account.BalanceCoins += delta
	return account.BalanceCoins, nil
}

// stubPolicies resolves every content id to one fixed policy unless an error
// is injected.
type stubPolicies struct {
	policy earnings.RewardPolicy
	err    error
}

func (policies *stubPolicies) RewardPolicy(_ context.Context, contentID ContentID) (earnings.RewardPolicy, error) {
	if policies.err != nil {
		return earnings.RewardPolicy{}, policies.err
	}
	policy := policies.policy
	policy.ContentID = contentID.String()
	return policy, nil
}

func mustUserID(test *testing.T, raw string) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustContentID(test *testing.T, raw string) ContentID {
	test.Helper()
	contentID, err := NewContentID(raw)
	if err != nil {
		test.Fatalf("content id %q: %v", raw, err)
	}
	return contentID
}

func mustSessionID(test *testing.T, raw string) SessionID {
	test.Helper()
	sessionID, err := NewSessionID(raw)
	if err != nil {
		test.Fatalf("session id %q: %v", raw, err)
	}
	return sessionID
}

func seedAccount(test *testing.T, store *stubStore, userID ledger.UserID, watchSeconds int64, level int) {
	test.Helper()
	store.nextAccountSequence++
	store.accounts[userID.String()] = &ledger.Account{
		AccountID:         fmt.Sprintf("acct-%03d", store.nextAccountSequence),
		UserID:            userID,
		TotalWatchSeconds: watchSeconds,
		Level:             level,
	}
}

func seedActiveSession(test *testing.T, store *stubStore, sessionID SessionID, userID ledger.UserID, contentID ContentID, watchedSeconds int64, tick int64) {
	test.Helper()
	store.sessions[sessionID.String()] = &WatchSession{
		ID:                   sessionID,
		UserID:               userID,
		ContentID:            contentID,
		Status:               StatusActive,
		StartUnixUTC:         1_700_000_000,
		LastHeartbeatUnixUTC: 1_700_000_000,
		WatchedSeconds:       watchedSeconds,
		LastAppliedTick:      tick,
	}
}

func standardPolicy() earnings.RewardPolicy {
	return earnings.RewardPolicy{
		TotalRewardCoins:    100,
		DurationSeconds:     600,
		OwnerRateMillicents: 2,
	}
}

func fixedClock(at int64) func() int64 {
	return func() int64 { return at }
}
