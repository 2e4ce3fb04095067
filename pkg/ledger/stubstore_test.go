package ledger

import (
	"context"
	"fmt"
	"testing"
)

// stubStore is an in-memory Store with injectable failures. Transactions are
// not rolled back; tests that exercise partial failures only assert on the
// returned error.
type stubStore struct {
	accounts      map[string]*Account
	entries       []Entry
	usedKeys      map[string]bool
	referralCodes map[string]string

	getAccountError     error
	getForUpdateError   error
	findReferralError   error
	setReferredError    error
	insertEntryError    error
	addToBalanceError   error
	sumEntriesError     error
	listEntriesError    error
	listTopError        error
	sumEntriesOverride  *Coins
	nextAccountSequence int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		accounts:      map[string]*Account{},
		usedKeys:      map[string]bool{},
		referralCodes: map[string]string{},
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	return fn(ctx, store)
}

func (store *stubStore) GetOrCreateAccount(_ context.Context, userID UserID) (Account, error) {
	if store.getAccountError != nil {
		return Account{}, store.getAccountError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		store.nextAccountSequence++
		code, _ := NewReferralCode(fmt.Sprintf("REF%03d", store.nextAccountSequence))
		account = &Account{
			AccountID:    fmt.Sprintf("acct-%03d", store.nextAccountSequence),
			UserID:       userID,
			Level:        1,
			ReferralCode: code,
		}
		store.accounts[userID.String()] = account
		store.referralCodes[code.String()] = userID.String()
	}
	return *account, nil
}

func (store *stubStore) GetAccountForUpdate(ctx context.Context, userID UserID) (Account, error) {
	if store.getForUpdateError != nil {
		return Account{}, store.getForUpdateError
	}
	return store.GetOrCreateAccount(ctx, userID)
}

func (store *stubStore) FindAccountByReferralCode(_ context.Context, code ReferralCode) (Account, error) {
	if store.findReferralError != nil {
		return Account{}, store.findReferralError
	}
	owner, ok := store.referralCodes[code.String()]
	if !ok {
		return Account{}, ErrUnknownReferralCode
	}
	return *store.accounts[owner], nil
}

func (store *stubStore) SetReferredBy(_ context.Context, userID UserID, referrer UserID) error {
	if store.setReferredError != nil {
		return store.setReferredError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		return ErrAccountNotFound
	}
	if account.ReferredBy != nil {
		return ErrAlreadyReferred
	}
	account.ReferredBy = &referrer
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry Entry) error {
	if store.insertEntryError != nil {
		return store.insertEntryError
	}
	if store.usedKeys[entry.IdempotencyKey.String()] {
		return ErrDuplicateEntry
	}
	store.usedKeys[entry.IdempotencyKey.String()] = true
	entry.EntryID = fmt.Sprintf("entry-%03d", len(store.entries)+1)
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) AddToBalance(_ context.Context, userID UserID, delta Coins) (Coins, error) {
	if store.addToBalanceError != nil {
		return 0, store.addToBalanceError
	}
	account, ok := store.accounts[userID.String()]
	if !ok {
		return 0, ErrAccountNotFound
	}
	account.BalanceCoins += delta
	return account.BalanceCoins, nil
}

func (store *stubStore) SumEntries(_ context.Context, userID UserID) (Coins, error) {
	if store.sumEntriesError != nil {
		return 0, store.sumEntriesError
	}
	if store.sumEntriesOverride != nil {
		return *store.sumEntriesOverride, nil
	}
	var total Coins
	for _, entry := range store.entries {
		if entry.UserID == userID {
			total += entry.AmountCoins
		}
	}
	return total, nil
}

func (store *stubStore) ListEntries(_ context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	if store.listEntriesError != nil {
		return nil, store.listEntriesError
	}
	var entries []Entry
	for _, entry := range store.entries {
		if entry.UserID != userID {
			continue
		}
		if beforeUnixUTC != 0 && entry.CreatedUnixUTC >= beforeUnixUTC {
			continue
		}
		entries = append(entries, entry)
		if len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (store *stubStore) ListTopAccounts(_ context.Context, limit int) ([]Account, error) {
	if store.listTopError != nil {
		return nil, store.listTopError
	}
	accounts := make([]Account, 0, len(store.accounts))
	for _, account := range store.accounts {
		accounts = append(accounts, *account)
	}
	if len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (store *stubStore) seedBalance(test *testing.T, userID UserID, balance Coins) {
	test.Helper()
	if _, err := store.GetOrCreateAccount(context.Background(), userID); err != nil {
		test.Fatalf("seed account: %v", err)
	}
	store.accounts[userID.String()].BalanceCoins = balance
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1700000000 }, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) UserID {
	test.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		test.Fatalf("user id %q: %v", raw, err)
	}
	return userID
}

func mustPositiveCoins(test *testing.T, raw int64) PositiveCoins {
	test.Helper()
	amount, err := NewPositiveCoins(raw)
	if err != nil {
		test.Fatalf("coins %d: %v", raw, err)
	}
	return amount
}

func mustIdempotencyKey(test *testing.T, raw string) IdempotencyKey {
	test.Helper()
	key, err := NewIdempotencyKey(raw)
	if err != nil {
		test.Fatalf("idempotency key %q: %v", raw, err)
	}
	return key
}

func mustMetadata(test *testing.T, raw string) MetadataJSON {
	test.Helper()
	metadata, err := NewMetadataJSON(raw)
	if err != nil {
		test.Fatalf("metadata %q: %v", raw, err)
	}
	return metadata
}

func mustReferralCode(test *testing.T, raw string) ReferralCode {
	test.Helper()
	code, err := NewReferralCode(raw)
	if err != nil {
		test.Fatalf("referral code %q: %v", raw, err)
	}
	return code
}

func mustSessionRef(test *testing.T, raw string) SessionRef {
	test.Helper()
	ref, err := NewSessionRef(raw)
	if err != nil {
		test.Fatalf("session ref %q: %v", raw, err)
	}
	return ref
}

func paypalMethod() PayoutMethod {
	return PayoutMethod{Kind: PayoutPaypal, PaypalEmail: "user@example.com"}
}
