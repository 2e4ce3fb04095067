package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Coins is a signed ledger amount in whole coins.
type Coins int64

// Int64 returns the raw amount.
func (amount Coins) Int64() int64 {
	return int64(amount)
}

// PositiveCoins is a strictly positive coin amount used as operation input.
type PositiveCoins int64

// NewPositiveCoins validates an amount and ensures it is strictly positive.
func NewPositiveCoins(raw int64) (PositiveCoins, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidCoins)
	}
	return PositiveCoins(raw), nil
}

// ToCoins returns the amount as a signed ledger value.
func (amount PositiveCoins) ToCoins() Coins {
	return Coins(amount)
}

// Negated returns the amount as a debit.
func (amount PositiveCoins) Negated() Coins {
	return -Coins(amount)
}

// UserID identifies an account owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IdempotencyKey scopes duplicate detection.
type IdempotencyKey struct {
	value string
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return IdempotencyKey{}, fmt.Errorf("%w: empty value", ErrInvalidIdempotencyKey)
	}
	return IdempotencyKey{value: trimmed}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// MetadataJSON stores arbitrary request metadata.
type MetadataJSON struct {
	value string
}

// NewMetadataJSON validates metadata (defaulting to "{}" for empty inputs).
func NewMetadataJSON(raw string) (MetadataJSON, error) {
	normalized := strings.TrimSpace(raw)
	if normalized == "" {
		normalized = "{}"
	}
	if !json.Valid([]byte(normalized)) {
		return MetadataJSON{}, fmt.Errorf("%w: must be valid json", ErrInvalidMetadataJSON)
	}
	return MetadataJSON{value: normalized}, nil
}

// String returns the normalized JSON blob.
func (metadata MetadataJSON) String() string {
	return metadata.value
}

// ReferralCode identifies the referrer side of a referral registration.
type ReferralCode struct {
	value string
}

// NewReferralCode validates and normalizes a referral code.
func NewReferralCode(raw string) (ReferralCode, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return ReferralCode{}, fmt.Errorf("%w: empty value", ErrInvalidReferralCode)
	}
	return ReferralCode{value: trimmed}, nil
}

// String returns the normalized code.
func (code ReferralCode) String() string {
	return code.value
}

// SessionRef ties a ledger entry back to the watch session that produced it.
type SessionRef struct {
	value string
}

// NewSessionRef validates a session reference.
func NewSessionRef(raw string) (SessionRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SessionRef{}, fmt.Errorf("%w: empty value", ErrInvalidSessionRef)
	}
	return SessionRef{value: trimmed}, nil
}

// String returns the referenced session id.
func (ref SessionRef) String() string {
	return ref.value
}

// EntryKind enumerates ledger entry kinds.
type EntryKind string

const (
	EntryEarning       EntryKind = "earning"
	EntryLevelBonus    EntryKind = "level_bonus"
	EntryReferralBonus EntryKind = "referral_bonus"
	EntryWithdrawal    EntryKind = "withdrawal"
)

// ParseEntryKind maps a stored kind back to its enum value.
func ParseEntryKind(raw string) (EntryKind, error) {
	switch EntryKind(raw) {
	case EntryEarning, EntryLevelBonus, EntryReferralBonus, EntryWithdrawal:
		return EntryKind(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEntryKind, raw)
}

// String returns the stored representation.
func (kind EntryKind) String() string {
	return string(kind)
}

// IsCredit reports whether entries of this kind carry positive amounts.
func (kind EntryKind) IsCredit() bool {
	return kind != EntryWithdrawal
}

// Entry is a single immutable line in the ledger.
type Entry struct {
	EntryID        string
	UserID         UserID
	Kind           EntryKind
	AmountCoins    Coins
	SessionRef     *SessionRef
	IdempotencyKey IdempotencyKey
	MetadataJSON   MetadataJSON
	CreatedUnixUTC int64
}

// Account is the cached per-user projection owned by the ledger and the
// session manager. BalanceCoins must always equal the sum of the user's
// ledger entries.
type Account struct {
	AccountID         string
	UserID            UserID
	BalanceCoins      Coins
	TotalWatchSeconds int64
	Level             int
	ReferralCode      ReferralCode
	ReferredBy        *UserID
	LastActiveUnixUTC int64
}

// Balance view for an account.
type Balance struct {
	TotalCoins Coins
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetOrCreateAccount(ctx context.Context, userID UserID) (Account, error)
	GetAccountForUpdate(ctx context.Context, userID UserID) (Account, error)
	FindAccountByReferralCode(ctx context.Context, code ReferralCode) (Account, error)
	SetReferredBy(ctx context.Context, userID UserID, referrer UserID) error
	InsertEntry(ctx context.Context, entry Entry) error
	AddToBalance(ctx context.Context, userID UserID, delta Coins) (Coins, error)
	SumEntries(ctx context.Context, userID UserID) (Coins, error)
	ListEntries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Entry, error)
	ListTopAccounts(ctx context.Context, limit int) ([]Account, error)
}
