package watch

import (
	"context"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/earnings"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
)

// SessionID identifies one watch session.
type SessionID struct {
	value string
}

// NewSessionID validates and normalizes a session id.
func NewSessionID(raw string) (SessionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SessionID{}, fmt.Errorf("%w: empty value", ErrInvalidSessionID)
	}
	return SessionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SessionID) String() string {
	return id.value
}

// Ref converts the session id into a ledger entry reference.
func (id SessionID) Ref() ledger.SessionRef {
	ref, _ := ledger.NewSessionRef(id.value)
	return ref
}

// ContentID identifies a catalog item.
type ContentID struct {
	value string
}

// NewContentID validates and normalizes a content id.
func NewContentID(raw string) (ContentID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ContentID{}, fmt.Errorf("%w: empty value", ErrInvalidContentID)
	}
	return ContentID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ContentID) String() string {
	return id.value
}

// SessionStatus defines the session lifecycle. Ended and Stale are terminal
// and immutable; Stale is reached only through the reaper.
type SessionStatus string

const (
	StatusActive SessionStatus = "active"
	StatusEnded  SessionStatus = "ended"
	StatusStale  SessionStatus = "stale"
)

// ParseSessionStatus maps a stored status back to its enum value.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	switch SessionStatus(raw) {
	case StatusActive, StatusEnded, StatusStale:
		return SessionStatus(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSessionStatus, raw)
}

// String returns the stored representation.
func (status SessionStatus) String() string {
	return string(status)
}

// Terminal reports whether the status permits no further transitions.
func (status SessionStatus) Terminal() bool {
	return status == StatusEnded || status == StatusStale
}

// Scope selects the single-active-session uniqueness policy.
type Scope string

const (
	// ScopePerContent allows one active session per (user, content) pair.
	ScopePerContent Scope = "per_content"
	// ScopePerUser allows one active session per user across all content.
	ScopePerUser Scope = "per_user"
)

// ParseScope maps a configuration value to a Scope.
func ParseScope(raw string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopePerContent:
		return ScopePerContent, nil
	case ScopePerUser:
		return ScopePerUser, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, raw)
}

// WatchSession is one continuous viewing attempt. Accumulated totals only
// ever grow while the session is active; rows are retained after
// finalization for audit.
type WatchSession struct {
	ID                     SessionID
	UserID                 ledger.UserID
	ContentID              ContentID
	Status                 SessionStatus
	StartUnixUTC           int64
	LastHeartbeatUnixUTC   int64
	WatchedSeconds         int64
	EarnedCoins            ledger.Coins
	OwnerRevenueMillicents int64
	LastAppliedTick        int64
}

// SessionProgress carries the cumulative totals written by one update tick.
type SessionProgress struct {
	WatchedSeconds         int64
	EarnedCoins            ledger.Coins
	OwnerRevenueMillicents int64
	LastHeartbeatUnixUTC   int64
	LastAppliedTick        int64
}

// PolicyProvider resolves reward policies from the content catalog. The
// catalog is an external collaborator; reads are not synchronized with
// session mutations.
type PolicyProvider interface {
	RewardPolicy(ctx context.Context, contentID ContentID) (earnings.RewardPolicy, error)
}

// Store is the persistence contract used by Service. Session and ledger
// mutations issued inside one WithTx callback commit or roll back together.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateSession(ctx context.Context, session WatchSession) error
	GetSessionForUpdate(ctx context.Context, sessionID SessionID) (WatchSession, error)
	FindActiveSession(ctx context.Context, userID ledger.UserID, contentID ContentID, scope Scope) (WatchSession, error)
	ApplySessionProgress(ctx context.Context, sessionID SessionID, progress SessionProgress) error
	UpdateSessionStatus(ctx context.Context, sessionID SessionID, from SessionStatus, to SessionStatus) error
	ListStaleSessions(ctx context.Context, heartbeatBeforeUnixUTC int64, limit int) ([]WatchSession, error)
	GetOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error)
	GetAccountForUpdate(ctx context.Context, userID ledger.UserID) (ledger.Account, error)
	AddWatchProgress(ctx context.Context, userID ledger.UserID, deltaSeconds int64, nowUnixUTC int64) error
	SetAccountLevel(ctx context.Context, userID ledger.UserID, level int) error
	InsertLedgerEntry(ctx context.Context, entry ledger.Entry) error
	AddToBalance(ctx context.Context, userID ledger.UserID, delta ledger.Coins) (ledger.Coins, error)
}
