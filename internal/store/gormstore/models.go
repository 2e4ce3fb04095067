package gormstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table. One row per user; the cached
// balance and watch totals are maintained by the store mutators.
type Account struct {
	AccountID         string     `gorm:"type:uuid;primaryKey"`
	UserID            string     `gorm:"not null;uniqueIndex:uniq_accounts_user"`
	BalanceCoins      int64      `gorm:"not null;default:0"`
	TotalWatchSeconds int64      `gorm:"not null;default:0"`
	Level             int        `gorm:"not null;default:1"`
	ReferralCode      string     `gorm:"not null;uniqueIndex:uniq_accounts_referral_code"`
	ReferredBy        *string    `gorm:""`
	LastActiveAt      *time.Time `gorm:""`
	CreatedAt         time.Time  `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	if account.ReferralCode == "" {
		account.ReferralCode = newReferralCode()
	}
	if account.Level == 0 {
		account.Level = 1
	}
	return nil
}

// newReferralCode derives a short shareable code. Uniqueness is enforced by
// the index; uuid entropy makes collisions practically unreachable.
func newReferralCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "REF" + raw[:8]
}

// LedgerEntry mirrors the ledger_entries table.
type LedgerEntry struct {
	EntryID        string         `gorm:"type:uuid;primaryKey"`
	UserID         string         `gorm:"not null;index:idx_ledger_user_created,priority:1"`
	Kind           string         `gorm:"not null"`
	AmountCoins    int64          `gorm:"not null"`
	SessionRef     *string        `gorm:"index:idx_ledger_session"`
	IdempotencyKey string         `gorm:"not null;uniqueIndex:uniq_ledger_idempotency_key"`
	Metadata       datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null;index:idx_ledger_user_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// WatchSession mirrors the watch_sessions table. The composite status +
// heartbeat index serves the reaper scan.
type WatchSession struct {
	SessionID              string    `gorm:"type:uuid;primaryKey"`
	UserID                 string    `gorm:"not null;index:idx_sessions_user_status,priority:1"`
	ContentID              string    `gorm:"not null;index:idx_sessions_content"`
	Status                 string    `gorm:"not null;index:idx_sessions_user_status,priority:2;index:idx_sessions_status_heartbeat,priority:1"`
	StartedAt              time.Time `gorm:"not null"`
	LastHeartbeatAt        time.Time `gorm:"not null;index:idx_sessions_status_heartbeat,priority:2"`
	WatchedSeconds         int64     `gorm:"not null;default:0"`
	EarnedCoins            int64     `gorm:"not null;default:0"`
	OwnerRevenueMillicents int64     `gorm:"not null;default:0"`
	LastAppliedTick        int64     `gorm:"not null;default:0"`
	UpdatedAt              time.Time `gorm:"not null"`
}

func (WatchSession) TableName() string { return "watch_sessions" }

// Content mirrors the content catalog table consumed by the policy provider.
type Content struct {
	ContentID               string    `gorm:"primaryKey"`
	Title                   string    `gorm:"not null"`
	TotalRewardCoins        int64     `gorm:"not null;default:0"`
	DurationSeconds         int64     `gorm:"not null"`
	RatePerSecondMillicoins int64     `gorm:"not null;default:0"`
	OwnerRateMillicents     int64     `gorm:"not null;default:0"`
	Active                  bool      `gorm:"not null;default:true"`
	CreatedAt               time.Time `gorm:"not null"`
}

func (Content) TableName() string { return "contents" }
