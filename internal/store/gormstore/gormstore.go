package gormstore

import (
	"context"
	"errors"
	"time"

	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/earnings"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/watch"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectBalance   = "balance"
	errorSubjectContent   = "content"
	errorSubjectEntry     = "entry"
	errorSubjectSession   = "session"
	errorCodeCreate       = "create"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeSum          = "sum"
	errorCodeUpdate       = "update"
	errorCodeUpdateStatus = "update_status"
)

// Store holds the shared GORM handle. It exposes the two domain-facing
// views through Ledger and Watch; both views route every mutation through
// the same methods, so a watch transaction and a ledger transaction over the
// same *Store see one database.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ledger adapts the store to the ledger persistence contract.
func (store *Store) Ledger() ledger.Store {
	return ledgerView{store: store}
}

// Watch adapts the store to the session-manager persistence contract.
func (store *Store) Watch() watch.Store {
	return watchView{store: store}
}

func (store *Store) withTx(ctx context.Context, fn func(txStore *Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(&Store{db: transaction})
	})
}

// Migrate creates or upgrades the schema.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(&Account{}, &LedgerEntry{}, &WatchSession{}, &Content{})
}

func (store *Store) getOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"user_id": clause.Expr{SQL: "excluded.user_id"},
			}),
		}).
		FirstOrCreate(&account, Account{UserID: userID.String()}).Error
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return mapAccount(account)
}

func (store *Store) getAccountForUpdate(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID.String()).
		Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, ledger.ErrAccountNotFound)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeGet, err)
	}
	return mapAccount(account)
}

func (store *Store) findAccountByReferralCode(ctx context.Context, code ledger.ReferralCode) (ledger.Account, error) {
	var account Account
	err := store.db.WithContext(ctx).
		Where("referral_code = ?", code.String()).
		Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, ledger.ErrUnknownReferralCode)
		}
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return mapAccount(account)
}

func (store *Store) setReferredBy(ctx context.Context, userID ledger.UserID, referrer ledger.UserID) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ? AND referred_by IS NULL", userID.String()).
		Update("referred_by", referrer.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := store.db.WithContext(ctx).Model(&Account{}).Where("user_id = ?", userID.String()).Count(&count).Error; err != nil {
			return wrapStoreError(errorSubjectAccount, errorCodeUpdate, err)
		}
		if count == 0 {
			return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
		}
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAlreadyReferred)
	}
	return nil
}

func (store *Store) insertEntry(ctx context.Context, entryInput ledger.Entry) error {
	var sessionRef *string
	if entryInput.SessionRef != nil {
		value := entryInput.SessionRef.String()
		sessionRef = &value
	}
	entry := LedgerEntry{
		EntryID:        entryInput.EntryID,
		UserID:         entryInput.UserID.String(),
		Kind:           entryInput.Kind.String(),
		AmountCoins:    int64(entryInput.AmountCoins),
		SessionRef:     sessionRef,
		IdempotencyKey: entryInput.IdempotencyKey.String(),
		Metadata:       datatypesJSON(entryInput.MetadataJSON.String()),
		CreatedAt:      time.Unix(entryInput.CreatedUnixUTC, 0).UTC(),
	}
	if entry.CreatedAt.IsZero() || entryInput.CreatedUnixUTC == 0 {
		entry.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&entry).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectEntry, errorCodeDuplicate, ledger.ErrDuplicateEntry)
	}
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) addToBalance(ctx context.Context, userID ledger.UserID, delta ledger.Coins) (ledger.Coins, error) {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", userID.String()).
		Update("balance_coins", gorm.Expr("balance_coins + ?", int64(delta)))
	if result.Error != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	var account Account
	if err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&account).Error; err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeGet, err)
	}
	return ledger.Coins(account.BalanceCoins), nil
}

func (store *Store) sumEntries(ctx context.Context, userID ledger.UserID) (ledger.Coins, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(amount_coins),0) as total").
		Where("user_id = ?", userID.String()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return ledger.Coins(sum.Total), nil
}

func (store *Store) listEntries(ctx context.Context, userID ledger.UserID, beforeUnixUTC int64, limit int) ([]ledger.Entry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND created_at < ?", userID.String(), before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]ledger.Entry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) listTopAccounts(ctx context.Context, limit int) ([]ledger.Account, error) {
	var rows []Account
	err := store.db.WithContext(ctx).
		Order("total_watch_seconds DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAccount, errorCodeList, err)
	}
	accounts := make([]ledger.Account, 0, len(rows))
	for _, row := range rows {
		account, err := mapAccount(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}

func (store *Store) createSession(ctx context.Context, session watch.WatchSession) error {
	model := WatchSession{
		SessionID:              session.ID.String(),
		UserID:                 session.UserID.String(),
		ContentID:              session.ContentID.String(),
		Status:                 session.Status.String(),
		StartedAt:              time.Unix(session.StartUnixUTC, 0).UTC(),
		LastHeartbeatAt:        time.Unix(session.LastHeartbeatUnixUTC, 0).UTC(),
		WatchedSeconds:         session.WatchedSeconds,
		EarnedCoins:            int64(session.EarnedCoins),
		OwnerRevenueMillicents: session.OwnerRevenueMillicents,
		LastAppliedTick:        session.LastAppliedTick,
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectSession, errorCodeDuplicate, err)
	}
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeCreate, err)
	}
	return nil
}

func (store *Store) getSessionForUpdate(ctx context.Context, sessionID watch.SessionID) (watch.WatchSession, error) {
	var model WatchSession
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("session_id = ?", sessionID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeGet, watch.ErrSessionNotFound)
		}
		return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeGet, err)
	}
	return mapWatchSession(model)
}

func (store *Store) findActiveSession(ctx context.Context, userID ledger.UserID, contentID watch.ContentID, scope watch.Scope) (watch.WatchSession, error) {
	query := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND status = ?", userID.String(), watch.StatusActive.String())
	if scope == watch.ScopePerContent {
		query = query.Where("content_id = ?", contentID.String())
	}
	var model WatchSession
	err := query.Order("started_at DESC").Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeLookup, watch.ErrSessionNotFound)
		}
		return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeLookup, err)
	}
	return mapWatchSession(model)
}

func (store *Store) applySessionProgress(ctx context.Context, sessionID watch.SessionID, progress watch.SessionProgress) error {
	result := store.db.WithContext(ctx).
		Model(&WatchSession{}).
		Where("session_id = ?", sessionID.String()).
		Updates(map[string]interface{}{
			"watched_seconds":          progress.WatchedSeconds,
			"earned_coins":             int64(progress.EarnedCoins),
			"owner_revenue_millicents": progress.OwnerRevenueMillicents,
			"last_heartbeat_at":        time.Unix(progress.LastHeartbeatUnixUTC, 0).UTC(),
			"last_applied_tick":        progress.LastAppliedTick,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, watch.ErrSessionNotFound)
	}
	return nil
}

func (store *Store) updateSessionStatus(ctx context.Context, sessionID watch.SessionID, from watch.SessionStatus, to watch.SessionStatus) error {
	result := store.db.WithContext(ctx).
		Model(&WatchSession{}).
		Where("session_id = ? AND status = ?", sessionID.String(), from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectSession, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeUpdateStatus, watch.ErrSessionFinalized)
	}
	return nil
}

func (store *Store) listStaleSessions(ctx context.Context, heartbeatBeforeUnixUTC int64, limit int) ([]watch.WatchSession, error) {
	cutoff := time.Unix(heartbeatBeforeUnixUTC, 0).UTC()
	var rows []WatchSession
	err := store.db.WithContext(ctx).
		Where("status = ? AND last_heartbeat_at < ?", watch.StatusActive.String(), cutoff).
		Order("last_heartbeat_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, err)
	}
	sessions := make([]watch.WatchSession, 0, len(rows))
	for _, row := range rows {
		session, err := mapWatchSession(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (store *Store) addWatchProgress(ctx context.Context, userID ledger.UserID, deltaSeconds int64, nowUnixUTC int64) error {
	lastActive := time.Unix(nowUnixUTC, 0).UTC()
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", userID.String()).
		Updates(map[string]interface{}{
			"total_watch_seconds": gorm.Expr("total_watch_seconds + ?", deltaSeconds),
			"last_active_at":      lastActive,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

func (store *Store) setAccountLevel(ctx context.Context, userID ledger.UserID, level int) error {
	result := store.db.WithContext(ctx).
		Model(&Account{}).
		Where("user_id = ?", userID.String()).
		Update("level", level)
	if result.Error != nil {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectAccount, errorCodeUpdate, ledger.ErrAccountNotFound)
	}
	return nil
}

// RewardPolicy resolves the catalog entry for contentID. Inactive or missing
// content both surface as watch.ErrContentNotFound.
func (store *Store) RewardPolicy(ctx context.Context, contentID watch.ContentID) (earnings.RewardPolicy, error) {
	var content Content
	err := store.db.WithContext(ctx).
		Where("content_id = ? AND active", contentID.String()).
		Take(&content).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return earnings.RewardPolicy{}, wrapStoreError(errorSubjectContent, errorCodeLookup, watch.ErrContentNotFound)
		}
		return earnings.RewardPolicy{}, wrapStoreError(errorSubjectContent, errorCodeLookup, err)
	}
	policy := earnings.RewardPolicy{
		ContentID:               content.ContentID,
		TotalRewardCoins:        content.TotalRewardCoins,
		DurationSeconds:         content.DurationSeconds,
		RatePerSecondMillicoins: content.RatePerSecondMillicoins,
		OwnerRateMillicents:     content.OwnerRateMillicents,
	}
	if err := policy.Validate(); err != nil {
		return earnings.RewardPolicy{}, wrapStoreError(errorSubjectContent, errorCodeInvalid, err)
	}
	return policy, nil
}

// SaveContent upserts one catalog row. The catalog is managed out of band;
// this exists for seeding and tests.
func (store *Store) SaveContent(ctx context.Context, content Content) error {
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_id"}},
			UpdateAll: true,
		}).
		Create(&content).Error
	if err != nil {
		return wrapStoreError(errorSubjectContent, errorCodeCreate, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapAccount(row Account) (ledger.Account, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	referralCode, err := ledger.NewReferralCode(row.ReferralCode)
	if err != nil {
		return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
	}
	var referredBy *ledger.UserID
	if row.ReferredBy != nil {
		parsed, err := ledger.NewUserID(*row.ReferredBy)
		if err != nil {
			return ledger.Account{}, wrapStoreError(errorSubjectAccount, errorCodeInvalid, err)
		}
		referredBy = &parsed
	}
	var lastActive int64
	if row.LastActiveAt != nil {
		lastActive = row.LastActiveAt.Unix()
	}
	return ledger.Account{
		AccountID:         row.AccountID,
		UserID:            userID,
		BalanceCoins:      ledger.Coins(row.BalanceCoins),
		TotalWatchSeconds: row.TotalWatchSeconds,
		Level:             row.Level,
		ReferralCode:      referralCode,
		ReferredBy:        referredBy,
		LastActiveUnixUTC: lastActive,
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (ledger.Entry, error) {
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return ledger.Entry{}, err
	}
	kind, err := ledger.ParseEntryKind(row.Kind)
	if err != nil {
		return ledger.Entry{}, err
	}
	var sessionRef *ledger.SessionRef
	if row.SessionRef != nil {
		parsed, err := ledger.NewSessionRef(*row.SessionRef)
		if err != nil {
			return ledger.Entry{}, err
		}
		sessionRef = &parsed
	}
	idempotencyKey, err := ledger.NewIdempotencyKey(row.IdempotencyKey)
	if err != nil {
		return ledger.Entry{}, err
	}
	metadata, err := ledger.NewMetadataJSON(string(row.Metadata))
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		EntryID:        row.EntryID,
		UserID:         userID,
		Kind:           kind,
		AmountCoins:    ledger.Coins(row.AmountCoins),
		SessionRef:     sessionRef,
		IdempotencyKey: idempotencyKey,
		MetadataJSON:   metadata,
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func mapWatchSession(row WatchSession) (watch.WatchSession, error) {
	sessionID, err := watch.NewSessionID(row.SessionID)
	if err != nil {
		return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
	}
	userID, err := ledger.NewUserID(row.UserID)
	if err != nil {
		return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
	}
	contentID, err := watch.NewContentID(row.ContentID)
	if err != nil {
		return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
	}
	status, err := watch.ParseSessionStatus(row.Status)
	if err != nil {
		return watch.WatchSession{}, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
	}
	return watch.WatchSession{
		ID:                     sessionID,
		UserID:                 userID,
		ContentID:              contentID,
		Status:                 status,
		StartUnixUTC:           row.StartedAt.Unix(),
		LastHeartbeatUnixUTC:   row.LastHeartbeatAt.Unix(),
		WatchedSeconds:         row.WatchedSeconds,
		EarnedCoins:            ledger.Coins(row.EarnedCoins),
		OwnerRevenueMillicents: row.OwnerRevenueMillicents,
		LastAppliedTick:        row.LastAppliedTick,
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
