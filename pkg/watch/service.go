package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/earnings"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
)

// Service orchestrates the watch-session lifecycle over a Store.
//
// Every balance-affecting transition runs inside one store transaction that
// covers both the session mutation and the matching ledger writes, so a
// caller can never observe one without the other.
type Service struct {
	store    Store
	policies PolicyProvider
	nowFn    func() int64
	scope    Scope
	logger   OperationLogger
}

// NewService wires a Service.
func NewService(store Store, policies PolicyProvider, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if policies == nil {
		return nil, fmt.Errorf("%w: policy provider dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, policies: policies, nowFn: now, scope: ScopePerContent}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// StartResult reports a session start, including the idempotent reuse of an
// already-active session.
type StartResult struct {
	SessionID SessionID
	Policy    earnings.RewardPolicy
	Reused    bool
}

// Start opens a watch session for (user, content). When an active session
// already exists under the configured scope, its id is returned instead of
// creating a second one.
func (service *Service) Start(ctx context.Context, userID ledger.UserID, contentID ContentID) (StartResult, error) {
	var result StartResult
	policy, err := service.policies.RewardPolicy(ctx, contentID)
	if err != nil {
		service.logStart(ctx, result, contentID, userID, err)
		return StartResult{}, err
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		existing, err := transactionStore.FindActiveSession(ctx, userID, contentID, service.scope)
		if err == nil {
			result = StartResult{SessionID: existing.ID, Policy: policy, Reused: true}
			return nil
		}
		if !isNotFound(err) {
			return err
		}
		if _, err := transactionStore.GetOrCreateAccount(ctx, userID); err != nil {
			return err
		}
		sessionID, err := NewSessionID(uuid.NewString())
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		session := WatchSession{
			ID:                   sessionID,
			UserID:               userID,
			ContentID:            contentID,
			Status:               StatusActive,
			StartUnixUTC:         nowUnixUTC,
			LastHeartbeatUnixUTC: nowUnixUTC,
		}
		if err := transactionStore.CreateSession(ctx, session); err != nil {
			return err
		}
		result = StartResult{SessionID: sessionID, Policy: policy}
		return nil
	})
	service.logStart(ctx, result, contentID, userID, operationError)
	return result, operationError
}

// UpdateResult reports one applied progress tick.
type UpdateResult struct {
	SessionID       SessionID
	EarnedCoins     ledger.Coins
	OwnerMillicents int64
	BalanceCoins    ledger.Coins
	WatchedSeconds  int64
}

// Update applies one client progress report. Ticks must be strictly
// increasing per session; a replayed or out-of-order tick fails with
// ErrStaleTick and mutates nothing. The session progress, the earning ledger
// entry, and the account counters commit in one transaction.
func (service *Service) Update(ctx context.Context, sessionID SessionID, callerUserID ledger.UserID, reportedSeconds int64, tick int64) (UpdateResult, error) {
	var result UpdateResult
	if tick <= 0 {
		err := fmt.Errorf("%w: tick must be positive", ErrInvalidTick)
		service.logUpdate(ctx, sessionID, callerUserID, tick, result, err)
		return UpdateResult{}, err
	}
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.UserID != callerUserID {
			return ErrForbidden
		}
		if session.Status != StatusActive {
			return fmt.Errorf("%w: status %s", ErrSessionNotActive, session.Status)
		}
		if tick <= session.LastAppliedTick {
			return fmt.Errorf("%w: tick %d already applied (last %d)", ErrStaleTick, tick, session.LastAppliedTick)
		}
		account, err := transactionStore.GetAccountForUpdate(ctx, session.UserID)
		if err != nil {
			return err
		}
		policy, err := service.policies.RewardPolicy(ctx, session.ContentID)
		if err != nil {
			return err
		}
		delta, err := earnings.Compute(policy, session.WatchedSeconds, reportedSeconds, account.Level)
		if err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		progress := SessionProgress{
			WatchedSeconds:         reportedSeconds,
			EarnedCoins:            session.EarnedCoins + ledger.Coins(delta.UserCoins),
			OwnerRevenueMillicents: session.OwnerRevenueMillicents + delta.OwnerMillicents,
			LastHeartbeatUnixUTC:   nowUnixUTC,
			LastAppliedTick:        tick,
		}
		if err := transactionStore.ApplySessionProgress(ctx, sessionID, progress); err != nil {
			return err
		}
		if err := transactionStore.AddWatchProgress(ctx, session.UserID, reportedSeconds-session.WatchedSeconds, nowUnixUTC); err != nil {
			return err
		}
		balance := account.BalanceCoins
		if delta.UserCoins > 0 {
			sessionRef := sessionID.Ref()
			idempotencyKey, err := earningKey(sessionID, tick)
			if err != nil {
				return err
			}
			metadata, err := ledger.NewMetadataJSON(fmt.Sprintf(`{"tick":%d,"content_id":%q}`, tick, session.ContentID.String()))
			if err != nil {
				return err
			}
			entry := ledger.Entry{
				UserID:         session.UserID,
				Kind:           ledger.EntryEarning,
				AmountCoins:    ledger.Coins(delta.UserCoins),
				SessionRef:     &sessionRef,
				IdempotencyKey: idempotencyKey,
				MetadataJSON:   metadata,
				CreatedUnixUTC: nowUnixUTC,
			}
			if err := transactionStore.InsertLedgerEntry(ctx, entry); err != nil {
				return err
			}
			balance, err = transactionStore.AddToBalance(ctx, session.UserID, ledger.Coins(delta.UserCoins))
			if err != nil {
				return err
			}
		}
		result = UpdateResult{
			SessionID:       sessionID,
			EarnedCoins:     ledger.Coins(delta.UserCoins),
			OwnerMillicents: delta.OwnerMillicents,
			BalanceCoins:    balance,
			WatchedSeconds:  reportedSeconds,
		}
		return nil
	})
	service.logUpdate(ctx, sessionID, callerUserID, tick, result, operationError)
	return result, operationError
}

// EndResult reports a session finalization.
type EndResult struct {
	SessionID       SessionID
	Status          SessionStatus
	EarnedCoins     ledger.Coins
	OwnerMillicents int64
	WatchedSeconds  int64
	Level           int
	LeveledUp       bool
	BonusCoins      ledger.Coins
}

// End finalizes a session on behalf of its owner. Ending an already-ended or
// stale session succeeds without further effect.
func (service *Service) End(ctx context.Context, sessionID SessionID, callerUserID ledger.UserID) (EndResult, error) {
	var result EndResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if session.UserID != callerUserID {
			return ErrForbidden
		}
		if session.Status.Terminal() {
			account, err := transactionStore.GetAccountForUpdate(ctx, session.UserID)
			if err != nil {
				return err
			}
			result = endResultFromSession(session, account.Level)
			return nil
		}
		finalized, err := service.finalize(ctx, transactionStore, session, StatusEnded)
		if err != nil {
			return err
		}
		result = finalized
		return nil
	})
	service.logEnd(ctx, operationEnd, sessionID, callerUserID, result, operationError)
	return result, operationError
}

// finalize moves an active session into a terminal status and fires the
// leveling trigger. The status change is a compare-and-swap: callers racing
// on the same session see ErrSessionFinalized from the store and exactly one
// of them proceeds past this point.
func (service *Service) finalize(ctx context.Context, transactionStore Store, session WatchSession, to SessionStatus) (EndResult, error) {
	if err := transactionStore.UpdateSessionStatus(ctx, session.ID, StatusActive, to); err != nil {
		return EndResult{}, err
	}
	account, err := transactionStore.GetAccountForUpdate(ctx, session.UserID)
	if err != nil {
		return EndResult{}, err
	}
	session.Status = to
	result := endResultFromSession(session, account.Level)
	newLevel := LevelForWatchSeconds(account.TotalWatchSeconds)
	if newLevel <= account.Level {
		return result, nil
	}
	if err := transactionStore.SetAccountLevel(ctx, session.UserID, newLevel); err != nil {
		return EndResult{}, err
	}
	bonus := ledger.Coins(LevelBonusCoins(newLevel))
	sessionRef := session.ID.Ref()
	idempotencyKey, err := levelBonusKey(session.ID)
	if err != nil {
		return EndResult{}, err
	}
	metadata, err := ledger.NewMetadataJSON(fmt.Sprintf(`{"level":%d}`, newLevel))
	if err != nil {
		return EndResult{}, err
	}
	entry := ledger.Entry{
		UserID:         session.UserID,
		Kind:           ledger.EntryLevelBonus,
		AmountCoins:    bonus,
		SessionRef:     &sessionRef,
		IdempotencyKey: idempotencyKey,
		MetadataJSON:   metadata,
		CreatedUnixUTC: service.nowFn(),
	}
	if err := transactionStore.InsertLedgerEntry(ctx, entry); err != nil {
		return EndResult{}, err
	}
	if _, err := transactionStore.AddToBalance(ctx, session.UserID, bonus); err != nil {
		return EndResult{}, err
	}
	result.Level = newLevel
	result.LeveledUp = true
	result.BonusCoins = bonus
	return result, nil
}

func endResultFromSession(session WatchSession, level int) EndResult {
	return EndResult{
		SessionID:       session.ID,
		Status:          session.Status,
		EarnedCoins:     session.EarnedCoins,
		OwnerMillicents: session.OwnerRevenueMillicents,
		WatchedSeconds:  session.WatchedSeconds,
		Level:           level,
	}
}

func (service *Service) logStart(ctx context.Context, result StartResult, contentID ContentID, userID ledger.UserID, operationError error) {
	if service.logger == nil {
		return
	}
	service.logger.LogOperation(ctx, OperationLog{
		Operation: operationStart,
		SessionID: result.SessionID,
		UserID:    userID,
		ContentID: contentID,
		Status:    operationStatus(operationError),
		Error:     operationError,
	})
}

func (service *Service) logUpdate(ctx context.Context, sessionID SessionID, userID ledger.UserID, tick int64, result UpdateResult, operationError error) {
	if service.logger == nil {
		return
	}
	service.logger.LogOperation(ctx, OperationLog{
		Operation:      operationUpdate,
		SessionID:      sessionID,
		UserID:         userID,
		Tick:           tick,
		WatchedSeconds: result.WatchedSeconds,
		EarnedCoins:    result.EarnedCoins,
		Status:         operationStatus(operationError),
		Error:          operationError,
	})
}

func (service *Service) logEnd(ctx context.Context, operation string, sessionID SessionID, userID ledger.UserID, result EndResult, operationError error) {
	if service.logger == nil {
		return
	}
	service.logger.LogOperation(ctx, OperationLog{
		Operation:      operation,
		SessionID:      sessionID,
		UserID:         userID,
		WatchedSeconds: result.WatchedSeconds,
		EarnedCoins:    result.EarnedCoins,
		Status:         operationStatus(operationError),
		Error:          operationError,
	})
}

func operationStatus(operationError error) string {
	if operationError != nil {
		return operationStatusError
	}
	return operationStatusOK
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

func earningKey(sessionID SessionID, tick int64) (ledger.IdempotencyKey, error) {
	return ledger.NewIdempotencyKey(idempotencyPrefixEarning + idempotencyKeyDelimiter + sessionID.String() + idempotencyKeyDelimiter + fmt.Sprintf("%d", tick))
}

func levelBonusKey(sessionID SessionID) (ledger.IdempotencyKey, error) {
	return ledger.NewIdempotencyKey(idempotencyPrefixLevelBonus + idempotencyKeyDelimiter + sessionID.String())
}
