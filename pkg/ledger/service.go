package ledger

import (
	"context"
	"fmt"
)

// Service contains the domain logic over a Store.
//
// Every balance-affecting operation appends an immutable entry and adjusts
// the cached account balance inside one store transaction, so the cached
// projection stays recomputable from the entry stream.
type Service struct {
	store  Store
	nowFn  func() int64
	logger OperationLogger
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Credit appends a positive entry of the given kind and bumps the cached
// balance. Replays with the same idempotency key fail with ErrDuplicateEntry
// and leave the balance untouched.
func (service *Service) Credit(ctx context.Context, userID UserID, amount PositiveCoins, kind EntryKind, sessionRef *SessionRef, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	operationError := service.creditTx(ctx, service.store, userID, amount, kind, sessionRef, idempotencyKey, metadata)
	service.logOperation(ctx, OperationLog{
		Operation:      operationCredit,
		UserID:         userID,
		Kind:           kind,
		Amount:         amount.ToCoins(),
		SessionRef:     sessionRef,
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	return operationError
}

func (service *Service) creditTx(ctx context.Context, store Store, userID UserID, amount PositiveCoins, kind EntryKind, sessionRef *SessionRef, idempotencyKey IdempotencyKey, metadata MetadataJSON) error {
	if !kind.IsCredit() {
		return fmt.Errorf("%w: %s is not a credit kind", ErrInvalidEntryKind, kind)
	}
	return store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if _, err := transactionStore.GetOrCreateAccount(ctx, userID); err != nil {
			return err
		}
		entry := Entry{
			UserID:         userID,
			Kind:           kind,
			AmountCoins:    amount.ToCoins(),
			SessionRef:     sessionRef,
			IdempotencyKey: idempotencyKey,
			MetadataJSON:   metadata,
			CreatedUnixUTC: service.nowFn(),
		}
		if err := transactionStore.InsertEntry(ctx, entry); err != nil {
			return err
		}
		_, err := transactionStore.AddToBalance(ctx, userID, amount.ToCoins())
		return err
	})
}

// Withdraw debits the user's balance for a payout request. The payout method
// must already be validated at the boundary; it is recorded as entry metadata
// for the payout collaborator to act on.
func (service *Service) Withdraw(ctx context.Context, userID UserID, amount PositiveCoins, method PayoutMethod, idempotencyKey IdempotencyKey) error {
	operationError := service.withdrawTx(ctx, userID, amount, method, idempotencyKey)
	service.logOperation(ctx, OperationLog{
		Operation:      operationWithdraw,
		UserID:         userID,
		Kind:           EntryWithdrawal,
		Amount:         amount.Negated(),
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	return operationError
}

func (service *Service) withdrawTx(ctx context.Context, userID UserID, amount PositiveCoins, method PayoutMethod, idempotencyKey IdempotencyKey) error {
	if amount.ToCoins().Int64() < MinWithdrawalCoins {
		return fmt.Errorf("%w: minimum is %d coins", ErrBelowMinimumWithdrawal, MinWithdrawalCoins)
	}
	metadata, err := method.Metadata()
	if err != nil {
		return err
	}
	return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if account.BalanceCoins < amount.ToCoins() {
			return ErrInsufficientBalance
		}
		entry := Entry{
			UserID:         userID,
			Kind:           EntryWithdrawal,
			AmountCoins:    amount.Negated(),
			IdempotencyKey: idempotencyKey,
			MetadataJSON:   metadata,
			CreatedUnixUTC: service.nowFn(),
		}
		if err := transactionStore.InsertEntry(ctx, entry); err != nil {
			return err
		}
		_, err = transactionStore.AddToBalance(ctx, userID, amount.Negated())
		return err
	})
}

// ReferralResult reports a successful referral registration.
type ReferralResult struct {
	ReferrerUserID UserID
	BonusCoins     Coins
}

// ReferralBonus resolves a referral code and credits both sides of the
// referral in one transaction. An unresolvable code fails with
// ErrUnknownReferralCode; registration collaborators treat that as a warning,
// not a failure.
func (service *Service) ReferralBonus(ctx context.Context, newUserID UserID, code ReferralCode, idempotencyKey IdempotencyKey) (ReferralResult, error) {
	var result ReferralResult
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		referrer, err := transactionStore.FindAccountByReferralCode(ctx, code)
		if err != nil {
			return err
		}
		if referrer.UserID == newUserID {
			return ErrSelfReferral
		}
		account, err := transactionStore.GetOrCreateAccount(ctx, newUserID)
		if err != nil {
			return err
		}
		if account.ReferredBy != nil {
			return ErrAlreadyReferred
		}
		if err := transactionStore.SetReferredBy(ctx, newUserID, referrer.UserID); err != nil {
			return err
		}
		nowUnixUTC := service.nowFn()
		refereeKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixReferee)
		if err != nil {
			return err
		}
		referrerKey, err := deriveIdempotencyKey(idempotencyKey, idempotencySuffixReferrer)
		if err != nil {
			return err
		}
		metadata, err := NewMetadataJSON(fmt.Sprintf(`{"referral_code":%q}`, code.String()))
		if err != nil {
			return err
		}
		grants := []Entry{
			{
				UserID:         newUserID,
				Kind:           EntryReferralBonus,
				AmountCoins:    ReferralBonusCoins,
				IdempotencyKey: refereeKey,
				MetadataJSON:   metadata,
				CreatedUnixUTC: nowUnixUTC,
			},
			{
				UserID:         referrer.UserID,
				Kind:           EntryReferralBonus,
				AmountCoins:    ReferralBonusCoins,
				IdempotencyKey: referrerKey,
				MetadataJSON:   metadata,
				CreatedUnixUTC: nowUnixUTC,
			},
		}
		for _, entry := range grants {
			if err := transactionStore.InsertEntry(ctx, entry); err != nil {
				return err
			}
			if _, err := transactionStore.AddToBalance(ctx, entry.UserID, entry.AmountCoins); err != nil {
				return err
			}
		}
		result = ReferralResult{ReferrerUserID: referrer.UserID, BonusCoins: ReferralBonusCoins}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operationReferral,
		UserID:         newUserID,
		Kind:           EntryReferralBonus,
		Amount:         ReferralBonusCoins,
		IdempotencyKey: idempotencyKey,
		Error:          operationError,
	})
	return result, operationError
}

// Balance returns the cached balance projection for a user.
func (service *Service) Balance(ctx context.Context, userID UserID) (Balance, error) {
	account, err := service.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{TotalCoins: account.BalanceCoins}, nil
}

// Account returns the full cached account projection.
func (service *Service) Account(ctx context.Context, userID UserID) (Account, error) {
	return service.store.GetOrCreateAccount(ctx, userID)
}

// ListEntries lists ledger entries for a user before a cutoff time.
func (service *Service) ListEntries(ctx context.Context, userID UserID, beforeUnixUTC int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListEntriesLimit
	}
	if limit > maxListEntriesLimit {
		return nil, fmt.Errorf("%w: at most %d", ErrInvalidListLimit, maxListEntriesLimit)
	}
	return service.store.ListEntries(ctx, userID, beforeUnixUTC, limit)
}

// Reconcile recomputes the balance from the entry stream and verifies the
// cached projection matches it.
func (service *Service) Reconcile(ctx context.Context, userID UserID) (Balance, error) {
	var balance Balance
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		account, err := transactionStore.GetAccountForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		summed, err := transactionStore.SumEntries(ctx, userID)
		if err != nil {
			return err
		}
		if summed != account.BalanceCoins {
			return fmt.Errorf("%w: cached %d, entries sum to %d", ErrBalanceDrift, account.BalanceCoins, summed)
		}
		balance = Balance{TotalCoins: summed}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationReconcile,
		UserID:    userID,
		Amount:    balance.TotalCoins,
		Error:     operationError,
	})
	return balance, operationError
}

// Leaderboard returns the top accounts ranked by total watch time.
func (service *Service) Leaderboard(ctx context.Context, limit int) ([]Account, error) {
	if limit <= 0 {
		limit = defaultListEntriesLimit
	}
	if limit > maxListEntriesLimit {
		return nil, fmt.Errorf("%w: at most %d", ErrInvalidListLimit, maxListEntriesLimit)
	}
	return service.store.ListTopAccounts(ctx, limit)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func deriveIdempotencyKey(baseKey IdempotencyKey, suffix string) (IdempotencyKey, error) {
	combined := baseKey.String() + idempotencyKeyDelimiter + suffix
	return NewIdempotencyKey(combined)
}
