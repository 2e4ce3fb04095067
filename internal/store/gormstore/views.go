package gormstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/watch"
)

// ledgerView exposes the store under the ledger contract. The two views
// exist because each domain package declares its own WithTx callback type.
type ledgerView struct {
	store *Store
}

func (view ledgerView) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return view.store.withTx(ctx, func(txStore *Store) error {
		return fn(ctx, ledgerView{store: txStore})
	})
}

func (view ledgerView) GetOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	return view.store.getOrCreateAccount(ctx, userID)
}

func (view ledgerView) GetAccountForUpdate(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	return view.store.getAccountForUpdate(ctx, userID)
}

func (view ledgerView) FindAccountByReferralCode(ctx context.Context, code ledger.ReferralCode) (ledger.Account, error) {
	return view.store.findAccountByReferralCode(ctx, code)
}

func (view ledgerView) SetReferredBy(ctx context.Context, userID ledger.UserID, referrer ledger.UserID) error {
	return view.store.setReferredBy(ctx, userID, referrer)
}

func (view ledgerView) InsertEntry(ctx context.Context, entry ledger.Entry) error {
	return view.store.insertEntry(ctx, entry)
}

func (view ledgerView) AddToBalance(ctx context.Context, userID ledger.UserID, delta ledger.Coins) (ledger.Coins, error) {
	return view.store.addToBalance(ctx, userID, delta)
}

func (view ledgerView) SumEntries(ctx context.Context, userID ledger.UserID) (ledger.Coins, error) {
	return view.store.sumEntries(ctx, userID)
}

func (view ledgerView) ListEntries(ctx context.Context, userID ledger.UserID, beforeUnixUTC int64, limit int) ([]ledger.Entry, error) {
	return view.store.listEntries(ctx, userID, beforeUnixUTC, limit)
}

func (view ledgerView) ListTopAccounts(ctx context.Context, limit int) ([]ledger.Account, error) {
	return view.store.listTopAccounts(ctx, limit)
}

// watchView exposes the store under the session-manager contract.
type watchView struct {
	store *Store
}

func (view watchView) WithTx(ctx context.Context, fn func(ctx context.Context, txStore watch.Store) error) error {
	return view.store.withTx(ctx, func(txStore *Store) error {
		return fn(ctx, watchView{store: txStore})
	})
}

func (view watchView) CreateSession(ctx context.Context, session watch.WatchSession) error {
	return view.store.createSession(ctx, session)
}

func (view watchView) GetSessionForUpdate(ctx context.Context, sessionID watch.SessionID) (watch.WatchSession, error) {
	return view.store.getSessionForUpdate(ctx, sessionID)
}

func (view watchView) FindActiveSession(ctx context.Context, userID ledger.UserID, contentID watch.ContentID, scope watch.Scope) (watch.WatchSession, error) {
	return view.store.findActiveSession(ctx, userID, contentID, scope)
}

func (view watchView) ApplySessionProgress(ctx context.Context, sessionID watch.SessionID, progress watch.SessionProgress) error {
	return view.store.applySessionProgress(ctx, sessionID, progress)
}

func (view watchView) UpdateSessionStatus(ctx context.Context, sessionID watch.SessionID, from watch.SessionStatus, to watch.SessionStatus) error {
	return view.store.updateSessionStatus(ctx, sessionID, from, to)
}

func (view watchView) ListStaleSessions(ctx context.Context, heartbeatBeforeUnixUTC int64, limit int) ([]watch.WatchSession, error) {
	return view.store.listStaleSessions(ctx, heartbeatBeforeUnixUTC, limit)
}

func (view watchView) GetOrCreateAccount(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	return view.store.getOrCreateAccount(ctx, userID)
}

func (view watchView) GetAccountForUpdate(ctx context.Context, userID ledger.UserID) (ledger.Account, error) {
	return view.store.getAccountForUpdate(ctx, userID)
}

func (view watchView) AddWatchProgress(ctx context.Context, userID ledger.UserID, deltaSeconds int64, nowUnixUTC int64) error {
	return view.store.addWatchProgress(ctx, userID, deltaSeconds, nowUnixUTC)
}

func (view watchView) SetAccountLevel(ctx context.Context, userID ledger.UserID, level int) error {
	return view.store.setAccountLevel(ctx, userID, level)
}

func (view watchView) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) error {
	return view.store.insertEntry(ctx, entry)
}

func (view watchView) AddToBalance(ctx context.Context, userID ledger.UserID, delta ledger.Coins) (ledger.Coins, error) {
	return view.store.addToBalance(ctx, userID, delta)
}
