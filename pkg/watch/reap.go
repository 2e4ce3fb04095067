package watch

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
)

// Expire moves one active session into the stale status and settles its
// level trigger, exactly like an owner-initiated end. Losing the
// finalization race to a concurrent End or Expire is not an error: the
// session reached a terminal status either way.
func (service *Service) Expire(ctx context.Context, sessionID SessionID) error {
	var result EndResult
	var userID ledger.UserID
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.GetSessionForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		userID = session.UserID
		if session.Status.Terminal() {
			result = endResultFromSession(session, 0)
			return nil
		}
		finalized, err := service.finalize(ctx, transactionStore, session, StatusStale)
		if err != nil {
			return err
		}
		result = finalized
		return nil
	})
	if errors.Is(operationError, ErrSessionFinalized) {
		operationError = nil
	}
	service.logEnd(ctx, operationExpire, sessionID, userID, result, operationError)
	return operationError
}

// ReapStale finalizes every active session whose last heartbeat predates the
// cutoff, in batches. It keeps going past individual failures and reports
// them joined, alongside the number of sessions successfully expired.
func (service *Service) ReapStale(ctx context.Context, cutoffUnixUTC int64, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultReapBatchSize
	}
	stale, err := service.store.ListStaleSessions(ctx, cutoffUnixUTC, limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	var failures []error
	for _, session := range stale {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		if err := service.Expire(ctx, session.ID); err != nil {
			failures = append(failures, fmt.Errorf("session %s: %w", session.ID.String(), err))
			continue
		}
		expired++
	}
	return expired, errors.Join(failures...)
}
