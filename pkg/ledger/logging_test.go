package ledger

import (
	"context"
	"testing"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestServiceLogsCreditOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	userID := mustUserID(test, "user-1")
	key := mustIdempotencyKey(test, "earning:1")

	if err := service.Credit(context.Background(), userID, mustPositiveCoins(test, 30), EntryEarning, nil, key, mustMetadata(test, "{}")); err != nil {
		test.Fatalf("credit: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != operationCredit || entry.UserID != userID || entry.Amount != 30 || entry.IdempotencyKey != key {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != operationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.insertEntryError = errStoreFailure
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))

	err := service.Credit(context.Background(), mustUserID(test, "user-1"), mustPositiveCoins(test, 30), EntryEarning, nil, mustIdempotencyKey(test, "earning:1"), mustMetadata(test, "{}"))
	if err == nil {
		test.Fatal("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Status != operationStatusError || entry.Error == nil {
		test.Fatalf("expected error status, got %+v", entry)
	}
}
