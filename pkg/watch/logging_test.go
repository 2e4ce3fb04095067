package watch

import (
	"context"
	"errors"
	"testing"
)

type recorderLogger struct {
	records []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.records = append(logger.records, entry)
}

func TestOperationLoggingStatuses(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	logger := &recorderLogger{}
	service := newTestService(test, store, WithOperationLogger(logger))
	viewer := mustUserID(test, "viewer-1")
	content := mustContentID(test, "video-1")

	result, err := service.Start(context.Background(), viewer, content)
	if err != nil {
		test.Fatalf("start: %v", err)
	}
	if _, err := service.Update(context.Background(), result.SessionID, viewer, 60, 0); err == nil {
		test.Fatalf("zero tick accepted")
	}
	if len(logger.records) != 2 {
		test.Fatalf("%d log records, want 2", len(logger.records))
	}
	startRecord := logger.records[0]
	if startRecord.Operation != "start" || startRecord.Status != "ok" || startRecord.Error != nil {
		test.Fatalf("start record %+v", startRecord)
	}
	if startRecord.SessionID != result.SessionID || startRecord.ContentID != content {
		test.Fatalf("start record ids %+v", startRecord)
	}
	updateRecord := logger.records[1]
	if updateRecord.Operation != "update" || updateRecord.Status != "error" {
		test.Fatalf("update record %+v", updateRecord)
	}
	if !errors.Is(updateRecord.Error, ErrInvalidTick) {
		test.Fatalf("update record error %v", updateRecord.Error)
	}
}
