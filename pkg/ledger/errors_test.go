package ledger

import (
	"errors"
	"testing"
)

func TestWrapErrorPreservesSentinel(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("store", "entry", "duplicate", ErrDuplicateEntry)
	if !errors.Is(wrapped, ErrDuplicateEntry) {
		test.Fatalf("expected wrapped sentinel, got %v", wrapped)
	}
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError, got %T", wrapped)
	}
	if operationError.Operation() != "store" || operationError.Subject() != "entry" || operationError.Code() != "duplicate" {
		test.Fatalf("unexpected segments: %v", operationError)
	}
	if operationError.Error() != "store.entry.duplicate: duplicate ledger entry" {
		test.Fatalf("unexpected message: %q", operationError.Error())
	}
}

func TestWrapErrorNilPassthrough(test *testing.T) {
	test.Parallel()
	if WrapError("store", "entry", "insert", nil) != nil {
		test.Fatal("wrapping nil must return nil")
	}
}
