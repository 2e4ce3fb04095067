package ledger

import (
	"context"
	"errors"
	"testing"
)

const (
	caseAccountLookupError = "account lookup error"
	caseAccountLockError   = "account lock error"
	caseInsertEntryError   = "insert entry error"
	caseAddToBalanceError  = "add to balance error"
	caseSumEntriesError    = "sum entries error"
	errorMismatchMessage   = "expected %v, got %v"
)

var errStoreFailure = errors.New("store error")

func TestCreditReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
		wantErr   error
	}{
		{
			name:      caseAccountLookupError,
			configure: func(store *stubStore) { store.getAccountError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      caseInsertEntryError,
			configure: func(store *stubStore) { store.insertEntryError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      caseAddToBalanceError,
			configure: func(store *stubStore) { store.addToBalanceError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			testCase.configure(store)
			service := mustNewService(test, store)

			err := service.Credit(context.Background(), mustUserID(test, "user-1"), mustPositiveCoins(test, 10), EntryEarning, nil, mustIdempotencyKey(test, "key-1"), mustMetadata(test, "{}"))
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
			}
		})
	}
}

func TestWithdrawReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
		wantErr   error
	}{
		{
			name:      caseAccountLockError,
			configure: func(store *stubStore) { store.getForUpdateError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      caseInsertEntryError,
			configure: func(store *stubStore) { store.insertEntryError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      caseAddToBalanceError,
			configure: func(store *stubStore) { store.addToBalanceError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			userID := mustUserID(test, "user-1")
			store.seedBalance(test, userID, 5000)
			testCase.configure(store)
			service := mustNewService(test, store)

			err := service.Withdraw(context.Background(), userID, mustPositiveCoins(test, 1000), paypalMethod(), mustIdempotencyKey(test, "withdraw-1"))
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
			}
		})
	}
}

func TestReconcileReturnsStoreErrors(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		configure func(store *stubStore)
		wantErr   error
	}{
		{
			name:      caseAccountLockError,
			configure: func(store *stubStore) { store.getForUpdateError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
		{
			name:      caseSumEntriesError,
			configure: func(store *stubStore) { store.sumEntriesError = errStoreFailure },
			wantErr:   errStoreFailure,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			testCase.configure(store)
			service := mustNewService(test, store)

			_, err := service.Reconcile(context.Background(), mustUserID(test, "user-1"))
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf(errorMismatchMessage, testCase.wantErr, err)
			}
		})
	}
}
