package ledger

const (
	operationCredit      = "credit"
	operationWithdraw    = "withdraw"
	operationReferral    = "referral_bonus"
	operationReconcile   = "reconcile"
	operationBalance     = "balance"
	operationListEntries = "list_entries"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	idempotencyKeyDelimiter   = ":"
	idempotencySuffixReferee  = "referee"
	idempotencySuffixReferrer = "referrer"

	// MinWithdrawalCoins is the smallest cash-out the platform accepts.
	MinWithdrawalCoins = 1000

	// ReferralBonusCoins is credited to both sides of a referral.
	ReferralBonusCoins = 50

	defaultListEntriesLimit = 50
	maxListEntriesLimit     = 200
)
