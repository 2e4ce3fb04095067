package watch

const (
	operationStart  = "start"
	operationUpdate = "update"
	operationEnd    = "end"
	operationExpire = "expire"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	idempotencyPrefixEarning    = "earning"
	idempotencyPrefixLevelBonus = "level-bonus"
	idempotencyKeyDelimiter     = ":"

	// secondsPerLevel is one hour of watch time per level step.
	secondsPerLevel = 3600

	// levelBonusCoinsPerLevel multiplies the reached level into its one-time
	// bonus.
	levelBonusCoinsPerLevel = 10

	defaultReapBatchSize = 100
)
