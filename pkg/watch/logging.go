package watch

import (
	"context"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing session operation.
type OperationLog struct {
	Operation      string
	SessionID      SessionID
	UserID         ledger.UserID
	ContentID      ContentID
	Tick           int64
	WatchedSeconds int64
	EarnedCoins    ledger.Coins
	Status         string
	Error          error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithScope overrides the default per-(user, content) active-session
// uniqueness policy.
func WithScope(scope Scope) ServiceOption {
	return func(service *Service) {
		service.scope = scope
	}
}
