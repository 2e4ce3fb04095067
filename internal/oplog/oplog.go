// Package oplog adapts the domain operation-log interfaces onto zap.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/watch"
)

// LedgerLogger logs ledger operations through zap.
type LedgerLogger struct {
	logger *zap.Logger
}

// NewLedgerLogger wraps a zap logger for the ledger service.
func NewLedgerLogger(logger *zap.Logger) *LedgerLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerLogger{logger: logger}
}

func (adapter *LedgerLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.String("kind", entry.Kind.String()),
		zap.Int64("amount_coins", int64(entry.Amount)),
		zap.String("status", entry.Status),
	}
	if entry.SessionRef != nil {
		fields = append(fields, zap.String("session_id", entry.SessionRef.String()))
	}
	if entry.IdempotencyKey.String() != "" {
		fields = append(fields, zap.String("idempotency_key", entry.IdempotencyKey.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("ledger operation failed", fields...)
		return
	}
	adapter.logger.Info("ledger operation", fields...)
}

// WatchLogger logs session-manager operations through zap.
type WatchLogger struct {
	logger *zap.Logger
}

// NewWatchLogger wraps a zap logger for the session manager.
func NewWatchLogger(logger *zap.Logger) *WatchLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchLogger{logger: logger}
}

func (adapter *WatchLogger) LogOperation(_ context.Context, entry watch.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("session_id", entry.SessionID.String()),
		zap.String("user_id", entry.UserID.String()),
		zap.String("status", entry.Status),
	}
	if entry.ContentID.String() != "" {
		fields = append(fields, zap.String("content_id", entry.ContentID.String()))
	}
	if entry.Tick != 0 {
		fields = append(fields, zap.Int64("tick", entry.Tick))
	}
	if entry.WatchedSeconds != 0 {
		fields = append(fields, zap.Int64("watched_seconds", entry.WatchedSeconds))
	}
	if entry.EarnedCoins != 0 {
		fields = append(fields, zap.Int64("earned_coins", int64(entry.EarnedCoins)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("watch operation failed", fields...)
		return
	}
	adapter.logger.Info("watch operation", fields...)
}
