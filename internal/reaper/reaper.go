package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultInterval is how often the reaper scans for silent sessions.
	DefaultInterval = 5 * time.Second
	// DefaultHeartbeatTimeout is how long a session may go without an
	// update before it is finalized as stale.
	DefaultHeartbeatTimeout = 30 * time.Second

	defaultBatchSize = 100
)

// ErrInvalidConfig reports an unusable reaper configuration.
var ErrInvalidConfig = errors.New("invalid reaper config")

// SessionExpirer is the slice of the session manager the reaper drives.
type SessionExpirer interface {
	ReapStale(ctx context.Context, cutoffUnixUTC int64, limit int) (int, error)
}

// Config tunes the reaper loop. Zero values fall back to defaults.
type Config struct {
	Interval         time.Duration
	HeartbeatTimeout time.Duration
	BatchSize        int
}

func (config *Config) validate() error {
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.HeartbeatTimeout == 0 {
		config.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if config.BatchSize == 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.Interval < 0 || config.HeartbeatTimeout < 0 || config.BatchSize < 0 {
		return fmt.Errorf("%w: negative interval, timeout, or batch size", ErrInvalidConfig)
	}
	return nil
}

// Reaper periodically finalizes sessions whose heartbeat went silent. It is
// safe to run alongside client traffic: the store-level status swap makes
// sure a session is finalized exactly once no matter who gets there first.
type Reaper struct {
	sessions SessionExpirer
	config   Config
	nowFn    func() time.Time
	logger   *zap.Logger
}

// New wires a Reaper.
func New(sessions SessionExpirer, config Config, now func() time.Time, logger *zap.Logger) (*Reaper, error) {
	if sessions == nil {
		return nil, fmt.Errorf("%w: session expirer is nil", ErrInvalidConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock is nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Reaper{sessions: sessions, config: config, nowFn: now, logger: logger}, nil
}

// Run blocks until ctx is cancelled, sweeping once per interval. Sweep
// failures are logged and the loop keeps going.
func (reaper *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(reaper.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reaper.sweep(ctx)
		}
	}
}

func (reaper *Reaper) sweep(ctx context.Context) {
	cutoff := reaper.nowFn().Add(-reaper.config.HeartbeatTimeout).Unix()
	expired, err := reaper.sessions.ReapStale(ctx, cutoff, reaper.config.BatchSize)
	if err != nil {
		reaper.logger.Warn("stale session sweep failed",
			zap.Int("expired", expired),
			zap.Int64("cutoff_unix", cutoff),
			zap.Error(err))
		return
	}
	if expired > 0 {
		reaper.logger.Info("expired stale sessions",
			zap.Int("expired", expired),
			zap.Int64("cutoff_unix", cutoff))
	}
}
