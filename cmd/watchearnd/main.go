package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/watchearn/internal/httpapi"
	"github.com/MarkoPoloResearchLab/watchearn/internal/oplog"
	"github.com/MarkoPoloResearchLab/watchearn/internal/reaper"
	"github.com/MarkoPoloResearchLab/watchearn/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/watch"
)

const (
	flagDatabaseURL      = "database-url"
	flagListenAddr       = "listen-addr"
	flagAllowedOrigins   = "allowed-origins"
	flagTokenSigningKey  = "token-signing-key"
	flagTokenIssuer      = "token-issuer"
	flagSessionScope     = "session-scope"
	flagReaperInterval   = "reaper-interval"
	flagHeartbeatTimeout = "heartbeat-timeout"

	configKeyDatabaseURL      = "database_url"
	configKeyListenAddr       = "listen_addr"
	configKeyAllowedOrigins   = "allowed_origins"
	configKeyTokenSigningKey  = "token_signing_key"
	configKeyTokenIssuer      = "token_issuer"
	configKeySessionScope     = "session_scope"
	configKeyReaperInterval   = "reaper_interval"
	configKeyHeartbeatTimeout = "heartbeat_timeout"

	defaultDatabaseURL = "sqlite:///tmp/watchearn.db"
	defaultListenAddr  = ":8080"
)

type runtimeConfig struct {
	DatabaseURL      string
	ListenAddr       string
	AllowedOrigins   string
	TokenSigningKey  string
	TokenIssuer      string
	SessionScope     string
	ReaperInterval   time.Duration
	HeartbeatTimeout time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "watchearnd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "watchearnd",
		Short:         "Watch-to-earn accrual server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().String(flagTokenSigningKey, "", "HMAC key for bearer token verification")
	cmd.Flags().String(flagTokenIssuer, "", "expected bearer token issuer")
	cmd.Flags().String(flagSessionScope, string(watch.ScopePerContent), "active-session uniqueness: per_content or per_user")
	cmd.Flags().Duration(flagReaperInterval, reaper.DefaultInterval, "stale session sweep period")
	cmd.Flags().Duration(flagHeartbeatTimeout, reaper.DefaultHeartbeatTimeout, "heartbeat silence before a session goes stale")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:      "DATABASE_URL",
		configKeyListenAddr:       "LISTEN_ADDR",
		configKeyAllowedOrigins:   "ALLOWED_ORIGINS",
		configKeyTokenSigningKey:  "TOKEN_SIGNING_KEY",
		configKeyTokenIssuer:      "TOKEN_ISSUER",
		configKeySessionScope:     "SESSION_SCOPE",
		configKeyReaperInterval:   "REAPER_INTERVAL",
		configKeyHeartbeatTimeout: "HEARTBEAT_TIMEOUT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	flags := map[string]string{
		configKeyDatabaseURL:      flagDatabaseURL,
		configKeyListenAddr:       flagListenAddr,
		configKeyAllowedOrigins:   flagAllowedOrigins,
		configKeyTokenSigningKey:  flagTokenSigningKey,
		configKeyTokenIssuer:      flagTokenIssuer,
		configKeySessionScope:     flagSessionScope,
		configKeyReaperInterval:   flagReaperInterval,
		configKeyHeartbeatTimeout: flagHeartbeatTimeout,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.TokenSigningKey = viper.GetString(configKeyTokenSigningKey)
	cfg.TokenIssuer = viper.GetString(configKeyTokenIssuer)
	cfg.SessionScope = viper.GetString(configKeySessionScope)
	cfg.ReaperInterval = viper.GetDuration(configKeyReaperInterval)
	cfg.HeartbeatTimeout = viper.GetDuration(configKeyHeartbeatTimeout)

	if cfg.TokenSigningKey == "" {
		return fmt.Errorf("token signing key is required")
	}
	if _, err := watch.ParseScope(cfg.SessionScope); err != nil {
		return err
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	store := gormstore.New(gormDB)
	if err := prepareSchema(store, driver); err != nil {
		return err
	}

	clock := func() int64 { return time.Now().UTC().Unix() }
	ledgerService, err := ledger.NewService(store.Ledger(), clock,
		ledger.WithOperationLogger(oplog.NewLedgerLogger(logger)))
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}

	scope, err := watch.ParseScope(cfg.SessionScope)
	if err != nil {
		return err
	}
	watchService, err := watch.NewService(store.Watch(), store, clock,
		watch.WithScope(scope),
		watch.WithOperationLogger(oplog.NewWatchLogger(logger)))
	if err != nil {
		return fmt.Errorf("watch service init: %w", err)
	}

	sessionReaper, err := reaper.New(watchService, reaper.Config{
		Interval:         cfg.ReaperInterval,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
	}, func() time.Time { return time.Now().UTC() }, logger)
	if err != nil {
		return fmt.Errorf("reaper init: %w", err)
	}

	apiServer, err := httpapi.NewServer(httpapi.Config{
		ListenAddr:      cfg.ListenAddr,
		AllowedOrigins:  httpapi.ParseAllowedOrigins(cfg.AllowedOrigins),
		TokenSigningKey: cfg.TokenSigningKey,
		TokenIssuer:     cfg.TokenIssuer,
	}, watchService, ledgerService, logger)
	if err != nil {
		return fmt.Errorf("http api init: %w", err)
	}

	go func() {
		// Returns once ctx is cancelled; sweep failures are logged inside.
		_ = sessionReaper.Run(ctx)
	}()
	return apiServer.Run(ctx)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	cfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "watchearn.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(store *gormstore.Store, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
