package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/watch"
)

// WatchService is the session-manager slice the façade depends on.
type WatchService interface {
	Start(ctx context.Context, userID ledger.UserID, contentID watch.ContentID) (watch.StartResult, error)
	Update(ctx context.Context, sessionID watch.SessionID, callerUserID ledger.UserID, reportedSeconds int64, tick int64) (watch.UpdateResult, error)
	End(ctx context.Context, sessionID watch.SessionID, callerUserID ledger.UserID) (watch.EndResult, error)
}

// LedgerService is the wallet slice the façade depends on.
type LedgerService interface {
	Balance(ctx context.Context, userID ledger.UserID) (ledger.Balance, error)
	Account(ctx context.Context, userID ledger.UserID) (ledger.Account, error)
	ListEntries(ctx context.Context, userID ledger.UserID, beforeUnixUTC int64, limit int) ([]ledger.Entry, error)
	Withdraw(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCoins, method ledger.PayoutMethod, idempotencyKey ledger.IdempotencyKey) error
	ReferralBonus(ctx context.Context, newUserID ledger.UserID, code ledger.ReferralCode, idempotencyKey ledger.IdempotencyKey) (ledger.ReferralResult, error)
	Leaderboard(ctx context.Context, limit int) ([]ledger.Account, error)
}

// Server is the HTTP façade over the watch and ledger services. It stays
// thin: decode, validate at the boundary, delegate, map errors.
type Server struct {
	cfg     Config
	watch   WatchService
	ledger  LedgerService
	logger  *zap.Logger
	router  *gin.Engine
	httpSrv *http.Server
}

// NewServer wires the façade.
func NewServer(cfg Config, watchService WatchService, ledgerService LedgerService, logger *zap.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if watchService == nil || ledgerService == nil {
		return nil, fmt.Errorf("watch and ledger services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := &Server{cfg: cfg, watch: watchService, ledger: ledgerService, logger: logger}
	server.router = server.setupRouter()
	return server, nil
}

// Router exposes the gin engine, primarily for tests.
func (server *Server) Router() *gin.Engine {
	return server.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	server.httpSrv = &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.router,
	}
	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- server.httpSrv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.httpSrv.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (server *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(authMiddleware([]byte(server.cfg.TokenSigningKey), server.cfg.TokenIssuer))

	api.POST("/watch/start", server.handleWatchStart)
	api.POST("/watch/update", server.handleWatchUpdate)
	api.POST("/watch/end", server.handleWatchEnd)
	api.GET("/wallet", server.handleWallet)
	api.GET("/wallet/entries", server.handleWalletEntries)
	api.POST("/withdrawals", server.handleWithdrawal)
	api.POST("/referrals", server.handleReferral)
	api.GET("/leaderboard", server.handleLeaderboard)

	return router
}

type startRequest struct {
	ContentID string `json:"content_id"`
}

func (server *Server) handleWatchStart(ctx *gin.Context) {
	userID, ok := server.caller(ctx)
	if !ok {
		return
	}
	var request startRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	contentID, err := watch.NewContentID(request.ContentID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.watch.Start(requestCtx, userID, contentID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"session_id": result.SessionID.String(),
		"reused":     result.Reused,
		"policy": gin.H{
			"total_reward_coins": result.Policy.TotalRewardCoins,
			"duration_seconds":   result.Policy.DurationSeconds,
		},
	})
}

type updateRequest struct {
	SessionID      string `json:"session_id"`
	WatchedSeconds int64  `json:"watched_seconds"`
	Tick           int64  `json:"tick"`
}

func (server *Server) handleWatchUpdate(ctx *gin.Context) {
	userID, ok := server.caller(ctx)
	if !ok {
		return
	}
	var request updateRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	sessionID, err := watch.NewSessionID(request.SessionID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.watch.Update(requestCtx, sessionID, userID, request.WatchedSeconds, request.Tick)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"earned_coins":    int64(result.EarnedCoins),
		"balance_coins":   int64(result.BalanceCoins),
		"watched_seconds": result.WatchedSeconds,
	})
}

type endRequest struct {
	SessionID string `json:"session_id"`
}

func (server *Server) handleWatchEnd(ctx *gin.Context) {
	userID, ok := server.caller(ctx)
	if !ok {
		return
	}
	var request endRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	sessionID, err := watch.NewSessionID(request.SessionID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.watch.End(requestCtx, sessionID, userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"status":          result.Status.String(),
		"earned_coins":    int64(result.EarnedCoins),
		"watched_seconds": result.WatchedSeconds,
		"level":           result.Level,
		"leveled_up":      result.LeveledUp,
		"bonus_coins":     int64(result.BonusCoins),
	})
}

func (server *Server) handleWallet(ctx *gin.Context) {
	userID, ok := server.caller(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	account, err := server.ledger.Account(requestCtx, userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"balance_coins":       int64(account.BalanceCoins),
		"total_watch_seconds": account.TotalWatchSeconds,
		"level":               account.Level,
		"referral_code":       account.ReferralCode.String(),
	})
}

func (server *Server) handleWalletEntries(ctx *gin.Context) {
	userID, ok := server.caller(ctx)
	if !ok {
		return
	}
	before := parseInt64Query(ctx, "before", 0)
	limit := int(parseInt64Query(ctx, "limit", walletHistoryLimit))
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	entries, err := server.ledger.ListEntries(requestCtx, userID, before, limit)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		sessionRef := ""
		if entry.SessionRef != nil {
			sessionRef = entry.SessionRef.String()
		}
		payload = append(payload, gin.H{
			"entry_id":         entry.EntryID,
			"kind":             entry.Kind.String(),
			"amount_coins":     int64(entry.AmountCoins),
			"session_id":       sessionRef,
			"metadata":         json.RawMessage(entry.MetadataJSON.String()),
			"created_unix_utc": entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": payload})
}

type withdrawalRequest struct {
	AmountCoins    int64               `json:"amount_coins"`
	Method         ledger.PayoutMethod `json:"method"`
	IdempotencyKey string              `json:"idempotency_key"`
}

func (server *Server) handleWithdrawal(ctx *gin.Context) {
	userID, ok := server.caller(ctx)
	if !ok {
		return
	}
	var request withdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	amount, err := ledger.NewPositiveCoins(request.AmountCoins)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	idempotencyKey, err := ledger.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	if err := server.ledger.Withdraw(requestCtx, userID, amount, request.Method, idempotencyKey); err != nil {
		server.respondError(ctx, err)
		return
	}
	balance, err := server.ledger.Balance(requestCtx, userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance_coins": int64(balance.TotalCoins)})
}

type referralRequest struct {
	Code string `json:"code"`
}

func (server *Server) handleReferral(ctx *gin.Context) {
	userID, ok := server.caller(ctx)
	if !ok {
		return
	}
	var request referralRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	code, err := ledger.NewReferralCode(request.Code)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	idempotencyKey, err := ledger.NewIdempotencyKey(fmt.Sprintf("referral:%s", userID.String()))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	result, err := server.ledger.ReferralBonus(requestCtx, userID, code, idempotencyKey)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"referrer_user_id": result.ReferrerUserID.String(),
		"bonus_coins":      int64(result.BonusCoins),
	})
}

func (server *Server) handleLeaderboard(ctx *gin.Context) {
	if _, ok := server.caller(ctx); !ok {
		return
	}
	limit := int(parseInt64Query(ctx, "limit", walletHistoryLimit))
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()
	accounts, err := server.ledger.Leaderboard(requestCtx, limit)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(accounts))
	for _, account := range accounts {
		payload = append(payload, gin.H{
			"user_id":             account.UserID.String(),
			"level":               account.Level,
			"total_watch_seconds": account.TotalWatchSeconds,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"leaderboard": payload})
}

func (server *Server) caller(ctx *gin.Context) (ledger.UserID, bool) {
	userID, err := ledger.NewUserID(callerUserID(ctx))
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing caller identity"))
		return ledger.UserID{}, false
	}
	return userID, true
}

func (server *Server) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), server.cfg.RequestTimeout)
}

func parseInt64Query(ctx *gin.Context, name string, fallback int64) int64 {
	raw := ctx.Query(name)
	if raw == "" {
		return fallback
	}
	var value int64
	if _, err := fmt.Sscan(raw, &value); err != nil || value < 0 {
		return fallback
	}
	return value
}
