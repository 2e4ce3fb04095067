package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/watchearn/pkg/earnings"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/ledger"
	"github.com/MarkoPoloResearchLab/watchearn/pkg/watch"
)

const (
	errorSessionNotFound        = "session_not_found"
	errorContentNotFound        = "content_not_found"
	errorForbidden              = "forbidden"
	errorSessionNotActive       = "session_not_active"
	errorStaleTick              = "stale_tick"
	errorNonMonotonicDuration   = "non_monotonic_duration"
	errorInsufficientBalance    = "insufficient_balance"
	errorBelowMinimumWithdrawal = "below_minimum_withdrawal"
	errorDuplicateEntry         = "duplicate_entry"
	errorUnknownReferralCode    = "unknown_referral_code"
	errorSelfReferral           = "self_referral"
	errorAlreadyReferred        = "already_referred"
	errorInvalidArgument        = "invalid_argument"
	errorInternal               = "internal_error"
)

type errorMapping struct {
	sentinel error
	status   int
	code     string
}

// httpErrorMappings assigns each domain sentinel a stable HTTP status and
// machine-readable code. Anything unmapped is an internal error.
var httpErrorMappings = []errorMapping{
	{sentinel: watch.ErrSessionNotFound, status: http.StatusNotFound, code: errorSessionNotFound},
	{sentinel: watch.ErrContentNotFound, status: http.StatusNotFound, code: errorContentNotFound},
	{sentinel: watch.ErrForbidden, status: http.StatusForbidden, code: errorForbidden},
	{sentinel: watch.ErrSessionNotActive, status: http.StatusConflict, code: errorSessionNotActive},
	{sentinel: watch.ErrSessionFinalized, status: http.StatusConflict, code: errorSessionNotActive},
	{sentinel: watch.ErrStaleTick, status: http.StatusConflict, code: errorStaleTick},
	{sentinel: watch.ErrInvalidTick, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: watch.ErrInvalidSessionID, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: watch.ErrInvalidContentID, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: earnings.ErrNonMonotonicDuration, status: http.StatusBadRequest, code: errorNonMonotonicDuration},
	{sentinel: earnings.ErrInvalidDuration, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: ledger.ErrInsufficientBalance, status: http.StatusConflict, code: errorInsufficientBalance},
	{sentinel: ledger.ErrBelowMinimumWithdrawal, status: http.StatusBadRequest, code: errorBelowMinimumWithdrawal},
	{sentinel: ledger.ErrDuplicateEntry, status: http.StatusConflict, code: errorDuplicateEntry},
	{sentinel: ledger.ErrUnknownReferralCode, status: http.StatusNotFound, code: errorUnknownReferralCode},
	{sentinel: ledger.ErrSelfReferral, status: http.StatusConflict, code: errorSelfReferral},
	{sentinel: ledger.ErrAlreadyReferred, status: http.StatusConflict, code: errorAlreadyReferred},
	{sentinel: ledger.ErrAccountNotFound, status: http.StatusNotFound, code: errorInvalidArgument},
	{sentinel: ledger.ErrInvalidUserID, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: ledger.ErrInvalidCoins, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: ledger.ErrInvalidIdempotencyKey, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: ledger.ErrInvalidMetadataJSON, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: ledger.ErrInvalidReferralCode, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: ledger.ErrInvalidPayoutMethod, status: http.StatusBadRequest, code: errorInvalidArgument},
	{sentinel: ledger.ErrInvalidListLimit, status: http.StatusBadRequest, code: errorInvalidArgument},
}

func (server *Server) respondError(ctx *gin.Context, err error) {
	for _, mapping := range httpErrorMappings {
		if errors.Is(err, mapping.sentinel) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, err.Error()))
			return
		}
	}
	server.logger.Error("unmapped domain error", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse(errorInternal, "internal error"))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
