package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	"github.com/trackchain/trackway/internal/authorization"
	batchdomain "github.com/trackchain/trackway/internal/batch/domain"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	"github.com/trackchain/trackway/internal/operations"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

// ErrorHandlingMiddleware converts errors recorded on the context into a
// uniform JSON error body after the handler runs.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

var validationErrors = []error{
	ErrInvalidRequest,
	operations.ErrUnsupportedKind,
	operations.ErrInvalidPayload,
	sharddomain.ErrInvalidShardType,
	sharddomain.ErrCapacityConfig,
	sharddomain.ErrInvalidUsageUnits,
	participantdomain.ErrInvalidAddress,
	participantdomain.ErrInvalidUserKey,
	participantdomain.ErrInvalidRole,
	lifecycledomain.ErrInvalidName,
	lifecycledomain.ErrInvalidBatchNumber,
	lifecycledomain.ErrInvalidStage,
	lifecycledomain.ErrInvalidLocation,
	lifecycledomain.ErrInvalidCheckType,
	lifecycledomain.ErrInvalidReason,
	lifecycledomain.ErrNoTargets,
	lifecycledomain.ErrNoReadings,
	batchdomain.ErrUnsupportedOperation,
	batchdomain.ErrInvalidOptimizationLevel,
	batchdomain.ErrInvalidCount,
	batchdomain.ErrNoTargets,
	batchdomain.ErrInvalidPayload,
	authorization.ErrInvalidRole,
	authorization.ErrInvalidObject,
	authorization.ErrInvalidAction,
	auditdomain.ErrInvalidAction,
	auditdomain.ErrInvalidTarget,
}

var notFoundErrors = []error{
	sharddomain.ErrNotFound,
	participantdomain.ErrNotFound,
	lifecycledomain.ErrNotFound,
	batchdomain.ErrNotFound,
}

var conflictErrors = []error{
	lifecycledomain.ErrInvalidTransition,
	lifecycledomain.ErrTerminalStage,
	lifecycledomain.ErrProductInactive,
	participantdomain.ErrDuplicateKey,
	participantdomain.ErrInactive,
	batchdomain.ErrNotPending,
	sharddomain.ErrTypeLimit,
	sharddomain.ErrOverCapacity,
	sharddomain.ErrShardInactive,
}

var unavailableErrors = []error{
	shardingdomain.ErrNoShardsAvailable,
	ledgerdomain.ErrLedgerClosed,
	ledgerdomain.ErrLedgerStopped,
}

func matchAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func mapError(err error) (int, errorPayload) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	case matchAny(err, validationErrors):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case matchAny(err, notFoundErrors):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case matchAny(err, conflictErrors):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case matchAny(err, unavailableErrors):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
