package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	"gorm.io/gorm"
)

type CreateBatchRequest struct {
	ActorID           snowflake.ID          `json:"actor_id"`
	OperationType     ledgerdomain.Kind     `json:"operation_type"`
	ProductIDs        []snowflake.ID        `json:"product_ids"`
	NewOwner          snowflake.ID          `json:"new_owner"`
	NewStage          lifecycledomain.Stage `json:"new_stage"`
	NewLocation       string                `json:"new_location"`
	Notes             string                `json:"notes"`
	OptimizationLevel int                   `json:"optimization_level"`
	Compressed        bool                  `json:"compressed"`
	Parallel          bool                  `json:"parallel"`
	IdempotencyKey    string                `json:"idempotency_key"`
}

type BatchResponse struct {
	Batch   Batch                 `json:"batch"`
	Receipt *ledgerdomain.Receipt `json:"receipt,omitempty"`
}

type ProcessResponse struct {
	Batch    Batch                     `json:"batch"`
	Products []lifecycledomain.Product `json:"products"`
	Receipt  *ledgerdomain.Receipt     `json:"receipt,omitempty"`
}

// Service stages batches and commits them atomically: every target is
// validated before anything is written, and a failing target rejects the
// whole batch with the rejection recorded on the batch row.
type Service interface {
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*BatchResponse, error)
	ProcessBatch(ctx context.Context, batchID, actorID snowflake.ID) (*ProcessResponse, error)
	EstimateSavings(operationType ledgerdomain.Kind, count int) (*SavingsEstimate, error)
	GetBatch(ctx context.Context, id snowflake.ID) (*Batch, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, b *Batch) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Batch, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*Batch, error)
	Update(ctx context.Context, db *gorm.DB, b *Batch) error
}

var (
	ErrUnsupportedOperation     = errors.New("unsupported_batch_operation")
	ErrInvalidOptimizationLevel = errors.New("invalid_optimization_level")
	ErrInvalidCount             = errors.New("invalid_batch_count")
	ErrNoTargets                = errors.New("no_batch_targets")
	ErrInvalidPayload           = errors.New("invalid_batch_payload")
	ErrNotFound                 = errors.New("batch_not_found")
	ErrNotPending               = errors.New("batch_not_pending")
)
