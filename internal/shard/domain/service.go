package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	"gorm.io/gorm"
)

type CreateShardRequest struct {
	Type ShardType `json:"type"`
	// MaxCapacity must fall within the configured [MinCapacity, MaxCapacity]
	// range; zero selects the configured maximum.
	MaxCapacity int64  `json:"max_capacity"`
	ContractRef string `json:"contract_ref"`
	// AutoScaled marks shards created by the selector rather than a caller.
	AutoScaled bool `json:"-"`
}

type ShardResponse struct {
	Shard   Shard                 `json:"shard"`
	Metrics *Metrics              `json:"metrics,omitempty"`
	Receipt *ledgerdomain.Receipt `json:"receipt,omitempty"`
}

// Service owns shard records and their capacity bookkeeping.
//
// ApplyUsage runs inside a caller's ledger transition so load counters move
// in the same commit as the operation they account for; RecordUsage wraps
// it in a standalone commit for callers outside a transition.
type Service interface {
	CreateShard(ctx context.Context, req CreateShardRequest) (*ShardResponse, error)
	GetShard(ctx context.Context, id snowflake.ID) (*ShardResponse, error)
	ListByType(ctx context.Context, t ShardType) ([]Shard, error)
	ListActiveByType(ctx context.Context, t ShardType) ([]Shard, error)
	ListAll(ctx context.Context) ([]Shard, error)
	CountByType(ctx context.Context, t ShardType) (int64, error)
	DeactivateShard(ctx context.Context, id snowflake.ID) (*ShardResponse, error)

	RecordUsage(ctx context.Context, shardID snowflake.ID, usage Usage) (*ledgerdomain.Receipt, error)
	ApplyUsage(ctx context.Context, tx *gorm.DB, shardID snowflake.ID, usage Usage, now time.Time) error
}

var (
	ErrInvalidShardType  = errors.New("invalid_shard_type")
	ErrCapacityConfig    = errors.New("capacity_out_of_range")
	ErrTypeLimit         = errors.New("shard_type_limit_reached")
	ErrNotFound          = errors.New("shard_not_found")
	ErrShardInactive     = errors.New("shard_inactive")
	ErrOverCapacity      = errors.New("shard_over_capacity")
	ErrInvalidUsageUnits = errors.New("invalid_usage_units")
)
