package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
)

// Assignment is the outcome of a shard selection. Overflow placements are
// flagged rather than silently mimicking normal assignment, so callers and
// stats can tell a degraded placement apart.
type Assignment struct {
	ShardID snowflake.ID `json:"shard_id"`
	// Overflow is set when every shard of the type sat above the load
	// threshold and the least-loaded one was assigned anyway.
	Overflow bool `json:"overflow"`
	// AutoScaled is set when the assignment created a new shard.
	AutoScaled bool `json:"auto_scaled"`
}

type RebalanceResult struct {
	Type       sharddomain.ShardType `json:"type"`
	ShardCount int                   `json:"shard_count"`
	// MovedLoad is the total load shifted off shards above the equal share.
	MovedLoad int64                 `json:"moved_load"`
	Receipt   *ledgerdomain.Receipt `json:"receipt,omitempty"`
}

// Service routes new operations onto shards and keeps per-type load
// spread. SelectShard never mutates load; the chosen shard's counters move
// when the routed operation records its usage.
type Service interface {
	SelectShard(ctx context.Context, t sharddomain.ShardType, estimatedCost int64, priority int) (*Assignment, error)
	Rebalance(ctx context.Context, t sharddomain.ShardType) (*RebalanceResult, error)
}

var (
	ErrNoShardsAvailable = errors.New("no_shards_available")
)
