package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ShardType partitions ledger write load by category. The set is closed;
// anything else is rejected at the boundary.
type ShardType string

const (
	ShardTypeProduct     ShardType = "product"
	ShardTypeIoT         ShardType = "iot"
	ShardTypeParticipant ShardType = "participant"
)

// AllShardTypes lists every valid shard type, used by the rebalance
// scheduler and system stats.
var AllShardTypes = []ShardType{ShardTypeProduct, ShardTypeIoT, ShardTypeParticipant}

func (t ShardType) Valid() bool {
	switch t {
	case ShardTypeProduct, ShardTypeIoT, ShardTypeParticipant:
		return true
	default:
		return false
	}
}

func ParseShardType(raw string) (ShardType, error) {
	t := ShardType(raw)
	if !t.Valid() {
		return "", ErrInvalidShardType
	}
	return t, nil
}

// Shard is a logical partition of ledger state. Shards are created once
// and flipped inactive under maintenance, never deleted; snowflake IDs are
// time-ordered, so ascending ID equals insertion order.
type Shard struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	Type            ShardType    `gorm:"column:shard_type;type:text;not null;index:ix_shards_shard_type" json:"type"`
	ContractRef     string       `gorm:"type:text" json:"contract_ref,omitempty"`
	CurrentLoad     int64        `gorm:"not null" json:"current_load"`
	MaxCapacity     int64        `gorm:"not null" json:"max_capacity"`
	TxCount         int64        `gorm:"not null" json:"tx_count"`
	FailedTxCount   int64        `gorm:"not null" json:"failed_tx_count"`
	OverflowCount   int64        `gorm:"not null" json:"overflow_count"`
	AvgResourceUsed int64        `gorm:"not null" json:"avg_resource_used"`
	Active          bool         `gorm:"not null" json:"active"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Shard) TableName() string { return "shards" }

// AvailableCapacity is the headroom used as the selection score.
func (s Shard) AvailableCapacity() int64 {
	return s.MaxCapacity - s.CurrentLoad
}

// LoadPercent reports utilization relative to capacity.
func (s Shard) LoadPercent() int64 {
	if s.MaxCapacity <= 0 {
		return 100
	}
	return s.CurrentLoad * 100 / s.MaxCapacity
}

// Metrics carries per-shard performance figures, refreshed inside every
// commit that records usage on the shard.
type Metrics struct {
	ShardID          snowflake.ID `gorm:"primaryKey" json:"shard_id"`
	AvgTxTimeMs      float64      `gorm:"not null" json:"avg_tx_time_ms"`
	AvgResourcePrice float64      `gorm:"not null" json:"avg_resource_price"`
	ThroughputPerMin float64      `gorm:"not null" json:"throughput_per_min"`
	ErrorRate        float64      `gorm:"not null" json:"error_rate"`
	LastUpdated      time.Time    `gorm:"not null" json:"last_updated"`
}

// TableName sets the database table name.
func (Metrics) TableName() string { return "shard_metrics" }

// Usage describes the bookkeeping delta of one committed operation (or one
// aggregate batch) against a shard.
type Usage struct {
	// Units is the number of logical operations absorbed; a batch of N
	// targets adds N.
	Units int64
	// ResourceCost is the total resource cost of the commit.
	ResourceCost int64
	// Duration is the measured wall time of the operation.
	Duration time.Duration
	// Success is false when the underlying operation was rejected.
	Success bool
	// Overflow permits the write to push the shard past MaxCapacity;
	// units that actually exceed capacity are counted on the shard's
	// OverflowCount. Non-overflow usage is rejected at the bound.
	Overflow bool
}
