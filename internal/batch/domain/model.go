package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCommitted Status = "committed"
	StatusRejected  Status = "rejected"
)

// Batch is a staged group of like operations committed as one unit. The
// payload carries the per-operation parameters, snappy-compressed when the
// batch was created with compression enabled.
type Batch struct {
	ID                snowflake.ID      `gorm:"primaryKey" json:"id"`
	IdempotencyKey    string            `gorm:"type:text;not null;uniqueIndex:ux_batch_operations_idempotency_key" json:"idempotency_key"`
	OperationType     ledgerdomain.Kind `gorm:"type:text;not null" json:"operation_type"`
	Targets           datatypes.JSON    `gorm:"not null" json:"targets"`
	Payload           []byte            `gorm:"not null" json:"-"`
	OptimizationLevel int               `gorm:"not null" json:"optimization_level"`
	Compressed        bool              `gorm:"not null" json:"compressed"`
	Parallel          bool              `gorm:"not null" json:"parallel"`
	EstimatedCost     int64             `gorm:"not null" json:"estimated_cost"`
	ActualCost        int64             `gorm:"not null" json:"actual_cost"`
	Status            Status            `gorm:"type:text;not null;index" json:"status"`
	RejectReason      string            `gorm:"type:text" json:"reject_reason,omitempty"`
	ShardID           snowflake.ID      `gorm:"not null;index" json:"shard_id"`
	CreatedBy         snowflake.ID      `gorm:"not null" json:"created_by"`
	CreatedAt         time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"not null" json:"updated_at"`
	ProcessedAt       *time.Time        `json:"processed_at,omitempty"`
}

// TableName sets the database table name.
func (Batch) TableName() string { return "batch_operations" }

// TransferPayload is the parameter block of a batch_transfer batch.
type TransferPayload struct {
	NewOwner    snowflake.ID          `json:"new_owner"`
	NewStage    lifecycledomain.Stage `json:"new_stage"`
	NewLocation string                `json:"new_location"`
	Notes       string                `json:"notes,omitempty"`
}
