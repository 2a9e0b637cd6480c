package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Kind identifies the mutation a transition performs.
type Kind string

const (
	KindCreateShard       Kind = "create_shard"
	KindAssignShard       Kind = "assign_shard"
	KindRecordUsage       Kind = "record_usage"
	KindCreateParticipant Kind = "create_participant"
	KindCreateProduct     Kind = "create_product"
	KindAdvanceStage      Kind = "advance_stage"
	KindAddQualityCheck   Kind = "add_quality_check"
	KindSensorBatch       Kind = "sensor_batch"
	KindBatchTransfer     Kind = "batch_transfer"
	KindRecallProduct     Kind = "recall_product"
	KindCreateBatch       Kind = "create_batch"
	KindProcessBatch      Kind = "process_batch"
	KindRebalance         Kind = "rebalance"
)

// Transition is a proposed atomic state change. Apply runs inside a single
// database transaction; if it returns an error nothing is persisted and the
// transition is rejected. All validation is expected to happen before the
// transition is submitted.
type Transition struct {
	Kind         Kind
	ResourceCost int64
	Apply        func(ctx context.Context, tx *gorm.DB) error
}

// Receipt acknowledges a committed transition. Once a receipt is returned
// the transition is durable and irrevocable.
type Receipt struct {
	OpID         snowflake.ID `json:"op_id"`
	Sequence     int64        `json:"sequence"`
	ResourceCost int64        `json:"resource_cost"`
	CommittedAt  time.Time    `json:"committed_at"`
}

// Commit is the persisted record of an acknowledged transition. Commits are
// strictly ordered by Sequence and never updated or deleted.
type Commit struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Sequence     int64        `gorm:"not null;uniqueIndex:ux_ledger_commits_sequence"`
	Kind         Kind         `gorm:"type:text;not null;index"`
	ResourceCost int64        `gorm:"not null"`
	CommittedAt  time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Commit) TableName() string { return "ledger_commits" }

// Service is the append-only commit substrate. Commit applies the
// transition atomically and returns its receipt; transitions reaching the
// commit stage are totally ordered.
type Service interface {
	Commit(ctx context.Context, t Transition) (*Receipt, error)
}

var (
	ErrNilApply      = errors.New("nil_transition_apply")
	ErrInvalidKind   = errors.New("invalid_transition_kind")
	ErrLedgerClosed  = errors.New("ledger_closed")
	ErrLedgerStopped = errors.New("ledger_not_running")
)
