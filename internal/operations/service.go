package operations

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/trackchain/trackway/internal/batch/domain"
	"github.com/trackchain/trackway/internal/clock"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SubmitRequest is the uniform operation envelope: a kind plus the
// kind-specific parameters.
type SubmitRequest struct {
	Kind    ledgerdomain.Kind `json:"kind"`
	Payload json.RawMessage   `json:"payload"`
}

type SubmitResponse struct {
	Kind    ledgerdomain.Kind     `json:"kind"`
	Receipt *ledgerdomain.Receipt `json:"receipt,omitempty"`
	Result  any                   `json:"result,omitempty"`
}

// ShardTypeStats aggregates the shards of one type.
type ShardTypeStats struct {
	Type               sharddomain.ShardType `json:"type"`
	ShardCount         int                   `json:"shard_count"`
	ActiveShards       int                   `json:"active_shards"`
	TotalCapacity      int64                 `json:"total_capacity"`
	TotalLoad          int64                 `json:"total_load"`
	UtilizationPercent float64               `json:"utilization_percent"`
	TxCount            int64                 `json:"tx_count"`
	FailedTxCount      int64                 `json:"failed_tx_count"`
	OverflowUnits      int64                 `json:"overflow_units"`
}

type SystemStats struct {
	GeneratedAt time.Time                   `json:"generated_at"`
	CommitCount int64                       `json:"commit_count"`
	Commits     map[ledgerdomain.Kind]int64 `json:"commits_by_kind"`
	Shards      []ShardTypeStats            `json:"shards"`
}

var (
	ErrUnsupportedKind = errors.New("unsupported_operation_kind")
	ErrInvalidPayload  = errors.New("invalid_operation_payload")
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Clock        clock.Clock
	Shards       sharddomain.Service
	Selector     shardingdomain.Service
	Lifecycle    lifecycledomain.Service
	Batches      batchdomain.Service
	Participants participantdomain.Service
}

// Service is the single entry point callers submit operations through; it
// decodes the payload for the kind and dispatches to the owning service.
type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	shards       sharddomain.Service
	selector     shardingdomain.Service
	lifecycle    lifecycledomain.Service
	batches      batchdomain.Service
	participants participantdomain.Service
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("operations.service"),
		clock:        p.Clock,
		shards:       p.Shards,
		selector:     p.Selector,
		lifecycle:    p.Lifecycle,
		batches:      p.Batches,
		participants: p.Participants,
	}
}

type processBatchParams struct {
	BatchID snowflake.ID `json:"batch_id"`
	ActorID snowflake.ID `json:"actor_id"`
}

type rebalanceParams struct {
	Type sharddomain.ShardType `json:"type"`
}

type assignShardParams struct {
	Type          sharddomain.ShardType `json:"type"`
	EstimatedCost int64                 `json:"estimated_cost"`
	Priority      int                   `json:"priority"`
}

type recordUsageParams struct {
	ShardID      snowflake.ID `json:"shard_id"`
	Units        int64        `json:"units"`
	ResourceCost int64        `json:"resource_cost"`
	DurationMs   int64        `json:"duration_ms"`
	Success      bool         `json:"success"`
	Overflow     bool         `json:"overflow"`
}

func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	switch req.Kind {
	case ledgerdomain.KindCreateShard:
		var params sharddomain.CreateShardRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.shards.CreateShard(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindAssignShard:
		var params assignShardParams
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.selector.SelectShard(ctx, params.Type, params.EstimatedCost, params.Priority)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Result: res}, nil

	case ledgerdomain.KindRecordUsage:
		var params recordUsageParams
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		receipt, err := s.shards.RecordUsage(ctx, params.ShardID, sharddomain.Usage{
			Units:        params.Units,
			ResourceCost: params.ResourceCost,
			Duration:     time.Duration(params.DurationMs) * time.Millisecond,
			Success:      params.Success,
			Overflow:     params.Overflow,
		})
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: receipt}, nil

	case ledgerdomain.KindCreateParticipant:
		var params participantdomain.CreateRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.participants.Create(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindCreateProduct:
		var params lifecycledomain.CreateProductRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.lifecycle.CreateProduct(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindAdvanceStage:
		var params lifecycledomain.AdvanceRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.lifecycle.AdvanceStage(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindAddQualityCheck:
		var params lifecycledomain.QualityCheckRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.lifecycle.AddQualityCheck(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindSensorBatch:
		var params lifecycledomain.TemperatureBatchRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.lifecycle.RecordTemperatureBatch(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindBatchTransfer:
		var params lifecycledomain.BatchTransferRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.lifecycle.BatchTransfer(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindRecallProduct:
		var params lifecycledomain.RecallRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.lifecycle.RecallProduct(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindCreateBatch:
		var params batchdomain.CreateBatchRequest
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.batches.CreateBatch(ctx, params)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindProcessBatch:
		var params processBatchParams
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.batches.ProcessBatch(ctx, params.BatchID, params.ActorID)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	case ledgerdomain.KindRebalance:
		var params rebalanceParams
		if err := decode(req.Payload, &params); err != nil {
			return nil, err
		}
		res, err := s.selector.Rebalance(ctx, params.Type)
		if err != nil {
			return nil, err
		}
		return &SubmitResponse{Kind: req.Kind, Receipt: res.Receipt, Result: res}, nil

	default:
		return nil, ErrUnsupportedKind
	}
}

// GetSystemStats reports shard utilization per type plus commit totals.
func (s *Service) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	stats := &SystemStats{
		GeneratedAt: s.clock.Now(),
		Commits:     make(map[ledgerdomain.Kind]int64),
	}

	for _, t := range sharddomain.AllShardTypes {
		shards, err := s.shards.ListByType(ctx, t)
		if err != nil {
			return nil, err
		}
		typeStats := ShardTypeStats{Type: t, ShardCount: len(shards)}
		for _, shard := range shards {
			if shard.Active {
				typeStats.ActiveShards++
			}
			typeStats.TotalCapacity += shard.MaxCapacity
			typeStats.TotalLoad += shard.CurrentLoad
			typeStats.TxCount += shard.TxCount
			typeStats.FailedTxCount += shard.FailedTxCount
			typeStats.OverflowUnits += shard.OverflowCount
		}
		if typeStats.TotalCapacity > 0 {
			typeStats.UtilizationPercent = float64(typeStats.TotalLoad) * 100 / float64(typeStats.TotalCapacity)
		}
		stats.Shards = append(stats.Shards, typeStats)
	}

	type kindCount struct {
		Kind  ledgerdomain.Kind
		Count int64
	}
	var counts []kindCount
	err := s.db.WithContext(ctx).
		Model(&ledgerdomain.Commit{}).
		Select("kind, COUNT(*) AS count").
		Group("kind").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		stats.Commits[c.Kind] = c.Count
		stats.CommitCount += c.Count
	}
	return stats, nil
}

func decode(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return ErrInvalidPayload
	}
	return nil
}

var Module = fx.Module("operations",
	fx.Provide(NewService),
)
