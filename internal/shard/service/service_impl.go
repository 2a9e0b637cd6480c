package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	"github.com/trackchain/trackway/internal/clock"
	"github.com/trackchain/trackway/internal/config"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	obsmetrics "github.com/trackchain/trackway/internal/observability/metrics"
	"github.com/trackchain/trackway/internal/shard/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Sharding
	Repo     domain.Repository
	Ledger   ledgerdomain.Service
	AuditSvc auditdomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Sharding
	repo     domain.Repository
	ledger   ledgerdomain.Service
	auditSvc auditdomain.Service
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("shard.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		repo:     p.Repo,
		ledger:   p.Ledger,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) CreateShard(ctx context.Context, req domain.CreateShardRequest) (*domain.ShardResponse, error) {
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidShardType
	}

	capacity := req.MaxCapacity
	if capacity == 0 {
		capacity = s.cfg.MaxCapacity
	}
	if capacity < s.cfg.MinCapacity || capacity > s.cfg.MaxCapacity {
		return nil, domain.ErrCapacityConfig
	}

	count, err := s.repo.CountByType(ctx, s.db, req.Type)
	if err != nil {
		return nil, err
	}
	if count >= int64(s.cfg.MaxShardsPerType) {
		return nil, domain.ErrTypeLimit
	}

	now := s.clock.Now()
	shard := domain.Shard{
		ID:          s.genID.Generate(),
		Type:        req.Type,
		ContractRef: req.ContractRef,
		MaxCapacity: capacity,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	metrics := domain.Metrics{
		ShardID:     shard.ID,
		LastUpdated: now,
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind: ledgerdomain.KindCreateShard,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			// The type limit is re-checked inside the commit; the writer
			// loop serializes transitions, so the count cannot move
			// between check and insert.
			count, err := s.repo.CountByType(ctx, tx, req.Type)
			if err != nil {
				return err
			}
			if count >= int64(s.cfg.MaxShardsPerType) {
				return domain.ErrTypeLimit
			}
			if err := s.repo.Insert(ctx, tx, &shard, &metrics); err != nil {
				return err
			}
			return s.auditSvc.Append(ctx, tx, auditdomain.NewEntry{
				ActorType:  auditdomain.ActorTypeSystem,
				Action:     "shard.created",
				TargetType: "shard",
				TargetID:   shard.ID.String(),
				Metadata: map[string]any{
					"shard_type":   string(req.Type),
					"max_capacity": capacity,
					"auto_scaled":  req.AutoScaled,
				},
			})
		},
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncShardCreated(ctx, string(req.Type), req.AutoScaled)
	}
	s.log.Info("shard created",
		zap.String("shard_id", shard.ID.String()),
		zap.String("shard_type", string(req.Type)),
		zap.Int64("max_capacity", capacity),
		zap.Bool("auto_scaled", req.AutoScaled),
	)

	return &domain.ShardResponse{Shard: shard, Metrics: &metrics, Receipt: receipt}, nil
}

func (s *Service) GetShard(ctx context.Context, id snowflake.ID) (*domain.ShardResponse, error) {
	shard, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if shard == nil {
		return nil, domain.ErrNotFound
	}
	metrics, err := s.repo.FindMetrics(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &domain.ShardResponse{Shard: *shard, Metrics: metrics}, nil
}

func (s *Service) ListByType(ctx context.Context, t domain.ShardType) ([]domain.Shard, error) {
	if !t.Valid() {
		return nil, domain.ErrInvalidShardType
	}
	return s.repo.FindByType(ctx, s.db, t, false)
}

func (s *Service) ListActiveByType(ctx context.Context, t domain.ShardType) ([]domain.Shard, error) {
	if !t.Valid() {
		return nil, domain.ErrInvalidShardType
	}
	return s.repo.FindByType(ctx, s.db, t, true)
}

func (s *Service) ListAll(ctx context.Context) ([]domain.Shard, error) {
	return s.repo.FindAll(ctx, s.db)
}

func (s *Service) CountByType(ctx context.Context, t domain.ShardType) (int64, error) {
	if !t.Valid() {
		return 0, domain.ErrInvalidShardType
	}
	return s.repo.CountByType(ctx, s.db, t)
}

func (s *Service) DeactivateShard(ctx context.Context, id snowflake.ID) (*domain.ShardResponse, error) {
	existing, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrNotFound
	}
	if !existing.Active {
		return nil, domain.ErrShardInactive
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind: ledgerdomain.KindAssignShard,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			existing.Active = false
			existing.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, existing); err != nil {
				return err
			}
			return s.auditSvc.Append(ctx, tx, auditdomain.NewEntry{
				ActorType:  auditdomain.ActorTypeSystem,
				Action:     "shard.deactivated",
				TargetType: "shard",
				TargetID:   existing.ID.String(),
			})
		},
	})
	if err != nil {
		return nil, err
	}
	return &domain.ShardResponse{Shard: *existing, Receipt: receipt}, nil
}

// RecordUsage commits a standalone usage record. Operations that already
// run inside a transition call ApplyUsage directly instead.
func (s *Service) RecordUsage(ctx context.Context, shardID snowflake.ID, usage domain.Usage) (*ledgerdomain.Receipt, error) {
	return s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindRecordUsage,
		ResourceCost: usage.ResourceCost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			return s.ApplyUsage(ctx, tx, shardID, usage, s.clock.Now())
		},
	})
}

// ApplyUsage moves the shard's load counters and performance figures inside
// the caller's transaction, keeping bookkeeping atomic with the operation
// it accounts for.
func (s *Service) ApplyUsage(ctx context.Context, tx *gorm.DB, shardID snowflake.ID, usage domain.Usage, now time.Time) error {
	if usage.Units <= 0 {
		return domain.ErrInvalidUsageUnits
	}

	shard, err := s.repo.FindByID(ctx, tx, shardID)
	if err != nil {
		return err
	}
	if shard == nil {
		return domain.ErrNotFound
	}

	newLoad := shard.CurrentLoad + usage.Units
	if newLoad > shard.MaxCapacity {
		if !usage.Overflow {
			return domain.ErrOverCapacity
		}
		shard.OverflowCount += usage.Units
	}

	prevTx := shard.TxCount
	shard.CurrentLoad = newLoad
	shard.TxCount += usage.Units
	if !usage.Success {
		shard.FailedTxCount += usage.Units
	}
	if shard.TxCount > 0 {
		shard.AvgResourceUsed = (shard.AvgResourceUsed*prevTx + usage.ResourceCost) / shard.TxCount
	}
	shard.UpdatedAt = now

	if err := s.repo.Update(ctx, tx, shard); err != nil {
		return err
	}

	metrics, err := s.repo.FindMetrics(ctx, tx, shardID)
	if err != nil {
		return err
	}
	if metrics == nil {
		metrics = &domain.Metrics{ShardID: shardID}
	}

	perOpMs := float64(usage.Duration.Milliseconds()) / float64(usage.Units)
	if prevTx == 0 {
		metrics.AvgTxTimeMs = perOpMs
	} else {
		metrics.AvgTxTimeMs = (metrics.AvgTxTimeMs*float64(prevTx) + perOpMs*float64(usage.Units)) / float64(shard.TxCount)
	}
	metrics.AvgResourcePrice = float64(shard.AvgResourceUsed)
	metrics.ErrorRate = float64(shard.FailedTxCount) / float64(shard.TxCount) * 100
	if minutes := now.Sub(shard.CreatedAt).Minutes(); minutes > 0 {
		metrics.ThroughputPerMin = float64(shard.TxCount) / minutes
	} else {
		metrics.ThroughputPerMin = float64(shard.TxCount)
	}
	metrics.LastUpdated = now

	return s.repo.UpdateMetrics(ctx, tx, metrics)
}
