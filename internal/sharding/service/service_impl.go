package service

import (
	"context"

	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	"github.com/trackchain/trackway/internal/clock"
	"github.com/trackchain/trackway/internal/config"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	obsmetrics "github.com/trackchain/trackway/internal/observability/metrics"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	"github.com/trackchain/trackway/internal/sharding/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// Expensive operations get a headroom bonus so they land on shards
	// with slack, reducing contention on busy ones.
	bonusCostThreshold = 500000
	// Minimum available capacity, in units, for the bonus to apply.
	bonusHeadroomFloor = 100
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Cfg      config.Sharding
	Registry sharddomain.Service
	Repo     sharddomain.Repository
	Ledger   ledgerdomain.Service
	AuditSvc auditdomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	cfg      config.Sharding
	registry sharddomain.Service
	repo     sharddomain.Repository
	ledger   ledgerdomain.Service
	auditSvc auditdomain.Service
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("sharding.service"),
		clock:    p.Clock,
		cfg:      p.Cfg,
		registry: p.Registry,
		repo:     p.Repo,
		ledger:   p.Ledger,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

// SelectShard picks the active shard of the type with the most headroom
// below the load threshold. When none qualifies it auto-scales if the type
// still has room, and otherwise falls back to the least-loaded shard with
// the assignment flagged as overflow.
//
// priority is carried on the wire for callers but does not influence
// placement; cost does, via the headroom bonus.
func (s *Service) SelectShard(ctx context.Context, t sharddomain.ShardType, estimatedCost int64, priority int) (*domain.Assignment, error) {
	if !t.Valid() {
		return nil, sharddomain.ErrInvalidShardType
	}

	shards, err := s.registry.ListActiveByType(ctx, t)
	if err != nil {
		return nil, err
	}

	// Shards arrive in insertion order; keeping the first of equal scores
	// implements the lowest-id tie-break.
	var best *sharddomain.Shard
	var bestScore int64
	for i := range shards {
		sh := &shards[i]
		if sh.LoadPercent() >= s.cfg.LoadThresholdPercent {
			continue
		}
		score := sh.AvailableCapacity()
		if estimatedCost > bonusCostThreshold && sh.AvailableCapacity() > bonusHeadroomFloor {
			score += score / 10
		}
		if best == nil || score > bestScore {
			best = sh
			bestScore = score
		}
	}
	if best != nil {
		if s.metrics != nil {
			s.metrics.IncShardAssignment(ctx, string(t), false)
		}
		return &domain.Assignment{ShardID: best.ID}, nil
	}

	count, err := s.registry.CountByType(ctx, t)
	if err != nil {
		return nil, err
	}
	if s.cfg.AutoScalingEnabled && count < int64(s.cfg.MaxShardsPerType) {
		resp, err := s.registry.CreateShard(ctx, sharddomain.CreateShardRequest{
			Type:       t,
			AutoScaled: true,
		})
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.IncShardAssignment(ctx, string(t), false)
		}
		s.log.Info("auto-scaled shard for assignment",
			zap.String("shard_type", string(t)),
			zap.String("shard_id", resp.Shard.ID.String()),
			zap.Int64("estimated_cost", estimatedCost),
		)
		return &domain.Assignment{ShardID: resp.Shard.ID, AutoScaled: true}, nil
	}

	if len(shards) == 0 {
		return nil, domain.ErrNoShardsAvailable
	}

	// Degraded overflow assignment: every shard is above the threshold and
	// the type cannot grow, so take the globally least-loaded one.
	least := &shards[0]
	for i := range shards[1:] {
		if shards[i+1].CurrentLoad < least.CurrentLoad {
			least = &shards[i+1]
		}
	}
	if s.metrics != nil {
		s.metrics.IncShardAssignment(ctx, string(t), true)
	}
	s.log.Warn("overflow shard assignment",
		zap.String("shard_type", string(t)),
		zap.String("shard_id", least.ID.String()),
		zap.Int64("current_load", least.CurrentLoad),
		zap.Int64("estimated_cost", estimatedCost),
		zap.Int("priority", priority),
	)
	return &domain.Assignment{ShardID: least.ID, Overflow: true}, nil
}

// Rebalance evens out the recorded load counters across the type's active
// shards. It moves bookkeeping only: committed domain records keep their
// shard, so the effect is on future routing, not historical assignment.
func (s *Service) Rebalance(ctx context.Context, t sharddomain.ShardType) (*domain.RebalanceResult, error) {
	if !t.Valid() {
		return nil, sharddomain.ErrInvalidShardType
	}

	active, err := s.registry.ListActiveByType(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, domain.ErrNoShardsAvailable
	}
	if len(active) == 1 {
		return &domain.RebalanceResult{Type: t, ShardCount: 1}, nil
	}

	result := domain.RebalanceResult{Type: t}
	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind: ledgerdomain.KindRebalance,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			shards, err := s.repo.FindByType(ctx, tx, t, true)
			if err != nil {
				return err
			}
			if len(shards) < 2 {
				result.ShardCount = len(shards)
				return nil
			}

			var total int64
			for _, sh := range shards {
				total += sh.CurrentLoad
			}
			share := total / int64(len(shards))
			remainder := total % int64(len(shards))

			now := s.clock.Now()
			var moved int64
			for i := range shards {
				target := share
				if int64(i) < remainder {
					target++
				}
				if shards[i].CurrentLoad > target {
					moved += shards[i].CurrentLoad - target
				}
				if shards[i].CurrentLoad == target {
					continue
				}
				shards[i].CurrentLoad = target
				shards[i].UpdatedAt = now
				if err := s.repo.Update(ctx, tx, &shards[i]); err != nil {
					return err
				}
			}

			result.ShardCount = len(shards)
			result.MovedLoad = moved
			return s.auditSvc.Append(ctx, tx, auditdomain.NewEntry{
				ActorType:  auditdomain.ActorTypeSystem,
				Action:     "shard.rebalanced",
				TargetType: "shard_type",
				TargetID:   string(t),
				Metadata: map[string]any{
					"shard_count": len(shards),
					"moved_load":  moved,
				},
			})
		},
	})
	if err != nil {
		return nil, err
	}

	result.Receipt = receipt
	s.log.Info("rebalanced shard type",
		zap.String("shard_type", string(t)),
		zap.Int("shard_count", result.ShardCount),
		zap.Int64("moved_load", result.MovedLoad),
	)
	return &result, nil
}
