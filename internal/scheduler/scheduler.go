package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/trackchain/trackway/internal/clock"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Selector shardingdomain.Service
	Config   Config `optional:"true"`
}

// Scheduler periodically levels load across the shards of each type. Every
// pass goes through the ledger like any other mutation; a pass over a type
// with no shards is a no-op.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	selector shardingdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.Selector == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		selector: p.Selector,
	}, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	var errs []error
	for _, t := range sharddomain.AllShardTypes {
		result, err := s.selector.Rebalance(ctx, t)
		if err != nil {
			if errors.Is(err, shardingdomain.ErrNoShardsAvailable) {
				continue
			}
			s.log.Warn("rebalance failed",
				zap.String("shard_type", string(t)),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if result.MovedLoad > 0 {
			s.log.Info("rebalanced shard type",
				zap.String("shard_type", string(t)),
				zap.Int("shard_count", result.ShardCount),
				zap.Int64("moved_load", result.MovedLoad),
			)
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
	}
}
