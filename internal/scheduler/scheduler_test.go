package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trackchain/trackway/internal/clock"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type selectorStub struct {
	rebalanced []sharddomain.ShardType
	errs       map[sharddomain.ShardType]error
}

func (s *selectorStub) SelectShard(context.Context, sharddomain.ShardType, int64, int) (*shardingdomain.Assignment, error) {
	panic("not used")
}

func (s *selectorStub) Rebalance(_ context.Context, t sharddomain.ShardType) (*shardingdomain.RebalanceResult, error) {
	s.rebalanced = append(s.rebalanced, t)
	if err := s.errs[t]; err != nil {
		return nil, err
	}
	return &shardingdomain.RebalanceResult{ShardCount: 2, MovedLoad: 10}, nil
}

func newScheduler(t *testing.T, selector shardingdomain.Service) *Scheduler {
	t.Helper()
	s, err := New(Params{
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)),
		Selector: selector,
	})
	require.NoError(t, err)
	return s
}

func TestNewValidatesDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 5*time.Minute, cfg.RunInterval)
	assert.Equal(t, time.Minute, cfg.JobTimeout)

	cfg = Config{RunInterval: time.Second, JobTimeout: 2 * time.Second}.withDefaults()
	assert.Equal(t, time.Second, cfg.RunInterval)
	assert.Equal(t, 2*time.Second, cfg.JobTimeout)
}

func TestRunOnceCoversEveryShardType(t *testing.T) {
	stub := &selectorStub{}
	s := newScheduler(t, stub)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, sharddomain.AllShardTypes, stub.rebalanced)
}

func TestRunOnceSkipsEmptyTypes(t *testing.T) {
	stub := &selectorStub{errs: map[sharddomain.ShardType]error{
		sharddomain.ShardTypeIoT: shardingdomain.ErrNoShardsAvailable,
	}}
	s := newScheduler(t, stub)

	// A type with no shards is not an error; the pass continues.
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, stub.rebalanced, len(sharddomain.AllShardTypes))
}

func TestRunOnceCollectsFailures(t *testing.T) {
	boom := errors.New("rebalance blew up")
	stub := &selectorStub{errs: map[sharddomain.ShardType]error{
		sharddomain.ShardTypeProduct: boom,
	}}
	s := newScheduler(t, stub)

	err := s.RunOnce(context.Background())
	require.ErrorIs(t, err, boom)

	// A failing type never blocks the remaining ones.
	assert.Len(t, stub.rebalanced, len(sharddomain.AllShardTypes))
}
