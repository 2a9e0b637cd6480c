package service

import (
	"context"
	"testing"
	"time"

	auditrepository "github.com/trackchain/trackway/internal/audit/repository"
	auditservice "github.com/trackchain/trackway/internal/audit/service"
	"github.com/trackchain/trackway/internal/config"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	"github.com/trackchain/trackway/internal/shard/domain"
	"github.com/trackchain/trackway/internal/shard/repository"
	"github.com/trackchain/trackway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func testShardingConfig() config.Sharding {
	return config.Sharding{
		MaxShardsPerType:     3,
		LoadThresholdPercent: 80,
		MinCapacity:          100,
		MaxCapacity:          10000,
		AutoScalingEnabled:   true,
	}
}

type harness struct {
	db       *gorm.DB
	registry domain.Service
}

func newHarness(t *testing.T, cfg config.Sharding) harness {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := testutil.NewClock()
	ledger := testutil.StartLedger(t, db, node, clk)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})

	registry := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      cfg,
		Repo:     repository.Provide(),
		Ledger:   ledger,
		AuditSvc: auditSvc,
	})
	return harness{db: db, registry: registry}
}

func TestCreateShardValidation(t *testing.T) {
	h := newHarness(t, testShardingConfig())
	ctx := context.Background()

	t.Run("invalid type", func(t *testing.T) {
		_, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{Type: "warehouse"})
		assert.ErrorIs(t, err, domain.ErrInvalidShardType)
	})

	t.Run("capacity below minimum", func(t *testing.T) {
		_, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{
			Type:        domain.ShardTypeProduct,
			MaxCapacity: 50,
		})
		assert.ErrorIs(t, err, domain.ErrCapacityConfig)
	})

	t.Run("capacity above maximum", func(t *testing.T) {
		_, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{
			Type:        domain.ShardTypeProduct,
			MaxCapacity: 20000,
		})
		assert.ErrorIs(t, err, domain.ErrCapacityConfig)
	})

	t.Run("zero selects configured maximum", func(t *testing.T) {
		res, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{Type: domain.ShardTypeProduct})
		require.NoError(t, err)
		assert.Equal(t, int64(10000), res.Shard.MaxCapacity)
		assert.True(t, res.Shard.Active)
		require.NotNil(t, res.Receipt)
	})
}

func TestCreateShardEnforcesTypeLimit(t *testing.T) {
	h := newHarness(t, testShardingConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{Type: domain.ShardTypeIoT})
		require.NoError(t, err)
	}

	_, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{Type: domain.ShardTypeIoT})
	assert.ErrorIs(t, err, domain.ErrTypeLimit)

	// Limits are per type.
	_, err = h.registry.CreateShard(ctx, domain.CreateShardRequest{Type: domain.ShardTypeProduct})
	assert.NoError(t, err)
}

func TestRecordUsageBookkeeping(t *testing.T) {
	h := newHarness(t, testShardingConfig())
	ctx := context.Background()

	created, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{
		Type:        domain.ShardTypeProduct,
		MaxCapacity: 100,
	})
	require.NoError(t, err)
	shardID := created.Shard.ID

	_, err = h.registry.RecordUsage(ctx, shardID, domain.Usage{
		Units:        10,
		ResourceCost: 650000,
		Duration:     200 * time.Millisecond,
		Success:      true,
	})
	require.NoError(t, err)

	res, err := h.registry.GetShard(ctx, shardID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Shard.CurrentLoad)
	assert.Equal(t, int64(10), res.Shard.TxCount)
	assert.Zero(t, res.Shard.FailedTxCount)
	assert.Zero(t, res.Shard.OverflowCount)
	assert.Equal(t, int64(65000), res.Shard.AvgResourceUsed)
	require.NotNil(t, res.Metrics)
	assert.InDelta(t, 20.0, res.Metrics.AvgTxTimeMs, 0.001)

	_, err = h.registry.RecordUsage(ctx, shardID, domain.Usage{
		Units:        5,
		ResourceCost: 325000,
		Success:      false,
	})
	require.NoError(t, err)

	res, err = h.registry.GetShard(ctx, shardID)
	require.NoError(t, err)
	assert.Equal(t, int64(15), res.Shard.CurrentLoad)
	assert.Equal(t, int64(5), res.Shard.FailedTxCount)
	assert.InDelta(t, float64(5)/float64(15)*100, res.Metrics.ErrorRate, 0.001)
}

func TestUsageRespectsCapacityUnlessOverflow(t *testing.T) {
	h := newHarness(t, testShardingConfig())
	ctx := context.Background()

	created, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{
		Type:        domain.ShardTypeProduct,
		MaxCapacity: 100,
	})
	require.NoError(t, err)
	shardID := created.Shard.ID

	_, err = h.registry.RecordUsage(ctx, shardID, domain.Usage{Units: 95, Success: true})
	require.NoError(t, err)

	// A plain write past capacity is rejected and nothing moves.
	_, err = h.registry.RecordUsage(ctx, shardID, domain.Usage{Units: 10, Success: true})
	require.ErrorIs(t, err, domain.ErrOverCapacity)

	res, err := h.registry.GetShard(ctx, shardID)
	require.NoError(t, err)
	assert.Equal(t, int64(95), res.Shard.CurrentLoad)
	assert.Zero(t, res.Shard.OverflowCount)

	// The same write flagged overflow is accepted and counted.
	_, err = h.registry.RecordUsage(ctx, shardID, domain.Usage{Units: 10, Success: true, Overflow: true})
	require.NoError(t, err)

	res, err = h.registry.GetShard(ctx, shardID)
	require.NoError(t, err)
	assert.Equal(t, int64(105), res.Shard.CurrentLoad)
	assert.Equal(t, int64(10), res.Shard.OverflowCount)
}

func TestUsageValidation(t *testing.T) {
	h := newHarness(t, testShardingConfig())
	ctx := context.Background()

	_, err := h.registry.RecordUsage(ctx, 42, domain.Usage{Units: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidUsageUnits)

	_, err = h.registry.RecordUsage(ctx, 42, domain.Usage{Units: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeactivateShard(t *testing.T) {
	h := newHarness(t, testShardingConfig())
	ctx := context.Background()

	created, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{Type: domain.ShardTypeProduct})
	require.NoError(t, err)

	res, err := h.registry.DeactivateShard(ctx, created.Shard.ID)
	require.NoError(t, err)
	assert.False(t, res.Shard.Active)

	_, err = h.registry.DeactivateShard(ctx, created.Shard.ID)
	assert.ErrorIs(t, err, domain.ErrShardInactive)

	active, err := h.registry.ListActiveByType(ctx, domain.ShardTypeProduct)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCommitCountMatchesOperations(t *testing.T) {
	h := newHarness(t, testShardingConfig())
	ctx := context.Background()

	created, err := h.registry.CreateShard(ctx, domain.CreateShardRequest{Type: domain.ShardTypeProduct})
	require.NoError(t, err)
	_, err = h.registry.RecordUsage(ctx, created.Shard.ID, domain.Usage{Units: 1, Success: true})
	require.NoError(t, err)

	var count int64
	require.NoError(t, h.db.Model(&ledgerdomain.Commit{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
