package operations

import (
	"context"
	"encoding/json"
	"testing"

	auditrepository "github.com/trackchain/trackway/internal/audit/repository"
	auditservice "github.com/trackchain/trackway/internal/audit/service"
	"github.com/trackchain/trackway/internal/authorization"
	batchrepository "github.com/trackchain/trackway/internal/batch/repository"
	batchservice "github.com/trackchain/trackway/internal/batch/service"
	"github.com/trackchain/trackway/internal/config"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecyclerepository "github.com/trackchain/trackway/internal/lifecycle/repository"
	lifecycleservice "github.com/trackchain/trackway/internal/lifecycle/service"
	"github.com/trackchain/trackway/internal/observability/metrics"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	participantrepository "github.com/trackchain/trackway/internal/participant/repository"
	participantservice "github.com/trackchain/trackway/internal/participant/service"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardrepository "github.com/trackchain/trackway/internal/shard/repository"
	shardservice "github.com/trackchain/trackway/internal/shard/service"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
	shardingservice "github.com/trackchain/trackway/internal/sharding/service"
	"github.com/trackchain/trackway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

type harness struct {
	ops          *Service
	participants participantdomain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := testutil.NewClock()
	ledger := testutil.StartLedger(t, db, node, clk)
	log := zap.NewNop()

	cfg := config.Sharding{
		MaxShardsPerType:     5,
		LoadThresholdPercent: 80,
		MinCapacity:          100,
		MaxCapacity:          10000,
		AutoScalingEnabled:   true,
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: auditrepository.Provide(),
	})
	shardRepo := shardrepository.Provide()
	registry := shardservice.NewService(shardservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Cfg: cfg,
		Repo: shardRepo, Ledger: ledger, AuditSvc: auditSvc,
	})
	selector := shardingservice.NewService(shardingservice.Params{
		Log: log, Clock: clk, Cfg: cfg,
		Registry: registry, Repo: shardRepo, Ledger: ledger, AuditSvc: auditSvc,
	})
	participants := participantservice.NewService(participantservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:   participantrepository.Provide(),
		Ledger: ledger, Selector: selector, Registry: registry, AuditSvc: auditSvc,
	})

	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer})

	lifecycle := lifecycleservice.NewService(lifecycleservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:   lifecyclerepository.Provide(),
		Ledger: ledger, Selector: selector, Registry: registry,
		Participants: participants, Authz: authz, AuditSvc: auditSvc,
	})

	instruments, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	batches := batchservice.NewService(batchservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:   batchrepository.Provide(),
		Ledger: ledger, Selector: selector, Registry: registry,
		Lifecycle: lifecycle, Participants: participants,
		Authz: authz, AuditSvc: auditSvc, Metrics: instruments,
	})

	ops := NewService(Params{
		DB: db, Log: log, Clock: clk,
		Shards: registry, Selector: selector,
		Lifecycle: lifecycle, Batches: batches, Participants: participants,
	})
	return &harness{ops: ops, participants: participants}
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestSubmitDispatchesByKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Shard creation through the envelope.
	res, err := h.ops.Submit(ctx, SubmitRequest{
		Kind: ledgerdomain.KindCreateShard,
		Payload: payload(t, sharddomain.CreateShardRequest{
			Type:        sharddomain.ShardTypeProduct,
			MaxCapacity: 5000,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.KindCreateShard, res.Kind)
	require.NotNil(t, res.Receipt)
	assert.Equal(t, int64(1), res.Receipt.Sequence)

	// Participant creation rides the same envelope and the next sequence.
	res, err = h.ops.Submit(ctx, SubmitRequest{
		Kind: ledgerdomain.KindCreateParticipant,
		Payload: payload(t, participantdomain.CreateRequest{
			Address: "0xacme",
			UserKey: "acme-farms",
			Role:    participantdomain.RoleSupplier,
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.Greater(t, res.Receipt.Sequence, int64(1))
}

func TestSubmitShardAssignmentAndUsage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.ops.Submit(ctx, SubmitRequest{
		Kind: ledgerdomain.KindCreateShard,
		Payload: payload(t, sharddomain.CreateShardRequest{
			Type:        sharddomain.ShardTypeProduct,
			MaxCapacity: 1000,
		}),
	})
	require.NoError(t, err)
	shard := created.Result.(*sharddomain.ShardResponse).Shard

	// Selection is a read plus possible auto-scale; here it lands on the
	// existing shard with no commit.
	assigned, err := h.ops.Submit(ctx, SubmitRequest{
		Kind: ledgerdomain.KindAssignShard,
		Payload: payload(t, assignShardParams{
			Type:          sharddomain.ShardTypeProduct,
			EstimatedCost: 65000,
			Priority:      1,
		}),
	})
	require.NoError(t, err)
	assert.Nil(t, assigned.Receipt)
	assignment := assigned.Result.(*shardingdomain.Assignment)
	assert.Equal(t, shard.ID, assignment.ShardID)
	assert.False(t, assignment.Overflow)

	recorded, err := h.ops.Submit(ctx, SubmitRequest{
		Kind: ledgerdomain.KindRecordUsage,
		Payload: payload(t, recordUsageParams{
			ShardID:      shard.ID,
			Units:        3,
			ResourceCost: 195000,
			DurationMs:   120,
			Success:      true,
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, recorded.Receipt)

	stats, err := h.ops.GetSystemStats(ctx)
	require.NoError(t, err)
	for _, s := range stats.Shards {
		if s.Type == sharddomain.ShardTypeProduct {
			assert.Equal(t, int64(3), s.TotalLoad)
		}
	}
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	h := newHarness(t)

	_, err := h.ops.Submit(context.Background(), SubmitRequest{
		Kind:    "mint_token",
		Payload: json.RawMessage(`{}`),
	})
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestSubmitRejectsBadPayload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ops.Submit(ctx, SubmitRequest{Kind: ledgerdomain.KindCreateShard})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = h.ops.Submit(ctx, SubmitRequest{
		Kind:    ledgerdomain.KindCreateShard,
		Payload: json.RawMessage(`{not json`),
	})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSubmitPropagatesDomainErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.ops.Submit(context.Background(), SubmitRequest{
		Kind:    ledgerdomain.KindCreateShard,
		Payload: payload(t, sharddomain.CreateShardRequest{Type: "warehouse"}),
	})
	assert.ErrorIs(t, err, sharddomain.ErrInvalidShardType)
}

func TestGetSystemStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ops.Submit(ctx, SubmitRequest{
		Kind: ledgerdomain.KindCreateShard,
		Payload: payload(t, sharddomain.CreateShardRequest{
			Type:        sharddomain.ShardTypeProduct,
			MaxCapacity: 1000,
		}),
	})
	require.NoError(t, err)
	_, err = h.participants.Create(ctx, participantdomain.CreateRequest{
		Address: "0xacme", UserKey: "acme-farms", Role: participantdomain.RoleSupplier,
	})
	require.NoError(t, err)

	stats, err := h.ops.GetSystemStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Shards, len(sharddomain.AllShardTypes))

	byType := make(map[sharddomain.ShardType]ShardTypeStats, len(stats.Shards))
	for _, s := range stats.Shards {
		byType[s.Type] = s
	}

	product := byType[sharddomain.ShardTypeProduct]
	assert.Equal(t, 1, product.ShardCount)
	assert.Equal(t, 1, product.ActiveShards)
	assert.Equal(t, int64(1000), product.TotalCapacity)
	assert.Zero(t, product.TotalLoad)

	// Participant creation auto-scaled its own shard and wrote one unit.
	participant := byType[sharddomain.ShardTypeParticipant]
	assert.Equal(t, 1, participant.ShardCount)
	assert.Equal(t, int64(1), participant.TotalLoad)
	assert.InDelta(t, 0.01, participant.UtilizationPercent, 0.0001)

	assert.Zero(t, byType[sharddomain.ShardTypeIoT].ShardCount)

	// Three commits so far: two shard creations and one participant.
	assert.Equal(t, int64(3), stats.CommitCount)
	assert.Equal(t, int64(2), stats.Commits[ledgerdomain.KindCreateShard])
	assert.Equal(t, int64(1), stats.Commits[ledgerdomain.KindCreateParticipant])
}
