package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/trackchain/trackway/internal/audit/repository"
	auditservice "github.com/trackchain/trackway/internal/audit/service"
	"github.com/trackchain/trackway/internal/config"
	"github.com/trackchain/trackway/internal/participant/domain"
	"github.com/trackchain/trackway/internal/participant/repository"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardrepository "github.com/trackchain/trackway/internal/shard/repository"
	shardservice "github.com/trackchain/trackway/internal/shard/service"
	shardingservice "github.com/trackchain/trackway/internal/sharding/service"
	"github.com/trackchain/trackway/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db           *gorm.DB
	registry     sharddomain.Service
	participants domain.Service
}

func newHarness(t *testing.T) harness {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := testutil.NewClock()
	ledger := testutil.StartLedger(t, db, node, clk)
	log := zap.NewNop()

	cfg := config.Sharding{
		MaxShardsPerType:     3,
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
	participants := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:   repository.Provide(),
		Ledger: ledger, Selector: selector, Registry: registry, AuditSvc: auditSvc,
	})
	return harness{db: db, registry: registry, participants: participants}
}

func TestCreateParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.participants.Create(ctx, domain.CreateRequest{
		Address: "0xacme",
		UserKey: "acme-farms",
		Role:    domain.RoleSupplier,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)
	assert.True(t, res.Participant.Active)
	assert.Equal(t, domain.RoleSupplier, res.Participant.Role)

	// The first participant auto-scales a participant shard and lands on it.
	shard, err := h.registry.GetShard(ctx, res.Participant.ShardID)
	require.NoError(t, err)
	assert.Equal(t, sharddomain.ShardTypeParticipant, shard.Shard.Type)
	assert.Equal(t, int64(1), shard.Shard.CurrentLoad)
}

func TestCreateParticipantValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.participants.Create(ctx, domain.CreateRequest{
		UserKey: "k", Role: domain.RoleSupplier,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = h.participants.Create(ctx, domain.CreateRequest{
		Address: "0x1", Role: domain.RoleSupplier,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidUserKey)

	_, err = h.participants.Create(ctx, domain.CreateRequest{
		Address: "0x1", UserKey: "k", Role: "auditor",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestCreateParticipantRejectsDuplicateKey(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.participants.Create(ctx, domain.CreateRequest{
		Address: "0x1", UserKey: "acme-farms", Role: domain.RoleSupplier,
	})
	require.NoError(t, err)

	_, err = h.participants.Create(ctx, domain.CreateRequest{
		Address: "0x2", UserKey: "acme-farms", Role: domain.RoleRetailer,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestDeactivateParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.participants.Create(ctx, domain.CreateRequest{
		Address: "0x1", UserKey: "acme-farms", Role: domain.RoleSupplier,
	})
	require.NoError(t, err)
	id := created.Participant.ID

	res, err := h.participants.Deactivate(ctx, id)
	require.NoError(t, err)
	assert.False(t, res.Participant.Active)

	_, err = h.participants.Deactivate(ctx, id)
	assert.ErrorIs(t, err, domain.ErrInactive)

	// Inactive parties can no longer act.
	_, err = h.participants.RequireActive(ctx, id)
	assert.ErrorIs(t, err, domain.ErrInactive)

	_, err = h.participants.RequireActive(ctx, snowflake.ID(424242))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
