package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditrepository "github.com/trackchain/trackway/internal/audit/repository"
	auditservice "github.com/trackchain/trackway/internal/audit/service"
	"github.com/trackchain/trackway/internal/authorization"
	"github.com/trackchain/trackway/internal/config"
	"github.com/trackchain/trackway/internal/lifecycle/domain"
	"github.com/trackchain/trackway/internal/lifecycle/repository"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	participantrepository "github.com/trackchain/trackway/internal/participant/repository"
	participantservice "github.com/trackchain/trackway/internal/participant/service"
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
	participants participantdomain.Service
	lifecycle    domain.Service

	supplier  participantdomain.Participant
	regulator participantdomain.Participant
	retailer  participantdomain.Participant
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

	lifecycle := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:   repository.Provide(),
		Ledger: ledger, Selector: selector, Registry: registry,
		Participants: participants, Authz: authz, AuditSvc: auditSvc,
	})

	h := &harness{
		db:           db,
		registry:     registry,
		participants: participants,
		lifecycle:    lifecycle,
	}
	h.supplier = h.createParticipant(t, "acme-farms", participantdomain.RoleSupplier)
	h.regulator = h.createParticipant(t, "fda-west", participantdomain.RoleRegulator)
	h.retailer = h.createParticipant(t, "shopmart-12", participantdomain.RoleRetailer)
	return h
}

func (h *harness) createParticipant(t *testing.T, key string, role participantdomain.Role) participantdomain.Participant {
	t.Helper()
	res, err := h.participants.Create(context.Background(), participantdomain.CreateRequest{
		Address: "0x" + key,
		UserKey: key,
		Role:    role,
	})
	require.NoError(t, err)
	return res.Participant
}

func (h *harness) createProduct(t *testing.T) domain.Product {
	t.Helper()
	res, err := h.lifecycle.CreateProduct(context.Background(), domain.CreateProductRequest{
		Name:        "arabica beans",
		Category:    "coffee",
		BatchNumber: "LOT-2025-001",
		OwnerID:     h.supplier.ID,
	})
	require.NoError(t, err)
	return res.Product
}

func TestCreateProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	product := h.createProduct(t)
	assert.Equal(t, domain.StageCreated, product.CurrentStage)
	assert.Equal(t, h.supplier.ID, product.CurrentOwner)
	assert.True(t, product.Active)
	assert.NotZero(t, product.ShardID)

	// Creation routes to an auto-scaled product shard and records one unit.
	res, err := h.registry.GetShard(ctx, product.ShardID)
	require.NoError(t, err)
	assert.Equal(t, sharddomain.ShardTypeProduct, res.Shard.Type)
	assert.Equal(t, int64(1), res.Shard.CurrentLoad)

	// No location entry exists until the product first moves.
	history, err := h.lifecycle.GetHistory(ctx, product.ID)
	require.NoError(t, err)
	assert.Empty(t, history.Locations)
	assert.Empty(t, history.Ownership)
}

func TestCreateProductValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.lifecycle.CreateProduct(ctx, domain.CreateProductRequest{
		BatchNumber: "LOT-1", OwnerID: h.supplier.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = h.lifecycle.CreateProduct(ctx, domain.CreateProductRequest{
		Name: "beans", OwnerID: h.supplier.ID,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidBatchNumber)

	// Retailers may move products but not originate them.
	_, err = h.lifecycle.CreateProduct(ctx, domain.CreateProductRequest{
		Name: "beans", BatchNumber: "LOT-1", OwnerID: h.retailer.ID,
	})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestAdvanceStageRejectsSkippedStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.createProduct(t)

	_, err := h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID,
		ActorID:   h.supplier.ID,
		NewStage:  domain.StageRawMaterial,
		Location:  "farm gate",
	})
	require.NoError(t, err)

	// Skipping manufacturing is rejected and nothing changes.
	_, err = h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID,
		ActorID:   h.supplier.ID,
		NewStage:  domain.StageQualityControl,
		Location:  "lab",
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	current, err := h.lifecycle.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageRawMaterial, current.CurrentStage)

	history, err := h.lifecycle.GetHistory(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, history.Locations, 1)

	// The exact next stage is accepted.
	_, err = h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID,
		ActorID:   h.supplier.ID,
		NewStage:  domain.StageManufacturing,
		Location:  "plant 7",
	})
	assert.NoError(t, err)
}

func TestAdvanceStageWalksFullPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.createProduct(t)

	steps := []struct {
		stage    domain.Stage
		location string
	}{
		{domain.StageRawMaterial, "farm gate"},
		{domain.StageManufacturing, "plant 7"},
		{domain.StageQualityControl, "lab"},
		{domain.StagePackaging, "pack line 2"},
		{domain.StageDistribution, "dc-north"},
		{domain.StageRetail, "store 44"},
	}
	for _, step := range steps {
		_, err := h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
			ProductID: product.ID,
			ActorID:   h.supplier.ID,
			NewStage:  step.stage,
			Location:  step.location,
		})
		require.NoError(t, err)
	}

	current, err := h.lifecycle.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageRetail, current.CurrentStage)

	history, err := h.lifecycle.GetHistory(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, history.Locations, 6)
	for i, entry := range history.Locations {
		assert.Equal(t, int64(i+1), entry.Seq)
		assert.Equal(t, steps[i].stage, entry.Stage)
		assert.Equal(t, steps[i].location, entry.Location)
	}

	// The supplier held the product throughout, so custody never moved.
	assert.Empty(t, history.Ownership)
}

func TestAdvanceStageValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.createProduct(t)

	_, err := h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID, ActorID: h.supplier.ID, NewStage: domain.StageRawMaterial,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidLocation)

	_, err = h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID, ActorID: h.supplier.ID, NewStage: "shipping", Location: "x",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidStage)

	// Recall is not reachable through advance.
	_, err = h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID, ActorID: h.supplier.ID, NewStage: domain.StageRecalled, Location: "x",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: snowflake.ID(424242), ActorID: h.supplier.ID, NewStage: domain.StageRawMaterial, Location: "x",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSoldIsTerminal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.createProduct(t)

	stages := []domain.Stage{
		domain.StageRawMaterial, domain.StageManufacturing, domain.StageQualityControl,
		domain.StagePackaging, domain.StageDistribution, domain.StageRetail, domain.StageSold,
	}
	for _, stage := range stages {
		_, err := h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
			ProductID: product.ID, ActorID: h.supplier.ID, NewStage: stage, Location: "somewhere",
		})
		require.NoError(t, err)
	}

	_, err := h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID, ActorID: h.supplier.ID, NewStage: domain.StageSold, Location: "somewhere",
	})
	assert.ErrorIs(t, err, domain.ErrTerminalStage)

	// A sold product cannot be recalled either.
	_, err = h.lifecycle.RecallProduct(ctx, domain.RecallRequest{
		ProductID: product.ID, ActorID: h.regulator.ID, Reason: "too late",
	})
	assert.ErrorIs(t, err, domain.ErrTerminalStage)
}

func TestRecallProduct(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.createProduct(t)

	_, err := h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID, ActorID: h.supplier.ID,
		NewStage: domain.StageRawMaterial, Location: "farm gate",
	})
	require.NoError(t, err)

	// Only roles holding the recall capability may pull a product.
	_, err = h.lifecycle.RecallProduct(ctx, domain.RecallRequest{
		ProductID: product.ID, ActorID: h.retailer.ID, Reason: "contamination",
	})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	res, err := h.lifecycle.RecallProduct(ctx, domain.RecallRequest{
		ProductID: product.ID, ActorID: h.regulator.ID, Reason: "contamination",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageRecalled, res.Product.CurrentStage)
	assert.False(t, res.Product.Active)

	// The recall leaves a terminal history entry.
	history, err := h.lifecycle.GetHistory(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, history.Locations, 2)
	last := history.Locations[1]
	assert.Equal(t, domain.StageRecalled, last.Stage)
	assert.Equal(t, "contamination", last.Notes)

	// Nothing moves a recalled product.
	_, err = h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: product.ID, ActorID: h.supplier.ID,
		NewStage: domain.StageManufacturing, Location: "plant",
	})
	assert.ErrorIs(t, err, domain.ErrProductInactive)

	_, err = h.lifecycle.RecallProduct(ctx, domain.RecallRequest{
		ProductID: product.ID, ActorID: h.regulator.ID, Reason: "again",
	})
	assert.ErrorIs(t, err, domain.ErrProductInactive)
}

func TestQualityCheckDoesNotMoveStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.createProduct(t)
	inspector := h.createParticipant(t, "qa-lab-3", participantdomain.RoleInspector)

	res, err := h.lifecycle.AddQualityCheck(ctx, domain.QualityCheckRequest{
		ProductID: product.ID,
		ActorID:   inspector.ID,
		CheckType: "moisture",
		Passed:    true,
	})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)

	current, err := h.lifecycle.GetProduct(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageCreated, current.CurrentStage)

	history, err := h.lifecycle.GetHistory(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, history.QualityChecks, 1)
	assert.Equal(t, "moisture", history.QualityChecks[0].CheckType)
	assert.True(t, history.QualityChecks[0].Passed)
}

func TestRecordTemperatureBatchRoutesToIoTShard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	product := h.createProduct(t)
	manufacturer := h.createParticipant(t, "plant-7", participantdomain.RoleManufacturer)

	res, err := h.lifecycle.RecordTemperatureBatch(ctx, domain.TemperatureBatchRequest{
		ProductID: product.ID,
		ActorID:   manufacturer.ID,
		Readings: []domain.TemperatureReading{
			{SensorID: "probe-1", Celsius: 4.2},
			{SensorID: "probe-1", Celsius: 4.5},
			{SensorID: "probe-2", Celsius: 3.9},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Receipt)

	history, err := h.lifecycle.GetHistory(ctx, product.ID)
	require.NoError(t, err)
	assert.Len(t, history.TemperatureLogs, 3)

	// Sensor traffic never lands on product shards.
	iot, err := h.registry.ListByType(ctx, sharddomain.ShardTypeIoT)
	require.NoError(t, err)
	require.Len(t, iot, 1)
	assert.Equal(t, int64(3), iot[0].CurrentLoad)

	_, err = h.lifecycle.RecordTemperatureBatch(ctx, domain.TemperatureBatchRequest{
		ProductID: product.ID, ActorID: manufacturer.ID,
	})
	assert.ErrorIs(t, err, domain.ErrNoReadings)
}

func TestBatchTransferMovesCustody(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.createProduct(t)
	second := h.createProduct(t)

	res, err := h.lifecycle.BatchTransfer(ctx, domain.BatchTransferRequest{
		ProductIDs:  []snowflake.ID{first.ID, second.ID},
		ActorID:     h.supplier.ID,
		NewOwner:    h.retailer.ID,
		NewStage:    domain.StageRawMaterial,
		NewLocation: "dc-north",
	})
	require.NoError(t, err)
	require.Len(t, res.Products, 2)
	require.NotNil(t, res.Receipt)

	for _, id := range []snowflake.ID{first.ID, second.ID} {
		product, err := h.lifecycle.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StageRawMaterial, product.CurrentStage)
		assert.Equal(t, h.retailer.ID, product.CurrentOwner)

		history, err := h.lifecycle.GetHistory(ctx, id)
		require.NoError(t, err)
		require.Len(t, history.Ownership, 1)
		assert.Equal(t, h.supplier.ID, history.Ownership[0].PrevOwnerID)
		assert.Equal(t, h.retailer.ID, history.Ownership[0].OwnerID)
		require.Len(t, history.Locations, 1)
		assert.Equal(t, "dc-north", history.Locations[0].Location)
	}
}

func TestBatchTransferIsAtomic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ready := h.createProduct(t)
	ahead := h.createProduct(t)
	_, err := h.lifecycle.AdvanceStage(ctx, domain.AdvanceRequest{
		ProductID: ahead.ID, ActorID: h.supplier.ID,
		NewStage: domain.StageRawMaterial, Location: "farm gate",
	})
	require.NoError(t, err)

	// One target cannot take the requested stage, so no target moves.
	_, err = h.lifecycle.BatchTransfer(ctx, domain.BatchTransferRequest{
		ProductIDs:  []snowflake.ID{ready.ID, ahead.ID},
		ActorID:     h.supplier.ID,
		NewOwner:    h.retailer.ID,
		NewStage:    domain.StageRawMaterial,
		NewLocation: "dc-north",
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	untouched, err := h.lifecycle.GetProduct(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageCreated, untouched.CurrentStage)
	assert.Equal(t, h.supplier.ID, untouched.CurrentOwner)

	history, err := h.lifecycle.GetHistory(ctx, ready.ID)
	require.NoError(t, err)
	assert.Empty(t, history.Locations)
	assert.Empty(t, history.Ownership)
}

func TestFindByBatchNumber(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.createProduct(t)
	second := h.createProduct(t)

	products, err := h.lifecycle.FindByBatchNumber(ctx, "LOT-2025-001")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, first.ID, products[0].ID)
	assert.Equal(t, second.ID, products[1].ID)
}
