package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	"github.com/trackchain/trackway/internal/authorization"
	"github.com/trackchain/trackway/internal/batch/domain"
	"github.com/trackchain/trackway/internal/clock"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	"github.com/trackchain/trackway/internal/observability/metrics"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Ledger       ledgerdomain.Service
	Selector     shardingdomain.Service
	Registry     sharddomain.Service
	Lifecycle    lifecycledomain.Service
	Participants participantdomain.Service
	Authz        authorization.Service
	AuditSvc     auditdomain.Service
	Metrics      *metrics.Metrics
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	repo         domain.Repository
	ledger       ledgerdomain.Service
	selector     shardingdomain.Service
	registry     sharddomain.Service
	lifecycle    lifecycledomain.Service
	participants participantdomain.Service
	authz        authorization.Service
	auditSvc     auditdomain.Service
	metrics      *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("batch.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		ledger:       p.Ledger,
		selector:     p.Selector,
		registry:     p.Registry,
		lifecycle:    p.Lifecycle,
		participants: p.Participants,
		authz:        p.Authz,
		auditSvc:     p.AuditSvc,
		metrics:      p.Metrics,
	}
}

func (s *Service) CreateBatch(ctx context.Context, req domain.CreateBatchRequest) (*domain.BatchResponse, error) {
	actor, err := s.participants.RequireActive(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectBatch, authorization.ActionBatchCreate); err != nil {
		return nil, err
	}

	if req.OperationType != ledgerdomain.KindBatchTransfer {
		return nil, domain.ErrUnsupportedOperation
	}
	if len(req.ProductIDs) == 0 {
		return nil, domain.ErrNoTargets
	}
	if req.OptimizationLevel < domain.OptimizationLevelMin || req.OptimizationLevel > domain.OptimizationLevelMax {
		return nil, domain.ErrInvalidOptimizationLevel
	}
	if !req.NewStage.Valid() {
		return nil, lifecycledomain.ErrInvalidStage
	}
	location := strings.TrimSpace(req.NewLocation)
	if location == "" {
		return nil, lifecycledomain.ErrInvalidLocation
	}
	if _, err := s.participants.RequireActive(ctx, req.NewOwner); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		// Replays of an already staged batch return the original row.
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &domain.BatchResponse{Batch: *existing}, nil
		}
	} else {
		key = uuid.NewString()
	}

	targets, err := json.Marshal(req.ProductIDs)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(domain.TransferPayload{
		NewOwner:    req.NewOwner,
		NewStage:    req.NewStage,
		NewLocation: location,
		Notes:       strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return nil, err
	}
	if req.Compressed {
		payload = snappy.Encode(nil, payload)
	}

	profile := domain.Profile{
		OptimizationLevel: req.OptimizationLevel,
		Compressed:        req.Compressed,
		Parallel:          req.Parallel,
	}
	estimated := domain.EstimateCost(req.OperationType, len(req.ProductIDs), profile)

	assignment, err := s.selector.SelectShard(ctx, sharddomain.ShardTypeProduct, estimated, len(req.ProductIDs))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	batch := domain.Batch{
		ID:                s.genID.Generate(),
		IdempotencyKey:    key,
		OperationType:     req.OperationType,
		Targets:           datatypes.JSON(targets),
		Payload:           payload,
		OptimizationLevel: req.OptimizationLevel,
		Compressed:        req.Compressed,
		Parallel:          req.Parallel,
		EstimatedCost:     estimated,
		Status:            domain.StatusPending,
		ShardID:           assignment.ShardID,
		CreatedBy:         actor.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindCreateBatch,
		ResourceCost: ledgerdomain.ResourceCost(ledgerdomain.KindCreateBatch),
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, &batch); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, actor.ID, "batch.created", batch.ID, map[string]any{
				"operation_type": string(req.OperationType),
				"targets":        len(req.ProductIDs),
				"estimated_cost": estimated,
				"shard_id":       assignment.ShardID.String(),
			})
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("batch staged",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("targets", len(req.ProductIDs)),
		zap.Int64("estimated_cost", estimated),
	)
	return &domain.BatchResponse{Batch: batch, Receipt: receipt}, nil
}

// ProcessBatch commits a pending batch as one transition. Validation covers
// every target first; any failure marks the batch rejected and leaves the
// targets untouched.
func (s *Service) ProcessBatch(ctx context.Context, batchID, actorID snowflake.ID) (*domain.ProcessResponse, error) {
	actor, err := s.participants.RequireActive(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectBatch, authorization.ActionBatchProcess); err != nil {
		return nil, err
	}

	batch, err := s.repo.FindByID(ctx, s.db, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	if batch.Status != domain.StatusPending {
		return nil, domain.ErrNotPending
	}

	payload, targets, err := decodeBatch(batch)
	if err != nil {
		return nil, err
	}

	products, err := s.lifecycle.ValidateTransfer(ctx, targets, payload.NewStage, payload.NewLocation)
	if err != nil {
		if rejectErr := s.rejectBatch(ctx, batch, actor.ID, err); rejectErr != nil {
			return nil, rejectErr
		}
		return nil, err
	}
	if _, err := s.participants.RequireActive(ctx, payload.NewOwner); err != nil {
		if rejectErr := s.rejectBatch(ctx, batch, actor.ID, err); rejectErr != nil {
			return nil, rejectErr
		}
		return nil, err
	}

	refs := make([]*lifecycledomain.Product, len(products))
	for i := range products {
		refs[i] = &products[i]
	}

	profile := domain.Profile{
		OptimizationLevel: batch.OptimizationLevel,
		Compressed:        batch.Compressed,
		Parallel:          batch.Parallel,
	}
	actualCost := domain.EstimateCost(batch.OperationType, len(refs), profile)
	started := s.clock.Now()

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindProcessBatch,
		ResourceCost: actualCost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			if _, err := s.lifecycle.ApplyTransfer(ctx, tx, refs, payload.NewOwner, payload.NewStage, payload.NewLocation, payload.Notes, actor.ID); err != nil {
				return err
			}
			now := s.clock.Now()
			// One aggregate usage record for the whole batch, on the shard
			// the batch was staged to.
			if err := s.registry.ApplyUsage(ctx, tx, batch.ShardID, sharddomain.Usage{
				Units:        int64(len(refs)),
				ResourceCost: actualCost,
				Duration:     now.Sub(started),
				Success:      true,
				Overflow:     true,
			}, now); err != nil {
				return err
			}
			batch.Status = domain.StatusCommitted
			batch.ActualCost = actualCost
			batch.ProcessedAt = &now
			batch.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, batch); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, actor.ID, "batch.processed", batch.ID, map[string]any{
				"targets":     len(refs),
				"actual_cost": actualCost,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	baseline := ledgerdomain.ResourceCost(batch.OperationType) * int64(len(refs))
	s.metrics.AddBatchSavings(ctx, string(batch.OperationType), baseline-actualCost)
	s.log.Info("batch committed",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("targets", len(refs)),
		zap.Int64("actual_cost", actualCost),
		zap.Int64("savings", baseline-actualCost),
	)

	out := make([]lifecycledomain.Product, 0, len(refs))
	for _, ref := range refs {
		out = append(out, *ref)
	}
	return &domain.ProcessResponse{Batch: *batch, Products: out, Receipt: receipt}, nil
}

func (s *Service) EstimateSavings(operationType ledgerdomain.Kind, count int) (*domain.SavingsEstimate, error) {
	if count <= 0 {
		return nil, domain.ErrInvalidCount
	}
	if ledgerdomain.ResourceCost(operationType) <= 0 {
		return nil, domain.ErrUnsupportedOperation
	}
	estimate := domain.EstimateSavings(operationType, count)
	return &estimate, nil
}

func (s *Service) GetBatch(ctx context.Context, id snowflake.ID) (*domain.Batch, error) {
	batch, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, domain.ErrNotFound
	}
	return batch, nil
}

// rejectBatch records the rejection as its own commit so the failed attempt
// is visible in the batch row and the audit trail.
func (s *Service) rejectBatch(ctx context.Context, batch *domain.Batch, actorID snowflake.ID, cause error) error {
	_, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindProcessBatch,
		ResourceCost: 0,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			now := s.clock.Now()
			batch.Status = domain.StatusRejected
			batch.RejectReason = cause.Error()
			batch.UpdatedAt = now
			if err := s.repo.Update(ctx, tx, batch); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, actorID, "batch.rejected", batch.ID, map[string]any{
				"reason": cause.Error(),
			})
		},
	})
	if err != nil {
		return err
	}
	s.log.Warn("batch rejected",
		zap.String("batch_id", batch.ID.String()),
		zap.String("reason", cause.Error()),
	)
	return nil
}

func (s *Service) appendAudit(ctx context.Context, tx *gorm.DB, actorID snowflake.ID, action string, batchID snowflake.ID, metadata map[string]any) error {
	actor := actorID.String()
	return s.auditSvc.Append(ctx, tx, auditdomain.NewEntry{
		ActorType:  auditdomain.ActorTypeParticipant,
		ActorID:    &actor,
		Action:     action,
		TargetType: "batch",
		TargetID:   batchID.String(),
		Metadata:   metadata,
	})
}

func decodeBatch(batch *domain.Batch) (*domain.TransferPayload, []snowflake.ID, error) {
	raw := batch.Payload
	if batch.Compressed {
		decoded, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, nil, domain.ErrInvalidPayload
		}
		raw = decoded
	}
	var payload domain.TransferPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, domain.ErrInvalidPayload
	}
	var targets []snowflake.ID
	if err := json.Unmarshal(batch.Targets, &targets); err != nil {
		return nil, nil, domain.ErrInvalidPayload
	}
	return &payload, targets, nil
}
