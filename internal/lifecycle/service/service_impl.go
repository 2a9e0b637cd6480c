package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	"github.com/trackchain/trackway/internal/authorization"
	"github.com/trackchain/trackway/internal/clock"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	"github.com/trackchain/trackway/internal/lifecycle/domain"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
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
	Participants participantdomain.Service
	Authz        authorization.Service
	AuditSvc     auditdomain.Service
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
	participants participantdomain.Service
	authz        authorization.Service
	auditSvc     auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("lifecycle.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		ledger:       p.Ledger,
		selector:     p.Selector,
		registry:     p.Registry,
		participants: p.Participants,
		authz:        p.Authz,
		auditSvc:     p.AuditSvc,
	}
}

func (s *Service) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.ProductResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	batchNumber := strings.TrimSpace(req.BatchNumber)
	if batchNumber == "" {
		return nil, domain.ErrInvalidBatchNumber
	}

	owner, err := s.participants.RequireActive(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, owner.Role, authorization.ObjectProduct, authorization.ActionProductCreate); err != nil {
		return nil, err
	}

	cost := ledgerdomain.ResourceCost(ledgerdomain.KindCreateProduct)
	assignment, err := s.selector.SelectShard(ctx, sharddomain.ShardTypeProduct, cost, 1)
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	product := domain.Product{
		ID:           s.genID.Generate(),
		Name:         name,
		Description:  strings.TrimSpace(req.Description),
		Category:     strings.TrimSpace(req.Category),
		BatchNumber:  batchNumber,
		ExpiryDate:   req.ExpiryDate,
		CurrentStage: domain.StageCreated,
		CurrentOwner: owner.ID,
		ShardID:      assignment.ShardID,
		Active:       true,
		CreatedAt:    started,
		UpdatedAt:    started,
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindCreateProduct,
		ResourceCost: cost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			if err := s.repo.InsertProduct(ctx, tx, &product); err != nil {
				return err
			}
			if err := s.registry.ApplyUsage(ctx, tx, assignment.ShardID, sharddomain.Usage{
				Units:        1,
				ResourceCost: cost,
				Duration:     s.clock.Now().Sub(started),
				Success:      true,
				Overflow:     assignment.Overflow,
			}, s.clock.Now()); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, owner.ID, "product.created", product.ID, map[string]any{
				"batch_number": batchNumber,
				"shard_id":     assignment.ShardID.String(),
				"overflow":     assignment.Overflow,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("product created",
		zap.String("product_id", product.ID.String()),
		zap.String("batch_number", batchNumber),
		zap.String("shard_id", assignment.ShardID.String()),
	)
	return &domain.ProductResponse{Product: product, Receipt: receipt}, nil
}

func (s *Service) AdvanceStage(ctx context.Context, req domain.AdvanceRequest) (*domain.ProductResponse, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, domain.ErrInvalidLocation
	}

	actor, err := s.participants.RequireActive(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectProduct, authorization.ActionProductAdvance); err != nil {
		return nil, err
	}

	product, err := s.loadActiveProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if err := validateNextStage(product.CurrentStage, req.NewStage); err != nil {
		return nil, err
	}

	cost := ledgerdomain.ResourceCost(ledgerdomain.KindAdvanceStage)
	started := s.clock.Now()
	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindAdvanceStage,
		ResourceCost: cost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			now := s.clock.Now()
			if err := s.applyAdvance(ctx, tx, product, actor.ID, req.NewStage, location, req.Notes, actor.ID, now); err != nil {
				return err
			}
			if err := s.registry.ApplyUsage(ctx, tx, product.ShardID, sharddomain.Usage{
				Units:        1,
				ResourceCost: cost,
				Duration:     now.Sub(started),
				Success:      true,
				Overflow:     true,
			}, now); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, actor.ID, "product.stage_advanced", product.ID, map[string]any{
				"stage":    string(req.NewStage),
				"location": location,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	return &domain.ProductResponse{Product: *product, Receipt: receipt}, nil
}

func (s *Service) AddQualityCheck(ctx context.Context, req domain.QualityCheckRequest) (*domain.ProductResponse, error) {
	checkType := strings.TrimSpace(req.CheckType)
	if checkType == "" {
		return nil, domain.ErrInvalidCheckType
	}

	actor, err := s.participants.RequireActive(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectProduct, authorization.ActionProductQualityCheck); err != nil {
		return nil, err
	}

	product, err := s.loadActiveProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	cost := ledgerdomain.ResourceCost(ledgerdomain.KindAddQualityCheck)
	started := s.clock.Now()
	check := domain.QualityCheck{
		ID:        s.genID.Generate(),
		ProductID: product.ID,
		CheckType: checkType,
		Passed:    req.Passed,
		Notes:     strings.TrimSpace(req.Notes),
		ActorID:   actor.ID,
		CheckedAt: started,
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindAddQualityCheck,
		ResourceCost: cost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			// Recording a check never moves the stage; progression policy
			// stays with the caller.
			if err := s.repo.InsertQualityCheck(ctx, tx, &check); err != nil {
				return err
			}
			now := s.clock.Now()
			if err := s.registry.ApplyUsage(ctx, tx, product.ShardID, sharddomain.Usage{
				Units:        1,
				ResourceCost: cost,
				Duration:     now.Sub(started),
				Success:      true,
				Overflow:     true,
			}, now); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, actor.ID, "product.quality_checked", product.ID, map[string]any{
				"check_type": checkType,
				"passed":     req.Passed,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	return &domain.ProductResponse{Product: *product, Receipt: receipt}, nil
}

func (s *Service) RecordTemperatureBatch(ctx context.Context, req domain.TemperatureBatchRequest) (*domain.ProductResponse, error) {
	if len(req.Readings) == 0 {
		return nil, domain.ErrNoReadings
	}
	for _, reading := range req.Readings {
		if strings.TrimSpace(reading.SensorID) == "" {
			return nil, domain.ErrNoReadings
		}
	}

	actor, err := s.participants.RequireActive(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectProduct, authorization.ActionProductSensorBatch); err != nil {
		return nil, err
	}

	product, err := s.loadActiveProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	units := int64(len(req.Readings))
	cost := ledgerdomain.ResourceCost(ledgerdomain.KindSensorBatch) * units
	assignment, err := s.selector.SelectShard(ctx, sharddomain.ShardTypeIoT, cost, 1)
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	logs := make([]domain.TemperatureLog, 0, len(req.Readings))
	for _, reading := range req.Readings {
		recordedAt := reading.RecordedAt
		if recordedAt.IsZero() {
			recordedAt = started
		}
		logs = append(logs, domain.TemperatureLog{
			ID:         s.genID.Generate(),
			ProductID:  product.ID,
			SensorID:   strings.TrimSpace(reading.SensorID),
			Celsius:    reading.Celsius,
			Humidity:   reading.Humidity,
			RecordedAt: recordedAt,
		})
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindSensorBatch,
		ResourceCost: cost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			if err := s.repo.InsertTemperatureLogs(ctx, tx, logs); err != nil {
				return err
			}
			now := s.clock.Now()
			if err := s.registry.ApplyUsage(ctx, tx, assignment.ShardID, sharddomain.Usage{
				Units:        units,
				ResourceCost: cost,
				Duration:     now.Sub(started),
				Success:      true,
				Overflow:     assignment.Overflow,
			}, now); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, actor.ID, "product.sensor_batch_recorded", product.ID, map[string]any{
				"readings": len(logs),
				"shard_id": assignment.ShardID.String(),
			})
		},
	})
	if err != nil {
		return nil, err
	}

	return &domain.ProductResponse{Product: *product, Receipt: receipt}, nil
}

// BatchTransfer validates every target before anything is written; one bad
// target rejects the whole batch with no partial application.
func (s *Service) BatchTransfer(ctx context.Context, req domain.BatchTransferRequest) (*domain.BatchTransferResponse, error) {
	if len(req.ProductIDs) == 0 {
		return nil, domain.ErrNoTargets
	}
	location := strings.TrimSpace(req.NewLocation)
	if location == "" {
		return nil, domain.ErrInvalidLocation
	}

	actor, err := s.participants.RequireActive(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectProduct, authorization.ActionProductAdvance); err != nil {
		return nil, err
	}
	newOwner, err := s.participants.RequireActive(ctx, req.NewOwner)
	if err != nil {
		return nil, err
	}

	validated, err := s.ValidateTransfer(ctx, req.ProductIDs, req.NewStage, location)
	if err != nil {
		return nil, err
	}
	products := make([]*domain.Product, len(validated))
	for i := range validated {
		products[i] = &validated[i]
	}

	perOp := ledgerdomain.ResourceCost(ledgerdomain.KindBatchTransfer)
	totalCost := perOp * int64(len(products))
	started := s.clock.Now()

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindBatchTransfer,
		ResourceCost: totalCost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			now := s.clock.Now()
			shardUnits, err := s.ApplyTransfer(ctx, tx, products, newOwner.ID, req.NewStage, location, req.Notes, actor.ID)
			if err != nil {
				return err
			}
			for shardID, units := range shardUnits {
				if err := s.registry.ApplyUsage(ctx, tx, shardID, sharddomain.Usage{
					Units:        units,
					ResourceCost: perOp * units,
					Duration:     now.Sub(started),
					Success:      true,
					Overflow:     true,
				}, now); err != nil {
					return err
				}
			}
			return s.appendAudit(ctx, tx, actor.ID, "product.batch_transferred", products[0].ID, map[string]any{
				"targets":   len(products),
				"new_stage": string(req.NewStage),
				"new_owner": newOwner.ID.String(),
			})
		},
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Product, 0, len(products))
	for _, product := range products {
		out = append(out, *product)
	}
	return &domain.BatchTransferResponse{Products: out, Receipt: receipt}, nil
}

// RecallProduct pulls the product from circulation. The transition is
// terminal and irreversible.
func (s *Service) RecallProduct(ctx context.Context, req domain.RecallRequest) (*domain.ProductResponse, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, domain.ErrInvalidReason
	}

	actor, err := s.participants.RequireActive(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, actor.Role, authorization.ObjectProduct, authorization.ActionProductRecall); err != nil {
		return nil, err
	}

	product, err := s.loadActiveProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product.CurrentStage.Terminal() {
		return nil, domain.ErrTerminalStage
	}

	cost := ledgerdomain.ResourceCost(ledgerdomain.KindRecallProduct)
	started := s.clock.Now()
	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindRecallProduct,
		ResourceCost: cost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			now := s.clock.Now()
			seq, err := s.repo.CountLocations(ctx, tx, product.ID)
			if err != nil {
				return err
			}
			if err := s.repo.InsertLocation(ctx, tx, &domain.LocationHistory{
				ID:         s.genID.Generate(),
				ProductID:  product.ID,
				Seq:        seq + 1,
				Location:   "recall",
				Stage:      domain.StageRecalled,
				ActorID:    actor.ID,
				Notes:      reason,
				RecordedAt: now,
			}); err != nil {
				return err
			}
			product.CurrentStage = domain.StageRecalled
			product.Active = false
			product.UpdatedAt = now
			if err := s.repo.UpdateProduct(ctx, tx, product); err != nil {
				return err
			}
			if err := s.registry.ApplyUsage(ctx, tx, product.ShardID, sharddomain.Usage{
				Units:        1,
				ResourceCost: cost,
				Duration:     now.Sub(started),
				Success:      true,
				Overflow:     true,
			}, now); err != nil {
				return err
			}
			return s.appendAudit(ctx, tx, actor.ID, "product.recalled", product.ID, map[string]any{
				"reason": reason,
			})
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn("product recalled",
		zap.String("product_id", product.ID.String()),
		zap.String("reason", reason),
	)
	return &domain.ProductResponse{Product: *product, Receipt: receipt}, nil
}

func (s *Service) GetProduct(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	product, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	return product, nil
}

func (s *Service) GetHistory(ctx context.Context, id snowflake.ID) (*domain.History, error) {
	product, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}

	ownership, err := s.repo.ListOwnership(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	locations, err := s.repo.ListLocations(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	checks, err := s.repo.ListQualityChecks(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	temps, err := s.repo.ListTemperatureLogs(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	return &domain.History{
		Ownership:       ownership,
		Locations:       locations,
		QualityChecks:   checks,
		TemperatureLogs: temps,
	}, nil
}

func (s *Service) FindByBatchNumber(ctx context.Context, batchNumber string) ([]domain.Product, error) {
	batchNumber = strings.TrimSpace(batchNumber)
	if batchNumber == "" {
		return nil, domain.ErrInvalidBatchNumber
	}
	return s.repo.FindByBatchNumber(ctx, s.db, batchNumber)
}

func (s *Service) ValidateTransfer(ctx context.Context, productIDs []snowflake.ID, newStage domain.Stage, location string) ([]domain.Product, error) {
	if len(productIDs) == 0 {
		return nil, domain.ErrNoTargets
	}
	if strings.TrimSpace(location) == "" {
		return nil, domain.ErrInvalidLocation
	}

	found, err := s.repo.FindByIDs(ctx, s.db, productIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]*domain.Product, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}

	products := make([]domain.Product, 0, len(productIDs))
	for _, id := range productIDs {
		product, ok := byID[id]
		if !ok {
			return nil, domain.ErrNotFound
		}
		if !product.Active {
			return nil, domain.ErrProductInactive
		}
		// The requested stage must be the exact next transition for each
		// product individually.
		if err := validateNextStage(product.CurrentStage, newStage); err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	return products, nil
}

func (s *Service) ApplyTransfer(ctx context.Context, tx *gorm.DB, products []*domain.Product, newOwnerID snowflake.ID, newStage domain.Stage, location, notes string, actorID snowflake.ID) (map[snowflake.ID]int64, error) {
	now := s.clock.Now()
	shardUnits := make(map[snowflake.ID]int64, len(products))
	for _, product := range products {
		if err := s.applyAdvance(ctx, tx, product, newOwnerID, newStage, location, notes, actorID, now); err != nil {
			return nil, err
		}
		shardUnits[product.ShardID]++
	}
	return shardUnits, nil
}

func (s *Service) loadActiveProduct(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	product, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrNotFound
	}
	if !product.Active {
		return nil, domain.ErrProductInactive
	}
	return product, nil
}

// applyAdvance writes one accepted transition: ownership only when custody
// changes, location always, then the product row itself.
func (s *Service) applyAdvance(ctx context.Context, tx *gorm.DB, product *domain.Product, newOwner snowflake.ID, newStage domain.Stage, location, notes string, actorID snowflake.ID, now time.Time) error {
	if newOwner != product.CurrentOwner {
		seq, err := s.repo.CountOwnership(ctx, tx, product.ID)
		if err != nil {
			return err
		}
		if err := s.repo.InsertOwnership(ctx, tx, &domain.OwnershipHistory{
			ID:            s.genID.Generate(),
			ProductID:     product.ID,
			Seq:           seq + 1,
			PrevOwnerID:   product.CurrentOwner,
			OwnerID:       newOwner,
			Stage:         newStage,
			TransferredAt: now,
		}); err != nil {
			return err
		}
		product.CurrentOwner = newOwner
	}

	seq, err := s.repo.CountLocations(ctx, tx, product.ID)
	if err != nil {
		return err
	}
	if err := s.repo.InsertLocation(ctx, tx, &domain.LocationHistory{
		ID:         s.genID.Generate(),
		ProductID:  product.ID,
		Seq:        seq + 1,
		Location:   location,
		Stage:      newStage,
		ActorID:    actorID,
		Notes:      strings.TrimSpace(notes),
		RecordedAt: now,
	}); err != nil {
		return err
	}

	product.CurrentStage = newStage
	product.UpdatedAt = now
	return s.repo.UpdateProduct(ctx, tx, product)
}

func (s *Service) appendAudit(ctx context.Context, tx *gorm.DB, actorID snowflake.ID, action string, productID snowflake.ID, metadata map[string]any) error {
	actor := actorID.String()
	return s.auditSvc.Append(ctx, tx, auditdomain.NewEntry{
		ActorType:  auditdomain.ActorTypeParticipant,
		ActorID:    &actor,
		Action:     action,
		TargetType: "product",
		TargetID:   productID.String(),
		Metadata:   metadata,
	})
}

// validateNextStage accepts only the exact next stage in the fixed order.
// Recall is not an advance and goes through RecallProduct.
func validateNextStage(current, requested domain.Stage) error {
	if !requested.Valid() {
		return domain.ErrInvalidStage
	}
	if requested == domain.StageRecalled {
		return domain.ErrInvalidTransition
	}
	if current.Terminal() {
		return domain.ErrTerminalStage
	}
	next, ok := current.Next()
	if !ok || next != requested {
		return domain.ErrInvalidTransition
	}
	return nil
}
