package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	"github.com/trackchain/trackway/internal/clock"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	"github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	shardingdomain "github.com/trackchain/trackway/internal/sharding/domain"
	"github.com/trackchain/trackway/pkg/db"
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
	Repo     domain.Repository
	Ledger   ledgerdomain.Service
	Selector shardingdomain.Service
	Registry sharddomain.Service
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	ledger   ledgerdomain.Service
	selector shardingdomain.Service
	registry sharddomain.Service
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("participant.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		ledger:   p.Ledger,
		selector: p.Selector,
		registry: p.Registry,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, domain.ErrInvalidAddress
	}
	userKey := strings.TrimSpace(req.UserKey)
	if userKey == "" {
		return nil, domain.ErrInvalidUserKey
	}
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}

	existing, err := s.repo.FindByUserKey(ctx, s.db, userKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateKey
	}

	cost := ledgerdomain.ResourceCost(ledgerdomain.KindCreateParticipant)
	assignment, err := s.selector.SelectShard(ctx, sharddomain.ShardTypeParticipant, cost, 1)
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	p := domain.Participant{
		ID:        s.genID.Generate(),
		Address:   address,
		UserKey:   userKey,
		Role:      req.Role,
		Active:    true,
		ShardID:   assignment.ShardID,
		CreatedAt: started,
		UpdatedAt: started,
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind:         ledgerdomain.KindCreateParticipant,
		ResourceCost: cost,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, &p); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return domain.ErrDuplicateKey
				}
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
			return s.auditSvc.Append(ctx, tx, auditdomain.NewEntry{
				ActorType:  auditdomain.ActorTypeSystem,
				Action:     "participant.created",
				TargetType: "participant",
				TargetID:   p.ID.String(),
				Metadata: map[string]any{
					"role":     string(req.Role),
					"shard_id": assignment.ShardID.String(),
				},
			})
		},
	})
	if err != nil {
		return nil, err
	}

	return &domain.Response{Participant: p, Receipt: receipt}, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Participant, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Participant, error) {
	return s.repo.FindAll(ctx, s.db)
}

func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) (*domain.Response, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	if !p.Active {
		return nil, domain.ErrInactive
	}

	receipt, err := s.ledger.Commit(ctx, ledgerdomain.Transition{
		Kind: ledgerdomain.KindCreateParticipant,
		Apply: func(ctx context.Context, tx *gorm.DB) error {
			p.Active = false
			p.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, p); err != nil {
				return err
			}
			return s.auditSvc.Append(ctx, tx, auditdomain.NewEntry{
				ActorType:  auditdomain.ActorTypeSystem,
				Action:     "participant.deactivated",
				TargetType: "participant",
				TargetID:   p.ID.String(),
			})
		},
	})
	if err != nil {
		return nil, err
	}
	return &domain.Response{Participant: *p, Receipt: receipt}, nil
}

func (s *Service) RequireActive(ctx context.Context, id snowflake.ID) (*domain.Participant, error) {
	p, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	if !p.Active {
		return nil, domain.ErrInactive
	}
	return p, nil
}
