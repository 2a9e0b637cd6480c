package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/trackchain/trackway/internal/audit/domain"
	"github.com/trackchain/trackway/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry domain.NewEntry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return domain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(entry.TargetType)
	targetID := strings.TrimSpace(entry.TargetID)
	if targetType == "" || targetID == "" {
		return domain.ErrInvalidTarget
	}

	actorType := strings.TrimSpace(entry.ActorType)
	if actorType == "" {
		actorType = domain.ActorTypeSystem
	}

	row := &domain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    entry.ActorID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  s.clock.Now(),
	}
	if entry.Metadata != nil {
		row.Metadata = datatypes.JSONMap(entry.Metadata)
	}

	return s.repo.Insert(ctx, tx, row)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.AuditLog, error) {
	if req.Limit <= 0 || req.Limit > 250 {
		req.Limit = 50
	}
	return s.repo.List(ctx, s.db, req)
}
