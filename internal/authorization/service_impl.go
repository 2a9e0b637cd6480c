package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectShard       = "shard"
	ObjectProduct     = "product"
	ObjectBatch       = "batch"
	ObjectParticipant = "participant"
)

const (
	ActionShardCreate    = "shard.create"
	ActionShardRebalance = "shard.rebalance"

	ActionProductCreate       = "product.create"
	ActionProductAdvance      = "product.advance"
	ActionProductQualityCheck = "product.quality_check"
	ActionProductSensorBatch  = "product.sensor_batch"
	ActionProductRecall       = "product.recall"

	ActionBatchCreate  = "batch.create"
	ActionBatchProcess = "batch.process"

	ActionParticipantCreate = "participant.create"
)

// Service is the capability check injected into each actor: it answers
// whether a participant role may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, role participantdomain.Role, object string, action string) error
}

var (
	ErrInvalidRole   = errors.New("invalid_role")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role participantdomain.Role, object string, action string) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("role:%s", role)
	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("role", string(role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Suppliers originate products and move them through sourcing.
		{"role:supplier", ObjectProduct, ActionProductCreate},
		{"role:supplier", ObjectProduct, ActionProductAdvance},

		// Manufacturers advance production stages and stream sensor data.
		{"role:manufacturer", ObjectProduct, ActionProductAdvance},
		{"role:manufacturer", ObjectProduct, ActionProductSensorBatch},

		// Inspectors record quality checks.
		{"role:inspector", ObjectProduct, ActionProductQualityCheck},
		{"role:inspector", ObjectProduct, ActionProductAdvance},

		// Distribution and retail move custody, often in batches.
		{"role:distributor", ObjectProduct, ActionProductAdvance},
		{"role:distributor", ObjectProduct, ActionProductSensorBatch},
		{"role:distributor", ObjectBatch, ActionBatchCreate},
		{"role:distributor", ObjectBatch, ActionBatchProcess},
		{"role:retailer", ObjectProduct, ActionProductAdvance},
		{"role:retailer", ObjectBatch, ActionBatchCreate},
		{"role:retailer", ObjectBatch, ActionBatchProcess},

		// Regulators pull products from circulation.
		{"role:regulator", ObjectProduct, ActionProductRecall},
		{"role:regulator", ObjectProduct, ActionProductQualityCheck},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
