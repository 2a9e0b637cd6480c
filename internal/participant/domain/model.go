package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	"gorm.io/gorm"
)

// Role describes a participant's position in the supply chain and drives
// its authorization policy.
type Role string

const (
	RoleSupplier     Role = "supplier"
	RoleManufacturer Role = "manufacturer"
	RoleInspector    Role = "inspector"
	RoleDistributor  Role = "distributor"
	RoleRetailer     Role = "retailer"
	RoleRegulator    Role = "regulator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSupplier, RoleManufacturer, RoleInspector, RoleDistributor, RoleRetailer, RoleRegulator:
		return true
	default:
		return false
	}
}

// Participant is a long-lived supply-chain party. Participants are created
// once and flipped inactive, never purged; products reference them as
// owners without owning them.
type Participant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Address   string       `gorm:"type:text;not null" json:"address"`
	UserKey   string       `gorm:"type:text;not null;uniqueIndex:ux_participants_user_key" json:"user_key"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	Active    bool         `gorm:"not null" json:"active"`
	ShardID   snowflake.ID `gorm:"not null;index" json:"shard_id"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Participant) TableName() string { return "participants" }

type CreateRequest struct {
	Address string `json:"address"`
	UserKey string `json:"user_key"`
	Role    Role   `json:"role"`
}

type Response struct {
	Participant Participant           `json:"participant"`
	Receipt     *ledgerdomain.Receipt `json:"receipt,omitempty"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Participant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Participant, error)
	FindByUserKey(ctx context.Context, db *gorm.DB, userKey string) (*Participant, error)
	FindAll(ctx context.Context, db *gorm.DB) ([]Participant, error)
	Update(ctx context.Context, db *gorm.DB, p *Participant) error
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id snowflake.ID) (*Participant, error)
	List(ctx context.Context) ([]Participant, error)
	Deactivate(ctx context.Context, id snowflake.ID) (*Response, error)

	// RequireActive resolves the participant and rejects inactive ones;
	// services gate mutations on it before proposing a commit.
	RequireActive(ctx context.Context, id snowflake.ID) (*Participant, error)
}

var (
	ErrInvalidAddress = errors.New("invalid_address")
	ErrInvalidUserKey = errors.New("invalid_user_key")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrNotFound       = errors.New("participant_not_found")
	ErrInactive       = errors.New("participant_inactive")
	ErrDuplicateKey   = errors.New("duplicate_user_key")
)
