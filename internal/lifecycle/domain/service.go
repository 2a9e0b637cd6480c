package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	"gorm.io/gorm"
)

type CreateProductRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	BatchNumber string       `json:"batch_number"`
	ExpiryDate  *time.Time   `json:"expiry_date"`
	OwnerID     snowflake.ID `json:"owner_id"`
}

type AdvanceRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	ActorID   snowflake.ID `json:"actor_id"`
	NewStage  Stage        `json:"new_stage"`
	Location  string       `json:"location"`
	Notes     string       `json:"notes"`
}

type QualityCheckRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	ActorID   snowflake.ID `json:"actor_id"`
	CheckType string       `json:"check_type"`
	Passed    bool         `json:"passed"`
	Notes     string       `json:"notes"`
}

type BatchTransferRequest struct {
	ProductIDs  []snowflake.ID `json:"product_ids"`
	ActorID     snowflake.ID   `json:"actor_id"`
	NewOwner    snowflake.ID   `json:"new_owner"`
	NewStage    Stage          `json:"new_stage"`
	NewLocation string         `json:"new_location"`
	Notes       string         `json:"notes"`
}

type RecallRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	ActorID   snowflake.ID `json:"actor_id"`
	Reason    string       `json:"reason"`
}

type TemperatureReading struct {
	SensorID   string    `json:"sensor_id"`
	Celsius    float64   `json:"celsius"`
	Humidity   *float64  `json:"humidity,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

type TemperatureBatchRequest struct {
	ProductID snowflake.ID         `json:"product_id"`
	ActorID   snowflake.ID         `json:"actor_id"`
	Readings  []TemperatureReading `json:"readings"`
}

type ProductResponse struct {
	Product Product               `json:"product"`
	Receipt *ledgerdomain.Receipt `json:"receipt,omitempty"`
}

type BatchTransferResponse struct {
	Products []Product             `json:"products"`
	Receipt  *ledgerdomain.Receipt `json:"receipt,omitempty"`
}

// Service is the product state machine and its audit trails. Every
// mutation validates fully before proposing a single atomic commit; a
// rejected call leaves no partial writes.
type Service interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (*ProductResponse, error)
	AdvanceStage(ctx context.Context, req AdvanceRequest) (*ProductResponse, error)
	AddQualityCheck(ctx context.Context, req QualityCheckRequest) (*ProductResponse, error)
	RecordTemperatureBatch(ctx context.Context, req TemperatureBatchRequest) (*ProductResponse, error)
	BatchTransfer(ctx context.Context, req BatchTransferRequest) (*BatchTransferResponse, error)
	RecallProduct(ctx context.Context, req RecallRequest) (*ProductResponse, error)

	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
	GetHistory(ctx context.Context, id snowflake.ID) (*History, error)
	FindByBatchNumber(ctx context.Context, batchNumber string) ([]Product, error)

	// ValidateTransfer checks every target against the transfer rules
	// without writing anything. The returned products are in request order.
	ValidateTransfer(ctx context.Context, productIDs []snowflake.ID, newStage Stage, location string) ([]Product, error)

	// ApplyTransfer advances and re-owns the given products inside the
	// caller's transaction, so callers can fold many transfers plus their
	// own bookkeeping into one atomic commit. It returns the number of
	// transfers applied per shard.
	ApplyTransfer(ctx context.Context, tx *gorm.DB, products []*Product, newOwnerID snowflake.ID, newStage Stage, location, notes string, actorID snowflake.ID) (map[snowflake.ID]int64, error)
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidBatchNumber = errors.New("invalid_batch_number")
	ErrInvalidStage       = errors.New("invalid_stage")
	ErrInvalidTransition  = errors.New("invalid_stage_transition")
	ErrTerminalStage      = errors.New("terminal_stage")
	ErrInvalidLocation    = errors.New("invalid_location")
	ErrInvalidCheckType   = errors.New("invalid_check_type")
	ErrInvalidReason      = errors.New("invalid_reason")
	ErrNoTargets          = errors.New("no_batch_targets")
	ErrNoReadings         = errors.New("no_sensor_readings")
	ErrNotFound           = errors.New("product_not_found")
	ErrProductInactive    = errors.New("product_inactive")
)
