package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Stage is one position in the fixed path a product travels from creation
// to sale. Recalled sits outside the path and is reachable from any
// non-terminal stage.
type Stage string

const (
	StageCreated        Stage = "created"
	StageRawMaterial    Stage = "raw_material"
	StageManufacturing  Stage = "manufacturing"
	StageQualityControl Stage = "quality_control"
	StagePackaging      Stage = "packaging"
	StageDistribution   Stage = "distribution"
	StageRetail         Stage = "retail"
	StageSold           Stage = "sold"
	StageRecalled       Stage = "recalled"
)

var stageOrder = []Stage{
	StageCreated,
	StageRawMaterial,
	StageManufacturing,
	StageQualityControl,
	StagePackaging,
	StageDistribution,
	StageRetail,
	StageSold,
}

func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", ErrInvalidStage
	}
	return s, nil
}

func (s Stage) Valid() bool {
	if s == StageRecalled {
		return true
	}
	return s.index() >= 0
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Terminal stages accept no further transitions.
func (s Stage) Terminal() bool {
	return s == StageSold || s == StageRecalled
}

// Next returns the only stage an advance may move to. Terminal stages and
// Recalled have no successor.
func (s Stage) Next() (Stage, bool) {
	i := s.index()
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// Product is the tracked good. ShardID is assigned once at creation;
// routine rebalancing never moves it.
type Product struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	Category     string       `gorm:"type:text" json:"category,omitempty"`
	BatchNumber  string       `gorm:"type:text;not null;index:ix_products_batch_number" json:"batch_number"`
	ExpiryDate   *time.Time   `json:"expiry_date,omitempty"`
	CurrentStage Stage        `gorm:"type:text;not null" json:"current_stage"`
	CurrentOwner snowflake.ID `gorm:"not null;index" json:"current_owner"`
	ShardID      snowflake.ID `gorm:"not null;index" json:"shard_id"`
	Active       bool         `gorm:"not null" json:"active"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Product) TableName() string { return "products" }

// OwnershipHistory is an append-only custody record. Seq is dense per
// product; entries are never updated, deleted or reordered.
type OwnershipHistory struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ProductID     snowflake.ID `gorm:"not null;index:ix_ownership_history_product" json:"product_id"`
	Seq           int64        `gorm:"not null" json:"seq"`
	PrevOwnerID   snowflake.ID `gorm:"not null" json:"prev_owner_id"`
	OwnerID       snowflake.ID `gorm:"not null" json:"owner_id"`
	Stage         Stage        `gorm:"type:text;not null" json:"stage"`
	TransferredAt time.Time    `gorm:"not null" json:"transferred_at"`
}

// TableName sets the database table name.
func (OwnershipHistory) TableName() string { return "ownership_history" }

// LocationHistory is an append-only movement record, one entry per
// accepted stage transition.
type LocationHistory struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ProductID  snowflake.ID `gorm:"not null;index:ix_location_history_product" json:"product_id"`
	Seq        int64        `gorm:"not null" json:"seq"`
	Location   string       `gorm:"type:text;not null" json:"location"`
	Stage      Stage        `gorm:"type:text;not null" json:"stage"`
	ActorID    snowflake.ID `gorm:"not null" json:"actor_id"`
	Notes      string       `gorm:"type:text" json:"notes,omitempty"`
	RecordedAt time.Time    `gorm:"not null" json:"recorded_at"`
}

// TableName sets the database table name.
func (LocationHistory) TableName() string { return "location_history" }

// QualityCheck is an append-only inspection record. Recording a check does
// not move the stage; gating progression on passed checks is the caller's
// policy.
type QualityCheck struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	ProductID snowflake.ID `gorm:"not null;index:ix_quality_checks_product" json:"product_id"`
	CheckType string       `gorm:"type:text;not null" json:"check_type"`
	Passed    bool         `gorm:"not null" json:"passed"`
	Notes     string       `gorm:"type:text" json:"notes,omitempty"`
	ActorID   snowflake.ID `gorm:"not null" json:"actor_id"`
	CheckedAt time.Time    `gorm:"not null" json:"checked_at"`
}

// TableName sets the database table name.
func (QualityCheck) TableName() string { return "quality_checks" }

// TemperatureLog is an append-only sensor reading, written in batches
// routed to iot shards.
type TemperatureLog struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	ProductID  snowflake.ID `gorm:"not null;index:ix_temperature_logs_product" json:"product_id"`
	SensorID   string       `gorm:"type:text;not null" json:"sensor_id"`
	Celsius    float64      `gorm:"not null" json:"celsius"`
	Humidity   *float64     `json:"humidity,omitempty"`
	RecordedAt time.Time    `gorm:"not null" json:"recorded_at"`
}

// TableName sets the database table name.
func (TemperatureLog) TableName() string { return "temperature_logs" }

// History bundles a product's ordered trails for the read API.
type History struct {
	Ownership       []OwnershipHistory `json:"ownership"`
	Locations       []LocationHistory  `json:"locations"`
	QualityChecks   []QualityCheck     `json:"quality_checks"`
	TemperatureLogs []TemperatureLog   `json:"temperature_logs"`
}
