package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertProduct(ctx context.Context, db *gorm.DB, p *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]Product, error)
	FindByBatchNumber(ctx context.Context, db *gorm.DB, batchNumber string) ([]Product, error)
	UpdateProduct(ctx context.Context, db *gorm.DB, p *Product) error

	InsertOwnership(ctx context.Context, db *gorm.DB, entry *OwnershipHistory) error
	InsertLocation(ctx context.Context, db *gorm.DB, entry *LocationHistory) error
	InsertQualityCheck(ctx context.Context, db *gorm.DB, entry *QualityCheck) error
	InsertTemperatureLogs(ctx context.Context, db *gorm.DB, entries []TemperatureLog) error

	CountOwnership(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error)
	CountLocations(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error)

	ListOwnership(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]OwnershipHistory, error)
	ListLocations(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]LocationHistory, error)
	ListQualityChecks(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]QualityCheck, error)
	ListTemperatureLogs(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]TemperatureLog, error)
}
