package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/trackchain/trackway/internal/lifecycle/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]domain.Product, error) {
	var items []domain.Product
	if len(ids) == 0 {
		return items, nil
	}
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByBatchNumber(ctx context.Context, db *gorm.DB, batchNumber string) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).
		Model(&domain.Product{}).
		Where("batch_number = ?", batchNumber).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateProduct(ctx context.Context, db *gorm.DB, p *domain.Product) error {
	if p == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE products
		 SET current_stage = ?, current_owner = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		p.CurrentStage,
		p.CurrentOwner,
		p.Active,
		p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) InsertOwnership(ctx context.Context, db *gorm.DB, entry *domain.OwnershipHistory) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) InsertLocation(ctx context.Context, db *gorm.DB, entry *domain.LocationHistory) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) InsertQualityCheck(ctx context.Context, db *gorm.DB, entry *domain.QualityCheck) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) InsertTemperatureLogs(ctx context.Context, db *gorm.DB, entries []domain.TemperatureLog) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entries).Error
}

func (r *repo) CountOwnership(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.OwnershipHistory{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count, err
}

func (r *repo) CountLocations(ctx context.Context, db *gorm.DB, productID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.LocationHistory{}).
		Where("product_id = ?", productID).
		Count(&count).Error
	return count, err
}

func (r *repo) ListOwnership(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]domain.OwnershipHistory, error) {
	var items []domain.OwnershipHistory
	err := db.WithContext(ctx).
		Model(&domain.OwnershipHistory{}).
		Where("product_id = ?", productID).
		Order("seq asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListLocations(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]domain.LocationHistory, error) {
	var items []domain.LocationHistory
	err := db.WithContext(ctx).
		Model(&domain.LocationHistory{}).
		Where("product_id = ?", productID).
		Order("seq asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListQualityChecks(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]domain.QualityCheck, error) {
	var items []domain.QualityCheck
	err := db.WithContext(ctx).
		Model(&domain.QualityCheck{}).
		Where("product_id = ?", productID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTemperatureLogs(ctx context.Context, db *gorm.DB, productID snowflake.ID) ([]domain.TemperatureLog, error) {
	var items []domain.TemperatureLog
	err := db.WithContext(ctx).
		Model(&domain.TemperatureLog{}).
		Where("product_id = ?", productID).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
