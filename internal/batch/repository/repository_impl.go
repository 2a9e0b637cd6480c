package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/trackchain/trackway/internal/batch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *domain.Batch) error {
	return db.WithContext(ctx).Create(b).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Batch, error) {
	var b domain.Batch
	err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, key string) (*domain.Batch, error) {
	var b domain.Batch
	err := db.WithContext(ctx).Where("idempotency_key = ?", key).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, b *domain.Batch) error {
	if b == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE batch_operations
		 SET status = ?, actual_cost = ?, reject_reason = ?, processed_at = ?, updated_at = ?
		 WHERE id = ?`,
		b.Status,
		b.ActualCost,
		b.RejectReason,
		b.ProcessedAt,
		b.UpdatedAt,
		b.ID,
	).Error
}
