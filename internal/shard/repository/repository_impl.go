package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/trackchain/trackway/internal/shard/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, shard *domain.Shard, metrics *domain.Metrics) error {
	if err := db.WithContext(ctx).Create(shard).Error; err != nil {
		return err
	}
	if metrics == nil {
		return nil
	}
	return db.WithContext(ctx).Create(metrics).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Shard, error) {
	var s domain.Shard
	err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *repo) FindByType(ctx context.Context, db *gorm.DB, t domain.ShardType, activeOnly bool) ([]domain.Shard, error) {
	var items []domain.Shard
	stmt := db.WithContext(ctx).
		Model(&domain.Shard{}).
		Where("shard_type = ?", t)
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	// Ascending snowflake ID is insertion order; selection tie-breaks
	// depend on it.
	if err := stmt.Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB) ([]domain.Shard, error) {
	var items []domain.Shard
	err := db.WithContext(ctx).
		Model(&domain.Shard{}).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByType(ctx context.Context, db *gorm.DB, t domain.ShardType) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Shard{}).
		Where("shard_type = ?", t).
		Count(&count).Error
	return count, err
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, shard *domain.Shard) error {
	if shard == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE shards
		 SET current_load = ?, tx_count = ?, failed_tx_count = ?, overflow_count = ?,
		     avg_resource_used = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		shard.CurrentLoad,
		shard.TxCount,
		shard.FailedTxCount,
		shard.OverflowCount,
		shard.AvgResourceUsed,
		shard.Active,
		shard.UpdatedAt,
		shard.ID,
	).Error
}

func (r *repo) FindMetrics(ctx context.Context, db *gorm.DB, shardID snowflake.ID) (*domain.Metrics, error) {
	var m domain.Metrics
	err := db.WithContext(ctx).Where("shard_id = ?", shardID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *repo) UpdateMetrics(ctx context.Context, db *gorm.DB, metrics *domain.Metrics) error {
	if metrics == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE shard_metrics
		 SET avg_tx_time_ms = ?, avg_resource_price = ?, throughput_per_min = ?,
		     error_rate = ?, last_updated = ?
		 WHERE shard_id = ?`,
		metrics.AvgTxTimeMs,
		metrics.AvgResourcePrice,
		metrics.ThroughputPerMin,
		metrics.ErrorRate,
		metrics.LastUpdated,
		metrics.ShardID,
	).Error
}
