package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, shard *Shard, metrics *Metrics) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Shard, error)
	FindByType(ctx context.Context, db *gorm.DB, t ShardType, activeOnly bool) ([]Shard, error)
	FindAll(ctx context.Context, db *gorm.DB) ([]Shard, error)
	CountByType(ctx context.Context, db *gorm.DB, t ShardType) (int64, error)
	Update(ctx context.Context, db *gorm.DB, shard *Shard) error
	FindMetrics(ctx context.Context, db *gorm.DB, shardID snowflake.ID) (*Metrics, error)
	UpdateMetrics(ctx context.Context, db *gorm.DB, metrics *Metrics) error
}
