package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/trackchain/trackway/internal/participant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Participant) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Participant, error) {
	var p domain.Participant
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) FindByUserKey(ctx context.Context, db *gorm.DB, userKey string) (*domain.Participant, error) {
	var p domain.Participant
	err := db.WithContext(ctx).Where("user_key = ?", userKey).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *repo) FindAll(ctx context.Context, db *gorm.DB) ([]domain.Participant, error) {
	var items []domain.Participant
	err := db.WithContext(ctx).
		Model(&domain.Participant{}).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.Participant) error {
	if p == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE participants
		 SET address = ?, role = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		p.Address,
		p.Role,
		p.Active,
		p.UpdatedAt,
		p.ID,
	).Error
}
