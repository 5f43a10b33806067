package repository

import (
	"context"
	"learnhub_backend/internal/model"

	"gorm.io/gorm"
)

type DeadLetterRepository struct {
	DB *gorm.DB
}

func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{DB: db}
}

func (r *DeadLetterRepository) Create(ctx context.Context, d *model.MediaCleanupDeadLetter) error {
	return r.DB.WithContext(ctx).Create(d).Error
}

func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]model.MediaCleanupDeadLetter, error) {
	var list []model.MediaCleanupDeadLetter
	err := r.DB.WithContext(ctx).Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}
