package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, model *AIModel) (bool, error)
	FindByKey(ctx context.Context, db *gorm.DB, modelKey string) (*AIModel, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AIModel, error)
	Update(ctx context.Context, db *gorm.DB, model *AIModel) error
}

type ListFilter struct {
	Kind       string
	Provider   string
	ActiveOnly bool
}
