package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert adds model unless its key is already registered.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, model *domain.AIModel) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO ai_models (
			id, model_key, kind, provider, provider_model, display_name,
			is_active, is_maintenance_mode, credit_cost_override, max_duration_seconds,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (model_key) DO NOTHING`,
		model.ID,
		model.ModelKey,
		model.Kind,
		model.Provider,
		model.ProviderModel,
		model.DisplayName,
		model.IsActive,
		model.IsMaintenanceMode,
		model.CreditCostOverride,
		model.MaxDurationSeconds,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, modelKey string) (*domain.AIModel, error) {
	var models []domain.AIModel
	err := db.WithContext(ctx).Raw(
		`SELECT id, model_key, kind, provider, provider_model, display_name,
			is_active, is_maintenance_mode, credit_cost_override, max_duration_seconds,
			created_at, updated_at
		 FROM ai_models WHERE LOWER(model_key) = ?`,
		strings.ToLower(modelKey),
	).Scan(&models).Error
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	return &models[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AIModel, error) {
	var models []*domain.AIModel
	stmt := db.WithContext(ctx).Model(&domain.AIModel{})
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.Provider != "" {
		stmt = stmt.Where("provider = ?", filter.Provider)
	}
	if filter.ActiveOnly {
		stmt = stmt.Where("is_active = ? AND is_maintenance_mode = ?", true, false)
	}
	if err := stmt.Order("kind asc, model_key asc").Find(&models).Error; err != nil {
		return nil, err
	}
	return models, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, model *domain.AIModel) error {
	return db.WithContext(ctx).Exec(
		`UPDATE ai_models
		 SET is_active = ?, is_maintenance_mode = ?, credit_cost_override = ?,
			max_duration_seconds = ?, updated_at = ?
		 WHERE id = ?`,
		model.IsActive,
		model.IsMaintenanceMode,
		model.CreditCostOverride,
		model.MaxDurationSeconds,
		model.UpdatedAt,
		model.ID,
	).Error
}
