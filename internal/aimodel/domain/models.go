package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/pkg/media"
)

// AIModel is a catalog entry mapping a public model key to the provider that serves it.
type AIModel struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	ModelKey           string       `gorm:"not null;uniqueIndex" json:"model_key"`
	Kind               media.Kind   `gorm:"not null" json:"kind"`
	Provider           string       `gorm:"not null" json:"provider"`
	ProviderModel      string       `gorm:"not null" json:"provider_model"`
	DisplayName        string       `gorm:"not null" json:"display_name"`
	IsActive           bool         `gorm:"not null" json:"is_active"`
	IsMaintenanceMode  bool         `gorm:"not null" json:"is_maintenance_mode"`
	CreditCostOverride *int64       `json:"credit_cost_override,omitempty"`
	MaxDurationSeconds *int         `json:"max_duration_seconds,omitempty"`
	CreatedAt          time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"not null" json:"updated_at"`
}

func (AIModel) TableName() string { return "ai_models" }

// Available reports whether new jobs may be submitted against the model.
func (m AIModel) Available() bool {
	return m.IsActive && !m.IsMaintenanceMode
}
