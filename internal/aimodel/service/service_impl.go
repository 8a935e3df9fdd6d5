package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"github.com/smallbiznis/genstudio/internal/clock"
	"github.com/smallbiznis/genstudio/pkg/media"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  aimodeldomain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  aimodeldomain.Repository
	clock clock.Clock
}

func NewService(p Params) aimodeldomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("aimodel.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Get(ctx context.Context, modelKey string) (*aimodeldomain.AIModel, error) {
	modelKey = strings.TrimSpace(modelKey)
	if modelKey == "" {
		return nil, aimodeldomain.ErrInvalidModelKey
	}
	model, err := s.repo.FindByKey(ctx, s.db, modelKey)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return nil, aimodeldomain.ErrModelNotFound
	}
	return model, nil
}

func (s *Service) List(ctx context.Context, req aimodeldomain.ListRequest) ([]aimodeldomain.AIModel, error) {
	filter := aimodeldomain.ListFilter{
		Provider:   strings.ToLower(strings.TrimSpace(req.Provider)),
		ActiveOnly: req.ActiveOnly,
	}
	if strings.TrimSpace(req.Kind) != "" {
		kind, ok := media.ParseKind(req.Kind)
		if !ok {
			return nil, aimodeldomain.ErrInvalidKind
		}
		filter.Kind = string(kind)
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	out := make([]aimodeldomain.AIModel, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, req aimodeldomain.UpdateRequest) (*aimodeldomain.AIModel, error) {
	model, err := s.Get(ctx, req.ModelKey)
	if err != nil {
		return nil, err
	}

	if req.IsActive != nil {
		model.IsActive = *req.IsActive
	}
	if req.IsMaintenanceMode != nil {
		model.IsMaintenanceMode = *req.IsMaintenanceMode
	}
	if req.ClearOverride {
		model.CreditCostOverride = nil
	} else if req.CreditCostOverride != nil {
		if *req.CreditCostOverride <= 0 {
			return nil, aimodeldomain.ErrInvalidOverride
		}
		override := *req.CreditCostOverride
		model.CreditCostOverride = &override
	}
	if req.MaxDurationSeconds != nil {
		seconds := *req.MaxDurationSeconds
		model.MaxDurationSeconds = &seconds
	}
	model.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Update(ctx, s.db, model); err != nil {
		return nil, err
	}
	s.log.Info("ai model updated",
		zap.String("model_key", model.ModelKey),
		zap.Bool("is_active", model.IsActive),
		zap.Bool("is_maintenance_mode", model.IsMaintenanceMode),
	)
	return model, nil
}

func (s *Service) Resolve(ctx context.Context, kind media.Kind, modelKey string) (*aimodeldomain.AIModel, error) {
	model, err := s.Get(ctx, modelKey)
	if err != nil {
		return nil, err
	}
	if model.Kind != kind {
		return nil, aimodeldomain.ErrKindMismatch
	}
	if !model.Available() {
		return nil, aimodeldomain.ErrModelUnavailable
	}
	return model, nil
}

// Register inserts model when its key is new and reports whether it did.
func (s *Service) Register(ctx context.Context, model aimodeldomain.AIModel) (bool, error) {
	model.ModelKey = strings.TrimSpace(model.ModelKey)
	if model.ModelKey == "" {
		return false, aimodeldomain.ErrInvalidModelKey
	}
	kind, ok := media.ParseKind(string(model.Kind))
	if !ok {
		return false, aimodeldomain.ErrInvalidKind
	}
	model.Kind = kind
	model.Provider = strings.ToLower(strings.TrimSpace(model.Provider))
	if model.Provider == "" || strings.TrimSpace(model.ProviderModel) == "" {
		return false, aimodeldomain.ErrInvalidProvider
	}

	now := s.clock.Now().UTC()
	model.ID = s.genID.Generate()
	if model.DisplayName == "" {
		model.DisplayName = model.ModelKey
	}
	model.CreatedAt = now
	model.UpdatedAt = now

	return s.repo.Insert(ctx, s.db, &model)
}
