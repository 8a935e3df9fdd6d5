package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"github.com/smallbiznis/genstudio/internal/clock"
	"github.com/smallbiznis/genstudio/internal/config"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"github.com/smallbiznis/genstudio/internal/notification"
	obsmetrics "github.com/smallbiznis/genstudio/internal/observability/metrics"
	pricingdomain "github.com/smallbiznis/genstudio/internal/pricing/domain"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/pkg/db"
	"github.com/smallbiznis/genstudio/pkg/db/pagination"
	"github.com/smallbiznis/genstudio/pkg/media"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize        = 20
	maxPageSize            = 100
	defaultMaxPollErrors   = 5
	defaultMinPollInterval = 5 * time.Second
	defaultSubmitAttempts  = 3
	reserveReason          = "generation"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       generationdomain.Repository
	Ledger     ledgerdomain.Service
	Models     aimodeldomain.Service
	Pricing    pricingdomain.Resolver
	Adapters   generationdomain.AdapterResolver
	Notifier   notification.Publisher `optional:"true"`
	Clock      clock.Clock            `optional:"true"`
	Config     config.Config          `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       generationdomain.Repository
	ledger     ledgerdomain.Service
	models     aimodeldomain.Service
	pricing    pricingdomain.Resolver
	adapters   generationdomain.AdapterResolver
	notifier   notification.Publisher
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	maxActiveJobs   int
	maxPollErrors   int
	minPollInterval time.Duration
	submitAttempts  uint
	retryDelay      time.Duration
	publicBaseURL   string
	callbackToken   string
}

func NewService(p Params) generationdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	svc := &Service{
		db:         p.DB,
		log:        p.Log.Named("generation.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledger:     p.Ledger,
		models:     p.Models,
		pricing:    p.Pricing,
		adapters:   p.Adapters,
		notifier:   p.Notifier,
		clock:      clk,
		obsMetrics: p.ObsMetrics,

		maxActiveJobs:   p.Config.Generation.MaxActiveJobsPerUser,
		maxPollErrors:   p.Config.Poller.MaxPollErrors,
		minPollInterval: p.Config.Poller.MinPollInterval,
		submitAttempts:  uint(p.Config.Generation.ReserveMaxAttempts),
		retryDelay:      50 * time.Millisecond,
		publicBaseURL:   strings.TrimRight(p.Config.PublicBaseURL, "/"),
		callbackToken:   p.Config.Callback.Token,
	}
	if svc.maxPollErrors <= 0 {
		svc.maxPollErrors = defaultMaxPollErrors
	}
	if svc.minPollInterval <= 0 {
		svc.minPollInterval = defaultMinPollInterval
	}
	if svc.submitAttempts == 0 {
		svc.submitAttempts = defaultSubmitAttempts
	}
	return svc
}

// Submit validates, prices and reserves credits for a generation, then
// dispatches it. Nothing is charged unless the pending row is persisted, and
// a failed dispatch is refunded before Submit returns.
func (s *Service) Submit(ctx context.Context, req generationdomain.SubmitRequest) (*generationdomain.SubmitResponse, error) {
	if req.UserID <= 0 {
		return nil, generationdomain.ErrInvalidUser
	}
	kind, ok := media.ParseKind(req.Kind)
	if !ok {
		return nil, generationdomain.ErrInvalidKind
	}
	modelKey := strings.TrimSpace(req.ModelKey)
	if modelKey == "" {
		return nil, fmt.Errorf("%w: model_key is required", generationdomain.ErrInvalidParameters)
	}
	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}
	if err := validateParameters(kind, params); err != nil {
		return nil, err
	}

	model, err := s.resolveModel(ctx, kind, modelKey)
	if err != nil {
		return nil, err
	}
	if err := checkDuration(model, params); err != nil {
		return nil, err
	}

	cost, err := s.price(ctx, kind, model, params)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("%w: parameters are not serializable", generationdomain.ErrInvalidParameters)
	}

	now := s.clock.Now().UTC()
	job := &generationdomain.Job{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		Kind:          kind,
		ModelKey:      model.ModelKey,
		Provider:      model.Provider,
		ProviderModel: model.ProviderModel,
		Parameters:    datatypes.JSON(encoded),
		CreditsCost:   cost,
		Status:        generationdomain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	reservation, err := s.reserveAndCreate(ctx, job)
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordGenerationSubmitted(ctx, string(kind), model.Provider)
	s.log.Info("generation.submitted",
		zap.String("job_id", job.ID.String()),
		zap.Int64("user_id", job.UserID),
		zap.String("kind", string(kind)),
		zap.String("model_key", job.ModelKey),
		zap.String("provider", job.Provider),
		zap.Int64("credits", cost),
	)

	// The reservation is committed; a caller hanging up must not abandon the
	// dispatch or its compensation.
	dispatchCtx := context.WithoutCancel(ctx)
	final, err := s.dispatch(dispatchCtx, job, params)
	if err != nil {
		return nil, err
	}
	return &generationdomain.SubmitResponse{Job: *final, BalanceAfter: reservation.BalanceAfter}, nil
}

// reserveAndCreate debits the user, enforces the active job cap and persists
// the pending row in one transaction. Conflicts between concurrent writers
// replay the whole unit.
func (s *Service) reserveAndCreate(ctx context.Context, job *generationdomain.Job) (*ledgerdomain.CreditTransaction, error) {
	operation := func() (*ledgerdomain.CreditTransaction, error) {
		var reservation *ledgerdomain.CreditTransaction
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txn, err := s.ledger.WithTx(tx).Reserve(ctx, ledgerdomain.ReserveRequest{
				UserID:       job.UserID,
				Amount:       job.CreditsCost,
				Reason:       reserveReason,
				RelatedJobID: &job.ID,
			})
			if err != nil {
				return err
			}
			// Reserve holds the user's row lock, so concurrent submits for
			// the same user see each other's pending rows here.
			if s.maxActiveJobs > 0 {
				active, err := s.repo.CountActiveByUser(ctx, tx, job.UserID)
				if err != nil {
					return err
				}
				if active >= int64(s.maxActiveJobs) {
					return generationdomain.ErrTooManyActiveJobs
				}
			}
			job.ReservationID = &txn.ID
			if err := s.repo.Insert(ctx, tx, job); err != nil {
				return err
			}
			reservation = txn
			return nil
		})
		if err != nil {
			if db.IsRetryableConflict(err) {
				s.log.Warn("generation reservation conflict, retrying",
					zap.Int64("user_id", job.UserID),
					zap.Error(err),
				)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return reservation, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retryDelay)),
		backoff.WithMaxTries(s.submitAttempts),
	)
}

func (s *Service) dispatch(ctx context.Context, job *generationdomain.Job, params map[string]any) (*generationdomain.Job, error) {
	adapter, err := s.adapters.Adapter(job.Provider)
	var result *providerdomain.SubmitResult
	if err == nil {
		result, err = adapter.Submit(ctx, providerdomain.SubmitRequest{
			JobID:         job.ID,
			Kind:          job.Kind,
			ProviderModel: job.ProviderModel,
			Parameters:    params,
			CallbackURL:   s.callbackURL(job.Provider, adapter),
		})
	}

	if err != nil {
		s.log.Warn("generation dispatch failed",
			zap.String("job_id", job.ID.String()),
			zap.String("provider", job.Provider),
			zap.Bool("retryable", providerdomain.IsRetryable(err)),
			zap.Error(err),
		)
		if _, ferr := s.Finalize(ctx, generationdomain.FinalizeRequest{
			JobID: job.ID,
			Status: providerdomain.JobStatus{
				State:       providerdomain.StateFailed,
				ErrorDetail: err.Error(),
				ErrorCode:   generationdomain.ErrorCodeDispatch,
			},
			Source: generationdomain.SourceDispatch,
		}); ferr != nil {
			return nil, fmt.Errorf("%w: %w (refund pending: %v)", generationdomain.ErrDispatchFailed, err, ferr)
		}
		return nil, fmt.Errorf("%w: %w", generationdomain.ErrDispatchFailed, err)
	}

	if result.Status != nil && result.Status.Terminal() {
		finalized, err := s.Finalize(ctx, generationdomain.FinalizeRequest{
			JobID:         job.ID,
			Status:        *result.Status,
			ExternalJobID: result.ExternalJobID,
			Source:        generationdomain.SourceDispatch,
		})
		if err != nil {
			return nil, err
		}
		return &finalized.Job, nil
	}

	externalID := strings.TrimSpace(result.ExternalJobID)
	now := s.clock.Now().UTC()
	moved, err := s.repo.MarkProcessing(ctx, s.db, job.ID, externalID, now)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, s.db, job.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, generationdomain.ErrNotFound
	}
	if !moved {
		// The stale sweep finalized the row while the provider was still
		// answering; the provider task is no longer tracked.
		s.log.Warn("job left pending before dispatch completed",
			zap.String("job_id", job.ID.String()),
			zap.String("external_job_id", externalID),
			zap.String("status", string(current.Status)),
		)
		if current.Status != generationdomain.StatusCompleted {
			return nil, fmt.Errorf("%w: job %s expired before the provider accepted it", generationdomain.ErrDispatchFailed, job.ID)
		}
	}
	s.log.Info("generation.dispatched",
		zap.String("job_id", job.ID.String()),
		zap.String("external_job_id", externalID),
		zap.String("provider", job.Provider),
	)
	return current, nil
}

func (s *Service) callbackURL(provider string, adapter providerdomain.Adapter) string {
	if s.publicBaseURL == "" || s.callbackToken == "" {
		return ""
	}
	if _, ok := adapter.(providerdomain.CallbackParser); !ok {
		return ""
	}
	return s.publicBaseURL + "/v1/callbacks/" + url.PathEscape(provider) + "?token=" + url.QueryEscape(s.callbackToken)
}

func (s *Service) resolveModel(ctx context.Context, kind media.Kind, modelKey string) (*aimodeldomain.AIModel, error) {
	model, err := s.models.Resolve(ctx, kind, modelKey)
	switch {
	case err == nil:
		return model, nil
	case errors.Is(err, aimodeldomain.ErrModelNotFound),
		errors.Is(err, aimodeldomain.ErrKindMismatch),
		errors.Is(err, aimodeldomain.ErrInvalidModelKey):
		return nil, fmt.Errorf("%w: %w", generationdomain.ErrInvalidParameters, err)
	default:
		return nil, err
	}
}

func (s *Service) price(ctx context.Context, kind media.Kind, model *aimodeldomain.AIModel, params map[string]any) (int64, error) {
	cost, err := s.pricing.Resolve(ctx, pricingdomain.Quote{
		Kind:     kind,
		ModelKey: model.ModelKey,
		Options:  params,
		Override: model.CreditCostOverride,
	})
	if err != nil {
		if errors.Is(err, pricingdomain.ErrInvalidParameters) {
			return 0, fmt.Errorf("%w: %w", generationdomain.ErrInvalidParameters, err)
		}
		return 0, err
	}
	return cost, nil
}

func (s *Service) Quote(ctx context.Context, req generationdomain.QuoteRequest) (generationdomain.QuoteResponse, error) {
	kind, ok := media.ParseKind(req.Kind)
	if !ok {
		return generationdomain.QuoteResponse{}, generationdomain.ErrInvalidKind
	}
	modelKey := strings.TrimSpace(req.ModelKey)
	if modelKey == "" {
		return generationdomain.QuoteResponse{}, fmt.Errorf("%w: model_key is required", generationdomain.ErrInvalidParameters)
	}
	model, err := s.resolveModel(ctx, kind, modelKey)
	if err != nil {
		return generationdomain.QuoteResponse{}, err
	}
	cost, err := s.price(ctx, kind, model, req.Parameters)
	if err != nil {
		return generationdomain.QuoteResponse{}, err
	}
	return generationdomain.QuoteResponse{Kind: string(kind), ModelKey: model.ModelKey, Credits: cost}, nil
}

func (s *Service) Get(ctx context.Context, req generationdomain.GetRequest) (*generationdomain.Job, error) {
	if req.UserID <= 0 {
		return nil, generationdomain.ErrInvalidUser
	}
	job, err := s.repo.FindByID(ctx, s.db, req.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.UserID != req.UserID {
		return nil, generationdomain.ErrNotFound
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, req generationdomain.ListRequest) (generationdomain.ListResponse, error) {
	if req.UserID <= 0 {
		return generationdomain.ListResponse{}, generationdomain.ErrInvalidUser
	}

	filter := generationdomain.ListFilter{
		UserID:   req.UserID,
		ModelKey: strings.TrimSpace(req.ModelKey),
	}
	if strings.TrimSpace(req.Kind) != "" {
		kind, ok := media.ParseKind(req.Kind)
		if !ok {
			return generationdomain.ListResponse{}, generationdomain.ErrInvalidKind
		}
		filter.Kind = kind
	}
	if value := strings.ToLower(strings.TrimSpace(req.Status)); value != "" {
		status, ok := generationdomain.ParseStatus(value)
		if !ok {
			return generationdomain.ListResponse{}, generationdomain.ErrInvalidStatus
		}
		filter.Status = status
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	filter.Limit = pageSize + 1

	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.Decode(token)
		if err != nil {
			return generationdomain.ListResponse{}, generationdomain.ErrInvalidPageToken
		}
		filter.CursorCreatedAt = &cursor.CreatedAt
		filter.CursorID = cursor.ID
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return generationdomain.ListResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, pageSize, func(job *generationdomain.Job) pagination.Cursor {
		return pagination.Cursor{CreatedAt: job.CreatedAt.UTC(), ID: job.ID.Int64()}
	})

	out := make([]generationdomain.Job, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return generationdomain.ListResponse{PageInfo: pageInfo, Jobs: out}, nil
}
