package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	aimodelrepository "github.com/smallbiznis/genstudio/internal/aimodel/repository"
	aimodelservice "github.com/smallbiznis/genstudio/internal/aimodel/service"
	"github.com/smallbiznis/genstudio/internal/clock"
	"github.com/smallbiznis/genstudio/internal/config"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	generationrepository "github.com/smallbiznis/genstudio/internal/generation/repository"
	generationservice "github.com/smallbiznis/genstudio/internal/generation/service"
	ledgerrepository "github.com/smallbiznis/genstudio/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/genstudio/internal/ledger/service"
	pricingservice "github.com/smallbiznis/genstudio/internal/pricing/service"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	schedtesting "github.com/smallbiznis/genstudio/internal/scheduler/testing"
	"github.com/smallbiznis/genstudio/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type silentAdapter struct{}

func (silentAdapter) Provider() string { return "kie" }

func (silentAdapter) Submit(_ context.Context, req providerdomain.SubmitRequest) (*providerdomain.SubmitResult, error) {
	return &providerdomain.SubmitResult{ExternalJobID: "task-" + req.JobID.String()}, nil
}

func (silentAdapter) PollStatus(context.Context, providerdomain.PollRequest) (*providerdomain.JobStatus, error) {
	return &providerdomain.JobStatus{State: providerdomain.StateRunning}, nil
}

type silentResolver struct{}

func (silentResolver) Adapter(string) (providerdomain.Adapter, error) { return silentAdapter{}, nil }

func (silentResolver) CallbackParser(string) (providerdomain.CallbackParser, error) {
	return nil, providerdomain.ErrCallbackIgnored
}

// A provider that never answers must not hold credits forever.
func TestStaleSweepRefundsSilentProviderJob(t *testing.T) {
	useTestRegistry(t)

	db := dbtest.Open(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(testNow)
	log := zap.NewNop()
	ctx := context.Background()

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node, Repo: ledgerrepository.Provide(), Clock: clk})
	models := aimodelservice.NewService(aimodelservice.Params{DB: db, Log: log, GenID: node, Repo: aimodelrepository.Provide(), Clock: clk})
	for _, model := range aimodeldomain.DefaultCatalog() {
		_, err := models.Register(ctx, model)
		require.NoError(t, err)
	}
	gen := generationservice.NewService(generationservice.Params{
		DB:     db,
		Log:    log,
		GenID:  node,
		Repo:   generationrepository.Provide(),
		Ledger: ledger,
		Models: models,
		Pricing: pricingservice.NewResolver(pricingservice.Params{
			Log:     log,
			Pricing: config.NewStaticPricingConfigHolder(config.DefaultPricingConfig()),
		}),
		Adapters: silentResolver{},
		Clock:    clk,
	})

	dbtest.SeedUser(t, db, 1, 100)
	resp, err := gen.Submit(ctx, generationdomain.SubmitRequest{
		UserID:     1,
		Kind:       "video",
		ModelKey:   "veo3",
		Parameters: map[string]any{"prompt": "a slow pan over a city at night"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40), dbtest.Credits(t, db, 1))

	s, err := New(Params{Log: log, Generation: gen, GenID: node, Clock: clk, Config: Config{}})
	require.NoError(t, err)

	// Inside the video window the job is only polled.
	require.NoError(t, s.RunOnce(ctx))
	job, err := gen.Get(ctx, generationdomain.GetRequest{UserID: 1, JobID: resp.Job.ID})
	require.NoError(t, err)
	assert.Equal(t, generationdomain.StatusProcessing, job.Status)

	aged, err := schedtesting.NewTimeAccelerator(db).AgeAllActive(ctx, 25*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), aged)

	require.NoError(t, s.RunOnce(ctx))
	job, err = gen.Get(ctx, generationdomain.GetRequest{UserID: 1, JobID: resp.Job.ID})
	require.NoError(t, err)
	assert.Equal(t, generationdomain.StatusFailed, job.Status)
	require.NotNil(t, job.ErrorCode)
	assert.Equal(t, generationdomain.ErrorCodeStaleTimeout, *job.ErrorCode)
	assert.Equal(t, int64(100), dbtest.Credits(t, db, 1))

	// A second sweep finds nothing left to refund.
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, int64(100), dbtest.Credits(t, db, 1))
}
