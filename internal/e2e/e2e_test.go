package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/genstudio/internal/aimodel"
	"github.com/smallbiznis/genstudio/internal/authorization"
	"github.com/smallbiznis/genstudio/internal/clock"
	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/internal/generation"
	"github.com/smallbiznis/genstudio/internal/ledger"
	"github.com/smallbiznis/genstudio/internal/migration"
	"github.com/smallbiznis/genstudio/internal/notification"
	"github.com/smallbiznis/genstudio/internal/observability"
	"github.com/smallbiznis/genstudio/internal/pricing"
	"github.com/smallbiznis/genstudio/internal/provider"
	"github.com/smallbiznis/genstudio/internal/ratelimit"
	"github.com/smallbiznis/genstudio/internal/scheduler"
	"github.com/smallbiznis/genstudio/internal/server"
	"github.com/smallbiznis/genstudio/internal/storage/storagefx"
	"github.com/smallbiznis/genstudio/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const (
	seedUserID    = 7
	seedCredits   = 100
	callbackToken = "e2e-callback-token"
	operatorID    = 1
)

type testEnv struct {
	app       *fx.App
	db        *gorm.DB
	baseURL   string
	scheduler *scheduler.Scheduler
	httpSrv   *httptest.Server
	kie       *kieStub
	container *tcpostgres.PostgresContainer
	mediaDir  string
}

var env *testEnv

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		fmt.Fprintln(os.Stderr, "skipping e2e tests in short mode")
		os.Exit(0)
	}
	gin.SetMode(gin.TestMode)

	var err error
	env, err = startEnv()
	if err != nil {
		// No docker daemon means no postgres; there is nothing to run against.
		fmt.Fprintln(os.Stderr, "skipping e2e tests:", err)
		if env != nil {
			env.shutdown()
		}
		os.Exit(0)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func TestE2E_HealthCheck(t *testing.T) {
	resetDatabase(t, env.db)

	resp, _ := doJSON(t, http.MethodGet, env.baseURL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_BootstrapSeedsCatalogAndUser(t *testing.T) {
	resetDatabase(t, env.db)

	assert.Equal(t, int64(1), countRows(t, env.db, `SELECT COUNT(*) FROM ai_models WHERE model_key = ?`, "flux-2-pro"))

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/v1/models?kind=image", nil, userHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"flux-2-pro"`)

	assert.Equal(t, int64(seedCredits), balance(t))
}

func TestE2E_ImageJobCompletedByCallback(t *testing.T) {
	resetDatabase(t, env.db)

	job := submitImageJob(t)
	assert.Equal(t, "processing", job.Status)
	assert.Equal(t, int64(seedCredits-12), balance(t))

	submitted := env.kie.lastSubmission()
	assert.Equal(t, "flux-2/pro-text-to-image", submitted["model"])
	assert.Contains(t, submitted["callBackUrl"], "/v1/callbacks/kie?token="+callbackToken)

	payload := map[string]any{
		"code": 200,
		"msg":  "success",
		"data": map[string]any{
			"taskId":     job.ExternalJobID,
			"state":      "success",
			"resultJson": `{"resultUrls":["https://cdn.example.com/out.png"]}`,
		},
	}
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/callbacks/kie?token="+callbackToken, payload, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Redelivery is acknowledged without a second transition.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/v1/callbacks/kie?token="+callbackToken, payload, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	got := getJob(t, job.ID)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "https://cdn.example.com/out.png", got.ResultURL)
	assert.Equal(t, int64(seedCredits-12), balance(t))
	assert.Equal(t, int64(0), countRows(t, env.db, `SELECT COUNT(*) FROM credit_transactions WHERE type = 'refund'`))
}

func TestE2E_CallbackRejectsBadToken(t *testing.T) {
	resetDatabase(t, env.db)

	job := submitImageJob(t)
	payload := map[string]any{
		"code": 200,
		"data": map[string]any{"taskId": job.ExternalJobID, "state": "success"},
	}
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/callbacks/kie?token=wrong", payload, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, string(body))

	assert.Equal(t, "processing", getJob(t, job.ID).Status)
}

func TestE2E_PollerRefundsFailedJob(t *testing.T) {
	resetDatabase(t, env.db)

	job := submitImageJob(t)
	env.kie.setRecord(job.ExternalJobID, map[string]any{
		"taskId":  job.ExternalJobID,
		"state":   "fail",
		"failMsg": "content policy violation",
	})

	require.NoError(t, env.scheduler.RunOnce(context.Background()))

	got := getJob(t, job.ID)
	assert.Equal(t, "failed", got.Status)
	assert.Equal(t, "content policy violation", got.ErrorMessage)
	assert.Equal(t, int64(seedCredits), balance(t))
	assert.Equal(t, int64(1), countRows(t, env.db,
		`SELECT COUNT(*) FROM credit_transactions WHERE type = 'refund' AND related_job_id = ?`, job.ID))
}

func TestE2E_InsufficientCredits(t *testing.T) {
	resetDatabase(t, env.db)
	require.NoError(t, env.db.Exec(`UPDATE users SET credits = 5 WHERE id = ?`, seedUserID).Error)

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/generations", imageRequest(), userHeaders())
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode, string(body))

	assert.Equal(t, int64(0), countRows(t, env.db, `SELECT COUNT(*) FROM generation_jobs`))
	assert.Equal(t, int64(5), balance(t))
}

func TestE2E_DispatchFailureRefunds(t *testing.T) {
	resetDatabase(t, env.db)
	env.kie.failNextSubmit()

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/generations", imageRequest(), userHeaders())
	require.Equal(t, http.StatusBadGateway, resp.StatusCode, string(body))

	assert.Equal(t, int64(seedCredits), balance(t))
	assert.Equal(t, int64(1), countRows(t, env.db, `SELECT COUNT(*) FROM generation_jobs WHERE status = 'failed'`))
}

func TestE2E_ListTransactions(t *testing.T) {
	resetDatabase(t, env.db)
	submitImageJob(t)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/v1/credits/transactions", nil, userHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Data struct {
			Transactions []struct {
				Type   string `json:"type"`
				Amount int64  `json:"amount"`
			} `json:"transactions"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Data.Transactions)
	assert.Equal(t, "reserve", out.Data.Transactions[0].Type)
	assert.Equal(t, int64(-12), out.Data.Transactions[0].Amount)
}

func TestE2E_AdminGrantAndReconcile(t *testing.T) {
	resetDatabase(t, env.db)
	operator := map[string]string{server.HeaderUserID: fmt.Sprint(operatorID)}

	// The seeded user holds no operator role.
	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/admin/users/%d/credits", env.baseURL, seedUserID),
		map[string]any{"amount": 25}, userHeaders())
	require.Equal(t, http.StatusForbidden, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/v1/admin/users/%d/credits", env.baseURL, seedUserID),
		map[string]any{"amount": 25, "reason": "support top-up"}, operator)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.Equal(t, int64(seedCredits+25), balance(t))

	resp, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/v1/admin/users/%d/reconcile", env.baseURL, seedUserID), nil, operator)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"consistent":true`)
}

type jobView struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	ExternalJobID string `json:"external_job_id"`
	ResultURL     string `json:"result_url"`
	ErrorMessage  string `json:"error_message"`
}

func imageRequest() map[string]any {
	return map[string]any{
		"kind":      "image",
		"model_key": "flux-2-pro",
		"parameters": map[string]any{
			"prompt":       "a lighthouse at dusk",
			"aspect_ratio": "16:9",
		},
	}
}

func submitImageJob(t *testing.T) jobView {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/v1/generations", imageRequest(), userHeaders())
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var out struct {
		Data struct {
			Job jobView `json:"job"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Data.Job.ExternalJobID)
	return out.Data.Job
}

func getJob(t *testing.T, id string) jobView {
	t.Helper()
	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/v1/generations/"+id, nil, userHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Data jobView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Data
}

func balance(t *testing.T) int64 {
	t.Helper()
	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/v1/credits/balance", nil, userHeaders())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out struct {
		Data struct {
			Credits int64 `json:"credits"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Data.Credits
}

func userHeaders() map[string]string {
	return map[string]string{server.HeaderUserID: fmt.Sprint(seedUserID)}
}

func startEnv() (*testEnv, error) {
	ctx := context.Background()
	e := &testEnv{kie: newKieStub()}

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("genstudio"),
		tcpostgres.WithUsername("genstudio"),
		tcpostgres.WithPassword("genstudio"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(2*time.Minute),
		),
	)
	if err != nil {
		return e, fmt.Errorf("start postgres: %w", err)
	}
	e.container = container

	host, err := container.Host(ctx)
	if err != nil {
		return e, err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return e, err
	}

	mediaDir, err := os.MkdirTemp("", "genstudio-e2e-media")
	if err != nil {
		return e, err
	}
	e.mediaDir = mediaDir

	setEnv(map[string]string{
		"ENVIRONMENT":              "test",
		"LOG_LEVEL":                "error",
		"OTEL_ENABLED":             "false",
		"DATABASE_TYPE":            "postgres",
		"DATABASE_HOST":            host,
		"DATABASE_PORT":            port.Port(),
		"DATABASE_NAME":            "genstudio",
		"DATABASE_USER":            "genstudio",
		"DATABASE_PASSWORD":        "genstudio",
		"DATABASE_SSLMODE":         "disable",
		"DATABASE_MIGRATE":         "true",
		"SEED_USER_ID":             fmt.Sprint(seedUserID),
		"SEED_USER_CREDITS":        fmt.Sprint(seedCredits),
		"OPERATOR_ROLES":           fmt.Sprintf("%d:admin", operatorID),
		"POLLER_ENABLED":           "false",
		"POLLER_MIN_POLL_INTERVAL": "1ms",
		"KIE_API_KEY":              "kie-test-key",
		"KIE_BASE_URL":             e.kie.srv.URL,
		"KIE_MAX_RETRIES":          "0",
		"CALLBACK_TOKEN":           callbackToken,
		"PUBLIC_BASE_URL":          "https://genstudio.test",
		"STORAGE_DRIVER":           "local",
		"STORAGE_LOCAL_DIR":        mediaDir,
		"STORAGE_PUBLIC_BASE_URL":  "https://media.genstudio.test",
	})

	var engine *gin.Engine
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		fx.Provide(func(cfg config.Config) (*snowflake.Node, error) {
			return snowflake.NewNode(cfg.SnowflakeNode)
		}),
		db.Module,
		clock.Module,
		ratelimit.Module,
		storagefx.Module,
		provider.Module,
		notification.Module,
		ledger.Module,
		aimodel.Module,
		pricing.Module,
		generation.Module,
		migration.Module,
		authorization.Module,
		scheduler.Module,
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) { s.RegisterRoutes() }),
		fx.Populate(&engine, &e.db, &e.scheduler),
	)
	e.app = app

	startCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return e, err
	}

	e.httpSrv = httptest.NewServer(engine)
	e.baseURL = e.httpSrv.URL
	return e, nil
}

func (e *testEnv) shutdown() {
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = e.app.Stop(ctx)
		cancel()
	}
	if e.kie != nil {
		e.kie.srv.Close()
	}
	if e.container != nil {
		_ = testcontainers.TerminateContainer(e.container)
	}
	if e.mediaDir != "" {
		_ = os.RemoveAll(e.mediaDir)
	}
}

func setEnv(values map[string]string) {
	for key, value := range values {
		_ = os.Setenv(key, value)
	}
}

// resetDatabase drops per-test state but keeps the migrated catalog and the
// seeded user.
func resetDatabase(t *testing.T, conn *gorm.DB) {
	t.Helper()
	require.NoError(t, conn.Exec(`TRUNCATE TABLE generation_jobs, credit_transactions`).Error)
	require.NoError(t, conn.Exec(`UPDATE users SET credits = ? WHERE id = ?`, seedCredits, seedUserID).Error)
	env.kie.reset()
}

func countRows(t *testing.T, conn *gorm.DB, query string, args ...any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Raw(query, args...).Scan(&count).Error)
	return count
}

func doJSON(t *testing.T, method, url string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, respBody
}

// kieStub answers the Kie task API. Tasks stay in "generating" until a test
// sets their record.
type kieStub struct {
	srv *httptest.Server

	mu          sync.Mutex
	seq         int
	submissions []map[string]string
	records     map[string]map[string]any
	failSubmit  bool
}

func newKieStub() *kieStub {
	k := &kieStub{records: map[string]map[string]any{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs/createTask", k.createTask)
	mux.HandleFunc("/api/v1/jobs/recordInfo", k.recordInfo)
	k.srv = httptest.NewServer(mux)
	return k
}

func (k *kieStub) createTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model       string `json:"model"`
		CallBackURL string `json:"callBackUrl"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.failSubmit {
		k.failSubmit = false
		writeJSON(w, map[string]any{"code": 422, "msg": "prompt rejected"})
		return
	}
	k.seq++
	taskID := fmt.Sprintf("task-%d", k.seq)
	k.submissions = append(k.submissions, map[string]string{
		"model":       req.Model,
		"callBackUrl": req.CallBackURL,
	})
	writeJSON(w, map[string]any{"code": 200, "msg": "success", "data": map[string]any{"taskId": taskID}})
}

func (k *kieStub) recordInfo(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")

	k.mu.Lock()
	record, ok := k.records[taskID]
	k.mu.Unlock()
	if !ok {
		record = map[string]any{"taskId": taskID, "state": "generating"}
	}
	writeJSON(w, map[string]any{"code": 200, "msg": "success", "data": record})
}

func (k *kieStub) setRecord(taskID string, record map[string]any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.records[taskID] = record
}

func (k *kieStub) failNextSubmit() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.failSubmit = true
}

func (k *kieStub) lastSubmission() map[string]string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.submissions) == 0 {
		return nil
	}
	return k.submissions[len(k.submissions)-1]
}

func (k *kieStub) reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.submissions = nil
	k.records = map[string]map[string]any{}
	k.failSubmit = false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
