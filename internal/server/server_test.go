package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"github.com/smallbiznis/genstudio/internal/config"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"github.com/smallbiznis/genstudio/internal/observability"
	providerdomain "github.com/smallbiznis/genstudio/internal/provider/domain"
	"github.com/smallbiznis/genstudio/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerationService struct {
	generationdomain.Service

	submitErr   error
	submitReq   generationdomain.SubmitRequest
	getErr      error
	getReq      generationdomain.GetRequest
	listReq     generationdomain.ListRequest
	callbackErr error
	callbackReq generationdomain.CallbackRequest
}

func (f *fakeGenerationService) Submit(_ context.Context, req generationdomain.SubmitRequest) (*generationdomain.SubmitResponse, error) {
	f.submitReq = req
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &generationdomain.SubmitResponse{
		Job: generationdomain.Job{
			ID:          snowflake.ID(42),
			UserID:      req.UserID,
			Kind:        media.Kind(req.Kind),
			ModelKey:    req.ModelKey,
			CreditsCost: 12,
			Status:      generationdomain.StatusPending,
		},
		BalanceAfter: 88,
	}, nil
}

func (f *fakeGenerationService) Get(_ context.Context, req generationdomain.GetRequest) (*generationdomain.Job, error) {
	f.getReq = req
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &generationdomain.Job{ID: req.JobID, UserID: req.UserID, Status: generationdomain.StatusProcessing}, nil
}

func (f *fakeGenerationService) List(_ context.Context, req generationdomain.ListRequest) (generationdomain.ListResponse, error) {
	f.listReq = req
	return generationdomain.ListResponse{}, nil
}

func (f *fakeGenerationService) Quote(_ context.Context, req generationdomain.QuoteRequest) (generationdomain.QuoteResponse, error) {
	return generationdomain.QuoteResponse{Kind: req.Kind, ModelKey: req.ModelKey, Credits: 250}, nil
}

func (f *fakeGenerationService) HandleCallback(_ context.Context, req generationdomain.CallbackRequest) (generationdomain.CallbackResult, error) {
	f.callbackReq = req
	if f.callbackErr != nil {
		return generationdomain.CallbackResult{}, f.callbackErr
	}
	return generationdomain.CallbackResult{JobID: snowflake.ID(42), Applied: true}, nil
}

type fakeLedgerService struct {
	ledgerdomain.Service
	balance  int64
	pages    []ledgerdomain.ListTransactionsResponse
	listReqs []ledgerdomain.ListTransactionsRequest
}

func (f *fakeLedgerService) ListTransactions(_ context.Context, req ledgerdomain.ListTransactionsRequest) (ledgerdomain.ListTransactionsResponse, error) {
	f.listReqs = append(f.listReqs, req)
	if len(f.pages) == 0 {
		return ledgerdomain.ListTransactionsResponse{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeLedgerService) GetBalance(_ context.Context, userID int64) (int64, error) {
	if userID != 7 {
		return 0, ledgerdomain.ErrUserNotFound
	}
	return f.balance, nil
}

type fakeAIModelService struct {
	aimodeldomain.Service
	listReq aimodeldomain.ListRequest
}

func (f *fakeAIModelService) List(_ context.Context, req aimodeldomain.ListRequest) ([]aimodeldomain.AIModel, error) {
	f.listReq = req
	return []aimodeldomain.AIModel{{ModelKey: "flux-2-pro", Kind: media.KindImage, IsActive: true}}, nil
}

type testServer struct {
	engine     *gin.Engine
	generation *fakeGenerationService
	ledger     *fakeLedgerService
	aimodel    *fakeAIModelService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		generation: &fakeGenerationService{},
		ledger:     &fakeLedgerService{balance: 100},
		aimodel:    &fakeAIModelService{},
	}
	ts.engine = NewEngine(observability.Config{LogLevel: "info"}, nil)
	srv := NewServer(ServerParams{
		Gin:           ts.engine,
		Cfg:           config.Config{},
		GenerationSvc: ts.generation,
		LedgerSvc:     ts.ledger,
		AIModelSvc:    ts.aimodel,
	})
	srv.RegisterRoutes()
	return ts
}

func (ts *testServer) do(method, path string, body any, userID string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestUserRequired(t *testing.T) {
	ts := newTestServer(t)

	for _, userID := range []string{"", "abc", "-3", "0"} {
		rec := ts.do(http.MethodGet, "/v1/generations", nil, userID)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "user id %q", userID)
		assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
	}
}

func TestSubmitGeneration(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/generations", map[string]any{
		"kind":       " image ",
		"model_key":  "flux-2-pro",
		"parameters": map[string]any{"prompt": "a red fox"},
	}, "7")

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, int64(7), ts.generation.submitReq.UserID)
	assert.Equal(t, "image", ts.generation.submitReq.Kind)
	assert.Equal(t, "a red fox", ts.generation.submitReq.Parameters["prompt"])

	var resp struct {
		Data generationdomain.SubmitResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(88), resp.Data.BalanceAfter)
	assert.Equal(t, generationdomain.StatusPending, resp.Data.Job.Status)
}

func TestSubmitGenerationMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/generations", bytes.NewBufferString("{not json"))
	req.Header.Set(HeaderUserID, "7")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_request", payload.Errors[0].Code)
}

func TestSubmitGenerationErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"insufficient credits", ledgerdomain.ErrInsufficientCredits, http.StatusPaymentRequired, "insufficient_credits"},
		{"model unavailable", aimodeldomain.ErrModelUnavailable, http.StatusUnprocessableEntity, "model_unavailable"},
		{"unknown model", aimodeldomain.ErrModelNotFound, http.StatusNotFound, "not_found"},
		{"too many active", generationdomain.ErrTooManyActiveJobs, http.StatusTooManyRequests, "too_many_active_jobs"},
		{"invalid parameters", fmt.Errorf("%w: prompt is required", generationdomain.ErrInvalidParameters), http.StatusBadRequest, "validation_error"},
		{"dispatch failed", fmt.Errorf("%w: %w", generationdomain.ErrDispatchFailed, providerdomain.Permanent("kie", 400, "422", "prompt violates policy")), http.StatusBadGateway, "dispatch_failed"},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.generation.submitErr = tc.err

			rec := ts.do(http.MethodPost, "/v1/generations", map[string]any{"kind": "image", "model_key": "flux-2-pro"}, "7")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.typ, decodeError(t, rec).Type)
		})
	}
}

func TestValidationErrorKeepsDetail(t *testing.T) {
	status, payload := mapError(fmt.Errorf("%w: prompt is required", generationdomain.ErrInvalidParameters))

	assert.Equal(t, http.StatusBadRequest, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_parameters", payload.Errors[0].Code)
	assert.Equal(t, "parameters", payload.Errors[0].Field)
	assert.Equal(t, "prompt is required", payload.Errors[0].Message)
}

func TestDispatchFailureMessage(t *testing.T) {
	err := fmt.Errorf("%w: %w", generationdomain.ErrDispatchFailed, providerdomain.Permanent("kie", 400, "422", "prompt violates policy"))
	status, payload := mapError(err)

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "provider rejected the generation: prompt violates policy", payload.Message)

	typ, class := classifyErrorForLog(err)
	assert.Equal(t, "dispatch_failed", typ)
	assert.Equal(t, "upstream", class)
}

func TestGetGeneration(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/generations/1234", nil, "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snowflake.ID(1234), ts.generation.getReq.JobID)
	assert.Equal(t, int64(7), ts.generation.getReq.UserID)

	rec = ts.do(http.MethodGet, "/v1/generations/not-an-id", nil, "7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.generation.getErr = generationdomain.ErrNotFound
	rec = ts.do(http.MethodGet, "/v1/generations/1234", nil, "7")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "generation not found", decodeError(t, rec).Message)
}

func TestListGenerations(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/generations?status=processing&kind=video&page_size=5&page_token=abc", nil, "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "processing", ts.generation.listReq.Status)
	assert.Equal(t, "video", ts.generation.listReq.Kind)
	assert.Equal(t, 5, ts.generation.listReq.PageSize)
	assert.Equal(t, "abc", ts.generation.listReq.PageToken)

	rec = ts.do(http.MethodGet, "/v1/generations?page_size=1000", nil, "7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuoteGeneration(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/generations/quote", map[string]any{
		"kind":       "video",
		"model_key":  "veo3",
		"parameters": map[string]any{"quality": "quality"},
	}, "7")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data generationdomain.QuoteResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(250), resp.Data.Credits)
}

func TestCreditBalance(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/credits/balance", nil, "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"user_id":7,"credits":100}}`, rec.Body.String())

	rec = ts.do(http.MethodGet, "/v1/credits/balance", nil, "8")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListModelsDefaultsToActive(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/models?kind=image", nil, "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.aimodel.listReq.ActiveOnly)
	assert.Equal(t, "image", ts.aimodel.listReq.Kind)

	rec = ts.do(http.MethodGet, "/v1/models?active_only=false", nil, "7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, ts.aimodel.listReq.ActiveOnly)

	rec = ts.do(http.MethodGet, "/v1/models?active_only=maybe", nil, "7")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProviderCallback(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/callbacks/KIE?token=s3cret", bytes.NewBufferString(`{"code":200}`))
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "kie", ts.generation.callbackReq.Provider)
	assert.Equal(t, "s3cret", ts.generation.callbackReq.Token)
	assert.JSONEq(t, `{"code":200}`, string(ts.generation.callbackReq.Payload))
}

func TestProviderCallbackErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"bad token", generationdomain.ErrCallbackUnauthorized, http.StatusUnauthorized},
		{"unknown provider", providerdomain.ErrProviderNotFound, http.StatusNotFound},
		{"malformed payload", fmt.Errorf("%w: missing taskId", providerdomain.ErrInvalidPayload), http.StatusBadRequest},
		{"ignored event", providerdomain.ErrCallbackIgnored, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.generation.callbackErr = tc.err

			rec := ts.do(http.MethodPost, "/v1/callbacks/kie", map[string]any{}, "")
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(0.2))
	assert.Equal(t, 3, retryAfterSeconds(2.4))
}

func TestCreditStatementWalksPages(t *testing.T) {
	ts := newTestServer(t)
	jobID := snowflake.ID(42)
	first := ledgerdomain.ListTransactionsResponse{
		Transactions: []ledgerdomain.CreditTransaction{
			{Type: ledgerdomain.TransactionTypeReserve, Amount: -12, Reason: "generation", RelatedJobID: &jobID, BalanceAfter: 88},
		},
	}
	first.HasMore = true
	first.NextPageToken = "next"
	second := ledgerdomain.ListTransactionsResponse{
		Transactions: []ledgerdomain.CreditTransaction{
			{Type: ledgerdomain.TransactionTypeGrant, Amount: 100, Reason: "seed", BalanceAfter: 100},
		},
	}
	ts.ledger.pages = []ledgerdomain.ListTransactionsResponse{first, second}

	rec := ts.do(http.MethodGet, "/v1/credits/statement.pdf", nil, "7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "credit-statement-7.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	require.Len(t, ts.ledger.listReqs, 2)
	assert.Equal(t, "", ts.ledger.listReqs[0].PageToken)
	assert.Equal(t, "next", ts.ledger.listReqs[1].PageToken)
}

func TestCreditStatementUnknownUser(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/v1/credits/statement.pdf", nil, "8")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
