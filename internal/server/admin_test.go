package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	"github.com/smallbiznis/genstudio/internal/authorization"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"github.com/smallbiznis/genstudio/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthz struct {
	mock.Mock
}

func (m *mockAuthz) Authorize(ctx context.Context, userID int64, object string, action string) error {
	args := m.Called(userID, object, action)
	return args.Error(0)
}

type adminLedger struct {
	fakeLedgerService
	grantReq ledgerdomain.GrantRequest
}

func (f *adminLedger) Grant(_ context.Context, req ledgerdomain.GrantRequest) (*ledgerdomain.CreditTransaction, error) {
	f.grantReq = req
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	return &ledgerdomain.CreditTransaction{UserID: req.UserID, Type: ledgerdomain.TransactionTypeGrant, Amount: req.Amount, Reason: req.Reason}, nil
}

func (f *adminLedger) Reconcile(_ context.Context, userID int64) (ledgerdomain.ReconcileResult, error) {
	return ledgerdomain.ReconcileResult{UserID: userID, Balance: 40, Expected: 40, Consistent: true}, nil
}

type adminModels struct {
	fakeAIModelService
	updateReq aimodeldomain.UpdateRequest
}

func (f *adminModels) Update(_ context.Context, req aimodeldomain.UpdateRequest) (*aimodeldomain.AIModel, error) {
	f.updateReq = req
	if req.ModelKey != "veo3" {
		return nil, aimodeldomain.ErrModelNotFound
	}
	return &aimodeldomain.AIModel{ModelKey: req.ModelKey}, nil
}

func newAdminTestServer(t *testing.T) (*testServer, *mockAuthz, *adminLedger, *adminModels) {
	t.Helper()
	authz := &mockAuthz{}
	ledger := &adminLedger{fakeLedgerService: fakeLedgerService{balance: 100}}
	models := &adminModels{}

	gin.SetMode(gin.TestMode)
	ts := &testServer{
		engine:     NewEngine(observability.Config{LogLevel: "info"}, nil),
		generation: &fakeGenerationService{},
		ledger:     &ledger.fakeLedgerService,
		aimodel:    &models.fakeAIModelService,
	}
	srv := NewServer(ServerParams{
		Gin:           ts.engine,
		GenerationSvc: ts.generation,
		LedgerSvc:     ledger,
		AIModelSvc:    models,
		Authz:         authz,
	})
	srv.RegisterRoutes()
	return ts, authz, ledger, models
}

func TestAdminGrantCredits(t *testing.T) {
	ts, authz, ledger, _ := newAdminTestServer(t)
	authz.On("Authorize", int64(1), authorization.ObjectCredits, authorization.ActionCreditsGrant).Return(nil).Once()

	rec := ts.do(http.MethodPost, "/v1/admin/users/7/credits", map[string]any{"amount": 50}, "1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, ledgerdomain.GrantRequest{UserID: 7, Amount: 50, Reason: "admin_grant"}, ledger.grantReq)
	authz.AssertExpectations(t)
}

func TestAdminGrantCreditsForbidden(t *testing.T) {
	ts, authz, ledger, _ := newAdminTestServer(t)
	authz.On("Authorize", int64(2), authorization.ObjectCredits, authorization.ActionCreditsGrant).
		Return(authorization.ErrForbidden).Once()

	rec := ts.do(http.MethodPost, "/v1/admin/users/7/credits", map[string]any{"amount": 50}, "2")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
	assert.Zero(t, ledger.grantReq.UserID)
	authz.AssertExpectations(t)
}

func TestAdminGrantCreditsValidation(t *testing.T) {
	ts, authz, _, _ := newAdminTestServer(t)
	authz.On("Authorize", int64(1), mock.Anything, mock.Anything).Return(nil)

	rec := ts.do(http.MethodPost, "/v1/admin/users/abc/credits", map[string]any{"amount": 50}, "1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/admin/users/7/credits", map[string]any{"amount": 0}, "1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_amount", payload.Errors[0].Code)
}

func TestAdminReconcile(t *testing.T) {
	ts, authz, _, _ := newAdminTestServer(t)
	authz.On("Authorize", int64(2), authorization.ObjectCredits, authorization.ActionCreditsReconcile).Return(nil).Once()

	rec := ts.do(http.MethodGet, "/v1/admin/users/9/reconcile", nil, "2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"user_id":9,"balance":40,"expected":40,"transaction_count":0,"consistent":true}}`, rec.Body.String())
}

func TestAdminUpdateModel(t *testing.T) {
	ts, authz, _, models := newAdminTestServer(t)
	authz.On("Authorize", int64(1), authorization.ObjectModel, authorization.ActionModelUpdate).Return(nil)

	rec := ts.do(http.MethodPatch, "/v1/admin/models/veo3", map[string]any{"is_maintenance_mode": true}, "1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, models.updateReq.IsMaintenanceMode)
	assert.True(t, *models.updateReq.IsMaintenanceMode)
	assert.Nil(t, models.updateReq.IsActive)

	rec = ts.do(http.MethodPatch, "/v1/admin/models/missing", map[string]any{"is_active": false}, "1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutesAbsentWithoutAuthorizer(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/v1/admin/users/7/credits", map[string]any{"amount": 50}, "1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
