package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, operators map[int64]string) (Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	enforcer, err := NewEnforcer(db, config.Config{Operators: operators})
	require.NoError(t, err)
	svc := NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
	return svc, db
}

func TestAuthorizeByRole(t *testing.T) {
	svc, _ := newTestService(t, map[int64]string{1: RoleAdmin, 2: RoleSupport})
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, 1, ObjectCredits, ActionCreditsGrant))
	assert.NoError(t, svc.Authorize(ctx, 1, ObjectModel, ActionModelUpdate))
	assert.NoError(t, svc.Authorize(ctx, 2, ObjectCredits, ActionCreditsReconcile))

	assert.ErrorIs(t, svc.Authorize(ctx, 2, ObjectCredits, ActionCreditsGrant), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, 3, ObjectCredits, ActionCreditsReconcile), ErrForbidden)
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, 0, ObjectCredits, ActionCreditsGrant), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, 1, " ", ActionCreditsGrant), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, 1, ObjectCredits, ""), ErrInvalidAction)
}

func TestNewEnforcerReplacesStaleRole(t *testing.T) {
	_, db := newTestService(t, map[int64]string{5: RoleAdmin})

	// Restarting with a demoted operator keeps a single role in casbin_rule.
	enforcer, err := NewEnforcer(db, config.Config{Operators: map[int64]string{5: RoleSupport}})
	require.NoError(t, err)

	roles, err := enforcer.GetRolesForUser("user:5")
	require.NoError(t, err)
	assert.Equal(t, []string{"role:support"}, roles)

	svc := NewService(Params{Log: zaptest.NewLogger(t), Enforcer: enforcer})
	assert.ErrorIs(t, svc.Authorize(context.Background(), 5, ObjectCredits, ActionCreditsGrant), ErrForbidden)
}

func TestSeedPoliciesIsIdempotent(t *testing.T) {
	_, db := newTestService(t, nil)
	_, err := NewEnforcer(db, config.Config{})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM casbin_rule WHERE ptype = 'p'`).Scan(&count).Error)
	assert.Equal(t, int64(4), count)
}
