package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/genstudio/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer loads policies stored in casbin_rule, adds the built-in role
// permissions and binds each configured operator to exactly one role.
func NewEnforcer(db *gorm.DB, cfg config.Config) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}

	userIDs := make([]int64, 0, len(cfg.Operators))
	for userID := range cfg.Operators {
		userIDs = append(userIDs, userID)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	for _, userID := range userIDs {
		if err := ensureGrouping(enforcer, subject(userID), roleName(cfg.Operators[userID])); err != nil {
			return nil, err
		}
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID int64, object string, action string) error {
	if userID <= 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(userID), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.Int64("user_id", userID),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	if shouldLogGrant(action) {
		s.log.Info("authorization granted",
			zap.Int64("user_id", userID),
			zap.String("object", object),
			zap.String("action", action),
		)
	}
	return nil
}

func subject(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

func roleName(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}

// ensureGrouping replaces any other role the subject holds with roleName.
func ensureGrouping(enforcer *casbin.SyncedEnforcer, subject string, roleName string) error {
	existing, err := enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		if _, err := enforcer.RemoveGroupingPolicy(params...); err != nil {
			return err
		}
	}

	has, err := enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

// Actions that change balances or the catalog are logged when allowed.
func shouldLogGrant(action string) bool {
	switch action {
	case ActionCreditsGrant, ActionModelUpdate:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{roleName(RoleSupport), ObjectCredits, ActionCreditsReconcile},

		{roleName(RoleAdmin), ObjectCredits, ActionCreditsReconcile},
		{roleName(RoleAdmin), ObjectCredits, ActionCreditsGrant},
		{roleName(RoleAdmin), ObjectModel, ActionModelUpdate},
	}

	for _, policy := range policies {
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
