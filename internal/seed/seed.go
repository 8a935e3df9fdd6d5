// Package seed fills a fresh database with the rows a local install needs.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	aimodeldomain "github.com/smallbiznis/genstudio/internal/aimodel/domain"
	ledgerdomain "github.com/smallbiznis/genstudio/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const seedGrantReason = "seed"

type user struct {
	ID        int64
	Credits   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (user) TableName() string { return "users" }

// EnsureCatalog registers every default model whose key is not stored yet.
// Existing rows keep their operator edits.
func EnsureCatalog(ctx context.Context, models aimodeldomain.Service) (int, error) {
	if models == nil {
		return 0, errors.New("seed model service is required")
	}

	added := 0
	for _, model := range aimodeldomain.DefaultCatalog() {
		inserted, err := models.Register(ctx, model)
		if err != nil {
			return added, fmt.Errorf("seed model %s: %w", model.ModelKey, err)
		}
		if inserted {
			added++
		}
	}
	return added, nil
}

// EnsureUser creates userID when missing and grants credits once, while the
// balance is still zero.
func EnsureUser(ctx context.Context, db *gorm.DB, ledger ledgerdomain.Service, userID, credits int64) error {
	if db == nil || ledger == nil {
		return errors.New("seed database handle is required")
	}
	if userID <= 0 {
		return ledgerdomain.ErrInvalidUser
	}

	now := time.Now().UTC()
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&user{ID: userID, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		return err
	}
	if credits <= 0 {
		return nil
	}

	balance, err := ledger.GetBalance(ctx, userID)
	if err != nil {
		return err
	}
	if balance > 0 {
		return nil
	}
	_, err = ledger.Grant(ctx, ledgerdomain.GrantRequest{
		UserID: userID,
		Amount: credits,
		Reason: seedGrantReason,
	})
	return err
}
