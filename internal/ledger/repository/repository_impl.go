package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/genstudio/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Debit(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET credits = credits - ?, updated_at = ?
		 WHERE id = ? AND credits >= ?`,
		amount,
		now,
		userID,
		amount,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET credits = credits + ?, updated_at = ? WHERE id = ?`,
		amount,
		now,
		userID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) Balance(ctx context.Context, db *gorm.DB, userID int64) (int64, bool, error) {
	var rows []struct {
		Credits int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT credits FROM users WHERE id = ?`,
		userID,
	).Scan(&rows).Error
	if err != nil {
		return 0, false, err
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	return rows[0].Credits, true, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.CreditTransaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (
			id, user_id, type, amount, reason, related_job_id,
			balance_before, balance_after, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		txn.Type,
		txn.Amount,
		txn.Reason,
		txn.RelatedJobID,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.CreatedAt,
	).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, filter domain.TransactionFilter) ([]*domain.CreditTransaction, error) {
	var items []*domain.CreditTransaction
	stmt := db.WithContext(ctx).
		Model(&domain.CreditTransaction{}).
		Where("user_id = ?", filter.UserID)
	if filter.Type != "" {
		stmt = stmt.Where("type = ?", filter.Type)
	}
	if filter.CursorCreatedAt != nil {
		stmt = stmt.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			*filter.CursorCreatedAt,
			*filter.CursorCreatedAt,
			filter.CursorID,
		)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("created_at desc, id desc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumTransactions(ctx context.Context, db *gorm.DB, userID int64) (domain.TransactionTotals, error) {
	var totals struct {
		Count int64
		Sum   int64
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS count, COALESCE(SUM(amount), 0) AS sum
		 FROM credit_transactions WHERE user_id = ?`,
		userID,
	).Scan(&totals).Error; err != nil {
		return domain.TransactionTotals{}, err
	}

	out := domain.TransactionTotals{Count: totals.Count, Sum: totals.Sum}
	if totals.Count == 0 {
		return out, nil
	}

	var first []struct {
		BalanceBefore int64
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT balance_before FROM credit_transactions
		 WHERE user_id = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT 1`,
		userID,
	).Scan(&first).Error; err != nil {
		return domain.TransactionTotals{}, err
	}
	if len(first) > 0 {
		out.FirstBefore = first[0].BalanceBefore
		out.HasFirstEntry = true
	}
	return out, nil
}
