package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Debit subtracts amount only when the balance covers it.
	Debit(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (bool, error)
	Credit(ctx context.Context, db *gorm.DB, userID, amount int64, now time.Time) (bool, error)
	Balance(ctx context.Context, db *gorm.DB, userID int64) (int64, bool, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *CreditTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, filter TransactionFilter) ([]*CreditTransaction, error)
	SumTransactions(ctx context.Context, db *gorm.DB, userID int64) (TransactionTotals, error)
}

type TransactionFilter struct {
	UserID          int64
	Type            TransactionType
	CursorCreatedAt *time.Time
	CursorID        int64
	Limit           int
}

type TransactionTotals struct {
	Count         int64
	Sum           int64
	FirstBefore   int64
	HasFirstEntry bool
}
