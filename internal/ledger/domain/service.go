package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/pkg/db/pagination"
	"gorm.io/gorm"
)

type ReserveRequest struct {
	UserID       int64
	Amount       int64
	Reason       string
	RelatedJobID *snowflake.ID
}

type RefundRequest struct {
	UserID       int64
	Amount       int64
	Reason       string
	RelatedJobID *snowflake.ID
}

type GrantRequest struct {
	UserID int64
	Amount int64
	Reason string
}

type ListTransactionsRequest struct {
	UserID    int64
	Type      string
	PageToken string
	PageSize  int
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []CreditTransaction `json:"transactions"`
}

// ReconcileResult compares the stored balance with the transaction history.
// Expected is the balance before the first recorded movement plus every amount since.
type ReconcileResult struct {
	UserID           int64 `json:"user_id"`
	Balance          int64 `json:"balance"`
	Expected         int64 `json:"expected"`
	TransactionCount int64 `json:"transaction_count"`
	Consistent       bool  `json:"consistent"`
}

type Service interface {
	Reserve(ctx context.Context, req ReserveRequest) (*CreditTransaction, error)
	Refund(ctx context.Context, req RefundRequest) (*CreditTransaction, error)
	Grant(ctx context.Context, req GrantRequest) (*CreditTransaction, error)
	GetBalance(ctx context.Context, userID int64) (int64, error)
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (ListTransactionsResponse, error)
	Reconcile(ctx context.Context, userID int64) (ReconcileResult, error)
	// WithTx binds the ledger to an open transaction owned by the caller.
	WithTx(tx *gorm.DB) Service
}

var (
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidType         = errors.New("invalid_type")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
)
