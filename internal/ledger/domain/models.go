package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransactionType string

const (
	TransactionTypeReserve TransactionType = "reserve"
	TransactionTypeRefund  TransactionType = "refund"
	TransactionTypeGrant   TransactionType = "grant"
)

// CreditTransaction is an append-only balance movement. Reservations carry a
// negative amount; refunds and grants a positive one.
type CreditTransaction struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID        int64           `gorm:"not null;index" json:"user_id"`
	Type          TransactionType `gorm:"not null" json:"type"`
	Amount        int64           `gorm:"not null" json:"amount"`
	Reason        string          `gorm:"not null" json:"reason"`
	RelatedJobID  *snowflake.ID   `json:"related_job_id,omitempty"`
	BalanceBefore int64           `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64           `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }
