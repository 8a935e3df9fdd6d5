package pdf

import (
	"context"
	"time"
)

// Renderer turns a user's credit history into a printable document.
type Renderer interface {
	RenderStatement(ctx context.Context, data StatementData) ([]byte, error)
}

type StatementData struct {
	UserID      int64
	Balance     int64
	GeneratedAt time.Time
	// Truncated is set when the history was cut at the row limit.
	Truncated bool
	Lines     []StatementLine
}

type StatementLine struct {
	Date         time.Time
	Type         string
	Reason       string
	JobID        string
	Amount       int64
	BalanceAfter int64
}
