package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/pkg/media"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, provider, externalJobID string) (*Job, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Job, error)
	CountActiveByUser(ctx context.Context, db *gorm.DB, userID int64) (int64, error)
	// MarkProcessing moves a pending job to processing. It reports false when
	// the job was no longer pending.
	MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, externalJobID string, now time.Time) (bool, error)
	// MarkTerminal moves a non-terminal job to a terminal status. It reports
	// false when another writer finalized the job first.
	MarkTerminal(ctx context.Context, db *gorm.DB, update TerminalUpdate) (bool, error)
	LockProcessing(ctx context.Context, db *gorm.DB, updatedBefore time.Time, limit int) ([]*Job, error)
	TouchPolled(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) error
	RecordPollError(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int, error)
	ResetPollErrors(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindStale(ctx context.Context, db *gorm.DB, filter StaleFilter) ([]*Job, error)
}

type ListFilter struct {
	UserID          int64
	Kind            media.Kind
	Status          Status
	ModelKey        string
	CursorCreatedAt *time.Time
	CursorID        int64
	Limit           int
}

type TerminalUpdate struct {
	ID            snowflake.ID
	Status        Status
	ExternalJobID string
	ResultURL     string
	ErrorMessage  string
	ErrorCode     string
	Now           time.Time
}

// StaleFilter selects jobs whose staleness clock started before Before. The
// clock is dispatched_at for processing jobs and created_at for pending ones.
type StaleFilter struct {
	Status Status
	Kind   media.Kind
	Before time.Time
	Limit  int
}
