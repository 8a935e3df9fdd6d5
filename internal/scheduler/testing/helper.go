// Package testing ages generation jobs so poller behavior can be exercised
// without waiting out real staleness windows.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	generationdomain "github.com/smallbiznis/genstudio/internal/generation/domain"
	"gorm.io/gorm"
)

type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// AgeJob shifts every timestamp of a non-terminal job back by d.
func (ta *TimeAccelerator) AgeJob(ctx context.Context, jobID snowflake.ID, d time.Duration) error {
	var job generationdomain.Job
	if err := ta.db.WithContext(ctx).Where("id = ?", jobID).Take(&job).Error; err != nil {
		return err
	}
	updates := map[string]any{
		"created_at": job.CreatedAt.Add(-d),
		"updated_at": job.UpdatedAt.Add(-d),
	}
	if job.DispatchedAt != nil {
		updates["dispatched_at"] = job.DispatchedAt.Add(-d)
	}
	if job.LastPolledAt != nil {
		updates["last_polled_at"] = job.LastPolledAt.Add(-d)
	}
	return ta.db.WithContext(ctx).
		Model(&generationdomain.Job{}).
		Where("id = ? AND status IN ?", jobID, []generationdomain.Status{
			generationdomain.StatusPending,
			generationdomain.StatusProcessing,
		}).
		Updates(updates).Error
}

// AgeAllActive shifts every pending or processing job back by d.
func (ta *TimeAccelerator) AgeAllActive(ctx context.Context, d time.Duration) (int64, error) {
	var ids []snowflake.ID
	if err := ta.db.WithContext(ctx).
		Model(&generationdomain.Job{}).
		Where("status IN ?", []generationdomain.Status{
			generationdomain.StatusPending,
			generationdomain.StatusProcessing,
		}).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := ta.AgeJob(ctx, id, d); err != nil {
			return 0, err
		}
	}
	return int64(len(ids)), nil
}
