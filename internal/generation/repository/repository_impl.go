package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/genstudio/internal/generation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO generation_jobs (
			id, user_id, kind, model_key, provider, provider_model, parameters,
			credits_cost, reservation_id, status, poll_error_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		job.ID,
		job.UserID,
		job.Kind,
		job.ModelKey,
		job.Provider,
		job.ProviderModel,
		job.Parameters,
		job.CreditsCost,
		job.ReservationID,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	var jobs []*domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM generation_jobs WHERE id = ?`,
		id,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, provider, externalJobID string) (*domain.Job, error) {
	var jobs []*domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM generation_jobs
		 WHERE provider = ? AND external_job_id = ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		provider,
		externalJobID,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Job, error) {
	var items []*domain.Job
	stmt := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("user_id = ?", filter.UserID)
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.ModelKey != "" {
		stmt = stmt.Where("model_key = ?", filter.ModelKey)
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

func (r *repo) CountActiveByUser(ctx context.Context, db *gorm.DB, userID int64) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM generation_jobs WHERE user_id = ? AND status IN (?, ?)`,
		userID,
		domain.StatusPending,
		domain.StatusProcessing,
	).Scan(&count).Error
	return count, err
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, externalJobID string, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE generation_jobs
		 SET status = ?, external_job_id = ?, dispatched_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusProcessing,
		externalJobID,
		now,
		now,
		id,
		domain.StatusPending,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) MarkTerminal(ctx context.Context, db *gorm.DB, update domain.TerminalUpdate) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE generation_jobs
		 SET status = ?,
		     external_job_id = COALESCE(?, external_job_id),
		     result_url = ?,
		     error_message = ?,
		     error_code = ?,
		     completed_at = ?,
		     updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		update.Status,
		nullable(update.ExternalJobID),
		nullable(update.ResultURL),
		nullable(update.ErrorMessage),
		nullable(update.ErrorCode),
		update.Now,
		update.Now,
		update.ID,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) LockProcessing(ctx context.Context, db *gorm.DB, updatedBefore time.Time, limit int) ([]*domain.Job, error) {
	var jobs []*domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM generation_jobs
		 WHERE status = ? AND updated_at <= ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		domain.StatusProcessing,
		updatedBefore,
		limit,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) TouchPolled(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE generation_jobs SET last_polled_at = ?, updated_at = ? WHERE id IN ?`,
		now,
		now,
		ids,
	).Error
}

func (r *repo) RecordPollError(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (int, error) {
	if err := db.WithContext(ctx).Exec(
		`UPDATE generation_jobs
		 SET poll_error_count = poll_error_count + 1, updated_at = ?
		 WHERE id = ?`,
		now,
		id,
	).Error; err != nil {
		return 0, err
	}

	var rows []struct {
		PollErrorCount int
	}
	if err := db.WithContext(ctx).Raw(
		`SELECT poll_error_count FROM generation_jobs WHERE id = ?`,
		id,
	).Scan(&rows).Error; err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].PollErrorCount, nil
}

func (r *repo) ResetPollErrors(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE generation_jobs SET poll_error_count = 0 WHERE id = ?`,
		id,
	).Error
}

func (r *repo) FindStale(ctx context.Context, db *gorm.DB, filter domain.StaleFilter) ([]*domain.Job, error) {
	var jobs []*domain.Job
	stmt := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("status = ?", filter.Status).
		Where("COALESCE(dispatched_at, created_at) <= ?", filter.Before)
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("created_at asc, id asc").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
