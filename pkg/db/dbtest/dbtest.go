// Package dbtest opens in-memory SQLite databases carrying the genstudio schema.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE credit_transactions (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		type TEXT NOT NULL,
		amount INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		related_job_id INTEGER,
		balance_before INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX idx_credit_transactions_user ON credit_transactions (user_id, created_at)`,
	`CREATE TABLE ai_models (
		id INTEGER PRIMARY KEY,
		model_key TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_model TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		is_maintenance_mode BOOLEAN NOT NULL DEFAULT 0,
		credit_cost_override INTEGER,
		max_duration_seconds INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE generation_jobs (
		id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		model_key TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_model TEXT NOT NULL,
		parameters TEXT NOT NULL DEFAULT '{}',
		credits_cost INTEGER NOT NULL,
		reservation_id INTEGER,
		external_job_id TEXT,
		status TEXT NOT NULL,
		result_url TEXT,
		error_message TEXT,
		error_code TEXT,
		poll_error_count INTEGER NOT NULL DEFAULT 0,
		last_polled_at DATETIME,
		dispatched_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	)`,
	`CREATE INDEX idx_generation_jobs_status ON generation_jobs (status, updated_at)`,
	`CREATE INDEX idx_generation_jobs_user ON generation_jobs (user_id, created_at)`,
	`CREATE INDEX idx_generation_jobs_external ON generation_jobs (provider, external_job_id)`,
}

// Open returns an isolated in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:genstudio_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}

	// SQLite has no row locks; drop the locking clauses before execution.
	db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate)
	db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create schema: %v", err)
		}
	}
	return db
}

// SeedUser inserts a user row holding credits.
func SeedUser(t testing.TB, db *gorm.DB, userID int64, credits int64) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO users (id, credits, created_at, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		userID, credits,
	).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
}

// Credits reads the stored balance of userID.
func Credits(t testing.TB, db *gorm.DB, userID int64) int64 {
	t.Helper()
	var credits int64
	if err := db.Raw(`SELECT credits FROM users WHERE id = ?`, userID).Scan(&credits).Error; err != nil {
		t.Fatalf("failed to read credits: %v", err)
	}
	return credits
}

func stripForUpdate(d *gorm.DB) {
	sql := d.Statement.SQL.String()
	if !strings.Contains(sql, "FOR UPDATE") {
		return
	}
	newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
	newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
	d.Statement.SQL.Reset()
	d.Statement.SQL.WriteString(newSQL)
}
