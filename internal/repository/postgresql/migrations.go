package postgresql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema bootstrap. Statements are idempotent so Migrate can run on every
// process start.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS analysis_jobs (
		id                      UUID PRIMARY KEY,
		project_id              UUID NOT NULL,
		user_id                 UUID NOT NULL,
		job_type                TEXT NOT NULL,
		status                  TEXT NOT NULL DEFAULT 'pending',
		input_data              JSONB NOT NULL DEFAULT '{}',
		result_data             JSONB,
		progress_percent        INT NOT NULL DEFAULT 0,
		current_step            TEXT NOT NULL DEFAULT '',
		steps_completed         INT NOT NULL DEFAULT 0,
		total_steps             INT NOT NULL DEFAULT 0,
		retry_count             INT NOT NULL DEFAULT 0,
		max_retries             INT NOT NULL DEFAULT 0,
		error_code              TEXT,
		error_message           TEXT,
		error_details           JSONB,
		ai_requests             INT NOT NULL DEFAULT 0,
		ai_input_tokens         BIGINT NOT NULL DEFAULT 0,
		ai_output_tokens        BIGINT NOT NULL DEFAULT 0,
		ai_cost_cents           BIGINT NOT NULL DEFAULT 0,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at              TIMESTAMPTZ,
		completed_at            TIMESTAMPTZ,
		failed_at               TIMESTAMPTZ,
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		estimated_completion_at TIMESTAMPTZ
	)`,

	// Claim scans pending rows in FIFO order; keep that path indexed.
	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_pending
		ON analysis_jobs (created_at, id) WHERE status = 'pending'`,

	`CREATE INDEX IF NOT EXISTS idx_analysis_jobs_project
		ON analysis_jobs (project_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS invoice_line_items (
		id             UUID PRIMARY KEY,
		project_id     UUID NOT NULL,
		source_file    TEXT NOT NULL DEFAULT '',
		vendor_name    TEXT NOT NULL DEFAULT '',
		invoice_number TEXT NOT NULL DEFAULT '',
		service_date   DATE NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		category       TEXT NOT NULL DEFAULT 'base',
		amount_cents   BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_invoice_line_items_project
		ON invoice_line_items (project_id, service_date)`,

	`CREATE TABLE IF NOT EXISTS haul_events (
		id                  UUID PRIMARY KEY,
		project_id          UUID NOT NULL,
		occurred_on         DATE NOT NULL,
		tons                DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost_cents          BIGINT NOT NULL DEFAULT 0,
		days_since_previous INT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (project_id, occurred_on)
	)`,
}

// Migrate applies the schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration %d: %w", i+1, err)
		}
	}
	return nil
}
