package migration

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal stores runs in migration_runs and per-record results in
// migration_run_records (see db/migrations).
type PostgresJournal struct {
	db *pgxpool.Pool
}

func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

func (r *PostgresJournal) StartRun(ctx context.Context, run *Run) (string, error) {
	const sql = `
		INSERT INTO migration_runs (variant, repo_code, commit_mode, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, sql, run.Variant, run.RepoCode, run.Commit, run.StartedAt, run.Status).Scan(&id)
	return id, err
}

func (r *PostgresJournal) FinishRun(ctx context.Context, run *Run) error {
	const sql = `
		UPDATE migration_runs SET
			repo_uri = $1,
			finished_at = $2,
			status = $3,
			processed = $4,
			changed = $5,
			saved = $6,
			save_failures = $7,
			deleted = $8,
			delete_failures = $9,
			rule_errors = $10,
			subjects_deleted = $11,
			error = $12
		WHERE id = $13`

	rep := run.Report
	_, err := r.db.Exec(ctx, sql, run.RepoURI, run.FinishedAt, run.Status,
		rep.Processed, rep.Changed, rep.Saved, rep.SaveFailures, rep.Deleted, rep.DeleteFailures,
		rep.RuleErrors, rep.Sweep.Deleted, run.Error, run.ID)
	return err
}

func (r *PostgresJournal) RecordEntry(ctx context.Context, runID string, entry RecordEntry) error {
	const sql = `
		INSERT INTO migration_run_records (run_id, uri, ref, status, rules, detail)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, sql, runID, entry.URI, entry.Ref, entry.Status, strings.Join(entry.Rules, "; "), entry.Detail)
	return err
}
