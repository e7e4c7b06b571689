package migration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RunRunning   = "RUNNING"
	RunCompleted = "COMPLETED"
	RunFailed    = "FAILED"
)

// Per-record statuses written to the journal.
const (
	RecordUnchanged    = "unchanged"
	RecordDryRun       = "dry_run"
	RecordSaved        = "saved"
	RecordSaveFailed   = "save_failed"
	RecordRuleError    = "rule_error"
	RecordDeleted      = "deleted"
	RecordDeleteFailed = "delete_failed"
)

// Run is one pass of a rule set over a repository.
type Run struct {
	ID         string
	Variant    string
	RepoCode   string
	RepoURI    string
	Commit     bool
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Report     Report
	Error      string
}

// RecordEntry is one journal line: what happened to a record or to a ref
// deleted on its behalf.
type RecordEntry struct {
	URI    string
	Ref    string
	Status string
	Rules  []string
	Detail string
}

// Journal keeps an audit trail of runs. Journal errors are logged by the
// caller and never stop a run.
type Journal interface {
	StartRun(ctx context.Context, run *Run) (string, error)
	FinishRun(ctx context.Context, run *Run) error
	RecordEntry(ctx context.Context, runID string, entry RecordEntry) error
}

// LogJournal writes the journal to the logger only. It is used when no
// database is configured.
type LogJournal struct {
	log *zap.Logger
}

func NewLogJournal(logger *zap.Logger) *LogJournal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogJournal{log: logger}
}

func (j *LogJournal) StartRun(_ context.Context, run *Run) (string, error) {
	id := uuid.NewString()
	j.log.Debug("run started",
		zap.String("run_id", id),
		zap.String("variant", run.Variant),
		zap.String("repo", run.RepoCode),
		zap.Bool("commit", run.Commit))
	return id, nil
}

func (j *LogJournal) FinishRun(_ context.Context, run *Run) error {
	j.log.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("status", run.Status),
		zap.Int("processed", run.Report.Processed),
		zap.Int("changed", run.Report.Changed),
		zap.Int("saved", run.Report.Saved),
		zap.Int("save_failures", run.Report.SaveFailures),
		zap.Int("deleted", run.Report.Deleted),
		zap.Int("delete_failures", run.Report.DeleteFailures),
		zap.Int("rule_errors", run.Report.RuleErrors),
		zap.String("error", run.Error))
	return nil
}

func (j *LogJournal) RecordEntry(_ context.Context, runID string, entry RecordEntry) error {
	j.log.Debug("journal",
		zap.String("run_id", runID),
		zap.String("uri", entry.URI),
		zap.String("ref", entry.Ref),
		zap.String("status", entry.Status),
		zap.Strings("rules", entry.Rules),
		zap.String("detail", entry.Detail))
	return nil
}
