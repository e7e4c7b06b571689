package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/accession"
	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/platform/archivesspace"

	"go.uber.org/zap"
)

const (
	PageModePaged = "paged"
	PageModeBulk  = "bulk"

	DefaultBatchSize = 50
)

// Backend is the part of the ArchivesSpace API the Runner drives.
type Backend interface {
	RepositoryURI(ctx context.Context, code string) (string, error)
	AccessionPage(ctx context.Context, repoURI string, page int) (*archivesspace.AccessionPage, error)
	AccessionIDs(ctx context.Context, repoURI string) ([]int, error)
	AccessionsByID(ctx context.Context, repoURI string, ids []int) ([]*accession.Accession, error)
	SaveAccession(ctx context.Context, acc *accession.Accession) error
	Delete(ctx context.Context, ref string) error
}

type RunnerConfig struct {
	// Commit enables saves and deletes. When false the run only logs what
	// it would do.
	Commit bool
	// PageMode is PageModePaged (page=n) or PageModeBulk (all_ids + id_set).
	PageMode  string
	BatchSize int
	// SweepDelay is waited out between the last page and the subject
	// sweep, giving the search index time to catch up.
	SweepDelay time.Duration
}

// Report summarises a run.
type Report struct {
	Processed      int
	Changed        int
	Saved          int
	SaveFailures   int
	Deleted        int
	DeleteFailures int
	RuleErrors     int
	// Unlinked holds subject ref -> title for every subject unlinked (or,
	// in a dry run, that would have been unlinked) during the run.
	Unlinked map[string]string
	Sweep    SweepReport
}

type Runner struct {
	backend Backend
	lookups Lookups
	sweeper *Sweeper
	journal Journal
	metrics *Metrics
	log     *zap.Logger
	cfg     RunnerConfig
}

func NewRunner(backend Backend, lookups Lookups, sweeper *Sweeper, journal Journal, metrics *Metrics, logger *zap.Logger, cfg RunnerConfig) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if journal == nil {
		journal = NewLogJournal(logger)
	}
	if cfg.PageMode == "" {
		cfg.PageMode = PageModePaged
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Runner{
		backend: backend,
		lookups: lookups,
		sweeper: sweeper,
		journal: journal,
		metrics: metrics,
		log:     logger,
		cfg:     cfg,
	}
}

// Run applies rs to every accession in the repository identified by
// repoCode. Per-record failures are logged and counted; only failing to
// find the repository, to prepare the rule set or to fetch a page aborts
// the run. The report is returned even when err is non-nil.
func (r *Runner) Run(ctx context.Context, repoCode string, rs RuleSet) (_ *Report, err error) {
	run := &Run{
		Variant:   rs.Variant,
		RepoCode:  repoCode,
		Commit:    r.cfg.Commit,
		StartedAt: time.Now(),
		Status:    RunRunning,
	}
	run.Report.Unlinked = make(map[string]string)

	r.log.Info("running fixes", zap.String("variant", rs.Variant), zap.String("repo", repoCode), zap.Bool("commit", r.cfg.Commit))

	runID, jErr := r.journal.StartRun(ctx, run)
	if jErr != nil {
		r.log.Warn("failed to start journal run", zap.Error(jErr))
	}
	run.ID = runID

	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		if err != nil {
			run.Status = RunFailed
			run.Error = err.Error()
		} else {
			run.Status = RunCompleted
		}
		if fErr := r.journal.FinishRun(context.WithoutCancel(ctx), run); fErr != nil {
			r.log.Warn("failed to finish journal run", zap.String("run_id", run.ID), zap.Error(fErr))
		}
	}()

	r.log.Info("finding repository", zap.String("repo", repoCode))
	repoURI, err := r.backend.RepositoryURI(ctx, repoCode)
	if err != nil {
		return &run.Report, err
	}
	run.RepoURI = repoURI
	r.log.Info("found repository", zap.String("repo", repoCode), zap.String("repo_uri", repoURI))

	if rs.Prepare != nil {
		if err = rs.Prepare(ctx, r.lookups); err != nil {
			return &run.Report, err
		}
	}

	err = r.eachAccession(ctx, repoURI, func(acc *accession.Accession) {
		r.process(ctx, run, rs, acc)
	})
	if err != nil {
		return &run.Report, err
	}

	if rs.Sweep && r.sweeper != nil && len(run.Report.Unlinked) > 0 {
		if err = r.waitForIndex(ctx); err != nil {
			return &run.Report, err
		}
		r.log.Info("checking unlinked subjects", zap.Int("subjects", len(run.Report.Unlinked)))
		// The sweep deletes only when this run commits.
		run.Report.Sweep, err = r.sweeper.WithCommit(r.cfg.Commit).Sweep(ctx, run.Report.Unlinked)
		if err != nil {
			return &run.Report, fmt.Errorf("subject sweep: %w", err)
		}
	}
	return &run.Report, nil
}

func (r *Runner) eachAccession(ctx context.Context, repoURI string, fn func(*accession.Accession)) error {
	switch r.cfg.PageMode {
	case PageModeBulk:
		ids, err := r.backend.AccessionIDs(ctx, repoURI)
		if err != nil {
			return fmt.Errorf("list accession ids: %w", err)
		}
		for start := 0; start < len(ids); start += r.cfg.BatchSize {
			end := min(start+r.cfg.BatchSize, len(ids))
			batch, err := r.backend.AccessionsByID(ctx, repoURI, ids[start:end])
			if err != nil {
				return fmt.Errorf("fetch accessions %d-%d: %w", start, end, err)
			}
			for _, acc := range batch {
				fn(acc)
			}
		}
		return nil

	case PageModePaged:
		for page := 1; ; page++ {
			r.log.Debug("accessions page", zap.Int("page", page))
			res, err := r.backend.AccessionPage(ctx, repoURI, page)
			if err != nil {
				return fmt.Errorf("fetch accessions page %d: %w", page, err)
			}
			for _, acc := range res.Results {
				fn(acc)
			}
			if res.ThisPage >= res.LastPage {
				return nil
			}
		}

	default:
		return fmt.Errorf("unknown page mode %q", r.cfg.PageMode)
	}
}

func (r *Runner) process(ctx context.Context, run *Run, rs RuleSet, acc *accession.Accession) {
	rep := &run.Report
	log := r.log.With(zap.String("uri", acc.URI))
	log.Info("accession", zap.String("display_string", acc.DisplayString))
	rep.Processed++

	out, err := rs.Apply(ctx, acc, r.lookups)
	if err != nil {
		rep.RuleErrors++
		r.metrics.record(rs.Variant, RecordRuleError)
		log.Error("failed to apply rules, record skipped", zap.Error(err))
		r.note(ctx, run, RecordEntry{URI: acc.URI, Status: RecordRuleError, Detail: err.Error()})
		return
	}
	if !out.Changed {
		r.metrics.record(rs.Variant, RecordUnchanged)
		return
	}

	rep.Changed++
	log.Debug("record has changed", zap.Strings("rules", out.Fired))

	if !r.cfg.Commit {
		log.Info("skipping save (commit is false)", zap.Strings("rules", out.Fired), zap.Strings("pending_deletes", out.PendingDeletes))
		for ref, title := range out.UnlinkedSubjects {
			rep.Unlinked[ref] = title
		}
		r.metrics.record(rs.Variant, RecordDryRun)
		r.note(ctx, run, RecordEntry{URI: acc.URI, Status: RecordDryRun, Rules: out.Fired})
		return
	}

	r.commit(ctx, run, rs, acc, out)
}

// commit saves the record and, only once the save has succeeded, issues
// the pending deletes. A failed delete is logged and leaves the save in
// place.
func (r *Runner) commit(ctx context.Context, run *Run, rs RuleSet, acc *accession.Accession, out Outcome) {
	rep := &run.Report
	log := r.log.With(zap.String("uri", acc.URI))

	if err := r.backend.SaveAccession(ctx, acc); err != nil {
		rep.SaveFailures++
		r.metrics.record(rs.Variant, RecordSaveFailed)
		log.Error("failed to save", zap.Error(err))
		r.note(ctx, run, RecordEntry{URI: acc.URI, Status: RecordSaveFailed, Rules: out.Fired, Detail: err.Error()})
		return
	}
	rep.Saved++
	r.metrics.record(rs.Variant, RecordSaved)
	log.Info("saved")
	r.note(ctx, run, RecordEntry{URI: acc.URI, Status: RecordSaved, Rules: out.Fired})

	for ref, title := range out.UnlinkedSubjects {
		rep.Unlinked[ref] = title
	}

	for _, ref := range out.PendingDeletes {
		err := r.backend.Delete(ctx, ref)
		r.metrics.delete("event", err)
		if err != nil {
			rep.DeleteFailures++
			log.Error("failed to delete", zap.String("ref", ref), zap.Error(err))
			r.note(ctx, run, RecordEntry{URI: acc.URI, Ref: ref, Status: RecordDeleteFailed, Detail: err.Error()})
			continue
		}
		rep.Deleted++
		log.Info("deleted", zap.String("ref", ref))
		r.note(ctx, run, RecordEntry{URI: acc.URI, Ref: ref, Status: RecordDeleted})
	}
}

func (r *Runner) waitForIndex(ctx context.Context) error {
	if r.cfg.SweepDelay <= 0 {
		return nil
	}
	r.log.Info("waiting for search index before subject sweep", zap.Duration("delay", r.cfg.SweepDelay))
	t := time.NewTimer(r.cfg.SweepDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) note(ctx context.Context, run *Run, entry RecordEntry) {
	if err := r.journal.RecordEntry(ctx, run.ID, entry); err != nil {
		r.log.Warn("failed to write journal entry", zap.String("uri", entry.URI), zap.Error(err))
	}
}
