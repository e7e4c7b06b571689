package migration

import (
	"context"
	"fmt"
	"sort"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/platform/archivesspace"

	"go.uber.org/zap"
)

// SubjectIndex is the part of the backend used to find and remove subjects
// that no record links to any more.
type SubjectIndex interface {
	CountLinkedRecords(ctx context.Context, subjectTitle string) (int, error)
	SubjectPage(ctx context.Context, page int) (*archivesspace.SubjectPage, error)
	Delete(ctx context.Context, ref string) error
}

type SweepReport struct {
	Checked        int
	StillLinked    int
	Orphaned       int
	Deleted        int
	DeleteFailures int
	SearchFailures int
}

func (r *SweepReport) add(o SweepReport) {
	r.Checked += o.Checked
	r.StillLinked += o.StillLinked
	r.Orphaned += o.Orphaned
	r.Deleted += o.Deleted
	r.DeleteFailures += o.DeleteFailures
	r.SearchFailures += o.SearchFailures
}

// Sweeper deletes subjects whose title no longer matches any indexed
// record.
//
// The check relies on the backend search index. An index that lags behind
// recent saves reports subjects as still linked; callers that sweep right
// after a migration should wait for the indexer (see RunnerConfig.SweepDelay).
type Sweeper struct {
	idx     SubjectIndex
	commit  bool
	metrics *Metrics
	log     *zap.Logger
}

func NewSweeper(idx SubjectIndex, commit bool, metrics *Metrics, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{idx: idx, commit: commit, metrics: metrics, log: logger}
}

// WithCommit returns a copy of the sweeper that deletes orphans only when
// commit is true.
func (s *Sweeper) WithCommit(commit bool) *Sweeper {
	c := *s
	c.commit = commit
	return &c
}

// Sweep checks each candidate (ref -> title) once, in ref order. Search and
// delete failures are logged and counted; they never stop the sweep. A
// cancelled context does, and its error is returned with the partial
// report.
func (s *Sweeper) Sweep(ctx context.Context, candidates map[string]string) (SweepReport, error) {
	refs := make([]string, 0, len(candidates))
	for ref := range candidates {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	var rep SweepReport
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.add(s.check(ctx, ref, candidates[ref]))
	}
	return rep, nil
}

// SweepAll pages through every subject in the backend and checks each one.
// A paging failure aborts the sweep.
func (s *Sweeper) SweepAll(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	for page := 1; ; page++ {
		s.log.Info("subjects page", zap.Int("page", page))
		res, err := s.idx.SubjectPage(ctx, page)
		if err != nil {
			return rep, fmt.Errorf("list subjects page %d: %w", page, err)
		}
		for _, subj := range res.Results {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			rep.add(s.check(ctx, subj.URI, subj.Title))
		}
		if res.ThisPage >= res.LastPage {
			return rep, nil
		}
	}
}

func (s *Sweeper) check(ctx context.Context, ref, title string) SweepReport {
	rep := SweepReport{Checked: 1}
	log := s.log.With(zap.String("ref", ref), zap.String("title", title))

	hits, err := s.idx.CountLinkedRecords(ctx, title)
	if err != nil {
		rep.SearchFailures++
		log.Error("subject search failed", zap.Error(err))
		return rep
	}
	if hits > 0 {
		rep.StillLinked++
		log.Info("subject still linked, not deleting", zap.Int("records", hits))
		return rep
	}

	rep.Orphaned++
	if !s.commit {
		log.Info("subject is no longer linked to any records, skipping delete (commit is false)")
		return rep
	}

	err = s.idx.Delete(ctx, ref)
	s.metrics.delete("subject", err)
	if err != nil {
		rep.DeleteFailures++
		log.Error("failed to delete subject", zap.Error(err))
		return rep
	}
	rep.Deleted++
	log.Info("deleted unlinked subject")
	return rep
}
