package migration

import (
	"context"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/platform/archivesspace"

	"go.uber.org/zap"
)

// FundCodeEnumeration names the controlled value list of payment funds.
const FundCodeEnumeration = "payment_fund_code"

// ReferenceSource is the part of the backend the Resolver reads from.
type ReferenceSource interface {
	Event(ctx context.Context, ref string) (*archivesspace.Event, error)
	Subject(ctx context.Context, ref string) (*archivesspace.Subject, error)
	EnumerationValues(ctx context.Context, name string) ([]string, error)
}

// Resolver answers rule lookups with at most one backend call per distinct
// reference. Its caches live as long as the process and are shared across
// repository runs and the subject sweep. Failed lookups are not cached.
type Resolver struct {
	src     ReferenceSource
	metrics *Metrics
	log     *zap.Logger

	eventTypes    map[string]string
	subjectTitles map[string]string
	fundCodes     map[string]struct{}
}

func NewResolver(src ReferenceSource, metrics *Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		src:           src,
		metrics:       metrics,
		log:           logger,
		eventTypes:    make(map[string]string),
		subjectTitles: make(map[string]string),
	}
}

func (r *Resolver) EventType(ctx context.Context, ref string) (string, error) {
	if t, ok := r.eventTypes[ref]; ok {
		return t, nil
	}
	ev, err := r.src.Event(ctx, ref)
	r.metrics.lookup("event", err)
	if err != nil {
		return "", err
	}
	r.eventTypes[ref] = ev.EventType
	return ev.EventType, nil
}

func (r *Resolver) SubjectTitle(ctx context.Context, ref string) (string, error) {
	if t, ok := r.subjectTitles[ref]; ok {
		return t, nil
	}
	subj, err := r.src.Subject(ctx, ref)
	r.metrics.lookup("subject", err)
	if err != nil {
		return "", err
	}
	r.subjectTitles[ref] = subj.Title
	return subj.Title, nil
}

// FundCodes loads the payment fund code enumeration on first use.
func (r *Resolver) FundCodes(ctx context.Context) (map[string]struct{}, error) {
	if r.fundCodes != nil {
		return r.fundCodes, nil
	}
	values, err := r.src.EnumerationValues(ctx, FundCodeEnumeration)
	r.metrics.lookup("enumeration", err)
	if err != nil {
		return nil, err
	}
	codes := make(map[string]struct{}, len(values))
	for _, v := range values {
		codes[v] = struct{}{}
	}
	r.fundCodes = codes
	r.log.Debug("found fund codes", zap.Strings("codes", values))
	return codes, nil
}
