// Package migration applies ordered field-migration rules to accession
// records, commits the results to the backend and retires records left
// orphaned by the migration.
package migration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/accession"
)

// Outcome is what one or more rules decided about a single record.
type Outcome struct {
	Changed bool
	// PendingDeletes are refs to delete once the record is saved.
	PendingDeletes []string
	// UnlinkedSubjects maps subject ref to title for subjects removed from
	// the record; they are checked for orphaning after the run.
	UnlinkedSubjects map[string]string
	// Fired names the rules that changed the record, in order.
	Fired []string
}

func (o *Outcome) markChanged(rule string) {
	o.Changed = true
	o.Fired = append(o.Fired, rule)
}

func (o *Outcome) markForDelete(ref string) {
	for _, r := range o.PendingDeletes {
		if r == ref {
			return
		}
	}
	o.PendingDeletes = append(o.PendingDeletes, ref)
}

func (o *Outcome) unlinkSubject(ref, title string) {
	if o.UnlinkedSubjects == nil {
		o.UnlinkedSubjects = make(map[string]string)
	}
	o.UnlinkedSubjects[ref] = title
}

func (o *Outcome) merge(other Outcome) {
	if other.Changed {
		o.Changed = true
	}
	o.Fired = append(o.Fired, other.Fired...)
	for _, ref := range other.PendingDeletes {
		o.markForDelete(ref)
	}
	for ref, title := range other.UnlinkedSubjects {
		o.unlinkSubject(ref, title)
	}
}

// Lookups is what rules may ask of the backend while deciding.
type Lookups interface {
	EventType(ctx context.Context, ref string) (string, error)
	SubjectTitle(ctx context.Context, ref string) (string, error)
	FundCodes(ctx context.Context) (map[string]struct{}, error)
}

type ruleFunc func(ctx context.Context, acc *accession.Accession, lk Lookups, out *Outcome) error

// Rule is a single, idempotent field transformation.
type Rule struct {
	Name string
	fn   ruleFunc
}

// Apply runs the rule alone against acc, mutating it in place.
func (r Rule) Apply(ctx context.Context, acc *accession.Accession, lk Lookups) (Outcome, error) {
	var out Outcome
	if err := r.fn(ctx, acc, lk, &out); err != nil {
		return Outcome{}, fmt.Errorf("rule %s: %w", r.Name, err)
	}
	return out, nil
}

// RuleSet is the ordered rule list for one repository variant. Later rules
// see the effects of earlier ones.
type RuleSet struct {
	Variant string
	Rules   []Rule
	// Prepare runs once before any record is processed.
	Prepare func(ctx context.Context, lk Lookups) error
	// Sweep enables the orphaned-subject check after the run.
	Sweep bool
}

// Apply runs every rule in order. The first failing rule aborts the record;
// acc may then be partially mutated and must not be saved.
func (rs RuleSet) Apply(ctx context.Context, acc *accession.Accession, lk Lookups) (Outcome, error) {
	var out Outcome
	for _, rule := range rs.Rules {
		o, err := rule.Apply(ctx, acc, lk)
		if err != nil {
			return Outcome{}, err
		}
		out.merge(o)
	}
	return out, nil
}

// Names lists the rule names in execution order.
func (rs RuleSet) Names() []string {
	names := make([]string, len(rs.Rules))
	for i, r := range rs.Rules {
		names[i] = r.Name
	}
	return names
}

func appendExtentRule(name string, slot func(*accession.UserDefined) *accession.Opt[json.RawMessage], extentType string) Rule {
	return Rule{Name: name, fn: func(_ context.Context, acc *accession.Accession, _ Lookups, out *Outcome) error {
		if acc.UserDefined == nil {
			return nil
		}
		v := slot(acc.UserDefined)
		if !v.Present() {
			return nil
		}
		acc.AppendExtent("part", v.Val, extentType)
		v.Unset()
		out.markChanged(name)
		return nil
	}}
}

// consumeEventRule sets a boolean slot from the first linked event of the
// given type and marks that event for deletion.
func consumeEventRule(name, eventType string, slot func(*accession.UserDefined) *accession.Opt[bool]) Rule {
	return Rule{Name: name, fn: func(ctx context.Context, acc *accession.Accession, lk Lookups, out *Outcome) error {
		for _, ev := range acc.LinkedEvents {
			typ, err := lk.EventType(ctx, ev.Ref)
			if err != nil {
				return err
			}
			if typ != eventType {
				continue
			}
			*slot(acc.EnsureUserDefined()) = accession.Some(true)
			out.markChanged(name)
			out.markForDelete(ev.Ref)
			acc.DropLinkedEvent(ev.Ref)
			return nil
		}
		return nil
	}}
}
