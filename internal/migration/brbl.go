package migration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/accession"
)

const (
	VariantBRBL = "brbl"

	// MSSUTag is written to user_defined.enum_2 on every BRBL record.
	MSSUTag = "mssu"

	EventAgreementSent     = "agreement_sent"
	EventRightsTransferred = "rights_transferred"
)

// BRBL returns the Beinecke rule set. Order matters: payment runs before
// the agreement rule resets boolean_1, and string_3 is consumed by the
// payment rule before the subject rule overwrites it.
//
//  1. real_1 (+boolean_1, string_3, text_2) -> payment_summary
//  2. agreement_sent event -> boolean_1
//  3. condition_description -> content_description
//  4. rights_transferred event -> boolean_2
//  5. integer_1 -> manuscript_items extent
//  6. integer_2 -> non_book_format_items extent
//  7. string_2 -> text_1
//  8. subjects -> string_3, unlink
//  9. enum_2 := mssu
func BRBL() RuleSet {
	return RuleSet{
		Variant: VariantBRBL,
		Rules: []Rule{
			{Name: "real_1 > payment", fn: paymentSummary},
			consumeEventRule("agreement_sent > boolean_1", EventAgreementSent,
				func(ud *accession.UserDefined) *accession.Opt[bool] { return &ud.Boolean1 }),
			{Name: "condition_description > content_description", fn: conditionToContent},
			consumeEventRule("rights_transferred > boolean_2", EventRightsTransferred,
				func(ud *accession.UserDefined) *accession.Opt[bool] { return &ud.Boolean2 }),
			appendExtentRule("integer_1 > extent",
				func(ud *accession.UserDefined) *accession.Opt[json.RawMessage] { return &ud.Integer1 },
				"manuscript_items"),
			appendExtentRule("integer_2 > extent",
				func(ud *accession.UserDefined) *accession.Opt[json.RawMessage] { return &ud.Integer2 },
				"non_book_format_items"),
			{Name: "string_2 > text_1", fn: string2ToText1},
			{Name: "subject > string_3", fn: subjectsToString3},
			{Name: "enum_2 > mssu", fn: tagMSSU},
		},
		Prepare: func(ctx context.Context, lk Lookups) error {
			if _, err := lk.FundCodes(ctx); err != nil {
				return fmt.Errorf("load fund codes: %w", err)
			}
			return nil
		},
		Sweep: true,
	}
}

func paymentSummary(ctx context.Context, acc *accession.Accession, lk Lookups, out *Outcome) error {
	ud := acc.UserDefined
	if ud == nil || !ud.Real1.Keyed {
		return nil
	}

	ps := &accession.PaymentSummary{
		InLot:      ud.Boolean1,
		TotalPrice: ud.Real1,
		Currency:   ud.String3,
		Payments:   []accession.Payment{},
	}
	if ud.Text2.Present() {
		codes, err := lk.FundCodes(ctx)
		if err != nil {
			return err
		}
		ps.Payments = classifyPayments(ud.Text2.Val, codes)
	}

	acc.PaymentSummary = ps
	ud.Boolean1 = accession.Some(false)
	ud.Real1.Unset()
	ud.String3.Unset()
	ud.Text2.Unset()
	out.markChanged("real_1 > payment")
	return nil
}

// classifyPayments splits a "|" separated list and sorts each token into a
// fund code or a note, keeping input order. Empty tokens are dropped.
func classifyPayments(raw string, codes map[string]struct{}) []accession.Payment {
	payments := []accession.Payment{}
	for _, tok := range strings.Split(raw, "|") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if _, ok := codes[tok]; ok {
			payments = append(payments, accession.Payment{FundCode: tok})
		} else {
			payments = append(payments, accession.Payment{Note: tok})
		}
	}
	return payments
}

func conditionToContent(_ context.Context, acc *accession.Accession, _ Lookups, out *Outcome) error {
	if !acc.ConditionDescription.Present() {
		return nil
	}
	cond := acc.ConditionDescription.Val
	if acc.ContentDescription.Present() {
		acc.ContentDescription = accession.Some(acc.ContentDescription.Val + " \n" + cond)
	} else {
		acc.ContentDescription = accession.Some(cond)
	}
	acc.ConditionDescription.Unset()
	out.markChanged("condition_description > content_description")
	return nil
}

func string2ToText1(_ context.Context, acc *accession.Accession, _ Lookups, out *Outcome) error {
	ud := acc.UserDefined
	if ud == nil || !ud.String2.Present() {
		return nil
	}
	ud.Text1 = ud.String2
	ud.String2.Unset()
	out.markChanged("string_2 > text_1")
	return nil
}

func subjectsToString3(ctx context.Context, acc *accession.Accession, lk Lookups, out *Outcome) error {
	if len(acc.Subjects) == 0 {
		return nil
	}
	titles := make([]string, 0, len(acc.Subjects))
	for _, s := range acc.Subjects {
		title, err := lk.SubjectTitle(ctx, s.Ref)
		if err != nil {
			return err
		}
		titles = append(titles, title)
		out.unlinkSubject(s.Ref, title)
	}
	acc.EnsureUserDefined().String3 = accession.Some(strings.Join(titles, "; "))
	acc.Subjects = []accession.Ref{}
	out.markChanged("subject > string_3")
	return nil
}

func tagMSSU(_ context.Context, acc *accession.Accession, _ Lookups, out *Outcome) error {
	acc.EnsureUserDefined().Enum2 = accession.Some(MSSUTag)
	out.markChanged("enum_2 > mssu")
	return nil
}
