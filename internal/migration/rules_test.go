package migration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/accession"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookups struct {
	events    map[string]string
	subjects  map[string]string
	fundCodes map[string]struct{}
	failRef   string
	calls     []string
}

func newFakeLookups() *fakeLookups {
	return &fakeLookups{
		events:    map[string]string{},
		subjects:  map[string]string{},
		fundCodes: map[string]struct{}{"A100": {}, "B200": {}},
	}
}

func (f *fakeLookups) EventType(_ context.Context, ref string) (string, error) {
	f.calls = append(f.calls, ref)
	if ref == f.failRef {
		return "", errors.New("lookup failed")
	}
	return f.events[ref], nil
}

func (f *fakeLookups) SubjectTitle(_ context.Context, ref string) (string, error) {
	f.calls = append(f.calls, ref)
	if ref == f.failRef {
		return "", errors.New("lookup failed")
	}
	return f.subjects[ref], nil
}

func (f *fakeLookups) FundCodes(context.Context) (map[string]struct{}, error) {
	return f.fundCodes, nil
}

func decode(t *testing.T, doc string) *accession.Accession {
	t.Helper()
	var acc accession.Accession
	require.NoError(t, json.Unmarshal([]byte(doc), &acc))
	return &acc
}

func encode(t *testing.T, acc *accession.Accession) string {
	t.Helper()
	b, err := json.Marshal(acc)
	require.NoError(t, err)
	return string(b)
}

func ruleByName(t *testing.T, rs RuleSet, name string) Rule {
	t.Helper()
	for _, r := range rs.Rules {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("rule %q not in %s", name, rs.Variant)
	return Rule{}
}

func TestRuleSets_Order(t *testing.T) {
	assert.Equal(t, []string{
		"boolean_2 > electronic_documents",
		"real_1 > extent",
	}, MSSA().Names())

	assert.Equal(t, []string{
		"real_1 > payment",
		"agreement_sent > boolean_1",
		"condition_description > content_description",
		"rights_transferred > boolean_2",
		"integer_1 > extent",
		"integer_2 > extent",
		"string_2 > text_1",
		"subject > string_3",
		"enum_2 > mssu",
	}, BRBL().Names())
}

func TestMSSA_ElectronicDocuments(t *testing.T) {
	ctx := context.Background()
	acc := decode(t, `{"uri": "/a/1", "user_defined": {"boolean_2": true}}`)

	out, err := ruleByName(t, MSSA(), "boolean_2 > electronic_documents").Apply(ctx, acc, newFakeLookups())
	require.NoError(t, err)

	assert.True(t, out.Changed)
	require.NotNil(t, acc.MaterialTypes)
	assert.True(t, accession.Truthy(acc.MaterialTypes.ElectronicDocuments))
	assert.Equal(t, accession.Some(false), acc.UserDefined.Boolean2)
}

func TestMSSA_RealToMegabytes(t *testing.T) {
	ctx := context.Background()
	acc := decode(t, `{"uri": "/a/1", "user_defined": {"real_1": "3.25"}, "extents": [{"portion": "whole", "number": "2", "extent_type": "linear_feet"}]}`)

	out, err := MSSA().Apply(ctx, acc, newFakeLookups())
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Equal(t, []string{"real_1 > extent"}, out.Fired)
	require.Len(t, acc.Extents, 2)
	assert.Equal(t, "part", acc.Extents[1].Portion)
	assert.Equal(t, `"3.25"`, string(acc.Extents[1].Number))
	assert.Equal(t, "megabytes", acc.Extents[1].ExtentType)
	assert.False(t, acc.UserDefined.Real1.Keyed)
}

func TestMSSA_NoUserDefinedIsUnchanged(t *testing.T) {
	acc := decode(t, `{"uri": "/a/1"}`)

	out, err := MSSA().Apply(context.Background(), acc, newFakeLookups())
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.JSONEq(t, `{"uri": "/a/1"}`, encode(t, acc))
}

func TestBRBL_PaymentSummaryClassifiesFundCodes(t *testing.T) {
	ctx := context.Background()
	acc := decode(t, `{"uri": "/a/1", "user_defined": {
		"boolean_1": true, "real_1": "150.00", "string_3": "USD", "text_2": "A100 | X999 |  B200"
	}}`)

	out, err := ruleByName(t, BRBL(), "real_1 > payment").Apply(ctx, acc, newFakeLookups())
	require.NoError(t, err)
	assert.True(t, out.Changed)

	assert.JSONEq(t, `{
		"uri": "/a/1",
		"user_defined": {"boolean_1": false},
		"payment_summary": {
			"in_lot": true,
			"total_price": "150.00",
			"currency": "USD",
			"payments": [{"fund_code": "A100"}, {"note": "X999"}, {"fund_code": "B200"}]
		}
	}`, encode(t, acc))
}

func TestBRBL_PaymentSummaryWithoutText2(t *testing.T) {
	acc := decode(t, `{"uri": "/a/1", "user_defined": {"real_1": 0}}`)

	out, err := ruleByName(t, BRBL(), "real_1 > payment").Apply(context.Background(), acc, newFakeLookups())
	require.NoError(t, err)
	assert.True(t, out.Changed)

	require.NotNil(t, acc.PaymentSummary)
	assert.Empty(t, acc.PaymentSummary.Payments)
	assert.Equal(t, "0", string(acc.PaymentSummary.TotalPrice.Val))
	assert.False(t, acc.PaymentSummary.InLot.Keyed)
}

func TestBRBL_PaymentSummaryTriggersOnNullRealKey(t *testing.T) {
	acc := decode(t, `{"uri": "/a/1", "user_defined": {"real_1": null, "text_2": "A100"}}`)

	out, err := ruleByName(t, BRBL(), "real_1 > payment").Apply(context.Background(), acc, newFakeLookups())
	require.NoError(t, err)
	assert.True(t, out.Changed)
	require.NotNil(t, acc.PaymentSummary)
	assert.Equal(t, []accession.Payment{{FundCode: "A100"}}, acc.PaymentSummary.Payments)
}

func TestBRBL_EventRulesConsumeFirstMatchOnly(t *testing.T) {
	ctx := context.Background()
	lk := newFakeLookups()
	lk.events["/e/1"] = "accession"
	lk.events["/e/2"] = EventAgreementSent
	lk.events["/e/3"] = EventAgreementSent
	acc := decode(t, `{"uri": "/a/1", "linked_events": [{"ref": "/e/1"}, {"ref": "/e/2"}, {"ref": "/e/3"}]}`)

	out, err := ruleByName(t, BRBL(), "agreement_sent > boolean_1").Apply(ctx, acc, lk)
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Equal(t, []string{"/e/2"}, out.PendingDeletes)
	assert.Equal(t, []string{"/e/1", "/e/2"}, lk.calls, "scan stops at the first match")
	require.NotNil(t, acc.UserDefined)
	assert.True(t, accession.Truthy(acc.UserDefined.Boolean1))
}

func TestBRBL_RightsTransferred(t *testing.T) {
	lk := newFakeLookups()
	lk.events["/e/7"] = EventRightsTransferred
	acc := decode(t, `{"uri": "/a/1", "user_defined": {"boolean_2": false}, "linked_events": [{"ref": "/e/7"}]}`)

	out, err := ruleByName(t, BRBL(), "rights_transferred > boolean_2").Apply(context.Background(), acc, lk)
	require.NoError(t, err)
	assert.Equal(t, []string{"/e/7"}, out.PendingDeletes)
	assert.True(t, accession.Truthy(acc.UserDefined.Boolean2))
}

func TestBRBL_EventLookupFailureAbortsRecord(t *testing.T) {
	lk := newFakeLookups()
	lk.failRef = "/e/1"
	acc := decode(t, `{"uri": "/a/1", "linked_events": [{"ref": "/e/1"}]}`)

	_, err := BRBL().Apply(context.Background(), acc, lk)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agreement_sent > boolean_1")
}

func TestBRBL_ConditionAppendsToContent(t *testing.T) {
	rule := ruleByName(t, BRBL(), "condition_description > content_description")

	acc := decode(t, `{"uri": "/a/1", "content_description": "Letters", "condition_description": "Water damage"}`)
	out, err := rule.Apply(context.Background(), acc, newFakeLookups())
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, "Letters \nWater damage", acc.ContentDescription.Val)
	assert.False(t, acc.ConditionDescription.Keyed)

	acc = decode(t, `{"uri": "/a/2", "condition_description": "Water damage"}`)
	_, err = rule.Apply(context.Background(), acc, newFakeLookups())
	require.NoError(t, err)
	assert.Equal(t, accession.Some("Water damage"), acc.ContentDescription)
}

func TestBRBL_ExtentAppendOrdering(t *testing.T) {
	acc := decode(t, `{"uri": "/a/1",
		"user_defined": {"integer_1": "12", "integer_2": "3"},
		"extents": [{"portion": "whole", "number": "1", "extent_type": "linear_feet"}]}`)

	_, err := BRBL().Apply(context.Background(), acc, newFakeLookups())
	require.NoError(t, err)

	require.Len(t, acc.Extents, 3)
	assert.Equal(t, "linear_feet", acc.Extents[0].ExtentType)
	assert.Equal(t, "manuscript_items", acc.Extents[1].ExtentType)
	assert.Equal(t, `"12"`, string(acc.Extents[1].Number))
	assert.Equal(t, "non_book_format_items", acc.Extents[2].ExtentType)
	assert.Equal(t, `"3"`, string(acc.Extents[2].Number))
}

func TestBRBL_String2ToText1(t *testing.T) {
	acc := decode(t, `{"uri": "/a/1", "user_defined": {"string_2": "Gift of the author"}}`)

	out, err := ruleByName(t, BRBL(), "string_2 > text_1").Apply(context.Background(), acc, newFakeLookups())
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, accession.Some("Gift of the author"), acc.UserDefined.Text1)
	assert.False(t, acc.UserDefined.String2.Keyed)
}

func TestBRBL_SubjectsUnlinkedIntoString3(t *testing.T) {
	lk := newFakeLookups()
	lk.subjects["/subjects/1"] = "Maps"
	lk.subjects["/subjects/2"] = "Poetry"
	acc := decode(t, `{"uri": "/a/1", "subjects": [{"ref": "/subjects/1"}, {"ref": "/subjects/2"}]}`)

	out, err := ruleByName(t, BRBL(), "subject > string_3").Apply(context.Background(), acc, lk)
	require.NoError(t, err)

	assert.True(t, out.Changed)
	assert.Empty(t, out.PendingDeletes, "subjects are swept later, not deleted with the record")
	assert.Equal(t, map[string]string{"/subjects/1": "Maps", "/subjects/2": "Poetry"}, out.UnlinkedSubjects)
	assert.Equal(t, accession.Some("Maps; Poetry"), acc.UserDefined.String3)
	assert.NotNil(t, acc.Subjects)
	assert.Empty(t, acc.Subjects)
}

func TestBRBL_PaymentReadsString3BeforeSubjectsOverwriteIt(t *testing.T) {
	lk := newFakeLookups()
	lk.subjects["/subjects/1"] = "Maps"
	acc := decode(t, `{"uri": "/a/1", "user_defined": {"real_1": "5", "string_3": "GBP"}, "subjects": [{"ref": "/subjects/1"}]}`)

	_, err := BRBL().Apply(context.Background(), acc, lk)
	require.NoError(t, err)
	assert.Equal(t, accession.Some("GBP"), acc.PaymentSummary.Currency)
	assert.Equal(t, accession.Some("Maps"), acc.UserDefined.String3)
}

func TestBRBL_UnconditionalTagging(t *testing.T) {
	docs := []string{
		`{"uri": "/a/1"}`,
		`{"uri": "/a/2", "user_defined": {"enum_2": "mssu"}}`,
		`{"uri": "/a/3", "user_defined": {"enum_2": "other", "string_1": "x"}}`,
	}
	for _, doc := range docs {
		acc := decode(t, doc)
		out, err := BRBL().Apply(context.Background(), acc, newFakeLookups())
		require.NoError(t, err)
		assert.True(t, out.Changed, doc)
		assert.Equal(t, []string{"enum_2 > mssu"}, out.Fired, doc)
		assert.Equal(t, accession.Some(MSSUTag), acc.UserDefined.Enum2, doc)
	}
}

func TestRules_Idempotent(t *testing.T) {
	ctx := context.Background()
	lk := newFakeLookups()
	lk.events["/e/1"] = EventAgreementSent
	lk.events["/e/2"] = EventRightsTransferred
	lk.subjects["/subjects/1"] = "Maps"

	const doc = `{"uri": "/a/1",
		"user_defined": {"boolean_1": true, "boolean_2": true, "real_1": "1.5", "string_3": "USD", "text_2": "A100",
			"integer_1": "4", "integer_2": "5", "string_2": "note"},
		"content_description": "c", "condition_description": "d",
		"linked_events": [{"ref": "/e/1"}, {"ref": "/e/2"}],
		"subjects": [{"ref": "/subjects/1"}]}`

	for _, rs := range []RuleSet{MSSA(), BRBL()} {
		for _, rule := range rs.Rules {
			if rule.Name == "enum_2 > mssu" {
				continue
			}
			t.Run(rs.Variant+"/"+rule.Name, func(t *testing.T) {
				acc := decode(t, doc)
				first, err := rule.Apply(ctx, acc, lk)
				require.NoError(t, err)
				require.True(t, first.Changed, "fixture should trigger the rule")
				after := encode(t, acc)

				second, err := rule.Apply(ctx, acc, lk)
				require.NoError(t, err)
				assert.False(t, second.Changed)
				assert.Empty(t, second.PendingDeletes)
				assert.JSONEq(t, after, encode(t, acc))
			})
		}
	}
}

func TestRules_TagFiresEveryPass(t *testing.T) {
	rule := ruleByName(t, BRBL(), "enum_2 > mssu")
	acc := decode(t, `{"uri": "/a/1"}`)

	for i := 0; i < 3; i++ {
		out, err := rule.Apply(context.Background(), acc, newFakeLookups())
		require.NoError(t, err)
		assert.True(t, out.Changed)
	}
}

func TestOutcome_MergeDedupesDeletes(t *testing.T) {
	var o Outcome
	o.merge(Outcome{Changed: true, PendingDeletes: []string{"/e/1"}, Fired: []string{"a"}})
	o.merge(Outcome{PendingDeletes: []string{"/e/1", "/e/2"}})

	assert.True(t, o.Changed)
	assert.Equal(t, []string{"/e/1", "/e/2"}, o.PendingDeletes)
	assert.Equal(t, []string{"a"}, o.Fired)
}
