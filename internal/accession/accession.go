// Package accession models the parts of an ArchivesSpace accession record
// that the field migration reads or writes. Unmodelled keys are preserved
// so a decoded record can be saved back without losing data.
package accession

import "encoding/json"

type Accession struct {
	URI                  string          `json:"uri,omitempty"`
	DisplayString        string          `json:"display_string,omitempty"`
	UserDefined          *UserDefined    `json:"user_defined,omitzero"`
	Extents              []Extent        `json:"extents,omitzero"`
	MaterialTypes        *MaterialTypes  `json:"material_types,omitzero"`
	PaymentSummary       *PaymentSummary `json:"payment_summary,omitzero"`
	LinkedEvents         []Ref           `json:"linked_events,omitzero"`
	Subjects             []Ref           `json:"subjects,omitzero"`
	ContentDescription   Opt[string]     `json:"content_description,omitzero"`
	ConditionDescription Opt[string]     `json:"condition_description,omitzero"`

	Extra Extra `json:"-"`
}

// UserDefined is the generic scratch-slot record attached to an accession.
// Integer and real slots are kept as raw JSON because the backend stores
// them as numeric strings; the migration copies them verbatim.
type UserDefined struct {
	Boolean1 Opt[bool] `json:"boolean_1,omitzero"`
	Boolean2 Opt[bool] `json:"boolean_2,omitzero"`
	Boolean3 Opt[bool] `json:"boolean_3,omitzero"`

	Integer1 Opt[json.RawMessage] `json:"integer_1,omitzero"`
	Integer2 Opt[json.RawMessage] `json:"integer_2,omitzero"`
	Integer3 Opt[json.RawMessage] `json:"integer_3,omitzero"`

	Real1 Opt[json.RawMessage] `json:"real_1,omitzero"`
	Real2 Opt[json.RawMessage] `json:"real_2,omitzero"`
	Real3 Opt[json.RawMessage] `json:"real_3,omitzero"`

	String1 Opt[string] `json:"string_1,omitzero"`
	String2 Opt[string] `json:"string_2,omitzero"`
	String3 Opt[string] `json:"string_3,omitzero"`
	String4 Opt[string] `json:"string_4,omitzero"`

	Text1 Opt[string] `json:"text_1,omitzero"`
	Text2 Opt[string] `json:"text_2,omitzero"`
	Text3 Opt[string] `json:"text_3,omitzero"`
	Text4 Opt[string] `json:"text_4,omitzero"`
	Text5 Opt[string] `json:"text_5,omitzero"`

	Date1 Opt[string] `json:"date_1,omitzero"`
	Date2 Opt[string] `json:"date_2,omitzero"`
	Date3 Opt[string] `json:"date_3,omitzero"`

	Enum1 Opt[string] `json:"enum_1,omitzero"`
	Enum2 Opt[string] `json:"enum_2,omitzero"`
	Enum3 Opt[string] `json:"enum_3,omitzero"`
	Enum4 Opt[string] `json:"enum_4,omitzero"`

	Extra Extra `json:"-"`
}

type Extent struct {
	Portion    string          `json:"portion,omitempty"`
	Number     json.RawMessage `json:"number,omitempty"`
	ExtentType string          `json:"extent_type,omitempty"`

	Extra Extra `json:"-"`
}

type MaterialTypes struct {
	ElectronicDocuments Opt[bool] `json:"electronic_documents,omitzero"`

	Extra Extra `json:"-"`
}

type PaymentSummary struct {
	InLot      Opt[bool]            `json:"in_lot,omitzero"`
	TotalPrice Opt[json.RawMessage] `json:"total_price,omitzero"`
	Currency   Opt[string]          `json:"currency,omitzero"`
	Payments   []Payment            `json:"payments"`

	Extra Extra `json:"-"`
}

// Payment carries either a recognised fund code or a free-text note.
type Payment struct {
	FundCode string `json:"fund_code,omitempty"`
	Note     string `json:"note,omitempty"`

	Extra Extra `json:"-"`
}

// Ref points at another backend record (event, subject, agent ...).
type Ref struct {
	Ref string `json:"ref"`

	Extra Extra `json:"-"`
}

// EnsureUserDefined returns the record's user-defined block, creating an
// empty one when the record has none.
func (a *Accession) EnsureUserDefined() *UserDefined {
	if a.UserDefined == nil {
		a.UserDefined = &UserDefined{}
	}
	return a.UserDefined
}

func (a *Accession) EnsureMaterialTypes() *MaterialTypes {
	if a.MaterialTypes == nil {
		a.MaterialTypes = &MaterialTypes{}
	}
	return a.MaterialTypes
}

func (a *Accession) AppendExtent(portion string, number json.RawMessage, extentType string) {
	a.Extents = append(a.Extents, Extent{
		Portion:    portion,
		Number:     number,
		ExtentType: extentType,
	})
}

// DropLinkedEvent removes ref from the in-memory linked event list.
func (a *Accession) DropLinkedEvent(ref string) {
	kept := a.LinkedEvents[:0]
	for _, ev := range a.LinkedEvents {
		if ev.Ref != ref {
			kept = append(kept, ev)
		}
	}
	a.LinkedEvents = kept
}

func (a Accession) MarshalJSON() ([]byte, error) {
	type plain Accession
	return marshalWithExtra(plain(a), a.Extra)
}

func (a *Accession) UnmarshalJSON(data []byte) error {
	type plain Accession
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*a = Accession(p)
	a.Extra = extra
	return nil
}

func (u UserDefined) MarshalJSON() ([]byte, error) {
	type plain UserDefined
	return marshalWithExtra(plain(u), u.Extra)
}

func (u *UserDefined) UnmarshalJSON(data []byte) error {
	type plain UserDefined
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*u = UserDefined(p)
	u.Extra = extra
	return nil
}

func (e Extent) MarshalJSON() ([]byte, error) {
	type plain Extent
	return marshalWithExtra(plain(e), e.Extra)
}

func (e *Extent) UnmarshalJSON(data []byte) error {
	type plain Extent
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*e = Extent(p)
	e.Extra = extra
	return nil
}

func (m MaterialTypes) MarshalJSON() ([]byte, error) {
	type plain MaterialTypes
	return marshalWithExtra(plain(m), m.Extra)
}

func (m *MaterialTypes) UnmarshalJSON(data []byte) error {
	type plain MaterialTypes
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*m = MaterialTypes(p)
	m.Extra = extra
	return nil
}

func (s PaymentSummary) MarshalJSON() ([]byte, error) {
	type plain PaymentSummary
	p := plain(s)
	if p.Payments == nil {
		p.Payments = []Payment{}
	}
	return marshalWithExtra(p, s.Extra)
}

func (s *PaymentSummary) UnmarshalJSON(data []byte) error {
	type plain PaymentSummary
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*s = PaymentSummary(p)
	s.Extra = extra
	return nil
}

func (p Payment) MarshalJSON() ([]byte, error) {
	type plain Payment
	return marshalWithExtra(plain(p), p.Extra)
}

func (p *Payment) UnmarshalJSON(data []byte) error {
	type plain Payment
	var q plain
	extra, err := unmarshalWithExtra(data, &q)
	if err != nil {
		return err
	}
	*p = Payment(q)
	p.Extra = extra
	return nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	type plain Ref
	return marshalWithExtra(plain(r), r.Extra)
}

func (r *Ref) UnmarshalJSON(data []byte) error {
	type plain Ref
	var p plain
	extra, err := unmarshalWithExtra(data, &p)
	if err != nil {
		return err
	}
	*r = Ref(p)
	r.Extra = extra
	return nil
}
