package migration

import (
	"context"
	"encoding/json"

	"github.com/hudmol/yale-as-post-mig-acc-fix/internal/accession"
)

const VariantMSSA = "mssa"

// MSSA returns the Manuscripts and Archives rule set:
//
//  1. boolean_2 -> material_types.electronic_documents
//  2. real_1 -> megabytes extent
func MSSA() RuleSet {
	return RuleSet{
		Variant: VariantMSSA,
		Rules: []Rule{
			{Name: "boolean_2 > electronic_documents", fn: electronicDocuments},
			appendExtentRule("real_1 > extent",
				func(ud *accession.UserDefined) *accession.Opt[json.RawMessage] { return &ud.Real1 },
				"megabytes"),
		},
	}
}

func electronicDocuments(_ context.Context, acc *accession.Accession, _ Lookups, out *Outcome) error {
	if acc.UserDefined == nil || !accession.Truthy(acc.UserDefined.Boolean2) {
		return nil
	}
	acc.EnsureMaterialTypes().ElectronicDocuments = accession.Some(true)
	acc.UserDefined.Boolean2 = accession.Some(false)
	out.markChanged("boolean_2 > electronic_documents")
	return nil
}
