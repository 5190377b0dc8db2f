package compare

import (
	"fmt"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/output"
)

// Outcome is the result of pricing one claim under one policy. Exactly one of
// Breakdown and Error is set.
type Outcome struct {
	Breakdown *domain.CostBreakdown `json:"breakdown,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// Failed reports whether the claim could not be priced
func (o Outcome) Failed() bool {
	return o.Breakdown == nil
}

// ComparisonResult compares one claim under the base and alternative policies
type ComparisonResult struct {
	Claim       string  `json:"claim"`
	Base        Outcome `json:"base"`
	Alternative Outcome `json:"alternative"`

	// Comparison to base, zero unless both outcomes priced
	MemberDiff     int64 `json:"memberDiff"`
	EmployerDiff   int64 `json:"employerDiff"`
	DeductibleDiff int64 `json:"deductibleDiff"`
	OOPDiff        int64 `json:"oopDiff"`
}

// Changed reports whether the alternative policy moves money or changes
// whether the claim can be priced at all
func (r *ComparisonResult) Changed() bool {
	if r.Base.Failed() != r.Alternative.Failed() {
		return true
	}
	return r.MemberDiff != 0 || r.EmployerDiff != 0 || r.DeductibleDiff != 0 || r.OOPDiff != 0
}

// ComparisonSet is every claim compared under two policies
type ComparisonSet struct {
	BasePolicy        domain.ComputationPolicy `json:"basePolicy"`
	AlternativeName   string                   `json:"alternativeName"`
	Description       string                   `json:"description"`
	AlternativePolicy domain.ComputationPolicy `json:"alternativePolicy"`
	Results           []ComparisonResult       `json:"results"`
	Recommendations   []string                 `json:"recommendations"`
}

// Changed counts the claims whose outcome differs between the policies
func (cs *ComparisonSet) Changed() int {
	n := 0
	for i := range cs.Results {
		if cs.Results[i].Changed() {
			n++
		}
	}
	return n
}

// Totals sums member and employer responsibility over the claims priced under
// both policies
func (cs *ComparisonSet) Totals() (baseMember, altMember, baseEmployer, altEmployer int64) {
	for _, r := range cs.Results {
		if r.Base.Failed() || r.Alternative.Failed() {
			continue
		}
		baseMember += r.Base.Breakdown.TotalMemberResponsibility
		altMember += r.Alternative.Breakdown.TotalMemberResponsibility
		baseEmployer += r.Base.Breakdown.TotalEmployerResponsibility
		altEmployer += r.Alternative.Breakdown.TotalEmployerResponsibility
	}
	return
}

// calculateComparison fills the deltas of a result whose outcomes both priced
func calculateComparison(r ComparisonResult) ComparisonResult {
	if r.Base.Failed() || r.Alternative.Failed() {
		return r
	}
	base, alt := r.Base.Breakdown, r.Alternative.Breakdown
	r.MemberDiff = alt.TotalMemberResponsibility - base.TotalMemberResponsibility
	r.EmployerDiff = alt.TotalEmployerResponsibility - base.TotalEmployerResponsibility
	r.DeductibleDiff = alt.DeductibleApplied - base.DeductibleApplied
	r.OOPDiff = alt.OOPApplied - base.OOPApplied
	return r
}

// GenerateRecommendations summarizes the effect of switching to the alternative policy
func GenerateRecommendations(cs *ComparisonSet) []string {
	recommendations := []string{}
	if len(cs.Results) == 0 {
		return recommendations
	}

	changed := cs.Changed()
	if changed == 0 {
		return append(recommendations, fmt.Sprintf("No change: all %d claims price identically under %s", len(cs.Results), cs.AlternativeName))
	}
	recommendations = append(recommendations,
		fmt.Sprintf("%d of %d claims change under %s", changed, len(cs.Results), cs.AlternativeName))

	baseMember, altMember, _, _ := cs.Totals()
	switch diff := altMember - baseMember; {
	case diff > 0:
		recommendations = append(recommendations,
			"Member responsibility rises by "+output.FormatCents(diff)+" across claims priced under both policies")
	case diff < 0:
		recommendations = append(recommendations,
			"Member responsibility falls by "+output.FormatCents(-diff)+" across claims priced under both policies")
	}

	var newFailures, fixed int
	for _, r := range cs.Results {
		switch {
		case !r.Base.Failed() && r.Alternative.Failed():
			newFailures++
		case r.Base.Failed() && !r.Alternative.Failed():
			fixed++
		}
	}
	if newFailures > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("%d claims fail only under %s; fix their plan configuration before switching", newFailures, cs.AlternativeName))
	}
	if fixed > 0 {
		recommendations = append(recommendations,
			fmt.Sprintf("%d claims that fail today price under %s", fixed, cs.AlternativeName))
	}
	return recommendations
}
