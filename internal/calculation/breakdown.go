package calculation

import (
	"fmt"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/shopspring/decimal"
)

// BreakdownInput is everything the calculator needs for one claim
type BreakdownInput struct {
	ClaimAmount  int64 // cents
	Overage      int64 // portion outside the covered benefit, cents
	Coverage     domain.PlanCoverage
	CostShare    domain.EligibilityInfo
	YTD          domain.YTDSnapshot
	IsFamilyPlan bool
}

// BreakdownResult is the split of a claim between member and employer
type BreakdownResult struct {
	DeductibleApplied           int64 `json:"deductible_applied"`
	CoinsuranceApplied          int64 `json:"coinsurance_applied"`
	CopayApplied                int64 `json:"copay_applied"`
	OverageAmount               int64 `json:"overage_amount"`
	OOPApplied                  int64 `json:"oop_applied"`
	TotalMemberResponsibility   int64 `json:"total_member_responsibility"`
	TotalEmployerResponsibility int64 `json:"total_employer_responsibility"`
	OOPMaxReached               bool  `json:"oop_max_reached"`

	// Limits left after this claim
	DeductibleRemaining       int64 `json:"deductible_remaining"`
	OOPRemaining              int64 `json:"oop_remaining"`
	FamilyDeductibleRemaining int64 `json:"family_deductible_remaining"`
	FamilyOOPRemaining        int64 `json:"family_oop_remaining"`
}

// ComputeBreakdown splits a claim into deductible, copay or coinsurance and
// employer responsibility. Amounts are integer cents; only the coinsurance
// product is computed in decimal and rounded to the nearest cent.
func ComputeBreakdown(in BreakdownInput) (*BreakdownResult, error) {
	if in.ClaimAmount < 0 {
		return nil, &domain.InvalidClaimError{
			Operation: "compute_breakdown",
			Message:   fmt.Sprintf("claim amount %d is negative", in.ClaimAmount),
		}
	}
	if in.Overage < 0 || in.Overage > in.ClaimAmount {
		return nil, &domain.InvalidClaimError{
			Operation: "compute_breakdown",
			Message:   fmt.Sprintf("overage %d outside [0, %d]", in.Overage, in.ClaimAmount),
		}
	}
	if !in.YTD.Complete() {
		return nil, &domain.IncompleteYTDError{Snapshot: in.YTD}
	}

	res := &BreakdownResult{OverageAmount: in.Overage}
	covered := in.ClaimAmount - in.Overage
	working := covered
	oopRemaining := oopRemaining(in)

	// Deductible
	if !in.CostShare.IgnoreDeductible {
		dedRemaining := deductibleRemaining(in)
		applied := minInt64(working, dedRemaining)
		if applied > oopRemaining {
			applied = oopRemaining
			res.OOPMaxReached = true
		}
		res.DeductibleApplied = applied
		working -= applied
		oopRemaining -= applied
	}

	// Cost share on what the deductible did not absorb
	switch {
	case in.CostShare.Copay != nil:
		share := minInt64(working, maxInt64(*in.CostShare.Copay, 0))
		if share > oopRemaining {
			share = oopRemaining
			res.OOPMaxReached = true
		}
		res.CopayApplied = share
	case in.CostShare.Coinsurance != nil:
		share := coinsuranceShare(working, in.CostShare)
		if share > oopRemaining {
			share = oopRemaining
			res.OOPMaxReached = true
		}
		res.CoinsuranceApplied = share
	}

	res.OOPApplied = res.DeductibleApplied + res.CopayApplied + res.CoinsuranceApplied
	res.TotalMemberResponsibility = clampInt64(res.OOPApplied, 0, covered)
	res.TotalEmployerResponsibility = in.ClaimAmount - res.TotalMemberResponsibility - in.Overage

	ytd := in.YTD
	res.DeductibleRemaining = maxInt64(in.Coverage.IndividualDeductible-(ytd.IndividualDeductible.Amount+res.DeductibleApplied), 0)
	res.OOPRemaining = maxInt64(in.Coverage.IndividualOOP-(ytd.IndividualOOP.Amount+res.OOPApplied), 0)
	if in.IsFamilyPlan {
		res.FamilyDeductibleRemaining = maxInt64(in.Coverage.FamilyDeductible-(ytd.FamilyDeductible.Amount+res.DeductibleApplied), 0)
		res.FamilyOOPRemaining = maxInt64(in.Coverage.FamilyOOP-(ytd.FamilyOOP.Amount+res.OOPApplied), 0)
	}
	return res, nil
}

// deductibleRemaining is the deductible still owed before this claim. Family
// non-embedded plans only track the family deductible; embedded family plans
// are bounded by both the member's and the family's remainder.
func deductibleRemaining(in BreakdownInput) int64 {
	cov, ytd := in.Coverage, in.YTD
	ind := maxInt64(cov.IndividualDeductible-ytd.IndividualDeductible.Amount, 0)
	if !in.IsFamilyPlan {
		return ind
	}
	fam := maxInt64(cov.FamilyDeductible-ytd.FamilyDeductible.Amount, 0)
	if !cov.IsDeductibleEmbedded {
		return fam
	}
	return minInt64(ind, fam)
}

// oopRemaining is the out-of-pocket room left before this claim
func oopRemaining(in BreakdownInput) int64 {
	cov, ytd := in.Coverage, in.YTD
	ind := maxInt64(cov.IndividualOOP-ytd.IndividualOOP.Amount, 0)
	if !in.IsFamilyPlan {
		return ind
	}
	rem := maxInt64(cov.FamilyOOP-ytd.FamilyOOP.Amount, 0)
	if cov.IsOOPEmbedded {
		rem = minInt64(ind, rem)
	}
	if cov.MaxOOPPerCoveredIndividual != nil {
		rem = minInt64(rem, maxInt64(*cov.MaxOOPPerCoveredIndividual-ytd.IndividualOOP.Amount, 0))
	}
	return rem
}

// coinsuranceShare applies the coinsurance rate to amount, then the min/max bounds
func coinsuranceShare(amount int64, cs domain.EligibilityInfo) int64 {
	if amount <= 0 {
		return 0
	}
	share := decimal.NewFromInt(amount).Mul(*cs.Coinsurance).Round(0).IntPart()
	if cs.CoinsuranceMin != nil && share < *cs.CoinsuranceMin {
		share = *cs.CoinsuranceMin
	}
	if cs.CoinsuranceMax != nil && share > *cs.CoinsuranceMax {
		share = *cs.CoinsuranceMax
	}
	return clampInt64(share, 0, amount)
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func clampInt64(v, lo, hi int64) int64 {
	return maxInt64(lo, minInt64(v, hi))
}
