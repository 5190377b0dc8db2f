package calculation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
)

// EligibilityVerifier fetches the payer's accumulators for rx-integrated plans
type EligibilityVerifier interface {
	Verify(ctx context.Context, memberPlan *domain.MemberHealthPlan, plan *domain.EmployerHealthPlan) (*domain.EligibilityResponse, error)
}

// SpendLedger sums the deductible and OOP recorded internally for a policy
type SpendLedger interface {
	GetPolicyID(ctx context.Context, memberPlan *domain.MemberHealthPlan) (string, error)
	YTDInfoFromSpends(ctx context.Context, policyID string, memberPlan *domain.MemberHealthPlan, firstName, lastName string, asOf time.Time) (*domain.YTDSpend, error)
}

// YTDAccumulator computes year-to-date deductible and OOP consumption
type YTDAccumulator struct {
	Eligibility EligibilityVerifier
	Ledger      SpendLedger
}

// NewYTDAccumulator creates an accumulator over the two spend sources
func NewYTDAccumulator(eligibility EligibilityVerifier, ledger SpendLedger) *YTDAccumulator {
	return &YTDAccumulator{Eligibility: eligibility, Ledger: ledger}
}

// GetYTD returns the member's and family's consumption as of the given date.
// Rx-integrated plans read the payer's eligibility response; all others sum the
// internal spend ledger.
func (ya *YTDAccumulator) GetYTD(
	ctx context.Context,
	memberPlan *domain.MemberHealthPlan,
	plan *domain.EmployerHealthPlan,
	asOf time.Time,
) (domain.YTDSnapshot, error) {
	if plan.RxIntegrated {
		return ya.fromEligibility(ctx, memberPlan, plan)
	}
	return ya.fromLedger(ctx, memberPlan, asOf)
}

func (ya *YTDAccumulator) fromEligibility(
	ctx context.Context,
	memberPlan *domain.MemberHealthPlan,
	plan *domain.EmployerHealthPlan,
) (domain.YTDSnapshot, error) {
	if ya.Eligibility == nil {
		return domain.YTDSnapshot{}, fmt.Errorf("no eligibility verifier configured for rx-integrated plan %d", plan.ID)
	}
	resp, err := ya.Eligibility.Verify(ctx, memberPlan, plan)
	if err != nil {
		return domain.YTDSnapshot{}, fmt.Errorf("eligibility check for member plan %d: %w", memberPlan.ID, err)
	}
	return domain.YTDSnapshot{
		IndividualDeductible: spentFrom("individual deductible", resp.IndividualDeductible, resp.IndividualDeductibleRemaining),
		IndividualOOP:        spentFrom("individual oop", resp.IndividualOOP, resp.IndividualOOPRemaining),
		FamilyDeductible:     spentFrom("family deductible", resp.FamilyDeductible, resp.FamilyDeductibleRemaining),
		FamilyOOP:            spentFrom("family oop", resp.FamilyOOP, resp.FamilyOOPRemaining),
	}, nil
}

// spentFrom derives consumption as total minus remaining
func spentFrom(label string, total, remaining *int64) domain.YTDFigure {
	switch {
	case total == nil && remaining == nil:
		return domain.UnknownYTD(fmt.Sprintf("missing %s and %s remaining", label, label))
	case total == nil:
		return domain.UnknownYTD(fmt.Sprintf("missing %s", label))
	case remaining == nil:
		return domain.UnknownYTD(fmt.Sprintf("missing %s remaining", label))
	}
	spent := *total - *remaining
	if spent < 0 {
		spent = 0
	}
	return domain.KnownYTD(spent)
}

func (ya *YTDAccumulator) fromLedger(
	ctx context.Context,
	memberPlan *domain.MemberHealthPlan,
	asOf time.Time,
) (domain.YTDSnapshot, error) {
	if ya.Ledger == nil {
		return domain.YTDSnapshot{}, fmt.Errorf("no spend ledger configured")
	}
	first := strings.TrimSpace(memberPlan.PatientFirstName)
	last := strings.TrimSpace(memberPlan.PatientLastName)
	if first == "" || last == "" {
		return domain.YTDSnapshot{}, &domain.NoPatientNameFoundError{MemberHealthPlanID: memberPlan.ID}
	}

	policyID, err := ya.Ledger.GetPolicyID(ctx, memberPlan)
	if err != nil {
		return domain.YTDSnapshot{}, fmt.Errorf("policy id for member plan %d: %w", memberPlan.ID, err)
	}
	spend, err := ya.Ledger.YTDInfoFromSpends(ctx, policyID, memberPlan, first, last, asOf)
	if err != nil {
		return domain.YTDSnapshot{}, fmt.Errorf("ytd spend for policy %s: %w", policyID, err)
	}
	return domain.YTDSnapshot{
		IndividualDeductible: domain.KnownYTD(spend.IndividualYTDDeductible),
		IndividualOOP:        domain.KnownYTD(spend.IndividualYTDOOP),
		FamilyDeductible:     domain.KnownYTD(spend.FamilyYTDDeductible),
		FamilyOOP:            domain.KnownYTD(spend.FamilyYTDOOP),
	}, nil
}
