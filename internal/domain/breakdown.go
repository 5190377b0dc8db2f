package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EligibilityInfo is the member's cost share for a category
type EligibilityInfo struct {
	Copay            *int64           `json:"copay,omitempty"`       // cents
	Coinsurance      *decimal.Decimal `json:"coinsurance,omitempty"` // fraction
	CoinsuranceMin   *int64           `json:"coinsurance_min,omitempty"`
	CoinsuranceMax   *int64           `json:"coinsurance_max,omitempty"`
	IgnoreDeductible bool             `json:"ignore_deductible"`
}

// PlanCoverage is the set of limits that apply to a member for one claim
type PlanCoverage struct {
	IndividualDeductible       int64  `json:"individual_deductible"`
	IndividualOOP              int64  `json:"individual_oop"`
	FamilyDeductible           int64  `json:"family_deductible"`
	FamilyOOP                  int64  `json:"family_oop"`
	MaxOOPPerCoveredIndividual *int64 `json:"max_oop_per_covered_individual,omitempty"`
	IsDeductibleEmbedded       bool   `json:"is_deductible_embedded"`
	IsOOPEmbedded              bool   `json:"is_oop_embedded"`
}

// YTDFigure is one year-to-date amount. When the source could not supply the
// amount, Known is false and Placeholder describes what was missing.
type YTDFigure struct {
	Amount      int64  `json:"amount"`
	Known       bool   `json:"known"`
	Placeholder string `json:"placeholder,omitempty"`
}

// KnownYTD wraps a numeric year-to-date amount
func KnownYTD(amount int64) YTDFigure {
	return YTDFigure{Amount: amount, Known: true}
}

// UnknownYTD records a year-to-date amount the source could not provide
func UnknownYTD(placeholder string) YTDFigure {
	return YTDFigure{Placeholder: placeholder}
}

func (f YTDFigure) String() string {
	if !f.Known {
		return f.Placeholder
	}
	return fmt.Sprintf("%d", f.Amount)
}

// YTDSnapshot is the deductible and OOP already consumed in the plan year
type YTDSnapshot struct {
	IndividualDeductible YTDFigure `json:"individual_deductible"`
	IndividualOOP        YTDFigure `json:"individual_oop"`
	FamilyDeductible     YTDFigure `json:"family_deductible"`
	FamilyOOP            YTDFigure `json:"family_oop"`
}

// Complete reports whether every figure is numeric
func (s YTDSnapshot) Complete() bool {
	return s.IndividualDeductible.Known && s.IndividualOOP.Known &&
		s.FamilyDeductible.Known && s.FamilyOOP.Known
}

// YTDSpend is the summed spend returned by the benefits-verification ledger
type YTDSpend struct {
	IndividualYTDDeductible int64 `json:"ind_ytd_deductible"`
	IndividualYTDOOP        int64 `json:"ind_ytd_oop"`
	FamilyYTDDeductible     int64 `json:"family_ytd_deductible"`
	FamilyYTDOOP            int64 `json:"family_ytd_oop"`
}

// EligibilityResponse is the remote eligibility check for an rx-integrated plan.
// Any field may be absent in the payer's response.
type EligibilityResponse struct {
	IndividualDeductible          *int64 `yaml:"individual_deductible,omitempty" json:"individual_deductible,omitempty"`
	IndividualDeductibleRemaining *int64 `yaml:"individual_deductible_remaining,omitempty" json:"individual_deductible_remaining,omitempty"`
	IndividualOOP                 *int64 `yaml:"individual_oop,omitempty" json:"individual_oop,omitempty"`
	IndividualOOPRemaining        *int64 `yaml:"individual_oop_remaining,omitempty" json:"individual_oop_remaining,omitempty"`
	FamilyDeductible              *int64 `yaml:"family_deductible,omitempty" json:"family_deductible,omitempty"`
	FamilyDeductibleRemaining     *int64 `yaml:"family_deductible_remaining,omitempty" json:"family_deductible_remaining,omitempty"`
	FamilyOOP                     *int64 `yaml:"family_oop,omitempty" json:"family_oop,omitempty"`
	FamilyOOPRemaining            *int64 `yaml:"family_oop_remaining,omitempty" json:"family_oop_remaining,omitempty"`
}

// CostBreakdown is the persisted result of one calculation. Rows are never
// updated; a recalculation appends a row with the next EffectiveVersion.
// ServiceDate and the plan and policy ids scope the row in the spend ledger.
type CostBreakdown struct {
	ID                          uuid.UUID    `json:"id"`
	TreatmentProcedureID        *int64       `json:"treatment_procedure_id,omitempty"`
	ReimbursementRequestID      *int64       `json:"reimbursement_request_id,omitempty"`
	MemberID                    int64        `json:"member_id"`
	WalletID                    int64        `json:"wallet_id"`
	EffectiveVersion            int          `json:"effective_version"`
	TotalMemberResponsibility   int64        `json:"total_member_responsibility"`
	TotalEmployerResponsibility int64        `json:"total_employer_responsibility"`
	DeductibleApplied           int64        `json:"deductible"`
	CoinsuranceApplied          int64        `json:"coinsurance"`
	CopayApplied                int64        `json:"copay"`
	OverageAmount               int64        `json:"overage_amount"`
	OOPApplied                  int64        `json:"oop_applied"`
	OOPMaxReached               bool         `json:"oop_max_reached"`
	DeductibleRemaining         int64        `json:"deductible_remaining"`
	OOPRemaining                int64        `json:"oop_remaining"`
	FamilyDeductibleRemaining   int64        `json:"family_deductible_remaining"`
	FamilyOOPRemaining          int64        `json:"family_oop_remaining"`
	Tier                        Tier         `json:"tier"`
	CoverageType                CoverageType `json:"coverage_type"`
	PlanSize                    PlanSize     `json:"plan_size"`
	ServiceDate                 time.Time    `json:"service_date"`
	MemberHealthPlanID          int64        `json:"member_health_plan_id"`
	EmployerHealthPlanID        int64        `json:"employer_health_plan_id"`
	PolicyID                    string       `json:"policy_id,omitempty"`
	CreatedAt                   time.Time    `json:"created_at"`
}

// ClaimKey identifies the claim a breakdown belongs to
func (cb *CostBreakdown) ClaimKey() string {
	if cb.TreatmentProcedureID != nil {
		return fmt.Sprintf("procedure:%d", *cb.TreatmentProcedureID)
	}
	if cb.ReimbursementRequestID != nil {
		return fmt.Sprintf("reimbursement:%d", *cb.ReimbursementRequestID)
	}
	return ""
}
