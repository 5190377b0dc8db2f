package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PlanSize is the coverage size a member enrolled under
type PlanSize string

const (
	PlanSizeIndividual   PlanSize = "INDIVIDUAL"
	PlanSizeFamily       PlanSize = "FAMILY"
	PlanSizeEmployeePlus PlanSize = "EMPLOYEE_PLUS"
)

// IsFamily reports whether more than one covered individual shares the plan
func (ps PlanSize) IsFamily() bool {
	return ps == PlanSizeFamily || ps == PlanSizeEmployeePlus
}

// Valid reports whether ps is a known plan size
func (ps PlanSize) Valid() bool {
	switch ps {
	case PlanSizeIndividual, PlanSizeFamily, PlanSizeEmployeePlus:
		return true
	}
	return false
}

// CoverageType selects medical or prescription limits
type CoverageType string

const (
	CoverageTypeMedical CoverageType = "MEDICAL"
	CoverageTypeRx      CoverageType = "RX"
)

// Valid reports whether ct is a known coverage type
func (ct CoverageType) Valid() bool {
	return ct == CoverageTypeMedical || ct == CoverageTypeRx
}

// Tier is the clinic pricing tier of a tiered plan. The zero value means untiered.
type Tier int

const (
	TierNone      Tier = 0
	TierPremium   Tier = 1
	TierSecondary Tier = 2
)

func (t Tier) String() string {
	switch t {
	case TierPremium:
		return "PREMIUM"
	case TierSecondary:
		return "SECONDARY"
	default:
		return "NONE"
	}
}

// MarshalText writes the tier name
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts a tier name or its number
func (t *Tier) UnmarshalText(text []byte) error {
	switch v := strings.ToUpper(strings.TrimSpace(string(text))); v {
	case "", "NONE":
		*t = TierNone
	case "PREMIUM":
		*t = TierPremium
	case "SECONDARY":
		*t = TierSecondary
	default:
		n, err := strconv.Atoi(v)
		if err != nil || n < int(TierNone) || n > int(TierSecondary) {
			return fmt.Errorf("invalid tier %q", string(text))
		}
		*t = Tier(n)
	}
	return nil
}

// CostSharingType is the kind of rule a cost-sharing row carries
type CostSharingType string

const (
	CostSharingCopay                   CostSharingType = "COPAY"
	CostSharingCoinsurance             CostSharingType = "COINSURANCE"
	CostSharingCopayNoDeductible       CostSharingType = "COPAY_NO_DEDUCTIBLE"
	CostSharingCoinsuranceNoDeductible CostSharingType = "COINSURANCE_NO_DEDUCTIBLE"
	CostSharingCoinsuranceMin          CostSharingType = "COINSURANCE_MIN"
	CostSharingCoinsuranceMax          CostSharingType = "COINSURANCE_MAX"
)

// Valid reports whether t is a known cost-sharing type
func (t CostSharingType) Valid() bool {
	switch t {
	case CostSharingCopay, CostSharingCoinsurance, CostSharingCopayNoDeductible,
		CostSharingCoinsuranceNoDeductible, CostSharingCoinsuranceMin, CostSharingCoinsuranceMax:
		return true
	}
	return false
}

// UsesPercent reports whether the rule is expressed as a rate rather than an amount
func (t CostSharingType) UsesPercent() bool {
	return t == CostSharingCoinsurance || t == CostSharingCoinsuranceNoDeductible
}

// CostSharingCategory groups procedures that share a cost-sharing rule
type CostSharingCategory string

const (
	CategoryConsultation           CostSharingCategory = "CONSULTATION"
	CategoryMedicalCare            CostSharingCategory = "MEDICAL_CARE"
	CategoryDiagnosticMedical      CostSharingCategory = "DIAGNOSTIC_MEDICAL"
	CategoryGenericPrescriptions   CostSharingCategory = "GENERIC_PRESCRIPTIONS"
	CategorySpecialtyPrescriptions CostSharingCategory = "SPECIALTY_PRESCRIPTIONS"
)

// EmployerHealthPlan is an employer's benefit plan configuration.
//
// Plans created before the coverage-row migration only carry the flat legacy
// limits below; newer plans describe their limits in Coverage.
type EmployerHealthPlan struct {
	ID           int64     `yaml:"id" json:"id"`
	Name         string    `yaml:"name" json:"name"`
	CreatedAt    time.Time `yaml:"created_at" json:"created_at"`
	IsHDHP       bool      `yaml:"is_hdhp" json:"is_hdhp"`
	RxIntegrated bool      `yaml:"rx_integrated" json:"rx_integrated"`

	// Deprecated flat limits
	IndDeductibleLimit   int64 `yaml:"ind_deductible_limit" json:"ind_deductible_limit"`
	IndOOPMaxLimit       int64 `yaml:"ind_oop_max_limit" json:"ind_oop_max_limit"`
	FamDeductibleLimit   int64 `yaml:"fam_deductible_limit" json:"fam_deductible_limit"`
	FamOOPMaxLimit       int64 `yaml:"fam_oop_max_limit" json:"fam_oop_max_limit"`
	RxIndDeductibleLimit int64 `yaml:"rx_ind_deductible_limit" json:"rx_ind_deductible_limit"`
	RxIndOOPMaxLimit     int64 `yaml:"rx_ind_oop_max_limit" json:"rx_ind_oop_max_limit"`
	RxFamDeductibleLimit int64 `yaml:"rx_fam_deductible_limit" json:"rx_fam_deductible_limit"`
	RxFamOOPMaxLimit     int64 `yaml:"rx_fam_oop_max_limit" json:"rx_fam_oop_max_limit"`
	IsDeductibleEmbedded bool  `yaml:"is_deductible_embedded" json:"is_deductible_embedded"`
	IsOOPEmbedded        bool  `yaml:"is_oop_embedded" json:"is_oop_embedded"`

	Coverage     []EmployerHealthPlanCoverage    `yaml:"coverage,omitempty" json:"coverage,omitempty"`
	CostSharings []EmployerHealthPlanCostSharing `yaml:"cost_sharings,omitempty" json:"cost_sharings,omitempty"`
}

// HasCoverageRows reports whether the plan was configured after the coverage-row migration
func (p *EmployerHealthPlan) HasCoverageRows() bool {
	return len(p.Coverage) > 0
}

// EmployerHealthPlanCoverage holds the limits for one (plan size, coverage type, tier) key
type EmployerHealthPlanCoverage struct {
	ID                         int64        `yaml:"id" json:"id"`
	PlanSize                   PlanSize     `yaml:"plan_size" json:"plan_size"`
	CoverageType               CoverageType `yaml:"coverage_type" json:"coverage_type"`
	Tier                       Tier         `yaml:"tier,omitempty" json:"tier,omitempty"`
	IndividualDeductible       int64        `yaml:"individual_deductible" json:"individual_deductible"`
	IndividualOOP              int64        `yaml:"individual_oop" json:"individual_oop"`
	FamilyDeductible           int64        `yaml:"family_deductible" json:"family_deductible"`
	FamilyOOP                  int64        `yaml:"family_oop" json:"family_oop"`
	MaxOOPPerCoveredIndividual *int64       `yaml:"max_oop_per_covered_individual,omitempty" json:"max_oop_per_covered_individual,omitempty"` // EMPLOYEE_PLUS only
	IsDeductibleEmbedded       bool         `yaml:"is_deductible_embedded" json:"is_deductible_embedded"`
	IsOOPEmbedded              bool         `yaml:"is_oop_embedded" json:"is_oop_embedded"`
}

// EmployerHealthPlanCostSharing is one cost-sharing rule for a category
type EmployerHealthPlanCostSharing struct {
	ID                       int64               `yaml:"id" json:"id"`
	Category                 CostSharingCategory `yaml:"category" json:"category"`
	Type                     CostSharingType     `yaml:"type" json:"type"`
	Percent                  *decimal.Decimal    `yaml:"percent,omitempty" json:"percent,omitempty"`                 // fraction, 0.05 == 5%
	AbsoluteAmount           *int64              `yaml:"absolute_amount,omitempty" json:"absolute_amount,omitempty"` // cents
	SecondTierPercent        *decimal.Decimal    `yaml:"second_tier_percent,omitempty" json:"second_tier_percent,omitempty"`
	SecondTierAbsoluteAmount *int64              `yaml:"second_tier_absolute_amount,omitempty" json:"second_tier_absolute_amount,omitempty"`
}

// FertilityClinicLocationEmployerHealthPlanTier marks a clinic location as premium
// tier for a plan within an effective window
type FertilityClinicLocationEmployerHealthPlanTier struct {
	ID                         int64      `yaml:"id" json:"id"`
	FertilityClinicLocationID  int64      `yaml:"fertility_clinic_location_id" json:"fertility_clinic_location_id"`
	EmployerHealthPlanID       int64      `yaml:"employer_health_plan_id" json:"employer_health_plan_id"`
	StartDate                  time.Time  `yaml:"start_date" json:"start_date"`
	EndDate                    *time.Time `yaml:"end_date,omitempty" json:"end_date,omitempty"`
}

// Contains reports whether date falls inside the record's effective window (inclusive)
func (t *FertilityClinicLocationEmployerHealthPlanTier) Contains(date time.Time) bool {
	d := truncateDay(date)
	if d.Before(truncateDay(t.StartDate)) {
		return false
	}
	return t.EndDate == nil || !d.After(truncateDay(*t.EndDate))
}

// IRSMinimumDeductible is the IRS HDHP minimum deductible for a plan year
type IRSMinimumDeductible struct {
	Year             int   `yaml:"year" json:"year"`
	IndividualAmount int64 `yaml:"individual_amount" json:"individual_amount"`
	FamilyAmount     int64 `yaml:"family_amount" json:"family_amount"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
