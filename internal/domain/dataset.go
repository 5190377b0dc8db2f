package domain

import (
	"time"
)

// MemberPlanLookup selects how a member's health plan is found for a date
type MemberPlanLookup string

const (
	// LookupSinglePlan uses the member's only plan, ignoring effective dates
	LookupSinglePlan MemberPlanLookup = "single_plan"
	// LookupEffectiveDated picks the plan whose effective window contains the date
	LookupEffectiveDated MemberPlanLookup = "effective_dated"
)

// CoverageSource selects how plan limits are resolved
type CoverageSource string

const (
	CoverageFromRows         CoverageSource = "coverage_rows"
	CoverageFromLegacyLimits CoverageSource = "legacy_limits"
)

// EmployeePlusEmbedding selects how EMPLOYEE_PLUS embedding flags are derived
// on the legacy-limits path
type EmployeePlusEmbedding string

const (
	EmbeddingFromConfiguration EmployeePlusEmbedding = "configured"
	EmbeddingAlwaysEmbedded    EmployeePlusEmbedding = "always_embedded"
)

// ComputationPolicy gathers the behavior switches that used to be runtime flags
type ComputationPolicy struct {
	MemberPlanLookup      MemberPlanLookup      `yaml:"member_plan_lookup" json:"member_plan_lookup"`
	CoverageSource        CoverageSource        `yaml:"coverage_source" json:"coverage_source"`
	EmployeePlusEmbedding EmployeePlusEmbedding `yaml:"employee_plus_embedding" json:"employee_plus_embedding"`
	MigrationCutoff       *time.Time            `yaml:"migration_cutoff,omitempty" json:"migration_cutoff,omitempty"` // plans created after this must have coverage rows
}

// DefaultComputationPolicy returns the post-migration behavior
func DefaultComputationPolicy() ComputationPolicy {
	return ComputationPolicy{
		MemberPlanLookup:      LookupEffectiveDated,
		CoverageSource:        CoverageFromRows,
		EmployeePlusEmbedding: EmbeddingFromConfiguration,
	}
}

// Dataset is the full configuration and claim data the engine reads
type Dataset struct {
	Policy                ComputationPolicy                               `yaml:"policy" json:"policy"`
	EmployerHealthPlans   []EmployerHealthPlan                            `yaml:"employer_health_plans" json:"employer_health_plans"`
	MemberHealthPlans     []MemberHealthPlan                              `yaml:"member_health_plans" json:"member_health_plans"`
	Wallets               []ReimbursementWallet                           `yaml:"wallets" json:"wallets"`
	ClinicTiers           []FertilityClinicLocationEmployerHealthPlanTier `yaml:"clinic_tiers" json:"clinic_tiers"`
	IRSMinimumDeductibles []IRSMinimumDeductible                          `yaml:"irs_minimum_deductibles" json:"irs_minimum_deductibles"`
	GlobalProcedures      []GlobalProcedure                               `yaml:"global_procedures" json:"global_procedures"`
	TreatmentProcedures   []TreatmentProcedure                            `yaml:"treatment_procedures" json:"treatment_procedures"`
	ReimbursementRequests []ReimbursementRequest                          `yaml:"reimbursement_requests" json:"reimbursement_requests"`
	Bills                 []MoneyMovementBill                             `yaml:"bills" json:"bills"`
	Eligibility           map[int64]EligibilityResponse                   `yaml:"eligibility" json:"eligibility"` // keyed by member health plan id
}
