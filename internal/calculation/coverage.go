package calculation

import (
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
)

// CoverageResolver determines the deductible and OOP limits that apply to a claim
type CoverageResolver struct {
	Policy domain.ComputationPolicy
}

// NewCoverageResolver creates a resolver for the given policy
func NewCoverageResolver(policy domain.ComputationPolicy) *CoverageResolver {
	return &CoverageResolver{Policy: policy}
}

// IsPlanTiered reports whether any coverage row on the plan declares a tier
func IsPlanTiered(plan *domain.EmployerHealthPlan) bool {
	for _, c := range plan.Coverage {
		if c.Tier != domain.TierNone {
			return true
		}
	}
	return false
}

// ResolveTier returns PREMIUM when the clinic location has a tier record for the
// plan covering date, SECONDARY otherwise. Untiered plans resolve to TierNone.
func ResolveTier(
	plan *domain.EmployerHealthPlan,
	clinicLocationID int64,
	date time.Time,
	records []domain.FertilityClinicLocationEmployerHealthPlanTier,
) domain.Tier {
	if !IsPlanTiered(plan) {
		return domain.TierNone
	}
	for i := range records {
		r := &records[i]
		if r.EmployerHealthPlanID == plan.ID && r.FertilityClinicLocationID == clinicLocationID && r.Contains(date) {
			return domain.TierPremium
		}
	}
	return domain.TierSecondary
}

// CoverageTypeFor picks RX limits for pharmacy claims unless the plan folds
// prescriptions into medical
func CoverageTypeFor(plan *domain.EmployerHealthPlan, procedureType domain.ProcedureType) domain.CoverageType {
	if procedureType == domain.ProcedureTypePharmacy && !plan.RxIntegrated {
		return domain.CoverageTypeRx
	}
	return domain.CoverageTypeMedical
}

// GetCoverage resolves the plan coverage for a plan size, tier and coverage type
func (cr *CoverageResolver) GetCoverage(
	plan *domain.EmployerHealthPlan,
	planSize domain.PlanSize,
	tier domain.Tier,
	coverageType domain.CoverageType,
) (domain.PlanCoverage, error) {
	if cr.Policy.CoverageSource == domain.CoverageFromLegacyLimits {
		return cr.legacyLimitCoverage(plan, planSize, coverageType), nil
	}

	if !plan.HasCoverageRows() {
		if cutoff := cr.Policy.MigrationCutoff; cutoff != nil && plan.CreatedAt.After(*cutoff) {
			return domain.PlanCoverage{}, &domain.TieredConfigurationError{
				PlanID:  plan.ID,
				Message: "plan created after coverage migration has no coverage rows",
			}
		}
		return flatLimits(plan, coverageType), nil
	}

	tiered := IsPlanTiered(plan)
	if tiered && tier == domain.TierNone {
		tier = domain.TierSecondary
	}
	if !tiered {
		tier = domain.TierNone
	}

	var matches []*domain.EmployerHealthPlanCoverage
	for i := range plan.Coverage {
		c := &plan.Coverage[i]
		if c.PlanSize != planSize || c.CoverageType != coverageType {
			continue
		}
		if tiered && c.Tier != tier {
			continue
		}
		matches = append(matches, c)
	}
	if len(matches) != 1 {
		return domain.PlanCoverage{}, &domain.TieredConfigurationError{
			PlanID:       plan.ID,
			PlanSize:     planSize,
			CoverageType: coverageType,
			Tier:         tier,
			Matches:      len(matches),
		}
	}

	c := matches[0]
	coverage := domain.PlanCoverage{
		IndividualDeductible: c.IndividualDeductible,
		IndividualOOP:        c.IndividualOOP,
		FamilyDeductible:     c.FamilyDeductible,
		FamilyOOP:            c.FamilyOOP,
		IsDeductibleEmbedded: c.IsDeductibleEmbedded,
		IsOOPEmbedded:        c.IsOOPEmbedded,
	}
	if planSize == domain.PlanSizeEmployeePlus && c.MaxOOPPerCoveredIndividual != nil {
		v := *c.MaxOOPPerCoveredIndividual
		coverage.MaxOOPPerCoveredIndividual = &v
	}
	return coverage, nil
}

// legacyLimitCoverage is the migration-window path: limits come from the flat
// plan fields and embedding from the plan flags
func (cr *CoverageResolver) legacyLimitCoverage(
	plan *domain.EmployerHealthPlan,
	planSize domain.PlanSize,
	coverageType domain.CoverageType,
) domain.PlanCoverage {
	coverage := flatLimits(plan, coverageType)
	coverage.IsDeductibleEmbedded = plan.IsDeductibleEmbedded
	coverage.IsOOPEmbedded = plan.IsOOPEmbedded
	if planSize == domain.PlanSizeEmployeePlus && cr.Policy.EmployeePlusEmbedding == domain.EmbeddingAlwaysEmbedded {
		coverage.IsDeductibleEmbedded = true
		coverage.IsOOPEmbedded = true
	}
	return coverage
}

func flatLimits(plan *domain.EmployerHealthPlan, coverageType domain.CoverageType) domain.PlanCoverage {
	if coverageType == domain.CoverageTypeRx {
		return domain.PlanCoverage{
			IndividualDeductible: plan.RxIndDeductibleLimit,
			IndividualOOP:        plan.RxIndOOPMaxLimit,
			FamilyDeductible:     plan.RxFamDeductibleLimit,
			FamilyOOP:            plan.RxFamOOPMaxLimit,
		}
	}
	return domain.PlanCoverage{
		IndividualDeductible: plan.IndDeductibleLimit,
		IndividualOOP:        plan.IndOOPMaxLimit,
		FamilyDeductible:     plan.FamDeductibleLimit,
		FamilyOOP:            plan.FamOOPMaxLimit,
	}
}

// GetIRSLimit returns the IRS minimum deductible for the year and scope
func GetIRSLimit(table []domain.IRSMinimumDeductible, year int, isIndividual bool) (int64, error) {
	for _, row := range table {
		if row.Year != year {
			continue
		}
		if isIndividual {
			return row.IndividualAmount, nil
		}
		return row.FamilyAmount, nil
	}
	return 0, &domain.NoIrsDeductibleFoundError{Year: year, IsIndividual: isIndividual}
}

// ApplyIRSMinimum raises the embedded individual deductible of an HDHP family
// plan to the IRS family minimum. Other plans are returned unchanged.
func ApplyIRSMinimum(
	coverage domain.PlanCoverage,
	plan *domain.EmployerHealthPlan,
	planSize domain.PlanSize,
	year int,
	table []domain.IRSMinimumDeductible,
) (domain.PlanCoverage, error) {
	if !plan.IsHDHP || !planSize.IsFamily() || !coverage.IsDeductibleEmbedded {
		return coverage, nil
	}
	minimum, err := GetIRSLimit(table, year, false)
	if err != nil {
		return coverage, err
	}
	if coverage.IndividualDeductible < minimum {
		coverage.IndividualDeductible = minimum
	}
	return coverage, nil
}
