package config

import (
	"fmt"
	"os"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// InputParser handles parsing of dataset files
type InputParser struct{}

// NewInputParser creates a new input parser
func NewInputParser() *InputParser {
	return &InputParser{}
}

// LoadFromFile loads a dataset from a YAML or JSON file
func (ip *InputParser) LoadFromFile(filename string) (*domain.Dataset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return ip.Parse(data)
}

// Parse decodes and validates a dataset
func (ip *InputParser) Parse(data []byte) (*domain.Dataset, error) {
	ds := domain.Dataset{Policy: domain.DefaultComputationPolicy()}
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	applyPolicyDefaults(&ds.Policy)

	if err := ip.ValidateDataset(&ds); err != nil {
		return nil, fmt.Errorf("dataset validation failed: %w", err)
	}
	return &ds, nil
}

func applyPolicyDefaults(p *domain.ComputationPolicy) {
	def := domain.DefaultComputationPolicy()
	if p.MemberPlanLookup == "" {
		p.MemberPlanLookup = def.MemberPlanLookup
	}
	if p.CoverageSource == "" {
		p.CoverageSource = def.CoverageSource
	}
	if p.EmployeePlusEmbedding == "" {
		p.EmployeePlusEmbedding = def.EmployeePlusEmbedding
	}
}

// ValidateDataset checks the configuration and cross references of a dataset
func (ip *InputParser) ValidateDataset(ds *domain.Dataset) error {
	if err := ValidatePolicy(&ds.Policy); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	plans := make(map[int64]*domain.EmployerHealthPlan, len(ds.EmployerHealthPlans))
	for i := range ds.EmployerHealthPlans {
		p := &ds.EmployerHealthPlans[i]
		if _, dup := plans[p.ID]; dup {
			return fmt.Errorf("employer health plan %d is defined twice", p.ID)
		}
		if err := ip.validateEmployerPlan(p); err != nil {
			return fmt.Errorf("employer health plan %d (%s) validation failed: %w", p.ID, p.Name, err)
		}
		plans[p.ID] = p
	}

	wallets := make(map[int64]bool, len(ds.Wallets))
	for _, w := range ds.Wallets {
		wallets[w.ID] = true
	}

	for i := range ds.MemberHealthPlans {
		mp := &ds.MemberHealthPlans[i]
		if err := ip.validateMemberPlan(mp, plans, wallets); err != nil {
			return fmt.Errorf("member health plan %d validation failed: %w", mp.ID, err)
		}
	}

	for _, t := range ds.ClinicTiers {
		if _, ok := plans[t.EmployerHealthPlanID]; !ok {
			return fmt.Errorf("clinic tier %d references unknown employer health plan %d", t.ID, t.EmployerHealthPlanID)
		}
		if t.EndDate != nil && t.EndDate.Before(t.StartDate) {
			return fmt.Errorf("clinic tier %d ends before it starts", t.ID)
		}
	}

	years := make(map[int]bool, len(ds.IRSMinimumDeductibles))
	for _, irs := range ds.IRSMinimumDeductibles {
		if years[irs.Year] {
			return fmt.Errorf("IRS minimum deductible for %d is defined twice", irs.Year)
		}
		if irs.IndividualAmount < 0 || irs.FamilyAmount < 0 {
			return fmt.Errorf("IRS minimum deductible for %d cannot be negative", irs.Year)
		}
		years[irs.Year] = true
	}

	catalog := make(map[string]bool, len(ds.GlobalProcedures))
	for _, gp := range ds.GlobalProcedures {
		if gp.ID == "" {
			return fmt.Errorf("global procedure id is required")
		}
		catalog[gp.ID] = true
	}

	for i := range ds.TreatmentProcedures {
		tp := &ds.TreatmentProcedures[i]
		if err := validateProcedure(tp); err != nil {
			return fmt.Errorf("treatment procedure %d validation failed: %w", tp.ID, err)
		}
	}
	for _, rr := range ds.ReimbursementRequests {
		if rr.Amount < 0 {
			return fmt.Errorf("reimbursement request %d: amount cannot be negative", rr.ID)
		}
		if rr.CostSharingCategory == "" {
			return fmt.Errorf("reimbursement request %d: cost sharing category is required", rr.ID)
		}
	}
	return nil
}

// ValidatePolicy checks that every policy switch holds a known value
func ValidatePolicy(p *domain.ComputationPolicy) error {
	switch p.MemberPlanLookup {
	case domain.LookupSinglePlan, domain.LookupEffectiveDated:
	default:
		return fmt.Errorf("member_plan_lookup must be '%s' or '%s'", domain.LookupSinglePlan, domain.LookupEffectiveDated)
	}
	switch p.CoverageSource {
	case domain.CoverageFromRows, domain.CoverageFromLegacyLimits:
	default:
		return fmt.Errorf("coverage_source must be '%s' or '%s'", domain.CoverageFromRows, domain.CoverageFromLegacyLimits)
	}
	switch p.EmployeePlusEmbedding {
	case domain.EmbeddingFromConfiguration, domain.EmbeddingAlwaysEmbedded:
	default:
		return fmt.Errorf("employee_plus_embedding must be '%s' or '%s'", domain.EmbeddingFromConfiguration, domain.EmbeddingAlwaysEmbedded)
	}
	return nil
}

// validateEmployerPlan validates limits, coverage rows and cost sharings
func (ip *InputParser) validateEmployerPlan(p *domain.EmployerHealthPlan) error {
	legacy := []int64{
		p.IndDeductibleLimit, p.IndOOPMaxLimit, p.FamDeductibleLimit, p.FamOOPMaxLimit,
		p.RxIndDeductibleLimit, p.RxIndOOPMaxLimit, p.RxFamDeductibleLimit, p.RxFamOOPMaxLimit,
	}
	for _, v := range legacy {
		if v < 0 {
			return fmt.Errorf("plan limits cannot be negative")
		}
	}

	type key struct {
		size domain.PlanSize
		ct   domain.CoverageType
		tier domain.Tier
	}
	seen := make(map[key]bool, len(p.Coverage))
	for i := range p.Coverage {
		c := &p.Coverage[i]
		if !c.PlanSize.Valid() {
			return fmt.Errorf("coverage %d: unknown plan size %q", i, c.PlanSize)
		}
		if !c.CoverageType.Valid() {
			return fmt.Errorf("coverage %d: unknown coverage type %q", i, c.CoverageType)
		}
		if c.Tier < domain.TierNone || c.Tier > domain.TierSecondary {
			return fmt.Errorf("coverage %d: unknown tier %d", i, c.Tier)
		}
		k := key{c.PlanSize, c.CoverageType, c.Tier}
		if seen[k] {
			return fmt.Errorf("coverage %d: duplicate row for plan_size=%s coverage_type=%s tier=%s", i, c.PlanSize, c.CoverageType, c.Tier)
		}
		seen[k] = true

		if c.IndividualDeductible < 0 || c.IndividualOOP < 0 || c.FamilyDeductible < 0 || c.FamilyOOP < 0 {
			return fmt.Errorf("coverage %d: limits cannot be negative", i)
		}
		if c.IndividualDeductible > c.IndividualOOP {
			return fmt.Errorf("coverage %d: individual deductible exceeds individual OOP max", i)
		}
		if c.PlanSize.IsFamily() && c.FamilyDeductible > c.FamilyOOP {
			return fmt.Errorf("coverage %d: family deductible exceeds family OOP max", i)
		}
		if c.MaxOOPPerCoveredIndividual != nil {
			if c.PlanSize != domain.PlanSizeEmployeePlus {
				return fmt.Errorf("coverage %d: max OOP per covered individual applies only to %s", i, domain.PlanSizeEmployeePlus)
			}
			if *c.MaxOOPPerCoveredIndividual < 0 {
				return fmt.Errorf("coverage %d: max OOP per covered individual cannot be negative", i)
			}
		}
	}

	for i := range p.CostSharings {
		if err := validateCostSharing(&p.CostSharings[i]); err != nil {
			return fmt.Errorf("cost sharing %d (%s): %w", i, p.CostSharings[i].Category, err)
		}
	}
	return nil
}

func validateCostSharing(cs *domain.EmployerHealthPlanCostSharing) error {
	if cs.Category == "" {
		return fmt.Errorf("category is required")
	}
	if !cs.Type.Valid() {
		return fmt.Errorf("unknown cost sharing type %q", cs.Type)
	}
	if cs.Type.UsesPercent() {
		if cs.Percent == nil {
			return fmt.Errorf("%s requires percent", cs.Type)
		}
		for _, p := range []*decimal.Decimal{cs.Percent, cs.SecondTierPercent} {
			if p != nil && (p.LessThan(decimal.Zero) || p.GreaterThan(decimal.NewFromInt(1))) {
				return fmt.Errorf("percent must be between 0 and 1")
			}
		}
		return nil
	}
	if cs.AbsoluteAmount == nil {
		return fmt.Errorf("%s requires absolute_amount", cs.Type)
	}
	if *cs.AbsoluteAmount < 0 || (cs.SecondTierAbsoluteAmount != nil && *cs.SecondTierAbsoluteAmount < 0) {
		return fmt.Errorf("absolute amount cannot be negative")
	}
	return nil
}

func (ip *InputParser) validateMemberPlan(
	mp *domain.MemberHealthPlan,
	plans map[int64]*domain.EmployerHealthPlan,
	wallets map[int64]bool,
) error {
	if _, ok := plans[mp.EmployerHealthPlanID]; !ok {
		return fmt.Errorf("unknown employer health plan %d", mp.EmployerHealthPlanID)
	}
	if !wallets[mp.WalletID] {
		return fmt.Errorf("unknown wallet %d", mp.WalletID)
	}
	if !mp.PlanSize.Valid() {
		return fmt.Errorf("unknown plan size %q", mp.PlanSize)
	}
	if mp.PlanStartAt.IsZero() {
		return fmt.Errorf("plan start date is required")
	}
	if mp.PlanEndAt != nil && mp.PlanEndAt.Before(mp.PlanStartAt) {
		return fmt.Errorf("plan ends before it starts")
	}
	return nil
}

func validateProcedure(tp *domain.TreatmentProcedure) error {
	if tp.Cost < 0 {
		return fmt.Errorf("cost cannot be negative")
	}
	if tp.Overage < 0 || tp.Overage > tp.Cost {
		return fmt.Errorf("overage must be between 0 and cost")
	}
	if tp.GlobalProcedureID == "" {
		return fmt.Errorf("global procedure id is required")
	}
	if tp.StartDate.IsZero() {
		return fmt.Errorf("start date is required")
	}
	if tp.CompletedDate != nil && tp.CompletedDate.Before(tp.StartDate) {
		return fmt.Errorf("completed before it started")
	}
	return nil
}
