package compare

import (
	"context"
	"testing"
	"time"

	"github.com/rgehrsitz/costshare/internal/calculation"
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serviceDate = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

// compareDataset has one migrated plan whose coverage rows disagree with its
// legacy limits, and one plan created in 2025 that never got coverage rows
func compareDataset() *domain.Dataset {
	twenty := decimal.RequireFromString("0.2")
	planYear := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	coinsurance := []domain.EmployerHealthPlanCostSharing{
		{Category: domain.CategoryMedicalCare, Type: domain.CostSharingCoinsurance, Percent: &twenty},
	}

	return &domain.Dataset{
		Policy: domain.DefaultComputationPolicy(),
		EmployerHealthPlans: []domain.EmployerHealthPlan{
			{
				ID: 1, Name: "Migrated PPO", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				IndDeductibleLimit: 50000, IndOOPMaxLimit: 200000,
				Coverage: []domain.EmployerHealthPlanCoverage{
					{PlanSize: domain.PlanSizeIndividual, CoverageType: domain.CoverageTypeMedical,
						IndividualDeductible: 100000, IndividualOOP: 300000},
				},
				CostSharings: coinsurance,
			},
			{
				ID: 2, Name: "Unmigrated PPO", CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				IndDeductibleLimit: 40000, IndOOPMaxLimit: 100000,
				CostSharings: coinsurance,
			},
		},
		MemberHealthPlans: []domain.MemberHealthPlan{
			{ID: 10, MemberID: 100, WalletID: 500, EmployerHealthPlanID: 1,
				PatientFirstName: "Alex", PatientLastName: "Rivera", PlanSize: domain.PlanSizeIndividual, PlanStartAt: planYear},
			{ID: 20, MemberID: 200, WalletID: 600, EmployerHealthPlanID: 2,
				PatientFirstName: "Sam", PatientLastName: "Okafor", PlanSize: domain.PlanSizeIndividual, PlanStartAt: planYear},
		},
		Wallets: []domain.ReimbursementWallet{
			{ID: 500, MemberIDs: []int64{100}, State: "QUALIFIED"},
			{ID: 600, MemberIDs: []int64{200}, State: "QUALIFIED"},
		},
		GlobalProcedures: []domain.GlobalProcedure{
			{ID: "gp-ivf", Name: "IVF cycle", CostSharingCategory: domain.CategoryMedicalCare, Type: domain.ProcedureTypeMedical},
		},
		TreatmentProcedures: []domain.TreatmentProcedure{
			{ID: 1, MemberID: 100, WalletID: 500, GlobalProcedureID: "gp-ivf",
				Cost: 150000, ProcedureType: domain.ProcedureTypeMedical, StartDate: serviceDate},
			{ID: 2, MemberID: 200, WalletID: 600, GlobalProcedureID: "gp-ivf",
				Cost: 60000, ProcedureType: domain.ProcedureTypeMedical, StartDate: serviceDate},
		},
		ReimbursementRequests: []domain.ReimbursementRequest{
			{ID: 1, MemberID: 100, WalletID: 500, Amount: 10000, CostSharingCategory: domain.CategoryMedicalCare,
				ProcedureType: domain.ProcedureTypeMedical, ServiceStartDate: serviceDate},
		},
	}
}

func newTestCompareEngine(t *testing.T) (*CompareEngine, *store.MemoryStore) {
	t.Helper()
	ds := compareDataset()
	ms := store.NewMemoryStore(ds)
	collab := calculation.Collaborators{
		Plans: ms, Procedures: ms, Catalog: ms, Breakdowns: ms, Ledger: ms, Eligibility: ms,
	}
	return NewCompareEngine(collab, ds.Policy), ms
}

func TestCompare_LegacyLimitsTemplate(t *testing.T) {
	ce, ms := newTestCompareEngine(t)

	compSet, err := ce.Compare(context.Background(), CompareOptions{
		Template:       "legacy_limits",
		Procedures:     []int64{1, 2},
		Reimbursements: []int64{1},
	})
	require.NoError(t, err)
	require.Len(t, compSet.Results, 3)
	assert.Equal(t, "legacy_limits", compSet.AlternativeName)
	assert.Equal(t, domain.CoverageFromLegacyLimits, compSet.AlternativePolicy.CoverageSource)
	assert.Equal(t, domain.CoverageFromRows, compSet.BasePolicy.CoverageSource)

	// coverage rows: 100000 deductible + 20% of 50000; legacy: 50000 + 20% of 100000
	proc1 := compSet.Results[0]
	assert.Equal(t, "procedure:1", proc1.Claim)
	require.False(t, proc1.Base.Failed())
	require.False(t, proc1.Alternative.Failed())
	assert.Equal(t, int64(110000), proc1.Base.Breakdown.TotalMemberResponsibility)
	assert.Equal(t, int64(70000), proc1.Alternative.Breakdown.TotalMemberResponsibility)
	assert.Equal(t, int64(-40000), proc1.MemberDiff)
	assert.Equal(t, int64(40000), proc1.EmployerDiff)
	assert.Equal(t, int64(-50000), proc1.DeductibleDiff)
	assert.Equal(t, int64(-40000), proc1.OOPDiff)
	assert.True(t, proc1.Changed())
	assert.Equal(t, 1, proc1.Base.Breakdown.EffectiveVersion)

	// plans without coverage rows use the flat limits on both paths
	proc2 := compSet.Results[1]
	assert.Equal(t, int64(44000), proc2.Base.Breakdown.TotalMemberResponsibility)
	assert.False(t, proc2.Changed())

	reimb := compSet.Results[2]
	assert.Equal(t, "reimbursement:1", reimb.Claim)
	assert.Equal(t, int64(10000), reimb.Alternative.Breakdown.TotalMemberResponsibility)
	assert.False(t, reimb.Changed())

	assert.Equal(t, 1, compSet.Changed())
	assert.Equal(t, []string{
		"1 of 3 claims change under legacy_limits",
		"Member responsibility falls by $400.00 across claims priced under both policies",
	}, compSet.Recommendations)

	assert.Empty(t, ms.Breakdowns(), "comparison must not persist breakdowns")
}

func TestCompare_MigrationCutoffFailures(t *testing.T) {
	ce, _ := newTestCompareEngine(t)

	compSet, err := ce.Compare(context.Background(), CompareOptions{
		Transforms: []string{"migration_cutoff:date=2024-06-01"},
		Procedures: []int64{1, 2},
	})
	require.NoError(t, err)
	require.Len(t, compSet.Results, 2)
	assert.Equal(t, "migration_cutoff", compSet.AlternativeName)

	assert.False(t, compSet.Results[0].Changed())

	proc2 := compSet.Results[1]
	assert.False(t, proc2.Base.Failed())
	require.True(t, proc2.Alternative.Failed())
	assert.Contains(t, proc2.Alternative.Error, "plan 2")
	assert.Zero(t, proc2.MemberDiff)
	assert.True(t, proc2.Changed())

	assert.Contains(t, compSet.Recommendations, "1 claims fail only under migration_cutoff; fix their plan configuration before switching")
}

func TestCompare_VersionsFollowStoredBreakdowns(t *testing.T) {
	ce, ms := newTestCompareEngine(t)

	engine := calculation.NewCalculationEngine(ce.Collaborators, ce.BasePolicy)
	_, err := engine.CalculateForProcedure(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, ms.Breakdowns(), 1)

	compSet, err := ce.Compare(context.Background(), CompareOptions{
		Template:   "legacy_limits",
		Procedures: []int64{1},
	})
	require.NoError(t, err)
	require.Len(t, compSet.Results, 1)

	// the stored version is excluded from its own ytd, so pricing is unchanged
	res := compSet.Results[0]
	assert.Equal(t, 2, res.Base.Breakdown.EffectiveVersion)
	assert.Equal(t, int64(110000), res.Base.Breakdown.TotalMemberResponsibility)
	assert.Equal(t, int64(70000), res.Alternative.Breakdown.TotalMemberResponsibility)
	assert.Len(t, ms.Breakdowns(), 1)
}

func TestCompare_Errors(t *testing.T) {
	ce, _ := newTestCompareEngine(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		options CompareOptions
		wantErr string
	}{
		{name: "no alternative", options: CompareOptions{Procedures: []int64{1}}, wantErr: "needs a template"},
		{name: "unknown template", options: CompareOptions{Template: "postpone_1yr"}, wantErr: "template postpone_1yr not found"},
		{name: "bad transform", options: CompareOptions{Transforms: []string{"coverage_source:source=spreadsheet"}}, wantErr: "unknown coverage source"},
		{name: "unparsable transform", options: CompareOptions{Transforms: []string{"coverage_source"}}, wantErr: "expected 'name:params'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ce.Compare(ctx, tt.options)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := ce.Compare(cancelled, CompareOptions{Template: "legacy_limits", Procedures: []int64{1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAlternativePolicy_TemplateThenTransforms(t *testing.T) {
	ce, _ := newTestCompareEngine(t)

	policy, name, description, err := ce.AlternativePolicy(CompareOptions{
		Template:   "legacy_limits",
		Transforms: []string{"member_plan_lookup:lookup=single_plan"},
	})
	require.NoError(t, err)
	assert.Equal(t, "legacy_limits+member_plan_lookup", name)
	assert.Contains(t, description, "single_plan")
	assert.Equal(t, domain.CoverageFromLegacyLimits, policy.CoverageSource)
	assert.Equal(t, domain.LookupSinglePlan, policy.MemberPlanLookup)
	assert.Equal(t, domain.LookupEffectiveDated, ce.BasePolicy.MemberPlanLookup)
}
