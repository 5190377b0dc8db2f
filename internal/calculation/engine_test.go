package calculation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/store"
	"github.com/samuel/go-metrics/metrics"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLogger records messages by level
type TestLogger struct {
	Messages map[string][]string
}

func (l *TestLogger) log(level, format string, args ...any) {
	if l.Messages == nil {
		l.Messages = make(map[string][]string)
	}
	l.Messages[level] = append(l.Messages[level], fmt.Sprintf(format, args...))
}

func (l *TestLogger) Debugf(format string, args ...any) { l.log("debug", format, args...) }
func (l *TestLogger) Infof(format string, args ...any)  { l.log("info", format, args...) }
func (l *TestLogger) Warnf(format string, args ...any)  { l.log("warn", format, args...) }
func (l *TestLogger) Errorf(format string, args ...any) { l.log("error", format, args...) }

var engineNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func engineDataset() *domain.Dataset {
	twenty := decimal.NewFromFloat(0.2)
	return &domain.Dataset{
		Policy: domain.DefaultComputationPolicy(),
		EmployerHealthPlans: []domain.EmployerHealthPlan{
			{
				ID:        1,
				Name:      "Acme PPO",
				CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				Coverage: []domain.EmployerHealthPlanCoverage{
					{
						PlanSize: domain.PlanSizeIndividual, CoverageType: domain.CoverageTypeMedical,
						IndividualDeductible: 100000, IndividualOOP: 300000,
					},
					{
						PlanSize: domain.PlanSizeFamily, CoverageType: domain.CoverageTypeMedical,
						IndividualDeductible: 100000, IndividualOOP: 300000,
						FamilyDeductible: 200000, FamilyOOP: 600000,
						IsDeductibleEmbedded: true, IsOOPEmbedded: true,
					},
				},
				CostSharings: []domain.EmployerHealthPlanCostSharing{
					{Category: domain.CategoryMedicalCare, Type: domain.CostSharingCoinsurance, Percent: &twenty},
					{Category: domain.CategoryConsultation, Type: domain.CostSharingCopayNoDeductible, AbsoluteAmount: int64Ptr(2000)},
				},
			},
		},
		MemberHealthPlans: []domain.MemberHealthPlan{
			{
				ID: 10, MemberID: 100, WalletID: 500, EmployerHealthPlanID: 1, SubscriberInsuranceID: "SUB-500",
				PatientFirstName: "Alex", PatientLastName: "Rivera", PlanSize: domain.PlanSizeFamily,
				PlanStartAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				ID: 11, MemberID: 101, WalletID: 500, EmployerHealthPlanID: 1, SubscriberInsuranceID: "SUB-500",
				PatientFirstName: "Sam", PatientLastName: "Rivera", PlanSize: domain.PlanSizeFamily,
				PlanStartAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				ID: 12, MemberID: 102, WalletID: 501, EmployerHealthPlanID: 1,
				PatientFirstName: "Jo", PatientLastName: "Park", PlanSize: domain.PlanSizeIndividual,
				PlanStartAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				ID: 13, MemberID: 103, WalletID: 502, EmployerHealthPlanID: 1,
				PatientFirstName: "Lee", PatientLastName: "Chen", PlanSize: domain.PlanSizeIndividual,
				PlanStartAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		Wallets: []domain.ReimbursementWallet{
			{ID: 500, MemberIDs: []int64{100, 101}, State: "QUALIFIED"},
			{ID: 501, MemberIDs: []int64{102}},
			{ID: 502, MemberIDs: []int64{103}, State: "DISQUALIFIED"},
		},
		GlobalProcedures: []domain.GlobalProcedure{
			{ID: "gp-ivf", Name: "IVF cycle", CostSharingCategory: domain.CategoryMedicalCare, Type: domain.ProcedureTypeMedical},
		},
		TreatmentProcedures: []domain.TreatmentProcedure{
			{ID: 1, MemberID: 100, WalletID: 500, GlobalProcedureID: "gp-ivf", Cost: 150000, ProcedureType: domain.ProcedureTypeMedical, StartDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
			{ID: 2, MemberID: 101, WalletID: 500, GlobalProcedureID: "gp-ivf", Cost: 150000, ProcedureType: domain.ProcedureTypeMedical, StartDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)},
			{ID: 3, MemberID: 103, WalletID: 502, GlobalProcedureID: "gp-ivf", Cost: 1000, ProcedureType: domain.ProcedureTypeMedical, StartDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)},
			{ID: 4, MemberID: 100, WalletID: 500, GlobalProcedureID: "gp-unknown", Cost: 1000, ProcedureType: domain.ProcedureTypeMedical, StartDate: time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)},
		},
		ReimbursementRequests: []domain.ReimbursementRequest{
			{ID: 1, MemberID: 102, WalletID: 501, Amount: 5000, CostSharingCategory: domain.CategoryConsultation, ProcedureType: domain.ProcedureTypeMedical, ServiceStartDate: time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func newTestEngine(t *testing.T) (*CalculationEngine, *store.MemoryStore) {
	t.Helper()
	ds := engineDataset()
	ms := store.NewMemoryStore(ds)
	engine := NewCalculationEngine(Collaborators{
		Plans:       ms,
		Procedures:  ms,
		Catalog:     ms,
		Breakdowns:  ms,
		Ledger:      ms,
		Eligibility: ms,
	}, ds.Policy)
	engine.Now = func() time.Time { return engineNow }
	return engine, ms
}

func TestNewCalculationEngine(t *testing.T) {
	engine, _ := newTestEngine(t)
	assert.NotNil(t, engine.Coverage)
	assert.NotNil(t, engine.MemberPlans)
	assert.NotNil(t, engine.YTD)
	assert.IsType(t, NopLogger{}, engine.Logger)
}

func TestCalculationEngine_SetLogger(t *testing.T) {
	engine, _ := newTestEngine(t)

	customLogger := &TestLogger{}
	engine.SetLogger(customLogger)
	assert.Equal(t, customLogger, engine.Logger)

	engine.SetLogger(nil)
	assert.IsType(t, NopLogger{}, engine.Logger)
}

func TestCalculateForProcedure_FamilyAccumulates(t *testing.T) {
	engine, ms := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.EffectiveVersion)
	assert.Equal(t, int64(100000), first.DeductibleApplied)
	assert.Equal(t, int64(10000), first.CoinsuranceApplied)
	assert.Equal(t, int64(110000), first.TotalMemberResponsibility)
	assert.Equal(t, int64(40000), first.TotalEmployerResponsibility)
	assert.Equal(t, int64(100000), first.FamilyDeductibleRemaining)
	assert.Equal(t, domain.PlanSizeFamily, first.PlanSize)
	assert.Equal(t, engineNow, first.CreatedAt)

	// Second family member: individual deductible still open, family has 100000 left
	second, err := engine.CalculateForProcedure(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), second.DeductibleApplied)
	assert.Equal(t, int64(0), second.FamilyDeductibleRemaining)
	assert.Equal(t, int64(600000-220000), second.FamilyOOPRemaining)

	assert.Len(t, ms.Breakdowns(), 2)
}

func TestCalculateForProcedure_FamilyNonEmbedded(t *testing.T) {
	ds := engineDataset()
	family := &ds.EmployerHealthPlans[0].Coverage[1]
	family.IsDeductibleEmbedded = false
	family.IsOOPEmbedded = false
	ms := store.NewMemoryStore(ds)
	engine := NewCalculationEngine(Collaborators{
		Plans: ms, Procedures: ms, Catalog: ms, Breakdowns: ms, Ledger: ms, Eligibility: ms,
	}, ds.Policy)
	ctx := context.Background()

	// Member 100 draws 150000 from the shared family deductible
	first, err := engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), first.DeductibleApplied)
	assert.Equal(t, int64(50000), first.FamilyDeductibleRemaining)

	res, err := engine.Resolve(ctx, ClaimContext{
		MemberID:      101,
		ServiceDate:   time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC),
		Category:      domain.CategoryMedicalCare,
		ProcedureType: domain.ProcedureTypeMedical,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.YTD.IndividualDeductible.Amount, "member 101 has no spend of their own")
	assert.Equal(t, int64(150000), res.YTD.FamilyDeductible.Amount)

	// Member 101 only owes what is left of the family deductible
	second, err := engine.CalculateForProcedure(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), second.DeductibleApplied)
	assert.Equal(t, int64(20000), second.CoinsuranceApplied)
	assert.Equal(t, int64(70000), second.TotalMemberResponsibility)
	assert.Equal(t, int64(0), second.FamilyDeductibleRemaining)
	assert.Equal(t, int64(50000), second.DeductibleRemaining, "individual figure counts only member 101's spend")
	assert.Equal(t, int64(600000-220000), second.FamilyOOPRemaining)
}

func TestCalculateForProcedure_LedgerUsesServiceYear(t *testing.T) {
	ds := engineDataset()
	ds.MemberHealthPlans[0].PlanStartAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ds.TreatmentProcedures = append(ds.TreatmentProcedures, domain.TreatmentProcedure{
		ID: 5, MemberID: 100, WalletID: 500, GlobalProcedureID: "gp-ivf", Cost: 150000,
		ProcedureType: domain.ProcedureTypeMedical, StartDate: time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC),
	})
	ms := store.NewMemoryStore(ds)
	engine := NewCalculationEngine(Collaborators{
		Plans: ms, Procedures: ms, Catalog: ms, Breakdowns: ms, Ledger: ms, Eligibility: ms,
	}, ds.Policy)
	engine.Now = func() time.Time { return time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	december, err := engine.CalculateForProcedure(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), december.DeductibleApplied)
	assert.True(t, time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC).Equal(december.ServiceDate))
	assert.Equal(t, 2025, december.CreatedAt.Year())

	claim := ClaimContext{
		MemberID:      100,
		ServiceDate:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		Category:      domain.CategoryMedicalCare,
		ProcedureType: domain.ProcedureTypeMedical,
	}
	res, err := engine.Resolve(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.YTD.IndividualDeductible.Amount, "December service does not count toward the next plan year")
	assert.Equal(t, int64(0), res.YTD.FamilyOOP.Amount)
	assert.False(t, res.InLedgerScope(december))

	claim.ServiceDate = time.Date(2024, 12, 28, 0, 0, 0, 0, time.UTC)
	res, err = engine.Resolve(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), res.YTD.IndividualDeductible.Amount)
	assert.True(t, res.InLedgerScope(december))

	january, err := engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), january.DeductibleApplied)
}

func TestCalculateForProcedure_LedgerScopedToPlan(t *testing.T) {
	ds := engineDataset()
	midYear := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	endOfJune := midYear.Add(-time.Second)
	successor := ds.EmployerHealthPlans[0]
	successor.ID = 2
	successor.Name = "Acme HMO"
	ds.EmployerHealthPlans = append(ds.EmployerHealthPlans, successor)
	ds.MemberHealthPlans[0].PlanEndAt = &endOfJune
	ds.MemberHealthPlans = append(ds.MemberHealthPlans, domain.MemberHealthPlan{
		ID: 14, MemberID: 100, WalletID: 500, EmployerHealthPlanID: 2, SubscriberInsuranceID: "SUB-500",
		PatientFirstName: "Alex", PatientLastName: "Rivera", PlanSize: domain.PlanSizeFamily, PlanStartAt: midYear,
	})
	ds.TreatmentProcedures = append(ds.TreatmentProcedures, domain.TreatmentProcedure{
		ID: 6, MemberID: 100, WalletID: 500, GlobalProcedureID: "gp-ivf", Cost: 150000,
		ProcedureType: domain.ProcedureTypeMedical, StartDate: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	})
	ms := store.NewMemoryStore(ds)
	engine := NewCalculationEngine(Collaborators{
		Plans: ms, Procedures: ms, Catalog: ms, Breakdowns: ms, Ledger: ms, Eligibility: ms,
	}, ds.Policy)
	ctx := context.Background()

	spring, err := engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), spring.MemberHealthPlanID)
	assert.Equal(t, int64(1), spring.EmployerHealthPlanID)
	assert.Equal(t, "SUB-500", spring.PolicyID)
	assert.Equal(t, int64(100000), spring.DeductibleApplied)

	// The successor plan starts its own accumulators
	summer, err := engine.CalculateForProcedure(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, int64(14), summer.MemberHealthPlanID)
	assert.Equal(t, int64(2), summer.EmployerHealthPlanID)
	assert.Equal(t, int64(100000), summer.DeductibleApplied)
	assert.Equal(t, int64(110000), summer.TotalMemberResponsibility)

	// Recalculating the spring claim sees only plan 1 spend, less its own
	again, err := engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, spring.TotalMemberResponsibility, again.TotalMemberResponsibility)
}

func TestCalculateForProcedure_RecalculationAppendsVersion(t *testing.T) {
	engine, ms := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)
	_, err = engine.CalculateForProcedure(ctx, 2)
	require.NoError(t, err)

	again, err := engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, again.EffectiveVersion)
	assert.NotEqual(t, first.ID, again.ID)
	assert.Equal(t, first.DeductibleApplied, again.DeductibleApplied, "a claim is not counted against itself")
	assert.Equal(t, first.TotalMemberResponsibility, again.TotalMemberResponsibility)

	latest, err := ms.LatestForProcedure(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, again.ID, latest.ID)

	all := ms.Breakdowns()
	require.Len(t, all, 3)
	assert.Equal(t, 1, all[0].EffectiveVersion, "earlier versions are never modified")
}

func TestCalculateForReimbursement(t *testing.T) {
	engine, ms := newTestEngine(t)

	cb, err := engine.CalculateForReimbursement(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, cb.ReimbursementRequestID)
	assert.Nil(t, cb.TreatmentProcedureID)
	assert.Equal(t, int64(0), cb.DeductibleApplied)
	assert.Equal(t, int64(2000), cb.CopayApplied)
	assert.Equal(t, int64(2000), cb.TotalMemberResponsibility)
	assert.Equal(t, int64(3000), cb.TotalEmployerResponsibility)
	assert.Equal(t, int64(100000), cb.DeductibleRemaining)

	latest, err := ms.LatestForReimbursement(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, cb.ID, latest.ID)
}

func TestCalculateForProcedure_Errors(t *testing.T) {
	engine, ms := newTestEngine(t)
	logger := &TestLogger{}
	engine.SetLogger(logger)
	reg := metrics.NewRegistry()
	engine.RegisterMetrics(reg)
	ctx := context.Background()

	_, err := engine.CalculateForProcedure(ctx, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISQUALIFIED")

	_, err = engine.CalculateForProcedure(ctx, 4)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "unknown global procedure")

	_, err = engine.CalculateForProcedure(ctx, 99)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = engine.CalculateForProcedure(ctx, 1)
	require.NoError(t, err)

	assert.Len(t, ms.Breakdowns(), 1, "failed calculations persist nothing")
	assert.Len(t, logger.Messages["warn"], 2)
	assert.Len(t, logger.Messages["error"], 1)
	assert.Len(t, logger.Messages["info"], 1)

	counts := map[string]uint64{}
	require.NoError(t, reg.Do(func(name string, value interface{}) error {
		counts[name] = value.(*metrics.Counter).Count()
		return nil
	}))
	assert.Equal(t, uint64(1), counts["calculate/succeeded"])
	assert.Equal(t, uint64(3), counts["calculate/failed"])
}

func TestResolve_SinglePlanPolicy(t *testing.T) {
	ds := engineDataset()
	ds.MemberHealthPlans[0].PlanStartAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ms := store.NewMemoryStore(ds)

	effective := NewCalculationEngine(Collaborators{Plans: ms, Ledger: ms}, domain.DefaultComputationPolicy())
	claim := ClaimContext{MemberID: 100, ServiceDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Category: domain.CategoryMedicalCare}
	_, err := effective.Resolve(context.Background(), claim)
	assert.True(t, errors.Is(err, domain.ErrNotFound), "plan is not effective yet")

	policy := domain.DefaultComputationPolicy()
	policy.MemberPlanLookup = domain.LookupSinglePlan
	single := NewCalculationEngine(Collaborators{Plans: ms, Ledger: ms}, policy)
	res, err := single.Resolve(context.Background(), claim)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.MemberPlan.ID)
	assert.Equal(t, domain.CoverageTypeMedical, res.CoverageType)
	assert.Equal(t, int64(200000), res.Coverage.FamilyDeductible)
	assert.True(t, res.YTD.Complete())
}
