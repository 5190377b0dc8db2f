package calculation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/samuel/go-metrics/metrics"
)

// PlanRepository reads plan configuration
type PlanRepository interface {
	EmployerHealthPlan(ctx context.Context, id int64) (*domain.EmployerHealthPlan, error)
	MemberHealthPlans(ctx context.Context, memberID int64) ([]domain.MemberHealthPlan, error)
	ClinicTiers(ctx context.Context, planID int64) ([]domain.FertilityClinicLocationEmployerHealthPlanTier, error)
	IRSMinimumDeductibles(ctx context.Context) ([]domain.IRSMinimumDeductible, error)
	Wallet(ctx context.Context, id int64) (*domain.ReimbursementWallet, error)
}

// ProcedureRepository reads claims
type ProcedureRepository interface {
	TreatmentProcedure(ctx context.Context, id int64) (*domain.TreatmentProcedure, error)
	ReimbursementRequest(ctx context.Context, id int64) (*domain.ReimbursementRequest, error)
	CompletedProcedures(ctx context.Context, start, end time.Time) ([]domain.TreatmentProcedure, error)
}

// GlobalProcedureClient looks up procedure catalog metadata
type GlobalProcedureClient interface {
	GetProceduresByIDs(ctx context.Context, ids []string) ([]domain.GlobalProcedure, error)
}

// BreakdownStore persists cost breakdowns append-only. AppendCostBreakdown
// assigns the next EffectiveVersion for the claim.
type BreakdownStore interface {
	AppendCostBreakdown(ctx context.Context, cb *domain.CostBreakdown) error
	LatestForProcedure(ctx context.Context, procedureID int64) (*domain.CostBreakdown, error)
	LatestForReimbursement(ctx context.Context, requestID int64) (*domain.CostBreakdown, error)
}

// Collaborators bundles the data sources the engine reads and writes
type Collaborators struct {
	Plans       PlanRepository
	Procedures  ProcedureRepository
	Catalog     GlobalProcedureClient
	Breakdowns  BreakdownStore
	Ledger      SpendLedger
	Eligibility EligibilityVerifier
}

// ClaimContext describes the claim whose inputs are being resolved
type ClaimContext struct {
	MemberID         int64
	ServiceDate      time.Time
	Category         domain.CostSharingCategory
	ProcedureType    domain.ProcedureType
	ClinicLocationID int64
	MemberPlan       *domain.MemberHealthPlan // optional, skips the lookup
}

// Resolution is the set of resolved inputs for one claim
type Resolution struct {
	MemberPlan   *domain.MemberHealthPlan
	EmployerPlan *domain.EmployerHealthPlan
	ServiceDate  time.Time
	PolicyID     string
	Tier         domain.Tier
	CoverageType domain.CoverageType
	Coverage     domain.PlanCoverage
	CostShare    domain.EligibilityInfo
	YTD          domain.YTDSnapshot
}

// CalculationEngine orchestrates the resolvers and the breakdown calculator
type CalculationEngine struct {
	Collaborators
	Policy      domain.ComputationPolicy
	Coverage    *CoverageResolver
	MemberPlans MemberPlanResolver
	YTD         *YTDAccumulator
	Logger      Logger
	Now         func() time.Time

	statSucceeded *metrics.Counter
	statFailed    *metrics.Counter
}

// NewCalculationEngine creates an engine for the given collaborators and policy
func NewCalculationEngine(c Collaborators, policy domain.ComputationPolicy) *CalculationEngine {
	return &CalculationEngine{
		Collaborators: c,
		Policy:        policy,
		Coverage:      NewCoverageResolver(policy),
		MemberPlans:   NewMemberPlanResolver(policy.MemberPlanLookup),
		YTD:           NewYTDAccumulator(c.Eligibility, c.Ledger),
		Logger:        NopLogger{},
		Now:           time.Now,
		statSucceeded: metrics.NewCounter(),
		statFailed:    metrics.NewCounter(),
	}
}

// SetLogger replaces the engine logger; nil installs NopLogger
func (ce *CalculationEngine) SetLogger(l Logger) {
	if l == nil {
		ce.Logger = NopLogger{}
		return
	}
	ce.Logger = l
}

// RegisterMetrics publishes the engine counters into a registry
func (ce *CalculationEngine) RegisterMetrics(reg metrics.Registry) {
	if reg == nil {
		return
	}
	reg.Add("calculate/succeeded", ce.statSucceeded)
	reg.Add("calculate/failed", ce.statFailed)
}

// Resolve runs the coverage, cost-share and YTD resolvers for a claim
func (ce *CalculationEngine) Resolve(ctx context.Context, claim ClaimContext) (*Resolution, error) {
	memberPlan := claim.MemberPlan
	if memberPlan == nil {
		var err error
		if memberPlan, err = ce.ResolveMemberPlan(ctx, claim.MemberID, claim.ServiceDate); err != nil {
			return nil, err
		}
	}

	plan, err := ce.Plans.EmployerHealthPlan(ctx, memberPlan.EmployerHealthPlanID)
	if err != nil {
		return nil, fmt.Errorf("employer health plan %d: %w", memberPlan.EmployerHealthPlanID, err)
	}

	tier := domain.TierNone
	if IsPlanTiered(plan) {
		records, err := ce.Plans.ClinicTiers(ctx, plan.ID)
		if err != nil {
			return nil, fmt.Errorf("clinic tiers for plan %d: %w", plan.ID, err)
		}
		tier = ResolveTier(plan, claim.ClinicLocationID, claim.ServiceDate, records)
	}

	coverageType := CoverageTypeFor(plan, claim.ProcedureType)
	coverage, err := ce.Coverage.GetCoverage(plan, memberPlan.PlanSize, tier, coverageType)
	if err != nil {
		return nil, err
	}
	if plan.IsHDHP {
		irs, err := ce.Plans.IRSMinimumDeductibles(ctx)
		if err != nil {
			return nil, fmt.Errorf("irs minimum deductibles: %w", err)
		}
		if coverage, err = ApplyIRSMinimum(coverage, plan, memberPlan.PlanSize, claim.ServiceDate.Year(), irs); err != nil {
			return nil, err
		}
	}

	costShare, err := GetCostShare(plan.CostSharings, claim.Category, tier)
	if err != nil {
		return nil, err
	}

	policyID, err := ce.policyID(ctx, memberPlan)
	if err != nil {
		return nil, err
	}
	ytd, err := ce.YTD.GetYTD(ctx, memberPlan, plan, claim.ServiceDate)
	if err != nil {
		return nil, err
	}

	ce.Logger.Debugf("resolved member=%d plan=%d tier=%s coverage_type=%s plan_size=%s",
		claim.MemberID, plan.ID, tier, coverageType, memberPlan.PlanSize)

	return &Resolution{
		MemberPlan:   memberPlan,
		EmployerPlan: plan,
		ServiceDate:  claim.ServiceDate,
		PolicyID:     policyID,
		Tier:         tier,
		CoverageType: coverageType,
		Coverage:     coverage,
		CostShare:    costShare,
		YTD:          ytd,
	}, nil
}

// policyID is the ledger key stamped on breakdowns; empty when no ledger is configured
func (ce *CalculationEngine) policyID(ctx context.Context, memberPlan *domain.MemberHealthPlan) (string, error) {
	if ce.YTD == nil || ce.YTD.Ledger == nil {
		return "", nil
	}
	id, err := ce.YTD.Ledger.GetPolicyID(ctx, memberPlan)
	if err != nil {
		return "", fmt.Errorf("policy id for member plan %d: %w", memberPlan.ID, err)
	}
	return id, nil
}

// ResolveMemberPlan finds the member's plan on date using the policy's lookup strategy
func (ce *CalculationEngine) ResolveMemberPlan(ctx context.Context, memberID int64, date time.Time) (*domain.MemberHealthPlan, error) {
	plans, err := ce.Plans.MemberHealthPlans(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("member health plans for member %d: %w", memberID, err)
	}
	mp, err := ce.MemberPlans.Resolve(plans, date)
	if err != nil {
		return nil, fmt.Errorf("member %d: %w", memberID, err)
	}
	return mp, nil
}

// CalculateForProcedure computes and persists the cost breakdown for a treatment procedure
func (ce *CalculationEngine) CalculateForProcedure(ctx context.Context, procedureID int64) (*domain.CostBreakdown, error) {
	cb, err := ce.calculateForProcedure(ctx, procedureID)
	ce.record("procedure", procedureID, err)
	return cb, err
}

func (ce *CalculationEngine) calculateForProcedure(ctx context.Context, procedureID int64) (*domain.CostBreakdown, error) {
	proc, err := ce.Procedures.TreatmentProcedure(ctx, procedureID)
	if err != nil {
		return nil, fmt.Errorf("treatment procedure %d: %w", procedureID, err)
	}
	if err := ce.checkWallet(ctx, proc.WalletID); err != nil {
		return nil, err
	}

	gps, err := ce.Catalog.GetProceduresByIDs(ctx, []string{proc.GlobalProcedureID})
	if err != nil {
		return nil, fmt.Errorf("global procedure %s: %w", proc.GlobalProcedureID, err)
	}
	if len(gps) == 0 {
		return nil, fmt.Errorf("global procedure %s: %w", proc.GlobalProcedureID, domain.ErrNotFound)
	}

	res, err := ce.Resolve(ctx, ClaimContext{
		MemberID:         proc.MemberID,
		ServiceDate:      proc.StartDate,
		Category:         gps[0].CostSharingCategory,
		ProcedureType:    proc.ProcedureType,
		ClinicLocationID: proc.FertilityClinicLocationID,
	})
	if err != nil {
		return nil, err
	}
	prior, err := ce.Breakdowns.LatestForProcedure(ctx, proc.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("prior cost breakdown for procedure %d: %w", procedureID, err)
	}
	ce.excludePrior(res, prior)

	result, err := ComputeBreakdown(res.Input(proc.Cost, proc.Overage))
	if err != nil {
		return nil, err
	}

	id := proc.ID
	cb := ce.newCostBreakdown(result, res, proc.MemberID, proc.WalletID)
	cb.TreatmentProcedureID = &id
	if err := ce.Breakdowns.AppendCostBreakdown(ctx, cb); err != nil {
		return nil, fmt.Errorf("persist cost breakdown for procedure %d: %w", procedureID, err)
	}
	return cb, nil
}

// CalculateForReimbursement computes and persists the cost breakdown for a reimbursement request
func (ce *CalculationEngine) CalculateForReimbursement(ctx context.Context, requestID int64) (*domain.CostBreakdown, error) {
	cb, err := ce.calculateForReimbursement(ctx, requestID)
	ce.record("reimbursement", requestID, err)
	return cb, err
}

func (ce *CalculationEngine) calculateForReimbursement(ctx context.Context, requestID int64) (*domain.CostBreakdown, error) {
	rr, err := ce.Procedures.ReimbursementRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("reimbursement request %d: %w", requestID, err)
	}
	if err := ce.checkWallet(ctx, rr.WalletID); err != nil {
		return nil, err
	}

	res, err := ce.Resolve(ctx, ClaimContext{
		MemberID:      rr.MemberID,
		ServiceDate:   rr.ServiceStartDate,
		Category:      rr.CostSharingCategory,
		ProcedureType: rr.ProcedureType,
	})
	if err != nil {
		return nil, err
	}
	prior, err := ce.Breakdowns.LatestForReimbursement(ctx, rr.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("prior cost breakdown for reimbursement %d: %w", requestID, err)
	}
	ce.excludePrior(res, prior)

	result, err := ComputeBreakdown(res.Input(rr.Amount, 0))
	if err != nil {
		return nil, err
	}

	id := rr.ID
	cb := ce.newCostBreakdown(result, res, rr.MemberID, rr.WalletID)
	cb.ReimbursementRequestID = &id
	if err := ce.Breakdowns.AppendCostBreakdown(ctx, cb); err != nil {
		return nil, fmt.Errorf("persist cost breakdown for reimbursement %d: %w", requestID, err)
	}
	return cb, nil
}

// excludePrior removes a claim's own earlier breakdown from the resolved YTD
func (ce *CalculationEngine) excludePrior(res *Resolution, prior *domain.CostBreakdown) {
	if prior == nil {
		return
	}
	if res.ExcludeBreakdown(prior) {
		ce.Logger.Debugf("excluding version %d of %s from ytd", prior.EffectiveVersion, prior.ClaimKey())
	}
}

// Input builds the calculator input for a claim amount against the resolution
func (r *Resolution) Input(claimAmount, overage int64) BreakdownInput {
	return BreakdownInput{
		ClaimAmount:  claimAmount,
		Overage:      overage,
		Coverage:     r.Coverage,
		CostShare:    r.CostShare,
		YTD:          r.YTD,
		IsFamilyPlan: r.MemberPlan.PlanSize.IsFamily(),
	}
}

// ExcludeBreakdown subtracts a persisted breakdown from ledger-sourced YTD so a
// claim is not counted against itself. Eligibility-sourced and incomplete
// snapshots are left alone, as are breakdowns the ledger did not sum for this
// resolution. It reports whether anything was subtracted.
func (r *Resolution) ExcludeBreakdown(cb *domain.CostBreakdown) bool {
	if cb == nil || r.EmployerPlan.RxIntegrated || !r.YTD.Complete() || !r.InLedgerScope(cb) {
		return false
	}
	sub := func(f domain.YTDFigure, amount int64) domain.YTDFigure {
		return domain.KnownYTD(maxInt64(f.Amount-amount, 0))
	}
	r.YTD.IndividualDeductible = sub(r.YTD.IndividualDeductible, cb.DeductibleApplied)
	r.YTD.FamilyDeductible = sub(r.YTD.FamilyDeductible, cb.DeductibleApplied)
	r.YTD.IndividualOOP = sub(r.YTD.IndividualOOP, cb.OOPApplied)
	r.YTD.FamilyOOP = sub(r.YTD.FamilyOOP, cb.OOPApplied)
	return true
}

// InLedgerScope reports whether the spend ledger counts cb toward this
// resolution: same wallet, employer plan and policy, serviced in the same plan year.
func (r *Resolution) InLedgerScope(cb *domain.CostBreakdown) bool {
	if cb.WalletID != r.MemberPlan.WalletID || cb.EmployerHealthPlanID != r.EmployerPlan.ID || cb.PolicyID != r.PolicyID {
		return false
	}
	yearStart := r.MemberPlan.PlanYearStart(r.ServiceDate)
	return !cb.ServiceDate.Before(yearStart) && cb.ServiceDate.Before(yearStart.AddDate(1, 0, 0))
}

func (ce *CalculationEngine) checkWallet(ctx context.Context, walletID int64) error {
	wallet, err := ce.Plans.Wallet(ctx, walletID)
	if err != nil {
		return fmt.Errorf("wallet %d: %w", walletID, err)
	}
	if !wallet.IsQualified() {
		return fmt.Errorf("wallet %d is %s", walletID, wallet.State)
	}
	return nil
}

func (ce *CalculationEngine) newCostBreakdown(r *BreakdownResult, res *Resolution, memberID, walletID int64) *domain.CostBreakdown {
	return &domain.CostBreakdown{
		ID:                          uuid.New(),
		MemberID:                    memberID,
		WalletID:                    walletID,
		TotalMemberResponsibility:   r.TotalMemberResponsibility,
		TotalEmployerResponsibility: r.TotalEmployerResponsibility,
		DeductibleApplied:           r.DeductibleApplied,
		CoinsuranceApplied:          r.CoinsuranceApplied,
		CopayApplied:                r.CopayApplied,
		OverageAmount:               r.OverageAmount,
		OOPApplied:                  r.OOPApplied,
		OOPMaxReached:               r.OOPMaxReached,
		DeductibleRemaining:         r.DeductibleRemaining,
		OOPRemaining:                r.OOPRemaining,
		FamilyDeductibleRemaining:   r.FamilyDeductibleRemaining,
		FamilyOOPRemaining:          r.FamilyOOPRemaining,
		Tier:                        res.Tier,
		CoverageType:                res.CoverageType,
		PlanSize:                    res.MemberPlan.PlanSize,
		ServiceDate:                 res.ServiceDate.UTC(),
		MemberHealthPlanID:          res.MemberPlan.ID,
		EmployerHealthPlanID:        res.EmployerPlan.ID,
		PolicyID:                    res.PolicyID,
		CreatedAt:                   ce.Now().UTC(),
	}
}

func (ce *CalculationEngine) record(kind string, id int64, err error) {
	if err == nil {
		ce.statSucceeded.Inc(1)
		ce.Logger.Infof("cost breakdown created for %s %d", kind, id)
		return
	}
	ce.statFailed.Inc(1)
	if errors.Is(err, domain.ErrNotFound) {
		ce.Logger.Warnf("cost breakdown for %s %d: %v", kind, id, err)
		return
	}
	ce.Logger.Errorf("cost breakdown for %s %d: %v", kind, id, err)
}
