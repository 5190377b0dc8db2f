// Package audit re-derives cost breakdowns for the procedures completed in a
// window and reports them next to the persisted figures. It never writes.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rgehrsitz/costshare/internal/calculation"
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/samuel/go-metrics/metrics"
)

// Missing-link reasons recorded on ErrorInfo and used as metric names
const (
	ReasonInvalidWallet              = "invalid_wallet"
	ReasonMissingMemberHealthPlan    = "missing_member_health_plan"
	ReasonGlobalProcedureNotFound    = "global_procedure_not_found"
	ReasonMissingCostSharingCategory = "missing_cost_sharing_category"
	ReasonMissingCostBreakdown       = "missing_cost_breakdown"
	ReasonMissingPatientName         = "missing_patient_name"
	ReasonRecomputeFailed            = "recompute_failed"
)

// Reasons lists every missing-link reason in reporting order
var Reasons = []string{
	ReasonInvalidWallet,
	ReasonMissingMemberHealthPlan,
	ReasonGlobalProcedureNotFound,
	ReasonMissingCostSharingCategory,
	ReasonMissingCostBreakdown,
	ReasonMissingPatientName,
	ReasonRecomputeFailed,
}

// BillingClient reads money-movement bills
type BillingClient interface {
	GetMoneyMovementBillsByProcedureIDsPayorTypeYTD(ctx context.Context, procedureIDs []int64, payorType domain.PayorType, asOf time.Time) ([]domain.MoneyMovementBill, error)
}

// Window is a half-open time range [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DayWindow returns the UTC day containing t
func DayWindow(t time.Time) Window {
	y, m, d := t.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Persisted is the subset of a stored breakdown shown next to the recomputation
type Persisted struct {
	EffectiveVersion            int   `json:"effective_version"`
	DeductibleApplied           int64 `json:"deductible"`
	CoinsuranceApplied          int64 `json:"coinsurance"`
	CopayApplied                int64 `json:"copay"`
	OOPApplied                  int64 `json:"oop_applied"`
	TotalMemberResponsibility   int64 `json:"total_member_responsibility"`
	TotalEmployerResponsibility int64 `json:"total_employer_responsibility"`
}

// ResultRow is one matched procedure
type ResultRow struct {
	ProcedureID          int64                        `json:"procedure_id"`
	MemberID             int64                        `json:"member_id"`
	WalletID             int64                        `json:"wallet_id"`
	MemberHealthPlanID   int64                        `json:"member_health_plan_id"`
	EmployerHealthPlanID int64                        `json:"employer_health_plan_id"`
	GlobalProcedureID    string                       `json:"global_procedure_id"`
	Category             domain.CostSharingCategory   `json:"cost_sharing_category"`
	Tier                 domain.Tier                  `json:"tier"`
	CoverageType         domain.CoverageType          `json:"coverage_type"`
	PlanSize             domain.PlanSize              `json:"plan_size"`
	Cost                 int64                        `json:"cost"`
	Coverage             domain.PlanCoverage          `json:"coverage"`
	CostShare            domain.EligibilityInfo       `json:"cost_share"`
	YTD                  domain.YTDSnapshot           `json:"ytd"`
	Persisted            Persisted                    `json:"persisted"`
	Recomputed           *calculation.BreakdownResult `json:"recomputed,omitempty"` // nil when YTD is incomplete
	MemberBillsYTD       int64                        `json:"member_bills_ytd"`
	EmployerBillsYTD     int64                        `json:"employer_bills_ytd"`
}

// Matches reports whether the recomputed split agrees with the persisted one
func (r *ResultRow) Matches() bool {
	if r.Recomputed == nil {
		return false
	}
	return r.Recomputed.TotalMemberResponsibility == r.Persisted.TotalMemberResponsibility &&
		r.Recomputed.TotalEmployerResponsibility == r.Persisted.TotalEmployerResponsibility
}

// UserInfo describes a member seen during the audit
type UserInfo struct {
	MemberID           int64           `json:"member_id"`
	WalletID           int64           `json:"wallet_id"`
	MemberHealthPlanID int64           `json:"member_health_plan_id,omitempty"`
	FirstName          string          `json:"first_name,omitempty"`
	LastName           string          `json:"last_name,omitempty"`
	PlanSize           domain.PlanSize `json:"plan_size,omitempty"`
}

// ErrorInfo is a procedure the audit could not match
type ErrorInfo struct {
	ProcedureID int64  `json:"procedure_id"`
	MemberID    int64  `json:"member_id"`
	WalletID    int64  `json:"wallet_id"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail"`
}

// Report is the output of one audit run
type Report struct {
	Window  Window              `json:"window"`
	Results []ResultRow         `json:"results"`
	Users   map[int64]UserInfo  `json:"users"`
	Errors  map[int64]ErrorInfo `json:"errors"`
}

// SortedErrors returns the errors ordered by procedure id
func (r *Report) SortedErrors() []ErrorInfo {
	out := make([]ErrorInfo, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcedureID < out[j].ProcedureID })
	return out
}

// SortedUsers returns the users ordered by member id
func (r *Report) SortedUsers() []UserInfo {
	out := make([]UserInfo, 0, len(r.Users))
	for _, u := range r.Users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out
}

// Mismatches counts result rows whose recomputation disagrees with storage
func (r *Report) Mismatches() int {
	n := 0
	for i := range r.Results {
		if !r.Results[i].Matches() {
			n++
		}
	}
	return n
}

// Reporter audits completed procedures using the engine's resolvers
type Reporter struct {
	Engine  *calculation.CalculationEngine
	Billing BillingClient
	Logger  calculation.Logger

	statErrors map[string]*metrics.Counter
	statRuns   *metrics.Counter
}

// NewReporter creates a reporter. reg may be nil.
func NewReporter(engine *calculation.CalculationEngine, billing BillingClient, reg metrics.Registry) *Reporter {
	r := &Reporter{
		Engine:     engine,
		Billing:    billing,
		Logger:     engine.Logger,
		statErrors: make(map[string]*metrics.Counter, len(Reasons)),
		statRuns:   metrics.NewCounter(),
	}
	for _, reason := range Reasons {
		r.statErrors[reason] = metrics.NewCounter()
	}
	if reg != nil {
		reg.Add("audit/runs", r.statRuns)
		for _, reason := range Reasons {
			reg.Add("audit/errors/"+reason, r.statErrors[reason])
		}
	}
	return r
}

// run holds the state of one Audit call
type run struct {
	report  *Report
	catalog map[string]domain.GlobalProcedure
}

func (r *Reporter) fail(rn *run, proc *domain.TreatmentProcedure, reason, detail string) {
	if _, seen := rn.report.Errors[proc.ID]; seen {
		return
	}
	rn.report.Errors[proc.ID] = ErrorInfo{
		ProcedureID: proc.ID,
		MemberID:    proc.MemberID,
		WalletID:    proc.WalletID,
		Reason:      reason,
		Detail:      detail,
	}
	if c := r.statErrors[reason]; c != nil {
		c.Inc(1)
	}
	r.Logger.Warnf("audit procedure %d: %s: %s", proc.ID, reason, detail)
}

// Audit re-derives every procedure completed inside window
func (r *Reporter) Audit(ctx context.Context, window Window) (*Report, error) {
	r.statRuns.Inc(1)
	ce := r.Engine

	procs, err := ce.Procedures.CompletedProcedures(ctx, window.Start, window.End)
	if err != nil {
		return nil, fmt.Errorf("completed procedures in [%s, %s): %w",
			window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), err)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].ID < procs[j].ID })

	ids := make([]string, 0, len(procs))
	for _, p := range procs {
		ids = append(ids, p.GlobalProcedureID)
	}
	gps, err := ce.Catalog.GetProceduresByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("global procedures: %w", err)
	}

	rn := &run{
		report: &Report{
			Window:  window,
			Results: []ResultRow{},
			Users:   make(map[int64]UserInfo),
			Errors:  make(map[int64]ErrorInfo),
		},
		catalog: make(map[string]domain.GlobalProcedure, len(gps)),
	}
	for _, gp := range gps {
		rn.catalog[gp.ID] = gp
	}

	for i := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := r.auditProcedure(ctx, rn, &procs[i], window)
		if err != nil {
			return nil, err
		}
		if row != nil {
			rn.report.Results = append(rn.report.Results, *row)
		}
	}

	if err := r.attachBills(ctx, rn.report, window); err != nil {
		return nil, err
	}

	// Members that only produced errors still get an entry
	for _, e := range rn.report.Errors {
		if _, ok := rn.report.Users[e.MemberID]; !ok {
			rn.report.Users[e.MemberID] = UserInfo{MemberID: e.MemberID, WalletID: e.WalletID}
		}
	}

	r.Logger.Infof("audit %s: %d results, %d errors, %d mismatches",
		window.Start.Format("2006-01-02"), len(rn.report.Results), len(rn.report.Errors), rn.report.Mismatches())
	return rn.report, nil
}

// auditProcedure returns nil, nil when the procedure was recorded as an error.
// Only infrastructure failures are returned as errors.
func (r *Reporter) auditProcedure(ctx context.Context, rn *run, proc *domain.TreatmentProcedure, window Window) (*ResultRow, error) {
	ce := r.Engine

	wallet, err := ce.Plans.Wallet(ctx, proc.WalletID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("wallet %d: %w", proc.WalletID, err)
		}
		r.fail(rn, proc, ReasonInvalidWallet, fmt.Sprintf("wallet %d not found", proc.WalletID))
		return nil, nil
	}
	if !wallet.IsQualified() {
		r.fail(rn, proc, ReasonInvalidWallet, fmt.Sprintf("wallet %d is %s", wallet.ID, wallet.State))
		return nil, nil
	}

	memberPlan, err := ce.ResolveMemberPlan(ctx, proc.MemberID, proc.StartDate)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		r.fail(rn, proc, ReasonMissingMemberHealthPlan, err.Error())
		return nil, nil
	}

	gp, ok := rn.catalog[proc.GlobalProcedureID]
	if !ok {
		r.fail(rn, proc, ReasonGlobalProcedureNotFound, fmt.Sprintf("global procedure %q not found", proc.GlobalProcedureID))
		return nil, nil
	}
	if gp.CostSharingCategory == "" {
		r.fail(rn, proc, ReasonMissingCostSharingCategory, fmt.Sprintf("global procedure %q has no cost sharing category", gp.ID))
		return nil, nil
	}

	persisted, err := ce.Breakdowns.LatestForProcedure(ctx, proc.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("cost breakdown for procedure %d: %w", proc.ID, err)
		}
		r.fail(rn, proc, ReasonMissingCostBreakdown, fmt.Sprintf("no cost breakdown for procedure %d", proc.ID))
		return nil, nil
	}

	rn.report.Users[proc.MemberID] = UserInfo{
		MemberID:           proc.MemberID,
		WalletID:           proc.WalletID,
		MemberHealthPlanID: memberPlan.ID,
		FirstName:          memberPlan.PatientFirstName,
		LastName:           memberPlan.PatientLastName,
		PlanSize:           memberPlan.PlanSize,
	}

	res, err := ce.Resolve(ctx, calculation.ClaimContext{
		MemberID:         proc.MemberID,
		ServiceDate:      proc.StartDate,
		Category:         gp.CostSharingCategory,
		ProcedureType:    proc.ProcedureType,
		ClinicLocationID: proc.FertilityClinicLocationID,
		MemberPlan:       memberPlan,
	})
	if err != nil {
		var nameErr *domain.NoPatientNameFoundError
		if errors.As(err, &nameErr) {
			r.fail(rn, proc, ReasonMissingPatientName, err.Error())
		} else {
			r.fail(rn, proc, ReasonRecomputeFailed, err.Error())
		}
		return nil, nil
	}
	res.ExcludeBreakdown(persisted)

	row := &ResultRow{
		ProcedureID:          proc.ID,
		MemberID:             proc.MemberID,
		WalletID:             proc.WalletID,
		MemberHealthPlanID:   memberPlan.ID,
		EmployerHealthPlanID: res.EmployerPlan.ID,
		GlobalProcedureID:    gp.ID,
		Category:             gp.CostSharingCategory,
		Tier:                 res.Tier,
		CoverageType:         res.CoverageType,
		PlanSize:             memberPlan.PlanSize,
		Cost:                 proc.Cost,
		Coverage:             res.Coverage,
		CostShare:            res.CostShare,
		YTD:                  res.YTD,
		Persisted: Persisted{
			EffectiveVersion:            persisted.EffectiveVersion,
			DeductibleApplied:           persisted.DeductibleApplied,
			CoinsuranceApplied:          persisted.CoinsuranceApplied,
			CopayApplied:                persisted.CopayApplied,
			OOPApplied:                  persisted.OOPApplied,
			TotalMemberResponsibility:   persisted.TotalMemberResponsibility,
			TotalEmployerResponsibility: persisted.TotalEmployerResponsibility,
		},
	}

	if res.YTD.Complete() {
		recomputed, err := calculation.ComputeBreakdown(res.Input(proc.Cost, proc.Overage))
		if err != nil {
			r.fail(rn, proc, ReasonRecomputeFailed, err.Error())
			return nil, nil
		}
		row.Recomputed = recomputed
	}
	return row, nil
}

// attachBills adds the year-to-date member and employer bill totals per procedure
func (r *Reporter) attachBills(ctx context.Context, report *Report, window Window) error {
	if r.Billing == nil || len(report.Results) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(report.Results))
	for _, row := range report.Results {
		ids = append(ids, row.ProcedureID)
	}
	asOf := window.End.Add(-time.Nanosecond)

	totals := func(payor domain.PayorType) (map[int64]int64, error) {
		bills, err := r.Billing.GetMoneyMovementBillsByProcedureIDsPayorTypeYTD(ctx, ids, payor, asOf)
		if err != nil {
			return nil, fmt.Errorf("%s bills: %w", payor, err)
		}
		out := make(map[int64]int64, len(ids))
		for _, b := range bills {
			out[b.ProcedureID] += b.Amount
		}
		return out, nil
	}

	member, err := totals(domain.PayorMember)
	if err != nil {
		return err
	}
	employer, err := totals(domain.PayorEmployer)
	if err != nil {
		return err
	}
	for i := range report.Results {
		report.Results[i].MemberBillsYTD = member[report.Results[i].ProcedureID]
		report.Results[i].EmployerBillsYTD = employer[report.Results[i].ProcedureID]
	}
	return nil
}
