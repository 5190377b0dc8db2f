// Package store holds the data sources the calculation engine and audit reporter
// read from: an in-memory store built from a YAML dataset and a PostgreSQL store.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
)

// MemoryStore serves a loaded dataset and keeps appended cost breakdowns in memory
type MemoryStore struct {
	mu sync.RWMutex

	plans         map[int64]*domain.EmployerHealthPlan
	memberPlans   map[int64][]domain.MemberHealthPlan
	wallets       map[int64]*domain.ReimbursementWallet
	tiers         []domain.FertilityClinicLocationEmployerHealthPlanTier
	irs           []domain.IRSMinimumDeductible
	catalog       map[string]domain.GlobalProcedure
	procedures    map[int64]*domain.TreatmentProcedure
	reimbursement map[int64]*domain.ReimbursementRequest
	bills         []domain.MoneyMovementBill
	eligibility   map[int64]domain.EligibilityResponse
	breakdowns    []domain.CostBreakdown
}

// NewMemoryStore indexes a dataset
func NewMemoryStore(ds *domain.Dataset) *MemoryStore {
	ms := &MemoryStore{
		plans:         make(map[int64]*domain.EmployerHealthPlan),
		memberPlans:   make(map[int64][]domain.MemberHealthPlan),
		wallets:       make(map[int64]*domain.ReimbursementWallet),
		catalog:       make(map[string]domain.GlobalProcedure),
		procedures:    make(map[int64]*domain.TreatmentProcedure),
		reimbursement: make(map[int64]*domain.ReimbursementRequest),
		eligibility:   make(map[int64]domain.EligibilityResponse),
	}
	if ds == nil {
		return ms
	}
	for i := range ds.EmployerHealthPlans {
		p := ds.EmployerHealthPlans[i]
		ms.plans[p.ID] = &p
	}
	for _, mp := range ds.MemberHealthPlans {
		ms.memberPlans[mp.MemberID] = append(ms.memberPlans[mp.MemberID], mp)
	}
	for i := range ds.Wallets {
		w := ds.Wallets[i]
		ms.wallets[w.ID] = &w
	}
	for _, gp := range ds.GlobalProcedures {
		ms.catalog[gp.ID] = gp
	}
	for i := range ds.TreatmentProcedures {
		tp := ds.TreatmentProcedures[i]
		ms.procedures[tp.ID] = &tp
	}
	for i := range ds.ReimbursementRequests {
		rr := ds.ReimbursementRequests[i]
		ms.reimbursement[rr.ID] = &rr
	}
	for id, resp := range ds.Eligibility {
		ms.eligibility[id] = resp
	}
	ms.tiers = append(ms.tiers, ds.ClinicTiers...)
	ms.irs = append(ms.irs, ds.IRSMinimumDeductibles...)
	ms.bills = append(ms.bills, ds.Bills...)
	return ms
}

// EmployerHealthPlan returns a plan by id
func (ms *MemoryStore) EmployerHealthPlan(_ context.Context, id int64) (*domain.EmployerHealthPlan, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	p, ok := ms.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// MemberHealthPlans returns every plan enrollment for a member
func (ms *MemoryStore) MemberHealthPlans(_ context.Context, memberID int64) ([]domain.MemberHealthPlan, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return append([]domain.MemberHealthPlan(nil), ms.memberPlans[memberID]...), nil
}

// ClinicTiers returns the premium-tier clinic records for a plan
func (ms *MemoryStore) ClinicTiers(_ context.Context, planID int64) ([]domain.FertilityClinicLocationEmployerHealthPlanTier, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []domain.FertilityClinicLocationEmployerHealthPlanTier
	for _, t := range ms.tiers {
		if t.EmployerHealthPlanID == planID {
			out = append(out, t)
		}
	}
	return out, nil
}

// IRSMinimumDeductibles returns the IRS reference table
func (ms *MemoryStore) IRSMinimumDeductibles(context.Context) ([]domain.IRSMinimumDeductible, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return append([]domain.IRSMinimumDeductible(nil), ms.irs...), nil
}

// Wallet returns a reimbursement wallet by id
func (ms *MemoryStore) Wallet(_ context.Context, id int64) (*domain.ReimbursementWallet, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	w, ok := ms.wallets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

// TreatmentProcedure returns a procedure by id
func (ms *MemoryStore) TreatmentProcedure(_ context.Context, id int64) (*domain.TreatmentProcedure, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	tp, ok := ms.procedures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *tp
	return &cp, nil
}

// ReimbursementRequest returns a reimbursement request by id
func (ms *MemoryStore) ReimbursementRequest(_ context.Context, id int64) (*domain.ReimbursementRequest, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	rr, ok := ms.reimbursement[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rr
	return &cp, nil
}

// CompletedProcedures returns procedures completed in [start, end), ordered by id
func (ms *MemoryStore) CompletedProcedures(_ context.Context, start, end time.Time) ([]domain.TreatmentProcedure, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []domain.TreatmentProcedure
	for _, tp := range ms.procedures {
		if tp.CompletedDate == nil {
			continue
		}
		if tp.CompletedDate.Before(start) || !tp.CompletedDate.Before(end) {
			continue
		}
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetProceduresByIDs returns the catalog entries found for ids; unknown ids are skipped
func (ms *MemoryStore) GetProceduresByIDs(_ context.Context, ids []string) ([]domain.GlobalProcedure, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var out []domain.GlobalProcedure
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if gp, ok := ms.catalog[id]; ok {
			out = append(out, gp)
		}
	}
	return out, nil
}

// AppendCostBreakdown stores a breakdown as the next version for its claim
func (ms *MemoryStore) AppendCostBreakdown(_ context.Context, cb *domain.CostBreakdown) error {
	key := cb.ClaimKey()
	if key == "" {
		return fmt.Errorf("cost breakdown %s has no procedure or reimbursement request", cb.ID)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	version := 0
	for _, existing := range ms.breakdowns {
		if existing.ClaimKey() == key && existing.EffectiveVersion > version {
			version = existing.EffectiveVersion
		}
	}
	cb.EffectiveVersion = version + 1
	ms.breakdowns = append(ms.breakdowns, *cb)
	return nil
}

// LatestForProcedure returns the effective breakdown of a procedure
func (ms *MemoryStore) LatestForProcedure(_ context.Context, procedureID int64) (*domain.CostBreakdown, error) {
	return ms.latest(fmt.Sprintf("procedure:%d", procedureID))
}

// LatestForReimbursement returns the effective breakdown of a reimbursement request
func (ms *MemoryStore) LatestForReimbursement(_ context.Context, requestID int64) (*domain.CostBreakdown, error) {
	return ms.latest(fmt.Sprintf("reimbursement:%d", requestID))
}

func (ms *MemoryStore) latest(key string) (*domain.CostBreakdown, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var best *domain.CostBreakdown
	for i := range ms.breakdowns {
		cb := &ms.breakdowns[i]
		if cb.ClaimKey() == key && (best == nil || cb.EffectiveVersion > best.EffectiveVersion) {
			best = cb
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

// Breakdowns returns every stored breakdown in insertion order
func (ms *MemoryStore) Breakdowns() []domain.CostBreakdown {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return append([]domain.CostBreakdown(nil), ms.breakdowns...)
}

// GetPolicyID returns the subscriber insurance id, or a wallet-scoped id when absent
func (ms *MemoryStore) GetPolicyID(_ context.Context, memberPlan *domain.MemberHealthPlan) (string, error) {
	return PolicyID(memberPlan), nil
}

// YTDInfoFromSpends sums the effective breakdowns of the member and of the
// member's wallet that were recorded under the same employer plan and policy,
// for services in the plan year containing asOf
func (ms *MemoryStore) YTDInfoFromSpends(
	_ context.Context,
	policyID string,
	memberPlan *domain.MemberHealthPlan,
	firstName, lastName string,
	asOf time.Time,
) (*domain.YTDSpend, error) {
	if policyID == "" {
		return nil, fmt.Errorf("empty policy id for %s %s", firstName, lastName)
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	effective := make(map[string]domain.CostBreakdown)
	for _, cb := range ms.breakdowns {
		if cur, ok := effective[cb.ClaimKey()]; !ok || cb.EffectiveVersion > cur.EffectiveVersion {
			effective[cb.ClaimKey()] = cb
		}
	}

	yearStart := memberPlan.PlanYearStart(asOf)
	yearEnd := yearStart.AddDate(1, 0, 0)
	spend := &domain.YTDSpend{}
	for _, cb := range effective {
		if cb.WalletID != memberPlan.WalletID || cb.EmployerHealthPlanID != memberPlan.EmployerHealthPlanID || cb.PolicyID != policyID {
			continue
		}
		if cb.ServiceDate.Before(yearStart) || !cb.ServiceDate.Before(yearEnd) {
			continue
		}
		spend.FamilyYTDDeductible += cb.DeductibleApplied
		spend.FamilyYTDOOP += cb.OOPApplied
		if cb.MemberID == memberPlan.MemberID {
			spend.IndividualYTDDeductible += cb.DeductibleApplied
			spend.IndividualYTDOOP += cb.OOPApplied
		}
	}
	return spend, nil
}

// Verify returns the stored eligibility response for the member plan
func (ms *MemoryStore) Verify(_ context.Context, memberPlan *domain.MemberHealthPlan, _ *domain.EmployerHealthPlan) (*domain.EligibilityResponse, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	resp, ok := ms.eligibility[memberPlan.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &resp, nil
}

// GetMoneyMovementBillsByProcedureIDsPayorTypeYTD returns the bills of a payor
// type for the procedures, created in the calendar year of asOf up to asOf
func (ms *MemoryStore) GetMoneyMovementBillsByProcedureIDsPayorTypeYTD(
	_ context.Context,
	procedureIDs []int64,
	payorType domain.PayorType,
	asOf time.Time,
) ([]domain.MoneyMovementBill, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	wanted := make(map[int64]bool, len(procedureIDs))
	for _, id := range procedureIDs {
		wanted[id] = true
	}
	yearStart := time.Date(asOf.UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	var out []domain.MoneyMovementBill
	for _, b := range ms.bills {
		if !wanted[b.ProcedureID] || b.PayorType != payorType {
			continue
		}
		if b.CreatedAt.Before(yearStart) || b.CreatedAt.After(asOf) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PolicyID is the ledger key for a member plan
func PolicyID(memberPlan *domain.MemberHealthPlan) string {
	if memberPlan.SubscriberInsuranceID != "" {
		return memberPlan.SubscriberInsuranceID
	}
	return fmt.Sprintf("wallet-%d", memberPlan.WalletID)
}
