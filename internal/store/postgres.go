package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rgehrsitz/costshare/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// NewPool opens and pings a connection pool
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// PGStore reads plans and claims from PostgreSQL and appends cost breakdowns to it
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps a connection pool
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Migrate creates the tables the store reads and writes
func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func decimalValue(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

const planCols = `id, name, created_at, is_hdhp, rx_integrated,
	ind_deductible_limit, ind_oop_max_limit, fam_deductible_limit, fam_oop_max_limit,
	rx_ind_deductible_limit, rx_ind_oop_max_limit, rx_fam_deductible_limit, rx_fam_oop_max_limit,
	is_deductible_embedded, is_oop_embedded`

// EmployerHealthPlan returns a plan with its coverage rows and cost sharings
func (s *PGStore) EmployerHealthPlan(ctx context.Context, id int64) (*domain.EmployerHealthPlan, error) {
	var p domain.EmployerHealthPlan
	err := s.pool.QueryRow(ctx, `SELECT `+planCols+` FROM employer_health_plans WHERE id = $1`, id).Scan(
		&p.ID, &p.Name, &p.CreatedAt, &p.IsHDHP, &p.RxIntegrated,
		&p.IndDeductibleLimit, &p.IndOOPMaxLimit, &p.FamDeductibleLimit, &p.FamOOPMaxLimit,
		&p.RxIndDeductibleLimit, &p.RxIndOOPMaxLimit, &p.RxFamDeductibleLimit, &p.RxFamOOPMaxLimit,
		&p.IsDeductibleEmbedded, &p.IsOOPEmbedded)
	if err != nil {
		return nil, notFound(err)
	}

	if p.Coverage, err = s.coverage(ctx, id); err != nil {
		return nil, err
	}
	if p.CostSharings, err = s.costSharings(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) coverage(ctx context.Context, planID int64) ([]domain.EmployerHealthPlanCoverage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, plan_size, coverage_type, tier, individual_deductible, individual_oop,
			family_deductible, family_oop, max_oop_per_covered_individual,
			is_deductible_embedded, is_oop_embedded
		FROM employer_health_plan_coverage WHERE employer_health_plan_id = $1 ORDER BY id`, planID)
	if err != nil {
		return nil, fmt.Errorf("query coverage for plan %d: %w", planID, err)
	}
	defer rows.Close()

	var out []domain.EmployerHealthPlanCoverage
	for rows.Next() {
		var c domain.EmployerHealthPlanCoverage
		var tier int16
		if err := rows.Scan(&c.ID, &c.PlanSize, &c.CoverageType, &tier, &c.IndividualDeductible, &c.IndividualOOP,
			&c.FamilyDeductible, &c.FamilyOOP, &c.MaxOOPPerCoveredIndividual,
			&c.IsDeductibleEmbedded, &c.IsOOPEmbedded); err != nil {
			return nil, err
		}
		c.Tier = domain.Tier(tier)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) costSharings(ctx context.Context, planID int64) ([]domain.EmployerHealthPlanCostSharing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category, type, percent::text, absolute_amount,
			second_tier_percent::text, second_tier_absolute_amount
		FROM employer_health_plan_cost_sharing WHERE employer_health_plan_id = $1 ORDER BY id`, planID)
	if err != nil {
		return nil, fmt.Errorf("query cost sharing for plan %d: %w", planID, err)
	}
	defer rows.Close()

	var out []domain.EmployerHealthPlanCostSharing
	for rows.Next() {
		var cs domain.EmployerHealthPlanCostSharing
		var percent, secondPercent *string
		if err := rows.Scan(&cs.ID, &cs.Category, &cs.Type, &percent, &cs.AbsoluteAmount,
			&secondPercent, &cs.SecondTierAbsoluteAmount); err != nil {
			return nil, err
		}
		if cs.Percent, err = decimalValue(percent); err != nil {
			return nil, fmt.Errorf("cost sharing %d percent: %w", cs.ID, err)
		}
		if cs.SecondTierPercent, err = decimalValue(secondPercent); err != nil {
			return nil, fmt.Errorf("cost sharing %d second tier percent: %w", cs.ID, err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

const memberPlanCols = `id, member_id, wallet_id, employer_health_plan_id, subscriber_insurance_id,
	patient_first_name, patient_last_name, plan_size, plan_start_at, plan_end_at`

func scanMemberPlan(row pgx.Row) (domain.MemberHealthPlan, error) {
	var mp domain.MemberHealthPlan
	err := row.Scan(&mp.ID, &mp.MemberID, &mp.WalletID, &mp.EmployerHealthPlanID, &mp.SubscriberInsuranceID,
		&mp.PatientFirstName, &mp.PatientLastName, &mp.PlanSize, &mp.PlanStartAt, &mp.PlanEndAt)
	return mp, err
}

// MemberHealthPlans returns every plan enrollment for a member, oldest first
func (s *PGStore) MemberHealthPlans(ctx context.Context, memberID int64) ([]domain.MemberHealthPlan, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+memberPlanCols+` FROM member_health_plans
		WHERE member_id = $1 ORDER BY plan_start_at, id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query member health plans for member %d: %w", memberID, err)
	}
	defer rows.Close()

	out := []domain.MemberHealthPlan{}
	for rows.Next() {
		mp, err := scanMemberPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, rows.Err()
}

// ClinicTiers returns the premium-tier clinic records for a plan
func (s *PGStore) ClinicTiers(ctx context.Context, planID int64) ([]domain.FertilityClinicLocationEmployerHealthPlanTier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fertility_clinic_location_id, employer_health_plan_id, start_date, end_date
		FROM fertility_clinic_location_employer_health_plan_tiers
		WHERE employer_health_plan_id = $1 ORDER BY id`, planID)
	if err != nil {
		return nil, fmt.Errorf("query clinic tiers for plan %d: %w", planID, err)
	}
	defer rows.Close()

	var out []domain.FertilityClinicLocationEmployerHealthPlanTier
	for rows.Next() {
		var t domain.FertilityClinicLocationEmployerHealthPlanTier
		if err := rows.Scan(&t.ID, &t.FertilityClinicLocationID, &t.EmployerHealthPlanID, &t.StartDate, &t.EndDate); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// IRSMinimumDeductibles returns the IRS reference table
func (s *PGStore) IRSMinimumDeductibles(ctx context.Context) ([]domain.IRSMinimumDeductible, error) {
	rows, err := s.pool.Query(ctx, `SELECT year, individual_amount, family_amount FROM irs_minimum_deductibles ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("query irs minimum deductibles: %w", err)
	}
	defer rows.Close()

	var out []domain.IRSMinimumDeductible
	for rows.Next() {
		var irs domain.IRSMinimumDeductible
		if err := rows.Scan(&irs.Year, &irs.IndividualAmount, &irs.FamilyAmount); err != nil {
			return nil, err
		}
		out = append(out, irs)
	}
	return out, rows.Err()
}

// Wallet returns a reimbursement wallet by id
func (s *PGStore) Wallet(ctx context.Context, id int64) (*domain.ReimbursementWallet, error) {
	var w domain.ReimbursementWallet
	err := s.pool.QueryRow(ctx, `SELECT id, member_ids, state FROM reimbursement_wallets WHERE id = $1`, id).
		Scan(&w.ID, &w.MemberIDs, &w.State)
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

const procedureCols = `id, member_id, wallet_id, global_procedure_id, fertility_clinic_location_id,
	cost, overage, procedure_type, start_date, completed_date`

func scanProcedure(row pgx.Row) (domain.TreatmentProcedure, error) {
	var tp domain.TreatmentProcedure
	err := row.Scan(&tp.ID, &tp.MemberID, &tp.WalletID, &tp.GlobalProcedureID, &tp.FertilityClinicLocationID,
		&tp.Cost, &tp.Overage, &tp.ProcedureType, &tp.StartDate, &tp.CompletedDate)
	return tp, err
}

// TreatmentProcedure returns a procedure by id
func (s *PGStore) TreatmentProcedure(ctx context.Context, id int64) (*domain.TreatmentProcedure, error) {
	tp, err := scanProcedure(s.pool.QueryRow(ctx, `SELECT `+procedureCols+` FROM treatment_procedures WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &tp, nil
}

// ReimbursementRequest returns a reimbursement request by id
func (s *PGStore) ReimbursementRequest(ctx context.Context, id int64) (*domain.ReimbursementRequest, error) {
	var rr domain.ReimbursementRequest
	err := s.pool.QueryRow(ctx, `
		SELECT id, member_id, wallet_id, amount, cost_sharing_category, procedure_type, service_start_date
		FROM reimbursement_requests WHERE id = $1`, id).
		Scan(&rr.ID, &rr.MemberID, &rr.WalletID, &rr.Amount, &rr.CostSharingCategory, &rr.ProcedureType, &rr.ServiceStartDate)
	if err != nil {
		return nil, notFound(err)
	}
	return &rr, nil
}

// CompletedProcedures returns procedures completed in [start, end), ordered by id
func (s *PGStore) CompletedProcedures(ctx context.Context, start, end time.Time) ([]domain.TreatmentProcedure, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+procedureCols+` FROM treatment_procedures
		WHERE completed_date >= $1 AND completed_date < $2 ORDER BY id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("query completed procedures: %w", err)
	}
	defer rows.Close()

	var out []domain.TreatmentProcedure
	for rows.Next() {
		tp, err := scanProcedure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tp)
	}
	return out, rows.Err()
}

// GetProceduresByIDs returns the catalog entries found for ids; unknown ids are skipped
func (s *PGStore) GetProceduresByIDs(ctx context.Context, ids []string) ([]domain.GlobalProcedure, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, cost_sharing_category, type FROM global_procedures
		WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("query global procedures: %w", err)
	}
	defer rows.Close()

	var out []domain.GlobalProcedure
	for rows.Next() {
		var gp domain.GlobalProcedure
		if err := rows.Scan(&gp.ID, &gp.Name, &gp.CostSharingCategory, &gp.Type); err != nil {
			return nil, err
		}
		out = append(out, gp)
	}
	return out, rows.Err()
}

const breakdownCols = `id, treatment_procedure_id, reimbursement_request_id, member_id, wallet_id,
	effective_version, total_member_responsibility, total_employer_responsibility,
	deductible_applied, coinsurance_applied, copay_applied, overage_amount, oop_applied, oop_max_reached,
	deductible_remaining, oop_remaining, family_deductible_remaining, family_oop_remaining,
	tier, coverage_type, plan_size, service_date, member_health_plan_id, employer_health_plan_id, policy_id, created_at`

func scanBreakdown(row pgx.Row) (*domain.CostBreakdown, error) {
	var cb domain.CostBreakdown
	var tier int16
	err := row.Scan(&cb.ID, &cb.TreatmentProcedureID, &cb.ReimbursementRequestID, &cb.MemberID, &cb.WalletID,
		&cb.EffectiveVersion, &cb.TotalMemberResponsibility, &cb.TotalEmployerResponsibility,
		&cb.DeductibleApplied, &cb.CoinsuranceApplied, &cb.CopayApplied, &cb.OverageAmount, &cb.OOPApplied, &cb.OOPMaxReached,
		&cb.DeductibleRemaining, &cb.OOPRemaining, &cb.FamilyDeductibleRemaining, &cb.FamilyOOPRemaining,
		&tier, &cb.CoverageType, &cb.PlanSize, &cb.ServiceDate, &cb.MemberHealthPlanID, &cb.EmployerHealthPlanID, &cb.PolicyID, &cb.CreatedAt)
	cb.Tier = domain.Tier(tier)
	return &cb, err
}

// AppendCostBreakdown stores a breakdown as the next version for its claim.
// Concurrent appends for one claim are serialized by an advisory lock.
func (s *PGStore) AppendCostBreakdown(ctx context.Context, cb *domain.CostBreakdown) error {
	key := cb.ClaimKey()
	if key == "" {
		return fmt.Errorf("cost breakdown %s has no procedure or reimbursement request", cb.ID)
	}
	if cb.ID == uuid.Nil {
		cb.ID = uuid.New()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	var version int
	if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(effective_version), 0) + 1 FROM cost_breakdowns WHERE claim_key = $1`, key).
		Scan(&version); err != nil {
		return fmt.Errorf("next version for %s: %w", key, err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO cost_breakdowns (id, claim_key, treatment_procedure_id, reimbursement_request_id, member_id, wallet_id,
			effective_version, total_member_responsibility, total_employer_responsibility,
			deductible_applied, coinsurance_applied, copay_applied, overage_amount, oop_applied, oop_max_reached,
			deductible_remaining, oop_remaining, family_deductible_remaining, family_oop_remaining,
			tier, coverage_type, plan_size, service_date, member_health_plan_id, employer_health_plan_id, policy_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)`,
		cb.ID, key, cb.TreatmentProcedureID, cb.ReimbursementRequestID, cb.MemberID, cb.WalletID,
		version, cb.TotalMemberResponsibility, cb.TotalEmployerResponsibility,
		cb.DeductibleApplied, cb.CoinsuranceApplied, cb.CopayApplied, cb.OverageAmount, cb.OOPApplied, cb.OOPMaxReached,
		cb.DeductibleRemaining, cb.OOPRemaining, cb.FamilyDeductibleRemaining, cb.FamilyOOPRemaining,
		int16(cb.Tier), string(cb.CoverageType), string(cb.PlanSize),
		cb.ServiceDate, cb.MemberHealthPlanID, cb.EmployerHealthPlanID, cb.PolicyID, cb.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cost breakdown for %s: %w", key, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	cb.EffectiveVersion = version
	return nil
}

// LatestForProcedure returns the effective breakdown of a procedure
func (s *PGStore) LatestForProcedure(ctx context.Context, procedureID int64) (*domain.CostBreakdown, error) {
	return s.latest(ctx, fmt.Sprintf("procedure:%d", procedureID))
}

// LatestForReimbursement returns the effective breakdown of a reimbursement request
func (s *PGStore) LatestForReimbursement(ctx context.Context, requestID int64) (*domain.CostBreakdown, error) {
	return s.latest(ctx, fmt.Sprintf("reimbursement:%d", requestID))
}

func (s *PGStore) latest(ctx context.Context, key string) (*domain.CostBreakdown, error) {
	cb, err := scanBreakdown(s.pool.QueryRow(ctx, `SELECT `+breakdownCols+` FROM cost_breakdowns
		WHERE claim_key = $1 ORDER BY effective_version DESC LIMIT 1`, key))
	if err != nil {
		return nil, notFound(err)
	}
	return cb, nil
}

// GetPolicyID returns the subscriber insurance id, or a wallet-scoped id when absent
func (s *PGStore) GetPolicyID(_ context.Context, memberPlan *domain.MemberHealthPlan) (string, error) {
	return PolicyID(memberPlan), nil
}

// YTDInfoFromSpends sums the effective breakdowns of the member and of the
// member's wallet that were recorded under the same employer plan and policy,
// for services in the plan year containing asOf
func (s *PGStore) YTDInfoFromSpends(
	ctx context.Context,
	policyID string,
	memberPlan *domain.MemberHealthPlan,
	firstName, lastName string,
	asOf time.Time,
) (*domain.YTDSpend, error) {
	if policyID == "" {
		return nil, fmt.Errorf("empty policy id for %s %s", firstName, lastName)
	}
	yearStart := memberPlan.PlanYearStart(asOf)

	spend := &domain.YTDSpend{}
	err := s.pool.QueryRow(ctx, `
		WITH effective AS (
			SELECT DISTINCT ON (claim_key) member_id, employer_health_plan_id, policy_id,
				deductible_applied, oop_applied, service_date
			FROM cost_breakdowns
			WHERE wallet_id = $1
			ORDER BY claim_key, effective_version DESC
		)
		SELECT
			COALESCE(SUM(deductible_applied) FILTER (WHERE member_id = $2), 0)::bigint,
			COALESCE(SUM(oop_applied) FILTER (WHERE member_id = $2), 0)::bigint,
			COALESCE(SUM(deductible_applied), 0)::bigint,
			COALESCE(SUM(oop_applied), 0)::bigint
		FROM effective
		WHERE employer_health_plan_id = $3 AND policy_id = $4
			AND service_date >= $5 AND service_date < $6`,
		memberPlan.WalletID, memberPlan.MemberID, memberPlan.EmployerHealthPlanID, policyID,
		yearStart, yearStart.AddDate(1, 0, 0)).
		Scan(&spend.IndividualYTDDeductible, &spend.IndividualYTDOOP, &spend.FamilyYTDDeductible, &spend.FamilyYTDOOP)
	if err != nil {
		return nil, fmt.Errorf("sum ytd spend for %s: %w", policyID, err)
	}
	return spend, nil
}

// Verify returns the stored eligibility response for the member plan
func (s *PGStore) Verify(ctx context.Context, memberPlan *domain.MemberHealthPlan, _ *domain.EmployerHealthPlan) (*domain.EligibilityResponse, error) {
	var r domain.EligibilityResponse
	err := s.pool.QueryRow(ctx, `
		SELECT individual_deductible, individual_deductible_remaining, individual_oop, individual_oop_remaining,
			family_deductible, family_deductible_remaining, family_oop, family_oop_remaining
		FROM eligibility_responses WHERE member_health_plan_id = $1`, memberPlan.ID).
		Scan(&r.IndividualDeductible, &r.IndividualDeductibleRemaining, &r.IndividualOOP, &r.IndividualOOPRemaining,
			&r.FamilyDeductible, &r.FamilyDeductibleRemaining, &r.FamilyOOP, &r.FamilyOOPRemaining)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// GetMoneyMovementBillsByProcedureIDsPayorTypeYTD returns the bills of a payor
// type for the procedures, created in the calendar year of asOf up to asOf
func (s *PGStore) GetMoneyMovementBillsByProcedureIDsPayorTypeYTD(
	ctx context.Context,
	procedureIDs []int64,
	payorType domain.PayorType,
	asOf time.Time,
) ([]domain.MoneyMovementBill, error) {
	if len(procedureIDs) == 0 {
		return nil, nil
	}
	yearStart := time.Date(asOf.UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	rows, err := s.pool.Query(ctx, `
		SELECT id, procedure_id, payor_type, amount, created_at FROM money_movement_bills
		WHERE procedure_id = ANY($1) AND payor_type = $2 AND created_at >= $3 AND created_at <= $4
		ORDER BY id`, procedureIDs, string(payorType), yearStart, asOf)
	if err != nil {
		return nil, fmt.Errorf("query %s bills: %w", payorType, err)
	}
	defer rows.Close()

	var out []domain.MoneyMovementBill
	for rows.Next() {
		var b domain.MoneyMovementBill
		if err := rows.Scan(&b.ID, &b.ProcedureID, &b.PayorType, &b.Amount, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Import writes a dataset's plans and claims in one transaction. Stored cost
// breakdowns are left alone.
func (s *PGStore) Import(ctx context.Context, ds *domain.Dataset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := importDataset(ctx, tx, ds); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func importDataset(ctx context.Context, q queryable, ds *domain.Dataset) error {
	for i := range ds.EmployerHealthPlans {
		if err := importPlan(ctx, q, &ds.EmployerHealthPlans[i]); err != nil {
			return fmt.Errorf("employer health plan %d: %w", ds.EmployerHealthPlans[i].ID, err)
		}
	}
	for _, w := range ds.Wallets {
		state := w.State
		if state == "" {
			state = "QUALIFIED"
		}
		memberIDs := w.MemberIDs
		if memberIDs == nil {
			memberIDs = []int64{}
		}
		if _, err := q.Exec(ctx, `INSERT INTO reimbursement_wallets (id, member_ids, state) VALUES ($1,$2,$3)`,
			w.ID, memberIDs, state); err != nil {
			return fmt.Errorf("wallet %d: %w", w.ID, err)
		}
	}
	for _, mp := range ds.MemberHealthPlans {
		if _, err := q.Exec(ctx, `INSERT INTO member_health_plans (`+memberPlanCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			mp.ID, mp.MemberID, mp.WalletID, mp.EmployerHealthPlanID, mp.SubscriberInsuranceID,
			mp.PatientFirstName, mp.PatientLastName, string(mp.PlanSize), mp.PlanStartAt, mp.PlanEndAt); err != nil {
			return fmt.Errorf("member health plan %d: %w", mp.ID, err)
		}
	}
	for _, t := range ds.ClinicTiers {
		if _, err := q.Exec(ctx, `INSERT INTO fertility_clinic_location_employer_health_plan_tiers
			(id, fertility_clinic_location_id, employer_health_plan_id, start_date, end_date) VALUES ($1,$2,$3,$4,$5)`,
			t.ID, t.FertilityClinicLocationID, t.EmployerHealthPlanID, t.StartDate, t.EndDate); err != nil {
			return fmt.Errorf("clinic tier %d: %w", t.ID, err)
		}
	}
	for _, irs := range ds.IRSMinimumDeductibles {
		if _, err := q.Exec(ctx, `INSERT INTO irs_minimum_deductibles (year, individual_amount, family_amount) VALUES ($1,$2,$3)`,
			irs.Year, irs.IndividualAmount, irs.FamilyAmount); err != nil {
			return fmt.Errorf("irs minimum deductible %d: %w", irs.Year, err)
		}
	}
	for _, gp := range ds.GlobalProcedures {
		if _, err := q.Exec(ctx, `INSERT INTO global_procedures (id, name, cost_sharing_category, type) VALUES ($1,$2,$3,$4)`,
			gp.ID, gp.Name, string(gp.CostSharingCategory), string(gp.Type)); err != nil {
			return fmt.Errorf("global procedure %s: %w", gp.ID, err)
		}
	}
	for _, tp := range ds.TreatmentProcedures {
		if _, err := q.Exec(ctx, `INSERT INTO treatment_procedures (`+procedureCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			tp.ID, tp.MemberID, tp.WalletID, tp.GlobalProcedureID, tp.FertilityClinicLocationID,
			tp.Cost, tp.Overage, string(tp.ProcedureType), tp.StartDate, tp.CompletedDate); err != nil {
			return fmt.Errorf("treatment procedure %d: %w", tp.ID, err)
		}
	}
	for _, rr := range ds.ReimbursementRequests {
		if _, err := q.Exec(ctx, `INSERT INTO reimbursement_requests
			(id, member_id, wallet_id, amount, cost_sharing_category, procedure_type, service_start_date)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			rr.ID, rr.MemberID, rr.WalletID, rr.Amount, string(rr.CostSharingCategory), string(rr.ProcedureType), rr.ServiceStartDate); err != nil {
			return fmt.Errorf("reimbursement request %d: %w", rr.ID, err)
		}
	}
	for _, b := range ds.Bills {
		if _, err := q.Exec(ctx, `INSERT INTO money_movement_bills (id, procedure_id, payor_type, amount, created_at)
			VALUES ($1,$2,$3,$4,$5)`, b.ID, b.ProcedureID, string(b.PayorType), b.Amount, b.CreatedAt); err != nil {
			return fmt.Errorf("bill %d: %w", b.ID, err)
		}
	}
	for mpID, r := range ds.Eligibility {
		if _, err := q.Exec(ctx, `INSERT INTO eligibility_responses (member_health_plan_id,
			individual_deductible, individual_deductible_remaining, individual_oop, individual_oop_remaining,
			family_deductible, family_deductible_remaining, family_oop, family_oop_remaining)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, mpID,
			r.IndividualDeductible, r.IndividualDeductibleRemaining, r.IndividualOOP, r.IndividualOOPRemaining,
			r.FamilyDeductible, r.FamilyDeductibleRemaining, r.FamilyOOP, r.FamilyOOPRemaining); err != nil {
			return fmt.Errorf("eligibility for member health plan %d: %w", mpID, err)
		}
	}
	return nil
}

func importPlan(ctx context.Context, q queryable, p *domain.EmployerHealthPlan) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := q.Exec(ctx, `INSERT INTO employer_health_plans (`+planCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.Name, createdAt, p.IsHDHP, p.RxIntegrated,
		p.IndDeductibleLimit, p.IndOOPMaxLimit, p.FamDeductibleLimit, p.FamOOPMaxLimit,
		p.RxIndDeductibleLimit, p.RxIndOOPMaxLimit, p.RxFamDeductibleLimit, p.RxFamOOPMaxLimit,
		p.IsDeductibleEmbedded, p.IsOOPEmbedded); err != nil {
		return err
	}
	for _, c := range p.Coverage {
		if _, err := q.Exec(ctx, `INSERT INTO employer_health_plan_coverage (employer_health_plan_id,
			plan_size, coverage_type, tier, individual_deductible, individual_oop, family_deductible, family_oop,
			max_oop_per_covered_individual, is_deductible_embedded, is_oop_embedded)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			p.ID, string(c.PlanSize), string(c.CoverageType), int16(c.Tier), c.IndividualDeductible, c.IndividualOOP,
			c.FamilyDeductible, c.FamilyOOP, c.MaxOOPPerCoveredIndividual, c.IsDeductibleEmbedded, c.IsOOPEmbedded); err != nil {
			return fmt.Errorf("coverage %s/%s/%s: %w", c.PlanSize, c.CoverageType, c.Tier, err)
		}
	}
	for _, cs := range p.CostSharings {
		if _, err := q.Exec(ctx, `INSERT INTO employer_health_plan_cost_sharing (employer_health_plan_id,
			category, type, percent, absolute_amount, second_tier_percent, second_tier_absolute_amount)
			VALUES ($1,$2,$3,$4::text::numeric,$5,$6::text::numeric,$7)`,
			p.ID, string(cs.Category), string(cs.Type), decimalArg(cs.Percent), cs.AbsoluteAmount,
			decimalArg(cs.SecondTierPercent), cs.SecondTierAbsoluteAmount); err != nil {
			return fmt.Errorf("cost sharing %s/%s: %w", cs.Category, cs.Type, err)
		}
	}
	return nil
}
