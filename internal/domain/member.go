package domain

import (
	"time"
)

// MemberHealthPlan links a member to an employer health plan for an effective period
type MemberHealthPlan struct {
	ID                    int64      `yaml:"id" json:"id"`
	MemberID              int64      `yaml:"member_id" json:"member_id"`
	WalletID              int64      `yaml:"wallet_id" json:"wallet_id"`
	EmployerHealthPlanID  int64      `yaml:"employer_health_plan_id" json:"employer_health_plan_id"`
	SubscriberInsuranceID string     `yaml:"subscriber_insurance_id" json:"subscriber_insurance_id"`
	PatientFirstName      string     `yaml:"patient_first_name" json:"patient_first_name"`
	PatientLastName       string     `yaml:"patient_last_name" json:"patient_last_name"`
	PlanSize              PlanSize   `yaml:"plan_size" json:"plan_size"`
	PlanStartAt           time.Time  `yaml:"plan_start_at" json:"plan_start_at"`
	PlanEndAt             *time.Time `yaml:"plan_end_at,omitempty" json:"plan_end_at,omitempty"`
}

// EffectiveAt reports whether the member plan covers the given date
func (mhp *MemberHealthPlan) EffectiveAt(date time.Time) bool {
	if date.Before(mhp.PlanStartAt) {
		return false
	}
	return mhp.PlanEndAt == nil || !date.After(*mhp.PlanEndAt)
}

// PlanYearStart returns the start of the benefit year that contains date
func (mhp *MemberHealthPlan) PlanYearStart(date time.Time) time.Time {
	return time.Date(date.UTC().Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

// ReimbursementWallet groups the members that share a reimbursement arrangement
type ReimbursementWallet struct {
	ID        int64   `yaml:"id" json:"id"`
	MemberIDs []int64 `yaml:"member_ids" json:"member_ids"`
	State     string  `yaml:"state" json:"state"` // QUALIFIED | DISQUALIFIED | PENDING
}

// IsQualified reports whether the wallet may receive cost breakdowns
func (w *ReimbursementWallet) IsQualified() bool {
	return w.State == "" || w.State == "QUALIFIED"
}

// ProcedureType distinguishes medical from pharmacy procedures
type ProcedureType string

const (
	ProcedureTypeMedical  ProcedureType = "MEDICAL"
	ProcedureTypePharmacy ProcedureType = "PHARMACY"
)

// TreatmentProcedure is a billed procedure (a claim) for a member
type TreatmentProcedure struct {
	ID                        int64         `yaml:"id" json:"id"`
	MemberID                  int64         `yaml:"member_id" json:"member_id"`
	WalletID                  int64         `yaml:"wallet_id" json:"wallet_id"`
	GlobalProcedureID         string        `yaml:"global_procedure_id" json:"global_procedure_id"`
	FertilityClinicLocationID int64         `yaml:"fertility_clinic_location_id" json:"fertility_clinic_location_id"`
	Cost                      int64         `yaml:"cost" json:"cost"`       // cents
	Overage                   int64         `yaml:"overage" json:"overage"` // cents above the employer-responsibility cap
	ProcedureType             ProcedureType `yaml:"procedure_type" json:"procedure_type"`
	StartDate                 time.Time     `yaml:"start_date" json:"start_date"`
	CompletedDate             *time.Time    `yaml:"completed_date,omitempty" json:"completed_date,omitempty"`
}

// GlobalProcedure is the procedure catalog entry
type GlobalProcedure struct {
	ID                  string              `yaml:"id" json:"id"`
	Name                string              `yaml:"name" json:"name"`
	CostSharingCategory CostSharingCategory `yaml:"cost_sharing_category" json:"cost_sharing_category"`
	Type                ProcedureType       `yaml:"type" json:"type"`
}

// ReimbursementRequest is a member-submitted claim paid out of the wallet
type ReimbursementRequest struct {
	ID                  int64               `yaml:"id" json:"id"`
	MemberID            int64               `yaml:"member_id" json:"member_id"`
	WalletID            int64               `yaml:"wallet_id" json:"wallet_id"`
	Amount              int64               `yaml:"amount" json:"amount"`
	CostSharingCategory CostSharingCategory `yaml:"cost_sharing_category" json:"cost_sharing_category"`
	ProcedureType       ProcedureType       `yaml:"procedure_type" json:"procedure_type"`
	ServiceStartDate    time.Time           `yaml:"service_start_date" json:"service_start_date"`
}

// PayorType identifies who a bill is charged to
type PayorType string

const (
	PayorMember   PayorType = "MEMBER"
	PayorEmployer PayorType = "EMPLOYER"
)

// MoneyMovementBill is a bill issued against a procedure
type MoneyMovementBill struct {
	ID          int64     `yaml:"id" json:"id"`
	ProcedureID int64     `yaml:"procedure_id" json:"procedure_id"`
	PayorType   PayorType `yaml:"payor_type" json:"payor_type"`
	Amount      int64     `yaml:"amount" json:"amount"` // cents, negative for refunds
	CreatedAt   time.Time `yaml:"created_at" json:"created_at"`
}
