package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by repositories when a lookup has no row
var ErrNotFound = errors.New("not found")

// NoIrsDeductibleFoundError is returned when the IRS minimum deductible row is missing
type NoIrsDeductibleFoundError struct {
	Year         int
	IsIndividual bool
}

func (e *NoIrsDeductibleFoundError) Error() string {
	scope := "family"
	if e.IsIndividual {
		scope = "individual"
	}
	return fmt.Sprintf("no IRS minimum deductible found for %s coverage in %d", scope, e.Year)
}

// NoCostSharingFoundError is returned when a plan has no rule for a category
type NoCostSharingFoundError struct {
	Category CostSharingCategory
	Tier     Tier
}

func (e *NoCostSharingFoundError) Error() string {
	return fmt.Sprintf("no cost sharing found for category %s (tier %s)", e.Category, e.Tier)
}

// TieredConfigurationError is returned when a coverage key does not resolve to exactly one row
type TieredConfigurationError struct {
	PlanID       int64
	PlanSize     PlanSize
	CoverageType CoverageType
	Tier         Tier
	Matches      int
	Message      string
}

func (e *TieredConfigurationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("plan %d: %s", e.PlanID, e.Message)
	}
	return fmt.Sprintf("plan %d: expected exactly one coverage for plan_size=%s coverage_type=%s tier=%s, found %d",
		e.PlanID, e.PlanSize, e.CoverageType, e.Tier, e.Matches)
}

// NoPatientNameFoundError is returned when the member plan lacks the names the
// benefits-verification lookup requires
type NoPatientNameFoundError struct {
	MemberHealthPlanID int64
}

func (e *NoPatientNameFoundError) Error() string {
	return fmt.Sprintf("no patient first/last name on member health plan %d", e.MemberHealthPlanID)
}

// InvalidClaimError is returned for claim amounts the calculator does not accept
type InvalidClaimError struct {
	Operation string
	Message   string
}

func (e *InvalidClaimError) Error() string {
	return e.Operation + ": " + e.Message
}

// IncompleteYTDError is returned when year-to-date figures are placeholders
type IncompleteYTDError struct {
	Snapshot YTDSnapshot
}

func (e *IncompleteYTDError) Error() string {
	return fmt.Sprintf("incomplete year-to-date figures: ind_ded=%s ind_oop=%s fam_ded=%s fam_oop=%s",
		e.Snapshot.IndividualDeductible, e.Snapshot.IndividualOOP,
		e.Snapshot.FamilyDeductible, e.Snapshot.FamilyOOP)
}
