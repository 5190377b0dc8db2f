package transform

import (
	"fmt"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
)

// SetCoverageSource switches between coverage rows and the legacy plan limits
type SetCoverageSource struct {
	Source domain.CoverageSource
}

func (t *SetCoverageSource) Apply(base domain.ComputationPolicy) (domain.ComputationPolicy, error) {
	switch t.Source {
	case domain.CoverageFromRows, domain.CoverageFromLegacyLimits:
	default:
		return base, fmt.Errorf("unknown coverage source %q", t.Source)
	}
	base.CoverageSource = t.Source
	return base, nil
}

func (t *SetCoverageSource) Name() string { return "coverage_source" }

func (t *SetCoverageSource) Description() string {
	return fmt.Sprintf("Resolve plan limits from %s", t.Source)
}

// SetMemberPlanLookup changes how the member's plan is found for a service date
type SetMemberPlanLookup struct {
	Lookup domain.MemberPlanLookup
}

func (t *SetMemberPlanLookup) Apply(base domain.ComputationPolicy) (domain.ComputationPolicy, error) {
	switch t.Lookup {
	case domain.LookupSinglePlan, domain.LookupEffectiveDated:
	default:
		return base, fmt.Errorf("unknown member plan lookup %q", t.Lookup)
	}
	base.MemberPlanLookup = t.Lookup
	return base, nil
}

func (t *SetMemberPlanLookup) Name() string { return "member_plan_lookup" }

func (t *SetMemberPlanLookup) Description() string {
	return fmt.Sprintf("Find member plans with the %s lookup", t.Lookup)
}

// SetEmployeePlusEmbedding changes how EMPLOYEE_PLUS plans embed their limits
// on the legacy path
type SetEmployeePlusEmbedding struct {
	Mode domain.EmployeePlusEmbedding
}

func (t *SetEmployeePlusEmbedding) Apply(base domain.ComputationPolicy) (domain.ComputationPolicy, error) {
	switch t.Mode {
	case domain.EmbeddingFromConfiguration, domain.EmbeddingAlwaysEmbedded:
	default:
		return base, fmt.Errorf("unknown employee plus embedding %q", t.Mode)
	}
	base.EmployeePlusEmbedding = t.Mode
	return base, nil
}

func (t *SetEmployeePlusEmbedding) Name() string { return "employee_plus_embedding" }

func (t *SetEmployeePlusEmbedding) Description() string {
	return fmt.Sprintf("Derive EMPLOYEE_PLUS embedding as %s", t.Mode)
}

// SetMigrationCutoff sets the date after which plans must carry coverage rows.
// A nil Date clears the cutoff.
type SetMigrationCutoff struct {
	Date *time.Time
}

func (t *SetMigrationCutoff) Apply(base domain.ComputationPolicy) (domain.ComputationPolicy, error) {
	if t.Date == nil {
		base.MigrationCutoff = nil
		return base, nil
	}
	cutoff := t.Date.UTC()
	base.MigrationCutoff = &cutoff
	return base, nil
}

func (t *SetMigrationCutoff) Name() string { return "migration_cutoff" }

func (t *SetMigrationCutoff) Description() string {
	if t.Date == nil {
		return "Remove the coverage migration cutoff"
	}
	return fmt.Sprintf("Require coverage rows for plans created after %s", t.Date.Format("2006-01-02"))
}
