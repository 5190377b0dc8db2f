package calculation

import (
	"fmt"
	"sort"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
)

// MemberPlanResolver picks the member health plan that applies on a date
type MemberPlanResolver interface {
	Resolve(plans []domain.MemberHealthPlan, date time.Time) (*domain.MemberHealthPlan, error)
}

// NewMemberPlanResolver returns the resolver for a lookup strategy
func NewMemberPlanResolver(lookup domain.MemberPlanLookup) MemberPlanResolver {
	if lookup == domain.LookupSinglePlan {
		return SinglePlanResolver{}
	}
	return EffectiveDatedResolver{}
}

// SinglePlanResolver assumes one plan per member and ignores effective dates.
// When several exist the most recently started one wins.
type SinglePlanResolver struct{}

func (SinglePlanResolver) Resolve(plans []domain.MemberHealthPlan, date time.Time) (*domain.MemberHealthPlan, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("member health plan: %w", domain.ErrNotFound)
	}
	sorted := append([]domain.MemberHealthPlan(nil), plans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PlanStartAt.After(sorted[j].PlanStartAt) })
	return &sorted[0], nil
}

// EffectiveDatedResolver returns the plan whose effective window contains the date
type EffectiveDatedResolver struct{}

func (EffectiveDatedResolver) Resolve(plans []domain.MemberHealthPlan, date time.Time) (*domain.MemberHealthPlan, error) {
	for i := range plans {
		if plans[i].EffectiveAt(date) {
			p := plans[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("member health plan effective %s: %w", date.Format("2006-01-02"), domain.ErrNotFound)
}
