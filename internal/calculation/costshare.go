package calculation

import (
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/shopspring/decimal"
)

// GetCostShare builds the member's cost share for a category from the plan's
// cost-sharing rows. Premium-tier claims read the second-tier values when a row
// has them.
func GetCostShare(
	costSharings []domain.EmployerHealthPlanCostSharing,
	category domain.CostSharingCategory,
	tier domain.Tier,
) (domain.EligibilityInfo, error) {
	var info domain.EligibilityInfo
	found := false

	for i := range costSharings {
		cs := &costSharings[i]
		if cs.Category != category {
			continue
		}
		found = true

		amount := tierAmount(cs, tier)
		percent := tierPercent(cs, tier)

		switch cs.Type {
		case domain.CostSharingCopay:
			info.Copay = amount
		case domain.CostSharingCopayNoDeductible:
			info.Copay = amount
			info.IgnoreDeductible = true
		case domain.CostSharingCoinsurance:
			info.Coinsurance = percent
		case domain.CostSharingCoinsuranceNoDeductible:
			info.Coinsurance = percent
			info.IgnoreDeductible = true
		case domain.CostSharingCoinsuranceMin:
			info.CoinsuranceMin = amount
		case domain.CostSharingCoinsuranceMax:
			info.CoinsuranceMax = amount
		}
	}

	if !found {
		return domain.EligibilityInfo{}, &domain.NoCostSharingFoundError{Category: category, Tier: tier}
	}
	return info, nil
}

func tierAmount(cs *domain.EmployerHealthPlanCostSharing, tier domain.Tier) *int64 {
	v := cs.AbsoluteAmount
	if tier == domain.TierPremium && cs.SecondTierAbsoluteAmount != nil {
		v = cs.SecondTierAbsoluteAmount
	}
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func tierPercent(cs *domain.EmployerHealthPlanCostSharing, tier domain.Tier) *decimal.Decimal {
	v := cs.Percent
	if tier == domain.TierPremium && cs.SecondTierPercent != nil {
		v = cs.SecondTierPercent
	}
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
