package calculation

import (
	"errors"
	"testing"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func TestGetCostShare(t *testing.T) {
	rows := []domain.EmployerHealthPlanCostSharing{
		{Category: domain.CategoryMedicalCare, Type: domain.CostSharingCopay, AbsoluteAmount: int64Ptr(2000)},
		{Category: domain.CategoryMedicalCare, Type: domain.CostSharingCoinsurance, Percent: decimalPtr(decimal.NewFromFloat(0.05))},
		{
			Category: domain.CategoryDiagnosticMedical, Type: domain.CostSharingCoinsurance,
			Percent: decimalPtr(decimal.NewFromFloat(0.2)), SecondTierPercent: decimalPtr(decimal.NewFromFloat(0.1)),
		},
		{Category: domain.CategoryDiagnosticMedical, Type: domain.CostSharingCoinsuranceMin, AbsoluteAmount: int64Ptr(1000)},
		{
			Category: domain.CategoryDiagnosticMedical, Type: domain.CostSharingCoinsuranceMax,
			AbsoluteAmount: int64Ptr(20000), SecondTierAbsoluteAmount: int64Ptr(15000),
		},
		{Category: domain.CategoryGenericPrescriptions, Type: domain.CostSharingCoinsuranceNoDeductible, Percent: decimalPtr(decimal.NewFromFloat(0.25))},
		{Category: domain.CategoryConsultation, Type: domain.CostSharingCopayNoDeductible, AbsoluteAmount: int64Ptr(1500)},
	}

	t.Run("copay and coinsurance both populated", func(t *testing.T) {
		info, err := GetCostShare(rows, domain.CategoryMedicalCare, domain.TierNone)
		require.NoError(t, err)
		require.NotNil(t, info.Copay)
		require.NotNil(t, info.Coinsurance)
		assert.Equal(t, int64(2000), *info.Copay)
		assert.True(t, info.Coinsurance.Equal(decimal.NewFromFloat(0.05)))
		assert.False(t, info.IgnoreDeductible)
	})

	t.Run("bounds and first-tier values", func(t *testing.T) {
		info, err := GetCostShare(rows, domain.CategoryDiagnosticMedical, domain.TierSecondary)
		require.NoError(t, err)
		assert.Nil(t, info.Copay)
		assert.True(t, info.Coinsurance.Equal(decimal.NewFromFloat(0.2)))
		assert.Equal(t, int64(1000), *info.CoinsuranceMin)
		assert.Equal(t, int64(20000), *info.CoinsuranceMax)
	})

	t.Run("premium tier reads second-tier values", func(t *testing.T) {
		info, err := GetCostShare(rows, domain.CategoryDiagnosticMedical, domain.TierPremium)
		require.NoError(t, err)
		assert.True(t, info.Coinsurance.Equal(decimal.NewFromFloat(0.1)))
		assert.Equal(t, int64(1000), *info.CoinsuranceMin, "falls back to first tier when no second-tier value")
		assert.Equal(t, int64(15000), *info.CoinsuranceMax)
	})

	t.Run("no-deductible variants", func(t *testing.T) {
		info, err := GetCostShare(rows, domain.CategoryGenericPrescriptions, domain.TierNone)
		require.NoError(t, err)
		assert.True(t, info.IgnoreDeductible)
		assert.True(t, info.Coinsurance.Equal(decimal.NewFromFloat(0.25)))

		info, err = GetCostShare(rows, domain.CategoryConsultation, domain.TierNone)
		require.NoError(t, err)
		assert.True(t, info.IgnoreDeductible)
		assert.Equal(t, int64(1500), *info.Copay)
	})

	t.Run("missing category", func(t *testing.T) {
		_, err := GetCostShare(rows, domain.CategorySpecialtyPrescriptions, domain.TierNone)
		var nf *domain.NoCostSharingFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, domain.CategorySpecialtyPrescriptions, nf.Category)
	})

	t.Run("returned values do not alias the rows", func(t *testing.T) {
		info, err := GetCostShare(rows, domain.CategoryMedicalCare, domain.TierNone)
		require.NoError(t, err)
		*info.Copay = 1
		assert.Equal(t, int64(2000), *rows[0].AbsoluteAmount)
	})
}
