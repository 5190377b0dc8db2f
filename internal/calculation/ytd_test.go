package calculation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEligibility struct {
	resp  *domain.EligibilityResponse
	err   error
	calls int
}

func (f *fakeEligibility) Verify(context.Context, *domain.MemberHealthPlan, *domain.EmployerHealthPlan) (*domain.EligibilityResponse, error) {
	f.calls++
	return f.resp, f.err
}

type fakeLedger struct {
	spend    *domain.YTDSpend
	policyID string
	gotFirst string
	gotLast  string
	calls    int
}

func (f *fakeLedger) GetPolicyID(context.Context, *domain.MemberHealthPlan) (string, error) {
	return f.policyID, nil
}

func (f *fakeLedger) YTDInfoFromSpends(_ context.Context, _ string, _ *domain.MemberHealthPlan, first, last string, _ time.Time) (*domain.YTDSpend, error) {
	f.calls++
	f.gotFirst, f.gotLast = first, last
	return f.spend, nil
}

func namedMemberPlan() *domain.MemberHealthPlan {
	return &domain.MemberHealthPlan{
		ID:               7,
		MemberID:         100,
		WalletID:         500,
		PatientFirstName: " Alex ",
		PatientLastName:  "Rivera",
		PlanSize:         domain.PlanSizeFamily,
	}
}

func TestGetYTD_FromEligibility(t *testing.T) {
	elig := &fakeEligibility{resp: &domain.EligibilityResponse{
		IndividualDeductible:          int64Ptr(200000),
		IndividualDeductibleRemaining: int64Ptr(150000),
		IndividualOOP:                 int64Ptr(400000),
		IndividualOOPRemaining:        int64Ptr(350000),
		FamilyDeductible:              int64Ptr(400000),
		FamilyDeductibleRemaining:     int64Ptr(500000),
		FamilyOOP:                     int64Ptr(800000),
	}}
	ledger := &fakeLedger{}
	acc := NewYTDAccumulator(elig, ledger)

	snap, err := acc.GetYTD(context.Background(), namedMemberPlan(), &domain.EmployerHealthPlan{ID: 1, RxIntegrated: true}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, domain.KnownYTD(50000), snap.IndividualDeductible)
	assert.Equal(t, domain.KnownYTD(50000), snap.IndividualOOP)
	assert.Equal(t, domain.KnownYTD(0), snap.FamilyDeductible, "remaining above total clamps to zero")
	assert.False(t, snap.FamilyOOP.Known)
	assert.Equal(t, "missing family oop remaining", snap.FamilyOOP.Placeholder)
	assert.False(t, snap.Complete())
	assert.Equal(t, 1, elig.calls)
	assert.Equal(t, 0, ledger.calls, "rx-integrated plans never read the ledger")
}

func TestGetYTD_FromEligibilityError(t *testing.T) {
	acc := NewYTDAccumulator(&fakeEligibility{err: domain.ErrNotFound}, nil)
	_, err := acc.GetYTD(context.Background(), namedMemberPlan(), &domain.EmployerHealthPlan{RxIntegrated: true}, time.Now())
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetYTD_FromLedger(t *testing.T) {
	ledger := &fakeLedger{
		policyID: "POL-1",
		spend: &domain.YTDSpend{
			IndividualYTDDeductible: 1000,
			IndividualYTDOOP:        2000,
			FamilyYTDDeductible:     3000,
			FamilyYTDOOP:            4000,
		},
	}
	elig := &fakeEligibility{}
	acc := NewYTDAccumulator(elig, ledger)

	snap, err := acc.GetYTD(context.Background(), namedMemberPlan(), &domain.EmployerHealthPlan{ID: 1}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ytd(1000, 2000, 3000, 4000), snap)
	assert.Equal(t, "Alex", ledger.gotFirst)
	assert.Equal(t, "Rivera", ledger.gotLast)
	assert.Equal(t, 0, elig.calls)
}

func TestGetYTD_MissingPatientName(t *testing.T) {
	ledger := &fakeLedger{policyID: "POL-1", spend: &domain.YTDSpend{}}
	acc := NewYTDAccumulator(nil, ledger)

	mp := namedMemberPlan()
	mp.PatientLastName = "   "
	_, err := acc.GetYTD(context.Background(), mp, &domain.EmployerHealthPlan{}, time.Now())

	var nameErr *domain.NoPatientNameFoundError
	require.True(t, errors.As(err, &nameErr))
	assert.Equal(t, int64(7), nameErr.MemberHealthPlanID)
	assert.Equal(t, 0, ledger.calls)
}
