package output

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/rgehrsitz/costshare/internal/audit"
	"github.com/rgehrsitz/costshare/internal/domain"
)

// CSVFormatter writes one row per breakdown, or one row per audited procedure
// when the results hold an audit report
type CSVFormatter struct{}

func (CSVFormatter) Name() string { return "csv" }

func (c CSVFormatter) Format(results *Results) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)

	var err error
	if results.Audit != nil {
		err = c.writeAudit(w, results.Audit)
	} else {
		err = c.writeBreakdowns(w, results.Breakdowns)
	}
	if err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (CSVFormatter) writeBreakdowns(w *csv.Writer, breakdowns []domain.CostBreakdown) error {
	header := []string{"Claim", "MemberID", "WalletID", "Version", "MemberResponsibility", "EmployerResponsibility",
		"Deductible", "Coinsurance", "Copay", "Overage", "OOPApplied", "OOPMaxReached",
		"DeductibleRemaining", "OOPRemaining", "FamilyDeductibleRemaining", "FamilyOOPRemaining",
		"PlanSize", "CoverageType", "Tier"}
	if err := w.Write(header); err != nil {
		return err
	}
	for i := range breakdowns {
		cb := &breakdowns[i]
		row := []string{
			cb.ClaimKey(),
			i64(cb.MemberID),
			i64(cb.WalletID),
			strconv.Itoa(cb.EffectiveVersion),
			cents(cb.TotalMemberResponsibility),
			cents(cb.TotalEmployerResponsibility),
			cents(cb.DeductibleApplied),
			cents(cb.CoinsuranceApplied),
			cents(cb.CopayApplied),
			cents(cb.OverageAmount),
			cents(cb.OOPApplied),
			strconv.FormatBool(cb.OOPMaxReached),
			cents(cb.DeductibleRemaining),
			cents(cb.OOPRemaining),
			cents(cb.FamilyDeductibleRemaining),
			cents(cb.FamilyOOPRemaining),
			string(cb.PlanSize),
			string(cb.CoverageType),
			cb.Tier.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (CSVFormatter) writeAudit(w *csv.Writer, report *audit.Report) error {
	header := []string{"ProcedureID", "MemberID", "WalletID", "Status", "Detail",
		"PersistedMember", "PersistedEmployer", "RecomputedMember", "RecomputedEmployer",
		"MemberBillsYTD", "EmployerBillsYTD"}
	if err := w.Write(header); err != nil {
		return err
	}
	for i := range report.Results {
		r := &report.Results[i]
		recomputedMember, recomputedEmployer := "", ""
		if r.Recomputed != nil {
			recomputedMember = cents(r.Recomputed.TotalMemberResponsibility)
			recomputedEmployer = cents(r.Recomputed.TotalEmployerResponsibility)
		}
		row := []string{
			i64(r.ProcedureID),
			i64(r.MemberID),
			i64(r.WalletID),
			resultStatus(r),
			"",
			cents(r.Persisted.TotalMemberResponsibility),
			cents(r.Persisted.TotalEmployerResponsibility),
			recomputedMember,
			recomputedEmployer,
			cents(r.MemberBillsYTD),
			cents(r.EmployerBillsYTD),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	for _, e := range report.SortedErrors() {
		row := []string{i64(e.ProcedureID), i64(e.MemberID), i64(e.WalletID), e.Reason, e.Detail, "", "", "", "", "", ""}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func resultStatus(r *audit.ResultRow) string {
	switch {
	case r.Recomputed == nil:
		return "incomplete_ytd"
	case r.Matches():
		return "match"
	default:
		return "mismatch"
	}
}

// cents writes a plain decimal dollar amount for spreadsheets
func cents(v int64) string {
	s := FormatCents(v)
	if s[0] == '-' {
		return "-" + s[2:]
	}
	return s[1:]
}

func i64(v int64) string { return strconv.FormatInt(v, 10) }
