package compare

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// CSVFormatter formats comparison results as CSV, one row per claim
type CSVFormatter struct{}

// Format generates CSV output for comparison results
func (cf *CSVFormatter) Format(compSet *ComparisonSet) (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	header := []string{
		"Claim",
		"Alternative",
		"BaseMember",
		"BaseEmployer",
		"BaseError",
		"AltMember",
		"AltEmployer",
		"AltError",
		"MemberDiff",
		"EmployerDiff",
		"DeductibleDiff",
		"OOPDiff",
		"Changed",
	}
	if err := writer.Write(header); err != nil {
		return "", err
	}

	for i := range compSet.Results {
		if err := writer.Write(cf.formatRow(&compSet.Results[i], compSet.AlternativeName)); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (cf *CSVFormatter) formatRow(r *ComparisonResult, alternative string) []string {
	baseMember, baseEmployer := amounts(r.Base)
	altMember, altEmployer := amounts(r.Alternative)
	return []string{
		r.Claim,
		alternative,
		baseMember,
		baseEmployer,
		r.Base.Error,
		altMember,
		altEmployer,
		r.Alternative.Error,
		formatInt(r.MemberDiff),
		formatInt(r.EmployerDiff),
		formatInt(r.DeductibleDiff),
		formatInt(r.OOPDiff),
		strconv.FormatBool(r.Changed()),
	}
}

// amounts returns member and employer responsibility in cents, blank on failure
func amounts(o Outcome) (string, string) {
	if o.Failed() {
		return "", ""
	}
	return formatInt(o.Breakdown.TotalMemberResponsibility), formatInt(o.Breakdown.TotalEmployerResponsibility)
}

func formatInt(i int64) string {
	return strconv.FormatInt(i, 10)
}
