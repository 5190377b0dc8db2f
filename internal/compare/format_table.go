package compare

import (
	"fmt"
	"strings"

	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/output"
)

// TableFormatter formats comparison results as a console table
type TableFormatter struct{}

// Format generates a table comparing each claim under both policies
func (tf *TableFormatter) Format(compSet *ComparisonSet) string {
	var sb strings.Builder

	sb.WriteString("COMPUTATION POLICY COMPARISON\n")
	sb.WriteString(strings.Repeat("=", 96) + "\n")
	sb.WriteString(fmt.Sprintf("Base:        %s\n", describePolicy(compSet.BasePolicy)))
	sb.WriteString(fmt.Sprintf("Alternative: %s (%s)\n", compSet.AlternativeName, describePolicy(compSet.AlternativePolicy)))
	if compSet.Description != "" {
		sb.WriteString(fmt.Sprintf("             %s\n", compSet.Description))
	}
	sb.WriteString("\n")

	claimWidth := 22
	numWidth := 14

	sb.WriteString(fmt.Sprintf("%-*s %*s %*s %*s %*s %*s\n",
		claimWidth, "Claim",
		numWidth, "Base Member",
		numWidth, "Alt Member",
		numWidth, "Member Diff",
		numWidth, "Deductible",
		numWidth, "OOP"))
	sb.WriteString(strings.Repeat("-", 96) + "\n")

	for i := range compSet.Results {
		sb.WriteString(tf.formatRow(&compSet.Results[i], claimWidth, numWidth))
	}
	sb.WriteString(strings.Repeat("=", 96) + "\n")

	baseMember, altMember, baseEmployer, altEmployer := compSet.Totals()
	sb.WriteString(fmt.Sprintf("Member total:   %s -> %s\n", output.FormatCents(baseMember), output.FormatCents(altMember)))
	sb.WriteString(fmt.Sprintf("Employer total: %s -> %s\n", output.FormatCents(baseEmployer), output.FormatCents(altEmployer)))
	sb.WriteString(fmt.Sprintf("Changed claims: %d of %d\n", compSet.Changed(), len(compSet.Results)))

	if failed := tf.failures(compSet); len(failed) > 0 {
		sb.WriteString("\nFAILURES\n")
		sb.WriteString(strings.Repeat("-", 96) + "\n")
		for _, line := range failed {
			sb.WriteString(line + "\n")
		}
	}

	if len(compSet.Recommendations) > 0 {
		sb.WriteString("\nRECOMMENDATIONS\n")
		sb.WriteString(strings.Repeat("-", 96) + "\n")
		for _, rec := range compSet.Recommendations {
			sb.WriteString(fmt.Sprintf("* %s\n", rec))
		}
	}
	return sb.String()
}

// formatRow formats a single claim row
func (tf *TableFormatter) formatRow(r *ComparisonResult, claimWidth, numWidth int) string {
	marker := " "
	if r.Changed() {
		marker = "*"
	}
	return fmt.Sprintf("%-*s %*s %*s %*s %*s %*s\n",
		claimWidth, tf.truncate(marker+r.Claim, claimWidth),
		numWidth, memberCell(r.Base),
		numWidth, memberCell(r.Alternative),
		numWidth, tf.signed(r.MemberDiff),
		numWidth, tf.signed(r.DeductibleDiff),
		numWidth, tf.signed(r.OOPDiff))
}

func (tf *TableFormatter) failures(compSet *ComparisonSet) []string {
	var lines []string
	for _, r := range compSet.Results {
		if r.Base.Failed() {
			lines = append(lines, fmt.Sprintf("%s (base): %s", r.Claim, r.Base.Error))
		}
		if r.Alternative.Failed() {
			lines = append(lines, fmt.Sprintf("%s (%s): %s", r.Claim, compSet.AlternativeName, r.Alternative.Error))
		}
	}
	return lines
}

func memberCell(o Outcome) string {
	if o.Failed() {
		return "error"
	}
	return output.FormatCents(o.Breakdown.TotalMemberResponsibility)
}

// signed prefixes positive deltas with +
func (tf *TableFormatter) signed(cents int64) string {
	if cents > 0 {
		return "+" + output.FormatCents(cents)
	}
	return output.FormatCents(cents)
}

// truncate truncates a string to maxLen
func (tf *TableFormatter) truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// FormatCompact creates a single-line summary of the comparison
func (tf *TableFormatter) FormatCompact(compSet *ComparisonSet) string {
	baseMember, altMember, _, _ := compSet.Totals()
	return fmt.Sprintf("%s: %d/%d claims changed, member %s",
		compSet.AlternativeName, compSet.Changed(), len(compSet.Results), tf.signed(altMember-baseMember))
}

func describePolicy(p domain.ComputationPolicy) string {
	s := fmt.Sprintf("coverage=%s lookup=%s embedding=%s", p.CoverageSource, p.MemberPlanLookup, p.EmployeePlusEmbedding)
	if p.MigrationCutoff != nil {
		s += " cutoff=" + p.MigrationCutoff.Format("2006-01-02")
	}
	return s
}
