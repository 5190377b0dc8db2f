package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rgehrsitz/costshare/internal/audit"
	"github.com/rgehrsitz/costshare/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 2)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
)

// ConsoleFormatter renders breakdowns and audit reports as console tables
type ConsoleFormatter struct{}

func (ConsoleFormatter) Name() string { return "console" }

func (c ConsoleFormatter) Format(results *Results) ([]byte, error) {
	var sb strings.Builder

	if results.Audit != nil {
		c.writeAudit(&sb, results.Audit)
	} else {
		c.writeBreakdowns(&sb, results)
	}
	return []byte(sb.String()), nil
}

func (ConsoleFormatter) writeBreakdowns(sb *strings.Builder, results *Results) {
	sb.WriteString(titleStyle.Render("COST BREAKDOWNS"))
	sb.WriteString("\n")
	if !results.GeneratedAt.IsZero() {
		sb.WriteString(labelStyle.Render("Generated: " + results.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST")))
		sb.WriteString("\n")
	}

	if len(results.Breakdowns) == 0 {
		sb.WriteString("\nNo cost breakdowns\n")
	} else {
		sb.WriteString(sectionStyle.Render("CLAIMS"))
		sb.WriteString("\n")
		fmt.Fprintf(sb, "%-20s %4s %13s %13s %12s %12s %10s %10s %12s %12s\n",
			"Claim", "Ver", "Member", "Employer", "Deductible", "Coinsurance", "Copay", "Overage", "Ded Left", "OOP Left")
		sb.WriteString(strings.Repeat("-", 124) + "\n")

		var member, employer int64
		for i := range results.Breakdowns {
			cb := &results.Breakdowns[i]
			member += cb.TotalMemberResponsibility
			employer += cb.TotalEmployerResponsibility
			marker := ""
			if cb.OOPMaxReached {
				marker = " " + okStyle.Render("OOP max reached")
			}
			fmt.Fprintf(sb, "%-20s %4d %13s %13s %12s %12s %10s %10s %12s %12s%s\n",
				cb.ClaimKey(), cb.EffectiveVersion,
				FormatCents(cb.TotalMemberResponsibility), FormatCents(cb.TotalEmployerResponsibility),
				FormatCents(cb.DeductibleApplied), FormatCents(cb.CoinsuranceApplied),
				FormatCents(cb.CopayApplied), FormatCents(cb.OverageAmount),
				FormatCents(cb.DeductibleRemaining), FormatCents(cb.OOPRemaining), marker)
		}
		sb.WriteString(strings.Repeat("-", 124) + "\n")
		fmt.Fprintf(sb, "%-25s %13s %13s\n", "TOTAL", FormatCents(member), FormatCents(employer))
	}

	if len(results.Failures) > 0 {
		sb.WriteString(sectionStyle.Render("FAILED CLAIMS"))
		sb.WriteString("\n")
		for _, f := range results.Failures {
			fmt.Fprintf(sb, "  %s %s\n", errorStyle.Render(f.Claim), f.Error)
		}
	}
}

func (ConsoleFormatter) writeAudit(sb *strings.Builder, report *audit.Report) {
	sb.WriteString(titleStyle.Render("COST BREAKDOWN AUDIT"))
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render(fmt.Sprintf("Window: %s to %s",
		report.Window.Start.UTC().Format("2006-01-02 15:04"), report.Window.End.UTC().Format("2006-01-02 15:04"))))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Matched: %d  Mismatched: %d  Errors: %d  Members: %d\n",
		len(report.Results), report.Mismatches(), len(report.Errors), len(report.Users))

	if len(report.Results) > 0 {
		sb.WriteString(sectionStyle.Render("PROCEDURES"))
		sb.WriteString("\n")
		fmt.Fprintf(sb, "%-10s %-10s %-14s %-10s %13s %13s %13s %13s %-14s\n",
			"Procedure", "Member", "Plan Size", "Tier", "Stored Mbr", "Recalc Mbr", "Bills Mbr", "Bills Emp", "Status")
		sb.WriteString(strings.Repeat("-", 118) + "\n")
		for i := range report.Results {
			r := &report.Results[i]
			recalc := "-"
			if r.Recomputed != nil {
				recalc = FormatCents(r.Recomputed.TotalMemberResponsibility)
			}
			status := resultStatus(r)
			if status == "match" {
				status = okStyle.Render(status)
			} else {
				status = errorStyle.Render(status)
			}
			fmt.Fprintf(sb, "%-10d %-10d %-14s %-10s %13s %13s %13s %13s %s\n",
				r.ProcedureID, r.MemberID, r.PlanSize, r.Tier,
				FormatCents(r.Persisted.TotalMemberResponsibility), recalc,
				FormatCents(r.MemberBillsYTD), FormatCents(r.EmployerBillsYTD), status)
			writeResolution(sb, r)
		}
	}

	if len(report.Errors) > 0 {
		sb.WriteString(sectionStyle.Render("UNMATCHED PROCEDURES"))
		sb.WriteString("\n")
		for _, e := range report.SortedErrors() {
			fmt.Fprintf(sb, "  %-10d member %-8d %s %s\n", e.ProcedureID, e.MemberID, errorStyle.Render(e.Reason), e.Detail)
		}
	}

	if len(report.Users) > 0 {
		sb.WriteString(sectionStyle.Render("MEMBERS"))
		sb.WriteString("\n")
		for _, u := range report.SortedUsers() {
			name := strings.TrimSpace(u.FirstName + " " + u.LastName)
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(sb, "  %-10d wallet %-8d %-24s %s\n", u.MemberID, u.WalletID, name, u.PlanSize)
		}
	}
}

func writeResolution(sb *strings.Builder, r *audit.ResultRow) {
	cov := r.Coverage
	fmt.Fprintf(sb, "%12s%s ind ded %s oop %s | fam ded %s oop %s | embedded ded=%t oop=%t\n", "",
		labelStyle.Render("limits:"),
		FormatCents(cov.IndividualDeductible), FormatCents(cov.IndividualOOP),
		FormatCents(cov.FamilyDeductible), FormatCents(cov.FamilyOOP),
		cov.IsDeductibleEmbedded, cov.IsOOPEmbedded)
	fmt.Fprintf(sb, "%12s%s %s copay %s coinsurance %s ignore deductible=%t\n", "",
		labelStyle.Render("cost share:"), r.Category,
		formatOptionalCents(r.CostShare.Copay), FormatRate(r.CostShare.Coinsurance), r.CostShare.IgnoreDeductible)
	fmt.Fprintf(sb, "%12s%s ind ded %s oop %s | fam ded %s oop %s\n", "",
		labelStyle.Render("ytd:"),
		ytdCell(r.YTD.IndividualDeductible), ytdCell(r.YTD.IndividualOOP),
		ytdCell(r.YTD.FamilyDeductible), ytdCell(r.YTD.FamilyOOP))
}

func ytdCell(f domain.YTDFigure) string {
	if !f.Known {
		return f.Placeholder
	}
	return FormatCents(f.Amount)
}
