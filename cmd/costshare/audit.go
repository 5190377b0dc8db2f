package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/costshare/internal/audit"
	"github.com/rgehrsitz/costshare/internal/logging"
	"github.com/rgehrsitz/costshare/internal/output"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit the stored cost breakdowns of procedures completed on a day",
	Long: "Re-resolves coverage, cost share and year-to-date figures for every procedure completed\n" +
		"on the given UTC day and compares them with the stored breakdown. Nothing is written.",
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := auditDay(cmd)
		if err != nil {
			return err
		}

		e, err := openEnv(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer e.close()

		reporter := audit.NewReporter(e.engine, e.billing(), e.registry)
		reporter.Logger = logging.NewEngineLogger(e.log, "audit")

		window := audit.DayWindow(day)
		report, err := reporter.Audit(cmd.Context(), window)
		if err != nil {
			return fmt.Errorf("audit %s: %w", window.Start.Format("2006-01-02"), err)
		}
		e.log.Info().
			Time("day", window.Start).
			Int("results", len(report.Results)).
			Int("mismatches", report.Mismatches()).
			Int("errors", len(report.Errors)).
			Msg("audit complete")
		e.logMetrics()

		return writeResults(cmd, &output.Results{GeneratedAt: time.Now().UTC(), Audit: report})
	},
}

// auditDay parses --date, defaulting to yesterday in UTC
func auditDay(cmd *cobra.Command) (time.Time, error) {
	value, _ := cmd.Flags().GetString("date")
	if value == "" {
		return time.Now().UTC().AddDate(0, 0, -1), nil
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
	}
	return day, nil
}

func init() {
	auditCmd.Flags().String("date", "", "UTC day to audit, YYYY-MM-DD (default yesterday)")
	addOutputFlags(auditCmd)
}
