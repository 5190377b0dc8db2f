package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/costshare/internal/compare"
	"github.com/rgehrsitz/costshare/internal/logging"
	"github.com/rgehrsitz/costshare/internal/transform"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Price claims under the current and an alternative computation policy",
	Long: "Prices each claim under the configured computation policy and under an alternative built from\n" +
		"a template and/or transforms, and reports the differences. Nothing is written.\n\n" +
		"Transforms use the form name:key=value, for example coverage_source:source=legacy_limits.",
	Example: "  costshare compare -d dataset.yaml --all --template legacy_limits\n" +
		"  costshare compare --procedure 12 --transform migration_cutoff:date=2024-06-01",
	RunE: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			return listPolicyEdits(cmd)
		}

		ctx := cmd.Context()
		e, err := openEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.close()

		procedures, reimbursements, err := selectClaims(cmd, e, "compare")
		if err != nil {
			return err
		}
		template, _ := cmd.Flags().GetString("template")
		transforms, _ := cmd.Flags().GetStringArray("transform")

		ce := compare.NewCompareEngine(e.engine.Collaborators, e.engine.Policy)
		ce.Logger = logging.NewEngineLogger(e.log, "compare")
		compSet, err := ce.Compare(ctx, compare.CompareOptions{
			Template:       template,
			Transforms:     transforms,
			Procedures:     procedures,
			Reimbursements: reimbursements,
		})
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		var out string
		switch strings.ToLower(strings.TrimSpace(format)) {
		case "console", "table", "text":
			out = (&compare.TableFormatter{}).Format(compSet)
		case "compact":
			out = (&compare.TableFormatter{}).FormatCompact(compSet) + "\n"
		case "csv":
			out, err = (&compare.CSVFormatter{}).Format(compSet)
		case "json":
			out, err = (&compare.JSONFormatter{Pretty: true}).Format(compSet)
		default:
			return fmt.Errorf("unsupported format %q (available: console, compact, csv, json)", format)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

// listPolicyEdits prints the built-in templates and transforms
func listPolicyEdits(cmd *cobra.Command) error {
	w := cmd.OutOrStdout()
	templates := transform.CreateBuiltInTemplates()
	fmt.Fprintln(w, "Templates:")
	for _, name := range templates.List() {
		t, _ := templates.Get(name)
		fmt.Fprintf(w, "  %-24s %s\n", t.Name, t.Description)
	}
	fmt.Fprintln(w, "Transforms:")
	for _, name := range transform.NewTransformRegistry().List() {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}

func init() {
	addClaimFlags(compareCmd, "compare")
	compareCmd.Flags().String("template", "", "Built-in policy template for the alternative")
	compareCmd.Flags().StringArray("transform", nil, "Policy transform name:key=value, repeatable")
	compareCmd.Flags().Bool("list", false, "List templates and transforms")
	compareCmd.Flags().StringP("format", "f", "console", "Output format: console, compact, csv or json")
}
