package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rgehrsitz/costshare/internal/config"
	"github.com/rgehrsitz/costshare/internal/domain"
	"github.com/rgehrsitz/costshare/internal/output"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// errClaimsFailed is returned after output is written when some claims could not be priced
var errClaimsFailed = errors.New("one or more claims failed")

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "costshare %s (commit %s, built %s)\n", version, commit, date)
			if info := buildInfo(); info != "" {
				fmt.Fprintln(cmd.OutOrStdout(), info)
			}
		},
	}
}

func buildInfo() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		return bi.Main.Path + " " + bi.GoVersion
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:           "costshare",
	Short:         "Deductible and out-of-pocket cost breakdown engine",
	Long:          "Splits treatment procedure and reimbursement claims between member and employer, and audits stored breakdowns",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate [dataset-file]",
	Short: "Validate a dataset file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := config.NewInputParser().LoadFromFile(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Dataset %s is valid (%d employer plans, %d member plans, %d procedures, %d reimbursement requests)\n",
			args[0], len(ds.EmployerHealthPlans), len(ds.MemberHealthPlans), len(ds.TreatmentProcedures), len(ds.ReimbursementRequests))
		return nil
	},
}

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Calculate and store cost breakdowns for claims",
	Long: "Calculates the member/employer split for the given treatment procedures and reimbursement requests.\n" +
		"Every calculation appends a new breakdown version for its claim.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer e.close()

		procedures, reimbursements, err := selectClaims(cmd, e, "calculate")
		if err != nil {
			return err
		}

		results := &output.Results{GeneratedAt: time.Now().UTC()}
		for _, id := range procedures {
			cb, err := e.engine.CalculateForProcedure(ctx, id)
			if err != nil {
				results.Failures = append(results.Failures, output.Failure{Claim: fmt.Sprintf("procedure:%d", id), Error: err.Error()})
				continue
			}
			results.Breakdowns = append(results.Breakdowns, *cb)
		}
		for _, id := range reimbursements {
			cb, err := e.engine.CalculateForReimbursement(ctx, id)
			if err != nil {
				results.Failures = append(results.Failures, output.Failure{Claim: fmt.Sprintf("reimbursement:%d", id), Error: err.Error()})
				continue
			}
			results.Breakdowns = append(results.Breakdowns, *cb)
		}
		e.logMetrics()

		if err := writeResults(cmd, results); err != nil {
			return err
		}
		if len(results.Failures) > 0 {
			return fmt.Errorf("%w: %d of %d", errClaimsFailed, len(results.Failures), len(procedures)+len(reimbursements))
		}
		return nil
	},
}

// selectClaims reads --procedure, --reimbursement and --all
func selectClaims(cmd *cobra.Command, e *env, verb string) ([]int64, []int64, error) {
	procedures, _ := cmd.Flags().GetInt64Slice("procedure")
	reimbursements, _ := cmd.Flags().GetInt64Slice("reimbursement")
	if all, _ := cmd.Flags().GetBool("all"); all {
		if e.dataset == nil {
			return nil, nil, fmt.Errorf("--all requires --dataset")
		}
		procedures, reimbursements = datasetClaims(e.dataset)
	}
	if len(procedures) == 0 && len(reimbursements) == 0 {
		return nil, nil, fmt.Errorf("nothing to %s: pass --procedure, --reimbursement or --all", verb)
	}
	return procedures, reimbursements, nil
}

func addClaimFlags(cmd *cobra.Command, verb string) {
	cmd.Flags().Int64Slice("procedure", nil, "Treatment procedure ids to "+verb)
	cmd.Flags().Int64Slice("reimbursement", nil, "Reimbursement request ids to "+verb)
	cmd.Flags().Bool("all", false, "Use every claim in the dataset")
}

// datasetClaims returns every procedure and reimbursement id in the dataset, in id order
func datasetClaims(ds *domain.Dataset) ([]int64, []int64) {
	procedures := make([]int64, 0, len(ds.TreatmentProcedures))
	for _, tp := range ds.TreatmentProcedures {
		procedures = append(procedures, tp.ID)
	}
	reimbursements := make([]int64, 0, len(ds.ReimbursementRequests))
	for _, rr := range ds.ReimbursementRequests {
		reimbursements = append(reimbursements, rr.ID)
	}
	sort.Slice(procedures, func(i, j int) bool { return procedures[i] < procedures[j] })
	sort.Slice(reimbursements, func(i, j int) bool { return reimbursements[i] < reimbursements[j] })
	return procedures, reimbursements
}

// writeResults renders results with the --format formatter to stdout, or to a
// report file when --save is set
func writeResults(cmd *cobra.Command, results *output.Results) error {
	format, _ := cmd.Flags().GetString("format")
	f := output.GetFormatterByName(format)
	if f == nil {
		return fmt.Errorf("unsupported format %q (available: %s; aliases: %s)", format,
			strings.Join(output.AvailableFormatterNames(), ", "), strings.Join(output.AvailableFormatAliases(), ", "))
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		ext := f.Name()
		if ext == "console" {
			ext = "txt"
		}
		filename, err := output.WriteFormatted(f, results, ext)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", filename)
		return nil
	}

	data, err := f.Format(results)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "console", "Output format: console, json or csv")
	cmd.Flags().Bool("save", false, "Write the report to a timestamped file instead of stdout")
}

func init() {
	rootCmd.PersistentFlags().StringP("dataset", "d", "", "YAML dataset file (defaults to DATABASE_URL when empty)")
	rootCmd.PersistentFlags().String("env-file", "", "Optional .env file with settings")

	addClaimFlags(calculateCmd, "calculate")
	addOutputFlags(calculateCmd)

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
