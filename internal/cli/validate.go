package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/planproof/internal/compare"
	"github.com/dshills/planproof/internal/plan"
	"github.com/dshills/planproof/internal/validator"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Mode      string
	ShowPlans bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <sqlA> <sqlB>",
		Short: "Check whether two queries are equivalent",
		Long: `Extract the logical plans of two queries, canonicalize both and compare them.

Either argument may be @path to read the query from a file. Exits 1 when
the queries could not be proven equivalent.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, opts, args[0], args[1])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "comparison mode (strict, relaxed, heuristic); defaults to the configured mode")
	cmd.Flags().BoolVar(&opts.ShowPlans, "show-plans", false, "include both canonical plans in the output")

	return cmd
}

func runValidate(cmd *cobra.Command, opts *ValidateOptions, argA, argB string) error {
	out := opts.formatter(cmd)

	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return out.Fail(err)
	}
	v, err := newValidator(cfg, logger)
	if err != nil {
		return out.Fail(err)
	}
	mode := v.Mode()
	if opts.Mode != "" {
		if mode, err = compare.ParseMode(opts.Mode); err != nil {
			return WrapExitError(ExitCommandError, "invalid --mode", err)
		}
	}

	sqlA, err := readSQL(argA)
	if err != nil {
		return out.Fail(err)
	}
	sqlB, err := readSQL(argB)
	if err != nil {
		return out.Fail(err)
	}

	res, err := v.Validate(cmd.Context(), sqlA, sqlB, mode)
	if err != nil {
		return out.Fail(err)
	}

	report := newValidationReport(res, opts.ShowPlans)
	if !res.Equivalent {
		if err := out.Failed(report, report.writeText); err != nil {
			return err
		}
		return &ExitError{Code: ExitFailure, Message: "queries not proven equivalent", Reported: true}
	}
	return out.Success(report, report.writeText)
}

// ValidationReport is the validate command's output.
type ValidationReport struct {
	Equivalent  bool                 `json:"equivalent"`
	Confidence  float64              `json:"confidence"`
	Mode        string               `json:"mode"`
	Reason      string               `json:"reason"`
	Rounds      int                  `json:"rounds"`
	Differences []compare.Difference `json:"differences,omitempty"`
	Failure     *CLIError            `json:"failure,omitempty"`
	Left        *plan.PlanRecord     `json:"left,omitempty"`
	Right       *plan.PlanRecord     `json:"right,omitempty"`

	leftPretty, rightPretty string
}

func newValidationReport(res validator.Result, showPlans bool) *ValidationReport {
	r := &ValidationReport{
		Equivalent:  res.Equivalent,
		Confidence:  res.Confidence,
		Mode:        res.Mode.String(),
		Reason:      res.Reason,
		Rounds:      res.Rounds,
		Differences: res.Differences,
	}
	if res.Failure != nil {
		r.Failure = &CLIError{Code: res.Failure.Code, Message: res.Failure.Message, Detail: res.Failure.Detail}
	}
	if showPlans && res.Left != nil && res.Right != nil {
		r.Left = planRecord(res.Left)
		r.Right = planRecord(res.Right)
		r.leftPretty = res.Left.Root.Pretty()
		r.rightPretty = res.Right.Root.Pretty()
	}
	return r
}

func (r *ValidationReport) writeText(w io.Writer) {
	verdict := "equivalent"
	if !r.Equivalent {
		verdict = "not equivalent"
	}
	fmt.Fprintf(w, "%s (confidence %.2f, mode %s)\n", verdict, r.Confidence, r.Mode)
	fmt.Fprintf(w, "reason: %s\n", r.Reason)
	if r.Failure != nil {
		fmt.Fprintf(w, "failure [%s]: %s\n", r.Failure.Code, r.Failure.Message)
	}
	for _, d := range r.Differences {
		fmt.Fprintf(w, "  %s\n", d)
	}
	if r.leftPretty != "" {
		fmt.Fprintf(w, "left:\n%s", indent(r.leftPretty))
		fmt.Fprintf(w, "right:\n%s", indent(r.rightPretty))
	}
}

func planRecord(p *plan.LogicalPlan) *plan.PlanRecord {
	return &plan.PlanRecord{SQL: p.SQL, Metadata: p.Metadata, Root: plan.NodeToRecord(p.Root)}
}
