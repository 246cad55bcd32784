package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/planproof/internal/extract"
	"github.com/dshills/planproof/internal/plan"
)

// CanonOptions holds flags for the canon command.
type CanonOptions struct {
	*RootOptions
	ShowOriginal bool
}

// NewCanonCommand creates the canon command.
func NewCanonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CanonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "canon <sql>",
		Short: "Print the canonical logical plan of a query",
		Long: `Extract the logical plan of a query and print its canonical form.

The argument may be @path to read the query from a file. With --format json
the plan is printed as its serialized record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCanon(cmd, opts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVar(&opts.ShowOriginal, "show-original", false, "also print the plan before canonicalization")

	return cmd
}

// CanonReport is the canon command's output.
type CanonReport struct {
	Original  *plan.PlanRecord `json:"original,omitempty"`
	Canonical *plan.PlanRecord `json:"canonical"`
}

func runCanon(cmd *cobra.Command, opts *CanonOptions, arg string) error {
	out := opts.formatter(cmd)

	cfg, logger, err := opts.setup(cmd)
	if err != nil {
		return out.Fail(err)
	}
	v, err := newValidator(cfg, logger)
	if err != nil {
		return out.Fail(err)
	}

	sql, err := readSQL(arg)
	if err != nil {
		return out.Fail(err)
	}
	p, err := extract.New(extract.WithLogger(logger)).Extract(cmd.Context(), sql)
	if err != nil {
		return out.Fail(err)
	}
	canonical, err := v.Canonicalize(p)
	if err != nil {
		return out.Fail(err)
	}

	report := CanonReport{Canonical: planRecord(canonical)}
	if opts.ShowOriginal {
		report.Original = planRecord(p)
	}
	return out.Success(report, func(w io.Writer) {
		if opts.ShowOriginal {
			fmt.Fprintf(w, "original:\n%s", indent(p.Root.Pretty()))
			fmt.Fprintf(w, "canonical:\n%s", indent(canonical.Root.Pretty()))
			return
		}
		fmt.Fprint(w, canonical.Root.Pretty())
	})
}

func indent(s string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString("  ")
		b.WriteString(line)
	}
	return b.String()
}
