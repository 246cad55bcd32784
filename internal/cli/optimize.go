package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	_ "github.com/lib/pq" // registers the postgres driver for pgcost
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/optimizer"
	"github.com/dshills/planproof/internal/optimizer/pgcost"
)

// OptimizeOptions holds flags for the optimize command.
type OptimizeOptions struct {
	*RootOptions
	DSN       string
	Mode      string
	Selection string
}

// CandidateFile is the input of the optimize command.
//
//	query: SELECT ...
//	candidates:
//	  - SELECT ...
//	costs:
//	  - sql: SELECT ...
//	    cost: 120
type CandidateFile struct {
	Query      string      `yaml:"query"`
	Candidates []string    `yaml:"candidates"`
	Costs      []CostEntry `yaml:"costs"`
}

// CostEntry is a fixed cost for one statement.
type CostEntry struct {
	SQL  string  `yaml:"sql"`
	Cost float64 `yaml:"cost"`
}

// NewOptimizeCommand creates the optimize command.
func NewOptimizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OptimizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "optimize <file.yaml>",
		Short: "Select the cheapest candidate rewrite proven equivalent to a query",
		Long: `Validate every candidate rewrite against the query, cost the valid ones and
select one according to the configured strategy.

Costs come from the file's costs list, or from PostgreSQL EXPLAIN when a DSN
is configured or passed with --dsn. Exits 1 when no rewrite was selected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, opts, args[0])
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL connection string used to estimate costs")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "comparison mode (strict, relaxed, heuristic)")
	cmd.Flags().StringVar(&opts.Selection, "selection", "", "selection strategy (best_cost, first_valid, conservative)")

	return cmd
}

func runOptimize(cmd *cobra.Command, opts *OptimizeOptions, path string) error {
	out := opts.formatter(cmd)

	base, logger, err := opts.setup(cmd)
	if err != nil {
		return out.Fail(err)
	}
	cfg := *base
	cfg.LoadFromFlags("", "", opts.Mode, opts.DSN)
	if opts.Selection != "" {
		cfg.Optimizer.Selection = opts.Selection
	}
	strategy, err := optimizer.StrategyFromConfig(&cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid strategy", err)
	}

	file, err := loadCandidateFile(path)
	if err != nil {
		return out.Fail(err)
	}

	v, err := newValidator(&cfg, logger)
	if err != nil {
		return out.Fail(err)
	}

	var cost optimizer.CostEstimator
	switch {
	case cfg.Cost.DSN != "":
		est, err := pgcost.Open(cmd.Context(), cfg.Cost.Driver, cfg.Cost.DSN,
			pgcost.WithTimeout(cfg.Cost.Timeout), pgcost.WithLogger(logger))
		if err != nil {
			return out.Fail(err)
		}
		defer est.Close()
		cost = est
	case len(file.Costs) > 0:
		static := make(optimizer.StaticCost, len(file.Costs))
		for _, c := range file.Costs {
			static[c.SQL] = c.Cost
		}
		cost = static
	default:
		return out.Fail(verrors.Newf(verrors.ConfigFileError, "%s lists no costs", path).
			WithHint("add a costs list or pass --dsn"))
	}

	opt, err := optimizer.New(v, optimizer.StaticGenerator(file.Candidates), cost,
		optimizer.WithStrategy(strategy),
		optimizer.WithWorkers(cfg.Optimizer.Workers),
		optimizer.WithLogger(logger))
	if err != nil {
		return out.Fail(err)
	}

	outcome, err := opt.Optimize(cmd.Context(), file.Query)
	if err != nil {
		return out.Fail(err)
	}

	text := func(w io.Writer) { writeOutcome(w, outcome) }
	if !outcome.Optimized {
		if err := out.Failed(outcome, text); err != nil {
			return err
		}
		return &ExitError{Code: ExitFailure, Message: "no rewrite selected", Reported: true}
	}
	return out.Success(outcome, text)
}

func loadCandidateFile(path string) (*CandidateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.InputFileError(path, err)
	}

	var file CandidateFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, verrors.ConfigError(path, err)
	}
	if file.Query == "" {
		return nil, verrors.ConfigError(path, fmt.Errorf("query is required"))
	}
	return &file, nil
}

func writeOutcome(w io.Writer, o optimizer.Outcome) {
	if o.Optimized {
		fmt.Fprintf(w, "optimized: cost %.2f -> %.2f (%.2fx)\n", o.OriginalCost, o.OptimizedCost, o.ImprovementRatio)
	} else {
		fmt.Fprintf(w, "not optimized: original cost %.2f\n", o.OriginalCost)
	}
	fmt.Fprintf(w, "reason: %s\n", o.Reason)

	for _, c := range o.Candidates {
		status := "rejected"
		if c.Valid {
			status = "valid"
		}
		cost := "-"
		if c.Cost > 0 {
			cost = fmt.Sprintf("%.2f", c.Cost)
		}
		fmt.Fprintf(w, "  [%d] %s confidence=%.2f cost=%s: %s\n", c.Index, status, c.Confidence, cost, c.Reason)
	}

	if o.Optimized {
		fmt.Fprintf(w, "rewrite:\n  %s\n", o.OptimizedSQL)
	}
}
