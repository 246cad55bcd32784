package optimizer

import (
	"context"
	"fmt"
	"strings"

	verrors "github.com/dshills/planproof/internal/errors"
)

// Generator proposes rewrites of a query. It returns at most max
// candidates.
type Generator interface {
	Generate(ctx context.Context, sql string, max int) ([]string, error)
}

// StaticGenerator proposes a fixed list of candidates for every query.
type StaticGenerator []string

// Generate returns the first max candidates.
func (g StaticGenerator) Generate(ctx context.Context, _ string, max int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := []string(g)
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return append([]string(nil), out...), nil
}

// CostEstimator estimates the execution cost of a query. Costs are
// positive; lower is cheaper.
type CostEstimator interface {
	EstimateCost(ctx context.Context, sql string) (float64, error)
}

// StaticCost looks costs up by query text. Keys match regardless of
// whitespace.
type StaticCost map[string]float64

// EstimateCost returns the cost recorded for sql.
func (c StaticCost) EstimateCost(ctx context.Context, sql string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	want := normalizeSQL(sql)
	for k, v := range c {
		if normalizeSQL(k) == want {
			return v, nil
		}
	}
	return 0, verrors.CostEstimationError(fmt.Errorf("no cost recorded for %q", want))
}

func normalizeSQL(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Host is the engine that runs the optimizer. ApplyRewrite is called with
// the selected rewrite; an error leaves the original query in place.
type Host interface {
	ApplyRewrite(ctx context.Context, original, rewritten string) error
}

// HostFunc adapts a function to the Host interface.
type HostFunc func(ctx context.Context, original, rewritten string) error

// ApplyRewrite calls f.
func (f HostFunc) ApplyRewrite(ctx context.Context, original, rewritten string) error {
	return f(ctx, original, rewritten)
}
