package validator

import (
	"fmt"

	"github.com/dshills/planproof/internal/compare"
	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/plan"
)

// Result is the outcome of one validation. A Result is created fresh for
// every call and never shared.
type Result struct {
	Equivalent  bool
	Confidence  float64
	Reason      string
	Differences []compare.Difference
	Mode        compare.Mode

	// Rounds is the number of rule rounds spent on both plans.
	Rounds int

	// Failure is set when no verdict could be reached. Equivalent is then
	// false and Confidence is 0.
	Failure *verrors.Error

	// Left and Right are the canonical forms of the compared plans.
	Left  *plan.LogicalPlan
	Right *plan.LogicalPlan
}

func failed(mode compare.Mode, err error) Result {
	e := verrors.GetError(err)
	return Result{
		Mode:    mode,
		Reason:  "not proven equivalent: " + e.Message,
		Failure: e,
	}
}

func reason(cmp compare.Comparison) string {
	switch {
	case cmp.Equivalent && len(cmp.Differences) == 0:
		return "canonical plans match"
	case cmp.Equivalent:
		return fmt.Sprintf("canonical plans match except for %d unrecognized construct(s); %d of %d nodes matched",
			len(cmp.Differences), cmp.Matched, cmp.Total)
	case len(cmp.Differences) == 1:
		return "1 structural difference at " + cmp.Differences[0].Path
	default:
		return fmt.Sprintf("%d structural differences, first at %s", len(cmp.Differences), cmp.Differences[0].Path)
	}
}

// CandidateResult is the validation outcome for one candidate rewrite.
// Err is set when the candidate could not be extracted.
type CandidateResult struct {
	Index  int
	SQL    string
	Result Result
	Err    error
}

// Passed reports whether the candidate was proven equivalent with at least
// the given confidence.
func (c CandidateResult) Passed(minConfidence float64) bool {
	return c.Err == nil && c.Result.Equivalent && c.Result.Confidence >= minConfidence
}
