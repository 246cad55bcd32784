package canon

import (
	"github.com/dshills/planproof/internal/plan"
)

// unnestSubqueries rewrites uncorrelated subqueries in filter conjuncts
// into joins:
//
//	EXISTS (q)            -> SEMI join with q
//	NOT EXISTS (q)        -> ANTI join with q
//	x IN (SELECT y ...)   -> SEMI join on x = y
//	x op (SELECT agg ...) -> INNER join with the single aggregate row
//
// NOT IN is never rewritten: a NULL produced by the subquery makes it
// unknown for every row, which no anti join reproduces. Correlated
// subqueries are left for structural comparison.
func unnestSubqueries(n *plan.Node) *plan.Node {
	if n.Kind != plan.NodeFilter {
		return n
	}
	input := n.Child(0)
	outer := plan.Relations(input)

	current := input
	var kept []*plan.Expr
	rewritten := false
	for _, c := range n.Predicate.Conjuncts() {
		joined, ok := unnestConjunct(current, c, outer)
		if !ok {
			kept = append(kept, c)
			continue
		}
		current = joined
		outer = plan.Relations(current)
		rewritten = true
	}
	if !rewritten {
		return n
	}
	if len(kept) == 0 {
		return current
	}
	return plan.NewFilter(current, plan.And(kept...))
}

func unnestConjunct(input *plan.Node, c *plan.Expr, outer []string) (*plan.Node, bool) {
	switch {
	case c.Kind == plan.ExprExists:
		body, ok := uncorrelatedBody(c.Subplan, outer)
		if !ok {
			return nil, false
		}
		return plan.NewJoin(plan.SemiJoin, nil, input, body), true

	case c.Kind == plan.ExprUnary && c.Op == plan.OpNot && c.Children[0].Kind == plan.ExprExists:
		body, ok := uncorrelatedBody(c.Children[0].Subplan, outer)
		if !ok {
			return nil, false
		}
		return plan.NewJoin(plan.AntiJoin, nil, input, body), true

	case c.Kind == plan.ExprIn && c.Subplan != nil:
		probe := c.Children[0]
		if probe.HasSubplan() || isVolatile(probe) {
			return nil, false
		}
		body, ok := uncorrelatedBody(c.Subplan, outer)
		if !ok || body.Kind != plan.NodeProject || len(body.Projections) != 1 {
			return nil, false
		}
		pred := plan.Binary(plan.OpEqual, probe, body.Projections[0].Expr)
		return plan.NewJoin(plan.SemiJoin, pred, input, body.Child(0)), true

	case c.IsComparison():
		return unnestScalar(input, c, outer)
	}
	return nil, false
}

// unnestScalar handles a comparison with an uncorrelated scalar subquery on
// one side. Only subqueries that aggregate without GROUP BY qualify, since
// they return exactly one row.
func unnestScalar(input *plan.Node, c *plan.Expr, outer []string) (*plan.Node, bool) {
	side := -1
	for i, operand := range c.Children {
		if operand.Kind == plan.ExprSubquery {
			if side >= 0 {
				return nil, false
			}
			side = i
		}
	}
	if side < 0 || c.Children[1-side].HasSubplan() {
		return nil, false
	}

	body, ok := uncorrelatedBody(c.Children[side].Subplan, outer)
	if !ok || body.Kind != plan.NodeProject || len(body.Projections) != 1 {
		return nil, false
	}
	agg := body.Child(0)
	if agg.Kind != plan.NodeAggregate || len(agg.GroupBy) != 0 {
		return nil, false
	}

	operands := append([]*plan.Expr(nil), c.Children...)
	operands[side] = body.Projections[0].Expr
	pred := plan.Binary(c.Op, operands[0], operands[1])
	return plan.NewJoin(plan.InnerJoin, pred, input, agg), true
}

// uncorrelatedBody returns the plan under a subquery wrapper if it has no
// free references and introduces no qualifier the outer input already
// uses, so joining it cannot capture outer names.
func uncorrelatedBody(sub *plan.Node, outer []string) (*plan.Node, bool) {
	if sub == nil {
		return nil, false
	}
	body := sub
	if sub.Kind == plan.NodeSubquery {
		if sub.Correlated {
			return nil, false
		}
		body = sub.Child(0)
	}
	if body == nil || len(plan.FreeQualifiers(body)) > 0 {
		return nil, false
	}
	taken := make(map[string]bool, len(outer))
	for _, q := range outer {
		taken[q] = true
	}
	for _, q := range plan.DefinedQualifiers(body) {
		if taken[q] {
			return nil, false
		}
	}
	return body, true
}
