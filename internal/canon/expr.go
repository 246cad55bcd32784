package canon

import (
	"sort"

	"github.com/dshills/planproof/internal/plan"
)

// maxExprPasses bounds the per-expression fixpoint. Every pass strictly
// shrinks or reorders the tree, so real inputs settle in a handful.
const maxExprPasses = 64

// ExprCanonicalizer puts scalar expressions into a normal form where
// equivalent expressions produce identical trees.
type ExprCanonicalizer struct {
	// InListLimit keeps IN lists with more values than this intact instead
	// of expanding them into OR chains. Zero expands every list.
	InListLimit int
}

// Canonicalize returns the canonical form of e. The input is not modified.
// Unknown expressions are passed through untouched.
func (c ExprCanonicalizer) Canonicalize(e *plan.Expr) *plan.Expr {
	if e == nil {
		return nil
	}
	key := e.Key()
	for i := 0; i < maxExprPasses; i++ {
		next := c.pass(e)
		nextKey := next.Key()
		if nextKey == key {
			return next
		}
		e, key = next, nextKey
	}
	return e
}

// pass rewrites e bottom-up once.
func (c ExprCanonicalizer) pass(e *plan.Expr) *plan.Expr {
	if e == nil || e.Kind == plan.ExprUnknown {
		return e
	}
	out := *e
	if len(e.Children) > 0 {
		out.Children = make([]*plan.Expr, len(e.Children))
		for i, child := range e.Children {
			out.Children[i] = c.pass(child)
		}
	}

	switch out.Kind {
	case plan.ExprBinary:
		return c.binary(&out)
	case plan.ExprUnary:
		return negate(&out)
	case plan.ExprIn:
		return c.in(&out)
	}
	return &out
}

func (c ExprCanonicalizer) binary(e *plan.Expr) *plan.Expr {
	if e.Op == plan.OpNotEqualAlt {
		e.Op = plan.OpNotEqual
	}
	switch {
	case e.IsConnective():
		return connective(e)
	case e.IsComparison():
		return orientComparison(e)
	case e.Op == plan.OpAdd || e.Op == plan.OpMultiply:
		// Numeric + and * commute. Some dialects use + for string
		// concatenation, so operands next to a string literal keep their order.
		if len(e.Children) == 2 && !hasStringLiteral(e.Children) && e.Children[0].Key() > e.Children[1].Key() {
			e.Children[0], e.Children[1] = e.Children[1], e.Children[0]
		}
	}
	return e
}

func hasStringLiteral(exprs []*plan.Expr) bool {
	for _, x := range exprs {
		if x.Kind == plan.ExprLiteral && x.LitType == plan.LitString {
			return true
		}
	}
	return false
}

// connective flattens nested chains of the same connective, drops identity
// operands, removes duplicates and sorts the remaining operands.
func connective(e *plan.Expr) *plan.Expr {
	var operands []*plan.Expr
	for _, child := range e.Children {
		if child.Kind == plan.ExprBinary && child.Op == e.Op {
			operands = append(operands, child.Children...)
			continue
		}
		operands = append(operands, child)
	}

	identity := (*plan.Expr).IsTrue
	if e.Op == plan.OpOr {
		identity = (*plan.Expr).IsFalse
	}

	operands = sortUnique(operands, identity)
	switch len(operands) {
	case 0:
		return plan.BoolLit(e.Op == plan.OpAnd)
	case 1:
		return operands[0]
	}
	e.Children = operands
	return e
}

// sortUnique sorts exprs by key and removes duplicates and any expression
// for which drop returns true. Volatile expressions are never merged: two
// calls to RANDOM() are two different values.
func sortUnique(exprs []*plan.Expr, drop func(*plan.Expr) bool) []*plan.Expr {
	type keyed struct {
		key  string
		expr *plan.Expr
	}
	items := make([]keyed, 0, len(exprs))
	seen := make(map[string]bool, len(exprs))
	for _, x := range exprs {
		if drop != nil && drop(x) {
			continue
		}
		k := x.Key()
		if seen[k] && !isVolatile(x) {
			continue
		}
		seen[k] = true
		items = append(items, keyed{key: k, expr: x})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].key < items[j].key })
	out := make([]*plan.Expr, len(items))
	for i, it := range items {
		out[i] = it.expr
	}
	return out
}

var flipped = map[string]string{
	plan.OpEqual:        plan.OpEqual,
	plan.OpNotEqual:     plan.OpNotEqual,
	plan.OpLess:         plan.OpGreater,
	plan.OpLessEqual:    plan.OpGreaterEqual,
	plan.OpGreater:      plan.OpLess,
	plan.OpGreaterEqual: plan.OpLessEqual,
}

var negated = map[string]string{
	plan.OpEqual:        plan.OpNotEqual,
	plan.OpNotEqual:     plan.OpEqual,
	plan.OpLess:         plan.OpGreaterEqual,
	plan.OpLessEqual:    plan.OpGreater,
	plan.OpGreater:      plan.OpLessEqual,
	plan.OpGreaterEqual: plan.OpLess,
	plan.OpIsNull:       plan.OpIsNotNull,
	plan.OpIsNotNull:    plan.OpIsNull,
}

// orientComparison puts the column side of a comparison first. When both
// or neither side references a column, operands are ordered by key. The
// operator is mirrored whenever the operands swap.
func orientComparison(e *plan.Expr) *plan.Expr {
	if len(e.Children) != 2 {
		return e
	}
	left, right := e.Children[0], e.Children[1]
	lc, rc := left.HasColumn(), right.HasColumn()

	swap := false
	switch {
	case rc && !lc:
		swap = true
	case lc == rc:
		swap = left.Key() > right.Key()
	}
	if swap {
		e.Op = flipped[e.Op]
		e.Children = []*plan.Expr{right, left}
	}
	return e
}

// negate folds NOT over negations, comparisons, null tests and boolean
// constants. Every fold holds under three-valued logic.
func negate(e *plan.Expr) *plan.Expr {
	if e.Op != plan.OpNot || len(e.Children) != 1 {
		return e
	}
	inner := e.Children[0]
	switch {
	case inner.Kind == plan.ExprUnary && inner.Op == plan.OpNot:
		return inner.Children[0]
	case inner.Kind == plan.ExprUnary && (inner.Op == plan.OpIsNull || inner.Op == plan.OpIsNotNull):
		return plan.Unary(negated[inner.Op], inner.Children[0])
	case inner.IsComparison():
		op := inner.Op
		if op == plan.OpNotEqualAlt {
			op = plan.OpNotEqual
		}
		return plan.Binary(negated[op], inner.Children[0], inner.Children[1])
	case inner.IsTrue():
		return plan.BoolLit(false)
	case inner.IsFalse():
		return plan.BoolLit(true)
	}
	return e
}

// in expands probe IN (v1, ..., vn) into (probe = v1) OR ... OR (probe = vn)
// unless the list is longer than the configured limit or the probe is
// volatile, in which case the values are only sorted and deduplicated. A
// volatile probe is evaluated once by IN but once per branch by the OR.
func (c ExprCanonicalizer) in(e *plan.Expr) *plan.Expr {
	if e.Subplan != nil || len(e.Children) == 0 {
		return e
	}
	probe := e.Children[0]
	values := sortUnique(e.Children[1:], nil)
	if len(values) == 0 {
		return plan.BoolLit(false)
	}
	if isVolatile(probe) || (c.InListLimit > 0 && len(values) > c.InListLimit) {
		e.Children = append([]*plan.Expr{probe}, values...)
		return e
	}
	eqs := make([]*plan.Expr, len(values))
	for i, v := range values {
		eqs[i] = plan.Binary(plan.OpEqual, probe.Clone(), v)
	}
	return plan.Or(eqs...)
}
