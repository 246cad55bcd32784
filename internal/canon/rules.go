package canon

import (
	"sort"
	"strings"

	"github.com/dshills/planproof/internal/plan"
)

// Built-in rule names, in registration order.
const (
	RuleNormalizeExpressions = "normalize-expressions"
	RuleRemoveTrivialFilters = "remove-trivial-filters"
	RuleMergeFilters         = "merge-filters"
	RuleCrossToInner         = "cross-to-inner"
	RuleUnnestSubqueries     = "unnest-subqueries"
	RuleFlattenJoins         = "flatten-joins"
	RulePushDownPredicates   = "push-down-predicates"
	RuleCommuteJoins         = "commute-joins"
	RuleCommuteSetOps        = "commute-set-ops"
)

// BuiltinRules returns the default rule list. Expression normalization
// runs first so every later rule sees canonical predicates.
func BuiltinRules(ec ExprCanonicalizer) []Rule {
	return []Rule{
		NormalizeExpressions(ec),
		NewRule(RuleRemoveTrivialFilters, removeTrivialFilters),
		NewRule(RuleMergeFilters, mergeFilters),
		NewRule(RuleCrossToInner, crossToInner),
		NewRule(RuleUnnestSubqueries, unnestSubqueries),
		NewRule(RuleFlattenJoins, flattenJoins),
		NewRule(RulePushDownPredicates, pushDownPredicates),
		NewRule(RuleCommuteJoins, commuteJoins),
	}
}

// NormalizeExpressions canonicalizes every expression attached to a node
// and treats GROUP BY as a set.
func NormalizeExpressions(ec ExprCanonicalizer) Rule {
	return NewRule(RuleNormalizeExpressions, func(n *plan.Node) *plan.Node {
		out := n.MapExprs(ec.Canonicalize)
		if len(out.GroupBy) > 1 {
			out.GroupBy = sortUnique(out.GroupBy, nil)
		}
		return unchanged(n, out)
	})
}

// SetOpCommute orders the branches of UNION, UNION ALL and INTERSECT. It is
// not registered by default: output column names come from the first
// branch, so reordering is only safe when callers compare results by
// position. Enable it by name through OptionalRule.
func SetOpCommute() Rule {
	return NewRule(RuleCommuteSetOps, func(n *plan.Node) *plan.Node {
		if n.Kind != plan.NodeUnion || n.SetOp == plan.Except || len(n.Children) != 2 {
			return n
		}
		if n.Children[0].Fingerprint() <= n.Children[1].Fingerprint() {
			return n
		}
		return n.WithChildren(n.Children[1], n.Children[0])
	})
}

// OptionalRule returns the rule that is available by name but not part of
// BuiltinRules.
func OptionalRule(name string) (Rule, bool) {
	switch name {
	case RuleCommuteSetOps:
		return SetOpCommute(), true
	}
	return nil, false
}

// unchanged returns n when out is structurally identical to it.
func unchanged(n, out *plan.Node) *plan.Node {
	if out.Fingerprint() == n.Fingerprint() {
		return n
	}
	return out
}

func removeTrivialFilters(n *plan.Node) *plan.Node {
	if n.Kind == plan.NodeFilter && n.Predicate.IsTrue() {
		return n.Child(0)
	}
	return n
}

func mergeFilters(n *plan.Node) *plan.Node {
	if n.Kind != plan.NodeFilter {
		return n
	}
	child := n.Child(0)
	if child.Kind != plan.NodeFilter {
		return n
	}
	if isVolatile(n.Predicate) || isVolatile(child.Predicate) {
		return n
	}
	return plan.NewFilter(child.Child(0), plan.And(child.Predicate, n.Predicate))
}

func crossToInner(n *plan.Node) *plan.Node {
	if n.Kind != plan.NodeJoin {
		return n
	}
	switch {
	case n.JoinType == plan.CrossJoin:
		out := n.ShallowCopy()
		out.JoinType = plan.InnerJoin
		if out.Predicate.IsTrue() {
			out.Predicate = nil
		}
		return out
	case n.JoinType == plan.InnerJoin && n.Predicate.IsTrue():
		out := n.ShallowCopy()
		out.Predicate = nil
		return out
	}
	return n
}

// flattenJoins merges nested INNER joins into one n-ary join whose
// predicate is the conjunction of all nested predicates.
func flattenJoins(n *plan.Node) *plan.Node {
	if n.Kind != plan.NodeJoin || n.JoinType != plan.InnerJoin {
		return n
	}
	flat := false
	var children []*plan.Node
	var preds []*plan.Expr
	if n.Predicate != nil {
		preds = append(preds, n.Predicate)
	}
	for _, c := range n.Children {
		if c.Kind == plan.NodeJoin && c.JoinType == plan.InnerJoin {
			flat = true
			children = append(children, c.Children...)
			if c.Predicate != nil {
				preds = append(preds, c.Predicate)
			}
			continue
		}
		children = append(children, c)
	}
	if !flat {
		return n
	}
	return plan.NewJoin(plan.InnerJoin, plan.And(preds...), children...)
}

// commuteJoins sorts the children of an INNER join by fingerprint.
func commuteJoins(n *plan.Node) *plan.Node {
	if n.Kind != plan.NodeJoin || !n.JoinType.Commutative() {
		return n
	}
	keys := make([]string, len(n.Children))
	for i, c := range n.Children {
		keys[i] = c.Fingerprint()
	}
	if sort.StringsAreSorted(keys) {
		return n
	}
	idx := make([]int, len(n.Children))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })
	children := make([]*plan.Node, len(idx))
	for i, k := range idx {
		children[i] = n.Children[k]
	}
	return n.WithChildren(children...)
}

var volatileFunctions = map[string]bool{
	"RANDOM":              true,
	"RAND":                true,
	"NEWID":               true,
	"UUID":                true,
	"GEN_RANDOM_UUID":     true,
	"NEXTVAL":             true,
	"CLOCK_TIMESTAMP":     true,
	"STATEMENT_TIMESTAMP": true,
	"TIMEOFDAY":           true,
	"SETSEED":             true,
}

// isVolatile reports whether e calls a function whose result can change
// between evaluations.
func isVolatile(e *plan.Expr) bool {
	found := false
	e.Walk(func(x *plan.Expr) bool {
		if x.Kind == plan.ExprFunction && volatileFunctions[strings.ToUpper(x.Value)] {
			found = true
		}
		return !found
	})
	return found
}

// movable reports whether a conjunct may change position in the plan, and
// the qualifiers it depends on.
func movable(e *plan.Expr) ([]string, bool) {
	if e.HasSubplan() || isVolatile(e) || hasUnknown(e) {
		return nil, false
	}
	quals, unqualified := plan.ExprQualifiers(e)
	if unqualified || len(quals) == 0 {
		return nil, false
	}
	return quals, true
}

func hasUnknown(e *plan.Expr) bool {
	found := false
	e.Walk(func(x *plan.Expr) bool {
		if x.Kind == plan.ExprUnknown {
			found = true
		}
		return !found
	})
	return found
}
