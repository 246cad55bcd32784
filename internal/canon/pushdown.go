package canon

import (
	"github.com/dshills/planproof/internal/plan"
)

// pushDownPredicates gives every movable single-relation conjunct one
// canonical position: directly above the join input it references.
//
// A filter above an INNER join is first absorbed into the join predicate,
// so WHERE and ON placements of the same conjunct meet. Outer joins only
// move conjuncts where the move cannot change which rows are preserved:
// WHERE conjuncts go to the preserved side and ON conjuncts go to the
// null-supplying side. FULL joins are left alone.
func pushDownPredicates(n *plan.Node) *plan.Node {
	switch n.Kind {
	case plan.NodeFilter:
		return pushFilter(n)
	case plan.NodeJoin:
		return pushJoinPredicate(n)
	}
	return n
}

func pushFilter(n *plan.Node) *plan.Node {
	join := n.Child(0)
	if join.Kind != plan.NodeJoin {
		return n
	}

	if join.JoinType == plan.InnerJoin {
		absorbed := join.ShallowCopy()
		absorbed.Predicate = plan.And(join.Predicate, n.Predicate)
		return pushJoinPredicate(absorbed)
	}

	var target int
	switch join.JoinType {
	case plan.LeftJoin, plan.SemiJoin, plan.AntiJoin:
		target = 0
	case plan.RightJoin:
		target = 1
	default:
		return n
	}

	side := plan.Relations(join.Child(target))
	var pushed, kept []*plan.Expr
	for _, c := range n.Predicate.Conjuncts() {
		if quals, ok := movable(c); ok && plan.Subset(quals, side) {
			pushed = append(pushed, c)
			continue
		}
		kept = append(kept, c)
	}
	if len(pushed) == 0 {
		return n
	}

	children := append([]*plan.Node(nil), join.Children...)
	children[target] = plan.NewFilter(children[target], plan.And(pushed...))
	out := join.WithChildren(children...)
	if len(kept) == 0 {
		return out
	}
	return plan.NewFilter(out, plan.And(kept...))
}

// pushJoinPredicate moves ON conjuncts that reference a single eligible
// input below the join.
func pushJoinPredicate(n *plan.Node) *plan.Node {
	if n.Predicate == nil {
		return n
	}

	var eligible []int
	switch n.JoinType {
	case plan.InnerJoin, plan.SemiJoin:
		for i := range n.Children {
			eligible = append(eligible, i)
		}
	case plan.LeftJoin, plan.AntiJoin:
		eligible = []int{1}
	case plan.RightJoin:
		eligible = []int{0}
	default:
		return n
	}

	sides := make([][]string, len(n.Children))
	for _, i := range eligible {
		sides[i] = plan.Relations(n.Children[i])
	}

	pushed := make([][]*plan.Expr, len(n.Children))
	var kept []*plan.Expr
	moved := false
	for _, c := range n.Predicate.Conjuncts() {
		target := -1
		if quals, ok := movable(c); ok {
			for _, i := range eligible {
				if plan.Subset(quals, sides[i]) {
					target = i
					break
				}
			}
		}
		if target < 0 {
			kept = append(kept, c)
			continue
		}
		pushed[target] = append(pushed[target], c)
		moved = true
	}
	if !moved {
		return n
	}

	out := n.ShallowCopy()
	for i, preds := range pushed {
		if len(preds) > 0 {
			out.Children[i] = plan.NewFilter(out.Children[i], plan.And(preds...))
		}
	}
	out.Predicate = plan.And(kept...)
	return out
}
