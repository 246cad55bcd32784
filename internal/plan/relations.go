package plan

import "sort"

// Relations returns the relation qualifiers whose columns are visible above
// n, sorted. Unknown nodes expose nothing.
func Relations(n *Node) []string {
	set := map[string]bool{}
	collectRelations(n, set)
	return sortedKeys(set)
}

func collectRelations(n *Node, set map[string]bool) {
	if n == nil {
		return
	}
	switch n.Kind {
	case NodeScan:
		set[scanName(n)] = true
	case NodeSubquery:
		if n.Alias != "" {
			set[n.Alias] = true
			return
		}
		collectRelations(n.Child(0), set)
	case NodeJoin:
		if n.JoinType == SemiJoin || n.JoinType == AntiJoin {
			collectRelations(n.Child(0), set)
			return
		}
		for _, c := range n.Children {
			collectRelations(c, set)
		}
	case NodeUnion:
		collectRelations(n.Child(0), set)
	case NodeUnknown:
	default:
		collectRelations(n.Child(0), set)
	}
}

func scanName(n *Node) string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Table
}

// DefinedQualifiers returns every qualifier introduced anywhere in the
// subtree, including inside nested subplans.
func DefinedQualifiers(n *Node) []string {
	set := map[string]bool{}
	walkDeep(n, func(x *Node) {
		switch x.Kind {
		case NodeScan:
			set[scanName(x)] = true
		case NodeSubquery:
			if x.Alias != "" {
				set[x.Alias] = true
			}
		}
	}, nil)
	return sortedKeys(set)
}

// FreeQualifiers returns the qualifiers referenced by columns in the subtree
// that no relation inside the subtree defines. A non-empty result means the
// subtree depends on an enclosing query. Unqualified columns are taken to
// resolve inside the subtree.
func FreeQualifiers(n *Node) []string {
	defined := map[string]bool{}
	for _, q := range DefinedQualifiers(n) {
		defined[q] = true
	}
	free := map[string]bool{}
	walkDeep(n, nil, func(e *Expr) {
		if e.Kind != ExprColumn {
			return
		}
		if q := e.Qualifier(); q != "" && !defined[q] {
			free[q] = true
		}
	})
	return sortedKeys(free)
}

// walkDeep visits every node and expression of the subtree, descending into
// expression subplans.
func walkDeep(n *Node, onNode func(*Node), onExpr func(*Expr)) {
	n.Walk(func(x *Node) bool {
		if onNode != nil {
			onNode(x)
		}
		for _, e := range x.Exprs() {
			e.Walk(func(sub *Expr) bool {
				if onExpr != nil {
					onExpr(sub)
				}
				if sub.Subplan != nil {
					walkDeep(sub.Subplan, onNode, onExpr)
				}
				return true
			})
		}
		return true
	})
}

// ExprQualifiers returns the sorted qualifiers referenced by e outside its
// nested subplans, and whether any column is unqualified.
func ExprQualifiers(e *Expr) (quals []string, unqualified bool) {
	set := map[string]bool{}
	for _, c := range e.Columns() {
		q := c.Qualifier()
		if q == "" {
			unqualified = true
			continue
		}
		set[q] = true
	}
	return sortedKeys(set), unqualified
}

// Subset reports whether every element of a is in b.
func Subset(a, b []string) bool {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	for _, s := range a {
		if !in[s] {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
