// Package compare decides whether two canonical plans denote the same
// computation and explains where they differ.
package compare

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dshills/planproof/internal/plan"
)

// DefaultMaxDepth bounds the comparison walk.
const DefaultMaxDepth = 256

// DiffKind classifies a structural difference.
type DiffKind string

// Difference kinds.
const (
	DiffNodeKind     DiffKind = "node-kind"
	DiffField        DiffKind = "field"
	DiffExpression   DiffKind = "expression"
	DiffChildCount   DiffKind = "child-count"
	DiffUnrecognized DiffKind = "unrecognized"
	DiffDepth        DiffKind = "depth"
)

// Difference is one mismatch found during a comparison. Path names the
// mismatching position, e.g. root.children[1].predicate.
type Difference struct {
	Path  string   `json:"path"`
	Kind  DiffKind `json:"kind"`
	Left  string   `json:"left,omitempty"`
	Right string   `json:"right,omitempty"`
}

func (d Difference) String() string {
	return fmt.Sprintf("%s: %s mismatch (%s vs %s)", d.Path, d.Kind, d.Left, d.Right)
}

// Comparison is the outcome of comparing two plans.
type Comparison struct {
	Equivalent    bool
	Confidence    float64
	Differences   []Difference
	Matched       int
	Total         int
	DepthExceeded bool
}

// Comparator compares canonical plans. The zero value compares in Strict
// mode with DefaultMaxDepth.
type Comparator struct {
	Mode     Mode
	MaxDepth int
}

// Compare walks a and b top-down, collecting every difference. Neither plan
// is modified. The result is symmetric in its arguments.
func (c Comparator) Compare(a, b *plan.Node) Comparison {
	maxDepth := c.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	w := &walker{mode: c.Mode, maxDepth: maxDepth}
	if w.relaxed() {
		w.outputA, w.outputB = outputBlock(a), outputBlock(b)
		w.keepAlias = referencedNames(w.outputA)
		for name := range referencedNames(w.outputB) {
			w.keepAlias[name] = true
		}
	}
	w.node("root", a, b, 1)

	total := deepCount(a)
	if n := deepCount(b); n > total {
		total = n
	}
	out := Comparison{
		Differences:   w.diffs,
		Matched:       w.matched,
		Total:         total,
		DepthExceeded: w.depthExceeded,
	}

	switch {
	case w.depthExceeded:
	case len(w.diffs) == 0:
		out.Equivalent = true
		out.Confidence = 1.0
	case c.Mode == Heuristic:
		out.Confidence = ratio(w.matched, total)
		out.Equivalent = onlyUnrecognized(w.diffs)
	}
	return out
}

func ratio(matched, total int) float64 {
	if total == 0 {
		return 0
	}
	r := float64(matched) / float64(total)
	if r >= 1 {
		// A heuristic match with differences is never certain.
		return float64(total-1) / float64(total)
	}
	return r
}

func onlyUnrecognized(diffs []Difference) bool {
	for _, d := range diffs {
		if d.Kind != DiffUnrecognized {
			return false
		}
	}
	return true
}

type walker struct {
	mode          Mode
	maxDepth      int
	diffs         []Difference
	matched       int
	depthExceeded bool

	// outputA and outputB hold the nodes that produce the result columns
	// of each plan. Only their column lists are compared loosely.
	outputA, outputB map[*plan.Node]bool
	// keepAlias holds output aliases referenced by name inside the output
	// block, e.g. ORDER BY n.
	keepAlias map[string]bool
}

func (w *walker) add(path string, kind DiffKind, left, right string) {
	w.diffs = append(w.diffs, Difference{Path: path, Kind: kind, Left: left, Right: right})
}

func (w *walker) relaxed() bool { return w.mode >= Relaxed }

// loose reports whether a and b are both result-producing nodes whose
// column lists may be compared without order or aliases.
func (w *walker) loose(a, b *plan.Node) bool {
	return w.relaxed() && w.outputA[a] && w.outputB[b]
}

// outputBlock returns the chain of nodes from root that shape the result
// rows: Limit, Sort, Project, Filter and Aggregate, ending at the first
// Aggregate. Column lists below it, in set operation branches or in
// subqueries are read by position.
func outputBlock(root *plan.Node) map[*plan.Node]bool {
	block := map[*plan.Node]bool{}
	for n := root; n != nil; n = n.Child(0) {
		switch n.Kind {
		case plan.NodeLimit, plan.NodeSort, plan.NodeProject, plan.NodeFilter, plan.NodeAggregate:
		default:
			return block
		}
		block[n] = true
		if n.Kind == plan.NodeAggregate || len(n.Children) != 1 {
			break
		}
	}
	return block
}

// referencedNames returns the unqualified column names used by sort keys
// and predicates in block.
func referencedNames(block map[*plan.Node]bool) map[string]bool {
	names := map[string]bool{}
	for n := range block {
		var exprs []*plan.Expr
		if n.Predicate != nil {
			exprs = append(exprs, n.Predicate)
		}
		for _, k := range n.SortKeys {
			exprs = append(exprs, k.Expr)
		}
		for _, e := range exprs {
			for _, col := range e.Columns() {
				if col.Qualifier() == "" {
					names[col.Value] = true
				}
			}
		}
	}
	return names
}

func (w *walker) node(path string, a, b *plan.Node, depth int) {
	if depth > w.maxDepth {
		w.depthExceeded = true
		w.add(path, DiffDepth, strconv.Itoa(depth), strconv.Itoa(w.maxDepth))
		return
	}
	if a == nil || b == nil {
		if a != b {
			w.add(path, DiffNodeKind, nodeLabel(a), nodeLabel(b))
		}
		return
	}
	if a.Fingerprint() == b.Fingerprint() {
		w.matched += deepCount(a)
		return
	}

	if a.Kind == plan.NodeUnknown || b.Kind == plan.NodeUnknown {
		w.add(path, DiffUnrecognized, a.String(), b.String())
		w.children(path, a, b, depth)
		return
	}
	if a.Kind != b.Kind {
		w.add(path, DiffNodeKind, a.Kind.String(), b.Kind.String())
		return
	}

	before := len(w.diffs)
	w.fields(path, a, b, depth)
	if len(w.diffs) == before {
		w.matched++
	}
	w.children(path, a, b, depth)
}

func (w *walker) children(path string, a, b *plan.Node, depth int) {
	if len(a.Children) != len(b.Children) {
		w.add(path, DiffChildCount, strconv.Itoa(len(a.Children)), strconv.Itoa(len(b.Children)))
		return
	}
	for i := range a.Children {
		w.node(fmt.Sprintf("%s.children[%d]", path, i), a.Children[i], b.Children[i], depth+1)
	}
}

func (w *walker) field(path, name, left, right string) {
	if left != right {
		w.add(path+"."+name, DiffField, left, right)
	}
}

func (w *walker) fields(path string, a, b *plan.Node, depth int) {
	switch a.Kind {
	case plan.NodeScan:
		w.field(path, "table", a.Table, b.Table)
		w.field(path, "alias", a.Alias, b.Alias)

	case plan.NodeJoin:
		w.field(path, "join_type", a.JoinType.String(), b.JoinType.String())
		w.expr(path+".predicate", a.Predicate, b.Predicate, depth)

	case plan.NodeFilter:
		w.expr(path+".predicate", a.Predicate, b.Predicate, depth)

	case plan.NodeProject:
		w.field(path, "distinct", strconv.FormatBool(a.Distinct), strconv.FormatBool(b.Distinct))
		w.items(path, "projections", a.Projections, b.Projections, w.loose(a, b), depth)

	case plan.NodeAggregate:
		w.set(path+".group_by", a.GroupBy, b.GroupBy)
		w.items(path, "aggregates", a.Aggregates, b.Aggregates, w.loose(a, b), depth)

	case plan.NodeSort:
		if len(a.SortKeys) != len(b.SortKeys) {
			w.add(path+".sort_keys", DiffField, strconv.Itoa(len(a.SortKeys)), strconv.Itoa(len(b.SortKeys)))
			return
		}
		for i := range a.SortKeys {
			p := fmt.Sprintf("%s.sort_keys[%d]", path, i)
			w.field(p, "desc", strconv.FormatBool(a.SortKeys[i].Desc), strconv.FormatBool(b.SortKeys[i].Desc))
			w.expr(p, a.SortKeys[i].Expr, b.SortKeys[i].Expr, depth)
		}

	case plan.NodeSubquery:
		w.field(path, "correlated", strconv.FormatBool(a.Correlated), strconv.FormatBool(b.Correlated))
		w.field(path, "alias", a.Alias, b.Alias)

	case plan.NodeUnion:
		w.field(path, "set_op", a.SetOp.String(), b.SetOp.String())

	case plan.NodeLimit:
		w.field(path, "count", strconv.FormatInt(a.Count, 10), strconv.FormatInt(b.Count, 10))
		w.field(path, "offset", strconv.FormatInt(a.Offset, 10), strconv.FormatInt(b.Offset, 10))
	}
}

// items compares column lists in order with aliases. A loose comparison
// treats them as multisets of expressions, keeping only aliases that are
// referenced by name.
func (w *walker) items(path, name string, a, b []plan.ProjectItem, loose bool, depth int) {
	if loose {
		left, right := w.itemKeys(a), w.itemKeys(b)
		if strings.Join(left, ",") != strings.Join(right, ",") {
			w.add(path+"."+name, DiffField, itemsLabel(a), itemsLabel(b))
		}
		return
	}
	if len(a) != len(b) {
		w.add(path+"."+name, DiffField, itemsLabel(a), itemsLabel(b))
		return
	}
	for i := range a {
		p := fmt.Sprintf("%s.%s[%d]", path, name, i)
		w.field(p, "alias", a[i].Alias, b[i].Alias)
		w.expr(p, a[i].Expr, b[i].Expr, depth)
	}
}

func (w *walker) set(path string, a, b []*plan.Expr) {
	if strings.Join(sortedKeys(a), ",") != strings.Join(sortedKeys(b), ",") {
		w.add(path, DiffField, exprsLabel(a), exprsLabel(b))
	}
}

// expr compares two canonical expressions, descending while their shapes
// agree so the reported path points at the innermost mismatch.
func (w *walker) expr(path string, a, b *plan.Expr, depth int) {
	if depth > w.maxDepth {
		w.depthExceeded = true
		w.add(path, DiffDepth, strconv.Itoa(depth), strconv.Itoa(w.maxDepth))
		return
	}
	if a == nil || b == nil {
		if a != b {
			w.add(path, DiffExpression, exprLabel(a), exprLabel(b))
		}
		return
	}
	if a.Key() == b.Key() {
		return
	}
	if a.Kind == plan.ExprUnknown || b.Kind == plan.ExprUnknown {
		w.add(path, DiffUnrecognized, a.String(), b.String())
		return
	}
	if a.Kind != b.Kind || a.Op != b.Op || a.Value != b.Value || a.LitType != b.LitType ||
		a.HasOperand != b.HasOperand || a.HasElse != b.HasElse ||
		len(a.Children) != len(b.Children) || (a.Subplan == nil) != (b.Subplan == nil) {
		w.add(path, DiffExpression, a.String(), b.String())
		return
	}
	for i := range a.Children {
		w.expr(fmt.Sprintf("%s.args[%d]", path, i), a.Children[i], b.Children[i], depth+1)
	}
	if a.Subplan != nil {
		w.node(path+".plan", a.Subplan, b.Subplan, depth+1)
	}
}

// deepCount counts the nodes of n including those of nested subplans.
func deepCount(n *plan.Node) int {
	count := 0
	n.Walk(func(x *plan.Node) bool {
		count++
		for _, e := range x.Exprs() {
			e.Walk(func(sub *plan.Expr) bool {
				if sub.Subplan != nil {
					count += deepCount(sub.Subplan)
				}
				return true
			})
		}
		return true
	})
	return count
}

func (w *walker) itemKeys(items []plan.ProjectItem) []string {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Expr.Key()
		if w.keepAlias[it.Alias] {
			keys[i] += " AS " + it.Alias
		}
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(exprs []*plan.Expr) []string {
	keys := make([]string, len(exprs))
	for i, e := range exprs {
		keys[i] = e.Key()
	}
	sort.Strings(keys)
	return keys
}

func nodeLabel(n *plan.Node) string {
	if n == nil {
		return "<none>"
	}
	return n.String()
}

func exprLabel(e *plan.Expr) string {
	if e == nil {
		return "<none>"
	}
	return e.String()
}

func exprsLabel(exprs []*plan.Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func itemsLabel(items []plan.ProjectItem) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Expr.String()
		if it.Alias != "" {
			parts[i] += " AS " + it.Alias
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
