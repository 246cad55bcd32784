package plan

import (
	"fmt"
	"strings"
)

// NodeKind tags the variant of a relational operator.
type NodeKind int

const (
	NodeScan NodeKind = iota
	NodeJoin
	NodeFilter
	NodeProject
	NodeAggregate
	NodeSort
	NodeSubquery
	NodeUnion
	NodeLimit
	NodeUnknown
)

func (k NodeKind) String() string {
	switch k {
	case NodeScan:
		return "scan"
	case NodeJoin:
		return "join"
	case NodeFilter:
		return "filter"
	case NodeProject:
		return "project"
	case NodeAggregate:
		return "aggregate"
	case NodeSort:
		return "sort"
	case NodeSubquery:
		return "subquery"
	case NodeUnion:
		return "union"
	case NodeLimit:
		return "limit"
	case NodeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// JoinType represents the type of join.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
	CrossJoin
	SemiJoin
	AntiJoin
)

func (j JoinType) String() string {
	switch j {
	case InnerJoin:
		return "INNER"
	case LeftJoin:
		return "LEFT"
	case RightJoin:
		return "RIGHT"
	case FullJoin:
		return "FULL"
	case CrossJoin:
		return "CROSS"
	case SemiJoin:
		return "SEMI"
	case AntiJoin:
		return "ANTI"
	default:
		return fmt.Sprintf("Unknown(%d)", j)
	}
}

// Commutative reports whether the children of a join of this type may be
// reordered without changing the result.
func (j JoinType) Commutative() bool {
	return j == InnerJoin || j == CrossJoin
}

// SetOp is the kind of a set operation node.
type SetOp int

const (
	Union SetOp = iota
	UnionAll
	Intersect
	Except
)

func (s SetOp) String() string {
	switch s {
	case Union:
		return "UNION"
	case UnionAll:
		return "UNION ALL"
	case Intersect:
		return "INTERSECT"
	case Except:
		return "EXCEPT"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// ProjectItem is one output column of a projection.
type ProjectItem struct {
	Expr  *Expr
	Alias string
}

// SortKey is one ORDER BY key.
type SortKey struct {
	Expr *Expr
	Desc bool
}

// NoLimit marks a limit node that only carries an offset.
const NoLimit int64 = -1

// Node is a relational operator in a logical plan.
//
// Which fields are meaningful depends on Kind. Scans use Table and Alias;
// subquery nodes use Alias and Correlated; unknown nodes keep the
// unclassified construct in Detail.
type Node struct {
	Kind        NodeKind
	Table       string
	Alias       string
	JoinType    JoinType
	SetOp       SetOp
	Predicate   *Expr
	Projections []ProjectItem
	Distinct    bool
	GroupBy     []*Expr
	Aggregates  []ProjectItem
	SortKeys    []SortKey
	Count       int64
	Offset      int64
	Correlated  bool
	Detail      string
	Children    []*Node
}

// NewScan creates a table scan.
func NewScan(table, alias string) *Node {
	return &Node{Kind: NodeScan, Table: table, Alias: alias}
}

// NewJoin creates a join over two or more children.
func NewJoin(joinType JoinType, predicate *Expr, children ...*Node) *Node {
	return &Node{Kind: NodeJoin, JoinType: joinType, Predicate: predicate, Children: children}
}

// NewFilter creates a filter.
func NewFilter(child *Node, predicate *Expr) *Node {
	return &Node{Kind: NodeFilter, Predicate: predicate, Children: []*Node{child}}
}

// NewProject creates a projection.
func NewProject(child *Node, items ...ProjectItem) *Node {
	return &Node{Kind: NodeProject, Projections: items, Children: []*Node{child}}
}

// NewAggregate creates an aggregation.
func NewAggregate(child *Node, groupBy []*Expr, aggregates []ProjectItem) *Node {
	return &Node{Kind: NodeAggregate, GroupBy: groupBy, Aggregates: aggregates, Children: []*Node{child}}
}

// NewSort creates a sort.
func NewSort(child *Node, keys ...SortKey) *Node {
	return &Node{Kind: NodeSort, SortKeys: keys, Children: []*Node{child}}
}

// NewSubquery wraps a nested plan.
func NewSubquery(child *Node, alias string, correlated bool) *Node {
	return &Node{Kind: NodeSubquery, Alias: alias, Correlated: correlated, Children: []*Node{child}}
}

// NewUnion creates a set operation over two children.
func NewUnion(op SetOp, left, right *Node) *Node {
	return &Node{Kind: NodeUnion, SetOp: op, Children: []*Node{left, right}}
}

// NewLimit creates a limit node.
func NewLimit(child *Node, count, offset int64) *Node {
	return &Node{Kind: NodeLimit, Count: count, Offset: offset, Children: []*Node{child}}
}

// NewUnknown creates an opaque passthrough node.
func NewUnknown(detail string, children ...*Node) *Node {
	return &Node{Kind: NodeUnknown, Detail: detail, Children: children}
}

// Item is shorthand for a ProjectItem.
func Item(expr *Expr, alias string) ProjectItem {
	return ProjectItem{Expr: expr, Alias: alias}
}

// Child returns the i-th child or nil.
func (n *Node) Child(i int) *Node {
	if n == nil || i >= len(n.Children) {
		return nil
	}
	return n.Children[i]
}

// ShallowCopy returns a copy of n that shares children and expressions but
// owns its slices, so a rule can replace fields without touching n.
func (n *Node) ShallowCopy() *Node {
	c := *n
	c.Children = append([]*Node(nil), n.Children...)
	c.Projections = append([]ProjectItem(nil), n.Projections...)
	c.GroupBy = append([]*Expr(nil), n.GroupBy...)
	c.Aggregates = append([]ProjectItem(nil), n.Aggregates...)
	c.SortKeys = append([]SortKey(nil), n.SortKeys...)
	return &c
}

// WithChildren returns a shallow copy of n with the given children.
func (n *Node) WithChildren(children ...*Node) *Node {
	c := n.ShallowCopy()
	c.Children = children
	return c
}

// Clone returns a deep copy of the subtree rooted at n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Predicate = n.Predicate.Clone()
	c.Projections = cloneItems(n.Projections)
	c.Aggregates = cloneItems(n.Aggregates)
	if n.GroupBy != nil {
		c.GroupBy = make([]*Expr, len(n.GroupBy))
		for i, g := range n.GroupBy {
			c.GroupBy[i] = g.Clone()
		}
	}
	if n.SortKeys != nil {
		c.SortKeys = make([]SortKey, len(n.SortKeys))
		for i, k := range n.SortKeys {
			c.SortKeys[i] = SortKey{Expr: k.Expr.Clone(), Desc: k.Desc}
		}
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

func cloneItems(items []ProjectItem) []ProjectItem {
	if items == nil {
		return nil
	}
	out := make([]ProjectItem, len(items))
	for i, it := range items {
		out[i] = ProjectItem{Expr: it.Expr.Clone(), Alias: it.Alias}
	}
	return out
}

// Equal reports structural equality of two subtrees.
func (n *Node) Equal(other *Node) bool {
	return n.Fingerprint() == other.Fingerprint()
}

// Exprs returns every expression attached directly to n, in a fixed order.
func (n *Node) Exprs() []*Expr {
	var out []*Expr
	if n.Predicate != nil {
		out = append(out, n.Predicate)
	}
	for _, p := range n.Projections {
		out = append(out, p.Expr)
	}
	out = append(out, n.GroupBy...)
	for _, a := range n.Aggregates {
		out = append(out, a.Expr)
	}
	for _, k := range n.SortKeys {
		out = append(out, k.Expr)
	}
	return out
}

// MapExprs returns a shallow copy of n with fn applied to every attached
// expression. fn may return its argument unchanged.
func (n *Node) MapExprs(fn func(*Expr) *Expr) *Node {
	c := n.ShallowCopy()
	if c.Predicate != nil {
		c.Predicate = fn(c.Predicate)
	}
	for i := range c.Projections {
		c.Projections[i].Expr = fn(c.Projections[i].Expr)
	}
	for i := range c.GroupBy {
		c.GroupBy[i] = fn(c.GroupBy[i])
	}
	for i := range c.Aggregates {
		c.Aggregates[i].Expr = fn(c.Aggregates[i].Expr)
	}
	for i := range c.SortKeys {
		c.SortKeys[i].Expr = fn(c.SortKeys[i].Expr)
	}
	return c
}

// Walk calls fn for n and every descendant in pre-order. Subplans nested in
// expressions are not entered.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Size counts the nodes of the subtree, excluding expression subplans.
func (n *Node) Size() int {
	count := 0
	n.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// Depth returns the maximum nesting of nodes and expressions below n.
func (n *Node) Depth() int {
	if n == nil {
		return 0
	}
	d := 0
	for _, c := range n.Children {
		if cd := c.Depth(); cd > d {
			d = cd
		}
	}
	for _, e := range n.Exprs() {
		if ed := e.Depth(); ed > d {
			d = ed
		}
	}
	return d + 1
}

// Validate checks the arity of n and of its whole subtree.
func (n *Node) Validate() error {
	if n == nil {
		return fmt.Errorf("nil plan node")
	}
	want := func(count int) error {
		if len(n.Children) != count {
			return fmt.Errorf("%s node needs %d child(ren), has %d", n.Kind, count, len(n.Children))
		}
		return nil
	}
	var err error
	switch n.Kind {
	case NodeScan:
		if n.Table == "" {
			return fmt.Errorf("scan without a table")
		}
		err = want(0)
	case NodeJoin:
		if n.JoinType.Commutative() {
			if len(n.Children) < 2 {
				return fmt.Errorf("%s join needs at least 2 children, has %d", n.JoinType, len(n.Children))
			}
		} else {
			err = want(2)
		}
	case NodeFilter:
		if n.Predicate == nil {
			return fmt.Errorf("filter without a predicate")
		}
		err = want(1)
	case NodeProject:
		if len(n.Projections) == 0 {
			return fmt.Errorf("projection without output columns")
		}
		err = want(1)
	case NodeSort:
		if len(n.SortKeys) == 0 {
			return fmt.Errorf("sort without keys")
		}
		err = want(1)
	case NodeAggregate, NodeSubquery, NodeLimit:
		err = want(1)
	case NodeUnion:
		err = want(2)
	case NodeUnknown:
	default:
		return fmt.Errorf("unknown node kind %d", n.Kind)
	}
	if err != nil {
		return err
	}
	for _, e := range n.Exprs() {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("%s: %w", n.Kind, err)
		}
	}
	for _, c := range n.Children {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String returns a one-line description of n without its children.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case NodeScan:
		if n.Alias != "" && n.Alias != n.Table {
			return fmt.Sprintf("Scan(%s AS %s)", n.Table, n.Alias)
		}
		return fmt.Sprintf("Scan(%s)", n.Table)
	case NodeJoin:
		if n.Predicate == nil {
			return fmt.Sprintf("%sJoin", n.JoinType)
		}
		return fmt.Sprintf("%sJoin(%s)", n.JoinType, n.Predicate)
	case NodeFilter:
		return fmt.Sprintf("Filter(%s)", n.Predicate)
	case NodeProject:
		prefix := ""
		if n.Distinct {
			prefix = "DISTINCT "
		}
		return fmt.Sprintf("Project(%s%s)", prefix, itemsString(n.Projections))
	case NodeAggregate:
		var parts []string
		if len(n.GroupBy) > 0 {
			groups := make([]string, len(n.GroupBy))
			for i, g := range n.GroupBy {
				groups[i] = g.String()
			}
			parts = append(parts, "GROUP BY "+strings.Join(groups, ", "))
		}
		if len(n.Aggregates) > 0 {
			parts = append(parts, itemsString(n.Aggregates))
		}
		return fmt.Sprintf("Aggregate(%s)", strings.Join(parts, " "))
	case NodeSort:
		keys := make([]string, len(n.SortKeys))
		for i, k := range n.SortKeys {
			dir := "ASC"
			if k.Desc {
				dir = "DESC"
			}
			keys[i] = k.Expr.String() + " " + dir
		}
		return fmt.Sprintf("Sort(%s)", strings.Join(keys, ", "))
	case NodeSubquery:
		corr := ""
		if n.Correlated {
			corr = " CORRELATED"
		}
		if n.Alias != "" {
			return fmt.Sprintf("Subquery(%s%s)", n.Alias, corr)
		}
		return fmt.Sprintf("Subquery(%s)", strings.TrimSpace(corr))
	case NodeUnion:
		return fmt.Sprintf("SetOp(%s)", n.SetOp)
	case NodeLimit:
		if n.Offset > 0 {
			return fmt.Sprintf("Limit(%d, %d)", n.Count, n.Offset)
		}
		return fmt.Sprintf("Limit(%d)", n.Count)
	case NodeUnknown:
		return fmt.Sprintf("Unknown(%s)", n.Detail)
	}
	return "<invalid>"
}

func itemsString(items []ProjectItem) string {
	strs := make([]string, len(items))
	for i, it := range items {
		s := it.Expr.String()
		if it.Alias != "" {
			s += " AS " + it.Alias
		}
		strs[i] = s
	}
	return strings.Join(strs, ", ")
}

// Pretty renders the subtree as an indented tree, one node per line.
func (n *Node) Pretty() string {
	var b strings.Builder
	n.pretty(&b, 0)
	return b.String()
}

func (n *Node) pretty(b *strings.Builder, indent int) {
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString(n.String())
	b.WriteByte('\n')
	for _, c := range n.Children {
		c.pretty(b, indent+1)
	}
}
