package plan

import (
	"strconv"
	"strings"
)

// Key returns a compact s-expression that identifies e up to structural
// equality. Two expressions have the same key if and only if they are
// structurally equal, so keys double as a total sort order.
func (e *Expr) Key() string {
	var b strings.Builder
	e.writeKey(&b)
	return b.String()
}

// Fingerprint returns the s-expression form of the subtree rooted at n,
// with the same guarantees as Expr.Key.
func (n *Node) Fingerprint() string {
	var b strings.Builder
	n.writeFingerprint(&b)
	return b.String()
}

// atom writes s bare when it cannot be confused with s-expression syntax,
// and quoted otherwise.
func atom(b *strings.Builder, s string) {
	if s == "" || strings.ContainsAny(s, " ()\"\\\t\n") {
		b.WriteString(strconv.Quote(s))
		return
	}
	b.WriteString(s)
}

func (e *Expr) writeKey(b *strings.Builder) {
	if e == nil {
		b.WriteString("nil")
		return
	}
	b.WriteByte('(')
	switch e.Kind {
	case ExprColumn:
		b.WriteString("col ")
		atom(b, e.Value)
	case ExprLiteral:
		b.WriteString("lit ")
		b.WriteString(e.LitType.String())
		b.WriteByte(' ')
		if e.LitType == LitString {
			b.WriteString(strconv.Quote(e.Value))
		} else {
			atom(b, e.Value)
		}
	case ExprBinary:
		atom(b, e.Op)
	case ExprUnary:
		b.WriteString("unary ")
		atom(b, e.Op)
	case ExprFunction:
		b.WriteString("fn ")
		atom(b, e.Value)
		if e.Op != "" {
			b.WriteByte(' ')
			atom(b, e.Op)
		}
	case ExprSubquery:
		b.WriteString("scalar")
	case ExprExists:
		b.WriteString("exists")
	case ExprIn:
		b.WriteString("in")
	case ExprCase:
		b.WriteString("case ")
		b.WriteString(flag(e.HasOperand))
		b.WriteByte(' ')
		b.WriteString(flag(e.HasElse))
	case ExprUnknown:
		b.WriteString("unknown ")
		b.WriteString(strconv.Quote(e.Value))
	default:
		b.WriteString("invalid ")
		b.WriteString(strconv.Itoa(int(e.Kind)))
	}
	for _, c := range e.Children {
		b.WriteByte(' ')
		c.writeKey(b)
	}
	if e.Subplan != nil {
		b.WriteByte(' ')
		e.Subplan.writeFingerprint(b)
	}
	b.WriteByte(')')
}

func flag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (n *Node) writeFingerprint(b *strings.Builder) {
	if n == nil {
		b.WriteString("nil")
		return
	}
	b.WriteByte('(')
	b.WriteString(n.Kind.String())
	switch n.Kind {
	case NodeScan:
		b.WriteByte(' ')
		atom(b, n.Table)
		b.WriteByte(' ')
		atom(b, n.Alias)
	case NodeJoin:
		b.WriteByte(' ')
		b.WriteString(n.JoinType.String())
		b.WriteByte(' ')
		n.Predicate.writeKey(b)
	case NodeFilter:
		b.WriteByte(' ')
		n.Predicate.writeKey(b)
	case NodeProject:
		b.WriteByte(' ')
		b.WriteString(flag(n.Distinct))
		writeItems(b, "items", n.Projections)
	case NodeAggregate:
		b.WriteString(" (group")
		for _, g := range n.GroupBy {
			b.WriteByte(' ')
			g.writeKey(b)
		}
		b.WriteByte(')')
		writeItems(b, "aggs", n.Aggregates)
	case NodeSort:
		for _, k := range n.SortKeys {
			b.WriteString(" (key ")
			k.Expr.writeKey(b)
			if k.Desc {
				b.WriteString(" desc)")
			} else {
				b.WriteString(" asc)")
			}
		}
	case NodeSubquery:
		b.WriteByte(' ')
		atom(b, n.Alias)
		b.WriteByte(' ')
		b.WriteString(flag(n.Correlated))
	case NodeUnion:
		b.WriteByte(' ')
		atom(b, n.SetOp.String())
	case NodeLimit:
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(n.Count, 10))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(n.Offset, 10))
	case NodeUnknown:
		b.WriteByte(' ')
		b.WriteString(strconv.Quote(n.Detail))
	}
	for _, c := range n.Children {
		b.WriteByte(' ')
		c.writeFingerprint(b)
	}
	b.WriteByte(')')
}

func writeItems(b *strings.Builder, tag string, items []ProjectItem) {
	b.WriteString(" (")
	b.WriteString(tag)
	for _, it := range items {
		b.WriteString(" (")
		it.Expr.writeKey(b)
		b.WriteByte(' ')
		atom(b, it.Alias)
		b.WriteByte(')')
	}
	b.WriteByte(')')
}
