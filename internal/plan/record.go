package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PlanRecord is the serialized form of a LogicalPlan.
type PlanRecord struct {
	SQL      string            `json:"sql,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Root     *NodeRecord       `json:"root"`
}

// NodeRecord is the serialized form of a Node: a type tag, identifying
// attributes, attached expressions and ordered children.
type NodeRecord struct {
	Type     string            `json:"type"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Exprs    []ExprSlot        `json:"exprs,omitempty"`
	Children []*NodeRecord     `json:"children,omitempty"`
}

// ExprSlot names the node field an expression is attached to, for example
// "predicate" or "projection[1]".
type ExprSlot struct {
	Field string      `json:"field"`
	Alias string      `json:"alias,omitempty"`
	Desc  bool        `json:"desc,omitempty"`
	Expr  *ExprRecord `json:"expr"`
}

// ExprRecord is the serialized form of an Expr.
type ExprRecord struct {
	Type     string            `json:"type"`
	Op       string            `json:"op,omitempty"`
	Value    string            `json:"value,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []*ExprRecord     `json:"children,omitempty"`
	Plan     *NodeRecord       `json:"plan,omitempty"`
}

// Marshal serializes p deterministically: equal plans produce identical bytes.
func Marshal(p *LogicalPlan) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil plan")
	}
	return encode(PlanRecord{SQL: p.SQL, Metadata: p.Metadata, Root: NodeToRecord(p.Root)})
}

// MarshalNode serializes a single subtree.
func MarshalNode(n *Node) ([]byte, error) {
	return encode(NodeToRecord(n))
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NodeToRecord converts a subtree to its record form.
func NodeToRecord(n *Node) *NodeRecord {
	if n == nil {
		return nil
	}
	r := &NodeRecord{Type: n.Kind.String()}
	attrs := map[string]string{}
	switch n.Kind {
	case NodeScan:
		attrs["table"] = n.Table
		if n.Alias != "" {
			attrs["alias"] = n.Alias
		}
	case NodeJoin:
		attrs["join_type"] = n.JoinType.String()
	case NodeProject:
		if n.Distinct {
			attrs["distinct"] = "true"
		}
	case NodeSubquery:
		if n.Alias != "" {
			attrs["alias"] = n.Alias
		}
		attrs["correlated"] = strconv.FormatBool(n.Correlated)
	case NodeUnion:
		attrs["set_op"] = n.SetOp.String()
	case NodeLimit:
		attrs["count"] = strconv.FormatInt(n.Count, 10)
		attrs["offset"] = strconv.FormatInt(n.Offset, 10)
	case NodeUnknown:
		attrs["detail"] = n.Detail
	}
	if len(attrs) > 0 {
		r.Attrs = attrs
	}
	if n.Predicate != nil {
		r.Exprs = append(r.Exprs, ExprSlot{Field: "predicate", Expr: ExprToRecord(n.Predicate)})
	}
	for i, it := range n.Projections {
		r.Exprs = append(r.Exprs, ExprSlot{Field: slot("projection", i), Alias: it.Alias, Expr: ExprToRecord(it.Expr)})
	}
	for i, g := range n.GroupBy {
		r.Exprs = append(r.Exprs, ExprSlot{Field: slot("group_by", i), Expr: ExprToRecord(g)})
	}
	for i, a := range n.Aggregates {
		r.Exprs = append(r.Exprs, ExprSlot{Field: slot("aggregate", i), Alias: a.Alias, Expr: ExprToRecord(a.Expr)})
	}
	for i, k := range n.SortKeys {
		r.Exprs = append(r.Exprs, ExprSlot{Field: slot("sort_key", i), Desc: k.Desc, Expr: ExprToRecord(k.Expr)})
	}
	for _, c := range n.Children {
		r.Children = append(r.Children, NodeToRecord(c))
	}
	return r
}

func slot(field string, i int) string {
	return field + "[" + strconv.Itoa(i) + "]"
}

// ExprToRecord converts an expression to its record form.
func ExprToRecord(e *Expr) *ExprRecord {
	if e == nil {
		return nil
	}
	r := &ExprRecord{Type: e.Kind.String(), Op: e.Op, Value: e.Value}
	switch e.Kind {
	case ExprLiteral:
		r.Attrs = map[string]string{"type": e.LitType.String()}
	case ExprCase:
		attrs := map[string]string{}
		if e.HasOperand {
			attrs["operand"] = "true"
		}
		if e.HasElse {
			attrs["else"] = "true"
		}
		if len(attrs) > 0 {
			r.Attrs = attrs
		}
	}
	for _, c := range e.Children {
		r.Children = append(r.Children, ExprToRecord(c))
	}
	r.Plan = NodeToRecord(e.Subplan)
	return r
}

// Unmarshal decodes a plan serialized by Marshal.
func Unmarshal(data []byte) (*LogicalPlan, error) {
	var rec PlanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	root, err := RecordToNode(rec.Root)
	if err != nil {
		return nil, err
	}
	p := &LogicalPlan{Root: root, SQL: rec.SQL, Metadata: rec.Metadata}
	if p.Metadata == nil {
		p.Metadata = map[string]string{}
	}
	return p, nil
}

var (
	nodeKinds = kindTable(int(NodeUnknown)+1, func(i int) string { return NodeKind(i).String() })
	exprKinds = kindTable(int(ExprUnknown)+1, func(i int) string { return ExprKind(i).String() })
	joinTypes = kindTable(int(AntiJoin)+1, func(i int) string { return JoinType(i).String() })
	setOps    = kindTable(int(Except)+1, func(i int) string { return SetOp(i).String() })
	litTypes  = kindTable(int(LitBool)+1, func(i int) string { return LiteralType(i).String() })
)

func kindTable(n int, name func(int) string) map[string]int {
	m := make(map[string]int, n)
	for i := 0; i < n; i++ {
		m[name(i)] = i
	}
	return m
}

func lookup(table map[string]int, what, name string) (int, error) {
	v, ok := table[name]
	if !ok {
		return 0, fmt.Errorf("unknown %s %q", what, name)
	}
	return v, nil
}

// RecordToNode rebuilds a subtree from its record form.
func RecordToNode(r *NodeRecord) (*Node, error) {
	if r == nil {
		return nil, fmt.Errorf("missing node record")
	}
	kind, err := lookup(nodeKinds, "node type", r.Type)
	if err != nil {
		return nil, err
	}
	n := &Node{Kind: NodeKind(kind)}
	a := r.Attrs
	switch n.Kind {
	case NodeScan:
		n.Table, n.Alias = a["table"], a["alias"]
	case NodeJoin:
		jt, err := lookup(joinTypes, "join type", a["join_type"])
		if err != nil {
			return nil, err
		}
		n.JoinType = JoinType(jt)
	case NodeProject:
		n.Distinct = a["distinct"] == "true"
	case NodeSubquery:
		n.Alias = a["alias"]
		n.Correlated = a["correlated"] == "true"
	case NodeUnion:
		op, err := lookup(setOps, "set operation", a["set_op"])
		if err != nil {
			return nil, err
		}
		n.SetOp = SetOp(op)
	case NodeLimit:
		if n.Count, err = strconv.ParseInt(a["count"], 10, 64); err != nil {
			return nil, fmt.Errorf("limit count: %w", err)
		}
		if n.Offset, err = strconv.ParseInt(a["offset"], 10, 64); err != nil {
			return nil, fmt.Errorf("limit offset: %w", err)
		}
	case NodeUnknown:
		n.Detail = a["detail"]
	}
	for _, s := range r.Exprs {
		e, err := RecordToExpr(s.Expr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Field, err)
		}
		field, _, _ := strings.Cut(s.Field, "[")
		switch field {
		case "predicate":
			n.Predicate = e
		case "projection":
			n.Projections = append(n.Projections, ProjectItem{Expr: e, Alias: s.Alias})
		case "group_by":
			n.GroupBy = append(n.GroupBy, e)
		case "aggregate":
			n.Aggregates = append(n.Aggregates, ProjectItem{Expr: e, Alias: s.Alias})
		case "sort_key":
			n.SortKeys = append(n.SortKeys, SortKey{Expr: e, Desc: s.Desc})
		default:
			return nil, fmt.Errorf("unknown expression slot %q", s.Field)
		}
	}
	for _, cr := range r.Children {
		c, err := RecordToNode(cr)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

// RecordToExpr rebuilds an expression from its record form.
func RecordToExpr(r *ExprRecord) (*Expr, error) {
	if r == nil {
		return nil, fmt.Errorf("missing expression record")
	}
	kind, err := lookup(exprKinds, "expression type", r.Type)
	if err != nil {
		return nil, err
	}
	e := &Expr{Kind: ExprKind(kind), Op: r.Op, Value: r.Value}
	switch e.Kind {
	case ExprLiteral:
		lt, err := lookup(litTypes, "literal type", r.Attrs["type"])
		if err != nil {
			return nil, err
		}
		e.LitType = LiteralType(lt)
	case ExprCase:
		e.HasOperand = r.Attrs["operand"] == "true"
		e.HasElse = r.Attrs["else"] == "true"
	}
	for _, cr := range r.Children {
		c, err := RecordToExpr(cr)
		if err != nil {
			return nil, err
		}
		e.Children = append(e.Children, c)
	}
	if r.Plan != nil {
		if e.Subplan, err = RecordToNode(r.Plan); err != nil {
			return nil, err
		}
	}
	return e, nil
}
