package plan

import (
	"fmt"
	"strconv"
	"strings"
)

// ExprKind tags the variant of a scalar expression.
type ExprKind int

const (
	ExprColumn ExprKind = iota
	ExprLiteral
	ExprBinary
	ExprUnary
	ExprFunction
	ExprSubquery
	ExprCase
	ExprIn
	ExprExists
	ExprUnknown
)

func (k ExprKind) String() string {
	switch k {
	case ExprColumn:
		return "column"
	case ExprLiteral:
		return "literal"
	case ExprBinary:
		return "binary"
	case ExprUnary:
		return "unary"
	case ExprFunction:
		return "function"
	case ExprSubquery:
		return "subquery"
	case ExprCase:
		return "case"
	case ExprIn:
		return "in"
	case ExprExists:
		return "exists"
	case ExprUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Unknown(%d)", k)
	}
}

// LiteralType is the value type of a literal expression.
type LiteralType int

const (
	LitNull LiteralType = iota
	LitInt
	LitFloat
	LitString
	LitBool
)

func (t LiteralType) String() string {
	switch t {
	case LitNull:
		return "null"
	case LitInt:
		return "int"
	case LitFloat:
		return "float"
	case LitString:
		return "string"
	case LitBool:
		return "bool"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Operator symbols used by binary and unary expressions.
const (
	OpAnd          = "AND"
	OpOr           = "OR"
	OpNot          = "NOT"
	OpEqual        = "="
	OpNotEqual     = "<>"
	OpNotEqualAlt  = "!="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpLike         = "LIKE"
	OpAdd          = "+"
	OpSubtract     = "-"
	OpMultiply     = "*"
	OpDivide       = "/"
	OpModulo       = "%"
	OpConcat       = "||"
	OpNegate       = "-"
	OpIsNull       = "IS NULL"
	OpIsNotNull    = "IS NOT NULL"
	OpDistinct     = "DISTINCT"
)

// Expr is a scalar expression tree node.
//
// The meaning of Value depends on Kind: the qualified name for a column,
// the literal text for a literal, the function name for a function call and
// the rendered source for an unknown construct. Case children are laid out
// as [operand] (when, then)... [else], guided by HasOperand and HasElse.
// In children are the probe followed by the value list; an IN over a
// subquery has only the probe and a Subplan.
type Expr struct {
	Kind       ExprKind
	Op         string
	Value      string
	LitType    LiteralType
	Children   []*Expr
	Subplan    *Node
	HasOperand bool
	HasElse    bool
}

// Col returns a column reference.
func Col(name string) *Expr {
	return &Expr{Kind: ExprColumn, Value: name}
}

// IntLit returns an integer literal.
func IntLit(v int64) *Expr {
	return &Expr{Kind: ExprLiteral, LitType: LitInt, Value: strconv.FormatInt(v, 10)}
}

// FloatLit returns a floating point literal.
func FloatLit(v float64) *Expr {
	return &Expr{Kind: ExprLiteral, LitType: LitFloat, Value: strconv.FormatFloat(v, 'g', -1, 64)}
}

// StrLit returns a string literal.
func StrLit(v string) *Expr {
	return &Expr{Kind: ExprLiteral, LitType: LitString, Value: v}
}

// BoolLit returns a boolean literal.
func BoolLit(v bool) *Expr {
	if v {
		return &Expr{Kind: ExprLiteral, LitType: LitBool, Value: "TRUE"}
	}
	return &Expr{Kind: ExprLiteral, LitType: LitBool, Value: "FALSE"}
}

// NullLit returns the NULL literal.
func NullLit() *Expr {
	return &Expr{Kind: ExprLiteral, LitType: LitNull, Value: "NULL"}
}

// Binary returns a binary operation.
func Binary(op string, left, right *Expr) *Expr {
	return &Expr{Kind: ExprBinary, Op: op, Children: []*Expr{left, right}}
}

// And joins the operands with AND. Nil operands are skipped; a single
// operand is returned as is and no operands yields nil.
func And(operands ...*Expr) *Expr {
	return connective(OpAnd, operands)
}

// Or joins the operands with OR, with the same rules as And.
func Or(operands ...*Expr) *Expr {
	return connective(OpOr, operands)
}

func connective(op string, operands []*Expr) *Expr {
	var kept []*Expr
	for _, o := range operands {
		if o != nil {
			kept = append(kept, o)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return &Expr{Kind: ExprBinary, Op: op, Children: kept}
	}
}

// Unary returns a unary operation.
func Unary(op string, operand *Expr) *Expr {
	return &Expr{Kind: ExprUnary, Op: op, Children: []*Expr{operand}}
}

// Not negates an expression.
func Not(operand *Expr) *Expr {
	return Unary(OpNot, operand)
}

// Func returns a function call.
func Func(name string, args ...*Expr) *Expr {
	return &Expr{Kind: ExprFunction, Value: name, Children: args}
}

// In returns probe IN (values...).
func In(probe *Expr, values ...*Expr) *Expr {
	children := make([]*Expr, 0, len(values)+1)
	children = append(children, probe)
	children = append(children, values...)
	return &Expr{Kind: ExprIn, Children: children}
}

// InSubquery returns probe IN (subquery).
func InSubquery(probe *Expr, sub *Node) *Expr {
	return &Expr{Kind: ExprIn, Children: []*Expr{probe}, Subplan: sub}
}

// Exists returns EXISTS (subquery).
func Exists(sub *Node) *Expr {
	return &Expr{Kind: ExprExists, Subplan: sub}
}

// ScalarSubquery returns a scalar subquery expression.
func ScalarSubquery(sub *Node) *Expr {
	return &Expr{Kind: ExprSubquery, Subplan: sub}
}

// UnknownExpr returns an expression the extractor could not classify.
func UnknownExpr(source string, children ...*Expr) *Expr {
	return &Expr{Kind: ExprUnknown, Value: source, Children: children}
}

// IsConnective reports whether e is an AND or OR expression.
func (e *Expr) IsConnective() bool {
	return e != nil && e.Kind == ExprBinary && (e.Op == OpAnd || e.Op == OpOr)
}

// IsComparison reports whether e is a comparison between two operands.
func (e *Expr) IsComparison() bool {
	if e == nil || e.Kind != ExprBinary {
		return false
	}
	switch e.Op {
	case OpEqual, OpNotEqual, OpNotEqualAlt, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	}
	return false
}

// IsTrue reports whether e is the TRUE literal.
func (e *Expr) IsTrue() bool {
	return e != nil && e.Kind == ExprLiteral && e.LitType == LitBool && e.Value == "TRUE"
}

// IsFalse reports whether e is the FALSE literal.
func (e *Expr) IsFalse() bool {
	return e != nil && e.Kind == ExprLiteral && e.LitType == LitBool && e.Value == "FALSE"
}

// Conjuncts splits e into its top-level AND operands.
func (e *Expr) Conjuncts() []*Expr {
	if e == nil {
		return nil
	}
	if e.Kind == ExprBinary && e.Op == OpAnd {
		var out []*Expr
		for _, c := range e.Children {
			out = append(out, c.Conjuncts()...)
		}
		return out
	}
	return []*Expr{e}
}

// Qualifier returns the relation qualifier of a column reference, or "" if
// the column is unqualified.
func (e *Expr) Qualifier() string {
	if e == nil || e.Kind != ExprColumn {
		return ""
	}
	if i := strings.LastIndexByte(e.Value, '.'); i >= 0 {
		return e.Value[:i]
	}
	return ""
}

// Walk calls fn for e and every sub-expression in pre-order. Nested
// subplans are not entered. Returning false stops descent below a node.
func (e *Expr) Walk(fn func(*Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// HasColumn reports whether e references any column outside nested subplans.
func (e *Expr) HasColumn() bool {
	found := false
	e.Walk(func(x *Expr) bool {
		if x.Kind == ExprColumn {
			found = true
		}
		return !found
	})
	return found
}

// HasSubplan reports whether e contains a nested subquery.
func (e *Expr) HasSubplan() bool {
	found := false
	e.Walk(func(x *Expr) bool {
		if x.Subplan != nil {
			found = true
		}
		return !found
	})
	return found
}

// Columns returns the column references of e in pre-order, excluding those
// inside nested subplans.
func (e *Expr) Columns() []*Expr {
	var cols []*Expr
	e.Walk(func(x *Expr) bool {
		if x.Kind == ExprColumn {
			cols = append(cols, x)
		}
		return true
	})
	return cols
}

// Clone returns a deep copy of e, including nested subplans.
func (e *Expr) Clone() *Expr {
	if e == nil {
		return nil
	}
	c := *e
	if e.Children != nil {
		c.Children = make([]*Expr, len(e.Children))
		for i, child := range e.Children {
			c.Children[i] = child.Clone()
		}
	}
	c.Subplan = e.Subplan.Clone()
	return &c
}

// Equal reports structural equality.
func (e *Expr) Equal(other *Expr) bool {
	return e.Key() == other.Key()
}

// String renders e in SQL-like syntax for diagnostics.
func (e *Expr) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ExprColumn:
		return e.Value
	case ExprLiteral:
		if e.LitType == LitString {
			return "'" + strings.ReplaceAll(e.Value, "'", "''") + "'"
		}
		return e.Value
	case ExprBinary:
		parts := make([]string, len(e.Children))
		for i, c := range e.Children {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " "+e.Op+" ") + ")"
	case ExprUnary:
		switch e.Op {
		case OpIsNull, OpIsNotNull:
			return fmt.Sprintf("(%s %s)", e.child(0), e.Op)
		case OpNot:
			return fmt.Sprintf("(NOT %s)", e.child(0))
		}
		return fmt.Sprintf("(%s%s)", e.Op, e.child(0))
	case ExprFunction:
		args := make([]string, len(e.Children))
		for i, c := range e.Children {
			args[i] = c.String()
		}
		prefix := ""
		if e.Op == OpDistinct {
			prefix = "DISTINCT "
		}
		return fmt.Sprintf("%s(%s%s)", e.Value, prefix, strings.Join(args, ", "))
	case ExprSubquery:
		return "(SUBQUERY " + e.Subplan.String() + ")"
	case ExprExists:
		return "EXISTS(" + e.Subplan.String() + ")"
	case ExprIn:
		if e.Subplan != nil {
			return fmt.Sprintf("(%s IN (SUBQUERY %s))", e.child(0), e.Subplan.String())
		}
		vals := make([]string, 0, len(e.Children))
		for _, c := range e.Children[1:] {
			vals = append(vals, c.String())
		}
		return fmt.Sprintf("(%s IN (%s))", e.child(0), strings.Join(vals, ", "))
	case ExprCase:
		return e.caseString()
	case ExprUnknown:
		return "?" + e.Value
	}
	return "<invalid>"
}

func (e *Expr) caseString() string {
	parts := []string{"CASE"}
	rest := e.Children
	if e.HasOperand && len(rest) > 0 {
		parts = append(parts, rest[0].String())
		rest = rest[1:]
	}
	var elseExpr *Expr
	if e.HasElse && len(rest) > 0 {
		elseExpr = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}
	for i := 0; i+1 < len(rest); i += 2 {
		parts = append(parts, "WHEN", rest[i].String(), "THEN", rest[i+1].String())
	}
	if elseExpr != nil {
		parts = append(parts, "ELSE", elseExpr.String())
	}
	parts = append(parts, "END")
	return strings.Join(parts, " ")
}

func (e *Expr) child(i int) *Expr {
	if i < len(e.Children) {
		return e.Children[i]
	}
	return nil
}

// Validate checks that the operand count matches the variant.
func (e *Expr) Validate() error {
	if e == nil {
		return fmt.Errorf("nil expression")
	}
	switch e.Kind {
	case ExprColumn:
		if e.Value == "" {
			return fmt.Errorf("column reference without a name")
		}
		if len(e.Children) != 0 || e.Subplan != nil {
			return fmt.Errorf("column %s has operands", e.Value)
		}
	case ExprLiteral:
		if len(e.Children) != 0 || e.Subplan != nil {
			return fmt.Errorf("literal %s has operands", e.Value)
		}
	case ExprBinary:
		if e.Op == OpAnd || e.Op == OpOr {
			if len(e.Children) < 2 {
				return fmt.Errorf("%s needs at least 2 operands, has %d", e.Op, len(e.Children))
			}
		} else if len(e.Children) != 2 {
			return fmt.Errorf("binary %s needs exactly 2 operands, has %d", e.Op, len(e.Children))
		}
	case ExprUnary:
		if len(e.Children) != 1 {
			return fmt.Errorf("unary %s needs exactly 1 operand, has %d", e.Op, len(e.Children))
		}
	case ExprSubquery, ExprExists:
		if e.Subplan == nil {
			return fmt.Errorf("%s expression without a subplan", e.Kind)
		}
		if len(e.Children) != 0 {
			return fmt.Errorf("%s expression has operands", e.Kind)
		}
	case ExprIn:
		if len(e.Children) < 1 {
			return fmt.Errorf("IN without a probe expression")
		}
		if e.Subplan != nil && len(e.Children) != 1 {
			return fmt.Errorf("IN subquery with a value list")
		}
	case ExprCase:
		n := len(e.Children)
		if e.HasOperand {
			n--
		}
		if e.HasElse {
			n--
		}
		if n < 2 || n%2 != 0 {
			return fmt.Errorf("CASE has %d operands, not a WHEN/THEN layout", len(e.Children))
		}
	case ExprFunction, ExprUnknown:
	default:
		return fmt.Errorf("unknown expression kind %d", e.Kind)
	}
	for _, c := range e.Children {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	if e.Subplan != nil {
		return e.Subplan.Validate()
	}
	return nil
}

// Depth returns the nesting depth of e, counting nested subplans.
func (e *Expr) Depth() int {
	if e == nil {
		return 0
	}
	d := 0
	for _, c := range e.Children {
		if cd := c.Depth(); cd > d {
			d = cd
		}
	}
	if sd := e.Subplan.Depth(); sd > d {
		d = sd
	}
	return d + 1
}
