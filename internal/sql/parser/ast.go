package parser

import (
	"fmt"
	"strings"
)

// Node represents a node in the AST.
type Node interface {
	String() string
}

// Statement represents a SQL statement.
type Statement interface {
	Node
	statementNode()
}

// Expression represents a SQL expression.
type Expression interface {
	Node
	expressionNode()
}

// SelectStmt represents a query: a select core optionally combined with
// further cores by set operations, then ordered and limited as a whole.
type SelectStmt struct {
	With     []CommonTableExpr // CTE definitions
	Distinct bool
	Columns  []SelectColumn
	From     TableExpression
	Where    Expression
	GroupBy  []Expression
	Having   Expression
	SetOps   []SetOperation
	OrderBy  []OrderByClause
	Limit    *int64
	Offset   *int64
}

// CommonTableExpr represents a Common Table Expression (CTE).
type CommonTableExpr struct {
	Name      string      // Name of the CTE
	Columns   []string    // Optional column list
	Recursive bool        // Declared under WITH RECURSIVE
	Query     *SelectStmt // The query that defines the CTE
}

// SetOperation combines the query so far with Right.
type SetOperation struct {
	Op    TokenType // TokenUnion, TokenIntersect or TokenExcept
	All   bool
	Right *SelectStmt
}

func (s SetOperation) String() string {
	op := s.Op.String()
	if s.All {
		op += " ALL"
	}
	return op + " " + s.Right.String()
}

func (s *SelectStmt) statementNode() {}
func (s *SelectStmt) String() string {
	var parts []string

	// WITH clause (CTEs)
	if len(s.With) > 0 {
		var ctes []string
		for _, cte := range s.With {
			name := cte.Name
			if len(cte.Columns) > 0 {
				name += "(" + strings.Join(cte.Columns, ", ") + ")"
			}
			ctes = append(ctes, fmt.Sprintf("%s AS (%s)", name, cte.Query.String()))
		}
		with := "WITH "
		if s.With[0].Recursive {
			with = "WITH RECURSIVE "
		}
		parts = append(parts, with+strings.Join(ctes, ", "))
	}

	// SELECT clause
	var cols []string //nolint:prealloc
	for _, col := range s.Columns {
		cols = append(cols, col.String())
	}
	if s.Distinct {
		parts = append(parts, fmt.Sprintf("SELECT DISTINCT %s", strings.Join(cols, ", ")))
	} else {
		parts = append(parts, fmt.Sprintf("SELECT %s", strings.Join(cols, ", ")))
	}

	// FROM clause (only if present)
	if s.From != nil {
		parts = append(parts, fmt.Sprintf("FROM %s", s.From.String()))
	}

	if s.Where != nil {
		parts = append(parts, fmt.Sprintf("WHERE %s", s.Where.String()))
	}

	if len(s.GroupBy) > 0 {
		var groupCols []string
		for _, g := range s.GroupBy {
			groupCols = append(groupCols, g.String())
		}
		parts = append(parts, fmt.Sprintf("GROUP BY %s", strings.Join(groupCols, ", ")))
	}

	if s.Having != nil {
		parts = append(parts, fmt.Sprintf("HAVING %s", s.Having.String()))
	}

	for _, op := range s.SetOps {
		parts = append(parts, op.String())
	}

	if len(s.OrderBy) > 0 {
		var orderCols []string
		for _, o := range s.OrderBy {
			orderCols = append(orderCols, o.String())
		}
		parts = append(parts, fmt.Sprintf("ORDER BY %s", strings.Join(orderCols, ", ")))
	}

	if s.Limit != nil {
		parts = append(parts, fmt.Sprintf("LIMIT %d", *s.Limit))
	}

	if s.Offset != nil {
		parts = append(parts, fmt.Sprintf("OFFSET %d", *s.Offset))
	}

	return strings.Join(parts, " ")
}

// OtherStmt is a statement that is not a query. Only its leading keyword is
// kept; the rest of the input is skipped.
type OtherStmt struct {
	Keyword string
}

func (s *OtherStmt) statementNode()  {}
func (s *OtherStmt) String() string { return s.Keyword + " ..." }

// SelectColumn represents a column in a SELECT statement.
type SelectColumn struct {
	Expr  Expression
	Alias string
}

func (c SelectColumn) String() string {
	if c.Alias != "" {
		return fmt.Sprintf("%s AS %s", c.Expr.String(), c.Alias)
	}
	return c.Expr.String()
}

// OrderByClause represents an ORDER BY clause.
type OrderByClause struct {
	Expr  Expression
	Desc  bool
	Nulls string // "FIRST", "LAST" or empty for the default
}

func (o OrderByClause) String() string {
	dir := "ASC"
	if o.Desc {
		dir = "DESC"
	}
	if o.Nulls != "" {
		return fmt.Sprintf("%s %s NULLS %s", o.Expr.String(), dir, o.Nulls)
	}
	return fmt.Sprintf("%s %s", o.Expr.String(), dir)
}

// TableExpression represents an item of the FROM clause.
type TableExpression interface {
	Node
	tableExpressionNode()
}

// TableRef represents a table name with an optional alias.
type TableRef struct {
	TableName string
	Alias     string
}

func (t *TableRef) tableExpressionNode() {}
func (t *TableRef) String() string {
	if t.Alias != "" {
		return fmt.Sprintf("%s AS %s", t.TableName, t.Alias)
	}
	return t.TableName
}

// SubqueryRef represents a derived table.
type SubqueryRef struct {
	Query *SelectStmt
	Alias string
}

func (s *SubqueryRef) tableExpressionNode() {}
func (s *SubqueryRef) String() string {
	return fmt.Sprintf("(%s) AS %s", s.Query.String(), s.Alias)
}

// RawTableRef is a FROM item the parser accepts but does not model, such as
// a table function call.
type RawTableRef struct {
	Text  string
	Alias string
}

func (r *RawTableRef) tableExpressionNode() {}
func (r *RawTableRef) String() string {
	if r.Alias != "" {
		return fmt.Sprintf("%s AS %s", r.Text, r.Alias)
	}
	return r.Text
}

// JoinType represents the type of join.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
	RightJoin
	FullJoin
	CrossJoin
)

func (jt JoinType) String() string {
	switch jt {
	case InnerJoin:
		return "INNER JOIN"
	case LeftJoin:
		return "LEFT JOIN"
	case RightJoin:
		return "RIGHT JOIN"
	case FullJoin:
		return "FULL JOIN"
	case CrossJoin:
		return "CROSS JOIN"
	default:
		return "UNKNOWN JOIN"
	}
}

// JoinExpr represents a join between two table expressions. Comma
// separated FROM items are CROSS joins.
type JoinExpr struct {
	Left      TableExpression
	Right     TableExpression
	JoinType  JoinType
	Condition Expression
	Using     []string
}

func (j *JoinExpr) tableExpressionNode() {}
func (j *JoinExpr) String() string {
	if len(j.Using) > 0 {
		return fmt.Sprintf("%s %s %s USING (%s)", j.Left, j.JoinType, j.Right, strings.Join(j.Using, ", "))
	}
	if j.Condition != nil {
		return fmt.Sprintf("%s %s %s ON %s", j.Left, j.JoinType, j.Right, j.Condition)
	}
	return fmt.Sprintf("%s %s %s", j.Left, j.JoinType, j.Right)
}

// LiteralKind classifies a literal.
type LiteralKind int

const (
	LiteralNumber LiteralKind = iota
	LiteralString
	LiteralBool
	LiteralNull
)

// Literal represents a literal value as written.
type Literal struct {
	Kind  LiteralKind
	Value string
}

func (l *Literal) expressionNode() {}
func (l *Literal) String() string {
	switch l.Kind {
	case LiteralString:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(l.Value, "'", "''"))
	case LiteralNull:
		return "NULL"
	}
	return l.Value
}

// Identifier represents a column or table identifier.
type Identifier struct {
	Name  string
	Table string // Optional table qualifier
}

func (i *Identifier) expressionNode() {}
func (i *Identifier) String() string {
	if i.Table != "" {
		return fmt.Sprintf("%s.%s", i.Table, i.Name)
	}
	return i.Name
}

// ParameterRef represents a parameter placeholder ($1, $2, etc.).
type ParameterRef struct {
	Index int
}

func (p *ParameterRef) expressionNode() {}
func (p *ParameterRef) String() string {
	return fmt.Sprintf("$%d", p.Index)
}

// Star represents * or table.* in a select list.
type Star struct {
	Table string
}

func (s *Star) expressionNode() {}
func (s *Star) String() string {
	if s.Table != "" {
		return s.Table + ".*"
	}
	return "*"
}

// BinaryExpr represents arithmetic, concatenation and AND/OR.
type BinaryExpr struct {
	Left     Expression
	Operator TokenType
	Right    Expression
}

func (b *BinaryExpr) expressionNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Operator.String(), b.Right.String())
}

// UnaryExpr represents NOT and unary sign.
type UnaryExpr struct {
	Operator TokenType
	Expr     Expression
}

func (u *UnaryExpr) expressionNode() {}
func (u *UnaryExpr) String() string {
	if u.Operator == TokenNot {
		return fmt.Sprintf("(NOT %s)", u.Expr.String())
	}
	return fmt.Sprintf("(%s%s)", u.Operator.String(), u.Expr.String())
}

// ParenExpr represents a parenthesized expression.
type ParenExpr struct {
	Expr Expression
}

func (p *ParenExpr) expressionNode() {}
func (p *ParenExpr) String() string {
	return fmt.Sprintf("(%s)", p.Expr.String())
}

// ComparisonExpr represents a comparison or LIKE. Symbol keeps the
// operator as written, so <> and != stay distinguishable.
type ComparisonExpr struct {
	Left     Expression
	Operator TokenType
	Symbol   string
	Not      bool // NOT LIKE
	Right    Expression
}

func (c *ComparisonExpr) expressionNode() {}
func (c *ComparisonExpr) String() string {
	op := c.Symbol
	if op == "" {
		op = c.Operator.String()
	}
	switch {
	case c.Not && c.Operator == TokenDistinct:
		op = "IS NOT DISTINCT FROM"
	case c.Not:
		op = "NOT " + op
	}
	return fmt.Sprintf("(%s %s %s)", c.Left.String(), op, c.Right.String())
}

// InExpr represents IN and NOT IN over a value list or a subquery.
type InExpr struct {
	Expr     Expression
	Values   []Expression
	Subquery *SubqueryExpr
	Not      bool
}

func (i *InExpr) expressionNode() {}
func (i *InExpr) String() string {
	op := "IN"
	if i.Not {
		op = "NOT IN"
	}
	if i.Subquery != nil {
		return fmt.Sprintf("(%s %s %s)", i.Expr.String(), op, i.Subquery.String())
	}
	vals := make([]string, len(i.Values))
	for j, v := range i.Values {
		vals[j] = v.String()
	}
	return fmt.Sprintf("(%s %s (%s))", i.Expr.String(), op, strings.Join(vals, ", "))
}

// BetweenExpr represents BETWEEN and NOT BETWEEN.
type BetweenExpr struct {
	Expr  Expression
	Lower Expression
	Upper Expression
	Not   bool
}

func (b *BetweenExpr) expressionNode() {}
func (b *BetweenExpr) String() string {
	op := "BETWEEN"
	if b.Not {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("(%s %s %s AND %s)", b.Expr.String(), op, b.Lower.String(), b.Upper.String())
}

// IsNullExpr represents IS NULL and IS NOT NULL.
type IsNullExpr struct {
	Expr Expression
	Not  bool
}

func (i *IsNullExpr) expressionNode() {}
func (i *IsNullExpr) String() string {
	if i.Not {
		return fmt.Sprintf("(%s IS NOT NULL)", i.Expr.String())
	}
	return fmt.Sprintf("(%s IS NULL)", i.Expr.String())
}

// SubqueryExpr represents a parenthesized query used as an expression.
type SubqueryExpr struct {
	Query *SelectStmt
}

func (s *SubqueryExpr) expressionNode() {}
func (s *SubqueryExpr) String() string {
	return fmt.Sprintf("(%s)", s.Query.String())
}

// ExistsExpr represents EXISTS and NOT EXISTS.
type ExistsExpr struct {
	Subquery *SubqueryExpr
	Not      bool
}

func (e *ExistsExpr) expressionNode() {}
func (e *ExistsExpr) String() string {
	if e.Not {
		return fmt.Sprintf("NOT EXISTS %s", e.Subquery.String())
	}
	return fmt.Sprintf("EXISTS %s", e.Subquery.String())
}

// FunctionCall represents a function call. Star marks COUNT(*).
type FunctionCall struct {
	Name     string
	Args     []Expression
	Distinct bool
	Star     bool
}

func (f *FunctionCall) expressionNode() {}
func (f *FunctionCall) String() string {
	if f.Star {
		return fmt.Sprintf("%s(*)", f.Name)
	}
	args := make([]string, len(f.Args))
	for i, arg := range f.Args {
		args[i] = arg.String()
	}
	if f.Distinct {
		return fmt.Sprintf("%s(DISTINCT %s)", f.Name, strings.Join(args, ", "))
	}
	return fmt.Sprintf("%s(%s)", f.Name, strings.Join(args, ", "))
}

// CaseExpr represents simple and searched CASE expressions.
type CaseExpr struct {
	Expr     Expression // nil for a searched CASE
	WhenList []WhenClause
	Else     Expression
}

func (c *CaseExpr) expressionNode() {}
func (c *CaseExpr) String() string {
	var b strings.Builder
	b.WriteString("CASE")
	if c.Expr != nil {
		b.WriteString(" " + c.Expr.String())
	}
	for _, w := range c.WhenList {
		b.WriteString(" " + w.String())
	}
	if c.Else != nil {
		b.WriteString(" ELSE " + c.Else.String())
	}
	b.WriteString(" END")
	return b.String()
}

// WhenClause represents one WHEN ... THEN ... arm.
type WhenClause struct {
	Condition Expression
	Result    Expression
}

func (w WhenClause) String() string {
	return fmt.Sprintf("WHEN %s THEN %s", w.Condition.String(), w.Result.String())
}

// RawExpr is a construct the parser accepts but does not model, such as a
// cast, a typed literal or a window function. Text is the source with
// whitespace collapsed; Args are the modeled sub-expressions it contains.
type RawExpr struct {
	Text string
	Args []Expression
}

func (r *RawExpr) expressionNode() {}
func (r *RawExpr) String() string  { return r.Text }
