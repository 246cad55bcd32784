package extract

import (
	"strings"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/plan"
	"github.com/dshills/planproof/internal/sql/parser"
)

// cteScope holds the CTEs visible to a query. Inner WITH clauses shadow
// outer ones.
type cteScope struct {
	parent *cteScope
	defs   map[string]*plan.Node
}

func (s *cteScope) lookup(name string) *plan.Node {
	for ; s != nil; s = s.parent {
		if n, ok := s.defs[name]; ok {
			return n.Clone()
		}
	}
	return nil
}

// builder converts parsed queries into plan trees. Plans are built bottom
// up in the order FROM, WHERE, aggregation, HAVING, projection, set
// operations, ORDER BY and LIMIT.
type builder struct{}

func newBuilder() *builder {
	return &builder{}
}

// buildQuery builds a full query including its CTEs and set operations.
func (b *builder) buildQuery(stmt *parser.SelectStmt, scope *cteScope) (*plan.Node, error) {
	if len(stmt.With) > 0 {
		var err error
		scope, err = b.planWithClause(stmt.With, scope)
		if err != nil {
			return nil, err
		}
	}

	node, err := b.buildSelectPlan(stmt, scope)
	if err != nil {
		return nil, err
	}

	for _, op := range stmt.SetOps {
		right, err := b.buildQuery(op.Right, scope)
		if err != nil {
			return nil, err
		}
		node = setOperation(op, node, right)
	}

	// Add ORDER BY if present
	if len(stmt.OrderBy) > 0 {
		keys, err := b.convertOrderBy(stmt.OrderBy, scope)
		if err != nil {
			return nil, err
		}
		node = plan.NewSort(node, keys...)
	}

	// Add LIMIT/OFFSET if present
	if stmt.Limit != nil || stmt.Offset != nil {
		count := plan.NoLimit
		var offset int64
		if stmt.Limit != nil {
			count = *stmt.Limit
		}
		if stmt.Offset != nil {
			offset = *stmt.Offset
		}
		node = plan.NewLimit(node, count, offset)
	}

	return node, nil
}

// planWithClause builds each CTE in order. A CTE sees the ones defined
// before it. Recursive CTEs are kept as unknown nodes.
func (b *builder) planWithClause(ctes []parser.CommonTableExpr, parent *cteScope) (*cteScope, error) {
	scope := &cteScope{parent: parent, defs: make(map[string]*plan.Node, len(ctes))}
	for _, cte := range ctes {
		if _, dup := scope.defs[cte.Name]; dup {
			return nil, verrors.ExtractionError("WITH query name \""+cte.Name+"\" specified more than once", 0, 0)
		}
		if cte.Recursive {
			scope.defs[cte.Name] = plan.NewUnknown("WITH RECURSIVE " + cte.Name + " AS (" + cte.Query.String() + ")")
			continue
		}
		node, err := b.buildQuery(cte.Query, scope)
		if err != nil {
			return nil, err
		}
		if len(cte.Columns) > 0 {
			node = renameColumns(node, cte.Columns)
		}
		scope.defs[cte.Name] = node
	}
	return scope, nil
}

// renameColumns applies a CTE column list to the projection producing the
// CTE output.
func renameColumns(n *plan.Node, cols []string) *plan.Node {
	target := n
	for target.Kind == plan.NodeSort || target.Kind == plan.NodeLimit {
		target = target.Child(0)
	}
	if target.Kind != plan.NodeProject || len(target.Projections) != len(cols) {
		return plan.NewUnknown("column list ("+strings.Join(cols, ", ")+")", n)
	}
	for i := range target.Projections {
		target.Projections[i].Alias = cols[i]
	}
	return n
}

// buildSelectPlan builds one SELECT core.
func (b *builder) buildSelectPlan(stmt *parser.SelectStmt, scope *cteScope) (*plan.Node, error) {
	var node *plan.Node
	if stmt.From == nil {
		node = plan.NewUnknown("no FROM clause")
	} else {
		var err error
		node, err = b.buildTableExpression(stmt.From, scope)
		if err != nil {
			return nil, err
		}
	}

	// Add WHERE clause if present
	if stmt.Where != nil {
		predicate, err := b.convertExpression(stmt.Where, scope)
		if err != nil {
			return nil, err
		}
		node = plan.NewFilter(node, predicate)
	}

	items, err := b.convertSelectColumns(stmt.Columns, scope)
	if err != nil {
		return nil, err
	}

	groupBy := make([]*plan.Expr, 0, len(stmt.GroupBy))
	for _, g := range stmt.GroupBy {
		e, err := b.convertExpression(g, scope)
		if err != nil {
			return nil, err
		}
		groupBy = append(groupBy, e)
	}

	var having *plan.Expr
	if stmt.Having != nil {
		having, err = b.convertExpression(stmt.Having, scope)
		if err != nil {
			return nil, err
		}
	}

	// Handle GROUP BY and aggregates
	aggregates := extractAggregates(items, having)
	if len(groupBy) > 0 || len(aggregates) > 0 || having != nil {
		node = plan.NewAggregate(node, groupBy, aggregates)
		if having != nil {
			node = plan.NewFilter(node, having)
		}
	}

	node = plan.NewProject(node, items...)
	node.Distinct = stmt.Distinct
	return node, nil
}

func (b *builder) convertSelectColumns(columns []parser.SelectColumn, scope *cteScope) ([]plan.ProjectItem, error) {
	items := make([]plan.ProjectItem, 0, len(columns))
	for _, col := range columns {
		e, err := b.convertExpression(col.Expr, scope)
		if err != nil {
			return nil, err
		}
		items = append(items, plan.Item(e, col.Alias))
	}
	return items, nil
}

func (b *builder) convertOrderBy(orderBy []parser.OrderByClause, scope *cteScope) ([]plan.SortKey, error) {
	keys := make([]plan.SortKey, 0, len(orderBy))
	for _, o := range orderBy {
		e, err := b.convertExpression(o.Expr, scope)
		if err != nil {
			return nil, err
		}
		if o.Nulls != "" {
			e = plan.UnknownExpr(o.Expr.String()+" NULLS "+o.Nulls, e)
		}
		keys = append(keys, plan.SortKey{Expr: e, Desc: o.Desc})
	}
	return keys, nil
}

// aggregateFunctions are the function names that make a query grouped.
var aggregateFunctions = map[string]bool{
	"COUNT":      true,
	"SUM":        true,
	"AVG":        true,
	"MIN":        true,
	"MAX":        true,
	"STRING_AGG": true,
	"ARRAY_AGG":  true,
	"BOOL_AND":   true,
	"BOOL_OR":    true,
	"EVERY":      true,
	"STDDEV":     true,
	"VARIANCE":   true,
}

func isAggregateFunction(e *plan.Expr) bool {
	return e.Kind == plan.ExprFunction && aggregateFunctions[e.Value]
}

// extractAggregates returns the distinct aggregate calls of the select list
// and HAVING, in order of appearance. An aggregate that is a whole select
// item takes the item's alias.
func extractAggregates(items []plan.ProjectItem, having *plan.Expr) []plan.ProjectItem {
	var out []plan.ProjectItem
	seen := map[string]bool{}
	add := func(e *plan.Expr, alias string) {
		e.Walk(func(x *plan.Expr) bool {
			if !isAggregateFunction(x) {
				return true
			}
			if k := x.Key(); !seen[k] {
				seen[k] = true
				name := ""
				if x == e {
					name = alias
				}
				out = append(out, plan.Item(x.Clone(), name))
			}
			return false
		})
	}
	for _, it := range items {
		add(it.Expr, it.Alias)
	}
	if having != nil {
		add(having, "")
	}
	return out
}

func setOperation(op parser.SetOperation, left, right *plan.Node) *plan.Node {
	switch {
	case op.Op == parser.TokenUnion && op.All:
		return plan.NewUnion(plan.UnionAll, left, right)
	case op.Op == parser.TokenUnion:
		return plan.NewUnion(plan.Union, left, right)
	case op.Op == parser.TokenIntersect && !op.All:
		return plan.NewUnion(plan.Intersect, left, right)
	case op.Op == parser.TokenExcept && !op.All:
		return plan.NewUnion(plan.Except, left, right)
	}
	return plan.NewUnknown(op.Op.String()+" ALL", left, right)
}

// buildTableExpression builds a FROM item.
func (b *builder) buildTableExpression(expr parser.TableExpression, scope *cteScope) (*plan.Node, error) {
	switch t := expr.(type) {
	case *parser.TableRef:
		if cte := scope.lookup(t.TableName); cte != nil {
			alias := t.Alias
			if alias == "" {
				alias = t.TableName
			}
			return plan.NewSubquery(cte, alias, false), nil
		}
		return plan.NewScan(t.TableName, t.Alias), nil

	case *parser.SubqueryRef:
		body, err := b.buildQuery(t.Query, scope)
		if err != nil {
			return nil, err
		}
		return plan.NewSubquery(body, t.Alias, false), nil

	case *parser.RawTableRef:
		return plan.NewUnknown(t.String()), nil

	case *parser.JoinExpr:
		left, err := b.buildTableExpression(t.Left, scope)
		if err != nil {
			return nil, err
		}
		right, err := b.buildTableExpression(t.Right, scope)
		if err != nil {
			return nil, err
		}

		var predicate *plan.Expr
		switch {
		case len(t.Using) > 0:
			predicate = usingPredicate(left, right, t.Using)
		case t.Condition != nil:
			predicate, err = b.convertExpression(t.Condition, scope)
			if err != nil {
				return nil, err
			}
		}
		return plan.NewJoin(convertJoinType(t.JoinType), predicate, left, right), nil
	}
	return nil, verrors.InternalErrorf("unsupported FROM item %T", expr)
}

func convertJoinType(jt parser.JoinType) plan.JoinType {
	switch jt {
	case parser.LeftJoin:
		return plan.LeftJoin
	case parser.RightJoin:
		return plan.RightJoin
	case parser.FullJoin:
		return plan.FullJoin
	case parser.CrossJoin:
		return plan.CrossJoin
	default:
		return plan.InnerJoin
	}
}

// usingPredicate expands USING (cols) into equalities when both sides
// expose a single relation. Otherwise the column owners are ambiguous and
// the condition is kept as an unknown expression.
func usingPredicate(left, right *plan.Node, cols []string) *plan.Expr {
	lq, rq := plan.Relations(left), plan.Relations(right)
	if len(lq) != 1 || len(rq) != 1 {
		return plan.UnknownExpr("USING (" + strings.Join(cols, ", ") + ")")
	}
	eqs := make([]*plan.Expr, 0, len(cols))
	for _, c := range cols {
		eqs = append(eqs, plan.Binary(plan.OpEqual, plan.Col(lq[0]+"."+c), plan.Col(rq[0]+"."+c)))
	}
	return plan.And(eqs...)
}
