package extract

import (
	"strconv"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/plan"
	"github.com/dshills/planproof/internal/sql/parser"
)

// convertExpression converts a parsed expression into a plan expression.
// Subqueries are built in the current CTE scope.
func (b *builder) convertExpression(expr parser.Expression, scope *cteScope) (*plan.Expr, error) {
	switch e := expr.(type) {
	case *parser.Identifier:
		if e.Table != "" {
			return plan.Col(e.Table + "." + e.Name), nil
		}
		return plan.Col(e.Name), nil

	case *parser.Star:
		return plan.Col(e.String()), nil

	case *parser.Literal:
		return convertLiteral(e, false), nil

	case *parser.ParameterRef:
		return plan.UnknownExpr(e.String()), nil

	case *parser.ParenExpr:
		return b.convertExpression(e.Expr, scope)

	case *parser.BinaryExpr:
		left, right, err := b.convertPair(e.Left, e.Right, scope)
		if err != nil {
			return nil, err
		}
		switch e.Operator { //nolint:exhaustive
		case parser.TokenAnd:
			return plan.And(left, right), nil
		case parser.TokenOr:
			return plan.Or(left, right), nil
		}
		op, err := convertBinaryOp(e.Operator)
		if err != nil {
			return nil, err
		}
		return plan.Binary(op, left, right), nil

	case *parser.UnaryExpr:
		// Fold signs into numeric literals
		if lit, ok := e.Expr.(*parser.Literal); ok && lit.Kind == parser.LiteralNumber && e.Operator != parser.TokenNot {
			return convertLiteral(lit, e.Operator == parser.TokenMinus), nil
		}
		operand, err := b.convertExpression(e.Expr, scope)
		if err != nil {
			return nil, err
		}
		switch e.Operator { //nolint:exhaustive
		case parser.TokenNot:
			return plan.Not(operand), nil
		case parser.TokenMinus:
			return plan.Unary(plan.OpNegate, operand), nil
		case parser.TokenPlus:
			return operand, nil
		}
		return nil, verrors.InternalErrorf("unsupported unary operator %s", e.Operator)

	case *parser.ComparisonExpr:
		left, right, err := b.convertPair(e.Left, e.Right, scope)
		if err != nil {
			return nil, err
		}
		op, err := convertComparisonOp(e)
		if err != nil {
			return nil, err
		}
		cmp := plan.Binary(op, left, right)
		if e.Not {
			return plan.Not(cmp), nil
		}
		return cmp, nil

	case *parser.InExpr:
		probe, err := b.convertExpression(e.Expr, scope)
		if err != nil {
			return nil, err
		}
		var in *plan.Expr
		if e.Subquery != nil {
			sub, err := b.subquery(e.Subquery.Query, scope)
			if err != nil {
				return nil, err
			}
			in = plan.InSubquery(probe, sub)
		} else {
			values := make([]*plan.Expr, 0, len(e.Values))
			for _, v := range e.Values {
				val, err := b.convertExpression(v, scope)
				if err != nil {
					return nil, err
				}
				values = append(values, val)
			}
			in = plan.In(probe, values...)
		}
		if e.Not {
			return plan.Not(in), nil
		}
		return in, nil

	case *parser.BetweenExpr:
		// x BETWEEN lo AND hi is x >= lo AND x <= hi
		x, err := b.convertExpression(e.Expr, scope)
		if err != nil {
			return nil, err
		}
		lower, upper, err := b.convertPair(e.Lower, e.Upper, scope)
		if err != nil {
			return nil, err
		}
		between := plan.And(
			plan.Binary(plan.OpGreaterEqual, x, lower),
			plan.Binary(plan.OpLessEqual, x.Clone(), upper),
		)
		if e.Not {
			return plan.Not(between), nil
		}
		return between, nil

	case *parser.IsNullExpr:
		operand, err := b.convertExpression(e.Expr, scope)
		if err != nil {
			return nil, err
		}
		if e.Not {
			return plan.Unary(plan.OpIsNotNull, operand), nil
		}
		return plan.Unary(plan.OpIsNull, operand), nil

	case *parser.SubqueryExpr:
		sub, err := b.subquery(e.Query, scope)
		if err != nil {
			return nil, err
		}
		return plan.ScalarSubquery(sub), nil

	case *parser.ExistsExpr:
		sub, err := b.subquery(e.Subquery.Query, scope)
		if err != nil {
			return nil, err
		}
		if e.Not {
			return plan.Not(plan.Exists(sub)), nil
		}
		return plan.Exists(sub), nil

	case *parser.FunctionCall:
		if e.Star {
			return plan.Func(e.Name, plan.Col("*")), nil
		}
		args, err := b.convertList(e.Args, scope)
		if err != nil {
			return nil, err
		}
		fn := plan.Func(e.Name, args...)
		if e.Distinct {
			fn.Op = plan.OpDistinct
		}
		return fn, nil

	case *parser.CaseExpr:
		return b.convertCase(e, scope)

	case *parser.RawExpr:
		args, err := b.convertList(e.Args, scope)
		if err != nil {
			return nil, err
		}
		return plan.UnknownExpr(e.Text, args...), nil
	}

	return nil, verrors.InternalErrorf("unsupported expression type: %T", expr)
}

func (b *builder) convertPair(l, r parser.Expression, scope *cteScope) (*plan.Expr, *plan.Expr, error) {
	left, err := b.convertExpression(l, scope)
	if err != nil {
		return nil, nil, err
	}
	right, err := b.convertExpression(r, scope)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (b *builder) convertList(exprs []parser.Expression, scope *cteScope) ([]*plan.Expr, error) {
	out := make([]*plan.Expr, 0, len(exprs))
	for _, x := range exprs {
		e, err := b.convertExpression(x, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *builder) convertCase(c *parser.CaseExpr, scope *cteScope) (*plan.Expr, error) {
	out := &plan.Expr{Kind: plan.ExprCase}
	if c.Expr != nil {
		operand, err := b.convertExpression(c.Expr, scope)
		if err != nil {
			return nil, err
		}
		out.HasOperand = true
		out.Children = append(out.Children, operand)
	}
	for _, w := range c.WhenList {
		cond, result, err := b.convertPair(w.Condition, w.Result, scope)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, cond, result)
	}
	if c.Else != nil {
		e, err := b.convertExpression(c.Else, scope)
		if err != nil {
			return nil, err
		}
		out.HasElse = true
		out.Children = append(out.Children, e)
	}
	return out, nil
}

// subquery builds a nested query and wraps it in a subquery node. It is
// marked correlated when it references relations it does not define.
func (b *builder) subquery(q *parser.SelectStmt, scope *cteScope) (*plan.Node, error) {
	body, err := b.buildQuery(q, scope)
	if err != nil {
		return nil, err
	}
	return plan.NewSubquery(body, "", len(plan.FreeQualifiers(body)) > 0), nil
}

func convertLiteral(l *parser.Literal, negate bool) *plan.Expr {
	switch l.Kind {
	case parser.LiteralString:
		return plan.StrLit(l.Value)
	case parser.LiteralBool:
		return plan.BoolLit(l.Value == "TRUE")
	case parser.LiteralNull:
		return plan.NullLit()
	}
	if i, err := strconv.ParseInt(l.Value, 10, 64); err == nil {
		if negate {
			i = -i
		}
		return plan.IntLit(i)
	}
	if f, err := strconv.ParseFloat(l.Value, 64); err == nil {
		if negate {
			f = -f
		}
		return plan.FloatLit(f)
	}
	if negate {
		return plan.UnknownExpr("-" + l.Value)
	}
	return plan.UnknownExpr(l.Value)
}

func convertBinaryOp(op parser.TokenType) (string, error) {
	switch op { //nolint:exhaustive
	case parser.TokenPlus:
		return plan.OpAdd, nil
	case parser.TokenMinus:
		return plan.OpSubtract, nil
	case parser.TokenStar:
		return plan.OpMultiply, nil
	case parser.TokenSlash:
		return plan.OpDivide, nil
	case parser.TokenPercent:
		return plan.OpModulo, nil
	case parser.TokenConcat:
		return plan.OpConcat, nil
	default:
		return "", verrors.InternalErrorf("unsupported binary operator: %s", op)
	}
}

// convertComparisonOp maps a comparison to its operator, keeping != and <>
// apart as written.
func convertComparisonOp(c *parser.ComparisonExpr) (string, error) {
	switch c.Operator { //nolint:exhaustive
	case parser.TokenEqual:
		return plan.OpEqual, nil
	case parser.TokenNotEqual:
		if c.Symbol == "!=" {
			return plan.OpNotEqualAlt, nil
		}
		return plan.OpNotEqual, nil
	case parser.TokenLess:
		return plan.OpLess, nil
	case parser.TokenLessEqual:
		return plan.OpLessEqual, nil
	case parser.TokenGreater:
		return plan.OpGreater, nil
	case parser.TokenGreaterEqual:
		return plan.OpGreaterEqual, nil
	case parser.TokenLike:
		return plan.OpLike, nil
	case parser.TokenDistinct:
		return plan.OpDistinct, nil
	default:
		return "", verrors.InternalErrorf("unsupported comparison operator: %s", c.Operator)
	}
}
