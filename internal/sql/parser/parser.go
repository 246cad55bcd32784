package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser parses SQL statements from tokens.
type Parser struct {
	lexer    *Lexer
	current  Token
	previous Token
	prevEnd  int // input offset just past the previous token
	errors   []error
}

// NewParser creates a new parser for the given SQL input.
func NewParser(sql string) *Parser {
	lexer := NewLexer(sql)
	parser := &Parser{
		lexer:  lexer,
		errors: []error{},
	}
	parser.advance()
	return parser
}

// Parse parses a single SQL statement. Statements that are not queries are
// returned as *OtherStmt without their body being parsed.
func (p *Parser) Parse() (Statement, error) {
	if p.check(TokenError) {
		return nil, p.error(p.current.Value)
	}
	if p.check(TokenEOF) || p.check(TokenSemicolon) {
		return nil, p.error("empty statement")
	}

	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, ok := stmt.(*OtherStmt); ok {
		return stmt, nil
	}

	// Expect EOF or semicolon
	p.match(TokenSemicolon)
	if !p.check(TokenEOF) {
		return nil, p.error(fmt.Sprintf("unexpected token %s", p.current))
	}

	return stmt, nil
}

// ParseExpression parses a single expression (for testing).
func (p *Parser) ParseExpression() (Expression, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if !p.check(TokenEOF) {
		return nil, p.error(fmt.Sprintf("unexpected token %s", p.current))
	}
	return expr, nil
}

// parseStatement parses a single SQL statement.
func (p *Parser) parseStatement() (Statement, error) {
	switch p.current.Type { //nolint:exhaustive
	case TokenSelect, TokenWith, TokenLeftParen:
		return p.parseQuery()
	case TokenCreate, TokenInsert, TokenUpdate, TokenDelete, TokenDrop, TokenAlter, TokenValues:
		return &OtherStmt{Keyword: strings.ToUpper(p.current.Value)}, nil
	case TokenIdentifier:
		// EXPLAIN, COPY, VACUUM and friends
		return &OtherStmt{Keyword: strings.ToUpper(p.current.Value)}, nil
	default:
		return nil, p.error(fmt.Sprintf("unexpected statement start: %s", p.current))
	}
}

// parseQuery parses a full query: optional CTEs, set operations and the
// trailing ORDER BY, LIMIT and OFFSET that apply to the whole result.
func (p *Parser) parseQuery() (*SelectStmt, error) {
	var ctes []CommonTableExpr
	if p.check(TokenWith) {
		var err error
		ctes, err = p.parseWith()
		if err != nil {
			return nil, err
		}
	}

	stmt, err := p.parseSetOperand()
	if err != nil {
		return nil, err
	}
	if len(ctes) > 0 {
		if len(stmt.With) > 0 {
			return nil, p.error("nested WITH clauses are not supported")
		}
		stmt.With = ctes
	}

	// a parenthesized first operand may already carry ORDER BY or LIMIT
	closed := len(stmt.OrderBy) > 0 || stmt.Limit != nil || stmt.Offset != nil

	for p.check(TokenUnion) || p.check(TokenIntersect) || p.check(TokenExcept) {
		if closed {
			return nil, p.error("ORDER BY, LIMIT and OFFSET are not supported in the first operand of a set operation")
		}
		op := SetOperation{Op: p.current.Type}
		p.advance()
		if p.match(TokenAll) {
			op.All = true
		} else {
			p.match(TokenDistinct)
		}
		right, err := p.parseSetOperand()
		if err != nil {
			return nil, err
		}
		op.Right = right
		stmt.SetOps = append(stmt.SetOps, op)
	}

	if closed && (p.check(TokenOrderBy) || p.check(TokenLimit) || p.check(TokenOffset)) {
		return nil, p.error("ORDER BY, LIMIT and OFFSET are already given for this query")
	}
	if err := p.parseOrderLimit(stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseSetOperand parses a select core or a parenthesized query.
func (p *Parser) parseSetOperand() (*SelectStmt, error) {
	if p.match(TokenLeftParen) {
		query, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if !p.consume(TokenRightParen, "expected ')' after query") {
			return nil, p.lastError()
		}
		return query, nil
	}
	return p.parseSelect()
}

// parseWith parses WITH [RECURSIVE] name [(cols)] AS (query), ...
func (p *Parser) parseWith() ([]CommonTableExpr, error) {
	if !p.consume(TokenWith, "expected WITH") {
		return nil, p.lastError()
	}
	recursive := p.match(TokenRecursive)

	// Parse CTE definitions
	var ctes []CommonTableExpr
	for {
		if !p.canBeIdentifier() {
			return nil, p.error("expected CTE name")
		}
		cte := CommonTableExpr{Name: p.identifier(), Recursive: recursive}

		if p.check(TokenLeftParen) {
			cols, err := p.parseIdentifierList()
			if err != nil {
				return nil, err
			}
			cte.Columns = cols
		}

		// Expect AS
		if !p.consume(TokenAs, "expected AS") {
			return nil, p.lastError()
		}

		// Expect opening parenthesis
		if !p.consume(TokenLeftParen, "expected '('") {
			return nil, p.lastError()
		}

		query, err := p.parseQuery()
		if err != nil {
			return nil, err
		}

		// Expect closing parenthesis
		if !p.consume(TokenRightParen, "expected ')'") {
			return nil, p.lastError()
		}

		cte.Query = query
		ctes = append(ctes, cte)

		// Check for more CTEs
		if !p.match(TokenComma) {
			break
		}
	}
	return ctes, nil
}

// parseIdentifierList parses a parenthesized list of identifiers.
func (p *Parser) parseIdentifierList() ([]string, error) {
	if !p.consume(TokenLeftParen, "expected '('") {
		return nil, p.lastError()
	}
	var names []string
	for {
		if !p.canBeIdentifier() {
			return nil, p.error("expected identifier")
		}
		names = append(names, p.identifier())
		if !p.match(TokenComma) {
			break
		}
	}
	if !p.consume(TokenRightParen, "expected ')'") {
		return nil, p.lastError()
	}
	return names, nil
}

// parseSelect parses one SELECT core, up to and including HAVING.
func (p *Parser) parseSelect() (*SelectStmt, error) {
	if !p.consume(TokenSelect, "expected SELECT") {
		return nil, p.lastError()
	}

	// Check for DISTINCT
	distinct := false
	if p.match(TokenDistinct) {
		if p.check(TokenOn) {
			return nil, p.error("DISTINCT ON is not supported")
		}
		distinct = true
	} else {
		p.match(TokenAll)
	}

	// Parse select columns
	var columns []SelectColumn
	for {
		expr, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}

		col := SelectColumn{Expr: expr}

		// Check for alias
		if p.match(TokenAs) {
			if !p.canBeIdentifier() {
				return nil, p.error("expected alias name")
			}
			col.Alias = p.identifier()
		} else if p.check(TokenIdentifier) {
			col.Alias = p.identifier()
		}

		columns = append(columns, col)

		if !p.match(TokenComma) {
			break
		}
	}

	stmt := &SelectStmt{
		Distinct: distinct,
		Columns:  columns,
	}

	// Check for optional FROM clause
	if p.match(TokenFrom) {
		tableExpr, err := p.parseTableExpression()
		if err != nil {
			return nil, err
		}
		stmt.From = tableExpr
	}

	// Parse optional WHERE clause
	if p.match(TokenWhere) {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}

	// Parse optional GROUP BY clause
	if p.match(TokenGroupBy) {
		for {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, expr)

			if !p.match(TokenComma) {
				break
			}
		}
	}

	// Parse optional HAVING clause
	if p.match(TokenHaving) {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Having = expr
	}

	return stmt, nil
}

func (p *Parser) parseSelectItem() (Expression, error) {
	if p.match(TokenStar) {
		return &Star{}, nil
	}
	return p.parseExpression()
}

func (p *Parser) parseOrderLimit(stmt *SelectStmt) error {
	// Parse optional ORDER BY clause
	if p.match(TokenOrderBy) {
		for {
			expr, err := p.parseExpression()
			if err != nil {
				return err
			}

			orderBy := OrderByClause{Expr: expr}
			if p.match(TokenDesc) {
				orderBy.Desc = true
			} else {
				p.match(TokenAsc) // Optional ASC
			}
			if p.match(TokenNulls) {
				switch {
				case p.match(TokenFirst):
					orderBy.Nulls = "FIRST"
				case p.match(TokenLast):
					orderBy.Nulls = "LAST"
				default:
					return p.error("expected FIRST or LAST after NULLS")
				}
			}

			stmt.OrderBy = append(stmt.OrderBy, orderBy)

			if !p.match(TokenComma) {
				break
			}
		}
	}

	// LIMIT and OFFSET may come in either order
	for {
		switch {
		case p.match(TokenLimit):
			if p.match(TokenAll) {
				continue
			}
			n, err := p.parseCount("LIMIT")
			if err != nil {
				return err
			}
			stmt.Limit = &n
		case p.match(TokenOffset):
			n, err := p.parseCount("OFFSET")
			if err != nil {
				return err
			}
			stmt.Offset = &n
		default:
			return nil
		}
	}
}

func (p *Parser) parseCount(clause string) (int64, error) {
	if p.current.Type != TokenNumber {
		return 0, p.error(fmt.Sprintf("expected number after %s", clause))
	}
	n, err := strconv.ParseInt(p.current.Value, 10, 64)
	if err != nil || n < 0 {
		return 0, p.error(fmt.Sprintf("invalid %s value", clause))
	}
	p.advance()
	return n, nil
}

// parseExpression parses an expression.
func (p *Parser) parseExpression() (Expression, error) {
	return p.parseOr()
}

// parseOr parses OR expressions.
func (p *Parser) parseOr() (Expression, error) {
	expr, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.match(TokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: TokenOr,
			Right:    right,
		}
	}

	return expr, nil
}

// parseAnd parses AND expressions.
func (p *Parser) parseAnd() (Expression, error) {
	expr, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.match(TokenAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: TokenAnd,
			Right:    right,
		}
	}

	return expr, nil
}

// parseNot parses NOT expressions.
func (p *Parser) parseNot() (Expression, error) {
	if p.match(TokenNot) {
		// Check for NOT EXISTS
		if p.match(TokenExists) {
			sub, err := p.parseSubquery("EXISTS")
			if err != nil {
				return nil, err
			}
			return &ExistsExpr{Subquery: sub, Not: true}, nil
		}

		// General NOT expression
		expr, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{
			Operator: TokenNot,
			Expr:     expr,
		}, nil
	}

	if p.match(TokenExists) {
		sub, err := p.parseSubquery("EXISTS")
		if err != nil {
			return nil, err
		}
		return &ExistsExpr{Subquery: sub}, nil
	}

	return p.parseComparison()
}

// parseSubquery parses a parenthesized query following keyword.
func (p *Parser) parseSubquery(keyword string) (*SubqueryExpr, error) {
	if !p.consume(TokenLeftParen, fmt.Sprintf("expected '(' after %s", keyword)) {
		return nil, p.lastError()
	}
	query, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !p.consume(TokenRightParen, "expected ')' after subquery") {
		return nil, p.lastError()
	}
	return &SubqueryExpr{Query: query}, nil
}

// parseComparison parses comparison expressions.
func (p *Parser) parseComparison() (Expression, error) {
	start := p.current.Position
	expr, err := p.parseConcat()
	if err != nil {
		return nil, err
	}

	// Handle comparison operators
	if p.matchAny(TokenEqual, TokenNotEqual, TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual) {
		op, symbol := p.previous.Type, p.previous.Value
		right, err := p.parseConcat()
		if err != nil {
			return nil, err
		}
		return &ComparisonExpr{
			Left:     expr,
			Operator: op,
			Symbol:   symbol,
			Right:    right,
		}, nil
	}

	// Handle LIKE
	if p.match(TokenLike) {
		return p.parseLike(expr, false)
	}

	// Handle NOT IN, NOT BETWEEN and NOT LIKE
	if p.match(TokenNot) {
		switch {
		case p.match(TokenIn):
			return p.parseInExpression(expr, true)
		case p.match(TokenBetween):
			return p.parseBetween(expr, true)
		case p.match(TokenLike):
			return p.parseLike(expr, true)
		}
		return nil, p.error("unexpected NOT")
	}

	// Handle IN
	if p.match(TokenIn) {
		return p.parseInExpression(expr, false)
	}

	// Handle BETWEEN
	if p.match(TokenBetween) {
		return p.parseBetween(expr, false)
	}

	// Handle IS [NOT] NULL, IS [NOT] DISTINCT FROM and IS [NOT] TRUE/FALSE
	if p.match(TokenIs) {
		not := p.match(TokenNot)
		switch {
		case p.match(TokenNull):
			return &IsNullExpr{Expr: expr, Not: not}, nil
		case p.match(TokenDistinct):
			if !p.consume(TokenFrom, "expected FROM after IS DISTINCT") {
				return nil, p.lastError()
			}
			right, err := p.parseConcat()
			if err != nil {
				return nil, err
			}
			return &ComparisonExpr{
				Left:     expr,
				Operator: TokenDistinct,
				Symbol:   "IS DISTINCT FROM",
				Not:      not,
				Right:    right,
			}, nil
		case p.match(TokenTrue), p.match(TokenFalse):
			return &RawExpr{Text: p.raw(start), Args: []Expression{expr}}, nil
		}
		return nil, p.error("expected NULL after IS")
	}

	return expr, nil
}

func (p *Parser) parseLike(expr Expression, not bool) (Expression, error) {
	right, err := p.parseConcat()
	if err != nil {
		return nil, err
	}
	return &ComparisonExpr{
		Left:     expr,
		Operator: TokenLike,
		Symbol:   "LIKE",
		Not:      not,
		Right:    right,
	}, nil
}

func (p *Parser) parseBetween(expr Expression, not bool) (Expression, error) {
	lower, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	if !p.consume(TokenAnd, "expected AND in BETWEEN expression") {
		return nil, p.lastError()
	}

	upper, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	return &BetweenExpr{
		Expr:  expr,
		Lower: lower,
		Upper: upper,
		Not:   not,
	}, nil
}

// parseConcat parses string concatenation (||).
func (p *Parser) parseConcat() (Expression, error) {
	expr, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.match(TokenConcat) {
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: TokenConcat,
			Right:    right,
		}
	}

	return expr, nil
}

// parseTerm parses addition and subtraction.
func (p *Parser) parseTerm() (Expression, error) {
	expr, err := p.parseFactor()
	if err != nil {
		return nil, err
	}

	for p.matchAny(TokenPlus, TokenMinus) {
		op := p.previous.Type
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: op,
			Right:    right,
		}
	}

	return expr, nil
}

// parseFactor parses multiplication, division, and modulo.
func (p *Parser) parseFactor() (Expression, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for p.matchAny(TokenStar, TokenSlash, TokenPercent) {
		op := p.previous.Type
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: op,
			Right:    right,
		}
	}

	return expr, nil
}

// parseUnary parses unary expressions.
func (p *Parser) parseUnary() (Expression, error) {
	if p.matchAny(TokenPlus, TokenMinus) {
		op := p.previous.Type
		expr, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{
			Operator: op,
			Expr:     expr,
		}, nil
	}

	return p.parsePostfix()
}

// parsePostfix parses postgres style casts (expr::type).
func (p *Parser) parsePostfix() (Expression, error) {
	start := p.current.Position
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if !p.check(TokenDoubleColon) {
		return expr, nil
	}
	for p.match(TokenDoubleColon) {
		if err := p.skipTypeName(); err != nil {
			return nil, err
		}
	}
	return &RawExpr{Text: p.raw(start), Args: []Expression{expr}}, nil
}

// skipTypeName consumes a type name such as integer, varchar(10) or
// double precision.
func (p *Parser) skipTypeName() error {
	if !p.canBeIdentifier() {
		return p.error("expected type name")
	}
	for p.canBeIdentifier() {
		p.advance()
	}
	if p.check(TokenLeftParen) {
		return p.skipParens()
	}
	return nil
}

// parsePrimary parses primary expressions.
func (p *Parser) parsePrimary() (Expression, error) {
	start := p.current.Position

	switch p.current.Type { //nolint:exhaustive
	case TokenNumber:
		value := p.current.Value
		p.advance()
		return &Literal{Kind: LiteralNumber, Value: value}, nil

	case TokenString:
		value := p.current.Value
		p.advance()
		return &Literal{Kind: LiteralString, Value: value}, nil

	case TokenTrue, TokenFalse:
		value := strings.ToUpper(p.current.Value)
		p.advance()
		return &Literal{Kind: LiteralBool, Value: value}, nil

	case TokenNull:
		p.advance()
		return &Literal{Kind: LiteralNull, Value: "NULL"}, nil

	case TokenParam:
		index, err := strconv.Atoi(p.current.Value[1:])
		if err != nil || index < 1 {
			return nil, p.error("parameter index must be >= 1")
		}
		p.advance()
		return &ParameterRef{Index: index}, nil

	case TokenDate, TokenTimestamp, TokenInterval:
		// Typed literal such as DATE '2024-01-01'; otherwise a column name
		if p.peek(TokenString) {
			p.advance()
			p.advance()
			return &RawExpr{Text: p.raw(start)}, nil
		}
		return p.parseIdentifierExpr()

	case TokenCast:
		p.advance()
		if !p.consume(TokenLeftParen, "expected '(' after CAST") {
			return nil, p.lastError()
		}
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !p.consume(TokenAs, "expected AS in CAST") {
			return nil, p.lastError()
		}
		if err := p.skipTypeName(); err != nil {
			return nil, err
		}
		if !p.consume(TokenRightParen, "expected ')' after CAST") {
			return nil, p.lastError()
		}
		return &RawExpr{Text: p.raw(start), Args: []Expression{expr}}, nil

	case TokenCase:
		return p.parseCase()

	case TokenLeft, TokenRight:
		// LEFT(s, n) and RIGHT(s, n)
		if p.peek(TokenLeftParen) {
			return p.parseIdentifierExpr()
		}
		return nil, p.error(fmt.Sprintf("unexpected token in expression: %s", p.current))

	case TokenLeftParen:
		p.advance()

		// Check if it's a subquery by looking for SELECT
		if p.check(TokenSelect) || p.check(TokenWith) {
			query, err := p.parseQuery()
			if err != nil {
				return nil, err
			}

			if !p.consume(TokenRightParen, "expected ')' after subquery") {
				return nil, p.lastError()
			}

			return &SubqueryExpr{Query: query}, nil
		}

		// Otherwise, parse as regular parenthesized expression
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.check(TokenComma) {
			return nil, p.error("row value expressions are not supported")
		}
		if !p.consume(TokenRightParen, "expected ')'") {
			return nil, p.lastError()
		}
		return &ParenExpr{Expr: expr}, nil

	case TokenError:
		return nil, p.error(p.current.Value)
	}

	if p.canBeIdentifier() && p.current.Type != TokenEOF {
		return p.parseIdentifierExpr()
	}
	return nil, p.error(fmt.Sprintf("unexpected token in expression: %s", p.current))
}

// parseIdentifierExpr parses a column reference, t.*, or a function call.
func (p *Parser) parseIdentifierExpr() (Expression, error) {
	start := p.current.Position
	word := p.current.Value
	name := p.identifier()

	// Check if it's a function call
	if p.check(TokenLeftParen) {
		return p.parseFunctionCall(start, strings.ToUpper(word))
	}

	// Check for qualified name (table.column)
	if p.match(TokenDot) {
		if p.match(TokenStar) {
			return &Star{Table: name}, nil
		}
		if !p.canBeIdentifier() {
			return nil, p.error("expected column name after '.'")
		}
		return &Identifier{Table: name, Name: p.identifier()}, nil
	}

	return &Identifier{Name: name}, nil
}

// functions whose argument syntax is not a plain expression list
var specialFormFunctions = map[string]bool{
	"EXTRACT":   true,
	"SUBSTRING": true,
	"POSITION":  true,
	"TRIM":      true,
	"OVERLAY":   true,
}

func (p *Parser) parseFunctionCall(start int, name string) (Expression, error) {
	if specialFormFunctions[name] {
		if err := p.skipParens(); err != nil {
			return nil, err
		}
		return &RawExpr{Text: p.raw(start)}, nil
	}

	p.advance() // consume '('
	fn := &FunctionCall{Name: name}

	if p.match(TokenStar) {
		fn.Star = true
	} else {
		if p.match(TokenDistinct) {
			fn.Distinct = true
		} else {
			p.match(TokenAll)
		}

		// Parse function arguments
		if !p.check(TokenRightParen) {
			for {
				arg, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				fn.Args = append(fn.Args, arg)

				if !p.match(TokenComma) {
					break
				}
			}
		}
		if p.check(TokenOrderBy) {
			return nil, p.error("ORDER BY inside function arguments is not supported")
		}
	}

	if !p.consume(TokenRightParen, "expected ')' after function arguments") {
		return nil, p.lastError()
	}

	// Window function: keep the call as an opaque expression over its args
	if p.match(TokenOver) {
		if p.check(TokenLeftParen) {
			if err := p.skipParens(); err != nil {
				return nil, err
			}
		} else if p.canBeIdentifier() {
			p.advance()
		} else {
			return nil, p.error("expected window specification after OVER")
		}
		return &RawExpr{Text: p.raw(start), Args: fn.Args}, nil
	}

	return fn, nil
}

func (p *Parser) parseCase() (Expression, error) {
	p.advance() // consume 'CASE'

	c := &CaseExpr{}

	// Check if this is a simple CASE (CASE expr WHEN...) or searched CASE (CASE WHEN...)
	if !p.check(TokenWhen) {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		c.Expr = expr
	}

	for p.match(TokenWhen) {
		condition, err := p.parseExpression()
		if err != nil {
			return nil, err
		}

		if !p.consume(TokenThen, "expected 'THEN' after WHEN condition") {
			return nil, p.lastError()
		}

		result, err := p.parseExpression()
		if err != nil {
			return nil, err
		}

		c.WhenList = append(c.WhenList, WhenClause{
			Condition: condition,
			Result:    result,
		})
	}

	if len(c.WhenList) == 0 {
		return nil, p.error("CASE expression must have at least one WHEN clause")
	}

	// Parse optional ELSE clause
	if p.match(TokenElse) {
		elseExpr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		c.Else = elseExpr
	}

	if !p.consume(TokenEnd, "expected 'END' to close CASE expression") {
		return nil, p.lastError()
	}

	return c, nil
}

// skipParens consumes a balanced parenthesized token sequence.
func (p *Parser) skipParens() error {
	if !p.consume(TokenLeftParen, "expected '('") {
		return p.lastError()
	}
	depth := 1
	for depth > 0 {
		switch p.current.Type { //nolint:exhaustive
		case TokenEOF:
			return p.error("expected ')'")
		case TokenError:
			return p.error(p.current.Value)
		case TokenLeftParen:
			depth++
		case TokenRightParen:
			depth--
		}
		p.advance()
	}
	return nil
}

// parseInExpression parses IN expressions with either value lists or subqueries
func (p *Parser) parseInExpression(expr Expression, not bool) (Expression, error) {
	if !p.consume(TokenLeftParen, "expected '(' after IN") {
		return nil, p.lastError()
	}

	// Check if it's a subquery by looking for SELECT
	if p.check(TokenSelect) || p.check(TokenWith) {
		query, err := p.parseQuery()
		if err != nil {
			return nil, err
		}

		if !p.consume(TokenRightParen, "expected ')' after subquery") {
			return nil, p.lastError()
		}

		return &InExpr{
			Expr:     expr,
			Subquery: &SubqueryExpr{Query: query},
			Not:      not,
		}, nil
	}

	// Otherwise, parse value list
	var values []Expression
	if !p.check(TokenRightParen) {
		for {
			val, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			values = append(values, val)

			if !p.match(TokenComma) {
				break
			}
		}
	}

	if !p.consume(TokenRightParen, "expected ')'") {
		return nil, p.lastError()
	}

	return &InExpr{
		Expr:   expr,
		Values: values,
		Not:    not,
	}, nil
}

// parseTableExpression parses the FROM clause: table items combined by
// explicit joins or commas.
func (p *Parser) parseTableExpression() (TableExpression, error) {
	left, err := p.parseTableOrSubquery()
	if err != nil {
		return nil, err
	}

	for {
		if p.peekJoinKeyword() {
			joinType, err := p.parseJoinType()
			if err != nil {
				return nil, err
			}

			right, err := p.parseTableOrSubquery()
			if err != nil {
				return nil, err
			}

			join := &JoinExpr{
				Left:     left,
				Right:    right,
				JoinType: joinType,
			}
			switch {
			case p.match(TokenOn):
				join.Condition, err = p.parseExpression()
				if err != nil {
					return nil, err
				}
			case p.check(TokenUsing):
				p.advance()
				join.Using, err = p.parseIdentifierList()
				if err != nil {
					return nil, err
				}
			case joinType != CrossJoin:
				// ON condition is required for all joins except CROSS JOIN
				return nil, p.error(fmt.Sprintf("expected ON condition for %s", joinType.String()))
			}
			left = join
		} else if p.match(TokenComma) {
			// Comma-separated tables (implicit CROSS JOIN)
			right, err := p.parseTableOrSubquery()
			if err != nil {
				return nil, err
			}
			left = &JoinExpr{
				Left:     left,
				Right:    right,
				JoinType: CrossJoin,
			}
		} else {
			break
		}
	}

	return left, nil
}

// parseTableOrSubquery parses a table reference, a derived table or a
// parenthesized join.
func (p *Parser) parseTableOrSubquery() (TableExpression, error) {
	start := p.current.Position

	if p.match(TokenLeftParen) {
		switch {
		case p.check(TokenSelect) || p.check(TokenWith):
			query, err := p.parseQuery()
			if err != nil {
				return nil, err
			}
			if !p.consume(TokenRightParen, "expected ')' after subquery") {
				return nil, p.lastError()
			}
			alias, err := p.parseAlias()
			if err != nil {
				return nil, err
			}
			return &SubqueryRef{Query: query, Alias: alias}, nil

		case p.check(TokenValues):
			depth := 1
			for depth > 0 {
				switch p.current.Type { //nolint:exhaustive
				case TokenEOF, TokenError:
					return nil, p.error("expected ')' after VALUES")
				case TokenLeftParen:
					depth++
				case TokenRightParen:
					depth--
				}
				p.advance()
			}
			text := p.raw(start)
			alias, err := p.parseAlias()
			if err != nil {
				return nil, err
			}
			if p.check(TokenLeftParen) {
				if _, err := p.parseIdentifierList(); err != nil {
					return nil, err
				}
			}
			return &RawTableRef{Text: text, Alias: alias}, nil
		}

		inner, err := p.parseTableExpression()
		if err != nil {
			return nil, err
		}
		if !p.consume(TokenRightParen, "expected ')'") {
			return nil, p.lastError()
		}
		return inner, nil
	}

	return p.parseTableRef()
}

// parseTableRef parses a table name or a table function, with an optional
// alias.
func (p *Parser) parseTableRef() (TableExpression, error) {
	start := p.current.Position
	if !p.canBeIdentifier() || p.check(TokenEOF) {
		return nil, p.error("expected table name")
	}

	name := p.identifier()
	if p.match(TokenDot) {
		if !p.canBeIdentifier() {
			return nil, p.error("expected table name after '.'")
		}
		name = name + "." + p.identifier()
	}

	if p.check(TokenLeftParen) {
		if err := p.skipParens(); err != nil {
			return nil, err
		}
		text := p.raw(start)
		alias, err := p.parseAlias()
		if err != nil {
			return nil, err
		}
		return &RawTableRef{Text: text, Alias: alias}, nil
	}

	alias, err := p.parseAlias()
	if err != nil {
		return nil, err
	}
	return &TableRef{TableName: name, Alias: alias}, nil
}

// parseAlias parses an optional [AS] alias.
func (p *Parser) parseAlias() (string, error) {
	if p.match(TokenAs) {
		if !p.canBeIdentifier() {
			return "", p.error("expected alias after AS")
		}
		return p.identifier(), nil
	}
	if p.check(TokenIdentifier) {
		return p.identifier(), nil
	}
	return "", nil
}

// peekJoinKeyword checks if the current token is a JOIN-related keyword
func (p *Parser) peekJoinKeyword() bool {
	switch p.current.Type { //nolint:exhaustive
	case TokenJoin, TokenInner, TokenLeft, TokenRight, TokenFull, TokenCross:
		return true
	default:
		return false
	}
}

// parseJoinType parses the JOIN type from keywords:
//   - JOIN (defaults to INNER)
//   - INNER JOIN
//   - LEFT [OUTER] JOIN
//   - RIGHT [OUTER] JOIN
//   - FULL [OUTER] JOIN
//   - CROSS JOIN
func (p *Parser) parseJoinType() (JoinType, error) {
	joinType := InnerJoin
	switch {
	case p.match(TokenCross):
		joinType = CrossJoin
	case p.match(TokenInner):
	case p.match(TokenLeft):
		joinType = LeftJoin
		p.match(TokenOuter)
	case p.match(TokenRight):
		joinType = RightJoin
		p.match(TokenOuter)
	case p.match(TokenFull):
		joinType = FullJoin
		p.match(TokenOuter)
	}
	if !p.consume(TokenJoin, "expected JOIN") {
		return joinType, p.lastError()
	}
	return joinType, nil
}

// canBeIdentifier checks if a token can be used as an identifier. Besides
// plain identifiers this covers keywords that are commonly used as names.
func (p *Parser) canBeIdentifier() bool {
	switch p.current.Type { //nolint:exhaustive
	case TokenIdentifier,
		TokenDate, TokenTimestamp, TokenInterval,
		TokenFirst, TokenLast, TokenNulls, TokenRecursive:
		return true
	default:
		return false
	}
}

// identifier consumes the current token as a name. Unquoted names are
// folded to lower case.
func (p *Parser) identifier() string {
	name := p.current.Value
	if !p.current.Quoted {
		name = strings.ToLower(name)
	}
	p.advance()
	return name
}

// raw returns the source text from start to the end of the previous token
// with runs of whitespace collapsed.
func (p *Parser) raw(start int) string {
	end := p.prevEnd
	if end < start {
		return ""
	}
	return strings.Join(strings.Fields(p.lexer.input[start:end]), " ")
}

// Helper methods.

func (p *Parser) advance() {
	p.previous = p.current
	p.prevEnd = p.lexer.position
	p.current = p.lexer.NextToken()
}

func (p *Parser) check(tokenType TokenType) bool {
	return p.current.Type == tokenType
}

// peek reports whether the token after the current one has the given type.
func (p *Parser) peek(tokenType TokenType) bool {
	// Save current state
	savedCurrent := p.current
	savedPrevious := p.previous
	savedEnd := p.prevEnd
	savedLexer := *p.lexer

	// Look ahead
	p.advance()
	result := p.check(tokenType)

	// Restore state
	p.current = savedCurrent
	p.previous = savedPrevious
	p.prevEnd = savedEnd
	*p.lexer = savedLexer

	return result
}

func (p *Parser) match(tokenType TokenType) bool {
	if p.check(tokenType) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) matchAny(types ...TokenType) bool {
	for _, t := range types {
		if p.match(t) {
			return true
		}
	}
	return false
}

func (p *Parser) consume(tokenType TokenType, message string) bool {
	if p.check(tokenType) {
		p.advance()
		return true
	}
	if p.check(TokenError) {
		message = p.current.Value
	}
	p.error(message)
	return false
}

func (p *Parser) error(message string) error {
	err := NewParseError(message, p.current.Line, p.current.Column)
	p.errors = append(p.errors, err)
	return err
}

func (p *Parser) lastError() error {
	if len(p.errors) > 0 {
		return p.errors[len(p.errors)-1]
	}
	return NewParseError("unknown parse error", 0, 0)
}

// Parse parses a single SQL statement.
func Parse(sql string) (Statement, error) {
	return NewParser(sql).Parse()
}
