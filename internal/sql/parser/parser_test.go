package parser

import (
	"strings"
	"testing"
)

func TestParseSelect(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "Simple SELECT *",
			input:    "SELECT * FROM users",
			expected: "SELECT * FROM users",
		},
		{
			name:     "SELECT with WHERE",
			input:    "SELECT id, name FROM users WHERE id = 1",
			expected: "SELECT id, name FROM users WHERE (id = 1)",
		},
		{
			name:     "SELECT with complex WHERE",
			input:    "SELECT * FROM users WHERE id > 10 AND name LIKE 'John%'",
			expected: "SELECT * FROM users WHERE ((id > 10) AND (name LIKE 'John%'))",
		},
		{
			name:     "SELECT with ORDER BY",
			input:    "SELECT * FROM users ORDER BY name, id DESC NULLS LAST",
			expected: "SELECT * FROM users ORDER BY name ASC, id DESC NULLS LAST",
		},
		{
			name:     "SELECT with LIMIT and OFFSET",
			input:    "SELECT * FROM users LIMIT 10 OFFSET 20",
			expected: "SELECT * FROM users LIMIT 10 OFFSET 20",
		},
		{
			name:     "OFFSET before LIMIT",
			input:    "SELECT * FROM users OFFSET 5 LIMIT 2",
			expected: "SELECT * FROM users LIMIT 2 OFFSET 5",
		},
		{
			name:     "LIMIT ALL",
			input:    "SELECT * FROM users LIMIT ALL",
			expected: "SELECT * FROM users",
		},
		{
			name:     "SELECT with aliases",
			input:    "SELECT id AS user_id, name n FROM users",
			expected: "SELECT id AS user_id, name AS n FROM users",
		},
		{
			name:     "Unquoted names fold to lower case",
			input:    `SELECT ID, "Name" FROM Users`,
			expected: "SELECT id, Name FROM users",
		},
		{
			name:     "SELECT DISTINCT",
			input:    "SELECT DISTINCT city FROM users",
			expected: "SELECT DISTINCT city FROM users",
		},
		{
			name:     "GROUP BY and HAVING",
			input:    "SELECT dept, COUNT(*) FROM emp GROUP BY dept HAVING COUNT(*) > 5",
			expected: "SELECT dept, COUNT(*) FROM emp GROUP BY dept HAVING (COUNT(*) > 5)",
		},
		{
			name:     "HAVING without GROUP BY",
			input:    "SELECT SUM(x) FROM t HAVING SUM(x) > 0",
			expected: "SELECT SUM(x) FROM t HAVING (SUM(x) > 0)",
		},
		{
			name:     "Qualified star",
			input:    "SELECT u.*, o.id FROM users u, orders o",
			expected: "SELECT u.*, o.id FROM users AS u CROSS JOIN orders AS o",
		},
		{
			name:     "SELECT without FROM",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "Trailing semicolon",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "Comments",
			input:    "SELECT a -- first\nFROM t /* the table */",
			expected: "SELECT a FROM t",
		},
		{
			name:    "SELECT missing table",
			input:   "SELECT * FROM",
			wantErr: true,
		},
		{
			name:    "SELECT missing columns",
			input:   "SELECT",
			wantErr: true,
		},
		{
			name:    "Dangling WHERE",
			input:   "SELECT a FROM t WHERE",
			wantErr: true,
		},
		{
			name:    "Multiple statements",
			input:   "SELECT 1; SELECT 2",
			wantErr: true,
		},
		{
			name:    "DISTINCT ON",
			input:   "SELECT DISTINCT ON (a) a FROM t",
			wantErr: true,
		},
		{
			name:    "Negative LIMIT",
			input:   "SELECT a FROM t LIMIT -1",
			wantErr: true,
		},
		{
			name:    "Unterminated string",
			input:   "SELECT 'abc FROM t",
			wantErr: true,
		},
		{
			name:    "Empty input",
			input:   "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(tt.input)
			stmt, err := parser.Parse()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			selectStmt, ok := stmt.(*SelectStmt)
			if !ok {
				t.Errorf("Expected SelectStmt, got %T", stmt)
				return
			}

			got := normalizeWhitespace(selectStmt.String())
			expected := normalizeWhitespace(tt.expected)

			if got != expected {
				t.Errorf("Expected:\n%s\nGot:\n%s", expected, got)
			}
		})
	}
}

func TestParseExpressions(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		// Arithmetic
		{
			name:     "Addition",
			input:    "a + b",
			expected: "(a + b)",
		},
		{
			name:     "Precedence",
			input:    "a + b * c",
			expected: "(a + (b * c))",
		},
		{
			name:     "Parentheses",
			input:    "(a + b) * c",
			expected: "(((a + b)) * c)",
		},
		{
			name:     "Unary minus",
			input:    "-5",
			expected: "(-5)",
		},
		{
			name:     "Concatenation",
			input:    "first || ' ' || last",
			expected: "((first || ' ') || last)",
		},
		// Comparisons keep their spelling
		{
			name:     "Not equal",
			input:    "a <> 1",
			expected: "(a <> 1)",
		},
		{
			name:     "Not equal alternate",
			input:    "a != 1",
			expected: "(a != 1)",
		},
		// Logical
		{
			name:     "AND binds tighter than OR",
			input:    "a = 1 OR b = 2 AND c = 3",
			expected: "((a = 1) OR ((b = 2) AND (c = 3)))",
		},
		{
			name:     "NOT",
			input:    "NOT a = 1",
			expected: "(NOT (a = 1))",
		},
		// Special operators
		{
			name:     "NOT LIKE",
			input:    "name NOT LIKE 'J%'",
			expected: "(name NOT LIKE 'J%')",
		},
		{
			name:     "IN",
			input:    "id IN (1, 2, 3)",
			expected: "(id IN (1, 2, 3))",
		},
		{
			name:     "NOT IN",
			input:    "id NOT IN (1, 2)",
			expected: "(id NOT IN (1, 2))",
		},
		{
			name:     "Empty IN list",
			input:    "id IN ()",
			expected: "(id IN ())",
		},
		{
			name:     "BETWEEN",
			input:    "age BETWEEN 18 AND 65",
			expected: "(age BETWEEN 18 AND 65)",
		},
		{
			name:     "IS NOT NULL",
			input:    "name IS NOT NULL",
			expected: "(name IS NOT NULL)",
		},
		{
			name:     "IS DISTINCT FROM",
			input:    "a IS DISTINCT FROM b",
			expected: "(a IS DISTINCT FROM b)",
		},
		{
			name:     "IS NOT DISTINCT FROM",
			input:    "a IS NOT DISTINCT FROM b",
			expected: "(a IS NOT DISTINCT FROM b)",
		},
		{
			name:     "Parameter",
			input:    "id = $2",
			expected: "(id = $2)",
		},
		// Functions
		{
			name:     "COUNT star",
			input:    "count(*)",
			expected: "COUNT(*)",
		},
		{
			name:     "COUNT DISTINCT",
			input:    "count(DISTINCT user_id)",
			expected: "COUNT(DISTINCT user_id)",
		},
		{
			name:     "Function with arguments",
			input:    "coalesce(a, 0)",
			expected: "COALESCE(a, 0)",
		},
		{
			name:     "LEFT as a function",
			input:    "left(name, 3)",
			expected: "LEFT(name, 3)",
		},
		// CASE
		{
			name:     "Searched CASE",
			input:    "CASE WHEN a > 1 THEN 'big' ELSE 'small' END",
			expected: "CASE WHEN (a > 1) THEN 'big' ELSE 'small' END",
		},
		{
			name:     "Simple CASE",
			input:    "CASE status WHEN 1 THEN 'on' WHEN 0 THEN 'off' END",
			expected: "CASE status WHEN 1 THEN 'on' WHEN 0 THEN 'off' END",
		},
		// Constructs kept as source text
		{
			name:     "CAST",
			input:    "CAST(price AS numeric(10, 2))",
			expected: "CAST(price AS numeric(10, 2))",
		},
		{
			name:     "Postgres cast",
			input:    "created::date",
			expected: "created::date",
		},
		{
			name:     "Typed literal",
			input:    "DATE  '2024-01-01'",
			expected: "DATE '2024-01-01'",
		},
		{
			name:     "Window function",
			input:    "row_number() OVER (PARTITION BY dept ORDER BY salary DESC)",
			expected: "row_number() OVER (PARTITION BY dept ORDER BY salary DESC)",
		},
		{
			name:     "EXTRACT",
			input:    "extract(year FROM created)",
			expected: "extract(year FROM created)",
		},
		{
			name:     "IS TRUE",
			input:    "active IS NOT TRUE",
			expected: "active IS NOT TRUE",
		},
		{
			name:     "Keyword as column name",
			input:    "date > 1",
			expected: "(date > 1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := NewParser(tt.input).ParseExpression()
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}

			if got := expr.String(); got != tt.expected {
				t.Errorf("Expected:\n%s\nGot:\n%s", tt.expected, got)
			}
		})
	}
}

func TestParseRawExprArgs(t *testing.T) {
	expr, err := NewParser("sum(amount) OVER (PARTITION BY dept)").ParseExpression()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	raw, ok := expr.(*RawExpr)
	if !ok {
		t.Fatalf("Expected RawExpr, got %T", expr)
	}
	if len(raw.Args) != 1 || raw.Args[0].String() != "amount" {
		t.Errorf("Expected the window function arguments to be kept, got %v", raw.Args)
	}
}

func TestParseSetOperations(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		ops      []TokenType
	}{
		{
			name:     "UNION",
			input:    "SELECT a FROM t UNION SELECT a FROM u",
			expected: "SELECT a FROM t UNION SELECT a FROM u",
			ops:      []TokenType{TokenUnion},
		},
		{
			name:     "UNION ALL with trailing ORDER BY",
			input:    "SELECT a FROM t UNION ALL SELECT a FROM u ORDER BY a LIMIT 5",
			expected: "SELECT a FROM t UNION ALL SELECT a FROM u ORDER BY a ASC LIMIT 5",
			ops:      []TokenType{TokenUnion},
		},
		{
			name:     "Chained operations are left to right",
			input:    "SELECT a FROM t EXCEPT SELECT a FROM u INTERSECT SELECT a FROM v",
			expected: "SELECT a FROM t EXCEPT SELECT a FROM u INTERSECT SELECT a FROM v",
			ops:      []TokenType{TokenExcept, TokenIntersect},
		},
		{
			name:     "Parenthesized operands",
			input:    "(SELECT a FROM t UNION SELECT a FROM u) EXCEPT (SELECT a FROM v LIMIT 1)",
			expected: "SELECT a FROM t UNION SELECT a FROM u EXCEPT SELECT a FROM v LIMIT 1",
			ops:      []TokenType{TokenUnion, TokenExcept},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			sel := stmt.(*SelectStmt)
			if got := sel.String(); got != tt.expected {
				t.Errorf("Expected:\n%s\nGot:\n%s", tt.expected, got)
			}
			if len(sel.SetOps) != len(tt.ops) {
				t.Fatalf("Expected %d set operations, got %d", len(tt.ops), len(sel.SetOps))
			}
			for i, op := range tt.ops {
				if sel.SetOps[i].Op != op {
					t.Errorf("Operation %d: expected %v, got %v", i, op, sel.SetOps[i].Op)
				}
			}
		})
	}
}

func TestParseSetOperationRejectsLimitedFirstOperand(t *testing.T) {
	if _, err := Parse("(SELECT a FROM t LIMIT 1) UNION SELECT a FROM u"); err == nil {
		t.Error("Expected error")
	}
}

func TestParseWith(t *testing.T) {
	stmt, err := Parse("WITH recent(id) AS (SELECT id FROM orders WHERE d > 1), big AS (SELECT id FROM recent) SELECT * FROM big")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	sel := stmt.(*SelectStmt)
	if len(sel.With) != 2 {
		t.Fatalf("Expected 2 CTEs, got %d", len(sel.With))
	}
	if sel.With[0].Name != "recent" || len(sel.With[0].Columns) != 1 {
		t.Errorf("Unexpected first CTE: %+v", sel.With[0])
	}
	if sel.With[1].Recursive {
		t.Error("CTE should not be recursive")
	}

	stmt, err = Parse("WITH RECURSIVE r AS (SELECT 1 UNION ALL SELECT n FROM r) SELECT * FROM r")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !stmt.(*SelectStmt).With[0].Recursive {
		t.Error("Expected recursive CTE")
	}
}

func TestParseOtherStatements(t *testing.T) {
	tests := []struct {
		input   string
		keyword string
	}{
		{"INSERT INTO t VALUES (1)", "INSERT"},
		{"update t set a = 1", "UPDATE"},
		{"DELETE FROM t", "DELETE"},
		{"CREATE TABLE t (a int)", "CREATE"},
		{"explain SELECT 1", "EXPLAIN"},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			stmt, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			other, ok := stmt.(*OtherStmt)
			if !ok {
				t.Fatalf("Expected OtherStmt, got %T", stmt)
			}
			if other.Keyword != tt.keyword {
				t.Errorf("Expected keyword %s, got %s", tt.keyword, other.Keyword)
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("SELECT a\nFROM t WHERE )")
	if err == nil {
		t.Fatal("Expected error")
	}
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("Expected ParseError, got %T", err)
	}
	if perr.Line != 2 || perr.Column != 14 {
		t.Errorf("Expected error at 2:14, got %d:%d", perr.Line, perr.Column)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected position in message, got %q", err.Error())
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
