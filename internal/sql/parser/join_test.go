package parser

import (
	"testing"
)

func TestJoinParsing(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected string
		wantErr  bool
	}{
		{
			name:     "simple inner join",
			sql:      "SELECT * FROM users JOIN orders ON users.id = orders.user_id",
			expected: "users INNER JOIN orders ON (users.id = orders.user_id)",
		},
		{
			name:     "inner join with INNER keyword",
			sql:      "SELECT * FROM users INNER JOIN orders ON users.id = orders.user_id",
			expected: "users INNER JOIN orders ON (users.id = orders.user_id)",
		},
		{
			name:     "left outer join",
			sql:      "SELECT * FROM users LEFT OUTER JOIN orders ON users.id = orders.user_id",
			expected: "users LEFT JOIN orders ON (users.id = orders.user_id)",
		},
		{
			name:     "right join",
			sql:      "SELECT * FROM users RIGHT JOIN orders ON users.id = orders.user_id",
			expected: "users RIGHT JOIN orders ON (users.id = orders.user_id)",
		},
		{
			name:     "full join",
			sql:      "SELECT * FROM users FULL JOIN orders ON users.id = orders.user_id",
			expected: "users FULL JOIN orders ON (users.id = orders.user_id)",
		},
		{
			name:     "cross join",
			sql:      "SELECT * FROM users CROSS JOIN orders",
			expected: "users CROSS JOIN orders",
		},
		{
			name:     "comma join",
			sql:      "SELECT * FROM a, b, c",
			expected: "a CROSS JOIN b CROSS JOIN c",
		},
		{
			name:     "join with table aliases",
			sql:      "SELECT u.name FROM users u JOIN orders AS o ON u.id = o.user_id",
			expected: "users AS u INNER JOIN orders AS o ON (u.id = o.user_id)",
		},
		{
			name:     "multiple joins",
			sql:      "SELECT * FROM users u JOIN orders o ON u.id = o.user_id LEFT JOIN items i ON o.id = i.order_id",
			expected: "users AS u INNER JOIN orders AS o ON (u.id = o.user_id) LEFT JOIN items AS i ON (o.id = i.order_id)",
		},
		{
			name:     "join using",
			sql:      "SELECT * FROM a JOIN b USING (id, region)",
			expected: "a INNER JOIN b USING (id, region)",
		},
		{
			name:     "parenthesized join",
			sql:      "SELECT * FROM (a JOIN b ON a.id = b.id)",
			expected: "a INNER JOIN b ON (a.id = b.id)",
		},
		{
			name:     "derived table",
			sql:      "SELECT * FROM (SELECT id FROM t) AS s JOIN u ON s.id = u.id",
			expected: "(SELECT id FROM t) AS s INNER JOIN u ON (s.id = u.id)",
		},
		{
			name:     "table function",
			sql:      "SELECT * FROM generate_series(1, 10) g",
			expected: "generate_series(1, 10) AS g",
		},
		{
			name:     "VALUES list",
			sql:      "SELECT * FROM (VALUES (1), (2)) AS v(x)",
			expected: "(VALUES (1), (2)) AS v",
		},
		{
			name:     "schema qualified table",
			sql:      "SELECT * FROM public.users",
			expected: "public.users",
		},
		{
			name:    "join without condition",
			sql:     "SELECT * FROM a JOIN b",
			wantErr: true,
		},
		{
			name:    "join without right side",
			sql:     "SELECT * FROM a LEFT JOIN",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := NewParser(tt.sql).Parse()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for SQL: %s", tt.sql)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			selectStmt, ok := stmt.(*SelectStmt)
			if !ok {
				t.Fatalf("expected SelectStmt, got %T", stmt)
			}
			if selectStmt.From == nil {
				t.Fatal("expected FROM clause to be non-nil")
			}
			if got := selectStmt.From.String(); got != tt.expected {
				t.Errorf("expected:\n%s\ngot:\n%s", tt.expected, got)
			}
		})
	}
}

func TestJoinTypes(t *testing.T) {
	tests := []struct {
		joinType JoinType
		expected string
	}{
		{InnerJoin, "INNER JOIN"},
		{LeftJoin, "LEFT JOIN"},
		{RightJoin, "RIGHT JOIN"},
		{FullJoin, "FULL JOIN"},
		{CrossJoin, "CROSS JOIN"},
	}

	for _, tt := range tests {
		if got := tt.joinType.String(); got != tt.expected {
			t.Errorf("JoinType.String() = %v, want %v", got, tt.expected)
		}
	}
}

func TestJoinTreeIsLeftDeep(t *testing.T) {
	stmt, err := Parse("SELECT * FROM a JOIN b ON a.x = b.x JOIN c ON b.y = c.y")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	top, ok := stmt.(*SelectStmt).From.(*JoinExpr)
	if !ok {
		t.Fatalf("expected JoinExpr, got %T", stmt.(*SelectStmt).From)
	}
	if _, ok := top.Left.(*JoinExpr); !ok {
		t.Errorf("expected nested join on the left, got %T", top.Left)
	}
	if ref, ok := top.Right.(*TableRef); !ok || ref.TableName != "c" {
		t.Errorf("expected table c on the right, got %v", top.Right)
	}
}

func TestTableRefParsing(t *testing.T) {
	tests := []struct {
		name      string
		sql       string
		wantName  string
		wantAlias string
	}{
		{
			name:      "simple table",
			sql:       "SELECT * FROM users",
			wantName:  "users",
			wantAlias: "",
		},
		{
			name:      "table with implicit alias",
			sql:       "SELECT * FROM users u",
			wantName:  "users",
			wantAlias: "u",
		},
		{
			name:      "table with AS alias",
			sql:       "SELECT * FROM Users AS U",
			wantName:  "users",
			wantAlias: "u",
		},
		{
			name:      "table followed by WHERE",
			sql:       "SELECT * FROM users WHERE id = 1",
			wantName:  "users",
			wantAlias: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Parse(tt.sql)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ref, ok := stmt.(*SelectStmt).From.(*TableRef)
			if !ok {
				t.Fatalf("expected TableRef, got %T", stmt.(*SelectStmt).From)
			}
			if ref.TableName != tt.wantName {
				t.Errorf("expected table name %q, got %q", tt.wantName, ref.TableName)
			}
			if ref.Alias != tt.wantAlias {
				t.Errorf("expected alias %q, got %q", tt.wantAlias, ref.Alias)
			}
		})
	}
}
