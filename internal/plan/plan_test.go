package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinAB() *Node {
	return NewJoin(InnerJoin,
		Binary(OpEqual, Col("a.id"), Col("b.id")),
		NewScan("t1", "a"),
		NewScan("t2", "b"),
	)
}

func TestExprValidate(t *testing.T) {
	tests := []struct {
		name    string
		expr    *Expr
		wantErr bool
	}{
		{"column", Col("a.x"), false},
		{"comparison", Binary(OpGreater, Col("a.x"), IntLit(5)), false},
		{"binary with one operand", &Expr{Kind: ExprBinary, Op: OpEqual, Children: []*Expr{Col("a")}}, true},
		{"n-ary and", And(Col("a"), Col("b"), Col("c")), false},
		{"and with one operand", &Expr{Kind: ExprBinary, Op: OpAnd, Children: []*Expr{Col("a")}}, true},
		{"unary", Not(Col("a")), false},
		{"unary without operand", &Expr{Kind: ExprUnary, Op: OpNot}, true},
		{"in list", In(Col("x"), IntLit(1), IntLit(2)), false},
		{"in subquery with values", &Expr{Kind: ExprIn, Children: []*Expr{Col("x"), IntLit(1)}, Subplan: NewScan("t", "")}, true},
		{"exists without plan", &Expr{Kind: ExprExists}, true},
		{"case", &Expr{Kind: ExprCase, Children: []*Expr{Col("a"), IntLit(1)}}, false},
		{"case with else", &Expr{Kind: ExprCase, HasElse: true, Children: []*Expr{Col("a"), IntLit(1), IntLit(2)}}, false},
		{"case bad layout", &Expr{Kind: ExprCase, Children: []*Expr{Col("a")}}, true},
		{"unknown passes", UnknownExpr("CAST(x AS int)", Col("x")), false},
		{"nested error", And(Col("a"), &Expr{Kind: ExprUnary, Op: OpNot}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.expr.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNodeValidate(t *testing.T) {
	scan := NewScan("t1", "")
	tests := []struct {
		name    string
		node    *Node
		wantErr bool
	}{
		{"scan", scan, false},
		{"scan without table", &Node{Kind: NodeScan}, true},
		{"inner join", joinAB(), false},
		{"n-ary inner join", NewJoin(InnerJoin, nil, scan, NewScan("t2", ""), NewScan("t3", "")), false},
		{"inner join with one child", NewJoin(InnerJoin, nil, scan), true},
		{"left join with three children", NewJoin(LeftJoin, nil, scan, scan, scan), true},
		{"filter", NewFilter(scan, Col("a")), false},
		{"filter without predicate", NewFilter(scan, nil), true},
		{"project", NewProject(scan, Item(Col("a"), "")), false},
		{"empty project", NewProject(scan), true},
		{"union", NewUnion(UnionAll, scan, scan), false},
		{"union with one child", &Node{Kind: NodeUnion, Children: []*Node{scan}}, true},
		{"limit", NewLimit(scan, 10, 0), false},
		{"unknown any children", NewUnknown("values"), false},
		{"bad child", NewFilter(&Node{Kind: NodeScan}, Col("a")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.node.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	sub := NewSubquery(NewProject(NewScan("t3", "c"), Item(Col("c.id"), "")), "", false)
	orig := NewFilter(joinAB(), And(Binary(OpGreater, Col("a.x"), IntLit(5)), InSubquery(Col("a.id"), sub)))

	clone := orig.Clone()
	require.True(t, orig.Equal(clone))

	clone.Children[0].Children[0].Table = "changed"
	clone.Predicate.Children[0].Children[1].Value = "6"
	clone.Predicate.Children[1].Subplan.Children[0].Projections[0].Alias = "y"

	assert.Equal(t, "t1", orig.Children[0].Children[0].Table)
	assert.Equal(t, "5", orig.Predicate.Children[0].Children[1].Value)
	assert.Equal(t, "", orig.Predicate.Children[1].Subplan.Children[0].Projections[0].Alias)
	assert.False(t, orig.Equal(clone))
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "(join INNER (= (col a.id) (col b.id)) (scan t1 a) (scan t2 b))", joinAB().Fingerprint())
	assert.Equal(t, `(lit string "x y")`, StrLit("x y").Key())
	assert.Equal(t, `(unary "IS NULL" (col a))`, Unary(OpIsNull, Col("a")).Key())

	// Literal types are part of the key.
	assert.NotEqual(t, IntLit(1).Key(), StrLit("1").Key())
	assert.NotEqual(t, IntLit(1).Key(), FloatLit(1).Key())
	assert.NotEqual(t, NewScan("t", "").Fingerprint(), NewScan("t", "t").Fingerprint())
	assert.NotEqual(t, NewLimit(NewScan("t", ""), 1, 0).Fingerprint(), NewLimit(NewScan("t", ""), 1, 1).Fingerprint())
}

func TestAndOrConstructors(t *testing.T) {
	assert.Nil(t, And())
	assert.Nil(t, And(nil, nil))
	a := Col("a")
	assert.Same(t, a, Or(nil, a))
	assert.Len(t, And(a, Col("b"), nil).Children, 2)

	conj := And(And(Col("a"), Col("b")), Col("c")).Conjuncts()
	require.Len(t, conj, 3)
	assert.Equal(t, "c", conj[2].Value)
}

func TestDepth(t *testing.T) {
	assert.Equal(t, 0, (*Node)(nil).Depth())
	assert.Equal(t, 1, NewScan("t", "").Depth())
	// filter -> predicate (=) -> column
	assert.Equal(t, 3, NewFilter(NewScan("t", ""), Binary(OpEqual, Col("a"), IntLit(1))).Depth())

	sub := Exists(NewSubquery(NewScan("t2", ""), "", false))
	assert.Equal(t, 4, NewFilter(NewScan("t", ""), sub).Depth())
}

func TestRelations(t *testing.T) {
	j := joinAB()
	assert.Equal(t, []string{"a", "b"}, Relations(j))
	assert.Equal(t, []string{"a"}, Relations(NewJoin(SemiJoin, nil, NewScan("t1", "a"), NewScan("t2", "b"))))
	assert.Equal(t, []string{"t1"}, Relations(NewFilter(NewScan("t1", ""), Col("x"))))
	assert.Equal(t, []string{"d"}, Relations(NewSubquery(j, "d", false)))
	assert.Nil(t, Relations(NewUnknown("values")))
}

func TestFreeQualifiers(t *testing.T) {
	inner := NewFilter(NewScan("orders", "o"), Binary(OpEqual, Col("o.cust"), Col("c.id")))
	assert.Equal(t, []string{"c"}, FreeQualifiers(inner))

	outer := NewFilter(NewScan("customer", "c"), Exists(NewSubquery(inner, "", true)))
	assert.Nil(t, FreeQualifiers(outer))

	unqualified := NewFilter(NewScan("orders", ""), Binary(OpEqual, Col("cust"), IntLit(1)))
	assert.Nil(t, FreeQualifiers(unqualified))
}

func TestPretty(t *testing.T) {
	p := NewProject(NewFilter(joinAB(), Binary(OpGreater, Col("a.x"), IntLit(5))), Item(Col("a.x"), "x"))
	want := "Project(a.x AS x)\n" +
		"  Filter((a.x > 5))\n" +
		"    INNERJoin((a.id = b.id))\n" +
		"      Scan(t1 AS a)\n" +
		"      Scan(t2 AS b)\n"
	assert.Equal(t, want, p.Pretty())
}
