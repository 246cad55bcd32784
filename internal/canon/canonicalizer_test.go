package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/plan"
)

func defaultCanonicalizer(opts ...Option) *Canonicalizer {
	return New(BuiltinRules(ExprCanonicalizer{}), opts...)
}

func canonical(t *testing.T, n *plan.Node) *plan.Node {
	t.Helper()
	out, _, err := defaultCanonicalizer().Canonicalize(n)
	require.NoError(t, err)
	return out
}

func scanA() *plan.Node { return plan.NewScan("t1", "a") }
func scanB() *plan.Node { return plan.NewScan("t2", "b") }
func scanC() *plan.Node { return plan.NewScan("t3", "c") }

func eq(l, r string) *plan.Expr {
	return plan.Binary(plan.OpEqual, plan.Col(l), plan.Col(r))
}

func TestCanonicalEquivalences(t *testing.T) {
	tests := []struct {
		name string
		a, b *plan.Node
	}{
		{
			name: "inner join commutativity",
			a:    plan.NewJoin(plan.InnerJoin, eq("a.id", "b.id"), scanA(), scanB()),
			b:    plan.NewJoin(plan.InnerJoin, eq("a.id", "b.id"), scanB(), scanA()),
		},
		{
			name: "inner join associativity",
			a: plan.NewJoin(plan.InnerJoin, eq("b.id", "c.id"),
				plan.NewJoin(plan.InnerJoin, eq("a.id", "b.id"), scanA(), scanB()),
				scanC()),
			b: plan.NewJoin(plan.InnerJoin, eq("a.id", "b.id"),
				scanA(),
				plan.NewJoin(plan.InnerJoin, eq("b.id", "c.id"), scanB(), scanC())),
		},
		{
			name: "cross join with where clause versus inner join",
			a: plan.NewFilter(plan.NewJoin(plan.CrossJoin, nil, scanA(), scanB()), eq("a.id", "b.id")),
			b: plan.NewJoin(plan.InnerJoin, eq("b.id", "a.id"), scanB(), scanA()),
		},
		{
			name: "in list expansion",
			a: plan.NewFilter(plan.NewScan("customer", ""),
				plan.In(plan.Col("c_id"), plan.IntLit(1), plan.IntLit(2), plan.IntLit(3))),
			b: plan.NewFilter(plan.NewScan("customer", ""), plan.Or(
				plan.Binary(plan.OpEqual, plan.Col("c_id"), plan.IntLit(1)),
				plan.Binary(plan.OpEqual, plan.Col("c_id"), plan.IntLit(2)),
				plan.Binary(plan.OpEqual, plan.Col("c_id"), plan.IntLit(3)),
			)),
		},
		{
			name: "predicate direction",
			a:    plan.NewFilter(scanA(), plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.IntLit(5))),
			b:    plan.NewFilter(scanA(), plan.Binary(plan.OpLess, plan.IntLit(5), plan.Col("a.x"))),
		},
		{
			name: "where conjuncts pushed to their scans",
			a: plan.NewFilter(
				plan.NewJoin(plan.InnerJoin, eq("a.id", "b.id"), scanA(), scanB()),
				plan.And(plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.IntLit(5)), plan.Binary(plan.OpEqual, plan.Col("b.y"), plan.IntLit(1)))),
			b: plan.NewJoin(plan.InnerJoin, eq("a.id", "b.id"),
				plan.NewFilter(scanA(), plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.IntLit(5))),
				plan.NewFilter(scanB(), plan.Binary(plan.OpEqual, plan.Col("b.y"), plan.IntLit(1)))),
		},
		{
			name: "stacked filters merge",
			a:    plan.NewFilter(plan.NewFilter(scanA(), plan.Col("a.p")), plan.Col("a.q")),
			b:    plan.NewFilter(scanA(), plan.And(plan.Col("a.q"), plan.Col("a.p"))),
		},
		{
			name: "trivial filter removed",
			a:    plan.NewFilter(scanA(), plan.BoolLit(true)),
			b:    scanA(),
		},
		{
			name: "left join where clause on preserved side",
			a: plan.NewFilter(plan.NewJoin(plan.LeftJoin, eq("a.id", "b.id"), scanA(), scanB()),
				plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.IntLit(5))),
			b: plan.NewJoin(plan.LeftJoin, eq("a.id", "b.id"),
				plan.NewFilter(scanA(), plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.IntLit(5))), scanB()),
		},
		{
			name: "left join on clause for null-supplying side",
			a: plan.NewJoin(plan.LeftJoin, plan.And(eq("a.id", "b.id"), plan.Binary(plan.OpEqual, plan.Col("b.y"), plan.IntLit(1))),
				scanA(), scanB()),
			b: plan.NewJoin(plan.LeftJoin, eq("a.id", "b.id"),
				scanA(), plan.NewFilter(scanB(), plan.Binary(plan.OpEqual, plan.Col("b.y"), plan.IntLit(1)))),
		},
		{
			name: "group by is a set",
			a: plan.NewAggregate(scanA(), []*plan.Expr{plan.Col("a.x"), plan.Col("a.y")},
				[]plan.ProjectItem{plan.Item(plan.Func("COUNT", plan.Col("a.id")), "")}),
			b: plan.NewAggregate(scanA(), []*plan.Expr{plan.Col("a.y"), plan.Col("a.x")},
				[]plan.ProjectItem{plan.Item(plan.Func("COUNT", plan.Col("a.id")), "")}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ca, cb := canonical(t, tt.a), canonical(t, tt.b)
			assert.Equal(t, ca.Fingerprint(), cb.Fingerprint(), "\n%s\n%s", ca.Pretty(), cb.Pretty())
		})
	}
}

func TestCanonicalDistinctions(t *testing.T) {
	tests := []struct {
		name string
		a, b *plan.Node
	}{
		{
			name: "left join is not commutative",
			a:    plan.NewJoin(plan.LeftJoin, eq("a.id", "b.id"), scanA(), scanB()),
			b:    plan.NewJoin(plan.LeftJoin, eq("a.id", "b.id"), scanB(), scanA()),
		},
		{
			name: "full join is not commutative",
			a:    plan.NewJoin(plan.FullJoin, eq("a.id", "b.id"), scanA(), scanB()),
			b:    plan.NewJoin(plan.FullJoin, eq("a.id", "b.id"), scanB(), scanA()),
		},
		{
			name: "left join where clause on null-supplying side stays",
			a: plan.NewFilter(plan.NewJoin(plan.LeftJoin, eq("a.id", "b.id"), scanA(), scanB()),
				plan.Binary(plan.OpEqual, plan.Col("b.y"), plan.IntLit(1))),
			b: plan.NewJoin(plan.LeftJoin, plan.And(eq("a.id", "b.id"), plan.Binary(plan.OpEqual, plan.Col("b.y"), plan.IntLit(1))),
				scanA(), scanB()),
		},
		{
			name: "left join on clause for preserved side stays",
			a: plan.NewJoin(plan.LeftJoin, plan.And(eq("a.id", "b.id"), plan.Binary(plan.OpEqual, plan.Col("a.x"), plan.IntLit(1))),
				scanA(), scanB()),
			b: plan.NewJoin(plan.LeftJoin, eq("a.id", "b.id"),
				plan.NewFilter(scanA(), plan.Binary(plan.OpEqual, plan.Col("a.x"), plan.IntLit(1))), scanB()),
		},
		{
			name: "projection order",
			a:    plan.NewProject(scanA(), plan.Item(plan.Col("a.x"), ""), plan.Item(plan.Col("a.y"), "")),
			b:    plan.NewProject(scanA(), plan.Item(plan.Col("a.y"), ""), plan.Item(plan.Col("a.x"), "")),
		},
		{
			name: "sort key order",
			a:    plan.NewSort(scanA(), plan.SortKey{Expr: plan.Col("a.x")}, plan.SortKey{Expr: plan.Col("a.y")}),
			b:    plan.NewSort(scanA(), plan.SortKey{Expr: plan.Col("a.y")}, plan.SortKey{Expr: plan.Col("a.x")}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, canonical(t, tt.a).Fingerprint(), canonical(t, tt.b).Fingerprint())
		})
	}
}

func TestVolatilePredicateStaysInJoin(t *testing.T) {
	random := plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.Func("RANDOM"))
	in := plan.NewFilter(plan.NewJoin(plan.InnerJoin, eq("a.id", "b.id"), scanA(), scanB()), random)

	out := canonical(t, in)
	require.Equal(t, plan.NodeJoin, out.Kind)
	for _, c := range out.Children {
		assert.Equal(t, plan.NodeScan, c.Kind)
	}
	assert.Len(t, out.Predicate.Conjuncts(), 2)
}

func subquery(body *plan.Node) *plan.Node {
	return plan.NewSubquery(body, "", false)
}

func TestUnnestSubqueries(t *testing.T) {
	inner := plan.NewProject(plan.NewFilter(scanB(), plan.Binary(plan.OpEqual, plan.Col("b.flag"), plan.IntLit(1))),
		plan.Item(plan.Col("b.id"), ""))

	t.Run("exists becomes semi join", func(t *testing.T) {
		out := canonical(t, plan.NewFilter(scanA(), plan.Exists(subquery(inner))))
		want := canonical(t, plan.NewJoin(plan.SemiJoin, nil, scanA(), inner))
		assert.Equal(t, want.Fingerprint(), out.Fingerprint())
	})

	t.Run("not exists becomes anti join", func(t *testing.T) {
		out := canonical(t, plan.NewFilter(scanA(), plan.Not(plan.Exists(subquery(inner)))))
		require.Equal(t, plan.NodeJoin, out.Kind)
		assert.Equal(t, plan.AntiJoin, out.JoinType)
	})

	t.Run("in subquery becomes semi join on equality", func(t *testing.T) {
		out := canonical(t, plan.NewFilter(scanA(), plan.InSubquery(plan.Col("a.id"), subquery(inner))))
		require.Equal(t, plan.NodeJoin, out.Kind)
		assert.Equal(t, plan.SemiJoin, out.JoinType)
		assert.Equal(t, "(= (col a.id) (col b.id))", out.Predicate.Key())
		assert.Equal(t, plan.NodeFilter, out.Children[1].Kind)
	})

	t.Run("not in is left alone", func(t *testing.T) {
		out := canonical(t, plan.NewFilter(scanA(), plan.Not(plan.InSubquery(plan.Col("a.id"), subquery(inner)))))
		assert.Equal(t, plan.NodeFilter, out.Kind)
	})

	t.Run("correlated exists is left alone", func(t *testing.T) {
		correlated := plan.NewProject(plan.NewFilter(scanB(), eq("b.id", "a.id")), plan.Item(plan.IntLit(1), ""))
		out := canonical(t, plan.NewFilter(scanA(), plan.Exists(plan.NewSubquery(correlated, "", true))))
		assert.Equal(t, plan.NodeFilter, out.Kind)
		assert.Equal(t, plan.ExprExists, out.Predicate.Kind)
	})

	t.Run("free reference without flag counts as correlated", func(t *testing.T) {
		correlated := plan.NewProject(plan.NewFilter(scanB(), eq("b.id", "a.id")), plan.Item(plan.IntLit(1), ""))
		out := canonical(t, plan.NewFilter(scanA(), plan.Exists(subquery(correlated))))
		assert.Equal(t, plan.NodeFilter, out.Kind)
	})

	t.Run("scalar aggregate becomes inner join", func(t *testing.T) {
		avg := plan.Func("AVG", plan.Col("b.y"))
		body := plan.NewProject(plan.NewAggregate(scanB(), nil, []plan.ProjectItem{plan.Item(avg, "")}), plan.Item(avg, ""))
		out := canonical(t, plan.NewFilter(scanA(), plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.ScalarSubquery(subquery(body)))))
		require.Equal(t, plan.NodeJoin, out.Kind)
		assert.Equal(t, plan.InnerJoin, out.JoinType)
		assert.Len(t, out.Children, 2)
	})

	t.Run("grouped scalar subquery is left alone", func(t *testing.T) {
		avg := plan.Func("AVG", plan.Col("b.y"))
		body := plan.NewProject(plan.NewAggregate(scanB(), []*plan.Expr{plan.Col("b.k")}, []plan.ProjectItem{plan.Item(avg, "")}), plan.Item(avg, ""))
		out := canonical(t, plan.NewFilter(scanA(), plan.Binary(plan.OpGreater, plan.Col("a.x"), plan.ScalarSubquery(subquery(body)))))
		assert.Equal(t, plan.NodeFilter, out.Kind)
	})

	t.Run("colliding qualifiers are left alone", func(t *testing.T) {
		shadow := plan.NewProject(plan.NewScan("t9", "a"), plan.Item(plan.Col("a.id"), ""))
		out := canonical(t, plan.NewFilter(scanA(), plan.Exists(subquery(shadow))))
		assert.Equal(t, plan.NodeFilter, out.Kind)
	})
}

func TestSubplansAreCanonicalized(t *testing.T) {
	mk := func(pred *plan.Expr) *plan.Node {
		inner := plan.NewProject(plan.NewFilter(scanB(), plan.And(eq("b.id", "a.id"), pred)), plan.Item(plan.IntLit(1), ""))
		return plan.NewFilter(scanA(), plan.Exists(plan.NewSubquery(inner, "", true)))
	}
	a := mk(plan.Binary(plan.OpGreater, plan.Col("b.y"), plan.IntLit(3)))
	b := mk(plan.Binary(plan.OpLess, plan.IntLit(3), plan.Col("b.y")))
	assert.Equal(t, canonical(t, a).Fingerprint(), canonical(t, b).Fingerprint())
}

func TestCanonicalizeIdempotentAndPure(t *testing.T) {
	corpus := []*plan.Node{
		plan.NewProject(
			plan.NewFilter(plan.NewJoin(plan.CrossJoin, nil, scanB(), scanA(), scanC()),
				plan.And(eq("b.id", "a.id"), eq("c.id", "b.id"), plan.In(plan.Col("a.x"), plan.IntLit(2), plan.IntLit(1)))),
			plan.Item(plan.Col("a.x"), "x")),
		plan.NewLimit(plan.NewSort(plan.NewFilter(scanA(), plan.Exists(subquery(plan.NewProject(scanB(), plan.Item(plan.Col("b.id"), ""))))),
			plan.SortKey{Expr: plan.Col("a.x"), Desc: true}), 10, 0),
		plan.NewUnion(plan.Union, scanA(), plan.NewFilter(scanB(), plan.Not(plan.Not(plan.Col("b.p"))))),
		plan.NewJoin(plan.RightJoin, plan.And(eq("a.id", "b.id"), plan.Binary(plan.OpEqual, plan.Col("a.z"), plan.IntLit(2))), scanA(), scanB()),
		plan.NewUnknown("VALUES (1), (2)"),
	}

	c := defaultCanonicalizer()
	for _, p := range corpus {
		before := p.Fingerprint()
		once, _, err := c.Canonicalize(p)
		require.NoError(t, err)
		twice, rounds, err := c.Canonicalize(once)
		require.NoError(t, err)
		assert.Equal(t, once.Fingerprint(), twice.Fingerprint())
		assert.Equal(t, 1, rounds, "canonical plan should already be a fixpoint")
		assert.Equal(t, before, p.Fingerprint(), "input modified")
	}
}

func flipAlias() Rule {
	return NewRule("flip-alias", func(n *plan.Node) *plan.Node {
		if n.Kind != plan.NodeScan || (n.Alias != "x" && n.Alias != "y") {
			return n
		}
		out := n.ShallowCopy()
		if n.Alias == "x" {
			out.Alias = "y"
		} else {
			out.Alias = "x"
		}
		return out
	})
}

func growTable() Rule {
	return NewRule("grow-table", func(n *plan.Node) *plan.Node {
		if n.Kind != plan.NodeScan {
			return n
		}
		out := n.ShallowCopy()
		out.Table += "_"
		return out
	})
}

func TestDivergence(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		c := New(append(BuiltinRules(ExprCanonicalizer{}), flipAlias()))
		_, rounds, err := c.Canonicalize(plan.NewScan("t", "x"))
		require.Error(t, err)
		assert.True(t, verrors.IsError(err, verrors.RuleDivergence))
		assert.Equal(t, 2, rounds)
	})

	t.Run("round bound", func(t *testing.T) {
		c := New([]Rule{growTable()}, WithMaxRounds(5))
		_, rounds, err := c.Canonicalize(plan.NewScan("t", ""))
		require.Error(t, err)
		assert.True(t, verrors.IsError(err, verrors.RuleDivergence))
		assert.Equal(t, 5, rounds)
	})

	t.Run("growing depth", func(t *testing.T) {
		wrap := NewRule("wrap", func(n *plan.Node) *plan.Node {
			if n.Kind != plan.NodeScan {
				return n
			}
			return plan.NewLimit(n, 1, 0)
		})
		c := New([]Rule{wrap}, WithMaxDepth(4), WithMaxRounds(100))
		_, _, err := c.Canonicalize(plan.NewScan("t", ""))
		require.Error(t, err)
		assert.True(t, verrors.IsError(err, verrors.StatementTooComplex))
	})
}

func TestRuleContractViolations(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"nil result", NewRule("nil", func(*plan.Node) *plan.Node { return nil })},
		{"invalid result", NewRule("bad-arity", func(n *plan.Node) *plan.Node {
			return &plan.Node{Kind: plan.NodeFilter, Children: []*plan.Node{n}}
		})},
		{"panic", NewRule("panics", func(*plan.Node) *plan.Node { panic("boom") })},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New([]Rule{tt.rule}).Canonicalize(scanA())
			require.Error(t, err)
			assert.True(t, verrors.IsError(err, verrors.RuleContract))
		})
	}
}

func TestCanonicalizeRejectsBadInput(t *testing.T) {
	c := defaultCanonicalizer(WithMaxDepth(3))

	_, _, err := c.Canonicalize(nil)
	assert.True(t, verrors.IsError(err, verrors.InvalidPlan))

	_, _, err = c.Canonicalize(plan.NewFilter(scanA(), nil))
	assert.True(t, verrors.IsError(err, verrors.InvalidPlan))

	deep := plan.NewLimit(plan.NewLimit(plan.NewLimit(scanA(), 1, 0), 1, 0), 1, 0)
	_, _, err = c.Canonicalize(deep)
	assert.True(t, verrors.IsError(err, verrors.StatementTooComplex))
}
