package canon

import (
	"fmt"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/plan"
)

// Rule is a named, stateless rewrite from a plan node to an equivalent one.
//
// Apply is called on a node whose children have already been rewritten in
// the current round. It must not modify its argument and must return the
// argument itself when it does not apply.
type Rule interface {
	Name() string
	Apply(n *plan.Node) *plan.Node
}

type ruleFunc struct {
	name string
	fn   func(*plan.Node) *plan.Node
}

func (r ruleFunc) Name() string                  { return r.name }
func (r ruleFunc) Apply(n *plan.Node) *plan.Node { return r.fn(n) }

// NewRule adapts a function to the Rule interface.
func NewRule(name string, fn func(*plan.Node) *plan.Node) Rule {
	return ruleFunc{name: name, fn: fn}
}

// Registry is an ordered set of uniquely named rules. A Registry handed to
// a Canonicalizer must not be modified; use Clone to derive a new one.
type Registry struct {
	rules    []Rule
	disabled map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{disabled: map[string]bool{}}
}

// DefaultRegistry returns a registry holding the built-in rules.
func DefaultRegistry(ec ExprCanonicalizer) *Registry {
	r := NewRegistry()
	r.rules = BuiltinRules(ec)
	return r
}

// Register appends rule after the existing rules. The rule is probed
// against sample plans first and rejected if it returns nil, returns an
// invalid plan, modifies its input or panics.
func (r *Registry) Register(rule Rule) error {
	if rule == nil {
		return verrors.InvalidRuleError("", "rule is nil")
	}
	name := rule.Name()
	if name == "" {
		return verrors.InvalidRuleError(name, "rule name is empty")
	}
	for _, existing := range r.rules {
		if existing.Name() == name {
			return verrors.InvalidRuleError(name, "a rule with this name is already registered")
		}
	}
	if err := probe(rule); err != nil {
		return verrors.InvalidRuleError(name, err.Error())
	}
	r.rules = append(r.rules, rule)
	return nil
}

// Disable excludes the named rule from Rules.
func (r *Registry) Disable(name string) error {
	for _, rule := range r.rules {
		if rule.Name() == name {
			r.disabled[name] = true
			return nil
		}
	}
	return verrors.InvalidRuleError(name, "no rule with this name is registered")
}

// Rules returns the enabled rules in order.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if !r.disabled[rule.Name()] {
			out = append(out, rule)
		}
	}
	return out
}

// Names returns the names of the enabled rules in order.
func (r *Registry) Names() []string {
	rules := r.Rules()
	names := make([]string, len(rules))
	for i, rule := range rules {
		names[i] = rule.Name()
	}
	return names
}

// Snapshot returns a canonicalizer over the currently enabled rules. Later
// changes to r do not affect it.
func (r *Registry) Snapshot(opts ...Option) *Canonicalizer {
	return New(r.Rules(), opts...)
}

// Clone returns an independent copy of r.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		rules:    append([]Rule(nil), r.rules...),
		disabled: make(map[string]bool, len(r.disabled)),
	}
	for k, v := range r.disabled {
		c.disabled[k] = v
	}
	return c
}

// probeSamples covers every node kind.
func probeSamples() []*plan.Node {
	a := plan.NewScan("probe_a", "pa")
	b := plan.NewScan("probe_b", "pb")
	eq := plan.Binary(plan.OpEqual, plan.Col("pa.id"), plan.Col("pb.id"))
	return []*plan.Node{
		a,
		plan.NewFilter(a, plan.Binary(plan.OpGreater, plan.Col("pa.x"), plan.IntLit(1))),
		plan.NewJoin(plan.InnerJoin, eq, a, b),
		plan.NewJoin(plan.LeftJoin, eq, a, b),
		plan.NewProject(a, plan.Item(plan.Col("pa.x"), "x")),
		plan.NewAggregate(a, []*plan.Expr{plan.Col("pa.x")}, []plan.ProjectItem{plan.Item(plan.Func("COUNT", plan.Col("pa.id")), "")}),
		plan.NewSort(a, plan.SortKey{Expr: plan.Col("pa.x")}),
		plan.NewSubquery(a, "sq", false),
		plan.NewUnion(plan.UnionAll, a, b),
		plan.NewLimit(a, 1, 0),
		plan.NewUnknown("probe"),
	}
}

func probe(rule Rule) error {
	for _, sample := range probeSamples() {
		before := sample.Fingerprint()
		out, err := safeApply(rule, sample)
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("returned nil for %s", sample.Kind)
		}
		if err := out.Validate(); err != nil {
			return fmt.Errorf("returned an invalid plan for %s: %w", sample.Kind, err)
		}
		if sample.Fingerprint() != before {
			return fmt.Errorf("modified its input %s", sample.Kind)
		}
	}
	return nil
}

// safeApply calls rule.Apply and converts a panic into an error.
func safeApply(rule Rule, n *plan.Node) (out *plan.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panicked: %v", r)
		}
	}()
	return rule.Apply(n), nil
}
