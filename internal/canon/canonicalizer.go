package canon

import (
	"fmt"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/log"
	"github.com/dshills/planproof/internal/plan"
)

// Default bounds for canonicalization.
const (
	DefaultMaxRounds = 32
	DefaultMaxDepth  = 256
)

// Canonicalizer rewrites plans into canonical form by running an ordered
// rule list to a fixpoint.
type Canonicalizer struct {
	rules     []Rule
	maxRounds int
	maxDepth  int
	logger    log.Logger
}

// Option configures a Canonicalizer.
type Option func(*Canonicalizer)

// WithMaxRounds bounds the number of full rule rounds.
func WithMaxRounds(n int) Option {
	return func(c *Canonicalizer) {
		if n > 0 {
			c.maxRounds = n
		}
	}
}

// WithMaxDepth bounds the depth of input and intermediate plans.
func WithMaxDepth(n int) Option {
	return func(c *Canonicalizer) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// WithLogger sets the logger for round diagnostics.
func WithLogger(l log.Logger) Option {
	return func(c *Canonicalizer) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a canonicalizer over rules. The slice is copied.
func New(rules []Rule, opts ...Option) *Canonicalizer {
	c := &Canonicalizer{
		rules:     append([]Rule(nil), rules...),
		maxRounds: DefaultMaxRounds,
		maxDepth:  DefaultMaxDepth,
		logger:    log.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Canonicalize returns the canonical form of root and the number of rounds
// it took. root is never modified. A rule set that does not settle within
// the round bound, or that revisits an earlier plan, yields a
// RuleDivergence error rather than a partial result.
func (c *Canonicalizer) Canonicalize(root *plan.Node) (*plan.Node, int, error) {
	if root == nil {
		return nil, 0, verrors.InvalidPlanError(fmt.Errorf("plan has no root"))
	}
	if err := root.Validate(); err != nil {
		return nil, 0, verrors.InvalidPlanError(err)
	}
	if d := root.Depth(); d > c.maxDepth {
		return nil, 0, verrors.DepthExceededError(d, c.maxDepth)
	}

	current := root.Clone()
	fingerprint := current.Fingerprint()
	seen := map[string]int{fingerprint: 0}

	for round := 1; round <= c.maxRounds; round++ {
		next, err := c.rewrite(current)
		if err != nil {
			c.logger.Error("rule contract violated", log.Int("round", round), log.Err(err))
			return nil, round, err
		}

		nextFingerprint := next.Fingerprint()
		if nextFingerprint == fingerprint {
			c.logger.Debug("canonicalization converged", log.Int("rounds", round))
			return next, round, nil
		}
		if prev, ok := seen[nextFingerprint]; ok {
			c.logger.Warn("canonicalization cycle detected", log.Int("round", round), log.Int("repeats", prev))
			return nil, round, verrors.RuleDivergenceError(c.maxRounds,
				fmt.Sprintf("round %d reproduced the plan of round %d", round, prev))
		}
		if d := next.Depth(); d > c.maxDepth {
			c.logger.Warn("canonicalization grew past depth limit", log.Int("round", round), log.Int("depth", d))
			return nil, round, verrors.DepthExceededError(d, c.maxDepth)
		}

		c.logger.Debug("canonicalization round", log.Int("round", round), log.Int("nodes", next.Size()))
		seen[nextFingerprint] = round
		current, fingerprint = next, nextFingerprint
	}

	c.logger.Warn("canonicalization did not converge", log.Int("max_rounds", c.maxRounds))
	return nil, c.maxRounds, verrors.RuleDivergenceError(c.maxRounds, "the plan was still changing after the last round")
}

// rewrite runs one round: children first, then the subplans nested in the
// node's expressions, then every rule in order at the node itself.
func (c *Canonicalizer) rewrite(n *plan.Node) (*plan.Node, error) {
	changed := false
	children := make([]*plan.Node, len(n.Children))
	for i, child := range n.Children {
		rc, err := c.rewrite(child)
		if err != nil {
			return nil, err
		}
		children[i] = rc
		changed = changed || rc != child
	}
	current := n
	if changed {
		current = n.WithChildren(children...)
	}

	var subErr error
	withSubplans := current.MapExprs(func(e *plan.Expr) *plan.Expr {
		out, err := c.rewriteSubplans(e)
		if err != nil && subErr == nil {
			subErr = err
		}
		return out
	})
	if subErr != nil {
		return nil, subErr
	}
	if withSubplans.Fingerprint() != current.Fingerprint() {
		current = withSubplans
	}

	for _, rule := range c.rules {
		out, err := safeApply(rule, current)
		if err != nil {
			return nil, verrors.RuleContractError(rule.Name(), err.Error())
		}
		if out == nil {
			return nil, verrors.RuleContractError(rule.Name(), fmt.Sprintf("returned nil for %s", current))
		}
		if out != current {
			if err := out.Validate(); err != nil {
				return nil, verrors.RuleContractError(rule.Name(), err.Error())
			}
		}
		current = out
	}
	return current, nil
}

// rewriteSubplans rewrites every subplan nested in e, leaving e itself
// untouched when no subplan changes.
func (c *Canonicalizer) rewriteSubplans(e *plan.Expr) (*plan.Expr, error) {
	if e == nil || !e.HasSubplan() {
		return e, nil
	}
	out := *e
	if e.Children != nil {
		out.Children = make([]*plan.Expr, len(e.Children))
		for i, child := range e.Children {
			rc, err := c.rewriteSubplans(child)
			if err != nil {
				return nil, err
			}
			out.Children[i] = rc
		}
	}
	if e.Subplan != nil {
		sub, err := c.rewrite(e.Subplan)
		if err != nil {
			return nil, err
		}
		out.Subplan = sub
	}
	return &out, nil
}
