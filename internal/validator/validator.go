// Package validator is the entry point for proving two query plans
// equivalent. It owns the canonicalization rule registry and combines
// canonicalization and structural comparison.
package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/planproof/internal/canon"
	"github.com/dshills/planproof/internal/compare"
	"github.com/dshills/planproof/internal/config"
	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/log"
	"github.com/dshills/planproof/internal/plan"
)

// Extractor turns SQL text into a logical plan.
type Extractor interface {
	Extract(ctx context.Context, sql string) (*plan.LogicalPlan, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, sql string) (*plan.LogicalPlan, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, sql string) (*plan.LogicalPlan, error) {
	return f(ctx, sql)
}

// Validator validates plan pairs against a rule registry. It is safe for
// concurrent use. Registering or disabling a rule replaces the registry
// atomically; validations already running keep the rules they started with.
type Validator struct {
	mu       sync.Mutex
	registry atomic.Pointer[canon.Registry]

	extractor   Extractor
	logger      log.Logger
	mode        compare.Mode
	maxRounds   int
	maxDepth    int
	inListLimit int
	workers     int
	disabled    []string
	enabled     []string
}

// Option configures a Validator.
type Option func(*Validator) error

// WithExtractor sets the collaborator used by Validate and
// ValidateCandidates.
func WithExtractor(e Extractor) Option {
	return func(v *Validator) error {
		v.extractor = e
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(v *Validator) error {
		if l != nil {
			v.logger = l
		}
		return nil
	}
}

// WithMode sets the default mode reported by Mode.
func WithMode(m compare.Mode) Option {
	return func(v *Validator) error {
		v.mode = m
		return nil
	}
}

// WithMaxRounds bounds canonicalization rounds.
func WithMaxRounds(n int) Option {
	return func(v *Validator) error {
		if n < 1 {
			return fmt.Errorf("max rounds must be at least 1, got %d", n)
		}
		v.maxRounds = n
		return nil
	}
}

// WithMaxDepth bounds plan depth during canonicalization and comparison.
func WithMaxDepth(n int) Option {
	return func(v *Validator) error {
		if n < 1 {
			return fmt.Errorf("max depth must be at least 1, got %d", n)
		}
		v.maxDepth = n
		return nil
	}
}

// WithInListLimit keeps IN lists longer than n unexpanded. Zero expands
// every list.
func WithInListLimit(n int) Option {
	return func(v *Validator) error {
		if n < 0 {
			return fmt.Errorf("in-list limit cannot be negative")
		}
		v.inListLimit = n
		return nil
	}
}

// WithWorkers bounds concurrent candidate validations.
func WithWorkers(n int) Option {
	return func(v *Validator) error {
		if n < 1 {
			return fmt.Errorf("workers must be at least 1, got %d", n)
		}
		v.workers = n
		return nil
	}
}

// WithDisabledRules disables built-in rules by name.
func WithDisabledRules(names ...string) Option {
	return func(v *Validator) error {
		v.disabled = append(v.disabled, names...)
		return nil
	}
}

// WithEnabledRules registers optional rules by name after the built-in
// rules.
func WithEnabledRules(names ...string) Option {
	return func(v *Validator) error {
		v.enabled = append(v.enabled, names...)
		return nil
	}
}

// FromConfig applies the validator and worker settings of cfg.
func FromConfig(cfg *config.Config) Option {
	return func(v *Validator) error {
		mode, err := compare.ParseMode(cfg.Validator.Mode)
		if err != nil {
			return err
		}
		v.mode = mode
		v.maxRounds = cfg.Validator.MaxRounds
		v.maxDepth = cfg.Validator.MaxDepth
		v.inListLimit = cfg.Validator.InListExpansionLimit
		v.disabled = append(v.disabled, cfg.Validator.DisabledRules...)
		v.enabled = append(v.enabled, cfg.Validator.EnabledRules...)
		if cfg.Optimizer.Workers > 0 {
			v.workers = cfg.Optimizer.Workers
		}
		return nil
	}
}

// New creates a validator holding the built-in rules.
func New(opts ...Option) (*Validator, error) {
	v := &Validator{
		logger:    log.NewNop(),
		mode:      compare.Strict,
		maxRounds: canon.DefaultMaxRounds,
		maxDepth:  canon.DefaultMaxDepth,
		workers:   4,
	}
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, verrors.InternalErrorf("invalid validator option: %v", err).WithCause(err)
		}
	}

	reg := canon.DefaultRegistry(canon.ExprCanonicalizer{InListLimit: v.inListLimit})
	for _, name := range v.enabled {
		rule, ok := canon.OptionalRule(name)
		if !ok {
			return nil, verrors.InvalidRuleError(name, "no optional rule with this name")
		}
		if err := reg.Register(rule); err != nil {
			return nil, err
		}
	}
	for _, name := range v.disabled {
		if err := reg.Disable(name); err != nil {
			return nil, err
		}
	}
	v.registry.Store(reg)
	return v, nil
}

// Mode returns the configured default mode.
func (v *Validator) Mode() compare.Mode { return v.mode }

// RegisterRule appends rule after the current rules. Invalid or duplicate
// rules are rejected.
func (v *Validator) RegisterRule(rule canon.Rule) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.registry.Load().Clone()
	if err := next.Register(rule); err != nil {
		return err
	}
	v.registry.Store(next)
	v.logger.Info("rule registered", log.String("rule", rule.Name()))
	return nil
}

// DisableRule removes a rule from future validations.
func (v *Validator) DisableRule(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := v.registry.Load().Clone()
	if err := next.Disable(name); err != nil {
		return err
	}
	v.registry.Store(next)
	return nil
}

// Rules returns the names of the enabled rules in application order.
func (v *Validator) Rules() []string {
	return v.registry.Load().Names()
}

func (v *Validator) canonicalizer() *canon.Canonicalizer {
	return v.registry.Load().Snapshot(
		canon.WithMaxRounds(v.maxRounds),
		canon.WithMaxDepth(v.maxDepth),
		canon.WithLogger(v.logger),
	)
}

// Canonicalize returns the canonical form of p. p is not modified.
func (v *Validator) Canonicalize(p *plan.LogicalPlan) (*plan.LogicalPlan, error) {
	if p == nil {
		return nil, verrors.InvalidPlanError(errors.New("plan is nil"))
	}
	out, _, err := v.canonicalize(v.canonicalizer(), p)
	return out, err
}

func (v *Validator) canonicalize(c *canon.Canonicalizer, p *plan.LogicalPlan) (*plan.LogicalPlan, int, error) {
	root, rounds, err := c.Canonicalize(p.Root)
	if err != nil {
		return nil, rounds, err
	}
	out := p.Clone()
	out.Root = root
	return out, rounds, nil
}

// ValidatePlans decides whether a and b are equivalent under mode. It
// performs no I/O. Failures to canonicalize or compare are reported in the
// result, which is then not equivalent.
func (v *Validator) ValidatePlans(a, b *plan.LogicalPlan, mode compare.Mode) Result {
	for _, p := range []*plan.LogicalPlan{a, b} {
		if p == nil || p.Root == nil {
			return failed(mode, verrors.InvalidPlanError(errors.New("plan has no root")))
		}
		if err := p.Validate(); err != nil {
			return failed(mode, verrors.InvalidPlanError(err))
		}
	}

	if a.Root.Equal(b.Root) {
		return Result{
			Equivalent: true,
			Confidence: 1.0,
			Reason:     "identical",
			Mode:       mode,
			Left:       a.Clone(),
			Right:      b.Clone(),
		}
	}

	c := v.canonicalizer()
	left, ra, err := v.canonicalize(c, a)
	if err != nil {
		v.logger.Warn("canonicalization failed", log.String("side", "left"), log.Err(err))
		return failed(mode, err)
	}
	right, rb, err := v.canonicalize(c, b)
	if err != nil {
		v.logger.Warn("canonicalization failed", log.String("side", "right"), log.Err(err))
		return failed(mode, err)
	}

	cmp := compare.Comparator{Mode: mode, MaxDepth: v.maxDepth}.Compare(left.Root, right.Root)
	if cmp.DepthExceeded {
		depth := left.Root.Depth()
		if d := right.Root.Depth(); d > depth {
			depth = d
		}
		return failed(mode, verrors.DepthExceededError(depth, v.maxDepth))
	}

	res := Result{
		Equivalent:  cmp.Equivalent,
		Confidence:  cmp.Confidence,
		Reason:      reason(cmp),
		Differences: cmp.Differences,
		Mode:        mode,
		Rounds:      ra + rb,
		Left:        left,
		Right:       right,
	}
	v.logger.Debug("plans compared",
		log.Bool("equivalent", res.Equivalent),
		log.Float64("confidence", res.Confidence),
		log.String("mode", mode.String()),
		log.Int("differences", len(res.Differences)))
	return res
}

// Validate extracts both statements and validates their plans. Extraction
// failures are returned as errors; every other failure is reported in the
// result.
func (v *Validator) Validate(ctx context.Context, sqlA, sqlB string, mode compare.Mode) (Result, error) {
	a, err := v.extract(ctx, sqlA)
	if err != nil {
		return Result{Mode: mode}, err
	}
	b, err := v.extract(ctx, sqlB)
	if err != nil {
		return Result{Mode: mode}, err
	}
	return v.ValidatePlans(a, b, mode), nil
}

func (v *Validator) extract(ctx context.Context, sql string) (*plan.LogicalPlan, error) {
	if v.extractor == nil {
		return nil, verrors.InternalErrorf("no plan extractor configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return v.extractor.Extract(ctx, sql)
}

// ValidateCandidates validates each candidate against original using a
// bounded number of workers. Results are in candidate order. A candidate
// that cannot be extracted gets its error in the result; an extraction
// failure of original, or ctx being canceled, is returned as an error.
func (v *Validator) ValidateCandidates(ctx context.Context, original string, candidates []string, mode compare.Mode) ([]CandidateResult, error) {
	orig, err := v.extract(ctx, original)
	if err != nil {
		return nil, err
	}

	results := make([]CandidateResult, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)
	for i, sql := range candidates {
		i, sql := i, sql
		g.Go(func() error {
			results[i] = CandidateResult{Index: i, SQL: sql}
			p, err := v.extract(gctx, sql)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				results[i].Err = err
				v.logger.Info("candidate rejected", log.Int("candidate", i), log.Err(err))
				return nil
			}
			results[i].Result = v.ValidatePlans(orig, p, mode)
			v.logger.Info("candidate validated",
				log.Int("candidate", i),
				log.Bool("equivalent", results[i].Result.Equivalent),
				log.Float64("confidence", results[i].Result.Confidence))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
