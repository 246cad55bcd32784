// Package optimizer runs proposed query rewrites through equivalence
// validation and cost estimation and selects the one to use.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/planproof/internal/compare"
	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/log"
	"github.com/dshills/planproof/internal/validator"
)

// Validator proves a candidate equivalent to the original query.
// *validator.Validator implements it.
type Validator interface {
	Validate(ctx context.Context, sqlA, sqlB string, mode compare.Mode) (validator.Result, error)
}

// Candidate is the evaluation of one generated rewrite.
type Candidate struct {
	Index      int     `json:"index"`
	SQL        string  `json:"sql"`
	Valid      bool    `json:"valid"`
	Confidence float64 `json:"confidence"`
	Cost       float64 `json:"cost,omitempty"`
	Reason     string  `json:"reason"`

	// Err is set when the candidate could not be validated or costed.
	Err error `json:"-"`
}

// PhaseStats breaks down one Optimize call.
type PhaseStats struct {
	Generated      int           `json:"candidates_generated"`
	Validated      int           `json:"candidates_validated"`
	GenerationTime time.Duration `json:"generation_time"`
	ValidationTime time.Duration `json:"validation_time"`
	CostTime       time.Duration `json:"cost_estimation_time"`
}

// Outcome is the result of optimizing one query. When Optimized is false
// the original query should run unchanged and Reason says why.
type Outcome struct {
	Optimized        bool          `json:"optimized"`
	OriginalSQL      string        `json:"original_sql"`
	OptimizedSQL     string        `json:"optimized_sql,omitempty"`
	OriginalCost     float64       `json:"original_cost"`
	OptimizedCost    float64       `json:"optimized_cost,omitempty"`
	ImprovementRatio float64       `json:"improvement_ratio,omitempty"`
	Reason           string        `json:"reason"`
	Candidates       []Candidate   `json:"candidates,omitempty"`
	Stats            PhaseStats    `json:"stats"`
	TotalTime        time.Duration `json:"total_time"`
}

// Optimizer generates, validates, costs and selects rewrites. It is safe
// for concurrent use.
type Optimizer struct {
	validator Validator
	generator Generator
	cost      CostEstimator
	host      Host
	logger    log.Logger
	workers   int

	strategy atomic.Pointer[Strategy]
	enabled  atomic.Bool
	stats    stats
}

// Option configures an Optimizer.
type Option func(*Optimizer) error

// WithStrategy sets the strategy.
func WithStrategy(s Strategy) Option {
	return func(o *Optimizer) error {
		if err := s.Validate(); err != nil {
			return err
		}
		o.strategy.Store(&s)
		return nil
	}
}

// WithHost sets the engine hook that receives selected rewrites.
func WithHost(h Host) Option {
	return func(o *Optimizer) error {
		o.host = h
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(o *Optimizer) error {
		if l != nil {
			o.logger = l
		}
		return nil
	}
}

// WithWorkers bounds concurrent candidate validations.
func WithWorkers(n int) Option {
	return func(o *Optimizer) error {
		if n < 1 {
			return fmt.Errorf("workers must be at least 1, got %d", n)
		}
		o.workers = n
		return nil
	}
}

// New creates an enabled optimizer.
func New(v Validator, gen Generator, cost CostEstimator, opts ...Option) (*Optimizer, error) {
	if v == nil || gen == nil || cost == nil {
		return nil, verrors.InternalErrorf("optimizer needs a validator, a generator and a cost estimator")
	}
	o := &Optimizer{
		validator: v,
		generator: gen,
		cost:      cost,
		logger:    log.NewNop(),
		workers:   4,
	}
	def := DefaultStrategy()
	o.strategy.Store(&def)
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, verrors.InternalErrorf("invalid optimizer option: %v", err).WithCause(err)
		}
	}
	o.enabled.Store(true)
	return o, nil
}

// Strategy returns the current strategy.
func (o *Optimizer) Strategy() Strategy { return *o.strategy.Load() }

// SetStrategy replaces the strategy for later Optimize calls.
func (o *Optimizer) SetStrategy(s Strategy) error {
	if err := s.Validate(); err != nil {
		return err
	}
	o.strategy.Store(&s)
	return nil
}

// SetEnabled turns the optimizer on or off. A disabled optimizer returns
// every query unchanged.
func (o *Optimizer) SetEnabled(enabled bool) { o.enabled.Store(enabled) }

// Enabled reports whether the optimizer is on.
func (o *Optimizer) Enabled() bool { return o.enabled.Load() }

// Statistics returns the counters accumulated so far.
func (o *Optimizer) Statistics() Statistics { return o.stats.snapshot() }

// ResetStatistics clears the counters.
func (o *Optimizer) ResetStatistics() { o.stats.reset() }

// Optimize looks for a cheaper query proven equivalent to sql. Failing to
// find one is reported in the outcome. Errors are returned when the
// original cannot be costed, generation fails, ctx ends, or the host
// rejects the selected rewrite.
func (o *Optimizer) Optimize(ctx context.Context, sql string) (out Outcome, err error) {
	start := time.Now()
	o.stats.totalQueries.Add(1)
	out.OriginalSQL = sql
	defer func() {
		out.TotalTime = time.Since(start)
		o.stats.record(out.Optimized, out.ImprovementRatio, out.TotalTime)
	}()

	if !o.Enabled() {
		out.Reason = "optimizer disabled"
		return out, nil
	}
	strategy := o.Strategy()

	costStart := time.Now()
	out.OriginalCost, err = o.estimate(ctx, sql)
	out.Stats.CostTime += time.Since(costStart)
	if err != nil {
		out.Reason = "cannot estimate the cost of the original query"
		return out, err
	}
	if out.OriginalCost < strategy.MinEstimatedCost {
		out.Reason = fmt.Sprintf("estimated cost %.2f is below the threshold %.2f", out.OriginalCost, strategy.MinEstimatedCost)
		return out, nil
	}

	genStart := time.Now()
	candidates, err := o.generator.Generate(ctx, sql, strategy.MaxCandidates)
	out.Stats.GenerationTime = time.Since(genStart)
	if err != nil {
		out.Reason = "candidate generation failed"
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		return out, verrors.Wrap(err, verrors.InternalError, "candidate generation failed").WithDetail(err.Error())
	}
	candidates = distinctCandidates(sql, candidates, strategy.MaxCandidates)
	out.Stats.Generated = len(candidates)
	if len(candidates) == 0 {
		out.Reason = "no candidates generated"
		return out, nil
	}

	valStart := time.Now()
	out.Candidates, err = o.validateAll(ctx, sql, candidates, strategy)
	out.Stats.ValidationTime = time.Since(valStart)
	if err != nil {
		out.Reason = "validation interrupted"
		return out, err
	}
	for _, c := range out.Candidates {
		if c.Valid {
			out.Stats.Validated++
		} else {
			o.stats.failedValidations.Add(1)
		}
	}

	costStart = time.Now()
	o.costCandidates(ctx, out.Candidates)
	out.Stats.CostTime += time.Since(costStart)

	chosen, reason := choose(strategy, out.OriginalCost, out.Candidates)
	out.Reason = reason
	if chosen == nil {
		o.logger.Info("query not optimized",
			log.String("reason", reason),
			log.Int("candidates", out.Stats.Generated),
			log.Int("validated", out.Stats.Validated))
		return out, nil
	}

	if o.host != nil {
		if err := o.host.ApplyRewrite(ctx, sql, chosen.SQL); err != nil {
			out.Reason = "host rejected the rewrite: " + err.Error()
			o.logger.Warn("rewrite rejected by host", log.Int("candidate", chosen.Index), log.Err(err))
			return out, err
		}
	}

	out.Optimized = true
	out.OptimizedSQL = chosen.SQL
	out.OptimizedCost = chosen.Cost
	out.ImprovementRatio = out.OriginalCost / chosen.Cost
	o.logger.Info("query optimized",
		log.Int("candidate", chosen.Index),
		log.String("selection", strategy.Selection.String()),
		log.Float64("improvement_ratio", out.ImprovementRatio))
	return out, nil
}

// distinctCandidates drops repeats and copies of the original, then caps
// the list at max.
func distinctCandidates(original string, candidates []string, max int) []string {
	seen := map[string]bool{normalizeSQL(original): true}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := normalizeSQL(c)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == max {
			break
		}
	}
	return out
}

func (o *Optimizer) validateAll(ctx context.Context, original string, candidates []string, s Strategy) ([]Candidate, error) {
	results := make([]Candidate, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, sql := range candidates {
		i, sql := i, sql
		g.Go(func() error {
			c := Candidate{Index: i, SQL: sql}
			res, err := o.validateOne(gctx, original, sql, s)
			switch {
			case err != nil:
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				c.Err = err
				c.Reason = err.Error()
			case !res.Equivalent:
				c.Confidence = res.Confidence
				c.Reason = res.Reason
				if res.Failure != nil {
					c.Err = res.Failure
				}
			case res.Confidence < s.MinConfidence:
				c.Confidence = res.Confidence
				c.Reason = fmt.Sprintf("confidence %.2f is below the required %.2f", res.Confidence, s.MinConfidence)
			default:
				c.Valid = true
				c.Confidence = res.Confidence
				c.Reason = res.Reason
			}
			results[i] = c
			o.logger.Debug("candidate validated",
				log.Int("candidate", i),
				log.Bool("valid", c.Valid),
				log.Float64("confidence", c.Confidence))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

type validation struct {
	res validator.Result
	err error
}

// validateOne validates a single candidate within the strategy timeout.
func (o *Optimizer) validateOne(ctx context.Context, original, candidate string, s Strategy) (validator.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ValidationTimeout)
	defer cancel()

	done := make(chan validation, 1)
	go func() {
		res, err := o.validator.Validate(ctx, original, candidate, s.Mode)
		done <- validation{res: res, err: err}
	}()

	select {
	case v := <-done:
		if errors.Is(v.err, context.DeadlineExceeded) {
			return v.res, verrors.TimeoutError(s.ValidationTimeout)
		}
		return v.res, v.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return validator.Result{}, verrors.TimeoutError(s.ValidationTimeout)
		}
		return validator.Result{}, ctx.Err()
	}
}

func (o *Optimizer) costCandidates(ctx context.Context, candidates []Candidate) {
	for i := range candidates {
		c := &candidates[i]
		if !c.Valid {
			continue
		}
		cost, err := o.estimate(ctx, c.SQL)
		if err != nil {
			c.Err = err
			c.Reason = "cost estimation failed: " + err.Error()
			o.logger.Warn("candidate cost estimation failed", log.Int("candidate", c.Index), log.Err(err))
			continue
		}
		c.Cost = cost
	}
}

func (o *Optimizer) estimate(ctx context.Context, sql string) (float64, error) {
	cost, err := o.cost.EstimateCost(ctx, sql)
	if err != nil {
		var coded *verrors.Error
		if errors.As(err, &coded) {
			return 0, err
		}
		return 0, verrors.CostEstimationError(err)
	}
	if cost <= 0 {
		return 0, verrors.CostEstimationError(fmt.Errorf("non-positive cost %g", cost))
	}
	return cost, nil
}

// choose applies the selection mode to the validated, costed candidates.
func choose(s Strategy, originalCost float64, candidates []Candidate) (*Candidate, string) {
	var best *Candidate
	valid := 0
	for i := range candidates {
		c := &candidates[i]
		if !c.Valid || c.Err != nil {
			continue
		}
		valid++
		if s.Selection == FirstValid {
			if c.Cost <= originalCost {
				return c, fmt.Sprintf("first valid candidate (%d)", c.Index)
			}
			continue
		}
		if c.Cost < originalCost && (best == nil || c.Cost < best.Cost) {
			best = c
		}
	}

	switch {
	case valid == 0:
		return nil, "no candidate was proven equivalent"
	case best == nil && s.Selection == FirstValid:
		return nil, "every validated candidate is more expensive than the original"
	case best == nil:
		return nil, "no validated candidate is cheaper than the original"
	}

	ratio := originalCost / best.Cost
	if s.Selection == Conservative && ratio < s.MinImprovementRatio {
		return nil, fmt.Sprintf("best improvement %.2fx is below the required %.2fx", ratio, s.MinImprovementRatio)
	}
	return best, fmt.Sprintf("lowest cost candidate (%d), %.2fx cheaper", best.Index, ratio)
}
