// Package extract turns SQL text into logical plans.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/log"
	"github.com/dshills/planproof/internal/plan"
	"github.com/dshills/planproof/internal/sql/parser"
)

// Name identifies this extractor in plan metadata.
const Name = "planproof-sql"

// Extractor parses SELECT queries and builds their logical plans. It holds
// no per-query state and is safe for concurrent use.
type Extractor struct {
	logger log.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source for the extracted_at metadata.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithIDSource sets the generator for plan_id metadata.
func WithIDSource(newID func() string) Option {
	return func(e *Extractor) { e.newID = newID }
}

// New creates an extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		logger: log.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses sql and returns its logical plan. Syntax errors are
// reported as extraction errors carrying the position; statements other
// than queries are rejected as unsupported.
func (e *Extractor) Extract(ctx context.Context, sql string) (*plan.LogicalPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stmt, err := parser.Parse(sql)
	if err != nil {
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			return nil, verrors.ExtractionError(perr.Msg, perr.Line, perr.Column)
		}
		return nil, verrors.ExtractionError(err.Error(), 0, 0)
	}

	var sel *parser.SelectStmt
	switch s := stmt.(type) {
	case *parser.SelectStmt:
		sel = s
	case *parser.OtherStmt:
		return nil, verrors.UnsupportedStatementError(s.Keyword)
	default:
		return nil, verrors.UnsupportedStatementError("statement")
	}

	root, err := newBuilder().buildQuery(sel, nil)
	if err != nil {
		return nil, err
	}
	if err := root.Validate(); err != nil {
		return nil, verrors.InvalidPlanError(err)
	}

	p := plan.NewLogicalPlan(root, sql)
	p.Metadata[plan.MetaPlanID] = e.newID()
	p.Metadata[plan.MetaExtractedAt] = e.now().UTC().Format(time.RFC3339)
	p.Metadata[plan.MetaExtractor] = Name

	e.logger.Debug("plan extracted",
		log.String("plan_id", p.Metadata[plan.MetaPlanID]),
		log.Int("nodes", root.Size()))
	return p, nil
}
