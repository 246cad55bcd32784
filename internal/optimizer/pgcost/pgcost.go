// Package pgcost estimates query cost with PostgreSQL's planner by running
// EXPLAIN (FORMAT JSON) and reading the root node's total cost.
package pgcost

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	verrors "github.com/dshills/planproof/internal/errors"
	"github.com/dshills/planproof/internal/log"
)

// DefaultTimeout bounds one EXPLAIN.
const DefaultTimeout = 5 * time.Second

// Estimator is a cost collaborator backed by a PostgreSQL connection pool.
// Queries are planned, never executed.
type Estimator struct {
	db      *sql.DB
	timeout time.Duration
	logger  log.Logger
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithTimeout bounds each estimate. Zero or negative keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Estimator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New wraps an open database handle. The caller keeps ownership of db.
func New(db *sql.DB, opts ...Option) *Estimator {
	e := &Estimator{db: db, timeout: DefaultTimeout, logger: log.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open connects with the named driver, which must already be registered,
// and verifies the connection.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Estimator, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, verrors.CostEstimationError(err)
	}
	e := New(db, opts...)

	pingCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, verrors.CostEstimationError(err)
	}
	return e, nil
}

// Close closes the underlying pool.
func (e *Estimator) Close() error {
	return e.db.Close()
}

// explainNode is the part of a plan node we read.
type explainNode struct {
	NodeType  string  `json:"Node Type"`
	StartCost float64 `json:"Startup Cost"`
	TotalCost float64 `json:"Total Cost"`
	PlanRows  float64 `json:"Plan Rows"`
}

type explainOutput []struct {
	Plan explainNode `json:"Plan"`
}

// EstimateCost returns the planner's total cost for query.
func (e *Estimator) EstimateCost(ctx context.Context, query string) (float64, error) {
	query = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if query == "" {
		return 0, verrors.CostEstimationError(fmt.Errorf("empty query"))
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	var raw []byte
	if err := e.db.QueryRowContext(ctx, "EXPLAIN (FORMAT JSON) "+query).Scan(&raw); err != nil {
		return 0, verrors.CostEstimationError(err)
	}

	node, err := parseExplain(raw)
	if err != nil {
		return 0, verrors.CostEstimationError(err)
	}
	e.logger.Debug("cost estimated",
		log.String("node", node.NodeType),
		log.Float64("total_cost", node.TotalCost),
		log.Duration("elapsed", time.Since(start)))
	return node.TotalCost, nil
}

func parseExplain(raw []byte) (explainNode, error) {
	var out explainOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return explainNode{}, fmt.Errorf("unreadable EXPLAIN output: %w", err)
	}
	if len(out) == 0 || out[0].Plan.NodeType == "" {
		return explainNode{}, fmt.Errorf("EXPLAIN returned no plan")
	}
	return out[0].Plan, nil
}
