package optimizer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics summarizes the queries an optimizer has seen since creation or
// the last Reset.
type Statistics struct {
	TotalQueries        int64         `json:"total_queries"`
	OptimizedQueries    int64         `json:"optimized_queries"`
	FailedValidations   int64         `json:"failed_validations"`
	AvgImprovementRatio float64       `json:"avg_improvement_ratio"`
	AvgOptimizationTime time.Duration `json:"avg_optimization_time"`
}

type stats struct {
	totalQueries      atomic.Int64
	optimizedQueries  atomic.Int64
	failedValidations atomic.Int64

	mu               sync.Mutex
	improvementTotal float64
	timeTotal        time.Duration
	timed            int64
}

// record adds one finished Optimize call.
func (s *stats) record(optimized bool, ratio float64, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if optimized {
		s.optimizedQueries.Add(1)
		s.improvementTotal += ratio
	}
	s.timeTotal += elapsed
	s.timed++
}

func (s *stats) snapshot() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Statistics{
		TotalQueries:      s.totalQueries.Load(),
		OptimizedQueries:  s.optimizedQueries.Load(),
		FailedValidations: s.failedValidations.Load(),
	}
	if out.OptimizedQueries > 0 {
		out.AvgImprovementRatio = s.improvementTotal / float64(out.OptimizedQueries)
	}
	if s.timed > 0 {
		out.AvgOptimizationTime = s.timeTotal / time.Duration(s.timed)
	}
	return out
}

func (s *stats) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalQueries.Store(0)
	s.optimizedQueries.Store(0)
	s.failedValidations.Store(0)
	s.improvementTotal = 0
	s.timeTotal = 0
	s.timed = 0
}
