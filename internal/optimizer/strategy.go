package optimizer

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/planproof/internal/compare"
	"github.com/dshills/planproof/internal/config"
)

// Selection decides which validated candidate replaces the original.
type Selection int

// Selection modes.
const (
	// BestCost picks the cheapest validated candidate that is cheaper than
	// the original.
	BestCost Selection = iota
	// FirstValid picks the first validated candidate, in generation order,
	// that is not more expensive than the original.
	FirstValid
	// Conservative picks like BestCost but only when the improvement ratio
	// reaches MinImprovementRatio.
	Conservative
)

func (s Selection) String() string {
	switch s {
	case BestCost:
		return "best_cost"
	case FirstValid:
		return "first_valid"
	case Conservative:
		return "conservative"
	default:
		return fmt.Sprintf("Selection(%d)", int(s))
	}
}

// ParseSelection parses a selection mode name.
func ParseSelection(s string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "best_cost", "":
		return BestCost, nil
	case "first_valid":
		return FirstValid, nil
	case "conservative":
		return Conservative, nil
	}
	return BestCost, fmt.Errorf("unknown selection mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Selection) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Strategy controls candidate generation, validation and selection.
type Strategy struct {
	MaxCandidates     int
	ValidationTimeout time.Duration
	Selection         Selection

	// MinImprovementRatio is the original cost divided by the candidate
	// cost that Conservative selection requires.
	MinImprovementRatio float64

	// MinConfidence is the validation confidence a candidate needs.
	MinConfidence float64

	// MinEstimatedCost skips queries whose estimated cost is below it.
	MinEstimatedCost float64

	Mode compare.Mode
}

// DefaultStrategy returns the default strategy.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxCandidates:       5,
		ValidationTimeout:   10 * time.Second,
		Selection:           BestCost,
		MinImprovementRatio: 1.2,
		MinConfidence:       1.0,
		Mode:                compare.Strict,
	}
}

// StrategyFromConfig builds a strategy from the optimizer and validator
// sections of cfg.
func StrategyFromConfig(cfg *config.Config) (Strategy, error) {
	sel, err := ParseSelection(cfg.Optimizer.Selection)
	if err != nil {
		return Strategy{}, err
	}
	mode, err := compare.ParseMode(cfg.Validator.Mode)
	if err != nil {
		return Strategy{}, err
	}
	s := Strategy{
		MaxCandidates:       cfg.Optimizer.MaxCandidates,
		ValidationTimeout:   cfg.Optimizer.ValidationTimeout,
		Selection:           sel,
		MinImprovementRatio: cfg.Optimizer.MinImprovementRatio,
		MinConfidence:       cfg.Optimizer.MinConfidence,
		Mode:                mode,
	}
	return s, s.Validate()
}

// Validate checks the strategy for usable values.
func (s Strategy) Validate() error {
	if s.MaxCandidates < 1 {
		return fmt.Errorf("max candidates must be at least 1, got %d", s.MaxCandidates)
	}
	if s.ValidationTimeout <= 0 {
		return fmt.Errorf("validation timeout must be positive")
	}
	if s.MinImprovementRatio < 1 {
		return fmt.Errorf("min improvement ratio must be at least 1, got %g", s.MinImprovementRatio)
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be between 0 and 1, got %g", s.MinConfidence)
	}
	return nil
}
