package compare

import (
	"fmt"
	"strings"
)

// Mode selects how strict a comparison is. Later modes tolerate
// everything earlier modes tolerate.
type Mode int

// Comparison modes.
const (
	// Strict requires an exact match after canonicalization, including
	// output column order and aliases.
	Strict Mode = iota
	// Relaxed ignores alias names and the order of output columns.
	Relaxed
	// Heuristic also accepts plans whose only differences are in
	// unrecognized constructs, with confidence below 1.
	Heuristic
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Relaxed:
		return "relaxed"
	case Heuristic:
		return "heuristic"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses a mode name. Matching is case-insensitive.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return Strict, nil
	case "relaxed":
		return Relaxed, nil
	case "heuristic":
		return Heuristic, nil
	}
	return Strict, fmt.Errorf("unknown validation mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
