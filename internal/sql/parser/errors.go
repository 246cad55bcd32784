package parser

import "fmt"

// ParseError represents a parse error with position information
type ParseError struct {
	Msg    string
	Line   int
	Column int
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s at line %d, column %d", e.Msg, e.Line, e.Column)
}

// NewParseError creates a new parse error
func NewParseError(msg string, line, column int) *ParseError {
	return &ParseError{
		Msg:    msg,
		Line:   line,
		Column: column,
	}
}
