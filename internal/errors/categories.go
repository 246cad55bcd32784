package errors

import "time"

// Category-specific error constructors

// Extraction errors
func ExtractionError(msg string, line, col int) *Error {
	return Newf(SyntaxError, "syntax error at line %d, column %d: %s", line, col, msg).
		WithPosition(col).
		WithWhere("extract")
}

func UnsupportedStatementError(statement string) *Error {
	return Newf(FeatureNotSupported, "%s is not supported", statement).
		WithWhere("extract").
		WithHint("Only SELECT queries can be extracted into a logical plan.")
}

// Canonicalization errors
func RuleDivergenceError(rounds int, detail string) *Error {
	return Newf(RuleDivergence, "canonicalization did not reach a fixpoint within %d rounds", rounds).
		WithDetail(detail).
		WithWhere("canonicalize")
}

func RuleContractError(rule string, detail string) *Error {
	return Newf(RuleContract, "rule %q returned an invalid plan", rule).
		WithDetail(detail).
		WithWhere("canonicalize")
}

func InvalidRuleError(rule string, reason string) *Error {
	return Newf(InvalidRule, "cannot register rule %q: %s", rule, reason).
		WithWhere("registry")
}

func InvalidPlanError(err error) *Error {
	return Newf(InvalidPlan, "invalid plan: %v", err).
		WithCause(err)
}

func DepthExceededError(depth, max int) *Error {
	return Newf(StatementTooComplex, "plan depth %d exceeds the limit of %d", depth, max).
		WithHint("Raise max_depth in the validator configuration.")
}

// Orchestration errors
func TimeoutError(after time.Duration) *Error {
	return Newf(QueryCanceled, "validation canceled after %s", after)
}

func ConfigError(path string, err error) *Error {
	return Newf(ConfigFileError, "invalid configuration file %s", path).
		WithDetail(err.Error()).
		WithCause(err)
}

func InputFileError(path string, err error) *Error {
	return Newf(UndefinedFile, "could not read %s", path).
		WithDetail(err.Error()).
		WithCause(err)
}

func CostEstimationError(err error) *Error {
	return New(ConnectionFailure, "cost estimation failed").
		WithDetail(err.Error()).
		WithCause(err)
}

func InternalErrorf(format string, args ...interface{}) *Error {
	return Newf(InternalError, format, args...)
}
