package errors

// Error codes. Standard classes follow the PostgreSQL SQLSTATE appendix:
// https://www.postgresql.org/docs/current/errcodes-appendix.html

// Class 08 - Connection Exception
const (
	ConnectionFailure = "08006"
)

// Class 0A - Feature Not Supported
const (
	FeatureNotSupported = "0A000"
)

// Class 42 - Syntax Error or Access Rule Violation
const (
	SyntaxError = "42601"
)

// Class 54 - Program Limit Exceeded
const (
	StatementTooComplex = "54001"
)

// Class 57 - Operator Intervention
const (
	QueryCanceled = "57014"
)

// Class 58 - System Error
const (
	UndefinedFile = "58P01"
)

// Class F0 - Configuration File Error
const (
	ConfigFileError = "F0000"
)

// Class PV - Plan Validation
const (
	RuleDivergence = "PV001"
	RuleContract   = "PV002"
	InvalidRule    = "PV003"
	InvalidPlan    = "PV004"
)

// Class XX - Internal Error
const (
	InternalError = "XX000"
)
