package query

import "fmt"

// Error codes attached to QueryError values. They surface verbatim as the
// "code" of the OData error envelope, so handlers and the error mapper
// must pass them through unmodified.
const (
	CodeInvalidQuery   = "InvalidQuery"
	CodeInvalidFilter  = "InvalidFilter"
	CodeInvalidOrderBy = "InvalidOrderBy"
	CodeInvalidExpand  = "InvalidExpand"
	CodeInvalidSelect  = "InvalidSelect"
)

// QueryError is the dedicated error type produced by the query-option and
// filter parsers. The error mapper recognizes it and preserves its code,
// target and details instead of reclassifying it.
type QueryError struct {
	// Code is one of the CodeInvalid* constants.
	Code string

	// Message names the offending construct.
	Message string

	// Target identifies the query option that failed, e.g. "$filter".
	Target string

	// Details carries additional per-construct messages.
	Details []string
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Target, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidFilter(format string, args ...interface{}) *QueryError {
	return &QueryError{
		Code:    CodeInvalidFilter,
		Target:  "$filter",
		Message: fmt.Sprintf(format, args...),
	}
}

func invalidQuery(target, format string, args ...interface{}) *QueryError {
	return &QueryError{
		Code:    CodeInvalidQuery,
		Target:  target,
		Message: fmt.Sprintf(format, args...),
	}
}
