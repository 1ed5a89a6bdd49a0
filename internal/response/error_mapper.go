package response

import (
	"errors"
	"net/http"
	"strings"

	"github.com/objectql/odata/internal/query"
	"github.com/objectql/odata/provider"
)

// OData error codes used by the mapper. Query-layer codes (InvalidFilter
// and friends) come straight from the query package.
const (
	CodeBadRequest          = "BadRequest"
	CodeUnauthorized        = "Unauthorized"
	CodeForbidden           = "Forbidden"
	CodeNotFound            = "NotFound"
	CodeMethodNotAllowed    = "MethodNotAllowed"
	CodePreconditionFailed  = "PreconditionFailed"
	CodeFailedDependency    = "FailedDependency"
	CodeInternalServerError = "InternalServerError"
	CodeNotImplemented      = "NotImplemented"
)

// internalErrorMessage replaces store-internal messages that must not
// leak to clients.
const internalErrorMessage = "An internal server error occurred"

// MapError classifies an arbitrary collaborator error into an HTTP
// status and OData error document.
//
// Query-layer errors pass through unmodified, preserving their code,
// target and details. Store errors are classified by a small ordered set
// of heuristics over their code; database-prefixed codes additionally
// have their message suppressed. Anything unrecognized becomes a 500.
func MapError(err error) (int, *Error) {
	var qerr *query.QueryError
	if errors.As(err, &qerr) {
		odataErr := &Error{
			Code:    qerr.Code,
			Message: qerr.Message,
			Target:  qerr.Target,
		}
		for _, detail := range qerr.Details {
			odataErr.Details = append(odataErr.Details, ErrorDetail{Message: detail})
		}
		return http.StatusBadRequest, odataErr
	}

	if errors.Is(err, provider.ErrRecordNotFound) {
		return http.StatusNotFound, &Error{
			Code:    CodeNotFound,
			Message: "The requested entity does not exist",
		}
	}

	var serr *provider.StoreError
	if errors.As(err, &serr) {
		return mapStoreError(serr)
	}

	return http.StatusInternalServerError, &Error{
		Code:    CodeInternalServerError,
		Message: internalErrorMessage,
	}
}

func mapStoreError(serr *provider.StoreError) (int, *Error) {
	code := strings.ToLower(serr.Code)

	switch {
	case strings.Contains(code, "validation"):
		return http.StatusBadRequest, &Error{Code: CodeBadRequest, Message: serr.Message}
	case strings.Contains(code, "permission"), strings.Contains(code, "forbidden"):
		return http.StatusForbidden, &Error{Code: CodeForbidden, Message: serr.Message}
	case strings.Contains(code, "auth"):
		return http.StatusUnauthorized, &Error{Code: CodeUnauthorized, Message: serr.Message}
	case strings.Contains(code, "not_found"), strings.Contains(code, "notfound"):
		return http.StatusNotFound, &Error{Code: CodeNotFound, Message: serr.Message}
	case strings.HasPrefix(code, "database"):
		// Database-level details stay server-side.
		return http.StatusInternalServerError, &Error{
			Code:    CodeInternalServerError,
			Message: internalErrorMessage,
		}
	default:
		return http.StatusInternalServerError, &Error{
			Code:    CodeInternalServerError,
			Message: internalErrorMessage,
		}
	}
}

// WriteMappedError maps err and writes the resulting error document.
func WriteMappedError(w http.ResponseWriter, err error) error {
	status, odataErr := MapError(err)
	return WriteODataError(w, status, odataErr)
}
