// Package provider defines the capability boundary between the OData
// protocol engine and the generic record store it translates requests
// against. Implementations live outside the engine (see providers/memory
// and providers/gormstore for reference implementations); the engine
// itself never inspects a collaborator beyond these interfaces.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Record is a single schemaless record as returned by a RecordStore.
// The engine treats records as opaque apart from the "id" field and the
// relationship fields named in object metadata.
type Record = map[string]interface{}

// ErrRecordNotFound indicates the requested record does not exist.
// Store implementations must return it (or wrap it) from Get, Update and
// Delete so the engine can map it to HTTP 404.
var ErrRecordNotFound = errors.New("provider: record not found")

// StoreError is a structured error a RecordStore can return to convey a
// machine-readable failure class. The engine's error mapper inspects the
// Code field to pick the closest OData error code.
type StoreError struct {
	// Code classifies the failure, e.g. "validation_failed",
	// "permission_denied", "database/constraint".
	Code string

	// Message is a human-readable description.
	Message string

	// Err is the wrapped underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap supports errors.Is and errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Query is the generic query descriptor the engine hands to a RecordStore.
// Top and Skip are non-negative when present.
type Query struct {
	// Filter restricts the result set; nil means no restriction.
	Filter *FilterExpression

	// Fields limits the returned fields; empty means all fields.
	// Stores must always include the "id" field in projected results.
	Fields []string

	// OrderBy lists sort clauses in priority order.
	OrderBy []OrderByItem

	// Top limits the number of records returned.
	Top *int

	// Skip drops the first n records from the ordered result.
	Skip *int

	// Search is a free-text term. It is only populated when full-text
	// search is enabled in the service configuration; how it is matched
	// is up to the store.
	Search string
}

// OrderByItem is a single sort clause.
type OrderByItem struct {
	Property   string
	Descending bool
}

// RecordStore is the data-access capability the engine requires.
// Implementations must be safe for concurrent calls from multiple
// in-flight requests; the engine holds no locks and performs no caching.
type RecordStore interface {
	// Find returns the records of the named object type matching q.
	Find(ctx context.Context, object string, q *Query) ([]Record, error)

	// Get returns a single record by id, or ErrRecordNotFound.
	Get(ctx context.Context, object string, id string) (Record, error)

	// Create stores a new record and returns it with its assigned id.
	Create(ctx context.Context, object string, data Record) (Record, error)

	// Update modifies an existing record and returns the updated state,
	// or ErrRecordNotFound.
	Update(ctx context.Context, object string, id string, data Record) (Record, error)

	// Delete removes a record, or returns ErrRecordNotFound.
	Delete(ctx context.Context, object string, id string) error

	// Count returns the number of records matching filter, ignoring any
	// paging. A nil filter counts all records.
	Count(ctx context.Context, object string, filter *FilterExpression) (int64, error)
}

// SchemaRegistry is the metadata capability the engine requires.
type SchemaRegistry interface {
	// ListObjectTypes returns the registered object type names in a
	// stable order.
	ListObjectTypes() []string

	// GetObjectMetadata returns the metadata for a named object type.
	GetObjectMetadata(name string) (*ObjectMetadata, error)
}
