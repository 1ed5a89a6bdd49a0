package odata

import "github.com/objectql/odata/provider"

// Aliases for the provider capability types, so consumers embedding the
// service only need this package on their import path. Store
// implementers work against the provider package directly.
type (
	// Record is a single entity as a field map.
	Record = provider.Record

	// RecordStore is the data access capability the service requires.
	RecordStore = provider.RecordStore

	// SchemaRegistry is the metadata capability the service requires.
	SchemaRegistry = provider.SchemaRegistry

	// StoreError carries a classified error code from a record store.
	StoreError = provider.StoreError
)

// ErrRecordNotFound is returned by record stores for missing records
// and maps to a 404 response.
var ErrRecordNotFound = provider.ErrRecordNotFound
