// Package expand resolves $expand options by fetching related records
// and embedding them into their parents, recursively up to a configured
// depth.
package expand

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/objectql/odata/internal/query"
	"github.com/objectql/odata/provider"
)

// DefaultMaxDepth bounds expansion when no depth is configured. Depth
// limiting is the only safeguard against relationship cycles; cycles are
// not detected.
const DefaultMaxDepth = 3

// Expander resolves expand specs against the record store.
type Expander struct {
	store    provider.RecordStore
	registry provider.SchemaRegistry
	maxDepth int
	logger   *slog.Logger
}

// New creates an Expander. A maxDepth of zero or less falls back to
// DefaultMaxDepth.
func New(store provider.RecordStore, registry provider.SchemaRegistry, maxDepth int, logger *slog.Logger) *Expander {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{
		store:    store,
		registry: registry,
		maxDepth: maxDepth,
		logger:   logger,
	}
}

// Expand mutates records in place, replacing relationship foreign keys
// with the embedded related record for every expand spec that names a
// relationship field. Specs naming fields that are not relationship
// typed are skipped silently. depth is the current recursion depth;
// callers pass 0.
func (e *Expander) Expand(ctx context.Context, object string, records []provider.Record, expands []query.ExpandOption, depth int) error {
	if depth >= e.maxDepth || len(records) == 0 || len(expands) == 0 {
		return nil
	}

	meta, err := e.registry.GetObjectMetadata(object)
	if err != nil {
		return fmt.Errorf("expand: %w", err)
	}

	for i := range expands {
		if err := e.expandOne(ctx, meta, records, &expands[i], depth); err != nil {
			return err
		}
	}

	return nil
}

func (e *Expander) expandOne(ctx context.Context, meta *provider.ObjectMetadata, records []provider.Record, opt *query.ExpandOption, depth int) error {
	field := meta.Field(opt.NavigationProperty)
	if field == nil || !field.Type.IsRelationship() {
		// Unsupported paths are skipped rather than erroring.
		e.logger.Debug("Skipping expand of non-relationship field",
			"object", meta.Name, "field", opt.NavigationProperty)
		return nil
	}

	ids := collectForeignKeys(records, opt.NavigationProperty)
	if len(ids) == 0 {
		return nil
	}

	related, err := e.store.Find(ctx, field.RelatedObject, relatedQuery(ids, opt))
	if err != nil {
		return fmt.Errorf("expand %s: %w", opt.NavigationProperty, err)
	}

	if len(opt.Expand) > 0 {
		if err := e.Expand(ctx, field.RelatedObject, related, opt.Expand, depth+1); err != nil {
			return err
		}
	}

	byID := make(map[string]provider.Record, len(related))
	for _, record := range related {
		if id, ok := record["id"]; ok && id != nil {
			byID[fmt.Sprint(id)] = record
		}
	}

	// The navigation property is overwritten in place: the scalar
	// foreign key becomes the embedded object. Keys with no matching
	// related record (filtered out or deleted) are left untouched.
	for _, record := range records {
		value := record[opt.NavigationProperty]
		if value == nil {
			continue
		}
		if expanded, ok := byID[fmt.Sprint(value)]; ok {
			record[opt.NavigationProperty] = expanded
		}
	}

	return nil
}

// collectForeignKeys gathers the distinct non-null values of the
// relationship field across all input records.
func collectForeignKeys(records []provider.Record, field string) []interface{} {
	seen := make(map[string]struct{})
	var ids []interface{}
	for _, record := range records {
		value := record[field]
		if value == nil {
			continue
		}
		key := fmt.Sprint(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ids = append(ids, value)
	}
	return ids
}

// relatedQuery builds the store query for the related records: the id
// membership filter plus any nested options from the expand spec.
func relatedQuery(ids []interface{}, opt *query.ExpandOption) *provider.Query {
	filter := provider.Comparison("id", provider.OpIn, ids)
	if opt.Filter != nil {
		filter = provider.Logical(provider.LogicalAnd, filter, opt.Filter)
	}

	fields := opt.Select
	if len(fields) > 0 && !contains(fields, "id") {
		// The id is needed to index related records back onto their
		// parents.
		fields = append(append([]string(nil), fields...), "id")
	}

	return &provider.Query{
		Filter:  filter,
		Fields:  fields,
		OrderBy: opt.OrderBy,
		Top:     opt.Top,
		Skip:    opt.Skip,
	}
}

func contains(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}
