package expand

import (
	"context"
	"fmt"
	"testing"

	"github.com/objectql/odata/internal/query"
	"github.com/objectql/odata/provider"
)

// fakeStore serves records from an in-memory fixture and records the
// queries it receives.
type fakeStore struct {
	records map[string][]provider.Record
	queries []*provider.Query
}

func (s *fakeStore) Find(_ context.Context, object string, q *provider.Query) ([]provider.Record, error) {
	s.queries = append(s.queries, q)

	wanted := make(map[string]struct{})
	if q != nil && q.Filter != nil {
		collectInValues(q.Filter, wanted)
	}

	var result []provider.Record
	for _, record := range s.records[object] {
		if _, ok := wanted[fmt.Sprint(record["id"])]; ok {
			// Copy so in-place expansion does not mutate the fixture.
			clone := provider.Record{}
			for k, v := range record {
				clone[k] = v
			}
			result = append(result, clone)
		}
	}
	return result, nil
}

func collectInValues(f *provider.FilterExpression, into map[string]struct{}) {
	switch f.Kind {
	case provider.KindComparison:
		if f.Operator == provider.OpIn {
			if values, ok := f.Value.([]interface{}); ok {
				for _, v := range values {
					into[fmt.Sprint(v)] = struct{}{}
				}
			}
		}
	case provider.KindLogical, provider.KindNot:
		for _, op := range f.Operands {
			collectInValues(op, into)
		}
	}
}

func (s *fakeStore) Get(context.Context, string, string) (provider.Record, error) {
	return nil, provider.ErrRecordNotFound
}
func (s *fakeStore) Create(context.Context, string, provider.Record) (provider.Record, error) {
	return nil, nil
}
func (s *fakeStore) Update(context.Context, string, string, provider.Record) (provider.Record, error) {
	return nil, nil
}
func (s *fakeStore) Delete(context.Context, string, string) error { return nil }
func (s *fakeStore) Count(context.Context, string, *provider.FilterExpression) (int64, error) {
	return 0, nil
}

type fakeRegistry struct {
	objects map[string]*provider.ObjectMetadata
}

func (r *fakeRegistry) ListObjectTypes() []string {
	names := make([]string, 0, len(r.objects))
	for name := range r.objects {
		names = append(names, name)
	}
	return names
}

func (r *fakeRegistry) GetObjectMetadata(name string) (*provider.ObjectMetadata, error) {
	meta, ok := r.objects[name]
	if !ok {
		return nil, fmt.Errorf("object type %q not registered", name)
	}
	return meta, nil
}

// categoryFixture builds a three-level chain: products -> categories ->
// groups, where categories also point at their parent group.
func categoryFixture() (*fakeStore, *fakeRegistry) {
	store := &fakeStore{
		records: map[string][]provider.Record{
			"categories": {
				{"id": "c1", "name": "Audio", "group": "g1"},
				{"id": "c2", "name": "Video", "group": "g1"},
			},
			"groups": {
				{"id": "g1", "name": "Media", "group": "g1"},
			},
		},
	}
	registry := &fakeRegistry{
		objects: map[string]*provider.ObjectMetadata{
			"products": {
				Name: "products",
				Fields: []provider.FieldMetadata{
					{Name: "name", Type: provider.FieldTypeText},
					{Name: "category", Type: provider.FieldTypeLookup, RelatedObject: "categories"},
				},
			},
			"categories": {
				Name: "categories",
				Fields: []provider.FieldMetadata{
					{Name: "name", Type: provider.FieldTypeText},
					{Name: "group", Type: provider.FieldTypeLookup, RelatedObject: "groups"},
				},
			},
			"groups": {
				Name: "groups",
				Fields: []provider.FieldMetadata{
					{Name: "name", Type: provider.FieldTypeText},
					// Self-referencing lookup so depth-limit tests can
					// build arbitrarily deep expand chains.
					{Name: "group", Type: provider.FieldTypeLookup, RelatedObject: "groups"},
				},
			},
		},
	}
	return store, registry
}

func TestExpandEmbedsRelatedRecords(t *testing.T) {
	store, registry := categoryFixture()
	expander := New(store, registry, 3, nil)

	records := []provider.Record{
		{"id": "p1", "name": "Speaker", "category": "c1"},
		{"id": "p2", "name": "Camera", "category": "c2"},
		{"id": "p3", "name": "Loose part", "category": nil},
	}

	expands, err := query.ParseExpand("category")
	if err != nil {
		t.Fatalf("ParseExpand failed: %v", err)
	}

	if err := expander.Expand(context.Background(), "products", records, expands, 0); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	embedded, ok := records[0]["category"].(provider.Record)
	if !ok {
		t.Fatalf("Expected embedded record, got %T", records[0]["category"])
	}
	if embedded["name"] != "Audio" {
		t.Errorf("Expected category 'Audio', got %v", embedded["name"])
	}
	if records[2]["category"] != nil {
		t.Errorf("Expected nil foreign key left untouched, got %v", records[2]["category"])
	}
}

// TestExpandDepthLimit checks that with maxDepth=2 a three-level nested
// expand stops at the second level and the deepest records keep their
// unexpanded scalar foreign keys.
func TestExpandDepthLimit(t *testing.T) {
	store, registry := categoryFixture()
	expander := New(store, registry, 2, nil)

	records := []provider.Record{
		{"id": "p1", "name": "Speaker", "category": "c1"},
	}

	expands, err := query.ParseExpand("category($expand=group($expand=group))")
	if err != nil {
		t.Fatalf("ParseExpand failed: %v", err)
	}

	if err := expander.Expand(context.Background(), "products", records, expands, 0); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	category, ok := records[0]["category"].(provider.Record)
	if !ok {
		t.Fatalf("Expected first level expanded, got %T", records[0]["category"])
	}
	group, ok := category["group"].(provider.Record)
	if !ok {
		t.Fatalf("Expected second level expanded, got %T", category["group"])
	}
	if _, isRecord := group["group"].(provider.Record); isRecord {
		t.Error("Expected expansion to stop at maxDepth; third level must stay scalar")
	}
}

func TestExpandSkipsNonRelationshipFields(t *testing.T) {
	store, registry := categoryFixture()
	expander := New(store, registry, 3, nil)

	records := []provider.Record{
		{"id": "p1", "name": "Speaker", "category": "c1"},
	}

	expands, err := query.ParseExpand("name,unknown_field")
	if err != nil {
		t.Fatalf("ParseExpand failed: %v", err)
	}

	if err := expander.Expand(context.Background(), "products", records, expands, 0); err != nil {
		t.Fatalf("Expected silent skip, got error: %v", err)
	}
	if records[0]["name"] != "Speaker" {
		t.Errorf("Expected non-relationship field untouched, got %v", records[0]["name"])
	}
	if len(store.queries) != 0 {
		t.Errorf("Expected no store queries for skipped fields, got %d", len(store.queries))
	}
}

func TestExpandNestedFilterMergedIntoQuery(t *testing.T) {
	store, registry := categoryFixture()
	expander := New(store, registry, 3, nil)

	records := []provider.Record{
		{"id": "p1", "category": "c1"},
		{"id": "p2", "category": "c2"},
	}

	expands, err := query.ParseExpand("category($filter=name eq 'Audio';$select=name)")
	if err != nil {
		t.Fatalf("ParseExpand failed: %v", err)
	}

	if err := expander.Expand(context.Background(), "products", records, expands, 0); err != nil {
		t.Fatalf("Expand failed: %v", err)
	}

	if len(store.queries) != 1 {
		t.Fatalf("Expected 1 related-record query, got %d", len(store.queries))
	}
	q := store.queries[0]
	if q.Filter == nil || q.Filter.Kind != provider.KindLogical || q.Filter.Logical != provider.LogicalAnd {
		t.Errorf("Expected id-membership AND nested filter, got %+v", q.Filter)
	}
	if !contains(q.Fields, "id") {
		t.Errorf("Expected id appended to projected fields, got %v", q.Fields)
	}
}
