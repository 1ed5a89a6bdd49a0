package memory

import (
	"context"
	"testing"

	"github.com/objectql/odata/internal/query"
	"github.com/objectql/odata/provider"
	"github.com/shopspring/decimal"
)

func testRegistry() *Registry {
	return NewRegistry(provider.ObjectMetadata{
		Name: "products",
		Fields: []provider.FieldMetadata{
			{Name: "name", Type: provider.FieldTypeText},
			{Name: "description", Type: provider.FieldTypeTextarea},
			{Name: "price", Type: provider.FieldTypeCurrency},
			{Name: "active", Type: provider.FieldTypeBoolean},
		},
	})
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(testRegistry())
	err := store.Seed("products",
		provider.Record{"id": "p1", "name": "Anvil", "description": "Heavy duty anvil", "price": 99.0, "active": true},
		provider.Record{"id": "p2", "name": "Rocket", "description": "Fast delivery rocket", "price": 250.5, "active": false},
		provider.Record{"id": "p3", "name": "Magnet", "description": "Industrial magnet", "price": 12.25, "active": true},
	)
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}
	return store
}

func ids(records []provider.Record) []string {
	result := make([]string, len(records))
	for i, r := range records {
		result[i] = r["id"].(string)
	}
	return result
}

func TestFindFilterComparison(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{"eq string", "name eq 'Anvil'", []string{"p1"}},
		{"ne string", "name ne 'Anvil'", []string{"p2", "p3"}},
		{"gt number", "price gt 50", []string{"p1", "p2"}},
		{"le number", "price le 99", []string{"p1", "p3"}},
		{"eq bool", "active eq true", []string{"p1", "p3"}},
		{"decimal literal", "price eq 12.25", []string{"p3"}},
		{"and", "active eq true and price lt 50", []string{"p3"}},
		{"or", "name eq 'Anvil' or name eq 'Rocket'", []string{"p1", "p2"}},
		{"not", "not name eq 'Anvil'", []string{"p2", "p3"}},
		{"contains", "contains(description,'magnet')", []string{"p3"}},
		{"startswith", "startswith(name,'Ro')", []string{"p2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := query.ParseFilter(tt.filter)
			if err != nil {
				t.Fatalf("parsing filter: %v", err)
			}
			records, err := store.Find(ctx, "products", &provider.Query{Filter: filter})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := ids(records)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestFindFilterNull(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	if err := store.Seed("products", provider.Record{"id": "p4", "name": "Ghost"}); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	filter, err := query.ParseFilter("price eq null")
	if err != nil {
		t.Fatalf("parsing filter: %v", err)
	}
	records, err := store.Find(ctx, "products", &provider.Query{Filter: filter})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(records); len(got) != 1 || got[0] != "p4" {
		t.Errorf("expected [p4], got %v", got)
	}
}

func TestFindFilterInOperator(t *testing.T) {
	store := seededStore(t)

	filter := provider.Comparison("id", provider.OpIn, []interface{}{"p1", "p3"})
	records, err := store.Find(context.Background(), "products", &provider.Query{Filter: filter})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(records); len(got) != 2 || got[0] != "p1" || got[1] != "p3" {
		t.Errorf("expected [p1 p3], got %v", got)
	}
}

func TestFindOrderByAndPaging(t *testing.T) {
	store := seededStore(t)
	one := 1

	records, err := store.Find(context.Background(), "products", &provider.Query{
		OrderBy: []provider.OrderByItem{{Property: "price", Descending: true}},
		Skip:    &one,
		Top:     &one,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(records); len(got) != 1 || got[0] != "p1" {
		t.Errorf("expected [p1] (second highest price), got %v", got)
	}
}

func TestFindProjectionKeepsID(t *testing.T) {
	store := seededStore(t)

	records, err := store.Find(context.Background(), "products", &provider.Query{
		Fields: []string{"name"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, record := range records {
		if record["id"] == nil || record["name"] == nil {
			t.Errorf("projection must keep id and name: %v", record)
		}
		if _, ok := record["price"]; ok {
			t.Errorf("price should be projected away: %v", record)
		}
	}
}

func TestFindSearchTextualFieldsOnly(t *testing.T) {
	store := seededStore(t)

	records, err := store.Find(context.Background(), "products", &provider.Query{Search: "rocket"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(records); len(got) != 1 || got[0] != "p2" {
		t.Errorf("expected [p2], got %v", got)
	}

	// Numbers are not searched even when their digits match.
	records, err = store.Find(context.Background(), "products", &provider.Query{Search: "250.5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("search should not match numeric fields, got %v", ids(records))
	}
}

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	store := seededStore(t)

	created, err := store.Create(context.Background(), "products", provider.Record{"name": "Spring"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created["id"] == "" || created["id"] == nil {
		t.Error("expected a generated id")
	}
	if created["updated_at"] == nil {
		t.Error("expected an updated_at timestamp")
	}
}

func TestCreateDuplicateID(t *testing.T) {
	store := seededStore(t)

	_, err := store.Create(context.Background(), "products", provider.Record{"id": "p1", "name": "Dup"})
	if err == nil {
		t.Fatal("expected error for duplicate id")
	}
	serr, ok := err.(*provider.StoreError)
	if !ok || serr.Code != "validation_error" {
		t.Errorf("expected validation_error store error, got %v", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	store := seededStore(t)

	updated, err := store.Update(context.Background(), "products", "p1", provider.Record{"price": 120.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated["price"] != 120.0 {
		t.Errorf("price not updated: %v", updated["price"])
	}
	if updated["name"] != "Anvil" {
		t.Errorf("unrelated field lost on merge: %v", updated["name"])
	}
}

func TestUpdateNotFound(t *testing.T) {
	store := seededStore(t)

	if _, err := store.Update(context.Background(), "products", "missing", provider.Record{}); err != provider.ErrRecordNotFound {
		t.Errorf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestDeleteRemovesFromOrder(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	if err := store.Delete(ctx, "products", "p2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Delete(ctx, "products", "p2"); err != provider.ErrRecordNotFound {
		t.Errorf("expected ErrRecordNotFound on second delete, got %v", err)
	}

	records, err := store.Find(ctx, "products", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(records); len(got) != 2 || got[0] != "p1" || got[1] != "p3" {
		t.Errorf("expected [p1 p3], got %v", got)
	}
}

func TestCountHonorsFilter(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	total, err := store.Count(ctx, "products", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3, got %d", total)
	}

	filter := provider.Comparison("active", provider.OpEqual, true)
	active, err := store.Count(ctx, "products", filter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if active != 2 {
		t.Errorf("expected 2, got %d", active)
	}
}

func TestFindResultsAreCopies(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	records, err := store.Find(ctx, "products", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records[0]["name"] = "mutated"

	fresh, err := store.Get(ctx, "products", records[0]["id"].(string))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fresh["name"] == "mutated" {
		t.Error("store state must not alias returned records")
	}
}

func TestCompareDecimalAgainstFloat(t *testing.T) {
	cmp, ok := compareValues(12.25, decimal.RequireFromString("12.25"))
	if !ok || cmp != 0 {
		t.Errorf("expected equal comparison, got cmp=%d ok=%v", cmp, ok)
	}
}
