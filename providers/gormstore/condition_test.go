package gormstore

import (
	"testing"

	"github.com/objectql/odata/internal/query"
	"github.com/objectql/odata/provider"
	"github.com/shopspring/decimal"
)

func mustParse(t *testing.T, filter string) *provider.FilterExpression {
	t.Helper()
	expr, err := query.ParseFilter(filter)
	if err != nil {
		t.Fatalf("parsing filter %q: %v", filter, err)
	}
	return expr
}

func TestBuildConditionComparisons(t *testing.T) {
	tests := []struct {
		name     string
		filter   string
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:     "eq string",
			filter:   "name eq 'Widget'",
			wantSQL:  "name = ?",
			wantArgs: []interface{}{"Widget"},
		},
		{
			name:     "ne",
			filter:   "status ne 'closed'",
			wantSQL:  "status <> ?",
			wantArgs: []interface{}{"closed"},
		},
		{
			name:     "gt number",
			filter:   "price gt 100",
			wantSQL:  "price > ?",
			wantArgs: []interface{}{decimal.RequireFromString("100")},
		},
		{
			name:     "le decimal",
			filter:   "price le 99.95",
			wantSQL:  "price <= ?",
			wantArgs: []interface{}{decimal.RequireFromString("99.95")},
		},
		{
			name:     "eq bool",
			filter:   "active eq true",
			wantSQL:  "active = ?",
			wantArgs: []interface{}{true},
		},
		{
			name:    "eq null",
			filter:  "deleted_at eq null",
			wantSQL: "deleted_at IS NULL",
		},
		{
			name:    "ne null",
			filter:  "deleted_at ne null",
			wantSQL: "deleted_at IS NOT NULL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := buildCondition(mustParse(t, tt.filter))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("expected SQL %q, got %q", tt.wantSQL, sql)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("expected %d args, got %d", len(tt.wantArgs), len(args))
			}
			for i, want := range tt.wantArgs {
				if wantDec, ok := want.(decimal.Decimal); ok {
					got, ok := args[i].(decimal.Decimal)
					if !ok || !got.Equal(wantDec) {
						t.Errorf("arg %d: expected %v, got %v", i, want, args[i])
					}
					continue
				}
				if args[i] != want {
					t.Errorf("arg %d: expected %v, got %v", i, want, args[i])
				}
			}
		})
	}
}

func TestBuildConditionLogical(t *testing.T) {
	sql, args, err := buildCondition(mustParse(t, "name eq 'a' and price gt 1 or active eq true"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// AND binds looser than OR, so the OR group nests inside the AND.
	want := "(name = ?) AND ((price > ?) OR (active = ?))"
	if sql != want {
		t.Errorf("expected SQL %q, got %q", want, sql)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}
}

func TestBuildConditionNot(t *testing.T) {
	sql, _, err := buildCondition(mustParse(t, "not name eq 'a'"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "NOT (name = ?)" {
		t.Errorf("unexpected SQL %q", sql)
	}
}

func TestBuildConditionFunctions(t *testing.T) {
	tests := []struct {
		filter      string
		wantSQL     string
		wantPattern string
	}{
		{"contains(name,'wid')", "name LIKE ? ESCAPE '\\'", "%wid%"},
		{"startswith(name,'wid')", "name LIKE ? ESCAPE '\\'", "wid%"},
		{"endswith(name,'get')", "name LIKE ? ESCAPE '\\'", "%get"},
		{"substringof(name,'dge')", "name LIKE ? ESCAPE '\\'", "%dge%"},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			sql, args, err := buildCondition(mustParse(t, tt.filter))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("expected SQL %q, got %q", tt.wantSQL, sql)
			}
			if len(args) != 1 || args[0] != tt.wantPattern {
				t.Errorf("expected pattern %q, got %v", tt.wantPattern, args)
			}
		})
	}
}

func TestBuildConditionEscapesLikeWildcards(t *testing.T) {
	_, args, err := buildCondition(mustParse(t, "contains(name,'50%_off')"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if args[0] != `%50\%\_off%` {
		t.Errorf("wildcards must be escaped, got %v", args[0])
	}
}

func TestBuildConditionInOperator(t *testing.T) {
	expr := provider.Comparison("id", provider.OpIn, []interface{}{"a", "b"})
	sql, args, err := buildCondition(expr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sql != "id IN ?" {
		t.Errorf("unexpected SQL %q", sql)
	}
	if len(args) != 1 {
		t.Fatalf("expected the value list as a single arg, got %d args", len(args))
	}
	values := args[0].([]interface{})
	if len(values) != 2 || values[0] != "a" || values[1] != "b" {
		t.Errorf("unexpected values %v", values)
	}
}

func TestBuildConditionRejectsHostileFieldName(t *testing.T) {
	expr := provider.Comparison("name; DROP TABLE users--", provider.OpEqual, "x")
	if _, _, err := buildCondition(expr); err == nil {
		t.Fatal("expected error for hostile field name")
	}
}

func TestBuildSearchCondition(t *testing.T) {
	meta := &provider.ObjectMetadata{
		Name: "products",
		Fields: []provider.FieldMetadata{
			{Name: "name", Type: provider.FieldTypeText},
			{Name: "description", Type: provider.FieldTypeTextarea},
			{Name: "price", Type: provider.FieldTypeCurrency},
		},
	}

	sql, args := buildSearchCondition(meta, "drill")
	want := "name LIKE ? ESCAPE '\\' OR description LIKE ? ESCAPE '\\'"
	if sql != want {
		t.Errorf("expected SQL %q, got %q", want, sql)
	}
	if len(args) != 2 || args[0] != "%drill%" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestBuildSearchConditionNoTextualFields(t *testing.T) {
	meta := &provider.ObjectMetadata{
		Name:   "metrics",
		Fields: []provider.FieldMetadata{{Name: "value", Type: provider.FieldTypeNumber}},
	}

	sql, args := buildSearchCondition(meta, "anything")
	if sql != "1 = 0" || args != nil {
		t.Errorf("expected no-match condition, got %q %v", sql, args)
	}
}

func TestSelectColumnsAddsID(t *testing.T) {
	columns, err := selectColumns([]string{"name", "price"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(columns) != 3 || columns[2] != "id" {
		t.Errorf("expected id appended, got %v", columns)
	}

	columns, err = selectColumns([]string{"id", "name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(columns) != 2 {
		t.Errorf("id must not be duplicated, got %v", columns)
	}
}
