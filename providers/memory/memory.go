// Package memory provides an in-memory record store and schema
// registry. It backs the development server and integration tests; it
// evaluates the full filter tree, ordering, paging and search in
// process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/objectql/odata/provider"
	"github.com/shopspring/decimal"
)

// Store is an in-memory RecordStore. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	registry provider.SchemaRegistry

	// records maps object type to id to record. order preserves
	// insertion order per object type so unsorted listings are stable.
	records map[string]map[string]provider.Record
	order   map[string][]string
}

// NewStore creates an empty store. The registry is consulted for
// textual fields during $search; it may be nil, disabling search.
func NewStore(registry provider.SchemaRegistry) *Store {
	return &Store{
		registry: registry,
		records:  make(map[string]map[string]provider.Record),
		order:    make(map[string][]string),
	}
}

// Seed inserts records without generating ids or timestamps. Records
// must carry an id field.
func (s *Store) Seed(object string, records ...provider.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		id, ok := record["id"].(string)
		if !ok || id == "" {
			return fmt.Errorf("memory: seed record for %q has no id", object)
		}
		s.insertLocked(object, id, cloneRecord(record))
	}
	return nil
}

func (s *Store) insertLocked(object string, id string, record provider.Record) {
	if s.records[object] == nil {
		s.records[object] = make(map[string]provider.Record)
	}
	if _, exists := s.records[object][id]; !exists {
		s.order[object] = append(s.order[object], id)
	}
	s.records[object][id] = record
}

// Find implements provider.RecordStore.
func (s *Store) Find(_ context.Context, object string, q *provider.Query) ([]provider.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []provider.Record
	for _, id := range s.order[object] {
		record := s.records[object][id]
		if q != nil && q.Filter != nil {
			match, err := evaluate(q.Filter, record)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		if q != nil && q.Search != "" && !s.matchesSearch(object, record, q.Search) {
			continue
		}
		result = append(result, cloneRecord(record))
	}

	if q != nil {
		sortRecords(result, q.OrderBy)
		result = applyPaging(result, q.Skip, q.Top)
		if len(q.Fields) > 0 {
			for i, record := range result {
				result[i] = projectRecord(record, q.Fields)
			}
		}
	}
	return result, nil
}

// Get implements provider.RecordStore.
func (s *Store) Get(_ context.Context, object string, id string) (provider.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[object][id]
	if !ok {
		return nil, provider.ErrRecordNotFound
	}
	return cloneRecord(record), nil
}

// Create implements provider.RecordStore. A missing id is generated;
// updated_at is stamped so ETags take the timestamp path.
func (s *Store) Create(_ context.Context, object string, data provider.Record) (provider.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := cloneRecord(data)
	id, ok := record["id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		record["id"] = id
	}
	if _, exists := s.records[object][id]; exists {
		return nil, &provider.StoreError{
			Code:    "validation_error",
			Message: fmt.Sprintf("record %q already exists", id),
		}
	}
	record["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	s.insertLocked(object, id, record)
	return cloneRecord(record), nil
}

// Update implements provider.RecordStore with merge semantics.
func (s *Store) Update(_ context.Context, object string, id string, data provider.Record) (provider.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[object][id]
	if !ok {
		return nil, provider.ErrRecordNotFound
	}
	for key, value := range data {
		if key == "id" {
			continue
		}
		record[key] = value
	}
	record["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	return cloneRecord(record), nil
}

// Delete implements provider.RecordStore.
func (s *Store) Delete(_ context.Context, object string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[object][id]; !ok {
		return provider.ErrRecordNotFound
	}
	delete(s.records[object], id)
	ids := s.order[object]
	for i, existing := range ids {
		if existing == id {
			s.order[object] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Count implements provider.RecordStore.
func (s *Store) Count(_ context.Context, object string, filter *provider.FilterExpression) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records[object] {
		if filter != nil {
			match, err := evaluate(filter, record)
			if err != nil {
				return 0, err
			}
			if !match {
				continue
			}
		}
		count++
	}
	return count, nil
}

func (s *Store) matchesSearch(object string, record provider.Record, term string) bool {
	if s.registry == nil {
		return false
	}
	meta, err := s.registry.GetObjectMetadata(object)
	if err != nil {
		return false
	}
	needle := strings.ToLower(term)
	for _, field := range meta.Fields {
		if !field.Type.IsTextual() {
			continue
		}
		if value, ok := record[field.Name].(string); ok {
			if strings.Contains(strings.ToLower(value), needle) {
				return true
			}
		}
	}
	return false
}

func cloneRecord(record provider.Record) provider.Record {
	clone := make(provider.Record, len(record))
	for key, value := range record {
		clone[key] = value
	}
	return clone
}

// projectRecord keeps the requested fields plus id.
func projectRecord(record provider.Record, fields []string) provider.Record {
	projected := make(provider.Record, len(fields)+1)
	if id, ok := record["id"]; ok {
		projected["id"] = id
	}
	for _, field := range fields {
		if value, ok := record[field]; ok {
			projected[field] = value
		}
	}
	return projected
}

func applyPaging(records []provider.Record, skip, top *int) []provider.Record {
	if skip != nil {
		if *skip >= len(records) {
			return nil
		}
		records = records[*skip:]
	}
	if top != nil && *top < len(records) {
		records = records[:*top]
	}
	return records
}

func sortRecords(records []provider.Record, orderBy []provider.OrderByItem) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, item := range orderBy {
			cmp, ok := compareValues(records[i][item.Property], records[j][item.Property])
			if !ok || cmp == 0 {
				continue
			}
			if item.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// evaluate applies a filter tree to a record.
func evaluate(expr *provider.FilterExpression, record provider.Record) (bool, error) {
	switch expr.Kind {
	case provider.KindComparison:
		return evaluateComparison(expr, record)
	case provider.KindLogical:
		return evaluateLogical(expr, record)
	case provider.KindNot:
		inner, err := evaluate(expr.Operands[0], record)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case provider.KindFunction:
		return evaluateFunction(expr, record), nil
	}
	return false, fmt.Errorf("memory: unsupported filter node kind %d", expr.Kind)
}

func evaluateLogical(expr *provider.FilterExpression, record provider.Record) (bool, error) {
	switch expr.Logical {
	case provider.LogicalAnd:
		for _, operand := range expr.Operands {
			match, err := evaluate(operand, record)
			if err != nil || !match {
				return false, err
			}
		}
		return true, nil
	case provider.LogicalOr:
		for _, operand := range expr.Operands {
			match, err := evaluate(operand, record)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("memory: unsupported logical operator %q", expr.Logical)
}

func evaluateComparison(expr *provider.FilterExpression, record provider.Record) (bool, error) {
	value, present := record[expr.Property]

	if expr.Operator == provider.OpIn {
		candidates, ok := expr.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("memory: in operator requires a value list")
		}
		for _, candidate := range candidates {
			if fmt.Sprint(candidate) == fmt.Sprint(value) {
				return true, nil
			}
		}
		return false, nil
	}

	// null comparisons: eq null matches absent or nil values.
	if expr.Value == nil {
		isNull := !present || value == nil
		switch expr.Operator {
		case provider.OpEqual:
			return isNull, nil
		case provider.OpNotEqual:
			return !isNull, nil
		default:
			return false, nil
		}
	}
	if !present || value == nil {
		return expr.Operator == provider.OpNotEqual, nil
	}

	cmp, ok := compareValues(value, expr.Value)
	if !ok {
		return false, nil
	}
	switch expr.Operator {
	case provider.OpEqual:
		return cmp == 0, nil
	case provider.OpNotEqual:
		return cmp != 0, nil
	case provider.OpGreaterThan:
		return cmp > 0, nil
	case provider.OpGreaterThanOrEqual:
		return cmp >= 0, nil
	case provider.OpLessThan:
		return cmp < 0, nil
	case provider.OpLessThanOrEqual:
		return cmp <= 0, nil
	}
	return false, fmt.Errorf("memory: unsupported comparison operator %q", expr.Operator)
}

func evaluateFunction(expr *provider.FilterExpression, record provider.Record) bool {
	haystack, ok := record[expr.Property].(string)
	if !ok {
		return false
	}
	needle, ok := expr.Value.(string)
	if !ok {
		return false
	}
	switch expr.Function {
	case provider.FnContains, provider.FnSubstringOf:
		return strings.Contains(haystack, needle)
	case provider.FnStartsWith:
		return strings.HasPrefix(haystack, needle)
	case provider.FnEndsWith:
		return strings.HasSuffix(haystack, needle)
	}
	return false
}

// compareValues compares a record value against a literal. Numeric
// values go through decimal so JSON float64 fields compare exactly
// against parsed numeric literals; everything else compares as bool or
// string.
func compareValues(recordValue, literal interface{}) (int, bool) {
	if left, ok := toDecimal(recordValue); ok {
		if right, rok := toDecimal(literal); rok {
			return left.Cmp(right), true
		}
		return 0, false
	}

	switch right := literal.(type) {
	case bool:
		left, ok := recordValue.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case left == right:
			return 0, true
		case !left:
			return -1, true
		default:
			return 1, true
		}
	case string:
		left, ok := recordValue.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(left, right), true
	}
	return 0, false
}

func toDecimal(value interface{}) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case float64:
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	}
	return decimal.Decimal{}, false
}
