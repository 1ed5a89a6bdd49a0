// Package gormstore implements the record store on a relational
// database through GORM. Each object type maps to a table of the same
// name; records are read and written as field maps, so no Go struct per
// table is required.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/objectql/odata/provider"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is a RecordStore over a GORM database handle.
type Store struct {
	db       *gorm.DB
	registry provider.SchemaRegistry
	logger   *slog.Logger
}

// NewStore creates a store on an existing database handle.
func NewStore(db *gorm.DB, registry provider.SchemaRegistry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, registry: registry, logger: logger}
}

// OpenSQLite opens a SQLite-backed store. The dsn is a file path or
// ":memory:".
func OpenSQLite(dsn string, registry provider.SchemaRegistry, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: opening sqlite database: %w", err)
	}
	return NewStore(db, registry, logger), nil
}

// OpenPostgres opens a PostgreSQL-backed store.
func OpenPostgres(dsn string, registry provider.SchemaRegistry, logger *slog.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: opening postgres database: %w", err)
	}
	return NewStore(db, registry, logger), nil
}

// DB exposes the underlying handle for migrations and seeding.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Find implements provider.RecordStore.
func (s *Store) Find(ctx context.Context, object string, q *provider.Query) ([]provider.Record, error) {
	if err := validateIdentifier(object); err != nil {
		return nil, storeError("validation_object", err)
	}

	tx := s.db.WithContext(ctx).Table(object)
	tx, err := s.applyQuery(tx, object, q)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, databaseError(err)
	}

	records := make([]provider.Record, len(rows))
	for i, row := range rows {
		records[i] = provider.Record(row)
	}
	return records, nil
}

// Get implements provider.RecordStore.
func (s *Store) Get(ctx context.Context, object string, id string) (provider.Record, error) {
	if err := validateIdentifier(object); err != nil {
		return nil, storeError("validation_object", err)
	}

	var row map[string]interface{}
	err := s.db.WithContext(ctx).Table(object).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, provider.ErrRecordNotFound
	}
	if err != nil {
		return nil, databaseError(err)
	}
	return provider.Record(row), nil
}

// Create implements provider.RecordStore. A missing id is generated.
func (s *Store) Create(ctx context.Context, object string, data provider.Record) (provider.Record, error) {
	if err := validateIdentifier(object); err != nil {
		return nil, storeError("validation_object", err)
	}

	row := map[string]interface{}(data)
	id, ok := row["id"].(string)
	if !ok || id == "" {
		id = uuid.NewString()
		row = cloneRow(row)
		row["id"] = id
	}

	if err := s.db.WithContext(ctx).Table(object).Create(row).Error; err != nil {
		return nil, databaseError(err)
	}
	return s.Get(ctx, object, id)
}

// Update implements provider.RecordStore with merge semantics.
func (s *Store) Update(ctx context.Context, object string, id string, data provider.Record) (provider.Record, error) {
	if err := validateIdentifier(object); err != nil {
		return nil, storeError("validation_object", err)
	}

	updates := cloneRow(map[string]interface{}(data))
	delete(updates, "id")

	if len(updates) > 0 {
		result := s.db.WithContext(ctx).Table(object).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return nil, databaseError(result.Error)
		}
		if result.RowsAffected == 0 {
			// Updates matching zero rows is not an error in GORM;
			// distinguish a missing record explicitly.
			if _, err := s.Get(ctx, object, id); err != nil {
				return nil, err
			}
		}
	}
	return s.Get(ctx, object, id)
}

// Delete implements provider.RecordStore.
func (s *Store) Delete(ctx context.Context, object string, id string) error {
	if err := validateIdentifier(object); err != nil {
		return storeError("validation_object", err)
	}

	result := s.db.WithContext(ctx).Table(object).Where("id = ?", id).Delete(nil)
	if result.Error != nil {
		return databaseError(result.Error)
	}
	if result.RowsAffected == 0 {
		return provider.ErrRecordNotFound
	}
	return nil
}

// Count implements provider.RecordStore.
func (s *Store) Count(ctx context.Context, object string, filter *provider.FilterExpression) (int64, error) {
	if err := validateIdentifier(object); err != nil {
		return 0, storeError("validation_object", err)
	}

	tx := s.db.WithContext(ctx).Table(object)
	if filter != nil {
		condition, args, err := buildCondition(filter)
		if err != nil {
			return 0, storeError("validation_filter", err)
		}
		tx = tx.Where(condition, args...)
	}

	var count int64
	if err := tx.Count(&count).Error; err != nil {
		return 0, databaseError(err)
	}
	return count, nil
}

// applyQuery translates a query descriptor into GORM clauses.
func (s *Store) applyQuery(tx *gorm.DB, object string, q *provider.Query) (*gorm.DB, error) {
	if q == nil {
		return tx, nil
	}

	if q.Filter != nil {
		condition, args, err := buildCondition(q.Filter)
		if err != nil {
			return nil, storeError("validation_filter", err)
		}
		tx = tx.Where(condition, args...)
	}

	if q.Search != "" && s.registry != nil {
		meta, err := s.registry.GetObjectMetadata(object)
		if err != nil {
			return nil, storeError("validation_object", err)
		}
		condition, args := buildSearchCondition(meta, q.Search)
		tx = tx.Where(condition, args...)
	}

	for _, item := range q.OrderBy {
		if err := validateIdentifier(item.Property); err != nil {
			return nil, storeError("validation_orderby", err)
		}
		direction := "ASC"
		if item.Descending {
			direction = "DESC"
		}
		tx = tx.Order(item.Property + " " + direction)
	}

	if len(q.Fields) > 0 {
		columns, err := selectColumns(q.Fields)
		if err != nil {
			return nil, storeError("validation_select", err)
		}
		tx = tx.Select(columns)
	}

	if q.Skip != nil {
		tx = tx.Offset(*q.Skip)
	}
	if q.Top != nil {
		tx = tx.Limit(*q.Top)
	}
	return tx, nil
}

// selectColumns validates the projection and guarantees id is included.
func selectColumns(fields []string) ([]string, error) {
	columns := make([]string, 0, len(fields)+1)
	hasID := false
	for _, field := range fields {
		if err := validateIdentifier(field); err != nil {
			return nil, err
		}
		if field == "id" {
			hasID = true
		}
		columns = append(columns, field)
	}
	if !hasID {
		columns = append(columns, "id")
	}
	return columns, nil
}

func cloneRow(row map[string]interface{}) map[string]interface{} {
	clone := make(map[string]interface{}, len(row)+1)
	for key, value := range row {
		clone[key] = value
	}
	return clone
}

func storeError(code string, err error) *provider.StoreError {
	return &provider.StoreError{Code: code, Message: err.Error(), Err: err}
}

func databaseError(err error) *provider.StoreError {
	return &provider.StoreError{
		Code:    "database_" + classifyDatabaseError(err),
		Message: err.Error(),
		Err:     err,
	}
}

// classifyDatabaseError keeps the code prefix stable for the error
// mapper while preserving a hint of the failure class.
func classifyDatabaseError(err error) string {
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "unique") || strings.Contains(message, "duplicate"):
		return "conflict"
	case strings.Contains(message, "no such table") || strings.Contains(message, "does not exist"):
		return "schema"
	default:
		return "error"
	}
}
