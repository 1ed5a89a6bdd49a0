// Package handlers implements the HTTP handlers of the engine: entity
// collections, single entities, $count, the service document and the
// $metadata document. Handlers speak to the record store exclusively
// through the provider interfaces.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/objectql/odata/internal/etag"
	"github.com/objectql/odata/internal/expand"
	"github.com/objectql/odata/internal/observability"
	"github.com/objectql/odata/internal/query"
	"github.com/objectql/odata/internal/response"
	"github.com/objectql/odata/provider"
)

// EntityHandler serves collection and single-entity requests for all
// registered object types.
type EntityHandler struct {
	store         provider.RecordStore
	registry      provider.SchemaRegistry
	expander      *expand.Expander
	basePath      string
	enableSearch  bool
	enableETags   bool
	logger        *slog.Logger
	observability *observability.Config
}

// EntityHandlerConfig carries the dependencies of an EntityHandler.
type EntityHandlerConfig struct {
	Store          provider.RecordStore
	Registry       provider.SchemaRegistry
	BasePath       string
	MaxExpandDepth int
	EnableSearch   bool
	EnableETags    bool
	Logger         *slog.Logger
	Observability  *observability.Config
}

// NewEntityHandler creates an entity handler.
func NewEntityHandler(cfg EntityHandlerConfig) *EntityHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EntityHandler{
		store:         cfg.Store,
		registry:      cfg.Registry,
		expander:      expand.New(cfg.Store, cfg.Registry, cfg.MaxExpandDepth, logger),
		basePath:      cfg.BasePath,
		enableSearch:  cfg.EnableSearch,
		enableETags:   cfg.EnableETags,
		logger:        logger,
		observability: cfg.Observability,
	}
}

// HandleCollection dispatches requests addressed to an entity set.
func (h *EntityHandler) HandleCollection(w http.ResponseWriter, r *http.Request, entitySet string) {
	if _, err := h.registry.GetObjectMetadata(entitySet); err != nil {
		h.write(response.WriteError(w, http.StatusNotFound, response.CodeNotFound,
			fmt.Sprintf("Entity set '%s' not found", entitySet)))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetCollection(w, r, entitySet)
	case http.MethodPost:
		h.handleCreate(w, r, entitySet)
	case http.MethodOptions:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	default:
		h.write(response.WriteError(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for entity collections", r.Method)))
	}
}

// HandleEntity dispatches requests addressed to a single entity.
func (h *EntityHandler) HandleEntity(w http.ResponseWriter, r *http.Request, entitySet string, key string) {
	if _, err := h.registry.GetObjectMetadata(entitySet); err != nil {
		h.write(response.WriteError(w, http.StatusNotFound, response.CodeNotFound,
			fmt.Sprintf("Entity set '%s' not found", entitySet)))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGetEntity(w, r, entitySet, key)
	case http.MethodPatch, http.MethodPut:
		h.handleUpdate(w, r, entitySet, key)
	case http.MethodDelete:
		h.handleDelete(w, r, entitySet, key)
	case http.MethodOptions:
		w.Header().Set("Allow", "GET, PATCH, PUT, DELETE, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
	default:
		h.write(response.WriteError(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for single entities", r.Method)))
	}
}

func (h *EntityHandler) handleGetEntity(w http.ResponseWriter, r *http.Request, entitySet string, key string) {
	start := time.Now()
	ctx, span := h.observability.Tracer().StartRead(r.Context(), entitySet, key)
	var opErr error
	defer func() { observability.EndSpan(span, opErr) }()

	options, err := query.ParseOptions(r.URL.Query(), query.Settings{EnableSearch: h.enableSearch})
	if err != nil {
		opErr = err
		h.write(response.WriteMappedError(w, err))
		return
	}

	record, err := h.store.Get(ctx, entitySet, key)
	if err != nil {
		opErr = err
		h.write(response.WriteMappedError(w, err))
		return
	}

	var currentETag string
	if h.enableETags {
		// The ETag is computed before $select strips fields, so a
		// projected response still carries the tag of the full record.
		currentETag = etag.Generate(record)
		if !etag.NoneMatch(r.Header.Get("If-None-Match"), currentETag) {
			w.Header().Set("ETag", currentETag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	if len(options.Expand) > 0 {
		records := []provider.Record{record}
		if err := h.expandRecords(ctx, entitySet, records, options.Expand); err != nil {
			opErr = err
			h.write(response.WriteMappedError(w, err))
			return
		}
		record = records[0]
	}
	if len(options.Select) > 0 {
		record = projectRecord(record, options.Select, options.Expand)
	}

	if currentETag != "" {
		w.Header().Set("ETag", currentETag)
	}
	h.write(response.WriteJSON(w, http.StatusOK, h.entityBody(entitySet, record)))
	h.recordMetrics(r, entitySet, observability.OpReadEntity, http.StatusOK, start)
}

func (h *EntityHandler) handleCreate(w http.ResponseWriter, r *http.Request, entitySet string) {
	start := time.Now()
	ctx, span := h.observability.Tracer().StartWrite(r.Context(), entitySet, "", observability.OpCreate)
	var opErr error
	defer func() { observability.EndSpan(span, opErr) }()

	var data provider.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		opErr = err
		h.write(response.WriteError(w, http.StatusBadRequest, response.CodeBadRequest,
			fmt.Sprintf("Failed to parse request body: %v", err)))
		return
	}

	created, err := h.store.Create(ctx, entitySet, data)
	if err != nil {
		opErr = err
		h.write(response.WriteMappedError(w, err))
		return
	}

	if id, ok := created["id"].(string); ok {
		w.Header().Set("Location", fmt.Sprintf("%s/%s('%s')",
			strings.TrimSuffix(h.basePath, "/"), entitySet, id))
	}
	if h.enableETags {
		w.Header().Set("ETag", etag.Generate(created))
	}
	h.write(response.WriteJSON(w, http.StatusCreated, h.entityBody(entitySet, created)))
	h.recordMetrics(r, entitySet, observability.OpCreate, http.StatusCreated, start)
}

func (h *EntityHandler) handleUpdate(w http.ResponseWriter, r *http.Request, entitySet string, key string) {
	start := time.Now()
	ctx, span := h.observability.Tracer().StartWrite(r.Context(), entitySet, key, observability.OpUpdate)
	var opErr error
	defer func() { observability.EndSpan(span, opErr) }()

	// The precondition is checked against the stored record before any
	// write; on mismatch the entity is left untouched.
	if h.enableETags {
		if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
			current, err := h.store.Get(ctx, entitySet, key)
			if err != nil {
				opErr = err
				h.write(response.WriteMappedError(w, err))
				return
			}
			if !etag.Match(ifMatch, etag.Generate(current)) {
				h.write(response.WriteError(w, http.StatusPreconditionFailed, response.CodePreconditionFailed,
					"The entity has been modified since it was retrieved"))
				return
			}
		}
	}

	var data provider.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		opErr = err
		h.write(response.WriteError(w, http.StatusBadRequest, response.CodeBadRequest,
			fmt.Sprintf("Failed to parse request body: %v", err)))
		return
	}

	updated, err := h.store.Update(ctx, entitySet, key, data)
	if err != nil {
		opErr = err
		h.write(response.WriteMappedError(w, err))
		return
	}

	if h.enableETags {
		w.Header().Set("ETag", etag.Generate(updated))
	}
	h.write(response.WriteJSON(w, http.StatusOK, h.entityBody(entitySet, updated)))
	h.recordMetrics(r, entitySet, observability.OpUpdate, http.StatusOK, start)
}

func (h *EntityHandler) handleDelete(w http.ResponseWriter, r *http.Request, entitySet string, key string) {
	start := time.Now()
	ctx, span := h.observability.Tracer().StartWrite(r.Context(), entitySet, key, observability.OpDelete)
	var opErr error
	defer func() { observability.EndSpan(span, opErr) }()

	if h.enableETags {
		if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
			current, err := h.store.Get(ctx, entitySet, key)
			if err != nil {
				opErr = err
				h.write(response.WriteMappedError(w, err))
				return
			}
			if !etag.Match(ifMatch, etag.Generate(current)) {
				h.write(response.WriteError(w, http.StatusPreconditionFailed, response.CodePreconditionFailed,
					"The entity has been modified since it was retrieved"))
				return
			}
		}
	}

	if err := h.store.Delete(ctx, entitySet, key); err != nil {
		opErr = err
		h.write(response.WriteMappedError(w, err))
		return
	}

	response.SetODataVersionHeader(w)
	w.WriteHeader(http.StatusNoContent)
	h.recordMetrics(r, entitySet, observability.OpDelete, http.StatusNoContent, start)
}

// entityBody attaches the context annotation to a single-entity body.
// Map keys serialize alphabetically, so the annotation sorts first.
func (h *EntityHandler) entityBody(entitySet string, record provider.Record) map[string]interface{} {
	body := make(map[string]interface{}, len(record)+1)
	for k, v := range record {
		body[k] = v
	}
	body["@odata.context"] = response.ContextURL(h.basePath, entitySet, true)
	return body
}

// expandRecords resolves $expand for the given records inside an
// expand span and Server-Timing metric.
func (h *EntityHandler) expandRecords(ctx context.Context, entitySet string, records []provider.Record, expands []query.ExpandOption) error {
	ctx, span := h.observability.Tracer().StartExpand(ctx, entitySet, 0)
	timing := observability.StartServerTiming(ctx, "expand")
	err := h.expander.Expand(ctx, entitySet, records, expands, 0)
	timing.Stop()
	observability.EndSpan(span, err)
	return err
}

// projectRecord applies $select, always retaining id and any expanded
// navigation properties.
func projectRecord(record provider.Record, fields []string, expands []query.ExpandOption) provider.Record {
	projected := make(provider.Record, len(fields)+1+len(expands))
	if id, ok := record["id"]; ok {
		projected["id"] = id
	}
	for _, field := range fields {
		if value, ok := record[field]; ok {
			projected[field] = value
		}
	}
	for _, exp := range expands {
		if value, ok := record[exp.NavigationProperty]; ok {
			projected[exp.NavigationProperty] = value
		}
	}
	return projected
}

func (h *EntityHandler) recordMetrics(r *http.Request, entitySet string, op string, status int, start time.Time) {
	if h.observability == nil {
		return
	}
	h.observability.Metrics().RecordRequest(r.Context(), entitySet, op, status, time.Since(start))
}

// write logs response-writing failures; at that point the status line
// is already on the wire so there is nothing else to do.
func (h *EntityHandler) write(err error) {
	if err != nil {
		h.logger.Error("Error writing response", "error", err)
	}
}
