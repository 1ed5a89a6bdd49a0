package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/objectql/odata/internal/observability"
	"github.com/objectql/odata/internal/query"
	"github.com/objectql/odata/internal/response"
	"github.com/objectql/odata/provider"
)

func (h *EntityHandler) handleGetCollection(w http.ResponseWriter, r *http.Request, entitySet string) {
	start := time.Now()
	ctx, span := h.observability.Tracer().StartRead(r.Context(), entitySet, "")
	var opErr error
	defer func() { observability.EndSpan(span, opErr) }()

	options, err := query.ParseOptions(r.URL.Query(), query.Settings{EnableSearch: h.enableSearch})
	if err != nil {
		opErr = err
		h.write(response.WriteMappedError(w, err))
		return
	}

	storeQuery := options.Query()
	if len(options.Expand) > 0 {
		// $select is applied after expansion so the store still
		// returns the foreign keys the expander joins on.
		storeQuery.Fields = nil
	}

	timing := observability.StartServerTiming(ctx, "store")
	records, err := h.store.Find(ctx, entitySet, storeQuery)
	timing.Stop()
	if err != nil {
		opErr = err
		h.write(response.WriteMappedError(w, err))
		return
	}

	if len(options.Expand) > 0 {
		if err := h.expandRecords(ctx, entitySet, records, options.Expand); err != nil {
			opErr = err
			h.write(response.WriteMappedError(w, err))
			return
		}
		if len(options.Select) > 0 {
			for i, record := range records {
				records[i] = projectRecord(record, options.Select, options.Expand)
			}
		}
	}

	var count *int64
	if options.Count {
		// The inline count honors $filter but ignores paging.
		total, err := h.store.Count(ctx, entitySet, options.Filter)
		if err != nil {
			opErr = err
			h.write(response.WriteMappedError(w, err))
			return
		}
		count = &total
	}

	if records == nil {
		records = []provider.Record{}
	}
	h.write(response.WriteJSON(w, http.StatusOK, response.Collection{
		Context: response.ContextURL(h.basePath, entitySet, false),
		Count:   count,
		Value:   records,
	}))
	h.recordMetrics(r, entitySet, observability.OpReadCollection, http.StatusOK, start)
}

// HandleCount serves /EntitySet/$count: a text/plain integer honoring
// $filter and ignoring every paging option.
func (h *EntityHandler) HandleCount(w http.ResponseWriter, r *http.Request, entitySet string) {
	ctx := r.Context()
	start := time.Now()

	if _, err := h.registry.GetObjectMetadata(entitySet); err != nil {
		h.write(response.WriteError(w, http.StatusNotFound, response.CodeNotFound,
			fmt.Sprintf("Entity set '%s' not found", entitySet)))
		return
	}
	if r.Method != http.MethodGet {
		h.write(response.WriteError(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for $count", r.Method)))
		return
	}

	var filter *provider.FilterExpression
	if filterStr := r.URL.Query().Get("$filter"); filterStr != "" {
		parsed, err := query.ParseFilter(filterStr)
		if err != nil {
			h.write(response.WriteMappedError(w, err))
			return
		}
		filter = parsed
	}

	count, err := h.store.Count(ctx, entitySet, filter)
	if err != nil {
		h.write(response.WriteMappedError(w, err))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	response.SetODataVersionHeader(w)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(strconv.FormatInt(count, 10))); err != nil {
		h.logger.Error("Error writing count response", "error", err)
	}
	h.recordMetrics(r, entitySet, observability.OpCount, http.StatusOK, start)
}
