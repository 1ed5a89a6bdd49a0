package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/objectql/odata/internal/response"
	"github.com/objectql/odata/provider"
)

// ServiceDocumentHandler serves the service root document listing all
// entity sets.
type ServiceDocumentHandler struct {
	registry provider.SchemaRegistry
	basePath string
	logger   *slog.Logger
}

// NewServiceDocumentHandler creates a service document handler.
func NewServiceDocumentHandler(registry provider.SchemaRegistry, basePath string, logger *slog.Logger) *ServiceDocumentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ServiceDocumentHandler{
		registry: registry,
		basePath: basePath,
		logger:   logger,
	}
}

// Handle serves GET requests for the service root.
func (h *ServiceDocumentHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		if err := response.WriteError(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for the service document", r.Method)); err != nil {
			h.logger.Error("Error writing error response", "error", err)
		}
		return
	}

	names := h.registry.ListObjectTypes()
	entitySets := make([]map[string]interface{}, 0, len(names))
	for _, name := range names {
		entitySets = append(entitySets, map[string]interface{}{
			"name": name,
			"kind": "EntitySet",
			"url":  name,
		})
	}

	document := map[string]interface{}{
		"@odata.context": strings.TrimSuffix(h.basePath, "/") + "/$metadata",
		"value":          entitySets,
	}
	if err := response.WriteJSON(w, http.StatusOK, document); err != nil {
		h.logger.Error("Error writing service document", "error", err)
	}
}
