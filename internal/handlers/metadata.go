package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/objectql/odata/internal/edmx"
	"github.com/objectql/odata/internal/response"
	"github.com/objectql/odata/provider"
)

// MetadataHandler serves the $metadata EDMX document.
type MetadataHandler struct {
	renderer *edmx.Renderer
	logger   *slog.Logger
}

// NewMetadataHandler creates a metadata handler for the given registry.
func NewMetadataHandler(registry provider.SchemaRegistry, namespace string, logger *slog.Logger) *MetadataHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataHandler{
		renderer: edmx.NewRenderer(registry, namespace, logger),
		logger:   logger,
	}
}

// Handle serves GET and HEAD requests for the metadata document.
func (h *MetadataHandler) Handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
	case http.MethodOptions:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		w.WriteHeader(http.StatusNoContent)
		return
	default:
		if err := response.WriteError(w, http.StatusMethodNotAllowed, response.CodeMethodNotAllowed,
			fmt.Sprintf("Method %s is not supported for $metadata", r.Method)); err != nil {
			h.logger.Error("Error writing error response", "error", err)
		}
		return
	}

	document, err := h.renderer.Render()
	if err != nil {
		h.logger.Error("Error rendering metadata document", "error", err)
		if writeErr := response.WriteError(w, http.StatusInternalServerError, response.CodeInternalServerError,
			"Failed to generate metadata document"); writeErr != nil {
			h.logger.Error("Error writing error response", "error", writeErr)
		}
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	response.SetODataVersionHeader(w)
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(document)); err != nil {
		h.logger.Error("Error writing metadata response", "error", err)
	}
}
