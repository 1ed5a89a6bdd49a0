package odata

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/objectql/odata/internal/response"
)

// ServeHTTP implements http.Handler, running the middleware chain
// before routing.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Handler returns the service as an http.Handler; it is the service
// itself and exists for callers composing middleware stacks.
func (s *Service) Handler() http.Handler {
	return s
}

// route dispatches a request to the matching handler. Batch parts
// re-enter here directly so they skip the middleware chain.
func (s *Service) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if base := strings.TrimSuffix(s.config.BasePath, "/"); base != "" {
		trimmed, found := strings.CutPrefix(path, base)
		if !found {
			s.writeRoutingError(w, http.StatusNotFound, response.CodeNotFound,
				fmt.Sprintf("Request path is outside the service base path %q", s.config.BasePath))
			return
		}
		path = trimmed
	}
	path = strings.TrimPrefix(path, "/")

	switch path {
	case "":
		s.serviceDocument.Handle(w, r)
		return
	case "$metadata":
		s.metadataHandler.Handle(w, r)
		return
	case "$batch":
		if s.batchHandler == nil {
			s.writeRoutingError(w, http.StatusNotImplemented, response.CodeNotImplemented,
				"$batch support is disabled")
			return
		}
		s.batchHandler.HandleBatch(w, r)
		return
	}

	components, err := response.ParseURLComponents(path)
	if err != nil {
		s.writeRoutingError(w, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		return
	}

	switch {
	case components.IsCount:
		s.entityHandler.HandleCount(w, r, components.EntitySet)
	case components.EntityKey != "":
		s.entityHandler.HandleEntity(w, r, components.EntitySet, components.EntityKey)
	default:
		s.entityHandler.HandleCollection(w, r, components.EntitySet)
	}
}

func (s *Service) writeRoutingError(w http.ResponseWriter, status int, code string, message string) {
	if err := response.WriteError(w, status, code, message); err != nil {
		s.logger.Error("Error writing error response", "error", err)
	}
}
