// Package odata translates OData V4 HTTP requests into operations on a
// pluggable record store. The engine parses the protocol surface
// ($filter, $orderby, $top, $skip, $select, $search, $count, $expand,
// $batch, $metadata and ETag preconditions) and delegates data access
// to the provider interfaces, so any backend that can answer a Query
// can be exposed as an OData service.
package odata

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/objectql/odata/internal/batch"
	"github.com/objectql/odata/internal/handlers"
	"github.com/objectql/odata/internal/observability"
	"github.com/objectql/odata/provider"
	"github.com/rs/cors"
)

// Service is an OData V4 service over a record store. It implements
// http.Handler and is safe for concurrent use: all request-scoped state
// lives on the stack, and the configuration is immutable after
// construction.
type Service struct {
	store    provider.RecordStore
	registry provider.SchemaRegistry
	config   Config

	entityHandler   *handlers.EntityHandler
	metadataHandler *handlers.MetadataHandler
	serviceDocument *handlers.ServiceDocumentHandler
	batchHandler    *batch.Handler

	observability *observability.Config
	logger        *slog.Logger

	// handler is the outermost http.Handler including middleware.
	handler http.Handler
}

// NewService creates a service over the given store and registry. The
// configuration is copied; later changes to cfg are not observed.
func NewService(store provider.RecordStore, registry provider.SchemaRegistry, cfg Config) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("odata: record store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("odata: schema registry is required")
	}

	cfg = cfg.withDefaults()

	obs := observability.New(
		observability.WithTracerProvider(cfg.TracerProvider),
		observability.WithMeterProvider(cfg.MeterProvider),
		observability.WithServiceName(cfg.ServiceName),
		observability.WithServerTiming(cfg.EnableServerTiming),
	)

	s := &Service{
		store:         store,
		registry:      registry,
		config:        cfg,
		observability: obs,
		logger:        cfg.Logger,
	}

	s.entityHandler = handlers.NewEntityHandler(handlers.EntityHandlerConfig{
		Store:          store,
		Registry:       registry,
		BasePath:       cfg.BasePath,
		MaxExpandDepth: cfg.MaxExpandDepth,
		EnableSearch:   cfg.EnableSearch,
		EnableETags:    cfg.EnableETags,
		Logger:         cfg.Logger,
		Observability:  obs,
	})
	s.metadataHandler = handlers.NewMetadataHandler(registry, cfg.Namespace, cfg.Logger)
	s.serviceDocument = handlers.NewServiceDocumentHandler(registry, cfg.BasePath, cfg.Logger)

	if cfg.EnableBatch {
		// Batch parts are dispatched through the routing handler
		// directly, bypassing the middleware chain.
		s.batchHandler = batch.NewHandler(http.HandlerFunc(s.route), cfg.Logger)
		s.batchHandler.SetObservability(obs)
	}

	s.handler = s.buildMiddleware(http.HandlerFunc(s.route))
	return s, nil
}

// Config returns a copy of the service configuration.
func (s *Service) Config() Config {
	return s.config
}

// SetCompensationLog replaces the default changeset compensation log,
// which records rolled-back operations without executing inverses.
func (s *Service) SetCompensationLog(log batch.CompensationLog) {
	if s.batchHandler != nil {
		s.batchHandler.SetCompensationLog(log)
	}
}

// buildMiddleware wraps the routing handler with the configured
// middleware: CORS outermost, then Server-Timing.
func (s *Service) buildMiddleware(next http.Handler) http.Handler {
	handler := observability.ServerTimingMiddleware(next, s.config.EnableServerTiming)

	if s.config.EnableCORS {
		options := cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut,
				http.MethodPatch, http.MethodDelete, http.MethodOptions,
			},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"ETag", "Location", "OData-Version"},
		}
		handler = cors.New(options).Handler(handler)
	}

	return handler
}

// ListenAndServe starts the service on addr.
func (s *Service) ListenAndServe(addr string) error {
	s.logger.Info("Starting OData service", "addr", addr, "base_path", s.config.BasePath)
	return http.ListenAndServe(addr, s)
}
