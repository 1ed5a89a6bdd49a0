// Command devserver runs an OData service over a sample schema for
// local development. Configuration is read from devserver.yaml, the
// environment (ODATA_ prefix) and flags-free defaults, in that order of
// precedence.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	odata "github.com/objectql/odata"
	"github.com/objectql/odata/provider"
	"github.com/objectql/odata/providers/gormstore"
	"github.com/objectql/odata/providers/memory"
	"github.com/spf13/viper"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("devserver failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("devserver")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("port", 8080)
	v.SetDefault("base_path", "/odata")
	v.SetDefault("namespace", "DevService")
	v.SetDefault("max_expand_depth", 3)
	v.SetDefault("enable_batch", true)
	v.SetDefault("enable_search", true)
	v.SetDefault("enable_etags", true)
	v.SetDefault("enable_cors", true)
	v.SetDefault("enable_server_timing", true)
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", ":memory:")

	v.SetEnvPrefix("ODATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	return v, nil
}

func run(logger *slog.Logger) error {
	v, err := loadConfig()
	if err != nil {
		return err
	}

	registry := sampleRegistry()

	store, err := openStore(v, registry, logger)
	if err != nil {
		return err
	}

	cfg := odata.DefaultConfig()
	cfg.BasePath = v.GetString("base_path")
	cfg.Namespace = v.GetString("namespace")
	cfg.MaxExpandDepth = v.GetInt("max_expand_depth")
	cfg.EnableBatch = v.GetBool("enable_batch")
	cfg.EnableSearch = v.GetBool("enable_search")
	cfg.EnableETags = v.GetBool("enable_etags")
	cfg.EnableCORS = v.GetBool("enable_cors")
	cfg.CORSOrigins = v.GetStringSlice("cors_origins")
	cfg.EnableServerTiming = v.GetBool("enable_server_timing")
	cfg.Logger = logger
	cfg.ServiceName = "odata-devserver"

	service, err := odata.NewService(store, registry, cfg)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	addr := fmt.Sprintf(":%d", v.GetInt("port"))
	logger.Info("Dev server listening",
		"addr", addr,
		"base_path", cfg.BasePath,
		"driver", v.GetString("database.driver"),
	)
	return service.ListenAndServe(addr)
}

func openStore(v *viper.Viper, registry provider.SchemaRegistry, logger *slog.Logger) (odata.RecordStore, error) {
	driver := v.GetString("database.driver")
	dsn := v.GetString("database.dsn")

	switch driver {
	case "memory":
		store := memory.NewStore(registry)
		if err := seed(store); err != nil {
			return nil, fmt.Errorf("seeding sample data: %w", err)
		}
		return store, nil
	case "sqlite":
		return gormstore.OpenSQLite(dsn, registry, logger)
	case "postgres":
		return gormstore.OpenPostgres(dsn, registry, logger)
	}
	return nil, fmt.Errorf("unknown database driver %q (supported: memory, sqlite, postgres)", driver)
}

func sampleRegistry() *memory.Registry {
	return memory.NewRegistry(
		provider.ObjectMetadata{
			Name:  "products",
			Label: "Products",
			Fields: []provider.FieldMetadata{
				{Name: "name", Label: "Name", Type: provider.FieldTypeText, Required: true},
				{Name: "description", Label: "Description", Type: provider.FieldTypeTextarea},
				{Name: "price", Label: "Price", Type: provider.FieldTypeCurrency},
				{Name: "stock", Label: "Stock", Type: provider.FieldTypeInteger},
				{Name: "active", Label: "Active", Type: provider.FieldTypeBoolean},
				{Name: "category", Label: "Category", Type: provider.FieldTypeLookup, RelatedObject: "categories"},
			},
		},
		provider.ObjectMetadata{
			Name:  "categories",
			Label: "Categories",
			Fields: []provider.FieldMetadata{
				{Name: "name", Label: "Name", Type: provider.FieldTypeText, Required: true},
				{Name: "parent", Label: "Parent Category", Type: provider.FieldTypeLookup, RelatedObject: "categories"},
			},
		},
	)
}

func seed(store *memory.Store) error {
	if err := store.Seed("categories",
		provider.Record{"id": "cat-tools", "name": "Tools"},
		provider.Record{"id": "cat-power", "name": "Power Tools", "parent": "cat-tools"},
		provider.Record{"id": "cat-garden", "name": "Garden"},
	); err != nil {
		return err
	}
	return store.Seed("products",
		provider.Record{"id": "prod-1", "name": "Hammer", "description": "Claw hammer, 16oz", "price": 14.5, "stock": 120, "active": true, "category": "cat-tools"},
		provider.Record{"id": "prod-2", "name": "Drill", "description": "Cordless drill, 18V", "price": 89.0, "stock": 35, "active": true, "category": "cat-power"},
		provider.Record{"id": "prod-3", "name": "Rake", "description": "Leaf rake", "price": 9.75, "stock": 0, "active": false, "category": "cat-garden"},
	)
}
