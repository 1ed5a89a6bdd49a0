// Package edmx renders the $metadata EDMX document from the schema
// registry's registered object types.
package edmx

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/objectql/odata/provider"
)

// Renderer builds EDMX documents. It is a pure function of the registry
// state; no caching happens here because the engine performs none.
type Renderer struct {
	registry  provider.SchemaRegistry
	namespace string
	logger    *slog.Logger
}

// NewRenderer creates a renderer for the given registry and namespace.
func NewRenderer(registry provider.SchemaRegistry, namespace string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{
		registry:  registry,
		namespace: namespace,
		logger:    logger,
	}
}

// edmType maps a registry field type to its EDM primitive type. Unknown
// types fall back to Edm.String with a logged diagnostic.
func (r *Renderer) edmType(objectName string, field *provider.FieldMetadata) string {
	switch field.Type {
	case provider.FieldTypeText, provider.FieldTypeTextarea, provider.FieldTypeHTML, provider.FieldTypeSelect:
		return "Edm.String"
	case provider.FieldTypeNumber, provider.FieldTypeCurrency, provider.FieldTypePercent:
		return "Edm.Double"
	case provider.FieldTypeInteger:
		return "Edm.Int32"
	case provider.FieldTypeBoolean:
		return "Edm.Boolean"
	case provider.FieldTypeDate:
		return "Edm.Date"
	case provider.FieldTypeDatetime:
		return "Edm.DateTimeOffset"
	case provider.FieldTypeTime:
		return "Edm.TimeOfDay"
	case provider.FieldTypeLookup, provider.FieldTypeMasterDetail:
		// Relationship fields render as navigation properties; the
		// stored foreign key itself is a string.
		return "Edm.String"
	default:
		r.logger.Warn("Unknown field type in metadata, mapping to Edm.String",
			"object", objectName, "field", field.Name, "type", field.Type)
		return "Edm.String"
	}
}

// Render builds the complete EDMX document for the currently registered
// object types.
func (r *Renderer) Render() (string, error) {
	names := append([]string(nil), r.registry.ListObjectTypes()...)
	sort.Strings(names)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<edmx:Edmx xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx" Version="4.0">
  <edmx:DataServices>
    <Schema xmlns="http://docs.oasis-open.org/odata/ns/edm" Namespace="%s">
`, r.namespace))

	for _, name := range names {
		meta, err := r.registry.GetObjectMetadata(name)
		if err != nil {
			return "", fmt.Errorf("metadata for object type %q: %w", name, err)
		}
		r.writeEntityType(&builder, meta)
	}

	r.writeEntityContainer(&builder, names)

	builder.WriteString(`    </Schema>
  </edmx:DataServices>
</edmx:Edmx>`)

	return builder.String(), nil
}

func (r *Renderer) writeEntityType(builder *strings.Builder, meta *provider.ObjectMetadata) {
	builder.WriteString(fmt.Sprintf("      <EntityType Name=\"%s\">\n", meta.Name))

	// Every entity type declares an implicit non-nullable id key.
	builder.WriteString("        <Key>\n")
	builder.WriteString("          <PropertyRef Name=\"id\"/>\n")
	builder.WriteString("        </Key>\n")
	builder.WriteString("        <Property Name=\"id\" Type=\"Edm.String\" Nullable=\"false\"/>\n")

	for i := range meta.Fields {
		field := &meta.Fields[i]
		if field.Name == "id" {
			continue
		}

		if field.Type.IsRelationship() {
			builder.WriteString(fmt.Sprintf("        <NavigationProperty Name=\"%s\" Type=\"%s.%s\"/>\n",
				field.Name, r.namespace, field.RelatedObject))
			continue
		}

		nullable := ""
		if field.Required {
			nullable = " Nullable=\"false\""
		}
		builder.WriteString(fmt.Sprintf("        <Property Name=\"%s\" Type=\"%s\"%s/>\n",
			field.Name, r.edmType(meta.Name, field), nullable))
	}

	builder.WriteString("      </EntityType>\n")
}

func (r *Renderer) writeEntityContainer(builder *strings.Builder, names []string) {
	builder.WriteString("      <EntityContainer Name=\"Container\">\n")
	for _, name := range names {
		builder.WriteString(fmt.Sprintf("        <EntitySet Name=\"%s\" EntityType=\"%s.%s\"/>\n",
			name, r.namespace, name))
	}
	builder.WriteString("      </EntityContainer>\n")
}
