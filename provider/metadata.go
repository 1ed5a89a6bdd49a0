package provider

// FieldType classifies a field in object metadata. The set mirrors the
// field vocabulary of the metadata registry the engine is deployed
// against; unknown values render as Edm.String in $metadata.
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeHTML     FieldType = "html"
	FieldTypeSelect   FieldType = "select"

	FieldTypeNumber   FieldType = "number"
	FieldTypeCurrency FieldType = "currency"
	FieldTypePercent  FieldType = "percent"
	FieldTypeInteger  FieldType = "integer"

	FieldTypeBoolean FieldType = "boolean"

	FieldTypeDate     FieldType = "date"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeTime     FieldType = "time"

	// Relationship field types. Records store the related record's id in
	// the field; $expand replaces it with the embedded record.
	FieldTypeLookup       FieldType = "lookup"
	FieldTypeMasterDetail FieldType = "master_detail"
)

// IsRelationship reports whether the field type references another
// object type and is therefore eligible for $expand.
func (t FieldType) IsRelationship() bool {
	return t == FieldTypeLookup || t == FieldTypeMasterDetail
}

// IsTextual reports whether the field type belongs to the text family.
// Full-text search implementations match against textual fields only.
func (t FieldType) IsTextual() bool {
	switch t {
	case FieldTypeText, FieldTypeTextarea, FieldTypeHTML, FieldTypeSelect:
		return true
	}
	return false
}

// FieldMetadata describes a single field of an object type.
type FieldMetadata struct {
	// Name is the field name as it appears in records and queries.
	Name string

	// Label is a human-readable display name.
	Label string

	// Type classifies the field.
	Type FieldType

	// RelatedObject names the target object type for relationship
	// fields; empty otherwise.
	RelatedObject string

	// Required marks the field as non-nullable in $metadata.
	Required bool
}

// ObjectMetadata describes one registered object type. Every object type
// implicitly carries a non-nullable "id" key field whether or not it is
// listed in Fields.
type ObjectMetadata struct {
	// Name is the object type name, which doubles as the entity set name.
	Name string

	// Label is a human-readable display name.
	Label string

	// Fields lists the declared fields in registration order. Order is
	// preserved so $metadata output is deterministic.
	Fields []FieldMetadata
}

// Field returns the metadata for a named field, or nil when the object
// type does not declare it.
func (m *ObjectMetadata) Field(name string) *FieldMetadata {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}
