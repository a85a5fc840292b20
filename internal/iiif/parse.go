package iiif

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// SchemaError reports a payload that lacks the minimal shape required to
// decode it as the declared resource.
type SchemaError struct {
	Resource string
	Errors   []FieldError
}

// FieldError is one schema violation at a JSON path.
type FieldError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid %s", e.Resource)
	for i, fe := range e.Errors {
		if i == 0 {
			sb.WriteString(": ")
		} else {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s: %s", fe.Field, fe.Message)
	}
	return sb.String()
}

// UnsupportedResourceTypeError is returned for payloads whose @type is
// neither a manifest nor a collection.
type UnsupportedResourceTypeError struct {
	Type string
}

func (e *UnsupportedResourceTypeError) Error() string {
	if e.Type == "" {
		return "unsupported IIIF resource type: missing @type"
	}
	return fmt.Sprintf("unsupported IIIF resource type: %s", e.Type)
}

var (
	manifestSchema   = sync.OnceValues(func() (*gojsonschema.Schema, error) { return compileSchema("schemas/manifest.json") })
	collectionSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) { return compileSchema("schemas/collection.json") })
)

func compileSchema(name string) (*gojsonschema.Schema, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

func checkShape(resource string, schema func() (*gojsonschema.Schema, error), raw []byte) error {
	s, err := schema()
	if err != nil {
		return err
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("decode %s: %w", resource, err)
	}
	if result.Valid() {
		return nil
	}
	se := &SchemaError{Resource: resource}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		se.Errors = append(se.Errors, FieldError{Field: field, Message: desc.Description()})
	}
	return se
}

// DeclaredType returns the @type of a JSON object. A missing or non-string
// @type yields an empty string.
func DeclaredType(raw []byte) (string, error) {
	var head struct {
		Type json.RawMessage `json:"@type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("decode resource: %w", err)
	}
	var t string
	if len(head.Type) > 0 && json.Unmarshal(head.Type, &t) == nil {
		return t, nil
	}
	return "", nil
}

// IsManifest reports whether raw declares itself a manifest.
func IsManifest(raw []byte) bool {
	t, err := DeclaredType(raw)
	return err == nil && t == TypeManifest
}

// IsCollection reports whether raw declares itself a collection.
func IsCollection(raw []byte) bool {
	t, err := DeclaredType(raw)
	return err == nil && t == TypeCollection
}

// ParseManifest checks raw against the manifest shape and decodes it.
func ParseManifest(raw []byte) (*Manifest, error) {
	if err := checkShape("manifest", manifestSchema, raw); err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// ParseCollection checks raw against the collection shape and decodes it.
func ParseCollection(raw []byte) (*Collection, error) {
	if err := checkShape("collection", collectionSchema, raw); err != nil {
		return nil, err
	}
	var c Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	return &c, nil
}

// IsSchemaError reports whether err carries a *SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
