// Package schema describes the shape of the data a harvest should return.
//
// A Schema is a named, ordered list of fields. It drives three things: the
// field list in the prompt, the JSON Schema the model output is validated
// against, and completion of missing fields with null.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Integer Type = "integer"
	Boolean Type = "boolean"
	Array   Type = "array"
	Object  Type = "object"
)

// Field is one output field. Items describes array elements when they are objects.
type Field struct {
	Name        string  `json:"name"`
	Type        Type    `json:"type"`
	Description string  `json:"description,omitempty"`
	Items       []Field `json:"items,omitempty"`
}

// Schema is a named output shape. Name is a type-style name such as "InvoiceData".
type Schema struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

func New(name string, fields ...Field) Schema {
	return Schema{Name: name, Fields: fields}
}

var docTypeSuffixes = []string{"Schema", "Output", "Data", "Model"}

// DocType derives the document type from the schema name:
// InvoiceData -> invoice, IDDocumentOutput -> id_document, CustomerReceiptData -> customer_receipt.
func (s Schema) DocType() string {
	return DocTypeFromName(s.Name)
}

// DocTypeFromName strips one known suffix and converts CamelCase to snake_case.
func DocTypeFromName(name string) string {
	for _, suffix := range docTypeSuffixes {
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return toSnake(name)
}

func toSnake(s string) string {
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) && i > 0 {
			prev := rs[i-1]
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// FieldNames returns top-level field names in declaration order.
func (s Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// PromptFields is the comma-separated field list used in prompts.
func (s Schema) PromptFields() string {
	if len(s.Fields) == 0 {
		return "all relevant data fields"
	}
	return strings.Join(s.FieldNames(), ", ")
}

// Field returns the named top-level field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s Schema) Has(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// JSONSchema renders the schema as a JSON Schema map. Every field is optional and nullable;
// unknown keys are allowed so a chatty model does not fail the whole document.
func (s Schema) JSONSchema() map[string]any {
	return objectSchema(s.Fields)
}

func objectSchema(fields []Field) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f.Name] = fieldSchema(f)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
	}
}

func fieldSchema(f Field) map[string]any {
	t := f.Type
	if t == "" {
		t = String
	}
	prop := map[string]any{"type": []any{string(t), "null"}}
	if f.Description != "" {
		prop["description"] = f.Description
	}
	if t == Array {
		if len(f.Items) > 0 {
			prop["items"] = objectSchema(f.Items)
		}
	}
	return prop
}

// Complete returns a copy of data where every schema field is present; missing ones are nil.
func (s Schema) Complete(data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+len(s.Fields))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range s.Fields {
		if _, ok := out[f.Name]; !ok {
			out[f.Name] = nil
		}
	}
	return out
}

// Validate checks field names are set and unique and types are known.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("schema name is required")
	}
	return validateFields(s.Fields, "")
}

func validateFields(fields []Field, prefix string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("field with empty name in %q", prefix)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", prefix+f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case "", String, Number, Integer, Boolean, Object:
		case Array:
			if err := validateFields(f.Items, prefix+f.Name+"."); err != nil {
				return err
			}
		default:
			return fmt.Errorf("field %q: unknown type %q", prefix+f.Name, f.Type)
		}
	}
	return nil
}

// LoadFile reads a schema definition from a JSON file: {"name": "...", "fields": [{"name": "...", "type": "..."}]}.
func LoadFile(path string) (Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return Schema{}, fmt.Errorf("decode schema file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Schema{}, fmt.Errorf("schema file %s: %w", path, err)
	}
	return s, nil
}

// Resolve returns a built-in schema by name or loads one from a .json file.
func Resolve(nameOrPath string) (Schema, error) {
	if s, ok := Lookup(nameOrPath); ok {
		return s, nil
	}
	if strings.HasSuffix(strings.ToLower(nameOrPath), ".json") {
		return LoadFile(nameOrPath)
	}
	return Schema{}, fmt.Errorf("unknown schema %q (built-in: %s)", nameOrPath, strings.Join(BuiltinNames(), ", "))
}
