package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const receiptSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["store_name", "date", "total_amount", "items"],
  "properties": {
    "store_name":     {"type": "string", "minLength": 1},
    "date":           {"type": "string", "format": "date", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "total_amount":   {"type": "number", "exclusiveMinimum": 0},
    "tax_id":         {"type": ["string", "null"]},
    "payment_method": {"type": ["string", "null"]},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {"$ref": "#/$defs/item"}
    }
  },
  "$defs": {
    "item": {
      "type": "object",
      "required": ["name", "quantity", "price", "total"],
      "properties": {
        "name":     {"type": "string", "minLength": 1},
        "quantity": {"type": "number", "exclusiveMinimum": 0},
        "price":    {"type": "number", "exclusiveMinimum": 0},
        "total":    {"type": "number", "exclusiveMinimum": 0},
        "category": {"type": ["string", "null"]}
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error

	reMissing = regexp.MustCompile(`["']([^"']+)["']`)
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		c.AssertFormat = true
		if err := c.AddResource("receipt.json", strings.NewReader(receiptSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile("receipt.json")
	})
	return schema, schemaErr
}

// validate checks doc against the receipt schema and reports the first
// offending field.
func validate(doc map[string]any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	err = s.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Reason: err.Error()}
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := pointerToPath(leaf.InstanceLocation)
	if strings.HasSuffix(leaf.KeywordLocation, "/required") {
		if m := reMissing.FindStringSubmatch(leaf.Message); m != nil {
			field = joinPath(field, m[1])
		}
		return &ValidationError{Field: field, Reason: "is required"}
	}
	return &ValidationError{Field: field, Reason: leaf.Message}
}

// pointerToPath turns "/items/0/price" into "items[0].price".
func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for i, tok := range strings.Split(ptr, "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(tok); err == nil && i > 0 {
			b.WriteString("[" + tok + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(tok)
	}
	return b.String()
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
