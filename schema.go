package storefront

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const contentSchemaURL = "https://storefront.schemas.local/content-save.schema.json"

// contentSaveSchema describes the POST /content body. Section settings are
// free-form; only the envelope and section identity are constrained here.
const contentSaveSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["handle", "data"],
  "properties": {
    "handle": {"type": "string", "minLength": 1, "maxLength": 255},
    "data": {
      "type": "object",
      "required": ["sections"],
      "properties": {
        "slug": {"type": "string"},
        "sections": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["id", "type"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "type": {"type": "string", "minLength": 1},
              "settings": {"type": ["object", "null"]}
            }
          }
        }
      }
    }
  }
}`

type documentValidator struct {
	schema *jsonschema.Schema
}

func newDocumentValidator() (*documentValidator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(contentSchemaURL, strings.NewReader(contentSaveSchema)); err != nil {
		return nil, fmt.Errorf("content schema load failed: %w", err)
	}
	compiled, err := c.Compile(contentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("content schema compile failed: %w", err)
	}
	return &documentValidator{schema: compiled}, nil
}

// Validate checks a raw request body against the save schema.
func (v *documentValidator) Validate(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid content: %s", leafMessage(verr))
		}
		return err
	}
	return nil
}

// leafMessage returns the deepest cause, which names the offending field.
func leafMessage(e *jsonschema.ValidationError) string {
	for len(e.Causes) > 0 {
		e = e.Causes[0]
	}
	loc := e.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + e.Message
}
