package config

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/faasrt/core/pkg/rterrors"
)

const documentSchemaURL = "faasrt://configuration-document.schema.json"

// documentSchema constrains the top-level shape of a configuration
// document before the attribute walk runs, so a structurally malformed
// document fails fast with a precise pointer instead of a confusing
// nil-map panic deep in an AttributeParser.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "permissions": {"type": "array", "items": {"type": "object"}},
    "resources": {"type": "array", "items": {"type": "object"}},
    "roleFactory": {"type": "object"},
    "authenticators": {"type": "array", "items": {"type": "object"}},
    "addOns": {"type": "array", "items": {"type": "object"}}
  },
  "additionalProperties": true
}`

var (
	schemaOnce  sync.Once
	compiledDoc *jsonschema.Schema
	compileErr  error
)

func compileDocumentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(documentSchemaURL, strings.NewReader(documentSchema)); err != nil {
			compileErr = err
			return
		}
		compiledDoc, compileErr = compiler.Compile(documentSchemaURL)
	})
	return compiledDoc, compileErr
}

// ValidateDocument checks raw against the configuration document's
// structural schema.
func ValidateDocument(raw []byte) error {
	schema, err := compileDocumentSchema()
	if err != nil {
		return rterrors.NewConfigurationError("failed to compile configuration document schema", rterrors.WithCause(err))
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return rterrors.NewConfigurationError("configuration document is not valid json", rterrors.WithCause(err))
	}

	if err := schema.Validate(decoded); err != nil {
		return rterrors.NewConfigurationError("configuration document failed schema validation", rterrors.WithCause(err))
	}
	return nil
}
