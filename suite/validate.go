package suite

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

const schemaResource = "suite.schema.json"

//go:embed schema.json
var schemaData []byte

var (
	suiteSchema *jsonschema.Schema
	compileOnce sync.Once
	compileErr  error
)

// compileSchema compiles the embedded suite schema once
func compileSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal suite schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaResource, doc); err != nil {
			compileErr = fmt.Errorf("add suite schema resource: %w", err)
			return
		}

		suiteSchema, err = compiler.Compile(schemaResource)
		if err != nil {
			compileErr = fmt.Errorf("compile suite schema: %w", err)
		}
	})
	return suiteSchema, compileErr
}

// Validate checks a YAML suite document against the suite schema
func Validate(data []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	// The schema is expressed over JSON values, so the document takes a
	// round trip through JSON before validation.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("suite is not representable as JSON: %w", err)
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("suite validation failed: %w", err)
	}
	return nil
}
