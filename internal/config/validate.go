package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

var (
	compiledOnce   sync.Once
	compiledSchema *jsonschema.Schema
	compiledErr    error
)

// ValidateDocument checks a configuration against the generated JSON schema.
// Semantic cross-field rules live in validate; this catches shape and enum
// mistakes with a precise path in the error.
func ValidateDocument(cfg *Config) error {
	schema, err := configSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	doc, err := toJSONValue(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config schema validation: %w", err)
	}
	return nil
}

func configSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		data, err := JSONSchema()
		if err != nil {
			compiledErr = err
			return
		}
		compiledSchema, compiledErr = jsonschema.CompileString("aide-config.json", string(data))
	})
	return compiledSchema, compiledErr
}

// toJSONValue converts a value into the generic form json.Unmarshal would
// produce, keying objects by yaml field names to match the schema.
func toJSONValue(v any) (any, error) {
	payload, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := yaml.Unmarshal(payload, &tree); err != nil {
		return nil, err
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
