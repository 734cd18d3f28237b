package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrSchema reports a configuration file that does not match the schema.
var ErrSchema = errors.New("configuration does not match schema")

//go:embed schema.json
var schemaJSON []byte

// Schema returns the JSON schema configuration files are validated against.
func Schema() []byte {
	return schemaJSON
}

// ValidateFile checks the YAML (or JSON) file at path against the schema.
// Unknown keys are rejected so typos surface instead of silently falling
// back to defaults.
func ValidateFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	return ValidateBytes(raw)
}

// ValidateBytes checks a YAML document against the schema. An empty
// document is valid.
func ValidateBytes(raw []byte) error {
	var doc map[string]any

	err := yaml.Unmarshal(raw, &doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchema, err)
	}

	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		problems = append(problems, resultErr.String())
	}

	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
}
