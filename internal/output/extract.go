package output

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// ErrPathNotFound is returned by Select when the path matches nothing.
var ErrPathNotFound = errors.New("path not found")

// Select returns the raw JSON at a gjson path. Strings are returned
// unquoted so they can be piped.
func Select(body []byte, path string) ([]byte, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("select: response body is not JSON")
	}
	res := gjson.GetBytes(body, path)
	if !res.Exists() {
		return nil, fmt.Errorf("select %q: %w", path, ErrPathNotFound)
	}
	if res.Type == gjson.String {
		return []byte(res.Str), nil
	}
	return []byte(res.Raw), nil
}

// ValidateSchema checks body against a JSON Schema document.
func ValidateSchema(body, schema []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("response body is not JSON: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
