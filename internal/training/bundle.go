package training

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/mind-engage/mindengage-training/internal/apperr"
)

//go:embed bundle.schema.json
var bundleSchemaJSON []byte

var (
	bundleSchemaOnce sync.Once
	bundleSchema     *jsonschema.Schema
	bundleSchemaErr  error
)

func compiledBundleSchema() (*jsonschema.Schema, error) {
	bundleSchemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal(bundleSchemaJSON, &doc); err != nil {
			bundleSchemaErr = fmt.Errorf("parse bundle schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		const url = "schema://training/bundle.json"
		if err := c.AddResource(url, doc); err != nil {
			bundleSchemaErr = fmt.Errorf("add bundle schema: %w", err)
			return
		}
		bundleSchema, bundleSchemaErr = c.Compile(url)
	})
	return bundleSchema, bundleSchemaErr
}

// DecodeBundle validates raw against the bundle schema and decodes it.
// Schema violations come back as validation errors on field "bundle".
func DecodeBundle(raw []byte) (Bundle, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Bundle{}, apperr.Validation("bundle", "invalid JSON: %v", err)
	}
	sch, err := compiledBundleSchema()
	if err != nil {
		return Bundle{}, err
	}
	if err := sch.Validate(doc); err != nil {
		return Bundle{}, apperr.Validation("bundle", "%v", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bundle{}, apperr.Validation("bundle", "%v", err)
	}
	return b, nil
}
