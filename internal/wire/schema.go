package wire

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed sync_request.schema.json
var syncRequestSchemaSource string

const syncRequestSchemaURL = "sync_request.schema.json"

var syncRequestSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(syncRequestSchemaURL, strings.NewReader(syncRequestSchemaSource)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(syncRequestSchemaURL)
})

// ValidateSyncRequest checks raw JSON against the embedded request schema.
func ValidateSyncRequest(raw []byte) error {
	schema, err := syncRequestSchema()
	if err != nil {
		return fmt.Errorf("compile sync request schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("parse sync request: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("invalid sync request: %w", err)
	}
	return nil
}
