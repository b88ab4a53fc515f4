// Package openapi embeds the HTTP API contract.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// BasePath is the prefix every documented path is served under.
const BasePath = "/api/v1"

//go:embed openapi.yaml
var document []byte

var (
	loadOnce sync.Once
	loaded   *openapi3.T
	loadErr  error
)

// Raw returns the embedded YAML document.
func Raw() []byte {
	return document
}

// Load parses and validates the embedded document. The result is shared;
// callers must not modify it.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		doc, err := openapi3.NewLoader().LoadFromData(document)
		if err != nil {
			loadErr = fmt.Errorf("parse openapi document: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			loadErr = fmt.Errorf("validate openapi document: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}
