// Package client defines the narrow transport interface to vision model
// backends, so the detection layer stays independent of the wire protocol.
package client

import (
	"context"
	"encoding/json"
)

// StructuredRequest is one schema-constrained query: an instruction pair,
// the page image, and the strict response schema the backend must enforce.
type StructuredRequest struct {
	System      string
	UserParts   []string // ordered text parts, the image sits between the first and the rest
	ImageB64    string
	SchemaName  string
	Schema      json.RawMessage
	Temperature float64
}

// VisionClient sends a structured query to a vision model backend and
// returns the raw response text. Implementations do not retry.
type VisionClient interface {
	StructuredQuery(ctx context.Context, req StructuredRequest) (string, error)
	// Model reports the model identifier used, for the manifest.
	Model() string
}
