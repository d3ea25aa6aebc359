// Package vision defines the Vision-AI collaborator interface: an external
// model that turns ordered images plus a rendered prompt into raw extracted
// text and a structured note payload.
package vision

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Image is one ordered input image for a generation call.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Prompt is the rendered instruction pair resolved from the prompt-profile
// registry, with an optional output schema the structured payload must match.
type Prompt struct {
	System string
	User   string
	Schema *jsonschema.Schema
}

// Result carries both the parsed structured payload and the raw collaborator
// output retained for audit.
type Result struct {
	Structured  json.RawMessage
	Title       string
	RawText     string
	RawResponse json.RawMessage
}

// Client is the Vision-AI collaborator.
type Client interface {
	// Available reports whether the collaborator is configured and reachable.
	// When false, the returned string is a human-readable reason.
	Available() (bool, string)

	// Generate invokes the model with the ordered images and the rendered
	// prompt. Provider-side failures and unparseable output are returned as
	// *CollaboratorError with the raw diagnostic retained.
	Generate(ctx context.Context, images []Image, prompt Prompt) (*Result, error)
}

// CollaboratorError is a provider-side failure or malformed output. The raw
// diagnostic is kept on the job for audit.
type CollaboratorError struct {
	Reason string
	Raw    string
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator error: %s", e.Reason)
}
