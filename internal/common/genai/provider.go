// Package genai abstracts the generative-model backends used by the
// review passes. Two implementations exist: an internal REST gateway
// and the OpenAI chat completions API.
package genai

import (
	"context"
	"errors"
)

var (
	ErrGenerateTimeout = errors.New("PROVIDER_TIMEOUT")
	ErrGenerateFailed  = errors.New("PROVIDER_CALL_FAILED")
)

// ImageInput is a plan-page image attached to a vision request.
type ImageInput struct {
	URL      string
	MimeType string
}

// Request describes a single model invocation. Images may be empty for
// text-only calls.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Images       []ImageInput
	MaxTokens    int
	Temperature  float64
	ForceJSON    bool
}

// Provider executes model requests and returns the raw response text.
// Implementations retry transient failures internally; callers treat a
// returned error as final for the pass.
type Provider interface {
	Generate(ctx context.Context, req *Request) (string, error)
}
