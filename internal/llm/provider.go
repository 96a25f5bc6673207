// Package llm provides the LLM provider abstraction and the resilience
// wrapper used for every outbound model call in the review pipeline.
//
// Providers (OpenAI, Anthropic) implement a minimal Complete interface over
// their raw HTTP APIs. All retry, validation, fallback, circuit-breaker, and
// accounting behaviour lives in Caller, so a provider performs exactly one
// request per Complete invocation.
package llm

import "context"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is a single chat message.
type Message struct {
	Role    Role
	Content string
}

// ResponseFormat selects the output shape requested from the provider.
type ResponseFormat string

const (
	// FormatJSON requests a JSON object response (schema-constrained call).
	FormatJSON ResponseFormat = "json"

	// FormatText requests plain text (used by the marker-based fallback).
	FormatText ResponseFormat = "text"
)

// Request is a provider-agnostic completion request.
type Request struct {
	Messages       []Message
	ResponseFormat ResponseFormat
	MaxTokens      int
}

// Usage contains token usage for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Provider is implemented once per LLM vendor and selected at construction
// via the factory. Implementations perform a single API request per call;
// retries are owned by Caller.
type Provider interface {
	// Complete sends one completion request. The context carries the
	// per-call timeout and must be honoured.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name (e.g. "openai", "anthropic").
	Name() string

	// Model returns the model identifier being used.
	Model() string
}
