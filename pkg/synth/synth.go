// Package synth provides text synthesis over hosted LLM APIs.
//
// A [Synthesizer] turns a system prompt plus a user prompt into a single
// completed text. The memory engine uses it for journal consolidation,
// identity card regeneration, and sensitivity classification; the prompts
// for those jobs are exported as package constants.
//
// # Implementations
//
//   - [Anthropic] — the Anthropic Messages API (direct key).
//   - [Gemini] — Google Gemini via google.golang.org/genai.
//   - [Proxy] — the hosted relay, selected automatically by [NewForKey]
//     when the key carries the [CloudKeyPrefix].
//
// All implementations apply a default 60 second timeout per call on top
// of the caller's context.
package synth

import (
	"context"
	"fmt"
	"strings"
)

// Synthesizer produces a completed text from a system and user prompt.
//
// Implementations must be safe for concurrent use.
type Synthesizer interface {
	// Synthesize sends one request and returns the full response text.
	// maxTokens caps the response length.
	Synthesize(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// CloudKeyPrefix marks API keys issued by the hosted relay. Keys with this
// prefix route through [Proxy]; anything else is treated as a direct
// Anthropic key.
const CloudKeyPrefix = "cmk-sk-"

// NewForKey returns a Synthesizer for the given API key, routing relay
// keys to [Proxy] and everything else to [Anthropic].
func NewForKey(apiKey string, opts ...Option) Synthesizer {
	if strings.HasPrefix(apiKey, CloudKeyPrefix) {
		return NewProxy(apiKey, opts...)
	}
	return NewAnthropic(apiKey, opts...)
}

// Error is a synthesis failure reported by an upstream API.
type Error struct {
	// Provider identifies the failing backend ("anthropic", "gemini", "proxy").
	Provider string

	// Status is the HTTP status code when known, 0 otherwise.
	Status int

	// Message is a short description of the failure.
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("synth: %s failed (%d): %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("synth: %s failed: %s", e.Provider, e.Message)
}
