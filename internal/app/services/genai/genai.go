// Package genai forwards prompts to a chat completion provider.
//
// Ask never returns an error. Provider failures are logged and turned into
// a human readable error string so callers can pass the answer straight
// through to clients.
package genai

import (
	"context"
)

// MockResponse is the answer of the mock provider.
const MockResponse = "Mocked AI Response"

// Service is a text completion provider with token accounting.
type Service interface {
	// Ask sends prompt, with an optional system message, and returns the
	// provider's answer or an error string.
	Ask(ctx context.Context, prompt, systemMessage string) string
	// TokenUsage returns the cumulative tokens consumed by this instance.
	TokenUsage() int64
	// Provider names the backing provider.
	Provider() string
}

// MockAdapter answers every prompt with MockResponse.
type MockAdapter struct{}

var _ Service = MockAdapter{}

// NewMock returns the mock provider.
func NewMock() MockAdapter { return MockAdapter{} }

func (MockAdapter) Ask(context.Context, string, string) string { return MockResponse }

func (MockAdapter) TokenUsage() int64 { return 0 }

func (MockAdapter) Provider() string { return "mock" }
