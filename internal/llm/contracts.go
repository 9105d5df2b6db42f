// Package llm holds what every model provider shares: the Provider contract,
// the HTTP helper, prompt construction, token estimates and response parsing.
package llm

import (
	"context"

	"github.com/SIMOUNIX/harvestor/internal/models"
)

// Defaults applied to every extraction call.
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.0
)

// Image is an inline image attached to a vision request.
type Image struct {
	Data      []byte
	MediaType string
}

type CompletionRequest struct {
	Prompt      string
	Image       *Image // nil for text-only requests
	MaxTokens   int
	Temperature float32
}

type CompletionResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string // provider model id that served the call
	StopReason   string
}

// Provider is the interface the harvester depends on.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	Info() models.Info
}

// WithDefaults fills zero values with the package defaults.
func (r CompletionRequest) WithDefaults() CompletionRequest {
	if r.MaxTokens <= 0 {
		r.MaxTokens = DefaultMaxTokens
	}
	return r
}
