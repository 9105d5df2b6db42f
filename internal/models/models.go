// Package models is the registry of supported language models and their prices.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// Provider names.
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
)

// DefaultModel is the cheapest vision-capable Claude model.
const DefaultModel = "claude-haiku"

// Info describes a model: where it is served and what it costs (USD per million tokens).
type Info struct {
	Name                 string  `json:"name"`
	Provider             string  `json:"provider"`
	ID                   string  `json:"model_id"`
	InputCostPerMillion  float64 `json:"input_cost_per_million"`
	OutputCostPerMillion float64 `json:"output_cost_per_million"`
	SupportsVision       bool    `json:"supports_vision"`
	ContextWindow        int     `json:"context_window"`
}

var registry = map[string]Info{
	"claude-haiku":      {Provider: Anthropic, ID: "claude-3-haiku-20240307", InputCostPerMillion: 0.25, OutputCostPerMillion: 1.25, SupportsVision: true, ContextWindow: 200000},
	"claude-haiku-4":    {Provider: Anthropic, ID: "claude-haiku-4-5-20251001", InputCostPerMillion: 1.0, OutputCostPerMillion: 5.0, SupportsVision: true, ContextWindow: 200000},
	"claude-sonnet":     {Provider: Anthropic, ID: "claude-sonnet-4-5-20250929", InputCostPerMillion: 3.0, OutputCostPerMillion: 15.0, SupportsVision: true, ContextWindow: 200000},
	"claude-sonnet-3.7": {Provider: Anthropic, ID: "claude-3-7-sonnet-20250219", InputCostPerMillion: 3.0, OutputCostPerMillion: 15.0, SupportsVision: true, ContextWindow: 200000},
	"claude-opus":       {Provider: Anthropic, ID: "claude-opus-4-5-20251101", InputCostPerMillion: 15.0, OutputCostPerMillion: 75.0, SupportsVision: true, ContextWindow: 200000},

	"gpt-4o":      {Provider: OpenAI, ID: "gpt-4o", InputCostPerMillion: 2.5, OutputCostPerMillion: 10.0, SupportsVision: true, ContextWindow: 128000},
	"gpt-4o-mini": {Provider: OpenAI, ID: "gpt-4o-mini", InputCostPerMillion: 0.15, OutputCostPerMillion: 0.6, SupportsVision: true, ContextWindow: 128000},
	"gpt-4-turbo": {Provider: OpenAI, ID: "gpt-4-turbo", InputCostPerMillion: 10.0, OutputCostPerMillion: 30.0, SupportsVision: true, ContextWindow: 128000},
	"gpt-4":       {Provider: OpenAI, ID: "gpt-4", InputCostPerMillion: 30.0, OutputCostPerMillion: 60.0, SupportsVision: false, ContextWindow: 8192},

	"llama3":       {Provider: Ollama, ID: "llama3", ContextWindow: 8192},
	"llama3.2":     {Provider: Ollama, ID: "llama3.2", ContextWindow: 128000},
	"mistral":      {Provider: Ollama, ID: "mistral", ContextWindow: 32000},
	"llava":        {Provider: Ollama, ID: "llava", SupportsVision: true, ContextWindow: 4096},
	"llava-llama3": {Provider: Ollama, ID: "llava-llama3", SupportsVision: true, ContextWindow: 8192},
}

// byID lets callers use provider model ids as well as aliases.
var byID = func() map[string]string {
	m := make(map[string]string, len(registry))
	for name, info := range registry {
		m[info.ID] = name
	}
	return m
}()

// Lookup returns the registered model for an alias or provider model id.
func Lookup(name string) (Info, bool) {
	if info, ok := registry[name]; ok {
		info.Name = name
		return info, true
	}
	if alias, ok := byID[name]; ok {
		info := registry[alias]
		info.Name = alias
		return info, true
	}
	return Info{}, false
}

// Resolve is Lookup plus local Ollama models that are not registered
// (names with a tag like "qwen2:7b", or llama*/mistral* families), which are free.
func Resolve(name string) (Info, error) {
	if info, ok := Lookup(name); ok {
		return info, nil
	}
	if IsCustomOllama(name) {
		return Info{
			Name:          name,
			Provider:      Ollama,
			ID:            name,
			ContextWindow: 8192,
			// llava-style tags are the only local family we know to accept images
			SupportsVision: strings.HasPrefix(name, "llava"),
		}, nil
	}
	return Info{}, fmt.Errorf("unknown model: %s (available: %s)", name, strings.Join(Names(), ", "))
}

// IsCustomOllama reports whether an unregistered name should be routed to Ollama.
func IsCustomOllama(name string) bool {
	return strings.Contains(name, ":") || strings.HasPrefix(name, "llama") || strings.HasPrefix(name, "mistral") || strings.HasPrefix(name, "llava")
}

// Names returns the registered aliases, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns every registered model, sorted by provider then name.
func List() []Info {
	out := make([]Info, 0, len(registry))
	for _, name := range Names() {
		info := registry[name]
		info.Name = name
		out = append(out, info)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Providers returns the provider names.
func Providers() []string {
	return []string{Anthropic, OpenAI, Ollama}
}

// Cost prices a call: tokens / 1e6 * price, input and output priced separately.
func (i Info) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1_000_000*i.InputCostPerMillion +
		float64(outputTokens)/1_000_000*i.OutputCostPerMillion
}
