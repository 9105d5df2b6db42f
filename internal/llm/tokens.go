package llm

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"unicode/utf8"

	_ "golang.org/x/image/webp"
)

const (
	charsPerToken = 4
	// Providers downscale large images; ~1600 tokens is the most a single image costs.
	maxImageTokens = 1600
	// Used when the image header cannot be decoded.
	fallbackImageTokens = 1600
)

// EstimateTextTokens is the rough chars/4 heuristic.
func EstimateTextTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

// EstimateImageTokens approximates vision input cost from the image dimensions (w*h/750).
func EstimateImageTokens(data []byte) int {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return fallbackImageTokens
	}
	tokens := cfg.Width * cfg.Height / 750
	if tokens < 1 {
		tokens = 1
	}
	if tokens > maxImageTokens {
		tokens = maxImageTokens
	}
	return tokens
}

// EstimateRequestTokens estimates input tokens for a request and takes MaxTokens as the
// worst-case output.
func EstimateRequestTokens(req CompletionRequest) (input, output int) {
	req = req.WithDefaults()
	input = EstimateTextTokens(req.Prompt)
	if req.Image != nil {
		input += EstimateImageTokens(req.Image.Data)
	}
	return input, req.MaxTokens
}
