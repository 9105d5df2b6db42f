// Package ollama talks to a local Ollama server through /api/generate.
package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/llm"
)

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	TotalDuration   int64  `json:"total_duration"`
}

// Complete implements llm.Provider. Streaming is off so one JSON document comes back.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	req = req.WithDefaults()
	start := time.Now()

	if req.Image != nil && !c.info.SupportsVision {
		return llm.CompletionResult{}, common.UnsupportedInputf(
			"model %s does not support vision. Use 'llava' or 'llava-llama3'", c.info.Name)
	}

	body := map[string]any{
		"model":  c.info.ID,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": req.Temperature,
			"num_predict": req.MaxTokens,
		},
	}
	if req.Image != nil {
		body["images"] = []string{base64.StdEncoding.EncodeToString(req.Image.Data)}
	}

	c.logger.Info("llm.ollama.start",
		"model", c.info.ID,
		"base_url", c.cfg.BaseURL,
		"prompt_len", len(req.Prompt),
		"vision", req.Image != nil,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/generate"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, nil, c.logger)
	if err != nil {
		var se *llm.StatusError
		if errors.As(err, &se) {
			return llm.CompletionResult{}, common.APICallError(fmt.Sprintf("ollama status %d", status), err)
		}
		return llm.CompletionResult{}, common.APICallError(
			fmt.Sprintf("cannot connect to Ollama at %s. Is Ollama running?", c.cfg.BaseURL), err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.logger.Error("llm.ollama.decode_error", "error", err, "raw_bytes", len(raw))
		return llm.CompletionResult{}, common.ResponseParseError("decode ollama response", err)
	}

	out := llm.CompletionResult{
		Content:      gr.Response,
		InputTokens:  gr.PromptEvalCount,
		OutputTokens: gr.EvalCount,
		Model:        c.info.ID,
		StopReason:   gr.DoneReason,
	}
	if gr.Model != "" {
		out.Model = gr.Model
	}

	c.logger.Info("llm.ollama.ok",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"total_duration_ns", gr.TotalDuration,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// ListLocalModels returns the model names installed on the Ollama server.
func (c *Client) ListLocalModels(ctx context.Context) ([]string, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, common.APICallError(fmt.Sprintf("cannot connect to Ollama at %s", c.cfg.BaseURL), err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Warn("llm.ollama.response_body_close_error", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode/100 != 2 {
		return nil, common.APICallError(fmt.Sprintf("ollama status %d", resp.StatusCode), nil)
	}
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, common.ResponseParseError("decode ollama tags", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
