// Package anthropic talks to the Claude Messages API.
package anthropic

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/llm"
)

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete implements llm.Provider. An image goes first as a base64 source block, then the prompt.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	req = req.WithDefaults()
	start := time.Now()

	if req.Image != nil && !c.info.SupportsVision {
		return llm.CompletionResult{}, common.UnsupportedInputf("model %s does not support vision", c.info.Name)
	}

	var content any = req.Prompt
	if req.Image != nil {
		content = []map[string]any{
			{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": req.Image.MediaType,
					"data":       base64.StdEncoding.EncodeToString(req.Image.Data),
				},
			},
			{"type": "text", "text": req.Prompt},
		}
	}

	body := map[string]any{
		"model":       c.info.ID,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": APIVersion,
	}

	c.logger.Info("llm.anthropic.start",
		"model", c.info.ID,
		"prompt_len", len(req.Prompt),
		"vision", req.Image != nil,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/messages"
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var se *llm.StatusError
		if errors.As(err, &se) {
			return llm.CompletionResult{}, common.APICallError(fmt.Sprintf("anthropic status %d", status), err)
		}
		return llm.CompletionResult{}, common.APICallError("anthropic request failed", err)
	}

	var mr messagesResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		c.logger.Error("llm.anthropic.decode_error", "error", err, "raw_bytes", len(raw))
		return llm.CompletionResult{}, common.ResponseParseError("decode anthropic response", err)
	}

	var text strings.Builder
	for _, block := range mr.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		c.logger.Error("llm.anthropic.no_text", "stop_reason", mr.StopReason)
		return llm.CompletionResult{}, common.ResponseParseError("no text content in anthropic response", nil)
	}

	out := llm.CompletionResult{
		Content:      text.String(),
		InputTokens:  mr.Usage.InputTokens,
		OutputTokens: mr.Usage.OutputTokens,
		Model:        c.info.ID,
		StopReason:   mr.StopReason,
	}
	if mr.Model != "" {
		out.Model = mr.Model
	}

	c.logger.Info("llm.anthropic.ok",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"stop_reason", out.StopReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
