package openai

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

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete implements llm.Provider using chat/completions. Images are sent inline as data URLs.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResult, error) {
	req = req.WithDefaults()
	start := time.Now()

	if req.Image != nil && !c.info.SupportsVision {
		return llm.CompletionResult{}, common.UnsupportedInputf("model %s does not support vision", c.info.Name)
	}

	var content any = req.Prompt
	if req.Image != nil {
		dataURL := "data:" + req.Image.MediaType + ";base64," + base64.StdEncoding.EncodeToString(req.Image.Data)
		content = []map[string]any{
			{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
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

	c.logger.Info("llm.openai.start",
		"model", c.info.ID,
		"prompt_len", len(req.Prompt),
		"vision", req.Image != nil,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		var se *llm.StatusError
		if errors.As(err, &se) {
			return llm.CompletionResult{}, common.APICallError(fmt.Sprintf("openai status %d", status), err)
		}
		return llm.CompletionResult{}, common.APICallError("openai request failed", err)
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.openai.decode_error", "error", err, "raw_bytes", len(raw))
		return llm.CompletionResult{}, common.ResponseParseError("decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.openai.no_choices", "raw", string(raw))
		return llm.CompletionResult{}, common.ResponseParseError("no choices in openai response", nil)
	}

	out := llm.CompletionResult{
		Content:    strings.TrimSpace(cc.Choices[0].Message.Content),
		Model:      c.info.ID,
		StopReason: cc.Choices[0].FinishReason,
	}
	if cc.Model != "" {
		out.Model = cc.Model
	}
	if cc.Usage != nil {
		out.InputTokens = cc.Usage.PromptTokens
		out.OutputTokens = cc.Usage.CompletionTokens
	}

	c.logger.Info("llm.openai.ok",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"finish_reason", out.StopReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}
