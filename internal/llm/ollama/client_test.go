package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SIMOUNIX/harvestor/internal/common"
	"github.com/SIMOUNIX/harvestor/internal/llm"
	"github.com/SIMOUNIX/harvestor/internal/models"
)

func newTestClient(t *testing.T, model, url string) *Client {
	t.Helper()
	info, err := models.Resolve(model)
	require.NoError(t, err)
	return NewClient(info, Config{BaseURL: url}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCompleteGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llava", body["model"])
		assert.Equal(t, false, body["stream"])
		opts := body["options"].(map[string]any)
		assert.Equal(t, float64(0), opts["temperature"])
		assert.Equal(t, float64(2048), opts["num_predict"])
		assert.Len(t, body["images"], 1)

		_, _ = w.Write([]byte(`{"model":"llava","response":"{\"total\": 3}","done_reason":"stop","prompt_eval_count":30,"eval_count":9}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, "llava", srv.URL).Complete(context.Background(), llm.CompletionRequest{
		Prompt: "x", Image: &llm.Image{Data: []byte{1, 2}, MediaType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"total": 3}`, res.Content)
	assert.Equal(t, 30, res.InputTokens)
	assert.Equal(t, 9, res.OutputTokens)
}

func TestCompleteCustomModelTextOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen2:7b", body["model"])
		assert.NotContains(t, body, "images")
		_, _ = w.Write([]byte(`{"response":"{}"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, "qwen2:7b", srv.URL)
	_, err := c.Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), llm.CompletionRequest{Prompt: "x", Image: &llm.Image{Data: []byte{1}}})
	assert.True(t, errors.Is(err, common.ErrUnsupportedInput))
}

func TestCompleteConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, "llama3", url).Complete(context.Background(), llm.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrAPICall))
	assert.Contains(t, err.Error(), "Is Ollama running?")
}

func TestListLocalModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"llava:13b"}]}`))
	}))
	defer srv.Close()

	names, err := newTestClient(t, "llama3", srv.URL).ListLocalModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3:latest", "llava:13b"}, names)
}

func TestBaseURLFromEnv(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")
	c := NewClient(models.Info{}, Config{}, nil)
	assert.Equal(t, "http://gpu-box:11434", c.cfg.BaseURL)

	t.Setenv("OLLAMA_BASE_URL", "")
	c = NewClient(models.Info{}, Config{}, nil)
	assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
}
