package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rohits-web03/vectorvault/internal/config"
)

// Ollama calls a local Ollama server's /api/embeddings endpoint.
type Ollama struct {
	baseURL    string
	model      string
	dim        int
	httpClient *http.Client
}

func NewOllama(cfg config.EmbedderConfig) (*Ollama, error) {
	if cfg.Dimension <= 0 {
		return nil, errors.New("ollama embedder: dimension must be > 0")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Ollama{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dim:        cfg.Dimension,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (o *Ollama) Name() string   { return "ollama" }
func (o *Ollama) Dimension() int { return o.dim }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	payload, err := do(ctx, o.httpClient, req, "ollama")
	if err != nil {
		return nil, err
	}
	var out ollamaResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("ollama: failed to decode response: %w", err)
	}
	if err := checkDimension("ollama", len(out.Embedding), o.dim); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}

// do executes req and classifies failures: network errors, 429 and 5xx
// are transient, any other non-2xx status is ErrInvalidInput.
func do(ctx context.Context, client *http.Client, req *http.Request, name string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: fmt.Errorf("%s: %w", name, err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("%s: read response: %w", name, err)}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{
			Err:        fmt.Errorf("%s: %s", name, resp.Status),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s: %s: %s", ErrInvalidInput, name, resp.Status, strings.TrimSpace(string(payload)))
	}
	return payload, nil
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
