package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rohits-web03/vectorvault/internal/config"
)

// OpenAI calls an OpenAI-compatible /embeddings endpoint.
type OpenAI struct {
	baseURL    string
	apiKey     string
	model      string
	dim        int
	httpClient *http.Client
}

func NewOpenAI(cfg config.EmbedderConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embedder: missing API key in OPENAI_API_KEY")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("openai embedder: dimension must be > 0")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		dim:        cfg.Dimension,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (c *OpenAI) Name() string   { return "openai" }
func (c *OpenAI) Dimension() int { return c.dim }

type openAIRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(openAIRequest{Input: text, Model: c.model, Dimensions: c.dim})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	payload, err := do(ctx, c.httpClient, req, "openai")
	if err != nil {
		return nil, err
	}
	var out openAIResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("openai: failed to decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, errors.New("openai: no embedding returned")
	}
	v := out.Data[0].Embedding
	if err := checkDimension("openai", len(v), c.dim); err != nil {
		return nil, err
	}
	return v, nil
}
