package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/af-corp/intentd/internal/config"
)

// Embedder turns text into unit-length vectors.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New builds an embedder for the given provider entry. Ollama speaks
// /api/embed; everything else is treated as an OpenAI-style /embeddings API.
func New(cfg config.ProviderConfig, model string) Embedder {
	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.Type == "ollama" {
		return &OllamaClient{baseURL: cfg.BaseURL, model: model, client: client}
	}
	return &OpenAIClient{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, model: model, client: client}
}

type ollamaEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaClient calls Ollama's batch /api/embed endpoint.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

func (c *OllamaClient) Model() string { return c.model }

func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out ollamaEmbedResp
	if err := postJSON(ctx, c.client, c.baseURL+"/api/embed", "", ollamaEmbedReq{Model: c.model, Input: texts}, &out); err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return normalizeAll(out.Embeddings, len(texts))
}

type openAIEmbedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResp struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// OpenAIClient calls an OpenAI-compatible /embeddings endpoint.
type OpenAIClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func (c *OpenAIClient) Model() string { return c.model }

func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out openAIEmbedResp
	if err := postJSON(ctx, c.client, c.baseURL+"/embeddings", c.apiKey, openAIEmbedReq{Model: c.model, Input: texts}, &out); err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	vecs := make([][]float32, len(out.Data))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return normalizeAll(vecs, len(texts))
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func normalizeAll(vecs [][]float32, want int) ([][]float32, error) {
	if len(vecs) != want {
		return nil, fmt.Errorf("expected %d embeddings, got %d", want, len(vecs))
	}
	for i, v := range vecs {
		n := Normalize(v)
		if n == nil {
			return nil, fmt.Errorf("embedding %d is empty or zero", i)
		}
		vecs[i] = n
	}
	return vecs, nil
}

// Normalize returns v scaled to unit length, or nil for an empty or zero vector.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
