package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/moreskylab/Sentio/embeddings"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	embeddingsEndpoint  = "/embeddings"
	DefaultModel        = "text-embedding-3-small"
	defaultHTTPClientTO = 30 * time.Second
)

type request struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type response struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct{ Message, Type string } `json:"error"`
}

// Client calls the OpenAI embeddings API.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// NewClient creates a client; an empty apiKey falls back to OPENAI_API_KEY.
func NewClient(apiKey, model string) *Client {
	c := &Client{
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		Model:      model,
		HTTPClient: &http.Client{Timeout: defaultHTTPClientTO},
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	return c
}

// Loader returns an embeddings.Loader that fails when no API key is available.
func Loader(apiKey, model, baseURL string) embeddings.Loader {
	return func(ctx context.Context) (embeddings.Embedder, error) {
		c := NewClient(apiKey, model)
		if baseURL != "" {
			c.BaseURL = baseURL
		}
		if c.APIKey == "" {
			return nil, fmt.Errorf("openai: api key is required (set OPENAI_API_KEY)")
		}
		return c, nil
	}
}

func (c *Client) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(request{Model: c.Model, Input: docs})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+embeddingsEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%s): %s", errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error: %s", resp.Status)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Data) != len(docs) {
		return nil, fmt.Errorf("openai returned %d vectors for %d inputs", len(out.Data), len(docs))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vecs := make([][]float32, len(out.Data))
	for i := range out.Data {
		vecs[i] = out.Data[i].Embedding
	}
	return vecs, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
