// Package vertexai embeds text with the Vertex AI text-embedding models using
// application default credentials.
package vertexai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/moreskylab/Sentio/embeddings"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultLocation   = "us-central1"
	DefaultModel      = "text-embedding-004"
	defaultHTTPTO     = 30 * time.Second
	defaultScopeCloud = "https://www.googleapis.com/auth/cloud-platform"
)

type ClientOption func(*Client)

func WithLocation(location string) ClientOption {
	return func(c *Client) {
		if location != "" {
			c.Location = location
		}
	}
}

func WithScopes(scopes ...string) ClientOption {
	return func(c *Client) {
		c.Scopes = append(c.Scopes, scopes...)
	}
}

// WithTokenSource replaces application default credentials.
func WithTokenSource(ts oauth2.TokenSource) ClientOption {
	return func(c *Client) { c.tokenSource = ts }
}

// WithEndpoint overrides the predict URL.
func WithEndpoint(URL string) ClientOption {
	return func(c *Client) { c.endpointURL = URL }
}

type Client struct {
	ProjectID string
	Location  string
	Model     string
	Scopes    []string

	endpointURL string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

type predictRequest struct {
	Instances []predictInstance `json:"instances"`
}

type predictInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type,omitempty"`
}

type predictResponse struct {
	Predictions []struct {
		Embeddings struct {
			Values []float32 `json:"values"`
		} `json:"embeddings"`
	} `json:"predictions"`
}

func NewClient(ctx context.Context, projectID, model string, opts ...ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("vertexai project id is required")
	}
	c := &Client{
		ProjectID:  projectID,
		Location:   defaultLocation,
		Model:      model,
		httpClient: &http.Client{Timeout: defaultHTTPTO},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if len(c.Scopes) == 0 {
		c.Scopes = []string{defaultScopeCloud}
	}
	if c.tokenSource == nil {
		ts, err := google.DefaultTokenSource(ctx, c.Scopes...)
		if err != nil {
			return nil, fmt.Errorf("vertexai token source: %w", err)
		}
		c.tokenSource = ts
	}
	return c, nil
}

// Loader returns an embeddings.Loader that resolves credentials on first use.
func Loader(projectID, model string, opts ...ClientOption) embeddings.Loader {
	return func(ctx context.Context) (embeddings.Embedder, error) {
		return NewClient(ctx, projectID, model, opts...)
	}
}

func (c *Client) endpoint() string {
	if c.endpointURL != "" {
		return c.endpointURL
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.Location, c.ProjectID, c.Location, c.Model)
}

func (c *Client) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	return c.embed(ctx, docs, "RETRIEVAL_DOCUMENT")
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text}, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no input texts provided")
	}
	instances := make([]predictInstance, 0, len(texts))
	for _, t := range texts {
		instances = append(instances, predictInstance{Content: t, TaskType: task})
	}
	body, err := json.Marshal(predictRequest{Instances: instances})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token, err := c.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("vertexai token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vertexai API error: %s", strings.TrimSpace(string(body)))
	}
	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Predictions) != len(texts) {
		return nil, fmt.Errorf("vertexai returned %d vectors for %d inputs", len(out.Predictions), len(texts))
	}
	vecs := make([][]float32, 0, len(out.Predictions))
	for _, p := range out.Predictions {
		vecs = append(vecs, p.Embeddings.Values)
	}
	return vecs, nil
}
