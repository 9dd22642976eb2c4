package vertexai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func TestClientEmbedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Instances) != 1 || req.Instances[0].TaskType != "RETRIEVAL_QUERY" {
			t.Errorf("unexpected instances %+v", req.Instances)
		}
		_, _ = w.Write([]byte(`{"predictions":[{"embeddings":{"values":[0.1,0.2,0.3]}}]}`))
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token-1"})
	embedder, err := Loader("proj", "", WithTokenSource(ts), WithEndpoint(srv.URL))(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	vec, err := embedder.EmbedQuery(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("expected 3 values, got %d", len(vec))
	}
}

func TestNewClientRequiresProject(t *testing.T) {
	if _, err := NewClient(context.Background(), "", ""); err == nil {
		t.Fatalf("expected project id error")
	}
}

func TestEndpoint(t *testing.T) {
	c := &Client{ProjectID: "p", Location: "europe-west1", Model: DefaultModel}
	want := "https://europe-west1-aiplatform.googleapis.com/v1/projects/p/locations/europe-west1/publishers/google/models/text-embedding-004:predict"
	if got := c.endpoint(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
