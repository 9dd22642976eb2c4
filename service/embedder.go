package service

import (
	"fmt"

	"github.com/moreskylab/Sentio/embeddings"
	"github.com/moreskylab/Sentio/embeddings/hashing"
	"github.com/moreskylab/Sentio/embeddings/ollama"
	"github.com/moreskylab/Sentio/embeddings/openai"
	"github.com/moreskylab/Sentio/embeddings/vertexai"
)

// newLoader maps the embedder config to a provider loader. Nothing is
// contacted until the model is first used.
func newLoader(cfg EmbedderConfig) (embeddings.Loader, string) {
	switch cfg.Provider {
	case ProviderOpenAI:
		model := cfg.Model
		if model == "" {
			model = openai.DefaultModel
		}
		return openai.Loader(cfg.APIKey, model, cfg.BaseURL), ProviderOpenAI + "/" + model
	case ProviderVertexAI:
		model := cfg.Model
		if model == "" {
			model = vertexai.DefaultModel
		}
		return vertexai.Loader(cfg.Project, model, vertexai.WithLocation(cfg.Location)), ProviderVertexAI + "/" + model
	case ProviderHashing:
		embedder := hashing.New(cfg.Dim)
		return embeddings.Static(embedder), fmt.Sprintf("%s/%d", ProviderHashing, embedder.Dim)
	default:
		model := cfg.Model
		if model == "" {
			model = ollama.DefaultModel
		}
		return ollama.Loader(model, ollama.WithBaseURL(cfg.BaseURL)), ProviderOllama + "/" + model
	}
}
