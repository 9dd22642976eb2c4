package embeddings

import "context"

// Embedder is a minimal interface for computing vector embeddings
// for documents and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Loader initializes an Embedder. A Model runs its loader at most once.
type Loader func(ctx context.Context) (Embedder, error)

// Static returns a Loader for an already constructed embedder.
func Static(embedder Embedder) Loader {
	return func(ctx context.Context) (Embedder, error) { return embedder, nil }
}
