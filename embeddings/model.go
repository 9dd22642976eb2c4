package embeddings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/moreskylab/Sentio/embeddings/cache"
)

const probeText = "dimension probe"

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithName sets the model name used in logs and cache keys.
func WithName(name string) ModelOption {
	return func(m *Model) { m.name = name }
}

// WithCache enables an in-process embedding cache.
func WithCache(c *cache.LRU) ModelOption {
	return func(m *Model) { m.cache = c }
}

// WithLogf sets the model logger.
func WithLogf(logf func(format string, args ...any)) ModelOption {
	return func(m *Model) {
		if logf != nil {
			m.logf = logf
		}
	}
}

// Model is the process-wide embedding model. It is constructed once and shared
// by reference; the underlying embedder is loaded on first use. Every vector it
// returns is L2-normalized, so cosine distance between two of them is bounded.
type Model struct {
	name   string
	loader Loader
	cache  *cache.LRU
	logf   func(format string, args ...any)

	mu       sync.Mutex
	embedder Embedder
	dim      int
	initErr  error
}

// NewModel creates a Model around loader. Nothing is loaded until first use.
func NewModel(loader Loader, opts ...ModelOption) *Model {
	m := &Model{loader: loader, logf: func(string, ...any) {}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dimension loads the model if needed and returns its output dimension.
func (m *Model) Dimension(ctx context.Context) (int, error) {
	_, dim, err := m.load(ctx)
	return dim, err
}

// Embed returns the normalized embedding of text.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	embedder, dim, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	key, keyErr := cache.Key(m.name, text)
	if keyErr == nil {
		if vec, ok := m.cache.Get(key); ok {
			return vec, nil
		}
	}
	vec, err := embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), dim)
	}
	if vec, err = Normalize(vec); err != nil {
		return nil, err
	}
	if keyErr == nil {
		m.cache.Add(key, vec)
	}
	return vec, nil
}

// EmbedBatch embeds texts in one provider call. Any failure fails the batch;
// callers needing per-text isolation fall back to Embed.
func (m *Model) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embedder, dim, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	out := make([][]float32, len(vecs))
	for i, vec := range vecs {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), dim)
		}
		if out[i], err = Normalize(vec); err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		if key, keyErr := cache.Key(m.name, texts[i]); keyErr == nil {
			m.cache.Add(key, out[i])
		}
	}
	return out, nil
}

func (m *Model) load(ctx context.Context) (Embedder, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.embedder != nil || m.initErr != nil {
		return m.embedder, m.dim, m.initErr
	}
	if m.loader == nil {
		m.initErr = fmt.Errorf("%w: %s: loader is nil", ErrModelLoad, m.name)
		return nil, 0, m.initErr
	}
	started := time.Now()
	m.logf("embeddings: loading model %s", m.name)
	// The model is shared, so one caller giving up must not abort the load.
	loadCtx := context.WithoutCancel(ctx)
	embedder, err := m.loader(loadCtx)
	if err == nil && embedder == nil {
		err = fmt.Errorf("loader returned no embedder")
	}
	if err != nil {
		return nil, 0, m.fail(fmt.Errorf("%w: %s: %w", ErrModelLoad, m.name, err))
	}
	probe, err := embedder.EmbedQuery(loadCtx, probeText)
	if err != nil {
		return nil, 0, m.fail(fmt.Errorf("%w: %s: probe: %w", ErrModelLoad, m.name, err))
	}
	if len(probe) == 0 {
		return nil, 0, m.fail(fmt.Errorf("%w: %s: model produced an empty vector", ErrModelLoad, m.name))
	}
	m.embedder, m.dim = embedder, len(probe)
	m.logf("embeddings: model %s ready dim=%d in %s", m.name, m.dim, time.Since(started).Round(time.Millisecond))
	return m.embedder, m.dim, nil
}

// fail records err as the sticky load error unless it is a timeout or
// cancellation, which a later call may not hit. Called with m.mu held.
func (m *Model) fail(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		m.logf("embeddings: model %s load interrupted: %v", m.name, err)
		return err
	}
	m.initErr = err
	return err
}

// Normalize returns a unit-length copy of vec.
func Normalize(vec []float32) ([]float32, error) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, ErrZeroVector
	}
	factor := 1 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * factor)
	}
	return out, nil
}
