// Package recommend answers "articles similar to this text or article".
package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/moreskylab/Sentio/indexsync"
	"github.com/moreskylab/Sentio/recordstore"
	"github.com/moreskylab/Sentio/vectordb"
)

// DefaultLimit is the number of recommendations returned.
const DefaultLimit = 5

var (
	// ErrInvalidInput is returned unless exactly one non-blank query field is set.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when the reference article does not exist.
	ErrNotFound = recordstore.ErrNotFound
)

// Query selects the reference: free text or an existing article.
type Query struct {
	Text      *string `json:"query,omitempty"`
	ArticleID *int64  `json:"article_id,omitempty"`
}

// Recommendation is a ranked similar article.
type Recommendation struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Embedder embeds query text. *embeddings.Model implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLimit overrides DefaultLimit.
func WithLimit(k int) Option {
	return func(s *Service) {
		if k > 0 {
			s.limit = k
		}
	}
}

// WithTable overrides the index table.
func WithTable(table string) Option {
	return func(s *Service) {
		if table != "" {
			s.table = table
		}
	}
}

// Service is the query service.
type Service struct {
	embedder Embedder
	store    vectordb.Store
	articles recordstore.Reader
	table    string
	limit    int
}

// New creates a query service.
func New(embedder Embedder, store vectordb.Store, articles recordstore.Reader, opts ...Option) *Service {
	s := &Service{
		embedder: embedder,
		store:    store,
		articles: articles,
		table:    vectordb.DefaultTable,
		limit:    DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate checks exactly one field is set and text is not blank.
func (q Query) Validate() error {
	switch {
	case q.Text == nil && q.ArticleID == nil:
		return fmt.Errorf("%w: query or article_id is required", ErrInvalidInput)
	case q.Text != nil && q.ArticleID != nil:
		return fmt.Errorf("%w: query and article_id are mutually exclusive", ErrInvalidInput)
	case q.Text != nil && strings.TrimSpace(*q.Text) == "":
		return fmt.Errorf("%w: query is blank", ErrInvalidInput)
	}
	return nil
}

// Recommend returns up to the configured limit of articles ordered by
// descending similarity. An empty index yields an empty slice. An article
// query includes the article itself, normally first.
func (s *Service) Recommend(ctx context.Context, q Query) ([]Recommendation, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	text, err := s.referenceText(ctx, q)
	if err != nil {
		return nil, err
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("recommend: embed query: %w", err)
	}
	matches, err := s.store.Search(ctx, s.table, vec, s.limit)
	if err != nil {
		return nil, fmt.Errorf("recommend: search: %w", err)
	}
	out := make([]Recommendation, 0, len(matches))
	for _, m := range matches {
		out = append(out, Recommendation{ID: m.ID, Title: m.Title, SimilarityScore: Score(m.Distance)})
	}
	return out, nil
}

func (s *Service) referenceText(ctx context.Context, q Query) (string, error) {
	if q.Text != nil {
		return *q.Text, nil
	}
	article, err := s.articles.GetByID(ctx, *q.ArticleID)
	if err != nil {
		return "", err
	}
	return indexsync.DocumentText(*article), nil
}

// Score converts a distance in [0,1] to a similarity in [0,1].
func Score(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	return math.Max(0, math.Min(1, 1-distance))
}
