// Package hashing provides a deterministic, offline embedder based on feature
// hashing of word unigrams and bigrams. It needs no model weights, which makes
// it suitable for tests and air-gapped development; its notion of similarity is
// lexical overlap, not meaning.
package hashing

import (
	"context"
	"strings"
	"unicode"

	"github.com/minio/highwayhash"
)

const DefaultDim = 256

var hashKey = []byte("sentio-feature-hashing-key-00000")

// Embedder maps text to a fixed-length vector of signed feature counts.
type Embedder struct {
	Dim int
}

// New creates a hashing embedder; non-positive dim selects DefaultDim.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &Embedder{Dim: dim}
}

// EmbedDocuments embeds every document.
func (e *Embedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	out := make([][]float32, len(docs))
	for i, doc := range docs {
		vec, err := e.EmbedQuery(ctx, doc)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery embeds a single text. Text without any word yields a zero vector.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = DefaultDim
	}
	vec := make([]float32, dim)
	words := Tokenize(text)
	for i, word := range words {
		if err := e.add(vec, word, 1); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := e.add(vec, words[i-1]+" "+word, 0.5); err != nil {
				return nil, err
			}
		}
	}
	return vec, nil
}

func (e *Embedder) add(vec []float32, feature string, weight float32) error {
	sum, err := highwayhash.New64(hashKey)
	if err != nil {
		return err
	}
	if _, err = sum.Write([]byte(feature)); err != nil {
		return err
	}
	h := sum.Sum64()
	idx := int(h % uint64(len(vec)))
	if h&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
	return nil
}

// Tokenize lower-cases text and splits it into letter/digit words.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
