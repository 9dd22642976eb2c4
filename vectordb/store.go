package vectordb

import (
	"context"
	"unicode/utf8"
)

const (
	// DefaultTable is the single logical index holding article embeddings.
	DefaultTable = "items"
	// SnippetLimit bounds the stored text snippet, in characters.
	SnippetLimit = 100
)

// Document is an indexed article: its embedding plus display fields.
type Document struct {
	ID     int64
	Vector []float32
	Title  string
	Text   string
}

// Match is a search hit. Distance is in [0,1], lower is closer.
type Match struct {
	ID       int64
	Title    string
	Text     string
	Distance float64
}

// Table describes an existing index table.
type Table struct {
	Name     string
	Dim      int
	MergeKey bool
}

// Stats summarizes an integrity check of a table.
type Stats struct {
	Table         string
	Rows          int
	DistinctIDs   int
	DuplicateIDs  []int64
	BadDimensions int
}

// Healthy reports whether the table holds at most one row per id and every
// vector has the table dimension.
func (s *Stats) Healthy() bool {
	return len(s.DuplicateIDs) == 0 && s.BadDimensions == 0
}

// Store persists documents and answers nearest-neighbour queries.
type Store interface {
	// OpenOrNone returns nil, nil when the table does not exist.
	OpenOrNone(ctx context.Context, table string) (*Table, error)
	// InsertBatch appends rows, creating the table from the first row when absent.
	InsertBatch(ctx context.Context, table string, rows []Document) error
	// UpsertOne inserts or replaces the row keyed by id.
	UpsertOne(ctx context.Context, table string, row Document) error
	// DeleteByID removes the row keyed by id; absence is not an error.
	DeleteByID(ctx context.Context, table string, id int64) error
	// Search returns up to k rows by ascending distance to query.
	Search(ctx context.Context, table string, query []float32, k int) ([]Match, error)
	// Replace atomically swaps the table content for rows.
	Replace(ctx context.Context, table string, rows []Document) error
	Drop(ctx context.Context, table string) error
	Count(ctx context.Context, table string) (int, error)
	Check(ctx context.Context, table string) (*Stats, error)
	Close() error
}

// Snippet truncates text to SnippetLimit characters without splitting a rune.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= SnippetLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:SnippetLimit])
}
