package indexsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/moreskylab/Sentio/embeddings"
	"github.com/moreskylab/Sentio/embeddings/hashing"
	"github.com/moreskylab/Sentio/recordstore"
	"github.com/moreskylab/Sentio/vectordb"
	"github.com/moreskylab/Sentio/vectordb/sqlitevec"
)

// flakyEmbedder fails every text containing "FAIL".
type flakyEmbedder struct {
	inner *hashing.Embedder
}

func (f *flakyEmbedder) EmbedDocuments(ctx context.Context, docs []string) ([][]float32, error) {
	for _, doc := range docs {
		if strings.Contains(doc, "FAIL") {
			return nil, errors.New("provider rejected input")
		}
	}
	return f.inner.EmbedDocuments(ctx, docs)
}

func (f *flakyEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "FAIL") {
		return nil, errors.New("provider rejected input")
	}
	return f.inner.EmbedQuery(ctx, text)
}

// noMergeStore reports every upsert as unsupported.
type noMergeStore struct {
	vectordb.Store
	upserts int
}

func (s *noMergeStore) UpsertOne(ctx context.Context, table string, row vectordb.Document) error {
	s.upserts++
	return vectordb.ErrUpsertUnsupported
}

func newModel() *embeddings.Model {
	return embeddings.NewModel(embeddings.Static(&flakyEmbedder{inner: hashing.New(64)}), embeddings.WithName("hashing"))
}

func newStore(t *testing.T, opts ...sqlitevec.Option) *sqlitevec.Store {
	t.Helper()
	opts = append([]sqlitevec.Option{sqlitevec.WithDSN(filepath.Join(t.TempDir(), "index.sqlite"))}, opts...)
	s, err := sqlitevec.NewStore(opts...)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func article(id int64, title, content string) recordstore.Article {
	return recordstore.Article{ID: id, Title: title, Content: content}
}

func TestOnSavedIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store)
	a := article(1, "Carbonara", "Pasta with eggs and pork")
	for i := 0; i < 3; i++ {
		if err := c.OnSaved(ctx, a); err != nil {
			t.Fatalf("on saved: %v", err)
		}
	}
	if n, _ := store.Count(ctx, vectordb.DefaultTable); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	a.Title = "Spaghetti carbonara"
	if err := c.OnSaved(ctx, a); err != nil {
		t.Fatalf("on saved: %v", err)
	}
	matches, err := store.Search(ctx, vectordb.DefaultTable, mustEmbed(t, DocumentText(a)), 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Title != "Spaghetti carbonara" {
		t.Fatalf("expected updated row, got %+v", matches)
	}
	if matches[0].Distance > 1e-6 {
		t.Fatalf("expected identical vector, distance %v", matches[0].Distance)
	}
}

func mustEmbed(t *testing.T, text string) []float32 {
	t.Helper()
	vec, err := newModel().Embed(context.Background(), text)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	return vec
}

func TestOnSavedSnippet(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store)
	long := strings.Repeat("word ", 60)
	if err := c.OnSaved(ctx, article(1, "Long", long)); err != nil {
		t.Fatalf("on saved: %v", err)
	}
	matches, _ := store.Search(ctx, vectordb.DefaultTable, mustEmbed(t, "Long. "+long), 1)
	if len([]rune(matches[0].Text)) != vectordb.SnippetLimit || !strings.HasPrefix(matches[0].Text, "Long. word") {
		t.Fatalf("unexpected snippet %q", matches[0].Text)
	}
}

func TestOnSavedFallbackWithoutMergeKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, sqlitevec.WithMergeKey(false))
	var logs []string
	c := New(newModel(), store, WithLogf(func(format string, args ...any) {
		logs = append(logs, fmt.Sprintf(format, args...))
	}))
	for i := 0; i < 3; i++ {
		if err := c.OnSaved(ctx, article(5, "Inflation", "Prices rise")); err != nil {
			t.Fatalf("on saved: %v", err)
		}
	}
	if err := c.OnSaved(ctx, article(6, "Rates", "Banks raise rates")); err != nil {
		t.Fatalf("on saved: %v", err)
	}
	stats, err := store.Check(ctx, vectordb.DefaultTable)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if stats.Rows != 2 || !stats.Healthy() {
		t.Fatalf("expected one row per id, got %+v", stats)
	}
	if !strings.Contains(strings.Join(logs, "\n"), "(fallback)") {
		t.Fatalf("expected fallback log, got %v", logs)
	}
}

func TestOnSavedForcedUpsertUnsupported(t *testing.T) {
	ctx := context.Background()
	store := &noMergeStore{Store: newStore(t)}
	c := New(newModel(), store)
	for i := 0; i < 2; i++ {
		if err := c.OnSaved(ctx, article(9, "Carbonara", "eggs")); err != nil {
			t.Fatalf("on saved: %v", err)
		}
	}
	if store.upserts != 1 {
		t.Fatalf("expected one upsert attempt after table creation, got %d", store.upserts)
	}
	if n, _ := store.Count(ctx, vectordb.DefaultTable); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestOnDeleted(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store)
	if err := c.OnDeleted(ctx, 42); err != nil {
		t.Fatalf("delete on absent table: %v", err)
	}
	_ = c.OnSaved(ctx, article(1, "a", "b"))
	_ = c.OnSaved(ctx, article(2, "c", "d"))
	if err := c.OnDeleted(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := c.OnDeleted(ctx, 1); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if n, _ := store.Count(ctx, vectordb.DefaultTable); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}

func TestOnSavedEmbedFailure(t *testing.T) {
	store := newStore(t)
	c := New(newModel(), store)
	if err := c.OnSaved(context.Background(), article(1, "FAIL", "x")); err == nil {
		t.Fatalf("expected embed failure")
	}
	if tbl, _ := store.OpenOrNone(context.Background(), vectordb.DefaultTable); tbl != nil {
		t.Fatalf("expected no table after failed sync")
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store)
	queue := recordstore.NewQueue(4)
	_ = queue.OnSaved(ctx, article(1, "a", "b"))
	_ = queue.OnSaved(ctx, article(2, "FAIL", "b"))
	_ = queue.OnDeleted(ctx, 3)
	queue.Close()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, queue.Events()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not stop after queue close")
	}
	if n, _ := store.Count(ctx, vectordb.DefaultTable); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
}
