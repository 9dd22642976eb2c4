package indexsync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/moreskylab/Sentio/embeddings"
	"github.com/moreskylab/Sentio/recordstore"
	"github.com/moreskylab/Sentio/vectordb"
)

func articles(n int) []recordstore.Article {
	out := make([]recordstore.Article, n)
	for i := range out {
		out[i] = article(int64(i+1), fmt.Sprintf("Article %d", i+1), fmt.Sprintf("content number %d", i+1))
	}
	return out
}

func TestReindexCount(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store, WithBatchSize(4))
	_ = c.OnSaved(ctx, article(100, "stale", "row"))
	report, err := c.Reindex(ctx, articles(10))
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if report.Processed != 10 || report.Indexed != 10 || report.Outcome() != "success" {
		t.Fatalf("unexpected report %+v", report)
	}
	if n, _ := store.Count(ctx, vectordb.DefaultTable); n != 10 {
		t.Fatalf("expected table replaced with 10 rows, got %d", n)
	}
	stats, _ := store.Check(ctx, vectordb.DefaultTable)
	if !stats.Healthy() || stats.DistinctIDs != 10 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

// syncDuringReplace drops the table and runs an inline save right before the
// rebuild writes, as an event handler racing a reindex would.
type syncDuringReplace struct {
	vectordb.Store
	onReplace func(ctx context.Context)
}

func (s *syncDuringReplace) Replace(ctx context.Context, table string, rows []vectordb.Document) error {
	s.onReplace(ctx)
	return s.Store.Replace(ctx, table, rows)
}

func TestReindexWithConcurrentSave(t *testing.T) {
	ctx := context.Background()
	inner := newStore(t)
	store := &syncDuringReplace{Store: inner}
	c := New(newModel(), store)
	sync := New(newModel(), inner)
	store.onReplace = func(ctx context.Context) {
		if err := inner.Drop(ctx, vectordb.DefaultTable); err != nil {
			t.Fatalf("drop: %v", err)
		}
		if err := sync.OnSaved(ctx, article(3, "Article 3", "edited while rebuilding")); err != nil {
			t.Fatalf("on saved: %v", err)
		}
	}
	report, err := c.Reindex(ctx, articles(5))
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if report.Indexed != 5 {
		t.Fatalf("unexpected report %+v", report)
	}
	stats, err := inner.Check(ctx, vectordb.DefaultTable)
	if err != nil || stats.Rows != 5 || !stats.Healthy() {
		t.Fatalf("expected 5 healthy rows, got %+v %v", stats, err)
	}
	if err := sync.OnSaved(ctx, article(6, "Article 6", "saved after rebuild")); err != nil {
		t.Fatalf("on saved after rebuild: %v", err)
	}
	if n, _ := inner.Count(ctx, vectordb.DefaultTable); n != 6 {
		t.Fatalf("expected 6 rows, got %d", n)
	}
}

func TestReindexSkipFailed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store, WithBatchSize(3))
	input := articles(6)
	input[4].Title = "FAIL"
	report, err := c.Reindex(ctx, input)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if report.Processed != 6 || report.Indexed != 5 || len(report.Failures) != 1 || report.Failures[0].ID != 5 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Outcome() != "warning" {
		t.Fatalf("expected warning outcome")
	}
}

func TestReindexStrict(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store, WithPolicy(Strict))
	_ = c.OnSaved(ctx, article(1, "kept", "row"))
	input := articles(3)
	input[1].Content = "FAIL"
	if _, err := c.Reindex(ctx, input); err == nil {
		t.Fatalf("expected strict failure")
	}
	if n, _ := store.Count(ctx, vectordb.DefaultTable); n != 1 {
		t.Fatalf("expected index untouched, got %d rows", n)
	}
}

func TestUsingStrictLeavesOriginalPolicy(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store)
	input := articles(3)
	input[0].Title = "FAIL"
	if _, err := c.Using(Strict).Reindex(ctx, input); err == nil {
		t.Fatalf("expected strict failure")
	}
	report, err := c.Reindex(ctx, input)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if report.Indexed != 2 || len(report.Failures) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestReindexEmptyAndAllFailed(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	c := New(newModel(), store)
	report, err := c.Reindex(ctx, nil)
	if err != nil || report.Warning == "" || report.Outcome() != "warning" {
		t.Fatalf("expected warning for empty run, got %+v %v", report, err)
	}
	if tbl, _ := store.OpenOrNone(ctx, vectordb.DefaultTable); tbl != nil {
		t.Fatalf("expected no table")
	}
	_ = c.OnSaved(ctx, article(1, "kept", "row"))
	report, err = c.Reindex(ctx, []recordstore.Article{article(2, "FAIL", "x"), article(3, "FAIL", "y")})
	if err != nil || report.Indexed != 0 || report.Warning == "" {
		t.Fatalf("expected warning for all failed, got %+v %v", report, err)
	}
	if n, _ := store.Count(ctx, vectordb.DefaultTable); n != 1 {
		t.Fatalf("expected index untouched, got %d rows", n)
	}
}

func TestReindexModelLoadAborts(t *testing.T) {
	broken := embeddings.NewModel(func(ctx context.Context) (embeddings.Embedder, error) {
		return nil, errors.New("no weights")
	})
	c := New(broken, newStore(t))
	if _, err := c.Reindex(context.Background(), articles(2)); !errors.Is(err, embeddings.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

type staticReader []recordstore.Article

func (r staticReader) GetByID(ctx context.Context, id int64) (*recordstore.Article, error) {
	return nil, recordstore.ErrNotFound
}

func (r staticReader) All(ctx context.Context) ([]recordstore.Article, error) { return r, nil }

func TestReindexAll(t *testing.T) {
	store := newStore(t)
	c := New(newModel(), store)
	report, err := c.ReindexAll(context.Background(), staticReader(articles(3)))
	if err != nil || report.Indexed != 3 {
		t.Fatalf("unexpected report %+v %v", report, err)
	}
}
