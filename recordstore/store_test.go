package recordstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

type recorder struct {
	saved   []Article
	deleted []int64
	err     error
}

func (r *recorder) OnSaved(ctx context.Context, article Article) error {
	r.saved = append(r.saved, article)
	return r.err
}

func (r *recorder) OnDeleted(ctx context.Context, id int64) error {
	r.deleted = append(r.deleted, id)
	return r.err
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(context.Background(), "", filepath.Join(t.TempDir(), "articles.sqlite"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newTestStore(t, WithSubscriber(rec))
	if s.Driver() != DriverSQLite {
		t.Fatalf("expected sqlite driver, got %s", s.Driver())
	}

	created, err := s.Create(ctx, "Carbonara", "Pasta with eggs and pork cheek")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", created)
	}
	got, err := s.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Carbonara" || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("unexpected article %+v vs %+v", got, created)
	}

	got.Title = "Spaghetti carbonara"
	updated, err := s.Update(ctx, *got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Spaghetti carbonara" {
		t.Fatalf("unexpected title %s", updated.Title)
	}
	if _, err := s.Update(ctx, Article{ID: 999, Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetByID(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	if len(rec.saved) != 2 || rec.saved[1].Title != "Spaghetti carbonara" {
		t.Fatalf("unexpected saved events %+v", rec.saved)
	}
	if len(rec.deleted) != 1 || rec.deleted[0] != created.ID {
		t.Fatalf("unexpected deleted events %+v", rec.deleted)
	}
}

func TestSubscriberFailureKeepsArticle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Subscribe(&recorder{err: errors.New("index offline")})
	article, err := s.Create(ctx, "Inflation", "Prices keep rising")
	if !errors.Is(err, ErrIndexSync) {
		t.Fatalf("expected ErrIndexSync, got %v", err)
	}
	if article == nil || article.ID == 0 {
		t.Fatalf("expected article despite sync failure")
	}
	if _, err := s.GetByID(ctx, article.ID); err != nil {
		t.Fatalf("article should be committed: %v", err)
	}
}

func TestValidation(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create(context.Background(), "  ", "body"); !errors.Is(err, ErrInvalidArticle) {
		t.Fatalf("expected ErrInvalidArticle, got %v", err)
	}
	if _, err := s.Create(context.Background(), strings.Repeat("a", TitleLimit+1), "body"); !errors.Is(err, ErrInvalidArticle) {
		t.Fatalf("expected ErrInvalidArticle for long title, got %v", err)
	}
}

func TestImportAndAll(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	s := newTestStore(t, WithSubscriber(rec))
	n, err := s.Import(ctx, []Article{
		{Title: "One", Content: "first"},
		{Title: "Two", Content: "second"},
		{Title: "Three", Content: "third"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 imported, got %d", n)
	}
	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 3 || all[0].Title != "One" || all[2].Title != "Three" {
		t.Fatalf("unexpected articles %+v", all)
	}
	if len(rec.saved) != 0 {
		t.Fatalf("import should not publish events")
	}
	if _, err := s.Import(ctx, []Article{{Title: ""}}); !errors.Is(err, ErrInvalidArticle) {
		t.Fatalf("expected ErrInvalidArticle, got %v", err)
	}
}

func TestDetectDriver(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":   DriverPostgres,
		"postgresql://localhost/db":     DriverPostgres,
		"mysql://u:p@tcp(localhost)/db": DriverMySQL,
		"u:p@tcp(127.0.0.1:3306)/db":    DriverMySQL,
		"bigquery://project/us/news":    DriverBigQuery,
		"bq://project/us/news":          DriverBigQuery,
		"file:data/articles.sqlite":     DriverSQLite,
		"data/articles.db":              DriverSQLite,
		":memory:":                      DriverSQLite,
	}
	for dsn, want := range cases {
		got, ok := DetectDriver(dsn)
		if !ok || got != want {
			t.Fatalf("dsn %s: expected %s, got %s %v", dsn, want, got, ok)
		}
	}
	if _, ok := DetectDriver("something"); ok {
		t.Fatalf("expected unknown driver")
	}
	if got := NormalizeDSN(DriverMySQL, "mysql://u@tcp(h)/db"); got != "u@tcp(h)/db" {
		t.Fatalf("unexpected mysql dsn %s", got)
	}
	if got := NormalizeDSN(DriverBigQuery, "bq://project/us/news"); got != "bigquery://project/us/news" {
		t.Fatalf("unexpected bigquery dsn %s", got)
	}
}

func TestReadOnlySource(t *testing.T) {
	ctx := context.Background()
	seed := newTestStore(t)
	created, err := seed.Create(ctx, "Warehouse article", "loaded by a pipeline")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	// A read-only store over the same connection stands in for a BigQuery table.
	s, err := New(ctx, seed.db, DriverBigQuery)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !s.ReadOnly() {
		t.Fatalf("expected read-only store")
	}
	all, err := s.All(ctx)
	if err != nil || len(all) != 1 || all[0].ID != created.ID {
		t.Fatalf("unexpected articles %+v %v", all, err)
	}
	if _, err := s.Create(ctx, "x", "y"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly on create, got %v", err)
	}
	if _, err := s.Update(ctx, *created); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly on update, got %v", err)
	}
	if err := s.Delete(ctx, created.ID); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly on delete, got %v", err)
	}
	if _, err := s.Import(ctx, []Article{{Title: "x"}}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly on import, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	got := rebind(DriverPostgres, "UPDATE a SET x = ?, y = ? WHERE id = ?")
	if got != "UPDATE a SET x = $1, y = $2 WHERE id = $3" {
		t.Fatalf("unexpected query %s", got)
	}
	if got := rebind(DriverMySQL, "SELECT ?"); got != "SELECT ?" {
		t.Fatalf("expected unchanged query, got %s", got)
	}
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(2)
	if err := q.OnSaved(ctx, Article{ID: 1, Title: "a"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := q.OnDeleted(ctx, 2); err != nil {
		t.Fatalf("publish: %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := q.OnDeleted(cancelled, 3); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled on full queue, got %v", err)
	}
	q.Close()
	if err := q.OnDeleted(ctx, 4); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	var kinds []EventKind
	for event := range q.Events() {
		kinds = append(kinds, event.Kind)
	}
	if len(kinds) != 2 || kinds[0] != Saved || kinds[1] != Deleted {
		t.Fatalf("unexpected events %v", kinds)
	}
}
