package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moreskylab/Sentio/db/sqliteutil"
	"github.com/moreskylab/Sentio/embeddings"
	"github.com/moreskylab/Sentio/recommend"
	"github.com/moreskylab/Sentio/recordstore"
	"github.com/moreskylab/Sentio/vectordb"
	"github.com/xuri/excelize/v2"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Index.DSN = filepath.Join(dir, "index.sqlite")
	cfg.Articles.DSN = filepath.Join(dir, "articles.sqlite")
	cfg.Embedder = EmbedderConfig{Provider: ProviderHashing, Dim: 128, Cache: CacheConfig{Size: 32, Snapshot: filepath.Join(dir, "cache.bin")}}
	return cfg
}

func newTestService(t *testing.T, cfg *Config) *Service {
	t.Helper()
	svc, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func query(s string) recommend.Query { return recommend.Query{Text: &s} }

func TestArticleLifecycleKeepsIndexInSync(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testConfig(t))
	carbonara, err := svc.Articles().Create(ctx, "Carbonara", "Pasta with eggs, pecorino and pork cheek")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	inflation, err := svc.Articles().Create(ctx, "Inflation", "Consumer prices keep rising this year")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	recs, err := svc.Recommend(ctx, query("eggs and pork"))
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != carbonara.ID {
		t.Fatalf("expected Carbonara first, got %+v", recs)
	}

	if err := svc.Articles().Delete(ctx, carbonara.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	recs, _ = svc.Recommend(ctx, query("eggs and pork"))
	if len(recs) != 1 || recs[0].ID != inflation.ID {
		t.Fatalf("expected deleted article gone, got %+v", recs)
	}
	result, err := svc.Check(ctx)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Healthy() || result.Articles != 1 {
		t.Fatalf("unexpected check %+v", result)
	}
}

func TestRecommendErrors(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	missing := int64(404)
	if _, err := svc.Recommend(context.Background(), recommend.Query{ArticleID: &missing}); !errors.Is(err, recommend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Recommend(context.Background(), recommend.Query{}); !errors.Is(err, recommend.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestImportArticlesAndCheck(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	body := `articles:
  - title: Carbonara
    content: Pasta with eggs and pork
  - title: Inflation
    content: Prices are rising
  - title: Marathon training
    content: Long runs every weekend
`
	if err := os.WriteFile(seed, []byte(body), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	result, err := svc.ImportArticles(ctx, seed)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 3 || result.Reindex.Indexed != 3 {
		t.Fatalf("unexpected import result %+v %+v", result, result.Reindex)
	}
	check, err := svc.Check(ctx)
	if err != nil || !check.Healthy() {
		t.Fatalf("expected healthy index, got %+v %v", check, err)
	}

	// An article written straight to the index without a record is orphaned.
	vec, _ := svc.Model().Embed(ctx, "orphan")
	if err := svc.Index().UpsertOne(ctx, vectordb.DefaultTable, vectordb.Document{ID: 999, Vector: vec, Title: "orphan"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	check, _ = svc.Check(ctx)
	if check.Healthy() || len(check.Orphaned) != 1 || check.Orphaned[0] != 999 {
		t.Fatalf("expected orphan reported, got %+v", check)
	}
}

func TestImportJSONList(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testConfig(t))
	seed := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(seed, []byte("[\n\t{\"title\": \"One\", \"content\": \"first\"},\n\t{\"title\": \"Two\", \"content\": \"second\"}\n]"), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	result, err := svc.ImportArticles(ctx, seed)
	if err != nil || result.Imported != 2 {
		t.Fatalf("unexpected import %+v %v", result, err)
	}
}

func TestImportWorkbook(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testConfig(t))
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"title", "content"},
		{"Carbonara", "Pasta with eggs and pork"},
		{"Inflation", "Prices are rising"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	seed := filepath.Join(t.TempDir(), "seed.xlsx")
	if err := f.SaveAs(seed); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	result, err := svc.ImportArticles(ctx, seed)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if result.Imported != 2 || result.Reindex.Indexed != 2 {
		t.Fatalf("unexpected import result %+v %+v", result, result.Reindex)
	}
}

func TestAsyncSync(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Sync.Mode = SyncAsync
	svc := newTestService(t, cfg)
	svc.Start(ctx)
	if _, err := svc.Articles().Create(ctx, "Queued", "indexed in the background"); err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		n, err := svc.Index().Count(ctx, vectordb.DefaultTable)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("article was not indexed asynchronously")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCloseSavesCache(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	svc, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := svc.Recommend(ctx, query("warm the cache")); err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(cfg.Embedder.Cache.Snapshot); err != nil {
		t.Fatalf("expected cache snapshot: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestWithLoaderSyncFailureKeepsArticle(t *testing.T) {
	ctx := context.Background()
	broken := func(ctx context.Context) (embeddings.Embedder, error) { return nil, errors.New("offline") }
	svc, err := New(ctx, testConfig(t), WithLoader("broken", broken))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer svc.Close(ctx)
	article, err := svc.Articles().Create(ctx, "Saved", "despite index failure")
	if !errors.Is(err, recordstore.ErrIndexSync) || !errors.Is(err, embeddings.ErrModelLoad) {
		t.Fatalf("expected index sync error, got %v", err)
	}
	if _, err := svc.Articles().GetByID(ctx, article.ID); err != nil {
		t.Fatalf("article should persist: %v", err)
	}
}

func TestReindexRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	svc := newTestService(t, cfg)
	if _, err := svc.Articles().Create(ctx, "One", "first"); err != nil {
		t.Fatalf("create: %v", err)
	}
	held, err := sqliteutil.TryLock(sqliteutil.LockPath(cfg.Index.DSN, reindexLockSuffix))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if _, err := svc.Reindex(ctx, false); !errors.Is(err, sqliteutil.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	_ = held.Unlock()
	report, err := svc.Reindex(ctx, true)
	if err != nil || report.Indexed != 1 {
		t.Fatalf("unexpected reindex %+v %v", report, err)
	}
}
