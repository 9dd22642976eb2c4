package indexsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moreskylab/Sentio/embeddings"
	"github.com/moreskylab/Sentio/recordstore"
	"github.com/moreskylab/Sentio/vectordb"
)

// Failure is an article that could not be embedded.
type Failure struct {
	ID  int64
	Err error
}

// Report summarizes a reindex run.
type Report struct {
	Processed int
	Indexed   int
	Failures  []Failure
	Warning   string
	Elapsed   time.Duration
}

// Outcome is "success" or "warning".
func (r *Report) Outcome() string {
	if r.Warning != "" || len(r.Failures) > 0 {
		return "warning"
	}
	return "success"
}

// Reindex embeds every article and replaces the index table with the result.
// A run with no article, or where every article failed, leaves the index
// untouched and sets Report.Warning. A model load failure always aborts.
func (c *Coordinator) Reindex(ctx context.Context, articles []recordstore.Article) (*Report, error) {
	started := time.Now()
	report := &Report{}
	defer func() { report.Elapsed = time.Since(started) }()

	if len(articles) == 0 {
		report.Warning = "no articles to index"
		c.logf("indexsync: reindex skipped: %s", report.Warning)
		return report, nil
	}
	rows := make([]vectordb.Document, 0, len(articles))
	for start := 0; start < len(articles); start += c.batchSize {
		batch := articles[start:min(start+c.batchSize, len(articles))]
		docs, err := c.embedBatch(ctx, batch, report)
		if err != nil {
			return report, err
		}
		rows = append(rows, docs...)
		c.logf("indexsync: reindex embedded %d/%d", report.Processed, len(articles))
	}
	if len(rows) == 0 {
		report.Warning = fmt.Sprintf("all %d articles failed to embed", len(articles))
		c.logf("indexsync: reindex aborted: %s", report.Warning)
		return report, nil
	}
	if err := c.store.Replace(ctx, c.table, rows); err != nil {
		return report, fmt.Errorf("indexsync: reindex: %w", err)
	}
	report.Indexed = len(rows)
	c.logf("indexsync: reindexed %d/%d articles into %s", report.Indexed, report.Processed, c.table)
	return report, nil
}

// Using returns a copy of c that applies policy to reindex runs.
func (c *Coordinator) Using(policy Policy) *Coordinator {
	cp := *c
	cp.policy = policy
	return &cp
}

// ReindexAll rebuilds the index from every article in reader.
func (c *Coordinator) ReindexAll(ctx context.Context, reader recordstore.Reader) (*Report, error) {
	articles, err := reader.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexsync: list articles: %w", err)
	}
	return c.Reindex(ctx, articles)
}

func (c *Coordinator) embedBatch(ctx context.Context, batch []recordstore.Article, report *Report) ([]vectordb.Document, error) {
	texts := make([]string, len(batch))
	for i, article := range batch {
		texts[i] = DocumentText(article)
	}
	vecs, err := c.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		docs := make([]vectordb.Document, len(batch))
		for i, article := range batch {
			docs[i] = document(article, vecs[i])
		}
		report.Processed += len(batch)
		return docs, nil
	}
	if errors.Is(err, embeddings.ErrModelLoad) || ctx.Err() != nil {
		return nil, fmt.Errorf("indexsync: reindex: %w", err)
	}
	// Isolate the failing articles one by one.
	docs := make([]vectordb.Document, 0, len(batch))
	for i, article := range batch {
		report.Processed++
		vec, err := c.embedder.Embed(ctx, texts[i])
		if err != nil {
			if errors.Is(err, embeddings.ErrModelLoad) || ctx.Err() != nil {
				return nil, fmt.Errorf("indexsync: reindex: %w", err)
			}
			if c.policy == Strict {
				return nil, fmt.Errorf("indexsync: reindex article %d: %w", article.ID, err)
			}
			report.Failures = append(report.Failures, Failure{ID: article.ID, Err: err})
			c.logf("indexsync: reindex skipped article %d: %v", article.ID, err)
			continue
		}
		docs = append(docs, document(article, vec))
	}
	return docs, nil
}
