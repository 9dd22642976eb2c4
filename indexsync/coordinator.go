// Package indexsync keeps the vector index consistent with the article store.
// It embeds articles on save, removes them on delete, and rebuilds the whole
// index on demand.
package indexsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/moreskylab/Sentio/recordstore"
	"github.com/moreskylab/Sentio/vectordb"
)

// Embedder turns text into normalized vectors. *embeddings.Model implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Policy decides what Reindex does when an article fails to embed.
type Policy int

const (
	// SkipFailed records the failure and continues.
	SkipFailed Policy = iota
	// Strict aborts the run, leaving the index untouched.
	Strict
)

const defaultBatchSize = 32

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTable overrides the index table.
func WithTable(table string) Option {
	return func(c *Coordinator) {
		if table != "" {
			c.table = table
		}
	}
}

// WithPolicy sets the reindex failure policy.
func WithPolicy(policy Policy) Option {
	return func(c *Coordinator) { c.policy = policy }
}

// WithBatchSize sets how many articles Reindex embeds per provider call.
func WithBatchSize(size int) Option {
	return func(c *Coordinator) {
		if size > 0 {
			c.batchSize = size
		}
	}
}

// WithLogf sets the coordinator logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(c *Coordinator) {
		if logf != nil {
			c.logf = logf
		}
	}
}

// Coordinator maintains the index. It implements recordstore.Subscriber.
type Coordinator struct {
	embedder  Embedder
	store     vectordb.Store
	table     string
	policy    Policy
	batchSize int
	logf      func(format string, args ...any)
}

// New creates a coordinator writing to vectordb.DefaultTable.
func New(embedder Embedder, store vectordb.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		embedder:  embedder,
		store:     store,
		table:     vectordb.DefaultTable,
		batchSize: defaultBatchSize,
		logf:      func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DocumentText is the text embedded for an article.
func DocumentText(article recordstore.Article) string {
	return article.Title + ". " + article.Content
}

func document(article recordstore.Article, vec []float32) vectordb.Document {
	return vectordb.Document{
		ID:     article.ID,
		Vector: vec,
		Title:  article.Title,
		Text:   vectordb.Snippet(DocumentText(article)),
	}
}

// OnSaved embeds the article and writes it under its id, replacing any
// previous row. Repeating the call leaves exactly one row.
func (c *Coordinator) OnSaved(ctx context.Context, article recordstore.Article) error {
	vec, err := c.embedder.Embed(ctx, DocumentText(article))
	if err != nil {
		return fmt.Errorf("indexsync: embed article %d: %w", article.ID, err)
	}
	row := document(article, vec)

	table, err := c.store.OpenOrNone(ctx, c.table)
	if err != nil {
		return fmt.Errorf("indexsync: article %d: %w", article.ID, err)
	}
	if table == nil {
		err = c.store.InsertBatch(ctx, c.table, []vectordb.Document{row})
		if err == nil {
			c.logf("indexsync: synced article %d (created %s)", article.ID, c.table)
			return nil
		}
		// Another writer created the table first; fall through to upsert.
		if !errors.Is(err, vectordb.ErrDuplicateID) {
			return fmt.Errorf("indexsync: article %d: %w", article.ID, err)
		}
	}
	err = c.store.UpsertOne(ctx, c.table, row)
	switch {
	case err == nil:
		c.logf("indexsync: synced article %d", article.ID)
		return nil
	case errors.Is(err, vectordb.ErrUpsertUnsupported):
		return c.replace(ctx, row)
	default:
		return fmt.Errorf("indexsync: article %d: %w", article.ID, err)
	}
}

// replace emulates an upsert on tables without a merge key. The two steps
// are not atomic; a reader may briefly miss the article.
func (c *Coordinator) replace(ctx context.Context, row vectordb.Document) error {
	if err := c.store.DeleteByID(ctx, c.table, row.ID); err != nil {
		return fmt.Errorf("indexsync: article %d: fallback delete: %w", row.ID, err)
	}
	if err := c.store.InsertBatch(ctx, c.table, []vectordb.Document{row}); err != nil {
		return fmt.Errorf("indexsync: article %d: fallback insert: %w", row.ID, err)
	}
	c.logf("indexsync: synced article %d (fallback)", row.ID)
	return nil
}

// OnDeleted removes the article from the index.
func (c *Coordinator) OnDeleted(ctx context.Context, id int64) error {
	if err := c.store.DeleteByID(ctx, c.table, id); err != nil {
		return fmt.Errorf("indexsync: delete article %d: %w", id, err)
	}
	c.logf("indexsync: deleted article %d", id)
	return nil
}

// Run applies events until the channel closes or ctx is done. Failures are
// logged per event and do not stop the loop.
func (c *Coordinator) Run(ctx context.Context, events <-chan recordstore.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			var err error
			switch event.Kind {
			case recordstore.Saved:
				err = c.OnSaved(ctx, event.Article)
			case recordstore.Deleted:
				err = c.OnDeleted(ctx, event.ID)
			default:
				err = fmt.Errorf("indexsync: unknown event kind %d", event.Kind)
			}
			if err != nil {
				c.logf("indexsync: %s event for article %d failed: %v", event.Kind, event.ID, err)
			}
		}
	}
}

var _ recordstore.Subscriber = (*Coordinator)(nil)
