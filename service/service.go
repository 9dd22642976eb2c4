package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moreskylab/Sentio/db/sqliteutil"
	"github.com/moreskylab/Sentio/embeddings"
	"github.com/moreskylab/Sentio/embeddings/cache"
	"github.com/moreskylab/Sentio/indexsync"
	"github.com/moreskylab/Sentio/recommend"
	"github.com/moreskylab/Sentio/recordstore"
	"github.com/moreskylab/Sentio/vectordb"
	"github.com/moreskylab/Sentio/vectordb/sqlitevec"
)

const reindexLockSuffix = ".reindex.lock"

// Option configures the Service.
type Option func(*Service)

// WithLoader replaces the configured embedding provider.
func WithLoader(name string, loader embeddings.Loader) Option {
	return func(s *Service) {
		s.loaderName, s.loader = name, loader
	}
}

// WithLogf sets the logger shared by every component.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Service) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// Service owns the process-wide component graph.
type Service struct {
	cfg        *Config
	logf       func(format string, args ...any)
	loader     embeddings.Loader
	loaderName string

	cache       *cache.LRU
	model       *embeddings.Model
	index       *sqlitevec.Store
	articles    *recordstore.Store
	coordinator *indexsync.Coordinator
	recommender *recommend.Service

	queue   *recordstore.Queue
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	closeMu sync.Mutex
	closed  bool
}

// New builds the graph. The model loads lazily; the article store connects
// immediately so schema errors surface at startup.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, logf: func(string, ...any) {}}
	for _, opt := range opts {
		opt(s)
	}
	if s.loader == nil {
		s.loader, s.loaderName = newLoader(cfg.Embedder)
	}

	s.cache = cache.New(cfg.Embedder.Cache.Size)
	if err := s.cache.Load(ctx, cfg.Embedder.Cache.Snapshot); err != nil {
		s.logf("service: ignoring embedding cache snapshot: %v", err)
	}
	s.model = embeddings.NewModel(s.loader,
		embeddings.WithName(s.loaderName),
		embeddings.WithCache(s.cache),
		embeddings.WithLogf(s.logf))

	indexOpts := []sqlitevec.Option{sqlitevec.WithDSN(cfg.Index.DSN), sqlitevec.WithLogf(s.logf)}
	if cfg.Index.MergeKey != nil {
		indexOpts = append(indexOpts, sqlitevec.WithMergeKey(*cfg.Index.MergeKey))
	}
	index, err := sqlitevec.NewStore(indexOpts...)
	if err != nil {
		return nil, err
	}
	s.index = index

	policy := indexsync.SkipFailed
	if cfg.Sync.Strict {
		policy = indexsync.Strict
	}
	s.coordinator = indexsync.New(s.model, s.index,
		indexsync.WithTable(cfg.Index.Table),
		indexsync.WithPolicy(policy),
		indexsync.WithBatchSize(cfg.Embedder.BatchSize),
		indexsync.WithLogf(s.logf))

	var subscriber recordstore.Subscriber = s.coordinator
	if cfg.Sync.Mode == SyncAsync {
		s.queue = recordstore.NewQueue(cfg.Sync.Buffer)
		subscriber = s.queue
	}
	articles, err := recordstore.Open(ctx, cfg.Articles.Driver, cfg.Articles.DSN,
		recordstore.WithTable(cfg.Articles.Table),
		recordstore.WithLogf(s.logf),
		recordstore.WithSubscriber(subscriber))
	if err != nil {
		_ = s.index.Close()
		return nil, err
	}
	s.articles = articles
	s.recommender = recommend.New(s.model, s.index, s.articles, recommend.WithTable(cfg.Index.Table))
	return s, nil
}

// Start runs the async sync worker when configured. It returns immediately.
func (s *Service) Start(ctx context.Context) {
	if s.queue == nil || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.coordinator.Run(ctx, s.queue.Events()); err != nil && !errors.Is(err, context.Canceled) {
			s.logf("service: sync worker stopped: %v", err)
		}
	}()
}

// Config returns the effective configuration.
func (s *Service) Config() *Config { return s.cfg }

// Model returns the shared embedding model.
func (s *Service) Model() *embeddings.Model { return s.model }

// Index returns the vector index store.
func (s *Service) Index() vectordb.Store { return s.index }

// Articles returns the article store; its mutations feed the index.
func (s *Service) Articles() *recordstore.Store { return s.articles }

// Recommend delegates to the query service.
func (s *Service) Recommend(ctx context.Context, q recommend.Query) ([]recommend.Recommendation, error) {
	return s.recommender.Recommend(ctx, q)
}

// Reindex rebuilds the index from every stored article. When strict is set
// the first embedding failure aborts the run regardless of configuration.
// Concurrent runs against the same index file are rejected with
// sqliteutil.ErrLocked.
func (s *Service) Reindex(ctx context.Context, strict bool) (*indexsync.Report, error) {
	if path := sqliteutil.LockPath(s.cfg.Index.DSN, reindexLockSuffix); path != "" {
		if err := sqliteutil.PrepareLocation(ctx, s.cfg.Index.DSN); err != nil {
			return nil, err
		}
		lock, err := sqliteutil.TryLock(path)
		if err != nil {
			return nil, fmt.Errorf("reindex: %w", err)
		}
		defer func() { _ = lock.Unlock() }()
	}
	coordinator := s.coordinator
	if strict {
		coordinator = coordinator.Using(indexsync.Strict)
	}
	return coordinator.ReindexAll(ctx, s.articles)
}

// Close drains the async worker, persists the embedding cache and closes
// both stores.
func (s *Service) Close(ctx context.Context) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.queue != nil {
		s.queue.Close()
		if s.cancel != nil {
			// Closing the queue lets Run drain and return.
			s.wg.Wait()
			s.cancel()
		}
	}
	var errs []error
	if err := s.cache.Save(ctx, s.cfg.Embedder.Cache.Snapshot); err != nil {
		errs = append(errs, fmt.Errorf("save embedding cache: %w", err))
	}
	if err := s.articles.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.index.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
