package recordstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/moreskylab/Sentio/db/sqliteutil"
	"github.com/viant/sqlx/io/config"
)

const (
	DefaultTable    = "articles"
	importBatchSize = 100
)

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Option configures a Store.
type Option func(*Store)

// WithTable sets the articles table name.
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

// WithLogf sets the store logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Store) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// WithSubscriber registers a subscriber at construction.
func WithSubscriber(sub Subscriber) Option {
	return func(s *Store) { s.subscribers = append(s.subscribers, sub) }
}

// Store is a database/sql backed article store for SQLite, PostgreSQL and
// MySQL. Committed mutations are published to subscribers in order.
type Store struct {
	db            *sql.DB
	driver        string
	table         string
	logf          func(format string, args ...any)
	openedLocally bool
	readOnly      bool

	mu          sync.RWMutex
	subscribers []Subscriber

	dialectOnce sync.Once
	multiValues bool
}

// Open connects to dsn and ensures the schema. An empty driver is detected
// from the DSN.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Store, error) {
	if driver == "" {
		detected, ok := DetectDriver(dsn)
		if !ok {
			return nil, fmt.Errorf("recordstore: cannot detect driver for %q", dsn)
		}
		driver = detected
	}
	dsn = NormalizeDSN(driver, dsn)
	if driver == DriverSQLite {
		if err := sqliteutil.PrepareLocation(ctx, dsn); err != nil {
			return nil, fmt.Errorf("recordstore: %w", err)
		}
		dsn = sqliteutil.DefaultPragmas.Apply(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("recordstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite && sqliteutil.IsMemory(dsn) {
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db, driver, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.openedLocally = true
	return s, nil
}

// New wraps an existing connection and ensures the schema.
func New(ctx context.Context, db *sql.DB, driver string, opts ...Option) (*Store, error) {
	s := &Store{db: db, driver: driver, table: DefaultTable, readOnly: driver == DriverBigQuery, logf: func(string, ...any) {}}
	for _, opt := range opts {
		opt(s)
	}
	if !identifier.MatchString(s.table) {
		return nil, fmt.Errorf("recordstore: invalid table name %q", s.table)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	var ddl string
	switch s.driver {
	case DriverSQLite:
		ddl = `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`
	case DriverPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	id         BIGSERIAL PRIMARY KEY,
	title      VARCHAR(255) NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
)`
	case DriverMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
	id         BIGINT AUTO_INCREMENT PRIMARY KEY,
	title      VARCHAR(255) NOT NULL,
	content    TEXT NOT NULL,
	created_at DATETIME(6) NOT NULL
)`
	case DriverBigQuery:
		// The table is owned by the warehouse pipeline.
		return nil
	default:
		return fmt.Errorf("recordstore: driver %q not supported", s.driver)
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("recordstore: ensure schema: %w", err)
	}
	return nil
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

// ReadOnly reports whether mutations are rejected with ErrReadOnly.
func (s *Store) ReadOnly() bool { return s.readOnly }

// Close closes the connection if the store opened it.
func (s *Store) Close() error {
	if s.openedLocally {
		return s.db.Close()
	}
	return nil
}

// Subscribe registers sub for future mutations.
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Create inserts an article. When a subscriber fails the article is still
// returned along with an error wrapping ErrIndexSync.
func (s *Store) Create(ctx context.Context, title, content string) (*Article, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	article := &Article{Title: title, Content: content, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	if err := article.Validate(); err != nil {
		return nil, err
	}
	id, err := s.insert(ctx, s.db, article)
	if err != nil {
		return nil, fmt.Errorf("recordstore: create: %w", err)
	}
	article.ID = id
	return article, s.notifySaved(ctx, *article)
}

func (s *Store) insert(ctx context.Context, x execQuerier, article *Article) (int64, error) {
	query := `INSERT INTO ` + s.table + ` (title, content, created_at) VALUES (?, ?, ?)`
	if s.driver == DriverPostgres {
		var id int64
		err := x.QueryRowContext(ctx, rebind(s.driver, query+` RETURNING id`), article.Title, article.Content, article.CreatedAt).Scan(&id)
		return id, err
	}
	res, err := x.ExecContext(ctx, query, article.Title, article.Content, article.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Update replaces title and content of an existing article.
func (s *Store) Update(ctx context.Context, article Article) (*Article, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}
	if err := article.Validate(); err != nil {
		return nil, err
	}
	// MySQL reports zero affected rows for unchanged values, so existence is
	// checked by reading the row back.
	if _, err := s.db.ExecContext(ctx, rebind(s.driver, `UPDATE `+s.table+` SET title = ?, content = ? WHERE id = ?`),
		article.Title, article.Content, article.ID); err != nil {
		return nil, fmt.Errorf("recordstore: update %d: %w", article.ID, err)
	}
	updated, err := s.GetByID(ctx, article.ID)
	if err != nil {
		return nil, err
	}
	return updated, s.notifySaved(ctx, *updated)
}

// Delete removes an article and notifies subscribers.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if s.readOnly {
		return ErrReadOnly
	}
	res, err := s.db.ExecContext(ctx, rebind(s.driver, `DELETE FROM `+s.table+` WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("recordstore: delete %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return s.notifyDeleted(ctx, id)
}

// GetByID returns the article or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (*Article, error) {
	row := s.db.QueryRowContext(ctx, rebind(s.driver, `SELECT id, title, content, created_at FROM `+s.table+` WHERE id = ?`), id)
	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("recordstore: get %d: %w", id, err)
	}
	return article, nil
}

// All returns every article ordered by id.
func (s *Store) All(ctx context.Context) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, content, created_at FROM `+s.table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("recordstore: list: %w", err)
	}
	defer rows.Close()
	var out []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("recordstore: list: %w", err)
		}
		out = append(out, *article)
	}
	return out, rows.Err()
}

// Import inserts articles without publishing events; callers reindex after a
// bulk load. Ids in the input are ignored.
func (s *Store) Import(ctx context.Context, articles []Article) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	for i := range articles {
		if err := articles[i].Validate(); err != nil {
			return 0, fmt.Errorf("recordstore: import article %d: %w", i, err)
		}
	}
	multiValues := s.supportsMultiValues(ctx)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("recordstore: import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if multiValues {
		for start := 0; start < len(articles); start += importBatchSize {
			end := min(start+importBatchSize, len(articles))
			query, args := s.multiInsert(articles[start:end], now)
			if _, err = tx.ExecContext(ctx, query, args...); err != nil {
				return 0, fmt.Errorf("recordstore: import: %w", err)
			}
		}
	} else {
		for i := range articles {
			article := articles[i]
			if article.CreatedAt.IsZero() {
				article.CreatedAt = now
			}
			if _, err = s.insert(ctx, tx, &article); err != nil {
				return 0, fmt.Errorf("recordstore: import: %w", err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("recordstore: import: %w", err)
	}
	s.logf("recordstore: imported %d articles", len(articles))
	return len(articles), nil
}

func (s *Store) supportsMultiValues(ctx context.Context) bool {
	s.dialectOnce.Do(func() {
		dialect, err := config.Dialect(ctx, s.db)
		if err != nil {
			s.logf("recordstore: dialect detection failed: %v", err)
			return
		}
		s.multiValues = dialect.Insert.MultiValues()
	})
	return s.multiValues
}

func (s *Store) multiInsert(batch []Article, now time.Time) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO ` + s.table + ` (title, content, created_at) VALUES `)
	args := make([]any, 0, len(batch)*3)
	for i, article := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?)")
		created := article.CreatedAt
		if created.IsZero() {
			created = now
		}
		args = append(args, article.Title, article.Content, created)
	}
	return rebind(s.driver, sb.String()), args
}

func (s *Store) notifySaved(ctx context.Context, article Article) error {
	return s.notify(ctx, func(sub Subscriber) error { return sub.OnSaved(ctx, article) }, "saved", article.ID)
}

func (s *Store) notifyDeleted(ctx context.Context, id int64) error {
	return s.notify(ctx, func(sub Subscriber) error { return sub.OnDeleted(ctx, id) }, "deleted", id)
}

func (s *Store) notify(ctx context.Context, fn func(Subscriber) error, kind string, id int64) error {
	s.mu.RLock()
	subs := append([]Subscriber(nil), s.subscribers...)
	s.mu.RUnlock()
	var errs []error
	for _, sub := range subs {
		if err := fn(sub); err != nil {
			s.logf("recordstore: %s event for article %d: %v", kind, id, err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: article %d: %w", ErrIndexSync, id, errors.Join(errs...))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(row scanner) (*Article, error) {
	var article Article
	var created any
	if err := row.Scan(&article.ID, &article.Title, &article.Content, &created); err != nil {
		return nil, err
	}
	ts, err := scanTime(created)
	if err != nil {
		return nil, err
	}
	article.CreatedAt = ts
	return &article, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func scanTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	}
	return time.Time{}, fmt.Errorf("unsupported created_at type %T", v)
}

func parseTime(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported created_at format %q", value)
}
