// Package sqlitevec implements vectordb.Store on a SQLite file. Vectors are
// stored as little-endian float32 BLOBs and ranked with the vec_cosine scalar
// function; no virtual table module is required.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/moreskylab/Sentio/db/sqliteutil"
	"github.com/moreskylab/Sentio/vectordb"
	"github.com/viant/sqlite-vec/engine"
	"github.com/viant/sqlite-vec/vector"
)

const metaTable = "vec_table_meta"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func init() {
	// Functions are bound to connections at open time, so register before any
	// store opens its pool.
	_ = engine.RegisterVectorFunctions(nil)
}

// Store is a SQLite backed vectordb.Store. The database is opened on first use.
type Store struct {
	dsn      string
	mergeKey bool
	pragmas  sqliteutil.Pragmas
	maxConns int
	logf     func(format string, args ...any)

	mu            sync.Mutex
	db            *sql.DB
	openedLocally bool
	ready         bool
}

// Option configures the store.
type Option func(*Store)

// WithDSN sets the SQLite DSN to open (e.g. /path/to/index.sqlite).
func WithDSN(dsn string) Option {
	return func(s *Store) { s.dsn = dsn }
}

// WithDB uses an existing *sql.DB opened with the modernc driver.
func WithDB(db *sql.DB) Option {
	return func(s *Store) { s.db = db }
}

// WithMergeKey controls whether new tables get a unique id index. Without it
// UpsertOne always reports vectordb.ErrUpsertUnsupported.
func WithMergeKey(enabled bool) Option {
	return func(s *Store) { s.mergeKey = enabled }
}

// WithPragmas overrides the DSN pragmas.
func WithPragmas(p sqliteutil.Pragmas) Option {
	return func(s *Store) { s.pragmas = p }
}

// WithMaxOpenConns sets the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(s *Store) { s.maxConns = n }
}

// WithLogf sets the store logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Store) {
		if logf != nil {
			s.logf = logf
		}
	}
}

// NewStore creates a store; the database is not touched until first use.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		mergeKey: true,
		pragmas:  sqliteutil.DefaultPragmas,
		maxConns: 4,
		logf:     func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.db == nil && s.dsn == "" {
		return nil, fmt.Errorf("sqlitevec: dsn required")
	}
	return s, nil
}

// Close closes the underlying DB if the store opened it.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openedLocally && s.db != nil {
		err := s.db.Close()
		s.db, s.ready = nil, false
		return err
	}
	return nil
}

func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return s.db, nil
	}
	if s.db == nil {
		if err := sqliteutil.PrepareLocation(ctx, s.dsn); err != nil {
			return nil, vectordb.WrapIO("open", "", err)
		}
		db, err := engine.Open(s.pragmas.Apply(s.dsn))
		if err != nil {
			return nil, vectordb.WrapIO("open", "", err)
		}
		conns := s.maxConns
		if sqliteutil.IsMemory(s.dsn) || conns <= 0 {
			conns = 1
		}
		db.SetMaxOpenConns(conns)
		db.SetMaxIdleConns(conns)
		s.db, s.openedLocally = db, true
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+metaTable+` (
		table_name TEXT PRIMARY KEY,
		dim        INTEGER NOT NULL,
		merge_key  INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return nil, vectordb.WrapIO("open", metaTable, err)
	}
	s.ready = true
	return s.db, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenOrNone returns the table descriptor or nil when the table is absent.
func (s *Store) OpenOrNone(ctx context.Context, table string) (*vectordb.Table, error) {
	if !tableName.MatchString(table) {
		return nil, vectordb.Wrap("open", table, vectordb.ErrInvalidTable)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	t, err := describe(ctx, db, table)
	if err != nil {
		return nil, vectordb.WrapIO("open", table, err)
	}
	return t, nil
}

func describe(ctx context.Context, q querier, table string) (*vectordb.Table, error) {
	var name string
	err := q.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := &vectordb.Table{Name: table}
	var indexCount int
	if err = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?`,
		table, indexName(table)).Scan(&indexCount); err != nil {
		return nil, err
	}
	t.MergeKey = indexCount > 0
	err = q.QueryRowContext(ctx, `SELECT dim FROM `+metaTable+` WHERE table_name = ?`, table).Scan(&t.Dim)
	if errors.Is(err, sql.ErrNoRows) {
		// Tables created by older releases carry no metadata; infer from data.
		err = q.QueryRowContext(ctx, `SELECT length(vector) / 4 FROM `+table+` LIMIT 1`).Scan(&t.Dim)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		}
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func indexName(table string) string { return "ux_" + table + "_id" }

// InsertBatch appends rows in one transaction. An absent table is created with
// the dimension of the first row; an empty batch cannot create it.
func (s *Store) InsertBatch(ctx context.Context, table string, rows []vectordb.Document) error {
	if !tableName.MatchString(table) {
		return vectordb.Wrap("insert", table, vectordb.ErrInvalidTable)
	}
	if len(rows) == 0 {
		t, err := s.OpenOrNone(ctx, table)
		if err != nil {
			return err
		}
		if t == nil {
			return vectordb.Wrap("insert", table, vectordb.ErrEmptyBatch)
		}
		return nil
	}
	if len(rows[0].Vector) == 0 {
		return vectordb.Wrap("insert", table, fmt.Errorf("%w: empty vector for id %d", vectordb.ErrDimensionMismatch, rows[0].ID))
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vectordb.WrapIO("insert", table, err)
	}
	defer func() { _ = tx.Rollback() }()

	t, err := describe(ctx, tx, table)
	if err != nil {
		return vectordb.WrapIO("insert", table, err)
	}
	if t == nil {
		if t, err = s.createTable(ctx, tx, table, len(rows[0].Vector)); err != nil {
			return vectordb.WrapIO("insert", table, err)
		}
	} else if t.Dim == 0 {
		t.Dim = len(rows[0].Vector)
	}
	if err = recordMeta(ctx, tx, t); err != nil {
		return vectordb.WrapIO("insert", table, err)
	}
	if err = insertRows(ctx, tx, "insert", t, rows); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return vectordb.WrapIO("insert", table, err)
	}
	return nil
}

// Replace swaps the table content for rows in one transaction: the table is
// dropped, recreated with the dimension of the first row and filled. Readers
// and writers see either the old or the new table, never an empty one.
func (s *Store) Replace(ctx context.Context, table string, rows []vectordb.Document) error {
	if !tableName.MatchString(table) {
		return vectordb.Wrap("replace", table, vectordb.ErrInvalidTable)
	}
	if len(rows) == 0 {
		return vectordb.Wrap("replace", table, vectordb.ErrEmptyBatch)
	}
	if len(rows[0].Vector) == 0 {
		return vectordb.Wrap("replace", table, fmt.Errorf("%w: empty vector for id %d", vectordb.ErrDimensionMismatch, rows[0].ID))
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vectordb.WrapIO("replace", table, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return vectordb.WrapIO("replace", table, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+metaTable+` WHERE table_name = ?`, table); err != nil {
		return vectordb.WrapIO("replace", table, err)
	}
	t, err := s.createTable(ctx, tx, table, len(rows[0].Vector))
	if err != nil {
		return vectordb.WrapIO("replace", table, err)
	}
	if err = recordMeta(ctx, tx, t); err != nil {
		return vectordb.WrapIO("replace", table, err)
	}
	if err = insertRows(ctx, tx, "replace", t, rows); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return vectordb.WrapIO("replace", table, err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, op string, t *vectordb.Table, rows []vectordb.Document) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+t.Name+` (id, vector, title, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return vectordb.WrapIO(op, t.Name, err)
	}
	defer stmt.Close()
	for _, row := range rows {
		if len(row.Vector) != t.Dim {
			return vectordb.Wrap(op, t.Name, fmt.Errorf("%w: id %d has %d, table has %d",
				vectordb.ErrDimensionMismatch, row.ID, len(row.Vector), t.Dim))
		}
		blob, err := vector.EncodeEmbedding(row.Vector)
		if err != nil {
			return vectordb.Wrap(op, t.Name, err)
		}
		if _, err = stmt.ExecContext(ctx, row.ID, blob, row.Title, vectordb.Snippet(row.Text)); err != nil {
			if sqliteutil.IsConstraint(err) {
				return vectordb.Wrap(op, t.Name, fmt.Errorf("%w: %d", vectordb.ErrDuplicateID, row.ID))
			}
			return vectordb.WrapIO(op, t.Name, err)
		}
	}
	return nil
}

func (s *Store) createTable(ctx context.Context, tx *sql.Tx, table string, dim int) (*vectordb.Table, error) {
	if _, err := tx.ExecContext(ctx, `CREATE TABLE `+table+` (
		id     INTEGER NOT NULL,
		vector BLOB NOT NULL,
		title  TEXT,
		text   TEXT
	)`); err != nil {
		return nil, err
	}
	if s.mergeKey {
		if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX `+indexName(table)+` ON `+table+` (id)`); err != nil {
			return nil, err
		}
	}
	s.logf("sqlitevec: created table %s dim=%d merge_key=%v", table, dim, s.mergeKey)
	return &vectordb.Table{Name: table, Dim: dim, MergeKey: s.mergeKey}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordMeta(ctx context.Context, x execer, t *vectordb.Table) error {
	mergeKey := 0
	if t.MergeKey {
		mergeKey = 1
	}
	_, err := x.ExecContext(ctx, `INSERT OR IGNORE INTO `+metaTable+` (table_name, dim, merge_key) VALUES (?, ?, ?)`,
		t.Name, t.Dim, mergeKey)
	return err
}

// UpsertOne inserts row or replaces the existing row with the same id.
func (s *Store) UpsertOne(ctx context.Context, table string, row vectordb.Document) error {
	t, err := s.OpenOrNone(ctx, table)
	if err != nil {
		return err
	}
	if t == nil {
		return vectordb.Wrap("upsert", table, fmt.Errorf("%w: table does not exist", vectordb.ErrUpsertUnsupported))
	}
	if !t.MergeKey || !s.mergeKey {
		return vectordb.Wrap("upsert", table, fmt.Errorf("%w: no merge key", vectordb.ErrUpsertUnsupported))
	}
	if len(row.Vector) == 0 || (t.Dim > 0 && len(row.Vector) != t.Dim) {
		return vectordb.Wrap("upsert", table, fmt.Errorf("%w: id %d has %d, table has %d",
			vectordb.ErrDimensionMismatch, row.ID, len(row.Vector), t.Dim))
	}
	blob, err := vector.EncodeEmbedding(row.Vector)
	if err != nil {
		return vectordb.Wrap("upsert", table, err)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if t.Dim == 0 {
		t.Dim = len(row.Vector)
		if err = recordMeta(ctx, db, t); err != nil {
			return vectordb.WrapIO("upsert", table, err)
		}
	}
	_, err = db.ExecContext(ctx, `INSERT INTO `+table+` (id, vector, title, text) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, title = excluded.title, text = excluded.text`,
		row.ID, blob, row.Title, vectordb.Snippet(row.Text))
	if err != nil {
		if strings.Contains(err.Error(), "ON CONFLICT clause does not match") {
			return vectordb.Wrap("upsert", table, fmt.Errorf("%w: %v", vectordb.ErrUpsertUnsupported, err))
		}
		return vectordb.WrapIO("upsert", table, err)
	}
	return nil
}

// DeleteByID removes every row with id.
func (s *Store) DeleteByID(ctx context.Context, table string, id int64) error {
	t, err := s.OpenOrNone(ctx, table)
	if err != nil || t == nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return vectordb.WrapIO("delete", table, err)
	}
	return nil
}

// Search ranks rows by half cosine distance, ties broken by id.
func (s *Store) Search(ctx context.Context, table string, query []float32, k int) ([]vectordb.Match, error) {
	matches := []vectordb.Match{}
	if k <= 0 {
		return matches, nil
	}
	t, err := s.OpenOrNone(ctx, table)
	if err != nil {
		return nil, err
	}
	if t == nil || t.Dim == 0 {
		return matches, nil
	}
	if len(query) != t.Dim {
		return nil, vectordb.Wrap("search", table, fmt.Errorf("%w: query has %d, table has %d",
			vectordb.ErrDimensionMismatch, len(query), t.Dim))
	}
	blob, err := vector.EncodeEmbedding(query)
	if err != nil {
		return nil, vectordb.Wrap("search", table, err)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT id, title, text, (1.0 - vec_cosine(vector, ?)) / 2.0 AS distance
		FROM `+table+` ORDER BY distance ASC, id ASC LIMIT ?`, blob, k)
	if err != nil {
		return nil, vectordb.WrapIO("search", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var m vectordb.Match
		var title, text sql.NullString
		var distance sql.NullFloat64
		if err = rows.Scan(&m.ID, &title, &text, &distance); err != nil {
			return nil, vectordb.WrapIO("search", table, err)
		}
		m.Title, m.Text = title.String, text.String
		m.Distance = clamp(distance.Float64)
		if !distance.Valid {
			m.Distance = 1
		}
		matches = append(matches, m)
	}
	if err = rows.Err(); err != nil {
		return nil, vectordb.WrapIO("search", table, err)
	}
	return matches, nil
}

func clamp(d float64) float64 {
	if math.IsNaN(d) {
		return 1
	}
	return math.Max(0, math.Min(1, d))
}

// Drop removes the table and its metadata.
func (s *Store) Drop(ctx context.Context, table string) error {
	if !tableName.MatchString(table) {
		return vectordb.Wrap("drop", table, vectordb.ErrInvalidTable)
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return vectordb.WrapIO("drop", table, err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return vectordb.WrapIO("drop", table, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM `+metaTable+` WHERE table_name = ?`, table); err != nil {
		return vectordb.WrapIO("drop", table, err)
	}
	if err = tx.Commit(); err != nil {
		return vectordb.WrapIO("drop", table, err)
	}
	return nil
}

// Count returns the number of rows; an absent table has none.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	t, err := s.OpenOrNone(ctx, table)
	if err != nil || t == nil {
		return 0, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, vectordb.WrapIO("count", table, err)
	}
	return n, nil
}

// Check reports row counts, duplicate ids and vectors of the wrong dimension.
func (s *Store) Check(ctx context.Context, table string) (*vectordb.Stats, error) {
	stats := &vectordb.Stats{Table: table}
	t, err := s.OpenOrNone(ctx, table)
	if err != nil || t == nil {
		return stats, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	if err = db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT id) FROM `+table).Scan(&stats.Rows, &stats.DistinctIDs); err != nil {
		return nil, vectordb.WrapIO("check", table, err)
	}
	rows, err := db.QueryContext(ctx, `SELECT id FROM `+table+` GROUP BY id HAVING COUNT(*) > 1 ORDER BY id`)
	if err != nil {
		return nil, vectordb.WrapIO("check", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, vectordb.WrapIO("check", table, err)
		}
		stats.DuplicateIDs = append(stats.DuplicateIDs, id)
	}
	if err = rows.Err(); err != nil {
		return nil, vectordb.WrapIO("check", table, err)
	}
	if t.Dim > 0 {
		if err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE length(vector) != ?`, t.Dim*4).Scan(&stats.BadDimensions); err != nil {
			return nil, vectordb.WrapIO("check", table, err)
		}
	}
	return stats, nil
}

// IDs returns the distinct ids stored in table, ascending.
func (s *Store) IDs(ctx context.Context, table string) ([]int64, error) {
	t, err := s.OpenOrNone(ctx, table)
	if err != nil || t == nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT id FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, vectordb.WrapIO("ids", table, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, vectordb.WrapIO("ids", table, err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, vectordb.WrapIO("ids", table, err)
	}
	return ids, nil
}

var _ vectordb.Store = (*Store)(nil)
