// Package sqlstore implements storage.Engine on database/sql. Every store
// is a table of (id, doc) rows holding JSON documents; secondary indexes
// are expression indexes over the document, created by goose migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fintrack/internal/common"
	"github.com/dmitrijs2005/fintrack/internal/dbx"
	"github.com/dmitrijs2005/fintrack/internal/logging"
	"github.com/dmitrijs2005/fintrack/internal/storage"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

type Store struct {
	dialect Dialect
	dsn     string
	schema  storage.Schema
	log     logging.Logger

	retryBase  time.Duration
	maxRetries uint64

	initGroup singleflight.Group

	mu      sync.RWMutex
	db      *sql.DB
	version int64
}

var _ storage.Engine = (*Store)(nil)

type Option func(*Store)

// WithDialect overrides the dialect guessed from the DSN.
func WithDialect(d Dialect) Option {
	return func(s *Store) { s.dialect = d }
}

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithRetry sets the backoff used while the database refuses connections.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(s *Store) {
		s.retryBase = base
		s.maxRetries = maxRetries
	}
}

func WithSchema(sc storage.Schema) Option {
	return func(s *Store) { s.schema = sc }
}

// New returns an unopened store for dsn. Nothing touches the database
// until Init.
func New(dsn string, opts ...Option) *Store {
	s := &Store{
		dialect:    DialectFor(dsn),
		dsn:        dsn,
		schema:     storage.Default,
		log:        logging.Nop(),
		retryBase:  100 * time.Millisecond,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "sqlstore", "dialect", s.dialect.Name())
	return s
}

// FromDB wraps an already open and migrated database.
func FromDB(d Dialect, db *sql.DB, opts ...Option) *Store {
	s := New("", append([]Option{WithDialect(d)}, opts...)...)
	s.db = db
	return s
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, common.ErrNotInitialized
	}
	return s.db, nil
}

// SchemaVersion is the migration version applied by Init.
func (s *Store) SchemaVersion() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *Store) Init(ctx context.Context) error {
	if _, err := s.handle(); err == nil {
		return nil
	}

	_, err, _ := s.initGroup.Do("init", func() (any, error) {
		if _, err := s.handle(); err == nil {
			return nil, nil
		}

		db, err := s.connect(ctx)
		if err != nil {
			return nil, err
		}

		version, err := runMigrations(ctx, s.dialect, db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: migrate: %w", common.ErrStorage, err)
		}

		s.mu.Lock()
		s.db = db
		s.version = version
		s.mu.Unlock()

		s.log.Info(ctx, "storage ready", "schema_version", version)
		return nil, nil
	})
	return err
}

func (s *Store) connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(s.dialect.DriverName(), s.dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConnection, err)
	}
	s.dialect.Configure(db)

	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.retryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			s.log.Warn(ctx, "database not reachable", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", common.ErrConnection, err)
	}
	return db, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DeleteDatabase drops every table, including goose's version table, and
// closes the connection.
func (s *Store) DeleteDatabase(ctx context.Context) error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.version = 0
	s.mu.Unlock()

	if db == nil {
		return nil
	}

	var err error
	for i := len(s.schema.Stores) - 1; i >= 0; i-- {
		_, dropErr := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.schema.Stores[i].Table)
		err = multierr.Append(err, dropErr)
	}
	_, dropErr := db.ExecContext(ctx, "DROP TABLE IF EXISTS goose_db_version")
	err = multierr.Append(err, dropErr)
	err = multierr.Append(err, db.Close())
	if err != nil {
		return fmt.Errorf("%w: delete database: %w", common.ErrStorage, err)
	}

	s.log.Info(ctx, "database deleted")
	return nil
}

func (s *Store) Clear(ctx context.Context, store string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	st, err := s.schema.Store(store)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+st.Table); err != nil {
		return fmt.Errorf("%w: clear %s: %w", common.ErrStorage, store, err)
	}
	return nil
}

// ExecuteTransaction runs fn inside one SQL transaction. With SQLite the
// store has a single connection, so calling the Store itself from fn would
// block; fn must use tx.
func (s *Store) ExecuteTransaction(ctx context.Context, stores []string, mode storage.Mode, fn func(ctx context.Context, tx storage.Ops) error) error {
	db, err := s.handle()
	if err != nil {
		return err
	}

	scope := make(map[string]bool, len(stores))
	for _, name := range stores {
		if _, err := s.schema.Store(name); err != nil {
			return err
		}
		scope[name] = true
	}

	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &ops{s: s, q: tx, scope: scope, readOnly: mode == storage.ReadOnly})
	})
	if err != nil {
		s.log.Debug(ctx, "transaction rolled back", "stores", stores, "mode", mode.String(), "error", err)
		return fmt.Errorf("%w: %w", common.ErrTransactionAborted, err)
	}
	return nil
}

func (s *Store) direct() (*ops, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	return &ops{s: s, q: db}, nil
}

func (s *Store) Add(ctx context.Context, store string, doc any) error {
	o, err := s.direct()
	if err != nil {
		return err
	}
	return o.Add(ctx, store, doc)
}

func (s *Store) Put(ctx context.Context, store string, doc any) error {
	o, err := s.direct()
	if err != nil {
		return err
	}
	return o.Put(ctx, store, doc)
}

func (s *Store) Get(ctx context.Context, store, key string, dst any) (bool, error) {
	o, err := s.direct()
	if err != nil {
		return false, err
	}
	return o.Get(ctx, store, key, dst)
}

func (s *Store) Delete(ctx context.Context, store, key string) error {
	o, err := s.direct()
	if err != nil {
		return err
	}
	return o.Delete(ctx, store, key)
}

func (s *Store) GetAll(ctx context.Context, store string) (storage.Rows, error) {
	o, err := s.direct()
	if err != nil {
		return nil, err
	}
	return o.GetAll(ctx, store)
}

func (s *Store) QueryByIndex(ctx context.Context, store, index string, values ...any) (storage.Rows, error) {
	o, err := s.direct()
	if err != nil {
		return nil, err
	}
	return o.QueryByIndex(ctx, store, index, values...)
}

func (s *Store) QueryByRange(ctx context.Context, store, index string, r storage.KeyRange) (storage.Rows, error) {
	o, err := s.direct()
	if err != nil {
		return nil, err
	}
	return o.QueryByRange(ctx, store, index, r)
}

func (s *Store) Count(ctx context.Context, store string, q *storage.IndexQuery) (int, error) {
	o, err := s.direct()
	if err != nil {
		return 0, err
	}
	return o.Count(ctx, store, q)
}
