package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/accesskeys-registry/interfaces"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements interfaces.KVStore on a SQLite database with dual
// reader/writer connections. The writer is limited to a single connection, so
// Update transactions are serialized and never interleave.
type SQLiteStore struct {
	writer *sql.DB
	reader *sql.DB
	dsn    string
	log    *slog.Logger
}

var _ interfaces.KVStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database file at dbPath with WAL mode,
// busy timeout and synchronous NORMAL, then applies pending migrations.
func NewSQLiteStore(dbPath string, log *slog.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=cache_size(-64000)",
		dbPath,
	)
	return NewSQLiteStoreFromDSN(dsn, log)
}

// NewSQLiteStoreFromDSN opens a store from a full modernc.org/sqlite DSN and runs migrations.
func NewSQLiteStoreFromDSN(dsn string, log *slog.Logger) (*SQLiteStore, error) {
	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	s := &SQLiteStore{writer: writer, reader: reader, dsn: dsn, log: log}

	if err := RunMigrations(writer); err != nil {
		_ = s.Close()
		return nil, err
	}

	log.Debug("SQLite store opened", slog.String("dsn", dsn))
	return s, nil
}

// View runs fn inside a read transaction on the reader pool.
func (s *SQLiteStore) View(ctx context.Context, fn func(tx interfaces.Txn) error) error {
	tx, err := s.reader.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(&sqliteTxn{ctx: ctx, tx: tx, readOnly: true})
}

// Update runs fn inside a write transaction and commits only if fn returns nil.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx interfaces.Txn) error) error {
	tx, err := s.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTxn{ctx: ctx, tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Name returns identifier for logging.
func (s *SQLiteStore) Name() string {
	return "sqlite"
}

// Close closes both reader and writer connections. Returns the first error encountered.
func (s *SQLiteStore) Close() error {
	var firstErr error

	if err := s.reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}

	if err := s.writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}

	return firstErr
}

type sqliteTxn struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqliteTxn) Get(key interfaces.Key) ([]byte, bool, error) {
	const query = `SELECT value FROM kv WHERE key = ?`

	var value []byte
	err := t.tx.QueryRowContext(t.ctx, query, key.String()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

func (t *sqliteTxn) Set(key interfaces.Key, value []byte) error {
	if t.readOnly {
		return interfaces.ErrReadOnly
	}

	const query = `INSERT OR REPLACE INTO kv (key, kind, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`
	if _, err := t.tx.ExecContext(t.ctx, query, key.String(), key.Kind.String(), value); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (t *sqliteTxn) Remove(key interfaces.Key) error {
	if t.readOnly {
		return interfaces.ErrReadOnly
	}

	const query = `DELETE FROM kv WHERE key = ?`
	if _, err := t.tx.ExecContext(t.ctx, query, key.String()); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}
