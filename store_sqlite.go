package chatsync

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable Store backed by a single-table SQLite database
// in WAL mode. Suitable for desktop and CLI clients that should come back
// with the last committed view before the first poll lands.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens, or creates, the snapshot database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate snapshot db: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshots (
		namespace TEXT PRIMARY KEY,
		version   INTEGER NOT NULL,
		blob      BLOB NOT NULL,
		saved_at  TEXT NOT NULL
	);`)
	return err
}

// Save upserts a namespace blob, retrying transient contention errors.
func (s *SQLiteStore) Save(namespace string, version int, blob []byte) error {
	savedAt := time.Now().UTC().Format(time.RFC3339Nano)
	return retrySQLite(func() error {
		_, err := s.db.Exec(
			`INSERT INTO snapshots (namespace, version, blob, saved_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(namespace) DO UPDATE SET
			   version = excluded.version,
			   blob = excluded.blob,
			   saved_at = excluded.saved_at`,
			namespace, version, blob, savedAt,
		)
		return err
	})
}

// Load fetches a namespace blob, enforcing the schema version.
func (s *SQLiteStore) Load(namespace string, version int) ([]byte, error) {
	var (
		stored int
		blob   []byte
	)
	err := s.db.QueryRow(
		`SELECT version, blob FROM snapshots WHERE namespace = ?`, namespace,
	).Scan(&stored, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	if stored != version {
		return nil, ErrSnapshotVersion
	}
	return blob, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ============================================================================
// Contention retry
// ============================================================================

const (
	sqliteMaxRetries = 3
	sqliteBaseDelay  = 50 * time.Millisecond
	sqliteMaxDelay   = 500 * time.Millisecond
)

// retrySQLite runs fn, retrying transient SQLite errors with exponential
// backoff plus jitter. Anything else returns immediately.
func retrySQLite(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= sqliteMaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt < sqliteMaxRetries {
			delay := sqliteBaseDelay << uint(attempt)
			if delay > sqliteMaxDelay {
				delay = sqliteMaxDelay
			}
			time.Sleep(delay + time.Duration(rand.Int63n(int64(sqliteBaseDelay))))
		}
	}
	return lastErr
}

// isTransientSQLiteErr matches the contention errors WAL-mode SQLite throws
// under concurrent access: SQLITE_BUSY, SQLITE_LOCKED, and the short-read
// variant modernc.org/sqlite surfaces as error 522.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",
		"(6)",
		"(522)",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
