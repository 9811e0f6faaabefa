package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/inkgate/inkgate/internal/logging"
)

// Store wraps the SQLite database holding all session state.
type Store struct {
	db   *sql.DB
	path string
}

// migrations are applied in order; schema_migrations records the
// highest applied version.
var migrations = []string{
	// 1: base schema
	`CREATE TABLE sessions (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL DEFAULT '',
		model_id         TEXT NOT NULL DEFAULT '',
		created_at       INTEGER NOT NULL,
		updated_at       INTEGER NOT NULL,
		input_tokens     INTEGER NOT NULL DEFAULT 0,
		output_tokens    INTEGER NOT NULL DEFAULT 0,
		reasoning_tokens INTEGER NOT NULL DEFAULT 0,
		cache_tokens     INTEGER NOT NULL DEFAULT 0,
		total_tokens     INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		ordinal    INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		reasoning  TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		UNIQUE (session_id, ordinal)
	);
	CREATE TABLE tool_invocations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		tool       TEXT NOT NULL,
		arguments  TEXT NOT NULL DEFAULT '',
		result     TEXT NOT NULL DEFAULT '',
		error      TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL
	);
	CREATE TABLE blobs (
		hash      TEXT PRIMARY KEY,
		data      BLOB NOT NULL,
		size      INTEGER NOT NULL,
		ref_count INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE sources (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		title      TEXT NOT NULL DEFAULT '',
		blob_hash  TEXT NOT NULL REFERENCES blobs(hash)
	);
	CREATE INDEX idx_messages_session ON messages(session_id, ordinal);
	CREATE INDEX idx_invocations_message ON tool_invocations(message_id, position);
	CREATE INDEX idx_sources_message ON sources(message_id);`,
}

// Open opens (creating if necessary) the database at path and applies
// pending migrations. Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &StorageError{Op: "create data directory", Err: err}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StorageError{Op: "open database", Err: err}
	}
	// Single writer; SQLite serializes writes anyway and a lone
	// connection keeps the in-memory DSN coherent too.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return &StorageError{Op: "init migrations table", Err: err}
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return &StorageError{Op: "read schema version", Err: err}
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		logging.Debug("store: applying migration %d", version)

		tx, err := s.db.Begin()
		if err != nil {
			return &StorageError{Op: fmt.Sprintf("begin migration %d", version), Err: err}
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return &StorageError{Op: fmt.Sprintf("apply migration %d", version), Err: err}
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, unixepoch())`, version); err != nil {
			tx.Rollback()
			return &StorageError{Op: fmt.Sprintf("record migration %d", version), Err: err}
		}
		if err := tx.Commit(); err != nil {
			return &StorageError{Op: fmt.Sprintf("commit migration %d", version), Err: err}
		}
	}
	return nil
}
