package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// driverName is go-sqlite3 with the fts_tokens function registered on every connection.
const driverName = "sqlite3_sift"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Foreign keys are per connection and disabled by default in SQLite
			if _, err := conn.Exec("PRAGMA foreign_keys = ON;", nil); err != nil {
				return err
			}
			return conn.RegisterFunc("fts_tokens", tokenCount, true)
		},
	})
}

// New opens the SQLite database at path, defaulting to WAL mode with a busy
// timeout when the path carries no DSN options.
func New(path string) (*sql.DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database %s: %w", path, err)
	}
	return db, nil
}

// migrations are applied in order; PRAGMA user_version records how many ran.
// Append only.
var migrations = [][]string{
	{
		`CREATE TABLE documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id TEXT NOT NULL,
			external_id TEXT NOT NULL,
			source_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			available INTEGER,
			published_at DATETIME,
			hash TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (tenant_id, external_id)
		)`,
		`CREATE INDEX idx_documents_category ON documents (tenant_id, category)`,
		`CREATE TABLE chunks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			text TEXT NOT NULL,
			FOREIGN KEY (tenant_id, document_id) REFERENCES documents (tenant_id, external_id) ON DELETE CASCADE,
			UNIQUE (tenant_id, document_id, ordinal)
		)`,
		// docid of each row equals chunks.seq
		`CREATE VIRTUAL TABLE chunks_fts USING fts4(text)`,
	},
	{
		`CREATE TABLE directives (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			scope_kind TEXT NOT NULL,
			scope_value TEXT NOT NULL DEFAULT '',
			target TEXT NOT NULL,
			action TEXT NOT NULL,
			weight REAL NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (tenant_id, scope_kind, scope_value, target)
		)`,
	},
	{
		`CREATE TABLE bundles (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			members TEXT NOT NULL DEFAULT '[]',
			locked INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX idx_bundles_tenant ON bundles (tenant_id)`,
	},
	{
		// Token counts give BM25 a per-tenant average chunk length.
		`ALTER TABLE chunks ADD COLUMN tokens INTEGER NOT NULL DEFAULT 0`,
		`UPDATE chunks SET tokens = fts_tokens(text)`,
	},
}

// SchemaVersion returns the number of migrations applied to db.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Migrate applies pending migrations, each in its own transaction.
// A database newer than this binary is refused.
func Migrate(db *sql.DB) error {
	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, len(migrations))
	}

	for v := current; v < len(migrations); v++ {
		if err := applyMigration(db, v+1, migrations[v]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, version int, stmts []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration %d: %w", version, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", version, err)
		}
	}
	// PRAGMA does not take bound parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", version, err)
	}
	return nil
}
