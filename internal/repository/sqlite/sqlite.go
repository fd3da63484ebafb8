// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and
// ":memory:" databases make every test hermetic.
//
// LAYOUT:
// DB owns the *sql.DB and the schema. Each aggregate gets a thin sub-store
// sharing that pool:
//
//	db.Users()        → *UserDB        (repository.UserRepository)
//	db.Clubs()        → *ClubDB        (repository.ClubRepository)
//	db.Memberships()  → *MembershipDB  (repository.MembershipRepository)
//	db.Events()       → *EventDB       (repository.EventRepository)
//
// CONNECTION POOL:
// The pool is capped at one connection. SQLite serialises writers anyway,
// PRAGMAs are per-connection, and a ":memory:" database exists only on the
// connection that created it. The rule that follows: never start a second
// statement while a *sql.Rows or *sql.Tx is still holding the connection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and hands out the per-aggregate stores.
type DB struct {
	conn *sql.DB
}

// queryer is the subset of *sql.DB and *sql.Tx the stores use, so the same
// helper can run inside or outside a transaction.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the SQLite database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/clubs.db"  → file-based database (persistent)
//   - ":memory:"       → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers in other processes (backups, sqlite3 CLI) proceed
	// while we write.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. Cascades from clubs to
	// memberships and events depend on them.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// newFromConn wraps an already-open pool without touching the schema.
// Tests use it to put a sqlmock connection behind the stores.
func newFromConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

func (db *DB) Users() *UserDB             { return &UserDB{db: db} }
func (db *DB) Clubs() *ClubDB             { return &ClubDB{db: db} }
func (db *DB) Memberships() *MembershipDB { return &MembershipDB{db: db} }
func (db *DB) Events() *EventDB           { return &EventDB{db: db} }

// withTx runs fn inside a transaction. fn's error (or a failed commit) rolls
// everything back.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("sqlite: rolling back: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// migrations run in order on every start. Each statement is idempotent.
var migrations = []struct {
	name string
	sql  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			institution_id TEXT NOT NULL UNIQUE,
			password_hash  TEXT NOT NULL,
			name           TEXT NOT NULL DEFAULT '',
			grade          TEXT NOT NULL DEFAULT '',
			major          TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL,
			updated_at     DATETIME NOT NULL
		);`},
	{"user_interests", `
		CREATE TABLE IF NOT EXISTS user_interests (
			user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			PRIMARY KEY (user_id, category)
		);`},
	{"clubs", `
		CREATE TABLE IF NOT EXISTS clubs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			categories  TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_clubs_categories ON clubs(categories);`},
	// UNIQUE(club_id, user_id) is what makes concurrent joins safe.
	{"memberships", `
		CREATE TABLE IF NOT EXISTS memberships (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			club_id   INTEGER NOT NULL REFERENCES clubs(id) ON DELETE CASCADE,
			user_id   TEXT NOT NULL REFERENCES users(id),
			role      TEXT NOT NULL CHECK (role IN ('Member', 'Admin')),
			joined_at DATETIME NOT NULL,
			UNIQUE (club_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);`},
	{"events", `
		CREATE TABLE IF NOT EXISTS events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			club_id     INTEGER NOT NULL REFERENCES clubs(id) ON DELETE CASCADE,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location    TEXT NOT NULL DEFAULT '',
			starts_at   DATETIME NOT NULL,
			created_at  DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_club_id ON events(club_id);`},
}

func (db *DB) migrate() error {
	for _, m := range migrations {
		if _, err := db.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", m.name, err)
		}
	}
	return nil
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var se *moderncsqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// likePattern turns a user query into a LIKE pattern that matches it as a
// literal substring. Use with ESCAPE '\'.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
