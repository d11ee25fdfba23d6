package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store on a single SQLite connection, so every
// transaction (tick or request) is serialized by the database itself.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens (and creates if needed) the database at dbPath and
// creates any missing tables.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DBPath returns the file the store was opened on.
func (s *SQLiteStore) DBPath() string {
	return s.dbPath
}

// WithTx runs fn in a transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var savepointName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t *sqliteTx) Savepoint(ctx context.Context, name string, fn func() error) error {
	if !savepointName.MatchString(name) {
		return fmt.Errorf("invalid savepoint name %q", name)
	}
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to roll back savepoint after %v: %w", err, rbErr)
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return fmt.Errorf("failed to release savepoint after %v: %w", err, relErr)
		}
		return err
	}

	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func createSchemas(ctx context.Context, db *sql.DB) error {
	schemas := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			account_ref TEXT NOT NULL,
			game_tick INTEGER NOT NULL DEFAULT 0,
			speed INTEGER NOT NULL DEFAULT 1,
			active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			handle TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0,
			uplink_rating INTEGER NOT NULL DEFAULT 0,
			neuromancer_rating INTEGER NOT NULL DEFAULT 0,
			local_address TEXT NOT NULL DEFAULT '',
			gateway_id INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS gateways (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id INTEGER NOT NULL REFERENCES players(id),
			cpu_speed INTEGER NOT NULL,
			modem_speed INTEGER NOT NULL DEFAULT 1,
			memory_size INTEGER NOT NULL DEFAULT 24
		);`,
		`CREATE TABLE IF NOT EXISTS hosts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			kind TEXT NOT NULL,
			trace_speed REAL NOT NULL DEFAULT 0,
			hack_difficulty REAL NOT NULL DEFAULT 0,
			UNIQUE (session_id, address)
		);`,
		`CREATE TABLE IF NOT EXISTS screens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id INTEGER NOT NULL REFERENCES hosts(id),
			screen_type INTEGER NOT NULL,
			sub_page INTEGER NOT NULL,
			next_page INTEGER NULL,
			title TEXT NOT NULL DEFAULT '',
			data1 TEXT NOT NULL DEFAULT '',
			data2 TEXT NOT NULL DEFAULT '',
			data3 TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS security_systems (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id INTEGER NOT NULL REFERENCES hosts(id),
			kind INTEGER NOT NULL,
			level INTEGER NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id INTEGER NOT NULL REFERENCES hosts(id),
			name TEXT NOT NULL,
			size INTEGER NOT NULL,
			kind TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0,
			encrypted INTEGER NOT NULL DEFAULT 0,
			owner TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS access_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			host_id INTEGER NOT NULL REFERENCES hosts(id),
			session_id TEXT NOT NULL,
			created_at_tick INTEGER NOT NULL,
			from_address TEXT NOT NULL,
			from_name TEXT NOT NULL DEFAULT '',
			subject TEXT NOT NULL,
			kind TEXT NOT NULL,
			visible BOOLEAN NOT NULL DEFAULT 1,
			deleted BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS connections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			player_id INTEGER NOT NULL UNIQUE REFERENCES players(id),
			target_address TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT 0,
			trace_progress REAL NOT NULL DEFAULT 0,
			trace_active BOOLEAN NOT NULL DEFAULT 0,
			host_id INTEGER NOT NULL DEFAULT 0,
			sub_page INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS bounce_nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			connection_id INTEGER NOT NULL REFERENCES connections(id),
			position INTEGER NOT NULL,
			address TEXT NOT NULL,
			traced BOOLEAN NOT NULL DEFAULT 0,
			UNIQUE (connection_id, address)
		);`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			player_id INTEGER NOT NULL REFERENCES players(id),
			tool_name TEXT NOT NULL,
			tool_version INTEGER NOT NULL,
			target_address TEXT NOT NULL,
			params TEXT NOT NULL,
			progress REAL NOT NULL DEFAULT 0,
			ticks_remaining REAL NOT NULL,
			initial_ticks REAL NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS scheduled_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			kind TEXT NOT NULL,
			trigger_tick INTEGER NOT NULL,
			payload TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			player_id INTEGER NOT NULL REFERENCES players(id),
			sender TEXT NOT NULL,
			subject TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at_tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS missions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			kind TEXT NOT NULL,
			description TEXT NOT NULL,
			employer TEXT NOT NULL,
			payment INTEGER NOT NULL,
			difficulty INTEGER NOT NULL,
			min_rating INTEGER NOT NULL,
			target_address TEXT NOT NULL,
			target_file TEXT NOT NULL DEFAULT '',
			accepted BOOLEAN NOT NULL DEFAULT 0,
			completed BOOLEAN NOT NULL DEFAULT 0,
			accepted_by INTEGER NULL,
			created_at_tick INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS news (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			headline TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at_tick INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(active);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_session ON tasks(session_id, active);`,
		`CREATE INDEX IF NOT EXISTS idx_events_due ON scheduled_events(session_id, processed, trigger_tick);`,
		`CREATE INDEX IF NOT EXISTS idx_logs_host ON access_logs(host_id);`,
		`CREATE INDEX IF NOT EXISTS idx_bounce_connection ON bounce_nodes(connection_id, position);`,
	}

	for _, query := range schemas {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}

	return nil
}
