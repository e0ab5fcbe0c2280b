package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/pavelanni/assessor/internal/model"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries the repository methods. It is embedded by both Store and Tx
// so every query runs either on the pool or inside one transaction.
type conn struct {
	q      querier
	driver string
}

// rebind rewrites ? placeholders to $n for Postgres.
func (c conn) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// forUpdate is appended to row reads that must hold a lock until commit.
// SQLite transactions are opened IMMEDIATE instead.
func (c conn) forUpdate() string {
	if c.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// Store is the relational content store.
type Store struct {
	conn
	db *sql.DB
}

// Tx is a Store scoped to one transaction.
type Tx struct {
	conn
	tx *sql.Tx
}

// New opens the database and migrates the schema.
// For sqlite, dsn is a file path or ":memory:"; for pgx it is a Postgres connection string.
func New(driver, dsn string) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite:
		db, err = openSQLite(dsn)
	case DriverPostgres:
		db, err = sql.Open(DriverPostgres, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{conn: conn{q: db, driver: driver}, db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func openSQLite(dsn string) (*sql.DB, error) {
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database, so pin the pool to one.
		db, err := sql.Open(DriverSQLite, dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return sql.Open(DriverSQLite, dsn+sep+
		"_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside one transaction. The transaction is committed when fn
// returns nil and rolled back on any error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.PersistenceError{Op: "begin transaction", Err: err}
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{conn: conn{q: sqlTx, driver: s.driver}, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return &model.PersistenceError{Op: "commit transaction", Err: err}
	}
	return nil
}

// persistErr classifies a storage error: missing rows become ErrNotFound,
// everything else is wrapped as a PersistenceError.
func persistErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, model.ErrNotFound)
	}
	return &model.PersistenceError{Op: op, Err: err}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == DriverPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS exams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		teacher_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		subject TEXT,
		description TEXT,
		duration_minutes INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		course_id INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exam_sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT,
		order_index INTEGER NOT NULL,
		UNIQUE (exam_id, order_index)
	)`,
	`CREATE TABLE IF NOT EXISTS exam_questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		section_id INTEGER NOT NULL REFERENCES exam_sections(id) ON DELETE CASCADE,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		image_url TEXT,
		points REAL NOT NULL DEFAULT 1,
		explanation TEXT,
		correct_text_answer TEXT,
		order_index INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS question_options (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question_id INTEGER NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
		option_text TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT 0,
		order_index INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exam_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		exam_id INTEGER NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		total_score REAL
	)`,
	`CREATE TABLE IF NOT EXISTS attempt_answers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL REFERENCES exam_attempts(id) ON DELETE CASCADE,
		question_id INTEGER NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
		selected_option_id INTEGER,
		text_answer TEXT,
		is_correct BOOLEAN,
		score_obtained REAL,
		ai_feedback TEXT,
		UNIQUE (attempt_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS imported_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sha256 TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		exam_id INTEGER NOT NULL,
		imported_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user ON exam_attempts (user_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_exam ON exam_attempts (exam_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS exams (
		id BIGSERIAL PRIMARY KEY,
		teacher_id BIGINT NOT NULL,
		title TEXT NOT NULL,
		subject TEXT,
		description TEXT,
		duration_minutes INTEGER,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		course_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exam_sections (
		id BIGSERIAL PRIMARY KEY,
		exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT,
		order_index INTEGER NOT NULL,
		UNIQUE (exam_id, order_index)
	)`,
	`CREATE TABLE IF NOT EXISTS exam_questions (
		id BIGSERIAL PRIMARY KEY,
		section_id BIGINT NOT NULL REFERENCES exam_sections(id) ON DELETE CASCADE,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		image_url TEXT,
		points DOUBLE PRECISION NOT NULL DEFAULT 1,
		explanation TEXT,
		correct_text_answer TEXT,
		order_index INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS question_options (
		id BIGSERIAL PRIMARY KEY,
		question_id BIGINT NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
		option_text TEXT NOT NULL,
		is_correct BOOLEAN NOT NULL DEFAULT FALSE,
		order_index INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exam_attempts (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		exam_id BIGINT NOT NULL REFERENCES exams(id) ON DELETE CASCADE,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		total_score DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS attempt_answers (
		id BIGSERIAL PRIMARY KEY,
		attempt_id BIGINT NOT NULL REFERENCES exam_attempts(id) ON DELETE CASCADE,
		question_id BIGINT NOT NULL REFERENCES exam_questions(id) ON DELETE CASCADE,
		selected_option_id BIGINT,
		text_answer TEXT,
		is_correct BOOLEAN,
		score_obtained DOUBLE PRECISION,
		ai_feedback TEXT,
		UNIQUE (attempt_id, question_id)
	)`,
	`CREATE TABLE IF NOT EXISTS imported_files (
		id BIGSERIAL PRIMARY KEY,
		sha256 TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		exam_id BIGINT NOT NULL,
		imported_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_user ON exam_attempts (user_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_attempts_exam ON exam_attempts (exam_id)`,
}
