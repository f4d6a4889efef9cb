package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPostgresStore creates a PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	c := &pgConn{pool: pool}
	if err := c.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: init schema: %w", err)
	}

	return &sqlStore{db: c, now: func() time.Time { return time.Now().UTC() }}, nil
}

type pgConn struct {
	pool *pgxpool.Pool
}

func (c *pgConn) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		name TEXT NOT NULL,
		grade TEXT,
		section TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		icon TEXT NOT NULL,
		description TEXT,
		syllabus TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS topics (
		id BIGSERIAL PRIMARY KEY,
		subject_id BIGINT NOT NULL REFERENCES subjects(id),
		name TEXT NOT NULL,
		description TEXT,
		estimated_duration INTEGER
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		subject_id BIGINT NOT NULL,
		topic_id BIGINT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		end_time TIMESTAMPTZ,
		duration INTEGER,
		completion_percentage INTEGER NOT NULL DEFAULT 0,
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		session_id BIGINT NOT NULL REFERENCES sessions(id),
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		audio_url TEXT,
		attachment_url TEXT
	);

	CREATE TABLE IF NOT EXISTS progress (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		subject_id BIGINT NOT NULL,
		topic_id BIGINT NOT NULL,
		completion_percentage INTEGER NOT NULL DEFAULT 0,
		last_studied TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		metrics JSONB NOT NULL DEFAULT '{}',
		UNIQUE (user_id, subject_id, topic_id)
	);

	CREATE TABLE IF NOT EXISTS highlights (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		session_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL REFERENCES messages(id),
		content TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_highlights_user ON highlights(user_id);
	`

	_, err := c.pool.Exec(ctx, schema)
	return err
}

func (c *pgConn) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return c.pool.QueryRow(ctx, rebind(query), args...)
}

func (c *pgConn) query(ctx context.Context, query string, args ...any) (rowIterator, error) {
	rows, err := c.pool.Query(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *pgConn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.pool.Exec(ctx, rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *pgConn) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	err := c.pool.QueryRow(ctx, rebind(query)+" RETURNING id", args...).Scan(&id)
	return id, err
}

func (c *pgConn) translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ErrConflict
		case "23503": // foreign_key_violation
			return ErrNotFound
		}
	}
	return err
}

func (c *pgConn) ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func (c *pgConn) close() error {
	c.pool.Close()
	return nil
}

// rebind rewrites '?' placeholders into PostgreSQL's positional $n form.
func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
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
