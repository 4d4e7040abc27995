// Package store persists the call log to PostgreSQL: one row per call and
// one row per finalized utterance exchange, so finished conversations can
// be reviewed and audited after the fact.
//
// All methods are safe for concurrent use; a single [pgxpool.Pool] backs
// the store.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCallLog = `
CREATE TABLE IF NOT EXISTS calls (
    call_id     TEXT         PRIMARY KEY,
    started_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    ended_at    TIMESTAMPTZ,
    utterances  INT          NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls (started_at);

CREATE TABLE IF NOT EXISTS utterances (
    id          BIGSERIAL    PRIMARY KEY,
    call_id     TEXT         NOT NULL REFERENCES calls (call_id),
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    duration_ns BIGINT       NOT NULL DEFAULT 0,
    decode_ns   BIGINT       NOT NULL DEFAULT 0,
    forced      BOOLEAN      NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_utterances_call_id ON utterances (call_id);
CREATE INDEX IF NOT EXISTS idx_utterances_created_at ON utterances (created_at);
`

// Utterance is one logged exchange line: what the caller said or what the
// agent replied.
type Utterance struct {
	CallID    string
	Role      string // "caller" or "agent"
	Text      string
	Duration  time.Duration

	// DecodeTime is how long the batch decode took. Zero for agent lines.
	DecodeTime time.Duration

	Forced    bool
	CreatedAt time.Time
}

// CallRecord summarises one call.
type CallRecord struct {
	CallID     string
	StartedAt  time.Time
	EndedAt    *time.Time
	Utterances int
}

// Store is the PostgreSQL-backed call log.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and ensures the schema exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool without running migrations. Used by
// tests that manage their own schema.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, ddlCallLog); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// RecordCallStart inserts the call row.
func (s *Store) RecordCallStart(ctx context.Context, callID string, startedAt time.Time) error {
	const q = `INSERT INTO calls (call_id, started_at) VALUES ($1, $2) ON CONFLICT (call_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, callID, startedAt); err != nil {
		return fmt.Errorf("store: record call start: %w", err)
	}
	return nil
}

// RecordCallEnd marks the call finished.
func (s *Store) RecordCallEnd(ctx context.Context, callID string, endedAt time.Time) error {
	const q = `UPDATE calls SET ended_at = $2 WHERE call_id = $1`
	if _, err := s.pool.Exec(ctx, q, callID, endedAt); err != nil {
		return fmt.Errorf("store: record call end: %w", err)
	}
	return nil
}

// RecordUtterance appends one exchange line and bumps the call's counter.
func (s *Store) RecordUtterance(ctx context.Context, u Utterance) error {
	const insert = `
		INSERT INTO utterances (call_id, role, text, duration_ns, decode_ns, forced)
		VALUES ($1, $2, $3, $4, $5, $6)`
	const bump = `UPDATE calls SET utterances = utterances + 1 WHERE call_id = $1`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: record utterance: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insert, u.CallID, u.Role, u.Text, u.Duration.Nanoseconds(), u.DecodeTime.Nanoseconds(), u.Forced); err != nil {
		return fmt.Errorf("store: record utterance: %w", err)
	}
	if _, err := tx.Exec(ctx, bump, u.CallID); err != nil {
		return fmt.Errorf("store: record utterance: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: record utterance: %w", err)
	}
	return nil
}

// Transcript returns the full exchange log for one call, oldest first.
func (s *Store) Transcript(ctx context.Context, callID string) ([]Utterance, error) {
	const q = `
		SELECT call_id, role, text, duration_ns, decode_ns, forced, created_at
		FROM   utterances
		WHERE  call_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("store: transcript: %w", err)
	}
	utts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Utterance, error) {
		var (
			u          Utterance
			durationNS int64
			decodeNS   int64
		)
		if err := row.Scan(&u.CallID, &u.Role, &u.Text, &durationNS, &decodeNS, &u.Forced, &u.CreatedAt); err != nil {
			return Utterance{}, err
		}
		u.Duration = time.Duration(durationNS)
		u.DecodeTime = time.Duration(decodeNS)
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan transcript: %w", err)
	}
	return utts, nil
}

// RecentCalls returns the most recent calls, newest first.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT call_id, started_at, ended_at, utterances
		FROM   calls
		ORDER  BY started_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent calls: %w", err)
	}
	calls, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (CallRecord, error) {
		var c CallRecord
		if err := row.Scan(&c.CallID, &c.StartedAt, &c.EndedAt, &c.Utterances); err != nil {
			return CallRecord{}, err
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan recent calls: %w", err)
	}
	return calls, nil
}
