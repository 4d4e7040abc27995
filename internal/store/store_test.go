package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arivox/arivox/internal/store"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if ARIVOX_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("ARIVOX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ARIVOX_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a Store with a clean schema and registers cleanup.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS utterances, calls CASCADE`); err != nil {
		t.Fatalf("drop schema: %v", err)
	}

	s, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestCallLifecycleRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.RecordCallStart(ctx, "call-1", started); err != nil {
		t.Fatalf("RecordCallStart: %v", err)
	}

	utts := []store.Utterance{
		{CallID: "call-1", Role: "caller", Text: "what are your hours", Duration: 1500 * time.Millisecond},
		{CallID: "call-1", Role: "agent", Text: "We're open nine to five."},
		{CallID: "call-1", Role: "caller", Text: "thanks, bye", Duration: 900 * time.Millisecond, Forced: false},
	}
	for i, u := range utts {
		if err := s.RecordUtterance(ctx, u); err != nil {
			t.Fatalf("RecordUtterance %d: %v", i, err)
		}
	}
	if err := s.RecordCallEnd(ctx, "call-1", time.Now().UTC()); err != nil {
		t.Fatalf("RecordCallEnd: %v", err)
	}

	got, err := s.Transcript(ctx, "call-1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(got) != len(utts) {
		t.Fatalf("transcript has %d lines, want %d", len(got), len(utts))
	}
	for i := range utts {
		if got[i].Role != utts[i].Role || got[i].Text != utts[i].Text {
			t.Errorf("line %d = %s %q, want %s %q", i, got[i].Role, got[i].Text, utts[i].Role, utts[i].Text)
		}
	}
	if got[0].Duration != 1500*time.Millisecond {
		t.Errorf("line 0 duration = %v, want 1.5s", got[0].Duration)
	}

	calls, err := s.RecentCalls(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCalls: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("RecentCalls returned %d, want 1", len(calls))
	}
	c := calls[0]
	if c.CallID != "call-1" || c.Utterances != 3 {
		t.Errorf("call = %+v, want call-1 with 3 utterances", c)
	}
	if c.EndedAt == nil {
		t.Error("EndedAt not set after RecordCallEnd")
	}
}

func TestRecordCallStartIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := s.RecordCallStart(ctx, "call-1", now); err != nil {
		t.Fatalf("first RecordCallStart: %v", err)
	}
	if err := s.RecordCallStart(ctx, "call-1", now.Add(time.Second)); err != nil {
		t.Fatalf("second RecordCallStart: %v", err)
	}

	calls, err := s.RecentCalls(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCalls: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("RecentCalls returned %d rows, want 1", len(calls))
	}
}

func TestTranscriptForUnknownCallIsEmpty(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Transcript(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Transcript returned %d lines for unknown call, want 0", len(got))
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
