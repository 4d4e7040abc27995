package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/arivox/arivox/internal/events"
	"github.com/arivox/arivox/internal/health"
	"github.com/arivox/arivox/internal/httpserver"
	"github.com/arivox/arivox/internal/observe"
	"github.com/arivox/arivox/internal/store"
	"github.com/arivox/arivox/pkg/types"
)

type staticCalls []types.CallInfo

func (s staticCalls) Calls() []types.CallInfo { return s }

type staticCallLog struct {
	records []store.CallRecord
	err     error
}

func (s staticCallLog) RecentCalls(context.Context, int) ([]store.CallRecord, error) {
	return s.records, s.err
}

func startServer(t *testing.T, calls httpserver.ActiveCalls, callLog httpserver.CallLog) string {
	t.Helper()

	hub := events.NewHub(slog.Default(), observe.DefaultMetrics())
	hh := health.New(health.Checker{Name: "decoder", Check: func(context.Context) error { return nil }})
	srv := httpserver.New("127.0.0.1:0", hub, hh, calls, callLog)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return "http://" + srv.Addr()
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()

	base := startServer(t, nil, nil)

	if code, body := get(t, base+"/healthz"); code != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("/healthz = %d %q, want 200 ok", code, body)
	}
	if code, _ := get(t, base+"/readyz"); code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", code)
	}
	if code, _ := get(t, base+"/metrics"); code != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", code)
	}
}

func TestCallsRouteOmittedWhenNotWired(t *testing.T) {
	t.Parallel()

	base := startServer(t, nil, nil)
	if code, _ := get(t, base+"/calls"); code != http.StatusNotFound {
		t.Errorf("/calls = %d, want 404 when no call source is wired", code)
	}
}

func TestCallsRoute(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	base := startServer(t, staticCalls{
		{CallID: "11111111-2222-3333-4444-555555555555", StartedAt: started, Utterances: 3},
	}, nil)

	code, body := get(t, base+"/calls")
	if code != http.StatusOK {
		t.Fatalf("/calls = %d, want 200", code)
	}

	var infos []types.CallInfo
	if err := json.Unmarshal([]byte(body), &infos); err != nil {
		t.Fatalf("unmarshal /calls body: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("len(infos) = %d, want 1", len(infos))
	}
	if infos[0].CallID != "11111111-2222-3333-4444-555555555555" || infos[0].Utterances != 3 {
		t.Errorf("infos[0] = %+v", infos[0])
	}
}

func TestRecentCallsRoute(t *testing.T) {
	t.Parallel()

	base := startServer(t, nil, staticCallLog{records: []store.CallRecord{
		{CallID: "aaaa", Utterances: 2},
	}})

	code, body := get(t, base+"/calls/recent?limit=10")
	if code != http.StatusOK {
		t.Fatalf("/calls/recent = %d, want 200; body %q", code, body)
	}
	var records []store.CallRecord
	if err := json.Unmarshal([]byte(body), &records); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(records) != 1 || records[0].CallID != "aaaa" {
		t.Errorf("records = %+v", records)
	}

	if code, _ := get(t, base+"/calls/recent?limit=zero"); code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", code)
	}
	if code, _ := get(t, base+"/calls/recent?limit=0"); code != http.StatusBadRequest {
		t.Errorf("zero limit = %d, want 400", code)
	}
}

func TestRecentCallsRouteStoreFailure(t *testing.T) {
	t.Parallel()

	base := startServer(t, nil, staticCallLog{err: fmt.Errorf("connection refused")})
	if code, _ := get(t, base+"/calls/recent"); code != http.StatusInternalServerError {
		t.Errorf("/calls/recent = %d, want 500", code)
	}
}
