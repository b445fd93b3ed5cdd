package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/hub"
	"github.com/dgnsrekt/boardrelay/internal/metrics"
	"github.com/dgnsrekt/boardrelay/internal/session"
)

type stubConn struct{ id string }

func (c *stubConn) ID() string { return c.id }
func (c *stubConn) Send([]byte) error { return nil }
func (c *stubConn) Close() error { return nil }

type fixture struct {
	hub    *hub.Hub
	store  *session.Store
	router http.Handler
	conn   *stubConn
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")

	store := session.NewStore()
	h := hub.New(store, logger, hub.WithMetrics(m))
	conn := &stubConn{id: "c1"}
	if err := h.Join(conn); err != nil {
		t.Fatal(err)
	}

	router := NewRouter(NewServer(h, store, logger), Routes{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, logger)
	return &fixture{hub: h, store: store, router: router, conn: conn}
}

func (f *fixture) route(raw string) {
	f.hub.Route(context.Background(), f.conn, []byte(raw))
}

func (f *fixture) get(t *testing.T, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Clients != 1 {
		t.Errorf("unexpected health: %+v", body)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
}

func TestState(t *testing.T) {
	f := newFixture(t)
	f.route(`{"type":"sticky","action":"create","x":5,"y":6,"html":"<i>a</i>"}`)
	f.route(`{"type":"draw","path":[1,2,3]}`)

	rec := f.get(t, "/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var state struct {
		Type     string            `json:"type"`
		History  []json.RawMessage `json:"history"`
		Stickies []session.Sticky  `json:"stickies"`
		Clients  int               `json:"clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.Type != "sync" || len(state.History) != 2 || state.Clients != 1 {
		t.Errorf("unexpected state: %+v", state)
	}
	if len(state.Stickies) != 1 || state.Stickies[0].HTML != "<i>a</i>" {
		t.Errorf("unexpected stickies: %+v", state.Stickies)
	}
}

func TestHistoryReplays(t *testing.T) {
	f := newFixture(t)
	f.route(`{"type":"sticky","action":"create","x":1,"y":1,"html":"one"}`)
	f.route(`{"type":"sticky","action":"move","id":"s1","x":9}`)
	f.route(`{"type":"clear"}`)

	rec := f.get(t, "/history.jsonl", nil)
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("expected application/x-ndjson, got %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), rec.Body.String())
	}

	events, err := session.ReadJSONL(strings.NewReader(rec.Body.String()))
	if err != nil {
		t.Fatal(err)
	}
	replayed, err := session.Replay(events)
	if err != nil {
		t.Fatal(err)
	}

	s, ok := replayed.Sticky("s1")
	if !ok || s.X != 9 || s.Y != 1 {
		t.Errorf("unexpected replayed sticky: %+v", s)
	}
}

func TestStateZstdCompressed(t *testing.T) {
	f := newFixture(t)
	f.route(`{"type":"sticky","action":"create","html":"compressed"}`)

	rec := f.get(t, "/state", http.Header{"Accept-Encoding": {"zstd"}})
	if enc := rec.Header().Get("Content-Encoding"); enc != "zstd" {
		t.Fatalf("expected zstd encoding, got %q", enc)
	}

	dec, err := zstd.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	body, err := io.ReadAll(dec)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != string(f.hub.State()) {
		t.Errorf("decompressed body mismatch:\n got %s\nwant %s", body, f.hub.State())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.route(`{"type":"clear"}`)

	rec := f.get(t, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"test_members 1", `test_events_total{type="clear"} 1`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestOptionalRoutesNotMounted(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/ws", "/events"} {
		if rec := f.get(t, path, nil); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/state", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for preflight, got %d", rec.Code)
	}
}
