package sse

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/hub"
	"github.com/dgnsrekt/boardrelay/internal/session"
)

// peer is an in-memory hub member used to drive traffic.
type peer struct{ id string }

func (p *peer) ID() string { return p.id }
func (p *peer) Send(data []byte) error { return nil }
func (p *peer) Close() error { return nil }

type frame struct {
	event string
	id    string
	data  string
}

func readFrame(t *testing.T, r *bufio.Reader) frame {
	t.Helper()
	var f frame
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == "":
			return f
		case strings.HasPrefix(line, "event: "):
			f.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			f.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			f.data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func waitForCount(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d members, got %d", want, h.Count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStream_DeliversSnapshotThenBroadcasts(t *testing.T) {
	logger := zap.NewNop()
	h := hub.New(session.NewStore(), logger)
	srv := httptest.NewServer(http.HandlerFunc(NewStream(h, 16, logger).HandleSSE))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if f := readFrame(t, r); f.event != "sync" || f.id != "1" {
		t.Fatalf("expected sync frame with id 1, got %+v", f)
	}
	if f := readFrame(t, r); f.event != "clients" || f.data != `{"type":"clients","count":1}` {
		t.Fatalf("expected count frame, got %+v", f)
	}

	src := &peer{id: "writer"}
	if err := h.Join(src); err != nil {
		t.Fatal(err)
	}
	if f := readFrame(t, r); f.event != "clients" || f.data != `{"type":"clients","count":2}` {
		t.Fatalf("expected count 2, got %+v", f)
	}

	h.Route(context.Background(), src, []byte(`{"type":"sticky","action":"create","id":"n1","x":1,"y":2,"html":"a"}`))
	f := readFrame(t, r)
	if f.event != "sticky" || f.id != "4" {
		t.Errorf("expected sticky frame with id 4, got %+v", f)
	}
	if f.data != `{"type":"sticky","action":"create","id":"n1","x":1,"y":2,"html":"a","z":1}` {
		t.Errorf("unexpected data: %s", f.data)
	}

	cancel()
	waitForCount(t, h, 1)
}

func TestSubscriber_FullBufferFails(t *testing.T) {
	sub := newSubscriber(1)

	if err := sub.Send([]byte(`{"type":"clear"}`)); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := sub.Send([]byte(`{"type":"clear"}`)); !errors.Is(err, ErrBufferFull) {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}

	sub.Close()
	sub.Close()
	if err := sub.Send([]byte(`{"type":"clear"}`)); !errors.Is(err, ErrSubscriberClosed) {
		t.Errorf("expected ErrSubscriberClosed, got %v", err)
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{`{"type":"draw","x":1}`, "draw"},
		{`{"count":1}`, "message"},
		{`not json`, "message"},
	}
	for _, tt := range tests {
		if got := eventType([]byte(tt.data)); got != tt.want {
			t.Errorf("eventType(%s) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestStream_ShutdownEndsStream(t *testing.T) {
	logger := zap.NewNop()
	h := hub.New(session.NewStore(), logger)
	srv := httptest.NewServer(http.HandlerFunc(NewStream(h, 16, logger).HandleSSE))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readFrame(t, r)
	readFrame(t, r)

	h.Shutdown()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after shutdown")
	}

	if resp2, err := http.Get(srv.URL); err == nil {
		defer resp2.Body.Close()
		if resp2.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503 after shutdown, got %d", resp2.StatusCode)
		}
	}
}

func TestSubscriber_IndentedPayloadStaysOneDataLine(t *testing.T) {
	sub := newSubscriber(1)

	if err := sub.Send([]byte("{\n  \"type\": \"draw\",\n  \"x\": 1\n}")); err != nil {
		t.Fatal(err)
	}

	got := string(<-sub.frames)
	want := "event: draw\nid: 1\ndata: {\"type\":\"draw\",\"x\":1}\n\n"
	if got != want {
		t.Errorf("unexpected frame:\n got %q\nwant %q", got, want)
	}

	// Every line of a frame must carry a field name.
	for _, line := range strings.Split(strings.TrimSuffix(got, "\n\n"), "\n") {
		if !strings.HasPrefix(line, "event: ") && !strings.HasPrefix(line, "id: ") && !strings.HasPrefix(line, "data: ") {
			t.Errorf("line without field name: %q", line)
		}
	}
}

func TestFormatEvent_NonJSONSplitsLines(t *testing.T) {
	got := string(formatEvent("message", 7, []byte("one\r\ntwo\nthree")))
	want := "event: message\nid: 7\ndata: one\ndata: two\ndata: three\n\n"
	if got != want {
		t.Errorf("unexpected frame:\n got %q\nwant %q", got, want)
	}
}
