package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/hub"
)

var (
	ErrSubscriberClosed = errors.New("subscriber closed")
	ErrBufferFull       = errors.New("subscriber buffer full")
)

// Stream serves hub traffic to read-only observers as Server-Sent Events.
type Stream struct {
	hub    *hub.Hub
	buffer int
	logger *zap.Logger
}

// NewStream creates a Stream. buffer is the number of frames a subscriber may
// fall behind before it is dropped.
func NewStream(h *hub.Hub, buffer int, logger *zap.Logger) *Stream {
	return &Stream{
		hub:    h,
		buffer: buffer,
		logger: logger,
	}
}

// subscriber is one SSE client. Inbound traffic is not possible, so it only
// ever receives.
type subscriber struct {
	id string

	mu       sync.Mutex
	sequence uint64
	frames   chan []byte
	done     chan struct{}
	closed   bool
}

var _ hub.Connection = (*subscriber)(nil)

func newSubscriber(buffer int) *subscriber {
	return &subscriber{
		id:     "sse-" + uuid.New().String(),
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (s *subscriber) ID() string { return s.id }

func (s *subscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}
	select {
	case s.frames <- formatEvent(eventType(data), s.sequence+1, data):
		s.sequence++
		return nil
	default:
		return ErrBufferFull
	}
}

func (s *subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

// eventType extracts the type field used as the SSE event name.
func eventType(data []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		return "message"
	}
	return env.Type
}

// formatEvent builds one SSE frame. Passthrough payloads keep the sender's
// formatting, so data is compacted onto a single line; anything that is not
// JSON is split into one data line per input line.
func formatEvent(name string, seq uint64, data []byte) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\nid: %d\n", name, seq)

	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err == nil {
		data = compact.Bytes()
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	for _, line := range lines {
		for _, part := range strings.Split(line, "\r") {
			buf.WriteString("data: ")
			buf.WriteString(part)
			buf.WriteByte('\n')
		}
	}

	buf.WriteByte('\n')
	return buf.Bytes()
}

// HandleSSE handles the SSE endpoint for observers.
func (st *Stream) HandleSSE(w http.ResponseWriter, r *http.Request) {
	// Check if SSE is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	sub := newSubscriber(st.buffer)
	if err := st.hub.Join(sub); err != nil {
		st.logger.Warn("sse join failed", zap.String("connID", sub.id), zap.Error(err))
		http.Error(w, "relay unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	st.logger.Info("sse subscriber connected",
		zap.String("connID", sub.id),
		zap.String("remote_addr", r.RemoteAddr),
	)

	for {
		select {
		case <-r.Context().Done():
			st.hub.Leave(sub)
			return
		case <-sub.done:
			return
		case frame := <-sub.frames:
			if _, err := w.Write(frame); err != nil {
				st.hub.BroadcastFailure(sub, err)
				return
			}
			flusher.Flush()
		}
	}
}
