package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/metrics"
	"github.com/dgnsrekt/boardrelay/internal/session"
)

const tracerName = "github.com/dgnsrekt/boardrelay/internal/hub"

var (
	ErrClosed        = errors.New("hub closed")
	ErrAlreadyJoined = errors.New("connection already joined")
)

// Connection is a live client as seen by the hub.
type Connection interface {
	ID() string
	// Send queues a message for delivery. It must not block; a connection
	// that cannot take the message returns an error and is dropped.
	Send(data []byte) error
	// Close tears down the transport. It may be called more than once.
	Close() error
}

// Hub owns the membership set and fans accepted events out to it.
// A single mutex serializes membership changes, store mutations and
// broadcasts, so every member sees events in history order and a joining
// connection's snapshot is never followed by a gap or a duplicate.
type Hub struct {
	store   *session.Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu      sync.Mutex
	members []Connection
	byID    map[string]Connection
	closed  bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithMetrics records hub activity to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(h *Hub) {
		h.tracer = t
	}
}

// New creates a Hub backed by store.
func New(store *session.Store, logger *zap.Logger, opts ...Option) *Hub {
	h := &Hub{
		store:  store,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		byID:   make(map[string]Connection),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join registers conn, sends it the current state, and announces the new
// membership count to every member.
func (h *Hub) Join(conn Connection) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if _, ok := h.byID[conn.ID()]; ok {
		return ErrAlreadyJoined
	}

	h.members = append(h.members, conn)
	h.byID[conn.ID()] = conn
	h.metrics.SetMembers(len(h.members))

	history, stickies := h.store.Snapshot()
	if err := conn.Send(buildSyncMessage(history, stickies, len(h.members))); err != nil {
		h.metrics.SendFailed()
		h.dropLocked([]Connection{conn})
		return fmt.Errorf("send snapshot: %w", err)
	}
	h.metrics.MessageSent()

	h.logger.Info("client joined",
		zap.String("connID", conn.ID()),
		zap.Int("clients", len(h.members)),
		zap.Int("history", len(history)),
	)

	h.broadcastLocked(buildClientsMessage(len(h.members)))
	return nil
}

// Route handles one inbound message from src. Messages that fail to parse,
// that reference unknown stickies, or that come from a connection that is
// not a member are ignored.
func (h *Hub) Route(ctx context.Context, src Connection, raw []byte) {
	_, span := h.tracer.Start(ctx, "hub.route",
		trace.WithAttributes(attribute.String("relay.conn", src.ID())),
	)
	defer span.End()

	cmd, err := session.ParseCommand(raw)
	if err != nil {
		reason := metrics.ReasonMalformed
		if errors.Is(err, session.ErrUnknownType) || errors.Is(err, session.ErrUnknownAction) {
			reason = metrics.ReasonUnknown
		}
		h.metrics.Dropped(reason)
		span.SetAttributes(attribute.String("relay.dropped", reason))
		h.logger.Debug("ignoring inbound message",
			zap.String("connID", src.ID()),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.byID[src.ID()] != src {
		h.metrics.Dropped(metrics.ReasonNotMember)
		span.SetAttributes(attribute.String("relay.dropped", metrics.ReasonNotMember))
		return
	}

	if _, ok := cmd.(*session.ClientsRequest); ok {
		span.SetAttributes(attribute.String("relay.type", session.TypeClientsRequest))
		h.broadcastLocked(buildClientsMessage(len(h.members)))
		return
	}

	events := h.store.Apply(cmd)
	span.SetAttributes(attribute.Int("relay.events", len(events)))
	if len(events) == 0 {
		h.metrics.Dropped(metrics.ReasonNoop)
		span.SetAttributes(attribute.String("relay.dropped", metrics.ReasonNoop))
		h.logger.Debug("command changed nothing", zap.String("connID", src.ID()))
		return
	}

	for _, ev := range events {
		span.SetAttributes(
			attribute.String("relay.type", ev.Type),
			attribute.String("relay.action", ev.Action),
		)
		h.metrics.EventAccepted(ev.Type)
		h.broadcastLocked(ev.Bytes())
	}
	h.metrics.SetHistoryLength(h.store.Len())
}

// Leave removes conn and announces the new count. Leaving twice is a no-op.
func (h *Hub) Leave(conn Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked([]Connection{conn})
}

// BroadcastFailure drops a connection whose send failed. It behaves
// exactly like Leave.
func (h *Hub) BroadcastFailure(conn Connection, err error) {
	h.logger.Debug("send failed, dropping client",
		zap.String("connID", conn.ID()),
		zap.Error(err),
	)
	h.metrics.SendFailed()
	h.Leave(conn)
}

// Count returns the number of members.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}

// State returns a sync message describing the current state, as a joining
// connection would receive it.
func (h *Hub) State() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	history, stickies := h.store.Snapshot()
	return buildSyncMessage(history, stickies, len(h.members))
}

// Shutdown closes every member. Later joins fail with ErrClosed.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for _, conn := range h.members {
		if err := conn.Close(); err != nil {
			h.logger.Debug("close failed", zap.String("connID", conn.ID()), zap.Error(err))
		}
	}
	h.logger.Info("hub shut down", zap.Int("clients", len(h.members)))

	h.members = nil
	h.byID = make(map[string]Connection)
	h.metrics.SetMembers(0)
}

// broadcastLocked sends payload to every member. Members whose send fails
// are dropped once the loop is done, so one dead peer never stops delivery
// to the rest.
func (h *Hub) broadcastLocked(payload []byte) {
	var failed []Connection
	for _, conn := range h.members {
		if err := conn.Send(payload); err != nil {
			h.logger.Debug("send failed, dropping client",
				zap.String("connID", conn.ID()),
				zap.Error(err),
			)
			h.metrics.SendFailed()
			failed = append(failed, conn)
			continue
		}
		h.metrics.MessageSent()
	}

	if len(failed) > 0 {
		h.dropLocked(failed)
	}
}

// dropLocked removes and closes conns, then re-announces the count if
// anything was removed. The announcement may itself fail for more members;
// each round removes at least one, so the recursion ends.
func (h *Hub) dropLocked(conns []Connection) {
	removed := 0
	for _, conn := range conns {
		if h.removeLocked(conn) {
			removed++
		}
	}
	if removed == 0 {
		return
	}
	h.broadcastLocked(buildClientsMessage(len(h.members)))
}

func (h *Hub) removeLocked(conn Connection) bool {
	if h.byID[conn.ID()] != conn {
		return false
	}
	delete(h.byID, conn.ID())
	for i, m := range h.members {
		if m == conn {
			h.members = append(h.members[:i], h.members[i+1:]...)
			break
		}
	}
	h.metrics.SetMembers(len(h.members))

	if err := conn.Close(); err != nil {
		h.logger.Debug("close failed", zap.String("connID", conn.ID()), zap.Error(err))
	}
	h.logger.Info("client left",
		zap.String("connID", conn.ID()),
		zap.Int("clients", len(h.members)),
	)
	return true
}
