package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/boardrelay/internal/config"
	"github.com/dgnsrekt/boardrelay/internal/hub"
	"github.com/dgnsrekt/boardrelay/internal/metrics"
)

// Handler upgrades requests to websocket connections and joins them to a hub.
type Handler struct {
	hub      *hub.Hub
	cfg      config.WSConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(h *hub.Hub, cfg config.WSConfig, m *metrics.Metrics, logger *zap.Logger) *Handler {
	handler := &Handler{
		hub:     h,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return handler
}

// originChecker allows any origin when allowed is empty. Requests without an
// Origin header come from non-browser clients and are always accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed",
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		return
	}

	client := &Client{
		hub:            h.hub,
		conn:           conn,
		connID:         uuid.New().String(),
		logger:         h.logger,
		metrics:        h.metrics,
		writeWait:      h.cfg.WriteWait,
		pongWait:       h.cfg.PongWait,
		pingPeriod:     h.cfg.PingPeriod(),
		maxMessageSize: h.cfg.MaxMessageSize,
		send:           make(chan []byte, h.cfg.SendBuffer),
	}
	if h.cfg.RatePerSecond > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(h.cfg.RatePerSecond), h.cfg.RateBurst)
	}

	// Start writing before Join queues the snapshot.
	go client.writePump()

	if err := h.hub.Join(client); err != nil {
		h.logger.Warn("join failed", zap.String("connID", client.connID), zap.Error(err))
		// Closing the queue makes the write pump send a close frame.
		client.Close()
		return
	}

	// The request context ends when this handler returns; the connection
	// outlives it.
	go client.readPump(context.WithoutCancel(r.Context()))
}
