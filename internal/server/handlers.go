package server

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/hub"
	"github.com/dgnsrekt/boardrelay/internal/session"
)

// Server serves the read-only HTTP views of a relay.
type Server struct {
	hub    *hub.Hub
	store  *session.Store
	logger *zap.Logger
}

func NewServer(h *hub.Hub, store *session.Store, logger *zap.Logger) *Server {
	return &Server{
		hub:    h,
		store:  store,
		logger: logger,
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// Health reports liveness and the current membership count.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Clients: s.hub.Count()})
}

// State returns the snapshot a joining client would receive.
func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(s.hub.State()); err != nil {
		s.logger.Debug("write state failed", zap.Error(err))
	}
}

// History streams the event history as JSON Lines, suitable for replay.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	history, _ := s.store.Snapshot()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", `attachment; filename="history.jsonl"`)
	w.WriteHeader(http.StatusOK)
	if err := session.WriteJSONL(w, history); err != nil {
		s.logger.Debug("write history failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
