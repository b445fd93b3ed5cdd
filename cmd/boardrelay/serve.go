package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/boardrelay/internal/config"
	"github.com/dgnsrekt/boardrelay/internal/hub"
	"github.com/dgnsrekt/boardrelay/internal/metrics"
	"github.com/dgnsrekt/boardrelay/internal/server"
	"github.com/dgnsrekt/boardrelay/internal/session"
	"github.com/dgnsrekt/boardrelay/internal/sse"
	"github.com/dgnsrekt/boardrelay/internal/ws"
)

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server",
		Long: `Run the relay server.

Clients connect over a websocket at /ws. Read-only observers can follow
the session at /events. The current state is available at /state and the
full event history at /history.jsonl.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a.cfg, a.logger)
		},
	}

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("configuration loaded",
		zap.String("addr", cfg.Server.Addr),
		zap.String("idMode", cfg.Session.IDMode),
		zap.Bool("sseEnabled", cfg.SSE.Enabled),
		zap.Bool("metricsEnabled", cfg.Metrics.Enabled),
		zap.Float64("ratePerSecond", cfg.WS.RatePerSecond),
		zap.Strings("allowedOrigins", cfg.WS.AllowedOrigins),
	)

	store := session.NewStore(session.WithIDGenerator(session.NewIDGenerator(cfg.Session.IDMode)))

	var m *metrics.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg, cfg.Metrics.Namespace)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	h := hub.New(store, logger, hub.WithMetrics(m))

	routes := server.Routes{
		WS:      ws.NewHandler(h, cfg.WS, m, logger),
		Metrics: metricsHandler,
	}
	if cfg.SSE.Enabled {
		routes.Events = http.HandlerFunc(sse.NewStream(h, cfg.SSE.Buffer, logger).HandleSSE)
	}

	router := server.NewRouter(server.NewServer(h, store, logger), routes, logger)

	// No WriteTimeout: websocket and SSE responses are long-lived.
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	// Close every connection first so hijacked sockets do not hold up Shutdown.
	h.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped", zap.Int("history", store.Len()))
	return nil
}
