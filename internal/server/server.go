package server

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// Routes holds the streaming handlers mounted next to the Server's own
// endpoints. Nil handlers are not mounted.
type Routes struct {
	WS      http.Handler
	Events  http.Handler
	Metrics http.Handler
}

func NewRouter(server *Server, routes Routes, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	// Long-lived streams must not sit behind the compressor.
	if routes.WS != nil {
		r.Handle("/ws", routes.WS)
	}
	if routes.Events != nil {
		r.Get("/events", routes.Events.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(newCompressor().Handler)

		r.Get("/health", server.Health)
		r.Get("/state", server.State)
		r.Get("/history.jsonl", server.History)
		if routes.Metrics != nil {
			r.Handle("/metrics", routes.Metrics)
		}
	})

	return r
}

// newCompressor negotiates zstd ahead of chi's built-in gzip and deflate.
func newCompressor() *middleware.Compressor {
	c := middleware.NewCompressor(5,
		"application/json",
		"application/x-ndjson",
		"text/plain",
	)
	c.SetEncoder("zstd", func(w io.Writer, level int) io.Writer {
		enc, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			return nil
		}
		return enc
	})
	return c
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
			)
		})
	}
}
