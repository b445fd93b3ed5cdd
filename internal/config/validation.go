package config

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// ValidIDModes lists the accepted session.id_mode values.
var ValidIDModes = map[string]bool{
	"sequential": true,
	"uuid":       true,
}

// minSendBuffer leaves room for the snapshot and the count announcement
// queued on join.
const minSendBuffer = 2

// ValidationErrors collects all validation errors
type ValidationErrors struct {
	Problems []string
}

// HasErrors returns true if any validation errors exist
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Problems) > 0
}

func (e *ValidationErrors) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Error formats all validation errors into a clear message
func (e *ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, p := range e.Problems {
		sb.WriteString(fmt.Sprintf("  - %s\n", p))
	}
	return sb.String()
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Server.Addr == "" {
		errs.add("server.addr is required")
	}
	if c.Server.ReadHeaderTimeout < 0 {
		errs.add("server.read_header_timeout must be >= 0 (got %s)", c.Server.ReadHeaderTimeout)
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs.add("server.shutdown_timeout must be > 0 (got %s)", c.Server.ShutdownTimeout)
	}

	if c.WS.MaxMessageSize <= 0 {
		errs.add("ws.max_message_size must be > 0 (got %d)", c.WS.MaxMessageSize)
	}
	if c.WS.SendBuffer < minSendBuffer {
		errs.add("ws.send_buffer must be >= %d (got %d)", minSendBuffer, c.WS.SendBuffer)
	}
	if c.WS.WriteWait <= 0 {
		errs.add("ws.write_wait must be > 0 (got %s)", c.WS.WriteWait)
	}
	if c.WS.PongWait <= 0 {
		errs.add("ws.pong_wait must be > 0 (got %s)", c.WS.PongWait)
	}
	if c.WS.RatePerSecond < 0 {
		errs.add("ws.rate_per_second must be >= 0 (got %v)", c.WS.RatePerSecond)
	}
	if c.WS.RatePerSecond > 0 && c.WS.RateBurst < 1 {
		errs.add("ws.rate_burst must be >= 1 when rate limiting is enabled (got %d)", c.WS.RateBurst)
	}

	if c.SSE.Enabled && c.SSE.Buffer < minSendBuffer {
		errs.add("sse.buffer must be >= %d (got %d)", minSendBuffer, c.SSE.Buffer)
	}

	if !ValidIDModes[c.Session.IDMode] {
		errs.add("session.id_mode %q is invalid (valid: sequential, uuid)", c.Session.IDMode)
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs.add("metrics.namespace is required when metrics are enabled")
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		errs.add("logging.level %q is invalid", c.Logging.Level)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
