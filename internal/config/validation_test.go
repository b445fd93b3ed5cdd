package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080", ReadHeaderTimeout: time.Second, ShutdownTimeout: time.Second},
		WS: WSConfig{
			MaxMessageSize: 1024,
			SendBuffer:     16,
			WriteWait:      time.Second,
			PongWait:       time.Minute,
			RatePerSecond:  10,
			RateBurst:      20,
		},
		SSE:     SSEConfig{Enabled: true, Buffer: 8},
		Session: SessionConfig{IDMode: "sequential"},
		Metrics: MetricsConfig{Enabled: true, Namespace: "boardrelay"},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error for valid config, got: %v", err)
	}
}

func TestValidate_RateLimitingDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.WS.RatePerSecond = 0
	cfg.WS.RateBurst = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("burst should not be checked without a rate, got: %v", err)
	}
}

func TestValidate_DisabledSSESkipped(t *testing.T) {
	cfg := validConfig()
	cfg.SSE = SSEConfig{Enabled: false, Buffer: 0}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled sse should not be validated, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Addr = ""
	cfg.WS.SendBuffer = 1
	cfg.Session.IDMode = "random"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for multiple issues")
	}

	errStr := err.Error()
	for _, want := range []string{"server.addr", "ws.send_buffer", `"random"`, `"loud"`} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}

	verrs, ok := err.(*ValidationErrors)
	if !ok {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verrs.Problems) != 4 {
		t.Errorf("expected 4 problems, got %d: %v", len(verrs.Problems), verrs.Problems)
	}
}

func TestValidate_NegativeReadHeaderTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadHeaderTimeout = -time.Second

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "server.read_header_timeout") {
		t.Errorf("expected read_header_timeout error, got: %v", err)
	}
}
