package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadRelayDefaults(t *testing.T) {
	cfg, err := LoadRelay()
	if err != nil {
		t.Fatalf("load relay: %v", err)
	}
	if cfg.Port != "3200" {
		t.Fatalf("expected default port 3200, got %q", cfg.Port)
	}
	if cfg.HistoryLimit != 50 {
		t.Fatalf("expected history limit 50, got %d", cfg.HistoryLimit)
	}
	if cfg.ReplyDelay != 300*time.Millisecond {
		t.Fatalf("expected reply delay 300ms, got %s", cfg.ReplyDelay)
	}
}

func TestLoadRelayOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOW_ORIGINS", "http://a.test,http://b.test")

	cfg, err := LoadRelay()
	if err != nil {
		t.Fatalf("load relay: %v", err)
	}
	if len(cfg.CORSAllowOrigins) != 2 || cfg.CORSAllowOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowOrigins)
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("MANGWALE_TRANSPORT", "poll")
	t.Setenv("MANGWALE_POLL_INTERVAL", "5s")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load client: %v", err)
	}
	if cfg.Transport != TransportPoll || cfg.PollInterval != 5*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadClientRejectsUnknownTransport(t *testing.T) {
	t.Setenv("MANGWALE_TRANSPORT", "carrier-pigeon")

	if _, err := LoadClient(); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")

	var cfg RelayConfig
	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestGetEnvFallbacks(t *testing.T) {
	t.Setenv("MANGWALE_TEST_EMPTY", "")
	if got := GetEnv("MANGWALE_TEST_EMPTY", "y"); got != "y" {
		t.Fatalf("expected fallback y, got %q", got)
	}
	if got := GetEnv("MANGWALE_TEST_MISSING", "x"); got != "x" {
		t.Fatalf("expected fallback x, got %q", got)
	}
}
