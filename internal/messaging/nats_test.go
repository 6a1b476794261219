package messaging

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestDefaultNATSConfig(t *testing.T) {
	cfg := DefaultNATSConfig()
	if cfg.QueueGroup != "modbot" {
		t.Fatalf("expected default queue group modbot, got %q", cfg.QueueGroup)
	}
	if cfg.MaxReconnects != -1 {
		t.Fatalf("expected infinite reconnects, got %d", cfg.MaxReconnects)
	}
}

func TestNewNATSClientUnreachable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.ReconnectWait = 10 * time.Millisecond

	c, err := NewNATSClient(cfg, logger)
	if err == nil {
		c.Close()
		t.Fatal("expected connect error for unreachable server")
	}
}
