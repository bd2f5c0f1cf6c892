package config_test

import (
	"testing"
	"time"

	"github.com/collapsinghierarchy/chat-backend/internal/config"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "6000")
	t.Setenv("CORS_ORIGINS", "https://chat.example.com,example.org")
	t.Setenv("HEARTBEAT", "30s")
	t.Setenv("DB_PATH", "/tmp/test-chat.db")

	c, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != 6000 {
		t.Fatalf("Port = %d", c.Port)
	}
	if len(c.CORSOrigins) != 2 || c.CORSOrigins[1] != "example.org" {
		t.Fatalf("CORSOrigins = %v", c.CORSOrigins)
	}
	if c.Heartbeat != 30*time.Second {
		t.Fatalf("Heartbeat = %s", c.Heartbeat)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.BindAddr() != "0.0.0.0:6000" {
		t.Fatalf("BindAddr = %s", c.BindAddr())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() config.Config {
		t.Helper()
		c, err := config.Load()
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		return c
	}

	c := base()
	c.Port = 0
	if err := c.Validate(); err == nil {
		t.Fatal("port 0 accepted")
	}

	c = base()
	c.Heartbeat = 0
	if err := c.Validate(); err == nil {
		t.Fatal("zero heartbeat accepted")
	}

	c = base()
	c.HistoryLimit = -1
	if err := c.Validate(); err == nil {
		t.Fatal("negative history limit accepted")
	}

	c = base()
	c.MetricsRoute = "metrics"
	if err := c.Validate(); err == nil {
		t.Fatal("relative metrics route accepted")
	}
}
