package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime knob. Values come from the environment,
// optionally seeded from a .env file loaded in main.
type Config struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"5000"`

	// CORSOrigins is the WS origin allowlist (full origins or bare
	// hostnames, comma separated). Ignored when DevMode is set.
	CORSOrigins []string `envconfig:"CORS_ORIGINS"`
	DevMode     bool     `envconfig:"DEV_MODE" default:"false"`

	DBPath       string `envconfig:"DB_PATH" default:"chat.db"`
	HistoryLimit int    `envconfig:"HISTORY_LIMIT" default:"100"`

	Heartbeat  time.Duration `envconfig:"HEARTBEAT" default:"45s"`
	WSMaxMsg   int64         `envconfig:"WS_MAX_MSG" default:"1048576"`
	WSReadBuf  int           `envconfig:"WS_READ_BUF" default:"65536"`
	WSWriteBuf int           `envconfig:"WS_WRITE_BUF" default:"65536"`

	// Per-client fixed-window limits; <= 0 disables.
	WSRatePerMin   int `envconfig:"WS_RATE_PER_MIN" default:"0"`
	HTTPRatePerMin int `envconfig:"HTTP_RATE_PER_MIN" default:"0"`

	MetricsRoute string `envconfig:"METRICS_ROUTE" default:"/metrics"`

	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
}

func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Heartbeat <= 0 {
		return fmt.Errorf("config: heartbeat must be positive, got %s", c.Heartbeat)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("config: history limit must be positive, got %d", c.HistoryLimit)
	}
	if c.WSMaxMsg <= 0 {
		return fmt.Errorf("config: ws max message size must be positive, got %d", c.WSMaxMsg)
	}
	if !strings.HasPrefix(c.MetricsRoute, "/") {
		return fmt.Errorf("config: metrics route %q must start with /", c.MetricsRoute)
	}
	return nil
}

func (c Config) BindAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
