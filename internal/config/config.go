package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"vintedwatch/internal/validator"
)

// Config is the process-level configuration. Everything the engine reads per
// cycle (items per query, time window, banwords, ...) lives in the parameter
// store instead, so it can change without a restart.
type Config struct {
	DBPath      string `validate:"required"`
	Port        string `validate:"required"`
	WebhookURL  string `validate:"omitempty,url"`
	UserAgents  []string
	Proxies     []string
	AutoCheck   bool
	HTTPTimeout time.Duration
}

func Load() (*Config, error) {
	dbPath := os.Getenv("VW_DB_PATH")
	if dbPath == "" {
		dbPath = "vintedwatch.db"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		slog.Info("Defaulting to port", "port", port)
	}

	webhookURL := os.Getenv("VW_WEBHOOK_URL")
	if webhookURL == "" {
		slog.Warn("VW_WEBHOOK_URL not set, webhook notifications will be skipped")
	}

	timeout := 30 * time.Second
	if v := os.Getenv("VW_HTTP_TIMEOUT"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid VW_HTTP_TIMEOUT %q: %w", v, err)
		}
		timeout = parsed
	}

	autoCheck := true
	if v := os.Getenv("VW_AUTO_CHECK"); v != "" {
		autoCheck = v != "0" && !strings.EqualFold(v, "false")
	}

	cfg := &Config{
		DBPath:      dbPath,
		Port:        port,
		WebhookURL:  webhookURL,
		UserAgents:  splitList(os.Getenv("VW_USER_AGENTS")),
		Proxies:     splitList(os.Getenv("VW_PROXIES")),
		AutoCheck:   autoCheck,
		HTTPTimeout: timeout,
	}

	if err := validator.Struct(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
