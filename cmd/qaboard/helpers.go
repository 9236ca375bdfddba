package main

import (
	"fmt"
	"strings"
	"time"

	qaboard "github.com/qaboard/qaboard/sdk/golang"
)

// newClient creates a client from the stored configuration.
func newClient(cfg *Config) (*qaboard.Client, error) {
	opts := []qaboard.ClientOption{qaboard.WithLogger(logger)}
	if cfg.Default.BaseURL != "" {
		opts = append(opts, qaboard.WithBaseURL(cfg.Default.BaseURL))
	}
	if cfg.Default.WSURL != "" {
		opts = append(opts, qaboard.WithWSURL(cfg.Default.WSURL))
	}
	if cfg.Default.ReconnectDelay != "" {
		d, err := time.ParseDuration(cfg.Default.ReconnectDelay)
		if err != nil {
			return nil, fmt.Errorf("invalid reconnect_delay %q: %w", cfg.Default.ReconnectDelay, err)
		}
		opts = append(opts, qaboard.WithReconnectDelay(d))
	}
	return qaboard.NewClient(cfg.Auth.Token, opts...), nil
}

// loadClient loads the configuration and builds a client from it.
func loadClient() (*qaboard.Client, *Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	client, err := newClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

// pageSize picks the flag value, then the configured one, then the SDK default.
func pageSize(cfg *Config, flag int) int {
	if flag > 0 {
		return flag
	}
	if cfg.Default.PageSize > 0 {
		return cfg.Default.PageSize
	}
	return qaboard.DefaultPageSize
}

// parseStatus accepts a status name in any case.
func parseStatus(s string) (qaboard.Status, error) {
	for _, st := range []qaboard.Status{qaboard.StatusEscalated, qaboard.StatusPending, qaboard.StatusAnswered} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q (valid: escalated, pending, answered)", s)
}

// maskToken shows only the first and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
