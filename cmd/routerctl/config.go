package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/probectl/internal/router"
)

type fileConfig struct {
	ListenAddr       string `toml:"listen_addr"`
	DeviceAddr       string `toml:"device_addr"`
	GatewayTimeout   string `toml:"gateway_timeout"`
	GatewayTimeoutMS int64  `toml:"gateway_timeout_ms"`
	Heartbeat        string `toml:"heartbeat_interval"`
	PollInterval     string `toml:"poll_interval"`
	HistoryLimit     int    `toml:"history_limit"`
	HeartbeatTail    int    `toml:"heartbeat_tail"`
	AuthToken        string `toml:"auth_token"`
	Session          struct {
		DialTimeout  string `toml:"dial_timeout"`
		ReadTimeout  string `toml:"read_timeout"`
		WriteTimeout string `toml:"write_timeout"`
	} `toml:"session"`
}

func loadServiceConfig(path string) (router.ServiceConfig, error) {
	cfg := router.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return router.ServiceConfig{}, fmt.Errorf("load router config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		if v := strings.TrimSpace(raw.ListenAddr); v != "" {
			cfg.ListenAddr = v
		}
	}
	if meta.IsDefined("device_addr") {
		if v := strings.TrimSpace(raw.DeviceAddr); v != "" {
			cfg.DeviceAddr = v
		}
	}
	if meta.IsDefined("gateway_timeout") {
		d, err := parseDuration("gateway_timeout", raw.GatewayTimeout)
		if err != nil {
			return router.ServiceConfig{}, err
		}
		cfg.GatewayTimeout = d
	}
	if meta.IsDefined("gateway_timeout_ms") {
		cfg.GatewayTimeout = time.Duration(raw.GatewayTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("heartbeat_interval") {
		d, err := parseDuration("heartbeat_interval", raw.Heartbeat)
		if err != nil {
			return router.ServiceConfig{}, err
		}
		cfg.HeartbeatInterval = d
	}
	if meta.IsDefined("poll_interval") {
		d, err := parseDuration("poll_interval", raw.PollInterval)
		if err != nil {
			return router.ServiceConfig{}, err
		}
		cfg.PollInterval = d
	}
	if meta.IsDefined("history_limit") {
		cfg.HistoryLimit = raw.HistoryLimit
	}
	if meta.IsDefined("heartbeat_tail") {
		cfg.HeartbeatTail = raw.HeartbeatTail
	}
	if meta.IsDefined("auth_token") {
		cfg.AuthToken = strings.TrimSpace(raw.AuthToken)
	}
	if meta.IsDefined("session", "dial_timeout") {
		d, err := parseDuration("session.dial_timeout", raw.Session.DialTimeout)
		if err != nil {
			return router.ServiceConfig{}, err
		}
		cfg.Session.DialTimeout = d
	}
	if meta.IsDefined("session", "read_timeout") {
		d, err := parseDuration("session.read_timeout", raw.Session.ReadTimeout)
		if err != nil {
			return router.ServiceConfig{}, err
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("session", "write_timeout") {
		d, err := parseDuration("session.write_timeout", raw.Session.WriteTimeout)
		if err != nil {
			return router.ServiceConfig{}, err
		}
		cfg.Session.WriteTimeout = d
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
