package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/probectl/internal/device"
)

type fileConfig struct {
	ListenAddr   string `toml:"listen_addr"`
	ScanDuration string `toml:"scan_duration"`
	ReplyDelay   string `toml:"reply_delay"`
}

func loadServerConfig(path string) (device.ServerConfig, error) {
	cfg := device.DefaultServerConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return device.ServerConfig{}, fmt.Errorf("load device config: %w", err)
	}

	if meta.IsDefined("listen_addr") {
		if v := strings.TrimSpace(raw.ListenAddr); v != "" {
			cfg.ListenAddr = v
		}
	}
	if meta.IsDefined("scan_duration") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ScanDuration))
		if err != nil {
			return device.ServerConfig{}, fmt.Errorf("parse scan_duration: %w", err)
		}
		cfg.ScanDuration = d
	}
	if meta.IsDefined("reply_delay") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReplyDelay))
		if err != nil {
			return device.ServerConfig{}, fmt.Errorf("parse reply_delay: %w", err)
		}
		cfg.ReplyDelay = d
	}
	return cfg, nil
}
