package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/probectl/internal/router"
	"github.com/danmuck/probectl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `
listen_addr = "127.0.0.1:9300"
gateway_timeout = "750ms"
poll_interval = "100ms"
history_limit = 32
heartbeat_tail = 0
auth_token = " lab-token "

[session]
read_timeout = "1m"
`)
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := router.DefaultServiceConfig()
	if cfg.ListenAddr != "127.0.0.1:9300" {
		t.Fatalf("unexpected listen addr: %q", cfg.ListenAddr)
	}
	if cfg.DeviceAddr != def.DeviceAddr {
		t.Fatalf("device addr should keep default: %q", cfg.DeviceAddr)
	}
	if cfg.GatewayTimeout != 750*time.Millisecond {
		t.Fatalf("unexpected gateway timeout: %v", cfg.GatewayTimeout)
	}
	if cfg.PollInterval != 100*time.Millisecond || cfg.HeartbeatInterval != def.HeartbeatInterval {
		t.Fatalf("unexpected intervals: %+v", cfg)
	}
	if cfg.HistoryLimit != 32 || cfg.HeartbeatTail != 0 {
		t.Fatalf("unexpected history settings: limit=%d tail=%d", cfg.HistoryLimit, cfg.HeartbeatTail)
	}
	if cfg.AuthToken != "lab-token" {
		t.Fatalf("unexpected auth token: %q", cfg.AuthToken)
	}
	if cfg.Session.ReadTimeout != time.Minute || cfg.Session.WriteTimeout != def.Session.WriteTimeout {
		t.Fatalf("unexpected session config: %+v", cfg.Session)
	}
}

func TestLoadServiceConfigGatewayTimeoutMS(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadServiceConfig(writeConfig(t, "gateway_timeout_ms = 250\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.GatewayTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected gateway timeout: %v", cfg.GatewayTimeout)
	}
}

func TestLoadServiceConfigRejectsBadDuration(t *testing.T) {
	testlog.Start(t)
	if _, err := loadServiceConfig(writeConfig(t, `poll_interval = "soon"`)); err == nil {
		t.Fatalf("expected duration parse error")
	}
}

func TestParseFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, `device_addr = "10.0.0.5:9200"`)
	cfg, err := parseFlags([]string{"--config", path, "--listen", ":9999", "--gateway-timeout", "2s"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.ListenAddr != ":9999" || cfg.DeviceAddr != "10.0.0.5:9200" || cfg.GatewayTimeout != 2*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Fatalf("expected error for positional argument")
	}
}
