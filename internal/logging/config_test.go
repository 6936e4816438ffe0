package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	logs "github.com/danmuck/smplog"
)

func TestParseLevelAliases(t *testing.T) {
	cases := map[string]logs.Level{
		"trace":       logs.TraceLevel,
		"diagnostics": logs.TraceLevel,
		" DEBUG ":     logs.DebugLevel,
		"warning":     logs.WarnLevel,
		"off":         logs.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("expected empty level to be ignored")
	}
}

func TestEnvOverridesApplyOnTopOfProfile(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "nope")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != logs.ErrorLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if !cfg.Timestamp || !cfg.NoColor {
		t.Fatalf("expected timestamp and nocolor overrides: %+v", cfg)
	}
	if cfg.Bypass {
		t.Fatalf("invalid bool must not override bypass")
	}
}

// withLogger swaps the package-global logger for the duration of a test.
func withLogger(t *testing.T, cfg logs.Config) {
	t.Helper()
	prev := logs.Configured()
	t.Cleanup(func() { logs.Configure(prev) })
	logs.Configure(cfg)
}

func TestBypassProfileWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := defaultConfig(ProfileRuntime)
	cfg.Writer = &buf
	cfg.Bypass = true
	withLogger(t, cfg)

	logs.Zerolog().Info().Str("client", "alpha").Msg("control granted")
	logs.Debugf("dropped")

	out := buf.String()
	if !strings.Contains(out, `"client":"alpha"`) || !strings.Contains(out, `"time":`) {
		t.Fatalf("unexpected log output: %q", out)
	}
	if strings.Contains(out, "dropped") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
}

func TestTestProfileConsoleOmitsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	cfg := defaultConfig(ProfileTest)
	cfg.Writer = &buf
	cfg.NoColor = true
	withLogger(t, cfg)

	logs.Infof("router.Service heartbeat mode=%s", "manual")

	out := buf.String()
	if strings.Contains(out, "<nil>") {
		t.Fatalf("console line rendered an empty timestamp: %q", out)
	}
	if !strings.Contains(out, "mode=manual") || !strings.Contains(out, "INFO") {
		t.Fatalf("unexpected console output: %q", out)
	}
}

func TestCLIProfileWritesWarningsToStderr(t *testing.T) {
	cfg := defaultConfig(ProfileCLI)
	if cfg.Level != logs.WarnLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if cfg.Writer != os.Stderr {
		t.Fatalf("cli profile must not log to stdout")
	}
}
