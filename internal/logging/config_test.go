package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevelAliases(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":       zerolog.TraceLevel,
		"diagnostics": zerolog.TraceLevel,
		" Debug ":     zerolog.DebugLevel,
		"warning":     zerolog.WarnLevel,
		"error":       zerolog.ErrorLevel,
		"off":         zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("empty level should not override")
	}
	if got, ok := parseLevel("disabled"); !ok || got != zerolog.Disabled {
		t.Fatalf("zerolog level names should parse, got %v,%v", got, ok)
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level should not override")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "nope")

	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel || !cfg.Timestamp || !cfg.NoColor || cfg.Bypass {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvBoolIgnoresUnsetAndInvalid(t *testing.T) {
	t.Setenv(EnvLogNoColor, "")
	t.Setenv(EnvLogBypass, "maybe")

	noColor, bypass := true, true
	envBool(EnvLogNoColor, &noColor)
	envBool(EnvLogBypass, &bypass)
	if !noColor || !bypass {
		t.Fatalf("unset or invalid values must not override: nocolor=%v bypass=%v", noColor, bypass)
	}
}

func TestApplyWritesConsoleOutput(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	Apply(Config{Level: zerolog.InfoLevel, NoColor: true, Out: &buf})
	log.Debug().Msg("hidden")
	log.Info().Str("set", "aql-tests").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "set=aql-tests") {
		t.Fatalf("missing info line: %q", out)
	}
}
