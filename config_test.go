// config_test.go: Tests for configuration defaults, validation and environment loading
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	goerrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigWithDefaults(t *testing.T) {
	cfg := (&Config{}).WithDefaults()

	if cfg.PollInterval != 2*time.Second {
		t.Errorf("expected 2s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.CacheTTL != time.Second {
		t.Errorf("expected 1s cache TTL, got %v", cfg.CacheTTL)
	}
	if cfg.Suggester == nil || cfg.Terminate == nil || cfg.Stdout != os.Stdout || cfg.Stderr != os.Stderr {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Audit.Enabled {
		t.Error("audit must be disabled by default")
	}

	t.Run("cache TTL clamped", func(t *testing.T) {
		cfg := (&Config{PollInterval: time.Second, CacheTTL: time.Minute}).WithDefaults()
		if cfg.CacheTTL != 500*time.Millisecond {
			t.Errorf("expected 500ms, got %v", cfg.CacheTTL)
		}
	})

	t.Run("audit defaults", func(t *testing.T) {
		cfg := (&Config{Audit: AuditConfig{Enabled: true}}).WithDefaults()
		defaults := DefaultAuditConfig()
		if cfg.Audit.BufferSize != defaults.BufferSize || cfg.Audit.FlushInterval != defaults.FlushInterval {
			t.Errorf("audit defaults not applied: %+v", cfg.Audit)
		}
	})

	t.Run("original untouched", func(t *testing.T) {
		original := Config{}
		_ = original.WithDefaults()
		if original.PollInterval != 0 || original.Terminate != nil {
			t.Error("WithDefaults modified its receiver")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"zero poll", Config{PollInterval: 0}, ErrInvalidPollInterval},
		{"tiny poll", Config{PollInterval: time.Millisecond}, ErrPollIntervalTooSmall},
		{"negative ttl", Config{PollInterval: time.Second, CacheTTL: -1}, ErrInvalidCacheTTL},
		{"negative buffer", Config{PollInterval: time.Second, Audit: AuditConfig{Enabled: true, BufferSize: -1}}, ErrInvalidBufferSize},
		{"negative flush", Config{PollInterval: time.Second, Audit: AuditConfig{Enabled: true, FlushInterval: -1}}, ErrInvalidFlushInterval},
		{"bad level", Config{PollInterval: time.Second, Audit: AuditConfig{Enabled: true, MinLevel: 7}}, ErrInvalidAuditLevel},
		{"valid", Config{PollInterval: time.Second, Terminate: func(int) {}}, nil},
		{"disabled audit ignores its fields", Config{PollInterval: time.Second, Audit: AuditConfig{BufferSize: -1}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !goerrors.Is(err, tt.want) && err != tt.want {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigValidateDetailed(t *testing.T) {
	cfg := Config{PollInterval: time.Second, CacheTTL: time.Minute}
	result := cfg.ValidateDetailed()
	if !result.Valid {
		t.Fatalf("expected valid result, got %v", result.Errors)
	}
	if len(result.Warnings) != 2 {
		t.Errorf("expected TTL and terminate warnings, got %v", result.Warnings)
	}
	if !strings.Contains(result.String(), "2 warning(s)") {
		t.Errorf("unexpected summary %q", result.String())
	}

	cfg = Config{PollInterval: -1, CacheTTL: -1}
	result = cfg.ValidateDetailed()
	if result.Valid || len(result.Errors) != 2 {
		t.Errorf("expected two errors, got %+v", result)
	}
	if !strings.HasPrefix(result.String(), "Configuration is invalid") {
		t.Errorf("unexpected summary %q", result.String())
	}
}

func TestValidateOutputFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path  string
		valid bool
	}{
		{filepath.Join(dir, "audit.db"), true},
		{filepath.Join(dir, "missing", "audit.db"), false},
		{".", false},
		{"/", false},
	}
	for _, tt := range tests {
		if err := validateOutputFile(tt.path); (err == nil) != tt.valid {
			t.Errorf("validateOutputFile(%q) = %v, want valid=%v", tt.path, err, tt.valid)
		}
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	auditFile := filepath.Join(t.TempDir(), "audit.jsonl")
	t.Setenv(EnvPollInterval, "500ms")
	t.Setenv(EnvCacheTTL, "100ms")
	t.Setenv(EnvAuditEnabled, "yes")
	t.Setenv(EnvAuditOutputFile, auditFile)
	t.Setenv(EnvAuditMinLevel, "warn")
	t.Setenv(EnvAuditBufferSize, "25")
	t.Setenv(EnvAuditFlushInterval, "3s")

	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if cfg.PollInterval != 500*time.Millisecond || cfg.CacheTTL != 100*time.Millisecond {
		t.Errorf("watcher settings not applied: %v %v", cfg.PollInterval, cfg.CacheTTL)
	}
	want := AuditConfig{Enabled: true, OutputFile: auditFile, MinLevel: AuditWarn, BufferSize: 25, FlushInterval: 3 * time.Second}
	if cfg.Audit != want {
		t.Errorf("expected %+v, got %+v", want, cfg.Audit)
	}
	if err := ValidateEnvironmentConfig(); err != nil {
		t.Errorf("ValidateEnvironmentConfig failed: %v", err)
	}
}

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{EnvPollInterval, EnvCacheTTL, EnvAuditEnabled} {
		t.Setenv(key, "")
	}
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		t.Fatalf("LoadConfigFromEnv failed: %v", err)
	}
	if cfg.PollInterval != 2*time.Second || cfg.Audit.Enabled {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfigFromEnvErrors(t *testing.T) {
	tests := map[string]string{
		EnvPollInterval:       "fast",
		EnvCacheTTL:           "1 hour",
		EnvAuditBufferSize:    "many",
		EnvAuditFlushInterval: "often",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(EnvAuditEnabled, "true")
			t.Setenv(key, value)
			if _, err := LoadConfigFromEnv(); err == nil {
				t.Errorf("expected error for %s=%q", key, value)
			}
		})
	}

	t.Run("level", func(t *testing.T) {
		t.Setenv(EnvAuditEnabled, "true")
		t.Setenv(EnvAuditMinLevel, "loud")
		if _, err := LoadConfigFromEnv(); err == nil {
			t.Error("expected error for unknown level")
		}
	})
}

func TestParseAuditLevel(t *testing.T) {
	tests := map[string]AuditLevel{
		"info":     AuditInfo,
		"WARN":     AuditWarn,
		"warning":  AuditWarn,
		"error":    AuditCritical,
		"critical": AuditCritical,
		"security": AuditSecurity,
	}
	for input, want := range tests {
		got, err := ParseAuditLevel(input)
		if err != nil || got != want {
			t.Errorf("ParseAuditLevel(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseAuditLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CINCH_TEST_VALUE", "set")
	t.Setenv("CINCH_TEST_DURATION", "7s")
	t.Setenv("CINCH_TEST_BAD_DURATION", "soon")

	if got := GetEnvWithDefault("CINCH_TEST_VALUE", "x"); got != "set" {
		t.Errorf("expected set, got %q", got)
	}
	if got := GetEnvWithDefault("CINCH_TEST_UNSET", "x"); got != "x" {
		t.Errorf("expected default, got %q", got)
	}
	if got := GetEnvDurationWithDefault("CINCH_TEST_DURATION", time.Second); got != 7*time.Second {
		t.Errorf("expected 7s, got %v", got)
	}
	if got := GetEnvDurationWithDefault("CINCH_TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("expected default for malformed value, got %v", got)
	}

	for input, want := range map[string]bool{"true": true, "1": true, "on": true, "enabled": true, "no": false, "": false} {
		if parseBool(input) != want {
			t.Errorf("parseBool(%q) != %v", input, want)
		}
	}
}
