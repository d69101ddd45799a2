// env_config.go: Environment variable support for Cinch configuration
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Environment variables read by LoadConfigFromEnv
const (
	EnvPollInterval       = "CINCH_POLL_INTERVAL"
	EnvCacheTTL           = "CINCH_CACHE_TTL"
	EnvAuditEnabled       = "CINCH_AUDIT_ENABLED"
	EnvAuditOutputFile    = "CINCH_AUDIT_OUTPUT_FILE"
	EnvAuditMinLevel      = "CINCH_AUDIT_MIN_LEVEL"
	EnvAuditBufferSize    = "CINCH_AUDIT_BUFFER_SIZE"
	EnvAuditFlushInterval = "CINCH_AUDIT_FLUSH_INTERVAL"
)

// EnvConfig mirrors the environment variables before conversion
type EnvConfig struct {
	PollInterval time.Duration `env:"CINCH_POLL_INTERVAL"`
	CacheTTL     time.Duration `env:"CINCH_CACHE_TTL"`

	AuditEnabled       bool          `env:"CINCH_AUDIT_ENABLED"`
	AuditOutputFile    string        `env:"CINCH_AUDIT_OUTPUT_FILE"`
	AuditMinLevel      string        `env:"CINCH_AUDIT_MIN_LEVEL"`
	AuditBufferSize    int           `env:"CINCH_AUDIT_BUFFER_SIZE"`
	AuditFlushInterval time.Duration `env:"CINCH_AUDIT_FLUSH_INTERVAL"`
}

// LoadConfigFromEnv builds a Config from CINCH_* environment variables,
// with defaults for everything unset
func LoadConfigFromEnv() (*Config, error) {
	envConfig := &EnvConfig{}
	if err := loadEnvVars(envConfig); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to load environment configuration")
	}

	config := &Config{}
	if err := convertEnvToConfig(envConfig, config); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "failed to convert environment configuration")
	}

	return config.WithDefaults(), nil
}

func loadEnvVars(envConfig *EnvConfig) error {
	if err := loadWatcherEnv(envConfig); err != nil {
		return err
	}
	return loadAuditEnv(envConfig)
}

func loadWatcherEnv(envConfig *EnvConfig) error {
	if pollStr := os.Getenv(EnvPollInterval); pollStr != "" {
		duration, err := time.ParseDuration(pollStr)
		if err != nil {
			return errors.New(ErrCodeInvalidConfig, "invalid "+EnvPollInterval+" format")
		}
		envConfig.PollInterval = duration
	}

	if cacheStr := os.Getenv(EnvCacheTTL); cacheStr != "" {
		duration, err := time.ParseDuration(cacheStr)
		if err != nil {
			return errors.New(ErrCodeInvalidConfig, "invalid "+EnvCacheTTL+" format")
		}
		envConfig.CacheTTL = duration
	}
	return nil
}

func loadAuditEnv(envConfig *EnvConfig) error {
	if auditStr := os.Getenv(EnvAuditEnabled); auditStr != "" {
		envConfig.AuditEnabled = parseBool(auditStr)
	}

	envConfig.AuditOutputFile = os.Getenv(EnvAuditOutputFile)
	envConfig.AuditMinLevel = os.Getenv(EnvAuditMinLevel)

	if bufferStr := os.Getenv(EnvAuditBufferSize); bufferStr != "" {
		buffer, err := strconv.Atoi(bufferStr)
		if err != nil || buffer <= 0 {
			return errors.New(ErrCodeInvalidConfig, "invalid "+EnvAuditBufferSize+" value")
		}
		envConfig.AuditBufferSize = buffer
	}

	if flushStr := os.Getenv(EnvAuditFlushInterval); flushStr != "" {
		duration, err := time.ParseDuration(flushStr)
		if err != nil {
			return errors.New(ErrCodeInvalidConfig, "invalid "+EnvAuditFlushInterval+" format")
		}
		envConfig.AuditFlushInterval = duration
	}
	return nil
}

func convertEnvToConfig(envConfig *EnvConfig, config *Config) error {
	config.PollInterval = envConfig.PollInterval
	config.CacheTTL = envConfig.CacheTTL

	if !envConfig.AuditEnabled {
		return nil
	}

	config.Audit = DefaultAuditConfig()
	if envConfig.AuditOutputFile != "" {
		config.Audit.OutputFile = envConfig.AuditOutputFile
	}
	if envConfig.AuditMinLevel != "" {
		level, err := ParseAuditLevel(envConfig.AuditMinLevel)
		if err != nil {
			return err
		}
		config.Audit.MinLevel = level
	}
	if envConfig.AuditBufferSize > 0 {
		config.Audit.BufferSize = envConfig.AuditBufferSize
	}
	if envConfig.AuditFlushInterval > 0 {
		config.Audit.FlushInterval = envConfig.AuditFlushInterval
	}
	return nil
}

// ParseAuditLevel converts a level name such as "warn" into an AuditLevel
func ParseAuditLevel(levelStr string) (AuditLevel, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "info":
		return AuditInfo, nil
	case "warn", "warning":
		return AuditWarn, nil
	case "critical", "error":
		return AuditCritical, nil
	case "security":
		return AuditSecurity, nil
	default:
		return AuditInfo, errors.New(ErrCodeInvalidConfig, "invalid audit level").
			WithContext("level", levelStr)
	}
}

// parseBool accepts true/false, 1/0, yes/no, on/off, enabled/disabled
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}

// GetEnvWithDefault returns the environment variable or defaultValue if unset
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDurationWithDefault returns the environment variable as a duration
// or defaultValue if unset or malformed
func GetEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
