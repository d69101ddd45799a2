// config_validation.go - validation of Cinch configuration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agilira/go-errors"
)

// Validation errors
var (
	ErrInvalidPollInterval  = errors.New(ErrCodeInvalidPollInterval, "poll interval must be positive")
	ErrPollIntervalTooSmall = errors.New(ErrCodeInvalidPollInterval, "poll interval should be at least 10ms for stability")
	ErrInvalidCacheTTL      = errors.New(ErrCodeInvalidConfig, "cache TTL must not be negative")
	ErrInvalidBufferSize    = errors.New(ErrCodeInvalidAuditConfig, "audit buffer size must not be negative")
	ErrInvalidFlushInterval = errors.New(ErrCodeInvalidAuditConfig, "audit flush interval must not be negative")
	ErrInvalidAuditLevel    = errors.New(ErrCodeInvalidAuditConfig, "unknown audit level")
)

// ValidationResult holds configuration errors and non-fatal warnings.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// String returns a human-readable representation of validation results
func (vr ValidationResult) String() string {
	if vr.Valid {
		if len(vr.Warnings) == 0 {
			return "Configuration is valid"
		}
		return fmt.Sprintf("Configuration is valid with %d warning(s)", len(vr.Warnings))
	}
	return fmt.Sprintf("Configuration is invalid: %d error(s), %d warning(s)",
		len(vr.Errors), len(vr.Warnings))
}

// Validate returns the first configuration error, or nil
func (c *Config) Validate() error {
	result := c.ValidateDetailed()
	if result.Valid {
		return nil
	}

	first := result.Errors[0]
	for _, known := range []error{
		ErrInvalidPollInterval,
		ErrPollIntervalTooSmall,
		ErrInvalidCacheTTL,
		ErrInvalidBufferSize,
		ErrInvalidFlushInterval,
		ErrInvalidAuditLevel,
	} {
		if first == known.Error() {
			return known
		}
	}
	return errors.New(ErrCodeInvalidConfig, first)
}

// ValidateDetailed checks every setting and collects all errors and warnings
func (c *Config) ValidateDetailed() ValidationResult {
	result := ValidationResult{
		Valid:    true,
		Errors:   make([]string, 0),
		Warnings: make([]string, 0),
	}

	c.validateWatcherConfig(&result)
	c.validateAuditConfig(&result)

	result.Valid = len(result.Errors) == 0
	return result
}

func (c *Config) validateWatcherConfig(result *ValidationResult) {
	pollIntervalValid := true
	if c.PollInterval <= 0 {
		result.Errors = append(result.Errors, ErrInvalidPollInterval.Error())
		pollIntervalValid = false
	} else if c.PollInterval < 10*time.Millisecond {
		result.Errors = append(result.Errors, ErrPollIntervalTooSmall.Error())
		pollIntervalValid = false
	}

	if c.CacheTTL < 0 {
		result.Errors = append(result.Errors, ErrInvalidCacheTTL.Error())
	} else if pollIntervalValid && c.CacheTTL > c.PollInterval {
		result.Warnings = append(result.Warnings, "cache TTL exceeds poll interval, changes may be detected late")
	}

	if c.Terminate == nil {
		result.Warnings = append(result.Warnings, "no terminate function set, os.Exit will be used")
	}
}

func (c *Config) validateAuditConfig(result *ValidationResult) {
	if !c.Audit.Enabled {
		return
	}

	if c.Audit.BufferSize < 0 {
		result.Errors = append(result.Errors, ErrInvalidBufferSize.Error())
	} else if c.Audit.BufferSize == 0 {
		result.Warnings = append(result.Warnings, "audit buffer size is 0, every event triggers a write")
	}

	if c.Audit.FlushInterval < 0 {
		result.Errors = append(result.Errors, ErrInvalidFlushInterval.Error())
	}

	if c.Audit.MinLevel < AuditInfo || c.Audit.MinLevel > AuditSecurity {
		result.Errors = append(result.Errors, ErrInvalidAuditLevel.Error())
	}

	// empty means the unified SQLite database
	if c.Audit.OutputFile != "" {
		if err := validateOutputFile(c.Audit.OutputFile); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
}

// validateOutputFile checks that the audit output directory exists
func validateOutputFile(outputFile string) error {
	cleanPath := filepath.Clean(outputFile)
	if cleanPath == "." || cleanPath == "/" {
		return errors.New(ErrCodeInvalidAuditConfig,
			fmt.Sprintf("path '%s' is not a valid file path", outputFile))
	}

	dir := filepath.Dir(cleanPath)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(ErrCodeInvalidAuditConfig,
				fmt.Sprintf("directory '%s' does not exist", dir))
		}
		return errors.Wrap(err, ErrCodeInvalidAuditConfig,
			fmt.Sprintf("cannot access directory '%s'", dir))
	}
	if !info.IsDir() {
		return errors.New(ErrCodeInvalidAuditConfig,
			fmt.Sprintf("'%s' is not a directory", dir))
	}
	return nil
}

// ValidateEnvironmentConfig loads the configuration from the environment
// and validates it
func ValidateEnvironmentConfig() error {
	config, err := LoadConfigFromEnv()
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to load config from environment")
	}
	return config.Validate()
}
