// config.go: Configuration for Cinch tools and spec watchers
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"io"
	"os"
	"time"
)

// ErrorHandler is called when the spec watcher fails to reload a file.
// It receives the error and the specification path.
type ErrorHandler func(err error, path string)

// Config configures a Tool and, through PollInterval and CacheTTL, the
// SpecWatcher. The zero value is usable after WithDefaults.
type Config struct {
	// Audit configuration. The zero value leaves auditing disabled,
	// which is what embedded tools usually want.
	Audit AuditConfig

	// Suggester fills the suggestion slot of dispatch errors.
	// Default: NoSuggestion
	Suggester Suggester

	// Terminate ends the process after a terminal message or a dispatch
	// error. Default: os.Exit
	Terminate func(code int)

	// Stdout receives help and version messages, Stderr receives errors.
	Stdout io.Writer
	Stderr io.Writer

	// PollInterval is how often the spec watcher checks the file
	// Default: 2 seconds
	PollInterval time.Duration

	// CacheTTL is how long to cache os.Stat() results
	// Default: PollInterval / 2
	CacheTTL time.Duration

	// ErrorHandler is called on watcher reload failures
	// If nil, errors are logged with the log package
	ErrorHandler ErrorHandler
}

// WithDefaults returns a copy of the configuration with defaults applied
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}

	if config.CacheTTL <= 0 || config.CacheTTL > config.PollInterval {
		config.CacheTTL = config.PollInterval / 2
	}

	if config.Suggester == nil {
		config.Suggester = NoSuggestion
	}

	if config.Terminate == nil {
		config.Terminate = os.Exit
	}

	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}

	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}

	if config.Audit.Enabled {
		defaults := DefaultAuditConfig()
		if config.Audit.BufferSize <= 0 {
			config.Audit.BufferSize = defaults.BufferSize
		}
		if config.Audit.FlushInterval <= 0 {
			config.Audit.FlushInterval = defaults.FlushInterval
		}
	}

	return &config
}
