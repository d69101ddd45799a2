// audit.go: Audit trail for specification loading and dispatch
//
// Events are buffered and flushed in the background to a pluggable backend
// (SQLite by default, JSONL when the output file ends in .jsonl).
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// AuditComponent is the component name recorded on every event
const AuditComponent = "cinch"

// Audit event names
const (
	EventSpecLoaded    = "spec_loaded"
	EventSpecInvalid   = "spec_invalid"
	EventSpecReloaded  = "spec_reloaded"
	EventSpecWritten   = "spec_written"
	EventDispatch      = "dispatch"
	EventDispatchError = "dispatch_error"
	EventPathRejected  = "path_rejected"
)

var errAuditDisabled = errors.New(ErrCodeInvalidAuditConfig, "audit logging is not enabled")

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// AuditEvent is a single recorded event
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	SpecPath    string                 `json:"spec_path,omitempty"`
	Tool        string                 `json:"tool,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"`
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled       bool          `json:"enabled"`
	OutputFile    string        `json:"output_file"`
	MinLevel      AuditLevel    `json:"min_level"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultAuditConfig returns an enabled configuration writing to the
// unified SQLite database. Use an OutputFile ending in .jsonl for JSONL.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "",
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// AuditQuery selects events from the audit trail. Zero fields match all.
type AuditQuery struct {
	Event    string
	Tool     string
	MinLevel AuditLevel
	Since    time.Time
	Limit    int
}

func (q AuditQuery) matches(event AuditEvent) bool {
	if q.Event != "" && event.Event != q.Event {
		return false
	}
	if q.Tool != "" && event.Tool != q.Tool {
		return false
	}
	if event.Level < q.MinLevel {
		return false
	}
	if !q.Since.IsZero() && event.Timestamp.Before(q.Since) {
		return false
	}
	return true
}

// AuditLogger buffers audit events and writes them to a backend.
// A nil *AuditLogger is valid and discards everything.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
	processName string
}

// NewAuditLogger opens the backend selected by config and starts the
// background flusher when FlushInterval is positive
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit backend: %w", err)
	}

	logger := &AuditLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]AuditEvent, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: getProcessName(),
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Log records an event
func (al *AuditLogger) Log(level AuditLevel, event, specPath, tool string, context map[string]interface{}) {
	if al == nil || al.backend == nil || !al.config.Enabled || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   AuditComponent,
		SpecPath:    specPath,
		Tool:        tool,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe() // background flush retries
	}
	al.bufferMu.Unlock()
}

// LogSpecLoaded records a successfully validated specification
func (al *AuditLogger) LogSpecLoaded(specPath string, spec *ToolSpecification) {
	al.Log(AuditInfo, EventSpecLoaded, specPath, spec.Name, map[string]interface{}{
		"version":  spec.Version,
		"commands": len(spec.Commands),
	})
}

// LogSpecReloaded records a specification picked up by the watcher
func (al *AuditLogger) LogSpecReloaded(specPath string, spec *ToolSpecification) {
	al.Log(AuditInfo, EventSpecReloaded, specPath, spec.Name, map[string]interface{}{
		"version":  spec.Version,
		"commands": len(spec.Commands),
	})
}

// LogSpecWritten records a specification saved by a SpecWriter
func (al *AuditLogger) LogSpecWritten(specPath string, spec *ToolSpecification) {
	al.Log(AuditInfo, EventSpecWritten, specPath, spec.Name, map[string]interface{}{
		"version":  spec.Version,
		"commands": len(spec.Commands),
	})
}

// LogSpecInvalid records a specification that failed to load or validate
func (al *AuditLogger) LogSpecInvalid(specPath string, err error) {
	al.Log(AuditCritical, EventSpecInvalid, specPath, "", map[string]interface{}{
		"code":  GetErrorCode(err),
		"error": err.Error(),
	})
}

// LogDispatch records the outcome of one dispatch
func (al *AuditLogger) LogDispatch(tool string, argv []string, outcome Outcome) {
	context := map[string]interface{}{
		"argv":    argv,
		"outcome": outcome.Kind.String(),
	}
	if outcome.Kind == OutcomeError {
		context["token"] = outcome.Err.Token
		al.Log(AuditWarn, EventDispatchError, "", tool, context)
		return
	}
	if outcome.Kind == OutcomeInvocation {
		matched := make([]string, 0, len(outcome.Invocation))
		for name := range outcome.Invocation {
			matched = append(matched, name)
		}
		sort.Strings(matched)
		context["matched"] = matched
	}
	al.Log(AuditInfo, EventDispatch, "", tool, context)
}

// LogCommand records a developer CLI command as cli_<name>
func (al *AuditLogger) LogCommand(name string, args []string, err error) {
	level := AuditInfo
	context := map[string]interface{}{"args": args}
	if err != nil {
		level = AuditWarn
		context["error"] = err.Error()
	}
	al.Log(level, "cli_"+name, "", "", context)
}

// LogSecurityEvent records a rejected path or similar event
func (al *AuditLogger) LogSecurityEvent(event, specPath string, context map[string]interface{}) {
	al.Log(AuditSecurity, event, specPath, "", context)
}

// Query flushes pending events and returns those matching q, oldest first
func (al *AuditLogger) Query(q AuditQuery) ([]AuditEvent, error) {
	if al == nil || al.backend == nil {
		return nil, errAuditDisabled
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.Query(q)
}

// Stats returns backend statistics
func (al *AuditLogger) Stats() (*AuditDatabaseStats, error) {
	if al == nil || al.backend == nil {
		return nil, errAuditDisabled
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.GetStats()
}

// Cleanup removes events older than olderThan and reports how many were removed
func (al *AuditLogger) Cleanup(olderThan time.Duration) (int64, error) {
	if al == nil || al.backend == nil {
		return 0, errAuditDisabled
	}
	if err := al.Flush(); err != nil {
		return 0, err
	}
	return al.backend.Cleanup(time.Now().Add(-olderThan))
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if al == nil || al.backend == nil {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Close stops the flusher, writes pending events and closes the backend.
// Calling it more than once is safe.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}

		if flushErr := al.Flush(); flushErr != nil {
			err = fmt.Errorf("failed to flush audit logger during close: %w", flushErr)
			return
		}

		if al.backend != nil {
			if closeErr := al.backend.Close(); closeErr != nil {
				err = fmt.Errorf("failed to close audit backend: %w", closeErr)
			}
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush() // retried on the next tick
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend (caller must hold bufferMu)
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}

	if err := al.backend.Write(al.buffer); err != nil {
		return fmt.Errorf("failed to write audit events to backend: %w", err)
	}

	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum creates a tamper-detection checksum using SHA-256
func generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.Component, event.SpecPath, event.Tool, event.Context)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

func getProcessName() string {
	if len(os.Args) > 0 {
		return filepath.Base(os.Args[0])
	}
	return AuditComponent
}
