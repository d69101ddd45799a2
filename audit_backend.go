// audit_backend.go: Storage backends for the Cinch audit trail
//
// SQLite is the default and supports indexed queries and retention
// cleanup. JSONL is selected by an output file ending in .jsonl and is
// also the fallback when SQLite cannot be opened.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"bufio"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditTimeLayout has a fixed width so stored timestamps sort lexically
const auditTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// auditBackend abstracts audit storage.
type auditBackend interface {
	// Write persists a batch of events; it must be safe for concurrent use
	Write(events []AuditEvent) error

	Flush() error

	// Close releases resources; the backend must not be used afterwards
	Close() error

	// Maintenance applies the default retention policy
	Maintenance() error

	GetStats() (*AuditDatabaseStats, error)

	// Query returns the events matching q, oldest first
	Query(q AuditQuery) ([]AuditEvent, error)

	// Cleanup removes events recorded before cutoff
	Cleanup(cutoff time.Time) (int64, error)
}

// AuditDatabaseStats summarises the audit trail
type AuditDatabaseStats struct {
	TotalEvents    int64            `json:"total_events"`
	EventsByLevel  map[string]int64 `json:"events_by_level"`
	EventsByEvent  map[string]int64 `json:"events_by_event"`
	OldestEvent    *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent    *time.Time       `json:"newest_event,omitempty"`
	StorageSize    int64            `json:"storage_size_bytes"`
	SchemaVersion  int              `json:"schema_version"`
	Backend        string           `json:"backend"`
	StorageLocator string           `json:"storage"`
}

func newAuditStats(backend, locator string) *AuditDatabaseStats {
	return &AuditDatabaseStats{
		EventsByLevel:  make(map[string]int64),
		EventsByEvent:  make(map[string]int64),
		Backend:        backend,
		StorageLocator: locator,
	}
}

func (s *AuditDatabaseStats) observe(event AuditEvent) {
	s.TotalEvents++
	s.EventsByLevel[event.Level.String()]++
	s.EventsByEvent[event.Event]++
	ts := event.Timestamp
	if s.OldestEvent == nil || ts.Before(*s.OldestEvent) {
		oldest := ts
		s.OldestEvent = &oldest
	}
	if s.NewestEvent == nil || ts.After(*s.NewestEvent) {
		newest := ts
		s.NewestEvent = &newest
	}
}

// createAuditBackend picks JSONL for .jsonl output files and SQLite for
// everything else, falling back to JSONL when SQLite fails
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config)
	}

	backend, err := newSQLiteBackend(config)
	if err == nil {
		return backend, nil
	}

	jsonlBackend, jsonlErr := newJSONLBackend(config)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// UnifiedAuditPath is the SQLite database used when no .db output file is configured
func UnifiedAuditPath() string {
	return filepath.Join(os.TempDir(), "cinch", "system-audit.db")
}

type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

func newSQLiteBackend(config AuditConfig) (*sqliteAuditBackend, error) {
	dbPath := UnifiedAuditPath()
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".db" {
		dbPath = config.OutputFile
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	// WAL keeps readers (cinch audit query) from blocking the writer
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	backend := &sqliteAuditBackend{db: db, dbPath: dbPath}

	if err := backend.ensureSchemaVersion(); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize audit database schema: %w", err)
	}

	stmt, err := db.Prepare(`
	INSERT INTO audit_events (
		timestamp, level, level_name, event, component, spec_path, tool,
		process_id, process_name, context, checksum
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to prepare audit insert statement: %w", err)
	}
	backend.insertStmt = stmt

	// not fatal; the next maintenance run retries
	_ = backend.Maintenance()

	return backend, nil
}

// ensureSchemaVersion migrates the schema to the current version.
//   - v1: events table and single-column indexes
//   - v2: composite indexes for query and cleanup
func (s *sqliteAuditBackend) ensureSchemaVersion() error {
	const currentSchemaVersion = 2

	if _, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_info (
		version INTEGER PRIMARY KEY,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("failed to create schema_info table: %w", err)
	}

	version, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	for v := version; v < currentSchemaVersion; v++ {
		var statements []string
		switch v {
		case 0:
			statements = []string{
				`CREATE TABLE IF NOT EXISTS audit_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					timestamp TEXT NOT NULL,
					level INTEGER NOT NULL,
					level_name TEXT NOT NULL,
					event TEXT NOT NULL,
					component TEXT NOT NULL,
					spec_path TEXT,
					tool TEXT,
					process_id INTEGER NOT NULL,
					process_name TEXT NOT NULL,
					context TEXT,
					checksum TEXT
				)`,
				"CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)",
				"CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_events(event)",
				"CREATE INDEX IF NOT EXISTS idx_audit_tool ON audit_events(tool)",
			}
		case 1:
			statements = []string{
				"CREATE INDEX IF NOT EXISTS idx_audit_event_time ON audit_events(event, timestamp)",
				"CREATE INDEX IF NOT EXISTS idx_audit_tool_time ON audit_events(tool, timestamp)",
				"CREATE INDEX IF NOT EXISTS idx_audit_level_time ON audit_events(level, timestamp)",
			}
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration to v%d failed: %w", v+1, err)
			}
		}
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO schema_info (version, updated_at) VALUES (?, CURRENT_TIMESTAMP)",
		currentSchemaVersion); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info ORDER BY version DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to check schema version: %w", err)
	}
	return version, nil
}

func (s *sqliteAuditBackend) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Write inserts the batch in one transaction
func (s *sqliteAuditBackend) Write(events []AuditEvent) error {
	if s.isClosed() {
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	txStmt := tx.Stmt(s.insertStmt)
	defer func() {
		_ = txStmt.Close()
	}()

	for _, event := range events {
		contextJSON := ""
		if event.Context != nil {
			data, err := json.Marshal(event.Context)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to serialize context: %w", err)
			}
			contextJSON = string(data)
		}

		if _, err := txStmt.Exec(
			event.Timestamp.UTC().Format(auditTimeLayout),
			int(event.Level),
			event.Level.String(),
			event.Event,
			event.Component,
			event.SpecPath,
			event.Tool,
			event.ProcessID,
			event.ProcessName,
			contextJSON,
			event.Checksum,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

// Query selects matching events, oldest first
func (s *sqliteAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("cannot query closed SQLite audit backend")
	}

	var (
		where []string
		args  []interface{}
	)
	if q.Event != "" {
		where = append(where, "event = ?")
		args = append(args, q.Event)
	}
	if q.Tool != "" {
		where = append(where, "tool = ?")
		args = append(args, q.Tool)
	}
	if q.MinLevel > AuditInfo {
		where = append(where, "level >= ?")
		args = append(args, int(q.MinLevel))
	}
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(auditTimeLayout))
	}

	query := `SELECT timestamp, level, event, component, spec_path, tool,
		process_id, process_name, context, checksum FROM audit_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, id ASC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []AuditEvent
	for rows.Next() {
		var (
			event                  AuditEvent
			ts                     string
			level                  int
			specPath, tool, ctxRaw sql.NullString
		)
		if err := rows.Scan(&ts, &level, &event.Event, &event.Component, &specPath, &tool,
			&event.ProcessID, &event.ProcessName, &ctxRaw, &event.Checksum); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Level = AuditLevel(level)
		event.SpecPath = specPath.String
		event.Tool = tool.String
		if parsed, err := time.Parse(auditTimeLayout, ts); err == nil {
			event.Timestamp = parsed
		}
		if ctxRaw.String != "" {
			if err := json.Unmarshal([]byte(ctxRaw.String), &event.Context); err != nil {
				return nil, fmt.Errorf("failed to decode audit context: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Cleanup deletes events recorded before cutoff
func (s *sqliteAuditBackend) Cleanup(cutoff time.Time) (int64, error) {
	if s.isClosed() {
		return 0, fmt.Errorf("cannot clean up closed SQLite audit backend")
	}
	result, err := s.db.Exec("DELETE FROM audit_events WHERE timestamp < ?", cutoff.UTC().Format(auditTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up audit events: %w", err)
	}
	return result.RowsAffected()
}

// Maintenance drops events past the 90 day retention and refreshes statistics
func (s *sqliteAuditBackend) Maintenance() error {
	const defaultRetention = 90 * 24 * time.Hour

	if _, err := s.Cleanup(time.Now().Add(-defaultRetention)); err != nil {
		return err
	}
	for _, task := range []string{"PRAGMA optimize", "PRAGMA wal_checkpoint(FULL)"} {
		_, _ = s.db.Exec(task) // best effort
	}
	return nil
}

// GetStats aggregates the events table
func (s *sqliteAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("cannot read stats from closed SQLite audit backend")
	}
	stats := newAuditStats("sqlite", s.dbPath)

	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to get total events count: %w", err)
	}
	if err := s.groupCount("level_name", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.groupCount("event", stats.EventsByEvent); err != nil {
		return nil, err
	}

	var oldest, newest sql.NullString
	if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get event time range: %w", err)
	}
	if t, err := time.Parse(auditTimeLayout, oldest.String); oldest.Valid && err == nil {
		stats.OldestEvent = &t
	}
	if t, err := time.Parse(auditTimeLayout, newest.String); newest.Valid && err == nil {
		stats.NewestEvent = &t
	}

	version, err := s.schemaVersion()
	if err != nil {
		return nil, err
	}
	stats.SchemaVersion = version

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.StorageSize = info.Size()
	}
	return stats, nil
}

// groupCount fills into with counts grouped by column (a fixed identifier)
func (s *sqliteAuditBackend) groupCount(column string, into map[string]int64) error {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM audit_events GROUP BY " + column) // #nosec G202 -- column is a constant
	if err != nil {
		return fmt.Errorf("failed to group audit events by %s: %w", column, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s stats: %w", column, err)
		}
		into[key] = count
	}
	return rows.Err()
}

// Flush checkpoints the WAL
func (s *sqliteAuditBackend) Flush() error {
	if s.isClosed() {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

// Close flushes and releases the database. Safe to call more than once.
func (s *sqliteAuditBackend) Close() error {
	if s.isClosed() {
		return nil
	}

	var errs []error
	if err := s.Flush(); err != nil {
		errs = append(errs, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close database: %w", err))
	}
	s.closed = true

	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

type jsonlAuditBackend struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(config AuditConfig) (*jsonlAuditBackend, error) {
	if config.OutputFile == "" {
		return nil, fmt.Errorf("JSONL backend requires OutputFile to be specified")
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}

	file, err := openJSONL(config.OutputFile)
	if err != nil {
		return nil, err
	}
	return &jsonlAuditBackend{file: file, path: config.OutputFile}, nil
}

func openJSONL(path string) (*os.File, error) {
	// #nosec G304 -- audit output path comes from configuration
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}
	return file, nil
}

// Write appends one JSON object per line
func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write audit event to JSONL: %w", err)
		}
	}
	return nil
}

// readAll decodes every event in the file (caller must hold mu)
func (j *jsonlAuditBackend) readAll() ([]AuditEvent, error) {
	// #nosec G304 -- audit output path comes from configuration
	file, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log for reading: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var events []AuditEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event AuditEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("corrupt JSONL audit line: %w", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSONL audit log: %w", err)
	}
	return events, nil
}

// Query scans the whole file
func (j *jsonlAuditBackend) Query(q AuditQuery) ([]AuditEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	var events []AuditEvent
	for _, event := range all {
		if !q.matches(event) {
			continue
		}
		events = append(events, event)
		if q.Limit > 0 && len(events) == q.Limit {
			break
		}
	}
	return events, nil
}

// Cleanup rewrites the file without the events recorded before cutoff
func (j *jsonlAuditBackend) Cleanup(cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return 0, fmt.Errorf("cannot clean up closed JSONL audit backend")
	}

	all, err := j.readAll()
	if err != nil {
		return 0, err
	}

	var kept []byte
	var removed int64
	for _, event := range all {
		if event.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		data, err := json.Marshal(event)
		if err != nil {
			return 0, fmt.Errorf("failed to serialize audit event: %w", err)
		}
		kept = append(kept, data...)
		kept = append(kept, '\n')
	}
	if removed == 0 {
		return 0, nil
	}

	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, kept, 0600); err != nil {
		return 0, fmt.Errorf("failed to write compacted JSONL audit log: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close JSONL audit log: %w", err)
	}
	if err := os.Rename(tmp, j.path); err != nil {
		return 0, fmt.Errorf("failed to replace JSONL audit log: %w", err)
	}
	file, err := openJSONL(j.path)
	if err != nil {
		j.closed = true
		return 0, err
	}
	j.file = file
	return removed, nil
}

// Flush fsyncs the file
func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL audit file: %w", err)
	}
	return nil
}

// Maintenance is a no-op; use Cleanup for retention
func (j *jsonlAuditBackend) Maintenance() error {
	return nil
}

// GetStats counts events by scanning the file
func (j *jsonlAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := newAuditStats("jsonl", j.path)
	stats.SchemaVersion = 1

	all, err := j.readAll()
	if err != nil {
		return nil, err
	}
	for _, event := range all {
		stats.observe(event)
	}
	if info, err := os.Stat(j.path); err == nil {
		stats.StorageSize = info.Size()
	}
	return stats, nil
}

// Close closes the file. Safe to call more than once.
func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
