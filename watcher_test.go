// watcher_test.go: Tests for the polling specification watcher
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/agilira/go-timecache"
)

type specEvent struct {
	spec *ToolSpecification
	err  error
}

func watchConfig(errs chan<- error) Config {
	return Config{
		PollInterval: 20 * time.Millisecond,
		ErrorHandler: func(err error, path string) {
			select {
			case errs <- err:
			default:
			}
		},
	}
}

func waitEvent(t *testing.T, events <-chan specEvent) specEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watcher callback")
	}
	return specEvent{}
}

// replaceFile swaps content in with a rename so a poll never sees a
// half-written file
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".new"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
}

func TestSpecWatcherDetectsChanges(t *testing.T) {
	path := writeSpec(t, "tool.json", `{"name": "tool", "description": "d", "version": "1"}`)

	events := make(chan specEvent, 10)
	errs := make(chan error, 10)
	watcher, err := NewSpecWatcher(path, watchConfig(errs), func(spec *ToolSpecification, err error) {
		events <- specEvent{spec, err}
	})
	if err != nil {
		t.Fatalf("NewSpecWatcher failed: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	if !filepath.IsAbs(watcher.Path()) {
		t.Errorf("expected absolute path, got %q", watcher.Path())
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !watcher.IsRunning() {
		t.Error("watcher should be running")
	}

	time.Sleep(50 * time.Millisecond)
	replaceFile(t, path, `{"name": "tool", "description": "d", "version": "2.0.0"}`)
	event := waitEvent(t, events)
	if event.err != nil || event.spec.Version != "2.0.0" {
		t.Fatalf("unexpected event %+v", event)
	}

	// an invalid revision reaches both the callback and the error handler
	replaceFile(t, path, `{"name": "two words", "description": "d", "version": "2.0.0"}`)
	event = waitEvent(t, events)
	if !IsValidationError(event.err) || event.spec != nil {
		t.Fatalf("expected validation error, got %+v", event)
	}
	select {
	case err := <-errs:
		if !IsValidationError(err) {
			t.Errorf("unexpected handler error %v", err)
		}
	case <-time.After(time.Second):
		t.Error("error handler not called")
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	select {
	case err := <-errs:
		if GetErrorCode(err) != ErrCodeSpecNotFound {
			t.Errorf("expected %s, got %v", ErrCodeSpecNotFound, err)
		}
	case <-time.After(2 * time.Second):
		t.Error("removal not reported")
	}
}

func TestSpecWatcherCreatedLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.json")

	events := make(chan specEvent, 10)
	watcher, err := NewSpecWatcher(path, watchConfig(make(chan error, 10)), func(spec *ToolSpecification, err error) {
		events <- specEvent{spec, err}
	})
	if err != nil {
		t.Fatalf("NewSpecWatcher failed: %v", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	replaceFile(t, path, `{"name": "late", "description": "d", "version": "1"}`)
	if event := waitEvent(t, events); event.err != nil || event.spec.Name != "late" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestSpecWatcherLifecycle(t *testing.T) {
	path := writeSpec(t, "tool.json", `{"name": "tool", "description": "d", "version": "1"}`)
	watcher, err := NewSpecWatcher(path, Config{PollInterval: 50 * time.Millisecond}, func(*ToolSpecification, error) {})
	if err != nil {
		t.Fatalf("NewSpecWatcher failed: %v", err)
	}

	if err := watcher.Stop(); GetErrorCode(err) != ErrCodeWatcherStopped {
		t.Errorf("Stop before Start: expected %s, got %v", ErrCodeWatcherStopped, err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := watcher.Start(); GetErrorCode(err) != ErrCodeWatcherBusy {
		t.Errorf("second Start: expected %s, got %v", ErrCodeWatcherBusy, err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if watcher.IsRunning() {
		t.Error("watcher still running after Stop")
	}
	if err := watcher.Start(); GetErrorCode(err) != ErrCodeWatcherStopped {
		t.Errorf("restart: expected %s, got %v", ErrCodeWatcherStopped, err)
	}
	if err := watcher.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSpecWatcherReload(t *testing.T) {
	path := writeSpec(t, "tool.json", `{"name": "tool", "description": "d", "version": "1"}`)

	var mu sync.Mutex
	var handled []error
	calls := 0
	cfg := Config{
		PollInterval: time.Second,
		ErrorHandler: func(err error, _ string) {
			mu.Lock()
			handled = append(handled, err)
			mu.Unlock()
		},
	}
	watcher, err := NewSpecWatcher(path, cfg, func(*ToolSpecification, error) {
		calls++
		panic("callback failure")
	})
	if err != nil {
		t.Fatalf("NewSpecWatcher failed: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	spec, err := watcher.Reload()
	if err != nil || spec.Name != "tool" {
		t.Fatalf("Reload returned %v, %v", spec, err)
	}
	if calls != 1 {
		t.Errorf("expected one callback, got %d", calls)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 {
		t.Errorf("panic should be reported to the error handler, got %v", handled)
	}
}

func TestNewSpecWatcherErrors(t *testing.T) {
	noop := func(*ToolSpecification, error) {}

	if _, err := NewSpecWatcher("tool.json", Config{}, nil); GetErrorCode(err) != ErrCodeInvalidConfig {
		t.Errorf("nil callback: expected %s, got %v", ErrCodeInvalidConfig, err)
	}
	if _, err := NewSpecWatcher("../tool.json", Config{}, noop); GetErrorCode(err) != ErrCodeInvalidSpecPath {
		t.Errorf("traversal: expected %s, got %v", ErrCodeInvalidSpecPath, err)
	}
	if _, err := NewSpecWatcher("tool.json", Config{PollInterval: time.Millisecond}, noop); err == nil {
		t.Error("expected error for too small poll interval")
	}
}

func TestSpecWatcherAuditsReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeSpec(t, "tool.json", `{"name": "tool", "description": "d", "version": "1"}`)
	auditPath := filepath.Join(dir, "watch.jsonl")

	watcher, err := NewSpecWatcher(path, Config{
		PollInterval: time.Second,
		Audit:        AuditConfig{Enabled: true, OutputFile: auditPath, BufferSize: 10},
	}, func(*ToolSpecification, error) {})
	if err != nil {
		t.Fatalf("NewSpecWatcher failed: %v", err)
	}
	if _, err := watcher.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if err := watcher.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewAuditLogger(AuditConfig{Enabled: true, OutputFile: auditPath, BufferSize: 10})
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	defer func() { _ = reader.Close() }()
	events, err := reader.Query(AuditQuery{Event: EventSpecReloaded})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 || events[0].Tool != "tool" {
		t.Errorf("expected one reload event, got %+v", events)
	}
}

func TestSpecWatcherReportsRemovalFromCachedStat(t *testing.T) {
	path := writeSpec(t, "tool.json", `{"name": "tool", "description": "d", "version": "1"}`)

	var handled []error
	watcher, err := NewSpecWatcher(path, Config{
		PollInterval: time.Second,
		CacheTTL:     time.Second,
		ErrorHandler: func(err error, _ string) { handled = append(handled, err) },
	}, func(*ToolSpecification, error) {})
	if err != nil {
		t.Fatalf("NewSpecWatcher failed: %v", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	// a fresh cache entry recording the missing file
	watcher.statCache.Store(&fileStat{exists: false, cachedAt: timecache.CachedTimeNano()})

	watcher.checkFile()
	watcher.checkFile()

	if len(handled) != 1 || GetErrorCode(handled[0]) != ErrCodeSpecNotFound {
		t.Errorf("expected a single %s report, got %v", ErrCodeSpecNotFound, handled)
	}
}
