// watcher.go: Polling watcher that revalidates a specification on change
//
// Example Usage:
//
//	watcher, err := cinch.NewSpecWatcher("tool.json", cinch.Config{
//	    PollInterval: time.Second,
//	}, func(spec *cinch.ToolSpecification, err error) {
//	    if err == nil {
//	        engine.Store(cinch.NewEngine(spec, nil))
//	    }
//	})
//	watcher.Start()
//	defer watcher.Close()
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// SpecCallback receives the revalidated specification, or the load or
// validation error, after every change of the watched file.
type SpecCallback func(spec *ToolSpecification, err error)

// fileStat caches file metadata to limit os.Stat calls
type fileStat struct {
	modTime  time.Time
	size     int64
	exists   bool
	cachedAt int64 // timecache nanoseconds
}

func (fs *fileStat) isExpired(ttl time.Duration) bool {
	return (timecache.CachedTimeNano() - fs.cachedAt) > int64(ttl)
}

// SpecWatcher polls a single specification file.
type SpecWatcher struct {
	config      Config
	path        string
	callback    SpecCallback
	auditLogger *AuditLogger

	statCache atomic.Pointer[fileStat]
	lastStat  fileStat
	checkMu   sync.Mutex

	running   atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
	stoppedCh chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSpecWatcher prepares a watcher for path. The file does not have to
// exist yet; its creation is reported like a modification.
func NewSpecWatcher(path string, config Config, callback SpecCallback) (*SpecWatcher, error) {
	if callback == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "callback cannot be nil")
	}

	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(err error, path string) {
			log.Printf("cinch: error in specification %s: %v", path, err)
		}
	}

	var auditLogger *AuditLogger
	if cfg.Audit.Enabled {
		logger, err := NewAuditLogger(cfg.Audit)
		if err != nil {
			return nil, errors.Wrap(err, ErrCodeInvalidAuditConfig, "failed to open audit logger")
		}
		auditLogger = logger
	}

	if err := validateSecurePath(path); err != nil {
		auditLogger.LogSecurityEvent(EventPathRejected, path, map[string]interface{}{"reason": err.Error()})
		_ = auditLogger.Close()
		return nil, err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = auditLogger.Close()
		return nil, errors.Wrap(err, ErrCodeInvalidSpecPath, "invalid specification path").
			WithContext("path", path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &SpecWatcher{
		config:      *cfg,
		path:        absPath,
		callback:    callback,
		auditLogger: auditLogger,
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}

	initial, err := w.getStat()
	if err != nil && !os.IsNotExist(err) {
		cancel()
		_ = auditLogger.Close()
		return nil, errors.Wrap(err, ErrCodeSpecUnreadable, "failed to stat specification").
			WithContext("path", absPath)
	}
	w.lastStat = initial

	return w, nil
}

// Path returns the absolute path being watched
func (w *SpecWatcher) Path() string {
	return w.path
}

// Start begins polling in the background
func (w *SpecWatcher) Start() error {
	select {
	case <-w.stopCh:
		return errors.New(ErrCodeWatcherStopped, "watcher has been stopped")
	default:
	}
	if !w.running.CompareAndSwap(false, true) {
		return errors.New(ErrCodeWatcherBusy, "watcher is already running")
	}
	go w.watchLoop()
	return nil
}

// Stop ends polling and waits for the loop to exit
func (w *SpecWatcher) Stop() error {
	if !w.running.CompareAndSwap(true, false) {
		return errors.New(ErrCodeWatcherStopped, "watcher is not running")
	}
	w.halt()
	<-w.stoppedCh
	return nil
}

func (w *SpecWatcher) halt() {
	w.stopOnce.Do(func() {
		w.cancel()
		close(w.stopCh)
	})
}

// IsRunning returns true while the polling loop is active
func (w *SpecWatcher) IsRunning() bool {
	return w.running.Load()
}

// Close stops the watcher if needed and releases the audit logger
func (w *SpecWatcher) Close() error {
	if w.IsRunning() {
		if err := w.Stop(); err != nil {
			return err
		}
	} else {
		w.halt()
	}
	return w.auditLogger.Close()
}

// Reload loads and validates the file now and delivers the result to the
// callback, as a detected change would
func (w *SpecWatcher) Reload() (*ToolSpecification, error) {
	spec, err := w.load()
	w.deliver(spec, err)
	return spec, err
}

func (w *SpecWatcher) load() (*ToolSpecification, error) {
	tree, err := LoadSpecification(w.path)
	if err != nil {
		return nil, err
	}
	return Validate(tree)
}

func (w *SpecWatcher) deliver(spec *ToolSpecification, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.config.ErrorHandler(fmt.Errorf("specification callback panicked: %v", r), w.path)
		}
	}()

	if err != nil {
		w.auditLogger.LogSpecInvalid(w.path, err)
		w.config.ErrorHandler(err, w.path)
	} else {
		w.auditLogger.LogSpecReloaded(w.path, spec)
	}
	w.callback(spec, err)
}

// getStat returns the cached stat or refreshes it once CacheTTL has passed
func (w *SpecWatcher) getStat() (fileStat, error) {
	if cached := w.statCache.Load(); cached != nil && !cached.isExpired(w.config.CacheTTL) {
		if !cached.exists {
			return *cached, os.ErrNotExist
		}
		return *cached, nil
	}

	info, err := os.Stat(w.path)
	stat := fileStat{
		cachedAt: timecache.CachedTimeNano(),
		exists:   err == nil,
	}
	if err == nil {
		stat.modTime = info.ModTime()
		stat.size = info.Size()
	}
	w.statCache.Store(&stat)
	return stat, err
}

// checkFile compares the current stat with the last one and reloads on change
func (w *SpecWatcher) checkFile() {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	current, err := w.getStat()
	if err != nil {
		if os.IsNotExist(err) {
			if w.lastStat.exists {
				w.lastStat.exists = false
				w.config.ErrorHandler(errors.New(ErrCodeSpecNotFound, "specification file was removed").
					WithContext("path", w.path), w.path)
			}
		} else {
			w.config.ErrorHandler(errors.Wrap(err, ErrCodeSpecUnreadable, "failed to stat specification").
				WithContext("path", w.path), w.path)
		}
		return
	}

	changed := !w.lastStat.exists ||
		!current.modTime.Equal(w.lastStat.modTime) ||
		current.size != w.lastStat.size
	w.lastStat = current
	if changed {
		spec, err := w.load()
		w.deliver(spec, err)
	}
}

func (w *SpecWatcher) watchLoop() {
	defer close(w.stoppedCh)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.checkFile()
		}
	}
}
