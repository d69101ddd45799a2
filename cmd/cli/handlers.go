// Command handlers for the cinch CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/agilira/cinch"
	"github.com/agilira/go-errors"
	"github.com/agilira/orpheus/pkg/orpheus"
	"github.com/goccy/go-json"
)

// handleValidate loads and validates a specification file
func (m *Manager) handleValidate(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	spec, err := m.loadSpec(path, ctx.GetFlagString("format"))
	if err != nil {
		fmt.Fprintf(m.out, "Invalid specification %s: %v\n", path, err)
		if cinch.IsValidationError(err) {
			fmt.Fprintf(m.out, "Users of the tool would see: %s\n", cinch.UserNote)
		}
		return err
	}

	fmt.Fprintf(m.out, "Valid specification: %s %s (%d commands)\n", spec.Name, spec.Version, len(spec.Commands))
	if ctx.GetFlagBool("verbose") {
		data, err := json.MarshalIndent(spec.Tree(), "", "  ")
		if err != nil {
			return errors.Wrap(err, cinch.ErrCodeIOError, "failed to encode specification")
		}
		fmt.Fprintln(m.out, string(data))
	}
	return nil
}

func (m *Manager) handleRenderHelp(ctx *orpheus.Context) error {
	engine, err := m.loadEngine(ctx.GetArg(0), ctx.GetFlagString("format"))
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, engine.HelpMessage())
	return nil
}

func (m *Manager) handleRenderVersion(ctx *orpheus.Context) error {
	engine, err := m.loadEngine(ctx.GetArg(0), ctx.GetFlagString("format"))
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, engine.VersionMessage())
	return nil
}

// handleRenderError shows the message a tool prints for an unknown token
func (m *Manager) handleRenderError(ctx *orpheus.Context) error {
	token := ctx.GetArg(1)
	if token == "" {
		return errors.New(cinch.ErrCodeInvalidConfig, "usage: cinch render error <spec> <token>")
	}
	engine, err := m.loadEngine(ctx.GetArg(0), ctx.GetFlagString("format"))
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, engine.ErrorMessage(token, ""))
	return nil
}

// handleCommands lists every recognised token, or the normalized tree as JSON
func (m *Manager) handleCommands(ctx *orpheus.Context) error {
	spec, err := m.loadSpec(ctx.GetArg(0), ctx.GetFlagString("format"))
	if err != nil {
		return err
	}

	if ctx.GetFlagBool("json") {
		data, err := json.Marshal(spec.Tree())
		if err != nil {
			return errors.Wrap(err, cinch.ErrCodeIOError, "failed to encode specification")
		}
		fmt.Fprintln(m.out, string(data))
		return nil
	}

	for i := range spec.Commands {
		cmd := &spec.Commands[i]
		tokens := commandTokens(cmd)
		if len(tokens) == 0 {
			continue
		}
		fmt.Fprintf(m.out, "  %-28s %s\n", strings.Join(tokens, ", "), cmd.Description)
	}
	if spec.HelpMessagesOn() {
		fmt.Fprintf(m.out, "  %-28s %s\n", "--help, -h, help", "show the help message")
	}
	if spec.VersionMessagesOn() {
		fmt.Fprintf(m.out, "  %-28s %s\n", "--version, -v, version", "show the version")
	}
	return nil
}

// handleRun dispatches tokens against a specification the way the
// generated tool would, printing the invocation as JSON
func (m *Manager) handleRun(args []string) error {
	if len(args) == 0 || args[0] == "" {
		return errors.New(cinch.ErrCodeInvalidSpecPath, "usage: cinch run <spec> [tokens...]")
	}

	exitCode := 0
	tool, err := cinch.New(args[0], cinch.Config{
		Stdout:    m.out,
		Stderr:    m.out,
		Terminate: func(code int) { exitCode = code },
	})
	if err != nil {
		return err
	}
	defer func() { _ = tool.Close() }()

	result := tool.Execute(args[1:])
	if exitCode != 0 {
		return errors.New(cinch.ErrCodeUnrecognizedToken, "dispatch failed").
			WithContext("exit_code", exitCode)
	}
	if result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, cinch.ErrCodeIOError, "failed to encode invocation")
	}
	fmt.Fprintln(m.out, string(data))
	return nil
}

// handleSpecGet prints the value at a dot-notation key
func (m *Manager) handleSpecGet(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	key := ctx.GetArg(1)

	writer, err := m.openWriter(path, ctx.GetFlagString("format"), false)
	if err != nil {
		return err
	}
	value := writer.GetValue(key)
	if value == nil {
		return errors.New(cinch.ErrCodeInvalidConfig, fmt.Sprintf("key '%s' not found", key))
	}

	switch value.(type) {
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(value)
		if err != nil {
			return errors.Wrap(err, cinch.ErrCodeIOError, "failed to encode value")
		}
		fmt.Fprintln(m.out, string(data))
	default:
		fmt.Fprintf(m.out, "%v\n", value)
	}
	return nil
}

// handleSpecSet sets a value and saves the specification atomically.
// The file is only written if the result still validates.
func (m *Manager) handleSpecSet(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	key := ctx.GetArg(1)
	value := parseValue(ctx.GetArg(2))

	writer, err := m.openWriter(path, ctx.GetFlagString("format"), false)
	if err != nil {
		return err
	}
	if err := writer.SetValue(key, value); err != nil {
		return err
	}
	if err := writer.WriteSpec(); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Set %s = %v in %s\n", key, value, path)
	return nil
}

// handleSpecDelete removes a key and saves the specification atomically
func (m *Manager) handleSpecDelete(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	key := ctx.GetArg(1)

	writer, err := m.openWriter(path, ctx.GetFlagString("format"), false)
	if err != nil {
		return err
	}
	if !writer.DeleteValue(key) {
		return errors.New(cinch.ErrCodeInvalidConfig, fmt.Sprintf("key '%s' not found", key))
	}
	if err := writer.WriteSpec(); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Deleted %s from %s\n", key, path)
	return nil
}

// handleSpecList prints every leaf key with its value
func (m *Manager) handleSpecList(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	prefix := ctx.GetFlagString("prefix")

	writer, err := m.openWriter(path, ctx.GetFlagString("format"), false)
	if err != nil {
		return err
	}

	keys := writer.ListKeys(prefix)
	if len(keys) == 0 {
		if prefix != "" {
			fmt.Fprintf(m.out, "No keys found with prefix '%s'\n", prefix)
		} else {
			fmt.Fprintln(m.out, "No specification keys found")
		}
		return nil
	}

	fmt.Fprintf(m.out, "Specification keys in %s:\n", path)
	for _, key := range keys {
		fmt.Fprintf(m.out, "  %s = %v\n", key, writer.GetValue(key))
	}
	return nil
}

// handleSpecConvert rewrites a specification in another format
func (m *Manager) handleSpecConvert(ctx *orpheus.Context) error {
	inputPath := ctx.GetArg(0)
	outputPath := ctx.GetArg(1)
	if outputPath == "" {
		return errors.New(cinch.ErrCodeInvalidSpecPath, "output path is required")
	}

	toFormat, err := parseFormat(outputPath, ctx.GetFlagString("to"))
	if err != nil {
		return err
	}
	writer, err := m.openWriter(inputPath, ctx.GetFlagString("from"), false)
	if err != nil {
		return err
	}
	if err := writer.WriteSpecAs(outputPath, toFormat); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Converted %s -> %s (%s)\n", inputPath, outputPath, toFormat)
	return nil
}

// handleSpecInit creates a new specification from a template
func (m *Manager) handleSpecInit(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	template := ctx.GetFlagString("template")

	if _, err := os.Stat(path); err == nil {
		return errors.New(cinch.ErrCodeIOError, fmt.Sprintf("file already exists: %s", path))
	}
	tree, err := generateTemplate(template, ctx.GetFlagString("name"))
	if err != nil {
		return err
	}

	writer, err := m.openWriter(path, ctx.GetFlagString("format"), true)
	if err != nil {
		return err
	}
	for key, value := range tree {
		if err := writer.SetValue(key, value); err != nil {
			return err
		}
	}
	if err := writer.WriteSpec(); err != nil {
		return err
	}

	fmt.Fprintf(m.out, "Created specification: %s\n", path)
	return nil
}

// handleWatch revalidates a specification on every change until
// interrupted or until --for elapses
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	verbose := ctx.GetFlagBool("verbose")

	interval, err := time.ParseDuration(ctx.GetFlagString("interval"))
	if err != nil {
		return errors.New(cinch.ErrCodeInvalidPollInterval, fmt.Sprintf("invalid interval: %v", err))
	}
	var limit time.Duration
	if value := ctx.GetFlagString("for"); value != "" && value != "0" {
		if limit, err = parseExtendedDuration(value); err != nil {
			return errors.New(cinch.ErrCodeInvalidConfig, fmt.Sprintf("invalid duration: %v", err))
		}
	}

	out := &lockedWriter{w: m.out}
	watcher, err := cinch.NewSpecWatcher(path, cinch.Config{
		PollInterval: interval,
		ErrorHandler: func(err error, path string) {
			fmt.Fprintf(out, "Error in %s: %v\n", path, err)
		},
	}, func(spec *cinch.ToolSpecification, err error) {
		if err != nil {
			return
		}
		fmt.Fprintf(out, "Valid specification: %s %s (%d commands)\n", spec.Name, spec.Version, len(spec.Commands))
		if verbose {
			fmt.Fprintf(out, "  %s\n", strings.Join(spec.CommandList(), " "))
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	fmt.Fprintf(out, "Watching %s (interval: %v)\n", watcher.Path(), interval)
	if _, statErr := os.Stat(watcher.Path()); statErr == nil {
		_, _ = watcher.Reload()
	}
	if err := watcher.Start(); err != nil {
		return err
	}

	waitCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if limit > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, limit)
		defer cancel()
	} else {
		fmt.Fprintln(out, "Press Ctrl+C to stop...")
	}
	<-waitCtx.Done()

	return watcher.Stop()
}

// handleAuditQuery prints matching audit events, oldest first
func (m *Manager) handleAuditQuery(ctx *orpheus.Context) error {
	if m.auditLogger == nil {
		return errors.New(cinch.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}

	since, err := parseExtendedDuration(ctx.GetFlagString("since"))
	if err != nil {
		return errors.New(cinch.ErrCodeInvalidConfig, fmt.Sprintf("invalid time range: %v", err))
	}
	level, err := cinch.ParseAuditLevel(ctx.GetFlagString("level"))
	if err != nil {
		return err
	}

	events, err := m.auditLogger.Query(cinch.AuditQuery{
		Event:    ctx.GetFlagString("event"),
		Tool:     ctx.GetFlagString("tool"),
		MinLevel: level,
		Since:    time.Now().Add(-since),
		Limit:    ctx.GetFlagInt("limit"),
	})
	if err != nil {
		return errors.Wrap(err, cinch.ErrCodeIOError, "failed to query audit trail")
	}

	asJSON := ctx.GetFlagBool("json")
	for _, event := range events {
		if asJSON {
			data, err := json.Marshal(event)
			if err != nil {
				return errors.Wrap(err, cinch.ErrCodeIOError, "failed to encode audit event")
			}
			fmt.Fprintln(m.out, string(data))
			continue
		}
		fmt.Fprintf(m.out, "%s  %-8s %-16s %-12s %s\n",
			event.Timestamp.Format(time.RFC3339), event.Level, event.Event, event.Tool, event.SpecPath)
	}
	if !asJSON {
		fmt.Fprintf(m.out, "%d events\n", len(events))
	}
	return nil
}

// handleAuditStats prints totals per level and event
func (m *Manager) handleAuditStats(_ *orpheus.Context) error {
	if m.auditLogger == nil {
		return errors.New(cinch.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}

	stats, err := m.auditLogger.Stats()
	if err != nil {
		return errors.Wrap(err, cinch.ErrCodeIOError, "failed to read audit statistics")
	}

	fmt.Fprintf(m.out, "Backend: %s (%s)\n", stats.Backend, stats.StorageLocator)
	fmt.Fprintf(m.out, "Total events: %d\n", stats.TotalEvents)
	if stats.OldestEvent != nil && stats.NewestEvent != nil {
		fmt.Fprintf(m.out, "Oldest: %s\n", stats.OldestEvent.Format(time.RFC3339))
		fmt.Fprintf(m.out, "Newest: %s\n", stats.NewestEvent.Format(time.RFC3339))
	}
	printCounts(m.out, "By level", stats.EventsByLevel)
	printCounts(m.out, "By event", stats.EventsByEvent)
	return nil
}

// handleAuditCleanup removes old audit events
func (m *Manager) handleAuditCleanup(ctx *orpheus.Context) error {
	if m.auditLogger == nil {
		return errors.New(cinch.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}

	olderThan, err := parseExtendedDuration(ctx.GetFlagString("older-than"))
	if err != nil {
		return errors.New(cinch.ErrCodeInvalidConfig, fmt.Sprintf("invalid duration: %v", err))
	}

	if ctx.GetFlagBool("dry-run") {
		events, err := m.auditLogger.Query(cinch.AuditQuery{})
		if err != nil {
			return errors.Wrap(err, cinch.ErrCodeIOError, "failed to query audit trail")
		}
		cutoff := time.Now().Add(-olderThan)
		count := 0
		for _, event := range events {
			if event.Timestamp.Before(cutoff) {
				count++
			}
		}
		fmt.Fprintf(m.out, "Would delete %d events older than %s\n", count, cutoff.Format(time.RFC3339))
		return nil
	}

	removed, err := m.auditLogger.Cleanup(olderThan)
	if err != nil {
		return errors.Wrap(err, cinch.ErrCodeIOError, "failed to clean up audit trail")
	}
	fmt.Fprintf(m.out, "Deleted %d events\n", removed)
	return nil
}

// handleInfo displays system information and diagnostics
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	fmt.Fprintf(m.out, "Cinch declarative CLI generator\n")
	fmt.Fprintf(m.out, "Version: %s\n", Version)
	fmt.Fprintf(m.out, "Audit logging: %v\n", m.auditLogger != nil)

	if ctx.GetFlagBool("verbose") {
		fmt.Fprintf(m.out, "\nSystem Details:\n")
		fmt.Fprintf(m.out, "Go version: %s\n", runtime.Version())
		fmt.Fprintf(m.out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(m.out, "Specification formats: %s, %s\n", cinch.FormatJSON, cinch.FormatYAML)
		fmt.Fprintf(m.out, "Default audit database: %s\n", cinch.UnifiedAuditPath())
		if err := cinch.ValidateEnvironmentConfig(); err != nil {
			fmt.Fprintf(m.out, "Environment configuration: invalid (%v)\n", err)
		} else {
			fmt.Fprintf(m.out, "Environment configuration: ok\n")
		}
	}
	return nil
}

// handleCompletion generates shell completion scripts for cinch itself
func (m *Manager) handleCompletion(ctx *orpheus.Context) error {
	shell := ctx.GetArg(0)
	commands := "validate render commands run watch audit info completion"

	switch shell {
	case "bash":
		fmt.Fprintf(m.out, "# Bash completion for cinch\n")
		fmt.Fprintf(m.out, "# Add to ~/.bashrc: source <(cinch completion bash)\n")
		fmt.Fprintf(m.out, "_cinch_completion() {\n")
		fmt.Fprintf(m.out, "  COMPREPLY=($(compgen -W '%s' -- \"${COMP_WORDS[COMP_CWORD]}\"))\n", commands)
		fmt.Fprintf(m.out, "}\n")
		fmt.Fprintf(m.out, "complete -F _cinch_completion cinch\n")
	case "zsh":
		fmt.Fprintf(m.out, "#compdef cinch\n")
		fmt.Fprintf(m.out, "# Add to ~/.zshrc: source <(cinch completion zsh)\n")
		fmt.Fprintf(m.out, "_cinch() {\n")
		fmt.Fprintf(m.out, "  _arguments '1: :(%s)'\n", commands)
		fmt.Fprintf(m.out, "}\n")
	case "fish":
		fmt.Fprintf(m.out, "# Fish completion for cinch\n")
		fmt.Fprintf(m.out, "complete -c cinch -f -a '%s'\n", commands)
	default:
		return errors.New(cinch.ErrCodeInvalidConfig, fmt.Sprintf("unsupported shell: %s", shell))
	}
	return nil
}

// lockedWriter serializes writes from the watcher goroutine and the handler
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
