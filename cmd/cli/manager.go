// Package cli provides the cinch developer command-line interface.
//
// The CLI validates specification files, renders the messages a generated
// tool would show, dispatches argument vectors against a specification,
// watches a specification for changes and manages the audit trail.
// It is built on the Orpheus framework.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"io"
	"os"

	"github.com/agilira/cinch"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Version of the cinch CLI
const Version = "1.0.0"

// Manager routes cinch CLI commands to their handlers.
type Manager struct {
	app         *orpheus.App
	auditLogger *cinch.AuditLogger // optional
	out         io.Writer
}

// NewManager creates a CLI manager writing to os.Stdout
func NewManager() *Manager {
	app := orpheus.New("cinch").
		SetDescription("Declarative command-line interfaces from JSON specifications").
		SetVersion(Version)

	manager := &Manager{
		app: app,
		out: os.Stdout,
	}

	manager.setupSpecCommands()
	manager.setupEditCommands()
	manager.setupWatchCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithAudit records every CLI command in the given audit trail and enables
// the audit subcommands.
func (m *Manager) WithAudit(auditLogger *cinch.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// SetOutput redirects command output
func (m *Manager) SetOutput(w io.Writer) *Manager {
	m.out = w
	return m
}

// Run executes the CLI with args (without the program name).
//
// "run" is routed before Orpheus sees the arguments: its tokens belong to
// the described tool and must reach the engine verbatim, flags included.
func (m *Manager) Run(args []string) error {
	if len(args) > 0 && args[0] == "run" {
		err := m.handleRun(args[1:])
		m.auditLogger.LogCommand("run", args[1:], err)
		return err
	}
	return m.app.Run(args)
}

// Command Setup Methods

// setupSpecCommands configures commands that inspect a specification file
func (m *Manager) setupSpecCommands() {
	validateCmd := orpheus.NewCommand("validate", "Validate a specification file").
		AddFlag("format", "f", "auto", "File format (auto|json|yaml)").
		AddBoolFlag("verbose", "v", false, "Print the normalized specification").
		SetHandler(m.audited("validate", m.handleValidate))
	m.app.AddCommand(validateCmd)

	// render help|version|error <spec> [token]
	renderCmd := orpheus.NewCommand("render", "Render the messages a generated tool would print")

	helpCmd := renderCmd.Subcommand("help", "Render the help message", m.audited("render_help", m.handleRenderHelp))
	helpCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")

	versionCmd := renderCmd.Subcommand("version", "Render the version message", m.audited("render_version", m.handleRenderVersion))
	versionCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")

	errorCmd := renderCmd.Subcommand("error", "Render the message for an unrecognised token", m.audited("render_error", m.handleRenderError))
	errorCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")

	m.app.AddCommand(renderCmd)

	commandsCmd := orpheus.NewCommand("commands", "List the tokens a specification recognises").
		AddFlag("format", "f", "auto", "File format (auto|json|yaml)").
		AddBoolFlag("json", "j", false, "Print the normalized specification as JSON").
		SetHandler(m.audited("commands", m.handleCommands))
	m.app.AddCommand(commandsCmd)

	// run is dispatched in Run; registered here so it shows up in help
	runCmd := orpheus.NewCommand("run", "Dispatch tokens against a specification: run <spec> [tokens...]").
		SetHandler(func(_ *orpheus.Context) error {
			return m.handleRun(nil)
		})
	m.app.AddCommand(runCmd)
}

// setupEditCommands configures editing of specification files
func (m *Manager) setupEditCommands() {
	specCmd := orpheus.NewCommand("spec", "Edit specification files")

	// spec get <spec> <key>
	getCmd := specCmd.Subcommand("get", "Get a value by dot-notation key", m.audited("spec_get", m.handleSpecGet))
	getCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")

	setCmd := specCmd.Subcommand("set", "Set a value and save the specification", m.audited("spec_set", m.handleSpecSet))
	setCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")

	deleteCmd := specCmd.Subcommand("delete", "Delete a key and save the specification", m.audited("spec_delete", m.handleSpecDelete))
	deleteCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")

	listCmd := specCmd.Subcommand("list", "List all keys and values", m.audited("spec_list", m.handleSpecList))
	listCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")
	listCmd.AddFlag("prefix", "p", "", "Only keys starting with prefix")

	convertCmd := specCmd.Subcommand("convert", "Convert a specification between JSON and YAML", m.audited("spec_convert", m.handleSpecConvert))
	convertCmd.AddFlag("from", "", "auto", "Input format (auto|json|yaml)")
	convertCmd.AddFlag("to", "", "auto", "Output format (auto|json|yaml)")

	initCmd := specCmd.Subcommand("init", "Create a specification from a template", m.audited("spec_init", m.handleSpecInit))
	initCmd.AddFlag("format", "f", "auto", "File format (auto|json|yaml)")
	initCmd.AddFlag("template", "t", "default", "Template (minimal|default)")
	initCmd.AddFlag("name", "n", "mytool", "Tool name")

	m.app.AddCommand(specCmd)
}

// setupWatchCommands configures specification watching
func (m *Manager) setupWatchCommands() {
	watchCmd := orpheus.NewCommand("watch", "Revalidate a specification whenever it changes")

	// watch <spec> [--interval=2s] [--for=0]
	watchCmd.SetHandler(m.audited("watch", m.handleWatch))
	watchCmd.AddFlag("interval", "i", "2s", "Polling interval")
	watchCmd.AddFlag("for", "d", "0", "Stop after this long (0 waits for Ctrl+C)")
	watchCmd.AddBoolFlag("verbose", "v", false, "Print the command list after each reload")

	m.app.AddCommand(watchCmd)
}

// setupUtilityCommands configures audit management, diagnostics and completion
func (m *Manager) setupUtilityCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit trail management")

	queryCmd := auditCmd.Subcommand("query", "Query audit events", m.audited("audit_query", m.handleAuditQuery))
	queryCmd.AddFlag("since", "s", "24h", "Time range (e.g., 24h, 7d, 2w)")
	queryCmd.AddFlag("event", "e", "", "Event type filter")
	queryCmd.AddFlag("tool", "t", "", "Tool name filter")
	queryCmd.AddFlag("level", "L", "info", "Minimum level (info|warn|critical|security)")
	queryCmd.AddIntFlag("limit", "l", 100, "Maximum results")
	queryCmd.AddBoolFlag("json", "j", false, "Print events as JSON lines")

	auditCmd.Subcommand("stats", "Show audit trail statistics", m.audited("audit_stats", m.handleAuditStats))

	cleanupCmd := auditCmd.Subcommand("cleanup", "Remove old audit events", m.audited("audit_cleanup", m.handleAuditCleanup))
	cleanupCmd.AddFlag("older-than", "o", "30d", "Delete entries older than")
	cleanupCmd.AddBoolFlag("dry-run", "d", false, "Show what would be deleted")

	m.app.AddCommand(auditCmd)

	infoCmd := orpheus.NewCommand("info", "System information and diagnostics")
	infoCmd.SetHandler(m.handleInfo)
	infoCmd.AddBoolFlag("verbose", "v", false, "Verbose system information")
	m.app.AddCommand(infoCmd)

	completionCmd := orpheus.NewCommand("completion", "Generate shell completion scripts")
	completionCmd.SetHandler(m.handleCompletion)
	m.app.AddCommand(completionCmd)
}

// audited records the command in the audit trail once the handler returns
func (m *Manager) audited(name string, handler func(*orpheus.Context) error) func(*orpheus.Context) error {
	return func(ctx *orpheus.Context) error {
		err := handler(ctx)
		m.auditLogger.LogCommand(name, []string{ctx.GetArg(0)}, err)
		return err
	}
}
