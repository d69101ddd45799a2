// tool.go: Tool facade tying loading, validation, dispatch and exit policy
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"fmt"

	"github.com/agilira/go-errors"
)

// Tool is a command-line tool generated from a specification.
//
//	tool, err := cinch.New("tool.json", cinch.Config{})
//	if err != nil {
//	    fmt.Fprintln(os.Stderr, err)
//	    os.Exit(1)
//	}
//	defer tool.Close()
//	invoked := tool.Execute(os.Args[1:])
//	if invoked["run"] {
//	    // ...
//	}
type Tool struct {
	config      Config
	specPath    string
	spec        *ToolSpecification
	engine      *Engine
	auditLogger *AuditLogger
}

// New loads and validates the specification at specPath. Load and
// validation failures abort construction and are audited when enabled.
func New(specPath string, config Config) (*Tool, error) {
	cfg := config.WithDefaults()
	auditLogger, err := openAuditLogger(cfg)
	if err != nil {
		return nil, err
	}

	tree, err := LoadSpecification(specPath)
	if err != nil {
		if specPath != "" && GetErrorCode(err) == ErrCodeInvalidSpecPath {
			auditLogger.LogSecurityEvent(EventPathRejected, specPath, map[string]interface{}{"reason": err.Error()})
		}
		auditLogger.LogSpecInvalid(specPath, err)
		_ = auditLogger.Close()
		return nil, err
	}
	return newTool(specPath, tree, cfg, auditLogger)
}

// NewFromTree validates an already decoded specification
func NewFromTree(tree Tree, config Config) (*Tool, error) {
	cfg := config.WithDefaults()
	auditLogger, err := openAuditLogger(cfg)
	if err != nil {
		return nil, err
	}
	return newTool("", tree, cfg, auditLogger)
}

func openAuditLogger(cfg *Config) (*AuditLogger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Audit.Enabled {
		return nil, nil
	}
	logger, err := NewAuditLogger(cfg.Audit)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidAuditConfig, "failed to open audit logger")
	}
	return logger, nil
}

func newTool(specPath string, tree Tree, cfg *Config, auditLogger *AuditLogger) (*Tool, error) {
	spec, err := Validate(tree)
	if err != nil {
		auditLogger.LogSpecInvalid(specPath, err)
		_ = auditLogger.Close()
		return nil, err
	}
	auditLogger.LogSpecLoaded(specPath, spec)

	return &Tool{
		config:      *cfg,
		specPath:    specPath,
		spec:        spec,
		engine:      NewEngine(spec, cfg.Suggester),
		auditLogger: auditLogger,
	}, nil
}

// Spec returns the validated specification
func (t *Tool) Spec() *ToolSpecification {
	return t.spec
}

// Engine returns the dispatch engine
func (t *Tool) Engine() *Engine {
	return t.engine
}

// Parse dispatches argv without any side effect besides auditing
func (t *Tool) Parse(argv []string) Outcome {
	outcome := t.engine.Dispatch(argv)
	t.auditLogger.LogDispatch(t.spec.Name, argv, outcome)
	return outcome
}

// Execute dispatches argv and applies the exit policy: rendered messages
// go to Stdout and terminate with 0 when terminal, dispatch errors go to
// Stderr and terminate with 1. It returns the invocation result, or nil
// when a message was shown and Terminate returned.
func (t *Tool) Execute(argv []string) InvocationResult {
	outcome := t.Parse(argv)
	switch outcome.Kind {
	case OutcomeRendered:
		fmt.Fprintln(t.config.Stdout, outcome.Message)
		if outcome.Terminal {
			t.terminate(0)
		}
		return nil
	case OutcomeError:
		fmt.Fprintln(t.config.Stderr, outcome.Message)
		t.terminate(1)
		return nil
	}
	return outcome.Invocation
}

// terminate flushes the audit trail before handing over to Terminate,
// which usually does not return
func (t *Tool) terminate(code int) {
	_ = t.auditLogger.Flush()
	t.config.Terminate(code)
}

// Close flushes and closes the audit logger
func (t *Tool) Close() error {
	return t.auditLogger.Close()
}
