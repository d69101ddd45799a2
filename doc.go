// Package cinch turns a declarative tool specification into a working
// command-line interface.
//
// A specification is a JSON (or YAML) document describing a tool: its name,
// description and version, and a list of command descriptors. Cinch
// validates the document once, then classifies argument vectors against it.
//
// # Specification
//
//	{
//	  "name": "deploy",
//	  "description": ["Ships the current build. ", "Use with care."],
//	  "version": "1.4.0",
//	  "commands": [
//	    {"plain": "run", "alias": "r", "description": "run the deployment"},
//	    {"short-option": "f", "long-option": "force", "description": "skip checks"},
//	    {"global_command": true}
//	  ]
//	}
//
// Each descriptor has at least one of short-option, long-option, plain or
// global_command. Short options, long options and plain commands are each
// unique across the list; at most one descriptor marks the global command,
// and that descriptor carries nothing else.
//
// # Validation
//
// Validate checks a decoded tree and returns a *ToolSpecification or the
// first defect as a *ValidationError:
//
//	tree, err := cinch.LoadSpecification("deploy.json")
//	if err != nil {
//		log.Fatal(err)
//	}
//	spec, err := cinch.Validate(tree)
//	if err != nil {
//		var verr *cinch.ValidationError
//		if goerrors.As(err, &verr) {
//			log.Fatalf("%s (%s)", verr.Diagnostic, verr.Kind)
//		}
//	}
//
// Validation never modifies the input tree. The name is trimmed and
// lowercased and a list description is concatenated without separators.
// Validating spec.Tree() again yields an identical specification.
//
// # Dispatch
//
// An Engine classifies argument vectors without side effects:
//
//	engine := cinch.NewEngine(spec, nil)
//	switch outcome := engine.Dispatch(os.Args[1:]); outcome.Kind {
//	case cinch.OutcomeInvocation:
//		if outcome.Invocation["run"] { ... }
//	case cinch.OutcomeRendered:
//		fmt.Println(outcome.Message) // help or version
//	case cinch.OutcomeError:
//		fmt.Fprintln(os.Stderr, outcome.Message)
//	}
//
// With no arguments the outcome is {"global_command": true} when the tool
// declares a global command, and the help message otherwise. The tokens
// --help, -h and help render help unless default_help_messages_on is false,
// in which case they are reported as ordinary invocations; --version, -v
// and version behave the same way for the version line. Several tokens are
// classified in order and collected into one InvocationResult; the first
// unrecognised token produces an error naming the tool and the token.
//
// # Tool
//
// Tool wraps loading, validation, dispatch, auditing and the exit policy.
// Execute prints help and version messages to Config.Stdout and exits with
// 0, prints dispatch errors to Config.Stderr and exits with 1, and returns
// the invocation result otherwise. Config.Terminate replaces os.Exit in tests.
//
// # Audit
//
// When Config.Audit is enabled, specification loads, validation failures
// and dispatches are recorded by an AuditLogger backed by SQLite (default)
// or a JSONL file. The trail can be queried, summarised and cleaned up, and
// the cinch command exposes the same operations.
//
// # Watching
//
// SpecWatcher polls a specification file and delivers the revalidated
// specification, or the error, to a callback after each change.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package cinch
