// engine.go: Argument dispatch against a validated specification
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import "fmt"

// InvocationResult maps each matched canonical command name to true.
// A new map is allocated for every dispatch.
type InvocationResult map[string]bool

// OutcomeKind tags the variant held by an Outcome.
type OutcomeKind int

const (
	OutcomeInvocation OutcomeKind = iota
	OutcomeRendered
	OutcomeError
)

// String returns a readable name for the kind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeInvocation:
		return "invocation"
	case OutcomeRendered:
		return "rendered"
	case OutcomeError:
		return "error"
	}
	return "unknown"
}

// Outcome is the result of one dispatch. Exactly one of Invocation,
// Message (Rendered) or Err (Error) is meaningful, as selected by Kind.
// Message is also set for errors and holds the display-ready text.
type Outcome struct {
	Kind       OutcomeKind
	Invocation InvocationResult
	Message    string
	Terminal   bool
	Err        *DispatchError
}

// Suggester proposes a known command close to an unrecognised token.
type Suggester func(token string, known []string) (string, bool)

// NoSuggestion never proposes anything.
func NoSuggestion(string, []string) (string, bool) {
	return "", false
}

var (
	helpTokens    = map[string]bool{"--help": true, "-h": true, "help": true}
	versionTokens = map[string]bool{"--version": true, "-v": true, "version": true}
)

// Engine classifies argument vectors against one specification.
// It holds no mutable state and may be shared between goroutines.
type Engine struct {
	spec      *ToolSpecification
	suggester Suggester
	direct    map[string]string
	aliases   map[string]string
	known     []string
}

// NewEngine builds the lookup tables for spec. A nil suggester means
// NoSuggestion.
func NewEngine(spec *ToolSpecification, suggester Suggester) *Engine {
	if suggester == nil {
		suggester = NoSuggestion
	}
	e := &Engine{
		spec:      spec,
		suggester: suggester,
		direct:    make(map[string]string, len(spec.Commands)*2),
		aliases:   make(map[string]string),
		known:     spec.CommandList(),
	}

	// earlier descriptors win; direct tokens shadow aliases
	for i := range spec.Commands {
		cmd := &spec.Commands[i]
		canonical := cmd.Canonical()
		for _, token := range []string{cmd.RenderedShort(), cmd.RenderedLong(), cmd.Plain} {
			if token == "" {
				continue
			}
			if _, taken := e.direct[token]; !taken {
				e.direct[token] = canonical
			}
		}
	}
	for i := range spec.Commands {
		cmd := &spec.Commands[i]
		if cmd.Alias == "" {
			continue
		}
		if _, taken := e.aliases[cmd.Alias]; !taken {
			e.aliases[cmd.Alias] = cmd.Canonical()
		}
	}
	return e
}

// Spec returns the specification the engine dispatches against
func (e *Engine) Spec() *ToolSpecification {
	return e.spec
}

// Dispatch classifies argv. Tokens are taken in order: invocations
// accumulate into one result, and the first rendered message or the first
// unrecognised token ends the dispatch.
func (e *Engine) Dispatch(argv []string) Outcome {
	if len(argv) == 0 {
		if e.spec.HasGlobalCommand() {
			return Outcome{
				Kind:       OutcomeInvocation,
				Invocation: InvocationResult{GlobalCommandToken: true},
			}
		}
		return e.rendered(e.HelpMessage())
	}

	result := make(InvocationResult, len(argv))
	for _, token := range argv {
		if outcome, done := e.classify(token, result); done {
			return outcome
		}
	}
	return Outcome{Kind: OutcomeInvocation, Invocation: result}
}

// classify handles a single token. done is true when the token ends the
// dispatch with a rendered message or an error.
func (e *Engine) classify(token string, result InvocationResult) (Outcome, bool) {
	if helpTokens[token] {
		if e.spec.HelpMessagesOn() {
			return e.rendered(e.HelpMessage()), true
		}
		result[token] = true
		return Outcome{}, false
	}
	if versionTokens[token] {
		if e.spec.VersionMessagesOn() {
			return e.rendered(e.VersionMessage()), true
		}
		result[token] = true
		return Outcome{}, false
	}

	if canonical, ok := e.Lookup(token); ok {
		result[canonical] = true
		return Outcome{}, false
	}

	suggestion, _ := e.suggester(token, e.known)
	message := e.ErrorMessage(token, suggestion)
	return Outcome{
		Kind:    OutcomeError,
		Message: message,
		Err:     newDispatchError(e.spec.Name, token, suggestion, message),
	}, true
}

// Lookup resolves a token to its canonical command name. Short options,
// long options and plain commands are matched before aliases.
func (e *Engine) Lookup(token string) (string, bool) {
	if canonical, ok := e.direct[token]; ok {
		return canonical, true
	}
	canonical, ok := e.aliases[token]
	return canonical, ok
}

// CommandList returns the tokens recognised besides help and version.
func (e *Engine) CommandList() []string {
	out := make([]string, len(e.known))
	copy(out, e.known)
	return out
}

// HelpMessage renders the usage block
func (e *Engine) HelpMessage() string {
	return fmt.Sprintf("usage: %s\n\n%s", e.spec.Name, e.spec.Description)
}

// VersionMessage renders the version line
func (e *Engine) VersionMessage() string {
	return fmt.Sprintf("%s version %s", e.spec.Name, e.spec.Version)
}

// ErrorMessage renders the message shown for an unrecognised token.
func (e *Engine) ErrorMessage(token, suggestion string) string {
	message := fmt.Sprintf("%s: '%s' is not a %s command. See '%s --help'.",
		e.spec.Name, token, e.spec.Name, e.spec.Name)
	if suggestion != "" {
		message += fmt.Sprintf("\n\nDid you mean '%s'?", suggestion)
	}
	return message
}

func (e *Engine) rendered(message string) Outcome {
	return Outcome{Kind: OutcomeRendered, Message: message, Terminal: true}
}
