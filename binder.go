// binder.go - binding invocation results to host variables
//
// Hosts bind canonical command names to their own variables once and apply
// the binding after every dispatch:
//
//	var force, status bool
//	err := cinch.BindInvocation(tool.Spec(), result).
//	    Bool(&force, "--force").
//	    Bool(&status, "status").
//	    Apply()
//
// Names are checked against the specification, so a misspelt name fails at
// Apply instead of silently staying false.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"fmt"

	"github.com/agilira/go-errors"
)

type bindKind uint8

const (
	bindBool bindKind = iota
	bindFirst
)

type binding struct {
	kind       bindKind
	boolTarget *bool
	strTarget  *string
	names      []string
}

// InvocationBinder copies an InvocationResult into host variables
type InvocationBinder struct {
	known    map[string]bool
	result   InvocationResult
	bindings []binding
	err      error
}

// BindInvocation starts a binding of result, which must come from spec
func BindInvocation(spec *ToolSpecification, result InvocationResult) *InvocationBinder {
	known := make(map[string]bool, len(spec.Commands))
	for i := range spec.Commands {
		known[spec.Commands[i].Canonical()] = true
	}
	return &InvocationBinder{
		known:    known,
		result:   result,
		bindings: make([]binding, 0, 8),
	}
}

// Bool binds target to whether the canonical name was matched
func (b *InvocationBinder) Bool(target *bool, name string) *InvocationBinder {
	if b.err != nil {
		return b
	}
	if target == nil {
		b.err = errors.New(ErrCodeInvalidConfig, "binding target cannot be nil").
			WithContext("name", name)
		return b
	}
	b.bindings = append(b.bindings, binding{kind: bindBool, boolTarget: target, names: []string{name}})
	return b
}

// First binds target to the first of names that was matched, or "" if
// none was. Useful for mutually exclusive subcommands.
func (b *InvocationBinder) First(target *string, names ...string) *InvocationBinder {
	if b.err != nil {
		return b
	}
	if target == nil || len(names) == 0 {
		b.err = errors.New(ErrCodeInvalidConfig, "binding needs a target and at least one name")
		return b
	}
	b.bindings = append(b.bindings, binding{kind: bindFirst, strTarget: target, names: names})
	return b
}

// Apply checks every bound name and writes the targets. Targets are left
// untouched when any name is unknown.
func (b *InvocationBinder) Apply() error {
	if b.err != nil {
		return b.err
	}

	for _, bind := range b.bindings {
		for _, name := range bind.names {
			if !b.known[name] {
				return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("'%s' is not a canonical command name of this specification", name)).
					WithContext("name", name)
			}
		}
	}

	for _, bind := range b.bindings {
		switch bind.kind {
		case bindBool:
			*bind.boolTarget = b.result[bind.names[0]]
		case bindFirst:
			*bind.strTarget = ""
			for _, name := range bind.names {
				if b.result[name] {
					*bind.strTarget = name
					break
				}
			}
		}
	}
	return nil
}
