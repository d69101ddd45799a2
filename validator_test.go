// validator_test.go: Tests for specification validation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	goerrors "errors"
	"reflect"
	"testing"

	"github.com/agilira/go-errors"
)

func baseTree() Tree {
	return Tree{
		"name":        "tool",
		"description": "A tool",
		"version":     "1.0.0",
	}
}

func withCommands(commands ...map[string]interface{}) Tree {
	tree := baseTree()
	list := make([]interface{}, len(commands))
	for i, cmd := range commands {
		list[i] = cmd
	}
	tree["commands"] = list
	return tree
}

func expectKind(t *testing.T, err error, kind ErrorKind) *ValidationError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", kind)
	}
	var verr *ValidationError
	if !goerrors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if verr.Kind != kind {
		t.Fatalf("expected %s, got %s: %s", kind, verr.Kind, verr.Diagnostic)
	}
	return verr
}

func TestValidateTopLevel(t *testing.T) {
	tests := []struct {
		name  string
		tree  Tree
		kind  ErrorKind
		field string
	}{
		{"empty", Tree{}, KindEmptySpecification, ""},
		{"nil", nil, KindEmptySpecification, ""},
		{"missing name", Tree{"description": "d", "version": "1"}, KindMissingField, "name"},
		{"null name", Tree{"name": nil, "description": "d", "version": "1"}, KindMissingField, "name"},
		{"name not string", Tree{"name": 42.0, "description": "d", "version": "1"}, KindWrongType, "name"},
		{"blank name", Tree{"name": "   ", "description": "d", "version": "1"}, KindEmptyValue, "name"},
		{"multi word name", Tree{"name": "my tool", "description": "d", "version": "1"}, KindMultiWordName, "name"},
		{"missing description", Tree{"name": "t", "version": "1"}, KindMissingField, "description"},
		{"blank description", Tree{"name": "t", "description": " ", "version": "1"}, KindEmptyValue, "description"},
		{"empty description list", Tree{"name": "t", "description": []interface{}{}, "version": "1"}, KindEmptyValue, "description"},
		{"description list element", Tree{"name": "t", "description": []interface{}{"a", 1.0}, "version": "1"}, KindWrongType, "description[1]"},
		{"description number", Tree{"name": "t", "description": 3.0, "version": "1"}, KindWrongType, "description"},
		{"missing version", Tree{"name": "t", "description": "d"}, KindMissingField, "version"},
		{"version not string", Tree{"name": "t", "description": "d", "version": 1.0}, KindWrongType, "version"},
		{"blank version", Tree{"name": "t", "description": "d", "version": ""}, KindEmptyValue, "version"},
		{"help flag not bool", Tree{"name": "t", "description": "d", "version": "1", "default_help_messages_on": "yes"}, KindNonBooleanFlag, "default_help_messages_on"},
		{"version flag not bool", Tree{"name": "t", "description": "d", "version": "1", "default_version_messages_on": 0.0}, KindNonBooleanFlag, "default_version_messages_on"},
		{"global flag not bool", Tree{"name": "t", "description": "d", "version": "1", "global_command": "true"}, KindNonBooleanFlag, "global_command"},
		{"commands not a list", Tree{"name": "t", "description": "d", "version": "1", "commands": map[string]interface{}{}}, KindCommandsNotAList, "commands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Validate(tt.tree)
			if spec != nil {
				t.Errorf("expected nil specification on failure")
			}
			verr := expectKind(t, err, tt.kind)
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if verr.Code() != tt.kind.Code() || GetErrorCode(err) != tt.kind.Code() {
				t.Errorf("expected code %s, got %s", tt.kind.Code(), GetErrorCode(err))
			}
		})
	}
}

func TestValidateMissingNameReportedFirst(t *testing.T) {
	// every other field is broken as well
	tree := Tree{"description": 1.0, "version": 2.0, "commands": "nope"}
	verr := expectKind(t, func() error { _, err := Validate(tree); return err }(), KindMissingField)
	if verr.Field != "name" {
		t.Errorf("expected name, got %q", verr.Field)
	}
}

func TestValidateNormalization(t *testing.T) {
	tree := Tree{
		"name":        "  MyTool  ",
		"description": []interface{}{"Line one. ", "Line two."},
		"version":     "2.1",
	}
	spec, err := Validate(tree)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if spec.Name != "mytool" {
		t.Errorf("expected name mytool, got %q", spec.Name)
	}
	if spec.Description != "Line one. Line two." {
		t.Errorf("expected joined description, got %q", spec.Description)
	}
	if !spec.HelpMessagesOn() || !spec.VersionMessagesOn() || spec.HasGlobalCommand() {
		t.Errorf("unexpected defaults: %+v", spec)
	}
	if spec.Commands != nil {
		t.Errorf("expected nil commands, got %v", spec.Commands)
	}
	if tree["name"] != "  MyTool  " {
		t.Errorf("input tree was modified: %v", tree["name"])
	}
}

func TestValidateCommands(t *testing.T) {
	tests := []struct {
		name  string
		tree  Tree
		kind  ErrorKind
		index int
	}{
		{"element not object", func() Tree {
			tree := baseTree()
			tree["commands"] = []interface{}{"run"}
			return tree
		}(), KindWrongType, 1},
		{"empty object", withCommands(map[string]interface{}{}), KindEmptyCommandObject, 1},
		{"unknown key", withCommands(map[string]interface{}{"plain": "run", "description": "d", "flag": true}), KindUnknownCommandKey, 1},
		{"only description", withCommands(map[string]interface{}{"description": "d"}), KindCommandMissingDescriptor, 1},
		{"only plain", withCommands(map[string]interface{}{"plain": "run"}), KindCommandMissingDescription, 1},
		{"only alias", withCommands(map[string]interface{}{"alias": "r"}), KindCommandMissingDescriptor, 1},
		{"alias and description", withCommands(map[string]interface{}{"alias": "r", "description": "d"}), KindCommandMissingDescriptor, 1},
		{"plain and alias", withCommands(map[string]interface{}{"plain": "run", "alias": "r"}), KindCommandMissingDescription, 1},
		{"global with description", withCommands(map[string]interface{}{"global_command": true, "description": "d"}), KindGlobalCommandFieldConflict, 1},
		{"global not bool", withCommands(map[string]interface{}{"global_command": "yes"}), KindNonBooleanFlag, 1},
		{"short not string", withCommands(map[string]interface{}{"short-option": 1.0, "description": "d"}), KindWrongType, 1},
		{"long not string", withCommands(map[string]interface{}{"long-option": true, "description": "d"}), KindWrongType, 1},
		{"blank description", withCommands(map[string]interface{}{"plain": "run", "description": ""}), KindEmptyValue, 1},
		{"description list of numbers", withCommands(map[string]interface{}{"plain": "run", "description": []interface{}{1.0}}), KindWrongType, 1},
		{"short too long", withCommands(map[string]interface{}{"short-option": "ab", "description": "d"}), KindInvalidShortOptionLength, 1},
		{"short empty", withCommands(map[string]interface{}{"short-option": "", "description": "d"}), KindInvalidShortOptionLength, 1},
		{"second command broken", withCommands(
			map[string]interface{}{"plain": "run", "description": "d"},
			map[string]interface{}{"plain": "stop"},
		), KindCommandMissingDescription, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.tree)
			verr := expectKind(t, err, tt.kind)
			if verr.Index != tt.index {
				t.Errorf("expected index %d, got %d", tt.index, verr.Index)
			}
		})
	}
}

func TestValidateDuplicateDescriptors(t *testing.T) {
	tests := []struct {
		name     string
		first    map[string]interface{}
		second   map[string]interface{}
		kind     DescriptorKind
		value    string
		rejected bool
	}{
		{"short", map[string]interface{}{"short-option": "x", "description": "a"},
			map[string]interface{}{"short-option": "x", "description": "b"}, DescriptorShort, "x", true},
		{"long", map[string]interface{}{"long-option": "all", "description": "a"},
			map[string]interface{}{"long-option": "all", "description": "b"}, DescriptorLong, "all", true},
		{"plain", map[string]interface{}{"plain": "run", "description": "a"},
			map[string]interface{}{"plain": "run", "description": "b"}, DescriptorPlain, "run", true},
		{"short and plain may share a literal", map[string]interface{}{"short-option": "x", "description": "a"},
			map[string]interface{}{"plain": "x", "description": "b"}, "", "", false},
		{"long and plain may share a literal", map[string]interface{}{"long-option": "run", "description": "a"},
			map[string]interface{}{"plain": "run", "description": "b"}, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(withCommands(tt.first, tt.second))
			if !tt.rejected {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			verr := expectKind(t, err, KindDuplicateDescriptor)
			if verr.DescriptorKind != tt.kind || verr.Index != 2 || verr.OriginalIndex != 1 || verr.Value != tt.value {
				t.Errorf("unexpected error fields: kind=%s index=%d original=%d value=%v",
					verr.DescriptorKind, verr.Index, verr.OriginalIndex, verr.Value)
			}
		})
	}
}

func TestValidateDuplicateGlobalCommand(t *testing.T) {
	_, err := Validate(withCommands(
		map[string]interface{}{"global_command": true},
		map[string]interface{}{"plain": "run", "description": "d"},
		map[string]interface{}{"global_command": true},
	))
	verr := expectKind(t, err, KindDuplicateGlobalCommand)
	if verr.Index != 3 || verr.OriginalIndex != 1 {
		t.Errorf("expected index 3 and original 1, got %d and %d", verr.Index, verr.OriginalIndex)
	}

	// a false marker does not count
	if _, err := Validate(withCommands(
		map[string]interface{}{"global_command": false},
		map[string]interface{}{"global_command": true},
	)); err != nil {
		t.Errorf("expected success, got %v", err)
	}
}

func TestValidateDescriptors(t *testing.T) {
	spec, err := Validate(withCommands(
		map[string]interface{}{"global_command": true},
		map[string]interface{}{"short-option": "f", "long-option": "force", "alias": "F", "description": []interface{}{"skip ", "checks"}},
		map[string]interface{}{"plain": "run", "description": "runs it"},
	))
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(spec.Commands) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(spec.Commands))
	}
	if !spec.HasGlobalCommand() {
		t.Error("expected global command from descriptor marker")
	}

	force := spec.Commands[1]
	if force.Index != 2 || force.Description != "skip checks" || force.Canonical() != "--force" {
		t.Errorf("unexpected descriptor: %+v", force)
	}

	want := []string{"-f", "--force", "F", "run"}
	if got := spec.CommandList(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected command list %v, got %v", want, got)
	}
}

func TestValidateAcceptsTypedLists(t *testing.T) {
	tree := baseTree()
	tree["description"] = []string{"typed ", "list"}
	tree["commands"] = []map[string]interface{}{{"plain": "run", "description": "d"}}

	spec, err := Validate(tree)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if spec.Description != "typed list" || len(spec.Commands) != 1 {
		t.Errorf("unexpected specification: %+v", spec)
	}
}

func TestValidateIdempotent(t *testing.T) {
	f := false
	trees := []Tree{
		baseTree(),
		{
			"name":                        " Deploy ",
			"description":                 []interface{}{"Ships ", "builds"},
			"version":                     "3",
			"default_help_messages_on":    false,
			"default_version_messages_on": true,
			"global_command":              f,
			"commands": []interface{}{
				map[string]interface{}{"global_command": true},
				map[string]interface{}{"short-option": "q", "description": "quiet"},
				map[string]interface{}{"long-option": "all", "alias": "a", "description": []interface{}{"every", "thing"}},
				map[string]interface{}{"plain": "run", "description": "run", "alias": "r"},
			},
		},
		func() Tree {
			tree := baseTree()
			tree["commands"] = []interface{}{}
			return tree
		}(),
	}

	for i, tree := range trees {
		first, err := Validate(tree)
		if err != nil {
			t.Fatalf("tree %d: Validate failed: %v", i, err)
		}
		second, err := Validate(first.Tree())
		if err != nil {
			t.Fatalf("tree %d: revalidation failed: %v", i, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Errorf("tree %d: not idempotent\nfirst:  %+v\nsecond: %+v", i, first, second)
		}
	}
}

func TestValidationErrorFormatting(t *testing.T) {
	_, err := Validate(withCommands(map[string]interface{}{"short-option": "ab", "description": "d"}))
	verr := expectKind(t, err, KindInvalidShortOptionLength)

	if !IsValidationError(err) {
		t.Error("IsValidationError should report true")
	}
	if verr.UserNote() != UserNote {
		t.Errorf("unexpected user note %q", verr.UserNote())
	}
	if verr.Value != "ab" {
		t.Errorf("expected value ab, got %v", verr.Value)
	}
	msg := err.Error()
	if len(msg) == 0 || msg[0] != '[' {
		t.Errorf("expected coded error string, got %q", msg)
	}
}

func TestValidationErrorCarriesStructuredCause(t *testing.T) {
	_, err := Validate(withCommands(map[string]interface{}{"short-option": "ab", "description": "d"}))
	verr := expectKind(t, err, KindInvalidShortOptionLength)

	var coded *errors.Error
	if !goerrors.As(verr.Unwrap(), &coded) {
		t.Fatalf("expected *errors.Error cause, got %T", verr.Unwrap())
	}
	if coded.Code != errors.ErrorCode(ErrCodeInvalidShortOptionLength) {
		t.Errorf("cause code = %s, want %s", coded.Code, ErrCodeInvalidShortOptionLength)
	}
	if !errors.HasCode(err, errors.ErrorCode(verr.Code())) {
		t.Error("HasCode should find the kind code in the chain")
	}
	if coded.Context["kind"] != KindInvalidShortOptionLength.String() {
		t.Errorf("unexpected kind context %v", coded.Context["kind"])
	}
	if err.Error() != coded.Error() {
		t.Errorf("Error() = %q, cause = %q", err.Error(), coded.Error())
	}
}
