// validator.go: Structural validation of tool specifications
//
// Validate walks a decoded specification tree once, in a fixed order, and
// stops at the first defect. The input tree is never modified.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

var allowedCommandKeys = map[string]bool{
	KeyShortOption:   true,
	KeyLongOption:    true,
	KeyPlain:         true,
	KeyDescription:   true,
	KeyGlobalCommand: true,
	KeyAlias:         true,
}

// Validate checks tree for structural correctness and returns the normalized
// specification. Failures are always *ValidationError.
func Validate(tree Tree) (*ToolSpecification, error) {
	if len(tree) == 0 {
		return nil, newValidationError(KindEmptySpecification,
			"the specification has no fields; it must at least define name, description and version").seal()
	}

	spec := &ToolSpecification{}

	name, err := validateName(tree)
	if err != nil {
		return nil, err
	}
	spec.Name = name

	description, err := validateDescription(tree, KeyDescription, true, 0)
	if err != nil {
		return nil, err
	}
	spec.Description = description

	version, err := requireString(tree, KeyVersion)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(version) == "" {
		return nil, emptyValue(KeyVersion, version, 0)
	}
	spec.Version = version

	if spec.DefaultHelpMessagesOn, err = optionalBool(tree, KeyDefaultHelpMessagesOn, KeyDefaultHelpMessagesOn, 0); err != nil {
		return nil, err
	}
	if spec.DefaultVersionMessagesOn, err = optionalBool(tree, KeyDefaultVersionMessagesOn, KeyDefaultVersionMessagesOn, 0); err != nil {
		return nil, err
	}
	if spec.GlobalCommand, err = optionalBool(tree, KeyGlobalCommand, KeyGlobalCommand, 0); err != nil {
		return nil, err
	}

	if raw, ok := present(tree, KeyCommands); ok {
		commands, err := validateCommands(raw)
		if err != nil {
			return nil, err
		}
		spec.Commands = commands
	}

	return spec, nil
}

func validateName(tree Tree) (string, error) {
	name, err := requireString(tree, KeyName)
	if err != nil {
		return "", err
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", emptyValue(KeyName, name, 0)
	}
	if len(strings.Fields(trimmed)) > 1 {
		e := newValidationError(KindMultiWordName, fmt.Sprintf(
			"name %q contains several words; the name must be a single word (consider hyphenating it)", name))
		e.Field = KeyName
		e.Value = name
		return "", e.seal()
	}
	return strings.ToLower(trimmed), nil
}

// validateDescription accepts a string or a list of strings and returns the
// joined text. index is 0 for the top-level field.
func validateDescription(node map[string]interface{}, field string, required bool, index int) (string, error) {
	raw, ok := present(node, KeyDescription)
	if !ok {
		if required {
			return "", missingField(field)
		}
		return "", nil
	}

	switch value := raw.(type) {
	case string:
		if strings.TrimSpace(value) == "" {
			return "", emptyValue(field, value, index)
		}
		return value, nil
	case []string:
		return joinDescription(field, toInterfaces(value), index)
	case []interface{}:
		return joinDescription(field, value, index)
	}
	return "", wrongType(field, "string or list of strings", raw, index)
}

func joinDescription(field string, parts []interface{}, index int) (string, error) {
	if len(parts) == 0 {
		return "", emptyValue(field, parts, index)
	}
	var b strings.Builder
	for i, part := range parts {
		s, ok := part.(string)
		if !ok {
			return "", wrongType(fmt.Sprintf("%s[%d]", field, i), "string", part, index)
		}
		b.WriteString(s)
	}
	joined := b.String()
	if strings.TrimSpace(joined) == "" {
		return "", emptyValue(field, parts, index)
	}
	return joined, nil
}

func validateCommands(raw interface{}) ([]CommandDescriptor, error) {
	elements, ok := asList(raw)
	if !ok {
		e := newValidationError(KindCommandsNotAList, fmt.Sprintf(
			"commands is %s (%v); it must be a list of command objects", typeName(raw), raw))
		e.Field = KeyCommands
		e.Expected = "list"
		e.Value = raw
		return nil, e.seal()
	}

	nodes := make([]map[string]interface{}, len(elements))
	for i, element := range elements {
		node, ok := asObject(element)
		if !ok {
			return nil, wrongType(fmt.Sprintf("%s[%d]", KeyCommands, i+1), "object", element, i+1)
		}
		if len(node) == 0 {
			e := newValidationError(KindEmptyCommandObject, fmt.Sprintf(
				"command %d is an empty object; each command needs a descriptor and a description", i+1))
			e.Index = i + 1
			return nil, e.seal()
		}
		nodes[i] = node
	}

	v := &commandValidator{
		shorts:      make(map[string]int),
		longs:       make(map[string]int),
		plains:      make(map[string]int),
		descriptors: make([]CommandDescriptor, 0, len(nodes)),
	}
	for i, node := range nodes {
		if err := v.validate(node, i+1); err != nil {
			return nil, err
		}
	}
	return v.descriptors, nil
}

type commandValidator struct {
	globalIndex int
	shorts      map[string]int
	longs       map[string]int
	plains      map[string]int
	descriptors []CommandDescriptor
}

func (v *commandValidator) validate(node map[string]interface{}, index int) error {
	for _, key := range sortedKeys(node) {
		if !allowedCommandKeys[key] {
			e := newValidationError(KindUnknownCommandKey, fmt.Sprintf(
				"command %d has unknown key %q; allowed keys are short-option, long-option, plain, description, global_command and alias",
				index, key))
			e.Index = index
			e.Key = key
			return e.seal()
		}
	}

	_, hasGlobal := node[KeyGlobalCommand]
	_, hasShort := node[KeyShortOption]
	_, hasLong := node[KeyLongOption]
	_, hasPlain := node[KeyPlain]
	_, hasDescription := present(node, KeyDescription)
	hasDescriptor := hasShort || hasLong || hasPlain

	if len(node) == 1 && !hasGlobal {
		if hasDescriptor {
			return missingDescription(index)
		}
		return missingDescriptor(index)
	}
	if !hasDescriptor && !hasGlobal {
		return missingDescriptor(index)
	}
	if hasGlobal && len(node) > 1 {
		e := newValidationError(KindGlobalCommandFieldConflict, fmt.Sprintf(
			"command %d sets global_command together with other keys; the global command entry must contain only global_command",
			index))
		e.Index = index
		e.Field = KeyGlobalCommand
		return e.seal()
	}
	if !hasGlobal && !hasDescription {
		return missingDescription(index)
	}

	cmd := CommandDescriptor{Index: index}
	var err error

	field := func(key string) string { return fmt.Sprintf("%s[%d].%s", KeyCommands, index, key) }

	if cmd.GlobalCommand, err = optionalBool(node, KeyGlobalCommand, field(KeyGlobalCommand), index); err != nil {
		return err
	}
	if cmd.ShortOption, err = optionalString(node, KeyShortOption, field(KeyShortOption), index, false); err != nil {
		return err
	}
	if cmd.LongOption, err = optionalString(node, KeyLongOption, field(KeyLongOption), index, true); err != nil {
		return err
	}
	if cmd.Plain, err = optionalString(node, KeyPlain, field(KeyPlain), index, true); err != nil {
		return err
	}
	if cmd.Alias, err = optionalString(node, KeyAlias, field(KeyAlias), index, false); err != nil {
		return err
	}
	if cmd.Description, err = validateDescription(node, field(KeyDescription), false, index); err != nil {
		return err
	}

	if hasShort && utf8.RuneCountInString(cmd.ShortOption) != 1 {
		e := newValidationError(KindInvalidShortOptionLength, fmt.Sprintf(
			"command %d has short-option %q; a short option must be exactly one character", index, cmd.ShortOption))
		e.Index = index
		e.Field = field(KeyShortOption)
		e.Value = cmd.ShortOption
		return e.seal()
	}

	if cmd.IsGlobalMarker() {
		if v.globalIndex > 0 {
			e := newValidationError(KindDuplicateGlobalCommand, fmt.Sprintf(
				"command %d sets global_command to true but command %d already does; only one global command is allowed",
				index, v.globalIndex))
			e.Index = index
			e.OriginalIndex = v.globalIndex
			e.Field = KeyGlobalCommand
			return e.seal()
		}
		v.globalIndex = index
	}

	if hasShort {
		if err := claim(v.shorts, cmd.RenderedShort(), cmd.ShortOption, DescriptorShort, index); err != nil {
			return err
		}
	}
	if hasLong {
		if err := claim(v.longs, cmd.RenderedLong(), cmd.LongOption, DescriptorLong, index); err != nil {
			return err
		}
	}
	if hasPlain {
		if err := claim(v.plains, cmd.Plain, cmd.Plain, DescriptorPlain, index); err != nil {
			return err
		}
	}

	v.descriptors = append(v.descriptors, cmd)
	return nil
}

// claim records rendered in set, failing if an earlier command already did.
func claim(set map[string]int, rendered, raw string, kind DescriptorKind, index int) error {
	if original, taken := set[rendered]; taken {
		e := newValidationError(KindDuplicateDescriptor, fmt.Sprintf(
			"command %d repeats the %s descriptor %q already declared by command %d; %s descriptors must be unique",
			index, kind, rendered, original, kind))
		e.DescriptorKind = kind
		e.Index = index
		e.OriginalIndex = original
		e.Value = raw
		return e.seal()
	}
	set[rendered] = index
	return nil
}

func missingDescriptor(index int) error {
	e := newValidationError(KindCommandMissingDescriptor, fmt.Sprintf(
		"command %d has no descriptor; it needs at least one of short-option, long-option, plain or global_command", index))
	e.Index = index
	return e.seal()
}

func missingDescription(index int) error {
	e := newValidationError(KindCommandMissingDescription, fmt.Sprintf(
		"command %d has no description; every command except the global command entry needs one", index))
	e.Index = index
	e.Field = KeyDescription
	return e.seal()
}

func missingField(field string) error {
	e := newValidationError(KindMissingField, fmt.Sprintf(
		"the specification does not define %s, which is required", field))
	e.Field = field
	return e.seal()
}

func wrongType(field, expected string, value interface{}, index int) error {
	e := newValidationError(KindWrongType, fmt.Sprintf(
		"%s is %s (%v); expected %s", field, typeName(value), value, expected))
	e.Field = field
	e.Expected = expected
	e.Value = value
	e.Index = index
	return e.seal()
}

func emptyValue(field string, value interface{}, index int) error {
	e := newValidationError(KindEmptyValue, fmt.Sprintf(
		"%s is empty (%q); it must contain non-space characters", field, fmt.Sprint(value)))
	e.Field = field
	e.Value = value
	e.Index = index
	return e.seal()
}

// present treats a key holding null the same as a missing key.
func present(node map[string]interface{}, key string) (interface{}, bool) {
	value, ok := node[key]
	if !ok || value == nil {
		return nil, false
	}
	return value, true
}

func requireString(node map[string]interface{}, key string) (string, error) {
	raw, ok := present(node, key)
	if !ok {
		return "", missingField(key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", wrongType(key, "string", raw, 0)
	}
	return s, nil
}

func optionalString(node map[string]interface{}, key, field string, index int, nonEmpty bool) (string, error) {
	raw, ok := node[key]
	if !ok {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", wrongType(field, "string", raw, index)
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		return "", emptyValue(field, s, index)
	}
	return s, nil
}

func optionalBool(node map[string]interface{}, key, field string, index int) (*bool, error) {
	raw, ok := node[key]
	if !ok {
		return nil, nil
	}
	b, ok := raw.(bool)
	if !ok {
		e := newValidationError(KindNonBooleanFlag, fmt.Sprintf(
			"%s is %s (%v); it only accepts true or false", field, typeName(raw), raw))
		e.Field = field
		e.Expected = "boolean"
		e.Value = raw
		e.Index = index
		return nil, e.seal()
	}
	return &b, nil
}

func asList(raw interface{}) ([]interface{}, bool) {
	switch list := raw.(type) {
	case []interface{}:
		return list, true
	case []map[string]interface{}:
		out := make([]interface{}, len(list))
		for i := range list {
			out[i] = list[i]
		}
		return out, true
	case []Tree:
		out := make([]interface{}, len(list))
		for i := range list {
			out[i] = map[string]interface{}(list[i])
		}
		return out, true
	}
	return nil, false
}

func asObject(raw interface{}) (map[string]interface{}, bool) {
	switch obj := raw.(type) {
	case map[string]interface{}:
		return obj, true
	case Tree:
		return obj, true
	}
	return nil, false
}

func sortedKeys(node map[string]interface{}) []string {
	keys := make([]string, 0, len(node))
	for key := range node {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func typeName(value interface{}) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case int, int64, float64, uint64:
		return "a number"
	case []interface{}, []string:
		return "a list"
	case map[string]interface{}, Tree:
		return "an object"
	}
	return fmt.Sprintf("a %T", value)
}
