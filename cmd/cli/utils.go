// Utility functions for the cinch CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/cinch"
	"github.com/agilira/go-errors"
)

var extendedDuration = regexp.MustCompile(`^(\d+)(d|w)$`)

// parseFormat maps a --format value to a specification format. "auto" and
// "" detect it from the file extension.
func parseFormat(path, explicit string) (cinch.SpecFormat, error) {
	switch strings.ToLower(explicit) {
	case "", "auto":
		return cinch.DetectFormat(path), nil
	case "json":
		return cinch.FormatJSON, nil
	case "yaml", "yml":
		return cinch.FormatYAML, nil
	}
	return 0, errors.New(cinch.ErrCodeUnsupportedFormat, fmt.Sprintf("unsupported format: %s", explicit))
}

// loadSpec reads and validates the specification at path
func (m *Manager) loadSpec(path, format string) (*cinch.ToolSpecification, error) {
	if path == "" {
		return nil, errors.New(cinch.ErrCodeInvalidSpecPath, "specification path is required")
	}
	specFormat, err := parseFormat(path, format)
	if err != nil {
		return nil, err
	}
	tree, err := cinch.LoadSpecificationAs(path, specFormat)
	if err != nil {
		return nil, err
	}
	return cinch.Validate(tree)
}

func (m *Manager) loadEngine(path, format string) (*cinch.Engine, error) {
	spec, err := m.loadSpec(path, format)
	if err != nil {
		return nil, err
	}
	return cinch.NewEngine(spec, nil), nil
}

// commandTokens lists the tokens that select cmd, alias last
func commandTokens(cmd *cinch.CommandDescriptor) []string {
	var tokens []string
	for _, token := range []string{cmd.RenderedShort(), cmd.RenderedLong(), cmd.Plain, cmd.Alias} {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// printCounts writes a sorted breakdown under title
func printCounts(w io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "%s:\n", title)
	for _, key := range keys {
		fmt.Fprintf(w, "  %-20s %d\n", key, counts[key])
	}
}

// parseExtendedDuration parses duration strings with extended units (d, w).
// Supports all Go standard units (ns, us, ms, s, m, h) plus:
// - d: days (24 hours)
// - w: weeks (7 days)
//
// Examples: "30d", "2w", "7d", "24h", "5m", "30s"
func parseExtendedDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	matches := extendedDuration.FindStringSubmatch(s)
	if len(matches) != 3 {
		_, err := time.ParseDuration(s)
		return 0, err
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", matches[1])
	}

	switch matches[2] {
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	case "w":
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unknown unit: %s", matches[2])
}

// parseValue converts a command-line value for a specification key.
// Specification values are strings or booleans, so "2" stays a string.
func parseValue(value string) interface{} {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

// openWriter loads the specification at path into a SpecWriter. A missing
// file yields an empty writer when allowMissing is set.
func (m *Manager) openWriter(path, format string, allowMissing bool) (*cinch.SpecWriter, error) {
	if path == "" {
		return nil, errors.New(cinch.ErrCodeInvalidSpecPath, "specification path is required")
	}
	specFormat, err := parseFormat(path, format)
	if err != nil {
		return nil, err
	}
	tree, err := cinch.LoadSpecificationAs(path, specFormat)
	if err != nil {
		if !allowMissing || cinch.GetErrorCode(err) != cinch.ErrCodeSpecNotFound {
			return nil, err
		}
		tree = nil
	}
	return cinch.NewSpecWriter(path, specFormat, tree, m.auditLogger)
}

// generateTemplate returns the starting tree for spec init
func generateTemplate(templateType, name string) (cinch.Tree, error) {
	tree := cinch.Tree{
		cinch.KeyName:        name,
		cinch.KeyDescription: "Describe " + name + " here",
		cinch.KeyVersion:     "0.1.0",
	}

	switch templateType {
	case "minimal":
		return tree, nil
	case "", "default":
		tree[cinch.KeyDefaultHelpMessagesOn] = true
		tree[cinch.KeyDefaultVersionMessagesOn] = true
		tree[cinch.KeyCommands] = []interface{}{
			map[string]interface{}{cinch.KeyGlobalCommand: true},
			map[string]interface{}{
				cinch.KeyShortOption: "q",
				cinch.KeyLongOption:  "quiet",
				cinch.KeyDescription: "Print less output",
			},
			map[string]interface{}{
				cinch.KeyPlain:       "status",
				cinch.KeyAlias:       "st",
				cinch.KeyDescription: "Show the current status",
			},
		}
		return tree, nil
	}
	return nil, errors.New(cinch.ErrCodeInvalidConfig, fmt.Sprintf("unknown template: %s", templateType))
}
