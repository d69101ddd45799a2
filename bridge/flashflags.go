// flashflags.go: Projection of a specification onto a flash-flags FlagSet
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"fmt"
	"strings"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"

	"github.com/agilira/cinch"
)

// ErrCodeHelpRequested marks a parse that stopped on a help token
const ErrCodeHelpRequested = "CINCH_HELP_REQUESTED"

// FlashFlags registers one bool flag per long option of spec. Values can
// also come from environment variables prefixed with the upper-cased tool
// name, as flash-flags does for every FlagSet.
func FlashFlags(spec *cinch.ToolSpecification) *flashflags.FlagSet {
	fs := flashflags.New(spec.Name)
	fs.SetDescription(spec.Description)
	fs.SetVersion(spec.Version)

	for i := range spec.Commands {
		cmd := &spec.Commands[i]
		if cmd.LongOption == "" {
			continue
		}
		fs.Bool(cmd.LongOption, false, cmd.Description)
	}

	fs.SetEnvPrefix(strings.ToUpper(strings.ReplaceAll(spec.Name, "-", "_")))
	return fs
}

// ParseFlashFlags parses args with the FlagSet built for spec and reports
// the set flags by canonical name. Help tokens stop the parse with an
// ErrCodeHelpRequested error when the tool renders default help.
func ParseFlashFlags(spec *cinch.ToolSpecification, args []string) (cinch.InvocationResult, error) {
	if spec.HelpMessagesOn() {
		for _, arg := range args {
			if arg == "--help" || arg == "-h" {
				return nil, errors.New(ErrCodeHelpRequested, "help requested").
					WithContext("tool", spec.Name)
			}
		}
	}

	fs := FlashFlags(spec)
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, cinch.ErrCodeUnrecognizedToken,
			fmt.Sprintf("failed to parse %s flags", spec.Name))
	}

	result := make(cinch.InvocationResult)
	for i := range spec.Commands {
		cmd := &spec.Commands[i]
		if cmd.LongOption != "" && fs.GetBool(cmd.LongOption) {
			result[cmd.Canonical()] = true
		}
	}
	return result, nil
}

// FlagNames lists the names registered on fs
func FlagNames(fs *flashflags.FlagSet) []string {
	var names []string
	fs.VisitAll(func(flag *flashflags.Flag) {
		names = append(names, flag.Name())
	})
	return names
}
