// cobra.go: Projection of a specification onto a cobra command tree
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/agilira/cinch"
)

// RunFunc receives the canonical names matched by a cobra invocation
type RunFunc func(result cinch.InvocationResult) error

// Cobra builds a root command named after the tool. Every short or long
// option becomes a persistent bool flag and every plain command becomes a
// subcommand with its alias. Invocation keys are the same canonical names
// Engine.Dispatch reports; a bare invocation maps to global_command when
// the tool declares one and shows help otherwise.
func Cobra(spec *cinch.ToolSpecification, run RunFunc) *cobra.Command {
	root := &cobra.Command{
		Use:           spec.Name,
		Short:         firstLine(spec.Description),
		Long:          spec.Description,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if spec.VersionMessagesOn() {
		root.Version = spec.Version
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flagKeys := registerFlags(root.PersistentFlags(), spec)

	collect := func(c *cobra.Command) cinch.InvocationResult {
		result := make(cinch.InvocationResult)
		c.Flags().Visit(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				result[key] = true
			}
		})
		return result
	}

	root.RunE = func(c *cobra.Command, _ []string) error {
		result := collect(c)
		if len(result) == 0 {
			if !spec.HasGlobalCommand() {
				return c.Help()
			}
			result[cinch.GlobalCommandToken] = true
		}
		return run(result)
	}

	for i := range spec.Commands {
		cmd := spec.Commands[i]
		if cmd.Plain == "" {
			continue
		}
		sub := &cobra.Command{
			Use:   cmd.Plain,
			Short: firstLine(cmd.Description),
			Long:  cmd.Description,
			Args:  cobra.NoArgs,
			RunE: func(c *cobra.Command, _ []string) error {
				result := collect(c)
				result[cmd.Canonical()] = true
				return run(result)
			},
		}
		if cmd.Alias != "" {
			sub.Aliases = []string{cmd.Alias}
		}
		if cmd.Plain == "help" {
			root.SetHelpCommand(sub)
			continue
		}
		root.AddCommand(sub)
	}

	return root
}

// registerFlags adds one bool flag per short or long option and returns
// flag name -> canonical invocation key. Long options keep their own name.
// A short-only option is named after its letter, or "short-<letter>" when a
// long option already uses that literal. pflag shorthands are single ASCII
// bytes, so other short options are reachable by name only.
func registerFlags(flags *pflag.FlagSet, spec *cinch.ToolSpecification) map[string]string {
	flagKeys := make(map[string]string)
	register := func(cmd *cinch.CommandDescriptor, name string) {
		shorthand := ""
		if len(cmd.ShortOption) == 1 && flags.ShorthandLookup(cmd.ShortOption) == nil {
			shorthand = cmd.ShortOption
		}
		flags.BoolP(name, shorthand, false, cmd.Description)
		flagKeys[name] = cmd.Canonical()
	}

	for i := range spec.Commands {
		if cmd := &spec.Commands[i]; cmd.LongOption != "" {
			register(cmd, cmd.LongOption)
		}
	}
	for i := range spec.Commands {
		cmd := &spec.Commands[i]
		if cmd.ShortOption == "" || cmd.LongOption != "" {
			continue
		}
		name := cmd.ShortOption
		for flags.Lookup(name) != nil {
			name = "short-" + name
		}
		register(cmd, name)
	}
	return flagKeys
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
