// spec.go: Typed tool specification produced by Validate
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cinch

// Tree is the generic decoded form of a specification document.
type Tree map[string]interface{}

// Literal keys of a specification document
const (
	KeyName                     = "name"
	KeyDescription              = "description"
	KeyVersion                  = "version"
	KeyDefaultHelpMessagesOn    = "default_help_messages_on"
	KeyDefaultVersionMessagesOn = "default_version_messages_on"
	KeyGlobalCommand            = "global_command"
	KeyCommands                 = "commands"

	KeyShortOption = "short-option"
	KeyLongOption  = "long-option"
	KeyPlain       = "plain"
	KeyAlias       = "alias"
)

// GlobalCommandToken is the invocation key produced by a bare invocation of
// a tool that declares a global command.
const GlobalCommandToken = "global_command"

// ToolSpecification is a validated, normalized specification.
// It is never modified after Validate returns it.
type ToolSpecification struct {
	Name        string
	Description string
	Version     string

	// nil means the key was absent
	DefaultHelpMessagesOn    *bool
	DefaultVersionMessagesOn *bool
	GlobalCommand            *bool

	// Commands is nil when the document has no commands key.
	Commands []CommandDescriptor
}

// CommandDescriptor is one validated entry of the commands list.
type CommandDescriptor struct {
	Index         int // 1-based position in the document
	ShortOption   string
	LongOption    string
	Plain         string
	Alias         string
	Description   string
	GlobalCommand *bool
}

// HelpMessagesOn reports whether the built-in help family is rendered.
func (s *ToolSpecification) HelpMessagesOn() bool {
	return s.DefaultHelpMessagesOn == nil || *s.DefaultHelpMessagesOn
}

// VersionMessagesOn reports whether the built-in version family is rendered.
func (s *ToolSpecification) VersionMessagesOn() bool {
	return s.DefaultVersionMessagesOn == nil || *s.DefaultVersionMessagesOn
}

// HasGlobalCommand reports whether a bare invocation maps to global_command,
// either through the top-level flag or a descriptor marker.
func (s *ToolSpecification) HasGlobalCommand() bool {
	if s.GlobalCommand != nil && *s.GlobalCommand {
		return true
	}
	for i := range s.Commands {
		if s.Commands[i].IsGlobalMarker() {
			return true
		}
	}
	return false
}

// CommandList returns every token the engine recognises besides the built-in
// help and version families, in declaration order.
func (s *ToolSpecification) CommandList() []string {
	list := make([]string, 0, len(s.Commands)*2)
	for i := range s.Commands {
		cmd := &s.Commands[i]
		if cmd.ShortOption != "" {
			list = append(list, cmd.RenderedShort())
		}
		if cmd.LongOption != "" {
			list = append(list, cmd.RenderedLong())
		}
		if cmd.Plain != "" {
			list = append(list, cmd.Plain)
		}
		if cmd.Alias != "" {
			list = append(list, cmd.Alias)
		}
	}
	return list
}

// Tree renders the specification back into its normalized document form.
// Validate(spec.Tree()) yields a specification equal to spec.
func (s *ToolSpecification) Tree() Tree {
	tree := Tree{
		KeyName:        s.Name,
		KeyDescription: s.Description,
		KeyVersion:     s.Version,
	}
	if s.DefaultHelpMessagesOn != nil {
		tree[KeyDefaultHelpMessagesOn] = *s.DefaultHelpMessagesOn
	}
	if s.DefaultVersionMessagesOn != nil {
		tree[KeyDefaultVersionMessagesOn] = *s.DefaultVersionMessagesOn
	}
	if s.GlobalCommand != nil {
		tree[KeyGlobalCommand] = *s.GlobalCommand
	}
	if s.Commands != nil {
		commands := make([]interface{}, 0, len(s.Commands))
		for i := range s.Commands {
			commands = append(commands, s.Commands[i].tree())
		}
		tree[KeyCommands] = commands
	}
	return tree
}

func (c *CommandDescriptor) tree() map[string]interface{} {
	node := make(map[string]interface{}, 4)
	if c.GlobalCommand != nil {
		node[KeyGlobalCommand] = *c.GlobalCommand
	}
	if c.ShortOption != "" {
		node[KeyShortOption] = c.ShortOption
	}
	if c.LongOption != "" {
		node[KeyLongOption] = c.LongOption
	}
	if c.Plain != "" {
		node[KeyPlain] = c.Plain
	}
	if c.Alias != "" {
		node[KeyAlias] = c.Alias
	}
	if c.Description != "" {
		node[KeyDescription] = c.Description
	}
	return node
}

// RenderedShort returns the short option with its leading dash, or "".
func (c *CommandDescriptor) RenderedShort() string {
	if c.ShortOption == "" {
		return ""
	}
	return "-" + c.ShortOption
}

// RenderedLong returns the long option with its leading dashes, or "".
func (c *CommandDescriptor) RenderedLong() string {
	if c.LongOption == "" {
		return ""
	}
	return "--" + c.LongOption
}

// Canonical is the invocation key reported when any token of the descriptor
// matches: the plain command, else the long option, else the short option.
func (c *CommandDescriptor) Canonical() string {
	switch {
	case c.Plain != "":
		return c.Plain
	case c.LongOption != "":
		return c.RenderedLong()
	case c.ShortOption != "":
		return c.RenderedShort()
	case c.IsGlobalMarker():
		return GlobalCommandToken
	}
	return ""
}

// IsGlobalMarker reports whether the descriptor is the global_command entry.
func (c *CommandDescriptor) IsGlobalMarker() bool {
	return c.GlobalCommand != nil && *c.GlobalCommand
}
