// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package cmdline classifies and splits compiler invocations into a local
// preprocess half and a remotely-dispatchable compile half, per
// toolchain-dialect-specific rules (spec §4.C). It is the one subsystem
// where the remote compile's result must be byte-equivalent to running the
// original invocation locally, so every transform is conservative: anything
// it cannot confidently classify is reported Unknown rather than guessed.
package cmdline

import "fmt"

// InvokeType is the classification of a ToolCommandline's purpose.
type InvokeType int

const (
	Unknown InvokeType = iota
	Preprocess
	Compile
)

// String renders t for logging.
func (t InvokeType) String() string {
	switch t {
	case Preprocess:
		return "Preprocess"
	case Compile:
		return "Compile"
	default:
		return "Unknown"
	}
}

// ToolID is the stable logical identifier for a configured tool plus the
// concrete executable path that resolves it on whichever host runs it.
type ToolID struct {
	ToolID     string
	Executable string
}

// ToolCommandline is an ordered compiler invocation with the derived
// classification indices maintained as an invariant: after every mutating
// call in this package, InputIndex and OutputIndex either point inside Args
// or are -1, and are -1 together whenever Type is Unknown.
type ToolCommandline struct {
	ID          ToolID
	Args        []string
	Type        InvokeType
	InputIndex  int
	OutputIndex int
}

// NewToolCommandline wraps args with indices not yet computed; callers
// invoke a Dialect's Classify to populate them.
func NewToolCommandline(id ToolID, args []string) ToolCommandline {
	return ToolCommandline{ID: id, Args: append([]string(nil), args...), InputIndex: -1, OutputIndex: -1}
}

// InputName returns the invocation's input argument, or "" if Unknown.
func (c ToolCommandline) InputName() string {
	if c.InputIndex < 0 || c.InputIndex >= len(c.Args) {
		return ""
	}
	return c.Args[c.InputIndex]
}

// OutputName returns the invocation's output argument, or "" if Unknown.
func (c ToolCommandline) OutputName() string {
	if c.OutputIndex < 0 || c.OutputIndex >= len(c.Args) {
		return ""
	}
	return c.Args[c.OutputIndex]
}

// Clone returns a deep copy safe to mutate independently of c.
func (c ToolCommandline) Clone() ToolCommandline {
	c.Args = append([]string(nil), c.Args...)
	return c
}

// Valid reports whether the invocation is fully classified: a recognizable
// type with both indices resolved inside Args.
func (c ToolCommandline) Valid() bool {
	return c.Type != Unknown &&
		c.InputIndex >= 0 && c.InputIndex < len(c.Args) &&
		c.OutputIndex >= 0 && c.OutputIndex < len(c.Args)
}

// ErrUnclassifiable is returned by a Dialect's Classify when the invocation
// cannot be confidently split — multiple positional inputs, no recognizable
// invocation-type flag, or a dangling -o/-Fo.
var ErrUnclassifiable = fmt.Errorf("cmdline: invocation not classifiable")

// Dialect recognizes one toolchain's flag conventions. Implementations
// never panic on malformed input; they return ErrUnclassifiable and leave
// the invocation's Type as Unknown.
type Dialect interface {
	// Name identifies the dialect for tool configuration and logging.
	Name() string

	// Classify recomputes c's Type, InputIndex, and OutputIndex from its
	// current Args. It is called again after any flag-stripping mutation,
	// since removing an argument can shift indices.
	Classify(c *ToolCommandline) error

	// StripPreprocess rewrites c in place into the preprocess half of a
	// split: Type becomes Preprocess, dependency-emitting flags are
	// removed, and the output argument is replaced with ppOutputPath.
	StripPreprocess(c *ToolCommandline, ppOutputPath string) error

	// StripCompile rewrites c in place into the remotely-shipped compile
	// half of a split: preprocessor-only flags are removed and the input
	// argument is replaced with ppInputPath (the path the preprocessed
	// bytes will be staged to on the worker).
	StripCompile(c *ToolCommandline, ppInputPath string) error
}

// VersionProbe describes how to obtain a tool's version string for a
// dialect: the arguments to invoke the tool with, and the regex used to
// extract the version from its output (spec §4.I).
type VersionProbe struct {
	Args  []string
	Regex string
}
