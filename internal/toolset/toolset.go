// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package toolset loads and resolves the CompilerConfig / ToolSet data
// model: the ordered list of configured tools, their recognized names, and
// the dialect and flag-transform rules used to make an invocation
// remoteable (spec §3). Config is read once at process start from YAML and
// is immutable for the process's life.
package toolset

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wuild-go/fabric/internal/cmdline"
)

// Dialect names as they appear in configuration files.
const (
	DialectGCC        = "gcc"
	DialectMSVC       = "msvc"
	DialectUpdateFile = "updatefile"
)

// Tool is one configured compiler/toolchain entry: its identity, the
// dialect used to classify and split its invocations, and the
// transform rules applied before an invocation is shipped remotely.
type Tool struct {
	ID                 string   `yaml:"id"`
	Names              []string `yaml:"names"`
	Dialect            string   `yaml:"dialect"`
	PinnedVersion      string   `yaml:"pinnedVersion,omitempty"`
	RemoveRemote       []string `yaml:"removeRemote,omitempty"`
	AppendRemote       []string `yaml:"appendRemote,omitempty"`
	RemoteAlias        string   `yaml:"remoteAlias,omitempty"`
	EnvironmentCommand string   `yaml:"environmentCommand,omitempty"`
}

// CommandlineDialect resolves Dialect to the concrete cmdline.Dialect
// implementation, or nil if the configured name is not recognized.
func (t Tool) CommandlineDialect() cmdline.Dialect {
	switch strings.ToLower(t.Dialect) {
	case DialectGCC:
		return cmdline.GCC{}
	case DialectMSVC:
		return cmdline.MSVC{}
	case DialectUpdateFile:
		return cmdline.UpdateFile{}
	default:
		return nil
	}
}

// HasName reports whether name is one of t's recognized executable names.
func (t Tool) HasName(name string) bool {
	for _, n := range t.Names {
		if n == name {
			return true
		}
	}
	return false
}

// TransformRemote rewrites a remotely-shipped argument list according to
// t's removeRemote/appendRemote rules: removeRemote entries are dropped
// verbatim and appendRemote entries are appended after filtering.
// remoteAlias is not applied here; RemoteExecutable handles it.
func (t Tool) TransformRemote(args []string) []string {
	out := make([]string, 0, len(args)+len(t.AppendRemote))
	removeSet := make(map[string]bool, len(t.RemoveRemote))
	for _, r := range t.RemoveRemote {
		removeSet[r] = true
	}
	for _, a := range args {
		if removeSet[a] {
			continue
		}
		out = append(out, a)
	}
	out = append(out, t.AppendRemote...)
	return out
}

// RemoteExecutable returns the name the worker should invoke: remoteAlias
// if configured, otherwise the tool's own id.
func (t Tool) RemoteExecutable() string {
	if t.RemoteAlias != "" {
		return t.RemoteAlias
	}
	return t.ID
}

// ToolSet is the ordered, immutable collection of configured tools loaded
// at process start.
type ToolSet struct {
	Tools []Tool `yaml:"tools"`
}

// ErrDuplicateID is returned by Validate when two tools share an id.
var ErrDuplicateID = fmt.Errorf("toolset: duplicate tool id")

// ErrNoNames is returned by Validate when a tool has zero recognized names.
var ErrNoNames = fmt.Errorf("toolset: tool has no recognized names")

// ErrUnknownDialect is returned by Validate when a tool names a dialect
// this build does not implement.
var ErrUnknownDialect = fmt.Errorf("toolset: unknown dialect")

// Validate checks the invariants of §3: every tool has ≥1 name, ids are
// unique, and every dialect name resolves to an implementation.
func (ts ToolSet) Validate() error {
	seen := make(map[string]bool, len(ts.Tools))
	for _, t := range ts.Tools {
		if len(t.Names) == 0 {
			return fmt.Errorf("%w: %s", ErrNoNames, t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
		}
		seen[t.ID] = true
		if t.CommandlineDialect() == nil {
			return fmt.Errorf("%w: %s (tool %s)", ErrUnknownDialect, t.Dialect, t.ID)
		}
	}
	return nil
}

// ByID returns the tool with the given id.
func (ts ToolSet) ByID(id string) (Tool, bool) {
	for _, t := range ts.Tools {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// ByExecutableName resolves a local executable name (as seen on argv[0])
// to its configured Tool, trying each tool's Names in configuration order.
func (ts ToolSet) ByExecutableName(name string) (Tool, bool) {
	for _, t := range ts.Tools {
		if t.HasName(name) {
			return t, true
		}
	}
	return Tool{}, false
}

// IDs returns every configured tool's id, in configuration order.
func (ts ToolSet) IDs() []string {
	ids := make([]string, len(ts.Tools))
	for i, t := range ts.Tools {
		ids[i] = t.ID
	}
	return ids
}

// LoadFile reads and validates a ToolSet from a YAML configuration file.
func LoadFile(path string) (ToolSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ToolSet{}, fmt.Errorf("toolset: read %s: %w", path, err)
	}
	var ts ToolSet
	if err := yaml.Unmarshal(data, &ts); err != nil {
		return ToolSet{}, fmt.Errorf("toolset: parse %s: %w", path, err)
	}
	if err := ts.Validate(); err != nil {
		return ToolSet{}, fmt.Errorf("toolset: %s: %w", path, err)
	}
	return ts, nil
}
