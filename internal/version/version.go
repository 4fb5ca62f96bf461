// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package version implements the version checker of spec §4.I: it probes
// each locally configured tool to produce a canonical version string, used
// by the remote-tool client's selection policy to match a request's
// expected tool version against what a worker advertises.
package version

import (
	"fmt"
	"regexp"

	"github.com/wuild-go/fabric/internal/executor"
	"github.com/wuild-go/fabric/internal/toolset"
)

// gnuVersionArgs and gnuVersionRegex implement the GNU dialect probe:
// `-dumpfullversion -dumpversion` followed by extracting a dotted version
// number from the output. The retrieval pack's toolset model collapses
// Clang into the GCC dialect (there is no separate Clang dialect in spec
// §3's ToolSet), so this probe is also used for Clang-family executables
// configured under DialectGCC; see DESIGN.md for the Open Question
// resolution.
var gnuVersionArgs = []string{"-dumpfullversion", "-dumpversion"}

const gnuVersionRegex = `\d+\.[0-9.]+`

// msvcVersionRegex matches the version banner cl.exe prints to stderr when
// invoked with no arguments, e.g. "... Version 19.29.30133 for x64".
const msvcVersionRegex = `\d+\.\d+\.\d+(\.\d+)? for \S+`

// Checker probes tool versions; it keeps no cache, and every Probe call
// runs its probe again. ProbeAll is typically called once at process start.
type Checker struct {
	exec *executor.Executor
}

// New returns a Checker that runs probe subprocesses through exec.
func New(exec *executor.Executor) *Checker {
	return &Checker{exec: exec}
}

// Probe determines t's version: the configured pinned version if set,
// otherwise the result of running a dialect-specific probe command through
// the local executor and extracting a version with a dialect-specific
// regex. executable is the concrete path this host resolves t.ID to.
func (c *Checker) Probe(t toolset.Tool, executable string) (string, error) {
	if t.PinnedVersion != "" {
		return t.PinnedVersion, nil
	}
	switch t.Dialect {
	case toolset.DialectUpdateFile:
		return "", nil
	case toolset.DialectMSVC:
		return c.probeMSVC(t, executable)
	default:
		return c.probeGNU(executable)
	}
}

// ProbeAll probes every tool in ts, resolving each tool's executable path
// via resolve (typically exec.LookPath against the tool's configured
// names). A tool whose executable cannot be resolved or whose probe fails
// is omitted from the returned map rather than aborting the whole scan.
func (c *Checker) ProbeAll(ts toolset.ToolSet, resolve func(toolset.Tool) (string, error)) map[string]string {
	versions := make(map[string]string, len(ts.Tools))
	for _, t := range ts.Tools {
		executable, err := resolve(t)
		if err != nil {
			continue
		}
		v, err := c.Probe(t, executable)
		if err != nil {
			continue
		}
		versions[t.ID] = v
	}
	return versions
}

func (c *Checker) probeGNU(executable string) (string, error) {
	out, err := c.runProbe(executable, gnuVersionArgs)
	if err != nil {
		return "", err
	}
	return extractVersion(out, gnuVersionRegex)
}

// probeMSVC runs t's environment-preparing command (vcvars) and the bare
// compiler executable in one shell invocation when EnvironmentCommand is
// configured, then extracts the version banner from the combined output.
func (c *Checker) probeMSVC(t toolset.Tool, executable string) (string, error) {
	var probeExecutable string
	var args []string
	if t.EnvironmentCommand != "" {
		probeExecutable = "cmd"
		args = []string{"/c", fmt.Sprintf("%s && %s", t.EnvironmentCommand, executable)}
	} else {
		probeExecutable = executable
	}
	out, err := c.runProbe(probeExecutable, args)
	if err != nil {
		return "", err
	}
	return extractVersion(out, msvcVersionRegex)
}

// runProbe runs executable synchronously via the shared local executor,
// returning its combined stdout+stderr regardless of exit status (a
// nonzero-exiting version probe, e.g. cl.exe's banner, is not itself a
// failure).
func (c *Checker) runProbe(executable string, args []string) (string, error) {
	resultCh := make(chan executor.Result, 1)
	c.exec.AddTask(executor.Task{
		Executable: executable,
		Args:       args,
		Callback:   func(r executor.Result) { resultCh <- r },
	})
	res := <-resultCh
	return res.StdOut, nil
}

func extractVersion(output, pattern string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("version: compile regex %q: %w", pattern, err)
	}
	m := re.FindString(output)
	if m == "" {
		return "", fmt.Errorf("version: no match for %q in probe output", pattern)
	}
	return m, nil
}
