// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package dispatch implements the tool-client front-end's per-invocation
// control flow: classify the incoming compiler command line, split it into
// a local preprocess half and a remote compile half (internal/cmdline),
// run the preprocess step through the local executor, ship the compile
// half to a worker through the remote-tool client, and integrate the
// result back onto disk. A command line the parser cannot classify falls
// through to local execution transparently (spec §4.C, §7).
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/cmdline"
	"github.com/wuild-go/fabric/internal/executor"
	"github.com/wuild-go/fabric/internal/loadgate"
	"github.com/wuild-go/fabric/internal/remoteclient"
	"github.com/wuild-go/fabric/internal/toolset"
)

// Driver runs one compiler invocation to completion, choosing between
// local-only execution and the local-preprocess/remote-compile split.
type Driver struct {
	ts         toolset.ToolSet
	local      *executor.Executor
	remote     *remoteclient.Client // nil disables remote dispatch entirely
	versions   map[string]string    // toolId -> this host's locally probed version
	scratchDir string
	log        *clog.Logger
	load       *loadgate.Gate // maxLoadAverage throttle; nil disables it

	counter atomic.Uint64
}

// New returns a Driver. remote may be nil, in which case every invocation
// runs locally as the original, unsplit command line. load may
// be nil, in which case remote dispatch is never throttled by system load.
func New(ts toolset.ToolSet, local *executor.Executor, remote *remoteclient.Client, versions map[string]string, scratchDir string, log *clog.Logger, load *loadgate.Gate) *Driver {
	return &Driver{ts: ts, local: local, remote: remote, versions: versions, scratchDir: scratchDir, log: log, load: load}
}

// Run executes one invocation of executableName with args (the arguments
// following argv[0] on the original command line, not including
// executableName itself). It writes the invocation's stdout/stderr to out
// and returns the process-equivalent exit code (spec §6: 0 success, 1
// failure, propagating the remote compile's success as its own).
func (d *Driver) Run(out io.Writer, executableName string, args []string) int {
	tool, ok := d.ts.ByExecutableName(executableName)
	if !ok {
		return d.runLocal(out, executableName, args)
	}

	dialect := tool.CommandlineDialect()
	id := cmdline.ToolID{ToolID: tool.ID, Executable: executableName}
	cc := cmdline.NewToolCommandline(id, args)
	if err := dialect.Classify(&cc); err != nil || cc.Type != cmdline.Compile {
		d.log.Printf("%s not remoteable, running locally: %v", executableName, err)
		return d.runLocal(out, executableName, args)
	}

	if d.remote == nil {
		return d.runLocal(out, executableName, args)
	}
	if d.load != nil && !d.load.Exceeded() {
		// Host is idle enough that shipping this compile over the network
		// would cost more than it saves; compile it locally instead.
		return d.runLocal(out, executableName, args)
	}

	ppPath := filepath.Join(d.scratchDir, fmt.Sprintf("pp-%d.i", d.counter.Add(1)))
	pp, remoteCC, err := cmdline.Split(dialect, cc, ppPath)
	if err != nil {
		d.log.Printf("%s not splittable, running locally: %v", executableName, err)
		return d.runLocal(out, executableName, args)
	}
	defer os.Remove(ppPath)

	if code := d.runLocal(out, executableName, pp.Args); code != 0 {
		return code
	}

	ppBytes, err := os.ReadFile(ppPath)
	if err != nil {
		fmt.Fprintf(out, "tool-client: read preprocessed output: %v\n", err)
		return 1
	}

	resCh := make(chan remoteclient.Result, 1)
	d.remote.InvokeTool(context.Background(), remoteclient.Invocation{
		ToolID:          tool.ID,
		ExpectedVersion: d.versions[tool.ID],
		SessionID:       d.counter.Add(1),
		Args:            remoteCC.Args,
		InputIndex:      remoteCC.InputIndex,
		OutputIndex:     remoteCC.OutputIndex,
		Input:           ppBytes,
	}, func(r remoteclient.Result) { resCh <- r })

	res := <-resCh
	io.WriteString(out, res.StdOut)
	if !res.Success {
		return 1
	}
	if err := os.WriteFile(remoteCC.OutputName(), res.Output, 0o644); err != nil {
		fmt.Fprintf(out, "tool-client: write output: %v\n", err)
		return 1
	}
	return 0
}

// runLocal runs executableName/args to completion on the local executor
// and forwards its captured output, used both as the Unknown-invocation
// fallback and to run a Compile invocation's preprocess half.
func (d *Driver) runLocal(out io.Writer, executableName string, args []string) int {
	resCh := make(chan executor.Result, 1)
	d.local.AddTask(executor.Task{
		Executable: executableName,
		Args:       args,
		Callback:   func(r executor.Result) { resCh <- r },
	})
	res := <-resCh
	io.WriteString(out, res.StdOut)
	if !res.Success {
		return 1
	}
	return 0
}

// RunPassthrough executes a command the parser never saw (e.g. this
// process invoked as a plain wrapper for an unconfigured tool) directly,
// bypassing the local executor's scratch-file machinery entirely.
func RunPassthrough(out io.Writer, executableName string, args []string) int {
	cmd := exec.Command(executableName, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(out, "tool-client: %v\n", err)
		return 1
	}
	return 0
}
