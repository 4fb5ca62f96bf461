// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package dispatch

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/executor"
	"github.com/wuild-go/fabric/internal/registry"
	"github.com/wuild-go/fabric/internal/remoteclient"
	"github.com/wuild-go/fabric/internal/toolserver"
	"github.com/wuild-go/fabric/internal/toolset"
)

// writeFakeCompiler writes a script that treats both its -E (preprocess)
// and -c (compile) forms as a plain copy from its input argument to its
// output argument, standing in for a real compiler so these tests don't
// depend on one being installed.
func writeFakeCompiler(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakecc")
	script := "#!/bin/sh\nif [ \"$#\" -ge 4 ]; then cp \"$2\" \"$4\"; fi\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRunPassthroughSuccess(t *testing.T) {
	var buf bytes.Buffer
	code := RunPassthrough(&buf, "true", nil)
	assert.Equal(t, 0, code)
}

func TestRunPassthroughPropagatesExitCode(t *testing.T) {
	var buf bytes.Buffer
	code := RunPassthrough(&buf, "false", nil)
	assert.Equal(t, 1, code)
}

func TestDriverRunsUnconfiguredExecutableLocally(t *testing.T) {
	ts := toolset.ToolSet{}
	local := executor.New(1, t.TempDir())
	defer local.Close()
	log := clog.NewWithWriter(io.Discard, "tool-client", "test")

	d := New(ts, local, nil, nil, t.TempDir(), log, nil)

	var buf bytes.Buffer
	code := d.Run(&buf, "true", nil)
	assert.Equal(t, 0, code)
}

func TestDriverFallsBackToLocalWhenNoRemoteClient(t *testing.T) {
	compiler := writeFakeCompiler(t)
	dir := t.TempDir()
	src := filepath.Join(dir, "foo.c")
	out := filepath.Join(dir, "foo.o")
	require.NoError(t, os.WriteFile(src, []byte("int main(){}"), 0o644))

	ts := toolset.ToolSet{Tools: []toolset.Tool{
		{ID: compiler, Names: []string{compiler}, Dialect: toolset.DialectGCC},
	}}
	local := executor.New(1, t.TempDir())
	defer local.Close()
	log := clog.NewWithWriter(io.Discard, "tool-client", "test")

	d := New(ts, local, nil, nil, t.TempDir(), log, nil)

	var buf bytes.Buffer
	code := d.Run(&buf, compiler, []string{"-c", src, "-o", out})
	assert.Equal(t, 0, code)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "int main(){}", string(got))
}

func TestDriverUnclassifiableInvocationRunsLocally(t *testing.T) {
	compiler := writeFakeCompiler(t)
	ts := toolset.ToolSet{Tools: []toolset.Tool{
		{ID: compiler, Names: []string{compiler}, Dialect: toolset.DialectGCC},
	}}
	local := executor.New(1, t.TempDir())
	defer local.Close()
	log := clog.NewWithWriter(io.Discard, "tool-client", "test")

	d := New(ts, local, nil, nil, t.TempDir(), log, nil)

	var buf bytes.Buffer
	// No -c/-E flag at all: GCC dialect cannot classify this, so it falls
	// through to local execution of the bare invocation.
	code := d.Run(&buf, compiler, []string{"--version"})
	assert.Equal(t, 0, code)
}

func startCompilerWorker(t *testing.T, compiler string) registry.ToolServerInfo {
	t.Helper()
	ts := toolset.ToolSet{Tools: []toolset.Tool{
		{ID: compiler, Names: []string{compiler}, Dialect: toolset.DialectGCC},
	}}
	exec := executor.New(2, t.TempDir())
	log := clog.NewWithWriter(io.Discard, "toolserver", "test")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	srv := toolserver.New(toolserver.Config{
		ListenHost:  "127.0.0.1",
		ListenPort:  port,
		ThreadCount: 2,
	}, ts, exec, nil, log, map[string]string{compiler: "1.0"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() { cancel(); exec.Close() })
	go srv.ListenAndServe(ctx)
	time.Sleep(30 * time.Millisecond)

	return registry.ToolServerInfo{Host: "127.0.0.1", Port: port, TotalThreads: 2, ToolIDs: []string{compiler}}
}

func TestDriverSplitsAndDispatchesRemotely(t *testing.T) {
	compiler := writeFakeCompiler(t)
	worker := startCompilerWorker(t, compiler)

	dir := t.TempDir()
	src := filepath.Join(dir, "foo.c")
	out := filepath.Join(dir, "foo.o")
	require.NoError(t, os.WriteFile(src, []byte("remote compiled content"), 0o644))

	ts := toolset.ToolSet{Tools: []toolset.Tool{
		{ID: compiler, Names: []string{compiler}, Dialect: toolset.DialectGCC},
	}}
	local := executor.New(1, t.TempDir())
	defer local.Close()
	log := clog.NewWithWriter(io.Discard, "tool-client", "test")

	remote := remoteclient.New(remoteclient.Config{ClientID: "driver-test"}, log)
	remote.UpdateWorkers(registry.CoordinatorInfo{ToolServers: []registry.ToolServerInfo{worker}})

	versions := map[string]string{compiler: "1.0"}
	d := New(ts, local, remote, versions, t.TempDir(), log, nil)

	var buf bytes.Buffer
	code := d.Run(&buf, compiler, []string{"-c", src, "-o", out})
	assert.Equal(t, 0, code)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "remote compiled content", string(got))
}
