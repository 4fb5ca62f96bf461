// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package remoteclient

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/executor"
	"github.com/wuild-go/fabric/internal/registry"
	"github.com/wuild-go/fabric/internal/toolserver"
	"github.com/wuild-go/fabric/internal/toolset"
)

func startCpWorker(t *testing.T, threads int) registry.ToolServerInfo {
	t.Helper()
	ts := toolset.ToolSet{Tools: []toolset.Tool{
		{ID: "cp", Names: []string{"cp"}, Dialect: toolset.DialectGCC},
	}}
	exec := executor.New(threads, t.TempDir())
	log := clog.NewWithWriter(io.Discard, "toolserver", "test")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	srv := toolserver.New(toolserver.Config{
		ListenHost:  "127.0.0.1",
		ListenPort:  port,
		ThreadCount: threads,
	}, ts, exec, nil, log, map[string]string{"cp": "1.0"})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() { cancel(); exec.Close() })
	go srv.ListenAndServe(ctx)
	time.Sleep(30 * time.Millisecond)

	return registry.ToolServerInfo{
		Host:         "127.0.0.1",
		Port:         port,
		TotalThreads: threads,
		ToolIDs:      []string{"cp"},
	}
}

func newTestClient(cfg Config) *Client {
	log := clog.NewWithWriter(io.Discard, "remoteclient", "test")
	return New(cfg, log)
}

func TestInvokeToolDispatchesToWorker(t *testing.T) {
	worker := startCpWorker(t, 2)
	c := newTestClient(Config{ClientID: "c1"})
	c.UpdateWorkers(registry.CoordinatorInfo{ToolServers: []registry.ToolServerInfo{worker}})

	results := make(chan Result, 1)
	c.InvokeTool(context.Background(), Invocation{
		ToolID:      "cp",
		Args:        []string{"IN", "OUT"},
		InputIndex:  0,
		OutputIndex: 1,
		Input:       []byte("remote payload"),
	}, func(r Result) { results <- r })

	select {
	case r := <-results:
		require.True(t, r.Success, r.StdOut)
		assert.Equal(t, "remote payload", string(r.Output))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestInvokeToolNoWorkersFails(t *testing.T) {
	c := newTestClient(Config{ClientID: "c1"})

	results := make(chan Result, 1)
	c.InvokeTool(context.Background(), Invocation{ToolID: "cp"}, func(r Result) { results <- r })

	select {
	case r := <-results:
		assert.False(t, r.Success)
		assert.Contains(t, r.StdOut, ErrNoWorkers.Error())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestInvokeToolVersionMismatchExcludesWorker(t *testing.T) {
	worker := startCpWorker(t, 2)
	c := newTestClient(Config{ClientID: "c1"})
	c.UpdateWorkers(registry.CoordinatorInfo{ToolServers: []registry.ToolServerInfo{worker}})

	results := make(chan Result, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	c.InvokeTool(ctx, Invocation{
		ToolID:          "cp",
		ExpectedVersion: "9.9.9",
		Args:            []string{"IN", "OUT"},
		InputIndex:      0,
		OutputIndex:     1,
	}, func(r Result) { results <- r })

	select {
	case r := <-results:
		assert.False(t, r.Success)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestPostProcessRewritesOutput(t *testing.T) {
	worker := startCpWorker(t, 2)
	c := newTestClient(Config{
		ClientID:    "c1",
		PostProcess: []Replacement{{Needle: []byte("payload"), Replacement: []byte("REWRITTEN")}},
	})
	c.UpdateWorkers(registry.CoordinatorInfo{ToolServers: []registry.ToolServerInfo{worker}})

	results := make(chan Result, 1)
	c.InvokeTool(context.Background(), Invocation{
		ToolID:      "cp",
		Args:        []string{"IN", "OUT"},
		InputIndex:  0,
		OutputIndex: 1,
		Input:       []byte("remote payload"),
	}, func(r Result) { results <- r })

	select {
	case r := <-results:
		require.True(t, r.Success, r.StdOut)
		assert.Equal(t, "remote REWRITTEN", string(r.Output))
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for result")
	}
}

func TestSelectWorkerPrefersMoreFreeSlots(t *testing.T) {
	c := newTestClient(Config{ClientID: "c1"})
	c.workers = []registry.ToolServerInfo{
		{Host: "a", Port: 1, TotalThreads: 4, RunningTasks: 3, ToolIDs: []string{"cp"}},
		{Host: "b", Port: 2, TotalThreads: 4, RunningTasks: 1, ToolIDs: []string{"cp"}},
	}
	worker, hasFreeSlot, ok := c.selectWorker("cp", "", map[string]bool{})
	require.True(t, ok)
	require.True(t, hasFreeSlot)
	assert.Equal(t, "b", worker.Host)
}

func TestSelectWorkerExcludesFailedWorker(t *testing.T) {
	c := newTestClient(Config{ClientID: "c1"})
	c.workers = []registry.ToolServerInfo{
		{Host: "a", Port: 1, TotalThreads: 4, ToolIDs: []string{"cp"}},
	}
	_, _, ok := c.selectWorker("cp", "", map[string]bool{"a:1": true})
	assert.False(t, ok)
}
