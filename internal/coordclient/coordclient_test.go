// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package coordclient

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/coordinator"
	"github.com/wuild-go/fabric/internal/registry"
)

func startCoordinator(t *testing.T) (host string, port int, shutdown func()) {
	t.Helper()
	log := clog.NewWithWriter(io.Discard, "coordinator", "test")
	svc := coordinator.New(log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go svc.ListenAndServe(ctx, addr.String())
	time.Sleep(30 * time.Millisecond)

	return "127.0.0.1", addr.Port, cancel
}

func TestPublishIsVisibleToAnotherClientsOnInfo(t *testing.T) {
	host, port, shutdown := startCoordinator(t)
	defer shutdown()

	log := clog.NewWithWriter(io.Discard, "test", "pub")
	publisher := New(Config{Hosts: []string{host}, Port: port, Mode: Any}, log, nil)

	pubCtx, pubCancel := context.WithCancel(context.Background())
	defer pubCancel()
	go publisher.Run(pubCtx)
	time.Sleep(50 * time.Millisecond)

	publisher.Publish(registry.ToolServerInfo{Host: "worker-x", Port: 7000, TotalThreads: 8})

	received := make(chan registry.CoordinatorInfo, 4)
	subLog := clog.NewWithWriter(io.Discard, "test", "sub")
	subscriber := New(Config{Hosts: []string{host}, Port: port, Mode: Any}, subLog, func(info registry.CoordinatorInfo) {
		received <- info
	})
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go subscriber.Run(subCtx)

	select {
	case info := <-received:
		found := false
		for _, ts := range info.ToolServers {
			if ts.Host == "worker-x" {
				found = true
			}
		}
		assert.True(t, found)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for subscriber snapshot")
	}
}

func TestSnapshotReturnsMergedState(t *testing.T) {
	host, port, shutdown := startCoordinator(t)
	defer shutdown()

	log := clog.NewWithWriter(io.Discard, "test", "pub")
	publisher := New(Config{Hosts: []string{host}, Port: port, Mode: Any}, log, nil)
	pubCtx, pubCancel := context.WithCancel(context.Background())
	defer pubCancel()
	go publisher.Run(pubCtx)
	time.Sleep(50 * time.Millisecond)
	publisher.Publish(registry.ToolServerInfo{Host: "worker-y", Port: 7001, TotalThreads: 2})

	subLog := clog.NewWithWriter(io.Discard, "test", "sub")
	subscriber := New(Config{Hosts: []string{host}, Port: port, Mode: Any}, subLog, nil)
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go subscriber.Run(subCtx)

	require.Eventually(t, func() bool {
		snap := subscriber.Snapshot()
		for _, ts := range snap.ToolServers {
			if ts.Host == "worker-y" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRunWithNoHostsReturnsImmediately(t *testing.T) {
	log := clog.NewWithWriter(io.Discard, "test", "none")
	c := New(Config{}, log, nil)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with no hosts should return immediately")
	}
}
