// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package coordinator

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/frame"
	"github.com/wuild-go/fabric/internal/protocol"
	"github.com/wuild-go/fabric/internal/registry"
)

func startService(t *testing.T) (addr string, shutdown func()) {
	t.Helper()
	log := clog.NewWithWriter(io.Discard, "coordinator", "test")
	svc := New(log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr = ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go svc.ListenAndServe(ctx, addr)
	time.Sleep(30 * time.Millisecond) // let the listener come up

	return addr, cancel
}

func TestPublishThenSnapshotContainsWorker(t *testing.T) {
	addr, shutdown := startService(t)
	defer shutdown()

	nc, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer nc.Close()
	c := frame.NewConn(nc, 0)
	defer c.Close()

	info := registry.ToolServerInfo{Host: "worker-1", Port: 9000, TotalThreads: 4, ToolIDs: []string{"gcc"}}
	require.NoError(t, c.Send(protocol.FrameToolServerSessionInfo, 0, info.Encode()))

	// Coalescing window plus margin.
	time.Sleep(CoalesceWindow + 50*time.Millisecond)

	replyType, payload, _, err := c.Request(protocol.FrameCoordinatorInfo, nil, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, protocol.FrameCoordinatorInfo, replyType)

	snap, err := registry.DecodeCoordinatorInfo(payload)
	require.NoError(t, err)
	require.Len(t, snap.ToolServers, 1)
	assert.Equal(t, "worker-1", snap.ToolServers[0].Host)
	assert.Equal(t, 9000, snap.ToolServers[0].Port)
}

func TestSubscriberReceivesBroadcastOnPublish(t *testing.T) {
	addr, shutdown := startService(t)
	defer shutdown()

	subNC, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer subNC.Close()
	sub := frame.NewConn(subNC, 0)
	defer sub.Close()

	broadcasts := make(chan registry.CoordinatorInfo, 4)
	go sub.Serve(frameSinkHandler{ch: broadcasts})

	// Subscribe by issuing an initial snapshot request (any connection that
	// has spoken to the coordinator becomes a broadcast subscriber).
	_, _, _, err = sub.Request(protocol.FrameCoordinatorInfo, nil, time.Second)
	require.NoError(t, err)

	pubNC, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer pubNC.Close()
	pub := frame.NewConn(pubNC, 0)
	defer pub.Close()

	info := registry.ToolServerInfo{Host: "worker-2", Port: 9001, TotalThreads: 2}
	require.NoError(t, pub.Send(protocol.FrameToolServerSessionInfo, 0, info.Encode()))

	select {
	case snap := <-broadcasts:
		found := false
		for _, ts := range snap.ToolServers {
			if ts.Host == "worker-2" {
				found = true
			}
		}
		assert.True(t, found)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

// frameSinkHandler captures CoordinatorInfo broadcasts (txID == 0) it
// receives as an unsolicited frame.
type frameSinkHandler struct {
	ch chan registry.CoordinatorInfo
}

func (h frameSinkHandler) OnFrame(c *frame.Conn, frameType uint8, txID uint64, payload []byte) {
	if frameType != protocol.FrameCoordinatorInfo || txID != 0 {
		return
	}
	snap, err := registry.DecodeCoordinatorInfo(payload)
	if err != nil {
		return
	}
	h.ch <- snap
}
