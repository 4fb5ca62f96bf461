// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package coordclient implements the coordinator client of spec §4.F: the
// shared connection-and-snapshot logic used by both remote-tool clients
// (subscribing to worker snapshots) and tool-servers (publishing their own
// load). Every consumer of a coordinator's registry goes through a Client.
package coordclient

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/frame"
	"github.com/wuild-go/fabric/internal/protocol"
	"github.com/wuild-go/fabric/internal/registry"
)

// Mode selects the coordinator redundance policy of spec §4.F.
type Mode int

const (
	// Any uses the first coordinator that successfully connects.
	Any Mode = iota
	// All maintains a connection to every configured coordinator and
	// merges their snapshots, later-published entries for a given
	// (host, port) winning.
	All
)

// HeartbeatInterval matches the coordinator's own idle heartbeat cadence.
const HeartbeatInterval = 5 * time.Second

// reconnectDelay is how long a dropped or failed coordinator connection
// waits before Client retries it.
const reconnectDelay = 2 * time.Second

// Config is a coordinator client's effective configuration (spec §6's
// "coordinator list" CLI surface, reduced to its wire-relevant shape).
type Config struct {
	Hosts []string
	Port  int
	Mode  Mode
}

// Client connects to one (Any) or all (All) configured coordinators,
// delivering every coalesced snapshot to OnInfo and, if PublishLoop is
// used, periodically re-sending this process's own ToolServerInfo.
type Client struct {
	cfg Config
	log *clog.Logger

	// OnInfo is invoked with the merged CoordinatorInfo snapshot whenever
	// any connected coordinator sends one. Must not block.
	OnInfo func(registry.CoordinatorInfo)

	mu        sync.Mutex
	conns     map[string]*frame.Conn // coordinator addr -> live connection
	snapshots map[string]registry.CoordinatorInfo
}

// New returns a Client for cfg. onInfo may be nil if the caller only wants
// to publish (a pure tool-server use, e.g. one that never dispatches
// remotely).
func New(cfg Config, log *clog.Logger, onInfo func(registry.CoordinatorInfo)) *Client {
	return &Client{
		cfg:       cfg,
		log:       log,
		OnInfo:    onInfo,
		conns:     make(map[string]*frame.Conn),
		snapshots: make(map[string]registry.CoordinatorInfo),
	}
}

// Run connects to the configured coordinators and keeps reconnecting until
// ctx is canceled. In Any mode it stops trying further hosts once one is
// connected and keeps only that one alive, falling back to the next
// reachable host if it drops.
func (c *Client) Run(ctx context.Context) {
	if len(c.cfg.Hosts) == 0 {
		return
	}
	switch c.cfg.Mode {
	case All:
		var wg sync.WaitGroup
		for _, h := range c.cfg.Hosts {
			wg.Add(1)
			go func(host string) {
				defer wg.Done()
				c.maintainLoop(ctx, host)
			}(h)
		}
		wg.Wait()
	default:
		c.maintainAnyLoop(ctx)
	}
}

func (c *Client) addr(host string) string {
	return fmt.Sprintf("%s:%d", host, c.cfg.Port)
}

// maintainLoop keeps a single coordinator connected, reconnecting on
// failure, until ctx is canceled.
func (c *Client) maintainLoop(ctx context.Context, host string) {
	addr := c.addr(host)
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := c.dial(addr)
		if err != nil {
			c.log.Printf("coordinator %s unreachable: %v", addr, err)
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}
		c.register(addr, conn)
		err = conn.Serve(&handler{client: c, addr: addr})
		c.log.Printf("coordinator %s connection lost: %v", addr, err)
		c.unregister(addr)
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

// maintainAnyLoop implements Mode Any: only one coordinator is ever
// connected at a time; hosts are tried in configured order.
func (c *Client) maintainAnyLoop(ctx context.Context) {
	i := 0
	for {
		if ctx.Err() != nil {
			return
		}
		host := c.cfg.Hosts[i%len(c.cfg.Hosts)]
		addr := c.addr(host)
		conn, err := c.dial(addr)
		if err != nil {
			i++
			if !sleepCtx(ctx, reconnectDelay) {
				return
			}
			continue
		}
		c.register(addr, conn)
		err = conn.Serve(&handler{client: c, addr: addr})
		c.log.Printf("coordinator %s connection lost: %v", addr, err)
		c.unregister(addr)
		if !sleepCtx(ctx, reconnectDelay) {
			return
		}
	}
}

func (c *Client) dial(addr string) (*frame.Conn, error) {
	nc, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return frame.NewConn(nc, HeartbeatInterval), nil
}

func (c *Client) register(addr string, conn *frame.Conn) {
	c.mu.Lock()
	c.conns[addr] = conn
	c.mu.Unlock()

	// An initial snapshot request makes the coordinator treat this
	// connection as a subscriber; its reply is delivered like a broadcast.
	// The reply arrives through the caller's Serve loop.
	go func() {
		_, payload, _, err := conn.Request(protocol.FrameCoordinatorInfo, nil, HeartbeatInterval)
		if err != nil {
			c.log.Printf("coordinator %s snapshot request failed: %v", addr, err)
			return
		}
		(&handler{client: c, addr: addr}).OnFrame(conn, protocol.FrameCoordinatorInfo, 0, payload)
	}()
}

func (c *Client) unregister(addr string) {
	c.mu.Lock()
	delete(c.conns, addr)
	delete(c.snapshots, addr)
	c.mu.Unlock()
}

// handler adapts one coordinator connection's inbound frames to Client.
type handler struct {
	client *Client
	addr   string
}

func (h *handler) OnFrame(conn *frame.Conn, frameType uint8, txID uint64, payload []byte) {
	if frameType != protocol.FrameCoordinatorInfo {
		return
	}
	info, err := registry.DecodeCoordinatorInfo(payload)
	if err != nil {
		h.client.log.Errorf("malformed CoordinatorInfo from %s: %v", h.addr, err)
		return
	}
	h.client.mu.Lock()
	h.client.snapshots[h.addr] = info
	// The snapshot just received is merged last so that its entries win
	// over other coordinators' older records of the same (host, port).
	merged := registry.CoordinatorInfo{}
	for addr, snap := range h.client.snapshots {
		if addr != h.addr {
			merged = registry.Merge(merged, snap)
		}
	}
	merged = registry.Merge(merged, info)
	onInfo := h.client.OnInfo
	h.client.mu.Unlock()

	if onInfo != nil {
		onInfo(merged.Sorted())
	}
}

// Publish sends info to every currently connected coordinator, one-way.
func (c *Client) Publish(info registry.ToolServerInfo) {
	c.mu.Lock()
	conns := make([]*frame.Conn, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()
	payload := info.Encode()
	for _, conn := range conns {
		_ = conn.Send(protocol.FrameToolServerSessionInfo, 0, payload)
	}
}

// PublishLoop calls infoFunc and publishes its result every interval, until
// ctx is canceled. Used by a tool-server to advertise its load (spec §4.G's
// sendInfoInterval).
func (c *Client) PublishLoop(ctx context.Context, interval time.Duration, infoFunc func() registry.ToolServerInfo) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Publish(infoFunc())
		}
	}
}

// Snapshot merges the per-coordinator snapshots currently held, useful for
// a one-shot caller that does not want to register OnInfo. Unlike the
// OnInfo delivery it does not order them by arrival: when two coordinators
// list the same (host, port), which record it keeps is not defined.
func (c *Client) Snapshot() registry.CoordinatorInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := registry.CoordinatorInfo{}
	for _, snap := range c.snapshots {
		merged = registry.Merge(merged, snap)
	}
	return merged.Sorted()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
