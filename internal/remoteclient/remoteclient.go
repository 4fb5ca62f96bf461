// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package remoteclient implements the remote-tool client of spec §4.H: the
// scheduling core that selects a worker for a compile invocation, ships
// it with retry/failover, and correlates the response back to the caller's
// callback. It is driven by a coordclient.Client snapshot stream and never
// blocks its own caller; InvokeTool always runs in its own goroutine.
package remoteclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/envelope"
	"github.com/wuild-go/fabric/internal/frame"
	"github.com/wuild-go/fabric/internal/protocol"
	"github.com/wuild-go/fabric/internal/registry"
)

// HeartbeatInterval matches the tool-server's own idle heartbeat cadence.
const HeartbeatInterval = 5 * time.Second

// Defaults for Config fields left at zero, per spec §4.H.
const (
	DefaultRequestTimeout     = 240 * time.Second
	DefaultQueueTimeout       = 10 * time.Second
	DefaultInvocationAttempts = 2
)

// pollInterval is how often a queued (undispatched) invocation re-runs
// selection while waiting for a worker to free up.
const pollInterval = 50 * time.Millisecond

// versionProbeTimeout bounds the one-time ToolsVersionRequest issued when a
// worker is first contacted.
const versionProbeTimeout = 5 * time.Second

// Errors classify the outcome of InvokeTool per spec §7's taxonomy. Their
// message is what a failed Result's StdOut carries; no function returns
// them as error values, so callers cannot branch on them with errors.Is.
var (
	ErrNoWorkers    = errors.New("remoteclient: no eligible worker available")
	ErrQueueTimeout = errors.New("remoteclient: queue timeout")
)

// Replacement is one byte-wise needle/replacement pair applied to a
// successful response's output bytes before delivery (spec §4.H
// post-processing, e.g. rewriting embedded absolute paths).
type Replacement struct {
	Needle      []byte
	Replacement []byte
}

// Config is a remote-tool client's effective configuration (spec §6).
type Config struct {
	ClientID           string
	RequestTimeout     time.Duration
	QueueTimeout       time.Duration
	InvocationAttempts int
	MinimalRemoteTasks int
	Compression        envelope.Info
	PostProcess        []Replacement
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = DefaultQueueTimeout
	}
	if c.InvocationAttempts <= 0 {
		c.InvocationAttempts = DefaultInvocationAttempts
	}
	return c
}

// Invocation is one compile job to dispatch remotely.
type Invocation struct {
	ToolID          string
	ExpectedVersion string
	SessionID       uint64
	Args            []string
	InputIndex      int
	OutputIndex     int
	Input           []byte
}

// Result is delivered to InvokeTool's callback exactly once.
type Result struct {
	Success       bool
	Output        []byte
	StdOut        string
	ExecutionTime time.Duration
}

// Client is the scheduling core of spec §4.H.
type Client struct {
	cfg Config
	log *clog.Logger

	mu       sync.Mutex
	workers  []registry.ToolServerInfo
	conns    map[string]*frame.Conn
	versions map[string]map[string]string // worker key -> toolId -> version
}

// New returns a Client ready to receive worker snapshots via UpdateWorkers.
func New(cfg Config, log *clog.Logger) *Client {
	return &Client{
		cfg:      cfg.withDefaults(),
		log:      log,
		conns:    make(map[string]*frame.Conn),
		versions: make(map[string]map[string]string),
	}
}

// UpdateWorkers replaces the client's view of the worker registry, such as
// delivered by coordclient.Client's OnInfo callback. Connections to workers
// no longer present are closed; newly seen workers have their advertised
// tool versions probed in the background.
func (c *Client) UpdateWorkers(info registry.CoordinatorInfo) {
	c.mu.Lock()
	c.workers = info.ToolServers
	keep := make(map[string]bool, len(info.ToolServers))
	var newWorkers []registry.ToolServerInfo
	for _, w := range info.ToolServers {
		keep[w.Key()] = true
		if _, known := c.versions[w.Key()]; !known {
			newWorkers = append(newWorkers, w)
		}
	}
	for key, conn := range c.conns {
		if !keep[key] {
			conn.Close()
			delete(c.conns, key)
			delete(c.versions, key)
		}
	}
	c.mu.Unlock()

	for _, w := range newWorkers {
		go c.probeVersions(w)
	}
}

func (c *Client) probeVersions(w registry.ToolServerInfo) {
	conn, err := c.connFor(w)
	if err != nil {
		return
	}
	_, payload, _, err := conn.Request(protocol.FrameToolsVersionRequest, protocol.ToolsVersionRequest{}.Encode(), versionProbeTimeout)
	if err != nil {
		return
	}
	resp, err := protocol.DecodeToolsVersionResponse(payload)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.versions[w.Key()] = resp.Versions
	c.mu.Unlock()
}

// InvokeTool dispatches inv, delivering exactly one Result to cb. It never
// blocks the caller.
func (c *Client) InvokeTool(ctx context.Context, inv Invocation, cb func(Result)) {
	go c.run(ctx, inv, cb)
}

func (c *Client) run(ctx context.Context, inv Invocation, cb func(Result)) {
	queuedAt := time.Now()
	excluded := make(map[string]bool)
	attemptsLeft := c.cfg.InvocationAttempts

	for {
		if ctx.Err() != nil {
			cb(Result{StdOut: ctx.Err().Error()})
			return
		}

		worker, hasFreeSlot, ok := c.selectWorker(inv.ToolID, inv.ExpectedVersion, excluded)
		if !ok {
			cb(Result{StdOut: ErrNoWorkers.Error()})
			return
		}

		if !hasFreeSlot {
			if time.Since(queuedAt) > c.cfg.QueueTimeout {
				cb(Result{StdOut: ErrQueueTimeout.Error()})
				return
			}
			time.Sleep(pollInterval)
			continue
		}

		res, transportErr := c.dispatch(worker, inv, c.cfg.RequestTimeout)
		if transportErr == nil {
			cb(res)
			return
		}

		c.log.Printf("worker %s failed request: %v", worker.Key(), transportErr)
		excluded[worker.Key()] = true
		attemptsLeft--
		if attemptsLeft <= 0 {
			cb(Result{StdOut: transportErr.Error()})
			return
		}
	}
}

// selectWorker implements spec §4.H's selection policy. hasFreeSlot is
// false when the returned worker was picked under the "enqueue there"
// branch: saturated, but queued-but-not-yet-sent per queueTimeout.
func (c *Client) selectWorker(toolID, expectedVersion string, excluded map[string]bool) (worker registry.ToolServerInfo, hasFreeSlot, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var candidates []registry.ToolServerInfo
	for _, w := range c.workers {
		if excluded[w.Key()] || !w.HasTool(toolID) {
			continue
		}
		if !c.versionMatchesLocked(w.Key(), toolID, expectedVersion) {
			continue
		}
		candidates = append(candidates, w)
	}
	if len(candidates) == 0 {
		return registry.ToolServerInfo{}, false, false
	}

	best := -1
	for i, w := range candidates {
		if w.FreeSlots() <= 0 {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		if w.FreeSlots() > candidates[best].FreeSlots() {
			best = i
			continue
		}
		if w.FreeSlots() == candidates[best].FreeSlots() &&
			w.RunningTasks+w.QueuedTasks < candidates[best].RunningTasks+candidates[best].QueuedTasks {
			best = i
		}
	}
	if best != -1 {
		return candidates[best], true, true
	}

	totalQueued := 0
	for _, w := range candidates {
		totalQueued += w.QueuedTasks
	}
	if totalQueued < c.cfg.MinimalRemoteTasks {
		return registry.ToolServerInfo{}, false, false
	}

	lowest := 0
	for i, w := range candidates {
		if w.QueuedTasks < candidates[lowest].QueuedTasks {
			lowest = i
		}
	}
	return candidates[lowest], false, true
}

// versionMatchesLocked reports whether worker w's advertised version for
// toolID equals expected (both empty counts as a match). An unresolved
// probe (no cached entry yet) is treated as an empty advertised version.
func (c *Client) versionMatchesLocked(workerKey, toolID, expected string) bool {
	advertised := c.versions[workerKey][toolID]
	return advertised == expected
}

// dispatch sends inv to worker and waits for its response. A non-nil error
// is always retry-eligible (ConnectionLost/Timeout/decode failure); a
// RemoteCompileFailed outcome (Result.Success == false with nil error) is
// final and never retried, per spec §7.
func (c *Client) dispatch(worker registry.ToolServerInfo, inv Invocation, timeout time.Duration) (Result, error) {
	conn, err := c.connFor(worker)
	if err != nil {
		return Result{}, err
	}

	enc, err := envelope.Encode(c.cfg.Compression, inv.Input)
	if err != nil {
		return Result{}, fmt.Errorf("remoteclient: compress payload: %w", err)
	}

	req := protocol.RemoteToolRequest{
		ClientID:    c.cfg.ClientID,
		SessionID:   inv.SessionID,
		ToolID:      inv.ToolID,
		Args:        inv.Args,
		InputIndex:  inv.InputIndex,
		OutputIndex: inv.OutputIndex,
		FileData:    enc,
	}

	_, payload, _, err := conn.Request(protocol.FrameRemoteToolRequest, req.Encode(), timeout)
	if err != nil {
		c.dropConn(worker.Key())
		return Result{}, err
	}

	resp, err := protocol.DecodeRemoteToolResponse(payload)
	if err != nil {
		c.dropConn(worker.Key())
		return Result{}, fmt.Errorf("remoteclient: decode response: %w", err)
	}

	result := Result{Success: resp.Success, StdOut: resp.StdOut, ExecutionTime: resp.ExecutionTime}
	if !resp.Success {
		return result, nil
	}

	raw, err := envelope.Decode(resp.FileData)
	if err != nil {
		return Result{Success: false, StdOut: fmt.Sprintf("%s\nremoteclient: decode payload: %v", resp.StdOut, err)}, nil
	}
	result.Output = c.postProcess(raw)
	return result, nil
}

func (c *Client) postProcess(data []byte) []byte {
	for _, r := range c.cfg.PostProcess {
		data = bytes.ReplaceAll(data, r.Needle, r.Replacement)
	}
	return data
}

func (c *Client) connFor(w registry.ToolServerInfo) (*frame.Conn, error) {
	c.mu.Lock()
	if conn, ok := c.conns[w.Key()]; ok {
		c.mu.Unlock()
		return conn, nil
	}
	c.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", w.Host, w.Port)
	nc, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("remoteclient: dial %s: %w", addr, err)
	}
	conn := frame.NewConn(nc, HeartbeatInterval)

	c.mu.Lock()
	if existing, ok := c.conns[w.Key()]; ok {
		c.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	c.conns[w.Key()] = conn
	c.mu.Unlock()

	go func() {
		_ = conn.Serve(discardHandler{})
		c.dropConn(w.Key())
	}()

	return conn, nil
}

func (c *Client) dropConn(key string) {
	c.mu.Lock()
	conn, ok := c.conns[key]
	if ok {
		delete(c.conns, key)
	}
	c.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// discardHandler drops unsolicited frames on a remote-tool client's worker
// connections: the client only ever issues requests on these connections,
// so anything reaching Handler is either a protocol error or a late
// heartbeat already handled by frame.Conn itself.
type discardHandler struct{}

func (discardHandler) OnFrame(*frame.Conn, uint8, uint64, []byte) {}
