// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package toolserver implements the remote-tool server (worker) of spec
// §4.G: it accepts client connections, runs each incoming RemoteToolRequest
// through a local executor, and returns a compressed RemoteToolResponse.
// It also periodically publishes its current load to every configured
// coordinator through a coordclient.Client.
package toolserver

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/coordclient"
	"github.com/wuild-go/fabric/internal/envelope"
	"github.com/wuild-go/fabric/internal/executor"
	"github.com/wuild-go/fabric/internal/frame"
	"github.com/wuild-go/fabric/internal/protocol"
	"github.com/wuild-go/fabric/internal/registry"
	"github.com/wuild-go/fabric/internal/toolset"
)

// HeartbeatInterval is the idle heartbeat a tool-server's client
// connections use (spec §4.A).
const HeartbeatInterval = 5 * time.Second

// Config is a tool-server's effective configuration (spec §6).
type Config struct {
	ListenHost           string
	ListenPort           int
	ThreadCount          int
	Compression          envelope.Info
	UseClientCompression bool
	// HostAllowlist, if non-empty, restricts accepted client connections to
	// hosts matching one of these doublestar glob patterns (spec §1's
	// "optionally filtered by host allowlist").
	HostAllowlist    []string
	SendInfoInterval time.Duration
}

// Server runs the worker side of the remote compile protocol.
type Server struct {
	cfg      Config
	toolset  toolset.ToolSet
	exec     *executor.Executor
	coord    *coordclient.Client
	log      *clog.Logger
	versions map[string]string // toolId -> this host's locally probed version

	mu      sync.Mutex
	clients map[string]int // clientId -> active request count, display-only
}

// New returns a Server dispatching accepted requests to exec and matching
// requested toolIds against ts. coord may be nil if no coordinators are
// configured, in which case the worker runs unregistered (reachable only
// by clients that know its address directly). versions is this worker's
// probed tool -> version map (internal/version), returned verbatim to a
// ToolsVersionRequest so a remote-tool client can match its own expected
// version against this worker's (spec §4.I).
func New(cfg Config, ts toolset.ToolSet, exec *executor.Executor, coord *coordclient.Client, log *clog.Logger, versions map[string]string) *Server {
	return &Server{
		cfg:      cfg,
		toolset:  ts,
		exec:     exec,
		coord:    coord,
		log:      log,
		versions: versions,
		clients:  make(map[string]int),
	}
}

// ListenAndServe binds the configured listen address, optionally starts
// publishing to coordinators, and accepts connections until ctx is
// canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.ListenHost, s.cfg.ListenPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("toolserver: listen %s: %w", addr, err)
	}
	s.log.Printf("listening on %s", addr)

	if s.coord != nil {
		go s.coord.Run(ctx)
		go s.coord.PublishLoop(ctx, s.cfg.SendInfoInterval, s.info)
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("toolserver: accept: %w", err)
			}
		}
		if !s.allowed(nc.RemoteAddr()) {
			s.log.Printf("rejecting connection from %s: not in host allowlist", nc.RemoteAddr())
			nc.Close()
			continue
		}
		go s.serveConn(nc)
	}
}

func (s *Server) allowed(addr net.Addr) bool {
	if len(s.cfg.HostAllowlist) == 0 {
		return true
	}
	host := addr.String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	for _, pattern := range s.cfg.HostAllowlist {
		if ok, _ := doublestar.Match(pattern, host); ok {
			return true
		}
	}
	return false
}

func (s *Server) serveConn(nc net.Conn) {
	c := frame.NewConn(nc, HeartbeatInterval)
	defer c.Close()
	h := &connHandler{server: s, conn: c}
	err := c.Serve(h)
	s.log.Printf("connection from %s closed: %v", nc.RemoteAddr(), err)
	h.forgetAll()
}

// connHandler dispatches frames for one accepted connection. Multiple
// requests on the same connection run concurrently through the shared
// executor; each is bounded only by the executor's own maxWorkers.
type connHandler struct {
	server *Server
	conn   *frame.Conn

	mu      sync.Mutex
	clients map[string]struct{}
}

func (h *connHandler) OnFrame(c *frame.Conn, frameType uint8, txID uint64, payload []byte) {
	switch frameType {
	case protocol.FrameRemoteToolRequest:
		h.handleCompile(txID, payload)
	case protocol.FrameToolsVersionRequest:
		resp := protocol.ToolsVersionResponse{Versions: h.server.versions}
		_ = c.Reply(protocol.FrameToolsVersionResponse, txID, resp.Encode())
	}
}

func (h *connHandler) handleCompile(txID uint64, payload []byte) {
	req, err := protocol.DecodeRemoteToolRequest(payload)
	if err != nil {
		h.server.log.Errorf("malformed RemoteToolRequest: %v", err)
		_ = h.conn.Reply(protocol.FrameRemoteToolResponse, txID, protocol.RemoteToolResponse{
			Success: false,
			StdOut:  fmt.Sprintf("malformed request: %v", err),
		}.Encode())
		return
	}

	h.track(req.ClientID, 1)

	tool, ok := h.server.toolset.ByID(req.ToolID)
	if !ok {
		h.track(req.ClientID, -1)
		_ = h.conn.Reply(protocol.FrameRemoteToolResponse, txID, protocol.RemoteToolResponse{
			Success: false,
			StdOut:  fmt.Sprintf("toolserver: unknown toolId %q", req.ToolID),
		}.Encode())
		return
	}

	raw, err := envelope.Decode(req.FileData)
	if err != nil {
		h.track(req.ClientID, -1)
		_ = h.conn.Reply(protocol.FrameRemoteToolResponse, txID, protocol.RemoteToolResponse{
			Success: false,
			StdOut:  fmt.Sprintf("toolserver: decode payload: %v", err),
		}.Encode())
		return
	}

	h.server.exec.AddTask(executor.Task{
		Executable:  tool.RemoteExecutable(),
		Args:        tool.TransformRemote(req.Args),
		WriteInput:  true,
		ReadOutput:  true,
		InputIndex:  req.InputIndex,
		OutputIndex: req.OutputIndex,
		Input:       raw,
		Callback: func(res executor.Result) {
			h.track(req.ClientID, -1)
			h.reply(txID, req, res)
		},
	})
}

// responsePolicy selects the compression the reply is encoded with: the
// client's own requested compression if UseClientCompression, otherwise the
// worker's configured type (spec §4.G).
func (h *connHandler) responsePolicy(reqCompression envelope.Info) envelope.Info {
	if h.server.cfg.UseClientCompression {
		return reqCompression
	}
	return h.server.cfg.Compression
}

func (h *connHandler) reply(txID uint64, req protocol.RemoteToolRequest, res executor.Result) {
	info := h.responsePolicy(req.FileData.Info)
	var fileData envelope.Envelope
	if res.Success {
		enc, err := envelope.Encode(info, res.Output)
		if err != nil {
			res.Success = false
			res.StdOut = fmt.Sprintf("%s\ntoolserver: encode response: %v", res.StdOut, err)
		} else {
			fileData = enc
		}
	}
	resp := protocol.RemoteToolResponse{
		Success:       res.Success,
		FileData:      fileData,
		StdOut:        res.StdOut,
		ExecutionTime: res.Elapsed,
	}
	if err := h.conn.Reply(protocol.FrameRemoteToolResponse, txID, resp.Encode()); err != nil {
		h.server.log.Errorf("reply failed: %v", err)
	}
}

func (h *connHandler) track(clientID string, delta int) {
	h.server.mu.Lock()
	h.server.clients[clientID] += delta
	if h.server.clients[clientID] <= 0 {
		delete(h.server.clients, clientID)
	}
	h.server.mu.Unlock()

	h.mu.Lock()
	if h.clients == nil {
		h.clients = make(map[string]struct{})
	}
	if delta > 0 {
		h.clients[clientID] = struct{}{}
	}
	h.mu.Unlock()
}

// forgetAll removes every client this connection contributed to the
// display-only connectedClients tally, called once the connection closes.
func (h *connHandler) forgetAll() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.Unlock()

	h.server.mu.Lock()
	for _, id := range ids {
		delete(h.server.clients, id)
	}
	h.server.mu.Unlock()
}

// info builds this tool-server's current ToolServerInfo for publication.
func (s *Server) info() registry.ToolServerInfo {
	running, queued := s.exec.Stats()
	s.mu.Lock()
	clients := make([]string, 0, len(s.clients))
	for id := range s.clients {
		clients = append(clients, id)
	}
	s.mu.Unlock()

	return registry.ToolServerInfo{
		Host:             localHost(s.cfg.ListenHost),
		Port:             s.cfg.ListenPort,
		TotalThreads:     s.cfg.ThreadCount,
		RunningTasks:     running,
		QueuedTasks:      queued,
		ToolIDs:          s.toolset.IDs(),
		ConnectedClients: clients,
	}
}

func localHost(configured string) string {
	if configured != "" && configured != "0.0.0.0" && configured != "::" {
		return configured
	}
	if name, err := os.Hostname(); err == nil {
		return strings.TrimSpace(name)
	}
	return configured
}
