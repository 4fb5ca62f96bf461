// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package coordinator implements the coordinator service of spec §4.E: a
// pure in-memory registry of worker (tool-server) advertisements, fanned
// out as a coalesced CoordinatorInfo snapshot to every subscribed
// connection. It is the directory service remote-tool clients consult to
// pick a worker.
package coordinator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/wuild-go/fabric/internal/clog"
	"github.com/wuild-go/fabric/internal/frame"
	"github.com/wuild-go/fabric/internal/protocol"
	"github.com/wuild-go/fabric/internal/registry"
)

// CoalesceWindow is how long the Service waits after the first mutation in
// a burst before broadcasting, so that several publications arriving close
// together produce one CoordinatorInfo broadcast instead of many (spec
// §4.E).
const CoalesceWindow = 50 * time.Millisecond

// HeartbeatInterval is the idle heartbeat the coordinator's connections use
// to detect a silently-dead peer (spec §4.A).
const HeartbeatInterval = 5 * time.Second

// Service is the coordinator's registry and broadcaster. The zero value is
// not usable; construct with New.
type Service struct {
	log *clog.Logger

	mutate  chan mutation
	closeCh chan struct{}
}

type mutation struct {
	conn  *frame.Conn
	info  *registry.ToolServerInfo // nil on connection close
	reply chan registry.CoordinatorInfo
	reqTx uint64
}

// New returns an idle Service; call ListenAndServe to start its registry
// goroutine and accept connections.
func New(log *clog.Logger) *Service {
	return &Service{
		log:     log,
		mutate:  make(chan mutation, 64),
		closeCh: make(chan struct{}),
	}
}

// ListenAndServe binds addr and accepts connections until ctx is canceled.
// Each accepted connection is served on its own goroutine until it fails or
// the listener is closed.
func (s *Service) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("coordinator: listen %s: %w", addr, err)
	}
	s.log.Printf("listening on %s", addr)

	go s.registryLoop()

	go func() {
		<-ctx.Done()
		ln.Close()
		close(s.closeCh)
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("coordinator: accept: %w", err)
			}
		}
		go s.serveConn(nc)
	}
}

func (s *Service) serveConn(nc net.Conn) {
	c := frame.NewConn(nc, HeartbeatInterval)
	defer c.Close()
	s.log.Printf("connection from %s", nc.RemoteAddr())
	err := c.Serve(s)
	s.log.Printf("connection from %s closed: %v", nc.RemoteAddr(), err)
	s.mutate <- mutation{conn: c, info: nil}
}

// OnFrame implements frame.Handler.
func (s *Service) OnFrame(c *frame.Conn, frameType uint8, txID uint64, payload []byte) {
	switch frameType {
	case protocol.FrameToolServerSessionInfo:
		info, err := registry.DecodeToolServerInfo(payload)
		if err != nil {
			s.log.Errorf("malformed ToolServerSessionInfo from %s: %v", c.RemoteAddr(), err)
			return
		}
		s.mutate <- mutation{conn: c, info: &info}
	case protocol.FrameCoordinatorInfo:
		if txID == 0 {
			return
		}
		reply := make(chan registry.CoordinatorInfo, 1)
		s.mutate <- mutation{conn: c, reply: reply, reqTx: txID}
		snap := <-reply
		_ = c.Reply(protocol.FrameCoordinatorInfo, txID, snap.Encode())
	}
}

// registryLoop is the sole owner of the worker map and subscriber set; it
// processes mutations and requests serially, coalescing broadcasts within
// CoalesceWindow of the first mutation in a burst.
func (s *Service) registryLoop() {
	workers := make(map[string]registry.ToolServerInfo)
	byConn := make(map[*frame.Conn]string)
	subs := make(map[*frame.Conn]struct{})

	var broadcastAt <-chan time.Time
	var timer *time.Timer

	snapshot := func() registry.CoordinatorInfo {
		info := registry.CoordinatorInfo{ToolServers: make([]registry.ToolServerInfo, 0, len(workers))}
		for _, ts := range workers {
			info.ToolServers = append(info.ToolServers, ts)
		}
		return info.Sorted()
	}

	broadcast := func() {
		snap := snapshot()
		payload := snap.Encode()
		for c := range subs {
			_ = c.Send(protocol.FrameCoordinatorInfo, 0, payload)
		}
		s.logSnapshot(snap, len(subs))
	}

	for {
		select {
		case <-s.closeCh:
			return

		case <-broadcastAt:
			broadcastAt = nil
			broadcast()

		case m := <-s.mutate:
			subs[m.conn] = struct{}{}

			if m.reply != nil {
				m.reply <- snapshot()
				continue
			}

			if m.info == nil {
				delete(subs, m.conn)
				if key, ok := byConn[m.conn]; ok {
					delete(workers, key)
					delete(byConn, m.conn)
				} else {
					continue // a subscriber that never published needs no broadcast
				}
			} else {
				workers[m.info.Key()] = *m.info
				byConn[m.conn] = m.info.Key()
			}

			if broadcastAt == nil {
				timer = time.NewTimer(CoalesceWindow)
				broadcastAt = timer.C
			}
		}
	}
}

// logSnapshot writes one conditional log line per broadcast, giving a
// verbose-mode operator a running view of the registry without a separate
// status connection.
func (s *Service) logSnapshot(snap registry.CoordinatorInfo, subscriberCount int) {
	s.log.Printf("broadcast %d worker(s) to %d subscriber(s)", len(snap.ToolServers), subscriberCount)
}
