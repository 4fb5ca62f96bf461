// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package registry holds the worker-advertisement data model shared by the
// coordinator, coordinator client, tool-server, and status tool: a
// ToolServerInfo per worker and the coalesced CoordinatorInfo snapshot
// broadcast to subscribers (spec §3, §4.E/F).
package registry

import (
	"fmt"
	"sort"

	"github.com/wuild-go/fabric/internal/wire"
)

// ToolServerInfo is one worker's self-reported load and capability
// snapshot, published every sendInfoInterval and keyed by (Host, Port) on
// the coordinator.
type ToolServerInfo struct {
	Host             string
	Port             int
	TotalThreads     int
	RunningTasks     int
	QueuedTasks      int
	ToolIDs          []string
	ConnectedClients []string
}

// Key identifies the record this info replaces on the coordinator.
func (i ToolServerInfo) Key() string {
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}

// HasTool reports whether this worker advertises toolID.
func (i ToolServerInfo) HasTool(toolID string) bool {
	for _, id := range i.ToolIDs {
		if id == toolID {
			return true
		}
	}
	return false
}

// FreeSlots is the selection policy's primary score: idle capacity.
func (i ToolServerInfo) FreeSlots() int {
	free := i.TotalThreads - i.RunningTasks
	if free < 0 {
		return 0
	}
	return free
}

// Encode renders i as a standalone wire payload, used by the worker's
// periodic publication frame to the coordinator.
func (i ToolServerInfo) Encode() []byte {
	w := wire.NewWriter()
	i.encode(w)
	return w.Bytes()
}

// DecodeToolServerInfo parses a ToolServerInfo payload produced by Encode.
func DecodeToolServerInfo(payload []byte) (ToolServerInfo, error) {
	return decodeToolServerInfo(wire.NewReader(payload))
}

func (i ToolServerInfo) encode(w *wire.Writer) {
	w.WriteString(i.Host)
	w.WriteUint32(uint32(i.Port))
	w.WriteUint32(uint32(i.TotalThreads))
	w.WriteUint32(uint32(i.RunningTasks))
	w.WriteUint32(uint32(i.QueuedTasks))
	w.WriteUint32(uint32(len(i.ToolIDs)))
	for _, id := range i.ToolIDs {
		w.WriteString(id)
	}
	w.WriteUint32(uint32(len(i.ConnectedClients)))
	for _, c := range i.ConnectedClients {
		w.WriteString(c)
	}
}

func decodeToolServerInfo(r *wire.Reader) (ToolServerInfo, error) {
	var i ToolServerInfo
	var err error
	if i.Host, err = r.ReadString(); err != nil {
		return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo host: %w", err)
	}
	port, err := r.ReadUint32()
	if err != nil {
		return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo port: %w", err)
	}
	i.Port = int(port)
	total, err := r.ReadUint32()
	if err != nil {
		return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo totalThreads: %w", err)
	}
	i.TotalThreads = int(total)
	running, err := r.ReadUint32()
	if err != nil {
		return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo runningTasks: %w", err)
	}
	i.RunningTasks = int(running)
	queued, err := r.ReadUint32()
	if err != nil {
		return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo queuedTasks: %w", err)
	}
	i.QueuedTasks = int(queued)
	toolCount, err := r.ReadUint32()
	if err != nil {
		return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo toolIds count: %w", err)
	}
	if toolCount > 0 {
		i.ToolIDs = make([]string, toolCount)
	}
	for n := range i.ToolIDs {
		if i.ToolIDs[n], err = r.ReadString(); err != nil {
			return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo toolId %d: %w", n, err)
		}
	}
	clientCount, err := r.ReadUint32()
	if err != nil {
		return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo clients count: %w", err)
	}
	if clientCount > 0 {
		i.ConnectedClients = make([]string, clientCount)
	}
	for n := range i.ConnectedClients {
		if i.ConnectedClients[n], err = r.ReadString(); err != nil {
			return ToolServerInfo{}, fmt.Errorf("registry: toolServerInfo client %d: %w", n, err)
		}
	}
	return i, nil
}

// CoordinatorInfo is the full registry snapshot a coordinator broadcasts to
// every subscriber after any mutation (coalesced within a 50ms window).
type CoordinatorInfo struct {
	ToolServers []ToolServerInfo
	Message     string
}

// Sorted returns a copy of info with ToolServers ordered by Key, for
// deterministic comparison and logging.
func (info CoordinatorInfo) Sorted() CoordinatorInfo {
	out := CoordinatorInfo{
		ToolServers: append([]ToolServerInfo(nil), info.ToolServers...),
		Message:     info.Message,
	}
	sort.Slice(out.ToolServers, func(a, b int) bool {
		return out.ToolServers[a].Key() < out.ToolServers[b].Key()
	})
	return out
}

// Encode renders info as a wire payload.
func (info CoordinatorInfo) Encode() []byte {
	w := wire.NewWriter()
	w.WriteUint32(uint32(len(info.ToolServers)))
	for _, ts := range info.ToolServers {
		ts.encode(w)
	}
	w.WriteString(info.Message)
	return w.Bytes()
}

// DecodeCoordinatorInfo parses a CoordinatorInfo payload.
func DecodeCoordinatorInfo(payload []byte) (CoordinatorInfo, error) {
	r := wire.NewReader(payload)
	count, err := r.ReadUint32()
	if err != nil {
		return CoordinatorInfo{}, fmt.Errorf("registry: coordinatorInfo count: %w", err)
	}
	info := CoordinatorInfo{ToolServers: make([]ToolServerInfo, count)}
	for n := range info.ToolServers {
		ts, err := decodeToolServerInfo(r)
		if err != nil {
			return CoordinatorInfo{}, fmt.Errorf("registry: coordinatorInfo toolServer %d: %w", n, err)
		}
		info.ToolServers[n] = ts
	}
	if info.Message, err = r.ReadString(); err != nil {
		return CoordinatorInfo{}, fmt.Errorf("registry: coordinatorInfo message: %w", err)
	}
	return info, nil
}

// Merge combines info with other, keeping the entry for each (host, port)
// key from whichever snapshot listed it — used by the coordinator client's
// "All" redundance mode where later-published entries for the same worker
// win. other is treated as the later snapshot.
func Merge(base, other CoordinatorInfo) CoordinatorInfo {
	byKey := make(map[string]ToolServerInfo, len(base.ToolServers)+len(other.ToolServers))
	order := make([]string, 0, len(base.ToolServers)+len(other.ToolServers))
	for _, ts := range base.ToolServers {
		if _, ok := byKey[ts.Key()]; !ok {
			order = append(order, ts.Key())
		}
		byKey[ts.Key()] = ts
	}
	for _, ts := range other.ToolServers {
		if _, ok := byKey[ts.Key()]; !ok {
			order = append(order, ts.Key())
		}
		byKey[ts.Key()] = ts
	}
	merged := CoordinatorInfo{ToolServers: make([]ToolServerInfo, 0, len(order))}
	for _, k := range order {
		merged.ToolServers = append(merged.ToolServers, byKey[k])
	}
	if other.Message != "" {
		merged.Message = other.Message
	} else {
		merged.Message = base.Message
	}
	return merged
}
