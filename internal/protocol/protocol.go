// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package protocol defines the application-level message family carried
// atop the frame transport: compile requests/responses between
// remote-tool-client and tool-server, and the version-probe exchange used
// by the status tool (spec §6).
package protocol

import (
	"fmt"
	"time"

	"github.com/wuild-go/fabric/internal/envelope"
	"github.com/wuild-go/fabric/internal/wire"
)

// Frame type ids. 0 is reserved for the transport's own heartbeat
// (frame.Conn sends it directly); application frame types start at 1.
// frame.TypeSegment (0xFF) is reserved by the transport and never
// collides with these.
const (
	FrameConnectionStatus      uint8 = 0
	FrameRemoteToolRequest     uint8 = 1
	FrameRemoteToolResponse    uint8 = 2
	FrameToolsVersionRequest   uint8 = 3
	FrameToolsVersionResponse  uint8 = 4
	FrameCoordinatorInfo       uint8 = 5
	FrameToolServerSessionInfo uint8 = 6
)

// ProtocolVersion is this side's protocol version number. It is not sent
// on the wire: no version handshake takes place, and a peer with a
// different version is not rejected.
const ProtocolVersion uint32 = 2

// RemoteToolRequest is one compile job shipped from a remote-tool client to
// a tool-server: the rewritten compile invocation plus the preprocessed
// source bytes, enveloped under the client's chosen compression.
// InputIndex and OutputIndex locate, inside Args, the argument the worker
// must rewrite to its own scratch input/output paths before spawning the
// subprocess (the invocation's ToolCommandline indices, spec §3).
type RemoteToolRequest struct {
	ClientID    string
	SessionID   uint64
	ToolID      string
	Args        []string
	InputIndex  int
	OutputIndex int
	FileData    envelope.Envelope
}

// Encode renders r as a wire payload (without the leading txID, which
// frame.Conn prepends).
func (r RemoteToolRequest) Encode() []byte {
	w := wire.NewWriter()
	w.WriteString(r.ClientID)
	w.WriteUint64(r.SessionID)
	w.WriteString(r.ToolID)
	w.WriteUint32(uint32(len(r.Args)))
	for _, a := range r.Args {
		w.WriteString(a)
	}
	w.WriteUint32(uint32(int32(r.InputIndex)))
	w.WriteUint32(uint32(int32(r.OutputIndex)))
	r.FileData.WriteTo(w)
	return w.Bytes()
}

// DecodeRemoteToolRequest parses a RemoteToolRequest payload.
func DecodeRemoteToolRequest(payload []byte) (RemoteToolRequest, error) {
	r := wire.NewReader(payload)
	var req RemoteToolRequest
	var err error
	if req.ClientID, err = r.ReadString(); err != nil {
		return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request clientId: %w", err)
	}
	if req.SessionID, err = r.ReadUint64(); err != nil {
		return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request sessionId: %w", err)
	}
	if req.ToolID, err = r.ReadString(); err != nil {
		return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request toolId: %w", err)
	}
	argc, err := r.ReadUint32()
	if err != nil {
		return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request argc: %w", err)
	}
	req.Args = make([]string, argc)
	for i := range req.Args {
		if req.Args[i], err = r.ReadString(); err != nil {
			return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request arg %d: %w", i, err)
		}
	}
	inputIdx, err := r.ReadUint32()
	if err != nil {
		return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request inputIndex: %w", err)
	}
	req.InputIndex = int(int32(inputIdx))
	outputIdx, err := r.ReadUint32()
	if err != nil {
		return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request outputIndex: %w", err)
	}
	req.OutputIndex = int(int32(outputIdx))
	if req.FileData, err = envelope.ReadFrom(r); err != nil {
		return RemoteToolRequest{}, fmt.Errorf("protocol: remote tool request fileData: %w", err)
	}
	return req, nil
}

// RemoteToolResponse is the tool-server's reply to one RemoteToolRequest.
// On Success == false, FileData is empty and StdOut carries the
// subprocess's combined output.
type RemoteToolResponse struct {
	Success       bool
	FileData      envelope.Envelope
	StdOut        string
	ExecutionTime time.Duration
}

// Encode renders resp as a wire payload.
func (resp RemoteToolResponse) Encode() []byte {
	w := wire.NewWriter()
	if resp.Success {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
	resp.FileData.WriteTo(w)
	w.WriteString(resp.StdOut)
	w.WriteUint64(uint64(resp.ExecutionTime.Microseconds()))
	return w.Bytes()
}

// DecodeRemoteToolResponse parses a RemoteToolResponse payload.
func DecodeRemoteToolResponse(payload []byte) (RemoteToolResponse, error) {
	r := wire.NewReader(payload)
	var resp RemoteToolResponse
	success, err := r.ReadUint8()
	if err != nil {
		return RemoteToolResponse{}, fmt.Errorf("protocol: remote tool response success: %w", err)
	}
	resp.Success = success != 0
	if resp.FileData, err = envelope.ReadFrom(r); err != nil {
		return RemoteToolResponse{}, fmt.Errorf("protocol: remote tool response fileData: %w", err)
	}
	if resp.StdOut, err = r.ReadString(); err != nil {
		return RemoteToolResponse{}, fmt.Errorf("protocol: remote tool response stdOut: %w", err)
	}
	micros, err := r.ReadUint64()
	if err != nil {
		return RemoteToolResponse{}, fmt.Errorf("protocol: remote tool response executionTime: %w", err)
	}
	resp.ExecutionTime = time.Duration(micros) * time.Microsecond
	return resp, nil
}

// ToolsVersionRequest carries no fields; the worker replies with its
// currently probed tool → version map.
type ToolsVersionRequest struct{}

// Encode renders an empty payload.
func (ToolsVersionRequest) Encode() []byte { return nil }

// ToolsVersionResponse reports the worker's probed versions, keyed by
// toolId.
type ToolsVersionResponse struct {
	Versions map[string]string
}

// Encode renders v as a wire payload.
func (v ToolsVersionResponse) Encode() []byte {
	w := wire.NewWriter()
	w.WriteUint32(uint32(len(v.Versions)))
	for k, val := range v.Versions {
		w.WriteString(k)
		w.WriteString(val)
	}
	return w.Bytes()
}

// DecodeToolsVersionResponse parses a ToolsVersionResponse payload.
func DecodeToolsVersionResponse(payload []byte) (ToolsVersionResponse, error) {
	r := wire.NewReader(payload)
	n, err := r.ReadUint32()
	if err != nil {
		return ToolsVersionResponse{}, fmt.Errorf("protocol: tools version response count: %w", err)
	}
	versions := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.ReadString()
		if err != nil {
			return ToolsVersionResponse{}, fmt.Errorf("protocol: tools version response key %d: %w", i, err)
		}
		val, err := r.ReadString()
		if err != nil {
			return ToolsVersionResponse{}, fmt.Errorf("protocol: tools version response value %d: %w", i, err)
		}
		versions[k] = val
	}
	return ToolsVersionResponse{Versions: versions}, nil
}
