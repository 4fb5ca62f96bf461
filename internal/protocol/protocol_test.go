// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuild-go/fabric/internal/envelope"
)

func TestRemoteToolRequestRoundTrip(t *testing.T) {
	env, err := envelope.Encode(envelope.Info{Type: envelope.Gzip, Level: 6}, []byte("int main(){}"))
	require.NoError(t, err)

	req := RemoteToolRequest{
		ClientID:  "builder-01",
		SessionID: 0xdeadbeef,
		ToolID:    "gcc9",
		Args:      []string{"-c", "foo.i", "-o", "foo.o"},
		FileData:  env,
	}

	got, err := DecodeRemoteToolRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.ClientID, got.ClientID)
	assert.Equal(t, req.SessionID, got.SessionID)
	assert.Equal(t, req.ToolID, got.ToolID)
	assert.Equal(t, req.Args, got.Args)
	assert.Equal(t, req.FileData.Info, got.FileData.Info)
	assert.Equal(t, req.FileData.Bytes, got.FileData.Bytes)
}

func TestRemoteToolRequestRoundTripEmptyArgs(t *testing.T) {
	req := RemoteToolRequest{ClientID: "c", SessionID: 1, ToolID: "t"}
	got, err := DecodeRemoteToolRequest(req.Encode())
	require.NoError(t, err)
	assert.Empty(t, got.Args)
}

func TestRemoteToolResponseRoundTrip(t *testing.T) {
	env, err := envelope.Encode(envelope.Info{Type: envelope.None}, []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)

	resp := RemoteToolResponse{
		Success:       true,
		FileData:      env,
		StdOut:        "",
		ExecutionTime: 1500 * time.Millisecond,
	}
	got, err := DecodeRemoteToolResponse(resp.Encode())
	require.NoError(t, err)
	assert.Equal(t, resp.Success, got.Success)
	assert.Equal(t, resp.FileData.Bytes, got.FileData.Bytes)
	assert.Equal(t, resp.ExecutionTime, got.ExecutionTime)
}

func TestRemoteToolResponseFailureCarriesStdOut(t *testing.T) {
	resp := RemoteToolResponse{Success: false, StdOut: "foo.cpp:1: error: bad juju"}
	got, err := DecodeRemoteToolResponse(resp.Encode())
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, resp.StdOut, got.StdOut)
	assert.Empty(t, got.FileData.Bytes)
}

func TestToolsVersionResponseRoundTrip(t *testing.T) {
	v := ToolsVersionResponse{Versions: map[string]string{
		"gcc9": "9.4.0",
		"msvc": "19.29.30133 for x64",
	}}
	got, err := DecodeToolsVersionResponse(v.Encode())
	require.NoError(t, err)
	assert.Equal(t, v.Versions, got.Versions)
}

func TestToolsVersionRequestEncodeIsEmpty(t *testing.T) {
	assert.Empty(t, ToolsVersionRequest{}.Encode())
}
