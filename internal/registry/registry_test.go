// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolServerInfoFreeSlots(t *testing.T) {
	i := ToolServerInfo{TotalThreads: 4, RunningTasks: 1}
	assert.Equal(t, 3, i.FreeSlots())

	overloaded := ToolServerInfo{TotalThreads: 2, RunningTasks: 5}
	assert.Equal(t, 0, overloaded.FreeSlots())
}

func TestToolServerInfoHasTool(t *testing.T) {
	i := ToolServerInfo{ToolIDs: []string{"gcc9", "clang14"}}
	assert.True(t, i.HasTool("gcc9"))
	assert.False(t, i.HasTool("msvc"))
}

func TestCoordinatorInfoRoundTrip(t *testing.T) {
	info := CoordinatorInfo{
		ToolServers: []ToolServerInfo{
			{Host: "build1", Port: 9000, TotalThreads: 8, RunningTasks: 2, QueuedTasks: 0, ToolIDs: []string{"gcc9"}, ConnectedClients: []string{"dev-a"}},
			{Host: "build2", Port: 9000, TotalThreads: 16, RunningTasks: 0, QueuedTasks: 0, ToolIDs: []string{"gcc9", "clang14"}},
		},
		Message: "2 workers online",
	}

	got, err := DecodeCoordinatorInfo(info.Encode())
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestCoordinatorInfoRoundTripEmpty(t *testing.T) {
	got, err := DecodeCoordinatorInfo(CoordinatorInfo{}.Encode())
	require.NoError(t, err)
	assert.Empty(t, got.ToolServers)
	assert.Empty(t, got.Message)
}

func TestMergeLaterEntryWins(t *testing.T) {
	base := CoordinatorInfo{ToolServers: []ToolServerInfo{
		{Host: "a", Port: 1, RunningTasks: 1},
		{Host: "b", Port: 1, RunningTasks: 9},
	}}
	other := CoordinatorInfo{ToolServers: []ToolServerInfo{
		{Host: "a", Port: 1, RunningTasks: 5},
	}}

	merged := Merge(base, other)
	require.Len(t, merged.ToolServers, 2)

	byKey := make(map[string]ToolServerInfo)
	for _, ts := range merged.ToolServers {
		byKey[ts.Key()] = ts
	}
	assert.Equal(t, 5, byKey["a:1"].RunningTasks)
	assert.Equal(t, 9, byKey["b:1"].RunningTasks)
}

func TestSortedIsDeterministic(t *testing.T) {
	info := CoordinatorInfo{ToolServers: []ToolServerInfo{
		{Host: "zeta", Port: 1},
		{Host: "alpha", Port: 1},
	}}
	sorted := info.Sorted()
	require.Len(t, sorted.ToolServers, 2)
	assert.Equal(t, "alpha:1", sorted.ToolServers[0].Key())
	assert.Equal(t, "zeta:1", sorted.ToolServers[1].Key())
}
