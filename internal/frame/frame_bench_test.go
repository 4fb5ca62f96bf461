// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package frame

import (
	"fmt"
	"net"
	"testing"
	"time"
)

// benchHandler replies to every request it receives with a fixed-size
// payload, standing in for a tool-server echoing a compiled artifact back.
type benchHandler struct {
	replySize int
}

func (h benchHandler) OnFrame(c *Conn, frameType uint8, txID uint64, payload []byte) {
	if txID == 0 {
		return
	}
	_ = c.Reply(frameType, txID, make([]byte, h.replySize))
}

// BenchmarkConnRequestReply measures round-trip request/reply throughput
// over a Conn pair, standing in for the original's
// BenchmarkNetworkClient.cpp / BenchmarkNetworkServer.cpp pair.
func BenchmarkConnRequestReply(b *testing.B) {
	for _, size := range []int{64, 4096, 65536} {
		b.Run(sizeLabel(size), func(b *testing.B) {
			client, server := net.Pipe()
			defer client.Close()
			defer server.Close()

			cConn := NewConn(client, 0)
			sConn := NewConn(server, 0)
			defer cConn.Close()
			defer sConn.Close()

			go sConn.Serve(benchHandler{replySize: size})

			payload := make([]byte, size)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, _, _, err := cConn.Request(1, payload, 5*time.Second); err != nil {
					b.Fatalf("request %d: %v", i, err)
				}
			}
		})
	}
}

func sizeLabel(n int) string {
	if n >= 1<<10 {
		return fmt.Sprintf("%dK", n/1024)
	}
	return fmt.Sprintf("%dB", n)
}
