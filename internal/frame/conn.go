// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrConnectionLost is reported to every pending request correlation when
// the underlying socket fails; the transport itself never retries.
var ErrConnectionLost = errors.New("frame: connection lost")

// ErrTimeout is reported to a pending request correlation that is not
// answered before its deadline.
var ErrTimeout = errors.New("frame: request timed out")

// ErrClosed is returned by Conn methods invoked after Close.
var ErrClosed = errors.New("frame: connection closed")

// correlationScanInterval is how often the timer wheel scans the pending
// map for expired requests.
const correlationScanInterval = 100 * time.Millisecond

// Handler receives frames that are not replies to a pending request issued
// by this side: unsolicited frames (heartbeats are handled internally and
// never reach Handler) and inbound requests from the peer.
type Handler interface {
	// OnFrame is invoked for every application frame read from the
	// connection that does not correlate to one of this side's own pending
	// requests. txID is 0 for one-way frames, non-zero for a request the
	// peer expects a reply to via Conn.Reply.
	OnFrame(c *Conn, frameType uint8, txID uint64, payload []byte)
}

type pendingEntry struct {
	deadline time.Time
	done     chan replyResult
}

type replyResult struct {
	frameType uint8
	payload   []byte
	err       error
}

// Conn wraps a net.Conn with the fabric's framing, segmentation, and
// request/response correlation. A Conn is safe for concurrent use by
// multiple goroutines: many callers may call Request or Send concurrently
// while one goroutine runs Serve.
type Conn struct {
	nc          net.Conn
	segmentSize int

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]*pendingEntry
	closed  bool
	nextTx  atomic.Uint64
	nextSeg atomic.Uint64

	heartbeatInterval time.Duration
	lastWrite         atomic.Int64 // unix nano
	lastRead          atomic.Int64 // unix nano

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewConn wraps nc. heartbeatInterval of 0 disables proactive heartbeats.
// Every frame read from the peer, heartbeats included, updates the time of
// the last read; the Conn does not act on that time and never closes a
// connection because its peer has gone quiet.
func NewConn(nc net.Conn, heartbeatInterval time.Duration) *Conn {
	c := &Conn{
		nc:                nc,
		segmentSize:       DefaultSegmentSize,
		pending:           make(map[uint64]*pendingEntry),
		heartbeatInterval: heartbeatInterval,
		stopCh:            make(chan struct{}),
	}
	now := time.Now().UnixNano()
	c.lastWrite.Store(now)
	c.lastRead.Store(now)
	go c.correlationTimer()
	if heartbeatInterval > 0 {
		go c.heartbeatLoop()
	}
	return c
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *Conn) correlationTimer() {
	ticker := time.NewTicker(correlationScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			var expired []*pendingEntry
			c.mu.Lock()
			for id, e := range c.pending {
				if !e.deadline.IsZero() && now.After(e.deadline) {
					expired = append(expired, e)
					delete(c.pending, id)
				}
			}
			c.mu.Unlock()
			for _, e := range expired {
				e.done <- replyResult{err: ErrTimeout}
			}
		}
	}
}

func (c *Conn) heartbeatLoop() {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			idleFor := time.Duration(time.Now().UnixNano() - c.lastWrite.Load())
			if idleFor >= c.heartbeatInterval {
				_ = c.Send(0, 0, nil) // frame type 0 is ConnectionStatus (heartbeat)
			}
		}
	}
}

// Send writes a one-way (txID == 0) or request (txID != 0, assigned by
// caller) application frame, transparently segmenting it if needed.
func (c *Conn) Send(frameType uint8, txID uint64, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	body := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint64(body[:8], txID)
	copy(body[8:], payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var err error
	if len(body) <= c.segmentSize {
		err = writePhysicalFrame(c.nc, frameType, body)
	} else {
		err = c.writeSegmented(frameType, body)
	}
	if err != nil {
		c.failAllPending(err)
		return err
	}
	c.lastWrite.Store(time.Now().UnixNano())
	return nil
}

// writeSegmented splits body (already carrying the txID prefix) into a
// sequence of TypeSegment physical frames. The application frameType is
// prepended to the data stream itself, as its own leading byte, so the
// receiver can recover it once the segments are reassembled by frame id.
func (c *Conn) writeSegmented(frameType uint8, body []byte) error {
	data := make([]byte, 1+len(body))
	data[0] = frameType
	copy(data[1:], body)

	frameID := c.nextSeg.Add(1)
	for seq := uint32(0); ; seq++ {
		start := int(seq) * c.segmentSize
		if start >= len(data) {
			break
		}
		end := start + c.segmentSize
		if end > len(data) {
			end = len(data)
		}
		final := end == len(data)
		segPayload := encodeSegmentPayload(frameID, seq, final, data[start:end])
		if err := writePhysicalFrame(c.nc, TypeSegment, segPayload); err != nil {
			return err
		}
		if final {
			break
		}
	}
	return nil
}

// Request sends frameType/payload expecting a reply, blocking until the
// reply arrives, the deadline passes (ErrTimeout), or the connection fails
// (ErrConnectionLost).
func (c *Conn) Request(frameType uint8, payload []byte, timeout time.Duration) (replyType uint8, replyPayload []byte, txID uint64, err error) {
	txID = c.nextTx.Add(1)
	entry := &pendingEntry{done: make(chan replyResult, 1)}
	if timeout > 0 {
		entry.deadline = time.Now().Add(timeout)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, nil, txID, ErrClosed
	}
	c.pending[txID] = entry
	c.mu.Unlock()

	if err := c.Send(frameType, txID, payload); err != nil {
		c.mu.Lock()
		delete(c.pending, txID)
		c.mu.Unlock()
		if !errors.Is(err, ErrClosed) && !errors.Is(err, ErrConnectionLost) {
			err = fmt.Errorf("%w: %v", ErrConnectionLost, err)
		}
		return 0, nil, txID, err
	}

	res := <-entry.done
	return res.frameType, res.payload, txID, res.err
}

// Reply sends a response frame correlated to txID (the id read from an
// inbound request frame passed to Handler.OnFrame).
func (c *Conn) Reply(frameType uint8, txID uint64, payload []byte) error {
	return c.Send(frameType, txID, payload)
}

// Serve runs the read loop until the connection fails or is closed,
// dispatching replies to pending requests and everything else to handler.
// It is intended to run in its own goroutine per connection (the "I/O
// reactor thread" of the concurrency model).
func (c *Conn) Serve(handler Handler) error {
	rs := newReassembler()
	for {
		frameType, payload, err := readPhysicalFrame(c.nc)
		if err != nil {
			c.failAllPending(err)
			return err
		}
		c.lastRead.Store(time.Now().UnixNano())

		if frameType == TypeSegment {
			frameID, seq, final, chunk, err := decodeSegmentPayload(payload)
			if err != nil {
				c.failAllPending(err)
				return err
			}
			full, done := rs.Add(frameID, seq, final, chunk)
			if !done {
				continue
			}
			if len(full) < 1 {
				continue
			}
			c.dispatch(full[0], full[1:], handler)
			continue
		}

		if len(payload) == 0 && frameType == 0 {
			continue // bare heartbeat carries no body
		}
		c.dispatch(frameType, payload, handler)
	}
}

func (c *Conn) dispatch(frameType uint8, body []byte, handler Handler) {
	if len(body) < 8 {
		return // malformed frame, drop rather than crash the reactor
	}
	txID := binary.LittleEndian.Uint64(body[:8])
	payload := body[8:]

	if frameType == 0 && txID == 0 && len(payload) == 0 {
		return // heartbeat, liveness already recorded by the caller
	}

	if txID != 0 {
		c.mu.Lock()
		entry, ok := c.pending[txID]
		if ok {
			delete(c.pending, txID)
		}
		c.mu.Unlock()
		if ok {
			entry.done <- replyResult{frameType: frameType, payload: payload}
			return
		}
	}

	if handler != nil {
		handler.OnFrame(c, frameType, txID, payload)
	}
}

func (c *Conn) failAllPending(err error) {
	wrapped := fmt.Errorf("%w: %v", ErrConnectionLost, err)
	if errors.Is(err, io.EOF) {
		wrapped = ErrConnectionLost
	}
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]*pendingEntry)
	c.mu.Unlock()
	for _, e := range pending {
		e.done <- replyResult{err: wrapped}
	}
}

// Close closes the underlying socket and fails every pending request with
// ErrConnectionLost.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stopCh) })
	err := c.nc.Close()
	c.failAllPending(ErrConnectionLost)
	return err
}
