// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package frame implements the fabric's wire transport: length-prefixed,
// optionally segmented framing over a single full-duplex TCP connection,
// with request/response correlation by transaction id and a heartbeat sent
// on idle connections (spec §4.A). A silent peer is not detected from the
// absence of its heartbeats; a dead connection surfaces only as a read or
// write error.
//
// The physical frame header is `u8 frameType, u32 length, bytes[length]`.
// Every logical (application) frame additionally begins its payload with an
// 8-byte little-endian transaction id — zero for frames that expect no
// reply, non-zero for a request awaiting a correlated response, and equal
// to the original request's id for the response itself. Payloads larger
// than the negotiated segment size travel as a sequence of Segment frames
// that the receiver reassembles by (connection, frame id) before the
// transaction id and application payload are parsed.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// TypeSegment is reserved for segmented-payload continuation frames; it can
// never be used as an application frame type.
const TypeSegment uint8 = 0xFF

// DefaultSegmentSize is the default maximum payload size of a single
// physical frame before segmentation kicks in.
const DefaultSegmentSize = 8192

// headerSize is the byte size of the physical frame header (type + length).
const headerSize = 1 + 4

// maxFrameLength bounds the declared length of a single physical frame to
// guard against a corrupt length prefix causing an unbounded read.
const maxFrameLength = 1 << 30

// readPhysicalFrame reads one physical frame (type + length-prefixed
// payload) from r.
func readPhysicalFrame(r io.Reader) (frameType uint8, payload []byte, err error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	frameType = hdr[0]
	length := binary.LittleEndian.Uint32(hdr[1:])
	if length > maxFrameLength {
		return 0, nil, fmt.Errorf("frame: declared length %d exceeds maximum %d", length, maxFrameLength)
	}
	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	return frameType, payload, nil
}

// writePhysicalFrame writes one physical frame to w.
func writePhysicalFrame(w io.Writer, frameType uint8, payload []byte) error {
	var hdr [headerSize]byte
	hdr[0] = frameType
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// segmentHeader is the payload layout of a TypeSegment physical frame:
// frame id (u64), sequence index (u32), final flag (u8), chunk bytes.
const segmentHeaderSize = 8 + 4 + 1

func encodeSegmentPayload(frameID uint64, seq uint32, final bool, chunk []byte) []byte {
	buf := make([]byte, segmentHeaderSize+len(chunk))
	binary.LittleEndian.PutUint64(buf[0:8], frameID)
	binary.LittleEndian.PutUint32(buf[8:12], seq)
	if final {
		buf[12] = 1
	}
	copy(buf[segmentHeaderSize:], chunk)
	return buf
}

func decodeSegmentPayload(payload []byte) (frameID uint64, seq uint32, final bool, chunk []byte, err error) {
	if len(payload) < segmentHeaderSize {
		return 0, 0, false, nil, fmt.Errorf("frame: truncated segment header")
	}
	frameID = binary.LittleEndian.Uint64(payload[0:8])
	seq = binary.LittleEndian.Uint32(payload[8:12])
	final = payload[12] != 0
	chunk = payload[segmentHeaderSize:]
	return frameID, seq, final, chunk, nil
}

// reassembler accumulates segments for in-flight frame ids on one
// connection, keyed by frame id.
type reassembler struct {
	parts map[uint64][][]byte
}

func newReassembler() *reassembler {
	return &reassembler{parts: make(map[uint64][][]byte)}
}

// Add records one segment, returning the fully reassembled payload and true
// once the final segment for frameID has arrived.
func (r *reassembler) Add(frameID uint64, seq uint32, final bool, chunk []byte) ([]byte, bool) {
	parts := r.parts[frameID]
	for uint32(len(parts)) <= seq {
		parts = append(parts, nil)
	}
	parts[seq] = chunk
	r.parts[frameID] = parts

	if !final {
		return nil, false
	}
	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	delete(r.parts, frameID)
	return out, true
}
