// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package envelope implements the uniform compression wrapper that carries
// every variable-sized payload exchanged by the fabric: {type, level,
// length, bytes}. Sender and receiver need not pre-negotiate a codec since
// the envelope header travels with every payload.
package envelope

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Type identifies the compression codec applied to an Envelope's payload.
type Type uint8

const (
	None Type = iota
	Gzip
	LZ4
	ZStd
)

// String renders a Type for logging.
func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case LZ4:
		return "lz4"
	case ZStd:
		return "zstd"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Info is the advisory compression descriptor carried alongside an Envelope
// on the wire: Type selects the codec, Level is codec-specific and
// advisory only (decoding never depends on it).
type Info struct {
	Type  Type
	Level int8
}

// ErrUnsupportedCompression is returned by Decode when the declared
// compression Type is not a compile-time supported codec.
var ErrUnsupportedCompression = errors.New("envelope: unsupported compression type")

// Envelope is the decoded form of a compressed or raw payload.
type Envelope struct {
	Info  Info
	Bytes []byte
}

// Encode compresses raw bytes per info, producing the wire-ready envelope
// payload (type + level + length + compressed bytes). Encoding never fails
// for Type == None.
func Encode(info Info, raw []byte) (Envelope, error) {
	switch info.Type {
	case None:
		return Envelope{Info: info, Bytes: raw}, nil
	case Gzip:
		var buf bytes.Buffer
		level := int(info.Level)
		if level == 0 {
			level = gzip.DefaultCompression
		}
		w, err := gzip.NewWriterLevel(&buf, clampGzipLevel(level))
		if err != nil {
			return Envelope{}, fmt.Errorf("envelope: gzip writer: %w", err)
		}
		if _, err := w.Write(raw); err != nil {
			return Envelope{}, fmt.Errorf("envelope: gzip write: %w", err)
		}
		if err := w.Close(); err != nil {
			return Envelope{}, fmt.Errorf("envelope: gzip close: %w", err)
		}
		return Envelope{Info: info, Bytes: buf.Bytes()}, nil
	case ZStd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(info.Level)))
		if err != nil {
			return Envelope{}, fmt.Errorf("envelope: zstd writer: %w", err)
		}
		defer enc.Close()
		return Envelope{Info: info, Bytes: enc.EncodeAll(raw, nil)}, nil
	case LZ4:
		return Envelope{}, ErrUnsupportedCompression
	default:
		return Envelope{}, ErrUnsupportedCompression
	}
}

// Decode decompresses an envelope's bytes back to raw payload bytes,
// validating the declared Type against compile-time capabilities.
func Decode(e Envelope) ([]byte, error) {
	switch e.Info.Type {
	case None:
		return e.Bytes, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(e.Bytes))
		if err != nil {
			return nil, fmt.Errorf("envelope: gzip reader: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("envelope: gzip read: %w", err)
		}
		return out, nil
	case ZStd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("envelope: zstd reader: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(e.Bytes, nil)
		if err != nil {
			return nil, fmt.Errorf("envelope: zstd decode: %w", err)
		}
		return out, nil
	case LZ4:
		return nil, ErrUnsupportedCompression
	default:
		return nil, ErrUnsupportedCompression
	}
}

func clampGzipLevel(level int) int {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return gzip.DefaultCompression
	}
	return level
}

func zstdLevel(level int8) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
