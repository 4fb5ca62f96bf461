// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

package envelope

import "github.com/wuild-go/fabric/internal/wire"

// WriteTo appends the wire encoding of e (type:u8, level:i8, length:u32,
// bytes) to w.
func (e Envelope) WriteTo(w *wire.Writer) {
	w.WriteUint8(uint8(e.Info.Type))
	w.WriteUint8(uint8(e.Info.Level))
	w.WriteBytes(e.Bytes)
}

// ReadFrom decodes an Envelope from r.
func ReadFrom(r *wire.Reader) (Envelope, error) {
	t, err := r.ReadUint8()
	if err != nil {
		return Envelope{}, err
	}
	lvl, err := r.ReadUint8()
	if err != nil {
		return Envelope{}, err
	}
	b, err := r.ReadBytes()
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Info: Info{Type: Type(t), Level: int8(lvl)}, Bytes: b}, nil
}
