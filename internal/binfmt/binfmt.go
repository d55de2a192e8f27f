// Package binfmt decodes the little-endian integer and length-prefixed byte
// fields used by every record in the ZIP format.
//
// Every helper here takes a fully-buffered slice: callers are responsible for
// making sure enough bytes have accumulated before calling, since the FSMs
// that use this package may suspend mid-record waiting for more input.
package binfmt

import "encoding/binary"

// U16 reads a little-endian uint16 at the start of b.
func U16(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }

// U32 reads a little-endian uint32 at the start of b.
func U32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// U64 reads a little-endian uint64 at the start of b.
func U64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }

// TLV is one tag-length-value entry from an extra field block.
type TLV struct {
	Tag     uint16
	Payload []byte
}

// ParseTLVs walks b as a sequence of (tag uint16, len uint16, payload) triples,
// stopping (without error) at the first truncated entry: extra-field blocks
// are sometimes padded or slightly malformed in the wild, and the rest of the
// catalogue should still be usable.
func ParseTLVs(b []byte) []TLV {
	var out []TLV
	for len(b) >= 4 {
		tag := U16(b)
		n := int(U16(b[2:]))
		if len(b) < 4+n {
			break
		}
		out = append(out, TLV{Tag: tag, Payload: b[4 : 4+n]})
		b = b[4+n:]
	}
	return out
}
