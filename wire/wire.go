// Package wire defines the packet header exposed to the network delivery
// layer and a deterministic binary codec for it, so an Event's payload
// can cross worker-thread boundaries as an immutable byte slice rather
// than a shared, mutable struct.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Flag is a bitset of TCP control flags carried in a Header.
type Flag uint8

const (
	FlagSYN Flag = 1 << iota
	FlagACK
	FlagFIN
	FlagRST
	FlagDUPACK
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

func (f Flag) String() string {
	var out string
	for _, pair := range []struct {
		bit  Flag
		name string
	}{
		{FlagSYN, "SYN"},
		{FlagACK, "ACK"},
		{FlagFIN, "FIN"},
		{FlagRST, "RST"},
		{FlagDUPACK, "DUPACK"},
	} {
		if f.Has(pair.bit) {
			if out != "" {
				out += "|"
			}
			out += pair.name
		}
	}
	if out == "" {
		return "NONE"
	}
	return out
}

// Range is a half-open sequence-number range [Begin, End), used for SACK
// blocks on the wire and for the retransmit tally's internal bookkeeping.
type Range struct {
	Begin, End uint32
}

func (r Range) Len() uint32 { return r.End - r.Begin }

func (r Range) Empty() bool { return r.End <= r.Begin }

// Overlaps reports whether r and o share any sequence numbers, or are
// adjacent (touching endpoints count as overlapping, so callers can use
// this to decide whether to coalesce).
func (r Range) Overlaps(o Range) bool {
	return r.Begin <= o.End && o.Begin <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Begin, r.End)
}

// Header is the TCP packet header carried by the network layer between
// hosts. Sequence zero is reserved for pure control packets (no payload).
type Header struct {
	SrcIP, DstIP     [4]byte
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Window           uint16
	Flags            Flag
	SACK             []Range
	TSVal, TSEcr     uint32
}

// IsControl reports whether this header carries no data sequence space.
func (h *Header) IsControl() bool { return h.Seq == 0 }

// Encode produces a stable byte representation of h, fixed header fields
// followed by one 8-byte entry per SACK block.
func (h *Header) Encode() []byte {
	buf := make([]byte, 23+8*len(h.SACK))
	copy(buf[0:4], h.SrcIP[:])
	copy(buf[4:8], h.DstIP[:])
	binary.BigEndian.PutUint16(buf[8:10], h.SrcPort)
	binary.BigEndian.PutUint16(buf[10:12], h.DstPort)
	binary.BigEndian.PutUint32(buf[12:16], h.Seq)
	binary.BigEndian.PutUint32(buf[16:20], h.Ack)
	binary.BigEndian.PutUint16(buf[20:22], h.Window)
	buf[22] = byte(h.Flags)
	off := 23
	for _, r := range h.SACK {
		binary.BigEndian.PutUint32(buf[off:off+4], r.Begin)
		binary.BigEndian.PutUint32(buf[off+4:off+8], r.End)
		off += 8
	}
	return buf
}

// Decode parses a byte slice produced by Encode. TSVal/TSEcr are not part
// of the wire encoding here since the simulator keeps them in-band via the
// Go struct rather than round-tripping through bytes except at test
// boundaries; Decode zeroes them.
func Decode(buf []byte) (*Header, error) {
	if len(buf) < 23 {
		return nil, fmt.Errorf("wire: short header: %d bytes", len(buf))
	}
	if (len(buf)-23)%8 != 0 {
		return nil, fmt.Errorf("wire: trailing SACK bytes misaligned: %d", len(buf)-23)
	}
	h := &Header{}
	copy(h.SrcIP[:], buf[0:4])
	copy(h.DstIP[:], buf[4:8])
	h.SrcPort = binary.BigEndian.Uint16(buf[8:10])
	h.DstPort = binary.BigEndian.Uint16(buf[10:12])
	h.Seq = binary.BigEndian.Uint32(buf[12:16])
	h.Ack = binary.BigEndian.Uint32(buf[16:20])
	h.Window = binary.BigEndian.Uint16(buf[20:22])
	h.Flags = Flag(buf[22])
	n := (len(buf) - 23) / 8
	if n > 0 {
		h.SACK = make([]Range, n)
		off := 23
		for i := 0; i < n; i++ {
			h.SACK[i].Begin = binary.BigEndian.Uint32(buf[off : off+4])
			h.SACK[i].End = binary.BigEndian.Uint32(buf[off+4 : off+8])
			off += 8
		}
	}
	return h, nil
}
