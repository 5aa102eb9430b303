package protocol

import (
	"bytes"
	"encoding/binary"
)

const (
	// MinCodecCapacity is the smallest usable codec buffer: one full
	// frame must always fit.
	MinCodecCapacity = HeaderLen + MaxPayload

	magicHi = byte(Magic >> 8)
	magicLo = byte(Magic & 0xFF)
)

// CodecStats counts codec-level events since the last Reset.
type CodecStats struct {
	Packets  uint64 // complete frames decoded
	Resyncs  uint64 // leading bytes discarded hunting for a frame
	Rejected uint64 // feeds refused because the buffer was full
}

// Codec turns byte-stream fragments into discrete packets and back.
// It is stateful across partial reads and resynchronizes after
// corruption by discarding one leading byte at a time. All state lives
// in a single fixed-capacity buffer allocated up front.
type Codec struct {
	buf   []byte
	stats CodecStats
}

// NewCodec creates a codec with the given buffer capacity. Capacities
// below MinCodecCapacity are raised to it so a maximum-size frame can
// always be assembled.
func NewCodec(capacity int) *Codec {
	if capacity < MinCodecCapacity {
		capacity = MinCodecCapacity
	}
	return &Codec{buf: make([]byte, 0, capacity)}
}

// Reset discards all buffered bytes and counters. A session must call
// this on teardown so no stale bytes leak into the next session.
func (c *Codec) Reset() {
	c.buf = c.buf[:0]
	c.stats = CodecStats{}
}

// Buffered reports how many unconsumed bytes are held.
func (c *Codec) Buffered() int { return len(c.buf) }

// Stats returns the counters accumulated since the last Reset.
func (c *Codec) Stats() CodecStats { return c.stats }

// Feed appends p to the internal buffer. A feed that does not fit in
// the remaining capacity is rejected whole; no partial byte is taken.
func (c *Codec) Feed(p []byte) error {
	if len(c.buf)+len(p) > cap(c.buf) {
		c.stats.Rejected++
		return ErrBufferFull
	}
	c.buf = append(c.buf, p...)
	return nil
}

// Decode extracts at most one complete packet from the buffer. A nil
// packet means more bytes are needed; call again after the next Feed.
// Corrupt or misaligned bytes are consumed silently, one byte at a
// time, until a verifiable frame or the end of the buffer is reached.
func (c *Codec) Decode() *Packet {
	for {
		// Hunt for the first plausible magic position. Everything
		// before it is junk.
		i := bytes.IndexByte(c.buf, magicHi)
		if i < 0 {
			c.stats.Resyncs += uint64(len(c.buf))
			c.buf = c.buf[:0]
			return nil
		}
		if i > 0 {
			c.stats.Resyncs += uint64(i)
			c.discard(i)
		}
		if len(c.buf) < 2 {
			return nil
		}
		if c.buf[1] != magicLo {
			c.resyncOne()
			continue
		}
		if len(c.buf) < HeaderLen {
			return nil
		}

		h, err := DecodeHeader(c.buf[:HeaderLen])
		if err != nil {
			// Bad type tag behind a coincidental magic match.
			c.resyncOne()
			continue
		}
		if h.Length > MaxPayload {
			c.resyncOne()
			continue
		}

		total := HeaderLen + int(h.Length)
		if len(c.buf) < total {
			return nil
		}

		payload := c.buf[HeaderLen:total]
		if err := (Packet{Header: h, Payload: payload}).Verify(); err != nil {
			c.resyncOne()
			continue
		}

		pkt := &Packet{Header: h}
		if h.Length > 0 {
			pkt.Payload = make([]byte, h.Length)
			copy(pkt.Payload, payload)
		}
		c.discard(total)
		c.stats.Packets++
		return pkt
	}
}

func (c *Codec) resyncOne() {
	c.stats.Resyncs++
	c.discard(1)
}

func (c *Codec) discard(n int) {
	rest := copy(c.buf, c.buf[n:])
	c.buf = c.buf[:rest]
}

// Encode serializes a frame into out and returns the number of bytes
// written.
func Encode(typ PacketType, seq uint8, payload []byte, out []byte) (int, error) {
	if len(payload) > MaxPayload {
		return 0, ErrPayloadTooLarge
	}
	total := HeaderLen + len(payload)
	if len(out) < total {
		return 0, ErrOutputBufferTooSmall
	}
	h := Header{
		Type:     typ,
		Seq:      seq,
		Length:   uint16(len(payload)),
		Checksum: Checksum(typ, seq, uint16(len(payload)), payload),
	}
	hb := EncodeHeader(h)
	copy(out, hb[:])
	copy(out[HeaderLen:], payload)
	return total, nil
}

// EncodePacket is the allocating convenience form of Encode for callers
// that do not manage their own buffers.
func EncodePacket(typ PacketType, seq uint8, payload []byte) ([]byte, error) {
	out := make([]byte, HeaderLen+len(payload))
	n, err := Encode(typ, seq, payload, out)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

// putU16 is shared by the inner payload helpers.
func putU16(dst []byte, v uint16) {
	binary.BigEndian.PutUint16(dst, v)
}
