package protocol

import "encoding/binary"

const (
	// Magic is the fixed 2-byte sentinel opening every frame.
	Magic uint16 = 0xAA55

	// HeaderLen is the fixed header size:
	// magic(2) | type(1) | seq(1) | length(2) | checksum(2).
	HeaderLen = 8

	// MaxPayload bounds the declared payload length. Anything larger
	// in a header is treated as corruption, not as a bigger frame.
	MaxPayload = 1024
)

// PacketType is the closed set of frame type tags.
type PacketType uint8

const (
	TypePing     PacketType = 0x01
	TypePong     PacketType = 0x02
	TypeButton   PacketType = 0x10
	TypeCommand  PacketType = 0x20
	TypeResponse PacketType = 0x21
	TypeError    PacketType = 0xFF
)

// PacketTypeFromByte maps a wire tag onto the closed type set.
func PacketTypeFromByte(b byte) (PacketType, bool) {
	switch t := PacketType(b); t {
	case TypePing, TypePong, TypeButton, TypeCommand, TypeResponse, TypeError:
		return t, true
	default:
		return 0, false
	}
}

func (t PacketType) String() string {
	switch t {
	case TypePing:
		return "ping"
	case TypePong:
		return "pong"
	case TypeButton:
		return "button"
	case TypeCommand:
		return "command"
	case TypeResponse:
		return "response"
	case TypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Header is the fixed frame header.
type Header struct {
	Type     PacketType
	Seq      uint8
	Length   uint16
	Checksum uint16
}

// Packet is one complete decoded frame. The codec hands it over by
// value with a freshly copied payload; nothing aliases codec memory.
type Packet struct {
	Header  Header
	Payload []byte
}

// Checksum computes the header+payload checksum: the plain sum of the
// magic, type, seq and length fields plus every payload byte, mod 65536.
func Checksum(typ PacketType, seq uint8, length uint16, payload []byte) uint16 {
	sum := Magic + uint16(typ) + uint16(seq) + length
	for _, b := range payload {
		sum += uint16(b)
	}
	return sum
}

// EncodeHeader serializes h into a HeaderLen-byte array.
func EncodeHeader(h Header) [HeaderLen]byte {
	var buf [HeaderLen]byte
	binary.BigEndian.PutUint16(buf[0:2], Magic)
	buf[2] = byte(h.Type)
	buf[3] = h.Seq
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
	return buf
}

// DecodeHeader parses a fixed header from the front of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrTruncated
	}
	if binary.BigEndian.Uint16(b[0:2]) != Magic {
		return Header{}, ErrInvalidMagic
	}
	typ, ok := PacketTypeFromByte(b[2])
	if !ok {
		return Header{}, ErrInvalidType
	}
	return Header{
		Type:     typ,
		Seq:      b[3],
		Length:   binary.BigEndian.Uint16(b[4:6]),
		Checksum: binary.BigEndian.Uint16(b[6:8]),
	}, nil
}

// Verify checks the declared length and checksum against the payload.
func (p Packet) Verify() error {
	if int(p.Header.Length) != len(p.Payload) {
		return ErrTruncated
	}
	if p.Header.Checksum != Checksum(p.Header.Type, p.Header.Seq, p.Header.Length, p.Payload) {
		return ErrInvalidChecksum
	}
	return nil
}
