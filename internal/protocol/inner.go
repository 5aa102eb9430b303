package protocol

import "encoding/binary"

// InnerCommand is the payload of a Command frame: cmd(2,BE) + data.
type InnerCommand struct {
	Cmd  uint16
	Data []byte
}

// InnerResponse is the payload of a Response frame:
// errorCode(2,BE) + cmd(2,BE) + data.
type InnerResponse struct {
	Code uint16
	Cmd  uint16
	Data []byte
}

// ParseInnerCommand splits a Command payload into cmd id and data.
// Data aliases the input; callers own the packet it came from.
func ParseInnerCommand(payload []byte) (InnerCommand, error) {
	if len(payload) < 2 {
		return InnerCommand{}, ErrTruncated
	}
	return InnerCommand{
		Cmd:  binary.BigEndian.Uint16(payload[0:2]),
		Data: payload[2:],
	}, nil
}

// EncodeInnerCommand builds a Command payload.
func EncodeInnerCommand(cmd uint16, data []byte) []byte {
	out := make([]byte, 2+len(data))
	putU16(out[0:2], cmd)
	copy(out[2:], data)
	return out
}

// ParseInnerResponse splits a Response payload.
func ParseInnerResponse(payload []byte) (InnerResponse, error) {
	if len(payload) < 4 {
		return InnerResponse{}, ErrTruncated
	}
	return InnerResponse{
		Code: binary.BigEndian.Uint16(payload[0:2]),
		Cmd:  binary.BigEndian.Uint16(payload[2:4]),
		Data: payload[4:],
	}, nil
}

// EncodeInnerResponse builds a Response payload.
func EncodeInnerResponse(code, cmd uint16, data []byte) []byte {
	out := make([]byte, 4+len(data))
	putU16(out[0:2], code)
	putU16(out[2:4], cmd)
	copy(out[4:], data)
	return out
}
