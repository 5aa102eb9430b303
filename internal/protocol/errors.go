package protocol

import "errors"

var (
	ErrInvalidMagic         = errors.New("protocol: invalid magic")
	ErrInvalidType          = errors.New("protocol: invalid packet type")
	ErrInvalidChecksum      = errors.New("protocol: invalid checksum")
	ErrTruncated            = errors.New("protocol: truncated data")
	ErrPayloadTooLarge      = errors.New("protocol: payload too large")
	ErrOutputBufferTooSmall = errors.New("protocol: output buffer too small")
	ErrBufferFull           = errors.New("protocol: codec buffer full")
)
