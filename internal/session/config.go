package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/pusherctl/internal/protocol"
)

// Mode selects how decoded commands leave the session loop.
type Mode int

const (
	// ModeDirect calls the router inline. Lowest latency; response
	// emission is coupled to the read loop.
	ModeDirect Mode = iota
	// ModeQueued publishes commands onto the event bus so one
	// dispatcher can serve several producers uniformly.
	ModeQueued
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// ParseMode maps a config string onto a Mode.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "direct":
		return ModeDirect, nil
	case "queued", "queue":
		return ModeQueued, nil
	default:
		return ModeDirect, fmt.Errorf("session: unknown dispatch mode %q", raw)
	}
}

// Config defines per-session behavior.
type Config struct {
	// ReadTimeout bounds the silence tolerated before the session is
	// torn down. It must be positive; a stuck session would otherwise
	// starve the single session slot.
	ReadTimeout time.Duration
	// Mode picks the dispatch path for decoded commands.
	Mode Mode
	// CodecCapacity sizes the codec's internal buffer.
	CodecCapacity int
	// ReadBufSize sizes the transient read buffer.
	ReadBufSize int
}

// DefaultConfig returns the defaults the original controller shipped
// with: 30s receive timeout, one-frame codec buffer.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:   30 * time.Second,
		Mode:          ModeDirect,
		CodecCapacity: protocol.MinCodecCapacity,
		ReadBufSize:   512,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.CodecCapacity <= 0 {
		c.CodecCapacity = d.CodecCapacity
	}
	if c.ReadBufSize <= 0 {
		c.ReadBufSize = d.ReadBufSize
	}
	return c
}
