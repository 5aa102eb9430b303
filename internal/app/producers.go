package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/logging"
)

// Heartbeat publishes a HeartbeatTick on every interval. One of the
// cooperative producers feeding the bus; per-producer FIFO order is
// all it needs.
type Heartbeat struct {
	interval time.Duration
	bus      *bus.Bus
	log      zerolog.Logger
}

func NewHeartbeat(interval time.Duration, b *bus.Bus) *Heartbeat {
	return &Heartbeat{
		interval: interval,
		bus:      b,
		log:      logging.Component("heartbeat"),
	}
}

func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	h.log.Info().Dur("interval", h.interval).Msg("heartbeat started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case at := <-ticker.C:
			h.bus.Publish(ctx, bus.HeartbeatTick{At: at})
		}
	}
}

// ButtonSource publishes ButtonPress events. The default source is a
// simulator cycling through the cabinet buttons; a GPIO-backed source
// replaces only the Run body, the event contract stays identical.
type ButtonSource struct {
	interval time.Duration
	buttons  uint32
	bus      *bus.Bus
	log      zerolog.Logger
}

func NewButtonSource(interval time.Duration, buttons uint32, b *bus.Bus) *ButtonSource {
	if buttons == 0 {
		buttons = 4
	}
	return &ButtonSource{
		interval: interval,
		buttons:  buttons,
		bus:      b,
		log:      logging.Component("button"),
	}
}

func (s *ButtonSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", s.interval).Uint32("buttons", s.buttons).Msg("button source started")
	id := uint32(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			id = (id + 1) % s.buttons
			s.bus.Publish(ctx, bus.ButtonPress{ButtonID: id, Duration: 100 * time.Millisecond})
		}
	}
}
