package bus

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/observability"
	"github.com/danmuck/pusherctl/internal/router"
)

// NotifyFunc receives every non-network event the dispatcher drains.
// Errors are logged and absorbed; they never stop the loop.
type NotifyFunc func(ctx context.Context, ev Event) error

// Dispatcher is the single consumer of the bus. NetworkIncoming events
// go through the command router and their reply travels back over the
// event's return path; everything else fans out to the registered
// listeners.
type Dispatcher struct {
	bus    *Bus
	rt     *router.Router
	notify []NotifyFunc
	log    zerolog.Logger
}

func NewDispatcher(b *Bus, rt *router.Router, notify ...NotifyFunc) *Dispatcher {
	return &Dispatcher{
		bus:    b,
		rt:     rt,
		notify: notify,
		log:    logging.Component("dispatcher"),
	}
}

// Run drains the queue in FIFO order until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Int("capacity", d.bus.Capacity()).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-d.bus.ch:
			observability.RecordBusDepth(len(d.bus.ch))
			d.handle(ctx, ev)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) {
	if ni, ok := ev.(NetworkIncoming); ok {
		reply, code := d.rt.Dispatch(ctx, ni.Cmd, ni.Payload)
		if ni.Reply == nil {
			if code != router.CodeOK {
				d.log.Warn().Uint16("cmd", ni.Cmd).Uint16("code", code).Msg("no return path for failed command")
			}
			return
		}
		if err := ni.Reply(code, ni.Cmd, reply); err != nil {
			// The originating transport may already be gone.
			d.log.Warn().Uint16("cmd", ni.Cmd).Err(err).Msg("reply delivery failed")
		}
		return
	}

	for _, fn := range d.notify {
		if err := fn(ctx, ev); err != nil {
			d.log.Warn().Str("kind", ev.Kind()).Err(err).Msg("event listener failed")
		}
	}
}
