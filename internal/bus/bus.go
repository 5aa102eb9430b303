// Package bus owns the bounded event channel between producers and the
// single dispatcher.
//
// Ownership boundary:
// - event variants and the reply return path
// - bounded FIFO queue with an explicit overflow policy
// - the dispatch loop draining the queue into router and listeners
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/observability"
)

// Policy fixes what happens when a producer hits a full queue. Silent
// drops change observable behavior, so the choice is explicit per
// deployment and every drop is counted and logged.
type Policy int

const (
	// PolicyBlock parks the producer until space or ctx cancellation.
	PolicyBlock Policy = iota
	// PolicyDropNewest discards the event being published.
	PolicyDropNewest
	// PolicyDropOldest evicts the head of the queue to make room.
	PolicyDropOldest
)

func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyDropNewest:
		return "drop-newest"
	case PolicyDropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a config string onto a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "block":
		return PolicyBlock, nil
	case "drop-newest", "drop_newest":
		return PolicyDropNewest, nil
	case "drop-oldest", "drop_oldest":
		return PolicyDropOldest, nil
	default:
		return PolicyBlock, fmt.Errorf("bus: unknown overflow policy %q", raw)
	}
}

var (
	ErrEventDropped = errors.New("bus: event dropped")
	ErrClosed       = errors.New("bus: closed")
)

const DefaultCapacity = 32

// Bus is the bounded FIFO decoupling producers from the dispatcher.
type Bus struct {
	ch     chan Event
	policy Policy
	log    zerolog.Logger
}

func New(capacity int, policy Policy) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ch:     make(chan Event, capacity),
		policy: policy,
		log:    logging.Component("bus"),
	}
}

// Capacity reports the fixed queue size.
func (b *Bus) Capacity() int { return cap(b.ch) }

// Depth reports how many events are queued right now.
func (b *Bus) Depth() int { return len(b.ch) }

// Publish appends ev to the queue subject to the overflow policy.
// A policy-sanctioned drop returns ErrEventDropped; producers treat it
// as non-fatal. Per-producer FIFO order holds for block and
// drop-newest; drop-oldest trades the oldest queued event for room.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	switch b.policy {
	case PolicyBlock:
		select {
		case b.ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	case PolicyDropNewest:
		select {
		case b.ch <- ev:
		default:
			b.drop(ev)
			return fmt.Errorf("%w: %s", ErrEventDropped, ev.Kind())
		}
	case PolicyDropOldest:
		for {
			select {
			case b.ch <- ev:
			default:
				select {
				case old := <-b.ch:
					b.drop(old)
				default:
				}
				continue
			}
			break
		}
	}
	observability.RecordBusPublish(ev.Kind())
	observability.RecordBusDepth(len(b.ch))
	return nil
}

// TryPublish appends ev without ever parking the caller, regardless of
// the configured policy. A full queue drops the event (counted and
// logged) and returns ErrEventDropped. Command handlers run on the
// dispatcher goroutine and must publish through this path: a blocking
// publish from inside the dispatch loop would wedge the loop against
// its own queue.
func (b *Bus) TryPublish(ev Event) error {
	select {
	case b.ch <- ev:
	default:
		b.drop(ev)
		return fmt.Errorf("%w: %s", ErrEventDropped, ev.Kind())
	}
	observability.RecordBusPublish(ev.Kind())
	observability.RecordBusDepth(len(b.ch))
	return nil
}

func (b *Bus) drop(ev Event) {
	b.log.Warn().Str("kind", ev.Kind()).Str("policy", b.policy.String()).Msg("event dropped")
	observability.RecordBusDrop(ev.Kind())
}
