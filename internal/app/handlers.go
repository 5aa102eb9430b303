package app

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/danmuck/pusherctl/internal/bus"
	"github.com/danmuck/pusherctl/internal/logging"
	"github.com/danmuck/pusherctl/internal/router"
)

// Handlers binds the machine commands to a router. Side effects beyond
// machine state (motor and fault notifications) go through the bus via
// TryPublish: handlers run on the dispatcher goroutine, so blocking on
// the queue the dispatcher itself drains would deadlock the loop. A
// full queue costs the notification, never the reply.
type Handlers struct {
	machine *Machine
	bus     *bus.Bus
	log     zerolog.Logger
}

func NewHandlers(m *Machine, b *bus.Bus) *Handlers {
	return &Handlers{
		machine: m,
		bus:     b,
		log:     logging.Component("app"),
	}
}

// Register installs every command route. Run once at startup, before
// the router freezes.
func (h *Handlers) Register(rt *router.Router) error {
	routes := map[uint16]router.HandlerFunc{
		CmdRequestStatus: h.RequestStatus,
		CmdLightCommand:  h.LightCommand,
		CmdMotorCommand:  h.MotorCommand,
		CmdClearFault:    h.ClearFault,
		CmdSimulateFault: h.SimulateFault,
	}
	for cmd, fn := range routes {
		if err := rt.Register(cmd, fn); err != nil {
			return fmt.Errorf("app: register 0x%04X: %w", cmd, err)
		}
	}
	return nil
}

// RequestStatus replies with a fixed 16-byte status snapshot:
// uptimeMS(4) | coins(4) | buttons(4) | faults(2) | lights(1) | motors(1).
func (h *Handlers) RequestStatus(_ context.Context, _ []byte) ([]byte, error) {
	st := h.machine.Snapshot()
	out := make([]byte, 16)
	binary.BigEndian.PutUint32(out[0:4], uint32(st.Uptime.Milliseconds()))
	binary.BigEndian.PutUint32(out[4:8], st.Coins)
	binary.BigEndian.PutUint32(out[8:12], st.Buttons)
	binary.BigEndian.PutUint16(out[12:14], st.Faults)
	out[14] = st.Lights
	out[15] = st.MotorsRunning
	return out, nil
}

// LightCommand payload: lightID(1) | on(1).
func (h *Handlers) LightCommand(_ context.Context, payload []byte) ([]byte, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("light payload %d bytes: %w", len(payload), router.ErrBadRequest)
	}
	id, on := payload[0], payload[1] != 0
	if id >= LightCount {
		return nil, fmt.Errorf("light id %d out of range: %w", id, router.ErrBadRequest)
	}
	h.machine.SetLight(id, on)
	h.log.Debug().Uint8("light", id).Bool("on", on).Msg("light set")
	return nil, nil
}

// MotorCommand payload: motorID(4) | run(1).
func (h *Handlers) MotorCommand(_ context.Context, payload []byte) ([]byte, error) {
	if len(payload) < 5 {
		return nil, fmt.Errorf("motor payload %d bytes: %w", len(payload), router.ErrBadRequest)
	}
	id := binary.BigEndian.Uint32(payload[0:4])
	run := payload[4] != 0
	if h.machine.SetMotor(id, run) && h.bus != nil {
		h.bus.TryPublish(bus.MotorStateChanged{MotorID: id, Running: run})
	}
	h.log.Debug().Uint32("motor", id).Bool("running", run).Msg("motor set")
	return nil, nil
}

// ClearFault replies with the number of faults that were latched:
// cleared(2).
func (h *Handlers) ClearFault(_ context.Context, _ []byte) ([]byte, error) {
	n := h.machine.ClearFaults()
	h.log.Info().Int("cleared", n).Msg("fault latch cleared")
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, uint16(n))
	return out, nil
}

// SimulateFault payload: hardware(2) | severity(2).
func (h *Handlers) SimulateFault(_ context.Context, payload []byte) ([]byte, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("fault payload %d bytes: %w", len(payload), router.ErrBadRequest)
	}
	hw := binary.BigEndian.Uint16(payload[0:2])
	sev := binary.BigEndian.Uint16(payload[2:4])
	h.machine.AddFault(hw, sev)
	if h.bus != nil {
		h.bus.TryPublish(bus.FaultDetected{Hardware: hw, Severity: sev})
	}
	h.log.Warn().Uint16("hardware", hw).Uint16("severity", sev).Msg("fault injected")
	return nil, nil
}

// Notify is the bus listener keeping machine state in step with
// events from producers and other handlers.
func (h *Handlers) Notify(_ context.Context, ev bus.Event) error {
	switch e := ev.(type) {
	case bus.ButtonPress:
		h.machine.RecordButton()
		h.log.Debug().Uint32("button", e.ButtonID).Dur("held", e.Duration).Msg("button press")
	case bus.CoinInsert:
		h.machine.RecordCoin(e.Value)
		h.log.Info().Uint32("channel", e.ChannelID).Uint32("value", e.Value).Msg("coin accepted")
	case bus.HeartbeatTick:
		h.machine.MarkHeartbeat(e.At)
	case bus.MotorStateChanged:
		h.log.Info().Uint32("motor", e.MotorID).Bool("running", e.Running).Msg("motor state changed")
	case bus.FaultDetected:
		h.log.Warn().Uint16("hardware", e.Hardware).Uint16("severity", e.Severity).Msg("fault detected")
	}
	return nil
}
