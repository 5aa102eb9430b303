package bus

import "time"

// Event is the closed set of things that can cross the bus. Producers
// append, one dispatcher consumes in FIFO order.
type Event interface {
	// Kind names the event for logs and metrics.
	Kind() string
}

// ReplyFunc carries a response back to whichever transport originated a
// NetworkIncoming event. The dispatcher holds no transport identity
// beyond this return path.
type ReplyFunc func(code, cmd uint16, data []byte) error

// NetworkIncoming is a decoded command received from a remote host.
type NetworkIncoming struct {
	Cmd     uint16
	Payload []byte
	Reply   ReplyFunc
}

// ButtonPress is one physical (or simulated) button actuation.
type ButtonPress struct {
	ButtonID uint32
	Duration time.Duration
}

// CoinInsert is one accepted coin on a channel.
type CoinInsert struct {
	ChannelID uint32
	Value     uint32
}

// HeartbeatTick is the periodic liveness pulse.
type HeartbeatTick struct {
	At time.Time
}

// MotorStateChanged reports a motor starting or stopping.
type MotorStateChanged struct {
	MotorID uint32
	Running bool
}

// FaultDetected reports a hardware fault observation.
type FaultDetected struct {
	Hardware uint16
	Severity uint16
}

func (NetworkIncoming) Kind() string   { return "network_incoming" }
func (ButtonPress) Kind() string       { return "button_press" }
func (CoinInsert) Kind() string        { return "coin_insert" }
func (HeartbeatTick) Kind() string     { return "heartbeat_tick" }
func (MotorStateChanged) Kind() string { return "motor_state_changed" }
func (FaultDetected) Kind() string     { return "fault_detected" }
