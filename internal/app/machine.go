package app

import (
	"sync"
	"time"
)

// Command ids understood by the controller.
const (
	CmdRequestStatus uint16 = 0x2001
	CmdLightCommand  uint16 = 0x2002
	CmdMotorCommand  uint16 = 0x2003
	CmdClearFault    uint16 = 0x2004
	CmdSimulateFault uint16 = 0x2005
)

// LightCount is how many controllable lights the cabinet has.
const LightCount = 8

// Fault is one latched hardware fault observation.
type Fault struct {
	Hardware uint16
	Severity uint16
	At       time.Time
}

// Status is a point-in-time snapshot of the machine.
type Status struct {
	Uptime        time.Duration
	Coins         uint32
	CoinValue     uint64
	Buttons       uint32
	Faults        uint16
	Lights        uint8 // bitmask, bit i = light i
	MotorsRunning uint8
	LastBeat      time.Time
}

// Machine holds the controller's mutable state. All access goes
// through the mutex; handlers and the bus listener share it.
type Machine struct {
	mu        sync.Mutex
	startedAt time.Time
	lights    uint8
	motors    map[uint32]bool
	faults    []Fault
	coins     uint32
	coinValue uint64
	buttons   uint32
	lastBeat  time.Time
}

func NewMachine() *Machine {
	return &Machine{
		startedAt: time.Now(),
		motors:    make(map[uint32]bool),
	}
}

func (m *Machine) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	running := uint8(0)
	for _, on := range m.motors {
		if on {
			running++
		}
	}
	return Status{
		Uptime:        time.Since(m.startedAt),
		Coins:         m.coins,
		CoinValue:     m.coinValue,
		Buttons:       m.buttons,
		Faults:        uint16(len(m.faults)),
		Lights:        m.lights,
		MotorsRunning: running,
		LastBeat:      m.lastBeat,
	}
}

// SetLight flips one light; ids outside the cabinet are rejected by
// the handler before this point.
func (m *Machine) SetLight(id uint8, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if on {
		m.lights |= 1 << id
	} else {
		m.lights &^= 1 << id
	}
}

// SetMotor records a motor state and reports whether it changed.
func (m *Machine) SetMotor(id uint32, running bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.motors[id] == running {
		return false
	}
	m.motors[id] = running
	return true
}

// RecordCoin counts one accepted coin and accumulates its value.
func (m *Machine) RecordCoin(value uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coins++
	m.coinValue += uint64(value)
}

func (m *Machine) RecordButton() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buttons++
}

func (m *Machine) AddFault(hardware, severity uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = append(m.faults, Fault{Hardware: hardware, Severity: severity, At: time.Now()})
}

// ClearFaults drops the fault latch and returns how many were held.
func (m *Machine) ClearFaults() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.faults)
	m.faults = nil
	return n
}

func (m *Machine) MarkHeartbeat(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastBeat = at
}
