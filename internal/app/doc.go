// Package app owns the machine-side command handlers and event
// producers.
//
// Ownership boundary:
// - command ids and their handler implementations
// - mutable machine state (lights, motors, faults, counters)
// - heartbeat and button event producers
//
// Handlers are synchronous and touch only in-memory state; anything
// that must reach other parts of the system travels over the bus.
package app
