// Package session owns the single-session connection lifecycle.
//
// Ownership boundary:
// - the generic read/feed/decode loop shared by every transport
// - inline ping/pong housekeeping
// - the direct vs queued dispatch split
// - timeout-driven teardown and codec reset
//
// One session serves one byte stream for its whole lifetime. The
// transport decides when a session exists; the session decides when it
// dies.
package session
