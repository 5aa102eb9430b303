// Package transport owns the byte sources that feed sessions.
//
// Ownership boundary:
// - single-slot TCP server (stream transport, direct dispatch)
// - WebSocket byte source (queued dispatch through the event bus)
//
// Both hand the identical ByteStream capability to one generic session
// loop; swapping transports changes only the configured dispatch mode.
package transport
