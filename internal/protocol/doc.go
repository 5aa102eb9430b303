// Package protocol owns the wire contract of the machine link.
//
// Ownership boundary:
// - packet header layout, type tags, checksum rule
// - incremental stateful codec (feed/decode/encode, resync)
// - inner command/response payload helpers
//
// Everything here is pure computation over byte slices; no I/O, no
// logging, no scheduler dependence. Transports feed bytes in, packets
// come out.
package protocol
