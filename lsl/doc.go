// Package lsl implements the publisher side of a minimal Lab Streaming
// Layer compatible outlet: a UDP responder that answers shortinfo discovery
// queries, a TCP streamfeed endpoint that serves sample frames to any number
// of consumers, and the stream metadata document both of them share.
//
// The wire format follows the LSL conventions: little-endian frames of
// [tag byte][float64 timestamp][channel values], one frame per pushed
// sample, preceded by a plain-text handshake. Consumers that fall behind
// lose whole frames rather than stalling the producer.
package lsl
