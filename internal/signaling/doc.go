// Package signaling implements the relay's HTTP and WebSocket signaling
// surface: SDP offer/answer exchange, trickle ICE, authentication, and the
// mapping of broadcast-domain errors onto wire responses.
package signaling
