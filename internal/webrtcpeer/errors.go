package webrtcpeer

import "errors"

var (
	// ErrTooManySessions is returned when the global session quota is
	// exhausted. Mapped to HTTP 503 by the signaling layer.
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrSessionAlreadyActive is returned when a stable identity (JWT sub)
	// already has a live session.
	ErrSessionAlreadyActive = errors.New("session already active for identity")

	// ErrSessionClosed is returned from signaling operations on a session that
	// has already been torn down.
	ErrSessionClosed = errors.New("session closed")
)
