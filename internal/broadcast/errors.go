package broadcast

import "errors"

var (
	// ErrNoPublisher is returned when a viewer subscribes to a stream that has
	// no active publication. Mapped to HTTP 409 by the signaling layer.
	ErrNoPublisher = errors.New("no active publisher for stream")

	// ErrTooManyViewers is returned when a stream's viewer quota is exhausted.
	ErrTooManyViewers = errors.New("stream viewer limit reached")

	// ErrPublicationClosed is returned when adding tracks to a publication
	// that has been replaced or shut down.
	ErrPublicationClosed = errors.New("publication closed")

	// ErrUnknownQuality is returned for quality selectors outside the
	// supported tiers.
	ErrUnknownQuality = errors.New("unknown quality tier")
)
