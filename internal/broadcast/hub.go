package broadcast

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
)

type HubConfig struct {
	// MaxViewersPerStream bounds concurrent subscriptions per stream.
	// 0 means unlimited.
	MaxViewersPerStream int

	// DefaultQuality is applied when a viewer does not pick a tier.
	DefaultQuality Quality
}

// Hub owns every named stream. Streams are created on first use and never
// removed; an idle stream is just a name with no publication.
type Hub struct {
	log        *slog.Logger
	metrics    *metrics.Metrics
	maxViewers int
	defaultQ   Quality

	mu      sync.Mutex
	streams map[string]*Stream
}

func NewHub(log *slog.Logger, m *metrics.Metrics, cfg HubConfig) *Hub {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	if cfg.DefaultQuality == "" {
		cfg.DefaultQuality = Quality720
	}
	return &Hub{
		log:        log,
		metrics:    m,
		maxViewers: cfg.MaxViewersPerStream,
		defaultQ:   cfg.DefaultQuality,
		streams:    make(map[string]*Stream),
	}
}

func (h *Hub) DefaultQuality() Quality { return h.defaultQ }

func (h *Hub) stream(name string) *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.streams[name]
	if !ok {
		s = &Stream{name: name, hub: h}
		h.streams[name] = s
	}
	return s
}

// Publish installs a new publication on the stream, replacing (and closing)
// any previous one.
func (h *Hub) Publish(streamName, sessionID string, requestKeyframe func()) (*Publication, error) {
	if streamName == "" {
		return nil, errors.New("stream name must not be empty")
	}
	return h.stream(streamName).publish(sessionID, requestKeyframe), nil
}

// Subscribe attaches a viewer to the stream's current publication.
// Returns ErrNoPublisher when the stream is idle and ErrTooManyViewers when
// the viewer quota is exhausted.
func (h *Hub) Subscribe(streamName string, q Quality) (*Subscription, error) {
	if streamName == "" {
		return nil, errors.New("stream name must not be empty")
	}
	if q == "" {
		q = h.defaultQ
	}
	return h.stream(streamName).subscribe(q)
}

// HasPublisher reports whether the stream currently has a live publication.
func (h *Hub) HasPublisher(streamName string) bool {
	h.mu.Lock()
	s, ok := h.streams[streamName]
	h.mu.Unlock()
	return ok && s.hasPublisher()
}

// CloseAll closes every live publication. Used on shutdown; viewer
// subscriptions are torn down by their owning sessions.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	streams := make([]*Stream, 0, len(h.streams))
	for _, s := range h.streams {
		streams = append(streams, s)
	}
	h.mu.Unlock()

	for _, s := range streams {
		s.mu.Lock()
		pub := s.pub
		s.mu.Unlock()
		if pub != nil {
			pub.Close()
		}
	}
}
