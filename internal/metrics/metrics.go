package metrics

import "sync"

// Counter names used across the relay. Names are intentionally simple; they
// surface as the `event` label of a single Prometheus counter family.
const (
	PublishersAccepted       = "publishers_accepted"
	PublisherReplaced        = "publisher_replaced"
	PublisherTrackAdded      = "publisher_track_added"
	PublisherTrackEnded      = "publisher_track_ended"
	ViewersAccepted          = "viewers_accepted"
	ViewerRejectedNoPub      = "viewer_rejected_no_publisher"
	ViewerRejectedStreamFull = "viewer_rejected_stream_full"

	RTPPacketsRelayed    = "rtp_packets_relayed"
	RTPRelayWriteErrors  = "rtp_relay_write_errors"
	KeyframeRequestsSent = "keyframe_requests_sent"

	AuthFailure     = "auth_failure"
	RateLimited     = "rate_limited"
	TooManySessions = "too_many_sessions"
	SessionsClosed  = "sessions_closed"
	ConnectTimeouts = "webrtc_connect_timeouts"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// A single registry is shared by the hub, the session registry, and the
// signaling server; the Prometheus handler exposes a point-in-time snapshot.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
