package webrtcpeer

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
)

// Registry tracks every live session for quota enforcement and shutdown.
type Registry struct {
	log            *slog.Logger
	metrics        *metrics.Metrics
	maxSessions    int
	connectTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

type RegistryConfig struct {
	// MaxSessions bounds concurrent publisher+viewer sessions. 0 means
	// unlimited.
	MaxSessions int

	// ConnectTimeout closes sessions that never reach the connected state.
	// 0 disables the watchdog.
	ConnectTimeout time.Duration
}

func NewRegistry(log *slog.Logger, m *metrics.Metrics, cfg RegistryConfig) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Registry{
		log:            log,
		metrics:        m,
		maxSessions:    cfg.MaxSessions,
		connectTimeout: cfg.ConnectTimeout,
		sessions:       make(map[string]*Session),
	}
}

const (
	sessionMapKeyRandomPrefix   = "id:"
	sessionMapKeyIdentityPrefix = "sub:"
)

func randomSessionMapKey(id string) string         { return sessionMapKeyRandomPrefix + id }
func identitySessionMapKey(identity string) string { return sessionMapKeyIdentityPrefix + identity }

func newSessionID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

func (r *Registry) sessionIDInUseLocked(id string) bool {
	for _, sess := range r.sessions {
		if sess.ID() == id {
			return true
		}
	}
	return false
}

type SessionParams struct {
	API        *webrtc.API
	ICEServers []webrtc.ICEServer
	Kind       Kind
	Stream     string

	// IdentityKey is a stable identity (JWT sub). When non-empty, only one
	// active session may exist for that identity, preventing clients from
	// bypassing the session quota with many parallel credentials mapping to
	// the same subject. The session's public ID remains random.
	IdentityKey string
}

// NewSession allocates a session slot and creates its PeerConnection.
func (r *Registry) NewSession(p SessionParams) (*Session, error) {
	if p.API == nil {
		return nil, errors.New("nil webrtc API")
	}

	for attempt := 0; attempt < 3; attempt++ {
		id, err := newSessionID()
		if err != nil {
			return nil, err
		}
		mapKey := randomSessionMapKey(id)
		if p.IdentityKey != "" {
			mapKey = identitySessionMapKey(p.IdentityKey)
		}

		r.mu.Lock()
		if p.IdentityKey != "" {
			if _, ok := r.sessions[mapKey]; ok {
				r.mu.Unlock()
				return nil, ErrSessionAlreadyActive
			}
		}
		if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
			r.metrics.Inc(metrics.TooManySessions)
			r.mu.Unlock()
			return nil, ErrTooManySessions
		}
		if r.sessionIDInUseLocked(id) {
			// Extremely unlikely (16 bytes of crypto-random entropy). Try again.
			r.mu.Unlock()
			continue
		}

		s := &Session{
			id:      id,
			kind:    p.Kind,
			stream:  p.Stream,
			log:     r.log.With("session", id, "kind", string(p.Kind), "stream", p.Stream),
			metrics: r.metrics,
			done:    make(chan struct{}),
			onClose: func() {
				r.deleteSession(mapKey)
				r.metrics.Inc(metrics.SessionsClosed)
			},
		}
		r.sessions[mapKey] = s
		r.mu.Unlock()

		pc, err := p.API.NewPeerConnection(webrtc.Configuration{ICEServers: p.ICEServers})
		if err != nil {
			r.deleteSession(mapKey)
			return nil, err
		}
		s.pc = pc
		pc.OnConnectionStateChange(s.handleConnectionState)
		s.startWatchdog(r.connectTimeout)
		return s, nil
	}

	return nil, errors.New("failed to allocate unique session id")
}

func (r *Registry) deleteSession(mapKey string) {
	r.mu.Lock()
	delete(r.sessions, mapKey)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll tears down every live session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
