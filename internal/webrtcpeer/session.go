package webrtcpeer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
)

type Kind string

const (
	KindPublisher Kind = "publisher"
	KindViewer    Kind = "viewer"
)

// Session owns one server-side PeerConnection. Signaling (HTTP offer/answer
// or WebSocket trickle) drives it from the outside; publisher/viewer media
// wiring is attached via AttachPublisher / AttachViewer.
type Session struct {
	id      string
	kind    Kind
	stream  string
	log     *slog.Logger
	metrics *metrics.Metrics
	onClose func()

	pc           *webrtc.PeerConnection
	connectTimer *time.Timer

	mu       sync.Mutex
	cleanups []func()

	closeOnce sync.Once
	done      chan struct{}
}

func (s *Session) ID() string     { return s.id }
func (s *Session) Kind() Kind     { return s.kind }
func (s *Session) Stream() string { return s.stream }

func (s *Session) PeerConnection() *webrtc.PeerConnection { return s.pc }

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// OnCleanup registers fn to run during Close, before the PeerConnection is
// closed. Cleanups run in reverse registration order.
func (s *Session) OnCleanup(fn func()) {
	s.mu.Lock()
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.connectTimer != nil {
			s.connectTimer.Stop()
		}

		s.mu.Lock()
		cleanups := s.cleanups
		s.cleanups = nil
		s.mu.Unlock()
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}

		if s.onClose != nil {
			s.onClose()
		}
		err = s.pc.Close()
		s.log.Info("session closed")
	})
	return err
}

func (s *Session) startWatchdog(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.connectTimer = time.AfterFunc(timeout, func() {
		s.metrics.Inc(metrics.ConnectTimeouts)
		s.log.Warn("session never reached connected state", "timeout", timeout)
		_ = s.Close()
	})
}

func (s *Session) handleConnectionState(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		if s.connectTimer != nil {
			s.connectTimer.Stop()
		}
		s.log.Info("session connected")
	case webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		// Disconnected is terminal: a browser that vanishes mid-stream
		// (closed tab, dropped network) must release its session and, for
		// publishers, free the stream for the next takeover rather than
		// waiting out the ICE failure timeout.
		_ = s.Close()
	}
}

// AcceptOffer runs the non-trickle HTTP exchange: apply the remote offer,
// create an answer, and wait for ICE gathering so the returned SDP carries
// the server's candidates inline. On gather timeout the answer is returned
// with whatever candidates were collected; connectivity usually survives
// because host candidates gather near-instantly.
func (s *Session) AcceptOffer(ctx context.Context, offer webrtc.SessionDescription, gatherTimeout time.Duration) (*webrtc.SessionDescription, error) {
	if _, err := s.Answer(offer); err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(s.pc)
	timer := time.NewTimer(gatherTimeout)
	defer timer.Stop()
	select {
	case <-gatherComplete:
	case <-timer.C:
		s.log.Debug("ice gathering timed out, answering with partial candidates", "timeout", gatherTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}

	local := s.pc.LocalDescription()
	if local == nil {
		return nil, errors.New("no local description after gathering")
	}
	return local, nil
}

// Answer applies the remote offer and sets a local answer without waiting for
// ICE gathering. Used by the trickle WebSocket path, where candidates flow as
// separate messages.
func (s *Session) Answer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if s.closed() {
		return nil, ErrSessionClosed
	}
	if err := s.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return s.pc.LocalDescription(), nil
}

// AddICECandidate applies a trickled remote candidate.
func (s *Session) AddICECandidate(c webrtc.ICECandidateInit) error {
	if s.closed() {
		return ErrSessionClosed
	}
	return s.pc.AddICECandidate(c)
}

// OnLocalCandidate registers fn for locally gathered candidates. fn receives
// nil once gathering completes.
func (s *Session) OnLocalCandidate(fn func(*webrtc.ICECandidate)) {
	s.pc.OnICECandidate(fn)
}
