package broadcast

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
)

// Stream is one named broadcast channel: at most one live publication plus
// any number of viewer subscriptions, bounded by the hub's viewer quota.
type Stream struct {
	name string
	hub  *Hub

	mu          sync.Mutex
	epoch       uint64
	pub         *Publication
	viewerCount int
}

func (s *Stream) Name() string { return s.name }

func (s *Stream) publish(sessionID string, requestKeyframe func()) *Publication {
	s.mu.Lock()
	old := s.pub
	s.epoch++
	p := &Publication{
		stream:          s,
		epoch:           s.epoch,
		sessionID:       sessionID,
		requestKeyframe: requestKeyframe,
		byKey:           make(map[string]*RelayTrack),
		subs:            make(map[*Subscription]struct{}),
		done:            make(chan struct{}),
	}
	s.pub = p
	s.mu.Unlock()

	s.hub.metrics.Inc(metrics.PublishersAccepted)
	if old != nil {
		s.hub.metrics.Inc(metrics.PublisherReplaced)
		s.hub.log.Info("publisher replaced",
			"stream", s.name,
			"old_session", old.sessionID,
			"new_session", sessionID,
		)
		old.Close()
	} else {
		s.hub.log.Info("publisher accepted", "stream", s.name, "session", sessionID)
	}
	return p
}

func (s *Stream) subscribe(q Quality) (*Subscription, error) {
	s.mu.Lock()
	pub := s.pub
	if pub == nil {
		s.mu.Unlock()
		s.hub.metrics.Inc(metrics.ViewerRejectedNoPub)
		return nil, ErrNoPublisher
	}
	if s.hub.maxViewers > 0 && s.viewerCount >= s.hub.maxViewers {
		s.mu.Unlock()
		s.hub.metrics.Inc(metrics.ViewerRejectedStreamFull)
		return nil, ErrTooManyViewers
	}
	s.viewerCount++
	s.mu.Unlock()

	s.hub.metrics.Inc(metrics.ViewersAccepted)
	return pub.newSubscription(q), nil
}

func (s *Stream) releaseViewer() {
	s.mu.Lock()
	if s.viewerCount > 0 {
		s.viewerCount--
	}
	s.mu.Unlock()
}

// hasPublisher reports whether a live publication exists right now.
func (s *Stream) hasPublisher() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pub != nil
}

// Publication is the handle held by a publisher session. Tracks are added as
// they arrive over the publisher's PeerConnection; closing the publication
// (publisher disconnect or last-wins takeover) stops track additions but
// leaves existing subscriptions and their track objects intact.
type Publication struct {
	stream          *Stream
	epoch           uint64
	sessionID       string
	requestKeyframe func()

	mu     sync.Mutex
	closed bool
	tracks []*RelayTrack
	byKey  map[string]*RelayTrack
	subs   map[*Subscription]struct{}

	done chan struct{}
}

func (p *Publication) Stream() string    { return p.stream.name }
func (p *Publication) SessionID() string { return p.sessionID }

// Done is closed when this publication is replaced or shut down. Publisher
// sessions watch it to tear down their PeerConnection after a takeover.
func (p *Publication) Done() <-chan struct{} { return p.done }

// AddTrack registers a published remote track and returns the fan-out handle
// the publisher session pumps RTP into.
func (p *Publication) AddTrack(info TrackInfo) (*RelayTrack, error) {
	track, err := newRelayTrack(info, p.stream.hub.metrics)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPublicationClosed
	}
	p.tracks = append(p.tracks, track)
	p.byKey[track.key()] = track
	subs := make([]*Subscription, 0, len(p.subs))
	for sub := range p.subs {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	p.stream.hub.metrics.Inc(metrics.PublisherTrackAdded)
	p.stream.hub.log.Info("publisher track added",
		"stream", p.stream.name,
		"session", p.sessionID,
		"kind", track.Kind().String(),
		"track_id", track.ID(),
		"rid", track.RID(),
	)

	for _, sub := range subs {
		sub.offer(p.selectTracks(sub.quality))
	}
	return track, nil
}

// TrackEnded records that a published track stopped delivering RTP.
func (p *Publication) TrackEnded(track *RelayTrack) {
	p.stream.hub.metrics.Inc(metrics.PublisherTrackEnded)
	p.stream.hub.log.Info("publisher track ended",
		"stream", p.stream.name,
		"session", p.sessionID,
		"track_id", track.ID(),
		"rid", track.RID(),
	)
}

// RequestKeyframe asks the publisher for a keyframe (PLI upstream). Safe to
// call after Close.
func (p *Publication) RequestKeyframe() {
	if p.requestKeyframe != nil {
		p.requestKeyframe()
	}
}

// Close detaches the publication from its stream. Idempotent.
func (p *Publication) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)

	s := p.stream
	s.mu.Lock()
	if s.pub == p {
		s.pub = nil
	}
	s.mu.Unlock()
}

// selectTracks returns the tracks a viewer at the given quality should
// receive: every audio track, plus the best-matching video layer. When the
// publisher sent simulcast (rid-tagged layers), the tier picks a layer; for a
// plain single video track the tier has nothing to select and the track is
// relayed as-is.
func (p *Publication) selectTracks(q Quality) []*RelayTrack {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []*RelayTrack
	var plainVideo []*RelayTrack
	videoByRID := make(map[string]*RelayTrack)
	for _, t := range p.tracks {
		switch {
		case t.Kind() == webrtc.RTPCodecTypeAudio:
			out = append(out, t)
		case t.RID() != "":
			videoByRID[t.RID()] = t
		default:
			plainVideo = append(plainVideo, t)
		}
	}

	if len(videoByRID) > 0 {
		for _, rid := range q.ridPreference() {
			if t, ok := videoByRID[rid]; ok {
				return append(out, t)
			}
		}
		// Publisher used rids outside the f/h/q convention; fall back to any
		// deterministic layer.
		for _, t := range p.tracks {
			if t.Kind() == webrtc.RTPCodecTypeVideo && t.RID() != "" {
				return append(out, t)
			}
		}
	}
	return append(out, plainVideo...)
}

func (p *Publication) newSubscription(q Quality) *Subscription {
	sub := &Subscription{
		pub:       p,
		quality:   q,
		delivered: make(map[string]struct{}),
		added:     make(chan *RelayTrack, subscriptionAddedBuffer),
	}

	p.mu.Lock()
	if !p.closed {
		p.subs[sub] = struct{}{}
	}
	p.mu.Unlock()
	return sub
}

const subscriptionAddedBuffer = 8

// Subscription is one viewer's attachment to a publication.
type Subscription struct {
	pub     *Publication
	quality Quality

	mu        sync.Mutex
	closed    bool
	delivered map[string]struct{}

	added chan *RelayTrack
}

func (s *Subscription) Stream() string   { return s.pub.stream.name }
func (s *Subscription) Quality() Quality { return s.quality }

// Tracks returns the tracks currently selected for this subscription and
// marks them delivered, so Added only reports tracks that arrive afterwards.
func (s *Subscription) Tracks() []*RelayTrack {
	selected := s.pub.selectTracks(s.quality)

	s.mu.Lock()
	for _, t := range selected {
		s.delivered[t.key()] = struct{}{}
	}
	s.mu.Unlock()
	return selected
}

// Added yields tracks that joined this subscription's selection after the
// Tracks snapshot: tracks the publisher added late, including a
// better-matching simulcast layer arriving after a fallback was delivered.
// Consumers that cannot renegotiate (plain HTTP offer/answer) may ignore it.
func (s *Subscription) Added() <-chan *RelayTrack { return s.added }

func (s *Subscription) offer(selected []*RelayTrack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, t := range selected {
		if _, seen := s.delivered[t.key()]; seen {
			continue
		}
		select {
		case s.added <- t:
			s.delivered[t.key()] = struct{}{}
		default:
			// Consumer is not draining; it will pick the track up on its next
			// Tracks call.
		}
	}
}

// RequestKeyframe asks the upstream publisher for a keyframe so a freshly
// attached viewer does not wait out a full keyframe interval.
func (s *Subscription) RequestKeyframe() { s.pub.RequestKeyframe() }

// Close releases the viewer slot. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	p := s.pub
	p.mu.Lock()
	delete(p.subs, s)
	p.mu.Unlock()
	p.stream.releaseViewer()
}
