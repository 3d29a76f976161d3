package webrtcpeer

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/broadcast"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
)

// pliMinInterval bounds upstream keyframe requests. Every joining viewer and
// every viewer-side PLI funnels into Publication.RequestKeyframe; without a
// floor a popular stream would hammer the publisher's encoder.
const pliMinInterval = 500 * time.Millisecond

// AttachPublisher installs the session as the stream's publisher. Tracks
// arriving on the PeerConnection are registered with the publication and
// pumped into its fan-out handles. Replacing the publication (a new publisher
// taking over) closes this session.
func AttachPublisher(s *Session, hub *broadcast.Hub, pliInterval time.Duration) (*broadcast.Publication, error) {
	state := &publisherState{session: s}
	pub, err := hub.Publish(s.stream, s.id, state.requestKeyframe)
	if err != nil {
		return nil, err
	}

	s.pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		track, err := pub.AddTrack(broadcast.TrackInfoFromRemote(remote))
		if err != nil {
			s.log.Warn("dropping published track", "track_id", remote.ID(), "err", err)
			return
		}
		if remote.Kind() == webrtc.RTPCodecTypeVideo {
			state.addVideoSSRC(uint32(remote.SSRC()))
		}
		go s.pumpRTP(pub, remote, track)
	})

	s.OnCleanup(pub.Close)
	go func() {
		select {
		case <-pub.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	if pliInterval > 0 {
		go state.pliLoop(pliInterval)
	}
	return pub, nil
}

func (s *Session) pumpRTP(pub *broadcast.Publication, remote *webrtc.TrackRemote, track *broadcast.RelayTrack) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed() {
				s.log.Debug("rtp read ended", "track_id", remote.ID(), "rid", remote.RID(), "err", err)
			}
			pub.TrackEnded(track)
			return
		}
		if err := track.WriteRTP(pkt); err != nil {
			s.log.Debug("rtp fan-out write failed", "track_id", track.ID(), "err", err)
		}
	}
}

// publisherState tracks the publisher's video SSRCs for upstream PLI.
type publisherState struct {
	session *Session

	mu         sync.Mutex
	videoSSRCs []uint32
	lastPLI    time.Time
}

func (ps *publisherState) addVideoSSRC(ssrc uint32) {
	ps.mu.Lock()
	ps.videoSSRCs = append(ps.videoSSRCs, ssrc)
	ps.mu.Unlock()
}

func (ps *publisherState) requestKeyframe() {
	ps.mu.Lock()
	now := time.Now()
	if now.Sub(ps.lastPLI) < pliMinInterval {
		ps.mu.Unlock()
		return
	}
	ps.lastPLI = now
	ssrcs := append([]uint32(nil), ps.videoSSRCs...)
	ps.mu.Unlock()

	if len(ssrcs) == 0 || ps.session.closed() {
		return
	}
	pkts := make([]rtcp.Packet, 0, len(ssrcs))
	for _, ssrc := range ssrcs {
		pkts = append(pkts, &rtcp.PictureLossIndication{MediaSSRC: ssrc})
	}
	if err := ps.session.pc.WriteRTCP(pkts); err != nil {
		ps.session.log.Debug("pli write failed", "err", err)
		return
	}
	ps.session.metrics.Add(metrics.KeyframeRequestsSent, uint64(len(ssrcs)))
}

// pliLoop periodically requests keyframes so late-joining viewers on the
// non-renegotiating HTTP path recover without waiting out the publisher's
// natural keyframe interval.
func (ps *publisherState) pliLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ps.requestKeyframe()
		case <-ps.session.done:
			return
		}
	}
}
