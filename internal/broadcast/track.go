package broadcast

import (
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
)

// RelayTrack is the server-side fan-out handle for one published track. A
// single WriteRTP delivers the packet to every viewer PeerConnection the
// underlying TrackLocalStaticRTP is bound to.
type RelayTrack struct {
	local   *webrtc.TrackLocalStaticRTP
	kind    webrtc.RTPCodecType
	rid     string
	metrics *metrics.Metrics
}

// TrackInfo describes one published track independently of the transport it
// arrived on.
type TrackInfo struct {
	Capability webrtc.RTPCodecCapability
	ID         string
	StreamID   string
	RID        string
	Kind       webrtc.RTPCodecType
}

func TrackInfoFromRemote(remote *webrtc.TrackRemote) TrackInfo {
	return TrackInfo{
		Capability: remote.Codec().RTPCodecCapability,
		ID:         remote.ID(),
		StreamID:   remote.StreamID(),
		RID:        remote.RID(),
		Kind:       remote.Kind(),
	}
}

func newRelayTrack(info TrackInfo, m *metrics.Metrics) (*RelayTrack, error) {
	local, err := webrtc.NewTrackLocalStaticRTP(info.Capability, info.ID, info.StreamID)
	if err != nil {
		return nil, fmt.Errorf("create local track for %s: %w", info.ID, err)
	}
	return &RelayTrack{
		local:   local,
		kind:    info.Kind,
		rid:     info.RID,
		metrics: m,
	}, nil
}

// Local returns the track to hand to viewer PeerConnections via AddTrack.
func (t *RelayTrack) Local() webrtc.TrackLocal { return t.local }

func (t *RelayTrack) ID() string                { return t.local.ID() }
func (t *RelayTrack) StreamID() string          { return t.local.StreamID() }
func (t *RelayTrack) Kind() webrtc.RTPCodecType { return t.kind }

// RID is the simulcast layer identifier, empty for non-simulcast tracks.
func (t *RelayTrack) RID() string { return t.rid }

// WriteRTP fans the packet out to all bound viewers. Viewers that detached
// mid-write surface as io.ErrClosedPipe, which is expected churn and not an
// error.
func (t *RelayTrack) WriteRTP(pkt *rtp.Packet) error {
	err := t.local.WriteRTP(pkt)
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		t.metrics.Inc(metrics.RTPRelayWriteErrors)
		return err
	}
	t.metrics.Inc(metrics.RTPPacketsRelayed)
	return nil
}

// trackKey distinguishes simulcast layers of the same remote track.
func (t *RelayTrack) key() string {
	if t.rid == "" {
		return t.local.ID()
	}
	return t.local.ID() + "/" + t.rid
}
