package webrtcpeer

import (
	"fmt"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/broadcast"
)

// AttachViewer binds the subscription's current tracks to the session and
// requests an upstream keyframe so video starts without a long freeze. Tracks
// the publisher adds later are surfaced via sub.Added; the WebSocket
// signaling path attaches those with AttachViewerTrack and renegotiates.
func AttachViewer(s *Session, sub *broadcast.Subscription) error {
	s.OnCleanup(sub.Close)

	for _, track := range sub.Tracks() {
		if _, err := AttachViewerTrack(s, sub, track); err != nil {
			return err
		}
	}
	sub.RequestKeyframe()
	return nil
}

// AttachViewerTrack adds one relay track to the viewer's PeerConnection and
// starts the RTCP loop that forwards the viewer's keyframe requests upstream.
func AttachViewerTrack(s *Session, sub *broadcast.Subscription, track *broadcast.RelayTrack) (*webrtc.RTPSender, error) {
	sender, err := s.pc.AddTrack(track.Local())
	if err != nil {
		return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
	}
	go s.forwardViewerRTCP(sub, sender)
	return sender, nil
}

// forwardViewerRTCP drains the sender's RTCP stream (required for the
// interceptor chain to run) and translates viewer-side PLI/FIR into upstream
// keyframe requests.
func (s *Session) forwardViewerRTCP(sub *broadcast.Subscription, sender *webrtc.RTPSender) {
	for {
		pkts, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				sub.RequestKeyframe()
			}
		}
	}
}
