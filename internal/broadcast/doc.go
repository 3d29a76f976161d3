// Package broadcast holds the media-plane state of the relay: named streams,
// the single active publication per stream, and viewer subscriptions.
//
// A stream has at most one publisher at a time. A new publisher replaces the
// previous one ("last publisher wins"): the old publication is closed and new
// subscriptions see only the new publication's tracks. Subscriptions taken
// before the takeover keep the old track objects; those tracks simply stop
// receiving packets once the old publisher's RTP pumps exit.
//
// The package is transport-agnostic. It deals in RTP-level track handles
// (RelayTrack wraps a webrtc.TrackLocalStaticRTP, which fans a single write
// out to every bound PeerConnection); the webrtcpeer package owns the
// PeerConnections on both sides.
package broadcast
