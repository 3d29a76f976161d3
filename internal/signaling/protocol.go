package signaling

import (
	"errors"
	"fmt"
)

const (
	// version1 is the current signaling schema version.
	version1 = 1

	RoleNamePublish = "publish"
	RoleNameView    = "view"
)

var (
	ErrUnsupportedVersion = errors.New("signaling: unsupported version")
	errInvalidRole        = errors.New("signaling: invalid role")
	errInvalidSDPType     = errors.New("signaling: invalid session description type")
	errMissingSDP         = errors.New("signaling: missing session description sdp")
)

// SessionDescription is a minimal, JSON-friendly representation of an SDP
// offer/answer. It deliberately mirrors the browser's RTCSessionDescription
// JSON shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// OfferRequest is the versioned request body for POST /offer.
type OfferRequest struct {
	Version int    `json:"version"`
	Role    string `json:"role"`
	Stream  string `json:"stream,omitempty"`

	// Quality selects a video tier for viewers ("1080", "720", "480").
	// Ignored for publishers.
	Quality string `json:"quality,omitempty"`

	Offer SessionDescription `json:"offer"`
}

// AnswerResponse is the body returned for a successful OfferRequest.
type AnswerResponse struct {
	Version int                `json:"version"`
	Answer  SessionDescription `json:"answer"`
}

func (r OfferRequest) Validate() error {
	if r.Version != version1 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, r.Version)
	}
	if r.Role != RoleNamePublish && r.Role != RoleNameView {
		return fmt.Errorf("%w: %q", errInvalidRole, r.Role)
	}
	if r.Offer.Type != "offer" {
		return fmt.Errorf("%w: %q", errInvalidSDPType, r.Offer.Type)
	}
	if r.Offer.SDP == "" {
		return errMissingSDP
	}
	return nil
}
