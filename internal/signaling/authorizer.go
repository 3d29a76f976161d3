package signaling

import (
	"net/http"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/auth"
)

type ClientHello struct {
	// Type is the first message type observed for the session (e.g. "offer").
	Type MessageType `json:"type"`

	// Credential carries the apiKey/token from a WebSocket `{type:"auth"}`
	// message. For HTTP requests, credentials are read from headers/query
	// parameters instead.
	Credential string `json:"-"`
}

// AuthResult carries metadata about an authorized signaling request/session.
type AuthResult struct {
	Claims auth.Claims

	// IdentityKey is an optional stable identifier used to enforce one active
	// session per subject. When AUTH_MODE=jwt this is the `sub` claim; for
	// other auth modes it is empty.
	IdentityKey string
}

type Authorizer interface {
	Authorize(r *http.Request, firstMsg *ClientHello) (AuthResult, error)
}

type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(*http.Request, *ClientHello) (AuthResult, error) {
	return AuthResult{}, nil
}
