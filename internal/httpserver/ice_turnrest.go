package httpserver

import (
	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/config"
)

// withTURNRESTCredentials returns a copy of servers with minted TURN REST
// credentials injected into every TURN entry. Any statically configured TURN
// username/credential is replaced; STUN entries pass through untouched.
func withTURNRESTCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	if len(servers) == 0 {
		// Preserve empty (non-nil) slices so JSON responses consistently encode as
		// `[]` rather than `null`.
		return servers
	}
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if config.ICEServerHasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}
