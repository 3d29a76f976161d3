package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	// envICEServersJSON holds a full JSON array of ICE server entries, e.g.
	//
	//	[{"urls": ["stun:stun.example.com:3478"]},
	//	 {"urls": ["turn:turn.example.com:3478"], "username": "u", "credential": "c"}]
	//
	// It takes precedence over the STUN_URLS/TURN_* convenience variables.
	envICEServersJSON = "ICE_SERVERS_JSON"

	envStunURLs       = "STUN_URLS"
	envTurnURLs       = "TURN_URLS"
	envTurnUsername   = "TURN_USERNAME"
	envTurnCredential = "TURN_CREDENTIAL"
)

type iceServerJSON struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

func parseICEServersFromValues(serversJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if strings.TrimSpace(serversJSON) != "" {
		return parseICEServersJSON(serversJSON)
	}

	var servers []webrtc.ICEServer

	if urls := splitCommaSeparated(stunURLs); len(urls) > 0 {
		for _, u := range urls {
			if err := validateICEURL(u, "stun", "stuns"); err != nil {
				return nil, fmt.Errorf("%s: %w", envStunURLs, err)
			}
		}
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}

	if urls := splitCommaSeparated(turnURLs); len(urls) > 0 {
		for _, u := range urls {
			if err := validateICEURL(u, "turn", "turns"); err != nil {
				return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
			}
		}
		if turnUsername == "" || turnCredential == "" {
			return nil, fmt.Errorf("%s requires %s and %s (or use TURN REST via %s)",
				envTurnURLs, envTurnUsername, envTurnCredential, envVarTURNRESTSharedSecret)
		}
		servers = append(servers, webrtc.ICEServer{
			URLs:       urls,
			Username:   turnUsername,
			Credential: turnCredential,
		})
	}

	return servers, nil
}

func parseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerJSON
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", envICEServersJSON, err)
	}

	servers := make([]webrtc.ICEServer, 0, len(entries))
	for i, e := range entries {
		if len(e.URLs) == 0 {
			return nil, fmt.Errorf("invalid %s: entry %d has no urls", envICEServersJSON, i)
		}
		for _, u := range e.URLs {
			if err := validateICEURL(u, "stun", "stuns", "turn", "turns"); err != nil {
				return nil, fmt.Errorf("invalid %s: entry %d: %w", envICEServersJSON, i, err)
			}
		}
		server := webrtc.ICEServer{URLs: e.URLs, Username: e.Username}
		if e.Credential != "" {
			server.Credential = e.Credential
		}
		servers = append(servers, server)
	}
	return servers, nil
}

// ICEServerHasTURNURL reports whether any of the server's URLs uses a TURN
// scheme. Matching is case-insensitive: browsers accept "TURN:" and operators
// paste such values into ICE_SERVERS_JSON.
func ICEServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		url := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			return true
		}
	}
	return false
}

func validateICEURL(u string, schemes ...string) error {
	for _, s := range schemes {
		if strings.HasPrefix(u, s+":") {
			return nil
		}
	}
	return fmt.Errorf("URL %q must start with one of: %s", u, strings.Join(schemes, ":, ")+":")
}

func splitCommaSeparated(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
