package main

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/config"
)

func TestPeerConnectionICEServers_FiltersCredentiallessTURN(t *testing.T) {
	cfg := config.Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.example.com:3478"}},
			{URLs: []string{"turn:turn.example.com:3478?transport=udp"}},
			{URLs: []string{"turns:turn.example.com:5349"}, Username: "u", Credential: "c"},
		},
		TURNREST: config.TurnRESTConfig{
			SharedSecret:   "s",
			TTLSeconds:     600,
			UsernamePrefix: "relay",
		},
	}

	out := peerConnectionICEServers(cfg)
	if len(out) != 2 {
		t.Fatalf("got %d servers, want 2 (credentialless TURN dropped): %#v", len(out), out)
	}
	if out[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected first server: %#v", out[0])
	}
	if out[1].Username != "u" {
		t.Fatalf("expected credentialed TURN server kept: %#v", out[1])
	}
}

func TestPeerConnectionICEServers_PassthroughWithoutTURNREST(t *testing.T) {
	cfg := config.Config{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"turn:turn.example.com:3478"}},
		},
	}

	out := peerConnectionICEServers(cfg)
	if len(out) != 1 {
		t.Fatalf("got %d servers, want 1: %#v", len(out), out)
	}
}
