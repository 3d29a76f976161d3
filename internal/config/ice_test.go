package config

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestParseICEServers_FromJSON(t *testing.T) {
	raw := `[
		{"urls": ["stun:stun.example.com:3478"]},
		{"urls": ["turn:turn.example.com:3478?transport=udp", "turns:turn.example.com:5349"], "username": "u", "credential": "c"}
	]`
	servers, err := parseICEServersFromValues(raw, "", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("servers[0]=%v", servers[0])
	}
	if servers[1].Username != "u" || servers[1].Credential != "c" {
		t.Errorf("servers[1]=%v", servers[1])
	}
}

func TestParseICEServers_JSONWins(t *testing.T) {
	servers, err := parseICEServersFromValues(
		`[{"urls": ["stun:a.example.com:3478"]}]`,
		"stun:ignored.example.com:3478", "", "", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:a.example.com:3478" {
		t.Fatalf("servers=%v, JSON should take precedence", servers)
	}
}

func TestParseICEServers_Convenience(t *testing.T) {
	servers, err := parseICEServersFromValues("",
		"stun:stun1.example.com:3478, stun:stun2.example.com:3478",
		"turn:turn.example.com:3478",
		"user", "pass")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("len=%d, want 2", len(servers))
	}
	if len(servers[0].URLs) != 2 {
		t.Errorf("stun URLs=%v", servers[0].URLs)
	}
	if servers[1].Username != "user" {
		t.Errorf("turn server=%v", servers[1])
	}
}

func TestParseICEServers_Errors(t *testing.T) {
	tests := []struct {
		name                                 string
		json, stun, turn, turnUser, turnCred string
		wantSub                              string
	}{
		{name: "turn without credentials", turn: "turn:t.example.com:3478", wantSub: "requires"},
		{name: "bad stun scheme", stun: "https://stun.example.com", wantSub: "must start with"},
		{name: "bad turn scheme", turn: "stun:t.example.com:3478", turnUser: "u", turnCred: "c", wantSub: "must start with"},
		{name: "malformed json", json: `[{"urls": }`, wantSub: "invalid ICE_SERVERS_JSON"},
		{name: "json entry without urls", json: `[{"username": "u"}]`, wantSub: "has no urls"},
		{name: "json unknown field", json: `[{"urls": ["stun:s.example.com"], "credentialType": "password"}]`, wantSub: "invalid ICE_SERVERS_JSON"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseICEServersFromValues(tc.json, tc.stun, tc.turn, tc.turnUser, tc.turnCred)
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("err=%v, want substring %q", err, tc.wantSub)
			}
		})
	}
}

func TestICEServerHasTURNURL(t *testing.T) {
	tests := []struct {
		name   string
		server webrtc.ICEServer
		want   bool
	}{
		{name: "stun only", server: webrtc.ICEServer{URLs: []string{"stun:stun.example.com:3478"}}, want: false},
		{name: "turn", server: webrtc.ICEServer{URLs: []string{"turn:turn.example.com:3478?transport=udp"}}, want: true},
		{name: "turns", server: webrtc.ICEServer{URLs: []string{"turns:turn.example.com:5349"}}, want: true},
		{name: "uppercase scheme", server: webrtc.ICEServer{URLs: []string{"TURN:turn.example.com:3478"}}, want: true},
		{name: "mixed", server: webrtc.ICEServer{URLs: []string{"stun:s.example.com", " turn:t.example.com:3478"}}, want: true},
		{name: "no urls", server: webrtc.ICEServer{}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ICEServerHasTURNURL(tc.server); got != tc.want {
				t.Fatalf("got %v, want %v for %v", got, tc.want, tc.server.URLs)
			}
		})
	}
}

func TestSplitCommaSeparated(t *testing.T) {
	got := splitCommaSeparated(" a, ,b ,, c ")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got %v", got)
	}
	if splitCommaSeparated("") != nil {
		t.Fatal("empty input should yield nil")
	}
}
