package origin

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantOrigin string
		wantHost   string
		wantOK     bool
	}{
		{name: "empty", header: "", wantOK: false},
		{name: "null", header: "null", wantOrigin: "null", wantHost: "", wantOK: true},
		{name: "plain http", header: "http://example.com", wantOrigin: "http://example.com", wantHost: "example.com", wantOK: true},
		{name: "uppercase host", header: "https://EXAMPLE.com", wantOrigin: "https://example.com", wantHost: "example.com", wantOK: true},
		{name: "default http port stripped", header: "http://example.com:80", wantOrigin: "http://example.com", wantHost: "example.com", wantOK: true},
		{name: "default https port stripped", header: "https://example.com:443", wantOrigin: "https://example.com", wantHost: "example.com", wantOK: true},
		{name: "explicit port kept", header: "https://example.com:8443", wantOrigin: "https://example.com:8443", wantHost: "example.com:8443", wantOK: true},
		{name: "ipv6 literal", header: "http://[::1]:8080", wantOrigin: "http://[::1]:8080", wantHost: "[::1]:8080", wantOK: true},
		{name: "trailing slash ok", header: "http://example.com/", wantOrigin: "http://example.com", wantHost: "example.com", wantOK: true},
		{name: "path rejected", header: "http://example.com/app", wantOK: false},
		{name: "query rejected", header: "http://example.com?x=1", wantOK: false},
		{name: "userinfo rejected", header: "http://user@example.com", wantOK: false},
		{name: "ws scheme rejected", header: "ws://example.com", wantOK: false},
		{name: "port zero rejected", header: "http://example.com:0", wantOK: false},
		{name: "garbage", header: "not an origin", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotOrigin, gotHost, ok := Normalize(tc.header)
			if ok != tc.wantOK {
				t.Fatalf("Normalize(%q) ok=%v, want %v", tc.header, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if gotOrigin != tc.wantOrigin || gotHost != tc.wantHost {
				t.Fatalf("Normalize(%q)=(%q, %q), want (%q, %q)", tc.header, gotOrigin, gotHost, tc.wantOrigin, tc.wantHost)
			}
		})
	}
}

func TestAllowed_AllowList(t *testing.T) {
	allowed := []string{"https://app.example.com", "http://localhost:3000"}

	if !Allowed("https://app.example.com", "app.example.com", "relay.internal", allowed) {
		t.Fatal("listed origin rejected")
	}
	if !Allowed("http://localhost:3000", "localhost:3000", "relay.internal", allowed) {
		t.Fatal("listed localhost origin rejected")
	}
	if Allowed("https://evil.example.com", "evil.example.com", "relay.internal", allowed) {
		t.Fatal("unlisted origin accepted")
	}
	if !Allowed("https://anything.example", "anything.example", "relay.internal", []string{"*"}) {
		t.Fatal("wildcard allow-list rejected origin")
	}
	if Allowed("null", "", "relay.internal", allowed) {
		t.Fatal("null origin accepted against explicit allow-list")
	}
}

func TestAllowed_SameHostDefault(t *testing.T) {
	if !Allowed("http://example.com:8080", "example.com:8080", "example.com:8080", nil) {
		t.Fatal("same host:port rejected")
	}
	if !Allowed("https://example.com", "example.com", "example.com:443", nil) {
		t.Fatal("default https port mismatch rejected")
	}
	if Allowed("http://example.com", "example.com", "other.example.com", nil) {
		t.Fatal("cross-host origin accepted")
	}
	if Allowed("null", "", "example.com", nil) {
		t.Fatal("null origin accepted by same-host policy")
	}
}
