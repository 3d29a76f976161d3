package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envLookup(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode=%q, want dev", cfg.Mode)
	}
	if cfg.LogFormat != LogFormatText {
		t.Errorf("LogFormat=%q, want text in dev mode", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel=%v, want debug in dev mode", cfg.LogLevel)
	}
	if cfg.AuthMode != AuthModeNone {
		t.Errorf("AuthMode=%q, want none", cfg.AuthMode)
	}
	if cfg.DefaultStream != DefaultStreamName {
		t.Errorf("DefaultStream=%q, want %q", cfg.DefaultStream, DefaultStreamName)
	}
	if cfg.Quality != DefaultQuality {
		t.Errorf("Quality=%q, want %q", cfg.Quality, DefaultQuality)
	}
	if cfg.WebRTCUDPPortRange != nil {
		t.Errorf("WebRTCUDPPortRange=%v, want nil", cfg.WebRTCUDPPortRange)
	}
	if cfg.PLIInterval != DefaultPLIInterval {
		t.Errorf("PLIInterval=%v, want %v", cfg.PLIInterval, DefaultPLIInterval)
	}
	if !IsUnspecifiedIP(cfg.WebRTCUDPListenIP) {
		t.Errorf("WebRTCUDPListenIP=%v, want unspecified", cfg.WebRTCUDPListenIP)
	}
	if cfg.ICEConfigError() != nil {
		t.Errorf("ICEConfigError=%v, want nil", cfg.ICEConfigError())
	}
}

func TestLoad_ProdDefaultsToJSONInfo(t *testing.T) {
	cfg, err := load(envLookup(map[string]string{"BROADCAST_RELAY_MODE": "prod"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Errorf("LogFormat=%q, want json in prod mode", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel=%v, want info in prod mode", cfg.LogLevel)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"BROADCAST_RELAY_LISTEN_ADDR":      "0.0.0.0:9090",
		"BROADCAST_RELAY_MODE":             "prod",
		"BROADCAST_RELAY_LOG_FORMAT":       "text",
		"BROADCAST_RELAY_LOG_LEVEL":        "warn",
		"BROADCAST_RELAY_SHUTDOWN_TIMEOUT": "5s",
		"ALLOWED_ORIGINS":                  "https://app.example.com, https://admin.example.com",
		"AUTH_MODE":                        "api_key",
		"API_KEY":                          "k",
		"MAX_SESSIONS":                     "40",
		"MAX_VIEWERS_PER_STREAM":           "16",
		"DEFAULT_STREAM":                   "lobby",
		"DEFAULT_QUALITY":                  "480",
		"PLI_INTERVAL":                     "0s",
		"WEBRTC_UDP_PORT_MIN":              "50000",
		"WEBRTC_UDP_PORT_MAX":              "50100",
		"WEBRTC_SESSION_CONNECT_TIMEOUT":   "10s",
	}
	cfg, err := load(envLookup(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9090" {
		t.Errorf("ListenAddr=%q", cfg.ListenAddr)
	}
	if cfg.LogFormat != LogFormatText || cfg.LogLevel != slog.LevelWarn {
		t.Errorf("log config=(%q, %v)", cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout=%v", cfg.ShutdownTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
	if cfg.AuthMode != AuthModeAPIKey || cfg.APIKey != "k" {
		t.Errorf("auth=(%q, %q)", cfg.AuthMode, cfg.APIKey)
	}
	if cfg.MaxSessions != 40 || cfg.MaxViewersPerStream != 16 {
		t.Errorf("limits=(%d, %d)", cfg.MaxSessions, cfg.MaxViewersPerStream)
	}
	if cfg.DefaultStream != "lobby" || cfg.Quality != "480" {
		t.Errorf("stream=(%q, %q)", cfg.DefaultStream, cfg.Quality)
	}
	if cfg.PLIInterval != 0 {
		t.Errorf("PLIInterval=%v, want 0", cfg.PLIInterval)
	}
	if cfg.WebRTCUDPPortRange == nil || cfg.WebRTCUDPPortRange.Min != 50000 || cfg.WebRTCUDPPortRange.Max != 50100 {
		t.Errorf("WebRTCUDPPortRange=%v", cfg.WebRTCUDPPortRange)
	}
	if cfg.WebRTCSessionConnectTimeout != 10*time.Second {
		t.Errorf("WebRTCSessionConnectTimeout=%v", cfg.WebRTCSessionConnectTimeout)
	}
}

func TestLoad_AuthModeRequiresSecret(t *testing.T) {
	if _, err := load(envLookup(map[string]string{"AUTH_MODE": "api_key"}), nil); err == nil {
		t.Error("AUTH_MODE=api_key without API_KEY should fail")
	}
	if _, err := load(envLookup(map[string]string{"AUTH_MODE": "jwt"}), nil); err == nil {
		t.Error("AUTH_MODE=jwt without JWT_SECRET should fail")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	bad := []map[string]string{
		{"BROADCAST_RELAY_MODE": "staging"},
		{"BROADCAST_RELAY_LOG_FORMAT": "xml"},
		{"BROADCAST_RELAY_LOG_LEVEL": "verbose"},
		{"ALLOWED_ORIGINS": "app.example.com"},
		{"AUTH_MODE": "basic"},
		{"DEFAULT_QUALITY": "144"},
		{"WEBRTC_UDP_PORT_MIN": "50100", "WEBRTC_UDP_PORT_MAX": "50000"},
		{"WEBRTC_UDP_PORT_MIN": "50000"},
		{"WEBRTC_UDP_PORT_MIN": "0", "WEBRTC_UDP_PORT_MAX": "70000"},
		{"WEBRTC_NAT_1TO1_IPS": "not-an-ip"},
		{"WEBRTC_NAT_1TO1_IP_CANDIDATE_TYPE": "relay"},
		{"WEBRTC_UDP_LISTEN_IP": "localhost"},
		{"PLI_INTERVAL": "-1s"},
		{"DEFAULT_STREAM": " "},
	}
	for _, env := range bad {
		if _, err := load(envLookup(env), nil); err == nil {
			t.Errorf("load with %v should fail", env)
		}
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	env := map[string]string{
		"BROADCAST_RELAY_LISTEN_ADDR": "127.0.0.1:1111",
		"BROADCAST_RELAY_MODE":        "prod",
	}
	cfg, err := load(envLookup(env), []string{
		"-listen-addr", "127.0.0.1:2222",
		"-mode", "dev",
		"-webrtc-udp-port-min", "40000",
		"-webrtc-udp-port-max", "40050",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:2222" {
		t.Errorf("ListenAddr=%q, want flag value", cfg.ListenAddr)
	}
	if cfg.Mode != ModeDev {
		t.Errorf("Mode=%q, want flag value dev", cfg.Mode)
	}
	if cfg.WebRTCUDPPortRange == nil || cfg.WebRTCUDPPortRange.Min != 40000 || cfg.WebRTCUDPPortRange.Max != 40050 {
		t.Errorf("WebRTCUDPPortRange=%v", cfg.WebRTCUDPPortRange)
	}
}

func TestLoad_RejectsPositionalArgs(t *testing.T) {
	if _, err := load(envLookup(nil), []string{"serve"}); err == nil {
		t.Error("positional args should fail")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	contents := `
listen_addr = "0.0.0.0:8443"
mode = "prod"
allowed_origins = ["https://app.example.com"]
max_viewers_per_stream = 8
default_stream = "main"
pli_interval = "1s"

[auth]
mode = "jwt"
jwt_secret = "file-secret"

[ice]
stun_urls = ["stun:stun.example.com:3478"]

[turn_rest]
shared_secret = "trs"
ttl_seconds = 120

[webrtc]
udp_port_min = 50000
udp_port_max = 50200
session_connect_timeout = "12s"

[signaling]
max_messages_per_second = 10
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	// Env still beats the file.
	env := map[string]string{"BROADCAST_RELAY_LISTEN_ADDR": "0.0.0.0:9999"}
	cfg, err := load(envLookup(env), []string{"-config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("ListenAddr=%q, env should override file", cfg.ListenAddr)
	}
	if cfg.Mode != ModeProd {
		t.Errorf("Mode=%q, want prod from file", cfg.Mode)
	}
	if cfg.AuthMode != AuthModeJWT || cfg.JWTSecret != "file-secret" {
		t.Errorf("auth=(%q, %q)", cfg.AuthMode, cfg.JWTSecret)
	}
	if cfg.MaxViewersPerStream != 8 {
		t.Errorf("MaxViewersPerStream=%d", cfg.MaxViewersPerStream)
	}
	if cfg.DefaultStream != "main" || cfg.PLIInterval != time.Second {
		t.Errorf("stream=(%q, %v)", cfg.DefaultStream, cfg.PLIInterval)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("ICEServers=%v", cfg.ICEServers)
	}
	if !cfg.TURNREST.Enabled() || cfg.TURNREST.TTLSeconds != 120 {
		t.Errorf("TURNREST=%+v", cfg.TURNREST)
	}
	if cfg.WebRTCUDPPortRange == nil || cfg.WebRTCUDPPortRange.Max != 50200 {
		t.Errorf("WebRTCUDPPortRange=%v", cfg.WebRTCUDPPortRange)
	}
	if cfg.WebRTCSessionConnectTimeout != 12*time.Second {
		t.Errorf("WebRTCSessionConnectTimeout=%v", cfg.WebRTCSessionConnectTimeout)
	}
	if cfg.MaxSignalingMessagesPerSecond != 10 {
		t.Errorf("MaxSignalingMessagesPerSecond=%d", cfg.MaxSignalingMessagesPerSecond)
	}
}

func TestLoad_ConfigFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte("listen_adr = \"oops\"\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	_, err := load(envLookup(nil), []string{"-config", path})
	if err == nil || !strings.Contains(err.Error(), "unknown keys") {
		t.Fatalf("err=%v, want unknown keys error", err)
	}
}

func TestPortRangeTooSmall(t *testing.T) {
	cfg := Config{}
	if cfg.PortRangeTooSmall() {
		t.Error("nil range should not warn")
	}
	cfg.WebRTCUDPPortRange = &UDPPortRange{Min: 50000, Max: 50010}
	if !cfg.PortRangeTooSmall() {
		t.Error("11-port range should warn")
	}
	cfg.WebRTCUDPPortRange = &UDPPortRange{Min: 50000, Max: 50099}
	if cfg.PortRangeTooSmall() {
		t.Error("100-port range should not warn")
	}
}
