package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors Config for TOML decoding. Durations are strings so the
// file uses the same "30s" syntax as the environment. Pointer fields
// distinguish "absent" from zero.
type fileConfig struct {
	ListenAddr          string   `toml:"listen_addr"`
	PublicBaseURL       string   `toml:"public_base_url"`
	AllowedOrigins      []string `toml:"allowed_origins"`
	Mode                string   `toml:"mode"`
	LogFormat           string   `toml:"log_format"`
	LogLevel            string   `toml:"log_level"`
	ShutdownTimeout     string   `toml:"shutdown_timeout"`
	ICEGatheringTimeout string   `toml:"ice_gathering_timeout"`
	StaticDir           string   `toml:"static_dir"`

	MaxSessions         *int   `toml:"max_sessions"`
	MaxViewersPerStream *int   `toml:"max_viewers_per_stream"`
	DefaultStream       string `toml:"default_stream"`
	DefaultQuality      string `toml:"default_quality"`
	PLIInterval         string `toml:"pli_interval"`

	Auth      fileAuthConfig      `toml:"auth"`
	ICE       fileICEConfig       `toml:"ice"`
	TurnREST  fileTurnRESTConfig  `toml:"turn_rest"`
	WebRTC    fileWebRTCConfig    `toml:"webrtc"`
	Signaling fileSignalingConfig `toml:"signaling"`
}

type fileAuthConfig struct {
	Mode      string `toml:"mode"`
	APIKey    string `toml:"api_key"`
	JWTSecret string `toml:"jwt_secret"`
}

type fileICEConfig struct {
	ServersJSON    string   `toml:"servers_json"`
	StunURLs       []string `toml:"stun_urls"`
	TurnURLs       []string `toml:"turn_urls"`
	TurnUsername   string   `toml:"turn_username"`
	TurnCredential string   `toml:"turn_credential"`
}

type fileTurnRESTConfig struct {
	SharedSecret   string `toml:"shared_secret"`
	TTLSeconds     *int64 `toml:"ttl_seconds"`
	UsernamePrefix string `toml:"username_prefix"`
}

type fileWebRTCConfig struct {
	UDPPortMin             *int     `toml:"udp_port_min"`
	UDPPortMax             *int     `toml:"udp_port_max"`
	SessionConnectTimeout  string   `toml:"session_connect_timeout"`
	NAT1To1IPs             []string `toml:"nat_1to1_ips"`
	NAT1To1IPCandidateType string   `toml:"nat_1to1_ip_candidate_type"`
	UDPListenIP            string   `toml:"udp_listen_ip"`
}

type fileSignalingConfig struct {
	AuthTimeout          string `toml:"auth_timeout"`
	WSIdleTimeout        string `toml:"ws_idle_timeout"`
	WSPingInterval       string `toml:"ws_ping_interval"`
	MaxMessageBytes      *int64 `toml:"max_message_bytes"`
	MaxMessagesPerSecond *int   `toml:"max_messages_per_second"`
}

func loadFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	meta, err := toml.Decode(string(raw), &fc)
	if err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fileConfig{}, fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}
	return fc, nil
}
