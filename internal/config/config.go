package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarConfigFile          = "BROADCAST_RELAY_CONFIG"
	envVarListenAddr          = "BROADCAST_RELAY_LISTEN_ADDR"
	envVarPublicBaseURL       = "BROADCAST_RELAY_PUBLIC_BASE_URL"
	envVarAllowedOrigins      = "ALLOWED_ORIGINS"
	envVarLogFormat           = "BROADCAST_RELAY_LOG_FORMAT"
	envVarLogLevel            = "BROADCAST_RELAY_LOG_LEVEL"
	envVarShutdownTimeout     = "BROADCAST_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode                = "BROADCAST_RELAY_MODE"
	envVarICEGatheringTimeout = "BROADCAST_RELAY_ICE_GATHERING_TIMEOUT"
	envVarStaticDir           = "BROADCAST_RELAY_STATIC_DIR"

	envVarAuthMode  = "AUTH_MODE"
	envVarAPIKey    = "API_KEY"
	envVarJWTSecret = "JWT_SECRET"

	// Broadcast policy knobs.
	envVarMaxSessions         = "MAX_SESSIONS"
	envVarMaxViewersPerStream = "MAX_VIEWERS_PER_STREAM"
	envVarDefaultStream       = "DEFAULT_STREAM"
	envVarDefaultQuality      = "DEFAULT_QUALITY"
	envVarPLIInterval         = "PLI_INTERVAL"

	// WebSocket signaling hardening.
	envVarSignalingAuthTimeout          = "SIGNALING_AUTH_TIMEOUT"
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"

	// coturn TURN REST (ephemeral) credentials.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"

	envVarWebRTCUDPPortMin = "WEBRTC_UDP_PORT_MIN"
	envVarWebRTCUDPPortMax = "WEBRTC_UDP_PORT_MAX"

	// envVarWebRTCSessionConnectTimeout bounds how long a server-side
	// PeerConnection may remain in a non-connected state before being closed.
	// This prevents clients from leaking PeerConnections via the HTTP offer
	// endpoints.
	envVarWebRTCSessionConnectTimeout = "WEBRTC_SESSION_CONNECT_TIMEOUT"

	envVarWebRTCNAT1To1IPs             = "WEBRTC_NAT_1TO1_IPS"
	envVarWebRTCNAT1To1IPCandidateType = "WEBRTC_NAT_1TO1_IP_CANDIDATE_TYPE"
	envVarWebRTCUDPListenIP            = "WEBRTC_UDP_LISTEN_IP"
)

const (
	DefaultListenAddr                  = "127.0.0.1:8080"
	DefaultShutdown                    = 15 * time.Second
	DefaultICEGatherTimeout            = 2 * time.Second
	DefaultWebRTCSessionConnectTimeout = 30 * time.Second
	DefaultMode                        = ModeDev
	DefaultAuthMode                    = AuthModeNone

	DefaultStreamName = "default"
	DefaultQuality    = "720"
	// DefaultPLIInterval is how often the relay asks the publisher for a
	// keyframe while viewers are attached. 0 disables the ticker (viewers still
	// trigger a request on join and via their own PLI/FIR).
	DefaultPLIInterval = 3 * time.Second

	DefaultMaxViewersPerStream = 0 // unlimited

	DefaultSignalingAuthTimeout          = 2 * time.Second
	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(256 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50

	DefaultTURNRESTTTLSeconds     int64 = 3600
	DefaultTURNRESTUsernamePrefix       = "relay"

	DefaultWebRTCUDPListenIP = "0.0.0.0"
)

const (
	flagConfigFile = "config"
	flagListenAddr = "listen-addr"
	flagMode       = "mode"
	flagLogFormat  = "log-format"
	flagLogLevel   = "log-level"
	flagStaticDir  = "static-dir"

	flagWebRTCUDPPortMin             = "webrtc-udp-port-min"
	flagWebRTCUDPPortMax             = "webrtc-udp-port-max"
	flagWebRTCNAT1To1IPs             = "webrtc-nat-1to1-ips"
	flagWebRTCNAT1To1IPCandidateType = "webrtc-nat-1to1-ip-candidate-type"
	flagWebRTCUDPListenIP            = "webrtc-udp-listen-ip"
)

// recommendedWebRTCUDPPortRangeSize is intentionally conservative. Every
// publisher and viewer session may consume UDP ports depending on ICE
// settings, and running out manifests as hard-to-debug connectivity failures.
const recommendedWebRTCUDPPortRangeSize = 100

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type AuthMode string

const (
	AuthModeNone   AuthMode = "none"
	AuthModeAPIKey AuthMode = "api_key"
	AuthModeJWT    AuthMode = "jwt"
)

type NAT1To1IPCandidateType string

const (
	NAT1To1CandidateTypeHost  NAT1To1IPCandidateType = "host"
	NAT1To1CandidateTypeSrflx NAT1To1IPCandidateType = "srflx"
)

type UDPPortRange struct {
	Min uint16
	Max uint16
}

type TurnRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
}

func (c TurnRESTConfig) Enabled() bool {
	return strings.TrimSpace(c.SharedSecret) != ""
}

type Config struct {
	ListenAddr          string
	PublicBaseURL       string
	AllowedOrigins      []string
	Mode                Mode
	LogFormat           LogFormat
	LogLevel            slog.Level
	ShutdownTimeout     time.Duration
	ICEGatheringTimeout time.Duration
	StaticDir           string

	AuthMode  AuthMode
	APIKey    string
	JWTSecret string

	ICEServers []webrtc.ICEServer
	TURNREST   TurnRESTConfig

	// iceConfigErr records a deferred ICE misconfiguration so /readyz can
	// report it instead of failing startup hard.
	iceConfigErr error

	WebRTCUDPPortRange           *UDPPortRange
	WebRTCSessionConnectTimeout  time.Duration
	WebRTCNAT1To1IPs             []string
	WebRTCNAT1To1IPCandidateType NAT1To1IPCandidateType
	WebRTCUDPListenIP            net.IP

	MaxSessions         int
	MaxViewersPerStream int
	DefaultStream       string
	Quality             string
	PLIInterval         time.Duration

	SignalingAuthTimeout          time.Duration
	SignalingWSIdleTimeout        time.Duration
	SignalingWSPingInterval       time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
}

// ICEConfigError returns the deferred ICE configuration error, if any.
func (c Config) ICEConfigError() error { return c.iceConfigErr }

// PeerConnectionICEServers returns the ICE server list for server-side
// PeerConnections. The server itself does not use TURN REST credentials;
// those are minted for browsers via /webrtc/ice.
func (c Config) PeerConnectionICEServers() []webrtc.ICEServer {
	return c.ICEServers
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	fs := flag.NewFlagSet("webrtc-broadcast-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String(flagConfigFile, envOrDefault(lookup, envVarConfigFile, ""), "optional TOML config file (env overrides file; flags override env)")
	listenAddrFlag := fs.String(flagListenAddr, "", "listen address (host:port)")
	modeFlag := fs.String(flagMode, "", "dev or prod")
	logFormatFlag := fs.String(flagLogFormat, "", "text or json")
	logLevelFlag := fs.String(flagLogLevel, "", "debug, info, warn, or error")
	staticDirFlag := fs.String(flagStaticDir, "", "directory served at /static/ (publisher/viewer demo pages)")
	udpPortMinFlag := fs.Uint(flagWebRTCUDPPortMin, 0, "lowest UDP port used for WebRTC media")
	udpPortMaxFlag := fs.Uint(flagWebRTCUDPPortMax, 0, "highest UDP port used for WebRTC media")
	nat1To1IPsFlag := fs.String(flagWebRTCNAT1To1IPs, "", "comma-separated public IPs to advertise as ICE candidates")
	nat1To1TypeFlag := fs.String(flagWebRTCNAT1To1IPCandidateType, "", "host or srflx")
	udpListenIPFlag := fs.String(flagWebRTCUDPListenIP, "", "restrict WebRTC UDP sockets to this local IP")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected positional arguments: %v", fs.Args())
	}

	var file fileConfig
	if *configFile != "" {
		loaded, err := loadFile(*configFile)
		if err != nil {
			return Config{}, err
		}
		file = loaded
	}

	cfg := Config{
		ListenAddr:          stringValue(lookup, envVarListenAddr, file.ListenAddr, DefaultListenAddr),
		PublicBaseURL:       stringValue(lookup, envVarPublicBaseURL, file.PublicBaseURL, ""),
		ShutdownTimeout:     DefaultShutdown,
		ICEGatheringTimeout: DefaultICEGatherTimeout,
		StaticDir:           stringValue(lookup, envVarStaticDir, file.StaticDir, ""),

		WebRTCSessionConnectTimeout: DefaultWebRTCSessionConnectTimeout,

		DefaultStream: stringValue(lookup, envVarDefaultStream, file.DefaultStream, DefaultStreamName),
		PLIInterval:   DefaultPLIInterval,

		SignalingAuthTimeout:          DefaultSignalingAuthTimeout,
		SignalingWSIdleTimeout:        DefaultSignalingWSIdleTimeout,
		SignalingWSPingInterval:       DefaultSignalingWSPingInterval,
		MaxSignalingMessageBytes:      DefaultMaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: DefaultMaxSignalingMessagesPerSecond,
	}
	if *listenAddrFlag != "" {
		cfg.ListenAddr = *listenAddrFlag
	}
	if *staticDirFlag != "" {
		cfg.StaticDir = *staticDirFlag
	}

	modeStr := stringValue(lookup, envVarMode, file.Mode, string(DefaultMode))
	if *modeFlag != "" {
		modeStr = *modeFlag
	}
	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}
	cfg.Mode = mode

	logFormatStr := stringValue(lookup, envVarLogFormat, file.LogFormat, defaultLogFormatForMode(mode))
	if *logFormatFlag != "" {
		logFormatStr = *logFormatFlag
	}
	cfg.LogFormat, err = parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}

	logLevelStr := stringValue(lookup, envVarLogLevel, file.LogLevel, defaultLogLevelForMode(mode))
	if *logLevelFlag != "" {
		logLevelStr = *logLevelFlag
	}
	cfg.LogLevel, err = parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	allowedOriginsStr := stringValue(lookup, envVarAllowedOrigins, strings.Join(file.AllowedOrigins, ","), "")
	cfg.AllowedOrigins, err = parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout, err = durationValue(lookup, envVarShutdownTimeout, file.ShutdownTimeout, DefaultShutdown); err != nil {
		return Config{}, err
	}
	if cfg.ICEGatheringTimeout, err = durationValue(lookup, envVarICEGatheringTimeout, file.ICEGatheringTimeout, DefaultICEGatherTimeout); err != nil {
		return Config{}, err
	}

	authModeStr := stringValue(lookup, envVarAuthMode, file.Auth.Mode, string(DefaultAuthMode))
	cfg.AuthMode, err = parseAuthMode(authModeStr)
	if err != nil {
		return Config{}, err
	}
	cfg.APIKey = stringValue(lookup, envVarAPIKey, file.Auth.APIKey, "")
	cfg.JWTSecret = stringValue(lookup, envVarJWTSecret, file.Auth.JWTSecret, "")
	if cfg.AuthMode == AuthModeAPIKey && strings.TrimSpace(cfg.APIKey) == "" {
		return Config{}, fmt.Errorf("%s=%s requires %s", envVarAuthMode, AuthModeAPIKey, envVarAPIKey)
	}
	if cfg.AuthMode == AuthModeJWT && strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("%s=%s requires %s", envVarAuthMode, AuthModeJWT, envVarJWTSecret)
	}

	cfg.ICEServers, cfg.iceConfigErr = parseICEServersFromValues(
		stringValue(lookup, envICEServersJSON, file.ICE.ServersJSON, ""),
		stringValue(lookup, envStunURLs, strings.Join(file.ICE.StunURLs, ","), ""),
		stringValue(lookup, envTurnURLs, strings.Join(file.ICE.TurnURLs, ","), ""),
		stringValue(lookup, envTurnUsername, file.ICE.TurnUsername, ""),
		stringValue(lookup, envTurnCredential, file.ICE.TurnCredential, ""),
	)

	cfg.TURNREST = TurnRESTConfig{
		SharedSecret:   stringValue(lookup, envVarTURNRESTSharedSecret, file.TurnREST.SharedSecret, ""),
		TTLSeconds:     DefaultTURNRESTTTLSeconds,
		UsernamePrefix: stringValue(lookup, envVarTURNRESTUsernamePrefix, file.TurnREST.UsernamePrefix, DefaultTURNRESTUsernamePrefix),
	}
	if cfg.TURNREST.TTLSeconds, err = int64Value(lookup, envVarTURNRESTTTLSeconds, file.TurnREST.TTLSeconds, DefaultTURNRESTTTLSeconds); err != nil {
		return Config{}, err
	}

	if cfg.WebRTCUDPPortRange, err = parsePortRange(lookup, file, *udpPortMinFlag, *udpPortMaxFlag); err != nil {
		return Config{}, err
	}
	if cfg.WebRTCSessionConnectTimeout, err = durationValue(lookup, envVarWebRTCSessionConnectTimeout, file.WebRTC.SessionConnectTimeout, DefaultWebRTCSessionConnectTimeout); err != nil {
		return Config{}, err
	}

	natIPsStr := stringValue(lookup, envVarWebRTCNAT1To1IPs, strings.Join(file.WebRTC.NAT1To1IPs, ","), "")
	if *nat1To1IPsFlag != "" {
		natIPsStr = *nat1To1IPsFlag
	}
	if cfg.WebRTCNAT1To1IPs, err = parseIPList(natIPsStr); err != nil {
		return Config{}, err
	}

	natTypeStr := stringValue(lookup, envVarWebRTCNAT1To1IPCandidateType, file.WebRTC.NAT1To1IPCandidateType, string(NAT1To1CandidateTypeHost))
	if *nat1To1TypeFlag != "" {
		natTypeStr = *nat1To1TypeFlag
	}
	if cfg.WebRTCNAT1To1IPCandidateType, err = parseCandidateType(natTypeStr); err != nil {
		return Config{}, err
	}

	listenIPStr := stringValue(lookup, envVarWebRTCUDPListenIP, file.WebRTC.UDPListenIP, DefaultWebRTCUDPListenIP)
	if *udpListenIPFlag != "" {
		listenIPStr = *udpListenIPFlag
	}
	cfg.WebRTCUDPListenIP = net.ParseIP(strings.TrimSpace(listenIPStr))
	if cfg.WebRTCUDPListenIP == nil {
		return Config{}, fmt.Errorf("invalid %s %q", envVarWebRTCUDPListenIP, listenIPStr)
	}

	if cfg.MaxSessions, err = intValue(lookup, envVarMaxSessions, file.MaxSessions, 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxViewersPerStream, err = intValue(lookup, envVarMaxViewersPerStream, file.MaxViewersPerStream, DefaultMaxViewersPerStream); err != nil {
		return Config{}, err
	}
	cfg.Quality = stringValue(lookup, envVarDefaultQuality, file.DefaultQuality, DefaultQuality)
	if err := validateQuality(cfg.Quality); err != nil {
		return Config{}, err
	}
	if cfg.PLIInterval, err = durationValue(lookup, envVarPLIInterval, file.PLIInterval, DefaultPLIInterval); err != nil {
		return Config{}, err
	}

	if cfg.SignalingAuthTimeout, err = durationValue(lookup, envVarSignalingAuthTimeout, file.Signaling.AuthTimeout, DefaultSignalingAuthTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SignalingWSIdleTimeout, err = durationValue(lookup, envVarSignalingWSIdleTimeout, file.Signaling.WSIdleTimeout, DefaultSignalingWSIdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SignalingWSPingInterval, err = durationValue(lookup, envVarSignalingWSPingInterval, file.Signaling.WSPingInterval, DefaultSignalingWSPingInterval); err != nil {
		return Config{}, err
	}
	if cfg.MaxSignalingMessageBytes, err = int64Value(lookup, envVarMaxSignalingMessageBytes, file.Signaling.MaxMessageBytes, DefaultMaxSignalingMessageBytes); err != nil {
		return Config{}, err
	}
	if cfg.MaxSignalingMessagesPerSecond, err = intValue(lookup, envVarMaxSignalingMessagesPerSecond, file.Signaling.MaxMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.DefaultStream) == "" {
		return Config{}, fmt.Errorf("%s must not be empty", envVarDefaultStream)
	}

	return cfg, nil
}

func parsePortRange(lookup func(string) (string, bool), file fileConfig, flagMin, flagMax uint) (*UDPPortRange, error) {
	minPort, err := portValue(lookup, envVarWebRTCUDPPortMin, file.WebRTC.UDPPortMin, flagMin)
	if err != nil {
		return nil, err
	}
	maxPort, err := portValue(lookup, envVarWebRTCUDPPortMax, file.WebRTC.UDPPortMax, flagMax)
	if err != nil {
		return nil, err
	}

	if minPort == 0 && maxPort == 0 {
		return nil, nil
	}
	if minPort == 0 || maxPort == 0 {
		return nil, fmt.Errorf("%s and %s must be set together", envVarWebRTCUDPPortMin, envVarWebRTCUDPPortMax)
	}
	if minPort > maxPort {
		return nil, fmt.Errorf("%s (%d) must be <= %s (%d)", envVarWebRTCUDPPortMin, minPort, envVarWebRTCUDPPortMax, maxPort)
	}
	return &UDPPortRange{Min: minPort, Max: maxPort}, nil
}

// PortRangeTooSmall reports whether the configured UDP port range is below
// the recommended minimum. Used for startup warnings only.
func (c Config) PortRangeTooSmall() bool {
	if c.WebRTCUDPPortRange == nil {
		return false
	}
	return int(c.WebRTCUDPPortRange.Max)-int(c.WebRTCUDPPortRange.Min)+1 < recommendedWebRTCUDPPortRangeSize
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

// IsUnspecifiedIP reports whether ip is 0.0.0.0 or ::.
func IsUnspecifiedIP(ip net.IP) bool {
	return ip != nil && ip.IsUnspecified()
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

// stringValue resolves env > file > default.
func stringValue(lookup func(string) (string, bool), key string, fileVal, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return fallback
}

func durationValue(lookup func(string) (string, bool), key string, fileVal string, fallback time.Duration) (time.Duration, error) {
	raw := stringValue(lookup, key, fileVal, "")
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", key, raw)
	}
	return d, nil
}

func intValue(lookup func(string) (string, bool), key string, fileVal *int, fallback int) (int, error) {
	if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		return n, nil
	}
	if fileVal != nil {
		return *fileVal, nil
	}
	return fallback, nil
}

func int64Value(lookup func(string) (string, bool), key string, fileVal *int64, fallback int64) (int64, error) {
	if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
		return n, nil
	}
	if fileVal != nil {
		return *fileVal, nil
	}
	return fallback, nil
}

func portValue(lookup func(string) (string, bool), key string, fileVal *int, flagVal uint) (uint16, error) {
	if flagVal != 0 {
		return parsePortUint(flagVal, key)
	}
	if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
		if err != nil || n == 0 {
			return 0, fmt.Errorf("invalid %s %q: expected a port in [1, 65535]", key, raw)
		}
		return uint16(n), nil
	}
	if fileVal != nil {
		return parsePortUint(uint(*fileVal), key)
	}
	return 0, nil
}

func parsePortUint(v uint, key string) (uint16, error) {
	if v == 0 || v > 65535 {
		return 0, fmt.Errorf("invalid %s %d: expected a port in [1, 65535]", key, v)
	}
	return uint16(v), nil
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAuthMode(raw string) (AuthMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(AuthModeNone):
		return AuthModeNone, nil
	case string(AuthModeAPIKey):
		return AuthModeAPIKey, nil
	case string(AuthModeJWT):
		return AuthModeJWT, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected %s, %s, or %s)", envVarAuthMode, raw, AuthModeNone, AuthModeAPIKey, AuthModeJWT)
	}
}

func parseCandidateType(raw string) (NAT1To1IPCandidateType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(NAT1To1CandidateTypeHost), "":
		return NAT1To1CandidateTypeHost, nil
	case string(NAT1To1CandidateTypeSrflx):
		return NAT1To1CandidateTypeSrflx, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected host or srflx)", envVarWebRTCNAT1To1IPCandidateType, raw)
	}
}

func parseAllowedOrigins(raw string) ([]string, error) {
	parts := splitCommaSeparated(raw)
	for _, p := range parts {
		if p == "*" {
			continue
		}
		if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "https://") {
			return nil, fmt.Errorf("invalid %s entry %q (expected '*' or a scheme://host[:port] origin)", envVarAllowedOrigins, p)
		}
	}
	return parts, nil
}

func parseIPList(raw string) ([]string, error) {
	parts := splitCommaSeparated(raw)
	for _, p := range parts {
		if net.ParseIP(p) == nil {
			return nil, fmt.Errorf("invalid IP %q in %s", p, envVarWebRTCNAT1To1IPs)
		}
	}
	return parts, nil
}

func validateQuality(raw string) error {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(raw)), "p") {
	case "1080", "720", "480":
		return nil
	default:
		return fmt.Errorf("invalid %s %q (expected 1080, 720, or 480)", envVarDefaultQuality, raw)
	}
}
