package main

import (
	"log/slog"
	"time"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/config"
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.AuthMode == config.AuthModeNone {
		logger.Warn("startup security warning: AUTH_MODE=none disables authentication (anyone can publish or watch)",
			"warning_code", "auth_mode_none",
			"auth_mode", cfg.AuthMode,
			"mode", cfg.Mode,
		)
	}

	if containsString(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxSessions <= 0 {
		logger.Warn("startup security warning: MAX_SESSIONS is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_sessions_unlimited_in_prod",
			"max_sessions", cfg.MaxSessions,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxViewersPerStream <= 0 {
		logger.Warn("startup security warning: MAX_VIEWERS_PER_STREAM is unset/0 (unlimited) while --mode=prod",
			"warning_code", "max_viewers_unlimited_in_prod",
			"max_viewers_per_stream", cfg.MaxViewersPerStream,
			"mode", cfg.Mode,
		)
	}

	if cfg.WebRTCSessionConnectTimeout > 2*time.Minute {
		logger.Warn("startup security warning: WEBRTC_SESSION_CONNECT_TIMEOUT is very large (increases half-open WebRTC session resource exposure)",
			"warning_code", "webrtc_session_connect_timeout_large",
			"webrtc_session_connect_timeout", cfg.WebRTCSessionConnectTimeout,
			"mode", cfg.Mode,
		)
	}

	if cfg.PortRangeTooSmall() {
		logger.Warn("startup warning: WEBRTC_UDP_PORT_MIN/MAX range is small for the configured session limits (ICE may run out of ports)",
			"warning_code", "webrtc_udp_port_range_small",
			"webrtc_udp_port_min", cfg.WebRTCUDPPortRange.Min,
			"webrtc_udp_port_max", cfg.WebRTCUDPPortRange.Max,
			"max_sessions", cfg.MaxSessions,
			"mode", cfg.Mode,
		)
	}

	if cfg.PLIInterval <= 0 {
		logger.Warn("startup warning: PLI_INTERVAL is disabled; late-joining viewers may wait on the next natural keyframe",
			"warning_code", "pli_interval_disabled",
			"pli_interval", cfg.PLIInterval,
			"mode", cfg.Mode,
		)
	}
}

func containsString(xs []string, v string) bool {
	for _, s := range xs {
		if s == v {
			return true
		}
	}
	return false
}
