package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/broadcast"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/config"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/httpserver"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/signaling"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/webrtcpeer"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	// Construct the WebRTC API early so misconfigurations are caught on startup.
	// This does not start any networking; ICE sockets are only created once we
	// start creating PeerConnections.
	api, err := webrtcpeer.NewAPI(cfg, logger)
	if err != nil {
		logger.Error("failed to configure webrtc", "err", err)
		os.Exit(2)
	}

	logger.Info("starting webrtc-broadcast-relay",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"max_sessions", cfg.MaxSessions,
		"max_viewers_per_stream", cfg.MaxViewersPerStream,
		"default_stream", cfg.DefaultStream,
		"default_quality", cfg.Quality,
		"pli_interval", cfg.PLIInterval,
		"webrtc_session_connect_timeout", cfg.WebRTCSessionConnectTimeout,
		"webrtc_udp_port_range_set", cfg.WebRTCUDPPortRange != nil,
		"static_dir_set", cfg.StaticDir != "",
	)

	logStartupSecurityWarnings(logger, cfg)

	m := metrics.New()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, built := resolveBuildInfo(buildCommit, buildTime)

	srv, err := httpserver.New(cfg, logger, m, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	if err != nil {
		logger.Error("failed to configure http server", "err", err)
		os.Exit(2)
	}

	authz, err := signaling.NewAuthAuthorizer(cfg)
	if err != nil {
		logger.Error("failed to configure signaling auth", "err", err)
		os.Exit(2)
	}

	hub := broadcast.NewHub(logger, m, broadcast.HubConfig{
		MaxViewersPerStream: cfg.MaxViewersPerStream,
		DefaultQuality:      broadcast.Quality(cfg.Quality),
	})
	registry := webrtcpeer.NewRegistry(logger, m, webrtcpeer.RegistryConfig{
		MaxSessions:    cfg.MaxSessions,
		ConnectTimeout: cfg.WebRTCSessionConnectTimeout,
	})

	sig := &signaling.Server{
		Registry:   registry,
		Hub:        hub,
		WebRTC:     api,
		ICEServers: peerConnectionICEServers(cfg),
		Authorizer: authz,
		Log:        logger,
		Metrics:    m,

		DefaultStream:       cfg.DefaultStream,
		PLIInterval:         cfg.PLIInterval,
		ICEGatheringTimeout: cfg.ICEGatheringTimeout,

		SignalingAuthTimeout:          cfg.SignalingAuthTimeout,
		MaxSignalingMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		WSIdleTimeout:                 cfg.SignalingWSIdleTimeout,
		WSPingInterval:                cfg.SignalingWSPingInterval,

		Middleware: srv.OriginMiddleware(),
	}
	sig.RegisterRoutes(srv.Mux())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		sig.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	// Tear down every live PeerConnection so publishers and viewers get a
	// clean close instead of an ICE timeout.
	sig.Close()

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
