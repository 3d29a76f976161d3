package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/config"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	cp := &recordingHandler{
		mu:      h.mu,
		records: h.records,
	}
	if len(h.attrs) > 0 {
		cp.attrs = append([]slog.Attr(nil), h.attrs...)
	}
	if len(h.groups) > 0 {
		cp.groups = append([]string(nil), h.groups...)
	}
	return cp
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	out := h.groups[0]
	for _, g := range h.groups[1:] {
		out += "." + g
	}
	return out + "." + k
}

func warningCodes(records []recordedLog) []string {
	var codes []string
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

func hasWarning(records []recordedLog, code string) bool {
	for _, c := range warningCodes(records) {
		if c == code {
			return true
		}
	}
	return false
}

func TestStartupSecurityWarnings_AuthModeNone(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:     config.ModeDev,
		AuthMode: config.AuthModeNone,
	}

	logStartupSecurityWarnings(logger, cfg)

	var found bool
	for _, r := range records() {
		if r.level != slog.LevelWarn {
			continue
		}
		if r.attrs["warning_code"] == "auth_mode_none" {
			found = true
			if r.attrs["auth_mode"] != config.AuthModeNone {
				t.Fatalf("auth_mode attr = %#v, want %q", r.attrs["auth_mode"], config.AuthModeNone)
			}
			break
		}
	}
	if !found {
		t.Fatalf("expected warning_code=auth_mode_none, got %#v", records())
	}
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:           config.ModeDev,
		AuthMode:       config.AuthModeAPIKey,
		AllowedOrigins: []string{"*"},
		APIKey:         "secret",
	}

	logStartupSecurityWarnings(logger, cfg)

	if !hasWarning(records(), "allowed_origins_wildcard") {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %#v", records())
	}
}

func TestStartupSecurityWarnings_ProdLimits(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:     config.ModeProd,
		AuthMode: config.AuthModeAPIKey,
		APIKey:   "secret",
	}

	logStartupSecurityWarnings(logger, cfg)

	recs := records()
	if !hasWarning(recs, "max_sessions_unlimited_in_prod") {
		t.Fatalf("expected max_sessions_unlimited_in_prod, got %v", warningCodes(recs))
	}
	if !hasWarning(recs, "max_viewers_unlimited_in_prod") {
		t.Fatalf("expected max_viewers_unlimited_in_prod, got %v", warningCodes(recs))
	}
}

func TestStartupSecurityWarnings_SmallPortRange(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:               config.ModeDev,
		AuthMode:           config.AuthModeAPIKey,
		APIKey:             "secret",
		MaxSessions:        100,
		WebRTCUDPPortRange: &config.UDPPortRange{Min: 50000, Max: 50009},
	}

	logStartupSecurityWarnings(logger, cfg)

	if !hasWarning(records(), "webrtc_udp_port_range_small") {
		t.Fatalf("expected webrtc_udp_port_range_small, got %v", warningCodes(records()))
	}
}

func TestStartupSecurityWarnings_QuietWhenConfigured(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                        config.ModeProd,
		AuthMode:                    config.AuthModeAPIKey,
		APIKey:                      "secret",
		MaxSessions:                 64,
		MaxViewersPerStream:         32,
		PLIInterval:                 3 * time.Second,
		WebRTCSessionConnectTimeout: 30 * time.Second,
	}

	logStartupSecurityWarnings(logger, cfg)

	if codes := warningCodes(records()); len(codes) != 0 {
		t.Fatalf("expected no warnings, got %v", codes)
	}
}
