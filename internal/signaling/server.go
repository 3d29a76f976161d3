package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/auth"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/broadcast"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/ratelimit"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/webrtcpeer"
)

const maxOfferBodyBytes = 2 << 20

// Server implements the relay's signaling surface.
//
// Endpoints:
//   - POST /offer           : versioned offer/answer with an explicit role
//   - POST /offer/publisher : flat {"sdp","type"} publisher exchange
//   - POST /offer/viewer    : flat {"sdp","type"} viewer exchange (409 when idle)
//   - GET  /webrtc/signal   : WebSocket signaling with trickle ICE
//
// The flat endpoints mirror the browser's RTCSessionDescription JSON so a
// page can post pc.localDescription verbatim; viewers select a tier via
// ?quality= (or the legacy ?res=).
type Server struct {
	// Registry tracks every live PeerConnection session for quota enforcement
	// and shutdown cleanup.
	Registry *webrtcpeer.Registry

	// Hub owns stream/publication state.
	Hub *broadcast.Hub

	// WebRTC is the server-side pion API used to construct PeerConnections.
	// It is recommended to use webrtcpeer.NewAPI(cfg, log) so SettingEngine
	// restrictions (port ranges, NAT 1:1 IPs, listen IP filters) apply.
	WebRTC *webrtc.API

	// ICEServers is the ICE server list for server-side PeerConnections.
	ICEServers []webrtc.ICEServer

	Authorizer Authorizer
	Log        *slog.Logger
	Metrics    *metrics.Metrics

	// DefaultStream is used when a request does not name a stream.
	DefaultStream string

	// PLIInterval drives the publisher-side keyframe request ticker.
	PLIInterval time.Duration

	// ICEGatheringTimeout bounds candidate gathering on the non-trickle HTTP
	// endpoints.
	ICEGatheringTimeout time.Duration

	// WebSocket auth timeout for AUTH_MODE!=none.
	SignalingAuthTimeout time.Duration

	// WebSocket inbound signaling hardening.
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	WSIdleTimeout                 time.Duration
	WSPingInterval                time.Duration

	// Middleware, when set, wraps every signaling route. The HTTP server
	// installs its origin/CORS policy here; the WebSocket upgrader itself does
	// not check Origin.
	Middleware func(http.Handler) http.Handler
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /offer", s.wrap(http.HandlerFunc(s.handleOffer)))
	mux.Handle("POST /offer/publisher", s.wrap(http.HandlerFunc(s.handlePublisherOffer)))
	mux.Handle("POST /offer/viewer", s.wrap(http.HandlerFunc(s.handleViewerOffer)))

	mux.Handle("GET /webrtc/signal", s.wrap(http.HandlerFunc(s.handleWebSocketSignal)))
}

func (s *Server) wrap(h http.Handler) http.Handler {
	if s.Middleware == nil {
		return h
	}
	return s.Middleware(h)
}

// Close tears down every live session and publication. Used on shutdown so
// publishers and viewers get a clean close instead of an ICE timeout.
func (s *Server) Close() {
	if s.Registry != nil {
		s.Registry.CloseAll()
	}
	if s.Hub != nil {
		s.Hub.CloseAll()
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) authorizer() Authorizer {
	if s.Authorizer == nil {
		return AllowAllAuthorizer{}
	}
	return s.Authorizer
}

func (s *Server) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

func (s *Server) defaultStream() string {
	if s.DefaultStream == "" {
		return "default"
	}
	return s.DefaultStream
}

func (s *Server) iceGatheringTimeout() time.Duration {
	if s.ICEGatheringTimeout <= 0 {
		return 2 * time.Second
	}
	return s.ICEGatheringTimeout
}

func (s *Server) signalingAuthTimeout() time.Duration {
	if s.SignalingAuthTimeout <= 0 {
		return 2 * time.Second
	}
	return s.SignalingAuthTimeout
}

func (s *Server) maxSignalingMessageBytes() int64 {
	if s.MaxSignalingMessageBytes <= 0 {
		return 64 * 1024
	}
	return s.MaxSignalingMessageBytes
}

func (s *Server) maxSignalingMessagesPerSecond() int {
	if s.MaxSignalingMessagesPerSecond <= 0 {
		return 50
	}
	return s.MaxSignalingMessagesPerSecond
}

func (s *Server) incMetric(name string) {
	s.Metrics.Inc(name)
}

type httpError struct {
	Status  int
	Code    string
	Message string
}

type httpErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, httpErrorResponse{Code: code, Message: message})
}

func (e *httpError) write(w http.ResponseWriter) {
	writeJSONError(w, e.Status, e.Code, e.Message)
}

// offerParams describes one accepted HTTP offer exchange.
type offerParams struct {
	kind     webrtcpeer.Kind
	stream   string
	quality  broadcast.Quality
	identity string
}

// accept runs the full non-trickle exchange: allocate a session, wire it as a
// publisher or viewer, and produce the SDP answer.
func (s *Server) accept(ctx context.Context, offer webrtc.SessionDescription, p offerParams) (*webrtc.SessionDescription, *httpError) {
	// For viewers, check the stream before paying for a PeerConnection: the
	// common failure (nobody publishing) answers 409 instantly.
	var sub *broadcast.Subscription
	if p.kind == webrtcpeer.KindViewer {
		var err error
		sub, err = s.Hub.Subscribe(p.stream, p.quality)
		if herr := mapBroadcastError(err); herr != nil {
			return nil, herr
		}
	}

	sess, err := s.Registry.NewSession(webrtcpeer.SessionParams{
		API:         s.WebRTC,
		ICEServers:  s.ICEServers,
		Kind:        p.kind,
		Stream:      p.stream,
		IdentityKey: p.identity,
	})
	if err != nil {
		if sub != nil {
			sub.Close()
		}
		return nil, mapSessionError(err)
	}

	switch p.kind {
	case webrtcpeer.KindPublisher:
		if _, err := webrtcpeer.AttachPublisher(sess, s.Hub, s.PLIInterval); err != nil {
			_ = sess.Close()
			return nil, &httpError{Status: http.StatusInternalServerError, Code: "internal_error", Message: err.Error()}
		}
	case webrtcpeer.KindViewer:
		if err := webrtcpeer.AttachViewer(sess, sub); err != nil {
			_ = sess.Close()
			return nil, &httpError{Status: http.StatusInternalServerError, Code: "internal_error", Message: err.Error()}
		}
	}

	answer, err := sess.AcceptOffer(ctx, offer, s.iceGatheringTimeout())
	if err != nil {
		_ = sess.Close()
		return nil, &httpError{Status: http.StatusBadRequest, Code: "bad_message", Message: err.Error()}
	}
	return answer, nil
}

func mapBroadcastError(err error) *httpError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, broadcast.ErrNoPublisher):
		return &httpError{Status: http.StatusConflict, Code: "no_publisher", Message: "no active publisher for stream"}
	case errors.Is(err, broadcast.ErrTooManyViewers):
		return &httpError{Status: http.StatusServiceUnavailable, Code: "stream_full", Message: "stream viewer limit reached"}
	default:
		return &httpError{Status: http.StatusInternalServerError, Code: "internal_error", Message: err.Error()}
	}
}

func mapSessionError(err error) *httpError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, webrtcpeer.ErrTooManySessions):
		return &httpError{Status: http.StatusServiceUnavailable, Code: "too_many_sessions", Message: "too many sessions"}
	case errors.Is(err, webrtcpeer.ErrSessionAlreadyActive):
		return &httpError{Status: http.StatusConflict, Code: "session_exists", Message: "a session is already active for this identity"}
	default:
		return &httpError{Status: http.StatusInternalServerError, Code: "internal_error", Message: err.Error()}
	}
}

// authorizeRole authenticates the request and checks its role claim.
func (s *Server) authorizeRole(r *http.Request, want auth.Role) (AuthResult, *httpError) {
	res, err := s.authorizer().Authorize(r, &ClientHello{Type: MessageTypeOffer})
	if err != nil {
		s.incMetric(metrics.AuthFailure)
		return AuthResult{}, &httpError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: unauthorizedMessage(err)}
	}
	if !res.Claims.Allows(want) {
		s.incMetric(metrics.AuthFailure)
		return AuthResult{}, &httpError{Status: http.StatusForbidden, Code: "forbidden", Message: "credential role does not permit this operation"}
	}
	return res, nil
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOfferBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}
	var req OfferRequest
	if err := decodeStrictJSON(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		if errors.Is(err, ErrUnsupportedVersion) {
			writeJSONError(w, http.StatusBadRequest, "unsupported_version", err.Error())
			return
		}
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}

	kind := webrtcpeer.KindViewer
	wantRole := auth.RoleViewer
	if req.Role == RoleNamePublish {
		kind = webrtcpeer.KindPublisher
		wantRole = auth.RolePublisher
	}

	res, herr := s.authorizeRole(r, wantRole)
	if herr != nil {
		herr.write(w)
		return
	}

	var quality broadcast.Quality
	if kind == webrtcpeer.KindViewer && req.Quality != "" {
		quality, err = broadcast.ParseQuality(req.Quality)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad_quality", err.Error())
			return
		}
	}

	stream := req.Stream
	if stream == "" {
		stream = s.defaultStream()
	}

	answer, herr := s.accept(r.Context(), webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  req.Offer.SDP,
	}, offerParams{
		kind:     kind,
		stream:   stream,
		quality:  quality,
		identity: res.IdentityKey,
	})
	if herr != nil {
		herr.write(w)
		return
	}

	writeJSON(w, http.StatusOK, AnswerResponse{
		Version: req.Version,
		Answer: SessionDescription{
			Type: "answer",
			SDP:  answer.SDP,
		},
	})
}

func (s *Server) handlePublisherOffer(w http.ResponseWriter, r *http.Request) {
	s.handleFlatOffer(w, r, webrtcpeer.KindPublisher)
}

func (s *Server) handleViewerOffer(w http.ResponseWriter, r *http.Request) {
	s.handleFlatOffer(w, r, webrtcpeer.KindViewer)
}

// handleFlatOffer serves the browser-friendly endpoints whose bodies are a
// bare RTCSessionDescription JSON object.
func (s *Server) handleFlatOffer(w http.ResponseWriter, r *http.Request, kind webrtcpeer.Kind) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOfferBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}
	var desc SessionDescription
	if err := decodeStrictJSON(body, &desc); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad_message", err.Error())
		return
	}
	if desc.Type != "offer" {
		writeJSONError(w, http.StatusBadRequest, "bad_message", `type must be "offer"`)
		return
	}
	if desc.SDP == "" {
		writeJSONError(w, http.StatusBadRequest, "bad_message", "missing sdp")
		return
	}

	wantRole := auth.RoleViewer
	if kind == webrtcpeer.KindPublisher {
		wantRole = auth.RolePublisher
	}
	res, herr := s.authorizeRole(r, wantRole)
	if herr != nil {
		herr.write(w)
		return
	}

	query := r.URL.Query()
	var quality broadcast.Quality
	if kind == webrtcpeer.KindViewer {
		raw := query.Get("quality")
		if raw == "" {
			// Legacy parameter name.
			raw = query.Get("res")
		}
		if raw != "" {
			quality, err = broadcast.ParseQuality(raw)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "bad_quality", err.Error())
				return
			}
		}
	}

	stream := query.Get("stream")
	if stream == "" {
		stream = s.defaultStream()
	}

	answer, herr := s.accept(r.Context(), webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  desc.SDP,
	}, offerParams{
		kind:     kind,
		stream:   stream,
		quality:  quality,
		identity: res.IdentityKey,
	})
	if herr != nil {
		herr.write(w)
		return
	}

	writeJSON(w, http.StatusOK, SessionDescription{
		Type: "answer",
		SDP:  answer.SDP,
	})
}

func (s *Server) handleWebSocketSignal(w http.ResponseWriter, r *http.Request) {
	if s.WebRTC == nil {
		http.Error(w, "webrtc api not configured", http.StatusInternalServerError)
		return
	}

	kind := webrtcpeer.KindViewer
	switch r.URL.Query().Get("role") {
	case RoleNamePublish:
		kind = webrtcpeer.KindPublisher
	case RoleNameView, "":
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	var quality broadcast.Quality
	if kind == webrtcpeer.KindViewer {
		if raw := r.URL.Query().Get("quality"); raw != "" {
			q, err := broadcast.ParseQuality(raw)
			if err != nil {
				http.Error(w, "invalid quality", http.StatusBadRequest)
				return
			}
			quality = q
		}
	}

	stream := r.URL.Query().Get("stream")
	if stream == "" {
		stream = s.defaultStream()
	}

	upgrader := websocket.Upgrader{
		// Origin checks are enforced by the outer httpserver origin middleware.
		// For unit tests that don't use httpserver.Server, accept all origins
		// here.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ws := &wsSession{
		srv:        s,
		conn:       conn,
		req:        r,
		authorizer: s.authorizer(),

		kind:    kind,
		stream:  stream,
		quality: quality,

		authTimeout: s.signalingAuthTimeout(),
		limiter: ratelimit.NewTokenBucket(
			ratelimit.RealClock{},
			int64(s.maxSignalingMessagesPerSecond()),
			int64(s.maxSignalingMessagesPerSecond()),
		),

		maxMessageBytes: s.maxSignalingMessageBytes(),
		idleTimeout:     s.WSIdleTimeout,
		pingInterval:    s.WSPingInterval,
	}
	ws.run()
}

func decodeStrictJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}
