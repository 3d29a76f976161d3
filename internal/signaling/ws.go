package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/auth"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/broadcast"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/metrics"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/ratelimit"
	"github.com/wbrelay/webrtc-broadcast-relay/internal/webrtcpeer"
)

const (
	wsWriteWait = 1 * time.Second

	// wsRenegotiateAnswerWait bounds how long a viewer renegotiation waits for
	// the client's answer before giving up on that track.
	wsRenegotiateAnswerWait = 10 * time.Second
)

type wsSession struct {
	srv  *Server
	conn *websocket.Conn
	req  *http.Request

	authorizer Authorizer

	kind    webrtcpeer.Kind
	stream  string
	quality broadcast.Quality

	authTimeout     time.Duration
	maxMessageBytes int64
	limiter         *ratelimit.TokenBucket
	idleTimeout     time.Duration
	pingInterval    time.Duration

	session *webrtcpeer.Session
	sub     *broadcast.Subscription

	writeMu sync.Mutex

	answerMu   sync.Mutex
	answerSent bool
	candBuf    []Candidate

	// remoteAnswers carries client answers for viewer renegotiation.
	remoteAnswers chan webrtc.SessionDescription

	keepaliveOnce sync.Once
	closeOnce     sync.Once
}

func (wss *wsSession) installPeerHandlers() {
	wss.session.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		cand := CandidateFromPion(c.ToJSON())

		wss.answerMu.Lock()
		if !wss.answerSent {
			wss.candBuf = append(wss.candBuf, cand)
			wss.answerMu.Unlock()
			return
		}
		wss.answerMu.Unlock()

		_ = wss.send(SignalMessage{
			Type:      MessageTypeCandidate,
			Candidate: &cand,
		})
	})
}

func (wss *wsSession) run() {
	defer wss.Close()

	wss.conn.SetReadLimit(wss.maxMessageBytes)

	var haveOffer bool
	var identity string

	authorized := false
	res, err := wss.authorizer.Authorize(wss.req, nil)
	if err != nil {
		if IsAuthMissing(err) {
			_ = wss.conn.SetReadDeadline(time.Now().Add(wss.authTimeout))
		} else {
			wss.srv.incMetric(metrics.AuthFailure)
			_ = wss.fail("unauthorized", unauthorizedMessage(err), websocket.ClosePolicyViolation, "unauthorized")
			return
		}
	} else {
		if herr := wss.checkRole(res); herr != nil {
			_ = wss.fail(herr.Code, herr.Message, websocket.ClosePolicyViolation, herr.Code)
			return
		}
		identity = res.IdentityKey
		authorized = true
	}

	for {
		msgType, data, err := wss.conn.ReadMessage()
		if err != nil {
			if !authorized && isTimeout(err) {
				wss.srv.incMetric(metrics.AuthFailure)
				wss.closeWith(websocket.ClosePolicyViolation, "authentication timeout")
			}
			return
		}
		wss.extendIdleDeadline(authorized)
		// Apply the per-session signaling message rate limit *after* reading
		// the message so we consume any bytes already in the TCP receive
		// buffer. If we close before reading, the OS may send an abortive
		// close (RST) due to unread data, preventing clients from reliably
		// observing the WebSocket close code/reason.
		if wss.limiter != nil && !wss.limiter.Allow(1) {
			wss.srv.incMetric(metrics.RateLimited)
			_ = wss.fail("rate_limited", "rate limit exceeded", websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			_ = wss.fail("bad_message", "expected text message", websocket.CloseUnsupportedData, "expected text message")
			return
		}

		msg, err := ParseSignalMessage(data)
		if err != nil {
			_ = wss.fail("bad_message", err.Error(), websocket.ClosePolicyViolation, "bad message")
			return
		}

		if !authorized {
			if msg.Type != MessageTypeAuth {
				wss.srv.incMetric(metrics.AuthFailure)
				_ = wss.fail("unauthorized", "authentication required", websocket.ClosePolicyViolation, "authentication required")
				return
			}

			cred := msg.APIKey
			if cred == "" {
				cred = msg.Token
			}
			res, err := wss.authorizer.Authorize(wss.req, &ClientHello{Type: MessageTypeAuth, Credential: cred})
			if err != nil {
				wss.srv.incMetric(metrics.AuthFailure)
				_ = wss.fail("unauthorized", unauthorizedMessage(err), websocket.ClosePolicyViolation, "unauthorized")
				return
			}
			if herr := wss.checkRole(res); herr != nil {
				_ = wss.fail(herr.Code, herr.Message, websocket.ClosePolicyViolation, herr.Code)
				return
			}

			identity = res.IdentityKey
			authorized = true
			_ = wss.conn.SetReadDeadline(time.Time{})
			wss.extendIdleDeadline(true)
			wss.startKeepalive()
			continue
		}

		switch msg.Type {
		case MessageTypeAuth:
			// Be tolerant: clients may send an auth message even when already
			// authenticated (e.g. query-string fallback or AUTH_MODE=none).
			if !haveOffer {
				continue
			}
			_ = wss.fail("unexpected_message", "auth received after offer", websocket.ClosePolicyViolation, "unexpected message")
			return
		case MessageTypeOffer:
			if haveOffer {
				_ = wss.fail("unexpected_message", "offer already received", websocket.ClosePolicyViolation, "unexpected message")
				return
			}
			haveOffer = true
			wss.startKeepalive()
			if err := wss.handleOffer(*msg.SDP, identity); err != nil {
				var protoErr *wsProtocolError
				if errors.As(err, &protoErr) {
					_ = wss.fail(protoErr.Code, protoErr.Message, websocket.ClosePolicyViolation, protoErr.Code)
					return
				}
				_ = wss.fail("internal_error", err.Error(), websocket.CloseInternalServerErr, "internal error")
				return
			}
		case MessageTypeAnswer:
			if !haveOffer {
				_ = wss.fail("unexpected_message", "answer received before offer", websocket.ClosePolicyViolation, "unexpected message")
				return
			}
			desc, err := msg.SDP.ToPion()
			if err != nil {
				_ = wss.fail("bad_message", err.Error(), websocket.ClosePolicyViolation, "bad message")
				return
			}
			select {
			case wss.remoteAnswers <- desc:
			default:
				// No renegotiation in flight; drop the stray answer.
			}
		case MessageTypeCandidate:
			if !haveOffer {
				_ = wss.fail("unexpected_message", "candidate received before offer", websocket.ClosePolicyViolation, "unexpected message")
				return
			}
			if err := wss.handleRemoteCandidate(*msg.Candidate); err != nil {
				_ = wss.fail("bad_message", err.Error(), websocket.ClosePolicyViolation, "bad message")
				return
			}
		case MessageTypeClose:
			return
		default:
			_ = wss.fail("bad_message", fmt.Sprintf("unexpected message type %q", msg.Type), websocket.ClosePolicyViolation, "bad message")
			return
		}
	}
}

func (wss *wsSession) checkRole(res AuthResult) *httpError {
	want := wantRoleForKind(wss.kind)
	if !res.Claims.Allows(want) {
		wss.srv.incMetric(metrics.AuthFailure)
		return &httpError{Code: "forbidden", Message: "credential role does not permit this operation"}
	}
	return nil
}

func (wss *wsSession) extendIdleDeadline(authorized bool) {
	if !authorized || wss.idleTimeout <= 0 {
		return
	}
	_ = wss.conn.SetReadDeadline(time.Now().Add(wss.idleTimeout))
}

// startKeepalive begins the server-side ping loop. The loop exits with the
// connection; pongs extend the idle read deadline.
func (wss *wsSession) startKeepalive() {
	wss.keepaliveOnce.Do(func() {
		if wss.pingInterval <= 0 {
			return
		}

		wss.conn.SetPongHandler(func(string) error {
			wss.extendIdleDeadline(true)
			return nil
		})

		go func() {
			ticker := time.NewTicker(wss.pingInterval)
			defer ticker.Stop()
			for range ticker.C {
				wss.writeMu.Lock()
				err := wss.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
				wss.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}()
	})
}

type wsProtocolError struct {
	Code    string
	Message string
}

func (e *wsProtocolError) Error() string { return e.Code + ": " + e.Message }

func wantRoleForKind(kind webrtcpeer.Kind) auth.Role {
	if kind == webrtcpeer.KindPublisher {
		return auth.RolePublisher
	}
	return auth.RoleViewer
}

func (wss *wsSession) handleOffer(offerWire SDP, identity string) error {
	if wss.srv == nil {
		return &wsProtocolError{Code: "internal_error", Message: "server not configured"}
	}

	offer, err := offerWire.ToPion()
	if err != nil {
		return &wsProtocolError{Code: "bad_message", Message: err.Error()}
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return &wsProtocolError{Code: "bad_message", Message: "sdp.type must be \"offer\""}
	}

	var sub *broadcast.Subscription
	if wss.kind == webrtcpeer.KindViewer {
		sub, err = wss.srv.Hub.Subscribe(wss.stream, wss.quality)
		if herr := mapBroadcastError(err); herr != nil {
			return &wsProtocolError{Code: herr.Code, Message: herr.Message}
		}
	}

	sess, err := wss.srv.Registry.NewSession(webrtcpeer.SessionParams{
		API:         wss.srv.WebRTC,
		ICEServers:  wss.srv.ICEServers,
		Kind:        wss.kind,
		Stream:      wss.stream,
		IdentityKey: identity,
	})
	if err != nil {
		if sub != nil {
			sub.Close()
		}
		herr := mapSessionError(err)
		return &wsProtocolError{Code: herr.Code, Message: herr.Message}
	}

	// Tie the socket's lifetime to the session: a publisher takeover or a
	// shutdown CloseAll tears down the WebSocket too.
	sess.OnCleanup(func() { _ = wss.conn.Close() })

	wss.session = sess
	wss.sub = sub
	wss.remoteAnswers = make(chan webrtc.SessionDescription, 1)
	wss.installPeerHandlers()

	switch wss.kind {
	case webrtcpeer.KindPublisher:
		if _, err := webrtcpeer.AttachPublisher(sess, wss.srv.Hub, wss.srv.PLIInterval); err != nil {
			_ = sess.Close()
			return err
		}
	case webrtcpeer.KindViewer:
		if err := webrtcpeer.AttachViewer(sess, sub); err != nil {
			_ = sess.Close()
			return err
		}
	}

	local, err := sess.Answer(offer)
	if err != nil {
		_ = sess.Close()
		return &wsProtocolError{Code: "bad_message", Message: err.Error()}
	}

	if err := wss.send(SignalMessage{
		Type: MessageTypeAnswer,
		SDP:  ptr(SDPFromPion(*local)),
	}); err != nil {
		_ = sess.Close()
		return err
	}

	var buffered []Candidate
	wss.answerMu.Lock()
	wss.answerSent = true
	buffered = append(buffered, wss.candBuf...)
	wss.candBuf = nil
	wss.answerMu.Unlock()

	for i := range buffered {
		cand := buffered[i]
		_ = wss.send(SignalMessage{
			Type:      MessageTypeCandidate,
			Candidate: &cand,
		})
	}

	if wss.kind == webrtcpeer.KindViewer {
		go wss.renegotiateLoop()
	}

	return nil
}

// renegotiateLoop attaches tracks the publisher added after the initial
// answer (late tracks, better simulcast layers) and re-offers to the client.
func (wss *wsSession) renegotiateLoop() {
	for {
		select {
		case track := <-wss.sub.Added():
			if err := wss.renegotiate(track); err != nil {
				wss.srv.log().Debug("viewer renegotiation failed",
					"session", wss.session.ID(),
					"track_id", track.ID(),
					"err", err,
				)
				return
			}
		case <-wss.session.Done():
			return
		}
	}
}

func (wss *wsSession) renegotiate(track *broadcast.RelayTrack) error {
	if _, err := webrtcpeer.AttachViewerTrack(wss.session, wss.sub, track); err != nil {
		return err
	}

	pc := wss.session.PeerConnection()
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	if err := wss.send(SignalMessage{
		Type: MessageTypeOffer,
		SDP:  ptr(SDPFromPion(offer)),
	}); err != nil {
		return err
	}

	timer := time.NewTimer(wsRenegotiateAnswerWait)
	defer timer.Stop()
	select {
	case answer := <-wss.remoteAnswers:
		if err := pc.SetRemoteDescription(answer); err != nil {
			return err
		}
		wss.sub.RequestKeyframe()
		return nil
	case <-timer.C:
		return errors.New("timed out waiting for renegotiation answer")
	case <-wss.session.Done():
		return webrtcpeer.ErrSessionClosed
	}
}

func (wss *wsSession) handleRemoteCandidate(candWire Candidate) error {
	if candWire.Candidate == "" {
		return nil
	}
	if wss.session == nil {
		return errors.New("no session")
	}
	return wss.session.AddICECandidate(candWire.ToPion())
}

func (wss *wsSession) send(msg SignalMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	wss.writeMu.Lock()
	defer wss.writeMu.Unlock()
	_ = wss.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return wss.conn.WriteMessage(websocket.TextMessage, data)
}

func (wss *wsSession) fail(code, message string, closeCode int, closeReason string) error {
	_ = wss.send(SignalMessage{
		Type:    MessageTypeError,
		Code:    code,
		Message: message,
	})
	wss.closeWith(closeCode, closeReason)
	return nil
}

func (wss *wsSession) closeWith(code int, reason string) {
	wss.writeMu.Lock()
	defer wss.writeMu.Unlock()
	_ = wss.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func (wss *wsSession) Close() {
	wss.closeOnce.Do(func() {
		if wss.session != nil {
			_ = wss.session.Close()
		} else if wss.sub != nil {
			wss.sub.Close()
		}
		_ = wss.conn.Close()
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func ptr[T any](v T) *T { return &v }
