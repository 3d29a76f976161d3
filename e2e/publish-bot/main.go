// Command publish-bot publishes a looping pre-encoded media file to the relay
// over the plain HTTP offer endpoint. It exists for end-to-end tests and local
// demos: start the relay, run the bot, then open the viewer page.
//
//	publish-bot -relay http://127.0.0.1:8080 -stream studio -video sample.ivf
//
// The video file must be IVF (VP8 or VP9); the optional audio file must be
// Ogg-encapsulated Opus.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/wbrelay/webrtc-broadcast-relay/internal/signaling"
)

const oggPageDuration = 20 * time.Millisecond

func main() {
	relayURL := flag.String("relay", "http://127.0.0.1:8080", "relay base URL")
	stream := flag.String("stream", "", "stream name (empty uses the relay default)")
	videoFile := flag.String("video", "", "IVF file to publish (required)")
	audioFile := flag.String("audio", "", "Ogg/Opus file to publish (optional)")
	apiKey := flag.String("api-key", os.Getenv("PUBLISH_BOT_API_KEY"), "API key sent as X-API-Key (optional)")
	flag.Parse()

	if *videoFile == "" {
		fmt.Fprintln(os.Stderr, "-video is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *relayURL, *stream, *videoFile, *audioFile, *apiKey); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, relayURL, stream, videoFile, audioFile, apiKey string) error {
	videoCodec, err := ivfCodec(videoFile)
	if err != nil {
		return err
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}
	defer pc.Close()

	videoTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: videoCodec}, "video", "publish-bot",
	)
	if err != nil {
		return fmt.Errorf("video track: %w", err)
	}
	if _, err := pc.AddTrack(videoTrack); err != nil {
		return fmt.Errorf("add video track: %w", err)
	}

	var audioTrack *webrtc.TrackLocalStaticSample
	if audioFile != "" {
		audioTrack, err = webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "publish-bot",
		)
		if err != nil {
			return fmt.Errorf("audio track: %w", err)
		}
		if _, err := pc.AddTrack(audioTrack); err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
	}

	connected := make(chan struct{})
	failed := make(chan struct{})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			select {
			case <-connected:
			default:
				close(connected)
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			select {
			case <-failed:
			default:
				close(failed)
			}
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	<-gatherComplete

	local := pc.LocalDescription()
	if local == nil {
		return errors.New("no local description after gathering")
	}

	answer, err := postOffer(ctx, relayURL, stream, apiKey, local.SDP)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.Answer.SDP,
	}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	select {
	case <-connected:
	case <-failed:
		return errors.New("peer connection failed before connecting")
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return errors.New("timed out waiting for peer connection")
	}
	fmt.Println("READY")

	errCh := make(chan error, 2)
	go func() { errCh <- loopIVF(ctx, videoFile, videoTrack) }()
	if audioTrack != nil {
		go func() { errCh <- loopOgg(ctx, audioFile, audioTrack) }()
	}

	select {
	case err := <-errCh:
		return err
	case <-failed:
		return errors.New("peer connection failed")
	case <-ctx.Done():
		return nil
	}
}

func postOffer(ctx context.Context, relayURL, stream, apiKey, sdp string) (signaling.AnswerResponse, error) {
	body, err := json.Marshal(signaling.OfferRequest{
		Version: 1,
		Role:    signaling.RoleNamePublish,
		Stream:  stream,
		Offer:   signaling.SessionDescription{Type: "offer", SDP: sdp},
	})
	if err != nil {
		return signaling.AnswerResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(relayURL, "/")+"/offer", bytes.NewReader(body))
	if err != nil {
		return signaling.AnswerResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return signaling.AnswerResponse{}, fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return signaling.AnswerResponse{}, fmt.Errorf("offer rejected: %s: %s", resp.Status, data)
	}

	var answer signaling.AnswerResponse
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return signaling.AnswerResponse{}, fmt.Errorf("decode answer: %w", err)
	}
	return answer, nil
}

// ivfCodec sniffs the IVF header to pick the matching RTP codec.
func ivfCodec(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return "", fmt.Errorf("read IVF header %s: %w", path, err)
	}
	switch header.FourCC {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	default:
		return "", fmt.Errorf("unsupported IVF FourCC %q in %s", header.FourCC, path)
	}
}

// loopIVF writes the file's frames at their native frame rate, restarting from
// the beginning at EOF so the stream runs until cancelled.
func loopIVF(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	for {
		f, err := os.Open(path)
		if err != nil {
			return err
		}

		reader, header, err := ivfreader.NewWith(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("read IVF header: %w", err)
		}
		frameDuration := time.Millisecond * time.Duration(
			(float32(header.TimebaseNumerator)/float32(header.TimebaseDenominator))*1000,
		)

		ticker := time.NewTicker(frameDuration)
		for {
			frame, _, err := reader.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				ticker.Stop()
				f.Close()
				return fmt.Errorf("parse IVF frame: %w", err)
			}

			if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
				ticker.Stop()
				f.Close()
				return fmt.Errorf("write video sample: %w", err)
			}

			select {
			case <-ctx.Done():
				ticker.Stop()
				f.Close()
				return nil
			case <-ticker.C:
			}
		}
		ticker.Stop()
		f.Close()
	}
}

func loopOgg(ctx context.Context, path string, track *webrtc.TrackLocalStaticSample) error {
	for {
		f, err := os.Open(path)
		if err != nil {
			return err
		}

		ogg, _, err := oggreader.NewWith(f)
		if err != nil {
			f.Close()
			return fmt.Errorf("read Ogg header: %w", err)
		}

		var lastGranule uint64
		ticker := time.NewTicker(oggPageDuration)
		for {
			pageData, pageHeader, err := ogg.ParseNextPage()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				ticker.Stop()
				f.Close()
				return fmt.Errorf("parse Ogg page: %w", err)
			}

			// Granule positions are cumulative sample counts at 48kHz.
			sampleCount := float64(pageHeader.GranulePosition - lastGranule)
			lastGranule = pageHeader.GranulePosition
			sampleDuration := time.Duration((sampleCount/48000)*1000) * time.Millisecond

			if err := track.WriteSample(media.Sample{Data: pageData, Duration: sampleDuration}); err != nil {
				ticker.Stop()
				f.Close()
				return fmt.Errorf("write audio sample: %w", err)
			}

			select {
			case <-ctx.Done():
				ticker.Stop()
				f.Close()
				return nil
			case <-ticker.C:
			}
		}
		ticker.Stop()
		f.Close()
	}
}
