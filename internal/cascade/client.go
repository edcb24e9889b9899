// Package cascade implements the two cross-node flows: pull (this
// node becomes a publisher by subscribing to a remote WHEP endpoint) and
// push (this node becomes a subscriber that relays to a remote WHIP
// endpoint).
package cascade

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
	"live777go/internal/forward"
	apperrors "live777go/pkg/errors"
	"live777go/pkg/tracing"
)

// Client issues the outbound WHIP/WHEP HTTP requests a cascade flow needs,
// bounded by a short connect+total timeout so a slow/unreachable peer never
// stalls a caller indefinitely.
type Client struct {
	api            *webrtc.API
	ice            []webrtc.ICEServer
	connectTimeout time.Duration
	totalTimeout   time.Duration
	httpClient     *http.Client
	logger         *zap.Logger
}

func NewClient(api *webrtc.API, ice []webrtc.ICEServer, connectTimeout, totalTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		api:            api,
		ice:            ice,
		connectTimeout: connectTimeout,
		totalTimeout:   totalTimeout,
		httpClient: &http.Client{
			Timeout: totalTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
		logger: logger,
	}
}

// Pull builds a recvonly peer, POSTs the offer to the remote's WHEP
// endpoint, and installs the answer as f's publisher.
func (c *Client) Pull(ctx context.Context, f *forward.Forwarder, srcURL, token string) error {
	ctx, span := tracing.TraceCascade(ctx, "pull", string(f.StreamID()))
	defer span.End()
	start := time.Now()
	defer func() { tracing.MeasureDuration(ctx, start, "cascade.pull") }()

	pc, err := c.api.NewPeerConnection(webrtc.Configuration{ICEServers: c.ice})
	if err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to create cascade pull peer")
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			pc.Close()
			tracing.RecordError(ctx, err)
			return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to add cascade pull transceiver")
		}
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to create cascade pull offer")
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to set cascade pull local description")
	}

	gatherCtx, cancel := context.WithTimeout(ctx, c.totalTimeout)
	defer cancel()
	if err := awaitGathering(gatherCtx, pc); err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.UpstreamTimeout(err)
	}

	answerSDP, resourceURL, err := c.postSDP(ctx, srcURL, token, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}); err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to set cascade pull remote description")
	}

	if err := f.InstallCascadePublisher(pc, &domain.CascadeInfo{
		Mode:        domain.CascadePull,
		SourceURL:   srcURL,
		Token:       token,
		ResourceURL: resourceURL,
	}); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

// Push builds a sendonly peer whose tracks mirror f's current publisher,
// POSTs the offer to the remote's WHIP endpoint, and installs the result
// as a SubscribeSession carrying target_url.
func (c *Client) Push(ctx context.Context, f *forward.Forwarder, dstURL, token string) error {
	ctx, span := tracing.TraceCascade(ctx, "push", string(f.StreamID()))
	defer span.End()
	start := time.Now()
	defer func() { tracing.MeasureDuration(ctx, start, "cascade.push") }()

	pc, err := c.api.NewPeerConnection(webrtc.Configuration{ICEServers: c.ice})
	if err != nil {
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to create cascade push peer")
	}

	senders := make(map[domain.Kind]*webrtc.RTPSender)
	for _, kind := range domain.Kinds {
		placeholder, plErr := webrtc.NewTrackLocalStaticRTP(forward.PlaceholderCapability(kind), kind.String(), string(f.StreamID()))
		if plErr != nil {
			pc.Close()
			tracing.RecordError(ctx, plErr)
			return apperrors.Wrap(plErr, apperrors.ErrCodeUpstreamError, "failed to mint cascade push placeholder track")
		}
		transceiver, tErr := pc.AddTransceiverFromTrack(placeholder, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
		if tErr != nil {
			pc.Close()
			tracing.RecordError(ctx, tErr)
			return apperrors.Wrap(tErr, apperrors.ErrCodeUpstreamError, "failed to add cascade push transceiver")
		}
		senders[kind] = transceiver.Sender()
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to create cascade push offer")
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to set cascade push local description")
	}

	gatherCtx, cancel := context.WithTimeout(ctx, c.totalTimeout)
	defer cancel()
	if err := awaitGathering(gatherCtx, pc); err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.UpstreamTimeout(err)
	}

	answerSDP, resourceURL, err := c.postSDP(ctx, dstURL, token, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}); err != nil {
		pc.Close()
		tracing.RecordError(ctx, err)
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to set cascade push remote description")
	}

	if err := f.InstallCascadeSubscriber(pc, senders, &domain.CascadeInfo{
		Mode:        domain.CascadePush,
		TargetURL:   dstURL,
		Token:       token,
		ResourceURL: resourceURL,
	}); err != nil {
		tracing.RecordError(ctx, err)
		return err
	}
	return nil
}

// postSDP POSTs offerSDP to url and returns the answer SDP and the
// session resource URL from the Location header.
func (c *Client) postSDP(ctx context.Context, url, token, offerSDP string) (answerSDP string, resourceURL string, err error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(offerSDP))
	if reqErr != nil {
		return "", "", apperrors.Wrap(reqErr, apperrors.ErrCodeUpstreamError, "failed to build cascade request")
	}
	req.Header.Set("Content-Type", "application/sdp")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return "", "", apperrors.UpstreamTimeout(doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", "", apperrors.UpstreamError(httpStatusError(resp.StatusCode))
	}

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return "", "", apperrors.Wrap(readErr, apperrors.ErrCodeUpstreamError, "failed to read cascade answer body")
	}

	return string(body), resp.Header.Get("Location"), nil
}

// Teardown issues a best-effort DELETE against resourceURL, the session
// resource location returned by the remote peer's WHIP/WHEP handshake.
// Errors are returned to the caller rather than swallowed here, since
// whether a failed teardown deserves logging is a Forwarder-level
// decision; the remote peer's own session-leave timeout will eventually
// clean up regardless.
func (c *Client) Teardown(ctx context.Context, resourceURL, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resourceURL, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUpstreamError, "failed to build cascade teardown request")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.UpstreamTimeout(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return apperrors.UpstreamError(httpStatusError(resp.StatusCode))
	}
	return nil
}

func awaitGathering(ctx context.Context, pc *webrtc.PeerConnection) error {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from cascade peer", int(e))
}
