package forward

import (
	"errors"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
)

// broadcastDepth is the reference ring depth for RTP fan-out: enough to
// tolerate one RTT of subscriber scheduling jitter at line rate.
const broadcastDepth = 1024

// PublishTrackRemote wraps one remote track and pumps its RTP packets into
// a lagging-tolerant broadcast any number of subscribers can read from
// independently.
type PublishTrackRemote struct {
	streamID  domain.StreamID
	sessionID domain.SessionID
	kind      domain.Kind
	rid       domain.Rid
	ssrc      webrtc.SSRC
	codec     webrtc.RTPCodecCapability

	broadcast *Broadcast[*rtp.Packet]
}

// NewPublishTrackRemote starts the background pump and returns immediately;
// the pump exits when the transport closes the track.
func NewPublishTrackRemote(streamID domain.StreamID, sessionID domain.SessionID, track *webrtc.TrackRemote, logger *zap.Logger) *PublishTrackRemote {
	kind := domain.KindAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.KindVideo
	}
	rid := domain.Rid(track.RID())

	t := &PublishTrackRemote{
		streamID:  streamID,
		sessionID: sessionID,
		kind:      kind,
		rid:       rid,
		ssrc:      webrtc.SSRC(track.SSRC()),
		codec:     track.Codec().RTPCodecCapability,
		broadcast: NewBroadcast[*rtp.Packet](broadcastDepth),
	}
	go t.readLoop(track, logger)
	return t
}

func (t *PublishTrackRemote) readLoop(track *webrtc.TrackRemote, logger *zap.Logger) {
	defer t.broadcast.Close()
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn("publish track read error",
					zap.String("stream_id", string(t.streamID)),
					zap.String("kind", t.kind.String()),
					zap.String("rid", string(t.rid)),
					zap.Error(err))
			}
			return
		}
		t.broadcast.Send(pkt)
	}
}

// Subscribe returns an independent lagging-tolerant receiver.
func (t *PublishTrackRemote) Subscribe() *Receiver[*rtp.Packet] {
	return t.broadcast.Subscribe()
}

func (t *PublishTrackRemote) SSRC() webrtc.SSRC                    { return t.ssrc }
func (t *PublishTrackRemote) Kind() domain.Kind                    { return t.kind }
func (t *PublishTrackRemote) Rid() domain.Rid                      { return t.rid }
func (t *PublishTrackRemote) Codec() webrtc.RTPCodecCapability     { return t.codec }
func (t *PublishTrackRemote) StreamID() domain.StreamID            { return t.streamID }
func (t *PublishTrackRemote) SessionID() domain.SessionID          { return t.sessionID }
