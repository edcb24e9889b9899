package forward

import (
	"context"
	"time"

	"github.com/pion/webrtc/v3"

	"live777go/internal/core/domain"
)

// iceGatheringTimeout bounds how long we wait for ICE gathering to finish
// before failing the negotiation with IceFailure.
const iceGatheringTimeout = 5 * time.Second

func kindToRTPCodecType(k domain.Kind) webrtc.RTPCodecType {
	if k == domain.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// PlaceholderCapability is used to mint the sender-side track added to a
// subscriber's peer connection before any publisher track is bound; it is
// replaced via ReplaceTrack once a real layer is selected. Exported so the
// cascade client can mint the same placeholder for its push peer.
func PlaceholderCapability(k domain.Kind) webrtc.RTPCodecCapability {
	if k == domain.KindAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

// awaitICEGatheringComplete blocks until pc finishes ICE gathering or ctx
// is done, since ICE gathering has an implementation-defined deadline.
func awaitICEGatheringComplete(ctx context.Context, pc *webrtc.PeerConnection) error {
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherComplete:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func negotiationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), iceGatheringTimeout)
}
