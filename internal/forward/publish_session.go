package forward

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
)

// RTCPFeedback is one synthesized RTCP packet addressed to a specific
// publisher-track SSRC, queued for the PublishSession's writer loop.
type RTCPFeedback struct {
	Packet rtcp.Packet
	SSRC   uint32
}

// PublishSessionInfo is a point-in-time snapshot.
type PublishSessionInfo struct {
	ID               domain.SessionID
	CreatedAt        time.Time
	ConnectionState  webrtc.PeerConnectionState
	Cascade          *domain.CascadeInfo
	HasDataChannel   bool
}

// PublishSession owns the publisher peer connection, the set of
// PublishTrackRemote instances it has surfaced, and the RTCP-to-publisher
// writer used by subscribers requesting keyframes.
//
// The peer connection is referenced directly rather than through a true
// weak pointer (Go has no user-space weak references to non-GC-rooted
// objects outside runtime/weak); the same invariant — handler closures
// must not keep the session alive past Close — is obtained by checking
// the closed flag before every use, observing its own peer only through
// that guard rather than a weak handle.
type PublishSession struct {
	id        domain.SessionID
	streamID  domain.StreamID
	pc        *webrtc.PeerConnection
	mediaInfo domain.MediaInfo
	createdAt time.Time
	cascade   *domain.CascadeInfo
	dcFanOut  *DataChannelFanOut

	tracksMu sync.RWMutex
	tracks   []*PublishTrackRemote

	rtcpCh chan RTCPFeedback
	closed atomic.Bool
	logger *zap.Logger
}

// NewPublishSession installs the publisher and starts its RTCP writer loop.
// The loop exits once the session is closed.
func NewPublishSession(
	streamID domain.StreamID,
	sessionID domain.SessionID,
	pc *webrtc.PeerConnection,
	mediaInfo domain.MediaInfo,
	cascade *domain.CascadeInfo,
	dcFanOut *DataChannelFanOut,
	logger *zap.Logger,
) *PublishSession {
	ps := &PublishSession{
		id:        sessionID,
		streamID:  streamID,
		pc:        pc,
		mediaInfo: mediaInfo,
		createdAt: time.Now(),
		cascade:   cascade,
		dcFanOut:  dcFanOut,
		rtcpCh:    make(chan RTCPFeedback, 256),
		logger:    logger,
	}
	go ps.rtcpWriteLoop()
	return ps
}

func (ps *PublishSession) rtcpWriteLoop() {
	for fb := range ps.rtcpCh {
		if ps.closed.Load() {
			return
		}
		pkt := fb.Packet
		if err := ps.pc.WriteRTCP([]rtcp.Packet{pkt}); err != nil {
			ps.logger.Debug("publisher rtcp write failed",
				zap.String("stream_id", string(ps.streamID)), zap.Error(err))
		}
	}
}

// SendRTCP queues a keyframe/feedback packet for delivery to the publisher.
// Non-blocking: a full queue drops the packet rather than stalling the
// subscriber's RTCP coroutine that produced it.
func (ps *PublishSession) SendRTCP(fb RTCPFeedback) {
	if ps.closed.Load() {
		return
	}
	select {
	case ps.rtcpCh <- fb:
	default:
	}
}

// AddTrack registers a newly surfaced publisher track (called from the
// Forwarder's OnTrack handler).
func (ps *PublishSession) AddTrack(t *PublishTrackRemote) {
	ps.tracksMu.Lock()
	defer ps.tracksMu.Unlock()
	ps.tracks = append(ps.tracks, t)
}

// Tracks returns a snapshot of the publisher's current tracks. Callers
// (SubscribeSession) reference the publisher only through this snapshot,
// never a live pointer into the Forwarder — no subscriber lock is held
// while a publisher swap happens concurrently (ownership note).
func (ps *PublishSession) Tracks() []*PublishTrackRemote {
	ps.tracksMu.RLock()
	defer ps.tracksMu.RUnlock()
	out := make([]*PublishTrackRemote, len(ps.tracks))
	copy(out, ps.tracks)
	return out
}

// TrackByRid finds the track of kind k with the given rid in the current
// snapshot, or reports ok=false.
func (ps *PublishSession) TrackByRid(k domain.Kind, rid domain.Rid) (*PublishTrackRemote, bool) {
	for _, t := range ps.Tracks() {
		if t.Kind() == k && t.Rid() == rid {
			return t, true
		}
	}
	return nil, false
}

func (ps *PublishSession) ID() domain.SessionID        { return ps.id }
func (ps *PublishSession) MediaInfo() domain.MediaInfo { return ps.mediaInfo }
func (ps *PublishSession) Cascade() *domain.CascadeInfo { return ps.cascade }
func (ps *PublishSession) DataChannelFanOut() *DataChannelFanOut { return ps.dcFanOut }
func (ps *PublishSession) PeerConnection() *webrtc.PeerConnection { return ps.pc }

// Info returns a snapshot for admin/telemetry.
func (ps *PublishSession) Info() PublishSessionInfo {
	return PublishSessionInfo{
		ID:              ps.id,
		CreatedAt:       ps.createdAt,
		ConnectionState: ps.pc.ConnectionState(),
		Cascade:         ps.cascade,
		HasDataChannel:  ps.mediaInfo.HasDataChannel,
	}
}

// Close tears down the publisher peer and stops the RTCP writer loop. Safe
// to call once; subsequent calls are no-ops.
func (ps *PublishSession) Close() {
	if !ps.closed.CompareAndSwap(false, true) {
		return
	}
	close(ps.rtcpCh)
	_ = ps.pc.Close()
}
