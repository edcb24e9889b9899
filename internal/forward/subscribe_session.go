package forward

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
)

// senderSlot is one negotiated kind's sender side: the RTPSender, the
// locally-minted track currently fed to it (nil while detached), the
// in-flight forwarder goroutine's cancel func, and the monotone outbound
// sequence counter that survives rebinds.
type senderSlot struct {
	kind        domain.Kind
	sender      *webrtc.RTPSender
	localTrack  *webrtc.TrackLocalStaticRTP
	cancel      context.CancelFunc
	seqCounter  uint32 // wraps at 2^16 via uint16 truncation
}

// SubscribeSession is one subscriber: its peer connection, per-kind sender
// slots, a layer binding map, and the RTCP feedback coroutine that routes
// keyframe requests back to the publisher.
type SubscribeSession struct {
	id        domain.SessionID
	streamID  domain.StreamID
	pc        *webrtc.PeerConnection
	mediaInfo domain.MediaInfo
	createdAt time.Time
	cascade   *domain.CascadeInfo
	dcFanOut  *DataChannelFanOut

	// getPublish resolves the Forwarder's current publisher, or nil. Called
	// without holding any subscriber lock across the network/channel I/O
	// that follows: no Forwarder lock is ever held across awaiting I/O.
	getPublish func() *PublishSession

	mu          sync.Mutex
	slots       map[domain.Kind]*senderSlot
	binding     map[domain.Kind]domain.Rid
	previousRid map[domain.Kind]domain.Rid

	closed atomic.Bool
	logger *zap.Logger
}

// NewSubscribeSession builds a SubscribeSession with one sender slot per
// kind the subscriber negotiated as recvonly (senders is supplied by the
// Forwarder after building the answer's transceivers).
func NewSubscribeSession(
	streamID domain.StreamID,
	sessionID domain.SessionID,
	pc *webrtc.PeerConnection,
	mediaInfo domain.MediaInfo,
	senders map[domain.Kind]*webrtc.RTPSender,
	dcFanOut *DataChannelFanOut,
	getPublish func() *PublishSession,
	logger *zap.Logger,
) *SubscribeSession {
	s := &SubscribeSession{
		id:          sessionID,
		streamID:    streamID,
		pc:          pc,
		mediaInfo:   mediaInfo,
		createdAt:   time.Now(),
		dcFanOut:    dcFanOut,
		getPublish:  getPublish,
		slots:       make(map[domain.Kind]*senderSlot),
		binding:     make(map[domain.Kind]domain.Rid),
		previousRid: make(map[domain.Kind]domain.Rid),
		logger:      logger,
	}
	for kind, sender := range senders {
		slot := &senderSlot{kind: kind, sender: sender}
		s.slots[kind] = slot
		s.binding[kind] = ""
		go s.rtcpFeedbackLoop(slot)
	}
	return s
}

func (s *SubscribeSession) ID() domain.SessionID                  { return s.id }
func (s *SubscribeSession) MediaInfo() domain.MediaInfo           { return s.mediaInfo }
func (s *SubscribeSession) Cascade() *domain.CascadeInfo          { return s.cascade }
func (s *SubscribeSession) SetCascade(c *domain.CascadeInfo)      { s.cascade = c }
func (s *SubscribeSession) DataChannelFanOut() *DataChannelFanOut { return s.dcFanOut }
func (s *SubscribeSession) PeerConnection() *webrtc.PeerConnection { return s.pc }

// Binding returns the current rid bound for kind, or "" if the kind was not
// negotiated or no publisher track is bound to it.
func (s *SubscribeSession) Binding(kind domain.Kind) domain.Rid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding[kind]
}

// firstAvailable returns the lexicographically-first track of kind k
// (canonical ordering; ENABLE resolves to this).
func firstAvailable(tracks []*PublishTrackRemote, k domain.Kind) (*PublishTrackRemote, bool) {
	var matching []*PublishTrackRemote
	for _, t := range tracks {
		if t.Kind() == k {
			matching = append(matching, t)
		}
	}
	if len(matching) == 0 {
		return nil, false
	}
	sort.Slice(matching, func(i, j int) bool { return matching[i].Rid() < matching[j].Rid() })
	return matching[0], true
}

// SelectLayer implements the layer-selection protocol. requested
// may be a real rid, domain.RidEnable, or domain.RidDisable.
func (s *SubscribeSession) SelectLayer(kind domain.Kind, requested domain.Rid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[kind]
	if !ok {
		return nil // kind was not negotiated by this subscriber; no-op
	}
	current := s.binding[kind]
	if current == requested {
		return nil
	}

	if requested == domain.RidDisable {
		s.previousRid[kind] = current
		s.detachSlotLocked(slot)
		s.binding[kind] = domain.RidDisable
		return nil
	}

	pub := s.getPublish()
	var tracks []*PublishTrackRemote
	if pub != nil {
		tracks = pub.Tracks()
	}

	if current == domain.RidDisable && requested == domain.RidEnable {
		resume := s.previousRid[kind]
		track, found := trackWithRid(tracks, kind, resume)
		if !found {
			track, found = firstAvailable(tracks, kind)
		}
		if !found {
			s.binding[kind] = domain.RidEnable
			return nil
		}
		s.bindSlotLocked(slot, kind, track)
		s.binding[kind] = track.Rid()
		s.emitPLI(track)
		return nil
	}

	var track *PublishTrackRemote
	var found bool
	if requested == domain.RidEnable {
		track, found = firstAvailable(tracks, kind)
	} else {
		track, found = trackWithRid(tracks, kind, requested)
	}
	if !found {
		return nil
	}
	s.bindSlotLocked(slot, kind, track)
	s.binding[kind] = track.Rid()
	s.emitPLI(track)
	return nil
}

func trackWithRid(tracks []*PublishTrackRemote, k domain.Kind, rid domain.Rid) (*PublishTrackRemote, bool) {
	for _, t := range tracks {
		if t.Kind() == k && t.Rid() == rid {
			return t, true
		}
	}
	return nil, false
}

// OnPublisherTracksChanged implements the publisher-change protocol,
// invoked by the Forwarder whenever the publish-tracks set changes.
func (s *SubscribeSession) OnPublisherTracksChanged(tracks []*PublishTrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for kind, slot := range s.slots {
		current := s.binding[kind]
		_, hasAnyOfKind := firstAvailable(tracks, kind)

		switch {
		case !hasAnyOfKind:
			if current != domain.RidDisable {
				s.detachSlotLocked(slot)
				s.binding[kind] = ""
			}
		case current == domain.RidDisable:
			// preserved across churn, do nothing
		case current == "" || !trackStillPresent(tracks, kind, current):
			track, _ := firstAvailable(tracks, kind)
			s.bindSlotLocked(slot, kind, track)
			s.binding[kind] = track.Rid()
			s.emitPLI(track)
		}
	}
}

func trackStillPresent(tracks []*PublishTrackRemote, k domain.Kind, rid domain.Rid) bool {
	_, ok := trackWithRid(tracks, k, rid)
	return ok
}

// bindSlotLocked replaces slot's sender track with a fresh local track of
// the publisher track's codec, cancels any in-flight forwarder, and starts
// a new one. Caller holds s.mu.
func (s *SubscribeSession) bindSlotLocked(slot *senderSlot, kind domain.Kind, track *PublishTrackRemote) {
	if slot.cancel != nil {
		slot.cancel()
		slot.cancel = nil
	}

	local, err := webrtc.NewTrackLocalStaticRTP(track.Codec(), kind.String(), string(s.streamID))
	if err != nil {
		s.logger.Warn("failed to mint local track", zap.Error(err))
		return
	}
	if err := slot.sender.ReplaceTrack(local); err != nil {
		s.logger.Warn("failed to replace sender track", zap.Error(err))
		return
	}
	slot.localTrack = local

	ctx, cancel := context.WithCancel(context.Background())
	slot.cancel = cancel
	recv := track.Subscribe()
	go s.rtpForwardLoop(ctx, slot, recv, local)
}

// detachSlotLocked stops forwarding and removes the sender's track. The
// sequence counter is preserved so a future rebind continues monotonically.
func (s *SubscribeSession) detachSlotLocked(slot *senderSlot) {
	if slot.cancel != nil {
		slot.cancel()
		slot.cancel = nil
	}
	_ = slot.sender.ReplaceTrack(nil)
	slot.localTrack = nil
}

func (s *SubscribeSession) emitPLI(track *PublishTrackRemote) {
	pub := s.getPublish()
	if pub == nil {
		return
	}
	pub.SendRTCP(RTCPFeedback{
		Packet: &rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		SSRC:   uint32(track.SSRC()),
	})
}

// rtpForwardLoop is the RTP forwarder coroutine: reads from the
// publisher broadcast, rewrites the outbound sequence number to a monotone
// per-subscriber-per-kind counter, and writes to the sender's local track.
// Timestamps pass through unchanged.
func (s *SubscribeSession) rtpForwardLoop(ctx context.Context, slot *senderSlot, recv *Receiver[*rtp.Packet], local *webrtc.TrackLocalStaticRTP) {
	for {
		pkt, lag, err := recv.Recv(ctx)
		if err != nil {
			return
		}
		if lag > 0 {
			s.logger.Debug("subscriber lagged", zap.Int("lagged_packets", lag), zap.String("session_id", string(s.id)))
		}

		out := *pkt
		out.Header.SequenceNumber = uint16(atomic.AddUint32(&slot.seqCounter, 1) - 1)
		if err := local.WriteRTP(&out); err != nil {
			return
		}
	}
}

// rtcpFeedbackLoop is the RTCP feedback coroutine: reads RTCP
// from the sender and, if a publisher rid is bound for this kind, forwards
// it to the publisher stamped with that track's SSRC.
func (s *SubscribeSession) rtcpFeedbackLoop(slot *senderSlot) {
	for {
		pkts, _, err := slot.sender.ReadRTCP()
		if err != nil {
			return
		}
		if s.closed.Load() {
			return
		}
		rid := s.Binding(slot.kind)
		if rid == "" || rid == domain.RidDisable {
			continue
		}
		pub := s.getPublish()
		if pub == nil {
			continue
		}
		track, ok := pub.TrackByRid(slot.kind, rid)
		if !ok {
			continue
		}
		for _, pkt := range pkts {
			stamped := restampMediaSSRC(pkt, uint32(track.SSRC()))
			pub.SendRTCP(RTCPFeedback{Packet: stamped, SSRC: uint32(track.SSRC())})
		}
	}
}

// restampMediaSSRC rewrites the MediaSSRC of PLI/FIR/NACK feedback to the
// resolved publisher track's SSRC before forwarding.
func restampMediaSSRC(pkt rtcp.Packet, ssrc uint32) rtcp.Packet {
	switch p := pkt.(type) {
	case *rtcp.PictureLossIndication:
		c := *p
		c.MediaSSRC = ssrc
		return &c
	case *rtcp.FullIntraRequest:
		c := *p
		if len(c.FIR) > 0 {
			c.FIR[0].SSRC = ssrc
		}
		return &c
	case *rtcp.TransportLayerNack:
		c := *p
		c.MediaSSRC = ssrc
		return &c
	default:
		return pkt
	}
}

// Close stops all forwarder/feedback goroutines and the peer connection.
func (s *SubscribeSession) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	for _, slot := range s.slots {
		if slot.cancel != nil {
			slot.cancel()
		}
	}
	s.mu.Unlock()
	_ = s.pc.Close()
}
