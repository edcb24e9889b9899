package forward

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
	apperrors "live777go/pkg/errors"
	"live777go/pkg/utils"
)

// EventSink receives lifecycle events as a Forwarder's publish/subscribe
// slots change. Implementations must not block.
type EventSink interface {
	Emit(domain.Event)
}

// CascadeTeardowner issues the best-effort remote DELETE against a cascade
// session's resource URL once its local peer connection has closed.
// Implemented by cascade.Client.
type CascadeTeardowner interface {
	Teardown(ctx context.Context, resourceURL, token string) error
}

// Forwarder is the per-stream coordinator: at most one PublishSession, any
// number of SubscribeSessions, and the single DataChannelFanOut shared by
// all of them. Apart from publishMu, which serializes publisher
// negotiation end to end, it never holds its own locks across network I/O:
// negotiation work happens before the publish slot or subscriber map locks
// are taken, and only the resulting session pointers are swapped in under
// those locks.
type Forwarder struct {
	streamID domain.StreamID
	api      *webrtc.API
	ice      []webrtc.ICEServer
	sink     EventSink
	teardown CascadeTeardowner
	logger   *zap.Logger

	maxSubscribers int

	ctx    context.Context
	cancel context.CancelFunc

	publishMu sync.Mutex // serializes SetPublish end to end

	publishLock sync.RWMutex
	publish     *PublishSession

	subsMu sync.RWMutex
	subs   map[domain.SessionID]*SubscribeSession

	dcFanOut *DataChannelFanOut

	publishLeaveTime   int64 // epoch ms; 0 while a publisher is attached
	subscribeLeaveTime int64 // epoch ms; 0 while at least one subscriber is attached

	createdAtMs int64
}

// NewForwarder creates an empty Forwarder for streamID. maxSubscribers <= 0
// means unlimited.
func NewForwarder(streamID domain.StreamID, api *webrtc.API, ice []webrtc.ICEServer, sink EventSink, teardown CascadeTeardowner, maxSubscribers int, logger *zap.Logger) *Forwarder {
	now := utils.NowMs()
	ctx, cancel := context.WithCancel(context.Background())
	return &Forwarder{
		streamID:           streamID,
		api:                api,
		ice:                ice,
		sink:               sink,
		teardown:           teardown,
		logger:             logger,
		maxSubscribers:     maxSubscribers,
		ctx:                ctx,
		cancel:             cancel,
		subs:               make(map[domain.SessionID]*SubscribeSession),
		dcFanOut:           NewDataChannelFanOut(),
		publishLeaveTime:   now,
		subscribeLeaveTime: now,
		createdAtMs:        now,
	}
}

func (f *Forwarder) StreamID() domain.StreamID { return f.streamID }

func (f *Forwarder) currentPublish() *PublishSession {
	f.publishLock.RLock()
	defer f.publishLock.RUnlock()
	return f.publish
}

func (f *Forwarder) hasPublisher() bool {
	f.publishLock.RLock()
	defer f.publishLock.RUnlock()
	return f.publish != nil
}

// PublishLeaveTimeMs is 0 while a publisher is attached, else the epoch ms
// at which the last publisher departed (reaper input).
func (f *Forwarder) PublishLeaveTimeMs() int64 { return atomic.LoadInt64(&f.publishLeaveTime) }

// SetPublishLeaveTimeMs overrides the publish-leave clock. Used by the
// StreamManager right after auto-creating a Forwarder from a subscribe
// call, to decide whether it is subject to the publish reaper before any
// publisher ever arrives.
func (f *Forwarder) SetPublishLeaveTimeMs(ms int64) { atomic.StoreInt64(&f.publishLeaveTime, ms) }

// SubscribeLeaveTimeMs is 0 while at least one subscriber is attached, else
// the epoch ms at which the last subscriber departed (reaper input).
func (f *Forwarder) SubscribeLeaveTimeMs() int64 { return atomic.LoadInt64(&f.subscribeLeaveTime) }

func (f *Forwarder) emit(eventType domain.EventType) {
	if f.sink == nil {
		return
	}
	f.sink.Emit(domain.NewEvent(eventType, f.snapshotLocked()))
}

func (f *Forwarder) snapshotLocked() domain.StreamSnapshot {
	info := f.Info()
	return domain.StreamSnapshot{ID: string(f.streamID), Publish: info.Publish, Subscribe: info.Subscribe, Cascade: info.Cascade}
}

// teardownCascade issues the remote resource DELETE for a closed cascade
// session, off the caller's goroutine so a slow/unreachable remote peer
// never delays local session teardown.
func (f *Forwarder) teardownCascade(info *domain.CascadeInfo) {
	if f.teardown == nil {
		return
	}
	if info.ResourceURL == "" {
		f.logger.Info("cascade session has no remote resource URL, skipping teardown",
			zap.String("stream_id", string(f.streamID)))
		return
	}
	resourceURL, token := info.ResourceURL, info.Token
	go func() {
		if err := f.teardown.Teardown(context.Background(), resourceURL, token); err != nil {
			f.logger.Warn("cascade teardown failed", zap.String("resource_url", resourceURL), zap.Error(err))
		}
	}()
}

// SetPublish negotiates a new publisher for this stream. Fails with
// StreamBusy if a publisher is already attached.
func (f *Forwarder) SetPublish(offerSDP string) (answerSDP string, sessionID domain.SessionID, err error) {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	if f.hasPublisher() {
		return "", "", apperrors.StreamBusy(string(f.streamID))
	}

	mediaInfo, err := parseMediaInfo(offerSDP)
	if err != nil {
		return "", "", err
	}
	if err := mediaInfo.ValidateForPublish(); err != nil {
		return "", "", apperrors.InvalidSDP(err.Error())
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.ice})
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.ErrCodeIceFailure, "failed to create peer connection")
	}

	for _, kind := range domain.Kinds {
		counts := mediaInfo.Video
		if kind == domain.KindAudio {
			counts = mediaInfo.Audio
		}
		if counts.SendOnly == 0 {
			continue
		}
		if _, err := pc.AddTransceiverFromKind(kindToRTPCodecType(kind), webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
			pc.Close()
			return "", "", apperrors.Wrap(err, apperrors.ErrCodeIceFailure, "failed to add transceiver")
		}
	}

	sid := domain.SessionID(utils.GenerateSessionID())
	ps := NewPublishSession(f.streamID, sid, pc, mediaInfo, nil, f.dcFanOut, f.logger)

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t := NewPublishTrackRemote(f.streamID, sid, track, f.logger)
		ps.AddTrack(t)
		f.broadcastPublisherTracksChanged()
	})
	if mediaInfo.HasDataChannel {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			dc.OnOpen(func() {
				f.dcFanOut.BindPublisher(f.ctx, dc, f.logger)
			})
		})
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.handlePublisherStateChange(sid, state)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		pc.Close()
		return "", "", apperrors.InvalidSDP(err.Error())
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", "", apperrors.Wrap(err, apperrors.ErrCodeInvalidSDP, "failed to create answer")
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", "", apperrors.Wrap(err, apperrors.ErrCodeInvalidSDP, "failed to set local description")
	}

	ctx, cancel := negotiationContext()
	defer cancel()
	if err := awaitICEGatheringComplete(ctx, pc); err != nil {
		pc.Close()
		return "", "", apperrors.IceFailure("ICE gathering timed out")
	}

	f.publishLock.Lock()
	f.publish = ps
	f.publishLock.Unlock()
	atomic.StoreInt64(&f.publishLeaveTime, 0)
	f.emit(domain.EventPublishUp)

	return pc.LocalDescription().SDP, sid, nil
}

// AddSubscribe negotiates a new subscriber for this stream.
func (f *Forwarder) AddSubscribe(offerSDP string) (answerSDP string, sessionID domain.SessionID, err error) {
	mediaInfo, err := parseMediaInfo(offerSDP)
	if err != nil {
		return "", "", err
	}
	if err := mediaInfo.ValidateForSubscribe(); err != nil {
		return "", "", apperrors.InvalidSDP(err.Error())
	}

	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: f.ice})
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.ErrCodeIceFailure, "failed to create peer connection")
	}

	senders := make(map[domain.Kind]*webrtc.RTPSender)
	for _, kind := range domain.Kinds {
		counts := mediaInfo.Video
		if kind == domain.KindAudio {
			counts = mediaInfo.Audio
		}
		if counts.RecvOnly == 0 {
			continue
		}
		placeholder, err := webrtc.NewTrackLocalStaticRTP(PlaceholderCapability(kind), kind.String(), string(f.streamID))
		if err != nil {
			pc.Close()
			return "", "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to mint placeholder track")
		}
		transceiver, err := pc.AddTransceiverFromTrack(placeholder, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
		if err != nil {
			pc.Close()
			return "", "", apperrors.Wrap(err, apperrors.ErrCodeIceFailure, "failed to add transceiver")
		}
		senders[kind] = transceiver.Sender()
	}

	sid := domain.SessionID(utils.GenerateSessionID())
	ss := NewSubscribeSession(f.streamID, sid, pc, mediaInfo, senders, f.dcFanOut, f.currentPublish, f.logger)

	if mediaInfo.HasDataChannel {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			dc.OnOpen(func() {
				f.dcFanOut.BindSubscriber(f.ctx, dc, f.logger)
			})
		})
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.handleSubscriberStateChange(sid, state)
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		pc.Close()
		return "", "", apperrors.InvalidSDP(err.Error())
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", "", apperrors.Wrap(err, apperrors.ErrCodeInvalidSDP, "failed to create answer")
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", "", apperrors.Wrap(err, apperrors.ErrCodeInvalidSDP, "failed to set local description")
	}

	ctx, cancel := negotiationContext()
	defer cancel()
	if err := awaitICEGatheringComplete(ctx, pc); err != nil {
		pc.Close()
		return "", "", apperrors.IceFailure("ICE gathering timed out")
	}

	f.subsMu.Lock()
	if f.maxSubscribers > 0 && len(f.subs) >= f.maxSubscribers {
		f.subsMu.Unlock()
		pc.Close()
		return "", "", apperrors.AdmissionDenied(string(f.streamID))
	}
	f.subs[sid] = ss
	f.subsMu.Unlock()
	atomic.StoreInt64(&f.subscribeLeaveTime, 0)

	if pub := f.currentPublish(); pub != nil {
		ss.OnPublisherTracksChanged(pub.Tracks())
	}

	f.emit(domain.EventSubscribeUp)
	return pc.LocalDescription().SDP, sid, nil
}

// InstallCascadePublisher installs an already-negotiated peer connection
// (offer and answer both set) as this Forwarder's publisher. Used
// by the cascade pull flow once the remote WHEP answer has been applied.
func (f *Forwarder) InstallCascadePublisher(pc *webrtc.PeerConnection, cascadeInfo *domain.CascadeInfo) error {
	f.publishMu.Lock()
	defer f.publishMu.Unlock()

	if f.hasPublisher() {
		pc.Close()
		return apperrors.StreamBusy(string(f.streamID))
	}

	mediaInfo := domain.MediaInfo{
		Video: domain.TrackCounts{SendOnly: 1},
		Audio: domain.TrackCounts{SendOnly: 1},
	}
	sid := domain.SessionID(utils.GenerateSessionID())
	ps := NewPublishSession(f.streamID, sid, pc, mediaInfo, cascadeInfo, f.dcFanOut, f.logger)

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t := NewPublishTrackRemote(f.streamID, sid, track, f.logger)
		ps.AddTrack(t)
		f.broadcastPublisherTracksChanged()
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.handlePublisherStateChange(sid, state)
	})

	f.publishLock.Lock()
	f.publish = ps
	f.publishLock.Unlock()
	atomic.StoreInt64(&f.publishLeaveTime, 0)
	f.emit(domain.EventCascadePullUp)
	return nil
}

// InstallCascadeSubscriber installs an already-negotiated peer connection
// as a SubscribeSession carrying cascadeInfo.TargetURL. Used by
// the cascade push flow once the remote WHIP answer has been applied.
func (f *Forwarder) InstallCascadeSubscriber(pc *webrtc.PeerConnection, senders map[domain.Kind]*webrtc.RTPSender, cascadeInfo *domain.CascadeInfo) error {
	mediaInfo := domain.MediaInfo{
		Video: domain.TrackCounts{RecvOnly: 1},
		Audio: domain.TrackCounts{RecvOnly: 1},
	}
	sid := domain.SessionID(utils.GenerateSessionID())
	ss := NewSubscribeSession(f.streamID, sid, pc, mediaInfo, senders, f.dcFanOut, f.currentPublish, f.logger)
	ss.SetCascade(cascadeInfo)

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.handleSubscriberStateChange(sid, state)
	})

	f.subsMu.Lock()
	f.subs[sid] = ss
	f.subsMu.Unlock()
	atomic.StoreInt64(&f.subscribeLeaveTime, 0)

	if pub := f.currentPublish(); pub != nil {
		ss.OnPublisherTracksChanged(pub.Tracks())
	}

	f.emit(domain.EventCascadePushUp)
	return nil
}

// CloseNonCascadeSubscribers closes every subscriber of this stream that is
// not itself a cascade relay ("hand-off" mode, gated by the
// strategy.cascade_push_close_sub config flag).
func (f *Forwarder) CloseNonCascadeSubscribers(exceptSessionID domain.SessionID) {
	f.subsMu.RLock()
	var toClose []*SubscribeSession
	for id, ss := range f.subs {
		if id != exceptSessionID && ss.Cascade() == nil {
			toClose = append(toClose, ss)
		}
	}
	f.subsMu.RUnlock()
	for _, ss := range toClose {
		ss.Close()
	}
}

// broadcastPublisherTracksChanged reconciles every subscriber's bindings
// against the current publisher track set (publisher-change protocol).
func (f *Forwarder) broadcastPublisherTracksChanged() {
	pub := f.currentPublish()
	var tracks []*PublishTrackRemote
	if pub != nil {
		tracks = pub.Tracks()
	}
	f.subsMu.RLock()
	snapshot := make([]*SubscribeSession, 0, len(f.subs))
	for _, ss := range f.subs {
		snapshot = append(snapshot, ss)
	}
	f.subsMu.RUnlock()
	for _, ss := range snapshot {
		ss.OnPublisherTracksChanged(tracks)
	}
}

func (f *Forwarder) handlePublisherStateChange(sessionID domain.SessionID, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		go f.closePublishIfCurrent(sessionID)
	case webrtc.PeerConnectionStateClosed:
		f.publishLock.Lock()
		var closed *PublishSession
		if f.publish != nil && f.publish.ID() == sessionID {
			closed = f.publish
			f.publish = nil
		}
		f.publishLock.Unlock()
		if closed != nil {
			atomic.StoreInt64(&f.publishLeaveTime, utils.NowMs())
			if cascadeInfo := closed.Cascade(); cascadeInfo != nil {
				f.emit(domain.EventCascadePullDown)
				f.teardownCascade(cascadeInfo)
			} else {
				f.emit(domain.EventPublishDown)
			}
			f.broadcastPublisherTracksChanged()
		}
	}
}

func (f *Forwarder) closePublishIfCurrent(sessionID domain.SessionID) {
	ps := f.currentPublish()
	if ps != nil && ps.ID() == sessionID {
		ps.Close()
	}
}

func (f *Forwarder) handleSubscriberStateChange(sessionID domain.SessionID, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		f.subsMu.RLock()
		ss, ok := f.subs[sessionID]
		f.subsMu.RUnlock()
		if ok {
			go ss.Close()
		}
	case webrtc.PeerConnectionStateClosed:
		f.subsMu.Lock()
		ss, existed := f.subs[sessionID]
		delete(f.subs, sessionID)
		remaining := len(f.subs)
		f.subsMu.Unlock()
		if existed {
			if remaining == 0 {
				atomic.StoreInt64(&f.subscribeLeaveTime, utils.NowMs())
			}
			if cascadeInfo := ss.Cascade(); cascadeInfo != nil {
				f.emit(domain.EventCascadePushDown)
				f.teardownCascade(cascadeInfo)
			} else {
				f.emit(domain.EventSubscribeDown)
			}
		}
	}
}

// RemovePeer tears down the session identified by sessionID, publisher or
// subscriber, and reports whether it was the publisher.
func (f *Forwarder) RemovePeer(sessionID domain.SessionID) (wasPublisher bool, err error) {
	if ps := f.currentPublish(); ps != nil && ps.ID() == sessionID {
		ps.Close()
		return true, nil
	}
	f.subsMu.RLock()
	ss, ok := f.subs[sessionID]
	f.subsMu.RUnlock()
	if ok {
		ss.Close()
		return false, nil
	}
	return false, apperrors.SessionNotFound(string(sessionID))
}

// AddICECandidate applies trickled candidates to whichever peer owns
// sessionID. A missing session is a no-op success.
func (f *Forwarder) AddICECandidate(sessionID domain.SessionID, fragment string) error {
	var pc *webrtc.PeerConnection
	if ps := f.currentPublish(); ps != nil && ps.ID() == sessionID {
		pc = ps.PeerConnection()
	} else {
		f.subsMu.RLock()
		ss, ok := f.subs[sessionID]
		f.subsMu.RUnlock()
		if ok {
			pc = ss.PeerConnection()
		}
	}
	if pc == nil {
		return nil
	}
	for _, c := range parseICECandidates(fragment) {
		init := webrtc.ICECandidateInit{Candidate: c.candidate}
		if c.mid != "" {
			mid := c.mid
			init.SDPMid = &mid
		}
		if err := pc.AddICECandidate(init); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeIceFailure, "failed to add ICE candidate")
		}
	}
	return nil
}

// Layers reports the publisher's simulcast rids. Fails with NotSVC
// if there is no publisher or its video is not simulcast/SVC.
func (f *Forwarder) Layers() ([]domain.Rid, error) {
	ps := f.currentPublish()
	if ps == nil || !ps.MediaInfo().IsSVC(domain.KindVideo) {
		return nil, apperrors.NotSVC(string(f.streamID))
	}
	tracks := ps.Tracks()
	var rids []domain.Rid
	for _, t := range tracks {
		if t.Kind() == domain.KindVideo {
			rids = append(rids, t.Rid())
		}
	}
	return rids, nil
}

// SelectLayer requests a specific (or best-available, via domain.RidEnable)
// simulcast layer for a subscriber's video.
func (f *Forwarder) SelectLayer(sessionID domain.SessionID, requested domain.Rid) error {
	f.subsMu.RLock()
	ss, ok := f.subs[sessionID]
	f.subsMu.RUnlock()
	if !ok {
		return apperrors.SessionNotFound(string(sessionID))
	}
	if requested == "" {
		requested = domain.RidEnable
	}
	return ss.SelectLayer(domain.KindVideo, requested)
}

// ChangeResource enables or disables a subscriber's kind, preserving its
// prior binding for resume.
func (f *Forwarder) ChangeResource(sessionID domain.SessionID, kind domain.Kind, enabled bool) error {
	f.subsMu.RLock()
	ss, ok := f.subs[sessionID]
	f.subsMu.RUnlock()
	if !ok {
		return apperrors.SessionNotFound(string(sessionID))
	}
	requested := domain.RidDisable
	if enabled {
		requested = domain.RidEnable
	}
	return ss.SelectLayer(kind, requested)
}

// Info returns a point-in-time snapshot for admin/telemetry.
func (f *Forwarder) Info() domain.ForwardInfo {
	publish := 0
	cascade := 0
	if ps := f.currentPublish(); ps != nil {
		publish = 1
		if ps.Cascade() != nil {
			cascade++
		}
	}
	f.subsMu.RLock()
	subscribe := len(f.subs)
	for _, ss := range f.subs {
		if ss.Cascade() != nil {
			cascade++
		}
	}
	f.subsMu.RUnlock()
	return domain.ForwardInfo{ID: string(f.streamID), Publish: publish, Subscribe: subscribe, Cascade: cascade}
}

// Close tears down every peer connection owned by this Forwarder. Session
// pointers are snapshotted and cleared under lock, then Close()d outside
// it — pc.Close() runs synchronously and must never run while a
// Forwarder-scope write lock is held.
func (f *Forwarder) Close() {
	f.publishLock.Lock()
	ps := f.publish
	f.publish = nil
	f.publishLock.Unlock()
	if ps != nil {
		ps.Close()
	}

	f.subsMu.Lock()
	snapshot := make([]*SubscribeSession, 0, len(f.subs))
	for _, ss := range f.subs {
		snapshot = append(snapshot, ss)
	}
	f.subs = make(map[domain.SessionID]*SubscribeSession)
	f.subsMu.Unlock()
	for _, ss := range snapshot {
		ss.Close()
	}

	f.dcFanOut.Close()
	f.cancel()
}
