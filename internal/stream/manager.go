// Package stream implements the StreamManager: the process-wide registry
// of Forwarders, admission, and the two independent leave-timeout reapers.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"live777go/internal/cascade"
	"live777go/internal/core/domain"
	"live777go/internal/forward"
	"live777go/internal/infrastructure/monitoring"
	apperrors "live777go/pkg/errors"
	"live777go/pkg/utils"
)

const reaperInterval = 1 * time.Second

// Manager owns the StreamId → Forwarder mapping. It never holds its
// own lock while a Forwarder performs network/ICE negotiation: the mapping
// lookup/insert happens, the lock is released, then the (possibly slow)
// Forwarder operation runs against the already-registered Forwarder.
type Manager struct {
	api *webrtc.API
	ice []webrtc.ICEServer
	sink forward.EventSink
	logger *zap.Logger

	autoCreateWhip bool
	autoCreateWhep bool
	autoDeleteWhipMs int64
	autoDeleteWhepMs int64
	autoDeleteWhipMsFromSubscribeCreate bool
	maxSubscribersPerStream int

	cascadeClient *cascade.Client
	metrics       *monitoring.Collector

	mu        sync.RWMutex
	forwarders map[domain.StreamID]*forward.Forwarder

	stopReapers chan struct{}
}

// Config is the subset of pkg/config.Config the manager needs, passed
// explicitly so this package does not import pkg/config directly (it is
// wired by cmd/sfu).
type Config struct {
	ICEServers                          []webrtc.ICEServer
	AutoCreateWhip                      bool
	AutoCreateWhep                      bool
	AutoDeleteWhipMs                    int64
	AutoDeleteWhepMs                    int64
	AutoDeleteWhipMsFromSubscribeCreate bool
	MaxSubscribersPerStream             int
	CascadeConnectTimeout               time.Duration
	CascadeTotalTimeout                 time.Duration
}

// NewManager builds a Manager and starts its reapers. Call Close to stop
// them and tear down every Forwarder.
func NewManager(cfg Config, sink forward.EventSink, metrics *monitoring.Collector, logger *zap.Logger) (*Manager, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to register default codecs")
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	m := &Manager{
		api:                                  api,
		ice:                                  cfg.ICEServers,
		sink:                                 sink,
		logger:                               logger,
		autoCreateWhip:                       cfg.AutoCreateWhip,
		autoCreateWhep:                       cfg.AutoCreateWhep,
		autoDeleteWhipMs:                     cfg.AutoDeleteWhipMs,
		autoDeleteWhepMs:                     cfg.AutoDeleteWhepMs,
		autoDeleteWhipMsFromSubscribeCreate:  cfg.AutoDeleteWhipMsFromSubscribeCreate,
		maxSubscribersPerStream:              cfg.MaxSubscribersPerStream,
		forwarders:                           make(map[domain.StreamID]*forward.Forwarder),
		stopReapers:                          make(chan struct{}),
		metrics:                              metrics,
	}
	m.cascadeClient = cascade.NewClient(api, cfg.ICEServers, cfg.CascadeConnectTimeout, cfg.CascadeTotalTimeout, logger)
	go m.runReaper(m.autoDeleteWhipMs, m.reapPublish)
	go m.runReaper(m.autoDeleteWhepMs, m.reapSubscribe)
	if m.metrics != nil {
		go m.runMetricsRefresh()
	}
	return m, nil
}

// runMetricsRefresh periodically syncs the per-stream Prometheus gauges
// from each Forwarder's snapshot; it is not worth a dedicated event path
// since /metrics scraping is itself only ever polled, not pushed.
func (m *Manager) runMetricsRefresh() {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopReapers:
			return
		case <-ticker.C:
			for _, info := range m.Info(nil) {
				m.metrics.UpdateStreamCounts(info)
			}
		}
	}
}

func (m *Manager) getOrCreate(streamID domain.StreamID, autoCreate bool, subscriberCreated bool) (*forward.Forwarder, error) {
	m.mu.RLock()
	f, ok := m.forwarders[streamID]
	m.mu.RUnlock()
	if ok {
		return f, nil
	}
	if !autoCreate {
		return nil, apperrors.StreamNotFound(string(streamID))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.forwarders[streamID]; ok {
		return f, nil
	}
	f = forward.NewForwarder(streamID, m.api, m.ice, m.sink, m.cascadeClient, m.maxSubscribersPerStream, m.logger)
	if subscriberCreated && !m.autoDeleteWhipMsFromSubscribeCreate {
		// Not subject to the publish reaper until a real publisher departs.
		f.SetPublishLeaveTimeMs(0)
	}
	m.forwarders[streamID] = f
	m.sink.Emit(domain.NewEvent(domain.EventStreamUp, domain.StreamSnapshot{ID: string(streamID)}))
	if m.metrics != nil {
		m.metrics.RecordStreamCreated()
	}
	return f, nil
}

// Publish routes a WHIP offer to streamID's Forwarder, auto-creating it if
// configured.
func (m *Manager) Publish(streamID domain.StreamID, offerSDP string) (answerSDP string, sessionID domain.SessionID, err error) {
	f, err := m.getOrCreate(streamID, m.autoCreateWhip, false)
	if err != nil {
		return "", "", err
	}
	answerSDP, sessionID, err = f.SetPublish(offerSDP)
	if err == nil && m.metrics != nil {
		m.metrics.RecordSessionNegotiated()
	}
	return answerSDP, sessionID, err
}

// Subscribe routes a WHEP offer to streamID's Forwarder, auto-creating it
// if configured. A freshly auto-created Forwarder's publish-leave
// clock starts immediately when
// Strategy.AutoDeleteWhipMsFromSubscribeCreate is enabled, so it is reaped
// like any publisher-less stream.
func (m *Manager) Subscribe(streamID domain.StreamID, offerSDP string) (answerSDP string, sessionID domain.SessionID, err error) {
	f, err := m.getOrCreate(streamID, m.autoCreateWhep, true)
	if err != nil {
		return "", "", err
	}
	answerSDP, sessionID, err = f.AddSubscribe(offerSDP)
	if err == nil && m.metrics != nil {
		m.metrics.RecordSessionNegotiated()
	}
	return answerSDP, sessionID, err
}

func (m *Manager) lookup(streamID domain.StreamID) (*forward.Forwarder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.forwarders[streamID]
	if !ok {
		return nil, apperrors.StreamNotFound(string(streamID))
	}
	return f, nil
}

func (m *Manager) AddICECandidate(streamID domain.StreamID, sessionID domain.SessionID, fragment string) error {
	f, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	return f.AddICECandidate(sessionID, fragment)
}

func (m *Manager) RemoveSession(streamID domain.StreamID, sessionID domain.SessionID) error {
	f, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	_, err = f.RemovePeer(sessionID)
	return err
}

func (m *Manager) Layers(streamID domain.StreamID) ([]domain.Rid, error) {
	f, err := m.lookup(streamID)
	if err != nil {
		return nil, err
	}
	return f.Layers()
}

func (m *Manager) SelectLayer(streamID domain.StreamID, sessionID domain.SessionID, requested domain.Rid) error {
	f, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	return f.SelectLayer(sessionID, requested)
}

func (m *Manager) ChangeResource(streamID domain.StreamID, sessionID domain.SessionID, kind domain.Kind, enabled bool) error {
	f, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	return f.ChangeResource(sessionID, kind, enabled)
}

// Info returns a snapshot of every currently-registered stream.
func (m *Manager) Info(streamFilter map[string]bool) []domain.ForwardInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.ForwardInfo, 0, len(m.forwarders))
	for id, f := range m.forwarders {
		if len(streamFilter) > 0 && !streamFilter[string(id)] {
			continue
		}
		out = append(out, f.Info())
	}
	return out
}

// Forwarder exposes the named stream's Forwarder for the cascade package,
// which needs to install a negotiated peer directly rather than through
// the WHIP/WHEP offer/answer path.
func (m *Manager) Forwarder(streamID domain.StreamID, autoCreate bool) (*forward.Forwarder, error) {
	return m.getOrCreate(streamID, autoCreate, false)
}

// CascadePull turns streamID's Forwarder into a publisher by pulling
// from a remote WHEP endpoint. The Forwarder is auto-created
// regardless of Strategy.AutoCreateWhip, since a cascade pull is an explicit
// admin action, not an inbound WHIP offer.
func (m *Manager) CascadePull(ctx context.Context, streamID domain.StreamID, srcURL, token string) error {
	f, err := m.getOrCreate(streamID, true, false)
	if err != nil {
		return err
	}
	return m.cascadeClient.Pull(ctx, f, srcURL, token)
}

// CascadePush gives streamID's Forwarder a cascade subscriber that
// relays to a remote WHIP endpoint. closeOtherSubscribers requests the
// hand-off mode where every non-cascade subscriber of the stream is torn
// down once the push is installed.
func (m *Manager) CascadePush(ctx context.Context, streamID domain.StreamID, dstURL, token string, closeOtherSubscribers bool) error {
	f, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	if err := m.cascadeClient.Push(ctx, f, dstURL, token); err != nil {
		return err
	}
	if closeOtherSubscribers {
		f.CloseNonCascadeSubscribers(domain.SessionID(""))
	}
	return nil
}

func (m *Manager) runReaper(thresholdMs int64, reap func(int64)) {
	if thresholdMs < 0 {
		return
	}
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopReapers:
			return
		case <-ticker.C:
			reap(thresholdMs)
		}
	}
}

// reapPublish implements the read-then-write double-check pattern:
// collect candidates under a read lock, then re-verify and evict each one
// individually under the write lock so a racing new publisher is never
// dropped out from under itself.
func (m *Manager) reapPublish(thresholdMs int64) {
	now := utils.NowMs()
	m.mu.RLock()
	var candidates []domain.StreamID
	for id, f := range m.forwarders {
		if leave := f.PublishLeaveTimeMs(); leave != 0 && now-leave > thresholdMs {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range candidates {
		m.mu.Lock()
		f, ok := m.forwarders[id]
		if ok {
			if leave := f.PublishLeaveTimeMs(); leave != 0 && utils.NowMs()-leave > thresholdMs {
				delete(m.forwarders, id)
			} else {
				ok = false
			}
		}
		m.mu.Unlock()
		if ok {
			f.Close()
			m.sink.Emit(domain.NewEvent(domain.EventStreamDown, domain.StreamSnapshot{ID: string(id)}))
			if m.metrics != nil {
				m.metrics.RecordStreamEnded()
				m.metrics.ClearStream(id)
			}
		}
	}
}

// reapSubscribe is symmetric to reapPublish for subscribe-leave-time.
func (m *Manager) reapSubscribe(thresholdMs int64) {
	now := utils.NowMs()
	m.mu.RLock()
	var candidates []domain.StreamID
	for id, f := range m.forwarders {
		if leave := f.SubscribeLeaveTimeMs(); leave != 0 && now-leave > thresholdMs {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range candidates {
		m.mu.Lock()
		f, ok := m.forwarders[id]
		if ok {
			if leave := f.SubscribeLeaveTimeMs(); leave != 0 && utils.NowMs()-leave > thresholdMs {
				delete(m.forwarders, id)
			} else {
				ok = false
			}
		}
		m.mu.Unlock()
		if ok {
			f.Close()
			m.sink.Emit(domain.NewEvent(domain.EventStreamDown, domain.StreamSnapshot{ID: string(id)}))
			if m.metrics != nil {
				m.metrics.RecordStreamEnded()
				m.metrics.ClearStream(id)
			}
		}
	}
}

// Close stops both reapers and tears down every Forwarder.
func (m *Manager) Close() {
	close(m.stopReapers)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.forwarders {
		f.Close()
	}
	m.forwarders = make(map[domain.StreamID]*forward.Forwarder)
}
