package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
	apperrors "live777go/pkg/errors"
)

type fakeSink struct {
	events []domain.Event
}

func (f *fakeSink) Emit(e domain.Event) {
	f.events = append(f.events, e)
}

func newTestManager(t *testing.T) (*Manager, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	m, err := NewManager(Config{
		AutoCreateWhip:        true,
		AutoCreateWhep:        true,
		AutoDeleteWhipMs:      -1, // reapers disabled, test calls reap* directly
		AutoDeleteWhepMs:      -1,
		CascadeConnectTimeout: time.Second,
		CascadeTotalTimeout:   2 * time.Second,
	}, sink, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, sink
}

func TestManagerAutoCreatesForwarderAndReportsInfo(t *testing.T) {
	m, sink := newTestManager(t)

	_, err := m.Forwarder(domain.StreamID("room1"), true)
	require.NoError(t, err)

	infos := m.Info(nil)
	require.Len(t, infos, 1)
	assert.Equal(t, "room1", infos[0].ID)
	require.Len(t, sink.events, 1)
	assert.Equal(t, domain.EventStreamUp, sink.events[0].Event)
}

func TestManagerInfoFiltersByStreamID(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Forwarder(domain.StreamID("room1"), true)
	require.NoError(t, err)
	_, err = m.Forwarder(domain.StreamID("room2"), true)
	require.NoError(t, err)

	infos := m.Info(map[string]bool{"room2": true})
	require.Len(t, infos, 1)
	assert.Equal(t, "room2", infos[0].ID)
}

func TestLookupMissingStreamReturnsStreamNotFound(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.AddICECandidate(domain.StreamID("missing"), domain.SessionID("s1"), "a=candidate:1")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeStreamNotFound, appErr.Code)
}

func TestReapPublishEvictsForwarderPastThreshold(t *testing.T) {
	m, sink := newTestManager(t)

	f, err := m.Forwarder(domain.StreamID("room1"), true)
	require.NoError(t, err)
	f.SetPublishLeaveTimeMs(1)

	m.reapPublish(10)

	assert.Empty(t, m.Info(nil))
	require.Len(t, sink.events, 2)
	assert.Equal(t, domain.EventStreamDown, sink.events[1].Event)
}

func TestReapPublishKeepsForwarderBeforeThreshold(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Forwarder(domain.StreamID("room1"), true)
	require.NoError(t, err)

	m.reapPublish(60_000)

	assert.Len(t, m.Info(nil), 1)
}

func TestPublishWithoutAutoCreateFailsOnUnknownStream(t *testing.T) {
	sink := &fakeSink{}
	m, err := NewManager(Config{
		AutoCreateWhip:   false,
		AutoDeleteWhipMs: -1,
		AutoDeleteWhepMs: -1,
	}, sink, nil, zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	_, _, err = m.Publish(domain.StreamID("room1"), "v=0\r\n")
	require.Error(t, err)
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrCodeStreamNotFound, appErr.Code)
}
