package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseKindCaseInsensitive(t *testing.T) {
	for _, s := range []string{"video", "Video", "VIDEO"} {
		k, ok := ParseKind(s)
		assert.True(t, ok)
		assert.Equal(t, KindVideo, k)
	}
	for _, s := range []string{"audio", "Audio", "AUDIO"} {
		k, ok := ParseKind(s)
		assert.True(t, ok)
		assert.Equal(t, KindAudio, k)
	}
	_, ok := ParseKind("screen")
	assert.False(t, ok)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "video", KindVideo.String())
	assert.Equal(t, "audio", KindAudio.String())
}

func TestRidIsSentinel(t *testing.T) {
	assert.True(t, RidEnable.IsSentinel())
	assert.True(t, RidDisable.IsSentinel())
	assert.False(t, Rid("f").IsSentinel())
}

func TestMediaInfoValidateForPublish(t *testing.T) {
	ok := MediaInfo{Video: TrackCounts{SendOnly: 1}, Audio: TrackCounts{SendOnly: 1}}
	assert.NoError(t, ok.ValidateForPublish())

	tooMany := MediaInfo{Video: TrackCounts{SendOnly: 2}}
	assert.Error(t, tooMany.ValidateForPublish())
}

func TestMediaInfoValidateForSubscribe(t *testing.T) {
	ok := MediaInfo{Video: TrackCounts{RecvOnly: 1}}
	assert.NoError(t, ok.ValidateForSubscribe())

	tooMany := MediaInfo{Audio: TrackCounts{RecvOnly: 2}}
	assert.Error(t, tooMany.ValidateForSubscribe())
}

func TestMediaInfoIsSVC(t *testing.T) {
	m := MediaInfo{Video: TrackCounts{IsSVC: true}}
	assert.True(t, m.IsSVC(KindVideo))
	assert.False(t, m.IsSVC(KindAudio))
}

func TestNewEventCategorization(t *testing.T) {
	streamEvent := NewEvent(EventStreamUp, StreamSnapshot{ID: "room1"})
	assert.Equal(t, CategoryStream, streamEvent.Type)

	forwardEvent := NewEvent(EventPublishUp, StreamSnapshot{ID: "room1"})
	assert.Equal(t, CategoryForward, forwardEvent.Type)
}
