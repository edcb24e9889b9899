package forward

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleOffer = `v=0
o=- 0 0 IN IP4 127.0.0.1
s=-
t=0 0
m=video 9 UDP/TLS/RTP/SAVPF 96
c=IN IP4 0.0.0.0
a=sendonly
a=rid:f send
a=rid:h send
a=rid:q send
a=simulcast:send f;h;q
m=audio 9 UDP/TLS/RTP/SAVPF 111
c=IN IP4 0.0.0.0
a=sendonly
m=application 9 DTLS/SCTP 5000
c=IN IP4 0.0.0.0
`

func TestParseMediaInfoPublisherOffer(t *testing.T) {
	info, err := parseMediaInfo(sampleOffer)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Video.SendOnly)
	assert.Equal(t, 0, info.Video.RecvOnly)
	assert.True(t, info.Video.IsSVC)
	assert.Equal(t, 1, info.Audio.SendOnly)
	assert.False(t, info.Audio.IsSVC)
	assert.True(t, info.HasDataChannel)
}

func TestParseMediaInfoRejectsGarbage(t *testing.T) {
	_, err := parseMediaInfo("not an sdp document")
	assert.Error(t, err)
}

const sampleSubscriberOffer = `v=0
o=- 0 0 IN IP4 127.0.0.1
s=-
t=0 0
m=video 9 UDP/TLS/RTP/SAVPF 96
c=IN IP4 0.0.0.0
a=recvonly
m=audio 9 UDP/TLS/RTP/SAVPF 111
c=IN IP4 0.0.0.0
a=recvonly
`

func TestParseMediaInfoSubscriberOffer(t *testing.T) {
	info, err := parseMediaInfo(sampleSubscriberOffer)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Video.RecvOnly)
	assert.Equal(t, 1, info.Audio.RecvOnly)
	assert.False(t, info.HasDataChannel)
}

func TestParseICECandidates(t *testing.T) {
	fragment := "a=mid:0\r\na=candidate:1 1 UDP 2122260223 192.168.1.1 54321 typ host\r\na=mid:1\r\na=candidate:2 1 UDP 2122260222 192.168.1.1 54322 typ host\r\n"
	candidates := parseICECandidates(fragment)
	require.Len(t, candidates, 2)
	assert.Equal(t, "0", candidates[0].mid)
	assert.Equal(t, "1", candidates[1].mid)
	assert.Contains(t, candidates[0].candidate, "candidate:1")
}

func TestParseICECandidatesEmptyFragment(t *testing.T) {
	assert.Empty(t, parseICECandidates(""))
}
