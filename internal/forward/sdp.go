package forward

import (
	"strings"

	"github.com/pion/sdp/v3"

	"live777go/internal/core/domain"
	"live777go/pkg/errors"
)

// parseMediaInfo inspects an offer's media sections to derive the
// per-kind sendonly/recvonly counts, simulcast presence, and whether a
// data channel was offered. It never terminates negotiation by
// itself; callers decide what to do with the result.
func parseMediaInfo(offerSDP string) (domain.MediaInfo, error) {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(offerSDP)); err != nil {
		return domain.MediaInfo{}, errors.InvalidSDP("failed to parse offer: " + err.Error())
	}

	info := domain.MediaInfo{}
	for _, m := range parsed.MediaDescriptions {
		switch m.MediaName.Media {
		case "audio":
			accumulate(&info.Audio, m)
		case "video":
			accumulate(&info.Video, m)
		case "application":
			info.HasDataChannel = true
		}
	}
	return info, nil
}

func accumulate(counts *domain.TrackCounts, m *sdp.MediaDescription) {
	switch mediaDirection(m) {
	case "sendonly", "sendrecv":
		counts.SendOnly++
	case "recvonly":
		counts.RecvOnly++
	}
	if hasSimulcastRids(m) {
		counts.IsSVC = true
	}
}

func mediaDirection(m *sdp.MediaDescription) string {
	for _, a := range m.Attributes {
		switch a.Key {
		case "sendonly", "recvonly", "sendrecv", "inactive":
			return a.Key
		}
	}
	return "sendrecv"
}

func hasSimulcastRids(m *sdp.MediaDescription) bool {
	count := 0
	for _, a := range m.Attributes {
		if a.Key == "rid" {
			count++
		}
	}
	return count > 1
}

// iceCandidateLine is one trickle candidate paired with the mid it was
// collected under, in document order.
type iceCandidateLine struct {
	mid       string
	candidate string
}

// parseICECandidates extracts candidate lines from a trickle-ice-sdpfrag
// body. The fragment is line-oriented and need not carry a v=0
// header; we scan for a=mid:/a=candidate: pairs directly rather than
// requiring a fully-formed SDP document.
func parseICECandidates(fragment string) []iceCandidateLine {
	var out []iceCandidateLine
	currentMid := ""
	for _, line := range strings.Split(fragment, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "a=mid:"):
			currentMid = strings.TrimPrefix(line, "a=mid:")
		case strings.HasPrefix(line, "a=candidate:"):
			out = append(out, iceCandidateLine{mid: currentMid, candidate: strings.TrimPrefix(line, "a=")})
		case strings.HasPrefix(line, "candidate:"):
			out = append(out, iceCandidateLine{mid: currentMid, candidate: line})
		}
	}
	return out
}
