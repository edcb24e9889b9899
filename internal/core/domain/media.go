package domain

import "fmt"

// TrackCounts is the per-kind transceiver tally parsed out of an offer.
type TrackCounts struct {
	SendOnly int
	RecvOnly int
	IsSVC    bool
}

// MediaInfo is parsed from the remote SDP at publish/subscribe time.
type MediaInfo struct {
	Video          TrackCounts
	Audio          TrackCounts
	HasDataChannel bool
}

func (m MediaInfo) counts(k Kind) TrackCounts {
	if k == KindAudio {
		return m.Audio
	}
	return m.Video
}

// ValidateForPublish enforces sendonly-count ≤ 1 for each kind.
func (m MediaInfo) ValidateForPublish() error {
	for _, k := range Kinds {
		if c := m.counts(k); c.SendOnly > 1 {
			return fmt.Errorf("publisher offers %d sendonly %s transceivers, at most 1 allowed", c.SendOnly, k)
		}
	}
	return nil
}

// ValidateForSubscribe enforces recvonly-count ≤ 1 for each kind.
func (m MediaInfo) ValidateForSubscribe() error {
	for _, k := range Kinds {
		if c := m.counts(k); c.RecvOnly > 1 {
			return fmt.Errorf("subscriber offers %d recvonly %s transceivers, at most 1 allowed", c.RecvOnly, k)
		}
	}
	return nil
}

// IsSVC reports whether the publisher's track of kind k is simulcast/SVC.
func (m MediaInfo) IsSVC(k Kind) bool {
	return m.counts(k).IsSVC
}
