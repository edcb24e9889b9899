package forward

import (
	"context"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// dataChannelBroadcastDepth is small: data-channel messages are
// application-level signaling, not a media hot path.
const dataChannelBroadcastDepth = 64

// DataMessage is one data-channel payload relayed through the fan-out.
type DataMessage struct {
	IsString bool
	Data     []byte
}

// DataChannelFanOut is a pair of independent broadcast channels — publisher
// to subscribers, and subscribers to publisher — not a mesh.
// A message published with no reader on the opposite side is simply lost
// (see the open question decisions in DESIGN.md).
type DataChannelFanOut struct {
	toSubscribers *Broadcast[DataMessage]
	toPublisher   *Broadcast[DataMessage]
}

func NewDataChannelFanOut() *DataChannelFanOut {
	return &DataChannelFanOut{
		toSubscribers: NewBroadcast[DataMessage](dataChannelBroadcastDepth),
		toPublisher:   NewBroadcast[DataMessage](dataChannelBroadcastDepth),
	}
}

// BindPublisher wires dc's OnMessage handler to fan the publisher's messages
// out into toSubscribers, and spawns a write-loop that delivers to dc
// whatever subscribers sent into toPublisher.
func (f *DataChannelFanOut) BindPublisher(ctx context.Context, dc *webrtc.DataChannel, logger *zap.Logger) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f.toSubscribers.Send(DataMessage{IsString: msg.IsString, Data: msg.Data})
	})
	go f.writeLoop(ctx, dc, f.toPublisher, logger)
}

// BindSubscriber spawns the read-loop that fans one subscriber's messages
// into the publisher-bound channel, and a write-loop delivering whatever
// the publisher (or other subscribers, in a future extension) sent.
func (f *DataChannelFanOut) BindSubscriber(ctx context.Context, dc *webrtc.DataChannel, logger *zap.Logger) {
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f.toPublisher.Send(DataMessage{IsString: msg.IsString, Data: msg.Data})
	})
	go f.writeLoop(ctx, dc, f.toSubscribers, logger)
}

func (f *DataChannelFanOut) writeLoop(ctx context.Context, dc *webrtc.DataChannel, src *Broadcast[DataMessage], logger *zap.Logger) {
	recv := src.Subscribe()
	for {
		msg, _, err := recv.Recv(ctx)
		if err != nil {
			return
		}
		var sendErr error
		if msg.IsString {
			sendErr = dc.SendText(string(msg.Data))
		} else {
			sendErr = dc.Send(msg.Data)
		}
		if sendErr != nil {
			logger.Debug("data channel write failed", zap.Error(sendErr))
			return
		}
	}
}

// Close releases both broadcast channels; in-flight writers observe
// ErrBroadcastClosed on their next Recv.
func (f *DataChannelFanOut) Close() {
	f.toSubscribers.Close()
	f.toPublisher.Close()
}
