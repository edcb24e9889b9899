package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live777go/internal/core/domain"
	"live777go/pkg/config"
)

func TestBusLocalFanOut(t *testing.T) {
	cfg := config.DefaultConfig()
	bus := New(cfg, "node-1", zap.NewNop())
	defer bus.Close()

	recv := bus.Subscribe()
	bus.Emit(domain.NewEvent(domain.EventStreamUp, domain.StreamSnapshot{ID: "room1"}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	event, lag, err := recv.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, lag)
	assert.Equal(t, domain.EventStreamUp, event.Event)
	assert.Equal(t, "room1", event.Stream.ID)
}

func TestBusRunInvokesHandlerUntilCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	bus := New(cfg, "node-1", zap.NewNop())
	defer bus.Close()

	received := make(chan domain.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx, func(e domain.Event) { received <- e })

	bus.Emit(domain.NewEvent(domain.EventPublishUp, domain.StreamSnapshot{ID: "room2"}))

	select {
	case e := <-received:
		assert.Equal(t, "room2", e.Stream.ID)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	cancel()
}
