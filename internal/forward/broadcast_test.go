package forward

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastFanOutConservation(t *testing.T) {
	b := NewBroadcast[int](8)
	r1 := b.Subscribe()
	r2 := b.Subscribe()

	go func() {
		for i := 0; i < 3; i++ {
			b.Send(i)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, r := range []*Receiver[int]{r1, r2} {
		for want := 0; want < 3; want++ {
			got, lag, err := r.Recv(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, lag)
			assert.Equal(t, want, got)
		}
	}
}

func TestBroadcastLagSkipsWithoutCrashing(t *testing.T) {
	b := NewBroadcast[int](4)
	slow := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Send(i)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, lag, err := slow.Recv(ctx)
	require.NoError(t, err)
	assert.Greater(t, lag, 0)
	assert.GreaterOrEqual(t, got, 6)
}

func TestBroadcastCloseDrainsThenErrors(t *testing.T) {
	b := NewBroadcast[int](4)
	r := b.Subscribe()
	b.Send(1)
	b.Close()

	got, _, err := r.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	_, _, err = r.Recv(context.Background())
	assert.ErrorIs(t, err, ErrBroadcastClosed)
}

func TestBroadcastRecvCancelledByContext(t *testing.T) {
	b := NewBroadcast[int](4)
	r := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := r.Recv(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
