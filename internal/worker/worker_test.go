package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPoolRunsAndDrains(t *testing.T) {
	p := NewPool("test", 2, 10, zap.NewNop())
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		assert.True(t, p.Submit(func(ctx context.Context) { ran.Add(1) }))
	}

	assert.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
	assert.False(t, p.Submit(func(ctx context.Context) {}))
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := NewPool("test", 1, 1, zap.NewNop())
	p.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	assert.True(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	assert.True(t, p.Submit(func(ctx context.Context) {}))
	assert.False(t, p.Submit(func(ctx context.Context) {}), "queue of one is already full")

	close(release)
	assert.NoError(t, p.Stop(context.Background()))
}

func TestPoolSurvivesPanics(t *testing.T) {
	p := NewPool("test", 1, 4, zap.NewNop())
	p.Start()

	var ran atomic.Int32
	p.Submit(func(ctx context.Context) { panic("boom") })
	p.Submit(func(ctx context.Context) { ran.Add(1) })

	assert.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int32(1), ran.Load())
}

func TestPoolStopCancelsOnDeadline(t *testing.T) {
	p := NewPool("test", 1, 1, zap.NewNop())
	p.Start()

	cancelled := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
	<-cancelled
}
