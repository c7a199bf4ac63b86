package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type reindexStub struct {
	calls   atomic.Int32
	updated int
	err     error
	block   chan struct{}
}

func (r *reindexStub) Reindex(ctx context.Context) (int, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	return r.updated, r.err
}

func TestRunOnceReportsUpdates(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	stub := &reindexStub{updated: 4}
	s := New(stub, "@every 6h", zap.New(core))

	updated, ok := s.RunOnce(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 4, updated)
	assert.Equal(t, 1, logs.FilterMessage("alumni reindex complete").Len())
}

func TestRunOnceLogsFailure(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := New(&reindexStub{err: errors.New("db down")}, "@every 6h", zap.New(core))

	_, ok := s.RunOnce(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 1, logs.FilterMessage("alumni reindex failed").Len())
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	stub := &reindexStub{block: make(chan struct{})}
	s := New(stub, "@every 6h", nil)

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, ok := s.RunOnce(context.Background())
	assert.False(t, ok)

	close(stub.block)
	<-done
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestStartValidatesSpec(t *testing.T) {
	s := New(&reindexStub{}, "every now and then", nil)
	assert.Error(t, s.Start(context.Background()))

	disabled := New(&reindexStub{}, "", nil)
	require.NoError(t, disabled.Start(context.Background()))
	disabled.Stop()

	scheduled := New(&reindexStub{}, "@every 1h", nil)
	require.NoError(t, scheduled.Start(context.Background()))
	scheduled.Stop()
}
