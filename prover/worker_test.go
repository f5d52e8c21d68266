package prover

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/provideplatform/fold/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRun(t *testing.T) {
	w := NewWorker(2, nil)

	val, err := w.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, val)

	failure := errors.New("boom")
	_, err = w.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, failure
	})
	assert.Equal(t, failure, err)
}

func TestWorkerRecoversPanickingJob(t *testing.T) {
	w := NewWorker(1, nil)

	_, err := w.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		panic("step exploded")
	})
	assert.True(t, errors.Is(err, common.ErrEngine))

	val, err := w.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestWorkerBoundsConcurrency(t *testing.T) {
	w := NewWorker(2, nil)

	var running, peak int32
	results := make([]<-chan *Result, 6)
	for i := range results {
		ch, err := w.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil, nil
		})
		require.NoError(t, err)
		results[i] = ch
	}

	for _, ch := range results {
		res := <-ch
		require.NoError(t, res.Err)
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestWorkerContextGatesAdmissionOnly(t *testing.T) {
	w := NewWorker(1, nil)

	release := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	started, err := w.Submit(ctx, func(ctx context.Context) (interface{}, error) {
		<-release
		return ctx.Err(), nil
	})
	require.NoError(t, err)

	cancel()
	_, err = w.Submit(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	assert.Error(t, err)

	close(release)
	res := <-started
	require.NoError(t, res.Err)
	assert.Nil(t, res.Value)
}
