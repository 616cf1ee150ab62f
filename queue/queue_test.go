package queue

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueue(t *testing.T) {
	t.Run("NewQueue with invalid worker count", func(t *testing.T) {
		_, err := NewQueue(0, nil)
		assert.Error(t, err, "Expected error for zero workers")
	})
}

func TestQueueSubmit(t *testing.T) {
	t.Run("Submit runs tasks to completion", func(t *testing.T) {
		queue, err := NewQueue(4, nil)
		require.NoError(t, err, "Expected queue creation to succeed")

		var ran atomic.Int64
		for i := 0; i < 10; i++ {
			err := queue.Submit("count", func(_ context.Context) error {
				ran.Add(1)
				return nil
			})
			require.NoError(t, err, "Expected submission to succeed")
		}

		require.NoError(t, queue.Drain(context.Background()), "Expected drain to succeed")
		assert.Equal(t, int64(10), ran.Load(), "Expected all tasks to run")

		submitted, completed, failed := queue.Stats()
		assert.Equal(t, int64(10), submitted, "Expected ten submissions")
		assert.Equal(t, int64(10), completed, "Expected ten completions")
		assert.Equal(t, int64(0), failed, "Expected no failures")
	})

	t.Run("Submit counts failing tasks", func(t *testing.T) {
		queue, err := NewQueue(2, nil)
		require.NoError(t, err, "Expected queue creation to succeed")

		require.NoError(t, queue.Submit("boom", func(_ context.Context) error {
			return fmt.Errorf("task error")
		}), "Expected submission to succeed")
		require.NoError(t, queue.Drain(context.Background()), "Expected drain to succeed")

		_, completed, failed := queue.Stats()
		assert.Equal(t, int64(0), completed, "Expected no completions")
		assert.Equal(t, int64(1), failed, "Expected the failure counted")
	})

	t.Run("Submit bounds concurrency", func(t *testing.T) {
		queue, err := NewQueue(2, nil)
		require.NoError(t, err, "Expected queue creation to succeed")

		var active, peak atomic.Int64
		for i := 0; i < 8; i++ {
			require.NoError(t, queue.Submit("bounded", func(_ context.Context) error {
				current := active.Add(1)
				for {
					observed := peak.Load()
					if current <= observed || peak.CompareAndSwap(observed, current) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				active.Add(-1)
				return nil
			}), "Expected submission to succeed")
		}

		require.NoError(t, queue.Drain(context.Background()), "Expected drain to succeed")
		assert.LessOrEqual(t, peak.Load(), int64(2), "Expected at most two tasks running at once")
	})

	t.Run("Submit after close", func(t *testing.T) {
		queue, err := NewQueue(1, nil)
		require.NoError(t, err, "Expected queue creation to succeed")
		require.NoError(t, queue.Close(context.Background()), "Expected close to succeed")

		err = queue.Submit("late", func(_ context.Context) error { return nil })
		assert.Error(t, err, "Expected submission after close to fail")
	})
}

func TestQueueDrain(t *testing.T) {
	t.Run("Drain times out on a stuck task", func(t *testing.T) {
		queue, err := NewQueue(1, nil)
		require.NoError(t, err, "Expected queue creation to succeed")

		release := make(chan struct{})
		require.NoError(t, queue.Submit("stuck", func(_ context.Context) error {
			<-release
			return nil
		}), "Expected submission to succeed")

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Error(t, queue.Drain(ctx), "Expected drain to time out")

		close(release)
		require.NoError(t, queue.Drain(context.Background()), "Expected drain to succeed once released")
	})
}
