package workerpool_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/clustercheck/internal/util/workerpool"
)

func TestWorkerPool_ExecutesTasks(t *testing.T) {
	pool := workerpool.NewWorkerPool(&workerpool.Config{Name: "test", MaxWorkers: 4, QueueSize: 16})

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := pool.Submit(workerpool.Task{ID: "task", Fn: func() error {
			defer wg.Done()
			atomic.AddInt64(&counter, 1)
			return nil
		}})
		require.NoError(t, err)
	}
	wg.Wait()
	require.NoError(t, pool.Stop(2*time.Second))

	assert.Equal(t, int64(20), atomic.LoadInt64(&counter))
	assert.Equal(t, uint64(20), pool.CompletedTasks())
	assert.Zero(t, pool.FailedTasks())
}

func TestWorkerPool_CountsFailuresAndPanics(t *testing.T) {
	pool := workerpool.NewWorkerPool(&workerpool.Config{Name: "test", MaxWorkers: 2, QueueSize: 4})

	var wg sync.WaitGroup
	wg.Add(2)
	require.NoError(t, pool.Submit(workerpool.Task{ID: "fails", Fn: func() error {
		defer wg.Done()
		return errors.New("boom")
	}}))
	require.NoError(t, pool.Submit(workerpool.Task{ID: "panics", Fn: func() error {
		defer wg.Done()
		panic("boom")
	}}))
	wg.Wait()
	require.NoError(t, pool.Stop(2*time.Second))

	assert.Equal(t, uint64(2), pool.FailedTasks())
	assert.Zero(t, pool.CompletedTasks())
}

func TestWorkerPool_RejectsSubmitAfterStop(t *testing.T) {
	pool := workerpool.NewWorkerPool(&workerpool.Config{Name: "test", MaxWorkers: 1, QueueSize: 1})
	require.NoError(t, pool.Stop(time.Second))

	err := pool.Submit(workerpool.Task{ID: "late", Fn: func() error { return nil }})
	assert.Error(t, err)
}
