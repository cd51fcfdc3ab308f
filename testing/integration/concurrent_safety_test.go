package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/zoobzio/firez"
)

// TestConcurrentWorkersKeepTheirSubtrees runs many workers against one
// recorder. Every worker's steps must end up under that worker's span and
// nowhere else.
func TestConcurrentWorkersKeepTheirSubtrees(t *testing.T) {
	rec := NewTestRecorder(t)
	const workers, steps = 16, 25

	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			wctx, span := rec.StartSpan(ctx, WorkerName(w))
			defer span.End()
			for s := 0; s < steps; s++ {
				sctx, step := rec.StartSpan(wctx, "step", firez.F("n", s))
				rec.Event(sctx, firez.LevelDebug, fmt.Sprintf("w%d-s%d", w, s))
				step.End()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	tree := BurnOrFail(t, rec)
	assert.Equal(t, workers*(1+2*steps), tree.Len())
	require.Equal(t, workers, tree.Root().NumChildren())

	for i := 0; i < tree.Root().NumChildren(); i++ {
		worker := tree.Root().Child(i)
		require.Equal(t, steps, worker.NumChildren(), worker.Payload().Name)

		var w int
		_, err := fmt.Sscanf(worker.Payload().Name, "worker-%d", &w)
		require.NoError(t, err)

		for s := 0; s < steps; s++ {
			step := worker.Child(s)
			assert.Equal(t, "step", step.Payload().Name)
			n, _ := step.Payload().Fields.Get("n")
			assert.Equal(t, s, n, "steps stay in append order")
			require.Equal(t, 1, step.NumChildren())
			assert.Equal(t, fmt.Sprintf("w%d-s%d", w, s), step.Child(0).Payload().Label())
		}
	}
}

// TestConcurrentEventsUnderSharedSpan checks that goroutines emitting under a
// single parent all land there and none is lost.
func TestConcurrentEventsUnderSharedSpan(t *testing.T) {
	rec := NewTestRecorder(t)
	ctx, parent := rec.StartSpan(context.Background(), "fan-out")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				rec.Event(ctx, firez.LevelInfo, "tick", firez.F("g", i))
			}
		}()
	}
	wg.Wait()
	parent.End()

	tree := BurnOrFail(t, rec)
	fan := FindOne(t, tree, "fan-out")
	assert.Equal(t, 1000, fan.NumChildren())
	assert.Equal(t, uint64(0), rec.Dropped())
}

// TestBurnWhileRecording burns while goroutines are still appending. Every
// append either makes it into the tree or is counted as dropped.
func TestBurnWhileRecording(t *testing.T) {
	rec := firez.NewRecorder()
	start := make(chan struct{})

	var wg sync.WaitGroup
	var attempted sync.WaitGroup
	const goroutines, perGoroutine = 8, 500
	attempted.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perGoroutine; j++ {
				rec.Event(context.Background(), firez.LevelTrace, "e")
				if j == perGoroutine/2 {
					attempted.Done()
				}
			}
		}()
	}

	close(start)
	attempted.Wait()
	tree := BurnOrFail(t, rec)
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, tree.Len()+int(rec.Dropped()))
	assert.Positive(t, tree.Len())
}

// TestSnapshotDuringCapture takes snapshots while spans are open and checks
// that each snapshot is a consistent prefix of the final tree.
func TestSnapshotDuringCapture(t *testing.T) {
	rec := NewTestRecorder(t)
	ctx, span := rec.StartSpan(context.Background(), "job")

	var sizes []int
	for i := 0; i < 5; i++ {
		rec.Event(ctx, firez.LevelInfo, fmt.Sprintf("batch-%d", i))
		snap, err := rec.Snapshot()
		require.NoError(t, err)
		sizes = append(sizes, snap.Len())
		assert.Equal(t, "job("+joinBatches(i)+")", Shape(snap.Root().Child(0)))
	}
	span.End()

	assert.Equal(t, []int{2, 3, 4, 5, 6}, sizes)
	tree := BurnOrFail(t, rec)
	assert.Equal(t, 6, tree.Len())
}

func joinBatches(last int) string {
	s := ""
	for i := 0; i <= last; i++ {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("batch-%d", i)
	}
	return s
}
