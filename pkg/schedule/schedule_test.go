package schedule

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frame = image.NewRGBA(image.Rect(0, 0, 1, 1))

// occupy fills every worker slot with a request that blocks until release is closed.
func occupy(t *testing.T, s *Scheduler, workers int) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	var started sync.WaitGroup
	started.Add(workers)
	for i := 0; i < workers; i++ {
		s.Submit(Request{Asset: "busy" + string(rune('a'+i)), Priority: Urgent, Run: func(ctx context.Context) (*image.RGBA, error) {
			started.Done()
			<-gate
			return frame, nil
		}})
	}
	started.Wait()
	return func() { close(gate) }
}

func record(mu *sync.Mutex, order *[]string, name string) func(context.Context) (*image.RGBA, error) {
	return func(context.Context) (*image.RGBA, error) {
		mu.Lock()
		*order = append(*order, name)
		mu.Unlock()
		return frame, nil
	}
}

func TestHighestPriorityFirst(t *testing.T) {
	s := New(1)
	defer s.Close()
	release := occupy(t, s, 1)

	var mu sync.Mutex
	var order []string
	low := s.Submit(Request{Asset: "a", Priority: Low, Run: record(&mu, &order, "low")})
	normal := s.Submit(Request{Asset: "b", Priority: Normal, Run: record(&mu, &order, "normal")})
	urgent := s.Submit(Request{Asset: "c", Priority: Urgent, Run: record(&mu, &order, "urgent")})
	high := s.Submit(Request{Asset: "d", Priority: High, Run: record(&mu, &order, "high")})
	normal2 := s.Submit(Request{Asset: "e", Priority: Normal, Run: record(&mu, &order, "normal2")})
	assert.Equal(t, 5, s.Pending())
	release()

	ctx := context.Background()
	for _, tk := range []*Ticket{low, normal, urgent, high, normal2} {
		img, err := tk.Wait(ctx)
		require.NoError(t, err)
		assert.Same(t, frame, img)
	}
	assert.Equal(t, []string{"urgent", "high", "normal", "normal2", "low"}, order)
}

func TestSupersedeSameAsset(t *testing.T) {
	s := New(1)
	defer s.Close()
	release := occupy(t, s, 1)
	ctx := context.Background()

	var runs atomic.Int32
	run := func(context.Context) (*image.RGBA, error) {
		runs.Add(1)
		return frame, nil
	}

	first := s.Submit(Request{Asset: "x", Priority: Low, Run: run})
	second := s.Submit(Request{Asset: "x", Priority: Normal, Run: run})
	_, err := first.Wait(ctx)
	assert.ErrorIs(t, err, ErrSuperseded)

	same := s.Submit(Request{Asset: "x", Priority: Normal, Run: run})
	_, err = second.Wait(ctx)
	assert.ErrorIs(t, err, ErrSuperseded, "equal priority supersedes")

	// a lower priority request never replaces a higher one
	lower := s.Submit(Request{Asset: "x", Priority: Low, Run: run})
	other := s.Submit(Request{Asset: "y", Priority: Low, Run: run})
	assert.Equal(t, 3, s.Pending())

	release()
	for _, tk := range []*Ticket{same, lower, other} {
		_, err := tk.Wait(ctx)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 3, runs.Load())
}

func TestCancelPending(t *testing.T) {
	s := New(1)
	defer s.Close()
	release := occupy(t, s, 1)

	ran := false
	tk := s.Submit(Request{Asset: "x", Run: func(context.Context) (*image.RGBA, error) {
		ran = true
		return frame, nil
	}})
	tk.Cancel()
	assert.Equal(t, 0, s.Pending())
	release()

	_, err := tk.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)

	// flush the worker so the assertion below is ordered after any run
	_, err = s.Submit(Request{Asset: "flush", Run: func(context.Context) (*image.RGBA, error) { return frame, nil }}).Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestCancelRunning(t *testing.T) {
	s := New(1)
	defer s.Close()

	started := make(chan struct{})
	tk := s.Submit(Request{Asset: "x", Run: func(ctx context.Context) (*image.RGBA, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	<-started
	tk.Cancel()

	_, err := tk.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestErrorsPassThrough(t *testing.T) {
	s := New(1)
	defer s.Close()
	boom := errors.New("boom")

	_, err := s.Submit(Request{Asset: "x", Run: func(context.Context) (*image.RGBA, error) { return frame, boom }}).Wait(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = s.Submit(Request{Asset: "y", Run: func(context.Context) (*image.RGBA, error) { panic("bad") }}).Wait(context.Background())
	assert.ErrorContains(t, err, "panic")

	_, err = s.Submit(Request{Asset: "z"}).Wait(context.Background())
	assert.Error(t, err)
}

func TestBoundedConcurrency(t *testing.T) {
	s := New(2)
	defer s.Close()

	var running, peak atomic.Int32
	var tickets []*Ticket
	for i := 0; i < 8; i++ {
		tickets = append(tickets, s.Submit(Request{Asset: string(rune('a' + i)), Run: func(context.Context) (*image.RGBA, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return frame, nil
		}}))
	}
	for _, tk := range tickets {
		_, err := tk.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestWaitTimeout(t *testing.T) {
	s := New(1)
	defer s.Close()
	release := occupy(t, s, 1)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.Submit(Request{Asset: "x", Run: func(context.Context) (*image.RGBA, error) { return frame, nil }}).Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	s := New(1)
	started := make(chan struct{})
	running := s.Submit(Request{Asset: "run", Run: func(ctx context.Context) (*image.RGBA, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	<-started
	pending := s.Submit(Request{Asset: "wait", Run: func(context.Context) (*image.RGBA, error) { return frame, nil }})

	s.Close()
	ctx := context.Background()
	_, err := pending.Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = running.Wait(ctx)
	assert.ErrorIs(t, err, ErrCanceled)

	_, err = s.Submit(Request{Asset: "late", Run: func(context.Context) (*image.RGBA, error) { return frame, nil }}).Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	s.Close()
}

func TestPriorityString(t *testing.T) {
	assert.Equal(t, "urgent", Urgent.String())
	assert.Equal(t, "priority(9)", Priority(9).String())
}
