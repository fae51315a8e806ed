// Package schedule runs render requests from many callers on a small, fixed
// number of workers, highest priority first.
package schedule

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/semaphore"
	"k8s.io/klog/v2"
)

// DefaultWorkers is how many requests run at once unless configured otherwise.
const DefaultWorkers = 2

var (
	// ErrSuperseded is returned for a pending request replaced by a newer one for the same asset.
	ErrSuperseded = errors.New("superseded by a newer request")
	// ErrCanceled is returned for a request canceled before it finished.
	ErrCanceled = fmt.Errorf("request canceled: %w", context.Canceled)
	// ErrClosed is returned for requests still pending when the scheduler shuts down.
	ErrClosed = errors.New("scheduler closed")
)

// Priority orders pending requests.
type Priority int

const (
	Low    Priority = iota // background prefetch
	Normal                 // adjacent photo
	High                   // visible thumbnail
	Urgent                 // current selection
)

func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Urgent:
		return "urgent"
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Request is one unit of render work.
type Request struct {
	// Asset identifies what is rendered; requests for the same asset supersede each other.
	Asset    string
	Priority Priority
	Run      func(ctx context.Context) (*image.RGBA, error)
}

// Ticket tracks a submitted request.
type Ticket struct {
	req   Request
	seq   uint64
	index int // position in the queue, -1 once dequeued

	s      *Scheduler
	runCtx context.Context
	cancel context.CancelFunc // set once running

	once sync.Once
	done chan struct{}
	img  *image.RGBA
	err  error
}

func (t *Ticket) finish(img *image.RGBA, err error) {
	t.once.Do(func() {
		t.img, t.err = img, err
		close(t.done)
	})
}

// Done is closed once the request has a result.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the request finishes or ctx is done. Giving up on the
// wait does not cancel the request.
func (t *Ticket) Wait(ctx context.Context) (*image.RGBA, error) {
	select {
	case <-t.done:
		return t.img, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel drops a pending request or cancels the context of a running one.
func (t *Ticket) Cancel() {
	s := t.s
	s.mu.Lock()
	if t.index >= 0 {
		s.dequeue(t)
		s.mu.Unlock()
		t.finish(nil, ErrCanceled)
		return
	}
	cancel := t.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// queue is a max-heap on priority, then submission order.
type queue []*Ticket

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].req.Priority != q[j].req.Priority {
		return q[i].req.Priority > q[j].req.Priority
	}
	return q[i].seq < q[j].seq
}
func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *queue) Push(x any) {
	t := x.(*Ticket)
	t.index = len(*q)
	*q = append(*q, t)
}
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Scheduler dispatches requests to a bounded set of workers.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   queue
	pending map[string][]*Ticket
	seq     uint64
	closed  bool

	slots  *semaphore.Weighted
	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	exited chan struct{}
}

// New starts a scheduler running at most workers requests at once.
func New(workers int) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Scheduler{
		pending: map[string][]*Ticket{},
		slots:   semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		stop:    stop,
		exited:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.dispatch()
	return s
}

// Submit queues r. Any pending request for the same asset at the same or a
// lower priority is dropped with ErrSuperseded.
func (s *Scheduler) Submit(r Request) *Ticket {
	t := &Ticket{req: r, s: s, index: -1, done: make(chan struct{})}
	if r.Run == nil {
		t.finish(nil, errors.New("request has no work"))
		return t
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		t.finish(nil, ErrClosed)
		return t
	}
	var superseded []*Ticket
	for _, old := range s.pending[r.Asset] {
		if old.req.Priority <= r.Priority {
			superseded = append(superseded, old)
		}
	}
	for _, old := range superseded {
		s.dequeue(old)
	}
	s.seq++
	t.seq = s.seq
	heap.Push(&s.queue, t)
	s.pending[r.Asset] = append(s.pending[r.Asset], t)
	s.cond.Signal()
	s.mu.Unlock()

	for _, old := range superseded {
		klog.V(1).Infof("%s request for %s superseded by %s", old.req.Priority, r.Asset, r.Priority)
		old.finish(nil, ErrSuperseded)
	}
	return t
}

// Pending returns how many requests are waiting for a worker.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// dequeue removes a pending ticket. Callers hold s.mu.
func (s *Scheduler) dequeue(t *Ticket) {
	if t.index >= 0 {
		heap.Remove(&s.queue, t.index)
	}
	ts := s.pending[t.req.Asset]
	for i, p := range ts {
		if p == t {
			ts = append(ts[:i], ts[i+1:]...)
			break
		}
	}
	if len(ts) == 0 {
		delete(s.pending, t.req.Asset)
	} else {
		s.pending[t.req.Asset] = ts
	}
}

// next blocks until a request is pending and marks it running. It returns
// nil once the scheduler is closed.
func (s *Scheduler) next() *Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.queue.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return nil
	}
	t := heap.Pop(&s.queue).(*Ticket)
	s.dequeue(t)
	t.runCtx, t.cancel = context.WithCancel(s.ctx)
	return t
}

func (s *Scheduler) dispatch() {
	defer close(s.exited)
	for {
		// take a slot first so the highest priority request is chosen when one frees up
		if err := s.slots.Acquire(s.ctx, 1); err != nil {
			return
		}
		t := s.next()
		if t == nil {
			s.slots.Release(1)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.slots.Release(1)
			s.run(t)
		}()
	}
}

func (s *Scheduler) run(t *Ticket) {
	defer t.cancel()
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("render of %s panicked: %v", t.req.Asset, r)
			t.finish(nil, fmt.Errorf("render %s: panic: %v", t.req.Asset, r))
		}
	}()
	img, err := t.req.Run(t.runCtx)
	if t.runCtx.Err() != nil {
		img, err = nil, ErrCanceled
	}
	if err != nil {
		img = nil
	}
	t.finish(img, err)
}

// Close fails every pending request with ErrClosed, cancels running ones and
// waits for the workers to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var dropped []*Ticket
	for s.queue.Len() > 0 {
		t := heap.Pop(&s.queue).(*Ticket)
		dropped = append(dropped, t)
	}
	s.pending = map[string][]*Ticket{}
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, t := range dropped {
		t.finish(nil, ErrClosed)
	}
	s.stop()
	<-s.exited
	s.wg.Wait()
}
