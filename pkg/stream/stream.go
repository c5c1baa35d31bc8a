// Package stream turns straight-line producer code into a lazy, pull-driven sequence.
//
// A Body is written as an ordinary loop that blocks on I/O and calls yield for
// every item it wants to hand out. Stream runs the body on its own goroutine but
// only lets it advance one step per pull: after each yield the body is parked
// until the consumer asks for the next element.
package stream

import (
	"context"
	"iter"
	"sync"

	"code.hybscloud.com/iox"
)

// Body produces items by calling yield and finishes by returning.
//
// yield reports whether the consumer received item. It returns false, without
// handing the item out, once the stream has been closed or its context ended;
// the body should return promptly after that. The returned error becomes the terminal
// error of the stream.
type Body[T any] func(ctx context.Context, yield func(T) bool) error

type step[T any] struct {
	item T
	err  error
	done bool
}

// Stream is a lazily started sequence backed by a Body.
//
// Pulls are serialized; at most one resume of the body is in flight.
type Stream[T any] struct {
	body   Body[T]
	ctx    context.Context
	cancel context.CancelFunc

	resume chan struct{}
	steps  chan step[T]
	closed chan struct{}
	exited chan struct{}

	mu       sync.Mutex
	started  bool
	waiting  bool
	finished bool

	closeOnce sync.Once
}

// New wraps body. Nothing runs until the first pull.
func New[T any](ctx context.Context, body Body[T]) *Stream[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	return &Stream[T]{
		body:   body,
		ctx:    ctx,
		cancel: cancel,
		resume: make(chan struct{}, 1),
		steps:  make(chan step[T]),
		closed: make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Next blocks until the body yields an item or finishes.
//
// It returns (item, true, nil) for an item. When the body finished with an error
// that error is returned exactly once; every later call returns (zero, false, nil).
// If ctx ends first, Next returns ctx.Err() and the stream stays usable: the
// pending step is delivered by a later pull.
func (s *Stream[T]) Next(ctx context.Context) (T, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.finished {
		return zero, false, nil
	}
	if !s.resumeLocked() {
		s.finishLocked()
		return zero, false, nil
	}

	select {
	case st := <-s.steps:
		return s.acceptLocked(st)
	case <-s.closed:
		s.finishLocked()
		return zero, false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// TryNext is the non-blocking form of Next.
//
// While the body is still working towards its next step TryNext returns
// iox.ErrWouldBlock without issuing another resume.
func (s *Stream[T]) TryNext() (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.finished {
		return zero, false, nil
	}
	if !s.resumeLocked() {
		s.finishLocked()
		return zero, false, nil
	}

	select {
	case st := <-s.steps:
		return s.acceptLocked(st)
	case <-s.closed:
		s.finishLocked()
		return zero, false, nil
	default:
		return zero, false, iox.ErrWouldBlock
	}
}

// All adapts the stream to a range-over-func sequence.
//
// A terminal error (or ctx error) is yielded as the last pair.
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			item, ok, err := s.Next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok {
				return
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Close cancels the body context and waits for the body to return.
func (s *Stream[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})

	s.mu.Lock()
	started := s.started
	s.finished = true
	s.mu.Unlock()

	if started {
		<-s.exited
	}

	return nil
}

func (s *Stream[T]) resumeLocked() bool {
	if s.waiting {
		return true
	}

	select {
	case <-s.closed:
		return false
	default:
	}

	if !s.started {
		s.started = true
		go s.run()
	} else {
		s.resume <- struct{}{}
	}

	s.waiting = true
	return true
}

func (s *Stream[T]) acceptLocked(st step[T]) (T, bool, error) {
	s.waiting = false
	if st.done {
		s.finishLocked()
		var zero T
		return zero, false, st.err
	}

	return st.item, true, nil
}

func (s *Stream[T]) finishLocked() {
	s.finished = true
	s.waiting = false
	s.cancel()
}

func (s *Stream[T]) run() {
	defer close(s.exited)

	err := s.body(s.ctx, s.yield)

	select {
	case s.steps <- step[T]{err: err, done: true}:
	case <-s.closed:
	}
}

func (s *Stream[T]) yield(item T) bool {
	select {
	case s.steps <- step[T]{item: item}:
	case <-s.closed:
		return false
	case <-s.ctx.Done():
		return false
	}

	// The item reached the consumer. Park until the next pull; a close while
	// parked is seen by the body through ctx and the next yield.
	select {
	case <-s.resume:
	case <-s.closed:
	case <-s.ctx.Done():
	}
	return true
}
