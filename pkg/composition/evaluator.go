package composition

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/menta2k/shotcoach/pkg/types"
)

// Frame is one evaluation request from a camera source
type Frame struct {
	Observation types.Observation
	Size        types.Size
	// Sample is an optional frame buffer used for symmetry scoring
	Sample image.Image
}

// Latest is a single-slot cell holding the most recent completed result.
// Writers overwrite; readers either peek or wait for a newer sequence number.
type Latest struct {
	mu      sync.Mutex
	result  Result
	seq     uint64
	changed chan struct{}
}

// NewLatest creates an empty cell
func NewLatest() *Latest {
	return &Latest{changed: make(chan struct{})}
}

// Put overwrites the cell and wakes all waiters
func (l *Latest) Put(r Result) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.result = r
	l.seq++
	close(l.changed)
	l.changed = make(chan struct{})
	return l.seq
}

// Get returns the current result and its sequence number (0 when empty)
func (l *Latest) Get() (Result, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.result, l.seq
}

// Wait blocks until a result newer than after is available or ctx is done
func (l *Latest) Wait(ctx context.Context, after uint64) (Result, uint64, error) {
	for {
		l.mu.Lock()
		if l.seq > after {
			r, seq := l.result, l.seq
			l.mu.Unlock()
			return r, seq, nil
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return Result{}, after, ctx.Err()
		case <-changed:
		}
	}
}

// EvaluatorStats is a snapshot of evaluator counters
type EvaluatorStats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Dropped   uint64 `json:"dropped"`
}

// Evaluator runs one evaluation at a time off the caller's goroutine.
// Frames submitted while an evaluation is running are dropped, and only the
// latest completed result is kept.
type Evaluator struct {
	mu       sync.RWMutex
	strategy Strategy

	busy   atomic.Bool
	wg     sync.WaitGroup
	latest *Latest

	submitted atomic.Uint64
	completed atomic.Uint64
	dropped   atomic.Uint64
}

// NewEvaluator creates an evaluator for a strategy
func NewEvaluator(strategy Strategy) *Evaluator {
	return &Evaluator{strategy: strategy, latest: NewLatest()}
}

// SetStrategy switches the composition rule for subsequent frames
func (e *Evaluator) SetStrategy(strategy Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategy = strategy
}

// Strategy returns the current composition rule
func (e *Evaluator) Strategy() Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategy
}

// Submit starts evaluating a frame unless one is already in flight.
// It never blocks and reports whether the frame was accepted.
func (e *Evaluator) Submit(frame Frame) bool {
	e.submitted.Add(1)
	if !e.busy.CompareAndSwap(false, true) {
		e.dropped.Add(1)
		return false
	}

	strategy := e.Strategy()
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.busy.Store(false)
		result := strategy.Evaluate(frame.Observation, frame.Size, frame.Sample)
		e.latest.Put(result)
		e.completed.Add(1)
	}()
	return true
}

// Latest returns the result cell
func (e *Evaluator) Latest() *Latest {
	return e.latest
}

// Wait blocks until the in-flight evaluation, if any, has completed
func (e *Evaluator) Wait() {
	e.wg.Wait()
}

// Stats returns a snapshot of the evaluator counters
func (e *Evaluator) Stats() EvaluatorStats {
	return EvaluatorStats{
		Submitted: e.submitted.Load(),
		Completed: e.completed.Load(),
		Dropped:   e.dropped.Load(),
	}
}

// Throttle decides which camera frames are worth evaluating: every Nth frame
// once a warm-up count of frames has passed. It is meant for callers feeding
// an Evaluator and is safe for a single producer goroutine.
type Throttle struct {
	Every  uint64
	Warmup uint64
	count  uint64
}

// Allow counts a frame and reports whether it should be evaluated
func (t *Throttle) Allow() bool {
	t.count++
	if t.count <= t.Warmup {
		return false
	}
	every := t.Every
	if every == 0 {
		every = 1
	}
	return (t.count-t.Warmup)%every == 0
}
