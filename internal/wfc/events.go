package wfc

import (
	"sync"
	"time"
)

// ResolvedCell is emitted once for every cell that collapses.
type ResolvedCell struct {
	X, Y     int
	Index    int // index into the oriented tile set
	Artwork  ArtworkRef
	Rotation int
	// PosX and PosY are the placement coordinates (x*cellSize, y*cellSize).
	PosX, PosY float64
	// Forced is true when propagation left a single candidate, as opposed
	// to a random choice by the collapse step.
	Forced bool
}

// Completion is emitted when every cell has collapsed.
type Completion struct {
	Elapsed   time.Duration
	Collapsed int
}

// Failure is emitted when a cell runs out of candidates.
type Failure struct {
	X, Y      int
	Err       error
	Elapsed   time.Duration
	Collapsed int
}

// Observer receives solver notifications. Calls happen on the goroutine
// running the solver; implementations that hand events to another context
// must do their own marshaling.
type Observer interface {
	CellResolved(ResolvedCell)
	RunCompleted(Completion)
	RunFailed(Failure)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnResolved  func(ResolvedCell)
	OnCompleted func(Completion)
	OnFailed    func(Failure)
}

func (o ObserverFuncs) CellResolved(c ResolvedCell) {
	if o.OnResolved != nil {
		o.OnResolved(c)
	}
}

func (o ObserverFuncs) RunCompleted(c Completion) {
	if o.OnCompleted != nil {
		o.OnCompleted(c)
	}
}

func (o ObserverFuncs) RunFailed(f Failure) {
	if o.OnFailed != nil {
		o.OnFailed(f)
	}
}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) CellResolved(c ResolvedCell) {
	for _, o := range m {
		o.CellResolved(c)
	}
}

func (m MultiObserver) RunCompleted(c Completion) {
	for _, o := range m {
		o.RunCompleted(c)
	}
}

func (m MultiObserver) RunFailed(f Failure) {
	for _, o := range m {
		o.RunFailed(f)
	}
}

// Recorder keeps every notification it receives. Safe for concurrent reads.
type Recorder struct {
	mu         sync.Mutex
	resolved   []ResolvedCell
	completion *Completion
	failure    *Failure
}

func (r *Recorder) CellResolved(c ResolvedCell) {
	r.mu.Lock()
	r.resolved = append(r.resolved, c)
	r.mu.Unlock()
}

func (r *Recorder) RunCompleted(c Completion) {
	r.mu.Lock()
	r.completion = &c
	r.mu.Unlock()
}

func (r *Recorder) RunFailed(f Failure) {
	r.mu.Lock()
	r.failure = &f
	r.mu.Unlock()
}

// Resolved returns a copy of the resolution events in emission order.
func (r *Recorder) Resolved() []ResolvedCell {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ResolvedCell, len(r.resolved))
	copy(out, r.resolved)
	return out
}

// Completion returns the completion event, if any.
func (r *Recorder) Completion() (Completion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.completion == nil {
		return Completion{}, false
	}
	return *r.completion, true
}

// Failure returns the failure event, if any.
func (r *Recorder) Failure() (Failure, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure == nil {
		return Failure{}, false
	}
	return *r.failure, true
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.resolved = nil
	r.completion = nil
	r.failure = nil
	r.mu.Unlock()
}

type nopObserver struct{}

func (nopObserver) CellResolved(ResolvedCell) {}
func (nopObserver) RunCompleted(Completion)   {}
func (nopObserver) RunFailed(Failure)         {}
