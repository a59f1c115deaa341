// Package host drives a wfc.Solver on a worker goroutine and fans its
// notifications out to subscribers and run history.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/logger"
	"github.com/lawnchairsociety/tilecollapse/internal/wfc"
)

// ErrBusy is returned by Start while a run is in progress.
var ErrBusy = errors.New("host: a run is already in progress")

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("host: closed")

// Options configures a Host.
type Options struct {
	Width    int
	Height   int
	CellSize float64
	// Seed for the first run. 0 draws a fresh seed.
	Seed uint64

	// Palette and Fingerprint identify the tile set in run records.
	Palette     string
	Fingerprint string

	// Store receives a record of every finished run. Optional.
	Store RunStore

	// Observer is notified synchronously on the worker goroutine, before
	// subscribers. Optional.
	Observer wfc.Observer
}

// Status is a point-in-time view of the host.
type Status struct {
	State     string  `json:"state"`
	Seed      uint64  `json:"seed"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Collapsed int     `json:"collapsed"`
	Total     int     `json:"total"`
	ElapsedMS int64   `json:"elapsed_ms"`
	Failure   *string `json:"failure,omitempty"`
	LastRunID int64   `json:"last_run_id,omitempty"`
}

// Host owns one solver. Start, Cancel and Reset may be called from any
// goroutine.
type Host struct {
	opts   Options
	solver *wfc.Solver

	// ctl serialises Start, Reset and Close.
	ctl sync.Mutex
	wg  sync.WaitGroup

	mu          sync.Mutex
	state       wfc.State
	seed        uint64
	collapsed   int
	started     time.Time
	elapsed     time.Duration
	failure     *wfc.ContradictionError
	resolutions []Resolution
	lastResult  wfc.Result
	lastErr     error
	lastRunID   int64
	cancel      context.CancelFunc
	closed      bool

	subs    map[int]chan Event
	nextSub int
}

// New builds a host over the oriented tile set and initialises its grid.
func New(set *wfc.OrientedTileSet, opts Options) (*Host, error) {
	h := &Host{
		opts: opts,
		subs: make(map[int]chan Event),
	}

	var observer wfc.Observer = hostObserver{h}
	if opts.Observer != nil {
		observer = wfc.MultiObserver{opts.Observer, observer}
	}

	solver, err := wfc.NewSolver(set, wfc.Options{Seed: opts.Seed, Observer: observer})
	if err != nil {
		return nil, err
	}
	if err := solver.Initialize(opts.Width, opts.Height, opts.CellSize); err != nil {
		return nil, err
	}
	h.solver = solver
	h.seed = solver.Seed()
	h.state = wfc.Idle
	return h, nil
}

// Start launches a run on the worker goroutine. The run stops when ctx is
// cancelled, Cancel is called, or the grid completes or fails.
func (h *Host) Start(ctx context.Context) error {
	h.ctl.Lock()
	defer h.ctl.Unlock()

	h.mu.Lock()
	switch {
	case h.closed:
		h.mu.Unlock()
		return ErrClosed
	case h.state == wfc.Running:
		h.mu.Unlock()
		return ErrBusy
	case h.state.Terminal():
		h.mu.Unlock()
		return fmt.Errorf("host: reset before starting again: %w", wfc.ErrFinished)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.state = wfc.Running
	h.started = time.Now()
	seed := h.seed
	h.broadcastLocked(Event{Type: EventStarted, Seed: seed})
	h.mu.Unlock()

	log := logger.With("seed", seed, "width", h.opts.Width, "height", h.opts.Height)
	log.Info("Run started")

	h.wg.Add(1)
	go h.work(runCtx, cancel, log)
	return nil
}

func (h *Host) work(ctx context.Context, cancel context.CancelFunc, log *slog.Logger) {
	defer h.wg.Done()
	defer cancel()

	res, err := h.solver.Run(ctx)

	h.mu.Lock()
	h.state = res.State
	h.elapsed = res.Elapsed
	h.collapsed = res.Collapsed
	h.failure = res.Failure
	h.lastResult = res
	h.lastErr = err
	h.cancel = nil
	if res.State == wfc.Cancelled {
		h.broadcastLocked(Event{
			Type:      EventCancelled,
			Collapsed: res.Collapsed,
			ElapsedMS: res.Elapsed.Milliseconds(),
		})
	}
	rec := h.recordLocked(res)
	h.mu.Unlock()

	switch res.State {
	case wfc.Completed:
		logger.Always("Run completed", "seed", res.Seed, "collapsed", res.Collapsed, "elapsed", res.Elapsed)
	case wfc.Failed:
		log.Warn("Run failed", "x", res.Failure.X, "y", res.Failure.Y, "collapsed", res.Collapsed, "error", err)
	case wfc.Cancelled:
		log.Info("Run cancelled", "collapsed", res.Collapsed)
	default:
		log.Error("Run ended unexpectedly", "state", res.State.String(), "error", err)
	}

	if h.opts.Store == nil || !res.State.Terminal() {
		return
	}
	id, err := h.opts.Store.SaveRun(rec)
	if err != nil {
		log.Error("Failed to save run", "error", err)
		return
	}
	h.mu.Lock()
	h.lastRunID = id
	h.mu.Unlock()
	log.Debug("Run saved", "run_id", id)
}

func (h *Host) recordLocked(res wfc.Result) *RunRecord {
	rec := &RunRecord{
		Seed:        res.Seed,
		Width:       h.opts.Width,
		Height:      h.opts.Height,
		CellSize:    h.opts.CellSize,
		Palette:     h.opts.Palette,
		Fingerprint: h.opts.Fingerprint,
		State:       res.State.String(),
		Collapsed:   res.Collapsed,
		Elapsed:     res.Elapsed,
		Resolutions: append([]Resolution(nil), h.resolutions...),
		CreatedAt:   time.Now().UTC(),
	}
	if res.Failure != nil {
		rec.Failure = &FailureInfo{X: res.Failure.X, Y: res.Failure.Y, Reason: res.Failure.Error()}
	}
	return rec
}

// Cancel stops the current run, if any. It does not wait for the worker.
func (h *Host) Cancel() {
	h.mu.Lock()
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset cancels any run, waits for the worker to exit, then rebuilds the
// grid with the given seed (0 draws a fresh one) and zeroes the counters.
func (h *Host) Reset(seed uint64) error {
	h.ctl.Lock()
	defer h.ctl.Unlock()

	h.Cancel()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	if err := h.solver.SetSeed(seed); err != nil {
		return err
	}
	if err := h.solver.Initialize(h.opts.Width, h.opts.Height, h.opts.CellSize); err != nil {
		return err
	}
	h.solver.ResetCollapsedCount()

	h.seed = h.solver.Seed()
	h.state = wfc.Idle
	h.collapsed = 0
	h.elapsed = 0
	h.failure = nil
	h.resolutions = nil
	h.lastResult = wfc.Result{}
	h.lastErr = nil
	h.broadcastLocked(Event{Type: EventReset, Seed: h.seed})

	logger.Info("Grid reset", "seed", h.seed, "width", h.opts.Width, "height", h.opts.Height)
	return nil
}

// Wait blocks until the worker exits and returns the last run's result.
func (h *Host) Wait() (wfc.Result, error) {
	h.wg.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastResult, h.lastErr
}

// Close cancels any run, waits for it and closes every subscriber channel.
func (h *Host) Close() {
	h.ctl.Lock()
	defer h.ctl.Unlock()

	h.Cancel()
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}

// Status returns the host's current state.
func (h *Host) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statusLocked()
}

func (h *Host) statusLocked() Status {
	elapsed := h.elapsed
	if h.state == wfc.Running {
		elapsed = time.Since(h.started)
	}
	st := Status{
		State:     h.state.String(),
		Seed:      h.seed,
		Width:     h.opts.Width,
		Height:    h.opts.Height,
		Collapsed: h.collapsed,
		Total:     h.opts.Width * h.opts.Height,
		ElapsedMS: elapsed.Milliseconds(),
		LastRunID: h.lastRunID,
	}
	if h.failure != nil {
		msg := h.failure.Error()
		st.Failure = &msg
	}
	return st
}

// Resolutions returns the cells resolved so far in the current run.
func (h *Host) Resolutions() []Resolution {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Resolution(nil), h.resolutions...)
}

// Subscribe registers a subscriber with the given channel buffer. Events
// that do not fit are dropped for that subscriber only. Call cancel to
// unsubscribe; the channel is then closed.
func (h *Host) Subscribe(buffer int) (<-chan Event, func()) {
	_, _, ch, cancel := h.Attach(buffer)
	return ch, cancel
}

// Attach is Subscribe that also returns the current status and the
// resolutions already made in the current run, all taken atomically with the
// registration so none are missed or repeated and Status.Collapsed matches
// the history length.
func (h *Host) Attach(buffer int) (Status, []Resolution, <-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return h.statusLocked(), nil, ch, func() {}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	history := append([]Resolution(nil), h.resolutions...)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
	return h.statusLocked(), history, ch, cancel
}

func (h *Host) broadcastLocked(ev Event) {
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			logger.Warning("Subscriber buffer full, dropping event", "subscriber", id, "type", string(ev.Type))
		}
	}
}

// hostObserver receives solver notifications on the worker goroutine.
type hostObserver struct {
	h *Host
}

func (o hostObserver) CellResolved(c wfc.ResolvedCell) {
	h := o.h
	h.mu.Lock()
	defer h.mu.Unlock()
	h.collapsed++
	h.resolutions = append(h.resolutions, Resolution{
		X:        c.X,
		Y:        c.Y,
		Artwork:  string(c.Artwork),
		Rotation: c.Rotation,
		Forced:   c.Forced,
	})
	ev := resolvedEvent(c)
	ev.Collapsed = h.collapsed
	h.broadcastLocked(ev)
}

func (o hostObserver) RunCompleted(c wfc.Completion) {
	h := o.h
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(Event{
		Type:      EventCompleted,
		Collapsed: c.Collapsed,
		ElapsedMS: c.Elapsed.Milliseconds(),
	})
}

func (o hostObserver) RunFailed(f wfc.Failure) {
	h := o.h
	h.mu.Lock()
	defer h.mu.Unlock()
	ev := Event{
		Type:      EventFailed,
		X:         f.X,
		Y:         f.Y,
		Collapsed: f.Collapsed,
		ElapsedMS: f.Elapsed.Milliseconds(),
	}
	if f.Err != nil {
		ev.Error = f.Err.Error()
	}
	h.broadcastLocked(ev)
}
