package wfc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	ErrInvalidTileDefinition = errors.New("wfc: invalid tile definition")
	ErrNoCandidates          = errors.New("wfc: contradiction - no valid tiles for cell")
	ErrInvalidSize           = errors.New("wfc: invalid grid size")
	ErrEmptyTileSet          = errors.New("wfc: tile set is empty")
	ErrOutOfBounds           = errors.New("wfc: cell outside grid")
	ErrNotInitialized        = errors.New("wfc: grid not initialized")
	ErrRunning               = errors.New("wfc: solver is running")
	ErrFinished              = errors.New("wfc: run already finished, initialize a new grid")
)

// State is the lifecycle state of a Solver run.
type State int

const (
	Idle State = iota
	Running
	Completed
	Failed
	Cancelled
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further steps are possible in this state.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// ContradictionError identifies the cell whose candidates ran out.
type ContradictionError struct {
	X, Y int
	// SourceX and SourceY locate the cell whose propagation emptied this
	// one. HasSource is false when the collapse step found it empty.
	SourceX, SourceY int
	HasSource        bool
}

func (e *ContradictionError) Error() string {
	if e.HasSource {
		return fmt.Sprintf("wfc: contradiction at (%d,%d) propagating from (%d,%d)", e.X, e.Y, e.SourceX, e.SourceY)
	}
	return fmt.Sprintf("wfc: contradiction at (%d,%d)", e.X, e.Y)
}

// Is makes errors.Is(err, ErrNoCandidates) match.
func (e *ContradictionError) Is(target error) bool {
	return target == ErrNoCandidates
}

// Options configures a Solver.
type Options struct {
	// Seed for the random source. 0 draws a fresh seed.
	Seed     uint64
	Observer Observer
}

// Result summarises a finished (or cancelled) run.
type Result struct {
	State     State
	Seed      uint64
	Elapsed   time.Duration
	Collapsed int
	Failure   *ContradictionError
}

// Solver runs wave function collapse over a Grid: pick the uncollapsed cell
// with the fewest candidates, collapse it at random, propagate, repeat.
// A Solver is not safe for concurrent use.
type Solver struct {
	tiles    *OrientedTileSet
	rules    *Rules
	grid     *Grid
	rng      *rand.Rand
	seed     uint64
	observer Observer

	state     State
	collapsed int
	started   time.Time
	elapsed   time.Duration
	failure   *ContradictionError
}

// NewSolver creates a solver for the given oriented tile set. Call
// Initialize before running.
func NewSolver(set *OrientedTileSet, opts Options) (*Solver, error) {
	if set.Len() == 0 {
		return nil, ErrEmptyTileSet
	}
	s := &Solver{
		tiles:    set,
		rules:    NewRules(set),
		observer: opts.Observer,
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	s.applySeed(opts.Seed)
	return s, nil
}

// NewSeed returns a random non-zero seed.
func NewSeed() uint64 {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		if seed := src.Uint64(); seed != 0 {
			return seed
		}
	}
}

func (s *Solver) applySeed(seed uint64) {
	if seed == 0 {
		seed = NewSeed()
	}
	s.seed = seed
	s.rng = rand.New(rand.NewSource(int64(seed)))
}

// Initialize builds a fresh grid, reseeds the random source from the current
// seed and resets the collapsed counter. The solver returns to Idle.
func (s *Solver) Initialize(width, height int, cellSize float64) error {
	if s.state == Running {
		return ErrRunning
	}
	grid, err := NewGrid(width, height, s.tiles, cellSize)
	if err != nil {
		return err
	}
	s.grid = grid
	s.rng = rand.New(rand.NewSource(int64(s.seed)))
	s.collapsed = 0
	s.state = Idle
	s.elapsed = 0
	s.failure = nil
	return nil
}

// Seed returns the seed in use.
func (s *Solver) Seed() uint64 {
	return s.seed
}

// SetSeed changes the seed; 0 draws a fresh one. It takes effect for the
// next Initialize.
func (s *Solver) SetSeed(seed uint64) error {
	if s.state == Running {
		return ErrRunning
	}
	s.applySeed(seed)
	return nil
}

// State returns the current lifecycle state
func (s *Solver) State() State {
	return s.state
}

// CollapsedCount returns how many cells have collapsed in this run
func (s *Solver) CollapsedCount() int {
	return s.collapsed
}

// ResetCollapsedCount zeroes the collapsed counter.
func (s *Solver) ResetCollapsedCount() {
	s.collapsed = 0
}

// Grid returns the grid being solved.
func (s *Solver) Grid() *Grid {
	return s.grid
}

// Tiles returns the oriented tile set.
func (s *Solver) Tiles() *OrientedTileSet {
	return s.tiles
}

// Constrain narrows the candidates of cell (x, y) before a run to the tiles
// keep accepts. It does not propagate; the run does. A constraint that would
// leave no candidates is rejected and the cell is left untouched.
func (s *Solver) Constrain(x, y int, keep func(TilePrototype) bool) error {
	if s.grid == nil {
		return ErrNotInitialized
	}
	switch {
	case s.state == Running:
		return ErrRunning
	case s.state.Terminal():
		return ErrFinished
	}
	if !s.grid.InBounds(x, y) {
		return fmt.Errorf("%w: (%d,%d)", ErrOutOfBounds, x, y)
	}

	cell := s.grid.CellAt(x, y)
	if cell.Collapsed() {
		return nil
	}
	remaining := 0
	for _, c := range cell.candidates {
		if keep(s.tiles.At(c)) {
			remaining++
		}
	}
	if remaining == 0 {
		return &ContradictionError{X: x, Y: y}
	}
	cell.retain(func(c int) bool { return keep(s.tiles.At(c)) })
	return nil
}

// Run solves the grid until every cell is collapsed or a contradiction is
// hit. Cancelling ctx stops the run after the current select, collapse and
// propagation cascade have finished.
func (s *Solver) Run(ctx context.Context) (Result, error) {
	if err := s.begin(); err != nil {
		return s.result(), err
	}
	for {
		if err := ctx.Err(); err != nil {
			s.state = Cancelled
			s.elapsed = time.Since(s.started)
			return s.result(), err
		}
		done, err := s.step()
		if done {
			return s.result(), err
		}
	}
}

// Step performs one select/collapse/propagate iteration, starting the run if
// the solver is idle. It returns the state after the step.
func (s *Solver) Step() (State, error) {
	if s.state != Running {
		if err := s.begin(); err != nil {
			return s.state, err
		}
	}
	_, err := s.step()
	return s.state, err
}

// Result returns a summary of the current run.
func (s *Solver) Result() Result {
	return s.result()
}

func (s *Solver) result() Result {
	elapsed := s.elapsed
	if s.state == Running {
		elapsed = time.Since(s.started)
	}
	return Result{
		State:     s.state,
		Seed:      s.seed,
		Elapsed:   elapsed,
		Collapsed: s.collapsed,
		Failure:   s.failure,
	}
}

func (s *Solver) begin() error {
	if s.grid == nil {
		return ErrNotInitialized
	}
	switch {
	case s.state == Running:
		return ErrRunning
	case s.state.Terminal():
		return ErrFinished
	}
	s.state = Running
	s.started = time.Now()
	return nil
}

// step runs one iteration and reports whether the run has ended.
func (s *Solver) step() (bool, error) {
	idx := s.selectCell()
	if idx < 0 {
		s.complete()
		return true, nil
	}
	if err := s.collapse(idx); err != nil {
		s.fail(err)
		return true, err
	}
	if err := s.propagate(idx); err != nil {
		s.fail(err)
		return true, err
	}
	return false, nil
}

// selectCell returns the uncollapsed cell with the fewest candidates, or -1
// if all cells are collapsed. Ties go to the lowest index.
func (s *Solver) selectCell() int {
	best := -1
	bestCount := 0
	for i, cell := range s.grid.cells {
		if cell.collapsed {
			continue
		}
		if best < 0 || cell.Entropy() < bestCount {
			best = i
			bestCount = cell.Entropy()
		}
	}
	return best
}

// collapse picks one candidate of the cell uniformly at random.
func (s *Solver) collapse(idx int) *ContradictionError {
	cell := s.grid.cells[idx]
	if cell.Entropy() == 0 {
		x, y := s.grid.Coordinate(idx)
		return &ContradictionError{X: x, Y: y}
	}
	choice := cell.candidates[s.rng.Intn(cell.Entropy())]
	s.resolve(idx, choice, false)
	return nil
}

// resolve fixes a cell to tile and emits the notification.
func (s *Solver) resolve(idx, tile int, forced bool) {
	cell := s.grid.cells[idx]
	cell.collapseTo(tile)
	s.collapsed++

	x, y := s.grid.Coordinate(idx)
	t := s.tiles.At(tile)
	s.observer.CellResolved(ResolvedCell{
		X:        x,
		Y:        y,
		Index:    tile,
		Artwork:  t.Artwork,
		Rotation: t.Rotation,
		PosX:     float64(x) * cell.cellSize,
		PosY:     float64(y) * cell.cellSize,
		Forced:   forced,
	})
}

// propagate removes unsupported candidates from neighbors, breadth first,
// starting at start. Cells reduced to one candidate collapse in place.
func (s *Solver) propagate(start int) *ContradictionError {
	queue := make([]int, 0, 16)
	queue = append(queue, start)

	for head := 0; head < len(queue); head++ {
		c := queue[head]
		sources := s.grid.cells[c].candidates

		for _, nb := range s.grid.NeighborIndices(c) {
			neighbor := s.grid.cells[nb.Index]
			if neighbor.collapsed {
				continue
			}
			dir := nb.Dir
			changed := neighbor.retain(func(b int) bool {
				return s.rules.Supported(dir, sources, b)
			})
			if !changed {
				continue
			}

			switch neighbor.Entropy() {
			case 0:
				x, y := s.grid.Coordinate(nb.Index)
				sx, sy := s.grid.Coordinate(c)
				return &ContradictionError{X: x, Y: y, SourceX: sx, SourceY: sy, HasSource: true}
			case 1:
				s.resolve(nb.Index, neighbor.candidates[0], true)
			}
			queue = append(queue, nb.Index)
		}
	}
	return nil
}

func (s *Solver) complete() {
	s.state = Completed
	s.elapsed = time.Since(s.started)
	s.observer.RunCompleted(Completion{Elapsed: s.elapsed, Collapsed: s.collapsed})
}

func (s *Solver) fail(err *ContradictionError) {
	s.state = Failed
	s.elapsed = time.Since(s.started)
	s.failure = err
	s.observer.RunFailed(Failure{
		X:         err.X,
		Y:         err.Y,
		Err:       err,
		Elapsed:   s.elapsed,
		Collapsed: s.collapsed,
	})
}
