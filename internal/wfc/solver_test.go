package wfc

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSolver(t *testing.T, bases []TilePrototype, seed uint64, w, h int) (*Solver, *Recorder) {
	t.Helper()
	set, err := ExpandDistinct(bases)
	require.NoError(t, err)
	rec := &Recorder{}
	s, err := NewSolver(set, Options{Seed: seed, Observer: rec})
	require.NoError(t, err)
	require.NoError(t, s.Initialize(w, h, 14))
	return s, rec
}

func roadPalette() []TilePrototype {
	return []TilePrototype{
		NewTilePrototype("grass.png", "GG", "GG", "GG", "GG"),
		NewTilePrototype("road.png", "GRG", "GG", "GRG", "GG"),
		NewTilePrototype("bend.png", "GRG", "GRG", "GG", "GG"),
		NewTilePrototype("tee.png", "GRG", "GRG", "GG", "GRG"),
		NewTilePrototype("shore.png", "GGW", "WW", "WGG", "GG"),
	}
}

func TestSolverTwoByOneSymmetricTile(t *testing.T) {
	s, rec := newTestSolver(t, []TilePrototype{NewTilePrototype("a.png", "A", "A", "A", "A")}, 42, 2, 1)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, 2, res.Collapsed)
	assert.Equal(t, 2, s.CollapsedCount())
	assert.Nil(t, res.Failure)

	events := rec.Resolved()
	require.Len(t, events, 2)
	for i, ev := range events {
		assert.Equal(t, i, ev.X)
		assert.Equal(t, 0, ev.Y)
		assert.Equal(t, ArtworkRef("a.png"), ev.Artwork)
		assert.Equal(t, 0, ev.Rotation)
	}
	assert.Equal(t, 14.0, events[1].PosX)

	done, ok := rec.Completion()
	require.True(t, ok)
	assert.Equal(t, 2, done.Collapsed)
	_, failed := rec.Failure()
	assert.False(t, failed)
}

func TestSolverCornerContradiction(t *testing.T) {
	bases := []TilePrototype{
		NewTilePrototype("a.png", "A", "A", "A", "A"),
		// "ZQ" read reversed is "QZ", so Z matches nothing, not even itself.
		NewTilePrototype("z.png", "ZQ", "ZQ", "ZQ", "ZQ"),
	}
	s, rec := newTestSolver(t, bases, 7, 3, 3)

	onlyA := func(tp TilePrototype) bool { return tp.Artwork == "a.png" }
	onlyZ := func(tp TilePrototype) bool { return tp.Artwork == "z.png" }
	require.NoError(t, s.Constrain(2, 2, onlyZ))
	require.NoError(t, s.Constrain(2, 1, onlyA))
	require.NoError(t, s.Constrain(1, 2, onlyA))

	res, err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoCandidates))

	var ce *ContradictionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, ce.X)
	assert.Equal(t, 2, ce.Y)
	assert.True(t, ce.HasSource)
	assert.Equal(t, []int{2, 1}, []int{ce.SourceX, ce.SourceY})

	assert.Equal(t, Failed, res.State)
	assert.Equal(t, Failed, s.State())
	require.NotNil(t, res.Failure)
	assert.Equal(t, 2, res.Failure.X)

	f, ok := rec.Failure()
	require.True(t, ok)
	assert.Equal(t, 2, f.X)
	assert.Equal(t, 2, f.Y)
	_, completed := rec.Completion()
	assert.False(t, completed)

	// Partially collapsed cells are left for inspection.
	assert.True(t, s.Grid().CellAt(2, 1).Collapsed())
	assert.Equal(t, 0, s.Grid().CellAt(2, 2).Entropy())
}

func TestSolverSingleCell(t *testing.T) {
	s, rec := newTestSolver(t, roadPalette(), 3, 1, 1)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, 1, res.Collapsed)
	require.Len(t, rec.Resolved(), 1)
	assert.False(t, rec.Resolved()[0].Forced)
}

func TestSolverCascadeForcesWholeGrid(t *testing.T) {
	bases := []TilePrototype{
		NewTilePrototype("a.png", "A", "A", "A", "A"),
		NewTilePrototype("b.png", "B", "B", "B", "B"),
	}
	s, rec := newTestSolver(t, bases, 99, 5, 5)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, res.State)
	assert.Equal(t, 25, res.Collapsed)

	events := rec.Resolved()
	require.Len(t, events, 25)
	assert.False(t, events[0].Forced)
	assert.Equal(t, 0, events[0].X)
	assert.Equal(t, 0, events[0].Y)
	for _, ev := range events[1:] {
		assert.True(t, ev.Forced)
		assert.Equal(t, events[0].Artwork, ev.Artwork)
	}
}

func TestSolverSelectsLowestEntropyFirstIndexOnTie(t *testing.T) {
	s, rec := newTestSolver(t, roadPalette(), 5, 4, 4)
	grass := func(tp TilePrototype) bool { return tp.Artwork == "grass.png" }
	roadish := func(tp TilePrototype) bool { return tp.Artwork != "shore.png" }
	require.NoError(t, s.Constrain(1, 3, roadish))
	// Two cells tie at one candidate; (2,1) comes first in row-major order.
	require.NoError(t, s.Constrain(3, 2, grass))
	require.NoError(t, s.Constrain(2, 1, grass))

	_, _ = s.Step()
	events := rec.Resolved()
	require.NotEmpty(t, events)
	assert.Equal(t, 2, events[0].X)
	assert.Equal(t, 1, events[0].Y)
}

func TestSolverDeterministicForSeed(t *testing.T) {
	run := func(seed uint64) ([]ResolvedCell, Result) {
		s, rec := newTestSolver(t, roadPalette(), seed, 12, 9)
		res, _ := s.Run(context.Background())
		return rec.Resolved(), res
	}

	for _, seed := range []uint64{1, 42, 1234567} {
		a, ra := run(seed)
		b, rb := run(seed)
		assert.Equal(t, a, b, "seed %d", seed)
		assert.Equal(t, ra.State, rb.State)
		assert.Equal(t, ra.Collapsed, rb.Collapsed)
	}
}

func TestSolverReinitializeReplaysSameSeed(t *testing.T) {
	s, rec := newTestSolver(t, roadPalette(), 77, 6, 6)
	_, _ = s.Run(context.Background())
	first := rec.Resolved()

	rec.Reset()
	require.NoError(t, s.Initialize(6, 6, 14))
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, 0, s.CollapsedCount())
	_, _ = s.Run(context.Background())
	assert.Equal(t, first, rec.Resolved())
}

func TestSolverMonotonicShrinkage(t *testing.T) {
	for _, seed := range []uint64{2, 3, 11, 19, 23} {
		s, _ := newTestSolver(t, roadPalette(), seed, 8, 8)
		g := s.Grid()
		prev := g.Snapshot()
		collapsedBefore := make([]int, g.Len())
		for i := range collapsedBefore {
			collapsedBefore[i] = -1
		}

		steps := 0
		for !s.State().Terminal() {
			_, _ = s.Step()
			steps++
			require.LessOrEqual(t, steps, g.Len()+1, "seed %d did not terminate", seed)

			cur := g.Snapshot()
			for i := range cur {
				assert.LessOrEqual(t, cur[i], prev[i], "seed %d cell %d grew", seed, i)
				cell := g.Cell(i)
				if cell.Collapsed() {
					assert.Equal(t, 1, cell.Entropy())
					if collapsedBefore[i] >= 0 {
						assert.Equal(t, collapsedBefore[i], cell.Tile())
					}
					collapsedBefore[i] = cell.Tile()
				}
			}
			prev = cur
		}
		assert.Contains(t, []State{Completed, Failed}, s.State())
	}
}

func TestSolverCompletedGridIsConsistent(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		s, _ := newTestSolver(t, roadPalette(), seed, 7, 5)
		res, err := s.Run(context.Background())
		if res.State != Completed {
			require.ErrorIs(t, err, ErrNoCandidates)
			continue
		}
		g := s.Grid()
		assert.Equal(t, g.Len(), res.Collapsed)
		for i := 0; i < g.Len(); i++ {
			a := s.Tiles().At(g.Cell(i).Tile())
			for _, nb := range g.NeighborIndices(i) {
				b := s.Tiles().At(g.Cell(nb.Index).Tile())
				assert.True(t, a.CompatibleWith(b, nb.Dir), "seed %d cell %d %s", seed, i, nb.Dir)
			}
		}
	}
}

func TestSolverRunAfterFinish(t *testing.T) {
	s, _ := newTestSolver(t, roadPalette(), 1, 1, 1)
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrFinished)
	_, err = s.Step()
	assert.ErrorIs(t, err, ErrFinished)
	assert.ErrorIs(t, s.Constrain(0, 0, func(TilePrototype) bool { return true }), ErrFinished)
}

func TestSolverRequiresInitialize(t *testing.T) {
	set, err := Expand(roadPalette())
	require.NoError(t, err)
	s, err := NewSolver(set, Options{Seed: 1})
	require.NoError(t, err)

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.Constrain(0, 0, nil), ErrNotInitialized)
	assert.ErrorIs(t, s.Initialize(0, 1, 1), ErrInvalidSize)
	assert.ErrorIs(t, s.Initialize(math.MaxInt, math.MaxInt, 1), ErrInvalidSize)
	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized, "an oversized grid must not leave a runnable empty grid")
}

func TestSolverCancelledContext(t *testing.T) {
	s, rec := newTestSolver(t, roadPalette(), 1, 4, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Cancelled, res.State)
	assert.Empty(t, rec.Resolved())

	_, err = s.Run(context.Background())
	assert.ErrorIs(t, err, ErrFinished)
}

func TestSolverStep(t *testing.T) {
	s, _ := newTestSolver(t, roadPalette(), 9, 1, 1)

	state, err := s.Step()
	require.NoError(t, err)
	assert.Equal(t, Running, state)
	assert.Equal(t, 1, s.CollapsedCount())

	state, err = s.Step()
	require.NoError(t, err)
	assert.Equal(t, Completed, state)
}

func TestSolverConstrain(t *testing.T) {
	s, _ := newTestSolver(t, roadPalette(), 1, 3, 3)

	err := s.Constrain(3, 0, func(TilePrototype) bool { return true })
	assert.ErrorIs(t, err, ErrOutOfBounds)

	before := s.Grid().CellAt(1, 1).Entropy()
	err = s.Constrain(1, 1, func(TilePrototype) bool { return false })
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Equal(t, before, s.Grid().CellAt(1, 1).Entropy())

	require.NoError(t, s.Constrain(1, 1, func(tp TilePrototype) bool { return tp.Rotation == 0 }))
	for _, c := range s.Grid().CellAt(1, 1).Candidates() {
		assert.Equal(t, 0, s.Tiles().At(c).Rotation)
	}
}

func TestSolverSeed(t *testing.T) {
	set, err := Expand(roadPalette())
	require.NoError(t, err)

	s, err := NewSolver(set, Options{})
	require.NoError(t, err)
	assert.NotZero(t, s.Seed())

	require.NoError(t, s.SetSeed(5))
	assert.Equal(t, uint64(5), s.Seed())
	require.NoError(t, s.SetSeed(0))
	assert.NotZero(t, s.Seed())
}

func TestSolverResetCollapsedCount(t *testing.T) {
	s, _ := newTestSolver(t, roadPalette(), 1, 2, 2)
	_, _ = s.Run(context.Background())
	require.NotZero(t, s.CollapsedCount())
	s.ResetCollapsedCount()
	assert.Zero(t, s.CollapsedCount())
}

func TestNewSolverEmptySet(t *testing.T) {
	_, err := NewSolver(&OrientedTileSet{}, Options{})
	assert.ErrorIs(t, err, ErrEmptyTileSet)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "completed", Completed.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.False(t, Running.Terminal())
	assert.True(t, Failed.Terminal())
}

func TestObserverFuncsAndMulti(t *testing.T) {
	var resolved, completed int
	funcs := ObserverFuncs{
		OnResolved:  func(ResolvedCell) { resolved++ },
		OnCompleted: func(Completion) { completed++ },
	}
	rec := &Recorder{}
	m := MultiObserver{funcs, rec}

	m.CellResolved(ResolvedCell{X: 1})
	m.RunCompleted(Completion{Collapsed: 1})
	m.RunFailed(Failure{X: 2})

	assert.Equal(t, 1, resolved)
	assert.Equal(t, 1, completed)
	assert.Len(t, rec.Resolved(), 1)
	f, ok := rec.Failure()
	require.True(t, ok)
	assert.Equal(t, 2, f.X)
}
