package memory

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T, cfg Config) *Pool {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Name: "zero"})
	require.Error(t, err)
	_, err = New(Config{Size: 1024, Alignment: 24})
	require.Error(t, err)
	_, err = New(Config{Arena: []byte{}})
	require.Error(t, err)
}

func TestAllocRoundsToAlignment(t *testing.T) {
	p := newPool(t, Config{Size: 4096})
	h, err := p.Alloc(10, 0, "x")
	require.NoError(t, err)
	assert.Equal(t, DefaultAlignment, h.Size())
	assert.Equal(t, 0, h.Offset())

	h2, err := p.Alloc(65, 64, "y")
	require.NoError(t, err)
	assert.Equal(t, 128, h2.Size())
	assert.Equal(t, DefaultAlignment, h2.Offset())

	_, err = p.Alloc(0, 0, "z")
	require.ErrorIs(t, err, ErrZeroSize)
	_, err = p.Alloc(8, 3, "z")
	require.Error(t, err)
	require.NoError(t, p.Check())
}

func TestFreeCoalescesBothNeighbours(t *testing.T) {
	p := newPool(t, Config{Size: 96, Alignment: 32})
	a, err := p.Alloc(32, 0, "a")
	require.NoError(t, err)
	b, err := p.Alloc(32, 0, "b")
	require.NoError(t, err)
	c, err := p.Alloc(32, 0, "c")
	require.NoError(t, err)

	require.NoError(t, p.Free(a))
	require.NoError(t, p.Free(c))
	assert.Equal(t, 2, p.Stats().FreeBlocks)
	require.NoError(t, p.Check())

	require.NoError(t, p.Free(b))
	blocks := p.Walk()
	require.Len(t, blocks, 1)
	assert.True(t, blocks[0].Free)
	assert.Equal(t, 96, blocks[0].Size)
	assert.Equal(t, 1, p.Stats().FreeBlocks)
	require.NoError(t, p.Check())
}

// fragmented fills the arena with holes of 100, 50 and 30 bytes separated by
// pinned 8-byte blocks, then frees the holes.
func fragmented(t *testing.T, strategy Strategy) (*Pool, map[string]int) {
	t.Helper()
	p := newPool(t, Config{Size: 204, Alignment: 1, Strategy: strategy})
	offs := map[string]int{}
	var holes []*Handle
	for _, sz := range []int{100, 50, 30} {
		h, err := p.Alloc(sz, 0, "hole")
		require.NoError(t, err)
		offs[string(rune('0'+len(holes)))] = h.Offset()
		holes = append(holes, h)
		_, err = p.Alloc(8, 0, "pin")
		require.NoError(t, err)
	}
	for _, h := range holes {
		require.NoError(t, p.Free(h))
	}
	require.NoError(t, p.Check())
	return p, offs
}

func TestBestFitPicksSmallestSufficientBlock(t *testing.T) {
	p, offs := fragmented(t, BestFit)
	h, err := p.Alloc(40, 0, "req")
	require.NoError(t, err)
	assert.Equal(t, offs["1"], h.Offset())
	require.NoError(t, p.Check())
}

func TestFirstFitPicksFirstSufficientBlock(t *testing.T) {
	p, offs := fragmented(t, FirstFit)
	h, err := p.Alloc(40, 0, "req")
	require.NoError(t, err)
	assert.Equal(t, offs["0"], h.Offset())
	require.NoError(t, p.Check())
}

func TestOutOfMemoryIsAnOutcome(t *testing.T) {
	const kb = 1024
	p := newPool(t, Config{Name: "e2e", Size: 1024 * kb, Strategy: BestFit})

	a, err := p.Alloc(300*kb, 0, "a")
	require.NoError(t, err)
	_, err = p.Alloc(200*kb, 0, "b")
	require.NoError(t, err)
	require.NoError(t, p.Free(a))

	c, err := p.Alloc(250*kb, 0, "c")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Offset(), "best fit reuses the freed hole")

	h, err := p.Alloc(900*kb, 0, "d")
	require.Nil(t, h)
	require.True(t, IsOutOfMemory(err), "got %v", err)

	st := p.Stats()
	assert.Equal(t, uint64(1), st.OOMCount)
	assert.Equal(t, 450*kb, st.Used)
	assert.Equal(t, 500*kb, st.Peak)
	assert.Equal(t, st.Total-st.Used, st.Free)
	require.NoError(t, p.Check())

	// Rounding these up would overflow int.
	for _, size := range []int{math.MaxInt, math.MaxInt - 20, 1024*kb + 1} {
		h, err := p.Alloc(size, 0, "huge")
		assert.Nil(t, h, "size %d", size)
		assert.True(t, IsOutOfMemory(err), "size %d: got %v", size, err)
	}
	assert.Equal(t, 450*kb, p.Stats().Used)
	require.NoError(t, p.Check())
}

func TestAllocLargerThanArenaFails(t *testing.T) {
	p := newPool(t, Config{Size: 1024})
	for _, size := range []int{math.MaxInt, math.MaxInt - 20, 1025} {
		h, err := p.Alloc(size, 64, "huge")
		require.Nil(t, h)
		require.True(t, IsOutOfMemory(err), "size %d: got %v", size, err)
	}
	st := p.Stats()
	assert.Equal(t, 0, st.Used)
	assert.Equal(t, uint64(3), st.OOMCount)

	h, err := p.Alloc(1024, 0, "all")
	require.NoError(t, err)
	assert.Equal(t, 1024, h.Size())
}

func TestDoubleFreeIsDetected(t *testing.T) {
	p := newPool(t, Config{Size: 1024})
	h, err := p.Alloc(64, 0, "x")
	require.NoError(t, err)
	require.NoError(t, p.Free(h))

	err = p.Free(h)
	require.True(t, IsInvalidHandle(err), "got %v", err)
	assert.False(t, h.Valid())
	assert.Nil(t, h.Bytes())

	// A later allocation reusing the same record must not revive the old handle.
	h2, err := p.Alloc(64, 0, "y")
	require.NoError(t, err)
	assert.Equal(t, 0, h2.Offset())
	assert.True(t, IsInvalidHandle(p.Free(h)))
	assert.True(t, h2.Valid())
	require.NoError(t, p.Check())
}

func TestForeignHandleRejected(t *testing.T) {
	p1 := newPool(t, Config{Name: "p1", Size: 256})
	p2 := newPool(t, Config{Name: "p2", Size: 256})
	h, err := p1.Alloc(32, 0, "x")
	require.NoError(t, err)
	assert.True(t, IsInvalidHandle(p2.Free(h)))
	assert.True(t, IsInvalidHandle(p1.Free(nil)))
}

func TestSharedReferences(t *testing.T) {
	p := newPool(t, Config{Size: 1024})
	h, err := p.Alloc(100, 0, "weights")
	require.NoError(t, err)

	var freed []string
	h.SetFreeCallback(func(tag string, data []byte) {
		freed = append(freed, tag)
		assert.Len(t, data, 128)
	})

	require.NoError(t, p.Ref(h))
	require.NoError(t, p.Ref(h))
	assert.Equal(t, 3, h.RefCount())

	require.NoError(t, p.Unref(h))
	assert.Equal(t, 2, h.RefCount())

	require.NoError(t, p.Free(h))
	assert.True(t, h.Valid())
	assert.Empty(t, freed)
	require.ErrorIs(t, p.Unref(h), ErrLastReference)

	require.NoError(t, p.Free(h))
	assert.Equal(t, []string{"weights"}, freed)
	assert.False(t, h.Valid())
	assert.Equal(t, 0, p.Stats().Used)
}

func TestFreeCallbackMayUseThePool(t *testing.T) {
	p := newPool(t, Config{Size: 1024})
	h, err := p.Alloc(64, 0, "a")
	require.NoError(t, err)
	h.SetFreeCallback(func(string, []byte) {
		st := p.Stats()
		assert.Equal(t, 64, st.Used)
	})
	require.NoError(t, h.Free())
}

func TestPanickingFreeCallbackStillReleases(t *testing.T) {
	p := newPool(t, Config{Size: 1024})
	h, err := p.Alloc(64, 0, "a")
	require.NoError(t, err)
	h.SetFreeCallback(func(string, []byte) { panic("boom") })

	err = h.Free()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	st := p.Stats()
	assert.Equal(t, 0, st.Used)
	assert.Equal(t, 0, st.ActiveBlocks)
	assert.Error(t, h.Free(), "handle is released")
	require.NoError(t, p.Check())

	all, err := p.Alloc(1024, 0, "all")
	require.NoError(t, err)
	require.NoError(t, all.Free())
}

func TestBytesAreDisjoint(t *testing.T) {
	p := newPool(t, Config{Size: 256})
	a, err := p.Alloc(32, 0, "a")
	require.NoError(t, err)
	b, err := p.Alloc(32, 0, "b")
	require.NoError(t, err)
	for i := range a.Bytes() {
		a.Bytes()[i] = 0xAA
	}
	for _, v := range b.Bytes() {
		assert.Equal(t, byte(0), v)
	}
	assert.Equal(t, "a", a.Tag())
}

func TestExternalArena(t *testing.T) {
	arena := make([]byte, 512)
	p, err := New(Config{Arena: arena})
	require.NoError(t, err)
	h, err := p.Alloc(32, 0, "x")
	require.NoError(t, err)
	h.Bytes()[0] = 7
	assert.Equal(t, byte(7), arena[0])
	require.NoError(t, p.Close())
	assert.Len(t, arena, 512)
}

func TestCloseInvalidatesHandles(t *testing.T) {
	p, err := New(Config{Size: 256})
	require.NoError(t, err)
	h, err := p.Alloc(32, 0, "x")
	require.NoError(t, err)
	require.NoError(t, p.Close())

	assert.False(t, h.Valid())
	assert.True(t, IsPoolClosed(p.Free(h)))
	_, err = p.Alloc(32, 0, "y")
	assert.True(t, IsPoolClosed(err))
	assert.True(t, IsPoolClosed(p.Close()))
}

func TestRandomWorkloadKeepsInvariants(t *testing.T) {
	for _, strategy := range []Strategy{FirstFit, BestFit} {
		t.Run(strategy.String(), func(t *testing.T) {
			p := newPool(t, Config{Size: 64 * 1024, Strategy: strategy, Alignment: 16})
			rng := rand.New(rand.NewSource(42))
			var live []*Handle
			for i := 0; i < 2000; i++ {
				if len(live) > 0 && rng.Intn(3) == 0 {
					j := rng.Intn(len(live))
					require.NoError(t, p.Free(live[j]))
					live = append(live[:j], live[j+1:]...)
				} else {
					h, err := p.Alloc(1+rng.Intn(2048), 0, "w")
					if err != nil {
						require.True(t, IsOutOfMemory(err))
						continue
					}
					live = append(live, h)
				}
				require.NoError(t, p.Check(), "step %d", i)
			}
			sum := 0
			for _, h := range live {
				sum += h.Size()
			}
			st := p.Stats()
			assert.Equal(t, sum, st.Used)
			assert.Equal(t, len(live), st.ActiveBlocks)
			assert.Equal(t, st.Total, st.Used+st.Free)

			for _, h := range live {
				require.NoError(t, p.Free(h))
			}
			require.Len(t, p.Walk(), 1)
		})
	}
}

func TestConcurrentAllocFree(t *testing.T) {
	p := newPool(t, Config{Size: 1 << 20})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				h, err := p.Alloc(256, 0, "c")
				if err != nil {
					continue
				}
				_ = p.Free(h)
			}
		}()
	}
	wg.Wait()
	require.NoError(t, p.Check())
	assert.Equal(t, 0, p.Stats().Used)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("best-fit")
	require.NoError(t, err)
	assert.Equal(t, BestFit, s)
	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, FirstFit, s)
	_, err = ParseStrategy("worst")
	require.Error(t, err)
}
