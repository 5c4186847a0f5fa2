package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const none = -1

// block is one record of the arena table. prev/next link address neighbours,
// fprev/fnext link the free list while the block is free.
type block struct {
	offset    int
	size      int
	align     int
	free      bool
	allocTime time.Time
	refs      int32
	tag       string
	gen       uint32

	prev, next   int
	fprev, fnext int
	live         bool
}

// Pool is a bounded arena allocator. All methods are safe for concurrent use.
type Pool struct {
	mu sync.Mutex

	name      string
	arena     []byte
	external  bool
	strategy  Strategy
	alignment int

	blocks []block
	spare  []int

	freeHead, freeTail int
	freeBlocks         int
	used               map[int]struct{}

	usedBytes  int
	peakBytes  int
	allocCount uint64
	freeCount  uint64
	oomCount   uint64

	closed bool
	log    zerolog.Logger
}

// New creates a pool whose arena starts as a single free block.
func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		name:      cfg.Name,
		strategy:  cfg.Strategy,
		alignment: cfg.Alignment,
		used:      make(map[int]struct{}),
		log:       zerolog.Nop(),
	}
	if p.name == "" {
		p.name = "default"
	}
	if p.alignment == 0 {
		p.alignment = DefaultAlignment
	}
	if cfg.Logger != nil {
		p.log = cfg.Logger.With().Str("pool", p.name).Logger()
	}
	if cfg.Arena != nil {
		p.arena = cfg.Arena
		p.external = true
	} else {
		p.arena = make([]byte, cfg.Size)
	}
	p.blocks = append(p.blocks, block{
		offset: 0,
		size:   len(p.arena),
		free:   true,
		prev:   none, next: none,
		fprev: none, fnext: none,
		live: true,
	})
	p.freeHead, p.freeTail = 0, 0
	p.freeBlocks = 1
	p.publishMetrics()
	p.log.Debug().Int("size", len(p.arena)).Str("strategy", p.strategy.String()).Bool("external", p.external).Msg("memory pool created")
	return p, nil
}

// Name returns the pool label.
func (p *Pool) Name() string { return p.name }

// Size returns the arena size in bytes.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.arena)
}

// Alloc reserves size bytes, rounded up to alignment (the pool default when 0).
// It fails with an out-of-memory error when no free block fits.
func (p *Pool) Alloc(size, alignment int, tag string) (*Handle, error) {
	if size <= 0 {
		return nil, ErrZeroSize
	}
	if alignment == 0 {
		alignment = p.alignment
	}
	if !isPow2(alignment) {
		return nil, fmt.Errorf("memory pool %q: alignment %d is not a power of two", p.name, alignment)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, poolClosedError{pool: p.name}
	}
	// Requests larger than the arena never fit, and rounding them could overflow.
	need, idx := size, none
	if size <= len(p.arena) {
		need = alignUp(size, alignment)
		idx = p.pick(need)
	}
	if idx == none {
		p.oomCount++
		oomTotal.WithLabelValues(p.name).Inc()
		p.log.Debug().Int("size", need).Str("tag", tag).Msg("memory pool exhausted")
		return nil, outOfMemoryError{pool: p.name, size: need}
	}
	p.carve(idx, need)

	b := &p.blocks[idx]
	b.free = false
	b.refs = 1
	b.tag = tag
	b.align = alignment
	b.allocTime = time.Now()
	b.gen++
	p.used[idx] = struct{}{}

	p.usedBytes += b.size
	if p.usedBytes > p.peakBytes {
		p.peakBytes = p.usedBytes
	}
	p.allocCount++
	allocsTotal.WithLabelValues(p.name).Inc()
	p.publishMetrics()
	return &Handle{pool: p, idx: idx, gen: b.gen}, nil
}

// pick applies the placement strategy. Caller holds p.mu.
func (p *Pool) pick(need int) int {
	switch p.strategy {
	case BestFit:
		best := none
		for i := p.freeHead; i != none; i = p.blocks[i].fnext {
			sz := p.blocks[i].size
			if sz < need {
				continue
			}
			if sz == need {
				return i
			}
			if best == none || sz < p.blocks[best].size {
				best = i
			}
		}
		return best
	default:
		for i := p.freeHead; i != none; i = p.blocks[i].fnext {
			if p.blocks[i].size >= need {
				return i
			}
		}
		return none
	}
}

// carve takes need bytes from the head of free block idx, leaving any
// remainder of at least minSplit bytes as a free block in idx's free-list
// slot. Caller holds p.mu.
func (p *Pool) carve(idx, need int) {
	rem := p.blocks[idx].size - need
	if rem < minSplit {
		p.unlinkFree(idx)
		return
	}
	t := p.newRecord()
	// newRecord may grow p.blocks; take pointers afterwards.
	b := &p.blocks[idx]
	tail := &p.blocks[t]
	*tail = block{
		offset: b.offset + need,
		size:   rem,
		free:   true,
		prev:   idx,
		next:   b.next,
		fprev:  b.fprev,
		fnext:  b.fnext,
		live:   true,
		gen:    tail.gen,
	}
	if b.next != none {
		p.blocks[b.next].prev = t
	}
	b.next = t
	b.size = need

	if tail.fprev != none {
		p.blocks[tail.fprev].fnext = t
	} else {
		p.freeHead = t
	}
	if tail.fnext != none {
		p.blocks[tail.fnext].fprev = t
	} else {
		p.freeTail = t
	}
	b.fprev, b.fnext = none, none
}

// Free drops one reference to h's block. When the last reference goes, the
// free callback runs, the block returns to the free list and is merged with
// any free address neighbour, and h becomes invalid.
func (p *Pool) Free(h *Handle) (err error) {
	p.mu.Lock()
	idx, err := p.validate(h)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	b := &p.blocks[idx]
	if b.refs > 1 {
		b.refs--
		p.mu.Unlock()
		return nil
	}
	// refs==0 marks the block as releasing; concurrent calls see it as invalid.
	b.refs = 0
	cb := h.onFree
	tag := b.tag
	data := p.arena[b.offset : b.offset+b.size : b.offset+b.size]
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		h.released = true
		if p.closed {
			return
		}
		p.release(idx)
		p.publishMetrics()
	}()
	if cb != nil {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Str("tag", tag).Interface("panic", r).Msg("free callback panicked")
				err = fmt.Errorf("memory pool %q: free callback for %q panicked: %v", p.name, tag, r)
			}
		}()
		cb(tag, data)
	}
	return nil
}

// release moves idx from the used set to the free list and coalesces.
// Caller holds p.mu.
func (p *Pool) release(idx int) {
	b := &p.blocks[idx]
	delete(p.used, idx)
	p.usedBytes -= b.size
	p.freeCount++
	b.free = true
	b.tag = ""
	b.refs = 0
	b.gen++

	if n := b.next; n != none && p.blocks[n].free {
		p.unlinkFree(n)
		p.absorbNext(idx)
	}
	if pv := p.blocks[idx].prev; pv != none && p.blocks[pv].free {
		p.absorbNext(pv)
		return
	}
	p.pushFree(idx)
}

// absorbNext merges the address successor of idx into idx and recycles the
// successor's record. The successor must already be off the free list.
func (p *Pool) absorbNext(idx int) {
	b := &p.blocks[idx]
	n := b.next
	nb := &p.blocks[n]
	b.size += nb.size
	b.next = nb.next
	if nb.next != none {
		p.blocks[nb.next].prev = idx
	}
	p.recycle(n)
}

// Ref adds a reference to h's block; each reference needs a matching Free or Unref.
func (p *Pool) Ref(h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.validate(h)
	if err != nil {
		return err
	}
	p.blocks[idx].refs++
	return nil
}

// Unref drops a reference without ever releasing the block.
func (p *Pool) Unref(h *Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.validate(h)
	if err != nil {
		return err
	}
	if p.blocks[idx].refs <= 1 {
		return ErrLastReference
	}
	p.blocks[idx].refs--
	return nil
}

// Close destroys the pool. Every outstanding handle becomes invalid.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return poolClosedError{pool: p.name}
	}
	p.closed = true
	active := len(p.used)
	p.blocks = nil
	p.spare = nil
	p.used = nil
	p.freeHead, p.freeTail = none, none
	p.freeBlocks = 0
	p.usedBytes = 0
	if !p.external {
		p.arena = nil
	}
	usedBytes.DeleteLabelValues(p.name)
	freeBytes.DeleteLabelValues(p.name)
	p.log.Debug().Int("active_blocks", active).Msg("memory pool closed")
	return nil
}

// validate resolves a handle to its record index. Caller holds p.mu.
func (p *Pool) validate(h *Handle) (int, error) {
	if h == nil {
		return none, invalidHandleError{reason: "nil"}
	}
	if h.pool != p {
		return none, invalidHandleError{reason: "belongs to another pool"}
	}
	if p.closed {
		return none, poolClosedError{pool: p.name}
	}
	if h.released {
		return none, invalidHandleError{reason: "already freed"}
	}
	if h.idx < 0 || h.idx >= len(p.blocks) {
		return none, invalidHandleError{reason: "index out of range"}
	}
	b := &p.blocks[h.idx]
	if !b.live || b.free || b.gen != h.gen || b.refs <= 0 {
		return none, invalidHandleError{reason: "stale"}
	}
	return h.idx, nil
}

func (p *Pool) newRecord() int {
	if n := len(p.spare); n > 0 {
		i := p.spare[n-1]
		p.spare = p.spare[:n-1]
		return i
	}
	p.blocks = append(p.blocks, block{gen: 0})
	return len(p.blocks) - 1
}

func (p *Pool) recycle(i int) {
	gen := p.blocks[i].gen + 1
	p.blocks[i] = block{prev: none, next: none, fprev: none, fnext: none, gen: gen}
	p.spare = append(p.spare, i)
}

func (p *Pool) pushFree(i int) {
	b := &p.blocks[i]
	b.fprev, b.fnext = p.freeTail, none
	if p.freeTail != none {
		p.blocks[p.freeTail].fnext = i
	} else {
		p.freeHead = i
	}
	p.freeTail = i
	p.freeBlocks++
}

func (p *Pool) unlinkFree(i int) {
	b := &p.blocks[i]
	if b.fprev != none {
		p.blocks[b.fprev].fnext = b.fnext
	} else {
		p.freeHead = b.fnext
	}
	if b.fnext != none {
		p.blocks[b.fnext].fprev = b.fprev
	} else {
		p.freeTail = b.fprev
	}
	b.fprev, b.fnext = none, none
	p.freeBlocks--
}
