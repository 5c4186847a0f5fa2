package memory

import (
	"fmt"
	"time"
)

// Stats is a point-in-time view of a pool.
type Stats struct {
	Name          string
	Total         int
	Used          int
	Free          int
	Peak          int
	AllocCount    uint64
	FreeCount     uint64
	OOMCount      uint64
	ActiveBlocks  int
	FreeBlocks    int
	LargestFree   int
	Fragmentation float64
}

// Stats reports usage counters. Fragmentation is free bytes over total bytes.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Name:       p.name,
		Total:      len(p.arena),
		Used:       p.usedBytes,
		Peak:       p.peakBytes,
		AllocCount: p.allocCount,
		FreeCount:  p.freeCount,
		OOMCount:   p.oomCount,
	}
	if p.closed {
		return s
	}
	s.Free = s.Total - s.Used
	s.ActiveBlocks = len(p.used)
	s.FreeBlocks = p.freeBlocks
	for i := p.freeHead; i != none; i = p.blocks[i].fnext {
		if sz := p.blocks[i].size; sz > s.LargestFree {
			s.LargestFree = sz
		}
	}
	if s.Total > 0 {
		s.Fragmentation = float64(s.Free) / float64(s.Total)
	}
	return s
}

// BlockInfo describes one block for Walk.
type BlockInfo struct {
	Offset    int
	Size      int
	Free      bool
	Tag       string
	Refs      int
	AllocTime time.Time
}

// Walk returns every block in address order.
func (p *Pool) Walk() []BlockInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	var out []BlockInfo
	for i := 0; i != none; i = p.blocks[i].next {
		b := p.blocks[i]
		out = append(out, BlockInfo{
			Offset:    b.offset,
			Size:      b.size,
			Free:      b.free,
			Tag:       b.tag,
			Refs:      int(b.refs),
			AllocTime: b.allocTime,
		})
	}
	return out
}

// Check verifies the arena invariants: blocks tile the arena without gaps or
// overlap, no two free blocks are adjacent, and the free list and used set
// agree with the block table.
func (p *Pool) Check() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return poolClosedError{pool: p.name}
	}
	off, used, free, nfree, nused := 0, 0, 0, 0, 0
	prev := none
	prevFree := false
	for i := 0; i != none; i = p.blocks[i].next {
		b := p.blocks[i]
		if !b.live {
			return fmt.Errorf("block %d in address chain is not live", i)
		}
		if b.prev != prev {
			return fmt.Errorf("block %d: prev link %d, want %d", i, b.prev, prev)
		}
		if b.offset != off {
			return fmt.Errorf("block %d: offset %d, want %d", i, b.offset, off)
		}
		if b.size <= 0 {
			return fmt.Errorf("block %d: size %d", i, b.size)
		}
		if b.free {
			if prevFree {
				return fmt.Errorf("block %d: adjacent free blocks not coalesced", i)
			}
			free += b.size
			nfree++
		} else {
			if _, ok := p.used[i]; !ok {
				return fmt.Errorf("block %d: allocated but not in used set", i)
			}
			used += b.size
			nused++
		}
		prevFree = b.free
		off += b.size
		prev = i
	}
	if off != len(p.arena) {
		return fmt.Errorf("blocks cover %d bytes, arena is %d", off, len(p.arena))
	}
	if used != p.usedBytes || used+free != len(p.arena) {
		return fmt.Errorf("used %d free %d, accounted used %d of %d", used, free, p.usedBytes, len(p.arena))
	}
	if nused != len(p.used) {
		return fmt.Errorf("%d allocated blocks, used set has %d", nused, len(p.used))
	}
	n := 0
	for i := p.freeHead; i != none; i = p.blocks[i].fnext {
		if !p.blocks[i].free {
			return fmt.Errorf("block %d on free list is allocated", i)
		}
		n++
		if n > len(p.blocks) {
			return fmt.Errorf("free list cycle")
		}
	}
	if n != nfree || n != p.freeBlocks {
		return fmt.Errorf("free list has %d blocks, table has %d, counter %d", n, nfree, p.freeBlocks)
	}
	return nil
}
