package memory

// Handle refers to one allocated block. It is valid from Alloc until the
// Free that drops the last reference, or until the pool is closed.
type Handle struct {
	pool     *Pool
	idx      int
	gen      uint32
	onFree   func(tag string, data []byte)
	released bool
}

// SetFreeCallback installs fn to run, outside the pool lock, just before the
// block is returned to the free list.
func (h *Handle) SetFreeCallback(fn func(tag string, data []byte)) {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	h.onFree = fn
}

// Bytes returns the block's slice of the arena, or nil for an invalid handle.
// The slice must not be used after the block is freed.
func (h *Handle) Bytes() []byte {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.validate(h)
	if err != nil {
		return nil
	}
	b := p.blocks[idx]
	return p.arena[b.offset : b.offset+b.size : b.offset+b.size]
}

// Size is the rounded block size, or 0 for an invalid handle.
func (h *Handle) Size() int {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.validate(h)
	if err != nil {
		return 0
	}
	return p.blocks[idx].size
}

// Offset is the block's position within the arena, or -1 for an invalid handle.
func (h *Handle) Offset() int {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.validate(h)
	if err != nil {
		return -1
	}
	return p.blocks[idx].offset
}

func (h *Handle) Tag() string {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.validate(h)
	if err != nil {
		return ""
	}
	return p.blocks[idx].tag
}

// RefCount is 0 once the handle is invalid.
func (h *Handle) RefCount() int {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	idx, err := p.validate(h)
	if err != nil {
		return 0
	}
	return int(p.blocks[idx].refs)
}

func (h *Handle) Valid() bool {
	p := h.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.validate(h)
	return err == nil
}

// Free is shorthand for h's pool Free.
func (h *Handle) Free() error { return h.pool.Free(h) }
