// Package memory implements a bounded arena allocator used for model weights
// and per-instance scratch memory.
//
// A Pool owns (or borrows) one contiguous arena and subdivides it into blocks.
// Block records live in an index-based table; each record is linked to its
// address neighbours (for coalescing) and, while free, to the free list (for
// placement scans). Allocation returns a *Handle, an indirection that stays
// stable while the pool splits and merges the blocks around it.
//
// Running out of arena space is a normal outcome: Alloc returns an error for
// which IsOutOfMemory reports true and the caller decides what to evict.
package memory
