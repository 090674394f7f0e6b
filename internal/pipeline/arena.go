package pipeline

import (
	"sync"

	"drillx/pkg/hashing/core"
)

// Arena holds every per-lane buffer of a batch in two contiguous regions.
// Lane slots are fixed-size and never alias.
type Arena struct {
	lanes     int
	hashSpace []uint64
	digests   []byte
}

func newArena(lanes int) *Arena {
	return &Arena{
		lanes:     lanes,
		hashSpace: make([]uint64, lanes*core.IndexSpace),
		digests:   make([]byte, lanes*core.DigestSize),
	}
}

// Lanes returns the number of lanes in the current batch
func (a *Arena) Lanes() int {
	return a.lanes
}

func (a *Arena) capacity() int {
	return len(a.hashSpace) / core.IndexSpace
}

func (a *Arena) bytes() int64 {
	return int64(len(a.hashSpace))*8 + int64(len(a.digests))
}

// HashSpace returns lane's hash space slot. The slot's capacity ends at
// its length so an append can never spill into the next lane.
func (a *Arena) HashSpace(lane int) []uint64 {
	off := lane * core.IndexSpace
	end := off + core.IndexSpace
	return a.hashSpace[off:end:end]
}

// Digest returns lane's digest slot
func (a *Arena) Digest(lane int) []byte {
	off := lane * core.DigestSize
	end := off + core.DigestSize
	return a.digests[off:end:end]
}

// Digests returns the digest region of the current batch
func (a *Arena) Digests() []byte {
	return a.digests[:a.lanes*core.DigestSize]
}

// ArenaStats reports arena pool usage
type ArenaStats struct {
	InUseBytes  int64 `json:"in_use_bytes"`
	PeakBytes   int64 `json:"peak_bytes"`
	Allocations int64 `json:"allocations"`
	Reuses      int64 `json:"reuses"`
	FreeArenas  int   `json:"free_arenas"`
}

// ArenaPool keeps released arenas for reuse by later batches
type ArenaPool struct {
	mu      sync.Mutex
	free    []*Arena
	maxFree int
	stats   ArenaStats
}

// NewArenaPool creates a pool retaining at most maxFree idle arenas
func NewArenaPool(maxFree int) *ArenaPool {
	if maxFree < 0 {
		maxFree = 0
	}
	return &ArenaPool{maxFree: maxFree}
}

// Get returns an arena sized for lanes, reusing a free one when it is
// large enough
func (p *ArenaPool) Get(lanes int) *Arena {
	p.mu.Lock()
	defer p.mu.Unlock()

	var arena *Arena
	for i, a := range p.free {
		if a.capacity() >= lanes {
			p.free = append(p.free[:i], p.free[i+1:]...)
			arena = a
			p.stats.Reuses++
			break
		}
	}
	if arena == nil {
		arena = newArena(lanes)
		p.stats.Allocations++
	}
	arena.lanes = lanes

	p.stats.InUseBytes += arena.bytes()
	if p.stats.InUseBytes > p.stats.PeakBytes {
		p.stats.PeakBytes = p.stats.InUseBytes
	}
	return arena
}

// Put returns an arena to the pool
func (p *ArenaPool) Put(a *Arena) {
	if a == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.InUseBytes -= a.bytes()
	if len(p.free) < p.maxFree {
		p.free = append(p.free, a)
	}
}

// Stats returns a snapshot of pool usage
func (p *ArenaPool) Stats() ArenaStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.FreeArenas = len(p.free)
	return s
}
