package software

import (
	"fmt"
	"sort"

	"drillx/pkg/hashing/core"
)

// Tiered sum constraint: eight words whose pairwise, quad and final sums
// cancel in 15, 15 and 30 bits respectively.
const (
	tier1Bits = 15
	tier2Bits = 15
	tier3Bits = 30

	tier1Mask = 1<<tier1Bits - 1
	tier2Mask = 1<<tier2Bits - 1
	tier3Mask = 1<<tier3Bits - 1

	bucketCount  = 1 << tier1Bits
	maxSolutions = 8

	// DefaultHeapSize is the number of pair and quad entries in the scratch heap
	DefaultHeapSize = 1 << 17
)

type pairEntry struct {
	a, b uint16
	sum  uint64
}

type quadEntry struct {
	a, b uint32
	sum  uint64
}

// solverHeap is the working memory of one lane. Lists never grow past
// their capacity; entries beyond it are dropped and the overflow flag set.
type solverHeap struct {
	counts  []uint32
	cursor  []uint32
	indices []uint16
	pairs   []pairEntry
	pairIDs []uint32
	quads   []quadEntry
	quadIDs []uint32

	overflow bool
}

func newSolverHeap(size int) *solverHeap {
	return &solverHeap{
		counts:  make([]uint32, bucketCount+1),
		cursor:  make([]uint32, bucketCount),
		indices: make([]uint16, core.IndexSpace),
		pairs:   make([]pairEntry, 0, size),
		pairIDs: make([]uint32, size),
		quads:   make([]quadEntry, 0, size),
		quadIDs: make([]uint32, size),
	}
}

// group performs a counting sort of n items into bucketCount buckets.
// Afterwards bucket b spans positions counts[b]..counts[b+1].
func (hp *solverHeap) group(n int, key func(int) uint32, place func(pos uint32, item int)) {
	for i := range hp.counts {
		hp.counts[i] = 0
	}
	for i := 0; i < n; i++ {
		hp.counts[key(i)+1]++
	}
	for b := 1; b < len(hp.counts); b++ {
		hp.counts[b] += hp.counts[b-1]
	}
	copy(hp.cursor, hp.counts[:bucketCount])
	for i := 0; i < n; i++ {
		b := key(i)
		place(hp.cursor[b], i)
		hp.cursor[b]++
	}
}

// matchBuckets calls visit for every pair of grouped positions whose
// bucket keys sum to zero modulo bucketCount.
func (hp *solverHeap) matchBuckets(visit func(x, y uint32)) {
	for b := uint32(0); b <= bucketCount/2; b++ {
		p := (bucketCount - b) & (bucketCount - 1)
		lo, hi := hp.counts[b], hp.counts[b+1]
		if b == p {
			for x := lo; x < hi; x++ {
				for y := x + 1; y < hi; y++ {
					visit(x, y)
				}
			}
			continue
		}
		plo, phi := hp.counts[p], hp.counts[p+1]
		for x := lo; x < hi; x++ {
			for y := plo; y < phi; y++ {
				visit(x, y)
			}
		}
	}
}

func (hp *solverHeap) addPair(hs []uint64, i, j uint16) {
	if len(hp.pairs) == cap(hp.pairs) {
		hp.overflow = true
		return
	}
	if i > j {
		i, j = j, i
	}
	hp.pairs = append(hp.pairs, pairEntry{a: i, b: j, sum: (hs[i] + hs[j]) >> tier1Bits})
}

func (hp *solverHeap) addQuad(x, y uint32) {
	pa, pb := hp.pairs[x], hp.pairs[y]
	if pa.a == pb.a || pa.a == pb.b || pa.b == pb.a || pa.b == pb.b {
		return
	}
	if len(hp.quads) == cap(hp.quads) {
		hp.overflow = true
		return
	}
	hp.quads = append(hp.quads, quadEntry{a: x, b: y, sum: (pa.sum + pb.sum) >> tier2Bits})
}

func (hp *solverHeap) expand(qa, qb uint32) core.Solution {
	a, b := hp.quads[qa], hp.quads[qb]
	p0, p1, p2, p3 := hp.pairs[a.a], hp.pairs[a.b], hp.pairs[b.a], hp.pairs[b.b]
	return core.Solution{p0.a, p0.b, p1.a, p1.b, p2.a, p2.b, p3.a, p3.b}
}

// solve runs the three tiers over hs and returns the canonical solutions
// found, at most maxSolutions.
func (hp *solverHeap) solve(hs []uint64) []core.Solution {
	hp.overflow = false
	hp.pairs = hp.pairs[:0]
	hp.quads = hp.quads[:0]

	// Tier 1: index pairs
	hp.group(len(hs), func(i int) uint32 {
		return uint32(hs[i] & tier1Mask)
	}, func(pos uint32, i int) {
		hp.indices[pos] = uint16(i)
	})
	hp.matchBuckets(func(x, y uint32) {
		hp.addPair(hs, hp.indices[x], hp.indices[y])
	})

	// Tier 2: pairs of pairs
	hp.group(len(hp.pairs), func(i int) uint32 {
		return uint32(hp.pairs[i].sum & tier2Mask)
	}, func(pos uint32, i int) {
		hp.pairIDs[pos] = uint32(i)
	})
	hp.matchBuckets(func(x, y uint32) {
		hp.addQuad(hp.pairIDs[x], hp.pairIDs[y])
	})

	// Tier 3: pairs of quads, matched through a sorted key index
	ids := hp.quadIDs[:len(hp.quads)]
	for i := range ids {
		ids[i] = uint32(i)
	}
	key := func(id uint32) uint64 { return hp.quads[id].sum & tier3Mask }
	sort.Slice(ids, func(i, j int) bool {
		ki, kj := key(ids[i]), key(ids[j])
		if ki != kj {
			return ki < kj
		}
		return ids[i] < ids[j]
	})

	var found []core.Solution
	for x := 0; x < len(ids) && len(found) < maxSolutions; x++ {
		k := key(ids[x])
		partner := (tier3Mask + 1 - k) & tier3Mask
		if partner < k {
			continue
		}
		start := sort.Search(len(ids), func(i int) bool { return key(ids[i]) >= partner })
		if partner == k {
			start = x + 1
		}
		for y := start; y < len(ids) && key(ids[y]) == partner && len(found) < maxSolutions; y++ {
			s := hp.expand(ids[x], ids[y])
			if !distinct(s) {
				continue
			}
			s = canonicalize(s)
			if checkSolution(s, func(i uint16) uint64 { return hs[i] }) {
				found = append(found, s)
			}
		}
	}
	return found
}

func distinct(s core.Solution) bool {
	for i := 0; i < len(s); i++ {
		for j := i + 1; j < len(s); j++ {
			if s[i] == s[j] {
				return false
			}
		}
	}
	return true
}

// canonicalize orders every tree node so the subtree with the smaller
// first index is on the left
func canonicalize(s core.Solution) core.Solution {
	for k := 0; k < len(s); k += 2 {
		if s[k] > s[k+1] {
			s[k], s[k+1] = s[k+1], s[k]
		}
	}
	for k := 0; k < len(s); k += 4 {
		if s[k] > s[k+2] {
			s[k], s[k+1], s[k+2], s[k+3] = s[k+2], s[k+3], s[k], s[k+1]
		}
	}
	if s[0] > s[4] {
		s[0], s[1], s[2], s[3], s[4], s[5], s[6], s[7] = s[4], s[5], s[6], s[7], s[0], s[1], s[2], s[3]
	}
	return s
}

func isCanonical(s core.Solution) bool {
	return s[0] < s[1] && s[2] < s[3] && s[4] < s[5] && s[6] < s[7] &&
		s[0] < s[2] && s[4] < s[6] && s[0] < s[4]
}

// checkSolution validates ordering, distinctness and the tiered sums
func checkSolution(s core.Solution, word func(uint16) uint64) bool {
	if !isCanonical(s) || !distinct(s) {
		return false
	}

	var pairs [4]uint64
	for k := range pairs {
		sum := word(s[2*k]) + word(s[2*k+1])
		if sum&tier1Mask != 0 {
			return false
		}
		pairs[k] = sum >> tier1Bits
	}

	var quads [2]uint64
	for k := range quads {
		sum := pairs[2*k] + pairs[2*k+1]
		if sum&tier2Mask != 0 {
			return false
		}
		quads[k] = sum >> tier2Bits
	}

	return (quads[0]+quads[1])&tier3Mask == 0
}

// SolvingContext owns one lane's solver heap
type SolvingContext struct {
	heap  *solverHeap
	stats core.SolveStats
}

// Solve writes the first solution over hashSpace into digest, or zeroes
// when none was found
func (sc *SolvingContext) Solve(hashSpace []uint64, digest []byte) error {
	if sc.heap == nil {
		return fmt.Errorf("solving context released")
	}
	if len(hashSpace) != core.IndexSpace {
		return fmt.Errorf("hash space must hold %d words, got %d", core.IndexSpace, len(hashSpace))
	}
	if len(digest) != core.DigestSize {
		return fmt.Errorf("digest must be exactly %d bytes, got %d", core.DigestSize, len(digest))
	}

	for i := range digest {
		digest[i] = 0
	}

	solutions := sc.heap.solve(hashSpace)
	sc.stats = core.SolveStats{Solutions: len(solutions), HeapOverflow: sc.heap.overflow}
	if len(solutions) > 0 {
		solutions[0].PutDigest(digest)
	}
	return nil
}

// LastSolveStats reports the outcome of the previous Solve
func (sc *SolvingContext) LastSolveStats() core.SolveStats {
	return sc.stats
}

// Release drops the heap
func (sc *SolvingContext) Release() {
	sc.heap = nil
}
