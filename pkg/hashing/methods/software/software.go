package software

import (
	"fmt"
	"sync"

	"drillx/pkg/hashing/core"
)

// SoftwareEngine implements core.Engine with the pure Go hash program and
// tiered sum solver
type SoftwareEngine struct {
	heapSize int
	mutex    sync.RWMutex
	caps     *core.Capabilities
}

// Option configures a SoftwareEngine
type Option func(*SoftwareEngine)

// WithHeapSize sets the number of entries per solver heap tier
func WithHeapSize(n int) Option {
	return func(e *SoftwareEngine) {
		if n > 0 {
			e.heapSize = n
		}
	}
}

// NewSoftwareEngine creates a new software engine
func NewSoftwareEngine(opts ...Option) *SoftwareEngine {
	e := &SoftwareEngine{heapSize: DefaultHeapSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the human-readable name of the engine
func (e *SoftwareEngine) Name() string {
	return "software"
}

// NewHashingContext compiles a hash program bound to challenge
func (e *SoftwareEngine) NewHashingContext(challenge []byte) (core.HashingContext, error) {
	return newHashingContext(challenge)
}

// NewSolvingContext allocates a solver heap
func (e *SoftwareEngine) NewSolvingContext() (core.SolvingContext, error) {
	if e.heapSize <= 0 {
		return nil, fmt.Errorf("invalid heap size %d", e.heapSize)
	}
	return &SolvingContext{heap: newSolverHeap(e.heapSize)}, nil
}

// HeapBytes estimates the scratch memory of one solving context
func (e *SoftwareEngine) HeapBytes() int {
	const pairBytes, quadBytes, idBytes = 16, 16, 4
	fixed := (2*bucketCount+1)*4 + core.IndexSpace*2
	return fixed + e.heapSize*(pairBytes+quadBytes+2*idBytes)
}

// Capabilities returns the engine description
func (e *SoftwareEngine) Capabilities() *core.Capabilities {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.caps == nil {
		e.caps = &core.Capabilities{
			Name:       e.Name(),
			IndexSpace: core.IndexSpace,
			DigestSize: core.DigestSize,
			HeapSize:   e.heapSize,
			IsHardware: false,
		}
	}
	return e.caps
}

// Verify reports whether s is a valid solution for (challenge, nonce)
func Verify(challenge, nonce []byte, s core.Solution) bool {
	hc, err := newHashingContext(challenge)
	if err != nil {
		return false
	}
	p, err := hc.compile(nonce)
	if err != nil {
		return false
	}
	return checkSolution(s, func(i uint16) uint64 { return p.eval(uint64(i)) })
}

// VerifyDigest decodes digest and verifies it. The empty digest never verifies.
func VerifyDigest(challenge, nonce, digest []byte) bool {
	s, err := core.DecodeDigest(digest)
	if err != nil || s.IsEmpty() {
		return false
	}
	return Verify(challenge, nonce, s)
}
