package core

import "context"

// Sizes shared by every engine and by the batch pipeline
const (
	// ChallengeSize is the length of the challenge shared by all lanes of a batch
	ChallengeSize = 32

	// NonceSize is the length of one lane's nonce (little-endian u64)
	NonceSize = 8

	// DigestSize is the length of one lane's digest: 8 little-endian u16 indices
	DigestSize = 16

	// SolutionIndices is the number of hash space indices in one solution
	SolutionIndices = DigestSize / 2

	// IndexSpace is the number of 64-bit words in one lane's hash space
	IndexSpace = 1 << 16
)

// HashingContext is a per-lane hash program bound to a challenge.
// Implementations are owned by a single lane and are never shared.
type HashingContext interface {
	// GenerateHashSpace fills out (exactly IndexSpace words) for the given nonce
	GenerateHashSpace(nonce []byte, out []uint64) error

	// Release frees the context; it is called exactly once by the pool
	Release()
}

// SolvingContext holds the solver's scratch memory for a single lane.
type SolvingContext interface {
	// Solve searches hashSpace and writes the outcome into digest (DigestSize bytes).
	// When no solution exists the digest is left as the all-zero value.
	Solve(hashSpace []uint64, digest []byte) error

	// Release frees the scratch memory
	Release()
}

// Engine builds per-lane contexts. It is the port between the pipeline and
// the hash program / solver implementations.
type Engine interface {
	// Name returns the human-readable name of the engine
	Name() string

	// NewHashingContext compiles a hash program for challenge
	NewHashingContext(challenge []byte) (HashingContext, error)

	// NewSolvingContext allocates solver working memory
	NewSolvingContext() (SolvingContext, error)

	// Capabilities describes the engine
	Capabilities() *Capabilities
}

// BatchHasher is the entry point implemented by the local orchestrator and
// by remote clients.
type BatchHasher interface {
	// ComputeBatch returns batchSize*DigestSize bytes of digests, or an error
	// and no digests at all
	ComputeBatch(ctx context.Context, challenge, nonces []byte, batchSize int32) ([]byte, error)
}

// Capabilities describes an engine or a backend
type Capabilities struct {
	// Name of the engine
	Name string `json:"name"`

	// Words per lane hash space
	IndexSpace int `json:"index_space"`

	// Bytes per lane digest
	DigestSize int `json:"digest_size"`

	// Solver scratch heap entries per tier
	HeapSize int `json:"heap_size"`

	// Maximum lanes accepted in one batch (0 = unlimited)
	MaxBatchSize int `json:"max_batch_size"`

	// Whether lanes run on dedicated accelerator hardware
	IsHardware bool `json:"is_hardware"`

	// Reason for unavailability (if applicable)
	Reason string `json:"reason,omitempty"`
}

// SolveStats describes the last Solve call of a solving context
type SolveStats struct {
	// Valid solutions found (the digest carries the first one)
	Solutions int `json:"solutions"`

	// Whether the scratch heap ran out of room and entries were dropped
	HeapOverflow bool `json:"heap_overflow"`
}

// SolveReporter is optionally implemented by solving contexts that expose
// per-lane statistics
type SolveReporter interface {
	LastSolveStats() SolveStats
}
