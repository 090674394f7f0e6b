package pipeline

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"drillx/pkg/hashing/core"
)

var errSolverFault = errors.New("solver scratch corrupted")

// fakeEngine derives a lane's hash space and digest directly from its
// challenge and nonce, which makes lane results easy to predict
type fakeEngine struct {
	live    atomic.Int64
	created atomic.Int64

	failAt     int64 // lane whose hashing context fails to build, -1 for none
	panicNonce *uint64
	failSolve  bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{failAt: -1}
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) NewHashingContext(challenge []byte) (core.HashingContext, error) {
	lane := e.created.Add(1) - 1
	if lane == e.failAt {
		return nil, fmt.Errorf("out of device memory")
	}
	e.live.Add(1)
	return &fakeHashing{engine: e, seed: binary.LittleEndian.Uint64(challenge)}, nil
}

func (e *fakeEngine) NewSolvingContext() (core.SolvingContext, error) {
	e.live.Add(1)
	return &fakeSolving{engine: e}, nil
}

func (e *fakeEngine) Capabilities() *core.Capabilities {
	return &core.Capabilities{Name: "fake", IndexSpace: core.IndexSpace, DigestSize: core.DigestSize}
}

type fakeHashing struct {
	engine *fakeEngine
	seed   uint64
}

func (h *fakeHashing) GenerateHashSpace(nonce []byte, out []uint64) error {
	if len(out) != core.IndexSpace {
		return fmt.Errorf("hash space has %d words", len(out))
	}
	n := binary.LittleEndian.Uint64(nonce)
	if p := h.engine.panicNonce; p != nil && *p == n {
		panic("poisoned nonce")
	}
	base := fakeWord(h.seed, n)
	for i := range out {
		out[i] = base + uint64(i)
	}
	return nil
}

func (h *fakeHashing) Release() { h.engine.live.Add(-1) }

type fakeSolving struct {
	engine *fakeEngine
}

func (s *fakeSolving) Solve(hs []uint64, digest []byte) error {
	if s.engine.failSolve {
		return errSolverFault
	}
	fakeSolve(hs[0], digest)
	return nil
}

func (s *fakeSolving) Release() { s.engine.live.Add(-1) }

func fakeWord(seed, nonce uint64) uint64 {
	return (seed ^ nonce) * 0x9E3779B97F4A7C15
}

// fakeSolve leaves every fourth class of hash space without a solution
func fakeSolve(first uint64, digest []byte) {
	if first%4 == 0 {
		return
	}
	binary.LittleEndian.PutUint64(digest[0:8], first)
	binary.LittleEndian.PutUint64(digest[8:16], first+core.IndexSpace-1)
}

// expectedDigest is the digest a fake lane must produce for nonce
func expectedDigest(challenge []byte, nonce uint64) []byte {
	d := make([]byte, core.DigestSize)
	fakeSolve(fakeWord(binary.LittleEndian.Uint64(challenge), nonce), d)
	return d
}

func testChallenge() []byte {
	c := make([]byte, core.ChallengeSize)
	for i := range c {
		c[i] = byte(i*7 + 3)
	}
	return c
}
