package software

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drillx/pkg/hashing/core"
)

func testChallenge() []byte {
	challenge := make([]byte, core.ChallengeSize)
	for i := range challenge {
		challenge[i] = 155
	}
	return challenge
}

// plantedHashSpace returns a hash space whose only solution is indices 1..8
func plantedHashSpace() []uint64 {
	hs := make([]uint64, core.IndexSpace)
	for i := range hs {
		hs[i] = 1
	}
	hs[1] = 5
	hs[2] = 1<<15 - 5
	hs[3] = 7
	hs[4] = (1<<15-1)<<15 - 7
	hs[5] = 9
	hs[6] = ^uint64(8)
	hs[7] = 11
	hs[8] = (1<<30-1)<<30 - 11
	return hs
}

func TestGenerateHashSpaceDeterministic(t *testing.T) {
	engine := NewSoftwareEngine()
	nonce := core.NonceBytes(42)

	hc1, err := engine.NewHashingContext(testChallenge())
	require.NoError(t, err)
	hc2, err := engine.NewHashingContext(testChallenge())
	require.NoError(t, err)

	a := make([]uint64, core.IndexSpace)
	b := make([]uint64, core.IndexSpace)
	require.NoError(t, hc1.GenerateHashSpace(nonce[:], a))
	require.NoError(t, hc2.GenerateHashSpace(nonce[:], b))
	assert.Equal(t, a, b)

	other := core.NonceBytes(43)
	require.NoError(t, hc2.GenerateHashSpace(other[:], b))
	assert.NotEqual(t, a, b)
}

func TestGenerateHashSpaceRejectsBadInput(t *testing.T) {
	engine := NewSoftwareEngine()

	_, err := engine.NewHashingContext(make([]byte, 31))
	assert.Error(t, err)

	hc, err := engine.NewHashingContext(testChallenge())
	require.NoError(t, err)

	out := make([]uint64, core.IndexSpace)
	assert.Error(t, hc.GenerateHashSpace(make([]byte, 4), out))

	nonce := core.NonceBytes(1)
	assert.Error(t, hc.GenerateHashSpace(nonce[:], out[:10]))
}

func TestCheckSolutionPlanted(t *testing.T) {
	hs := plantedHashSpace()
	word := func(i uint16) uint64 { return hs[i] }

	assert.True(t, checkSolution(core.Solution{1, 2, 3, 4, 5, 6, 7, 8}, word))

	// non-canonical order of the same indices
	assert.False(t, checkSolution(core.Solution{2, 1, 3, 4, 5, 6, 7, 8}, word))
	assert.False(t, checkSolution(core.Solution{5, 6, 7, 8, 1, 2, 3, 4}, word))

	// wrong indices
	assert.False(t, checkSolution(core.Solution{1, 2, 3, 4, 5, 6, 7, 9}, word))
}

func TestCanonicalize(t *testing.T) {
	s := canonicalize(core.Solution{8, 7, 6, 5, 4, 3, 2, 1})
	assert.Equal(t, core.Solution{1, 2, 3, 4, 5, 6, 7, 8}, s)
	assert.True(t, isCanonical(s))
}

func TestSolveFindsPlantedSolution(t *testing.T) {
	engine := NewSoftwareEngine()
	sc, err := engine.NewSolvingContext()
	require.NoError(t, err)
	defer sc.Release()

	digest := make([]byte, core.DigestSize)
	require.NoError(t, sc.Solve(plantedHashSpace(), digest))

	s, err := core.DecodeDigest(digest)
	require.NoError(t, err)
	assert.Equal(t, core.Solution{1, 2, 3, 4, 5, 6, 7, 8}, s)

	stats := sc.(core.SolveReporter).LastSolveStats()
	assert.Equal(t, 1, stats.Solutions)
	assert.False(t, stats.HeapOverflow)
}

func TestSolveHeapOverflowYieldsEmptyDigest(t *testing.T) {
	engine := NewSoftwareEngine(WithHeapSize(2))
	sc, err := engine.NewSolvingContext()
	require.NoError(t, err)

	digest := make([]byte, core.DigestSize)
	for i := range digest {
		digest[i] = 0xff
	}
	require.NoError(t, sc.Solve(plantedHashSpace(), digest))

	assert.Equal(t, make([]byte, core.DigestSize), digest)
	stats := sc.(core.SolveReporter).LastSolveStats()
	assert.True(t, stats.HeapOverflow)
	assert.Equal(t, 0, stats.Solutions)
}

func TestSolveAfterReleaseFails(t *testing.T) {
	sc, err := NewSoftwareEngine().NewSolvingContext()
	require.NoError(t, err)
	sc.Release()

	assert.Error(t, sc.Solve(plantedHashSpace(), make([]byte, core.DigestSize)))
}

func TestSolutionsVerify(t *testing.T) {
	engine := NewSoftwareEngine()
	challenge := testChallenge()

	hc, err := engine.NewHashingContext(challenge)
	require.NoError(t, err)
	sc, err := engine.NewSolvingContext()
	require.NoError(t, err)

	hs := make([]uint64, core.IndexSpace)
	digest := make([]byte, core.DigestSize)
	solved := 0

	for n := uint64(0); n < 16; n++ {
		nonce := core.NonceBytes(n)
		require.NoError(t, hc.GenerateHashSpace(nonce[:], hs))
		require.NoError(t, sc.Solve(hs, digest))

		s, err := core.DecodeDigest(digest)
		require.NoError(t, err)
		if s.IsEmpty() {
			continue
		}
		solved++
		assert.True(t, VerifyDigest(challenge, nonce[:], digest), "nonce %d", n)

		other := core.NonceBytes(n + 1000)
		assert.False(t, Verify(challenge, other[:], s), "nonce %d verified under a different nonce", n)
	}

	assert.Greater(t, solved, 0, "expected at least one nonce in 16 to have a solution")
}

func TestVerifyDigestRejectsEmpty(t *testing.T) {
	nonce := core.NonceBytes(7)
	assert.False(t, VerifyDigest(testChallenge(), nonce[:], make([]byte, core.DigestSize)))
	assert.False(t, VerifyDigest(testChallenge(), nonce[:], make([]byte, 3)))
}

func TestCapabilities(t *testing.T) {
	engine := NewSoftwareEngine(WithHeapSize(1024))
	caps := engine.Capabilities()

	assert.Equal(t, "software", caps.Name)
	assert.Equal(t, core.IndexSpace, caps.IndexSpace)
	assert.Equal(t, core.DigestSize, caps.DigestSize)
	assert.Equal(t, 1024, caps.HeapSize)
	assert.Greater(t, engine.HeapBytes(), 0)
}
