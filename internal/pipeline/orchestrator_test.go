package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drillx/pkg/hashing/core"
	"drillx/pkg/hashing/methods/software"
)

func testLaunch() LaunchConfig {
	return LaunchConfig{BlockSize: 4, Workers: 3}
}

func reverseSchedule(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = n - 1 - i
	}
	return order
}

func TestComputeBatchMatchesPerLaneResults(t *testing.T) {
	engine := newFakeEngine()
	o := NewOrchestrator(engine, WithLaunchConfig(testLaunch()))
	challenge := testChallenge()

	const n = 21
	digests, err := o.ComputeBatch(context.Background(), challenge, NoncesFrom(1000, n), n)
	require.NoError(t, err)
	require.Len(t, digests, n*core.DigestSize)

	for lane := 0; lane < n; lane++ {
		got := digests[lane*core.DigestSize : (lane+1)*core.DigestSize]
		assert.Equal(t, expectedDigest(challenge, 1000+uint64(lane)), got, "lane %d", lane)
	}
	assert.Equal(t, int64(0), engine.live.Load())
}

func TestComputeBatchLaneIsolation(t *testing.T) {
	o := NewOrchestrator(newFakeEngine(), WithLaunchConfig(testLaunch()))
	challenge := testChallenge()
	ctx := context.Background()

	const n = 9
	nonces := NoncesFrom(77, n)
	batch, err := o.ComputeBatch(ctx, challenge, nonces, n)
	require.NoError(t, err)

	for lane := 0; lane < n; lane++ {
		single, err := o.ComputeBatch(ctx, challenge, nonces[lane*core.NonceSize:(lane+1)*core.NonceSize], 1)
		require.NoError(t, err)
		assert.Equal(t, single, batch[lane*core.DigestSize:(lane+1)*core.DigestSize], "lane %d", lane)
	}
}

func TestComputeBatchScheduleIndependent(t *testing.T) {
	challenge := testChallenge()
	nonces := NoncesFrom(5, 33)

	inOrder := NewOrchestrator(newFakeEngine(), WithLaunchConfig(testLaunch()))
	reversed := NewOrchestrator(newFakeEngine(),
		WithLaunchConfig(LaunchConfig{BlockSize: 1, Workers: 7}),
		WithSchedule(reverseSchedule))

	a, err := inOrder.ComputeBatch(context.Background(), challenge, nonces, 33)
	require.NoError(t, err)
	b, err := reversed.ComputeBatch(context.Background(), challenge, nonces, 33)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeBatchDeterministic(t *testing.T) {
	o := NewOrchestrator(newFakeEngine())
	nonces := NoncesFrom(0, 16)

	a, err := o.ComputeBatch(context.Background(), testChallenge(), nonces, 16)
	require.NoError(t, err)
	b, err := o.ComputeBatch(context.Background(), testChallenge(), nonces, 16)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeBatchOutputSize(t *testing.T) {
	o := NewOrchestrator(newFakeEngine(), WithLaunchConfig(testLaunch()))

	for _, n := range []int32{1, 2, 7, 32, 100} {
		digests, err := o.ComputeBatch(context.Background(), testChallenge(), NoncesFrom(0, int(n)), n)
		require.NoError(t, err, "batch %d", n)
		assert.Len(t, digests, int(n)*core.DigestSize, "batch %d", n)
	}
}

func TestComputeBatchRejectsBadShape(t *testing.T) {
	tests := []struct {
		name      string
		challenge []byte
		nonces    []byte
		batchSize int32
		check     func(error) bool
	}{
		{"zero batch", testChallenge(), nil, 0, core.IsConfigError},
		{"negative batch", testChallenge(), nil, -3, core.IsConfigError},
		{"over maximum", testChallenge(), NoncesFrom(0, 65), 65, core.IsConfigError},
		{"short challenge", make([]byte, 31), NoncesFrom(0, 2), 2, core.IsConfigError},
		{"short nonce buffer", testChallenge(), make([]byte, 15), 2, core.IsInvalidNonceError},
		{"long nonce buffer", testChallenge(), make([]byte, 17), 2, core.IsInvalidNonceError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			engine := newFakeEngine()
			o := NewOrchestrator(engine, WithMaxBatchSize(64))

			digests, err := o.ComputeBatch(context.Background(), tt.challenge, tt.nonces, tt.batchSize)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
			assert.Nil(t, digests)
			assert.Equal(t, int64(0), engine.created.Load(), "no context may be built for a rejected batch")
		})
	}
}

func TestComputeBatchInvalidNonceIsConfigClass(t *testing.T) {
	o := NewOrchestrator(newFakeEngine())
	_, err := o.ComputeBatch(context.Background(), testChallenge(), make([]byte, 8), 2)
	assert.True(t, core.IsInvalidNonceError(err))
	assert.True(t, core.IsConfigError(err))
}

func TestComputeBatchContextInitFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.failAt = 3
	o := NewOrchestrator(engine)

	digests, err := o.ComputeBatch(context.Background(), testChallenge(), NoncesFrom(0, 8), 8)
	require.Error(t, err)
	assert.Nil(t, digests)
	assert.True(t, core.IsContextInitError(err))

	var he *core.HashError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 3, he.Lane)
	assert.Equal(t, int64(0), engine.live.Load(), "contexts built before the failure must be released")
}

func TestComputeBatchComputeFault(t *testing.T) {
	engine := newFakeEngine()
	poison := uint64(105)
	engine.panicNonce = &poison
	o := NewOrchestrator(engine, WithLaunchConfig(testLaunch()))

	digests, err := o.ComputeBatch(context.Background(), testChallenge(), NoncesFrom(100, 12), 12)
	require.Error(t, err)
	assert.Nil(t, digests)
	assert.True(t, core.IsComputeFault(err))

	var he *core.HashError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, 5, he.Lane)
	assert.Equal(t, "stage0", he.Op)
	assert.Equal(t, int64(0), engine.live.Load())
}

func TestComputeBatchSolverFault(t *testing.T) {
	engine := newFakeEngine()
	engine.failSolve = true
	o := NewOrchestrator(engine)

	_, err := o.ComputeBatch(context.Background(), testChallenge(), NoncesFrom(0, 4), 4)
	require.Error(t, err)
	assert.True(t, core.IsComputeFault(err))
	assert.ErrorIs(t, err, errSolverFault)
	assert.Equal(t, int64(0), engine.live.Load())
}

func TestComputeBatchCancelledBeforeStart(t *testing.T) {
	engine := newFakeEngine()
	o := NewOrchestrator(engine)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.ComputeBatch(ctx, testChallenge(), NoncesFrom(0, 4), 4)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), engine.created.Load())
}

func TestComputeBatchReusesArenas(t *testing.T) {
	arenas := NewArenaPool(2)
	o := NewOrchestrator(newFakeEngine(), WithArenaPool(arenas))
	challenge := testChallenge()
	ctx := context.Background()

	_, err := o.ComputeBatch(ctx, challenge, NoncesFrom(0, 8), 8)
	require.NoError(t, err)

	// a smaller batch runs in the larger arena and must not see its stale lanes
	digests, err := o.ComputeBatch(ctx, challenge, NoncesFrom(500, 3), 3)
	require.NoError(t, err)
	require.Len(t, digests, 3*core.DigestSize)
	for lane := 0; lane < 3; lane++ {
		assert.Equal(t, expectedDigest(challenge, 500+uint64(lane)), digests[lane*core.DigestSize:(lane+1)*core.DigestSize])
	}

	stats := o.ArenaStats()
	assert.Equal(t, int64(1), stats.Allocations)
	assert.Equal(t, int64(1), stats.Reuses)
	assert.Equal(t, int64(0), stats.InUseBytes)
	assert.Equal(t, 1, stats.FreeArenas)
}

func TestRunReportsSolvedLanes(t *testing.T) {
	o := NewOrchestrator(newFakeEngine())
	challenge := testChallenge()

	const n = 40
	res, err := o.Run(context.Background(), challenge, NoncesFrom(0, n), n)
	require.NoError(t, err)

	solved := 0
	for lane := 0; lane < n; lane++ {
		s, err := core.DecodeDigest(expectedDigest(challenge, uint64(lane)))
		require.NoError(t, err)
		if !s.IsEmpty() {
			solved++
		}
	}
	assert.Equal(t, solved, res.Report.SolvedLanes)
	assert.Zero(t, res.Report.HeapOverflows)
}

func TestComputeBatchLogsAndCounts(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	o := NewOrchestrator(newFakeEngine(), WithLogger(logger))

	okBefore := testutil.ToFloat64(batchesTotal.WithLabelValues("fake", "ok"))
	failBefore := testutil.ToFloat64(batchesTotal.WithLabelValues("fake", "invalid_nonce"))

	_, err := o.ComputeBatch(context.Background(), testChallenge(), NoncesFrom(0, 2), 2)
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
	assert.Equal(t, "fake", hook.LastEntry().Data["engine"])

	_, err = o.ComputeBatch(context.Background(), testChallenge(), make([]byte, 3), 2)
	require.Error(t, err)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(batchesTotal.WithLabelValues("fake", "ok")))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(batchesTotal.WithLabelValues("fake", "invalid_nonce")))
}

func TestCapabilitiesCarriesBatchLimit(t *testing.T) {
	o := NewOrchestrator(newFakeEngine(), WithMaxBatchSize(256))
	caps := o.Capabilities()
	assert.Equal(t, "fake", caps.Name)
	assert.Equal(t, 256, caps.MaxBatchSize)
}

func TestComputeBatchSoftwareEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("software engine batch is slow")
	}

	engine := software.NewSoftwareEngine()
	o := NewOrchestrator(engine, WithLaunchConfig(LaunchConfig{BlockSize: 2, Workers: 4}))
	challenge := make([]byte, core.ChallengeSize)
	for i := range challenge {
		challenge[i] = 155
	}

	const n = 8
	nonces := NoncesFrom(0, n)
	digests, err := o.ComputeBatch(context.Background(), challenge, nonces, n)
	require.NoError(t, err)

	hc, err := engine.NewHashingContext(challenge)
	require.NoError(t, err)
	sc, err := engine.NewSolvingContext()
	require.NoError(t, err)
	defer sc.Release()

	hs := make([]uint64, core.IndexSpace)
	want := make([]byte, core.DigestSize)
	for lane := 0; lane < n; lane++ {
		nonce := nonces[lane*core.NonceSize : (lane+1)*core.NonceSize]
		got := digests[lane*core.DigestSize : (lane+1)*core.DigestSize]

		require.NoError(t, hc.GenerateHashSpace(nonce, hs))
		require.NoError(t, sc.Solve(hs, want))
		assert.Equal(t, want, got, "lane %d", lane)

		if s, _ := core.DecodeDigest(got); !s.IsEmpty() {
			assert.True(t, software.VerifyDigest(challenge, nonce, got), "lane %d", lane)
		}
	}

	best, err := BestOf(digests, nonces)
	require.NoError(t, err)
	if best.Found {
		assert.True(t, software.Verify(challenge, nonces[best.Lane*core.NonceSize:(best.Lane+1)*core.NonceSize], best.Solution))
	}
}
