package pipeline

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drillx/pkg/hashing/core"
)

func TestLaunchVisitsEveryLaneOnce(t *testing.T) {
	for _, cfg := range []LaunchConfig{
		{BlockSize: 1, Workers: 1},
		{BlockSize: 7, Workers: 4},
		{BlockSize: 32, Workers: 16},
		{BlockSize: 200, Workers: 2},
	} {
		l := NewLauncher(cfg, nil)
		const n = 101
		var hits [n]atomic.Int32

		require.NoError(t, l.Launch("test", n, func(lane int) error {
			hits[lane].Add(1)
			return nil
		}))
		for lane := range hits {
			assert.Equal(t, int32(1), hits[lane].Load(), "lane %d with %+v", lane, cfg)
		}
	}
}

func TestLaunchDefaults(t *testing.T) {
	l := NewLauncher(LaunchConfig{}, nil)
	assert.Equal(t, DefaultLaunchConfig(), l.Config())
}

func TestLaunchRejectsEmptyGrid(t *testing.T) {
	l := NewLauncher(DefaultLaunchConfig(), nil)
	for _, n := range []int{0, -1} {
		err := l.Launch("test", n, func(int) error { return nil })
		assert.True(t, core.IsConfigError(err), "n=%d", n)
	}
}

func TestLaunchRecoversPanics(t *testing.T) {
	l := NewLauncher(LaunchConfig{BlockSize: 2, Workers: 2}, nil)
	err := l.Launch("test", 10, func(lane int) error {
		if lane == 6 {
			panic("bad lane")
		}
		return nil
	})

	require.Error(t, err)
	var he *core.HashError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, core.ErrorComputeFault, he.Type)
	assert.Equal(t, 6, he.Lane)
	assert.Contains(t, err.Error(), "bad lane")
}

func TestLaunchWrapsKernelErrors(t *testing.T) {
	cause := errors.New("kernel failed")
	l := NewLauncher(LaunchConfig{BlockSize: 4, Workers: 1}, nil)

	err := l.Launch("test", 8, func(lane int) error {
		if lane == 2 {
			return cause
		}
		return nil
	})
	assert.True(t, core.IsComputeFault(err))
	assert.ErrorIs(t, err, cause)
}

func TestLaunchFollowsSchedule(t *testing.T) {
	l := NewLauncher(LaunchConfig{BlockSize: 16, Workers: 1}, reverseSchedule)

	var order []int
	require.NoError(t, l.Launch("test", 5, func(lane int) error {
		order = append(order, lane)
		return nil
	}))
	assert.Equal(t, []int{4, 3, 2, 1, 0}, order)
}

func TestLaunchRejectsBadSchedule(t *testing.T) {
	schedules := map[string]Schedule{
		"short":     func(n int) []int { return make([]int, n-1) },
		"duplicate": func(n int) []int { return make([]int, n) },
		"out of range": func(n int) []int {
			order := reverseSchedule(n)
			order[0] = n
			return order
		},
	}

	for name, s := range schedules {
		s := s
		t.Run(name, func(t *testing.T) {
			ran := false
			err := NewLauncher(DefaultLaunchConfig(), s).Launch("test", 4, func(int) error {
				ran = true
				return nil
			})
			assert.True(t, core.IsConfigError(err))
			assert.False(t, ran)
		})
	}
}
