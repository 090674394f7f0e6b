package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"drillx/pkg/hashing/core"
)

// LaunchConfig is the kernel launch shape: lanes are grouped into blocks of
// BlockSize and the grid of blocks is spread over Workers goroutines.
type LaunchConfig struct {
	BlockSize int `yaml:"block_size" json:"block_size"`
	Workers   int `yaml:"workers" json:"workers"`
}

// DefaultLaunchConfig returns one worker per logical CPU
func DefaultLaunchConfig() LaunchConfig {
	return LaunchConfig{
		BlockSize: 32,
		Workers:   runtime.NumCPU(),
	}
}

// Schedule maps a physical execution position to a logical lane. It must
// return a permutation of [0, n).
type Schedule func(n int) []int

// Launcher runs a per-lane kernel over a whole batch
type Launcher struct {
	cfg      LaunchConfig
	schedule Schedule
}

// NewLauncher creates a launcher; non-positive fields fall back to defaults
func NewLauncher(cfg LaunchConfig, schedule Schedule) *Launcher {
	def := DefaultLaunchConfig()
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &Launcher{cfg: cfg, schedule: schedule}
}

// Config returns the effective launch shape
func (l *Launcher) Config() LaunchConfig {
	return l.cfg
}

func (l *Launcher) order(op string, n int) ([]int, error) {
	if l.schedule == nil {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		return order, nil
	}

	order := l.schedule(n)
	if len(order) != n {
		return nil, core.NewConfigError(op, "schedule returned %d lanes for a batch of %d", len(order), n)
	}
	seen := make([]bool, n)
	for _, lane := range order {
		if lane < 0 || lane >= n || seen[lane] {
			return nil, core.NewConfigError(op, "schedule is not a permutation of the batch")
		}
		seen[lane] = true
	}
	return order, nil
}

// Launch runs kernel once for every lane in [0, n) and returns when all
// lanes have finished. The first lane error or panic becomes a ComputeFault;
// remaining blocks are skipped once a fault is seen. Launch cannot be
// cancelled from outside.
func (l *Launcher) Launch(op string, n int, kernel func(lane int) error) error {
	if n <= 0 {
		return core.NewConfigError(op, "batch size must be positive, got %d", n)
	}
	order, err := l.order(op, n)
	if err != nil {
		return err
	}

	blockSize := l.cfg.BlockSize
	grid := (n + blockSize - 1) / blockSize
	workers := l.cfg.Workers
	if grid < workers {
		workers = grid
	}
	blocksPerWorker := (grid + workers - 1) / workers

	g, gctx := errgroup.WithContext(context.Background())
	for w := 0; w < workers; w++ {
		startBlock := w * blocksPerWorker
		endBlock := startBlock + blocksPerWorker
		if endBlock > grid {
			endBlock = grid
		}

		g.Go(func() error {
			for block := startBlock; block < endBlock; block++ {
				if gctx.Err() != nil {
					return nil
				}
				for thread := 0; thread < blockSize; thread++ {
					pos := block*blockSize + thread
					if pos >= n {
						break
					}
					if err := runLane(op, order[pos], kernel); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func runLane(op string, lane int, kernel func(int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.NewComputeFault(op, lane, fmt.Errorf("panic: %v", r))
		}
	}()

	if kerr := kernel(lane); kerr != nil {
		return core.NewComputeFault(op, lane, kerr)
	}
	return nil
}
