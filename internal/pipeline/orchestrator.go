package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"drillx/pkg/hashing/core"
)

// Orchestrator is the host side of the pipeline: it validates a batch,
// builds the context pool, runs stage 0 and the solver stage in strict
// sequence and returns the digests.
type Orchestrator struct {
	engine   core.Engine
	launcher *Launcher
	arenas   *ArenaPool
	logger   logrus.FieldLogger
	maxBatch int

	launchCfg LaunchConfig
	schedule  Schedule
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLaunchConfig sets the kernel launch shape
func WithLaunchConfig(cfg LaunchConfig) Option {
	return func(o *Orchestrator) { o.launchCfg = cfg }
}

// WithSchedule sets the physical lane execution order used by both stages
func WithSchedule(s Schedule) Option {
	return func(o *Orchestrator) { o.schedule = s }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxBatchSize rejects batches larger than n lanes (0 = unlimited)
func WithMaxBatchSize(n int) Option {
	return func(o *Orchestrator) { o.maxBatch = n }
}

// WithArenaPool shares an arena pool between orchestrators
func WithArenaPool(p *ArenaPool) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.arenas = p
		}
	}
}

// NewOrchestrator creates an orchestrator over engine
func NewOrchestrator(engine core.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:    engine,
		arenas:    NewArenaPool(2),
		logger:    logrus.StandardLogger(),
		launchCfg: DefaultLaunchConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.launcher = NewLauncher(o.launchCfg, o.schedule)
	o.logger = o.logger.WithField("engine", engine.Name())
	return o
}

// Engine returns the engine building the lane contexts
func (o *Orchestrator) Engine() core.Engine {
	return o.engine
}

// ArenaStats returns the arena pool usage
func (o *Orchestrator) ArenaStats() ArenaStats {
	return o.arenas.Stats()
}

// Capabilities describes the orchestrator's engine and batch limit
func (o *Orchestrator) Capabilities() *core.Capabilities {
	caps := *o.engine.Capabilities()
	caps.MaxBatchSize = o.maxBatch
	return &caps
}

// BatchResult is a successful batch with its solver report
type BatchResult struct {
	Digests  []byte
	Report   SolverReport
	Stage0   time.Duration
	Solve    time.Duration
	Duration time.Duration
}

// ComputeBatch implements core.BatchHasher
func (o *Orchestrator) ComputeBatch(ctx context.Context, challenge, nonces []byte, batchSize int32) ([]byte, error) {
	res, err := o.Run(ctx, challenge, nonces, batchSize)
	if err != nil {
		return nil, err
	}
	return res.Digests, nil
}

// Run computes one batch. ctx is only checked before any work starts; a
// started batch always runs both stages to completion or fails.
func (o *Orchestrator) Run(ctx context.Context, challenge, nonces []byte, batchSize int32) (*BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	engine := o.engine.Name()
	start := time.Now()
	res, err := o.run(challenge, nonces, int(batchSize))

	batchesTotal.WithLabelValues(engine, outcomeLabel(err)).Inc()
	stats := o.arenas.Stats()
	arenaBytes.WithLabelValues("in_use").Set(float64(stats.InUseBytes))
	arenaBytes.WithLabelValues("peak").Set(float64(stats.PeakBytes))

	log := o.logger.WithField("batch_size", batchSize)
	if err != nil {
		log.WithError(err).Warn("batch failed")
		return nil, err
	}

	res.Duration = time.Since(start)
	lanesTotal.WithLabelValues(engine).Add(float64(batchSize))
	lanesSolved.WithLabelValues(engine).Add(float64(res.Report.SolvedLanes))
	heapOverflows.WithLabelValues(engine).Add(float64(res.Report.HeapOverflows))
	stageDuration.WithLabelValues(engine, "stage0").Observe(res.Stage0.Seconds())
	stageDuration.WithLabelValues(engine, "solve").Observe(res.Solve.Seconds())

	log.WithFields(logrus.Fields{
		"stage0_ms":      res.Stage0.Milliseconds(),
		"solve_ms":       res.Solve.Milliseconds(),
		"solved_lanes":   res.Report.SolvedLanes,
		"heap_overflows": res.Report.HeapOverflows,
	}).Debug("batch complete")

	return res, nil
}

func (o *Orchestrator) run(challenge, nonces []byte, batchSize int) (*BatchResult, error) {
	const op = "ComputeBatch"

	if batchSize <= 0 {
		return nil, core.NewConfigError(op, "batch size must be positive, got %d", batchSize)
	}
	if o.maxBatch > 0 && batchSize > o.maxBatch {
		return nil, core.NewConfigError(op, "batch size %d exceeds maximum %d", batchSize, o.maxBatch)
	}
	if len(challenge) != core.ChallengeSize {
		return nil, core.NewConfigError(op, "challenge must be %d bytes, got %d", core.ChallengeSize, len(challenge))
	}
	if want := batchSize * core.NonceSize; len(nonces) != want {
		return nil, core.NewInvalidNonceError(op, len(nonces), want)
	}

	pool, err := BuildPool(o.engine, challenge, batchSize)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	arena := o.arenas.Get(batchSize)
	defer o.arenas.Put(arena)

	res := &BatchResult{}

	t0 := time.Now()
	if err := RunStage0(o.launcher, pool, nonces, arena); err != nil {
		return nil, err
	}
	res.Stage0 = time.Since(t0)

	// Launch returned, so every lane of stage 0 has finished
	t1 := time.Now()
	report, err := RunSolver(o.launcher, pool, arena)
	if err != nil {
		return nil, err
	}
	res.Solve = time.Since(t1)
	res.Report = report

	res.Digests = make([]byte, batchSize*core.DigestSize)
	copy(res.Digests, arena.Digests())
	return res, nil
}
