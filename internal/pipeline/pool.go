package pipeline

import (
	"fmt"

	"drillx/pkg/hashing/core"
)

// ContextPool owns one hashing and one solving context per lane for the
// duration of a batch
type ContextPool struct {
	hashing  []core.HashingContext
	solving  []core.SolvingContext
	released bool
}

// BuildPool creates batchSize context pairs bound to challenge. If any lane
// fails, every context built so far is released and a ContextInitError for
// that lane is returned.
func BuildPool(engine core.Engine, challenge []byte, batchSize int) (*ContextPool, error) {
	const op = "BuildPool"

	if batchSize <= 0 {
		return nil, core.NewConfigError(op, "batch size must be positive, got %d", batchSize)
	}
	if len(challenge) != core.ChallengeSize {
		return nil, core.NewConfigError(op, "challenge must be %d bytes, got %d", core.ChallengeSize, len(challenge))
	}

	p := &ContextPool{
		hashing: make([]core.HashingContext, 0, batchSize),
		solving: make([]core.SolvingContext, 0, batchSize),
	}

	for lane := 0; lane < batchSize; lane++ {
		hc, err := engine.NewHashingContext(challenge)
		if err == nil && hc == nil {
			err = fmt.Errorf("engine %s returned no hashing context", engine.Name())
		}
		if err != nil {
			p.Release()
			return nil, core.NewContextInitError(op, lane, err)
		}
		p.hashing = append(p.hashing, hc)

		sc, err := engine.NewSolvingContext()
		if err == nil && sc == nil {
			err = fmt.Errorf("engine %s returned no solving context", engine.Name())
		}
		if err != nil {
			p.Release()
			return nil, core.NewContextInitError(op, lane, err)
		}
		p.solving = append(p.solving, sc)
	}

	return p, nil
}

// Lanes returns the number of lanes in the pool
func (p *ContextPool) Lanes() int {
	return len(p.hashing)
}

// Hashing returns lane's hashing context
func (p *ContextPool) Hashing(lane int) core.HashingContext {
	return p.hashing[lane]
}

// Solving returns lane's solving context
func (p *ContextPool) Solving(lane int) core.SolvingContext {
	return p.solving[lane]
}

// Release frees every context. It is safe to call more than once.
func (p *ContextPool) Release() {
	if p == nil || p.released {
		return
	}
	p.released = true

	for _, hc := range p.hashing {
		hc.Release()
	}
	for _, sc := range p.solving {
		sc.Release()
	}
	p.hashing = nil
	p.solving = nil
}
