package pipeline

import "drillx/pkg/hashing/core"

// SolverReport summarizes the solver stage of one batch
type SolverReport struct {
	SolvedLanes   int `json:"solved_lanes"`
	Solutions     int `json:"solutions"`
	HeapOverflows int `json:"heap_overflows"`
}

// RunSolver runs every lane's solving context over its hash space. Each
// digest slot is zeroed before the solver runs, so lanes without a
// solution always carry the empty digest.
func RunSolver(l *Launcher, pool *ContextPool, arena *Arena) (SolverReport, error) {
	const op = "solve"

	n := pool.Lanes()
	if arena.Lanes() != n {
		return SolverReport{}, core.NewConfigError(op, "arena holds %d lanes, pool holds %d", arena.Lanes(), n)
	}

	stats := make([]core.SolveStats, n)
	err := l.Launch(op, n, func(lane int) error {
		digest := arena.Digest(lane)
		clear(digest)

		sc := pool.Solving(lane)
		if err := sc.Solve(arena.HashSpace(lane), digest); err != nil {
			return err
		}
		if r, ok := sc.(core.SolveReporter); ok {
			stats[lane] = r.LastSolveStats()
		}
		return nil
	})
	if err != nil {
		return SolverReport{}, err
	}

	var report SolverReport
	for lane := 0; lane < n; lane++ {
		s, _ := core.DecodeDigest(arena.Digest(lane))
		if !s.IsEmpty() {
			report.SolvedLanes++
		}
		report.Solutions += stats[lane].Solutions
		if stats[lane].HeapOverflow {
			report.HeapOverflows++
		}
	}
	return report, nil
}
