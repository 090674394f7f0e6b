package pipeline

import "drillx/pkg/hashing/core"

// RunStage0 fills every lane's hash space from its nonce. The nonce buffer
// is checked once for the whole batch before any lane runs.
func RunStage0(l *Launcher, pool *ContextPool, nonces []byte, arena *Arena) error {
	const op = "stage0"

	n := pool.Lanes()
	if want := n * core.NonceSize; len(nonces) != want {
		return core.NewInvalidNonceError(op, len(nonces), want)
	}
	if arena.Lanes() != n {
		return core.NewConfigError(op, "arena holds %d lanes, pool holds %d", arena.Lanes(), n)
	}

	return l.Launch(op, n, func(lane int) error {
		off := lane * core.NonceSize
		end := off + core.NonceSize
		return pool.Hashing(lane).GenerateHashSpace(nonces[off:end:end], arena.HashSpace(lane))
	})
}
