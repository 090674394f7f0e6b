package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"drillx/internal/cli/ui"
	"drillx/internal/pipeline"
	"drillx/pkg/hashing/core"
)

// benchResult summarizes a benchmark run
type benchResult struct {
	Batches     int
	Lanes       int
	Solved      int
	Best        pipeline.BestResult
	Elapsed     time.Duration
	LanesPerSec float64
}

func newBenchCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		batches   int
		batchSize int32
		start     uint64
	)

	cmd := &cobra.Command{
		Use:   "bench [challenge]",
		Short: "Run consecutive batches and report throughput",
		Long: `Run consecutive batches over one challenge and report lanes per second.
A random challenge is used when none is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if batches <= 0 || batchSize <= 0 {
				return fmt.Errorf("--batches and --batch-size must be positive")
			}

			challenge := make([]byte, core.ChallengeSize)
			if len(args) == 1 {
				c, err := parseChallenge(args[0])
				if err != nil {
					return err
				}
				challenge = c
			} else if _, err := rand.Read(challenge); err != nil {
				return err
			}

			s, err := newSession(cmd, stderr)
			if err != nil {
				return err
			}
			defer s.Close()

			var bar *mpb.Bar
			var p *mpb.Progress
			if f, ok := stderr.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
				p = mpb.New(mpb.WithWidth(80), mpb.WithOutput(stderr))
				bar = p.AddBar(int64(batches),
					mpb.PrependDecorators(
						decor.Name("Hashing batches: "),
						decor.Percentage(decor.WCSyncSpace),
					),
					mpb.AppendDecorators(
						decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done!"),
					),
				)
			}

			res, err := runBench(context.Background(), s.backend, challenge, start, batchSize, batches, func() {
				if bar != nil {
					bar.Increment()
				}
			})
			if p != nil {
				if err != nil {
					bar.Abort(false)
				}
				p.Wait()
			}
			if err != nil {
				reportHashError(stderr, err)
				return errExit
			}

			fmt.Fprintf(stdout, "%s %x on %s\n", ui.Info("challenge:"), challenge, s.backend.Name())
			fmt.Fprintf(stdout, "batches:     %d x %d lanes\n", res.Batches, batchSize)
			fmt.Fprintf(stdout, "solved:      %d of %d lanes\n", res.Solved, res.Lanes)
			fmt.Fprintf(stdout, "elapsed:     %s\n", res.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(stdout, "throughput:  %.1f lanes/s\n", res.LanesPerSec)
			fmt.Fprintln(stdout, ui.RenderBest(res.Best))
			return nil
		},
	}

	cmd.Flags().IntVar(&batches, "batches", 8, "Number of batches")
	cmd.Flags().Int32Var(&batchSize, "batch-size", 64, "Lanes per batch")
	cmd.Flags().Uint64Var(&start, "start", 0, "First nonce")
	return cmd
}

// runBench hashes n consecutive batches and tracks the best lane overall.
// tick runs after every batch.
func runBench(ctx context.Context, h core.BatchHasher, challenge []byte, start uint64, batchSize int32, n int, tick func()) (*benchResult, error) {
	res := &benchResult{Best: pipeline.BestResult{Lane: core.NoLane}}
	t0 := time.Now()

	nonce := start
	for i := 0; i < n; i++ {
		nonces := pipeline.NoncesFrom(nonce, int(batchSize))
		digests, err := h.ComputeBatch(ctx, challenge, nonces, batchSize)
		if err != nil {
			return nil, err
		}
		best, err := pipeline.BestOf(digests, nonces)
		if err != nil {
			return nil, err
		}
		for lane := 0; lane < int(batchSize); lane++ {
			sol, _ := core.DecodeDigest(digests[lane*core.DigestSize : (lane+1)*core.DigestSize])
			if !sol.IsEmpty() {
				res.Solved++
			}
		}
		if best.Found && (!res.Best.Found || best.Difficulty > res.Best.Difficulty) {
			best.Lane += i * int(batchSize)
			res.Best = best
		}

		res.Batches++
		res.Lanes += int(batchSize)
		nonce += uint64(batchSize)
		tick()
	}

	res.Elapsed = time.Since(t0)
	if secs := res.Elapsed.Seconds(); secs > 0 {
		res.LanesPerSec = float64(res.Lanes) / secs
	}
	return res, nil
}
