package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"drillx/internal/cli/ui"
	"drillx/internal/pipeline"
	"drillx/pkg/hashing/core"
)

type hashOutput struct {
	Backend   string               `json:"backend"`
	Challenge string               `json:"challenge"`
	Start     uint64               `json:"start_nonce"`
	Digests   []string             `json:"digests"`
	Solved    int                  `json:"solved_lanes"`
	Best      *pipeline.BestResult `json:"best,omitempty"`
	BestHash  string               `json:"best_hash,omitempty"`
	LatencyMs float64              `json:"latency_ms"`
}

func newHashCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		start     uint64
		batchSize int32
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "hash <challenge>",
		Short: "Compute one batch of digests over consecutive nonces",
		Long: `Compute one batch for a 32-byte hex challenge. Lane i hashes nonce
start+i; lanes without a solution print as "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			challenge, err := parseChallenge(args[0])
			if err != nil {
				return err
			}

			s, err := newSession(cmd, stderr)
			if err != nil {
				return err
			}
			defer s.Close()

			nonces := pipeline.NoncesFrom(start, int(batchSize))
			t0 := time.Now()
			digests, err := s.backend.ComputeBatch(context.Background(), challenge, nonces, batchSize)
			if err != nil {
				reportHashError(stderr, err)
				return errExit
			}
			latency := time.Since(t0)

			best, err := pipeline.BestOf(digests, nonces)
			if err != nil {
				return err
			}

			rows := ui.RowsFrom(digests, nonces)
			if asJSON {
				out := hashOutput{
					Backend:   s.backend.Name(),
					Challenge: args[0],
					Start:     start,
					Digests:   make([]string, len(rows)),
					LatencyMs: float64(latency.Microseconds()) / 1000,
				}
				for i, r := range rows {
					out.Digests[i] = hex.EncodeToString(r.Digest)
					if sol, _ := core.DecodeDigest(r.Digest); !sol.IsEmpty() {
						out.Solved++
					}
				}
				if best.Found {
					out.Best = &best
					out.BestHash = hex.EncodeToString(best.Hash[:])
				}
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Fprintf(stdout, "%s %d lanes from nonce %d on %s in %s\n\n",
				ui.Info("batch:"), batchSize, start, s.backend.Name(), latency.Round(time.Microsecond))
			fmt.Fprintln(stdout, ui.RenderDigests(rows, limit))
			fmt.Fprintln(stdout, ui.RenderBest(best))
			return nil
		},
	}

	cmd.Flags().Uint64Var(&start, "start", 0, "First nonce of the batch")
	cmd.Flags().Int32Var(&batchSize, "batch-size", 16, "Lanes in the batch")
	cmd.Flags().IntVar(&limit, "limit", 32, "Lanes to print (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

// reportHashError prints err with its class when it is a HashError
func reportHashError(w io.Writer, err error) {
	if t, ok := core.ErrorTypeOf(err); ok {
		fmt.Fprintf(w, "%s %s: %v\n", ui.Error("error"), t, err)
		return
	}
	fmt.Fprintf(w, "%s %v\n", ui.Error("error"), err)
}
