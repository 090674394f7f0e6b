package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"drillx/internal/cli/ui"
	"drillx/internal/client"
	"drillx/pkg/hashing/core"
	"drillx/pkg/hashing/methods/software"
)

func newVerifyCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <challenge> <nonce> <digest>",
		Short: "Check that a digest is a valid solution for a challenge and nonce",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			challenge, err := parseChallenge(args[0])
			if err != nil {
				return err
			}
			nonce, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid nonce %q: %w", args[1], err)
			}
			digest, err := hex.DecodeString(args[2])
			if err != nil || len(digest) != core.DigestSize {
				return fmt.Errorf("digest must be %d hex bytes", core.DigestSize)
			}

			var (
				valid bool
				diff  uint32
			)
			if url, _ := cmd.Flags().GetString("api"); url != "" {
				resp, err := client.NewAPIClient(url).Verify(context.Background(), challenge, nonce, digest)
				if err != nil {
					return err
				}
				valid, diff = resp.Valid, resp.Difficulty
			} else {
				nb := core.NonceBytes(nonce)
				valid = software.VerifyDigest(challenge, nb[:], digest)
				if valid {
					sol, _ := core.DecodeDigest(digest)
					diff = core.Difficulty(sol.Hash(nb[:]))
				}
			}

			if !valid {
				fmt.Fprintln(stderr, ui.Error("invalid"))
				return errExit
			}
			fmt.Fprintf(stdout, "%s difficulty %d\n", ui.Success("valid"), diff)
			return nil
		},
	}
}
