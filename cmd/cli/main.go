// Drillx: batched two-stage proof-of-work hashing
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"drillx/internal/cli/ui"
	"drillx/internal/client"
	"drillx/internal/config"
	"drillx/internal/logging"
	"drillx/pkg/hashing/core"
	"drillx/pkg/hashing/factory"
)

// Version metadata injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// errExit signals a non-zero exit after the command reported its own error.
var errExit = errors.New("exit")

// run executes the drillx CLI with the given args.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errExit) {
			fmt.Fprintf(stderr, "drillx: %v\n", err)
		}
		return 1
	}
	return 0
}

// newRootCmd creates the root cobra command with all subcommands.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "drillx",
		Short:         "Batched two-stage proof-of-work hashing",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			fmt.Fprintf(stderr, "drillx: unknown command %q\n", args[0])
			return errExit
		},
	}
	root.PersistentFlags().String("config", "", "Config file (default: drillx.yaml in the project root)")
	root.PersistentFlags().String("api", "", "Use a hasher-host gateway at this URL instead of a local or remote backend")
	root.PersistentFlags().String("log-level", "", "Log level override: debug, info, warn, error")
	root.PersistentFlags().String("color", "auto", "Color output: always, auto, never")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		colorMode, _ := cmd.Flags().GetString("color")
		return ui.SetColorMode(colorMode)
	}

	root.AddCommand(
		newHashCmd(stdout, stderr),
		newVerifyCmd(stdout, stderr),
		newBenchCmd(stdout, stderr),
		newInfoCmd(stdout, stderr),
		newVersionCmd(stdout),
	)
	return root
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(stdout, "drillx %s (%s)\n", version, commit)
			return nil
		},
	}
}

// hasher is what the batch commands compute with
type hasher interface {
	core.BatchHasher
	Name() string
}

type apiHasher struct {
	*client.APIClient
}

func (apiHasher) Name() string { return "api" }

// session holds the configuration and backend of one command run
type session struct {
	cfg     *config.Config
	logger  *logrus.Logger
	factory *factory.BackendFactory
	backend hasher
}

func (s *session) Close() {
	if s.factory != nil {
		if err := s.factory.ShutdownAll(); err != nil {
			s.logger.WithError(err).Warn("backend shutdown failed")
		}
	}
}

// newSession loads the configuration and picks a backend. With --api the
// gateway client is used and the factory is not built.
func newSession(cmd *cobra.Command, stderr io.Writer) (*session, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stderr" {
		logger.SetOutput(stderr)
	}

	s := &session{cfg: cfg, logger: logger}

	if url, _ := cmd.Flags().GetString("api"); url != "" {
		s.backend = apiHasher{client.NewAPIClient(url)}
		return s, nil
	}

	s.factory = factory.NewBackendFactory(&cfg.Engine,
		factory.WithLaunchConfig(cfg.Launch),
		factory.WithLogger(logger),
	)
	backend, err := s.factory.Best()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.backend = backend
	return s, nil
}

// parseChallenge decodes a hex challenge of exactly ChallengeSize bytes
func parseChallenge(s string) ([]byte, error) {
	challenge, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("challenge is not hex: %w", err)
	}
	if len(challenge) != core.ChallengeSize {
		return nil, fmt.Errorf("challenge must be %d bytes, got %d", core.ChallengeSize, len(challenge))
	}
	return challenge, nil
}
