// Drillx: batched two-stage proof-of-work hashing
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"drillx/internal/cli/ui"
	"drillx/internal/client"
	"drillx/pkg/hashing/core"
)

// options are the monitor's command line flags
type options struct {
	URL       string
	Challenge []byte
	Start     uint64
	BatchSize int
	Interval  time.Duration
	Timeout   time.Duration
}

// parseFlags parses args into options. An empty challenge is replaced by
// a random one.
func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	url := fs.String("url", "http://localhost:8080", "hasher-host base URL")
	challenge := fs.String("challenge", "", "hex challenge for batches started from the monitor (default: random)")
	start := fs.Uint64("start", 0, "first nonce")
	batchSize := fs.Int("batch", 64, "lanes per batch")
	interval := fs.Duration("interval", time.Second, "poll interval")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", *batchSize)
	}
	if *interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", *interval)
	}

	opts := &options{
		URL:       *url,
		Start:     *start,
		BatchSize: *batchSize,
		Interval:  *interval,
		Timeout:   *timeout,
	}

	if *challenge == "" {
		opts.Challenge = make([]byte, core.ChallengeSize)
		if _, err := rand.Read(opts.Challenge); err != nil {
			return nil, err
		}
		return opts, nil
	}

	c, err := hex.DecodeString(*challenge)
	if err != nil {
		return nil, fmt.Errorf("challenge is not hex: %w", err)
	}
	if len(c) != core.ChallengeSize {
		return nil, fmt.Errorf("challenge must be %d bytes, got %d", core.ChallengeSize, len(c))
	}
	opts.Challenge = c
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(2)
	}

	c := client.NewAPIClient(opts.URL)
	c.HTTPClient.Timeout = opts.Timeout

	dashboard := ui.NewDashboard(c, ui.DashboardConfig{
		Challenge:      opts.Challenge,
		StartNonce:     opts.Start,
		BatchSize:      int32(opts.BatchSize),
		Interval:       opts.Interval,
		RequestTimeout: opts.Timeout,
	})

	p := tea.NewProgram(dashboard, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor: %v\n", err)
		os.Exit(1)
	}
}
