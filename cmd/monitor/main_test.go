package main

import (
	"strings"
	"testing"
	"time"
)

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	if opts.URL != "http://localhost:8080" {
		t.Errorf("unexpected URL: %s", opts.URL)
	}
	if opts.BatchSize != 64 {
		t.Errorf("unexpected batch size: %d", opts.BatchSize)
	}
	if opts.Interval != time.Second {
		t.Errorf("unexpected interval: %s", opts.Interval)
	}
	if len(opts.Challenge) != 32 {
		t.Errorf("random challenge has %d bytes, want 32", len(opts.Challenge))
	}
}

func TestParseFlags_Challenge(t *testing.T) {
	hexChallenge := strings.Repeat("0f", 32)
	opts, err := parseFlags([]string{"-challenge", hexChallenge, "-start", "99", "-batch", "8"})
	if err != nil {
		t.Fatalf("parseFlags returned error: %v", err)
	}
	if opts.Challenge[0] != 0x0f || opts.Challenge[31] != 0x0f {
		t.Errorf("challenge not decoded: %x", opts.Challenge)
	}
	if opts.Start != 99 || opts.BatchSize != 8 {
		t.Errorf("unexpected start/batch: %d/%d", opts.Start, opts.BatchSize)
	}
}

func TestParseFlags_Invalid(t *testing.T) {
	cases := map[string][]string{
		"short challenge": {"-challenge", "abcd"},
		"non-hex":         {"-challenge", strings.Repeat("zz", 32)},
		"zero batch":      {"-batch", "0"},
		"zero interval":   {"-interval", "0s"},
		"unknown flag":    {"-bogus"},
	}
	for name, args := range cases {
		args := args
		t.Run(name, func(t *testing.T) {
			if _, err := parseFlags(args); err == nil {
				t.Errorf("parseFlags(%v) succeeded, want error", args)
			}
		})
	}
}
