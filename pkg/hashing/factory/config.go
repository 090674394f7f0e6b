package factory

import (
	"fmt"
	"time"
)

// Backend names
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// BackendConfig contains configuration for backend selection
type BackendConfig struct {
	// Preferred backend order (highest priority first)
	PreferredOrder []string `yaml:"preferred_order" json:"preferred_order"`

	// hasher-server address used by the remote backend
	RemoteAddress string        `yaml:"remote_address" json:"remote_address"`
	DialTimeout   time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// Solver heap entries per tier for the local engine (0 = engine default)
	HeapSize int `yaml:"heap_size" json:"heap_size"`

	// Largest accepted batch (0 = derived from available memory)
	MaxBatchSize int `yaml:"max_batch_size" json:"max_batch_size"`

	// Allow falling back to the local backend when no preferred one is available
	EnableFallback bool `yaml:"enable_fallback" json:"enable_fallback"`
}

// DefaultBackendConfig returns a sensible default configuration
func DefaultBackendConfig() *BackendConfig {
	return &BackendConfig{
		PreferredOrder: []string{
			BackendRemote, // 1. hasher-server, when an address is configured
			BackendLocal,  // 2. in-process pipeline
		},
		DialTimeout:    5 * time.Second,
		EnableFallback: true,
	}
}

// Validate rejects negative sizes and unknown backend names
func (c *BackendConfig) Validate() error {
	if c.HeapSize < 0 {
		return fmt.Errorf("heap_size must not be negative, got %d", c.HeapSize)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("max_batch_size must not be negative, got %d", c.MaxBatchSize)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("dial_timeout must not be negative, got %s", c.DialTimeout)
	}
	for _, name := range c.PreferredOrder {
		if name != BackendLocal && name != BackendRemote {
			return fmt.Errorf("unknown backend %q", name)
		}
	}
	return nil
}
