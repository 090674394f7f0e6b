package factory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"drillx/internal/driver/host"
	"drillx/internal/pipeline"
	"drillx/pkg/hashing/core"
	"drillx/pkg/hashing/hardware"
	"drillx/pkg/hashing/methods/software"
)

// Backend is a BatchHasher the factory can select
type Backend interface {
	core.BatchHasher
	Name() string
	Capabilities() *core.Capabilities
	Close() error
}

type localBackend struct {
	*pipeline.Orchestrator
}

func (localBackend) Name() string { return BackendLocal }
func (localBackend) Close() error { return nil }

type remoteBackend struct {
	*host.RemoteHasher
}

func (remoteBackend) Name() string { return BackendRemote }

// Option configures a BackendFactory
type Option func(*BackendFactory)

// WithLaunchConfig sets the launch shape of the local backend; zero fields
// are derived from the host
func WithLaunchConfig(cfg pipeline.LaunchConfig) Option {
	return func(f *BackendFactory) { f.launch = cfg }
}

// WithLogger sets the logger handed to the local orchestrator
func WithLogger(l logrus.FieldLogger) Option {
	return func(f *BackendFactory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithRemoteOptions passes options to the remote backend's client
func WithRemoteOptions(opts ...host.Option) Option {
	return func(f *BackendFactory) { f.remoteOpts = append(f.remoteOpts, opts...) }
}

// BackendFactory creates and manages backend instances
type BackendFactory struct {
	config     *BackendConfig
	launch     pipeline.LaunchConfig
	logger     logrus.FieldLogger
	remoteOpts []host.Option

	detector *hardware.DeviceDetector
	backends map[string]Backend
	reasons  map[string]string
	best     Backend
}

// NewBackendFactory creates a new factory with the given configuration
func NewBackendFactory(config *BackendConfig, opts ...Option) *BackendFactory {
	if config == nil {
		config = DefaultBackendConfig()
	}

	factory := &BackendFactory{
		config:   config,
		logger:   logrus.StandardLogger(),
		detector: hardware.NewDeviceDetector(),
		backends: make(map[string]Backend),
		reasons:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(factory)
	}

	factory.detectBackends()
	factory.selectBestBackend()

	return factory
}

// detectBackends builds every backend that can be built
func (f *BackendFactory) detectBackends() {
	hostInfo := f.detector.Detect()

	// Local pipeline (always available)
	engine := software.NewSoftwareEngine(software.WithHeapSize(f.config.HeapSize))
	launch := f.launch
	if launch.Workers <= 0 {
		launch.Workers = hostInfo.Workers()
	}
	maxBatch := f.config.MaxBatchSize
	if maxBatch == 0 {
		perLane := int64(core.IndexSpace*8+core.DigestSize) + int64(engine.HeapBytes())
		maxBatch = hostInfo.MaxLanes(perLane)
	}
	f.backends[BackendLocal] = localBackend{pipeline.NewOrchestrator(engine,
		pipeline.WithLaunchConfig(launch),
		pipeline.WithMaxBatchSize(maxBatch),
		pipeline.WithLogger(f.logger),
	)}

	// Remote hasher-server
	if f.config.RemoteAddress == "" {
		f.reasons[BackendRemote] = "no remote address configured"
		return
	}
	opts := f.remoteOpts
	if f.config.DialTimeout > 0 {
		opts = append([]host.Option{host.WithVerifyTimeout(f.config.DialTimeout)}, opts...)
	}
	remote, err := host.NewRemoteHasher(f.config.RemoteAddress, opts...)
	if err != nil {
		f.reasons[BackendRemote] = err.Error()
		f.logger.WithError(err).WithField("address", f.config.RemoteAddress).Warn("remote backend unavailable")
		return
	}
	f.backends[BackendRemote] = remoteBackend{remote}
}

// selectBestBackend chooses the best available backend based on configuration
func (f *BackendFactory) selectBestBackend() {
	f.best = nil
	for _, name := range f.config.PreferredOrder {
		if backend, exists := f.backends[name]; exists {
			f.best = backend
			return
		}
	}

	// If no preferred backend is available, fall back to the local pipeline
	if f.config.EnableFallback {
		f.best = f.backends[BackendLocal]
	}
}

// Best returns the selected backend
func (f *BackendFactory) Best() (Backend, error) {
	if f.best == nil {
		return nil, fmt.Errorf("no backend available for preferred order [%s]", strings.Join(f.config.PreferredOrder, ", "))
	}
	return f.best, nil
}

// Get returns a specific backend by name, or nil when it is unavailable
func (f *BackendFactory) Get(name string) Backend {
	return f.backends[name]
}

// Host returns the detected host description
func (f *BackendFactory) Host() *hardware.HostInfo {
	return f.detector.Detect()
}

// GetDetectionReport returns a report of detected backends and their status
func (f *BackendFactory) GetDetectionReport() *DetectionReport {
	report := &DetectionReport{
		Backends:   make([]*BackendStatus, 0, 2),
		BestMethod: "none",
		Host:       f.detector.Detect(),
	}

	for _, name := range []string{BackendLocal, BackendRemote} {
		status := &BackendStatus{
			Name:        name,
			Priority:    f.getPriority(name),
			Description: f.getBackendDescription(name),
			Reason:      f.reasons[name],
		}
		if backend, ok := f.backends[name]; ok {
			status.Available = true
			status.Capabilities = backend.Capabilities()
			report.AvailableCount++
		}
		report.Backends = append(report.Backends, status)
	}
	SortBackendsByPriority(report.Backends)

	if f.best != nil {
		report.BestMethod = f.best.Name()
	}
	return report
}

// getPriority returns the priority index of a backend
func (f *BackendFactory) getPriority(name string) int {
	for i, preferred := range f.config.PreferredOrder {
		if name == preferred {
			return i
		}
	}
	return 999 // Low priority for backends not in preferred list
}

// getBackendDescription returns a human-readable description for a backend
func (f *BackendFactory) getBackendDescription(name string) string {
	switch name {
	case BackendLocal:
		return "In-process two-stage pipeline over the software engine"
	case BackendRemote:
		if f.config.RemoteAddress != "" {
			return fmt.Sprintf("hasher-server at %s over gRPC", f.config.RemoteAddress)
		}
		return "hasher-server over gRPC"
	}
	return "Unknown backend"
}

// ShutdownAll closes every backend
func (f *BackendFactory) ShutdownAll() error {
	var errors []string

	for name, backend := range f.backends {
		if err := backend.Close(); err != nil {
			errors = append(errors, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("shutdown errors: %s", strings.Join(errors, "; "))
	}
	return nil
}

// DetectionReport contains the results of backend detection
type DetectionReport struct {
	Backends       []*BackendStatus   `json:"backends"`
	BestMethod     string             `json:"best_backend"`
	AvailableCount int                `json:"available_count"`
	Host           *hardware.HostInfo `json:"host"`
}

// BackendStatus describes the status of a single backend
type BackendStatus struct {
	Name         string             `json:"name"`
	Available    bool               `json:"available"`
	Priority     int                `json:"priority"`
	Capabilities *core.Capabilities `json:"capabilities,omitempty"`
	Description  string             `json:"description"`
	Reason       string             `json:"reason,omitempty"`
}

// SortBackendsByPriority sorts backends by priority
func SortBackendsByPriority(backends []*BackendStatus) {
	sort.SliceStable(backends, func(i, j int) bool {
		return backends[i].Priority < backends[j].Priority
	})
}
