// internal/driver/device/server.go
package device

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "drillx/internal/proto/hasher/v1"
	"drillx/pkg/hashing/core"
)

// Backend is what the server computes batches on
type Backend interface {
	core.BatchHasher
	Capabilities() *core.Capabilities
}

// ServerStats counts served requests
type ServerStats struct {
	TotalRequests uint64
	TotalLanes    uint64
	TotalErrors   uint64
	TotalLatency  time.Duration
	PeakLatency   time.Duration
}

// HasherServer implements the gRPC Hasher service
type HasherServer struct {
	pb.UnimplementedHasherServer

	backend   Backend
	logger    logrus.FieldLogger
	startTime time.Time
	mu        sync.RWMutex
	stats     ServerStats
}

// NewHasherServer creates a new Hasher gRPC server over backend
func NewHasherServer(backend Backend, logger logrus.FieldLogger) *HasherServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &HasherServer{
		backend:   backend,
		logger:    logger,
		startTime: time.Now(),
	}
}

// ComputeBatch implements batch computation
func (s *HasherServer) ComputeBatch(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	challenge, nonces, batchSize, err := pb.DecodeBatchRequest(req)
	if err != nil {
		s.record(0, 0, err)
		return nil, pb.StatusFromError(core.NewConfigError("ComputeBatch", "%v", err))
	}

	start := time.Now()
	digests, err := s.backend.ComputeBatch(ctx, challenge, nonces, batchSize)
	latency := time.Since(start)
	s.record(batchSize, latency, err)

	if err != nil {
		if core.IsComputeFault(err) || core.IsContextInitError(err) {
			sentry.CaptureException(err)
		}
		s.logger.WithError(err).WithField("batch_size", batchSize).Warn("ComputeBatch failed")
		return nil, pb.StatusFromError(err)
	}

	return wrapperspb.Bytes(digests), nil
}

// Info reports the backend capabilities and server counters
func (s *HasherServer) Info(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	caps := s.backend.Capabilities()
	stats := s.Stats()

	// Failed requests carry no latency
	avgLatency := int64(0)
	if served := stats.TotalRequests - stats.TotalErrors; served > 0 {
		avgLatency = stats.TotalLatency.Microseconds() / int64(served)
	}

	info, err := structpb.NewStruct(map[string]interface{}{
		"name":            caps.Name,
		"index_space":     caps.IndexSpace,
		"digest_size":     caps.DigestSize,
		"heap_size":       caps.HeapSize,
		"max_batch_size":  caps.MaxBatchSize,
		"is_hardware":     caps.IsHardware,
		"uptime_seconds":  time.Since(s.startTime).Seconds(),
		"total_requests":  float64(stats.TotalRequests),
		"total_lanes":     float64(stats.TotalLanes),
		"total_errors":    float64(stats.TotalErrors),
		"avg_latency_us":  avgLatency,
		"peak_latency_us": stats.PeakLatency.Microseconds(),
	})
	if err != nil {
		return nil, pb.StatusFromError(err)
	}
	return info, nil
}

// Stats returns a snapshot of the server counters
func (s *HasherServer) Stats() ServerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

func (s *HasherServer) record(batchSize int32, latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.TotalRequests++
	if err != nil {
		s.stats.TotalErrors++
		return
	}
	s.stats.TotalLanes += uint64(batchSize)
	s.stats.TotalLatency += latency
	if latency > s.stats.PeakLatency {
		s.stats.PeakLatency = latency
	}
}

// CapabilitiesFromInfo decodes an Info response
func CapabilitiesFromInfo(info *structpb.Struct) *core.Capabilities {
	f := info.GetFields()
	return &core.Capabilities{
		Name:         f["name"].GetStringValue(),
		IndexSpace:   int(f["index_space"].GetNumberValue()),
		DigestSize:   int(f["digest_size"].GetNumberValue()),
		HeapSize:     int(f["heap_size"].GetNumberValue()),
		MaxBatchSize: int(f["max_batch_size"].GetNumberValue()),
		IsHardware:   f["is_hardware"].GetBoolValue(),
	}
}
