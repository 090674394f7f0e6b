package factory

import (
	"context"
	"net"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"drillx/internal/driver/device"
	"drillx/internal/driver/host"
	"drillx/internal/pipeline"
	pb "drillx/internal/proto/hasher/v1"
	"drillx/pkg/hashing/core"
	"drillx/pkg/hashing/methods/software"
)

func quietLogger() Option {
	logger, _ := logtest.NewNullLogger()
	return WithLogger(logger)
}

func TestFactoryDefaultsToLocal(t *testing.T) {
	f := NewBackendFactory(nil, quietLogger())
	defer f.ShutdownAll()

	best, err := f.Best()
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, best.Name())

	caps := best.Capabilities()
	assert.Equal(t, "software", caps.Name)
	assert.Greater(t, caps.MaxBatchSize, 0)

	report := f.GetDetectionReport()
	assert.Equal(t, BackendLocal, report.BestMethod)
	assert.Equal(t, 1, report.AvailableCount)
	require.Len(t, report.Backends, 2)
	assert.Equal(t, BackendRemote, report.Backends[0].Name)
	assert.False(t, report.Backends[0].Available)
	assert.NotEmpty(t, report.Backends[0].Reason)
	assert.NotNil(t, report.Host)
}

func TestFactoryHonoursConfiguredLimits(t *testing.T) {
	cfg := DefaultBackendConfig()
	cfg.MaxBatchSize = 12
	cfg.HeapSize = 4096

	f := NewBackendFactory(cfg, quietLogger(), WithLaunchConfig(pipeline.LaunchConfig{BlockSize: 4, Workers: 2}))
	local := f.Get(BackendLocal)
	require.NotNil(t, local)

	caps := local.Capabilities()
	assert.Equal(t, 12, caps.MaxBatchSize)
	assert.Equal(t, 4096, caps.HeapSize)

	_, err := local.ComputeBatch(context.Background(), make([]byte, core.ChallengeSize), pipeline.NoncesFrom(0, 13), 13)
	assert.True(t, core.IsConfigError(err))
}

func TestFactoryNoFallback(t *testing.T) {
	cfg := DefaultBackendConfig()
	cfg.PreferredOrder = []string{BackendRemote}
	cfg.EnableFallback = false

	f := NewBackendFactory(cfg, quietLogger())
	_, err := f.Best()
	assert.Error(t, err)
	assert.Equal(t, "none", f.GetDetectionReport().BestMethod)
}

func TestFactoryFallsBackWhenRemoteUnreachable(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	lis.Close()

	cfg := DefaultBackendConfig()
	cfg.RemoteAddress = addr
	cfg.DialTimeout = 300 * time.Millisecond

	f := NewBackendFactory(cfg, quietLogger())
	best, err := f.Best()
	require.NoError(t, err)
	assert.Equal(t, BackendLocal, best.Name())
	assert.Nil(t, f.Get(BackendRemote))
}

func TestFactoryPrefersRemote(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	logger, _ := logtest.NewNullLogger()
	server := grpc.NewServer()
	pb.RegisterHasherServer(server, device.NewHasherServer(
		pipeline.NewOrchestrator(software.NewSoftwareEngine(), pipeline.WithLogger(logger)), logger))
	go server.Serve(lis)
	defer server.Stop()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}

	cfg := DefaultBackendConfig()
	cfg.RemoteAddress = "passthrough:///bufnet"

	f := NewBackendFactory(cfg, quietLogger(), WithRemoteOptions(host.WithDialOptions(grpc.WithContextDialer(dialer))))
	defer f.ShutdownAll()

	best, err := f.Best()
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, best.Name())
	assert.Equal(t, "software", best.Capabilities().Name)

	report := f.GetDetectionReport()
	assert.Equal(t, 2, report.AvailableCount)
	assert.Equal(t, BackendRemote, report.BestMethod)
}

func TestBackendConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultBackendConfig().Validate())

	cfg := DefaultBackendConfig()
	cfg.PreferredOrder = []string{"asic"}
	assert.Error(t, cfg.Validate())

	cfg = DefaultBackendConfig()
	cfg.HeapSize = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultBackendConfig()
	cfg.MaxBatchSize = -4
	assert.Error(t, cfg.Validate())
}
