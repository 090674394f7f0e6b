package host

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"drillx/internal/driver/device"
	pb "drillx/internal/proto/hasher/v1"
	"drillx/pkg/hashing/core"
)

const (
	// DefaultHasherServerAddress is the default address of hasher-server
	DefaultHasherServerAddress = "127.0.0.1:8888"

	defaultVerifyTimeout = 5 * time.Second
)

// RemoteHasher computes batches on a hasher-server over gRPC
type RemoteHasher struct {
	client     pb.HasherClient
	conn       *grpc.ClientConn
	serverAddr string
	caps       *core.Capabilities
}

// Option configures a RemoteHasher
type Option func(*options)

type options struct {
	verifyTimeout time.Duration
	dialOptions   []grpc.DialOption
}

// WithVerifyTimeout bounds the Info call made while connecting
func WithVerifyTimeout(d time.Duration) Option {
	return func(o *options) { o.verifyTimeout = d }
}

// WithDialOptions appends gRPC dial options
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOptions = append(o.dialOptions, opts...) }
}

// NewRemoteHasher connects to the hasher-server at serverAddr and verifies
// the connection with an Info call
func NewRemoteHasher(serverAddr string, opts ...Option) (*RemoteHasher, error) {
	o := &options{verifyTimeout: defaultVerifyTimeout}
	for _, opt := range opts {
		opt(o)
	}

	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, o.dialOptions...)
	conn, err := grpc.NewClient(serverAddr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to hasher-server: %w", err)
	}

	r := &RemoteHasher{
		client:     pb.NewHasherClient(conn),
		conn:       conn,
		serverAddr: serverAddr,
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.verifyTimeout)
	defer cancel()

	info, err := r.client.Info(ctx, &emptypb.Empty{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to reach hasher-server at %s: %w", serverAddr, err)
	}
	r.caps = device.CapabilitiesFromInfo(info)

	return r, nil
}

// Address returns the server address
func (r *RemoteHasher) Address() string {
	return r.serverAddr
}

// ComputeBatch implements core.BatchHasher. Server-side batch errors come
// back as HashErrors; transport failures are returned as gRPC status errors.
func (r *RemoteHasher) ComputeBatch(ctx context.Context, challenge, nonces []byte, batchSize int32) ([]byte, error) {
	resp, err := r.client.ComputeBatch(ctx, pb.EncodeBatchRequest(challenge, nonces, batchSize))
	if err != nil {
		return nil, pb.ErrorFromStatus(err)
	}

	digests := resp.GetValue()
	if batchSize <= 0 || len(digests) != int(batchSize)*core.DigestSize {
		return nil, fmt.Errorf("hasher-server returned %d digest bytes for a batch of %d", len(digests), batchSize)
	}
	return digests, nil
}

// Capabilities returns the capabilities reported when connecting
func (r *RemoteHasher) Capabilities() *core.Capabilities {
	caps := *r.caps
	return &caps
}

// Refresh re-reads the server capabilities
func (r *RemoteHasher) Refresh(ctx context.Context) (*core.Capabilities, error) {
	info, err := r.client.Info(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, pb.ErrorFromStatus(err)
	}
	r.caps = device.CapabilitiesFromInfo(info)
	return r.Capabilities(), nil
}

// Close the connection
func (r *RemoteHasher) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
