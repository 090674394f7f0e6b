package hasherv1

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"drillx/pkg/hashing/core"
)

func TestBatchRequestFraming(t *testing.T) {
	challenge := make([]byte, core.ChallengeSize)
	challenge[0] = 0xaa
	nonces := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}

	gotChallenge, gotNonces, batch, err := DecodeBatchRequest(EncodeBatchRequest(challenge, nonces, -2))
	require.NoError(t, err)
	assert.Equal(t, challenge, gotChallenge)
	assert.Equal(t, nonces, gotNonces)
	assert.Equal(t, int32(-2), batch)

	_, _, _, err = DecodeBatchRequest(EncodeBatchRequest(make([]byte, 10), nil, 1))
	assert.Error(t, err)
}

func TestStatusRoundTrip(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{core.NewConfigError("ComputeBatch", "batch size must be positive, got %d", 0), codes.InvalidArgument},
		{core.NewInvalidNonceError("ComputeBatch", 7, 16), codes.InvalidArgument},
		{core.NewContextInitError("BuildPool", 3, errors.New("oom")), codes.FailedPrecondition},
		{core.NewComputeFault("solve", 9, errors.New("panic: boom")), codes.Internal},
	}

	for _, tt := range tests {
		st := StatusFromError(tt.err)
		assert.Equal(t, tt.code, status.Code(st), "%v", tt.err)

		back := ErrorFromStatus(st)
		var want, got *core.HashError
		require.True(t, errors.As(tt.err, &want))
		require.True(t, errors.As(back, &got), "%v", back)
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.Op, got.Op)
		assert.Equal(t, want.Lane, got.Lane)
		assert.Equal(t, want.Message, got.Message)
	}
}

func TestStatusPlainErrors(t *testing.T) {
	assert.Nil(t, StatusFromError(nil))
	assert.Equal(t, codes.Internal, status.Code(StatusFromError(errors.New("disk full"))))
	assert.Equal(t, codes.Canceled, status.Code(StatusFromError(context.Canceled)))

	unavailable := status.Error(codes.Unavailable, "connection refused")
	assert.Equal(t, unavailable, ErrorFromStatus(unavailable))

	bare := ErrorFromStatus(status.Error(codes.InvalidArgument, "bad"))
	assert.True(t, core.IsConfigError(bare))
}
