package hasherv1

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"drillx/pkg/hashing/core"
)

// StatusFromError converts a batch error into a gRPC status error. The
// HashError fields travel as a Struct detail so clients can rebuild it.
func StatusFromError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	var he *core.HashError
	if !errors.As(err, &he) {
		return status.Error(codes.Internal, err.Error())
	}

	st := status.New(CodeFor(he.Type), err.Error())
	detail, derr := structpb.NewStruct(map[string]interface{}{
		"type":    he.Type.String(),
		"op":      he.Op,
		"lane":    he.Lane,
		"message": he.Message,
	})
	if derr == nil {
		if withDetail, werr := st.WithDetails(detail); werr == nil {
			st = withDetail
		}
	}
	return st.Err()
}

// CodeFor maps an error type to its gRPC status code
func CodeFor(t core.ErrorType) codes.Code {
	switch t {
	case core.ErrorConfig, core.ErrorInvalidNonce:
		return codes.InvalidArgument
	case core.ErrorContextInit:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// ErrorFromStatus converts a gRPC status error back into a HashError when
// the status carries one. Transport errors are returned unchanged.
func ErrorFromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK {
		return err
	}

	for _, d := range st.Details() {
		detail, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		fields := detail.GetFields()
		t, ok := core.ParseErrorType(fields["type"].GetStringValue())
		if !ok {
			continue
		}
		return &core.HashError{
			Type:    t,
			Op:      fields["op"].GetStringValue(),
			Lane:    int(fields["lane"].GetNumberValue()),
			Message: fields["message"].GetStringValue(),
		}
	}

	switch st.Code() {
	case codes.InvalidArgument:
		return &core.HashError{Type: core.ErrorConfig, Op: "remote", Lane: core.NoLane, Message: st.Message()}
	case codes.FailedPrecondition:
		return &core.HashError{Type: core.ErrorContextInit, Op: "remote", Lane: core.NoLane, Message: st.Message()}
	}
	return err
}
