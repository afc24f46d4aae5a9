// SPDX-License-Identifier: Apache-2.0

package grpcserver

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jllopis/allot/pkg/errors"
)

// ToGRPCStatus converts an error to a gRPC status error. The allot code,
// recoverability and context travel as a google.protobuf.Struct detail.
func ToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	ae := errors.AsAllotError(err)
	st := status.New(mapErrorCodeToGRPC(ae.Code), ae.Message)
	fields := map[string]any{
		"code":        string(ae.Code),
		"recoverable": ae.Recoverable,
	}
	if len(ae.Context) > 0 {
		ctx := make(map[string]any, len(ae.Context))
		for k, v := range ae.Context {
			ctx[k] = structValue(v)
		}
		fields["context"] = ctx
	}
	if detail, derr := structpb.NewStruct(fields); derr == nil {
		if withDetail, werr := st.WithDetails(detail); werr == nil {
			st = withDetail
		}
	}
	return st.Err()
}

// CodeFromStatus recovers the allot error code from a status produced by
// ToGRPCStatus, or "" when the status carries none.
func CodeFromStatus(err error) errors.ErrorCode {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			if v, ok := s.GetFields()["code"]; ok {
				return errors.ErrorCode(v.GetStringValue())
			}
		}
	}
	return ""
}

func structValue(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64, string, bool, nil:
		return x
	default:
		if s, ok := v.(interface{ String() string }); ok {
			return s.String()
		}
		return ""
	}
}

func mapErrorCodeToGRPC(code errors.ErrorCode) codes.Code {
	switch code {
	case errors.CodeInvalidInput:
		return codes.InvalidArgument
	case errors.CodeNotFound:
		return codes.NotFound
	case errors.CodeInfeasible, errors.CodeNoCandidate:
		return codes.FailedPrecondition
	case errors.CodeSolverTimeout:
		return codes.DeadlineExceeded
	case errors.CodeDataUnavailable:
		return codes.Unavailable
	case errors.CodeInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}
