package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/dmitrijs2005/gophsync/internal/server/services"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// codeFor maps a service error to a gRPC code by its tag.
func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrUserNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrStorageLimitExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, common.ErrorValidation):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrAlreadyExists):
		return codes.AlreadyExists
	case errors.Is(err, common.ErrInvalidReference):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrVersionConflict):
		return codes.Aborted
	case errors.Is(err, common.ErrDecryption):
		return codes.DataLoss
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorUnauthorized):
		return codes.Unauthenticated
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// toStatus converts a service error into a gRPC status error. Internal
// errors are logged and their text is not sent to the client.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	code := codeFor(err)
	if code == codes.Internal {
		s.logger.Error(ctx, op+" failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	s.logger.Debug(ctx, op+" rejected", "code", code.String(), "error", err)

	st := status.New(code, err.Error())

	var limitErr *services.StorageLimitError
	if errors.As(err, &limitErr) {
		if withDetails, derr := st.WithDetails(&errdetails.QuotaFailure{
			Violations: []*errdetails.QuotaFailure_Violation{{
				Subject: "storage",
				Description: fmt.Sprintf("projected %d of %d bytes, %d over",
					limitErr.Info.Used, limitErr.Info.Limit, limitErr.Shortfall()),
			}},
		}); derr == nil {
			st = withDetails
		}
	}
	return st.Err()
}

func validationStatus(err error) error {
	var se *SchemaError
	if !errors.As(err, &se) {
		return status.Error(codes.Internal, "internal error")
	}

	st := status.New(codes.InvalidArgument, se.Error())
	br := &errdetails.BadRequest{}
	for _, v := range se.Violations {
		br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
			Field:       v.Field,
			Description: v.Description,
		})
	}
	if withDetails, derr := st.WithDetails(br); derr == nil {
		st = withDetails
	}
	return st.Err()
}
