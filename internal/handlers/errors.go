package handlers

import (
	"context"
	"errors"

	"github.com/asakaida/warehouse/internal/entities"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps a domain error onto a gRPC status
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, entities.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, entities.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, entities.ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, entities.ErrCorruption):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}
