package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/asakaida/warehouse/internal/infrastructure/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type roleKey struct{}

// RoleFromContext returns the role attached by AuthInterceptor
func RoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(roleKey{}).(string)
	return role, ok
}

// AuthInterceptor checks bearer tokens on Warehouse methods. Read methods
// accept any known token; write methods need the writer role. An empty
// token map disables the check.
func AuthInterceptor(tokens map[string]string) grpc.UnaryServerInterceptor {
	prefix := "/" + ServiceName + "/"
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if len(tokens) == 0 || !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}

		token, err := bearerToken(ctx)
		if err != nil {
			return nil, err
		}
		role, ok := tokens[token]
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		method := strings.TrimPrefix(info.FullMethod, prefix)
		if writeMethods[method] && role != config.RoleWriter {
			return nil, status.Errorf(codes.PermissionDenied, "%s requires the %s role", method, config.RoleWriter)
		}
		return handler(context.WithValue(ctx, roleKey{}, role), req)
	}
}

func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", status.Error(codes.Unauthenticated, "missing authorization header")
	}
	scheme, token, found := strings.Cut(values[0], " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", status.Error(codes.Unauthenticated, "authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

// LoggingInterceptor logs every unary call with its outcome
func LoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", code.String()),
		}
		switch code {
		case codes.OK:
			logger.Debug("request handled", fields...)
		case codes.Internal, codes.DataLoss, codes.Unknown:
			logger.Error("request failed", append(fields, zap.Error(err))...)
		default:
			logger.Info("request rejected", append(fields, zap.Error(err))...)
		}
		return resp, err
	}
}
