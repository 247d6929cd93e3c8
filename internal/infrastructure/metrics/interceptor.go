package metrics

import (
	"context"
	"path"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// MethodName strips the service prefix from a full gRPC method name
func MethodName(fullMethod string) string {
	return path.Base(fullMethod)
}

// UnaryServerInterceptor returns a gRPC interceptor that records request
// count, latency and failures for calls into the services named by prefixes
// (e.g. "/warehouse.v1.Warehouse/"). With no prefixes every call is recorded.
func UnaryServerInterceptor(collector *Collector, exporter *PrometheusExporter, prefixes ...string) grpc.UnaryServerInterceptor {
	tracked := func(fullMethod string) bool {
		if len(prefixes) == 0 {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(fullMethod, p) {
				return true
			}
		}
		return false
	}

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !tracked(info.FullMethod) {
			return handler(ctx, req)
		}

		method := MethodName(info.FullMethod)
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start).Seconds()

		collector.RecordRequest(method)
		collector.RecordDuration(method, elapsed)
		if err != nil {
			collector.RecordError(method)
		}

		if exporter != nil {
			exporter.RecordRequest(method)
			exporter.RecordDuration(method, elapsed)
			if err != nil {
				exporter.RecordError(method, status.Code(err).String())
			}
		}

		return resp, err
	}
}
