package handlers

import (
	"context"
	"testing"

	"github.com/asakaida/warehouse/internal/infrastructure/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestAuthInterceptor(t *testing.T) {
	tokens := map[string]string{
		"w-token": config.RoleWriter,
		"r-token": config.RoleReader,
	}
	client := startServer(t, newTestHandler(t, nil, nil, nil), AuthInterceptor(tokens))

	read := func() *structpb.Struct { return mustStruct(t, map[string]interface{}{"id": 1}) }
	write := func() *structpb.Struct { return mustStruct(t, map[string]interface{}{"name": "Acme"}) }

	tests := []struct {
		name     string
		header   string
		method   string
		req      func() *structpb.Struct
		wantCode codes.Code
	}{
		{name: "正常系: reader reads", header: "Bearer r-token", method: MethodGetProject, req: read, wantCode: codes.OK},
		{name: "正常系: writer reads", header: "Bearer w-token", method: MethodGetProject, req: read, wantCode: codes.OK},
		{name: "正常系: writer writes", header: "bearer w-token", method: MethodUpsertEntity, req: write, wantCode: codes.OK},
		{name: "異常系: reader writes", header: "Bearer r-token", method: MethodUpsertEntity, req: write, wantCode: codes.PermissionDenied},
		{name: "異常系: unknown token", header: "Bearer nope", method: MethodGetProject, req: read, wantCode: codes.Unauthenticated},
		{name: "異常系: no header", method: MethodGetProject, req: read, wantCode: codes.Unauthenticated},
		{name: "異常系: basic scheme", header: "Basic w-token", method: MethodGetProject, req: read, wantCode: codes.Unauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.header != "" {
				ctx = metadata.AppendToOutgoingContext(ctx, "authorization", tt.header)
			}
			_, err := client.Call(ctx, tt.method, tt.req())
			if status.Code(err) != tt.wantCode {
				t.Errorf("%s code = %v (%v), want %v", tt.method, status.Code(err), err, tt.wantCode)
			}
		})
	}
}

func TestAuthInterceptor_Disabled(t *testing.T) {
	client := startServer(t, newTestHandler(t, nil, nil, nil), AuthInterceptor(nil))

	_, err := client.Call(context.Background(), MethodUpsertEntity, mustStruct(t, map[string]interface{}{"name": "Acme"}))
	if err != nil {
		t.Errorf("UpsertEntity() without auth error = %v", err)
	}
}

func TestLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	client := startServer(t, newTestHandler(t, nil, nil, nil), LoggingInterceptor(zap.New(core)))

	if _, err := client.Call(context.Background(), MethodGetProject, mustStruct(t, map[string]interface{}{"id": 1})); err != nil {
		t.Fatalf("GetProject() error: %v", err)
	}
	if _, err := client.Call(context.Background(), MethodGetProject, &structpb.Struct{}); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("GetProject() code = %v, want InvalidArgument", status.Code(err))
	}

	handled := logs.FilterMessage("request handled").All()
	if len(handled) != 1 || handled[0].ContextMap()["method"] != FullMethod(MethodGetProject) {
		t.Errorf("handled entries = %v", handled)
	}
	rejected := logs.FilterMessage("request rejected").All()
	if len(rejected) != 1 || rejected[0].ContextMap()["code"] != "InvalidArgument" {
		t.Errorf("rejected entries = %v", rejected)
	}
}
