// Package grpc implements the gRPC transport for ttsgraph.
//
// The Compiler service carries CompileRequest and CompileResult as JSON
// over gRPC framing (content-subtype "json"), so no generated stubs are
// needed. The standard gRPC health service runs alongside it.
package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/nadzzz/ttsgraph/internal/message"
	"github.com/nadzzz/ttsgraph/internal/transport"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "ttsgraph.v1.Compiler"

	// CompileMethod is the full method path of Compile.
	CompileMethod = "/" + ServiceName + "/Compile"

	// CodecName is the content-subtype both ends must use.
	CodecName = "json"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals messages with encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return CodecName }

// CompilerServer is the server API of the Compiler service.
type CompilerServer interface {
	Compile(ctx context.Context, req *message.CompileRequest) (*message.CompileResult, error)
}

type compilerServer struct {
	handler transport.Handler
}

func (s *compilerServer) Compile(ctx context.Context, req *message.CompileRequest) (*message.CompileResult, error) {
	res, err := s.handler(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

func compileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(message.CompileRequest)
	if err := dec(req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if interceptor == nil {
		return srv.(CompilerServer).Compile(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: CompileMethod}
	h := func(ctx context.Context, req any) (any, error) {
		return srv.(CompilerServer).Compile(ctx, req.(*message.CompileRequest))
	}
	return interceptor(ctx, req, info, h)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CompilerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: compileHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ttsgraph/v1/compiler",
}

// RegisterCompilerServer registers srv on s.
func RegisterCompilerServer(s grpc.ServiceRegistrar, srv CompilerServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Client calls the Compiler service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Compile sends one request and waits for its result.
func (c *Client) Compile(ctx context.Context, req *message.CompileRequest, opts ...grpc.CallOption) (*message.CompileResult, error) {
	res := new(message.CompileResult)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, CompileMethod, req, res, opts...); err != nil {
		return nil, err
	}
	return res, nil
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	slog.Info("grpc transport listening", "port", t.port)
	return t.Serve(ctx, lis, handler)
}

// Serve runs the server on an existing listener until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = grpc.NewServer()
	t.health = health.NewServer()

	RegisterCompilerServer(t.server, &compilerServer{handler: handler})
	healthpb.RegisterHealthServer(t.server, t.health)
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}
