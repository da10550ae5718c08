package parallel

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// BrokerServiceName is the gRPC service under which the broker is registered.
const BrokerServiceName = "qnetsim.parallel.v1.Broker"

// Wire messages for the calls that have no domain struct of their own.
type (
	receiveRequest struct {
		Group int `json:"group"`
	}
	receiveReply struct {
		Packets []NullPacket `json:"packets,omitempty"`
	}
	abortRequest struct {
		Group  int    `json:"group"`
		Reason string `json:"reason"`
	}
	ack struct{}
)

// brokerService is the server-side handler set of BrokerServiceName.
type brokerService interface {
	Join(ctx context.Context, req *JoinRequest) (*JoinReply, error)
	Exchange(ctx context.Context, req *SyncRequest) (*SyncReply, error)
	Post(ctx context.Context, req *NullPacket) (*ack, error)
	Receive(ctx context.Context, req *receiveRequest) (*receiveReply, error)
	Abort(ctx context.Context, req *abortRequest) (*ack, error)
}

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: BrokerServiceName,
	HandlerType: (*brokerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Join", Handler: unaryHandler("Join", brokerService.Join)},
		{MethodName: "Exchange", Handler: unaryHandler("Exchange", brokerService.Exchange)},
		{MethodName: "Post", Handler: unaryHandler("Post", brokerService.Post)},
		{MethodName: "Receive", Handler: unaryHandler("Receive", brokerService.Receive)},
		{MethodName: "Abort", Handler: unaryHandler("Abort", brokerService.Abort)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qnetsim/parallel/v1/broker",
}

func unaryHandler[Req, Resp any](method string, call func(brokerService, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + BrokerServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(brokerService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(brokerService), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// hubService adapts a Hub to brokerService.
type hubService struct {
	hub *Hub
}

func (s hubService) Join(ctx context.Context, req *JoinRequest) (*JoinReply, error) {
	reply, err := s.hub.Join(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &reply, nil
}

func (s hubService) Exchange(ctx context.Context, req *SyncRequest) (*SyncReply, error) {
	reply, err := s.hub.Exchange(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &reply, nil
}

func (s hubService) Post(ctx context.Context, req *NullPacket) (*ack, error) {
	if err := s.hub.Post(ctx, *req); err != nil {
		return nil, toStatus(err)
	}
	return &ack{}, nil
}

func (s hubService) Receive(ctx context.Context, req *receiveRequest) (*receiveReply, error) {
	packets, err := s.hub.Receive(ctx, req.Group)
	if err != nil {
		return nil, toStatus(err)
	}
	return &receiveReply{Packets: packets}, nil
}

func (s hubService) Abort(ctx context.Context, req *abortRequest) (*ack, error) {
	if err := s.hub.Abort(ctx, req.Group, req.Reason); err != nil {
		return nil, toStatus(err)
	}
	return &ack{}, nil
}

// toStatus maps hub errors onto gRPC status codes. The message keeps the
// sentinel text so that RemoteBroker can restore it.
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, ErrAborted):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
}

// BrokerServer serves a Hub over gRPC, with a health service reporting SERVING
// while the hub accepts calls.
type BrokerServer struct {
	hub        *Hub
	grpcServer *grpc.Server
	health     *health.Server
}

// NewBrokerServer creates a server for hub. Extra options are appended to the
// default OpenTelemetry stats handler.
func NewBrokerServer(hub *Hub, opts ...grpc.ServerOption) *BrokerServer {
	grpcServer := grpc.NewServer(append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)...)
	healthServer := health.NewServer()
	grpcServer.RegisterService(&brokerServiceDesc, hubService{hub: hub})
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(BrokerServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return &BrokerServer{hub: hub, grpcServer: grpcServer, health: healthServer}
}

// Hub returns the served hub.
func (s *BrokerServer) Hub() *Hub { return s.hub }

// Serve accepts connections on lis until ctx is cancelled.
func (s *BrokerServer) Serve(ctx context.Context, lis net.Listener) error {
	logrus.Infof("broker %s listening at %v", s.hub.RunID(), lis.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve broker: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve broker: %w", err)
	}
}

// Stop closes every connection immediately.
func (s *BrokerServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.Stop()
}
