package parallel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// RemoteBroker is a Broker reached over gRPC.
type RemoteBroker struct {
	conn *grpc.ClientConn
}

// DefaultDialOptions returns the dial options used for broker connections.
func DefaultDialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// DialBroker connects to the broker at addr and waits until it reports SERVING.
// Extra options are appended to DefaultDialOptions.
func DialBroker(ctx context.Context, addr string, opts ...grpc.DialOption) (*RemoteBroker, error) {
	conn, err := grpc.NewClient(addr, append(DefaultDialOptions(), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial broker %s: %w", addr, err)
	}
	if err := WaitForHealth(ctx, conn, BrokerServiceName); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return NewRemoteBroker(conn), nil
}

// NewRemoteBroker wraps an established connection.
func NewRemoteBroker(conn *grpc.ClientConn) *RemoteBroker {
	return &RemoteBroker{conn: conn}
}

// Close closes the connection.
func (b *RemoteBroker) Close() error { return b.conn.Close() }

func (b *RemoteBroker) invoke(ctx context.Context, method string, in, out any) error {
	err := b.conn.Invoke(ctx, "/"+BrokerServiceName+"/"+method, in, out, grpc.CallContentSubtype(codecName))
	return fromStatus(err)
}

func (b *RemoteBroker) Join(ctx context.Context, req JoinRequest) (JoinReply, error) {
	var reply JoinReply
	err := b.invoke(ctx, "Join", &req, &reply)
	return reply, err
}

func (b *RemoteBroker) Exchange(ctx context.Context, req SyncRequest) (SyncReply, error) {
	var reply SyncReply
	err := b.invoke(ctx, "Exchange", &req, &reply)
	return reply, err
}

func (b *RemoteBroker) Post(ctx context.Context, pkt NullPacket) error {
	return b.invoke(ctx, "Post", &pkt, &ack{})
}

func (b *RemoteBroker) Receive(ctx context.Context, group int) ([]NullPacket, error) {
	var reply receiveReply
	if err := b.invoke(ctx, "Receive", &receiveRequest{Group: group}, &reply); err != nil {
		return nil, err
	}
	return reply.Packets, nil
}

func (b *RemoteBroker) Abort(ctx context.Context, group int, reason string) error {
	return b.invoke(ctx, "Abort", &abortRequest{Group: group, Reason: reason}, &ack{})
}

// fromStatus restores the broker sentinel named in a status message.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, sentinel := range brokerErrors {
		if strings.Contains(st.Message(), sentinel.Error()) {
			return fmt.Errorf("%w: %s", sentinel, st.Message())
		}
	}
	return err
}

// WaitForHealth blocks until the health check of service reports SERVING or ctx ends.
func WaitForHealth(ctx context.Context, conn *grpc.ClientConn, service string) error {
	healthClient := grpc_health_v1.NewHealthClient(conn)
	backoff := 100 * time.Millisecond
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := healthClient.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		if err != nil {
			logrus.Debugf("waiting for broker health: %v", err)
		} else {
			logrus.Debugf("waiting for broker health: status %s", response.GetStatus().String())
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for broker health: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < time.Second {
			backoff = min(2*backoff, time.Second)
		}
	}
}
