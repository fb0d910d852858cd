package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/fairaudit/internal/metric"
)

// #region client-struct
// Client calls one worker.
type Client struct {
	conn   *grpc.ClientConn
	invoke grpc.ClientConnInterface
	addr   string
}
// #endregion client-struct

// #region constructor
// NewClient connects to a worker. The connection is established lazily on
// the first call.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, invoke: conn, addr: addr}, nil
}

// NewClientWithConn wraps an existing connection, which the client does not
// close.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{invoke: cc}
}
// #endregion constructor

// Addr is the dialed address, empty for wrapped connections.
func (c *Client) Addr() string { return c.addr }

// #region close
// Close shuts down the gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
// #endregion close

// #region evaluate
// Evaluate runs one metric evaluation on the worker.
func (c *Client) Evaluate(ctx context.Context, m metric.Metric, in metric.Input) (metric.Result, error) {
	req, err := encodeRequest(m, in)
	if err != nil {
		return metric.Result{}, err
	}
	resp := new(structpb.Struct)
	if err := c.invoke.Invoke(ctx, evaluateMethod, req, resp); err != nil {
		return metric.Result{}, fmt.Errorf("evaluate rpc %s: %w", m.Name, err)
	}
	return decodeResult(resp)
}
// #endregion evaluate

// #region remote
// RemoteEvaluator spreads evaluations over workers round-robin. It satisfies
// metric.Evaluator, so a distributed report is a parallel report with this
// evaluator plugged in.
type RemoteEvaluator struct {
	clients []*Client
	next    atomic.Uint64
}

var _ metric.Evaluator = (*RemoteEvaluator)(nil)

// NewRemoteEvaluator requires at least one client.
func NewRemoteEvaluator(clients ...*Client) (*RemoteEvaluator, error) {
	if len(clients) == 0 {
		return nil, errors.New("worker: no workers configured")
	}
	return &RemoteEvaluator{clients: clients}, nil
}

func (r *RemoteEvaluator) Evaluate(ctx context.Context, m metric.Metric, in metric.Input) (metric.Result, error) {
	i := r.next.Add(1) - 1
	return r.clients[i%uint64(len(r.clients))].Evaluate(ctx, m, in)
}

// Close closes every client.
func (r *RemoteEvaluator) Close() error {
	var errs []error
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dial connects to every address.
func Dial(addrs []string, opts ...grpc.DialOption) (*RemoteEvaluator, error) {
	clients := make([]*Client, 0, len(addrs))
	for _, addr := range addrs {
		c, err := NewClient(addr, opts...)
		if err != nil {
			for _, open := range clients {
				open.Close()
			}
			return nil, err
		}
		clients = append(clients, c)
	}
	return NewRemoteEvaluator(clients...)
}
// #endregion remote
