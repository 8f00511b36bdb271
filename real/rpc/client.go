package rpc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	minBackoff = 10 * time.Millisecond
	maxBackoff = 500 * time.Millisecond
)

// Client sends messages to remote nodes. Connections are created lazily
// and shared per host:port.
type Client struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewClient() *Client {
	return &Client{conns: make(map[string]*grpc.ClientConn)}
}

func (c *Client) conn(target string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.conns[target]; ok {
		return cc, nil
	}
	var kacp = keepalive.ClientParameters{
		Time:                10 * time.Second, // send pings every 10 seconds if there is no activity
		Timeout:             time.Second,      // wait 1 second for ping ack before considering the connection dead
		PermitWithoutStream: true,             // send pings even without active streams
	}
	cc, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	)
	if err != nil {
		return nil, err
	}
	c.conns[target] = cc
	return cc, nil
}

// Send makes one delivery attempt.
func (c *Client) Send(ctx context.Context, req *SendMessageRequest) error {
	return c.send(ctx, req, uuid.NewString())
}

func (c *Client) send(ctx context.Context, req *SendMessageRequest, id string) error {
	target := net.JoinHostPort(req.ReceiverHost, strconv.Itoa(int(req.ReceiverPort)))
	cc, err := c.conn(target)
	if err != nil {
		return err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, MessageIDKey, id)
	resp := new(SendMessageResponse)
	if err := cc.Invoke(ctx, SendMessageMethod, req, resp); err != nil {
		return err
	}
	if resp.Status != StatusSuccess {
		return fmt.Errorf("rpc: receiver answered %q", resp.Status)
	}
	return nil
}

// SendReliable retries the delivery with backoff until it is accepted,
// the receiver reports an unknown process or ctx is done. All attempts
// carry the same message id, so the receiver delivers the message once.
func (c *Client) SendReliable(ctx context.Context, req *SendMessageRequest) error {
	id := uuid.NewString()
	backoff := minBackoff
	for {
		err := c.send(ctx, req, id)
		if err == nil {
			return nil
		}
		if status.Code(err) == codes.NotFound {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff = min(2*backoff, maxBackoff)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for target, cc := range c.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.conns, target)
	}
	return firstErr
}
