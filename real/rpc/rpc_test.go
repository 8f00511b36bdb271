package rpc

import (
	"context"
	"dsbuild/process"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protowire"
)

type recorder struct {
	mu   sync.Mutex
	reqs []*SendMessageRequest
	err  error
}

func (r *recorder) handle(ctx context.Context, req *SendMessageRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.reqs = append(r.reqs, req)
	return nil
}

func (r *recorder) received() []*SendMessageRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*SendMessageRequest(nil), r.reqs...)
}

func startServer(t *testing.T, r *recorder) process.Address {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := NewServer(r.handle, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		require.NoError(t, <-done)
	})
	addr := lis.Addr().(*net.TCPAddr)
	return process.NewAddress("127.0.0.1", uint16(addr.Port), "server")
}

func TestRequestEncoding(t *testing.T) {
	tag := process.Tag(0)
	from := process.NewAddress("10.0.0.1", 8080, "client")
	to := process.NewAddress("10.0.0.2", 9090, "server")
	req := NewRequest(from, to, process.Info("hello"), &tag)

	b, err := codec{}.Marshal(req)
	require.NoError(t, err)
	// unknown fields are skipped
	b = protowire.AppendTag(b, 15, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 42)

	got := new(SendMessageRequest)
	require.NoError(t, codec{}.Unmarshal(b, got))
	assert.Equal(t, got.From(), from)
	assert.Equal(t, got.To(), to)
	assert.Equal(t, *got.MessageTag(), tag)
	if diff := cmp.Diff(got.Message().RawData(), req.MessageData); diff != "" {
		t.Fatalf("data mismatch (-got +want):\n%s", diff)
	}

	untagged := NewRequest(from, to, process.Info("x"), nil)
	b, err = codec{}.Marshal(untagged)
	require.NoError(t, err)
	require.NoError(t, codec{}.Unmarshal(b, got))
	assert.Equal(t, got.MessageTag() == nil, true)

	require.Error(t, codec{}.Unmarshal([]byte{0x0a, 0x05, 'a'}, got))
	_, err = codec{}.Marshal("not a message")
	require.Error(t, err)
}

func TestSendMessage(t *testing.T) {
	r := &recorder{}
	to := startServer(t, r)
	client := NewClient()
	defer client.Close()

	from := process.NewAddress("127.0.0.1", 1, "client")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, client.Send(ctx, NewRequest(from, to, process.Info("a"), nil)))
	require.NoError(t, client.SendReliable(ctx, NewRequest(from, to, process.Info("b"), nil)))

	reqs := r.received()
	assert.Equal(t, len(reqs), 2)
	assert.Equal(t, reqs[0].From(), from)
	text, _ := reqs[1].Message().InfoText()
	assert.Equal(t, text, "b")
}

func TestUnknownProcessIsNotRetried(t *testing.T) {
	r := &recorder{err: ErrUnknownProcess}
	to := startServer(t, r)
	client := NewClient()
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := client.SendReliable(ctx, NewRequest(process.NewAddress("127.0.0.1", 1, "c"), to, process.Info("a"), nil))
	assert.Equal(t, status.Code(err), codes.NotFound)
	assert.Equal(t, ctx.Err(), nil)
}

func TestSendReliableTimeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())

	client := NewClient()
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	to := process.NewAddress("127.0.0.1", uint16(port), "server")
	err = client.SendReliable(ctx, NewRequest(process.NewAddress("127.0.0.1", 1, "c"), to, process.Info("a"), nil))
	assert.Equal(t, err, context.DeadlineExceeded)
}

func TestDuplicateDeliveries(t *testing.T) {
	r := &recorder{}
	srv := NewServer(r.handle, zap.NewNop())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MessageIDKey, "id-1"))
	req := NewRequest(process.NewAddress("h", 1, "a"), process.NewAddress("h", 2, "b"), process.Info("x"), nil)

	for i := 0; i < 3; i++ {
		resp, err := srv.SendMessage(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, resp.Status, StatusSuccess)
	}
	assert.Equal(t, len(r.received()), 1)

	// failed deliveries can be retried
	r.err = ErrUnknownProcess
	ctx2 := metadata.NewIncomingContext(context.Background(), metadata.Pairs(MessageIDKey, "id-2"))
	_, err := srv.SendMessage(ctx2, req)
	assert.Equal(t, status.Code(err), codes.NotFound)
	r.err = nil
	_, err = srv.SendMessage(ctx2, req)
	require.NoError(t, err)
	assert.Equal(t, len(r.received()), 2)
}

func TestSeenIDsLimit(t *testing.T) {
	s := newSeenIDs(2)
	assert.Equal(t, s.add("a"), true)
	assert.Equal(t, s.add("b"), true)
	assert.Equal(t, s.add("a"), false)
	assert.Equal(t, s.add("c"), true)
	// "a" was evicted
	assert.Equal(t, s.add("a"), true)
}
