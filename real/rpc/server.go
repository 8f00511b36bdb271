package rpc

import (
	"context"
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// MessageIDKey is the metadata key of the delivery id. Retries of one
// delivery carry the same id.
const MessageIDKey = "message-id"

// ErrUnknownProcess is returned by a Handler when the receiver process
// does not run on the node. Such deliveries are not retried.
var ErrUnknownProcess = errors.New("unknown process")

// Handler accepts a message received from the network.
type Handler func(ctx context.Context, req *SendMessageRequest) error

type MessagePassingServer interface {
	SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessagePassingServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendMessage",
			Handler:    sendMessageHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "message_passing.proto",
}

func sendMessageHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SendMessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MessagePassingServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SendMessageMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MessagePassingServer).SendMessage(ctx, req.(*SendMessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

type Server struct {
	handler Handler
	logger  *zap.Logger
	seen    *seenIDs
	srv     *grpc.Server
}

var _ MessagePassingServer = (*Server)(nil)

func NewServer(handler Handler, logger *zap.Logger) *Server {
	s := &Server{
		handler: handler,
		logger:  logger,
		seen:    newSeenIDs(4096),
		srv:     grpc.NewServer(grpc.ForceServerCodec(codec{})),
	}
	s.srv.RegisterService(&serviceDesc, s)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("message passing server started", zap.Stringer("addr", lis.Addr()))
	err := s.srv.Serve(lis)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

func (s *Server) Stop() {
	s.srv.Stop()
}

func (s *Server) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	id := messageID(ctx)
	if id != "" && !s.seen.add(id) {
		return &SendMessageResponse{Status: StatusSuccess}, nil
	}
	if err := s.handler(ctx, req); err != nil {
		if id != "" {
			s.seen.remove(id)
		}
		if errors.Is(err, ErrUnknownProcess) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &SendMessageResponse{Status: StatusSuccess}, nil
}

func messageID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if ids := md.Get(MessageIDKey); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

// seenIDs remembers the latest delivery ids.
type seenIDs struct {
	mu    sync.Mutex
	limit int
	ids   map[string]struct{}
	order []string
}

func newSeenIDs(limit int) *seenIDs {
	return &seenIDs{limit: limit, ids: make(map[string]struct{})}
}

// add returns false if id was seen.
func (s *seenIDs) add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
	if len(s.order) > s.limit {
		delete(s.ids, s.order[0])
		s.order = s.order[1:]
	}
	return true
}

func (s *seenIDs) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}
