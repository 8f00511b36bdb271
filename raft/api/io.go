package api

import (
	"context"
	"dsbuild/process"
	"dsbuild/raft"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrProcessStopped = errors.New("raft process stopped")

// Local is the user side of a raft process.
type Local interface {
	Sender() chan<- process.Message
	Receiver() <-chan process.Message
	Stopped() <-chan struct{}
}

// Run initializes the replica me behind local and serves its users on ln
// until ctx is done or the process stops. nodes are the listen addresses
// of all replicas.
func Run(ctx context.Context, me int, ln net.Listener, nodes []string, local Local, opts ...Option) error {
	defer ln.Close()

	seq, err := initialize(ctx, local)
	if err != nil {
		return err
	}
	register := NewRequestRegister(me, seq, nodes, local.Sender())
	srv := NewServer(register, opts...)
	srv.logger.Info("replica initialized", zap.Int("replica", me), zap.Uint64("seq_num", seq))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		err := srv.Shutdown()
		ln.Close()
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-local.Stopped():
				return ErrProcessStopped
			case msg := <-local.Receiver():
				dispatch(srv, register, msg)
			}
		}
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func initialize(ctx context.Context, local Local) (uint64, error) {
	select {
	case local.Sender() <- process.MessageFrom(raft.InitializeRequest{}):
	case <-local.Stopped():
		return 0, ErrProcessStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	for {
		select {
		case msg := <-local.Receiver():
			if msg.Tip() != raft.InitializeResponseTip {
				continue
			}
			var resp raft.InitializeResponse
			if err := msg.Data(&resp); err != nil {
				return 0, fmt.Errorf("initialize: %w", err)
			}
			return resp.SeqNum, nil
		case <-local.Stopped():
			return 0, ErrProcessStopped
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func dispatch(srv *Server, register *RequestRegister, msg process.Message) {
	switch msg.Tip() {
	case raft.LocalResponseTip:
		var resp raft.LocalResponse
		if err := msg.Data(&resp); err != nil {
			srv.logger.Error("bad local response", zap.Error(err))
			return
		}
		if !register.Respond(resp) {
			srv.logger.Debug("response without request", zap.Stringer("response", resp))
		}
	case raft.StateInfoTip:
		var info raft.StateInfo
		if err := msg.Data(&info); err != nil {
			srv.logger.Error("bad state info", zap.Error(err))
			return
		}
		srv.logger.Info("state changed",
			zap.String("role", string(info.Role)),
			zap.Int64("term", info.CurrentTerm),
			zap.Int("leader", info.Leader))
	default:
		srv.logger.Debug("unexpected local message", zap.String("tip", msg.Tip()))
	}
}
