package api

import (
	"context"
	"dsbuild/process"
	"dsbuild/raft"
	"errors"
	"fmt"
	"sync"
)

var ErrBadReplica = errors.New("unknown replica")

// RequestRegister hands out command ids of one replica and routes the
// local responses of the raft process back to the waiting requests.
type RequestRegister struct {
	me     int
	nodes  []string
	toProc chan<- process.Message

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]chan raft.LocalResponse
}

// NewRequestRegister continues the ids of replica me after seq. nodes are
// the listen addresses of all replicas.
func NewRequestRegister(me int, seq uint64, nodes []string, toProc chan<- process.Message) *RequestRegister {
	return &RequestRegister{
		me:      me,
		nodes:   nodes,
		toProc:  toProc,
		seq:     seq,
		pending: make(map[uint64]chan raft.LocalResponse),
	}
}

// RegisterCommand passes a command to the process. The returned channel
// yields its response.
func (r *RequestRegister) RegisterCommand(ctx context.Context, ct raft.CommandType) (raft.CommandID, <-chan raft.LocalResponse, error) {
	return r.register(ctx, func(id raft.CommandID) process.Message {
		return process.MessageFrom(raft.Command{Type: ct, ID: id})
	})
}

func (r *RequestRegister) RegisterRead(ctx context.Context, key string, minCommitID *int64) (raft.CommandID, <-chan raft.LocalResponse, error) {
	return r.register(ctx, func(id raft.CommandID) process.Message {
		return process.MessageFrom(raft.ReadValueRequest{Key: key, RequestID: id, MinCommitID: minCommitID})
	})
}

func (r *RequestRegister) register(ctx context.Context, build func(id raft.CommandID) process.Message) (raft.CommandID, <-chan raft.LocalResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := raft.CommandID{Server: r.me, Seq: r.seq}
	ch := make(chan raft.LocalResponse, 1)
	r.pending[id.Seq] = ch

	// the lock is held so the process sees ids in order
	select {
	case r.toProc <- build(id):
		return id, ch, nil
	case <-ctx.Done():
		delete(r.pending, id.Seq)
		return id, nil, ctx.Err()
	}
}

// Respond delivers a response to its request. Responses nobody waits for
// any more are dropped.
func (r *RequestRegister) Respond(resp raft.LocalResponse) bool {
	if resp.RequestID.Server != r.me {
		return false
	}
	r.mu.Lock()
	ch, ok := r.pending[resp.RequestID.Seq]
	delete(r.pending, resp.RequestID.Seq)
	r.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

// Forget drops a request which is not waited for.
func (r *RequestRegister) Forget(id raft.CommandID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id.Seq)
}

// AddrOf returns the listen address of replica i.
func (r *RequestRegister) AddrOf(i int) (string, error) {
	if i < 0 || i >= len(r.nodes) {
		return "", fmt.Errorf("%w: %d", ErrBadReplica, i)
	}
	return r.nodes[i], nil
}

func (r *RequestRegister) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
