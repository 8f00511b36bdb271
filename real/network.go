package real

import (
	"context"
	"dsbuild/process"
	"dsbuild/real/rpc"
	"fmt"
	"sync"
)

var errStopped = fmt.Errorf("%w: process stopped", rpc.ErrUnknownProcess)

type waiterKey struct {
	proc string
	tag  process.Tag
}

// networkManager routes messages received by the node: tagged replies
// go to the waiting activity, the rest to the receiver process.
type networkManager struct {
	n       *Node
	mu      sync.Mutex
	waiters map[waiterKey]chan process.Message
}

func newNetworkManager(n *Node) *networkManager {
	return &networkManager{n: n, waiters: make(map[waiterKey]chan process.Message)}
}

func (nm *networkManager) route(ctx context.Context, req *rpc.SendMessageRequest) error {
	if tag := req.MessageTag(); tag != nil {
		key := waiterKey{proc: req.ReceiverProcess, tag: *tag}
		nm.mu.Lock()
		ch, ok := nm.waiters[key]
		if ok {
			delete(nm.waiters, key)
		}
		nm.mu.Unlock()
		if ok {
			ch <- req.Message()
			return nil
		}
	}
	pm, ok := nm.n.process(req.ReceiverProcess)
	if !ok {
		return fmt.Errorf("%w: %q", rpc.ErrUnknownProcess, req.ReceiverProcess)
	}
	return pm.deliver(ctx, incoming{msg: req.Message(), from: req.From()})
}

// wait registers a waiter for the tagged message to the process.
func (nm *networkManager) wait(proc string, tag process.Tag) (chan process.Message, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	key := waiterKey{proc: proc, tag: tag}
	if _, ok := nm.waiters[key]; ok {
		return nil, fmt.Errorf("%w: tag %d is already awaited", process.ErrNotSent, tag)
	}
	ch := make(chan process.Message, 1)
	nm.waiters[key] = ch
	return ch, nil
}

func (nm *networkManager) unwait(proc string, tag process.Tag, ch chan process.Message) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	key := waiterKey{proc: proc, tag: tag}
	if nm.waiters[key] == ch {
		delete(nm.waiters, key)
	}
}
