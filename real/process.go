package real

import (
	"context"
	"dsbuild/process"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

type incoming struct {
	msg  process.Message
	from process.Address
}

// processManager drives one process. Handlers run one at a time with
// the process lock held; blocking context calls release the lock while
// they wait, so spawned activities interleave with handlers only there.
type processManager struct {
	n      *Node
	name   string
	addr   process.Address
	proc   process.Process
	locker sync.Locker
	logger *zap.Logger

	fromUser chan process.Message
	toUser   chan process.Message
	network  chan incoming
	timers   *TimerManager

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once
	activities sync.WaitGroup

	rctx *realContext
}

func newProcessManager(n *Node, name string, p process.Process, locker sync.Locker) *processManager {
	ctx, cancel := context.WithCancel(context.Background())
	addr := process.NewAddress(n.host, n.port, name)
	pm := &processManager{
		n:        n,
		name:     name,
		addr:     addr,
		proc:     p,
		locker:   locker,
		logger:   n.logger.With(zap.Stringer("process", addr)),
		fromUser: make(chan process.Message, n.bufferSize),
		toUser:   make(chan process.Message, n.bufferSize),
		network:  make(chan incoming, n.bufferSize),
		timers:   NewTimerManager(n.bufferSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	pm.rctx = &realContext{pm: pm}
	return pm
}

func (pm *processManager) run(ctx context.Context) {
	for !pm.stopped() {
		select {
		case <-ctx.Done():
			pm.stop()
		case <-pm.done:
		case msg := <-pm.fromUser:
			pm.invoke("local message", func() error {
				return pm.proc.OnLocalMessage(pm.rctx, msg)
			})
		case in := <-pm.network:
			pm.invoke("message", func() error {
				return pm.proc.OnMessage(pm.rctx, in.msg, in.from)
			})
		case f := <-pm.timers.Fired():
			if !pm.timers.Claim(f) {
				continue
			}
			pm.invoke("timer", func() error {
				return pm.proc.OnTimer(pm.rctx, f.Name)
			})
		}
	}
	pm.activities.Wait()
}

// invoke runs a handler in its own goroutine, so a handler blocked when
// the process stops can be abandoned.
func (pm *processManager) invoke(event string, handler func() error) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		pm.locker.Lock()
		defer pm.locker.Unlock()
		if pm.stopped() {
			return
		}
		if err := handler(); err != nil {
			pm.logger.Warn("handler failed", zap.String("event", event), zap.Error(err))
		}
	}()
	<-done
}

// block releases the process lock while wait runs. The calling goroutine
// exits if the process was stopped meanwhile.
func (pm *processManager) block(wait func()) {
	pm.locker.Unlock()
	wait()
	pm.locker.Lock()
	if pm.stopped() {
		runtime.Goexit()
	}
}

func (pm *processManager) spawn(fn func()) {
	if pm.stopped() {
		return
	}
	pm.activities.Add(1)
	go func() {
		defer pm.activities.Done()
		pm.locker.Lock()
		defer pm.locker.Unlock()
		if pm.stopped() {
			return
		}
		fn()
	}()
}

// deliver queues a network message for the process.
func (pm *processManager) deliver(ctx context.Context, in incoming) error {
	select {
	case pm.network <- in:
		return nil
	case <-pm.done:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pm *processManager) stop() {
	pm.stopOnce.Do(func() {
		close(pm.done)
		pm.cancel()
		pm.timers.Close()
		pm.logger.Debug("process stopped")
	})
}

func (pm *processManager) stopped() bool {
	select {
	case <-pm.done:
		return true
	default:
		return false
	}
}
