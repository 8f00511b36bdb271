// Package real runs processes on a real node: gRPC networking, wall clock
// timers and files under a mount directory.
package real

import (
	"context"
	"dsbuild/process"
	"dsbuild/real/rpc"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultBufferSize = 4 << 10

var (
	ErrProcessExists = errors.New("process already exists")
	ErrBadName       = errors.New("bad process name")
	ErrRunning       = errors.New("node is running")
)

type Option func(*Node)

func WithLogger(logger *zap.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithBufferSize sets the capacity of the channels between the node and its processes.
func WithBufferSize(size int) Option {
	return func(n *Node) {
		n.bufferSize = size
	}
}

// WithSendTimeout bounds the attempt of an unreliable send.
func WithSendTimeout(d time.Duration) Option {
	return func(n *Node) {
		n.sendTimeout = d
	}
}

// Node runs processes which share its host, port and mount directory.
type Node struct {
	host     string
	port     uint16
	mountDir string

	logger      *zap.Logger
	bufferSize  int
	sendTimeout time.Duration

	mu      sync.Mutex
	running bool
	procs   map[string]*processManager
	spawned []func(ctx context.Context)

	files  *FileManager
	client *rpc.Client
	net    *networkManager
}

func NewNode(host string, port uint16, mountDir string, opts ...Option) *Node {
	n := &Node{
		host:        host,
		port:        port,
		mountDir:    mountDir,
		logger:      zap.NewNop(),
		bufferSize:  defaultBufferSize,
		sendTimeout: 5 * time.Second,
		procs:       make(map[string]*processManager),
		client:      rpc.NewClient(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.net = newNetworkManager(n)
	return n
}

// IOProcessWrapper is a process added to a node together with the
// channels of its user.
type IOProcessWrapper[P process.Process] struct {
	*process.Wrapper[P]
	pm *processManager
}

// Sender passes local messages to the process.
func (w *IOProcessWrapper[P]) Sender() chan<- process.Message {
	return w.pm.fromUser
}

// Receiver yields the local messages of the process.
func (w *IOProcessWrapper[P]) Receiver() <-chan process.Message {
	return w.pm.toUser
}

func (w *IOProcessWrapper[P]) StopProcess() {
	w.pm.stop()
}

// Stopped is closed when the process is stopped.
func (w *IOProcessWrapper[P]) Stopped() <-chan struct{} {
	return w.pm.done
}

// AddProcess adds a process to a node which is not running yet.
func AddProcess[P process.Process](n *Node, name string, p P) (*IOProcessWrapper[P], error) {
	if !process.ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrBadName, name)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return nil, ErrRunning
	}
	if _, ok := n.procs[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrProcessExists, name)
	}
	w := process.NewWrapper(p, process.NewAddress(n.host, n.port, name))
	pm := newProcessManager(n, name, p, w.Locker())
	n.procs[name] = pm
	return &IOProcessWrapper[P]{Wrapper: w, pm: pm}, nil
}

// Spawn schedules an activity to run together with the processes.
// Its context is cancelled when the node stops.
func (n *Node) Spawn(fn func(ctx context.Context)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.spawned = append(n.spawned, fn)
}

func (n *Node) Address() string {
	return net.JoinHostPort(n.host, strconv.Itoa(int(n.port)))
}

func (n *Node) process(name string) (*processManager, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pm, ok := n.procs[name]
	return pm, ok
}

// Run serves the node until every process stopped or ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return ErrRunning
	}
	n.running = true
	procs := make([]*processManager, 0, len(n.procs))
	for _, pm := range n.procs {
		procs = append(procs, pm)
	}
	spawned := n.spawned
	n.mu.Unlock()

	files, err := NewFileManager(n.mountDir)
	if err != nil {
		return err
	}
	n.files = files
	defer files.Close()
	defer n.client.Close()

	lis, err := net.Listen("tcp", n.Address())
	if err != nil {
		return err
	}
	srv := rpc.NewServer(n.net.route, n.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		srv.Stop()
		return nil
	})

	var procsDone sync.WaitGroup
	for _, pm := range procs {
		procsDone.Add(1)
		g.Go(func() error {
			defer procsDone.Done()
			pm.run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		procsDone.Wait()
		n.logger.Info("all processes stopped", zap.String("node", n.Address()))
		cancel()
		return nil
	})
	for _, fn := range spawned {
		g.Go(func() error {
			fn(gctx)
			return nil
		})
	}
	return g.Wait()
}
