package sim

import (
	"dsbuild/process"
	"dsbuild/storage/fio"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrBadName        = errors.New("bad name")
	ErrNodeExists     = errors.New("node already exists")
	ErrNodeNotFound   = errors.New("node not found")
	ErrNodeDown       = errors.New("node is down")
	ErrProcessExists  = errors.New("process already exists")
	ErrProcessUnknown = errors.New("process not found")
	ErrNoEvents       = errors.New("no events left")
)

type node struct {
	name  string
	host  string
	port  uint16
	epoch uint64
	down  bool

	procs   map[string]*proc
	storage *nodeStorage
}

func (n *node) hostPort() string {
	return process.NewAddress(n.host, n.port, "").HostPort()
}

// proc is a process living on a node.
type proc struct {
	name  string
	node  *node
	epoch uint64
	p     process.Process
	ctx   *simContext

	stopped bool
	busy    bool
	pending []delivery
	local   []process.Message

	timers     map[string]*event
	tagWaiters map[process.Tag]func(v any)
	tasks      map[*task]struct{}

	sent     uint64
	received uint64
}

func (p *proc) fullName() string {
	return p.node.name + "/" + p.name
}

func (p *proc) address() process.Address {
	return process.NewAddress(p.node.host, p.node.port, p.name)
}

// alive reports whether the process can still run.
func (p *proc) alive() bool {
	return !p.stopped && !p.node.down && p.node.epoch == p.epoch
}

type nodeStorage struct {
	space *fio.Space
	files map[string]*fio.MemIO
}

func newNodeStorage(capacity int64) *nodeStorage {
	if capacity <= 0 {
		return nil
	}
	return &nodeStorage{
		space: fio.NewSpace(capacity),
		files: make(map[string]*fio.MemIO),
	}
}

func (st *nodeStorage) wipe() {
	for _, f := range st.files {
		f.Release()
	}
	st.files = make(map[string]*fio.MemIO)
}

// nodeManager maps node names to nodes and process addresses to processes.
type nodeManager struct {
	nodes      map[string]*node
	byHostPort map[string]*node
}

func newNodeManager() *nodeManager {
	return &nodeManager{
		nodes:      make(map[string]*node),
		byHostPort: make(map[string]*node),
	}
}

func (nm *nodeManager) addNode(name, host string, port uint16, capacity int64) (*node, error) {
	if !process.ValidName(name) {
		return nil, fmt.Errorf("%w: node %q", ErrBadName, name)
	}
	if _, ok := nm.nodes[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeExists, name)
	}
	n := &node{
		name:    name,
		host:    host,
		port:    port,
		procs:   make(map[string]*proc),
		storage: newNodeStorage(capacity),
	}
	if _, ok := nm.byHostPort[n.hostPort()]; ok {
		return nil, fmt.Errorf("%w: address %s", ErrNodeExists, n.hostPort())
	}
	nm.nodes[name] = n
	nm.byHostPort[n.hostPort()] = n
	return n, nil
}

func (nm *nodeManager) node(name string) (*node, error) {
	n, ok := nm.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	return n, nil
}

func (nm *nodeManager) proc(procName, nodeName string) (*proc, error) {
	n, err := nm.node(nodeName)
	if err != nil {
		return nil, err
	}
	p, ok := n.procs[procName]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrProcessUnknown, nodeName, procName)
	}
	return p, nil
}

// resolve finds the process with the given address.
func (nm *nodeManager) resolve(addr process.Address) (*proc, error) {
	n, ok := nm.byHostPort[addr.HostPort()]
	if !ok {
		return nil, fmt.Errorf("%w: no node at %s", process.ErrNotSent, addr.HostPort())
	}
	p, ok := n.procs[addr.ProcessName]
	if !ok {
		return nil, fmt.Errorf("%w: no process %s", process.ErrNotSent, addr)
	}
	return p, nil
}

// clearNode forgets processes of the node.
func (nm *nodeManager) clearNode(n *node) {
	n.procs = make(map[string]*proc)
}

func (nm *nodeManager) processNames() []string {
	var names []string
	for _, n := range nm.nodes {
		for _, p := range n.procs {
			names = append(names, p.fullName())
		}
	}
	sort.Strings(names)
	return names
}
