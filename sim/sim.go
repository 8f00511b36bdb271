// Package sim runs processes in a deterministic simulation of nodes,
// network and storage.
package sim

import (
	"dsbuild/process"
	"fmt"
	"math/rand"

	"go.uber.org/zap"
)

const defaultStorageBandwidth = 100 * 1024 * 1024

// Sim is a seeded discrete-event simulation. It is driven by one goroutine:
// stepping, node and process management must not be called concurrently.
type Sim struct {
	rd     *rand.Rand
	now    float64
	nextID uint64
	events eventQueue

	nm      *nodeManager
	net     *network
	current *task

	storageBandwidth float64
	logger           *zap.Logger
}

type Option func(*Sim)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sim) {
		s.logger = logger
	}
}

// WithStorageBandwidth sets the bytes per simulated second storage reads and writes take.
func WithStorageBandwidth(bytesPerSecond float64) Option {
	return func(s *Sim) {
		s.storageBandwidth = bytesPerSecond
	}
}

func New(seed int64, opts ...Option) *Sim {
	s := &Sim{
		rd:               rand.New(rand.NewSource(seed)),
		nm:               newNodeManager(),
		net:              newNetwork(),
		storageBandwidth: defaultStorageBandwidth,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Time returns the simulation time in seconds.
func (s *Sim) Time() float64 {
	return s.now
}

// Nodes -----------------------------------------------------------------

// AddNode adds a node without storage.
func (s *Sim) AddNode(name, host string, port uint16) error {
	return s.AddNodeWithStorage(name, host, port, 0)
}

// AddNodeWithStorage adds a node with storage of the given capacity in bytes.
func (s *Sim) AddNodeWithStorage(name, host string, port uint16, capacity int64) error {
	_, err := s.nm.addNode(name, host, port, capacity)
	return err
}

// CrashNode stops the node and loses its storage. Pending events of the
// node are discarded and messages in flight from or to it are lost.
func (s *Sim) CrashNode(name string) error {
	n, err := s.nm.node(name)
	if err != nil {
		return err
	}
	s.takeDown(n)
	if n.storage != nil {
		n.storage.wipe()
	}
	s.logger.Debug("node crashed", zap.String("node", name), zap.Float64("time", s.now))
	return nil
}

// RecoverNode brings a crashed node back. Processes have to be added again.
func (s *Sim) RecoverNode(name string) error {
	n, err := s.nm.node(name)
	if err != nil {
		return err
	}
	n.down = false
	return nil
}

// ShutdownNode stops the node. Its storage survives.
func (s *Sim) ShutdownNode(name string) error {
	n, err := s.nm.node(name)
	if err != nil {
		return err
	}
	s.takeDown(n)
	s.logger.Debug("node shut down", zap.String("node", name), zap.Float64("time", s.now))
	return nil
}

// RerunNode brings a node which was shut down back.
func (s *Sim) RerunNode(name string) error {
	return s.RecoverNode(name)
}

func (s *Sim) IsNodeCrashed(name string) bool {
	n, err := s.nm.node(name)
	if err != nil {
		return false
	}
	return n.down
}

func (s *Sim) takeDown(n *node) {
	for _, p := range n.procs {
		s.release(p)
	}
	n.epoch++
	n.down = true
	s.nm.clearNode(n)
}

// release kills the activities and cancels the timers of a process.
func (s *Sim) release(p *proc) {
	for name, e := range p.timers {
		e.cancel()
		delete(p.timers, name)
	}
	p.pending = nil
	for t := range p.tasks {
		if t != s.current {
			s.kill(t)
		}
	}
}

// Close kills all parked activities.
func (s *Sim) Close() {
	for _, n := range s.nm.nodes {
		for _, p := range n.procs {
			s.release(p)
		}
	}
}

// Processes -------------------------------------------------------------

// AddProcess adds a process to a node which is up.
func AddProcess[P process.Process](s *Sim, name string, p P, nodeName string) (*process.Wrapper[P], error) {
	if !process.ValidName(name) {
		return nil, fmt.Errorf("%w: process %q", ErrBadName, name)
	}
	n, err := s.nm.node(nodeName)
	if err != nil {
		return nil, err
	}
	if n.down {
		return nil, fmt.Errorf("%w: %q", ErrNodeDown, nodeName)
	}
	if _, ok := n.procs[name]; ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrProcessExists, nodeName, name)
	}
	pr := &proc{
		name:       name,
		node:       n,
		epoch:      n.epoch,
		p:          p,
		timers:     make(map[string]*event),
		tagWaiters: make(map[process.Tag]func(v any)),
		tasks:      make(map[*task]struct{}),
	}
	pr.ctx = &simContext{s: s, p: pr, logger: s.logger.With(zap.String("process", pr.fullName()))}
	n.procs[name] = pr
	return process.NewWrapper(p, pr.address()), nil
}

// ProcessNames returns the sorted "node/process" names of all processes.
func (s *Sim) ProcessNames() []string {
	return s.nm.processNames()
}

// ReadLocalMessages takes the messages the process sent to its user.
func (s *Sim) ReadLocalMessages(procName, nodeName string) ([]process.Message, error) {
	p, err := s.nm.proc(procName, nodeName)
	if err != nil {
		return nil, err
	}
	msgs := p.local
	p.local = nil
	return msgs, nil
}

// SendLocalMessage passes a message from the user to the process.
// The process handles it before the call returns unless it is busy.
func (s *Sim) SendLocalMessage(procName, nodeName string, msg process.Message) error {
	p, err := s.nm.proc(procName, nodeName)
	if err != nil {
		return err
	}
	s.deliver(p, delivery{kind: deliverLocal, msg: msg})
	return nil
}

func (s *Sim) SentMessageCount(procName, nodeName string) uint64 {
	p, err := s.nm.proc(procName, nodeName)
	if err != nil {
		return 0
	}
	return p.sent
}

func (s *Sim) ReceivedMessageCount(procName, nodeName string) uint64 {
	p, err := s.nm.proc(procName, nodeName)
	if err != nil {
		return 0
	}
	return p.received
}

// Stepping --------------------------------------------------------------

// Step fires the next event. It returns false when there are no events.
func (s *Sim) Step() bool {
	e := s.popLive()
	if e == nil {
		return false
	}
	s.now = e.time
	e.fire()
	return true
}

func (s *Sim) MakeSteps(steps int) {
	for i := 0; i < steps; i++ {
		if !s.Step() {
			return
		}
	}
}

func (s *Sim) StepUntilNoEvents() {
	for s.Step() {
	}
}

// StepFor fires the events of the next d seconds.
func (s *Sim) StepFor(d float64) {
	until := s.now + d
	for s.hasLiveEvents() && s.events[0].time <= until {
		s.Step()
	}
	s.now = until
}

// StepUntilLocalMessage steps until the process has messages for its user
// and returns them.
func (s *Sim) StepUntilLocalMessage(procName, nodeName string) ([]process.Message, error) {
	for {
		p, err := s.nm.proc(procName, nodeName)
		if err != nil {
			return nil, err
		}
		if len(p.local) > 0 {
			msgs := p.local
			p.local = nil
			return msgs, nil
		}
		if !s.Step() {
			return nil, ErrNoEvents
		}
	}
}

// Delivery --------------------------------------------------------------

type deliveryKind uint8

const (
	deliverLocal deliveryKind = iota
	deliverNetwork
	deliverTimer
)

type delivery struct {
	kind  deliveryKind
	msg   process.Message
	from  process.Address
	timer string
}

// deliver hands an event to the process, queueing it while the process
// is busy with another handler.
func (s *Sim) deliver(p *proc, d delivery) {
	if !p.alive() {
		return
	}
	if p.busy {
		p.pending = append(p.pending, d)
		return
	}
	s.startHandler(p, d)
}

func (s *Sim) drain(p *proc) {
	if !p.alive() {
		p.pending = nil
		return
	}
	if p.busy || len(p.pending) == 0 {
		return
	}
	d := p.pending[0]
	p.pending = p.pending[1:]
	s.startHandler(p, d)
}

func (s *Sim) startHandler(p *proc, d delivery) {
	p.busy = true
	t := s.newTask(p, true, func() {
		var err error
		switch d.kind {
		case deliverLocal:
			err = p.p.OnLocalMessage(p.ctx, d.msg)
		case deliverNetwork:
			err = p.p.OnMessage(p.ctx, d.msg, d.from)
		case deliverTimer:
			err = p.p.OnTimer(p.ctx, d.timer)
		}
		if err != nil {
			p.ctx.logger.Warn("handler failed", zap.Error(err), zap.Float64("time", s.now))
		}
	})
	s.run(t)
}

// transmit schedules the delivery of a network message and returns false
// if the message is lost. delivered, if set, runs once a live receiver
// got the message.
func (s *Sim) transmit(from, to *proc, msg process.Message, tag *process.Tag, reliable bool, delivered func()) bool {
	if !s.net.reachable(from.node.name, to.node.name) {
		return false
	}
	if !reliable && s.dropped() {
		return false
	}
	fromEpoch := from.node.epoch
	s.schedule(s.delay(), func() {
		if from.node.epoch != fromEpoch || !to.alive() {
			return
		}
		to.received++
		if delivered != nil {
			defer delivered()
		}
		if tag != nil {
			if wake, ok := to.tagWaiters[*tag]; ok {
				delete(to.tagWaiters, *tag)
				wake(msg)
				return
			}
		}
		s.deliver(to, delivery{kind: deliverNetwork, msg: msg, from: from.address()})
	})
	return true
}
