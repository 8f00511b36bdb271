// Package simtest runs a raft cluster in the simulation and plays the
// users of the replicas: it numbers requests, collects local responses
// and tracks the reported roles and terms.
package simtest

import (
	"dsbuild/process"
	"dsbuild/raft"
	"dsbuild/sim"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	Port        = 123
	StorageSize = 1 << 15
	NetRTT      = 150 * time.Millisecond

	// DefaultLimit bounds in simulated seconds how long a wait for a
	// response may step.
	DefaultLimit = 60.0
)

var (
	ErrNoResponse   = errors.New("no response")
	ErrUnexpected   = errors.New("unexpected response")
	ErrNotAvailable = errors.New("service unavailable")
)

// Replica is the user side of one replica.
type Replica struct {
	id          int
	seq         uint64
	initialized bool
	shutdown    bool
	state       *raft.StateInfo
	locals      []raft.LocalResponse
	wrapper     *process.Wrapper[*raft.Raft]
}

func (r *Replica) nextID() raft.CommandID {
	r.seq++
	return raft.CommandID{Server: r.id, Seq: r.seq}
}

func (r *Replica) reset() {
	r.initialized = false
	r.seq = 0
	r.state = nil
	r.locals = nil
}

func (r *Replica) onLocalMessage(msg process.Message) error {
	switch msg.Tip() {
	case raft.StateInfoTip:
		var info raft.StateInfo
		if err := msg.Data(&info); err != nil {
			return err
		}
		r.state = &info
	case raft.LocalResponseTip:
		if !r.initialized {
			return nil
		}
		var resp raft.LocalResponse
		if err := msg.Data(&resp); err != nil {
			return err
		}
		r.locals = append(r.locals, resp)
	case raft.InitializeResponseTip:
		var resp raft.InitializeResponse
		if err := msg.Data(&resp); err != nil {
			return err
		}
		r.initialized = true
		r.seq = resp.SeqNum
	default:
		return fmt.Errorf("%w: local message %q", ErrUnexpected, msg.Tip())
	}
	return nil
}

func (r *Replica) Initialized() bool { return r.initialized }

// Seq is the last sequence number used.
func (r *Replica) Seq() uint64 { return r.seq }

// State is the last reported state, nil before the first report.
func (r *Replica) State() *raft.StateInfo { return r.state }

func (r *Replica) Locals() []raft.LocalResponse { return r.locals }

func (r *Replica) ClearLocals() { r.locals = nil }

// PopLocal takes the oldest response.
func (r *Replica) PopLocal() (raft.LocalResponse, bool) {
	if len(r.locals) == 0 {
		return raft.LocalResponse{}, false
	}
	resp := r.locals[0]
	r.locals = r.locals[1:]
	return resp, true
}

// Response finds the response to request id among the kept ones.
func (r *Replica) Response(id raft.CommandID) (raft.LocalResponse, bool) {
	for _, resp := range r.locals {
		if resp.RequestID == id {
			return resp, true
		}
	}
	return raft.LocalResponse{}, false
}

// Raft gives access to the process state.
func (r *Replica) Raft(fn func(rf *raft.Raft)) {
	r.wrapper.Read(fn)
}

type Cluster struct {
	sim      *sim.Sim
	replicas []*Replica
	logger   *zap.Logger
}

type Option func(*options)

type options struct {
	logger *zap.Logger
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New builds n replicas, each on its own node.
func New(seed int64, n int, opts ...Option) (*Cluster, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	s := sim.New(seed, sim.WithLogger(o.logger))
	rtt := NetRTT.Seconds()
	s.SetNetworkDelays(rtt/2-0.025, rtt/2+0.025)

	c := &Cluster{sim: s, logger: o.logger}
	for i := 0; i < n; i++ {
		if err := s.AddNodeWithStorage(NodeName(i), NodeName(i), Port, StorageSize); err != nil {
			return nil, err
		}
		c.replicas = append(c.replicas, &Replica{id: i})
		if err := c.addProcess(i); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func NodeName(i int) string {
	return fmt.Sprintf("node_%d", i)
}

func ProcessName(i int) string {
	return fmt.Sprintf("process_%d", i)
}

func Address(i int) process.Address {
	return process.NewAddress(NodeName(i), Port, ProcessName(i))
}

func (c *Cluster) peers() []process.Address {
	peers := make([]process.Address, len(c.replicas))
	for i := range peers {
		peers[i] = Address(i)
	}
	return peers
}

func (c *Cluster) addProcess(i int) error {
	w, err := sim.AddProcess(c.sim, ProcessName(i), raft.Make(c.peers(), i, NetRTT), NodeName(i))
	if err != nil {
		return err
	}
	c.replicas[i].wrapper = w
	return nil
}

func (c *Cluster) Sim() *sim.Sim { return c.sim }

func (c *Cluster) Size() int { return len(c.replicas) }

func (c *Cluster) Replica(i int) *Replica { return c.replicas[i] }

func (c *Cluster) sendLocal(i int, v process.Tipped) error {
	return c.sim.SendLocalMessage(ProcessName(i), NodeName(i), process.MessageFrom(v))
}

func (c *Cluster) SendInitForAll() error {
	for i := range c.replicas {
		if err := c.sendLocal(i, raft.InitializeRequest{}); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops the node of replica i. Its storage survives.
func (c *Cluster) Shutdown(i int) error {
	c.replicas[i].shutdown = true
	c.replicas[i].reset()
	return c.sim.ShutdownNode(NodeName(i))
}

// Rerun starts replica i again on its stopped node and initializes it.
func (c *Cluster) Rerun(i int) error {
	if err := c.sim.RerunNode(NodeName(i)); err != nil {
		return err
	}
	if err := c.addProcess(i); err != nil {
		return err
	}
	c.replicas[i].shutdown = false
	c.replicas[i].reset()
	return c.sendLocal(i, raft.InitializeRequest{})
}

// Stepping --------------------------------------------------------------

// Step fires one event and collects the local messages of the replicas.
func (c *Cluster) Step() bool {
	ok := c.sim.Step()
	for i, r := range c.replicas {
		if r.shutdown {
			continue
		}
		msgs, err := c.sim.ReadLocalMessages(ProcessName(i), NodeName(i))
		if err != nil {
			c.logger.Warn("read local messages", zap.Int("replica", i), zap.Error(err))
			continue
		}
		for _, msg := range msgs {
			if err := r.onLocalMessage(msg); err != nil {
				c.logger.Warn("local message", zap.Int("replica", i), zap.Error(err))
			}
		}
	}
	return ok
}

func (c *Cluster) MakeSteps(steps int) {
	for i := 0; i < steps; i++ {
		if !c.Step() {
			return
		}
	}
}

// StepFor steps through the next d simulated seconds.
func (c *Cluster) StepFor(d float64) {
	until := c.sim.Time() + d
	for c.sim.Time() < until && c.Step() {
	}
}

// StepUntil steps until cond holds or limit simulated seconds pass.
func (c *Cluster) StepUntil(cond func() bool, limit float64) bool {
	until := c.sim.Time() + limit
	for !cond() {
		if c.sim.Time() > until || !c.Step() {
			return cond()
		}
	}
	return true
}

func (c *Cluster) StepUntilAllInitialized() bool {
	return c.StepUntil(func() bool {
		for _, r := range c.replicas {
			if !r.shutdown && !r.initialized {
				return false
			}
		}
		return true
	}, DefaultLimit)
}

// StepUntilLocal steps until replica i has a response and pops it.
func (c *Cluster) StepUntilLocal(i int) (raft.LocalResponse, error) {
	r := c.replicas[i]
	if !c.StepUntil(func() bool { return len(r.locals) > 0 }, DefaultLimit) {
		return raft.LocalResponse{}, fmt.Errorf("%w: replica %d", ErrNoResponse, i)
	}
	resp, _ := r.PopLocal()
	return resp, nil
}

// StepUntilResponse steps until replica i answers request id and pops
// the answer. Earlier responses are dropped.
func (c *Cluster) StepUntilResponse(i int, id raft.CommandID) (raft.LocalResponse, error) {
	r := c.replicas[i]
	found := func() bool {
		for len(r.locals) > 0 {
			if r.locals[0].RequestID == id {
				return true
			}
			r.locals = r.locals[1:]
		}
		return false
	}
	if !c.StepUntil(found, DefaultLimit) {
		return raft.LocalResponse{}, fmt.Errorf("%w: replica %d, request %s", ErrNoResponse, i, id)
	}
	resp, _ := r.PopLocal()
	return resp, nil
}

// Requests --------------------------------------------------------------

func (c *Cluster) SendCommand(i int, ct raft.CommandType) (raft.CommandID, error) {
	id := c.replicas[i].nextID()
	return id, c.sendLocal(i, raft.Command{Type: ct, ID: id})
}

func (c *Cluster) SendRead(i int, key string) (raft.CommandID, error) {
	id := c.replicas[i].nextID()
	return id, c.sendLocal(i, raft.ReadValueRequest{Key: key, RequestID: id})
}

// SendReadAt reads from replica i once it applied commitIndex.
func (c *Cluster) SendReadAt(i int, key string, commitIndex int64) (raft.CommandID, error) {
	id := c.replicas[i].nextID()
	return id, c.sendLocal(i, raft.ReadValueRequest{Key: key, RequestID: id, MinCommitID: &commitIndex})
}

// Command runs a command on replica i and waits for its reply.
func (c *Cluster) Command(i int, ct raft.CommandType) (raft.CommandReply, error) {
	id, err := c.SendCommand(i, ct)
	if err != nil {
		return raft.CommandReply{}, err
	}
	resp, err := c.StepUntilResponse(i, id)
	if err != nil {
		return raft.CommandReply{}, err
	}
	if resp.Type != raft.CommandDone {
		return raft.CommandReply{}, fmt.Errorf("%w: %s", ErrUnexpected, resp)
	}
	return *resp.Reply, nil
}

// Read reads key through replica i following one redirection to the
// replica chosen by the leader. It returns the replica which answered.
func (c *Cluster) Read(i int, key string) (int, *string, error) {
	id, err := c.SendRead(i, key)
	if err != nil {
		return none, nil, err
	}
	resp, err := c.StepUntilResponse(i, id)
	if err != nil {
		return none, nil, err
	}
	switch {
	case resp.Type == raft.ReadValue:
		return i, resp.Value, nil
	case resp.Type == raft.RedirectedTo && resp.CommitIndex != nil:
		to := resp.To
		id, err := c.SendReadAt(to, key, *resp.CommitIndex)
		if err != nil {
			return none, nil, err
		}
		resp, err := c.StepUntilResponse(to, id)
		if err != nil {
			return none, nil, err
		}
		if resp.Type != raft.ReadValue {
			return none, nil, fmt.Errorf("%w: %s", ErrUnexpected, resp)
		}
		return to, resp.Value, nil
	case resp.Type == raft.Unavailable:
		return none, nil, ErrNotAvailable
	default:
		return none, nil, fmt.Errorf("%w: %s", ErrUnexpected, resp)
	}
}

const none = -1

// Cluster state ---------------------------------------------------------

// CurrentLeader is the reported leader of the highest term.
func (c *Cluster) CurrentLeader() (int, bool) {
	leader, term := none, int64(-1)
	for i, r := range c.replicas {
		if r.shutdown || r.state == nil || r.state.Role != raft.LeaderRole {
			continue
		}
		if r.state.CurrentTerm > term {
			leader, term = i, r.state.CurrentTerm
		}
	}
	return leader, leader != none
}

// CurrentTerm is the term a majority of replicas reported.
func (c *Cluster) CurrentTerm() (int64, bool) {
	count := make(map[int64]int)
	for _, r := range c.replicas {
		if r.state != nil && !r.shutdown {
			count[r.state.CurrentTerm]++
		}
	}
	for term, n := range count {
		if n >= len(c.replicas)/2+1 {
			return term, true
		}
	}
	return 0, false
}

// StepUntilLeader steps until a leader of a term newer than after is
// known to a majority.
func (c *Cluster) StepUntilLeader(after int64) (int, int64, bool) {
	ok := c.StepUntil(func() bool {
		leader, ok := c.CurrentLeader()
		if !ok {
			return false
		}
		term, ok := c.CurrentTerm()
		return ok && term > after && c.replicas[leader].state.CurrentTerm == term
	}, DefaultLimit)
	if !ok {
		return none, 0, false
	}
	leader, _ := c.CurrentLeader()
	term, _ := c.CurrentTerm()
	return leader, term, true
}

// Network ---------------------------------------------------------------

// SplitNetwork separates the replicas in part from the others.
func (c *Cluster) SplitNetwork(part ...int) {
	in := make(map[int]bool)
	for _, i := range part {
		in[i] = true
	}
	var group1, group2 []string
	for i := range c.replicas {
		if in[i] {
			group1 = append(group1, NodeName(i))
		} else {
			group2 = append(group2, NodeName(i))
		}
	}
	c.sim.SplitNetwork(group1, group2)
}

func (c *Cluster) RepairNetwork() {
	c.sim.RepairNetwork()
}

func (c *Cluster) Close() {
	c.sim.Close()
}
