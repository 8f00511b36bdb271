// Package raft is a replicated key-value store built as a dsbuild process.
// Every replica runs a Raft process; users talk to their replica through
// local messages and get command replies, read values or redirections
// back.
package raft

import (
	"dsbuild/process"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Raft struct {
	peers       []process.Address // all replicas, peers[me] is this one
	me          int
	netRTT      time.Duration
	persister   *Persister
	initialized bool

	currentTerm int64
	votedFor    int
	log         []Entry

	role       int
	leaderID   int
	votes      map[int]struct{}
	nextIndex  []int64
	matchIndex []int64

	commitIndex int64
	lastApplied int64
	kv          *KV

	seqNum       uint64
	readTurn     int
	pendingReads []ReadValueRequest
	info         StateInfo
}

var _ process.Process = (*Raft)(nil)

// Make creates replica me of the cluster peers. netRTT is the expected
// round trip time of the network; timeouts are derived from it.
func Make(peers []process.Address, me int, netRTT time.Duration) *Raft {
	if me < 0 || me >= len(peers) {
		panic(fmt.Sprintf("raft: replica %d out of %d", me, len(peers)))
	}
	return &Raft{
		peers:       peers,
		me:          me,
		netRTT:      netRTT,
		votedFor:    none,
		leaderID:    none,
		commitIndex: none,
		lastApplied: none,
		kv:          NewKV(),
	}
}

// GetState returns currentTerm and whether this replica believes it is
// the leader.
func (rf *Raft) GetState() (int64, bool) {
	return rf.currentTerm, rf.role == Leader
}

func (rf *Raft) Initialized() bool {
	return rf.initialized
}

func (rf *Raft) CommitIndex() int64 {
	return rf.commitIndex
}

func (rf *Raft) LastApplied() int64 {
	return rf.lastApplied
}

func (rf *Raft) LogLen() int {
	return len(rf.log)
}

// Value reads the local state machine without going through the log.
func (rf *Raft) Value(key string) *string {
	return rf.kv.Read(key)
}

func (rf *Raft) OnLocalMessage(ctx process.Context, msg process.Message) error {
	if msg.Tip() == InitializeRequestTip {
		return rf.initialize(ctx)
	}
	if !rf.initialized {
		ctx.Logger().Debug("not initialized, local message ignored", zap.String("tip", msg.Tip()))
		return nil
	}
	switch msg.Tip() {
	case CommandTip:
		var cmd Command
		if err := msg.Data(&cmd); err != nil {
			return err
		}
		return rf.onCommand(ctx, cmd)
	case ReadValueRequestTip:
		var req ReadValueRequest
		if err := msg.Data(&req); err != nil {
			return err
		}
		return rf.onReadValue(ctx, req)
	default:
		return fmt.Errorf("unexpected local message %q", msg.Tip())
	}
}

func (rf *Raft) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	if !rf.initialized {
		return nil
	}
	switch msg.Tip() {
	case VoteRequestTip:
		var args VoteRequest
		if err := msg.Data(&args); err != nil {
			return err
		}
		return rf.RequestVote(ctx, &args)
	case VoteResponseTip:
		var reply VoteResponse
		if err := msg.Data(&reply); err != nil {
			return err
		}
		return rf.collectVote(ctx, &reply)
	case AppendEntriesRequestTip:
		var args AppendEntriesRequest
		if err := msg.Data(&args); err != nil {
			return err
		}
		return rf.AppendEntries(ctx, &args)
	case AppendEntriesResponseTip:
		var reply AppendEntriesResponse
		if err := msg.Data(&reply); err != nil {
			return err
		}
		return rf.handleAppendEntries(ctx, &reply)
	default:
		return fmt.Errorf("unexpected message %q from %s", msg.Tip(), from)
	}
}

func (rf *Raft) OnTimer(ctx process.Context, name string) error {
	if !rf.initialized {
		return nil
	}
	switch name {
	case electionTimer:
		if rf.role == Leader {
			return nil
		}
		return rf.elect(ctx)
	case heartbeatTimer:
		if rf.role != Leader {
			return nil
		}
		rf.sendHeartBeats(ctx)
		rf.resetHeartTimer(ctx)
	case dumpStateTimer:
		rf.dumpState(ctx)
		ctx.SetTimer(dumpStateTimer, DumpStatePeriod)
	}
	return nil
}

// initialize restores the persisted state and starts as a follower.
func (rf *Raft) initialize(ctx process.Context) error {
	if rf.initialized {
		ctx.SendLocal(process.MessageFrom(InitializeResponse{SeqNum: rf.seqNum}))
		return nil
	}
	rf.persister = MakePersister(ctx)
	st, err := rf.persister.Load()
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	rf.currentTerm = st.CurrentTerm
	rf.votedFor = st.VotedFor
	rf.log = st.Log
	rf.seqNum = st.SeqNum
	rf.nextIndex = make([]int64, len(rf.peers))
	rf.matchIndex = make([]int64, len(rf.peers))
	rf.initialized = true

	ctx.Logger().Info("initialized",
		zap.Int64("term", rf.currentTerm),
		zap.Int("voted_for", rf.votedFor),
		zap.Int("log", len(rf.log)),
		zap.Uint64("seq_num", rf.seqNum))
	ctx.SendLocal(process.MessageFrom(InitializeResponse{SeqNum: rf.seqNum}))

	rf.becomeFollower(ctx, none)
	ctx.SetTimer(dumpStateTimer, DumpStatePeriod)
	return nil
}

// applyCommitted applies committed entries to the state machine. The
// replica which accepted a command from its user answers it.
func (rf *Raft) applyCommitted(ctx process.Context) {
	for rf.lastApplied < rf.commitIndex {
		rf.lastApplied++
		entry := rf.log[rf.lastApplied]
		if entry.Command == nil {
			continue
		}
		reply := rf.kv.Apply(*entry.Command)
		ctx.Logger().Debug("applied",
			zap.Int64("index", rf.lastApplied),
			zap.Stringer("command", entry.Command.Type),
			zap.Int("status", reply.Status))
		if entry.Command.ID.Server == rf.me {
			ctx.SendLocal(process.MessageFrom(commandDone(reply)))
		}
	}
	if len(rf.pendingReads) > 0 {
		rf.servePendingReads(ctx)
	}
}

// emitState tells the user about a changed role, term or leader.
func (rf *Raft) emitState(ctx process.Context) {
	info := StateInfo{Role: roleName(rf.role), CurrentTerm: rf.currentTerm, Leader: rf.leaderID}
	if info == rf.info {
		return
	}
	rf.info = info
	ctx.SendLocal(process.MessageFrom(info))
}
