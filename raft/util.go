package raft

import (
	"dsbuild/process"
	"time"

	"go.uber.org/zap"
)

// electTimeOut is randomized in [1x, 2x) of the base timeout.
func (rf *Raft) electTimeOut(ctx process.Context) time.Duration {
	base := rf.netRTT * ElectTimeOutFactor
	return base + time.Duration(ctx.Rand()*float64(base))
}

func (rf *Raft) resetVoteTimer(ctx process.Context) {
	ctx.SetTimer(electionTimer, rf.electTimeOut(ctx))
}

func (rf *Raft) resetHeartTimer(ctx process.Context) {
	ctx.SetTimer(heartbeatTimer, rf.netRTT*HeartBeatFactor)
}

func (rf *Raft) lastLogIndex() int64 {
	return int64(len(rf.log)) - 1
}

func (rf *Raft) logTerm(index int64) int64 {
	if index < 0 || index >= int64(len(rf.log)) {
		return none
	}
	return rf.log[index].Term
}

func (rf *Raft) lastLogTerm() int64 {
	return rf.logTerm(rf.lastLogIndex())
}

func (rf *Raft) majority() int {
	return len(rf.peers)/2 + 1
}

// send delivers a message to replica to in a spawned activity, so the
// handler does not wait for the acknowledgement.
func (rf *Raft) send(ctx process.Context, to int, v process.Tipped) {
	msg := process.MessageFrom(v)
	dst := rf.peers[to]
	timeout := rf.netRTT
	ctx.Spawn(func(ctx process.Context) {
		if err := ctx.SendWithAck(msg, dst, timeout); err != nil {
			ctx.Logger().Debug("message not acknowledged",
				zap.String("tip", msg.Tip()), zap.Stringer("to", dst), zap.Error(err))
		}
	})
}

func (rf *Raft) becomeFollower(ctx process.Context, leader int) {
	rf.role = Follower
	rf.leaderID = leader
	rf.votes = nil
	ctx.CancelTimer(heartbeatTimer)
	rf.resetVoteTimer(ctx)
	rf.emitState(ctx)
}

func (rf *Raft) dumpState(ctx process.Context) {
	ctx.Logger().Info("state",
		zap.String("role", string(roleName(rf.role))),
		zap.Int64("term", rf.currentTerm),
		zap.Int("leader", rf.leaderID),
		zap.Int("voted_for", rf.votedFor),
		zap.Int("log", len(rf.log)),
		zap.Int64("commit_index", rf.commitIndex),
		zap.Int64("last_applied", rf.lastApplied),
		zap.Int("keys", rf.kv.Size()))
}
