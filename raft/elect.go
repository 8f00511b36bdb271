package raft

import (
	"dsbuild/process"

	"go.uber.org/zap"
)

// elect starts an election in the next term.
func (rf *Raft) elect(ctx process.Context) error {
	if err := rf.setTerm(rf.currentTerm + 1); err != nil {
		return err
	}
	if err := rf.setVote(rf.me); err != nil {
		return err
	}
	rf.role = Candidate
	rf.leaderID = none
	rf.dropPendingReads(ctx)
	rf.votes = map[int]struct{}{rf.me: {}}
	rf.resetVoteTimer(ctx)
	rf.emitState(ctx)
	ctx.Logger().Debug("election started", zap.Int64("term", rf.currentTerm))

	if len(rf.votes) >= rf.majority() {
		return rf.becomeLeader(ctx)
	}
	args := VoteRequest{
		Term:         rf.currentTerm,
		CandidateID:  rf.me,
		LastLogIndex: rf.lastLogIndex(),
		LastLogTerm:  rf.lastLogTerm(),
	}
	for i := range rf.peers {
		if i == rf.me {
			continue
		}
		rf.send(ctx, i, args)
	}
	return nil
}

func (rf *Raft) collectVote(ctx process.Context, reply *VoteResponse) error {
	if err := rf.checkTerm(ctx, reply.Term); err != nil {
		return err
	}
	if rf.role != Candidate || reply.Term != rf.currentTerm || !reply.VoteGranted {
		return nil
	}
	rf.votes[reply.ResponderID] = struct{}{}
	if len(rf.votes) >= rf.majority() {
		return rf.becomeLeader(ctx)
	}
	return nil
}

func (rf *Raft) becomeLeader(ctx process.Context) error {
	rf.role = Leader
	rf.leaderID = rf.me
	rf.votes = nil
	rf.readTurn = rf.me
	for i := range rf.peers {
		rf.nextIndex[i] = int64(len(rf.log))
		rf.matchIndex[i] = none
	}
	ctx.CancelTimer(electionTimer)
	rf.emitState(ctx)
	ctx.Logger().Info("became leader", zap.Int64("term", rf.currentTerm))

	// entries of earlier terms commit together with this one
	if err := rf.appendLog(Entry{Term: rf.currentTerm}); err != nil {
		return err
	}
	rf.sendHeartBeats(ctx)
	rf.resetHeartTimer(ctx)
	rf.forwardCommit(ctx)
	return nil
}

// RequestVote handles a vote request of a candidate.
func (rf *Raft) RequestVote(ctx process.Context, args *VoteRequest) error {
	if err := rf.checkTerm(ctx, args.Term); err != nil {
		return err
	}

	granted := false
	if args.Term == rf.currentTerm && (rf.votedFor == none || rf.votedFor == args.CandidateID) {
		upToDate := args.LastLogTerm > rf.lastLogTerm() ||
			(args.LastLogTerm == rf.lastLogTerm() && args.LastLogIndex >= rf.lastLogIndex())
		if upToDate {
			if err := rf.setVote(args.CandidateID); err != nil {
				return err
			}
			granted = true
			rf.resetVoteTimer(ctx)
		}
	}

	rf.send(ctx, args.CandidateID, VoteResponse{
		ResponderID: rf.me,
		Term:        rf.currentTerm,
		VoteGranted: granted,
		CommitIndex: rf.commitIndex,
	})
	return nil
}
