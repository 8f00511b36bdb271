package raft

import (
	"dsbuild/process"

	"go.uber.org/zap"
)

func (rf *Raft) respond(ctx process.Context, resp LocalResponse) {
	ctx.SendLocal(process.MessageFrom(resp))
}

// onCommand appends a user command to the log of the leader. Other
// replicas point the user to the leader they know.
func (rf *Raft) onCommand(ctx process.Context, cmd Command) error {
	if err := rf.acceptSeq(cmd.ID); err != nil {
		return err
	}
	if rf.role != Leader {
		if rf.leaderID != none {
			rf.respond(ctx, redirectedTo(cmd.ID, rf.leaderID, nil))
		} else {
			rf.respond(ctx, unavailable(cmd.ID))
		}
		return nil
	}

	if err := rf.appendLog(Entry{Term: rf.currentTerm, Command: &cmd}); err != nil {
		return err
	}
	ctx.Logger().Debug("command accepted",
		zap.Stringer("id", cmd.ID),
		zap.Stringer("command", cmd.Type),
		zap.Int64("index", rf.lastLogIndex()))
	rf.sendHeartBeats(ctx)
	rf.forwardCommit(ctx)
	return nil
}

// onReadValue serves a read. The leader spreads reads over the replicas
// round-robin, sending the user to a follower together with the commit
// index the follower must reach first. A follower behind that index
// holds the read until it catches up.
func (rf *Raft) onReadValue(ctx process.Context, req ReadValueRequest) error {
	if err := rf.acceptSeq(req.RequestID); err != nil {
		return err
	}
	id := req.RequestID

	switch {
	case req.MinCommitID != nil:
		switch {
		case rf.lastApplied >= *req.MinCommitID:
			rf.respond(ctx, readValue(id, rf.kv.Read(req.Key)))
		case rf.role == Follower && rf.leaderID != none:
			rf.pendingReads = append(rf.pendingReads, req)
		default:
			rf.respond(ctx, unavailable(id))
		}
	case rf.role == Leader:
		if !rf.committedInTerm() {
			rf.respond(ctx, unavailable(id))
			return nil
		}
		turn := rf.readTurn
		rf.readTurn = (rf.readTurn + 1) % len(rf.peers)
		if turn == rf.me {
			rf.respond(ctx, readValue(id, rf.kv.Read(req.Key)))
			return nil
		}
		commitIndex := rf.commitIndex
		rf.respond(ctx, redirectedTo(id, turn, &commitIndex))
	case rf.leaderID != none:
		rf.respond(ctx, redirectedTo(id, rf.leaderID, nil))
	default:
		rf.respond(ctx, unavailable(id))
	}
	return nil
}

// committedInTerm reports whether the leader committed an entry of its
// own term, after which its commit index is up to date.
func (rf *Raft) committedInTerm() bool {
	return rf.commitIndex >= 0 && rf.log[rf.commitIndex].Term == rf.currentTerm
}

// servePendingReads answers held reads the applied log caught up with.
func (rf *Raft) servePendingReads(ctx process.Context) {
	kept := rf.pendingReads[:0]
	for _, req := range rf.pendingReads {
		if rf.lastApplied >= *req.MinCommitID {
			rf.respond(ctx, readValue(req.RequestID, rf.kv.Read(req.Key)))
		} else {
			kept = append(kept, req)
		}
	}
	rf.pendingReads = kept
}

// dropPendingReads answers held reads with Unavailable.
func (rf *Raft) dropPendingReads(ctx process.Context) {
	for _, req := range rf.pendingReads {
		rf.respond(ctx, unavailable(req.RequestID))
	}
	rf.pendingReads = nil
}
