package raft

import (
	"dsbuild/process"

	"go.uber.org/zap"
)

func (rf *Raft) sendAppendEntries(ctx process.Context, serverTo int) {
	next := rf.nextIndex[serverTo]
	end := min(int64(len(rf.log)), next+maxEntriesPerRequest)
	args := AppendEntriesRequest{
		Term:          rf.currentTerm,
		LeaderID:      rf.me,
		PrevLogIndex:  next - 1,
		PrevLogTerm:   rf.logTerm(next - 1),
		Entries:       append([]Entry{}, rf.log[next:end]...),
		LeadersCommit: rf.commitIndex,
	}
	rf.send(ctx, serverTo, args)
}

func (rf *Raft) sendHeartBeats(ctx process.Context) {
	for i := range rf.peers {
		if i == rf.me {
			continue
		}
		rf.sendAppendEntries(ctx, i)
	}
}

// handleAppendEntries handles the answer of a follower on the leader.
func (rf *Raft) handleAppendEntries(ctx process.Context, reply *AppendEntriesResponse) error {
	if err := rf.checkTerm(ctx, reply.Term); err != nil {
		return err
	}
	if rf.role != Leader || reply.Term != rf.currentTerm {
		return nil
	}

	serverTo := reply.RespondentID
	if reply.Success {
		if reply.MatchIndex > rf.matchIndex[serverTo] {
			rf.matchIndex[serverTo] = reply.MatchIndex
		}
		rf.nextIndex[serverTo] = rf.matchIndex[serverTo] + 1
		rf.forwardCommit(ctx)
		if rf.nextIndex[serverTo] <= rf.lastLogIndex() {
			rf.sendAppendEntries(ctx, serverTo)
		}
		return nil
	}

	// the follower reports its last index, skip what it cannot have
	next := min(rf.nextIndex[serverTo]-1, reply.MatchIndex+1)
	rf.nextIndex[serverTo] = max(next, rf.matchIndex[serverTo]+1, 0)
	rf.sendAppendEntries(ctx, serverTo)
	return nil
}

// forwardCommit commits the last entry of the current term stored on a
// majority.
func (rf *Raft) forwardCommit(ctx process.Context) {
	for n := rf.lastLogIndex(); n > rf.commitIndex; n-- {
		if rf.log[n].Term != rf.currentTerm {
			break
		}
		count := 1
		for i := range rf.peers {
			if i != rf.me && rf.matchIndex[i] >= n {
				count++
			}
		}
		if count >= rf.majority() {
			rf.commitIndex = n
			rf.applyCommitted(ctx)
			return
		}
	}
}

// AppendEntries handles entries or a heartbeat of the leader.
func (rf *Raft) AppendEntries(ctx process.Context, args *AppendEntriesRequest) error {
	if err := rf.checkTerm(ctx, args.Term); err != nil {
		return err
	}

	reply := AppendEntriesResponse{
		RespondentID: rf.me,
		Term:         rf.currentTerm,
		MatchIndex:   rf.lastLogIndex(),
		CommitIndex:  rf.commitIndex,
	}
	if args.Term < rf.currentTerm {
		rf.send(ctx, args.LeaderID, reply)
		return nil
	}

	if rf.role != Follower || rf.leaderID != args.LeaderID {
		rf.becomeFollower(ctx, args.LeaderID)
	} else {
		rf.resetVoteTimer(ctx)
	}

	if args.PrevLogIndex > rf.lastLogIndex() ||
		(args.PrevLogIndex >= 0 && rf.logTerm(args.PrevLogIndex) != args.PrevLogTerm) {
		reply.MatchIndex = min(rf.lastLogIndex(), args.PrevLogIndex-1)
		rf.send(ctx, args.LeaderID, reply)
		return nil
	}

	match, err := rf.updateLog(ctx, args)
	if err != nil {
		return err
	}
	if args.LeadersCommit > rf.commitIndex {
		rf.commitIndex = max(rf.commitIndex, min(args.LeadersCommit, match))
		rf.applyCommitted(ctx)
	}

	reply.Success = true
	reply.MatchIndex = match
	reply.CommitIndex = rf.commitIndex
	rf.send(ctx, args.LeaderID, reply)
	return nil
}

// updateLog stores the entries after PrevLogIndex, dropping a conflicting
// suffix, and returns the index of the last entry known to match.
func (rf *Raft) updateLog(ctx process.Context, args *AppendEntriesRequest) (int64, error) {
	for k, entry := range args.Entries {
		index := args.PrevLogIndex + 1 + int64(k)
		if index <= rf.lastLogIndex() {
			if rf.log[index].Term == entry.Term {
				continue
			}
			if index <= rf.commitIndex {
				ctx.Logger().Error("conflict with a committed entry", zap.Int64("index", index))
			}
			ctx.Logger().Debug("log truncated", zap.Int64("from", index))
			if err := rf.truncateLog(index); err != nil {
				return none, err
			}
		}
		if err := rf.appendLog(args.Entries[k:]...); err != nil {
			return none, err
		}
		break
	}
	return args.PrevLogIndex + int64(len(args.Entries)), nil
}
