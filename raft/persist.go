package raft

import "dsbuild/process"

// setTerm moves to a newer term and forgets the vote. Both reach the
// storage before the replica acts on them.
func (rf *Raft) setTerm(term int64) error {
	if rf.votedFor != none {
		if err := rf.persister.SaveVote(none); err != nil {
			return err
		}
		rf.votedFor = none
	}
	if err := rf.persister.SaveTerm(term); err != nil {
		return err
	}
	rf.currentTerm = term
	return nil
}

func (rf *Raft) setVote(candidate int) error {
	if rf.votedFor == candidate {
		return nil
	}
	if err := rf.persister.SaveVote(candidate); err != nil {
		return err
	}
	rf.votedFor = candidate
	return nil
}

// checkTerm steps down when a message carries a newer term.
func (rf *Raft) checkTerm(ctx process.Context, term int64) error {
	if term <= rf.currentTerm {
		return nil
	}
	if err := rf.setTerm(term); err != nil {
		return err
	}
	rf.becomeFollower(ctx, none)
	return nil
}

// appendLog persists entries and adds them to the log.
func (rf *Raft) appendLog(entries ...Entry) error {
	if err := rf.persister.AppendLog(int64(len(rf.log)), entries); err != nil {
		return err
	}
	rf.log = append(rf.log, entries...)
	return nil
}

// truncateLog drops the entries from index on.
func (rf *Raft) truncateLog(index int64) error {
	kept := rf.log[:index]
	if err := rf.persister.RewriteLog(kept); err != nil {
		return err
	}
	rf.log = kept
	return nil
}

// acceptSeq remembers the largest sequence number this replica handed
// out to its user.
func (rf *Raft) acceptSeq(id CommandID) error {
	if id.Server != rf.me || id.Seq <= rf.seqNum {
		return nil
	}
	if err := rf.persister.SaveSeqNum(id.Seq); err != nil {
		return err
	}
	rf.seqNum = id.Seq
	return nil
}
