package raft

// Messages exchanged between replicas. Log indexes are 0-based and -1
// stands for "none".

type VoteRequest struct {
	Term         int64 `json:"term"`           // candidate's term
	CandidateID  int   `json:"candidate_id"`   // candidate requesting vote
	LastLogIndex int64 `json:"last_log_index"` // index of candidate's last log entry
	LastLogTerm  int64 `json:"last_log_term"`  // term of candidate's last log entry
}

func (VoteRequest) Tip() string { return VoteRequestTip }

type VoteResponse struct {
	ResponderID int   `json:"responder_id"`
	Term        int64 `json:"term"` // currentTerm, for candidate to update itself
	VoteGranted bool  `json:"vote_granted"`
	CommitIndex int64 `json:"commit_index"`
}

func (VoteResponse) Tip() string { return VoteResponseTip }

type AppendEntriesRequest struct {
	Term          int64   `json:"term"`           // leader's term
	LeaderID      int     `json:"leader_id"`      // so follower can redirect clients
	PrevLogIndex  int64   `json:"prev_log_index"` // index of log entry immediately preceding new ones
	PrevLogTerm   int64   `json:"prev_log_term"`  // term of prevLogIndex entry
	Entries       []Entry `json:"entries"`        // empty for heartbeat
	LeadersCommit int64   `json:"leaders_commit"`
}

func (AppendEntriesRequest) Tip() string { return AppendEntriesRequestTip }

// AppendEntriesResponse reports the follower's last matching index on
// success. On failure MatchIndex is the follower's last log index, a hint
// for the leader where to continue.
type AppendEntriesResponse struct {
	RespondentID int   `json:"respondent_id"`
	Term         int64 `json:"term"`
	Success      bool  `json:"success"`
	MatchIndex   int64 `json:"match_index"`
	CommitIndex  int64 `json:"commit_index"`
}

func (AppendEntriesResponse) Tip() string { return AppendEntriesResponseTip }
