package raft

import "time"

const (
	Follower = iota
	Candidate
	Leader
)

// Message tips.
const (
	VoteRequestTip           = "vote_request"
	VoteResponseTip          = "vote_response"
	AppendEntriesRequestTip  = "append_entries_request"
	AppendEntriesResponseTip = "append_entries_response"

	CommandTip            = "command"
	ReadValueRequestTip   = "read_value_request"
	LocalResponseTip      = "local_response"
	InitializeRequestTip  = "initialize_request"
	InitializeResponseTip = "initialize_response"
	StateInfoTip          = "state_info"
)

const (
	electionTimer  = "election_timer"
	heartbeatTimer = "heartbeat_timer"
	dumpStateTimer = "dump_state"
)

const (
	currentTermFile = "current_term.txt"
	voteForFile     = "vote_for.txt"
	logFile         = "log.txt"
	seqNumFile      = "seq_num.txt"
)

const (
	ElectTimeOutFactor = 20
	HeartBeatFactor    = 2
	DumpStatePeriod    = 10 * time.Second

	// maxEntriesPerRequest bounds one append_entries_request.
	maxEntriesPerRequest = 64
)

// none marks an absent index or replica id.
const none = -1
