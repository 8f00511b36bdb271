package raft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// CommandID identifies a user request. The responsible server is the
// replica which accepted it from its user and answers it.
type CommandID struct {
	Server int    `json:"responsible_server"`
	Seq    uint64 `json:"seq"`
}

func (id CommandID) String() string {
	return fmt.Sprintf("%d:%d", id.Server, id.Seq)
}

var ErrBadCommandID = errors.New("bad command id")

// ParseCommandID parses the "server:seq" form of String.
func ParseCommandID(s string) (CommandID, error) {
	server, seq, ok := strings.Cut(s, ":")
	if !ok {
		return CommandID{}, fmt.Errorf("%w: %q", ErrBadCommandID, s)
	}
	srv, err := strconv.Atoi(server)
	if err != nil {
		return CommandID{}, fmt.Errorf("%w: %v", ErrBadCommandID, err)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return CommandID{}, fmt.Errorf("%w: %v", ErrBadCommandID, err)
	}
	return CommandID{Server: srv, Seq: n}, nil
}

type CommandKind string

const (
	CreateKind CommandKind = "create"
	UpdateKind CommandKind = "update"
	DeleteKind CommandKind = "delete"
	CasKind    CommandKind = "cas"
)

// CommandType is a modification of the store. Value holds the new value
// of Update and the swap value of Cas.
type CommandType struct {
	Kind    CommandKind `json:"kind"`
	Key     string      `json:"key"`
	Value   string      `json:"value,omitempty"`
	Compare string      `json:"compare,omitempty"`
}

func Create(key string) CommandType {
	return CommandType{Kind: CreateKind, Key: key}
}

func Update(key, value string) CommandType {
	return CommandType{Kind: UpdateKind, Key: key, Value: value}
}

func Delete(key string) CommandType {
	return CommandType{Kind: DeleteKind, Key: key}
}

func Cas(key, compare, swap string) CommandType {
	return CommandType{Kind: CasKind, Key: key, Compare: compare, Value: swap}
}

func (ct CommandType) String() string {
	switch ct.Kind {
	case UpdateKind:
		return fmt.Sprintf("update %s=%q", ct.Key, ct.Value)
	case CasKind:
		return fmt.Sprintf("cas %s %q->%q", ct.Key, ct.Compare, ct.Value)
	default:
		return fmt.Sprintf("%s %s", ct.Kind, ct.Key)
	}
}

type Command struct {
	Type CommandType `json:"type"`
	ID   CommandID   `json:"id"`
}

func (Command) Tip() string { return CommandTip }

// Status codes of command replies. They double as HTTP status codes.
const (
	CreatedCode       = 201
	AlreadyExistsCode = 409
	UpdatedCode       = 202
	NotFoundCode      = 404
	NotUpdatedCode    = 202
	DeletedCode       = 204
)

type CommandReply struct {
	Status    int       `json:"status"`
	Info      string    `json:"info"`
	CommandID CommandID `json:"command_id"`
}

// Entry is a log entry. A nil command is the no-op a new leader appends.
type Entry struct {
	Term    int64    `json:"term"`
	Command *Command `json:"command,omitempty"`
}

// Local API ------------------------------------------------------------

type InitializeRequest struct{}

func (InitializeRequest) Tip() string { return InitializeRequestTip }

// InitializeResponse carries the last sequence number the replica handed
// out, so the user continues after it.
type InitializeResponse struct {
	SeqNum uint64 `json:"seq_num"`
}

func (InitializeResponse) Tip() string { return InitializeResponseTip }

// ReadValueRequest reads a key. A replica given MinCommitID answers only
// once it applied the log up to that index.
type ReadValueRequest struct {
	Key         string    `json:"key"`
	RequestID   CommandID `json:"request_id"`
	MinCommitID *int64    `json:"min_commit_id,omitempty"`
}

func (ReadValueRequest) Tip() string { return ReadValueRequestTip }

type ResponseType string

const (
	Unavailable  ResponseType = "unavailable"
	ReadValue    ResponseType = "read_value"
	RedirectedTo ResponseType = "redirected_to"
	CommandDone  ResponseType = "command"
)

// LocalResponse answers a command or a read. Which fields are set depends
// on the type: Value for ReadValue, To and CommitIndex for RedirectedTo,
// Reply for CommandDone.
type LocalResponse struct {
	RequestID   CommandID     `json:"request_id"`
	Type        ResponseType  `json:"type"`
	Value       *string       `json:"value,omitempty"`
	To          int           `json:"to"`
	CommitIndex *int64        `json:"commit_index,omitempty"`
	Reply       *CommandReply `json:"reply,omitempty"`
}

func (LocalResponse) Tip() string { return LocalResponseTip }

func (r LocalResponse) String() string {
	switch r.Type {
	case ReadValue:
		if r.Value == nil {
			return fmt.Sprintf("%s: no value", r.RequestID)
		}
		return fmt.Sprintf("%s: value %q", r.RequestID, *r.Value)
	case RedirectedTo:
		if r.CommitIndex == nil {
			return fmt.Sprintf("%s: redirected to %d", r.RequestID, r.To)
		}
		return fmt.Sprintf("%s: redirected to %d, commit index %d", r.RequestID, r.To, *r.CommitIndex)
	case CommandDone:
		return fmt.Sprintf("%s: %d %s", r.RequestID, r.Reply.Status, r.Reply.Info)
	default:
		return fmt.Sprintf("%s: %s", r.RequestID, r.Type)
	}
}

func unavailable(id CommandID) LocalResponse {
	return LocalResponse{RequestID: id, Type: Unavailable, To: none}
}

func readValue(id CommandID, value *string) LocalResponse {
	return LocalResponse{RequestID: id, Type: ReadValue, Value: value, To: none}
}

func redirectedTo(id CommandID, to int, commitIndex *int64) LocalResponse {
	return LocalResponse{RequestID: id, Type: RedirectedTo, To: to, CommitIndex: commitIndex}
}

func commandDone(reply CommandReply) LocalResponse {
	return LocalResponse{RequestID: reply.CommandID, Type: CommandDone, Reply: &reply, To: none}
}

type Role string

const (
	FollowerRole  Role = "follower"
	CandidateRole Role = "candidate"
	LeaderRole    Role = "leader"
)

func roleName(role int) Role {
	switch role {
	case Leader:
		return LeaderRole
	case Candidate:
		return CandidateRole
	default:
		return FollowerRole
	}
}

// StateInfo is sent to the user whenever the role or the term changes.
type StateInfo struct {
	Role        Role  `json:"role"`
	CurrentTerm int64 `json:"current_term"`
	Leader      int   `json:"leader"`
}

func (StateInfo) Tip() string { return StateInfoTip }
