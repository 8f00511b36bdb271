// Package chat defines the messages of the replicated chat: requests of
// clients, events of chats and the messages servers send back.
//
// Servers are in chat/server, the client process in chat/client.
package chat

import (
	"dsbuild/process"
	"time"
)

// Tips of the chat messages.
const (
	RequestKindTip   = "client_request_kind"
	ClientRequestTip = "client_request"
	ServerMessageTip = "server_message"
	InfoTip          = "client_info"
	CheckPartnerTip  = "check_partner"

	ReplicateRequestTip      = "replicate_request"
	TotalSeqNumRequestTip    = "total_seq_num_request"
	TotalSeqNumMsgTip        = "total_seq_num_msg"
	ReceiveEventsRequestTip  = "receive_events_request"
	ReplicateEventRequestTip = "replicate_event_request"
)

// Timeout bounds every reliable send of the chat.
const Timeout = 5 * time.Second

type RequestType string

const (
	SendMessageRequest RequestType = "send_message"
	CreateRequest      RequestType = "create"
	ConnectRequest     RequestType = "connect"
	DisconnectRequest  RequestType = "disconnect"
	StatusRequest      RequestType = "status"
)

// RequestKind is what the user asks for. Arg is the message of
// SendMessage and the chat name of Create and Connect.
type RequestKind struct {
	Type RequestType `json:"type" msgpack:"type"`
	Arg  string      `json:"arg,omitempty" msgpack:"arg,omitempty"`
}

func (RequestKind) Tip() string { return RequestKindTip }

func SendMessage(msg string) RequestKind { return RequestKind{Type: SendMessageRequest, Arg: msg} }
func Create(chat string) RequestKind     { return RequestKind{Type: CreateRequest, Arg: chat} }
func Connect(chat string) RequestKind    { return RequestKind{Type: ConnectRequest, Arg: chat} }
func Disconnect() RequestKind            { return RequestKind{Type: DisconnectRequest} }
func Status() RequestKind                { return RequestKind{Type: StatusRequest} }

// ClientRequest is a request of a client to a server. The server which
// accepts it sets Time and Addr before passing it to its partner.
// Session is random per client process: together with ID it names a
// request, so a request retried on another server is not executed twice.
type ClientRequest struct {
	ID       uint64           `json:"id" msgpack:"id"`
	Session  uint64           `json:"session,omitempty" msgpack:"session,omitempty"`
	Client   string           `json:"client" msgpack:"client"`
	Password string           `json:"password" msgpack:"password"`
	Time     *float64         `json:"time,omitempty" msgpack:"time,omitempty"`
	Kind     RequestKind      `json:"kind" msgpack:"kind"`
	Addr     *process.Address `json:"addr,omitempty" msgpack:"addr,omitempty"`
}

func (ClientRequest) Tip() string { return ClientRequestTip }

type EventType string

const (
	SentMessageEvent  EventType = "sent_message"
	ConnectedEvent    EventType = "connected"
	DisconnectedEvent EventType = "disconnected"
	CreatedEvent      EventType = "created"
)

// ChatEvent is an event of one chat. Seq numbers the events of the chat
// from zero, the creation of the chat being the first.
type ChatEvent struct {
	Chat    string    `json:"chat" msgpack:"chat"`
	User    string    `json:"user" msgpack:"user"`
	Time    float64   `json:"time" msgpack:"time"`
	Type    EventType `json:"type" msgpack:"type"`
	Message string    `json:"message,omitempty" msgpack:"message,omitempty"`
	Seq     uint64    `json:"seq" msgpack:"seq"`
}

type ServerMessageType string

const (
	RequestResponseMessage ServerMessageType = "request_response"
	ChatEventsMessage      ServerMessageType = "chat_events"
)

// ServerMessage is either the response to request RequestID, failed when
// Err is set, or events of Chat. The response to Status names the chat
// the user is connected to in Chat.
type ServerMessage struct {
	Type      ServerMessageType `json:"type"`
	RequestID uint64            `json:"request_id,omitempty"`
	Err       *string           `json:"err,omitempty"`
	Chat      string            `json:"chat,omitempty"`
	Events    []ChatEvent       `json:"events,omitempty"`
}

func (ServerMessage) Tip() string { return ServerMessageTip }

func Ok(id uint64) ServerMessage {
	return ServerMessage{Type: RequestResponseMessage, RequestID: id}
}

func Failed(id uint64, err string) ServerMessage {
	return ServerMessage{Type: RequestResponseMessage, RequestID: id, Err: &err}
}

func Events(chat string, events ...ChatEvent) ServerMessage {
	return ServerMessage{Type: ChatEventsMessage, Chat: chat, Events: events}
}

// Info is what a client process tells its user: a line of text or an
// event of the connected chat.
type Info struct {
	Text  string     `json:"text,omitempty"`
	Event *ChatEvent `json:"event,omitempty"`
}

func (Info) Tip() string { return InfoTip }

// CheckPartner makes a server catch up with its partner.
type CheckPartner struct{}

func (CheckPartner) Tip() string { return CheckPartnerTip }

// Replication between servers ----------------------------------------

// ReplicateRequest passes an accepted request and the event it produced
// to the partner. SeqNum is the position of the event in the global log.
type ReplicateRequest struct {
	SeqNum        uint64        `json:"seq_num"`
	ClientRequest ClientRequest `json:"client_request"`
	Event         ChatEvent     `json:"event"`
}

func (ReplicateRequest) Tip() string { return ReplicateRequestTip }

type TotalSeqNumRequest struct {
	Tag process.Tag `json:"tag"`
}

func (TotalSeqNumRequest) Tip() string { return TotalSeqNumRequestTip }

// TotalSeqNumMsg is the length of the global log of the sender.
type TotalSeqNumMsg struct {
	TotalSeqNum uint64 `json:"total_seq_num"`
}

func (TotalSeqNumMsg) Tip() string { return TotalSeqNumMsgTip }

// ReceiveEventsRequest asks for the global log entries From..To, both
// included.
type ReceiveEventsRequest struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

func (ReceiveEventsRequest) Tip() string { return ReceiveEventsRequestTip }

// ReplicateEventRequest is an entry of the global log sent to catch up.
type ReplicateEventRequest struct {
	TotalSeqNum   uint64        `json:"total_seq_num"`
	Event         ChatEvent     `json:"event"`
	ClientRequest ClientRequest `json:"client_request"`
}

func (ReplicateEventRequest) Tip() string { return ReplicateEventRequestTip }
