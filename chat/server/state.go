package server

import (
	"dsbuild/chat"
	"dsbuild/process"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrBadPassword      = errors.New("bad password")
	ErrNotConnected     = errors.New("not connected to chat")
	ErrChatNotFound     = errors.New("chat not found")
	ErrAlreadyConnected = errors.New("user already connected to chat")
	ErrConnectedToChat  = errors.New("user is connected to chat")
	ErrUnknownRequest   = errors.New("unknown request")
)

type ChatExistsError struct {
	Name string
}

func (e *ChatExistsError) Error() string {
	return fmt.Sprintf("chat with name %q already exists", e.Name)
}

type room struct {
	name  string
	next  uint64
	users map[string]struct{}
}

func (r *room) members() []string {
	names := make([]string, 0, len(r.users))
	for name := range r.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type user struct {
	addr *process.Address
	chat string

	// last request of the user in the log
	session uint64
	lastID  uint64
}

// state is what the global log of events builds up.
type state struct {
	rooms map[string]*room
	users map[string]*user
}

func newState() *state {
	return &state{
		rooms: make(map[string]*room),
		users: make(map[string]*user),
	}
}

func (s *state) user(name string) *user {
	u, ok := s.users[name]
	if !ok {
		u = &user{}
		s.users[name] = u
	}
	return u
}

// remember notes the request of a logged event. Events the server
// generates itself carry no session.
func (s *state) remember(req chat.ClientRequest) {
	if req.Session == 0 {
		return
	}
	u := s.user(req.Client)
	u.session, u.lastID = req.Session, req.ID
}

// executed reports whether the request is already in the log.
func (s *state) executed(req chat.ClientRequest) bool {
	u, ok := s.users[req.Client]
	return ok && req.Session != 0 && u.session == req.Session && req.ID <= u.lastID
}

// event checks a request of a user against the state and returns the
// event it produces.
func (s *state) event(req chat.ClientRequest, now float64) (chat.ChatEvent, error) {
	u := s.user(req.Client)
	ev := chat.ChatEvent{User: req.Client, Time: now}
	switch req.Kind.Type {
	case chat.SendMessageRequest:
		if u.chat == "" {
			return ev, ErrNotConnected
		}
		ev.Chat, ev.Type, ev.Message = u.chat, chat.SentMessageEvent, req.Kind.Arg
	case chat.CreateRequest:
		if u.chat != "" {
			return ev, ErrConnectedToChat
		}
		if _, ok := s.rooms[req.Kind.Arg]; ok {
			return ev, &ChatExistsError{Name: req.Kind.Arg}
		}
		ev.Chat, ev.Type = req.Kind.Arg, chat.CreatedEvent
	case chat.ConnectRequest:
		if u.chat != "" {
			return ev, ErrAlreadyConnected
		}
		if _, ok := s.rooms[req.Kind.Arg]; !ok {
			return ev, ErrChatNotFound
		}
		ev.Chat, ev.Type = req.Kind.Arg, chat.ConnectedEvent
	case chat.DisconnectRequest:
		if u.chat == "" {
			return ev, ErrNotConnected
		}
		ev.Chat, ev.Type = u.chat, chat.DisconnectedEvent
	default:
		return ev, fmt.Errorf("%w: %q", ErrUnknownRequest, req.Kind.Type)
	}
	if r, ok := s.rooms[ev.Chat]; ok {
		ev.Seq = r.next
	}
	return ev, nil
}

// apply changes the state by an event which was checked already.
func (s *state) apply(ev chat.ChatEvent) {
	r, ok := s.rooms[ev.Chat]
	if !ok {
		r = &room{name: ev.Chat, users: make(map[string]struct{})}
		s.rooms[ev.Chat] = r
	}
	if ev.Seq >= r.next {
		r.next = ev.Seq + 1
	}
	u := s.user(ev.User)
	switch ev.Type {
	case chat.ConnectedEvent:
		r.users[ev.User] = struct{}{}
		u.chat = ev.Chat
	case chat.DisconnectedEvent:
		delete(r.users, ev.User)
		u.chat = ""
	}
}
