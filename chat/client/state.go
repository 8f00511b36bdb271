package client

import (
	"dsbuild/chat"
	"fmt"
)

// Update is what a change of State asks the client to do: send at most
// one request and tell the user something.
type Update struct {
	ToServer *chat.ClientRequest
	ToUser   []chat.Info
}

// State keeps one request in flight. Requests of the user are queued
// until the response to the previous one comes, and chat events coming
// meanwhile are held back so they are shown after it.
type State struct {
	chat     *Chat
	waiting  *chat.ClientRequest
	queue    []chat.ClientRequest
	buffered []chat.ServerMessage
}

// Chat returns the name of the chat the user is connected to.
func (s *State) Chat() string {
	if s.chat == nil {
		return ""
	}
	return s.chat.Name()
}

// Waiting returns the request in flight.
func (s *State) Waiting() (chat.ClientRequest, bool) {
	if s.waiting == nil {
		return chat.ClientRequest{}, false
	}
	return *s.waiting, true
}

func (s *State) ApplyRequest(req chat.ClientRequest) Update {
	if s.waiting != nil {
		s.queue = append(s.queue, req)
		return Update{}
	}
	s.waiting = &req
	return Update{ToServer: &req}
}

func (s *State) ApplyServerMessage(msg chat.ServerMessage) Update {
	if msg.Type == chat.ChatEventsMessage {
		if s.waiting != nil {
			s.buffered = append(s.buffered, msg)
			return Update{}
		}
		return Update{ToUser: s.events(msg)}
	}
	if s.waiting == nil || s.waiting.ID != msg.RequestID {
		return Update{}
	}
	return s.responded(msg)
}

func (s *State) responded(resp chat.ServerMessage) Update {
	kind := s.waiting.Kind
	s.waiting = nil

	var up Update
	switch {
	case kind.Type == chat.StatusRequest && resp.Err == nil:
		if resp.Chat == "" {
			s.chat = nil
			up.ToUser = append(up.ToUser, chat.Info{Text: "user not connected to chat"})
		} else {
			if s.chat == nil || s.chat.Name() != resp.Chat {
				s.chat = NewChat(resp.Chat)
			}
			up.ToUser = append(up.ToUser, chat.Info{Text: fmt.Sprintf("user connected to %s", resp.Chat)})
		}
	case resp.Err != nil:
		up.ToUser = append(up.ToUser, chat.Info{Text: *resp.Err})
	case kind.Type == chat.ConnectRequest:
		s.chat = NewChat(kind.Arg)
	case kind.Type == chat.DisconnectRequest:
		s.chat = nil
	}

	for _, msg := range s.buffered {
		up.ToUser = append(up.ToUser, s.events(msg)...)
	}
	s.buffered = nil

	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.waiting = &next
		up.ToServer = &next
	}
	return up
}

// events returns the events of the connected chat ready to be shown.
func (s *State) events(msg chat.ServerMessage) []chat.Info {
	if s.chat == nil || s.chat.Name() != msg.Chat {
		return nil
	}
	var infos []chat.Info
	for _, ev := range msg.Events {
		for _, ready := range s.chat.Add(ev) {
			infos = append(infos, chat.Info{Event: &ready})
		}
	}
	return infos
}
