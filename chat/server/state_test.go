package server

import (
	"dsbuild/chat"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/stretchr/testify/require"
)

func req(user string, kind chat.RequestKind) chat.ClientRequest {
	return chat.ClientRequest{Client: user, Kind: kind}
}

func TestStateEvents(t *testing.T) {
	s := newState()
	apply := func(r chat.ClientRequest) chat.ChatEvent {
		ev, err := s.event(r, 1)
		require.NoError(t, err)
		s.apply(ev)
		return ev
	}

	ev := apply(req("alice", chat.Create("room")))
	assert.Equal(t, ev.Seq, uint64(0))
	assert.Equal(t, ev.Type, chat.CreatedEvent)

	ev = apply(req("alice", chat.Connect("room")))
	assert.Equal(t, ev.Seq, uint64(1))
	apply(req("bob", chat.Connect("room")))
	ev = apply(req("alice", chat.SendMessage("hi")))
	assert.Equal(t, ev.Chat, "room")
	assert.Equal(t, ev.Seq, uint64(3))
	assert.Equal(t, s.rooms["room"].members(), []string{"alice", "bob"})

	ev = apply(req("bob", chat.Disconnect()))
	assert.Equal(t, ev.Type, chat.DisconnectedEvent)
	assert.Equal(t, s.rooms["room"].members(), []string{"alice"})
	assert.Equal(t, s.users["bob"].chat, "")
}

func TestStateErrors(t *testing.T) {
	s := newState()
	ev, err := s.event(req("alice", chat.Create("room")), 0)
	require.NoError(t, err)
	s.apply(ev)
	ev, err = s.event(req("alice", chat.Connect("room")), 0)
	require.NoError(t, err)
	s.apply(ev)

	_, err = s.event(req("bob", chat.SendMessage("hi")), 0)
	assert.Equal(t, errors.Is(err, ErrNotConnected), true)
	_, err = s.event(req("bob", chat.Disconnect()), 0)
	assert.Equal(t, errors.Is(err, ErrNotConnected), true)
	_, err = s.event(req("bob", chat.Connect("Room")), 0)
	assert.Equal(t, errors.Is(err, ErrChatNotFound), true)
	_, err = s.event(req("alice", chat.Connect("room")), 0)
	assert.Equal(t, errors.Is(err, ErrAlreadyConnected), true)
	_, err = s.event(req("alice", chat.Create("other")), 0)
	assert.Equal(t, errors.Is(err, ErrConnectedToChat), true)
	_, err = s.event(req("bob", chat.Create("room")), 0)
	var exists *ChatExistsError
	require.True(t, errors.As(err, &exists))
	assert.Equal(t, err.Error(), `chat with name "room" already exists`)
	_, err = s.event(req("bob", chat.RequestKind{Type: "jump"}), 0)
	assert.Equal(t, errors.Is(err, ErrUnknownRequest), true)
}

func TestStateExecuted(t *testing.T) {
	s := newState()
	r := chat.ClientRequest{ID: 3, Session: 7, Client: "alice", Kind: chat.Create("room")}
	assert.Equal(t, s.executed(r), false)

	s.remember(r)
	assert.Equal(t, s.executed(r), true)
	r.ID = 2
	assert.Equal(t, s.executed(r), true)
	r.ID = 4
	assert.Equal(t, s.executed(r), false)

	// another process of the same user starts over
	assert.Equal(t, s.executed(chat.ClientRequest{ID: 1, Session: 8, Client: "alice"}), false)

	// generated events have no session
	s.remember(chat.ClientRequest{Client: "alice", Kind: chat.Disconnect()})
	assert.Equal(t, s.executed(chat.ClientRequest{ID: 3, Session: 7, Client: "alice"}), true)
	assert.Equal(t, s.executed(chat.ClientRequest{Client: "alice"}), false)
}
