package client

import (
	"dsbuild/chat"
	"errors"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		line string
		want chat.RequestKind
	}{
		{"/send hello", chat.SendMessage("hello")},
		{"/send 'hello world'", chat.SendMessage("hello world")},
		{"/CREATE room", chat.Create("room")},
		{"/connect 'my room'", chat.Connect("my room")},
		{"  /disconnect  ", chat.Disconnect()},
		{"/status", chat.Status()},
	} {
		got, err := Parse(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, got, tc.want)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		line string
		kind ParseErrorKind
		info string
	}{
		{"hello", BadSyntax, "request must start with /"},
		{"/", BadSyntax, "request must not be empty"},
		{"/send", BadSyntax, "send: expected 'message'"},
		{"/send 'hi", BadSyntax, "closing quote expected"},
		{"/send hi there", BadSyntax, "send: quote 'message' with spaces"},
		{"/connect", BadSyntax, "connect: expected 'chat name'"},
		{"/jump high", CommandNotExists, "jump"},
	} {
		_, err := Parse(tc.line)
		var perr *ParseError
		require.True(t, errors.As(err, &perr), tc.line)
		assert.Equal(t, perr.Kind, tc.kind)
		assert.Equal(t, perr.Info, tc.info)
	}
}

func event(seq uint64, user string) chat.ChatEvent {
	return chat.ChatEvent{Chat: "room", User: user, Type: chat.SentMessageEvent, Message: "m", Seq: seq}
}

func TestChatOrder(t *testing.T) {
	c := NewChat("room")
	assert.Equal(t, len(c.Add(event(2, "bob"))), 0)
	assert.Equal(t, len(c.Add(event(1, "alice"))), 0)
	assert.Equal(t, c.Pending(), []uint64{1, 2})

	got := c.Add(event(0, "carol"))
	if diff := cmp.Diff([]chat.ChatEvent{event(0, "carol"), event(1, "alice"), event(2, "bob")}, got); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(c.Add(event(1, "alice"))), 0)
	assert.Equal(t, len(c.Pending()), 0)
}

func request(id uint64, kind chat.RequestKind) chat.ClientRequest {
	return chat.ClientRequest{ID: id, Client: "alice", Password: "pw", Kind: kind}
}

func texts(infos []chat.Info) []string {
	var out []string
	for _, i := range infos {
		if i.Event != nil {
			out = append(out, i.Event.User+":"+i.Event.Message)
		} else {
			out = append(out, i.Text)
		}
	}
	return out
}

func TestStateQueuesRequests(t *testing.T) {
	var s State
	first, second := request(1, chat.Connect("room")), request(2, chat.SendMessage("hi"))

	up := s.ApplyRequest(first)
	require.NotNil(t, up.ToServer)
	assert.Equal(t, up.ToServer.ID, uint64(1))
	assert.Equal(t, s.ApplyRequest(second), Update{})

	// events are held back until the response
	assert.Equal(t, s.ApplyServerMessage(chat.Events("room", event(1, "bob"), event(0, "bob"))), Update{})
	// responses to other requests are stale
	assert.Equal(t, s.ApplyServerMessage(chat.Ok(7)), Update{})

	up = s.ApplyServerMessage(chat.Ok(1))
	assert.Equal(t, s.Chat(), "room")
	assert.Equal(t, texts(up.ToUser), []string{"bob:m", "bob:m"})
	require.NotNil(t, up.ToServer)
	assert.Equal(t, up.ToServer.ID, uint64(2))

	up = s.ApplyServerMessage(chat.Failed(2, "boom"))
	assert.Equal(t, texts(up.ToUser), []string{"boom"})
	assert.Equal(t, up.ToServer == nil, true)
	_, waiting := s.Waiting()
	assert.Equal(t, waiting, false)

	// events of other chats are dropped
	assert.Equal(t, len(s.ApplyServerMessage(chat.Events("other", event(0, "bob"))).ToUser), 0)
	assert.Equal(t, texts(s.ApplyServerMessage(chat.Events("room", event(2, "carol"))).ToUser), []string{"carol:m"})
}

func TestStateStatus(t *testing.T) {
	var s State
	s.ApplyRequest(request(1, chat.Status()))
	resp := chat.Ok(1)
	resp.Chat = "room"
	up := s.ApplyServerMessage(resp)
	assert.Equal(t, texts(up.ToUser), []string{"user connected to room"})
	assert.Equal(t, s.Chat(), "room")

	s.ApplyRequest(request(2, chat.Disconnect()))
	s.ApplyServerMessage(chat.Ok(2))
	assert.Equal(t, s.Chat(), "")

	s.ApplyRequest(request(3, chat.Status()))
	up = s.ApplyServerMessage(chat.Ok(3))
	assert.Equal(t, texts(up.ToUser), []string{"user not connected to chat"})
}
