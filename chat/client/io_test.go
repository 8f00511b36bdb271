package client

import (
	"bytes"
	"context"
	"dsbuild/chat"
	"dsbuild/process"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/stretchr/testify/require"
)

type fakeLocal struct {
	in      chan process.Message
	out     chan process.Message
	stopped chan struct{}
}

func (f *fakeLocal) Sender() chan<- process.Message   { return f.in }
func (f *fakeLocal) Receiver() <-chan process.Message { return f.out }
func (f *fakeLocal) Stopped() <-chan struct{}         { return f.stopped }

func TestRunIO(t *testing.T) {
	local := &fakeLocal{
		in:      make(chan process.Message, 10),
		out:     make(chan process.Message, 10),
		stopped: make(chan struct{}),
	}
	local.out <- process.MessageFrom(chat.Info{Text: "user not connected to chat"})

	var out bytes.Buffer
	in := strings.NewReader("/create room\n\n/fly away\n/send 'hi there'\n")
	require.NoError(t, RunIO(context.Background(), local, in, &out))

	var kinds []chat.RequestKind
	for len(local.in) > 0 {
		var kind chat.RequestKind
		require.NoError(t, (<-local.in).Data(&kind))
		kinds = append(kinds, kind)
	}
	assert.Equal(t, kinds, []chat.RequestKind{chat.Status(), chat.Create("room"), chat.SendMessage("hi there")})
	assert.Equal(t, strings.Contains(out.String(), `command "fly" does not exist`), true)
}

func TestRunIOProcessStopped(t *testing.T) {
	local := &fakeLocal{
		in:      make(chan process.Message),
		out:     make(chan process.Message),
		stopped: make(chan struct{}),
	}
	close(local.stopped)
	err := RunIO(context.Background(), local, strings.NewReader(""), &bytes.Buffer{})
	assert.Equal(t, err, ErrProcessStopped)
}
