package real

import (
	"context"
	"dsbuild/process"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"
)

func freePort(t *testing.T) uint16 {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return uint16(lis.Addr().(*net.TCPAddr).Port)
}

// client passes local commands to the server and reports the outcome.
type client struct {
	server process.Address
}

func (c *client) OnLocalMessage(ctx process.Context, msg process.Message) error {
	text, _ := msg.InfoText()
	switch text {
	case "ask":
		reply, err := ctx.SendRecvWithTag(process.Info("question"), 7, c.server, 5*time.Second)
		if err != nil {
			return err
		}
		ctx.SendLocal(reply)
	case "ack":
		err := ctx.SendWithAck(process.Info("ping"), c.server, 5*time.Second)
		ctx.SendLocal(process.Info(errText(err)))
	case "lost":
		lost := process.NewAddress(c.server.Host, c.server.Port, "nobody")
		err := ctx.SendWithAck(process.Info("ping"), lost, 5*time.Second)
		ctx.SendLocal(process.Info(errText(err)))
	default:
		ctx.Send(msg, c.server)
	}
	return nil
}

func (c *client) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	ctx.SendLocal(msg)
	return nil
}

func (c *client) OnTimer(ctx process.Context, name string) error {
	return nil
}

func errText(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, process.ErrNotSent):
		return "not sent"
	default:
		return err.Error()
	}
}

// server answers questions with a tagged reply and echoes the rest.
type server struct {
	pings int
}

func (s *server) OnLocalMessage(ctx process.Context, msg process.Message) error {
	return nil
}

func (s *server) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	text, _ := msg.InfoText()
	switch text {
	case "question":
		ctx.Spawn(func(ctx process.Context) {
			ctx.Sleep(10 * time.Millisecond)
			if err := ctx.SendWithTag(process.Info("answer"), 7, from, 5*time.Second); err != nil {
				ctx.Logger().Warn(err.Error())
			}
		})
	case "ping":
		s.pings++
	default:
		ctx.Send(msg, from)
	}
	return nil
}

func (s *server) OnTimer(ctx process.Context, name string) error {
	return nil
}

func recv(t *testing.T, ch <-chan process.Message) string {
	select {
	case msg := <-ch:
		text, _ := msg.InfoText()
		return text
	case <-time.After(10 * time.Second):
		t.Fatal("no local message")
		return ""
	}
}

func TestTwoNodes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	serverNode := NewNode("127.0.0.1", freePort(t), t.TempDir(), WithLogger(logger))
	clientNode := NewNode("127.0.0.1", freePort(t), t.TempDir(), WithLogger(logger))

	srv, err := AddProcess(serverNode, "server", &server{})
	require.NoError(t, err)
	cl, err := AddProcess(clientNode, "client", &client{server: srv.Address()})
	require.NoError(t, err)
	_, err = AddProcess(clientNode, "client", &client{})
	assert.Equal(t, errors.Is(err, ErrProcessExists), true)

	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g.Go(func() error { return serverNode.Run(ctx) })
	g.Go(func() error { return clientNode.Run(ctx) })

	cl.Sender() <- process.Info("echo")
	assert.Equal(t, recv(t, cl.Receiver()), "echo")

	cl.Sender() <- process.Info("ask")
	assert.Equal(t, recv(t, cl.Receiver()), "answer")

	cl.Sender() <- process.Info("ack")
	assert.Equal(t, recv(t, cl.Receiver()), "ok")
	require.Eventually(t, func() bool {
		var pings int
		srv.Read(func(s *server) { pings = s.pings })
		return pings == 1
	}, 5*time.Second, 10*time.Millisecond)

	cl.Sender() <- process.Info("lost")
	assert.Equal(t, recv(t, cl.Receiver()), "not sent")

	cl.StopProcess()
	srv.StopProcess()
	require.NoError(t, g.Wait())
	assert.Equal(t, ctx.Err(), nil)
}

// stopper writes a file, arms a timer and stops when it fires.
type stopper struct{}

func (stopper) OnLocalMessage(ctx process.Context, msg process.Message) error {
	f, err := ctx.CreateFile("data")
	if err != nil {
		return err
	}
	if _, err := f.Append(msg.RawData()); err != nil {
		return err
	}
	ctx.SetTimer("stop", 10*time.Millisecond)
	return nil
}

func (stopper) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	return nil
}

func (stopper) OnTimer(ctx process.Context, name string) error {
	f, err := ctx.OpenFile("data")
	if err != nil {
		return err
	}
	buf := make([]byte, 64)
	n, err := f.Read(buf, 0)
	if err != nil {
		return err
	}
	ctx.SendLocal(process.RawMessage("data", buf[:n]))
	ctx.Stop()
	return nil
}

func TestRunReturnsWhenProcessesStop(t *testing.T) {
	n := NewNode("127.0.0.1", freePort(t), t.TempDir())
	p, err := AddProcess(n, "p", stopper{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- n.Run(context.Background()) }()
	p.Sender() <- process.Info("x")

	select {
	case msg := <-p.Receiver():
		assert.Equal(t, msg.Tip(), "data")
		assert.Equal(t, string(msg.RawData()), `"x"`)
	case <-time.After(10 * time.Second):
		t.Fatal("no data")
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
	}
	<-p.Stopped()

	_, err = AddProcess(n, "q", stopper{})
	assert.Equal(t, err, ErrRunning)
}
