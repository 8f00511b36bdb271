// Package client implements the chat client process and its terminal
// front end.
package client

import (
	"dsbuild/chat"
	"dsbuild/process"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Client is the process of one user. It knows every server and sends
// requests to the one which answered last, trying the others when it
// does not.
type Client struct {
	name     string
	password string
	servers  []process.Address
	current  int
	session  uint64
	lastID   uint64
	state    State
}

func New(name, password string, servers ...process.Address) *Client {
	if len(servers) == 0 {
		panic("client: no servers")
	}
	return &Client{name: name, password: password, servers: servers}
}

// Chat returns the chat the user is connected to.
func (c *Client) Chat() string {
	return c.state.Chat()
}

// Server returns the server requests go to.
func (c *Client) Server() process.Address {
	return c.servers[c.current]
}

func (c *Client) OnLocalMessage(ctx process.Context, msg process.Message) error {
	if msg.Tip() != chat.RequestKindTip {
		return fmt.Errorf("unexpected local message %q", msg.Tip())
	}
	var kind chat.RequestKind
	if err := msg.Data(&kind); err != nil {
		return err
	}
	if c.session == 0 {
		c.session = uint64(ctx.Rand()*math.MaxUint32) + 1
	}
	c.lastID++
	req := chat.ClientRequest{ID: c.lastID, Session: c.session, Client: c.name, Password: c.password, Kind: kind}
	c.handle(ctx, c.state.ApplyRequest(req))
	return nil
}

func (c *Client) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	if !c.known(from) {
		return fmt.Errorf("message from unknown server %s", from)
	}
	if msg.Tip() != chat.ServerMessageTip {
		return fmt.Errorf("unexpected message %q from %s", msg.Tip(), from)
	}
	var sm chat.ServerMessage
	if err := msg.Data(&sm); err != nil {
		return err
	}
	c.handle(ctx, c.state.ApplyServerMessage(sm))
	return nil
}

func (c *Client) OnTimer(ctx process.Context, name string) error {
	return nil
}

func (c *Client) known(addr process.Address) bool {
	for _, s := range c.servers {
		if s == addr {
			return true
		}
	}
	return false
}

func (c *Client) handle(ctx process.Context, up Update) {
	for _, info := range up.ToUser {
		ctx.SendLocal(process.MessageFrom(info))
	}
	if up.ToServer != nil {
		c.send(ctx, *up.ToServer)
	}
}

func (c *Client) send(ctx process.Context, req chat.ClientRequest) {
	msg := process.MessageFrom(req)
	ctx.Spawn(func(ctx process.Context) {
		var err error
		for i := range c.servers {
			n := (c.current + i) % len(c.servers)
			if err = ctx.SendWithAck(msg, c.servers[n], chat.Timeout); err == nil {
				c.current = n
				return
			}
			ctx.Logger().Debug("server unavailable", zap.Stringer("server", c.servers[n]), zap.Error(err))
		}
		failed := chat.Failed(req.ID, fmt.Sprintf("can not send request to server: %v", err))
		c.handle(ctx, c.state.ApplyServerMessage(failed))
	})
}
