// Package server implements the chat server process.
//
// A server keeps a global log of chat events in its storage. Two servers
// can be configured as partners: every event one of them accepts is
// passed to the other, which catches up on gaps by asking for the
// missing range of the log.
package server

import (
	"dsbuild/chat"
	"dsbuild/process"
	"fmt"

	"go.uber.org/zap"
)

type Option func(*Server)

// WithPartner makes the server replicate its events to the partner.
func WithPartner(addr process.Address) Option {
	return func(s *Server) {
		s.partner = &addr
	}
}

type Server struct {
	partner *process.Address

	state  *state
	store  *storage
	total  uint64
	loaded bool

	// committed events waiting to be saved, in order of their seq
	queue    []pending
	flushing bool
}

type pending struct {
	seq   uint64
	entry entry
	done  func(ctx process.Context, err error)
}

// commitDone runs once an event is saved. members are the users of the
// chat right after the event.
type commitDone func(ctx process.Context, seq uint64, members []string, err error) error

func New(opts ...Option) *Server {
	s := &Server{state: newState()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Total is the length of the global log.
func (s *Server) Total() uint64 {
	return s.total
}

// Members returns the users connected to a chat.
func (s *Server) Members(name string) []string {
	r, ok := s.state.rooms[name]
	if !ok {
		return nil
	}
	return r.members()
}

// ChatOf returns the chat a user is connected to.
func (s *Server) ChatOf(name string) string {
	if u, ok := s.state.users[name]; ok {
		return u.chat
	}
	return ""
}

// load replays the global log the first time the server handles
// anything after a start.
func (s *Server) load(ctx process.Context) error {
	if s.loaded {
		return nil
	}
	s.store = newStorage(ctx)
	entries, err := s.store.entries()
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	for _, e := range entries {
		s.state.apply(e.Event)
		s.state.remember(e.Request)
		if e.Request.Addr != nil {
			s.state.user(e.Request.Client).addr = e.Request.Addr
		}
	}
	s.total = uint64(len(entries))
	s.loaded = true
	if len(entries) > 0 {
		ctx.Logger().Info("events loaded", zap.Uint64("total", s.total))
	}
	return nil
}

func (s *Server) OnLocalMessage(ctx process.Context, msg process.Message) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	switch msg.Tip() {
	case chat.CheckPartnerTip:
		s.checkPartner(ctx)
		return nil
	default:
		return fmt.Errorf("unexpected local message %q", msg.Tip())
	}
}

func (s *Server) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	if err := s.load(ctx); err != nil {
		return err
	}
	switch msg.Tip() {
	case chat.ClientRequestTip:
		var req chat.ClientRequest
		if err := msg.Data(&req); err != nil {
			return err
		}
		return s.onRequest(ctx, req, from)
	case chat.ReplicateRequestTip:
		var r chat.ReplicateRequest
		if err := msg.Data(&r); err != nil {
			return err
		}
		return s.onReplicate(ctx, r.SeqNum, r.ClientRequest, r.Event, from)
	case chat.ReplicateEventRequestTip:
		var r chat.ReplicateEventRequest
		if err := msg.Data(&r); err != nil {
			return err
		}
		return s.onReplicate(ctx, r.TotalSeqNum, r.ClientRequest, r.Event, from)
	case chat.TotalSeqNumRequestTip:
		var r chat.TotalSeqNumRequest
		if err := msg.Data(&r); err != nil {
			return err
		}
		reply := process.MessageFrom(chat.TotalSeqNumMsg{TotalSeqNum: s.total})
		ctx.Spawn(func(ctx process.Context) {
			if err := ctx.SendWithTag(reply, r.Tag, from, chat.Timeout); err != nil {
				ctx.Logger().Warn("total not sent", zap.Stringer("to", from), zap.Error(err))
			}
		})
		return nil
	case chat.ReceiveEventsRequestTip:
		var r chat.ReceiveEventsRequest
		if err := msg.Data(&r); err != nil {
			return err
		}
		s.sendRange(ctx, r.From, r.To, from)
		return nil
	default:
		return fmt.Errorf("unexpected message %q from %s", msg.Tip(), from)
	}
}

func (s *Server) OnTimer(ctx process.Context, name string) error {
	return nil
}

func (s *Server) onRequest(ctx process.Context, req chat.ClientRequest, from process.Address) error {
	now := ctx.Time()
	req.Time, req.Addr = &now, &from

	ok, err := s.store.authenticate(req.Client, req.Password)
	if err != nil {
		s.send(ctx, from, chat.Failed(req.ID, err.Error()))
		return fmt.Errorf("authenticate %s: %w", req.Client, err)
	}
	if !ok {
		s.send(ctx, from, chat.Failed(req.ID, ErrBadPassword.Error()))
		return nil
	}
	u := s.state.user(req.Client)
	u.addr = &from

	if req.Kind.Type == chat.StatusRequest {
		resp := chat.Ok(req.ID)
		resp.Chat = u.chat
		s.send(ctx, from, resp)
		if u.chat != "" {
			return s.sendHistory(ctx, req.Client, u.chat)
		}
		return nil
	}

	if s.state.executed(req) {
		ctx.Logger().Debug("request repeated", zap.String("user", req.Client), zap.Uint64("id", req.ID))
		s.send(ctx, from, chat.Ok(req.ID))
		return nil
	}
	ev, err := s.state.event(req, now)
	if err != nil {
		s.send(ctx, from, chat.Failed(req.ID, err.Error()))
		return nil
	}
	s.commit(ctx, req, ev, func(ctx process.Context, seq uint64, members []string, err error) error {
		if err != nil {
			s.send(ctx, from, chat.Failed(req.ID, err.Error()))
			return err
		}
		ctx.Logger().Debug("event committed", zap.Uint64("seq", seq), zap.Stringer("event", ev))
		s.send(ctx, from, chat.Ok(req.ID))
		s.replicate(ctx, seq, req, ev)
		return s.deliver(ctx, ev, members)
	})
	return nil
}

// commit gives the event the next position of the global log and applies
// it at once, so events generated while an earlier one is being saved
// get their own positions. Saves happen one by one in log order and done
// runs after the save of its event.
func (s *Server) commit(ctx process.Context, req chat.ClientRequest, ev chat.ChatEvent, done commitDone) {
	seq := s.total
	s.state.apply(ev)
	s.state.remember(req)
	s.total++
	members := s.Members(ev.Chat)
	s.queue = append(s.queue, pending{
		seq:   seq,
		entry: entry{Request: req, Event: ev},
		done: func(ctx process.Context, err error) {
			if err := done(ctx, seq, members, err); err != nil {
				ctx.Logger().Error("event not handled", zap.Uint64("seq", seq), zap.Error(err))
			}
		},
	})
	if s.flushing {
		return
	}
	s.flushing = true
	defer func() { s.flushing = false }()
	for len(s.queue) > 0 {
		p := s.queue[0]
		s.queue = s.queue[1:]
		var err error
		if err = s.store.save(p.seq, p.entry); err != nil {
			err = fmt.Errorf("save event %d: %w", p.seq, err)
		}
		p.done(ctx, err)
	}
}

// deliver sends an event to the members of its chat. A connected user
// gets the whole history of the chat instead.
func (s *Server) deliver(ctx process.Context, ev chat.ChatEvent, members []string) error {
	if ev.Type == chat.CreatedEvent {
		return nil
	}
	for _, name := range members {
		if ev.Type == chat.ConnectedEvent && name == ev.User {
			continue
		}
		s.sendTo(ctx, name, chat.Events(ev.Chat, ev))
	}
	if ev.Type == chat.ConnectedEvent {
		return s.sendHistory(ctx, ev.User, ev.Chat)
	}
	return nil
}

func (s *Server) sendHistory(ctx process.Context, user, name string) error {
	events, err := s.store.history(name)
	if err != nil {
		return fmt.Errorf("history of %s: %w", name, err)
	}
	s.sendTo(ctx, user, chat.Events(name, events...))
	return nil
}

func (s *Server) send(ctx process.Context, to process.Address, msg chat.ServerMessage) {
	ctx.Spawn(func(ctx process.Context) {
		if err := ctx.SendWithAck(process.MessageFrom(msg), to, chat.Timeout); err != nil {
			ctx.Logger().Warn("response not sent", zap.Stringer("to", to), zap.Error(err))
		}
	})
}

// sendTo sends a message to a user. A user which can not be reached is
// disconnected from its chat.
func (s *Server) sendTo(ctx process.Context, user string, msg chat.ServerMessage) {
	u, ok := s.state.users[user]
	if !ok || u.addr == nil {
		return
	}
	to := *u.addr
	ctx.Spawn(func(ctx process.Context) {
		if err := ctx.SendWithAck(process.MessageFrom(msg), to, chat.Timeout); err != nil {
			ctx.Logger().Info("user unreachable", zap.String("user", user), zap.Stringer("addr", to), zap.Error(err))
			if err := s.disconnect(ctx, user, to); err != nil {
				ctx.Logger().Error("disconnect failed", zap.String("user", user), zap.Error(err))
			}
		}
	})
}

func (s *Server) disconnect(ctx process.Context, user string, addr process.Address) error {
	u, ok := s.state.users[user]
	if !ok || u.addr == nil || *u.addr != addr || u.chat == "" {
		return nil
	}
	now := ctx.Time()
	req := chat.ClientRequest{Client: user, Time: &now, Kind: chat.Disconnect(), Addr: &addr}
	ev, err := s.state.event(req, now)
	if err != nil {
		return err
	}
	s.commit(ctx, req, ev, func(ctx process.Context, seq uint64, members []string, err error) error {
		if err != nil {
			return err
		}
		s.replicate(ctx, seq, req, ev)
		return s.deliver(ctx, ev, members)
	})
	return nil
}
