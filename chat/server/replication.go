package server

import (
	"dsbuild/chat"
	"dsbuild/process"
	"math"

	"go.uber.org/zap"
)

func (s *Server) replicate(ctx process.Context, seq uint64, req chat.ClientRequest, ev chat.ChatEvent) {
	if s.partner == nil {
		return
	}
	partner := *s.partner
	msg := process.MessageFrom(chat.ReplicateRequest{SeqNum: seq, ClientRequest: req, Event: ev})
	ctx.Spawn(func(ctx process.Context) {
		if err := ctx.SendWithAck(msg, partner, chat.Timeout); err != nil {
			ctx.Logger().Warn("event not replicated", zap.Uint64("seq", seq), zap.Error(err))
		}
	})
}

// onReplicate commits an event of the partner at position seq of the
// global log. Known positions are ignored; a gap is requested from the
// partner.
func (s *Server) onReplicate(ctx process.Context, seq uint64, req chat.ClientRequest, ev chat.ChatEvent, from process.Address) error {
	switch {
	case seq < s.total:
		return nil
	case seq > s.total:
		msg := process.MessageFrom(chat.ReceiveEventsRequest{From: s.total, To: seq})
		ctx.Spawn(func(ctx process.Context) {
			if err := ctx.SendWithAck(msg, from, chat.Timeout); err != nil {
				ctx.Logger().Warn("events not requested", zap.Error(err))
			}
		})
		return nil
	}
	if req.Password != "" {
		if err := s.store.register(req.Client, req.Password); err != nil {
			return err
		}
	}
	if req.Addr != nil {
		s.state.user(req.Client).addr = req.Addr
	}
	s.commit(ctx, req, ev, func(ctx process.Context, seq uint64, _ []string, err error) error {
		if err != nil {
			return err
		}
		ctx.Logger().Debug("event replicated", zap.Uint64("seq", seq), zap.Stringer("event", ev))
		return nil
	})
	return nil
}

// sendRange sends the entries from..to of the global log one by one.
func (s *Server) sendRange(ctx process.Context, from, to uint64, dst process.Address) {
	ctx.Spawn(func(ctx process.Context) {
		entries, err := s.store.entries()
		if err != nil {
			ctx.Logger().Error("events not read", zap.Error(err))
			return
		}
		for seq := from; seq <= to && seq < uint64(len(entries)); seq++ {
			e := entries[seq]
			msg := process.MessageFrom(chat.ReplicateEventRequest{TotalSeqNum: seq, Event: e.Event, ClientRequest: e.Request})
			if err := ctx.SendWithAck(msg, dst, chat.Timeout); err != nil {
				ctx.Logger().Warn("events not sent", zap.Uint64("seq", seq), zap.Error(err))
				return
			}
		}
	})
}

// checkPartner asks the partner for the length of its log and requests
// what is missing here.
func (s *Server) checkPartner(ctx process.Context) {
	if s.partner == nil {
		return
	}
	partner := *s.partner
	ctx.Spawn(func(ctx process.Context) {
		tag := process.Tag(ctx.Rand() * math.MaxUint32)
		msg, err := ctx.SendRecvWithTag(process.MessageFrom(chat.TotalSeqNumRequest{Tag: tag}), tag, partner, chat.Timeout)
		if err != nil {
			ctx.Logger().Warn("partner not checked", zap.Error(err))
			return
		}
		var theirs chat.TotalSeqNumMsg
		if err := msg.Data(&theirs); err != nil {
			ctx.Logger().Error("bad total", zap.Error(err))
			return
		}
		if theirs.TotalSeqNum <= s.total {
			return
		}
		req := process.MessageFrom(chat.ReceiveEventsRequest{From: s.total, To: theirs.TotalSeqNum - 1})
		if err := ctx.SendWithAck(req, partner, chat.Timeout); err != nil {
			ctx.Logger().Warn("events not requested", zap.Error(err))
		}
	})
}
