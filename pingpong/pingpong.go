// Package pingpong is the smallest dsbuild system: a pinger which
// retries numbered pings until it collects the pongs it needs and a
// ponger which answers them until nobody pings for a while.
package pingpong

import (
	"dsbuild/process"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	PingTip = "PING"
	PongTip = "PONG"

	PingTimer = "PING_TIMER"
	PongTimer = "PONG_TIMER"

	// StartTip starts a process. It is sent locally.
	StartTip = "START"
)

// Start is the local message which starts a pinger or a ponger.
func Start() process.Message {
	return process.MustMessage(StartTip, struct{}{})
}

type Pinger struct {
	delay   time.Duration
	partner process.Address
	need    uint32

	LastPong uint32
	Started  bool
	Stopped  bool
}

func NewPinger(delay time.Duration, partner process.Address, need uint32) *Pinger {
	if delay <= 0 {
		panic("pingpong: delay must be positive")
	}
	return &Pinger{delay: delay, partner: partner, need: need}
}

func (p *Pinger) ping(ctx process.Context) {
	ctx.Send(process.MustMessage(PingTip, p.LastPong+1), p.partner)
	ctx.SetTimer(PingTimer, p.delay)
}

func (p *Pinger) OnLocalMessage(ctx process.Context, msg process.Message) error {
	if msg.Tip() != StartTip || p.Started {
		return nil
	}
	p.Started = true
	p.ping(ctx)
	return nil
}

func (p *Pinger) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	if msg.Tip() != PongTip {
		return fmt.Errorf("unexpected message %q from %s", msg.Tip(), from)
	}
	var seq uint32
	if err := msg.Data(&seq); err != nil {
		return err
	}
	if seq == p.LastPong+1 {
		p.LastPong++
		ctx.Logger().Debug("pong received", zap.Uint32("seq", seq))
	}
	if p.LastPong == p.need && !p.Stopped {
		ctx.CancelTimer(PingTimer)
		ctx.SendLocal(process.MustMessage(PongTip, p.LastPong))
		ctx.Stop()
		p.Stopped = true
	}
	return nil
}

func (p *Pinger) OnTimer(ctx process.Context, name string) error {
	p.ping(ctx)
	return nil
}

// Ponger answers pings and stops after maxInactivity without them.
type Ponger struct {
	maxInactivity time.Duration

	Answered uint32
	Started  bool
	Stopped  bool
}

func NewPonger(maxInactivity time.Duration) *Ponger {
	return &Ponger{maxInactivity: maxInactivity}
}

func (p *Ponger) OnLocalMessage(ctx process.Context, msg process.Message) error {
	if msg.Tip() != StartTip || p.Started {
		return nil
	}
	p.Started = true
	ctx.SetTimer(PongTimer, p.maxInactivity)
	return nil
}

func (p *Ponger) OnMessage(ctx process.Context, msg process.Message, from process.Address) error {
	if !p.Started {
		return nil
	}
	if msg.Tip() != PingTip {
		return fmt.Errorf("unexpected message %q from %s", msg.Tip(), from)
	}
	var seq uint32
	if err := msg.Data(&seq); err != nil {
		return err
	}
	ctx.Send(process.MustMessage(PongTip, seq), from)
	p.Answered++
	ctx.SetTimer(PongTimer, p.maxInactivity)
	return nil
}

func (p *Ponger) OnTimer(ctx process.Context, name string) error {
	ctx.Logger().Debug("no pings, stopping", zap.Uint32("answered", p.Answered))
	ctx.Stop()
	p.Stopped = true
	return nil
}
