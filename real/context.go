package real

import (
	"context"
	"dsbuild/process"
	"dsbuild/real/rpc"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// realContext is the process.Context of a process on a real node.
type realContext struct {
	pm *processManager
}

var _ process.Context = (*realContext)(nil)

func (c *realContext) Self() process.Address {
	return c.pm.addr
}

func (c *realContext) Logger() *zap.Logger {
	return c.pm.logger
}

func (c *realContext) Send(msg process.Message, dst process.Address) {
	pm := c.pm
	if pm.stopped() {
		return
	}
	req := rpc.NewRequest(pm.addr, dst, msg, nil)
	pm.activities.Add(1)
	go func() {
		defer pm.activities.Done()
		ctx, cancel := context.WithTimeout(pm.ctx, pm.n.sendTimeout)
		defer cancel()
		if err := pm.n.client.Send(ctx, req); err != nil {
			pm.logger.Debug("message not sent", zap.String("tip", msg.Tip()), zap.Stringer("to", dst), zap.Error(err))
		}
	}()
}

func (c *realContext) SendLocal(msg process.Message) {
	select {
	case c.pm.toUser <- msg:
	case <-c.pm.done:
	}
}

func (c *realContext) SendWithAck(msg process.Message, dst process.Address, timeout time.Duration) error {
	return c.sendReliable(msg, nil, dst, timeout)
}

func (c *realContext) SendWithTag(msg process.Message, tag process.Tag, dst process.Address, timeout time.Duration) error {
	return c.sendReliable(msg, &tag, dst, timeout)
}

func (c *realContext) sendReliable(msg process.Message, tag *process.Tag, dst process.Address, timeout time.Duration) error {
	pm := c.pm
	req := rpc.NewRequest(pm.addr, dst, msg, tag)
	var err error
	pm.block(func() {
		ctx, cancel := context.WithTimeout(pm.ctx, timeout)
		defer cancel()
		err = pm.n.client.SendReliable(ctx, req)
	})
	return sendError(err)
}

func (c *realContext) SendRecvWithTag(msg process.Message, tag process.Tag, dst process.Address, timeout time.Duration) (process.Message, error) {
	pm := c.pm
	ch, err := pm.n.net.wait(pm.name, tag)
	if err != nil {
		return process.Message{}, err
	}
	defer pm.n.net.unwait(pm.name, tag, ch)

	req := rpc.NewRequest(pm.addr, dst, msg, &tag)
	var reply process.Message
	pm.block(func() {
		ctx, cancel := context.WithTimeout(pm.ctx, timeout)
		defer cancel()
		if err = pm.n.client.SendReliable(ctx, req); err != nil {
			return
		}
		select {
		case reply = <-ch:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	if err != nil {
		return process.Message{}, sendError(err)
	}
	return reply, nil
}

func sendError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), status.Code(err) == codes.DeadlineExceeded:
		return process.ErrTimeout
	default:
		return fmt.Errorf("%w: %v", process.ErrNotSent, err)
	}
}

func (c *realContext) SetTimer(name string, delay time.Duration) {
	c.pm.timers.SetTimer(name, delay, true)
}

func (c *realContext) SetTimerOnce(name string, delay time.Duration) {
	c.pm.timers.SetTimer(name, delay, false)
}

func (c *realContext) CancelTimer(name string) {
	c.pm.timers.CancelTimer(name)
}

func (c *realContext) Spawn(fn func(ctx process.Context)) {
	c.pm.spawn(func() { fn(c) })
}

func (c *realContext) Sleep(d time.Duration) {
	pm := c.pm
	pm.block(func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-pm.done:
		}
	})
}

func (c *realContext) Stop() {
	c.pm.stop()
}

func (c *realContext) Time() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func (c *realContext) Rand() float64 {
	return rand.Float64()
}

func (c *realContext) storage() (*FileManager, error) {
	if c.pm.n.files == nil {
		return nil, process.ErrStorageUnavailable
	}
	return c.pm.n.files, nil
}

func (c *realContext) CreateFile(name string) (process.File, error) {
	fm, err := c.storage()
	if err != nil {
		return nil, err
	}
	return fm.Create(name)
}

func (c *realContext) OpenFile(name string) (process.File, error) {
	fm, err := c.storage()
	if err != nil {
		return nil, err
	}
	return fm.Open(name)
}

func (c *realContext) FileExists(name string) (bool, error) {
	fm, err := c.storage()
	if err != nil {
		return false, err
	}
	return fm.Exists(name)
}

func (c *realContext) DeleteFile(name string) error {
	fm, err := c.storage()
	if err != nil {
		return err
	}
	return fm.Delete(name)
}
