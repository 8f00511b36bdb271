package sim

import (
	"dsbuild/process"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// simContext is the process.Context of a simulated process.
type simContext struct {
	s      *Sim
	p      *proc
	logger *zap.Logger
}

var _ process.Context = (*simContext)(nil)

func (c *simContext) Self() process.Address {
	return c.p.address()
}

func (c *simContext) Logger() *zap.Logger {
	return c.logger
}

func (c *simContext) Send(msg process.Message, dst process.Address) {
	to, err := c.s.nm.resolve(dst)
	if err != nil {
		c.logger.Warn("message not sent", zap.Error(err))
		return
	}
	c.p.sent++
	if !c.s.transmit(c.p, to, msg, nil, false, nil) {
		c.logger.Debug("message lost", zap.String("tip", msg.Tip()), zap.Stringer("to", dst))
	}
}

func (c *simContext) SendLocal(msg process.Message) {
	c.p.local = append(c.p.local, msg)
}

func (c *simContext) SendWithAck(msg process.Message, dst process.Address, timeout time.Duration) error {
	return c.sendReliable(msg, nil, dst, timeout)
}

func (c *simContext) SendWithTag(msg process.Message, tag process.Tag, dst process.Address, timeout time.Duration) error {
	return c.sendReliable(msg, &tag, dst, timeout)
}

// sendReliable delivers the message unless the destination is unreachable
// and waits for the acknowledgement. The receiver acknowledges once it got
// the message and the acknowledgement takes another network delay.
func (c *simContext) sendReliable(msg process.Message, tag *process.Tag, dst process.Address, timeout time.Duration) error {
	t := c.s.currentTask()
	to, err := c.s.nm.resolve(dst)
	if err != nil {
		return err
	}
	c.p.sent++
	epoch := c.p.node.epoch
	res := t.block(func(wake func(v any)) {
		timer := c.s.schedule(timeout.Seconds(), func() {
			wake(process.ErrTimeout)
		})
		c.s.transmit(c.p, to, msg, tag, true, func() {
			if !c.s.net.reachable(to.node.name, c.p.node.name) {
				return
			}
			c.s.schedule(c.s.delay(), func() {
				if c.p.node.epoch != epoch || !c.s.net.reachable(to.node.name, c.p.node.name) {
					return
				}
				timer.cancel()
				wake(nil)
			})
		})
	})
	if res == nil {
		return nil
	}
	return res.(error)
}

func (c *simContext) SendRecvWithTag(msg process.Message, tag process.Tag, dst process.Address, timeout time.Duration) (process.Message, error) {
	t := c.s.currentTask()
	to, err := c.s.nm.resolve(dst)
	if err != nil {
		return process.Message{}, err
	}
	if _, ok := c.p.tagWaiters[tag]; ok {
		return process.Message{}, fmt.Errorf("%w: tag %d is already awaited", process.ErrNotSent, tag)
	}
	c.p.sent++
	res := t.block(func(wake func(v any)) {
		timer := c.s.schedule(timeout.Seconds(), func() {
			delete(c.p.tagWaiters, tag)
			wake(process.ErrTimeout)
		})
		c.p.tagWaiters[tag] = func(v any) {
			timer.cancel()
			wake(v)
		}
		c.s.transmit(c.p, to, msg, &tag, true, nil)
	})
	if err, ok := res.(error); ok {
		return process.Message{}, err
	}
	return res.(process.Message), nil
}

func (c *simContext) SetTimer(name string, delay time.Duration) {
	if prev, ok := c.p.timers[name]; ok {
		prev.cancel()
	}
	c.setTimer(name, delay)
}

func (c *simContext) SetTimerOnce(name string, delay time.Duration) {
	if _, ok := c.p.timers[name]; ok {
		return
	}
	c.setTimer(name, delay)
}

func (c *simContext) setTimer(name string, delay time.Duration) {
	if !c.p.alive() {
		return
	}
	p := c.p
	var e *event
	e = c.s.schedule(delay.Seconds(), func() {
		if p.timers[name] == e {
			delete(p.timers, name)
		}
		c.s.deliver(p, delivery{kind: deliverTimer, timer: name})
	})
	p.timers[name] = e
}

func (c *simContext) CancelTimer(name string) {
	if e, ok := c.p.timers[name]; ok {
		e.cancel()
		delete(c.p.timers, name)
	}
}

func (c *simContext) Spawn(fn func(ctx process.Context)) {
	if !c.p.alive() {
		return
	}
	p := c.p
	c.s.schedule(0, func() {
		if !p.alive() {
			return
		}
		t := c.s.newTask(p, false, func() { fn(c) })
		c.s.run(t)
	})
}

func (c *simContext) Sleep(d time.Duration) {
	t := c.s.currentTask()
	t.block(func(wake func(v any)) {
		c.s.schedule(d.Seconds(), func() { wake(nil) })
	})
}

func (c *simContext) Stop() {
	c.p.stopped = true
	c.s.release(c.p)
}

func (c *simContext) Time() float64 {
	return c.s.now
}

func (c *simContext) Rand() float64 {
	return c.s.rd.Float64()
}

func (c *simContext) storage() (*nodeStorage, error) {
	st := c.p.node.storage
	if st == nil {
		return nil, process.ErrStorageUnavailable
	}
	return st, nil
}

func (c *simContext) CreateFile(name string) (process.File, error) {
	if !process.ValidFileName(name) {
		return nil, fmt.Errorf("%w: %q", process.ErrBadFileName, name)
	}
	st, err := c.storage()
	if err != nil {
		return nil, err
	}
	if _, ok := st.files[name]; ok {
		return nil, fmt.Errorf("%w: %q", process.ErrFileExists, name)
	}
	mem := newMemFile(name, st)
	st.files[name] = mem
	return &simFile{c: c, name: name, mem: mem}, nil
}

func (c *simContext) OpenFile(name string) (process.File, error) {
	if !process.ValidFileName(name) {
		return nil, fmt.Errorf("%w: %q", process.ErrBadFileName, name)
	}
	st, err := c.storage()
	if err != nil {
		return nil, err
	}
	mem, ok := st.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", process.ErrFileNotFound, name)
	}
	return &simFile{c: c, name: name, mem: mem}, nil
}

func (c *simContext) FileExists(name string) (bool, error) {
	if !process.ValidFileName(name) {
		return false, fmt.Errorf("%w: %q", process.ErrBadFileName, name)
	}
	st, err := c.storage()
	if err != nil {
		return false, err
	}
	_, ok := st.files[name]
	return ok, nil
}

func (c *simContext) DeleteFile(name string) error {
	if !process.ValidFileName(name) {
		return fmt.Errorf("%w: %q", process.ErrBadFileName, name)
	}
	st, err := c.storage()
	if err != nil {
		return err
	}
	mem, ok := st.files[name]
	if !ok {
		return fmt.Errorf("%w: %q", process.ErrFileNotFound, name)
	}
	mem.Release()
	delete(st.files, name)
	return nil
}
