package sim

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

type taskState uint8

const (
	taskYielded taskState = iota
	taskDone
)

type yieldSignal struct {
	state taskState
	panic any
}

// task is a goroutine which runs only while the simulation hands it
// control. It gives control back when it blocks or finishes.
type task struct {
	s       *Sim
	proc    *proc
	handler bool

	resume chan bool // true kills the task
	yield  chan yieldSignal

	dead   bool
	result any
}

func (s *Sim) newTask(p *proc, handler bool, fn func()) *task {
	t := &task{
		s:       s,
		proc:    p,
		handler: handler,
		resume:  make(chan bool),
		yield:   make(chan yieldSignal),
	}
	go func() {
		if kill := <-t.resume; kill {
			t.yield <- yieldSignal{state: taskDone}
			return
		}
		defer func() {
			sig := yieldSignal{state: taskDone}
			if r := recover(); r != nil {
				sig.panic = fmt.Sprintf("%v\n%s", r, debug.Stack())
			}
			t.yield <- sig
		}()
		fn()
	}()
	p.tasks[t] = struct{}{}
	return t
}

// run hands control to the task until it blocks or finishes.
func (s *Sim) run(t *task) {
	if t.dead {
		return
	}
	if !t.proc.alive() {
		s.kill(t)
		return
	}
	prev := s.current
	s.current = t
	t.resume <- false
	sig := <-t.yield
	s.current = prev

	if sig.panic != nil {
		panic(sig.panic)
	}
	if sig.state == taskDone {
		t.dead = true
		delete(t.proc.tasks, t)
		if t.handler {
			t.proc.busy = false
			s.drain(t.proc)
		}
	}
}

// kill terminates a task which is not running.
func (s *Sim) kill(t *task) {
	if t.dead {
		return
	}
	t.dead = true
	delete(t.proc.tasks, t)
	t.resume <- true
	<-t.yield
}

// block parks the current task until wake is called with a result.
// register receives the wake function and schedules whatever calls it.
func (t *task) block(register func(wake func(v any))) any {
	woken := false
	register(func(v any) {
		if woken {
			return
		}
		woken = true
		t.result = v
		t.s.run(t)
	})
	t.yield <- yieldSignal{state: taskYielded}
	if kill := <-t.resume; kill {
		runtime.Goexit()
	}
	return t.result
}

func (s *Sim) currentTask() *task {
	if s.current == nil {
		panic("sim: blocking call outside of a process activity")
	}
	return s.current
}
