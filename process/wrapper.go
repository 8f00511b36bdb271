package process

import "sync"

// Wrapper is a typed handle on a process added to a runtime.
type Wrapper[P Process] struct {
	mu   *sync.Mutex
	proc P
	addr Address
}

func NewWrapper[P Process](proc P, addr Address) *Wrapper[P] {
	return &Wrapper[P]{mu: &sync.Mutex{}, proc: proc, addr: addr}
}

// Read runs fn with exclusive access to the process state.
func (w *Wrapper[P]) Read(fn func(p P)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(w.proc)
}

func (w *Wrapper[P]) Address() Address {
	return w.addr
}

// Locker returns the lock the runtime holds while the process handles an event.
func (w *Wrapper[P]) Locker() sync.Locker {
	return w.mu
}

func (w *Wrapper[P]) Process() Process {
	return w.proc
}
