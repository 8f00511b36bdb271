package sim

import "container/heap"

type event struct {
	time      float64
	id        uint64
	fire      func()
	cancelled bool
	index     int
}

func (e *event) cancel() {
	if e != nil {
		e.cancelled = true
	}
}

// eventQueue orders events by time, then by creation order.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	return q[i].id < q[j].id
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

func (s *Sim) schedule(delay float64, fire func()) *event {
	s.nextID++
	e := &event{time: s.now + delay, id: s.nextID, fire: fire}
	heap.Push(&s.events, e)
	return e
}

// popLive returns the next event which was not cancelled.
func (s *Sim) popLive() *event {
	for s.events.Len() > 0 {
		e := heap.Pop(&s.events).(*event)
		if !e.cancelled {
			return e
		}
	}
	return nil
}

func (s *Sim) hasLiveEvents() bool {
	for s.events.Len() > 0 {
		if !s.events[0].cancelled {
			return true
		}
		heap.Pop(&s.events)
	}
	return false
}
