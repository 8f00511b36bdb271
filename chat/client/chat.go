package client

import (
	"dsbuild/chat"
	"sort"
)

// Chat puts the events of one chat in the order of their sequence
// numbers.
type Chat struct {
	name    string
	next    uint64
	pending map[uint64]chat.ChatEvent
}

func NewChat(name string) *Chat {
	return &Chat{name: name, pending: make(map[uint64]chat.ChatEvent)}
}

func (c *Chat) Name() string {
	return c.name
}

// Add takes an event and returns the events which are next in order.
// Events seen already are dropped.
func (c *Chat) Add(ev chat.ChatEvent) []chat.ChatEvent {
	if ev.Seq < c.next {
		return nil
	}
	c.pending[ev.Seq] = ev
	var ready []chat.ChatEvent
	for {
		next, ok := c.pending[c.next]
		if !ok {
			return ready
		}
		delete(c.pending, c.next)
		ready = append(ready, next)
		c.next++
	}
}

// Pending returns the sequence numbers of the events waiting for a gap
// to be filled.
func (c *Chat) Pending() []uint64 {
	seqs := make([]uint64, 0, len(c.pending))
	for seq := range c.pending {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
