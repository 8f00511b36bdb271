package sim

type link struct {
	from, to string
}

// network decides whether and when a message between two nodes arrives.
type network struct {
	minDelay float64
	maxDelay float64
	dropRate float64

	disconnected map[string]bool
	blocked      map[link]bool
}

func newNetwork() *network {
	return &network{
		minDelay:     0.1,
		maxDelay:     0.1,
		disconnected: make(map[string]bool),
		blocked:      make(map[link]bool),
	}
}

func (nw *network) reachable(from, to string) bool {
	if from == to {
		return true
	}
	if nw.disconnected[from] || nw.disconnected[to] {
		return false
	}
	return !nw.blocked[link{from, to}]
}

func (s *Sim) delay() float64 {
	nw := s.net
	if nw.maxDelay <= nw.minDelay {
		return nw.minDelay
	}
	return nw.minDelay + s.rd.Float64()*(nw.maxDelay-nw.minDelay)
}

func (s *Sim) dropped() bool {
	return s.net.dropRate > 0 && s.rd.Float64() < s.net.dropRate
}

// SetNetworkDelays makes message delays uniform in [min, max] seconds.
func (s *Sim) SetNetworkDelays(min, max float64) {
	if min < 0 || max < min {
		panic("sim: bad network delays")
	}
	s.net.minDelay = min
	s.net.maxDelay = max
}

// SetNetworkDelay sets a fixed message delay in seconds.
func (s *Sim) SetNetworkDelay(d float64) {
	s.SetNetworkDelays(d, d)
}

// SetDropRate sets the probability of losing an unreliable message.
func (s *Sim) SetDropRate(p float64) {
	if p < 0 || p > 1 {
		panic("sim: bad drop rate")
	}
	s.net.dropRate = p
}

func (s *Sim) DisconnectNode(name string) {
	s.net.disconnected[name] = true
}

// ConnectNode reconnects the node and heals its splits.
func (s *Sim) ConnectNode(name string) {
	delete(s.net.disconnected, name)
	for l := range s.net.blocked {
		if l.from == name || l.to == name {
			delete(s.net.blocked, l)
		}
	}
}

// SplitNetwork blocks messages between the two groups of nodes.
func (s *Sim) SplitNetwork(group1, group2 []string) {
	for _, a := range group1 {
		for _, b := range group2 {
			s.net.blocked[link{a, b}] = true
			s.net.blocked[link{b, a}] = true
		}
	}
}

// RepairNetwork heals all splits and reconnects all nodes.
func (s *Sim) RepairNetwork() {
	s.net.disconnected = make(map[string]bool)
	s.net.blocked = make(map[link]bool)
}
