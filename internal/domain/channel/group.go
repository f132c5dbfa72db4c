package channel

import "sync"

// Group holds the fixed set of channel machines and answers combined
// queries. Registration happens at wiring time; afterwards the group is
// read-mostly.
type Group struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	order    []string
}

// NewGroup creates an empty group
func NewGroup() *Group {
	return &Group{
		machines: make(map[string]*Machine),
	}
}

// Add registers a machine under its channel name. Re-adding a name
// replaces the machine but keeps its position.
func (g *Group) Add(m *Machine) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.machines[m.Name()]; !exists {
		g.order = append(g.order, m.Name())
	}
	g.machines[m.Name()] = m
}

// Get returns the machine for the named channel
func (g *Group) Get(name string) (*Machine, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.machines[name]
	return m, ok
}

// Names returns the channel names in registration order
func (g *Group) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, len(g.order))
	copy(names, g.order)
	return names
}

// CombinedState reduces all member states via Combine
func (g *Group) CombinedState() ConnState {
	g.mu.RLock()
	defer g.mu.RUnlock()

	states := make([]ConnState, 0, len(g.order))
	for _, name := range g.order {
		states = append(states, g.machines[name].State())
	}
	return Combine(states...)
}

// Snapshots returns per-channel status in registration order
func (g *Group) Snapshots() []Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snaps := make([]Status, 0, len(g.order))
	for _, name := range g.order {
		snaps = append(snaps, g.machines[name].Snapshot())
	}
	return snaps
}

// ConnectAll starts every machine
func (g *Group) ConnectAll() {
	for _, m := range g.members() {
		m.Connect()
	}
}

// DisconnectAll stops every machine
func (g *Group) DisconnectAll() {
	for _, m := range g.members() {
		m.Disconnect()
	}
}

func (g *Group) members() []*Machine {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ms := make([]*Machine, 0, len(g.order))
	for _, name := range g.order {
		ms = append(ms, g.machines[name])
	}
	return ms
}
