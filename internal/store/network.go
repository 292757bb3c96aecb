package store

import "sync"

// SwitchNetwork is a NetworkMonitor whose state is set explicitly. Server
// side callers use it as an always-online monitor; device shells flip it
// from their platform connectivity callbacks.
type SwitchNetwork struct {
	mu     sync.Mutex
	online bool
	subs   map[int]func(bool)
	next   int
}

// NewSwitchNetwork returns a monitor in the given state.
func NewSwitchNetwork(online bool) *SwitchNetwork {
	return &SwitchNetwork{online: online, subs: make(map[int]func(bool))}
}

func (n *SwitchNetwork) Online() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.online
}

// Set changes the state and notifies subscribers when it actually changed.
func (n *SwitchNetwork) Set(online bool) {
	n.mu.Lock()
	if n.online == online {
		n.mu.Unlock()
		return
	}
	n.online = online
	subs := make([]func(bool), 0, len(n.subs))
	for _, fn := range n.subs {
		subs = append(subs, fn)
	}
	n.mu.Unlock()
	for _, fn := range subs {
		fn(online)
	}
}

func (n *SwitchNetwork) Subscribe(fn func(bool)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}
