package coordinator

import "sync"

// Connectivity is the host's view of network reachability.
type Connectivity interface {
	// Online reports whether the network is currently believed reachable.
	Online() bool

	// Changes delivers the new state on every online/offline edge.
	Changes() <-chan bool
}

// Switch is a Connectivity source flipped by hand: by tests, by the CLI,
// or by any host code with its own notion of reachability.
//
// Changes is buffered to one value; a slow reader sees the latest edge.
type Switch struct {
	mu     sync.Mutex
	online bool
	ch     chan bool
}

// NewSwitch creates a switch in the given state.
func NewSwitch(online bool) *Switch {
	return &Switch{online: online, ch: make(chan bool, 1)}
}

// Online implements Connectivity.
func (s *Switch) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Changes implements Connectivity.
func (s *Switch) Changes() <-chan bool {
	return s.ch
}

// Set changes the state. Only actual edges are delivered.
func (s *Switch) Set(online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.online == online {
		return
	}
	s.online = online

	select {
	case <-s.ch:
	default:
	}
	s.ch <- online
}
