package discoverymanager

import "sync"

// ClientRegistry is the set of client addresses seen by the listener, kept in
// first-seen order.
type ClientRegistry struct {
	mu      sync.Mutex
	index   map[string]struct{}
	clients []string
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{index: make(map[string]struct{})}
}

// Add records addr and reports whether it was new.
func (r *ClientRegistry) Add(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[addr]; ok {
		return false
	}
	r.index[addr] = struct{}{}
	r.clients = append(r.clients, addr)
	return true
}

func (r *ClientRegistry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.clients...)
}

func (r *ClientRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *ClientRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = make(map[string]struct{})
	r.clients = nil
}
