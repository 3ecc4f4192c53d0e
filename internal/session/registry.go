package session

import "sync"

// Registry maps session keys to live processes. A process starts under the
// caller's session id or a placeholder key and moves to the CLI-reported id
// the first time one is captured.
type Registry struct {
	mu    sync.Mutex
	procs map[string]*Process
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]*Process)}
}

// Register stores p under key, replacing any existing entry.
func (r *Registry) Register(key string, p *Process) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.mu.Lock()
	p.key = key
	p.mu.Unlock()
	r.procs[key] = p
}

// Capture records the session id the CLI reported for p. Only the first id is
// kept; later calls return first=false. If the id differs from p's current key
// and p is still registered, the entry moves to the new key, overwriting any
// process already stored there.
func (r *Registry) Capture(p *Process, sessionID string) (first, rekeyed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.capturedID != "" || sessionID == "" {
		return false, false
	}
	p.capturedID = sessionID

	if p.key == sessionID {
		return true, false
	}
	if r.procs[p.key] == p {
		delete(r.procs, p.key)
		r.procs[sessionID] = p
	}
	p.key = sessionID
	return true, true
}

// Resolve returns the process registered under key, or nil.
func (r *Registry) Resolve(key string) *Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[key]
}

// Unregister removes and returns whatever is stored under key.
func (r *Registry) Unregister(key string) *Process {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.procs[key]
	delete(r.procs, key)
	return p
}

// Remove deletes p only if it is still the entry under its current key, so a
// newer process registered under the same key survives.
func (r *Registry) Remove(p *Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Key()
	if r.procs[key] != p {
		return false
	}
	delete(r.procs, key)
	return true
}

// Snapshot returns the live processes.
func (r *Registry) Snapshot() []*Process {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		result = append(result, p)
	}
	return result
}

// Len returns the number of live processes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}
