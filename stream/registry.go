package stream

import "sync"

// Registry tracks the live, board-scoped connections. A single mutex guards
// the per-board sets; membership churn is tiny next to broadcast volume, and
// every operation under the lock is a map touch.
type Registry struct {
	mu     sync.Mutex
	boards map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry. One instance is constructed at server
// start and shared by reference with everything that dispatches.
func NewRegistry() *Registry {
	return &Registry{boards: make(map[string]map[*Conn]struct{})}
}

// Admit registers the connection under boardID. A connection is scoped to at
// most one board for its lifetime; admitting it again is a no-op.
func (r *Registry) Admit(c *Conn, boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.boardID != "" {
		return
	}
	c.boardID = boardID
	set, ok := r.boards[boardID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.boards[boardID] = set
	}
	set[c] = struct{}{}
}

// Remove unregisters the connection from whatever board it belongs to. No-op
// for connections that were never admitted or already removed.
func (r *Registry) Remove(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.boards[c.boardID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.boards, c.boardID)
	}
}

// ListByBoard returns a snapshot of the connections currently admitted to the
// board. The snapshot is safe to iterate while admits and removes continue.
func (r *Registry) ListByBoard(boardID string) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.boards[boardID]
	conns := make([]*Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}
