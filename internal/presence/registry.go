// Package presence tracks which connected session is inside which space. The
// settings-change kick path and the periodic eligibility sweep both read it.
package presence

import "sync"

// Occupant is one session currently inside a space
type Occupant struct {
	SessionID string
	Wallet    string
}

// Registry is an in-memory map of space occupancy
type Registry struct {
	mu         sync.RWMutex
	bySession  map[string]string // sessionID -> spaceID
	byWallet   map[string]string // sessionID -> wallet
	occupants  map[string]map[string]struct{} // spaceID -> set of sessionIDs
}

// NewRegistry creates an empty presence registry
func NewRegistry() *Registry {
	return &Registry{
		bySession: make(map[string]string),
		byWallet:  make(map[string]string),
		occupants: make(map[string]map[string]struct{}),
	}
}

// Enter records the session inside the space, leaving any prior space first
func (r *Registry) Enter(sessionID, wallet, spaceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sessionID)
	r.bySession[sessionID] = spaceID
	r.byWallet[sessionID] = wallet
	if r.occupants[spaceID] == nil {
		r.occupants[spaceID] = make(map[string]struct{})
	}
	r.occupants[spaceID][sessionID] = struct{}{}
}

// Leave removes the session from whatever space it occupies
func (r *Registry) Leave(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(sessionID)
}

func (r *Registry) leaveLocked(sessionID string) {
	spaceID, ok := r.bySession[sessionID]
	if !ok {
		return
	}
	delete(r.bySession, sessionID)
	delete(r.byWallet, sessionID)
	if set := r.occupants[spaceID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.occupants, spaceID)
		}
	}
}

// Occupants returns the sessions currently inside the space
func (r *Registry) Occupants(spaceID string) []Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Occupant, 0, len(r.occupants[spaceID]))
	for sessionID := range r.occupants[spaceID] {
		out = append(out, Occupant{SessionID: sessionID, Wallet: r.byWallet[sessionID]})
	}
	return out
}

// Snapshot returns every occupied space and its occupants
func (r *Registry) Snapshot() map[string][]Occupant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]Occupant, len(r.occupants))
	for spaceID, set := range r.occupants {
		occ := make([]Occupant, 0, len(set))
		for sessionID := range set {
			occ = append(occ, Occupant{SessionID: sessionID, Wallet: r.byWallet[sessionID]})
		}
		out[spaceID] = occ
	}
	return out
}
